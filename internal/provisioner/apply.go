package provisioner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ozwald-dev/ozwald/internal/resolver"
	"github.com/ozwald-dev/ozwald/internal/statestore"
	"github.com/ozwald-dev/ozwald/models"
)

// pendingAdd holds the replacement for a superseded instance until its
// predecessor has drained.
type pendingAdd struct {
	inst   models.Instance
	tokens map[string]string
}

// Apply submits the full desired state for a realm. The diff against
// the current records is a symmetric difference on identity: records
// absent from desired are drained to stopped, new identities are
// created in desired state, and identities whose resolved spec changed
// are superseded and re-created. Identities whose spec is unchanged are
// left untouched, so re-submitting the same desired state causes zero
// transitions.
func (p *Provisioner) Apply(ctx context.Context, realm string, desired []models.DesiredService) error {
	if _, ok := p.catalog.Realms[realm]; !ok {
		return fmt.Errorf("unknown realm %q", realm)
	}

	type target struct {
		inst   models.Instance
		tokens map[string]string
	}
	targets := make(map[string]target, len(desired))

	for _, entry := range desired {
		def := p.catalog.Service(realm, entry.Service)
		if def == nil {
			return fmt.Errorf("unknown service %q in realm %q", entry.Service, realm)
		}
		if p.catalog.Host(entry.Host) == nil {
			return fmt.Errorf("unknown host %q", entry.Host)
		}
		// One provisioner, one host: a record placed elsewhere would
		// never be picked up by the reconcile loop.
		if entry.Host != p.host.Name {
			return fmt.Errorf("host %q is not managed by this provisioner (managing %q)", entry.Host, p.host.Name)
		}

		spec, err := resolver.Resolve(def, entry.Variety, entry.Profile)
		if err != nil {
			return err
		}

		id := models.Identity{
			Realm:   realm,
			Service: entry.Service,
			Variety: entry.Variety,
			Profile: entry.Profile,
		}
		if _, dup := targets[id.Key()]; dup {
			return fmt.Errorf("duplicate desired entry for %s", id)
		}
		targets[id.Key()] = target{
			inst: models.Instance{
				Identity: id,
				State:    models.StateDesired,
				Host:     entry.Host,
				Spec:     &spec,
			},
			tokens: entry.LockerTokens,
		}
	}

	existing, err := p.store.List(ctx, realm)
	if err != nil {
		return fmt.Errorf("failed to list instances: %w", err)
	}

	// Removals first: anything running that is no longer desired.
	for _, inst := range existing {
		if inst.State.Terminal() {
			continue
		}
		if _, wanted := targets[inst.Identity.Key()]; !wanted {
			p.debugLog("draining removed instance %s", inst.Identity)
			if err := p.markDraining(ctx, inst.Identity, models.StateStopped, nil); err != nil {
				return err
			}
		}
	}

	byKey := make(map[string]models.Instance, len(existing))
	for _, inst := range existing {
		byKey[inst.Identity.Key()] = inst
	}

	for key, t := range targets {
		current, exists := byKey[key]

		switch {
		case exists && !current.State.Terminal():
			if current.Spec != nil && current.Spec.Equal(*t.inst.Spec) {
				// Unchanged: no transition.
				continue
			}
			// Changed spec is remove + add: the old instance drains to
			// superseded, and the replacement is created once it has.
			p.debugLog("superseding %s with changed spec", t.inst.Identity)
			add := &pendingAdd{inst: t.inst, tokens: t.tokens}
			if err := p.markDraining(ctx, current.Identity, models.StateSuperseded, add); err != nil {
				return err
			}

		case exists:
			// Terminal record for the same identity: replace it.
			if err := p.store.Delete(ctx, current.Identity, current.State); err != nil && !errors.Is(err, statestore.ErrNotFound) {
				return fmt.Errorf("failed to replace terminal record %s: %w", current.Identity, err)
			}
			if err := p.createDesired(ctx, t.inst, t.tokens); err != nil {
				return err
			}

		default:
			if err := p.createDesired(ctx, t.inst, t.tokens); err != nil {
				return err
			}
		}
	}

	return nil
}

// createDesired inserts a fresh desired record and stashes its locker
// tokens for the activation attempt. Tokens live only in memory.
func (p *Provisioner) createDesired(ctx context.Context, inst models.Instance, tokens map[string]string) error {
	inst.State = models.StateDesired
	inst.LastTransition = time.Now().UTC()
	if err := p.store.Create(ctx, inst); err != nil {
		return fmt.Errorf("failed to create instance record %s: %w", inst.Identity, err)
	}

	p.mu.Lock()
	p.tokens[inst.Identity.Key()] = tokens
	p.mu.Unlock()

	if p.notifier != nil {
		p.notifier.InstanceChanged(inst)
	}
	return nil
}

// markDraining moves an instance to draining whatever non-terminal
// state it is in, cancelling any in-flight worker. goal is the terminal
// state the drain worker finishes in; add, when non-nil, is created
// after the drain completes.
func (p *Provisioner) markDraining(ctx context.Context, id models.Identity, goal models.InstanceState, add *pendingAdd) error {
	key := id.Key()

	p.mu.Lock()
	if cancel, ok := p.cancels[key]; ok {
		cancel()
	}
	p.drainGoals[key] = goal
	if add != nil {
		p.pending[key] = add
	}
	p.mu.Unlock()

	// The cancelled worker may still write one last transition; retry
	// the CAS against whatever state it left behind.
	for attempt := 0; attempt < 5; attempt++ {
		current, err := p.store.Get(ctx, id)
		if err != nil {
			return err
		}
		if current.State == models.StateDraining {
			return nil
		}
		if current.State.Terminal() {
			// Nothing left to drain; resolve the pending add directly.
			return p.completeDrain(ctx, id)
		}

		err = p.setState(ctx, id, current.State, func(inst *models.Instance) {
			inst.State = models.StateDraining
		})
		if err == nil {
			return nil
		}
		if !errors.Is(err, statestore.ErrConflict) {
			return err
		}
	}
	return fmt.Errorf("could not mark %s draining: %w", id, statestore.ErrConflict)
}
