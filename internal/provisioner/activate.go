package provisioner

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/ozwald-dev/ozwald/internal/footprint"
	"github.com/ozwald-dev/ozwald/internal/metrics"
	"github.com/ozwald-dev/ozwald/internal/runtime"
	"github.com/ozwald-dev/ozwald/internal/statestore"
	"github.com/ozwald-dev/ozwald/internal/vault"
	"github.com/ozwald-dev/ozwald/models"
)

// runActivation drives one instance from desired to active. Every
// blocking step is bounded by the configured step timeout; exceeding it
// fails the instance rather than wedging the controller. A cancelled
// context means the instance was superseded or removed mid-flight: the
// worker releases what it holds and leaves the record to the drain
// path.
func (p *Provisioner) runActivation(ctx context.Context, inst models.Instance) {
	id := inst.Identity
	key := id.Key()
	spec := inst.Spec
	if spec == nil {
		p.fail(id, models.StateDesired, models.ErrKindConfiguration, "instance record has no launch spec")
		return
	}

	if err := p.setState(ctx, id, models.StateDesired, func(i *models.Instance) {
		i.State = models.StateAdmitting
	}); err != nil {
		p.debugLog("activation of %s not started: %v", id, err)
		return
	}

	// Admission gate: no estimate, no placement.
	fp, err := p.cache.Lookup(models.FootprintKey{
		Service: id.Service,
		Variety: id.Variety,
		Profile: id.Profile,
	})
	if errors.Is(err, footprint.ErrNotRecorded) {
		p.fail(id, models.StateAdmitting, models.ErrKindConfiguration,
			fmt.Sprintf("no footprint recorded for %s, run a footprint measurement first", id))
		return
	}
	if err != nil {
		p.fail(id, models.StateAdmitting, models.ErrKindConfiguration, err.Error())
		return
	}

	p.mu.Lock()
	if err := footprint.Admit(p.host, id.Variety, p.reserved, fp); err != nil {
		p.mu.Unlock()
		metrics.AdmissionRejections.WithLabelValues(p.host.Name).Inc()
		p.fail(id, models.StateAdmitting, models.ErrKindResourceExhausted, err.Error())
		return
	}
	p.reserved.Add(fp)
	p.admitted[key] = fp
	p.mu.Unlock()

	if ctx.Err() != nil {
		p.release(key)
		return
	}

	if err := p.setState(ctx, id, models.StateAdmitting, func(i *models.Instance) {
		i.State = models.StateSecretsPending
	}); err != nil {
		p.release(key)
		return
	}

	// Materialize secrets. Tokens are one-shot: consumed here whether
	// or not the attempt succeeds.
	secretsFile := ""
	var destroy func() error
	if len(spec.Lockers) > 0 {
		p.mu.Lock()
		tokens := p.tokens[key]
		delete(p.tokens, key)
		p.mu.Unlock()

		stepCtx, cancel := context.WithTimeout(ctx, p.cfg.Provisioner.StepTimeout)
		artifact, err := p.vault.Materialize(stepCtx, id.Realm, spec.Lockers, tokens)
		cancel()
		if err != nil {
			p.release(key)
			// Wrong token, absent locker and corrupt blob all read the
			// same; anything else keeps a neutral reason.
			reason := "secrets materialization failed"
			if errors.Is(err, vault.ErrTokenMismatch) {
				reason = "secrets materialization failed: token mismatch"
			}
			p.fail(id, models.StateSecretsPending, classify(err, models.ErrKindSecrets), reason)
			return
		}
		secretsFile = artifact.Path()
		destroy = artifact.Destroy
	}
	// The artifact never outlives the launch step.
	defer func() {
		if destroy != nil {
			if err := destroy(); err != nil {
				log.Printf("Warning: failed to destroy secrets artifact for %s: %v", id, err)
			}
		}
	}()

	if err := p.setState(ctx, id, models.StateSecretsPending, func(i *models.Instance) {
		i.State = models.StateLaunching
	}); err != nil {
		p.release(key)
		return
	}

	stepCtx, cancel := context.WithTimeout(ctx, p.cfg.Provisioner.StepTimeout)
	handle, err := p.shim.Start(stepCtx, containerName(id), *spec, secretsFile)
	cancel()
	if err != nil {
		p.release(key)
		if ctx.Err() != nil {
			// Superseded mid-launch; the drain path owns the record.
			return
		}
		p.fail(id, models.StateLaunching, classify(err, models.ErrKindRuntime),
			fmt.Sprintf("launch failed: %v", err))
		return
	}

	if err := p.setState(ctx, id, models.StateLaunching, func(i *models.Instance) {
		i.State = models.StateActive
		i.RuntimeHandle = string(handle)
	}); err != nil {
		// Lost the record mid-launch (superseded): the container is up
		// but unwanted, take it back down.
		stopCtx, cancelStop := context.WithTimeout(context.Background(), p.cfg.Provisioner.StepTimeout)
		if serr := p.shim.Stop(stopCtx, handle); serr != nil {
			log.Printf("Warning: failed to stop orphaned container for %s: %v", id, serr)
		}
		cancelStop()
		p.release(key)
		return
	}

	log.Printf("Instance %s is active on %s", id, p.host.Name)
}

// runDrain stops a draining instance's container, releases its
// reservation and settles the record in its goal terminal state.
func (p *Provisioner) runDrain(ctx context.Context, inst models.Instance) {
	id := inst.Identity
	key := id.Key()

	p.mu.Lock()
	goal, ok := p.drainGoals[key]
	delete(p.drainGoals, key)
	delete(p.tokens, key)
	p.mu.Unlock()
	if !ok {
		goal = models.StateStopped
	}

	if inst.RuntimeHandle != "" {
		stepCtx, cancel := context.WithTimeout(ctx, p.cfg.Provisioner.StepTimeout)
		err := p.shim.Stop(stepCtx, runtime.Handle(inst.RuntimeHandle))
		cancel()
		if err != nil {
			p.release(key)
			p.fail(id, models.StateDraining, classify(err, models.ErrKindRuntime),
				fmt.Sprintf("drain failed: %v", err))
			return
		}
	}

	p.release(key)

	if err := p.setState(ctx, id, models.StateDraining, func(i *models.Instance) {
		i.State = goal
		i.RuntimeHandle = ""
	}); err != nil {
		log.Printf("Error settling drained instance %s: %v", id, err)
		return
	}

	log.Printf("Instance %s drained to %s", id, goal)

	if err := p.completeDrain(ctx, id); err != nil {
		log.Printf("Error creating replacement for %s: %v", id, err)
	}
}

// completeDrain creates the replacement record for a superseded
// instance, if one was registered.
func (p *Provisioner) completeDrain(ctx context.Context, id models.Identity) error {
	key := id.Key()

	p.mu.Lock()
	add := p.pending[key]
	delete(p.pending, key)
	p.mu.Unlock()
	if add == nil {
		return nil
	}

	// The terminal record occupies the identity; the replacement takes
	// its place.
	if current, err := p.store.Get(ctx, id); err == nil && current.State.Terminal() {
		if err := p.store.Delete(ctx, id, current.State); err != nil && !errors.Is(err, statestore.ErrNotFound) {
			return err
		}
	}
	return p.createDesired(ctx, add.inst, add.tokens)
}

// fail settles an instance in the failed state with a classified error.
func (p *Provisioner) fail(id models.Identity, from models.InstanceState, kind models.ErrorKind, reason string) {
	ctx := context.Background()
	err := p.setState(ctx, id, from, func(i *models.Instance) {
		i.State = models.StateFailed
		i.LastError = reason
		i.ErrorKind = kind
	})
	if err != nil {
		log.Printf("Error failing instance %s (%s): %v", id, reason, err)
		return
	}
	log.Printf("Instance %s failed: %s", id, reason)
}

// release returns the instance's admitted footprint to the host pool.
// Safe to call when nothing was admitted.
func (p *Provisioner) release(key string) {
	p.mu.Lock()
	if fp, ok := p.admitted[key]; ok {
		p.reserved.Release(fp)
		delete(p.admitted, key)
	}
	p.mu.Unlock()
}

// classify maps step errors to an error kind, promoting deadline
// overruns to timeouts.
func classify(err error, fallback models.ErrorKind) models.ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return models.ErrKindTimeout
	}
	return fallback
}

// containerName derives the runtime container name for an identity.
func containerName(id models.Identity) string {
	parts := []string{"ozwald", id.Realm, id.Service}
	if id.Variety != "" {
		parts = append(parts, id.Variety)
	}
	if id.Profile != "" {
		parts = append(parts, id.Profile)
	}
	return strings.Join(parts, "-")
}
