package provisioner

import (
	"context"
	"errors"
	"log"

	"github.com/ozwald-dev/ozwald/internal/footprint"
	"github.com/ozwald-dev/ozwald/internal/metrics"
	"github.com/ozwald-dev/ozwald/internal/resolver"
	"github.com/ozwald-dev/ozwald/internal/statestore"
	"github.com/ozwald-dev/ozwald/internal/vault"
	"github.com/ozwald-dev/ozwald/models"
)

// recover rebuilds in-memory accounting from the persisted records
// after a restart. Active instances re-enter the reservation; instances
// caught mid-activation are failed, because their one-shot locker
// tokens died with the previous process. Leftover secret artifacts are
// swept unconditionally.
func (p *Provisioner) recover(ctx context.Context) error {
	swept, err := vault.SweepArtifacts(p.cfg.Provisioner.ArtifactDir, p.cfg.Provisioner.ArtifactTTL)
	if err != nil {
		return err
	}
	if swept > 0 {
		metrics.SweptArtifacts.Add(float64(swept))
		log.Printf("Swept %d leftover secret artifact(s)", swept)
	}

	instances, err := p.hostInstances(ctx)
	if err != nil {
		return err
	}

	for _, inst := range instances {
		key := inst.Identity.Key()

		switch inst.State {
		case models.StateActive:
			fp, err := p.cache.Lookup(models.FootprintKey{
				Service: inst.Identity.Service,
				Variety: inst.Identity.Variety,
				Profile: inst.Identity.Profile,
			})
			if errors.Is(err, footprint.ErrNotRecorded) {
				// Estimate was refreshed away while we ran; the
				// instance keeps running unaccounted until it drains.
				log.Printf("Warning: active instance %s has no footprint on record", inst.Identity)
				continue
			}
			if err != nil {
				return err
			}
			p.mu.Lock()
			p.reserved.Add(fp)
			p.admitted[key] = fp
			p.mu.Unlock()
			p.debugLog("recovered active instance %s", inst.Identity)

		case models.StateDesired:
			if inst.Spec != nil && len(inst.Spec.Lockers) == 0 {
				// Secretless instances can restart their activation.
				continue
			}
			p.failInterrupted(ctx, inst)

		case models.StateAdmitting, models.StateSecretsPending, models.StateLaunching:
			p.failInterrupted(ctx, inst)

		case models.StateDraining:
			// Picked up by the first reconcile pass; default goal of
			// stopped applies.
			p.debugLog("resuming drain of %s", inst.Identity)
		}
	}

	return nil
}

// failInterrupted settles an instance whose activation died with the
// previous process. Tokens are gone, so the attempt cannot resume.
func (p *Provisioner) failInterrupted(ctx context.Context, inst models.Instance) {
	err := p.setState(ctx, inst.Identity, inst.State, func(i *models.Instance) {
		i.State = models.StateFailed
		i.LastError = "activation interrupted by controller restart, re-submit with fresh tokens"
		i.ErrorKind = models.ErrKindRuntime
	})
	if err != nil {
		log.Printf("Error failing interrupted instance %s: %v", inst.Identity, err)
		return
	}
	log.Printf("Instance %s failed: activation interrupted by restart", inst.Identity)
}

// seedPersistentServices makes sure every catalog persistent service
// pinned to this host has a desired record. Persistent services carry
// no lockers and need no tokens.
func (p *Provisioner) seedPersistentServices(ctx context.Context) error {
	for realmName, realm := range p.catalog.Realms {
		for _, ps := range realm.PersistentServices {
			if ps.Host != p.host.Name {
				continue
			}
			id := models.Identity{
				Realm:   realmName,
				Service: ps.Service,
				Variety: ps.Variety,
				Profile: ps.Profile,
			}
			if _, err := p.store.Get(ctx, id); err == nil {
				continue
			} else if !errors.Is(err, statestore.ErrNotFound) {
				return err
			}

			def := p.catalog.Service(realmName, ps.Service)
			if def == nil {
				continue
			}
			spec, err := resolver.Resolve(def, ps.Variety, ps.Profile)
			if err != nil {
				log.Printf("Skipping persistent service %s: %v", id, err)
				continue
			}

			inst := models.Instance{
				Identity: id,
				State:    models.StateDesired,
				Host:     ps.Host,
				Spec:     &spec,
			}
			if err := p.createDesired(ctx, inst, nil); err != nil {
				return err
			}
			log.Printf("Seeded persistent service %s", id)
		}
	}
	return nil
}

// drainAll moves every non-terminal instance on this host to draining
// and runs the drains to completion. Called on graceful shutdown.
func (p *Provisioner) drainAll(ctx context.Context) {
	instances, err := p.hostInstances(ctx)
	if err != nil {
		log.Printf("Error listing instances for shutdown drain: %v", err)
		return
	}

	for _, inst := range instances {
		if inst.State.Terminal() {
			continue
		}
		if err := p.markDraining(ctx, inst.Identity, models.StateStopped, nil); err != nil {
			log.Printf("Error draining %s at shutdown: %v", inst.Identity, err)
			continue
		}
	}

	// Re-read and drain synchronously; workers were cancelled by
	// markDraining.
	instances, err = p.hostInstances(ctx)
	if err != nil {
		log.Printf("Error listing instances for shutdown drain: %v", err)
		return
	}
	for _, inst := range instances {
		if inst.State == models.StateDraining {
			p.runDrain(ctx, inst)
		}
	}
}
