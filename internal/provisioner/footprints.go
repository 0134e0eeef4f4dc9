package provisioner

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/ozwald-dev/ozwald/internal/metrics"
	"github.com/ozwald-dev/ozwald/internal/resolver"
	"github.com/ozwald-dev/ozwald/models"
)

// processFootprintRequests drains the measurement queue one request per
// pass. Only called while the host is unloaded, so measurements observe
// the service's own consumption rather than its neighbours'.
func (p *Provisioner) processFootprintRequests(ctx context.Context) {
	reqs, err := p.queue.List(ctx)
	if err != nil {
		log.Printf("Error listing footprint requests: %v", err)
		return
	}
	if len(reqs) == 0 {
		return
	}

	req := reqs[0]
	if !req.InProgress {
		now := time.Now().UTC()
		req.InProgress = true
		req.StartedAt = &now
		if err := p.queue.Update(ctx, req); err != nil {
			log.Printf("Error claiming footprint request %s: %v", req.ID, err)
			return
		}
	}

	log.Printf("Processing footprint request %s", req.ID)

	targets, err := p.expandTargets(req)
	if err != nil {
		log.Printf("Footprint request %s rejected: %v", req.ID, err)
		if rerr := p.queue.Remove(ctx, req.ID); rerr != nil {
			log.Printf("Error removing footprint request %s: %v", req.ID, rerr)
		}
		return
	}

	for _, t := range targets {
		def := p.catalog.Service(req.Realm, t.Service)
		if def == nil {
			log.Printf("Skipping footprint target %s: unknown service", t.Service)
			continue
		}
		spec, err := resolver.Resolve(def, t.Variety, t.Profile)
		if err != nil {
			log.Printf("Skipping footprint target %s/%s+%s: %v", t.Service, t.Variety, t.Profile, err)
			continue
		}

		// Measurement runs use the base spec without secrets.
		runCtx, cancel := context.WithTimeout(ctx, p.cfg.Provisioner.StepTimeout)
		fp, err := p.estimator.Estimate(runCtx, t, spec, def.GPUExclusive)
		cancel()
		if err != nil {
			log.Printf("Footprint measurement of %s/%s+%s failed: %v", t.Service, t.Variety, t.Profile, err)
			continue
		}
		metrics.FootprintMeasurements.Inc()
		p.debugLog("measured footprint for %s/%s+%s: cpu=%dm mem=%d vram=%d",
			t.Service, t.Variety, t.Profile, fp.CPUMillicores, fp.MemoryBytes, fp.VRAMBytes)
	}

	if err := p.queue.Remove(ctx, req.ID); err != nil {
		log.Printf("Error removing footprint request %s: %v", req.ID, err)
	}
}

// expandTargets resolves a request into the concrete triples to
// measure. An all-services request covers every declared variety and
// profile combination of every definition in the realm.
func (p *Provisioner) expandTargets(req models.FootprintRequest) ([]models.FootprintKey, error) {
	realm, ok := p.catalog.Realms[req.Realm]
	if !ok {
		return nil, fmt.Errorf("unknown realm %q", req.Realm)
	}

	if !req.All {
		return req.Targets, nil
	}

	var targets []models.FootprintKey
	for _, def := range realm.Services {
		varieties := []string{""}
		for name := range def.Varieties {
			varieties = append(varieties, name)
		}
		profiles := []string{""}
		for name := range def.Profiles {
			profiles = append(profiles, name)
		}
		for _, v := range varieties {
			for _, pr := range profiles {
				targets = append(targets, models.FootprintKey{
					Service: def.Name,
					Variety: v,
					Profile: pr,
				})
			}
		}
	}
	return targets, nil
}
