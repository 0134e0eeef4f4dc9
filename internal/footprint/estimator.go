package footprint

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/ozwald-dev/ozwald/internal/runtime"
	"github.com/ozwald-dev/ozwald/models"
)

// Usage is a point-in-time sample of host resource consumption.
type Usage struct {
	CPUMillicores int64
	MemoryBytes   int64
	VRAMBytes     int64
}

// HostSampler reads current host resource usage. The estimator samples
// before and after running a measurement instance and records the delta.
type HostSampler interface {
	Sample(ctx context.Context) (Usage, error)
}

// Estimator measures footprints by launching a short-lived instance of
// the resolved spec on the real runtime. Estimation must run on an
// otherwise unloaded host; the provisioner only processes footprint
// requests while no services are active.
type Estimator struct {
	shim    runtime.Shim
	sampler HostSampler
	cache   *Cache
	logs    LogStore
	runTime time.Duration
}

// NewEstimator wires an estimator onto the shim and sampler. runTime is
// how long the measurement instance runs before peak usage is sampled.
// logs may be nil, in which case run output is not retained.
func NewEstimator(shim runtime.Shim, sampler HostSampler, cache *Cache, logs LogStore, runTime time.Duration) *Estimator {
	return &Estimator{shim: shim, sampler: sampler, cache: cache, logs: logs, runTime: runTime}
}

// Estimate launches a measurement instance for the spec, samples the
// usage delta and records it under key, replacing any previous
// estimate. Secrets are not materialized for measurement runs.
func (e *Estimator) Estimate(ctx context.Context, key models.FootprintKey, spec models.LaunchSpec, gpuExclusive bool) (models.Footprint, error) {
	pre, err := e.sampler.Sample(ctx)
	if err != nil {
		return models.Footprint{}, fmt.Errorf("failed to sample host before measurement: %w", err)
	}

	name := fmt.Sprintf("ozwald-footprint-%s", uuid.NewString()[:8])
	handle, err := e.shim.Start(ctx, name, spec, "")
	if err != nil {
		return models.Footprint{}, fmt.Errorf("measurement launch failed: %w", err)
	}

	// The measurement instance must come down whatever happens next.
	// Its output is grabbed first: stopping removes the container and
	// its logs with it.
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		e.retainLogs(stopCtx, key, handle)
		if err := e.shim.Stop(stopCtx, handle); err != nil {
			log.Printf("Warning: failed to stop measurement instance %s: %v", name, err)
		}
	}()

	select {
	case <-time.After(e.runTime):
	case <-ctx.Done():
		return models.Footprint{}, ctx.Err()
	}

	post, err := e.sampler.Sample(ctx)
	if err != nil {
		return models.Footprint{}, fmt.Errorf("failed to sample host after measurement: %w", err)
	}

	fp := models.Footprint{
		CPUMillicores: max(0, post.CPUMillicores-pre.CPUMillicores),
		MemoryBytes:   max(0, post.MemoryBytes-pre.MemoryBytes),
		VRAMBytes:     max(0, post.VRAMBytes-pre.VRAMBytes),
		GPUExclusive:  gpuExclusive,
		MeasuredAt:    time.Now().UTC(),
	}

	if err := e.cache.Record(key, fp); err != nil {
		return models.Footprint{}, err
	}
	return fp, nil
}

// retainLogs stores the measurement run's output for inspection. Best
// effort: a failure here never fails the measurement itself.
func (e *Estimator) retainLogs(ctx context.Context, key models.FootprintKey, handle runtime.Handle) {
	if e.logs == nil {
		return
	}
	lines, err := e.shim.Logs(ctx, handle)
	if err != nil {
		log.Printf("Warning: failed to collect measurement logs for %s: %v", key.Service, err)
		return
	}
	if err := e.logs.Replace(ctx, key, lines); err != nil {
		log.Printf("Warning: failed to retain measurement logs for %s: %v", key.Service, err)
	}
}
