package footprint

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ozwald-dev/ozwald/internal/runtime"
	"github.com/ozwald-dev/ozwald/models"
)

// fakeShim records Start/Stop calls without touching a real runtime.
type fakeShim struct {
	started  []string
	stopped  []runtime.Handle
	startErr error
	logLines []string
}

func (s *fakeShim) Start(ctx context.Context, name string, spec models.LaunchSpec, secretsFile string) (runtime.Handle, error) {
	if s.startErr != nil {
		return "", s.startErr
	}
	s.started = append(s.started, name)
	return runtime.Handle("ctr-" + name), nil
}

func (s *fakeShim) Stop(ctx context.Context, handle runtime.Handle) error {
	s.stopped = append(s.stopped, handle)
	return nil
}

func (s *fakeShim) Logs(ctx context.Context, handle runtime.Handle) ([]string, error) {
	return s.logLines, nil
}

// fakeSampler returns canned usage readings in sequence.
type fakeSampler struct {
	readings []Usage
	next     int
}

func (s *fakeSampler) Sample(ctx context.Context) (Usage, error) {
	if s.next >= len(s.readings) {
		return Usage{}, errors.New("no more readings")
	}
	u := s.readings[s.next]
	s.next++
	return u, nil
}

func TestEstimateRecordsDelta(t *testing.T) {
	shim := &fakeShim{}
	sampler := &fakeSampler{readings: []Usage{
		{CPUMillicores: 200, MemoryBytes: 1 << 30, VRAMBytes: 0},
		{CPUMillicores: 1400, MemoryBytes: 3 << 30, VRAMBytes: 2 << 30},
	}}
	cache := NewCache(filepath.Join(t.TempDir(), "footprints.yaml"))
	est := NewEstimator(shim, sampler, cache, nil, time.Millisecond)

	key := models.FootprintKey{Service: "whisper", Variety: "nvidia", Profile: "large"}
	fp, err := est.Estimate(context.Background(), key, models.LaunchSpec{Image: "whisper:latest"}, true)
	require.NoError(t, err)

	assert.Equal(t, int64(1200), fp.CPUMillicores)
	assert.Equal(t, int64(2<<30), fp.MemoryBytes)
	assert.Equal(t, int64(2<<30), fp.VRAMBytes)
	assert.True(t, fp.GPUExclusive)
	assert.False(t, fp.MeasuredAt.IsZero())

	// The measurement instance was started and stopped again.
	require.Len(t, shim.started, 1)
	assert.Contains(t, shim.started[0], "ozwald-footprint-")
	require.Len(t, shim.stopped, 1)

	got, err := cache.Lookup(key)
	require.NoError(t, err)
	assert.Equal(t, fp, got)
}

func TestEstimateRetainsRunLogs(t *testing.T) {
	shim := &fakeShim{logLines: []string{"loading model", "ready"}}
	sampler := &fakeSampler{readings: []Usage{{}, {CPUMillicores: 100}}}
	cache := NewCache(filepath.Join(t.TempDir(), "footprints.yaml"))
	logs := NewMemoryLogStore()
	est := NewEstimator(shim, sampler, cache, logs, time.Millisecond)

	key := models.FootprintKey{Service: "whisper", Profile: "large"}
	_, err := est.Estimate(context.Background(), key, models.LaunchSpec{Image: "whisper:latest"}, false)
	require.NoError(t, err)

	lines, err := logs.Lines(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, []string{"loading model", "ready"}, lines)
}

func TestEstimateClampsNegativeDelta(t *testing.T) {
	shim := &fakeShim{}
	sampler := &fakeSampler{readings: []Usage{
		{CPUMillicores: 900, MemoryBytes: 2 << 30},
		{CPUMillicores: 300, MemoryBytes: 3 << 30},
	}}
	cache := NewCache(filepath.Join(t.TempDir(), "footprints.yaml"))
	est := NewEstimator(shim, sampler, cache, nil, time.Millisecond)

	fp, err := est.Estimate(context.Background(), models.FootprintKey{Service: "whisper"}, models.LaunchSpec{Image: "whisper:latest"}, false)
	require.NoError(t, err)

	assert.Zero(t, fp.CPUMillicores)
	assert.Equal(t, int64(1<<30), fp.MemoryBytes)
}

func TestEstimateLaunchFailure(t *testing.T) {
	shim := &fakeShim{startErr: errors.New("image pull failed")}
	sampler := &fakeSampler{readings: []Usage{{}}}
	cache := NewCache(filepath.Join(t.TempDir(), "footprints.yaml"))
	est := NewEstimator(shim, sampler, cache, nil, time.Millisecond)

	key := models.FootprintKey{Service: "whisper"}
	_, err := est.Estimate(context.Background(), key, models.LaunchSpec{Image: "whisper:latest"}, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "measurement launch failed")

	// Nothing was recorded and nothing needed stopping.
	_, err = cache.Lookup(key)
	assert.ErrorIs(t, err, ErrNotRecorded)
	assert.Empty(t, shim.stopped)
}

func TestEstimateCancelledStopsInstance(t *testing.T) {
	shim := &fakeShim{}
	sampler := &fakeSampler{readings: []Usage{{}}}
	cache := NewCache(filepath.Join(t.TempDir(), "footprints.yaml"))
	est := NewEstimator(shim, sampler, cache, nil, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := est.Estimate(ctx, models.FootprintKey{Service: "whisper"}, models.LaunchSpec{Image: "whisper:latest"}, false)
	assert.ErrorIs(t, err, context.Canceled)
	require.Len(t, shim.stopped, 1)
}
