package footprint

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ozwald-dev/ozwald/models"
)

func TestCacheRecordAndLookup(t *testing.T) {
	cache := NewCache(filepath.Join(t.TempDir(), "footprints.yaml"))
	key := models.FootprintKey{Service: "whisper", Variety: "nvidia", Profile: "large"}
	fp := models.Footprint{CPUMillicores: 2000, MemoryBytes: 4 << 30, VRAMBytes: 6 << 30}

	require.NoError(t, cache.Record(key, fp))

	got, err := cache.Lookup(key)
	require.NoError(t, err)
	assert.Equal(t, fp, got)
}

func TestCacheLookupNotRecorded(t *testing.T) {
	cache := NewCache(filepath.Join(t.TempDir(), "footprints.yaml"))

	_, err := cache.Lookup(models.FootprintKey{Service: "whisper"})
	assert.ErrorIs(t, err, ErrNotRecorded)
}

func TestCacheRecordReplaces(t *testing.T) {
	cache := NewCache(filepath.Join(t.TempDir(), "footprints.yaml"))
	key := models.FootprintKey{Service: "whisper", Profile: "tiny"}

	require.NoError(t, cache.Record(key, models.Footprint{CPUMillicores: 100}))
	require.NoError(t, cache.Record(key, models.Footprint{CPUMillicores: 250}))

	got, err := cache.Lookup(key)
	require.NoError(t, err)
	assert.Equal(t, int64(250), got.CPUMillicores)

	// New file, same triples: only one entry was kept.
	other := NewCache(cache.path)
	got, err = other.Lookup(key)
	require.NoError(t, err)
	assert.Equal(t, int64(250), got.CPUMillicores)
}

func TestCacheFileIsSorted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "footprints.yaml")
	cache := NewCache(path)

	require.NoError(t, cache.Record(models.FootprintKey{Service: "whisper", Variety: "nvidia"}, models.Footprint{}))
	require.NoError(t, cache.Record(models.FootprintKey{Service: "embedder"}, models.Footprint{}))
	require.NoError(t, cache.Record(models.FootprintKey{Service: "whisper", Variety: "cpu-only"}, models.Footprint{}))

	records, err := cache.load()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "embedder", records[0].Service)
	assert.Equal(t, "cpu-only", records[1].Variety)
	assert.Equal(t, "nvidia", records[2].Variety)
}

func TestCacheSurvivesMissingFile(t *testing.T) {
	cache := NewCache(filepath.Join(t.TempDir(), "nested", "footprints.yaml"))

	_, err := os.Stat(filepath.Dir(cache.path))
	require.True(t, os.IsNotExist(err))

	require.NoError(t, cache.Record(models.FootprintKey{Service: "whisper"}, models.Footprint{}))
	_, err = cache.Lookup(models.FootprintKey{Service: "whisper"})
	assert.NoError(t, err)
}
