package footprint

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ozwald-dev/ozwald/models"
)

func TestMemoryLogStoreReplace(t *testing.T) {
	s := NewMemoryLogStore()
	key := models.FootprintKey{Service: "whisper", Profile: "large"}

	require.NoError(t, s.Replace(context.Background(), key, []string{"first run"}))
	require.NoError(t, s.Replace(context.Background(), key, []string{"second run", "done"}))

	lines, err := s.Lines(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, []string{"second run", "done"}, lines)
}

func TestMemoryLogStoreEmptyReplaceClears(t *testing.T) {
	s := NewMemoryLogStore()
	key := models.FootprintKey{Service: "whisper"}

	require.NoError(t, s.Replace(context.Background(), key, []string{"stale"}))
	require.NoError(t, s.Replace(context.Background(), key, nil))

	lines, err := s.Lines(context.Background(), key)
	require.NoError(t, err)
	assert.Nil(t, lines)
}

func TestMemoryLogStoreKeysByTriple(t *testing.T) {
	s := NewMemoryLogStore()

	require.NoError(t, s.Replace(context.Background(), models.FootprintKey{Service: "whisper"}, []string{"base"}))
	require.NoError(t, s.Replace(context.Background(), models.FootprintKey{Service: "whisper", Variety: "nvidia"}, []string{"gpu"}))

	lines, err := s.Lines(context.Background(), models.FootprintKey{Service: "whisper"})
	require.NoError(t, err)
	assert.Equal(t, []string{"base"}, lines)

	lines, err = s.Lines(context.Background(), models.FootprintKey{Service: "whisper", Variety: "nvidia"})
	require.NoError(t, err)
	assert.Equal(t, []string{"gpu"}, lines)
}

func TestMemoryLogStoreLinesIsCopy(t *testing.T) {
	s := NewMemoryLogStore()
	key := models.FootprintKey{Service: "whisper"}
	require.NoError(t, s.Replace(context.Background(), key, []string{"a", "b"}))

	lines, err := s.Lines(context.Background(), key)
	require.NoError(t, err)
	lines[0] = "mutated"

	again, err := s.Lines(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, again)
}
