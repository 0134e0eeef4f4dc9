package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ozwald-dev/ozwald/models"
)

func testDefinition() *models.ServiceDefinition {
	return &models.ServiceDefinition{
		Realm: "prod",
		Name:  "whisper",
		Image: "registry.local/whisper:latest",
		Environment: map[string]string{
			"A":        "1",
			"LOG_MODE": "text",
		},
		Networks: []string{"inference"},
		Lockers:  []string{"whisper-creds"},
		Portals: []models.Portal{
			{ContainerPort: 9000, HostPort: 19000, Protocol: "tcp"},
		},
		Varieties: map[string]models.VarietyOverride{
			"nvidia": {
				Image:       "registry.local/whisper:cuda",
				Environment: map[string]string{"B": "2"},
			},
			"cpu-only": {
				Environment: map[string]string{"THREADS": "8"},
			},
		},
		Profiles: map[string]models.ProfileOverride{
			"large": {
				Environment: map[string]string{"A": "", "C": "3"},
			},
			"tiny": {
				Image: "registry.local/whisper:tiny",
			},
		},
	}
}

func TestResolveBaseOnly(t *testing.T) {
	spec, err := Resolve(testDefinition(), "", "")
	require.NoError(t, err)

	assert.Equal(t, "registry.local/whisper:latest", spec.Image)
	assert.Equal(t, map[string]string{"A": "1", "LOG_MODE": "text"}, spec.Environment)
	assert.Equal(t, []string{"whisper-creds"}, spec.Lockers)
	assert.Equal(t, []string{"inference"}, spec.Networks)
	assert.Len(t, spec.Portals, 1)
}

func TestResolveMergePrecedence(t *testing.T) {
	spec, err := Resolve(testDefinition(), "nvidia", "large")
	require.NoError(t, err)

	// Base contributes A=1, variety adds B=2, profile overrides A to the
	// empty string and adds C=3. The empty string must survive as an
	// explicit value.
	assert.Equal(t, map[string]string{
		"A":        "",
		"B":        "2",
		"C":        "3",
		"LOG_MODE": "text",
	}, spec.Environment)

	val, present := spec.Environment["A"]
	assert.True(t, present)
	assert.Equal(t, "", val)
}

func TestResolveImagePrecedence(t *testing.T) {
	// Variety image beats base.
	spec, err := Resolve(testDefinition(), "nvidia", "")
	require.NoError(t, err)
	assert.Equal(t, "registry.local/whisper:cuda", spec.Image)

	// Profile image beats variety.
	spec, err = Resolve(testDefinition(), "nvidia", "tiny")
	require.NoError(t, err)
	assert.Equal(t, "registry.local/whisper:tiny", spec.Image)

	// Layers that set no image fall through to the base.
	spec, err = Resolve(testDefinition(), "cpu-only", "large")
	require.NoError(t, err)
	assert.Equal(t, "registry.local/whisper:latest", spec.Image)
}

func TestResolveUnknownSelectors(t *testing.T) {
	_, err := Resolve(testDefinition(), "tpu", "")
	assert.ErrorIs(t, err, ErrUnknownVariety)

	_, err = Resolve(testDefinition(), "", "huge")
	assert.ErrorIs(t, err, ErrUnknownProfile)
}

func TestResolveIsPure(t *testing.T) {
	def := testDefinition()

	first, err := Resolve(def, "nvidia", "large")
	require.NoError(t, err)
	second, err := Resolve(def, "nvidia", "large")
	require.NoError(t, err)

	assert.True(t, first.Equal(second))

	// Mutating a result must not leak into the definition.
	first.Environment["A"] = "mutated"
	assert.Equal(t, "1", def.Environment["A"])
}

func TestLaunchSpecEqual(t *testing.T) {
	a, err := Resolve(testDefinition(), "nvidia", "")
	require.NoError(t, err)
	b, err := Resolve(testDefinition(), "nvidia", "")
	require.NoError(t, err)
	assert.True(t, a.Equal(b))

	b.Environment["B"] = "changed"
	assert.False(t, a.Equal(b))
}
