// Package resolver turns a service definition plus a chosen variety and
// profile into a concrete launch spec. Resolution is a pure merge with a
// fixed precedence order and no side effects.
package resolver

import (
	"errors"
	"fmt"

	"github.com/ozwald-dev/ozwald/models"
)

var (
	// ErrUnknownVariety is returned when the requested variety is not
	// declared by the definition.
	ErrUnknownVariety = errors.New("unknown variety")

	// ErrUnknownProfile is returned when the requested profile is not
	// declared by the definition.
	ErrUnknownProfile = errors.New("unknown profile")
)

// Resolve merges def with the named variety and profile overrides.
//
// Environment precedence is base < variety < profile with key-level
// replacement: a later layer fully replaces a key's value, including
// replacing it with an explicit empty string to suppress a default. The
// image is taken from the most specific layer that sets one.
func Resolve(def *models.ServiceDefinition, variety, profile string) (models.LaunchSpec, error) {
	var v models.VarietyOverride
	if variety != "" {
		var ok bool
		v, ok = def.Varieties[variety]
		if !ok {
			return models.LaunchSpec{}, fmt.Errorf("%w: %q in service %q", ErrUnknownVariety, variety, def.Name)
		}
	}

	var p models.ProfileOverride
	if profile != "" {
		var ok bool
		p, ok = def.Profiles[profile]
		if !ok {
			return models.LaunchSpec{}, fmt.Errorf("%w: %q in service %q", ErrUnknownProfile, profile, def.Name)
		}
	}

	env := make(map[string]string, len(def.Environment)+len(v.Environment)+len(p.Environment))
	for k, val := range def.Environment {
		env[k] = val
	}
	for k, val := range v.Environment {
		env[k] = val
	}
	for k, val := range p.Environment {
		env[k] = val
	}

	image := def.Image
	if v.Image != "" {
		image = v.Image
	}
	if p.Image != "" {
		image = p.Image
	}

	return models.LaunchSpec{
		Image:       image,
		Environment: env,
		Lockers:     append([]string(nil), def.Lockers...),
		Networks:    append([]string(nil), def.Networks...),
		Portals:     append([]models.Portal(nil), def.Portals...),
	}, nil
}
