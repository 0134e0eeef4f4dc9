package models

import "sort"

// VarietyOverride carries the hardware-specific overrides a service
// definition declares for one hardware variety. An empty field means
// "inherit from the base definition"; environment keys are merged on top
// of the base environment with key-level replacement.
type VarietyOverride struct {
	// Image replaces the base image reference when non-empty.
	Image string `json:"image,omitempty" yaml:"image,omitempty"`

	// Environment is merged over the base environment, last write wins
	// per key. An explicit empty string replaces a base value.
	Environment map[string]string `json:"environment,omitempty" yaml:"environment,omitempty"`
}

// ProfileOverride carries runtime-parameter overrides, layered
// independently of (and after) the variety overrides.
type ProfileOverride struct {
	Image       string            `json:"image,omitempty" yaml:"image,omitempty"`
	Environment map[string]string `json:"environment,omitempty" yaml:"environment,omitempty"`
}

// Portal is a published port mapping for a service instance.
type Portal struct {
	// ContainerPort is the port the service listens on inside the
	// container.
	ContainerPort int `json:"containerPort" yaml:"container_port" validate:"gt=0"`

	// HostPort is the host port to publish on; zero lets the runtime
	// pick one.
	HostPort int `json:"hostPort,omitempty" yaml:"host_port,omitempty" validate:"gte=0"`

	// Protocol is tcp or udp, defaulting to tcp.
	Protocol string `json:"protocol,omitempty" yaml:"protocol,omitempty"`
}

// ServiceDefinition is the launch template for a service, unique by name
// within its realm. Varieties and profiles are named override layers; at
// most one of each applies to a single instance.
type ServiceDefinition struct {
	// Realm is the realm this definition belongs to.
	Realm string `json:"realm" yaml:"-"`

	// Name is the service name, unique within the realm.
	Name string `json:"name" yaml:"name" validate:"required"`

	// Image is the base container image reference.
	Image string `json:"image" yaml:"image" validate:"required"`

	// Environment is the base environment mapping.
	Environment map[string]string `json:"environment,omitempty" yaml:"environment,omitempty"`

	// Networks are the container networks instances attach to.
	Networks []string `json:"networks,omitempty" yaml:"networks,omitempty"`

	// Portals are the published port mappings.
	Portals []Portal `json:"portals,omitempty" yaml:"portals,omitempty" validate:"dive"`

	// Varieties maps hardware variety names to their overrides.
	Varieties map[string]VarietyOverride `json:"varieties,omitempty" yaml:"varieties,omitempty"`

	// Profiles maps profile names to their overrides.
	Profiles map[string]ProfileOverride `json:"profiles,omitempty" yaml:"profiles,omitempty"`

	// Lockers names the secret lockers an instance needs materialized
	// before launch.
	Lockers []string `json:"lockers,omitempty" yaml:"lockers,omitempty"`

	// GPUExclusive marks services that need a GPU to themselves; at
	// most one such instance is admitted per GPU host.
	GPUExclusive bool `json:"gpuExclusive,omitempty" yaml:"gpu_exclusive,omitempty"`
}

// LaunchSpec is the concrete launch specification produced by resolving a
// service definition with one variety and one profile. It is a pure
// function of its inputs and safe to compare for change detection.
type LaunchSpec struct {
	// Image is the final image reference (profile > variety > base).
	Image string `json:"image"`

	// Environment is the merged environment (base < variety < profile,
	// key-level override; empty string values are preserved).
	Environment map[string]string `json:"environment,omitempty"`

	// Lockers are the required secret lockers, copied from the definition.
	Lockers []string `json:"lockers,omitempty"`

	// Networks are the required container networks.
	Networks []string `json:"networks,omitempty"`

	// Portals are the published port mappings, copied from the
	// definition.
	Portals []Portal `json:"portals,omitempty"`
}

// Equal reports whether two launch specs are materially identical. The
// controller treats an identity whose spec changed as remove + add.
func (s LaunchSpec) Equal(o LaunchSpec) bool {
	if s.Image != o.Image {
		return false
	}
	if len(s.Environment) != len(o.Environment) {
		return false
	}
	for k, v := range s.Environment {
		ov, ok := o.Environment[k]
		if !ok || ov != v {
			return false
		}
	}
	if len(s.Portals) != len(o.Portals) {
		return false
	}
	for i := range s.Portals {
		if s.Portals[i] != o.Portals[i] {
			return false
		}
	}
	return equalStringSets(s.Lockers, o.Lockers) && equalStringSets(s.Networks, o.Networks)
}

func equalStringSets(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	as := append([]string(nil), a...)
	bs := append([]string(nil), b...)
	sort.Strings(as)
	sort.Strings(bs)
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}

// DesiredService is one entry of a desired-state submission: an identity
// selector plus the locker tokens for this activation attempt. Tokens are
// used once for materialization and never persisted.
type DesiredService struct {
	// Service is the service definition name.
	Service string `json:"service" validate:"required"`

	// Variety selects a hardware variety override (optional).
	Variety string `json:"variety,omitempty"`

	// Profile selects a profile override (optional).
	Profile string `json:"profile,omitempty"`

	// Host pins the instance to a catalog host.
	Host string `json:"host" validate:"required"`

	// LockerTokens maps locker name to its decryption token.
	LockerTokens map[string]string `json:"lockerTokens,omitempty"`
}
