package models

import (
	"fmt"
	"time"
)

// InstanceState is one step of the service instance lifecycle.
type InstanceState string

const (
	StateDesired        InstanceState = "desired"
	StateAdmitting      InstanceState = "admitting"
	StateSecretsPending InstanceState = "secrets-pending"
	StateLaunching      InstanceState = "launching"
	StateActive         InstanceState = "active"
	StateDraining       InstanceState = "draining"
	StateStopped        InstanceState = "stopped"
	StateFailed         InstanceState = "failed"
	StateSuperseded     InstanceState = "superseded"
)

// Terminal reports whether the state is an end state. Terminal records
// are retained for inspection and eventually pruned, never transitioned.
func (s InstanceState) Terminal() bool {
	switch s {
	case StateStopped, StateFailed, StateSuperseded:
		return true
	}
	return false
}

// Identity uniquely names a service instance: one definition resolved
// with one variety and one profile, inside one realm.
type Identity struct {
	Realm   string `json:"realm"`
	Service string `json:"service"`
	Variety string `json:"variety,omitempty"`
	Profile string `json:"profile,omitempty"`
}

// Key returns the canonical storage key for the identity.
func (id Identity) Key() string {
	return fmt.Sprintf("%s/%s@%s+%s", id.Realm, id.Service, id.Variety, id.Profile)
}

func (id Identity) String() string { return id.Key() }

// Instance is the serialized projection of a service instance held in
// the active-state store. The reconciliation controller owns all
// mutations; API callers only ever read it.
type Instance struct {
	Identity Identity `json:"identity"`

	// State is the current lifecycle state.
	State InstanceState `json:"state"`

	// Host is the catalog host the instance was placed on.
	Host string `json:"host,omitempty"`

	// Spec is the resolved launch spec the instance was started from.
	Spec *LaunchSpec `json:"spec,omitempty"`

	// RuntimeHandle is the opaque identifier returned by the runtime
	// shim once the instance launched (container ID for Docker).
	RuntimeHandle string `json:"runtimeHandle,omitempty"`

	// LastTransition is when the instance last changed state.
	LastTransition time.Time `json:"lastTransition"`

	// LastError holds the human-readable reason for the most recent
	// failure, empty otherwise.
	LastError string `json:"lastError,omitempty"`

	// ErrorKind classifies LastError for callers.
	ErrorKind ErrorKind `json:"errorKind,omitempty"`
}
