package models

import "time"

// FootprintKey identifies the (definition, variety, profile) triple a
// footprint estimate was measured for. Definition names are unique per
// realm, and footprint data is recorded per provisioner host, so the
// realm is not part of the key.
type FootprintKey struct {
	Service string `json:"service" yaml:"service"`
	Variety string `json:"variety,omitempty" yaml:"variety,omitempty"`
	Profile string `json:"profile,omitempty" yaml:"profile,omitempty"`
}

// Footprint is the measured resource cost of one resolved launch spec.
// Estimates persist until explicitly refreshed; staleness after host
// changes is an accepted tradeoff, not detected.
type Footprint struct {
	// CPUMillicores is the observed peak CPU usage in millicores.
	CPUMillicores int64 `json:"cpuMillicores" yaml:"cpu_millicores"`

	// MemoryBytes is the observed peak RAM usage in bytes.
	MemoryBytes int64 `json:"memoryBytes" yaml:"memory_bytes"`

	// VRAMBytes is the observed peak GPU memory usage in bytes.
	VRAMBytes int64 `json:"vramBytes" yaml:"vram_bytes"`

	// GPUExclusive marks services that need a GPU to themselves.
	GPUExclusive bool `json:"gpuExclusive" yaml:"gpu_exclusive"`

	// MeasuredAt records when the estimate was taken.
	MeasuredAt time.Time `json:"measuredAt" yaml:"measured_at"`
}

// FootprintRequest is a queued, operator-triggered footprint run. The
// provisioner processes requests one at a time and only while no
// services are active, so measurements see an unloaded host.
type FootprintRequest struct {
	// ID is the unique request identifier.
	ID string `json:"id"`

	// All requests footprinting of every configured (variety, profile)
	// combination of every definition.
	All bool `json:"all,omitempty"`

	// Targets lists the specific triples to footprint when All is false.
	Targets []FootprintKey `json:"targets,omitempty"`

	// Realm scopes definition lookup for the targets.
	Realm string `json:"realm"`

	RequestedAt time.Time  `json:"requestedAt"`
	InProgress  bool       `json:"inProgress,omitempty"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
}
