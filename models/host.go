package models

// HardwareVariety identifies the class of accelerator hardware a host
// offers, and which variety of a service definition may run on it.
type HardwareVariety string

const (
	// HardwareNvidia marks hosts with NVIDIA GPUs.
	HardwareNvidia HardwareVariety = "nvidia"

	// HardwareAMDGPU marks hosts with AMD GPUs.
	HardwareAMDGPU HardwareVariety = "amdgpu"

	// HardwareCPUOnly marks hosts without usable GPUs.
	HardwareCPUOnly HardwareVariety = "cpu-only"
)

// Host represents a machine that can run provisioned services.
//
// A Host is loaded from the catalog file and is immutable afterwards;
// capacity changes require a configuration reload. The provisioner keeps
// its own running tally of reserved resources against these totals.
type Host struct {
	// Name is the unique host identifier within the catalog.
	Name string `json:"name" yaml:"name" validate:"required"`

	// Address is the network address the host is reachable at.
	Address string `json:"address" yaml:"address" validate:"required"`

	// Hardware is the hardware variety tag (nvidia, amdgpu, cpu-only).
	Hardware HardwareVariety `json:"hardware" yaml:"hardware" validate:"required,oneof=nvidia amdgpu cpu-only"`

	// CPUMillicores is the total CPU capacity in millicores.
	CPUMillicores int64 `json:"cpuMillicores" yaml:"cpu_millicores" validate:"gt=0"`

	// MemoryBytes is the total RAM capacity in bytes.
	MemoryBytes int64 `json:"memoryBytes" yaml:"memory_bytes" validate:"gt=0"`

	// VRAMBytes is the total GPU memory in bytes (zero on cpu-only hosts).
	VRAMBytes int64 `json:"vramBytes" yaml:"vram_bytes" validate:"gte=0"`
}
