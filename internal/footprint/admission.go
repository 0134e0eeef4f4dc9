package footprint

import (
	"fmt"

	"github.com/ozwald-dev/ozwald/models"
)

// Reservation is the running total of resources already committed on a
// host: active instances plus pending starts.
type Reservation struct {
	CPUMillicores int64
	MemoryBytes   int64
	VRAMBytes     int64

	// GPUHeld is true while a gpu-exclusive instance is admitted.
	GPUHeld bool
}

// Add folds an estimate into the reservation.
func (r *Reservation) Add(fp models.Footprint) {
	r.CPUMillicores += fp.CPUMillicores
	r.MemoryBytes += fp.MemoryBytes
	r.VRAMBytes += fp.VRAMBytes
	if fp.GPUExclusive {
		r.GPUHeld = true
	}
}

// Release removes an estimate from the reservation, clamping at zero.
func (r *Reservation) Release(fp models.Footprint) {
	r.CPUMillicores = max(0, r.CPUMillicores-fp.CPUMillicores)
	r.MemoryBytes = max(0, r.MemoryBytes-fp.MemoryBytes)
	r.VRAMBytes = max(0, r.VRAMBytes-fp.VRAMBytes)
	if fp.GPUExclusive {
		r.GPUHeld = false
	}
}

// RejectionError explains why admission was refused. The reason is
// suitable for direct display to the caller.
type RejectionError struct {
	Reason string
}

func (e *RejectionError) Error() string { return e.Reason }

// Admit checks whether an instance with the given footprint fits on the
// host alongside what is already reserved. variety is the requested
// hardware variety ("" means no hardware requirement).
//
// The check is advisory-exclusive: the caller holds the per-host
// critical section, and an admitted reservation is provisional until
// released on failure or supersession.
func Admit(host models.Host, variety string, reserved Reservation, fp models.Footprint) error {
	if variety != "" && models.HardwareVariety(variety) != host.Hardware {
		return &RejectionError{
			Reason: fmt.Sprintf("hardware mismatch: host %s is %s, requested %s", host.Name, host.Hardware, variety),
		}
	}

	if reserved.CPUMillicores+fp.CPUMillicores > host.CPUMillicores {
		return &RejectionError{
			Reason: fmt.Sprintf("cpu exhausted on %s: reserved %dm + requested %dm > capacity %dm",
				host.Name, reserved.CPUMillicores, fp.CPUMillicores, host.CPUMillicores),
		}
	}

	if reserved.MemoryBytes+fp.MemoryBytes > host.MemoryBytes {
		return &RejectionError{
			Reason: fmt.Sprintf("memory exhausted on %s: reserved %d + requested %d > capacity %d",
				host.Name, reserved.MemoryBytes, fp.MemoryBytes, host.MemoryBytes),
		}
	}

	if reserved.VRAMBytes+fp.VRAMBytes > host.VRAMBytes {
		return &RejectionError{
			Reason: fmt.Sprintf("vram exhausted on %s: reserved %d + requested %d > capacity %d",
				host.Name, reserved.VRAMBytes, fp.VRAMBytes, host.VRAMBytes),
		}
	}

	if fp.GPUExclusive {
		if host.Hardware == models.HardwareCPUOnly {
			return &RejectionError{
				Reason: fmt.Sprintf("gpu-exclusive service cannot run on cpu-only host %s", host.Name),
			}
		}
		if reserved.GPUHeld {
			return &RejectionError{
				Reason: fmt.Sprintf("gpu on %s already held exclusively", host.Name),
			}
		}
	}

	return nil
}
