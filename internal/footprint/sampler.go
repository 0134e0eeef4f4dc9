package footprint

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// cpuStat holds CPU statistics from /proc/stat
type cpuStat struct {
	user    uint64
	nice    uint64
	system  uint64
	idle    uint64
	iowait  uint64
	irq     uint64
	softirq uint64
	steal   uint64
}

// ProcSampler reads host usage from /proc and, when available, from
// nvidia-smi. It is Linux-only; on other platforms all readings are
// zero.
type ProcSampler struct {
	cores int64
}

// NewProcSampler returns a sampler sized to the current machine.
func NewProcSampler() *ProcSampler {
	return &ProcSampler{cores: int64(runtime.NumCPU())}
}

// Sample collects a usage snapshot. CPU usage is measured over a short
// window and expressed in millicores.
func (s *ProcSampler) Sample(ctx context.Context) (Usage, error) {
	if runtime.GOOS != "linux" {
		return Usage{}, nil
	}

	cpuFraction, err := sampleCPU(ctx)
	if err != nil {
		return Usage{}, err
	}

	memUsed, err := sampleMemory()
	if err != nil {
		return Usage{}, fmt.Errorf("failed to get memory usage: %w", err)
	}

	// VRAM is best effort: hosts without an NVIDIA GPU report zero.
	vramUsed, _ := sampleVRAM(ctx)

	return Usage{
		CPUMillicores: int64(cpuFraction * float64(s.cores) * 1000),
		MemoryBytes:   memUsed,
		VRAMBytes:     vramUsed,
	}, nil
}

// sampleCPU measures the busy fraction of all CPUs over a short window.
// Returns a value between 0 and 1.
func sampleCPU(ctx context.Context) (float64, error) {
	stat1, err := readCPUStat()
	if err != nil {
		return 0, err
	}

	select {
	case <-time.After(100 * time.Millisecond):
	case <-ctx.Done():
		return 0, ctx.Err()
	}

	stat2, err := readCPUStat()
	if err != nil {
		return 0, err
	}

	idle := float64(stat2.idle - stat1.idle)
	total := float64((stat2.user + stat2.nice + stat2.system + stat2.idle + stat2.iowait + stat2.irq + stat2.softirq + stat2.steal) -
		(stat1.user + stat1.nice + stat1.system + stat1.idle + stat1.iowait + stat1.irq + stat1.softirq + stat1.steal))

	if total == 0 {
		return 0, nil
	}
	return (total - idle) / total, nil
}

// readCPUStat reads CPU statistics from /proc/stat
func readCPUStat() (*cpuStat, error) {
	file, err := os.Open("/proc/stat")
	if err != nil {
		return nil, err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	if !scanner.Scan() {
		return nil, fmt.Errorf("failed to read /proc/stat")
	}

	line := scanner.Text()
	fields := strings.Fields(line)
	if len(fields) < 8 || fields[0] != "cpu" {
		return nil, fmt.Errorf("invalid /proc/stat format")
	}

	stat := &cpuStat{}
	values := make([]uint64, 8)
	for i := 0; i < 8; i++ {
		values[i], err = strconv.ParseUint(fields[i+1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse CPU stat: %w", err)
		}
	}

	stat.user = values[0]
	stat.nice = values[1]
	stat.system = values[2]
	stat.idle = values[3]
	stat.iowait = values[4]
	stat.irq = values[5]
	stat.softirq = values[6]
	stat.steal = values[7]

	return stat, nil
}

// sampleMemory reads used memory in bytes from /proc/meminfo.
func sampleMemory() (int64, error) {
	file, err := os.Open("/proc/meminfo")
	if err != nil {
		return 0, err
	}
	defer file.Close()

	var memTotal, memFree, buffers, cached int64

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}

		key := strings.TrimSuffix(fields[0], ":")
		value, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			continue
		}

		// Values in /proc/meminfo are in kB, convert to bytes
		value *= 1024

		switch key {
		case "MemTotal":
			memTotal = value
		case "MemFree":
			memFree = value
		case "Buffers":
			buffers = value
		case "Cached":
			cached = value
		}
	}

	if err := scanner.Err(); err != nil {
		return 0, err
	}

	// Used memory = Total - Free - Buffers - Cached
	return memTotal - memFree - buffers - cached, nil
}

// sampleVRAM reads used GPU memory in bytes via nvidia-smi.
func sampleVRAM(ctx context.Context) (int64, error) {
	out, err := exec.CommandContext(ctx, "nvidia-smi",
		"--query-gpu=memory.used", "--format=csv,noheader,nounits").Output()
	if err != nil {
		return 0, err
	}

	var total int64
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		mib, err := strconv.ParseInt(strings.TrimSpace(line), 10, 64)
		if err != nil {
			continue
		}
		total += mib * 1024 * 1024
	}
	return total, nil
}
