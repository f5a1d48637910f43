package services

import (
	"runtime"
	"sync"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
)

// OverloadThreshold is the utilization above which the host counts as
// overloaded, for both CPU and memory.
const OverloadThreshold = 0.85

// LoadMonitor samples host resource pressure. Implementations must be safe
// for concurrent use; worker loops poll it from multiple goroutines.
type LoadMonitor interface {
	// CPUUtilization returns CPU busy fraction in [0,1].
	CPUUtilization() float64
	// MemUtilization returns used-memory fraction in [0,1], sampled fresh.
	MemUtilization() float64
	// IsOverloaded reports whether either utilization exceeds the threshold.
	IsOverloaded() bool
	// Threshold returns the overload threshold in use.
	Threshold() float64
	// TotalMemoryBytes returns the host's total physical memory.
	TotalMemoryBytes() uint64
}

// systemMonitor reads real host stats via gopsutil. The only state it keeps
// is the previous CPU time snapshot used to compute utilization deltas.
type systemMonitor struct {
	threshold float64

	mu       sync.Mutex
	lastBusy float64
	lastTotal float64
	hasSample bool
}

// NewSystemMonitor creates a LoadMonitor backed by OS counters.
func NewSystemMonitor() LoadMonitor {
	return &systemMonitor{threshold: OverloadThreshold}
}

// CPUUtilization computes the busy fraction from the delta between this call
// and the previous one. The first call has no prior snapshot and falls back
// to a one-shot load-average estimate divided by core count.
func (m *systemMonitor) CPUUtilization() float64 {
	times, err := cpu.Times(false)
	if err != nil || len(times) == 0 {
		return m.loadAverageEstimate()
	}

	t := times[0]
	total := t.User + t.System + t.Idle + t.Nice + t.Iowait + t.Irq +
		t.Softirq + t.Steal + t.Guest + t.GuestNice
	busy := total - t.Idle - t.Iowait

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.hasSample {
		m.lastBusy, m.lastTotal, m.hasSample = busy, total, true
		return m.loadAverageEstimate()
	}

	deltaBusy := busy - m.lastBusy
	deltaTotal := total - m.lastTotal
	m.lastBusy, m.lastTotal = busy, total

	if deltaTotal <= 0 {
		return 0
	}
	return clampUnit(deltaBusy / deltaTotal)
}

// MemUtilization samples memory pressure fresh on every call, no smoothing.
func (m *systemMonitor) MemUtilization() float64 {
	vm, err := mem.VirtualMemory()
	if err != nil || vm.Total == 0 {
		return 0
	}
	return clampUnit(float64(vm.Total-vm.Free) / float64(vm.Total))
}

// IsOverloaded reports whether either CPU or memory exceeds the threshold.
func (m *systemMonitor) IsOverloaded() bool {
	return m.CPUUtilization() > m.threshold || m.MemUtilization() > m.threshold
}

// Threshold returns the configured overload threshold.
func (m *systemMonitor) Threshold() float64 {
	return m.threshold
}

// TotalMemoryBytes returns total physical memory, or 0 if unavailable.
func (m *systemMonitor) TotalMemoryBytes() uint64 {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0
	}
	return vm.Total
}

func (m *systemMonitor) loadAverageEstimate() float64 {
	avg, err := load.Avg()
	if err != nil {
		return 0
	}
	cores := runtime.NumCPU()
	if cores == 0 {
		return 0
	}
	return clampUnit(avg.Load1 / float64(cores))
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
