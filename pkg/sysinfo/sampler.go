// Package sysinfo samples host resource usage for the monitor. CPU usage
// is computed from deltas between successive cpu.Times readings; the first
// sample after startup reports the instantaneous gopsutil percentage.
package sysinfo

import (
	"context"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
)

// Sample is one point-in-time view of host resources.
type Sample struct {
	Timestamp      time.Time `json:"timestamp"`
	CPUPercent     float64   `json:"cpu_percent"`
	MemoryPercent  float64   `json:"memory_percent"`
	MemoryUsed     uint64    `json:"memory_used_bytes"`
	MemoryTotal    uint64    `json:"memory_total_bytes"`
	DiskPercent    float64   `json:"disk_percent"`
	DiskUsed       uint64    `json:"disk_used_bytes"`
	DiskTotal      uint64    `json:"disk_total_bytes"`
	Load1          float64   `json:"load_1"`
	Load5          float64   `json:"load_5"`
	Load15         float64   `json:"load_15"`
}

// Sampler reads host resources. It remembers the previous CPU times so
// usage reflects the interval between calls rather than a blocking probe.
type Sampler struct {
	mu       sync.Mutex
	diskPath string
	prevCPU  *cpu.TimesStat
}

// NewSampler creates a sampler reporting disk usage for diskPath
// (typically the database's data directory mount).
func NewSampler(diskPath string) *Sampler {
	if diskPath == "" {
		diskPath = "/"
	}
	return &Sampler{diskPath: diskPath}
}

// Sample collects a host resource snapshot. Individual probe failures zero
// the affected fields rather than failing the whole sample.
func (s *Sampler) Sample(ctx context.Context) Sample {
	out := Sample{Timestamp: time.Now()}

	out.CPUPercent = s.cpuPercent(ctx)

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		out.MemoryPercent = vm.UsedPercent
		out.MemoryUsed = vm.Used
		out.MemoryTotal = vm.Total
	}

	if usage, err := disk.UsageWithContext(ctx, s.diskPath); err == nil {
		out.DiskPercent = usage.UsedPercent
		out.DiskUsed = usage.Used
		out.DiskTotal = usage.Total
	}

	if avg, err := load.AvgWithContext(ctx); err == nil {
		out.Load1 = avg.Load1
		out.Load5 = avg.Load5
		out.Load15 = avg.Load15
	}

	return out
}

// cpuPercent computes busy share from the delta against the previous call.
func (s *Sampler) cpuPercent(ctx context.Context) float64 {
	times, err := cpu.TimesWithContext(ctx, false)
	if err != nil || len(times) == 0 {
		return 0
	}
	cur := times[0]

	s.mu.Lock()
	prev := s.prevCPU
	s.prevCPU = &cur
	s.mu.Unlock()

	if prev == nil {
		// No baseline yet; fall back to a non-blocking instantaneous read.
		if pcts, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(pcts) > 0 {
			return pcts[0]
		}
		return 0
	}

	totalDelta := totalTime(cur) - totalTime(*prev)
	idleDelta := (cur.Idle + cur.Iowait) - (prev.Idle + prev.Iowait)
	if totalDelta <= 0 {
		return 0
	}
	busy := (totalDelta - idleDelta) / totalDelta * 100
	if busy < 0 {
		busy = 0
	} else if busy > 100 {
		busy = 100
	}
	return busy
}

func totalTime(t cpu.TimesStat) float64 {
	return t.User + t.System + t.Idle + t.Nice + t.Iowait + t.Irq +
		t.Softirq + t.Steal + t.Guest + t.GuestNice
}
