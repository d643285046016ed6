package sysinfo

import (
	"context"
	"testing"
	"time"
)

func TestSampleReturnsPlausibleValues(t *testing.T) {
	s := NewSampler("/")
	sample := s.Sample(context.Background())

	if sample.Timestamp.IsZero() {
		t.Error("Expected timestamp to be set")
	}
	if sample.CPUPercent < 0 || sample.CPUPercent > 100 {
		t.Errorf("CPU percent out of range: %v", sample.CPUPercent)
	}
	if sample.MemoryPercent < 0 || sample.MemoryPercent > 100 {
		t.Errorf("Memory percent out of range: %v", sample.MemoryPercent)
	}
	if sample.DiskPercent < 0 || sample.DiskPercent > 100 {
		t.Errorf("Disk percent out of range: %v", sample.DiskPercent)
	}
	if sample.MemoryTotal == 0 {
		t.Error("Expected non-zero total memory")
	}
}

func TestDeltaBasedCPUSampling(t *testing.T) {
	s := NewSampler("/")

	// First call establishes the baseline, second uses the delta.
	_ = s.Sample(context.Background())
	time.Sleep(50 * time.Millisecond)
	second := s.Sample(context.Background())

	if second.CPUPercent < 0 || second.CPUPercent > 100 {
		t.Errorf("Delta CPU percent out of range: %v", second.CPUPercent)
	}
}

func TestDefaultDiskPath(t *testing.T) {
	s := NewSampler("")
	if s.diskPath != "/" {
		t.Errorf("Expected default disk path /, got %q", s.diskPath)
	}
}
