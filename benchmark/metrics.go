// Package benchmark - Functionality for running benchmarks.
package benchmark

import (
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
)

// PerformanceMetrics captures detailed performance data
type PerformanceMetrics struct {
	Scenario        Scenario       `json:"scenario"          yaml:"scenario"`
	Timestamp       time.Time      `json:"timestamp"         yaml:"timestamp"`
	TotalDuration   time.Duration  `json:"total_duration"    yaml:"total_duration"`
	Latency         LatencyMetrics `json:"latency"           yaml:"latency"`
	FramesPerSecond float64        `json:"frames_per_second" yaml:"frames_per_second"`
	MemoryStats     MemoryMetrics  `json:"memory_stats"      yaml:"memory_stats"`
	CPUStats        CPUMetrics     `json:"cpu_stats"         yaml:"cpu_stats"`
	// OutputCount sums what the workload produced: pixels for array
	// scenarios, solver iterations for pose.
	OutputCount int     `json:"output_count"      yaml:"output_count"`
	ErrorRate   float64 `json:"error_rate"        yaml:"error_rate"`
}

// LatencyMetrics summarises per-frame latency.
type LatencyMetrics struct {
	Mean time.Duration `json:"mean" yaml:"mean"`
	P50  time.Duration `json:"p50"  yaml:"p50"`
	P95  time.Duration `json:"p95"  yaml:"p95"`
	P99  time.Duration `json:"p99"  yaml:"p99"`
	Max  time.Duration `json:"max"  yaml:"max"`
}

// MemoryMetrics captures memory usage statistics
type MemoryMetrics struct {
	AllocBytes      uint64 `json:"alloc_bytes"       yaml:"alloc_bytes"`
	TotalAllocBytes uint64 `json:"total_alloc_bytes" yaml:"total_alloc_bytes"`
	SysBytes        uint64 `json:"sys_bytes"         yaml:"sys_bytes"`
	NumGC           uint32 `json:"num_gc"            yaml:"num_gc"`
	HeapAllocBytes  uint64 `json:"heap_alloc_bytes"  yaml:"heap_alloc_bytes"`
	HeapSysBytes    uint64 `json:"heap_sys_bytes"    yaml:"heap_sys_bytes"`
}

// CPUMetrics captures CPU usage statistics
type CPUMetrics struct {
	NumCPU     int `json:"num_cpu"    yaml:"num_cpu"`
	GOMAXPROCS int `json:"gomaxprocs" yaml:"gomaxprocs"`
}

// summarizeLatency computes latency statistics. samples is sorted in place.
func summarizeLatency(samples []time.Duration) LatencyMetrics {
	if len(samples) == 0 {
		return LatencyMetrics{}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	x := make([]float64, len(samples))
	for i, d := range samples {
		x[i] = float64(d)
	}
	q := func(p float64) time.Duration {
		return time.Duration(stat.Quantile(p, stat.Empirical, x, nil))
	}
	return LatencyMetrics{
		Mean: time.Duration(stat.Mean(x, nil)),
		P50:  q(0.5),
		P95:  q(0.95),
		P99:  q(0.99),
		Max:  samples[len(samples)-1],
	}
}
