package benchmark

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/nvr-ai/go-vision/pose"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Suite manages and executes benchmark scenarios
type Suite struct {
	scenarios []Scenario
	solver    *pose.Solver
	outputDir string
	log       zerolog.Logger
	mu        sync.RWMutex
	results   []PerformanceMetrics
}

// NewSuite creates a new benchmark suite.
//
// Arguments:
//   - config: Output directory and pose solver settings.
//   - log: Progress logger.
//
// Returns:
//   - *Suite: The benchmark suite.
//   - error: If the solver settings are invalid.
func NewSuite(config *Config, log zerolog.Logger) (*Suite, error) {
	solverConfig := config.Solver
	solverConfig.Logger = log
	solver, err := pose.NewSolver(solverConfig)
	if err != nil {
		return nil, errors.Wrap(err, "benchmark suite")
	}
	return &Suite{
		solver:    solver,
		outputDir: config.OutputDir,
		log:       log,
		scenarios: make([]Scenario, 0),
		results:   make([]PerformanceMetrics, 0),
	}, nil
}

// AddScenario adds a test scenario to the benchmark suite
func (bs *Suite) AddScenario(scenario Scenario) {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	bs.scenarios = append(bs.scenarios, scenario)
}

// Scenarios returns the queued scenarios.
func (bs *Suite) Scenarios() []Scenario {
	bs.mu.RLock()
	defer bs.mu.RUnlock()
	out := make([]Scenario, len(bs.scenarios))
	copy(out, bs.scenarios)
	return out
}

// RunScenario executes a single benchmark scenario. It stops early and returns
// ctx.Err() when ctx is cancelled.
func (bs *Suite) RunScenario(ctx context.Context, scenario Scenario) (*PerformanceMetrics, error) {
	run, err := prepare(scenario, bs.solver)
	if err != nil {
		return nil, err
	}

	metrics := &PerformanceMetrics{
		Scenario:  scenario,
		Timestamp: time.Now(),
	}

	// Warmup errors are counted in the measured runs.
	for i := 0; i < scenario.WarmupRuns; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		_, _ = run()
	}

	var startMem runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&startMem)

	latencies := make([]time.Duration, 0, scenario.Iterations)
	outputs, failures := 0, 0
	startTime := time.Now()

	for i := 0; i < scenario.Iterations; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		frameStart := time.Now()
		count, err := run()
		latencies = append(latencies, time.Since(frameStart))
		if err != nil {
			failures++
			bs.log.Debug().Err(err).Str("scenario", scenario.Name).Int("iteration", i).Msg("frame failed")
			continue
		}
		outputs += count
	}

	totalDuration := time.Since(startTime)

	var endMem runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&endMem)

	metrics.TotalDuration = totalDuration
	metrics.Latency = summarizeLatency(latencies)
	if totalDuration > 0 {
		metrics.FramesPerSecond = float64(scenario.Iterations) / totalDuration.Seconds()
	}
	metrics.OutputCount = outputs
	metrics.ErrorRate = float64(failures) / float64(scenario.Iterations)

	metrics.MemoryStats = MemoryMetrics{
		AllocBytes:      endMem.Alloc,
		TotalAllocBytes: endMem.TotalAlloc - startMem.TotalAlloc,
		SysBytes:        endMem.Sys,
		NumGC:           endMem.NumGC - startMem.NumGC,
		HeapAllocBytes:  endMem.HeapAlloc,
		HeapSysBytes:    endMem.HeapSys,
	}

	metrics.CPUStats = CPUMetrics{
		NumCPU:     runtime.NumCPU(),
		GOMAXPROCS: runtime.GOMAXPROCS(0),
	}

	return metrics, nil
}

// RunAllScenarios executes all configured benchmark scenarios and saves the
// results. A failing scenario is logged and skipped; cancellation stops the run.
func (bs *Suite) RunAllScenarios(ctx context.Context) error {
	for _, scenario := range bs.Scenarios() {
		metrics, err := bs.RunScenario(ctx, scenario)
		if err != nil {
			if ctx.Err() != nil {
				return errors.Wrapf(err, "scenario %s", scenario.Name)
			}
			bs.log.Error().Err(err).Str("scenario", scenario.Name).Msg("scenario failed")
			continue
		}

		bs.mu.Lock()
		bs.results = append(bs.results, *metrics)
		bs.mu.Unlock()

		bs.log.Info().
			Str("scenario", scenario.Name).
			Float64("fps", metrics.FramesPerSecond).
			Dur("p95", metrics.Latency.P95).
			Float64("error_rate", metrics.ErrorRate).
			Msg("scenario completed")
	}

	_, _, err := bs.SaveResults()
	return err
}

// SaveResults writes the results as JSON and a CSV summary into the output
// directory and returns both paths.
func (bs *Suite) SaveResults() (string, string, error) {
	results := bs.GetResults()

	if err := os.MkdirAll(bs.outputDir, 0o755); err != nil {
		return "", "", errors.Wrap(err, "failed to create output directory")
	}

	timestamp := time.Now().Format("2006-01-02_15-04-05")
	resultsFile := filepath.Join(bs.outputDir, fmt.Sprintf("benchmark_results_%s.json", timestamp))

	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return "", "", errors.Wrap(err, "failed to marshal results")
	}
	if err := os.WriteFile(resultsFile, data, 0o644); err != nil {
		return "", "", errors.Wrap(err, "failed to write results file")
	}

	summaryFile := filepath.Join(bs.outputDir, fmt.Sprintf("benchmark_summary_%s.csv", timestamp))
	if err := saveSummaryCSV(summaryFile, results); err != nil {
		return "", "", errors.Wrap(err, "failed to save summary CSV")
	}

	bs.log.Info().Str("results", resultsFile).Str("summary", summaryFile).Msg("results saved")
	return resultsFile, summaryFile, nil
}

var summaryHeader = []string{
	"Scenario", "Kind", "Resolution", "Classes", "Keypoints", "FPS",
	"Mean_us", "P50_us", "P95_us", "P99_us", "Total_Duration_ms", "Alloc_MB", "Outputs", "Error_Rate",
}

func saveSummaryCSV(filename string, results []PerformanceMetrics) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if err := w.Write(summaryHeader); err != nil {
		return err
	}

	us := func(d time.Duration) string {
		return strconv.FormatFloat(float64(d.Nanoseconds())/1e3, 'f', 2, 64)
	}
	for _, result := range results {
		s := result.Scenario
		row := []string{
			s.Name,
			string(s.Kind),
			s.Resolution.Name,
			strconv.Itoa(s.Classes),
			strconv.Itoa(s.Keypoints),
			strconv.FormatFloat(result.FramesPerSecond, 'f', 2, 64),
			us(result.Latency.Mean),
			us(result.Latency.P50),
			us(result.Latency.P95),
			us(result.Latency.P99),
			strconv.FormatFloat(float64(result.TotalDuration.Nanoseconds())/1e6, 'f', 2, 64),
			strconv.FormatFloat(float64(result.MemoryStats.AllocBytes)/(1024*1024), 'f', 2, 64),
			strconv.Itoa(result.OutputCount),
			strconv.FormatFloat(result.ErrorRate, 'f', 4, 64),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// GetResults returns all benchmark results
func (bs *Suite) GetResults() []PerformanceMetrics {
	bs.mu.RLock()
	defer bs.mu.RUnlock()

	results := make([]PerformanceMetrics, len(bs.results))
	copy(results, bs.results)
	return results
}
