package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/nvr-ai/go-vision/benchmark"
	"github.com/nvr-ai/go-vision/internal/logger"
	"github.com/rs/zerolog"
)

func main() {
	var (
		configFile    = flag.String("config", "", "Path to benchmark configuration file (YAML or JSON)")
		scenarioFile  = flag.String("scenarios", "", "Path to scenario set file (YAML or JSON)")
		outputDir     = flag.String("output", "", "Output directory for results (overrides config)")
		quick         = flag.Bool("quick", false, "Run quick benchmark scenarios")
		comprehensive = flag.Bool("comprehensive", false, "Run comprehensive benchmark scenarios")
		resolutions   = flag.String("resolutions", "", "Compare output resolutions for one kind (threshold, fuzzy, argmax, colorize, segment)")
		timeout       = flag.Duration("timeout", 0, "Benchmark timeout duration (overrides config)")
		logLevel      = flag.String("log-level", "", "Log level: debug, info, warn, error (overrides config)")
		jsonLogs      = flag.Bool("json", false, "Write JSON logs instead of console output")
	)
	flag.Parse()

	bootstrap := logger.NewConsole(zerolog.InfoLevel)

	config := benchmark.DefaultConfig()
	if *configFile != "" {
		var err error
		config, err = benchmark.LoadConfig(*configFile)
		if err != nil {
			bootstrap.Fatal().Err(err).Str("path", *configFile).Msg("failed to load config")
		}
	}
	if *outputDir != "" {
		config.OutputDir = *outputDir
	}
	if *logLevel != "" {
		config.LogLevel = *logLevel
	}

	level, err := logger.ParseLevel(config.LogLevel)
	if err != nil {
		bootstrap.Fatal().Err(err).Msg("invalid log level")
	}
	log := logger.NewConsole(level)
	if *jsonLogs {
		log = logger.New(os.Stderr, level)
	}
	log = logger.Component(log, "benchmark")

	suite, err := benchmark.NewSuite(config, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create suite")
	}

	predefined := &benchmark.PredefinedScenarios{
		Classes:   config.Classes,
		Keypoints: config.Keypoints,
	}
	addSet := func(set *benchmark.ScenarioSet) {
		for _, scenario := range set.Scenarios {
			suite.AddScenario(scenario)
		}
		log.Info().Str("set", set.Name).Int("scenarios", len(set.Scenarios)).Msg("added scenarios")
	}

	if *scenarioFile != "" {
		scenarioSet, err := benchmark.LoadScenarioSet(*scenarioFile)
		if err != nil {
			log.Fatal().Err(err).Str("path", *scenarioFile).Msg("failed to load scenario file")
		}
		addSet(scenarioSet)
	} else {
		if *quick {
			addSet(predefined.GetQuickScenarios())
		}
		if *comprehensive {
			addSet(predefined.GetComprehensiveScenarios())
		}
		if *resolutions != "" {
			addSet(predefined.GetResolutionComparisonScenarios(benchmark.Kind(*resolutions)))
		}
		// If no specific scenarios requested, use quick by default
		if !*quick && !*comprehensive && *resolutions == "" {
			addSet(predefined.GetQuickScenarios())
		}
	}

	limit := time.Duration(config.TimeoutSeconds) * time.Second
	if *timeout > 0 {
		limit = *timeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), limit)
	defer cancel()

	log.Info().Dur("timeout", limit).Str("output", config.OutputDir).Msg("starting benchmark execution")
	start := time.Now()

	if err := suite.RunAllScenarios(ctx); err != nil {
		log.Fatal().Err(err).Msg("benchmark execution failed")
	}

	results := suite.GetResults()
	log.Info().Dur("elapsed", time.Since(start)).Int("scenarios", len(results)).Msg("benchmark completed")

	var bestFPS float64
	var bestScenario string
	for _, result := range results {
		if result.FramesPerSecond > bestFPS {
			bestFPS = result.FramesPerSecond
			bestScenario = result.Scenario.Name
		}
		fmt.Printf("  %-32s %10.2f FPS  p95 %-12v %.2f MB\n",
			result.Scenario.Name,
			result.FramesPerSecond,
			result.Latency.P95,
			float64(result.MemoryStats.AllocBytes)/(1024*1024))
	}
	if bestScenario != "" {
		fmt.Printf("\nBest performing scenario: %s (%.2f FPS)\n", bestScenario, bestFPS)
	}
}

func init() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", filepath.Base(os.Args[0]))
		fmt.Fprintf(os.Stderr, "Benchmark tool for segmentation and pose post-processing latency.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(
			os.Stderr,
			"  %s -quick\n",
			filepath.Base(os.Args[0]),
		)
		fmt.Fprintf(
			os.Stderr,
			"  %s -config ./benchmark.yaml -scenarios ./scenarios.yaml\n",
			filepath.Base(os.Args[0]),
		)
		fmt.Fprintf(
			os.Stderr,
			"  %s -resolutions argmax -log-level debug\n",
			filepath.Base(os.Args[0]),
		)
	}
}
