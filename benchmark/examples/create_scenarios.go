package main

import (
	"os"

	"github.com/nvr-ai/go-vision/benchmark"
	"github.com/nvr-ai/go-vision/internal/logger"
	"github.com/rs/zerolog"
)

// Example program to create and save benchmark scenarios and a config
func main() {
	log := logger.NewConsole(zerolog.InfoLevel)
	predefined := &benchmark.PredefinedScenarios{Classes: 21, Keypoints: 14}

	sets := map[string]*benchmark.ScenarioSet{
		"comprehensive_scenarios.yaml": predefined.GetComprehensiveScenarios(),
		"quick_scenarios.yaml":         predefined.GetQuickScenarios(),
		"argmax_resolutions.yaml":      predefined.GetResolutionComparisonScenarios(benchmark.KindArgmax),
	}

	// Create custom scenario using builder
	sets["custom_scenarios.yaml"] = &benchmark.ScenarioSet{
		Name:        "Dense Pose Test",
		Description: "Pose solve with many correspondences and a large class map",
		Scenarios: []benchmark.Scenario{
			benchmark.NewScenarioBuilder("pose_64_keypoints").
				WithKind(benchmark.KindPose).
				WithKeypoints(64).
				WithIterations(200).
				WithWarmupRuns(20).
				Build(),
			benchmark.NewScenarioBuilder("colorize_150_classes").
				WithKind(benchmark.KindColorize).
				WithResolution(1024, 1024).
				WithClasses(150).
				WithIterations(50).
				WithWarmupRuns(5).
				Build(),
		},
	}

	for filename, set := range sets {
		if err := benchmark.SaveScenarioSet(set, filename); err != nil {
			log.Fatal().Err(err).Str("file", filename).Msg("failed to save scenarios")
		}
		log.Info().Str("file", filename).Int("scenarios", len(set.Scenarios)).Msg("saved scenarios")
	}

	if err := benchmark.DefaultConfig().SaveConfig("benchmark.yaml"); err != nil {
		log.Error().Err(err).Msg("failed to save config")
		os.Exit(1)
	}
	log.Info().Str("file", "benchmark.yaml").Msg("saved default config")
}
