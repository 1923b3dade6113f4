package benchmark

import (
	"fmt"
	"os"

	"github.com/nvr-ai/go-vision/pose"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// ScenarioBuilder helps build test scenarios with fluent API
type ScenarioBuilder struct {
	scenario Scenario
}

// NewScenarioBuilder creates a new scenario builder
func NewScenarioBuilder(name string) *ScenarioBuilder {
	return &ScenarioBuilder{
		scenario: Scenario{
			Name:       name,
			Kind:       KindThreshold,
			Classes:    2,
			Keypoints:  14,
			Iterations: 100,
			WarmupRuns: 10,
			Seed:       1,
		},
	}
}

// WithKind sets the routine under test
func (sb *ScenarioBuilder) WithKind(kind Kind) *ScenarioBuilder {
	sb.scenario.Kind = kind
	return sb
}

// WithResolution sets the model output resolution
func (sb *ScenarioBuilder) WithResolution(width, height int) *ScenarioBuilder {
	sb.scenario.Resolution = Resolution{
		Width:  width,
		Height: height,
		Name:   fmt.Sprintf("%dx%d", width, height),
	}
	return sb
}

// WithClasses sets the number of score channels
func (sb *ScenarioBuilder) WithClasses(classes int) *ScenarioBuilder {
	sb.scenario.Classes = classes
	return sb
}

// WithKeypoints sets the number of pose correspondences
func (sb *ScenarioBuilder) WithKeypoints(keypoints int) *ScenarioBuilder {
	sb.scenario.Keypoints = keypoints
	return sb
}

// WithIterations sets the number of test iterations
func (sb *ScenarioBuilder) WithIterations(iterations int) *ScenarioBuilder {
	sb.scenario.Iterations = iterations
	return sb
}

// WithWarmupRuns sets the number of warmup runs
func (sb *ScenarioBuilder) WithWarmupRuns(warmups int) *ScenarioBuilder {
	sb.scenario.WarmupRuns = warmups
	return sb
}

// WithSeed sets the seed of the synthetic inputs
func (sb *ScenarioBuilder) WithSeed(seed uint64) *ScenarioBuilder {
	sb.scenario.Seed = seed
	return sb
}

// Build returns the configured test scenario
func (sb *ScenarioBuilder) Build() Scenario {
	return sb.scenario
}

// ScenarioSet represents a collection of related test scenarios
type ScenarioSet struct {
	Name        string     `json:"name"        yaml:"name"`
	Description string     `json:"description" yaml:"description"`
	Scenarios   []Scenario `json:"scenarios"   yaml:"scenarios"`
}

// PredefinedScenarios contains common benchmark scenario sets
type PredefinedScenarios struct {
	// Classes is the channel count used for multi-class kinds.
	Classes int
	// Keypoints is the correspondence count used for pose.
	Keypoints int
}

func (ps *PredefinedScenarios) scenario(name string, kind Kind, res Resolution, iterations, warmups int) Scenario {
	b := NewScenarioBuilder(name).
		WithKind(kind).
		WithIterations(iterations).
		WithWarmupRuns(warmups)
	if kind != KindPose {
		b.WithResolution(res.Width, res.Height)
	}
	if ps.Classes > 0 {
		b.WithClasses(ps.Classes)
	}
	if ps.Keypoints > 0 {
		b.WithKeypoints(ps.Keypoints)
	}
	return b.Build()
}

// GetComprehensiveScenarios returns every kind at every common resolution
func (ps *PredefinedScenarios) GetComprehensiveScenarios() *ScenarioSet {
	scenarios := make([]Scenario, 0)

	for _, kind := range Kinds {
		if kind == KindPose {
			scenarios = append(scenarios, ps.scenario("pose", kind, Resolution{}, 100, 10))
			continue
		}
		for _, resolution := range CommonResolutions {
			scenarios = append(scenarios, ps.scenario(fmt.Sprintf("%s_%s", kind, resolution.Name), kind, resolution, 100, 10))
		}
	}

	return &ScenarioSet{
		Name:        "Comprehensive Performance Test",
		Description: "Tests all post-processing routines at all common resolutions",
		Scenarios:   scenarios,
	}
}

// GetQuickScenarios returns a smaller set for quick testing
func (ps *PredefinedScenarios) GetQuickScenarios() *ScenarioSet {
	scenarios := make([]Scenario, 0)
	resolution := Resolution{Width: 384, Height: 384, Name: "384x384"}

	for _, kind := range Kinds {
		name := fmt.Sprintf("quick_%s_%s", kind, resolution.Name)
		if kind == KindPose {
			name = "quick_pose"
		}
		scenarios = append(scenarios, ps.scenario(name, kind, resolution, 20, 2))
	}

	return &ScenarioSet{
		Name:        "Quick Performance Test",
		Description: "Quick test of every routine at one resolution",
		Scenarios:   scenarios,
	}
}

// GetResolutionComparisonScenarios tests one kind at every common resolution.
// Pose solving does not depend on resolution, so KindPose yields a single
// scenario.
func (ps *PredefinedScenarios) GetResolutionComparisonScenarios(kind Kind) *ScenarioSet {
	scenarios := make([]Scenario, 0)

	if kind == KindPose {
		return &ScenarioSet{
			Name:        fmt.Sprintf("Resolution Comparison - %s", kind),
			Description: "Pose solving is independent of output resolution",
			Scenarios:   append(scenarios, ps.scenario("resolution_pose", kind, Resolution{}, 100, 10)),
		}
	}

	for _, resolution := range CommonResolutions {
		scenarios = append(scenarios, ps.scenario(fmt.Sprintf("resolution_%s_%s", kind, resolution.Name), kind, resolution, 100, 10))
	}

	return &ScenarioSet{
		Name:        fmt.Sprintf("Resolution Comparison - %s", kind),
		Description: fmt.Sprintf("Compares model output resolutions for %s", kind),
		Scenarios:   scenarios,
	}
}

// SaveScenarioSet saves a scenario set to a YAML file
func SaveScenarioSet(scenarioSet *ScenarioSet, filename string) error {
	data, err := yaml.Marshal(scenarioSet)
	if err != nil {
		return errors.Wrap(err, "failed to marshal scenario set")
	}

	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return errors.Wrap(err, "failed to write scenario file")
	}

	return nil
}

// LoadScenarioSet loads a scenario set from a YAML or JSON file and validates
// every scenario.
func LoadScenarioSet(filename string) (*ScenarioSet, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read scenario file")
	}

	var scenarioSet ScenarioSet
	if err := yaml.Unmarshal(data, &scenarioSet); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal scenario set")
	}
	for _, s := range scenarioSet.Scenarios {
		if err := s.Validate(); err != nil {
			return nil, err
		}
	}

	return &scenarioSet, nil
}

// Config represents the overall benchmark configuration
type Config struct {
	OutputDir      string            `json:"output_dir"      yaml:"output_dir"`
	TimeoutSeconds int               `json:"timeout_seconds" yaml:"timeout_seconds"`
	Classes        int               `json:"classes"         yaml:"classes"`
	Keypoints      int               `json:"keypoints"       yaml:"keypoints"`
	LogLevel       string            `json:"log_level"       yaml:"log_level"`
	Solver         pose.SolverConfig `json:"solver"          yaml:"solver"`
}

// DefaultConfig returns a default benchmark configuration
func DefaultConfig() *Config {
	return &Config{
		OutputDir:      "./benchmark_results",
		TimeoutSeconds: 1800,
		Classes:        21,
		Keypoints:      14,
		LogLevel:       "info",
		Solver:         pose.DefaultSolverConfig(),
	}
}

// SaveConfig saves the benchmark configuration to a YAML file
func (bc *Config) SaveConfig(filename string) error {
	data, err := yaml.Marshal(bc)
	if err != nil {
		return errors.Wrap(err, "failed to marshal config")
	}

	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return errors.Wrap(err, "failed to write config file")
	}

	return nil
}

// LoadConfig loads a benchmark configuration from a YAML or JSON file. Fields
// absent from the file keep their DefaultConfig values.
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}

	return config, nil
}
