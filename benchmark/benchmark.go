package benchmark

import (
	"fmt"
	"image/color"
	"math"
	"math/rand/v2"

	"github.com/nvr-ai/go-vision/arrayops"
	"github.com/nvr-ai/go-vision/pose"
	"github.com/nvr-ai/go-vision/segmentation"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/spatial/r3"
	"gorgonia.org/tensor"
)

// Kind names the post-processing routine a scenario exercises.
type Kind string

const (
	KindThreshold Kind = "threshold"
	KindFuzzy     Kind = "fuzzy"
	KindArgmax    Kind = "argmax"
	KindColorize  Kind = "colorize"
	KindSegment   Kind = "segment"
	KindPose      Kind = "pose"
)

// Kinds lists every supported kind in a stable order.
var Kinds = []Kind{KindThreshold, KindFuzzy, KindArgmax, KindColorize, KindSegment, KindPose}

// Resolution represents model output dimensions for benchmarking.
type Resolution struct {
	Width  int    `json:"width"  yaml:"width"`
	Height int    `json:"height" yaml:"height"`
	Name   string `json:"name"   yaml:"name"`
}

// Pixels returns Width*Height.
func (r Resolution) Pixels() int {
	return r.Width * r.Height
}

// CommonResolutions are typical segmentation model output sizes.
var CommonResolutions = []Resolution{
	{Width: 224, Height: 224, Name: "224x224"},
	{Width: 384, Height: 384, Name: "384x384"},
	{Width: 512, Height: 512, Name: "512x512"},
	{Width: 768, Height: 768, Name: "768x768"},
	{Width: 1024, Height: 1024, Name: "1024x1024"},
}

// Scenario defines a specific test configuration.
type Scenario struct {
	Name       string     `json:"name"        yaml:"name"`
	Kind       Kind       `json:"kind"        yaml:"kind"`
	Resolution Resolution `json:"resolution"  yaml:"resolution"`
	// Classes is the number of score channels for argmax, colorize and segment.
	Classes int `json:"classes"     yaml:"classes"`
	// Keypoints is the number of correspondences for pose.
	Keypoints  int `json:"keypoints"   yaml:"keypoints"`
	Iterations int `json:"iterations"  yaml:"iterations"`
	WarmupRuns int `json:"warmup_runs" yaml:"warmup_runs"`
	// Seed makes the synthetic inputs reproducible.
	Seed uint64 `json:"seed"        yaml:"seed"`
}

// Validate checks that the scenario can be prepared.
func (s Scenario) Validate() error {
	if s.Iterations <= 0 {
		return errors.Errorf("scenario %s: iterations must be positive", s.Name)
	}
	switch s.Kind {
	case KindThreshold, KindFuzzy:
		if s.Resolution.Pixels() <= 0 {
			return errors.Errorf("scenario %s: empty resolution", s.Name)
		}
	case KindArgmax, KindColorize, KindSegment:
		if s.Resolution.Pixels() <= 0 || s.Classes < 1 {
			return errors.Errorf("scenario %s: needs a resolution and at least one class", s.Name)
		}
	case KindPose:
		if s.Keypoints < pose.MinCorrespondences {
			return errors.Errorf("scenario %s: needs at least %d keypoints", s.Name, pose.MinCorrespondences)
		}
	default:
		return errors.Errorf("scenario %s: unknown kind %q", s.Name, s.Kind)
	}
	return nil
}

// workload is one prepared frame. run processes it once and returns the
// number of output items it produced.
type workload func() (int, error)

// prepare builds synthetic model output for a scenario and returns the
// routine that post-processes it.
func prepare(s Scenario, solver *pose.Solver) (workload, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewPCG(s.Seed, 0x9e3779b97f4a7c15))
	n := s.Resolution.Pixels()

	switch s.Kind {
	case KindThreshold:
		matrix, out := randomScores(rng, n), make([]float32, n)
		return func() (int, error) {
			return n, arrayops.Threshold(matrix, out, 0.5)
		}, nil

	case KindFuzzy:
		matrix, out := randomScores(rng, n), make([]float32, n)
		return func() (int, error) {
			return n, arrayops.FuzzyThreshold(matrix, out, 0.7, 0.3)
		}, nil

	case KindArgmax:
		matrix, out := randomScores(rng, s.Classes*n), make([]int32, n)
		return func() (int, error) {
			return n, arrayops.Argmax(matrix, out, s.Classes, n, 0.2)
		}, nil

	case KindColorize:
		classes := make([]int32, n)
		if err := arrayops.Argmax(randomScores(rng, s.Classes*n), classes, s.Classes, n, 0.2); err != nil {
			return nil, err
		}
		table := arrayops.NewColorTable(palette(s.Classes), 180)
		out := make([]byte, n*arrayops.ColorWidth)
		return func() (int, error) {
			return n, arrayops.ClassesToColor(classes, table, out, n)
		}, nil

	case KindSegment:
		scores := tensor.New(
			tensor.WithShape(s.Classes, s.Resolution.Height, s.Resolution.Width),
			tensor.WithBacking(randomScores(rng, s.Classes*n)),
		)
		classes := make([]segmentation.Class, s.Classes)
		for i, c := range palette(s.Classes) {
			classes[i] = segmentation.Class{Index: i, Label: fmt.Sprintf("class_%d", i), Color: c}
		}
		return func() (int, error) {
			res, err := segmentation.NewResult(scores, classes)
			if err != nil {
				return 0, err
			}
			overlay, err := res.ClassColors(0.2, 180)
			return len(overlay) / arrayops.ColorWidth, err
		}, nil

	case KindPose:
		points2D, points3D, in := syntheticCorrespondences(rng, s.Keypoints)
		return func() (int, error) {
			res, err := solver.EstimatePose(points2D, points3D, s.Keypoints, in)
			if err != nil {
				return 0, err
			}
			return res.Iterations, nil
		}, nil
	}
	return nil, errors.Errorf("scenario %s: unknown kind %q", s.Name, s.Kind)
}

func randomScores(rng *rand.Rand, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = rng.Float32()
	}
	return out
}

// palette returns evenly spaced hues, class 0 black.
func palette(n int) []color.RGBA {
	colors := make([]color.RGBA, n)
	for i := 1; i < n; i++ {
		h := float64(i) / float64(n)
		colors[i] = color.RGBA{
			R: uint8(127.5 * (1 + math.Cos(2*math.Pi*h))),
			G: uint8(127.5 * (1 + math.Cos(2*math.Pi*(h-1.0/3)))),
			B: uint8(127.5 * (1 + math.Cos(2*math.Pi*(h-2.0/3)))),
			A: 255,
		}
	}
	return colors
}

// syntheticCorrespondences places n random model points in a unit box, views
// them from a random pose in front of a 1280x720 camera and adds half a pixel
// of detection noise.
func syntheticCorrespondences(rng *rand.Rand, n int) ([]float64, []float64, pose.Intrinsics) {
	in := pose.Intrinsics{FocalLength: 1000, CenterX: 640, CenterY: 360}
	axis := r3.Unit(r3.Vec{X: rng.Float64() - 0.5, Y: rng.Float64() - 0.5, Z: rng.Float64() - 0.5})
	rot := r3.NewRotation(0.6*rng.Float64(), axis)
	t := r3.Vec{X: rng.Float64() - 0.5, Y: rng.Float64() - 0.5, Z: 6 + 4*rng.Float64()}

	points2D := make([]float64, 0, 2*n)
	points3D := make([]float64, 0, 3*n)
	for i := 0; i < n; i++ {
		m := r3.Vec{X: 2*rng.Float64() - 1, Y: 2*rng.Float64() - 1, Z: 2*rng.Float64() - 1}
		u, v := in.Project(r3.Add(rot.Rotate(m), t))
		points2D = append(points2D, u+rng.NormFloat64()*0.5, v+rng.NormFloat64()*0.5)
		points3D = append(points3D, m.X, m.Y, m.Z)
	}
	return points2D, points3D, in
}
