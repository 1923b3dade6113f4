package lifting

import (
	"testing"
	"time"

	"github.com/nvr-ai/go-vision/pose"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"
)

// stickModel is a six point rigid body in renderer coordinates.
var stickModel = [][3]float64{
	{-2, 0, 0.1},
	{-2, 0.3, -0.1},
	{2, 0, 0.1},
	{2, 0.3, -0.1},
	{0, 0.5, 0},
	{0, -0.5, 0.3},
}

const (
	testWidth  = 1080
	testHeight = 1920
	testFocal  = 1500.0
)

// detect renders stickModel with a known solver-frame pose into a 2D pose.
func detect(t *testing.T, rvec, tvec r3.Vec) *Pose {
	t.Helper()
	rot := r3.NewRotation(r3.Norm(rvec), rvec)
	in := pose.Intrinsics{FocalLength: testFocal, CenterX: testWidth / 2, CenterY: testHeight / 2}
	p := &Pose{Score: 0.9}
	for i, m := range stickModel {
		c := r3.Add(rot.Rotate(r3.Vec{X: m[0], Y: -m[1], Z: -m[2]}), tvec)
		u, v := in.Project(c)
		p.Keypoints = append(p.Keypoints, Keypoint{Index: i, X: u, Y: v, Score: 0.9})
	}
	return p
}

func vec2(x, y float64) r2.Vec {
	return r2.Vec{X: x, Y: y}
}

func line(scores ...float64) *Pose {
	p := &Pose{}
	for i, s := range scores {
		p.Keypoints = append(p.Keypoints, Keypoint{Index: i, X: float64(i), Y: 0, Score: s})
	}
	return p
}

func TestProcess2DRequiresConfidentKeypoints(t *testing.T) {
	lf := NewLifter(stickModel)
	opts := DefaultOptions()

	_, ok := lf.Process2D(line(0.9, 0.9, 0.5, 0.6, 0.1), opts)
	assert.False(t, ok, "0.6 does not exceed the threshold")

	got, ok := lf.Process2D(line(0.9, 0.9, 0.7, 0.1), opts)
	require.True(t, ok)
	assert.Len(t, got.Keypoints, 4)

	opts.ExcludedKeypointIndices = []int{0}
	_, ok = lf.Process2D(line(0.9, 0.9, 0.7, 0.1), opts)
	assert.False(t, ok, "excluded keypoints do not count")

	_, ok = lf.Process2D(nil, opts)
	assert.False(t, ok)
}

func TestOrientationManagerFlipsReversedPose(t *testing.T) {
	m := NewOrientationManager(90)

	first := &Pose{Keypoints: []Keypoint{
		{Index: 0, X: 0, Y: 0}, {Index: 1, X: 0, Y: 1},
		{Index: 2, X: 10, Y: 0}, {Index: 3, X: 10, Y: 1},
		{Index: 4, X: 5, Y: 5}, {Index: 5, X: 6, Y: 6},
	}}
	assert.Same(t, first, m.Orient(first))
	assert.False(t, m.Flipped())

	// Same body seen with its ends swapped.
	reversed := &Pose{Keypoints: []Keypoint{
		{Index: 0, X: 10, Y: 0}, {Index: 1, X: 10, Y: 1},
		{Index: 2, X: 0, Y: 0}, {Index: 3, X: 0, Y: 1},
		{Index: 4, X: 5, Y: 5}, {Index: 5, X: 6, Y: 6},
	}}
	got := m.Orient(reversed)
	require.NotSame(t, reversed, got)
	assert.True(t, m.Flipped())
	indices := make([]int, len(got.Keypoints))
	for i, k := range got.Keypoints {
		indices[i] = k.Index
	}
	assert.Equal(t, []int{2, 3, 0, 1, 4, 5}, indices)
	assert.Equal(t, 0.0, got.Keypoints[0].X)
	assert.Equal(t, 0, reversed.Keypoints[0].Index, "input must not be modified")

	// The flipped pose is the new reference, so a slight turn is kept.
	turned := &Pose{Keypoints: []Keypoint{
		{Index: 0, X: 0, Y: 0}, {Index: 1, X: 0, Y: 1},
		{Index: 2, X: 10, Y: 2}, {Index: 3, X: 10, Y: 3},
	}}
	assert.Same(t, turned, m.Orient(turned))
	assert.False(t, m.Flipped())
}

func TestOrientationManagerIgnoresReusedPose(t *testing.T) {
	m := NewOrientationManager(90)

	frame := &Pose{Keypoints: []Keypoint{
		{Index: 0, X: 0, Y: 0}, {Index: 1, X: 0, Y: 1},
		{Index: 2, X: 10, Y: 0}, {Index: 3, X: 10, Y: 1},
	}}
	m.Orient(frame)

	// The caller reuses its buffer for the next frame, now reversed.
	frame.Keypoints[0].X, frame.Keypoints[1].X = 10, 10
	frame.Keypoints[2].X, frame.Keypoints[3].X = 0, 0

	got := m.Orient(frame)
	assert.True(t, m.Flipped(), "reference must not follow the reused pose")
	assert.Equal(t, 0.0, got.Keypoints[0].X)
}

func TestOrientationManagerShortPose(t *testing.T) {
	m := NewOrientationManager(45)
	short := line(1, 1, 1)
	assert.Same(t, short, m.Orient(short))

	m.Reset()
	assert.False(t, m.Flipped())
}

func TestAngleDegrees(t *testing.T) {
	assert.InDelta(t, 90, angleDegrees(vec2(1, 0), vec2(0, 1)), 1e-12)
	assert.InDelta(t, 180, angleDegrees(vec2(1, 0), vec2(-2, 0)), 1e-12)
	assert.InDelta(t, 0, angleDegrees(vec2(0, 0), vec2(1, 0)), 1e-12)
}

func TestProcess2DOrientsAcrossFrames(t *testing.T) {
	lf := NewLifter(stickModel)
	threshold := 120.0
	opts := DefaultOptions()
	opts.OrientationFlipAngleThreshold = &threshold

	first := line(0.9, 0.9, 0.9, 0.9, 0.9)
	_, ok := lf.Process2D(first, opts)
	require.True(t, ok)

	second := line(0.9, 0.9, 0.9, 0.9, 0.9)
	for i := range second.Keypoints {
		second.Keypoints[i].X = -second.Keypoints[i].X
	}
	got, ok := lf.Process2D(second, opts)
	require.True(t, ok)
	assert.Equal(t, 2, got.Keypoints[0].Index)

	lf.Reset()
	got, ok = lf.Process2D(second, opts)
	require.True(t, ok)
	assert.Same(t, second, got)
}

func TestSmoother(t *testing.T) {
	s := NewSmoother(SmoothingOptions{Frequency: 30, MinCutoff: 1, Beta: 0, DerivativeCutoff: 1})
	start := time.Unix(0, 0)

	p := &Pose{Keypoints: []Keypoint{{Index: 0, X: 10, Y: 20}}, Timestamp: start}
	got := s.Smooth(p)
	assert.Equal(t, 10.0, got.Keypoints[0].X, "first sample passes through")

	for i := 1; i <= 5; i++ {
		got = s.Smooth(&Pose{Keypoints: []Keypoint{{Index: 0, X: 10, Y: 20}}, Timestamp: start.Add(time.Duration(i) * time.Second / 30)})
	}
	assert.InDelta(t, 10, got.Keypoints[0].X, 1e-9)
	assert.InDelta(t, 20, got.Keypoints[0].Y, 1e-9)

	step := s.Smooth(&Pose{Keypoints: []Keypoint{{Index: 0, X: 20, Y: 20}}, Timestamp: start.Add(6 * time.Second / 30)})
	assert.Greater(t, step.Keypoints[0].X, 10.0)
	assert.Less(t, step.Keypoints[0].X, 20.0)

	s.Reset()
	got = s.Smooth(&Pose{Keypoints: []Keypoint{{Index: 0, X: 20, Y: 20}}})
	assert.Equal(t, 20.0, got.Keypoints[0].X)
}

func TestSavitzkyGolayCoefficients(t *testing.T) {
	got := savitzkyGolayCoefficients(2, 2, 2)
	want := []float64{-3, 12, 17, 12, -3}
	require.Len(t, got, len(want))
	for i := range want {
		assert.InDelta(t, want[i]/35, got[i], 1e-12)
	}

	// Order zero is a moving average.
	for _, c := range savitzkyGolayCoefficients(1, 1, 0) {
		assert.InDelta(t, 1.0/3, c, 1e-12)
	}
}

func TestSmootherSavitzkyGolay(t *testing.T) {
	s := NewSmoother(SavitzkyGolaySmoothing)

	// A quadratic track is reproduced exactly, two frames late.
	for i := 0; i < 10; i++ {
		x := float64(i)
		got := s.Smooth(&Pose{Keypoints: []Keypoint{{Index: 3, X: x * x, Y: 2 * x}}})
		if i < 4 {
			assert.Equal(t, x*x, got.Keypoints[0].X, "window still filling")
			continue
		}
		lag := x - 2
		assert.InDelta(t, lag*lag, got.Keypoints[0].X, 1e-9)
		assert.InDelta(t, 2*lag, got.Keypoints[0].Y, 1e-9)
	}

	// Alternating jitter is damped.
	s.Reset()
	var got *Pose
	for i := 0; i < 5; i++ {
		got = s.Smooth(&Pose{Keypoints: []Keypoint{{Index: 0, X: 10 + float64(1-2*(i%2))}}})
	}
	assert.InDelta(t, 10-13.0/35, got.Keypoints[0].X, 1e-9)
}

func TestNewSmootherSavitzkyGolayFallback(t *testing.T) {
	s := NewSmoother(SmoothingOptions{Filter: FilterSavitzkyGolay, PolynomialOrder: 9})
	for i := 0; i < 5; i++ {
		x := float64(i)
		got := s.Smooth(&Pose{Keypoints: []Keypoint{{Index: 0, X: x * x}}})
		if i == 4 {
			assert.InDelta(t, 4, got.Keypoints[0].X, 1e-9, "falls back to a five frame quadratic")
		}
	}
}

func TestInfer3D(t *testing.T) {
	rvec := r3.Vec{X: 0.2, Y: -0.1, Z: 0.3}
	tvec := r3.Vec{X: 0.3, Y: -0.2, Z: 12}
	lf := NewLifter(stickModel)

	res, err := lf.Infer3D(detect(t, rvec, tvec), testWidth, testHeight, testFocal, DefaultOptions())
	require.NoError(t, err)
	assert.InDelta(t, rvec.X, res.RotationVector[0], 1e-3)
	assert.InDelta(t, rvec.Y, res.RotationVector[1], 1e-3)
	assert.InDelta(t, rvec.Z, res.RotationVector[2], 1e-3)
	assert.InDelta(t, tvec.X, res.TranslationVector[0], 1e-3)
	assert.InDelta(t, tvec.Y, res.TranslationVector[1], 1e-3)
	assert.InDelta(t, tvec.Z, res.TranslationVector[2], 1e-3)

	// Renderer translation has y and z negated.
	assert.InDelta(t, -tvec.Z, res.Translation[2], 1e-3)
}

func TestInfer3DExcludedKeypoints(t *testing.T) {
	rvec := r3.Vec{X: -0.1, Y: 0.25, Z: 0}
	tvec := r3.Vec{X: 0, Y: 0.5, Z: 10}
	opts := DefaultOptions()
	opts.ExcludedKeypointIndices = []int{5}

	p := detect(t, rvec, tvec)
	p.Keypoints[5].X += 300 // an outlier the caller chose to exclude

	solver, err := pose.NewSolver(pose.DefaultSolverConfig())
	require.NoError(t, err)
	lf := NewLifter(stickModel, WithSolver(solver))

	res, err := lf.Infer3D(p, testWidth, testHeight, testFocal, opts)
	require.NoError(t, err)
	assert.InDelta(t, tvec.Z, res.TranslationVector[2], 1e-3)
	assert.Less(t, res.ReprojectionError, 1e-3)
}

func TestInfer3DErrors(t *testing.T) {
	lf := NewLifter(stickModel)

	p := detect(t, r3.Vec{X: 0.1}, r3.Vec{Z: 10})
	p.Keypoints = p.Keypoints[:5]
	_, err := lf.Infer3D(p, testWidth, testHeight, testFocal, DefaultOptions())
	assert.ErrorIs(t, err, pose.ErrBufferSizeMismatch)

	opts := DefaultOptions()
	opts.ExcludedKeypointIndices = []int{0, 1, 2}
	_, err = lf.Infer3D(detect(t, r3.Vec{X: 0.1}, r3.Vec{Z: 10}), testWidth, testHeight, testFocal, opts)
	assert.ErrorIs(t, err, pose.ErrDegenerateCorrespondences)

	_, err = lf.Infer3D(nil, testWidth, testHeight, testFocal, DefaultOptions())
	assert.ErrorIs(t, err, pose.ErrDegenerateCorrespondences)
}
