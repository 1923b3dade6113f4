package pose

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func flip(v r3.Vec) r3.Vec {
	return r3.Vec{X: v.X, Y: -v.Y, Z: -v.Z}
}

func TestResultRendererFrame(t *testing.T) {
	rvec := r3.Vec{X: 0.3, Y: -0.2, Z: 0.5}
	tvec := r3.Vec{X: 0.4, Y: -0.6, Z: 5}
	res := newResult(rvec, tvec, 0.25, 7)

	assert.Equal(t, [3]float64{0.4, 0.6, -5}, res.Translation)
	assert.Equal(t, [3]float64{0.3, -0.2, 0.5}, res.RotationVector)
	assert.Equal(t, 0.25, res.ReprojectionError)
	assert.Equal(t, 7, res.Iterations)

	angle := r3.Norm(rvec)
	assert.InDelta(t, angle, res.Rotation[3], 1e-15)
	assert.InDelta(t, rvec.X/angle, res.Rotation[0], 1e-15)
	assert.InDelta(t, -rvec.Y/angle, res.Rotation[1], 1e-15)
	assert.InDelta(t, -rvec.Z/angle, res.Rotation[2], 1e-15)

	// A model point seen by the solver camera must land at the same place once
	// both sides are expressed in renderer coordinates.
	rot := rotationOf(rvec)
	for _, m := range cubeModel() {
		want := flip(r3.Add(rot.Rotate(m), tvec))
		got := res.Apply(flip(m))
		assert.InDelta(t, want.X, got.X, 1e-12)
		assert.InDelta(t, want.Y, got.Y, 1e-12)
		assert.InDelta(t, want.Z, got.Z, 1e-12)
	}
}

func TestResultTransformLayout(t *testing.T) {
	res := newResult(r3.Vec{}, r3.Vec{X: 1, Y: 2, Z: 3}, 0, 0)

	assert.Equal(t, Matrix4{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		1, -2, -3, 1,
	}, res.Transform)
	assert.Equal(t, [4]float64{1, 0, 0, 0}, res.Rotation, "identity keeps a unit axis")

	m := res.Matrix()
	assert.Equal(t, 1.0, m.At(0, 3))
	assert.Equal(t, -2.0, m.At(1, 3))
	assert.Equal(t, -3.0, m.At(2, 3))
	assert.Equal(t, 1.0, m.At(3, 3))
	assert.Equal(t, 0.0, m.At(3, 0))
}

func TestResultRotationAboutX(t *testing.T) {
	// A rotation about x commutes with the flip.
	res := newResult(r3.Vec{X: math.Pi / 2}, r3.Vec{Z: 4}, 0, 0)
	assert.InDelta(t, 1, res.Rotation[0], 1e-15)
	assert.InDelta(t, math.Pi/2, res.Rotation[3], 1e-15)

	m := res.Matrix()
	assert.InDelta(t, 0, m.At(1, 1), 1e-12)
	assert.InDelta(t, -1, m.At(1, 2), 1e-12)
	assert.InDelta(t, 1, m.At(2, 1), 1e-12)
}

func TestEstimatePoseRendererTransform(t *testing.T) {
	rvec := r3.Vec{X: 0.1, Y: 0.2, Z: -0.3}
	tvec := r3.Vec{X: -0.5, Y: 0.25, Z: 6}
	model := cubeModel()
	points2D, points3D := project(t, model, rvec, tvec, testIntrinsics)

	res, err := EstimatePose(points2D, points3D, len(model), testIntrinsics)
	require.NoError(t, err)

	for _, m := range model {
		c := res.Apply(flip(m))
		// Renderer cameras look down -z.
		assert.Less(t, c.Z, 0.0)
		u := testIntrinsics.FocalLength*c.X/-c.Z + testIntrinsics.CenterX
		v := -testIntrinsics.FocalLength*c.Y/-c.Z + testIntrinsics.CenterY
		wu, wv := testIntrinsics.Project(r3.Add(rotationOf(rvec).Rotate(m), tvec))
		assert.InDelta(t, wu, u, 1e-3)
		assert.InDelta(t, wv, v, 1e-3)
	}
}
