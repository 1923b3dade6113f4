package pose

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestRotationVectorRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		rvec r3.Vec
	}{
		{"identity", r3.Vec{}},
		{"small", r3.Vec{X: 1e-9, Y: -2e-9, Z: 0}},
		{"about x", r3.Vec{X: 0.7}},
		{"general", r3.Vec{X: 0.2, Y: -0.3, Z: 0.1}},
		{"large", r3.Vec{X: -1.2, Y: 1.5, Z: 0.9}},
		{"near pi", r3.Scale(math.Pi-1e-8, r3.Unit(r3.Vec{X: 1, Y: 2, Z: -2}))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := rotationVector(rotationMatrix(tt.rvec))
			assert.InDelta(t, tt.rvec.X, got.X, 1e-6)
			assert.InDelta(t, tt.rvec.Y, got.Y, 1e-6)
			assert.InDelta(t, tt.rvec.Z, got.Z, 1e-6)
		})
	}
}

func TestRotationMatrixIsOrthonormal(t *testing.T) {
	m := rotationMatrix(r3.Vec{X: 0.4, Y: -1.1, Z: 2.0})

	var prod mat.Dense
	prod.Mul(m, m.T())
	assert.True(t, mat.EqualApprox(&prod, eye3(), 1e-12))
	assert.InDelta(t, 1, mat.Det(m), 1e-12)
}

func TestNearestRotationFixesReflection(t *testing.T) {
	reflection := mat.NewDense(3, 3, []float64{
		1, 0, 0,
		0, 1, 0,
		0, 0, -1,
	})
	r, ok := nearestRotation(reflection)
	assert.True(t, ok)
	assert.InDelta(t, 1, mat.Det(r), 1e-12)

	noisy := rotationMatrix(r3.Vec{Y: 0.5})
	noisy.Set(0, 1, noisy.At(0, 1)+0.01)
	r, ok = nearestRotation(noisy)
	assert.True(t, ok)
	assert.True(t, mat.EqualApprox(r, rotationMatrix(r3.Vec{Y: 0.5}), 0.02))
}

func eye3() *mat.Dense {
	return mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})
}
