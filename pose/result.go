package pose

import (
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Matrix4 is a 4x4 homogeneous transform stored column-major: element (row r,
// column c) is at index c*4+r and the translation occupies indices 12..14.
type Matrix4 [16]float64

// At returns the element at row r, column c.
func (m Matrix4) At(r, c int) float64 {
	return m[c*4+r]
}

// Result is one solved pose. It is built once per solve and never mutated.
//
// RotationVector and TranslationVector are in the solver camera frame (x right,
// y down, z forward). Transform, Rotation and Translation express the same pose
// in the renderer frame (x right, y up, z toward the viewer), which differs by a
// half turn about x.
type Result struct {
	// Transform places the model in renderer camera coordinates.
	Transform Matrix4
	// Rotation is the renderer-frame rotation as axis x, y, z and angle in
	// radians. The identity is reported about the x axis.
	Rotation [4]float64
	// Translation is the renderer-frame translation.
	Translation [3]float64

	// RotationVector is the solver-frame rotation vector (axis times angle).
	RotationVector [3]float64
	// TranslationVector is the solver-frame translation.
	TranslationVector [3]float64

	// ReprojectionError is the RMS reprojection error in pixels.
	ReprojectionError float64
	// Iterations is the number of refinement iterations run.
	Iterations int
}

// rendererFlip is diag(1, -1, -1).
var rendererFlip = [3]float64{1, -1, -1}

func newResult(rvec, tvec r3.Vec, rms float64, iterations int) *Result {
	res := &Result{
		RotationVector:    [3]float64{rvec.X, rvec.Y, rvec.Z},
		TranslationVector: [3]float64{tvec.X, tvec.Y, tvec.Z},
		ReprojectionError: rms,
		Iterations:        iterations,
	}

	// Conjugating by the flip negates the y and z components of both the
	// rotation axis and the translation.
	res.Rotation = [4]float64{1, 0, 0, 0}
	if angle := r3.Norm(rvec); angle > 0 {
		axis := r3.Scale(1/angle, rvec)
		res.Rotation = [4]float64{axis.X, -axis.Y, -axis.Z, angle}
	}
	for i, t := range res.TranslationVector {
		res.Translation[i] = rendererFlip[i] * t
	}

	rot := rotationMatrix(rvec)
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			res.Transform[c*4+r] = rendererFlip[r] * rot.At(r, c) * rendererFlip[c]
		}
		res.Transform[12+r] = res.Translation[r]
	}
	res.Transform[15] = 1
	return res
}

// Matrix returns Transform as a row-major 4x4 matrix.
func (r *Result) Matrix() *mat.Dense {
	m := mat.NewDense(4, 4, nil)
	for row := 0; row < 4; row++ {
		for col := 0; col < 4; col++ {
			m.Set(row, col, r.Transform.At(row, col))
		}
	}
	return m
}

// Apply maps a point from renderer model coordinates into renderer camera
// coordinates.
func (r *Result) Apply(p r3.Vec) r3.Vec {
	t := r.Transform
	return r3.Vec{
		X: t.At(0, 0)*p.X + t.At(0, 1)*p.Y + t.At(0, 2)*p.Z + t.At(0, 3),
		Y: t.At(1, 0)*p.X + t.At(1, 1)*p.Y + t.At(1, 2)*p.Z + t.At(1, 3),
		Z: t.At(2, 0)*p.X + t.At(2, 1)*p.Y + t.At(2, 2)*p.Z + t.At(2, 3),
	}
}
