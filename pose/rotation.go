package pose

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// rotationOf returns the rotation described by a rotation vector: the axis is
// the vector direction and the angle its norm in radians.
func rotationOf(rvec r3.Vec) r3.Rotation {
	theta := r3.Norm(rvec)
	if theta == 0 {
		return r3.Rotation{Real: 1}
	}
	return r3.NewRotation(theta, rvec)
}

// rotationMatrix returns the 3x3 matrix of a rotation vector.
func rotationMatrix(rvec r3.Vec) *mat.Dense {
	return matrixOf(rotationOf(rvec))
}

func matrixOf(rot r3.Rotation) *mat.Dense {
	m := mat.NewDense(3, 3, nil)
	for c, axis := range []r3.Vec{{X: 1}, {Y: 1}, {Z: 1}} {
		col := rot.Rotate(axis)
		m.Set(0, c, col.X)
		m.Set(1, c, col.Y)
		m.Set(2, c, col.Z)
	}
	return m
}

// rotationVector is the inverse of rotationMatrix for a proper rotation.
func rotationVector(m mat.Matrix) r3.Vec {
	trace := m.At(0, 0) + m.At(1, 1) + m.At(2, 2)
	cos := math.Max(-1, math.Min(1, (trace-1)/2))
	theta := math.Acos(cos)

	skew := r3.Vec{
		X: m.At(2, 1) - m.At(1, 2),
		Y: m.At(0, 2) - m.At(2, 0),
		Z: m.At(1, 0) - m.At(0, 1),
	}

	switch {
	case theta < 1e-12:
		return r3.Scale(0.5, skew)
	case math.Pi-theta < 1e-6:
		// Near pi the skew part vanishes; recover the axis from R + I = 2aa^T.
		i := 0
		for k := 1; k < 3; k++ {
			if m.At(k, k) > m.At(i, i) {
				i = k
			}
		}
		var a [3]float64
		a[i] = math.Sqrt(math.Max(0, (m.At(i, i)+1)/2))
		for j := 0; j < 3; j++ {
			if j != i {
				a[j] = (m.At(i, j) + m.At(j, i)) / (4 * a[i])
			}
		}
		axis := r3.Unit(r3.Vec{X: a[0], Y: a[1], Z: a[2]})
		// Keep the sign consistent with whatever skew part remains.
		if r3.Dot(axis, skew) < 0 {
			axis = r3.Scale(-1, axis)
		}
		return r3.Scale(theta, axis)
	default:
		return r3.Scale(theta/(2*math.Sin(theta)), skew)
	}
}

// nearestRotation projects m onto SO(3) using its singular value decomposition.
func nearestRotation(m mat.Matrix) (*mat.Dense, bool) {
	var svd mat.SVD
	if !svd.Factorize(m, mat.SVDFull) {
		return nil, false
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	r := mat.NewDense(3, 3, nil)
	r.Mul(&u, v.T())
	if mat.Det(r) < 0 {
		// Flip the axis of the smallest singular value.
		for i := 0; i < 3; i++ {
			u.Set(i, 2, -u.At(i, 2))
		}
		r.Mul(&u, v.T())
	}
	return r, true
}

func mulVec3(m mat.Matrix, p r3.Vec) r3.Vec {
	return r3.Vec{
		X: m.At(0, 0)*p.X + m.At(0, 1)*p.Y + m.At(0, 2)*p.Z,
		Y: m.At(1, 0)*p.X + m.At(1, 1)*p.Y + m.At(1, 2)*p.Z,
		Z: m.At(2, 0)*p.X + m.At(2, 1)*p.Y + m.At(2, 2)*p.Z,
	}
}
