package pose

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// initMethod names the strategy used for the first pose estimate.
type initMethod string

const (
	initPOSIT      initMethod = "posit"
	initHomography initMethod = "homography"

	mirroredSuffix initMethod = "_mirrored"
)

const (
	positMaxIterations = 200
	positTolerance     = 1e-12
)

// spread describes the principal axes of a point set.
type spread struct {
	centroid r3.Vec
	axes     [3]r3.Vec  // principal directions, largest spread first
	values   [3]float64 // singular values of the centered points
}

func principalAxes(points []r3.Vec) (spread, error) {
	var s spread
	for _, p := range points {
		s.centroid = r3.Add(s.centroid, p)
	}
	s.centroid = r3.Scale(1/float64(len(points)), s.centroid)

	centered := mat.NewDense(len(points), 3, nil)
	for i, p := range points {
		d := r3.Sub(p, s.centroid)
		centered.SetRow(i, []float64{d.X, d.Y, d.Z})
	}

	var svd mat.SVD
	if !svd.Factorize(centered, mat.SVDFullV) {
		return s, errors.Wrap(ErrDegenerateCorrespondences, "model point decomposition failed")
	}
	values := svd.Values(nil)
	copy(s.values[:], values)
	var v mat.Dense
	svd.VTo(&v)
	for i := 0; i < 3; i++ {
		s.axes[i] = r3.Vec{X: v.At(0, i), Y: v.At(1, i), Z: v.At(2, i)}
	}
	return s, nil
}

// planar2DSpread returns the singular values of the centered image points.
func planar2DSpread(points [][2]float64) (float64, float64, bool) {
	var cx, cy float64
	for _, p := range points {
		cx += p[0]
		cy += p[1]
	}
	cx /= float64(len(points))
	cy /= float64(len(points))

	centered := mat.NewDense(len(points), 2, nil)
	for i, p := range points {
		centered.SetRow(i, []float64{p[0] - cx, p[1] - cy})
	}
	var svd mat.SVD
	if !svd.Factorize(centered, mat.SVDNone) {
		return 0, 0, false
	}
	values := svd.Values(nil)
	return values[0], values[1], true
}

// positPose estimates a pose for a non-coplanar model with DeMenthon and
// Davis' POSIT: scaled orthographic projections are refined until the
// perspective correction terms settle.
//
// image holds normalized (z=1 plane) coordinates.
func positPose(model []r3.Vec, image [][2]float64) (r3.Vec, r3.Vec, error) {
	n := len(model)
	objects := mat.NewDense(n-1, 3, nil)
	for i := 1; i < n; i++ {
		d := r3.Sub(model[i], model[0])
		objects.SetRow(i-1, []float64{d.X, d.Y, d.Z})
	}

	var pinv mat.Dense
	if err := pseudoInverse(&pinv, objects); err != nil {
		return r3.Vec{}, r3.Vec{}, err
	}

	eps := make([]float64, n)
	xp := mat.NewVecDense(n-1, nil)
	yp := mat.NewVecDense(n-1, nil)
	var iv, jv mat.VecDense
	var rowI, rowJ, rowK r3.Vec
	var z0 float64

	for iter := 0; iter < positMaxIterations; iter++ {
		for i := 1; i < n; i++ {
			xp.SetVec(i-1, image[i][0]*(1+eps[i])-image[0][0])
			yp.SetVec(i-1, image[i][1]*(1+eps[i])-image[0][1])
		}
		iv.MulVec(&pinv, xp)
		jv.MulVec(&pinv, yp)

		vi := r3.Vec{X: iv.AtVec(0), Y: iv.AtVec(1), Z: iv.AtVec(2)}
		vj := r3.Vec{X: jv.AtVec(0), Y: jv.AtVec(1), Z: jv.AtVec(2)}
		s1, s2 := r3.Norm(vi), r3.Norm(vj)
		if s1 == 0 || s2 == 0 {
			return r3.Vec{}, r3.Vec{}, errors.Wrap(ErrDegenerateCorrespondences, "posit: zero scale")
		}

		rowI = r3.Scale(1/s1, vi)
		rowK = r3.Cross(rowI, r3.Scale(1/s2, vj))
		if r3.Norm(rowK) == 0 {
			return r3.Vec{}, r3.Vec{}, errors.Wrap(ErrDegenerateCorrespondences, "posit: parallel image axes")
		}
		rowK = r3.Unit(rowK)
		rowJ = r3.Cross(rowK, rowI)
		z0 = 2 / (s1 + s2)

		delta := 0.0
		for i := 1; i < n; i++ {
			next := r3.Dot(r3.Sub(model[i], model[0]), rowK) / z0
			delta = math.Max(delta, math.Abs(next-eps[i]))
			eps[i] = next
		}
		if delta < positTolerance {
			break
		}
	}

	rot := mat.NewDense(3, 3, []float64{
		rowI.X, rowI.Y, rowI.Z,
		rowJ.X, rowJ.Y, rowJ.Z,
		rowK.X, rowK.Y, rowK.Z,
	})
	origin := r3.Vec{X: image[0][0] * z0, Y: image[0][1] * z0, Z: z0}
	t := r3.Sub(origin, mulVec3(rot, model[0]))
	return rotationVector(rot), t, nil
}

// homographyPose estimates a pose for a coplanar model from the homography
// between the model plane and the normalized image plane.
func homographyPose(model []r3.Vec, image [][2]float64, s spread) (r3.Vec, r3.Vec, error) {
	n := len(model)
	e1, e2 := s.axes[0], s.axes[1]
	e3 := r3.Cross(e1, e2)

	plane := make([][2]float64, n)
	var scale float64
	for i, p := range model {
		d := r3.Sub(p, s.centroid)
		plane[i] = [2]float64{r3.Dot(d, e1), r3.Dot(d, e2)}
		scale += plane[i][0]*plane[i][0] + plane[i][1]*plane[i][1]
	}
	scale = math.Sqrt(scale / float64(n))
	if scale == 0 {
		return r3.Vec{}, r3.Vec{}, errors.Wrap(ErrDegenerateCorrespondences, "homography: coincident model points")
	}

	a := mat.NewDense(2*n, 9, nil)
	for i := range plane {
		X, Y := plane[i][0]/scale, plane[i][1]/scale
		x, y := image[i][0], image[i][1]
		a.SetRow(2*i, []float64{X, Y, 1, 0, 0, 0, -x * X, -x * Y, -x})
		a.SetRow(2*i+1, []float64{0, 0, 0, X, Y, 1, -y * X, -y * Y, -y})
	}

	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDFullV) {
		return r3.Vec{}, r3.Vec{}, errors.Wrap(ErrDegenerateCorrespondences, "homography: decomposition failed")
	}
	var v mat.Dense
	svd.VTo(&v)
	h := mat.Col(nil, 8, &v)

	// Place the model centroid, which maps to column 3, in front of the camera.
	if h[8] < 0 {
		for i := range h {
			h[i] = -h[i]
		}
	}

	h1 := r3.Vec{X: h[0], Y: h[3], Z: h[6]}
	h2 := r3.Vec{X: h[1], Y: h[4], Z: h[7]}
	h3 := r3.Vec{X: h[2], Y: h[5], Z: h[8]}
	n1, n2 := r3.Norm(h1), r3.Norm(h2)
	if n1 == 0 || n2 == 0 {
		return r3.Vec{}, r3.Vec{}, errors.Wrap(ErrDegenerateCorrespondences, "homography: rank deficient")
	}

	r1 := r3.Scale(1/n1, h1)
	r2 := r3.Scale(1/n2, h2)
	r3col := r3.Cross(r1, r2)
	tPlane := r3.Scale(2*scale/(n1+n2), h3)

	approx := mat.NewDense(3, 3, []float64{
		r1.X, r2.X, r3col.X,
		r1.Y, r2.Y, r3col.Y,
		r1.Z, r2.Z, r3col.Z,
	})
	rotPlane, ok := nearestRotation(approx)
	if !ok {
		return r3.Vec{}, r3.Vec{}, errors.Wrap(ErrDegenerateCorrespondences, "homography: orthonormalization failed")
	}

	basis := mat.NewDense(3, 3, []float64{
		e1.X, e2.X, e3.X,
		e1.Y, e2.Y, e3.Y,
		e1.Z, e2.Z, e3.Z,
	})
	rot := mat.NewDense(3, 3, nil)
	rot.Mul(rotPlane, basis.T())
	t := r3.Sub(tPlane, mulVec3(rot, s.centroid))
	return rotationVector(rot), t, nil
}

// mirrorPose returns the second branch of the flat-model ambiguity for a pose:
// the model's dominant plane normal reflected about the line of sight to its
// centroid, with the centroid held in place. It reports false when the plane
// faces the camera head on and both branches coincide.
func mirrorPose(rvec, tvec r3.Vec, s spread) (r3.Vec, r3.Vec, bool) {
	rot := rotationOf(rvec)
	center := r3.Add(rot.Rotate(s.centroid), tvec)
	if center.Z <= 0 {
		return r3.Vec{}, r3.Vec{}, false
	}
	sight := r3.Unit(center)
	normal := r3.Unit(rot.Rotate(r3.Cross(s.axes[0], s.axes[1])))

	axis := r3.Cross(normal, sight)
	sin := r3.Norm(axis)
	if sin < 1e-9 {
		return r3.Vec{}, r3.Vec{}, false
	}
	angle := 2 * math.Atan2(sin, r3.Dot(normal, sight))

	var m mat.Dense
	m.Mul(matrixOf(r3.NewRotation(angle, axis)), rotationMatrix(rvec))
	mirrored := rotationVector(&m)
	t := r3.Sub(center, rotationOf(mirrored).Rotate(s.centroid))
	return mirrored, t, true
}

func pseudoInverse(dst *mat.Dense, a mat.Matrix) error {
	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDThin) {
		return errors.Wrap(ErrDegenerateCorrespondences, "pseudo-inverse decomposition failed")
	}
	values := svd.Values(nil)
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	k := len(values)
	inv := mat.NewDense(k, k, nil)
	for i, s := range values {
		if s <= values[0]*1e-12 {
			return errors.Wrap(ErrDegenerateCorrespondences, "rank deficient model points")
		}
		inv.Set(i, i, 1/s)
	}
	var tmp mat.Dense
	tmp.Mul(&v, inv)
	dst.Mul(&tmp, u.T())
	return nil
}
