// Package pose - camera pose estimation from 2D-3D keypoint correspondences.
//
// The solver takes detected image keypoints, the matching points of a rigid
// reference model and pinhole intrinsics, and recovers the rotation and
// translation that minimise reprojection error (Perspective-n-Point). A
// closed-form estimate (POSIT for volumetric models, a plane homography for flat
// ones) seeds a Levenberg-Marquardt refinement. Thin models are seeded both
// ways, each with its mirrored branch, and the best refined pose wins.
package pose

import (
	"math"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// MinCorrespondences is the smallest point count accepted by the solver.
const MinCorrespondences = 4

const (
	numParams = 6

	// Largest Jacobi-scaled condition number of the normal equations at the
	// solution before the pose is considered undetermined.
	maxCondition = 1e12
	// Relative spread below which points count as collinear.
	collinearTolerance = 1e-9
	// Relative thickness below which a model is also seeded from its dominant
	// plane and from the mirrored branch of each estimate.
	thinTolerance = 0.1
	lambdaInitial      = 1e-3
	lambdaMax          = 1e16
)

// SolverConfig configures a Solver.
type SolverConfig struct {
	// Order remaps network keypoint channels to model point order. Empty means
	// the 2D points are already in model order.
	Order KeypointOrder `json:"order" yaml:"order"`
	// MaxIterations bounds the Levenberg-Marquardt refinement.
	MaxIterations int `json:"max_iterations" yaml:"max_iterations"`
	// Epsilon stops the refinement once the relative step norm drops below it.
	Epsilon float64 `json:"epsilon" yaml:"epsilon"`
	// PlanarityTolerance is the ratio of smallest to largest principal spread
	// of the model under which the model is treated as flat.
	PlanarityTolerance float64 `json:"planarity_tolerance" yaml:"planarity_tolerance"`
	// Logger receives debug output. Defaults to a no-op logger.
	Logger zerolog.Logger `json:"-" yaml:"-"`
}

// DefaultSolverConfig returns a configuration with identity keypoint order.
//
// Returns:
//   - SolverConfig: 100 iterations, epsilon 1e-10, planarity tolerance 1e-3.
//
// @example
// cfg := DefaultSolverConfig()
// cfg.Order = UnityToNNLayer
// solver, err := NewSolver(cfg)
func DefaultSolverConfig() SolverConfig {
	return SolverConfig{
		MaxIterations:      100,
		Epsilon:            1e-10,
		PlanarityTolerance: 1e-3,
		Logger:             zerolog.Nop(),
	}
}

// Solver estimates camera poses. It holds only configuration and is safe for
// concurrent use.
type Solver struct {
	config SolverConfig
}

// NewSolver validates cfg and returns a Solver.
func NewSolver(cfg SolverConfig) (*Solver, error) {
	if len(cfg.Order) > 0 {
		if err := cfg.Order.Validate(); err != nil {
			return nil, err
		}
	}
	if cfg.MaxIterations <= 0 {
		return nil, errors.Errorf("pose solver: max iterations must be positive, got %d", cfg.MaxIterations)
	}
	if cfg.Epsilon <= 0 || cfg.PlanarityTolerance <= 0 {
		return nil, errors.New("pose solver: epsilon and planarity tolerance must be positive")
	}
	return &Solver{config: cfg}, nil
}

var defaultSolver = &Solver{config: DefaultSolverConfig()}

// EstimatePose solves with DefaultSolverConfig. See Solver.EstimatePose.
func EstimatePose(points2D, modelPoints3D []float64, numPoints int, in Intrinsics) (*Result, error) {
	return defaultSolver.EstimatePose(points2D, modelPoints3D, numPoints, in)
}

// EstimatePose recovers the pose of the reference model in the camera frame.
//
// The camera frame has x right, y down and z forward. When the solver has a
// keypoint order the 2D points are permuted through it before pairing with
// the model points.
//
// Arguments:
//   - points2D: Pixel coordinates, x0 y0 x1 y1 ..., len numPoints*2.
//   - modelPoints3D: Model coordinates, x0 y0 z0 ..., len numPoints*3.
//   - numPoints: Number of correspondences, at least MinCorrespondences.
//   - in: Camera intrinsics.
//
// Returns:
//   - *Result: The solved pose in solver and renderer frames.
//   - ErrBufferSizeMismatch if the lengths disagree.
//   - ErrDegenerateCorrespondences if no unique pose can be determined.
func (s *Solver) EstimatePose(points2D, modelPoints3D []float64, numPoints int, in Intrinsics) (*Result, error) {
	log := s.config.Logger

	if numPoints < 0 || len(points2D) != numPoints*2 || len(modelPoints3D) != numPoints*3 {
		return nil, errors.Wrapf(ErrBufferSizeMismatch,
			"pose: %d image and %d model coordinates for %d points", len(points2D), len(modelPoints3D), numPoints)
	}
	if numPoints < MinCorrespondences {
		return nil, errors.Wrapf(ErrDegenerateCorrespondences, "pose: %d correspondences, need at least %d", numPoints, MinCorrespondences)
	}
	if in.FocalLength <= 0 || !finite(in.FocalLength, in.CenterX, in.CenterY) {
		return nil, errors.Wrapf(ErrDegenerateCorrespondences, "pose: invalid intrinsics %+v", in)
	}
	if !finite(points2D...) || !finite(modelPoints3D...) {
		return nil, errors.Wrap(ErrDegenerateCorrespondences, "pose: non-finite coordinates")
	}

	if len(s.config.Order) > 0 {
		if len(s.config.Order) != numPoints {
			return nil, errors.Wrapf(ErrBufferSizeMismatch, "pose: keypoint order covers %d points, got %d", len(s.config.Order), numPoints)
		}
		var err error
		if points2D, err = s.config.Order.Apply(points2D, 2); err != nil {
			return nil, err
		}
	}

	p := newProblem(points2D, modelPoints3D, numPoints, in)

	sp, err := principalAxes(p.model)
	if err != nil {
		return nil, err
	}
	if sp.values[0] == 0 || sp.values[1]/sp.values[0] < collinearTolerance {
		return nil, errors.Wrap(ErrDegenerateCorrespondences, "pose: model points are collinear or coincident")
	}
	if a, b, ok := planar2DSpread(p.normalized); !ok || a == 0 || b/a < collinearTolerance {
		return nil, errors.Wrap(ErrDegenerateCorrespondences, "pose: image points are collinear or coincident")
	}

	ratio := sp.values[2] / sp.values[0]
	methods := []initMethod{initPOSIT}
	switch {
	case ratio < s.config.PlanarityTolerance:
		methods = []initMethod{initHomography}
	case ratio < thinTolerance:
		methods = append(methods, initHomography)
	}
	mirror := ratio < thinTolerance

	sol, err := s.solve(p, sp, methods, mirror)
	if err != nil && !mirror {
		// Retry a volumetric model from its dominant plane.
		if retry, retryErr := s.solve(p, sp, []initMethod{initHomography}, true); retryErr == nil {
			sol, err = retry, nil
		}
	}
	if err != nil {
		return nil, err
	}

	rms := math.Sqrt(sol.cost / float64(numPoints))
	log.Debug().
		Str("init", string(sol.method)).
		Int("iterations", sol.iterations).
		Float64("rms_px", rms).
		Msg("pose refined")

	return newResult(sol.rvec, sol.tvec, rms, sol.iterations), nil
}

// seed is an initial pose for the refinement.
type seed struct {
	method     initMethod
	rvec, tvec r3.Vec
}

// solution is a refined pose and its sum of squared pixel residuals.
type solution struct {
	seed
	cost       float64
	iterations int
}

// solve refines every seed produced by methods, plus its mirrored branch when
// mirror is set, and keeps the lowest-cost solution in front of the camera.
// It returns the first error when no seed survives.
func (s *Solver) solve(p *problem, sp spread, methods []initMethod, mirror bool) (*solution, error) {
	log := s.config.Logger

	var (
		seeds    []seed
		firstErr error
	)
	for _, method := range methods {
		var rvec, tvec r3.Vec
		var err error
		if method == initHomography {
			rvec, tvec, err = homographyPose(p.model, p.normalized, sp)
		} else {
			rvec, tvec, err = positPose(p.model, p.normalized)
		}
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		seeds = append(seeds, seed{method: method, rvec: rvec, tvec: tvec})
		if mirror {
			if mr, mt, ok := mirrorPose(rvec, tvec, sp); ok {
				seeds = append(seeds, seed{method: method + mirroredSuffix, rvec: mr, tvec: mt})
			}
		}
	}

	var best *solution
	for _, sd := range seeds {
		log.Debug().
			Str("init", string(sd.method)).
			Int("points", p.n).
			Floats64("rvec", []float64{sd.rvec.X, sd.rvec.Y, sd.rvec.Z}).
			Floats64("tvec", []float64{sd.tvec.X, sd.tvec.Y, sd.tvec.Z}).
			Msg("initial pose estimate")

		x := []float64{sd.rvec.X, sd.rvec.Y, sd.rvec.Z, sd.tvec.X, sd.tvec.Y, sd.tvec.Z}
		cost, iterations, err := s.refine(p, x)
		rvec := r3.Vec{X: x[0], Y: x[1], Z: x[2]}
		tvec := r3.Vec{X: x[3], Y: x[4], Z: x[5]}
		if err == nil && !p.inFront(rvec, tvec) {
			err = errors.Wrap(ErrDegenerateCorrespondences, "pose: solution places points behind the camera")
		}
		if err != nil {
			log.Debug().Err(err).Str("init", string(sd.method)).Msg("initial estimate rejected")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if best == nil || cost < best.cost {
			best = &solution{
				seed:       seed{method: sd.method, rvec: rvec, tvec: tvec},
				cost:       cost,
				iterations: iterations,
			}
		}
	}
	if best == nil {
		if firstErr == nil {
			firstErr = errors.Wrap(ErrDegenerateCorrespondences, "pose: no initial estimate")
		}
		return nil, firstErr
	}
	return best, nil
}

// refine runs Levenberg-Marquardt on x in place and returns the final sum of
// squared pixel residuals and the iteration count.
func (s *Solver) refine(p *problem, x []float64) (float64, int, error) {
	m := 2 * p.n
	residuals := make([]float64, m)
	candidate := make([]float64, m)
	trial := make([]float64, numParams)

	p.residuals(residuals, x)
	cost := floats.Dot(residuals, residuals)
	if !finite(cost) {
		return 0, 0, errors.Wrap(ErrDegenerateCorrespondences, "pose: initial estimate is not finite")
	}

	jac := mat.NewDense(m, numParams, nil)
	settings := &fd.JacobianSettings{Formula: fd.Central}
	normal := mat.NewSymDense(numParams, nil)
	damped := mat.NewSymDense(numParams, nil)
	var grad, step mat.VecDense
	var chol mat.Cholesky

	lambda := lambdaInitial
	iterations := 0
	for ; iterations < s.config.MaxIterations; iterations++ {
		fd.Jacobian(jac, p.residuals, x, settings)
		normal.SymOuterK(1, jac.T())
		grad.MulVec(jac.T(), mat.NewVecDense(m, residuals))

		accepted := false
		for lambda < lambdaMax {
			damped.CopySym(normal)
			for i := 0; i < numParams; i++ {
				d := normal.At(i, i)
				damped.SetSym(i, i, d+lambda*math.Max(d, 1e-12))
			}
			if !chol.Factorize(damped) {
				lambda *= 10
				continue
			}
			if err := chol.SolveVecTo(&step, &grad); err != nil {
				lambda *= 10
				continue
			}
			for i := range trial {
				trial[i] = x[i] - step.AtVec(i)
			}
			p.residuals(candidate, trial)
			if c := floats.Dot(candidate, candidate); finite(c) && c < cost {
				copy(x, trial)
				copy(residuals, candidate)
				cost = c
				lambda = math.Max(lambda/10, 1e-12)
				accepted = true
				break
			}
			lambda *= 10
		}
		if !accepted {
			break
		}
		if mat.Norm(&step, 2) < s.config.Epsilon*(floats.Norm(x, 2)+s.config.Epsilon) {
			iterations++
			break
		}
	}

	fd.Jacobian(jac, p.residuals, x, settings)
	normal.SymOuterK(1, jac.T())
	if cond := scaledCondition(normal); cond > maxCondition || math.IsNaN(cond) {
		return 0, iterations, errors.Wrapf(ErrDegenerateCorrespondences, "pose: normal equations are ill-conditioned (%g)", cond)
	}
	return cost, iterations, nil
}

// scaledCondition returns the 2-norm condition number of a after scaling it to
// unit diagonal, so that rotation and translation columns with different units
// compare fairly.
func scaledCondition(a *mat.SymDense) float64 {
	n := a.SymmetricDim()
	scaled := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		di := a.At(i, i)
		if di <= 0 {
			return math.Inf(1)
		}
		for j := i; j < n; j++ {
			scaled.SetSym(i, j, a.At(i, j)/math.Sqrt(di*a.At(j, j)))
		}
	}
	return mat.Cond(scaled, 2)
}

// problem holds one set of correspondences.
type problem struct {
	n          int
	intrinsics Intrinsics
	model      []r3.Vec
	observed   [][2]float64 // pixels
	normalized [][2]float64 // z=1 image plane
}

func newProblem(points2D, modelPoints3D []float64, n int, in Intrinsics) *problem {
	p := &problem{
		n:          n,
		intrinsics: in,
		model:      make([]r3.Vec, n),
		observed:   make([][2]float64, n),
		normalized: make([][2]float64, n),
	}
	for i := 0; i < n; i++ {
		p.model[i] = r3.Vec{X: modelPoints3D[3*i], Y: modelPoints3D[3*i+1], Z: modelPoints3D[3*i+2]}
		u, v := points2D[2*i], points2D[2*i+1]
		p.observed[i] = [2]float64{u, v}
		x, y := in.normalize(u, v)
		p.normalized[i] = [2]float64{x, y}
	}
	return p
}

// residuals writes the reprojection error of every point, in pixels, for the
// parameters x = (rotation vector, translation).
func (p *problem) residuals(dst, x []float64) {
	rot := rotationOf(r3.Vec{X: x[0], Y: x[1], Z: x[2]})
	t := r3.Vec{X: x[3], Y: x[4], Z: x[5]}
	for i, m := range p.model {
		u, v := p.intrinsics.Project(r3.Add(rot.Rotate(m), t))
		dst[2*i] = u - p.observed[i][0]
		dst[2*i+1] = v - p.observed[i][1]
	}
}

func (p *problem) inFront(rvec, t r3.Vec) bool {
	rot := rotationOf(rvec)
	for _, m := range p.model {
		if r3.Add(rot.Rotate(m), t).Z <= 0 {
			return false
		}
	}
	return true
}

func finite(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
