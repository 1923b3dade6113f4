package lifting

import (
	"sync"

	"github.com/nvr-ai/go-vision/pose"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Option configures a Lifter.
type Option func(*Lifter)

// WithLogger sets the logger used for debug output.
func WithLogger(l zerolog.Logger) Option {
	return func(lf *Lifter) {
		lf.log = l
	}
}

// WithSolver replaces the default pose solver.
func WithSolver(s *pose.Solver) Option {
	return func(lf *Lifter) {
		lf.solver = s
	}
}

// Lifter runs the per-frame rigid body pipeline for one video stream: 2D
// filtering, orientation tracking, smoothing, then the 3D solve.
type Lifter struct {
	// modelPoints are in renderer coordinates (y up, z toward the viewer), one
	// per keypoint index.
	modelPoints [][3]float64
	solver      *pose.Solver
	log         zerolog.Logger

	mu          sync.Mutex
	orientation *OrientationManager
	smoother    *Smoother
}

// NewLifter returns a Lifter for a body whose reference model has one point
// per keypoint index.
//
// Arguments:
//   - modelPoints: Reference model points in renderer coordinates.
//   - opts: Optional logger and solver.
//
// @example
// lf := lifting.NewLifter(model, lifting.WithLogger(log))
// if p, ok := lf.Process2D(detection, lifting.DefaultOptions()); ok {
// 	res, err := lf.Infer3D(p, 1080, 1920, fx, lifting.DefaultOptions())
// }
func NewLifter(modelPoints [][3]float64, opts ...Option) *Lifter {
	lf := &Lifter{
		modelPoints: modelPoints,
		log:         zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(lf)
	}
	return lf
}

// configure creates or updates the stateful stages requested by opts.
func (lf *Lifter) configure(opts Options) (*OrientationManager, *Smoother) {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	if opts.OrientationFlipAngleThreshold != nil {
		if lf.orientation == nil {
			lf.orientation = NewOrientationManager(*opts.OrientationFlipAngleThreshold)
		} else {
			lf.orientation.SetThreshold(*opts.OrientationFlipAngleThreshold)
		}
	}
	if opts.Smoothing != nil && lf.smoother == nil {
		lf.smoother = NewSmoother(*opts.Smoothing)
	}
	var smoother *Smoother
	if opts.Smoothing != nil {
		smoother = lf.smoother
	}
	return lf.orientation, smoother
}

// Process2D filters a 2D detection. It returns false when fewer than
// RequiredKeypointsMeetingThreshold non-excluded keypoints score above
// KeypointThreshold. Otherwise the pose is oriented against the previous
// frame and smoothed when opts enable those stages.
func (lf *Lifter) Process2D(p *Pose, opts Options) (*Pose, bool) {
	if p == nil {
		return nil, false
	}
	orientation, smoother := lf.configure(opts)

	confident := 0
	for _, k := range p.Keypoints {
		if !opts.excluded(k.Index) && k.Score > opts.KeypointThreshold {
			confident++
		}
	}
	if confident < opts.RequiredKeypointsMeetingThreshold {
		lf.log.Debug().
			Int("confident", confident).
			Int("required", opts.RequiredKeypointsMeetingThreshold).
			Msg("dropping low confidence pose")
		return nil, false
	}

	out := p
	if orientation != nil {
		out = orientation.Orient(out)
	}
	if smoother != nil {
		out = smoother.Smooth(out)
	}
	return out, true
}

// Infer3D solves the pose of the reference model from a 2D detection.
//
// Excluded keypoints and the model points at the same positions are dropped.
// Image coordinates are taken relative to the image centre and model points
// are converted to the solver frame, so the solve uses a principal point of
// (0, 0).
//
// Arguments:
//   - p: A pose returned by Process2D, keypoints in model point order.
//   - imageWidth, imageHeight: Size of the frame the keypoints refer to.
//   - focalLength: Horizontal focal length in pixels.
//   - opts: Lifting options.
//
// Returns:
//   - *pose.Result: The model pose; Transform places the model in renderer camera coordinates.
//   - pose.ErrBufferSizeMismatch if keypoint and model point counts differ.
//   - pose.ErrDegenerateCorrespondences if the solve fails.
func (lf *Lifter) Infer3D(p *Pose, imageWidth, imageHeight int, focalLength float64, opts Options) (*pose.Result, error) {
	if p == nil {
		return nil, errors.Wrap(pose.ErrDegenerateCorrespondences, "lifting: nil pose")
	}

	cx, cy := float64(imageWidth)/2, float64(imageHeight)/2
	points2D := make([]float64, 0, 2*len(p.Keypoints))
	for _, k := range p.Keypoints {
		if opts.excluded(k.Index) {
			continue
		}
		points2D = append(points2D, k.X-cx, k.Y-cy)
	}

	model := make([]float64, 0, 3*len(lf.modelPoints))
	for i, m := range lf.modelPoints {
		if opts.excluded(i) {
			continue
		}
		model = append(model, m[0], -m[1], -m[2])
	}

	n := len(model) / 3
	if len(points2D) != 2*n {
		return nil, errors.Wrapf(pose.ErrBufferSizeMismatch, "lifting: %d keypoints for %d model points", len(points2D)/2, n)
	}

	in := pose.Intrinsics{FocalLength: focalLength}
	var (
		res *pose.Result
		err error
	)
	if lf.solver != nil {
		res, err = lf.solver.EstimatePose(points2D, model, n, in)
	} else {
		res, err = pose.EstimatePose(points2D, model, n, in)
	}
	if err != nil {
		return nil, errors.Wrap(err, "lifting")
	}
	lf.log.Debug().
		Int("points", n).
		Float64("rms_px", res.ReprojectionError).
		Msg("lifted pose")
	return res, nil
}

// Reset clears orientation and smoothing state, for example when the stream
// restarts.
func (lf *Lifter) Reset() {
	lf.mu.Lock()
	defer lf.mu.Unlock()
	if lf.orientation != nil {
		lf.orientation.Reset()
	}
	if lf.smoother != nil {
		lf.smoother.Reset()
	}
}
