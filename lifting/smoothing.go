package lifting

import (
	"math"
	"sync"
	"time"

	"gonum.org/v1/gonum/mat"
)

// SmoothingFilter names the filter applied to keypoint coordinates.
type SmoothingFilter string

const (
	// FilterOneEuro is the One Euro filter (Casiez et al.), the default.
	FilterOneEuro SmoothingFilter = "one_euro"
	// FilterSavitzkyGolay fits a polynomial over a sliding window of frames.
	// Output lags the input by RightScan frames.
	FilterSavitzkyGolay SmoothingFilter = "savitzky_golay"
)

// SmoothingOptions configures the filter applied to every keypoint coordinate.
type SmoothingOptions struct {
	// Filter selects the filter. Empty means FilterOneEuro.
	Filter SmoothingFilter `json:"filter,omitempty" yaml:"filter,omitempty"`

	// Frequency is the expected frame rate in Hz, used until timestamps are seen.
	Frequency float64 `json:"frequency" yaml:"frequency"`
	// MinCutoff is the cutoff frequency at rest. Lower means smoother and laggier.
	MinCutoff float64 `json:"min_cutoff" yaml:"min_cutoff"`
	// Beta raises the cutoff with speed, trading jitter for lag on fast motion.
	Beta float64 `json:"beta" yaml:"beta"`
	// DerivativeCutoff is the cutoff used when filtering speed.
	DerivativeCutoff float64 `json:"derivative_cutoff" yaml:"derivative_cutoff"`

	// LeftScan and RightScan are the Savitzky-Golay window frames before and
	// after the smoothed frame. Both zero means two each.
	LeftScan  int `json:"left_scan,omitempty"  yaml:"left_scan,omitempty"`
	RightScan int `json:"right_scan,omitempty" yaml:"right_scan,omitempty"`
	// PolynomialOrder is the Savitzky-Golay fit order, below the window size.
	PolynomialOrder int `json:"polynomial_order,omitempty" yaml:"polynomial_order,omitempty"`
}

// LowSmoothing is a light filter for 2D keypoints.
var LowSmoothing = SmoothingOptions{
	Frequency:        1,
	MinCutoff:        1,
	Beta:             0.1,
	DerivativeCutoff: 1,
}

// SavitzkyGolaySmoothing is a five frame quadratic Savitzky-Golay filter.
var SavitzkyGolaySmoothing = SmoothingOptions{
	Filter:          FilterSavitzkyGolay,
	LeftScan:        2,
	RightScan:       2,
	PolynomialOrder: 2,
}

const frequencyEpsilon = 1e-6

// pointFilter smooths one coordinate of one keypoint.
type pointFilter interface {
	filter(value float64, at time.Time) float64
}

func smoothingAlpha(cutoff, frequency float64) float64 {
	te := 1 / frequency
	tau := 1 / (2 * math.Pi * cutoff)
	return 1 / (1 + tau/te)
}

type lowPass struct {
	initialized bool
	raw         float64
	smoothed    float64
}

func (f *lowPass) filter(value, alpha float64) float64 {
	if math.IsNaN(value) {
		return value
	}
	if !f.initialized {
		f.initialized = true
		f.smoothed = value
	} else {
		f.smoothed = alpha*value + (1-alpha)*f.smoothed
	}
	f.raw = value
	return f.smoothed
}

type oneEuro struct {
	opts      SmoothingOptions
	frequency float64
	last      time.Time
	x, dx     lowPass
}

func (f *oneEuro) filter(value float64, at time.Time) float64 {
	if !f.last.IsZero() && !at.IsZero() {
		f.frequency = 1 / (at.Sub(f.last).Seconds() + frequencyEpsilon)
	}
	f.last = at

	var speed float64
	if f.x.initialized {
		speed = (value - f.x.raw) * f.frequency
	}
	speed = f.dx.filter(speed, smoothingAlpha(f.opts.DerivativeCutoff, f.frequency))
	cutoff := f.opts.MinCutoff + f.opts.Beta*math.Abs(speed)
	return f.x.filter(value, smoothingAlpha(cutoff, f.frequency))
}

// savitzkyGolay holds the last LeftScan+RightScan+1 values of a coordinate.
// Until the window fills, values pass through unchanged.
type savitzkyGolay struct {
	coeffs []float64
	window []float64
}

func (f *savitzkyGolay) filter(value float64, _ time.Time) float64 {
	if math.IsNaN(value) {
		return value
	}
	f.window = append(f.window, value)
	if len(f.window) < len(f.coeffs) {
		return value
	}
	var sum float64
	for i, c := range f.coeffs {
		sum += c * f.window[i]
	}
	f.window = append(f.window[:0], f.window[1:]...)
	return sum
}

// savitzkyGolayCoefficients returns the weights, oldest frame first, that
// evaluate at frame 0 the least squares polynomial of the given order through
// frames -left..right.
func savitzkyGolayCoefficients(left, right, order int) []float64 {
	size := left + right + 1
	vander := mat.NewDense(size, order+1, nil)
	for i := 0; i < size; i++ {
		k := float64(i - left)
		p := 1.0
		for j := 0; j <= order; j++ {
			vander.Set(i, j, p)
			p *= k
		}
	}

	normal := mat.NewSymDense(order+1, nil)
	normal.SymOuterK(1, vander.T())
	var chol mat.Cholesky
	coeffs := make([]float64, size)
	if !chol.Factorize(normal) {
		coeffs[left] = 1
		return coeffs
	}
	unit := mat.NewVecDense(order+1, nil)
	unit.SetVec(0, 1)
	var b mat.VecDense
	if err := chol.SolveVecTo(&b, unit); err != nil {
		coeffs[left] = 1
		return coeffs
	}

	var c mat.VecDense
	c.MulVec(vander, &b)
	for i := range coeffs {
		coeffs[i] = c.AtVec(i)
	}
	return coeffs
}

// Smoother filters the keypoints of one stream. Filters are created per
// keypoint index on first sight.
type Smoother struct {
	mu        sync.Mutex
	newFilter func() pointFilter
	filters   map[int]*[2]pointFilter
}

// NewSmoother returns a Smoother. Non-positive One Euro values fall back to
// LowSmoothing; an unusable Savitzky-Golay window falls back to
// SavitzkyGolaySmoothing.
//
// Arguments:
//   - opts: Filter choice and its parameters.
//
// Returns:
//   - *Smoother: A smoother with no history.
//
// @example
// s := NewSmoother(SavitzkyGolaySmoothing)
// smoothed := s.Smooth(pose)
func NewSmoother(opts SmoothingOptions) *Smoother {
	s := &Smoother{filters: make(map[int]*[2]pointFilter)}

	if opts.Filter == FilterSavitzkyGolay {
		if opts.LeftScan < 0 || opts.RightScan < 0 || opts.LeftScan+opts.RightScan == 0 {
			opts.LeftScan, opts.RightScan = SavitzkyGolaySmoothing.LeftScan, SavitzkyGolaySmoothing.RightScan
		}
		if opts.PolynomialOrder < 0 || opts.PolynomialOrder > opts.LeftScan+opts.RightScan {
			opts.PolynomialOrder = min(SavitzkyGolaySmoothing.PolynomialOrder, opts.LeftScan+opts.RightScan)
		}
		coeffs := savitzkyGolayCoefficients(opts.LeftScan, opts.RightScan, opts.PolynomialOrder)
		s.newFilter = func() pointFilter {
			return &savitzkyGolay{coeffs: coeffs, window: make([]float64, 0, len(coeffs))}
		}
		return s
	}

	if opts.Frequency <= 0 {
		opts.Frequency = LowSmoothing.Frequency
	}
	if opts.MinCutoff <= 0 {
		opts.MinCutoff = LowSmoothing.MinCutoff
	}
	if opts.DerivativeCutoff <= 0 {
		opts.DerivativeCutoff = LowSmoothing.DerivativeCutoff
	}
	s.newFilter = func() pointFilter {
		return &oneEuro{opts: opts, frequency: opts.Frequency}
	}
	return s
}

// Smooth returns a copy of p with filtered keypoint positions.
func (s *Smoother) Smooth(p *Pose) *Pose {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := &Pose{
		Keypoints: make([]Keypoint, len(p.Keypoints)),
		Score:     p.Score,
		Timestamp: p.Timestamp,
	}
	for i, k := range p.Keypoints {
		f, ok := s.filters[k.Index]
		if !ok {
			f = &[2]pointFilter{s.newFilter(), s.newFilter()}
			s.filters[k.Index] = f
		}
		k.X = f[0].filter(k.X, p.Timestamp)
		k.Y = f[1].filter(k.Y, p.Timestamp)
		out.Keypoints[i] = k
	}
	return out
}

// Reset drops all filter state.
func (s *Smoother) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filters = make(map[int]*[2]pointFilter)
}
