// Package segmentation interprets the per-pixel class scores of a semantic
// segmentation model: most likely class maps, per-class confidence maps,
// binary masks and RGBA overlays.
package segmentation

import (
	"image/color"

	"github.com/nvr-ai/go-vision/arrayops"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"gorgonia.org/tensor"
)

// ErrInvalidScores is returned when a score tensor does not have the shape
// [classes, height, width] or an unsupported element type.
var ErrInvalidScores = errors.New("invalid segmentation scores")

// Class is one output channel of a segmentation model.
type Class struct {
	Index int        `json:"index" yaml:"index"`
	Label string     `json:"label" yaml:"label"`
	Color color.RGBA `json:"color" yaml:"color"`
}

// Option configures a Result.
type Option func(*Result)

// WithLogger sets the logger used for debug output.
func WithLogger(l zerolog.Logger) Option {
	return func(r *Result) {
		r.log = l
	}
}

// Result holds the class scores of one segmented frame. It is read-only after
// construction and safe for concurrent use.
type Result struct {
	Width   int
	Height  int
	Classes []Class

	scores []float32 // class-major: scores[c*Width*Height + y*Width + x]
	log    zerolog.Logger
}

// NewResult wraps a score tensor.
//
// Arguments:
//   - scores: Float32 or Float64 tensor of shape [classes, height, width].
//   - classes: One entry per channel, Class.Index matching the channel.
//
// Returns:
//   - *Result: Scores copied to float32 in class-major order.
//   - ErrInvalidScores if the tensor shape or type does not match classes.
//
// @example
// scores := tensor.New(tensor.WithShape(2, 480, 640), tensor.WithBacking(out))
// res, err := segmentation.NewResult(scores, []segmentation.Class{{Index: 0, Label: "none"}, {Index: 1, Label: "person"}})
func NewResult(scores *tensor.Dense, classes []Class, opts ...Option) (*Result, error) {
	if scores == nil {
		return nil, errors.Wrap(ErrInvalidScores, "nil tensor")
	}
	shape := scores.Shape()
	if len(shape) != 3 {
		return nil, errors.Wrapf(ErrInvalidScores, "want 3 dimensions, got shape %v", shape)
	}
	if shape[0] != len(classes) || len(classes) == 0 {
		return nil, errors.Wrapf(ErrInvalidScores, "%d channels for %d classes", shape[0], len(classes))
	}
	for i, c := range classes {
		if c.Index != i {
			return nil, errors.Wrapf(ErrInvalidScores, "class %q has index %d at position %d", c.Label, c.Index, i)
		}
	}

	if scores.IsMaterializable() {
		materialized, ok := scores.Materialize().(*tensor.Dense)
		if !ok {
			return nil, errors.Wrap(ErrInvalidScores, "cannot materialize view")
		}
		scores = materialized
	}

	size := shape[0] * shape[1] * shape[2]
	data := make([]float32, size)
	switch backing := scores.Data().(type) {
	case []float32:
		if len(backing) < size {
			return nil, errors.Wrapf(ErrInvalidScores, "backing holds %d values, want %d", len(backing), size)
		}
		copy(data, backing)
	case []float64:
		if len(backing) < size {
			return nil, errors.Wrapf(ErrInvalidScores, "backing holds %d values, want %d", len(backing), size)
		}
		for i := range data {
			data[i] = float32(backing[i])
		}
	default:
		return nil, errors.Wrapf(ErrInvalidScores, "unsupported dtype %v", scores.Dtype())
	}

	r := &Result{
		Width:   shape[2],
		Height:  shape[1],
		Classes: classes,
		scores:  data,
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// PixelCount returns Width*Height.
func (r *Result) PixelCount() int {
	return r.Width * r.Height
}

func (r *Result) channel(class Class) ([]float32, error) {
	if class.Index < 0 || class.Index >= len(r.Classes) {
		return nil, errors.Wrapf(arrayops.ErrClassIndexOutOfRange, "class %q index %d, have %d classes", class.Label, class.Index, len(r.Classes))
	}
	n := r.PixelCount()
	return r.scores[class.Index*n : (class.Index+1)*n], nil
}

// MostLikelyClasses returns the winning class index per pixel, row-major.
// Pixels whose best score is below minConfidence are assigned class 0.
func (r *Result) MostLikelyClasses(minConfidence float32) ([]int32, error) {
	out := make([]int32, r.PixelCount())
	if err := arrayops.Argmax(r.scores, out, len(r.Classes), r.PixelCount(), minConfidence); err != nil {
		return nil, err
	}
	r.log.Debug().
		Int("classes", len(r.Classes)).
		Int("width", r.Width).
		Int("height", r.Height).
		Float32("min_confidence", minConfidence).
		Msg("computed class map")
	return out, nil
}

// ConfidenceScores returns the scores of one class with scores above clipAbove
// set to 1 and scores below zeroBelow set to 0. When the two are equal the map
// is binary.
//
// Arguments:
//   - class: The class to read.
//   - clipAbove: Scores strictly above become 1.
//   - zeroBelow: Scores strictly below become 0; must not exceed clipAbove.
//
// Returns:
//   - Per-pixel scores, row-major.
func (r *Result) ConfidenceScores(class Class, clipAbove, zeroBelow float32) ([]float32, error) {
	ch, err := r.channel(class)
	if err != nil {
		return nil, err
	}
	out := make([]float32, len(ch))
	if clipAbove == zeroBelow {
		err = arrayops.Threshold(ch, out, clipAbove)
	} else {
		err = arrayops.FuzzyThreshold(ch, out, clipAbove, zeroBelow)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ClassColors renders the class map as RGBA bytes, row-major, using each
// class color with the given alpha. Class 0 pixels are transparent.
func (r *Result) ClassColors(minConfidence float32, alpha uint8) ([]byte, error) {
	classes, err := r.MostLikelyClasses(minConfidence)
	if err != nil {
		return nil, err
	}
	colors := make([]color.RGBA, len(r.Classes))
	for i, c := range r.Classes {
		colors[i] = c.Color
	}
	out := make([]byte, len(classes)*arrayops.ColorWidth)
	if err := arrayops.ClassesToColor(classes, arrayops.NewColorTable(colors, alpha), out, len(classes)); err != nil {
		return nil, err
	}
	return out, nil
}

// ConfidenceColors renders the confidence of one class as RGBA bytes, scaling
// c and alpha by the clipped score of each pixel.
func (r *Result) ConfidenceColors(class Class, c color.RGBA, alpha uint8, clipAbove, zeroBelow float32) ([]byte, error) {
	scores, err := r.ConfidenceScores(class, clipAbove, zeroBelow)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(scores)*arrayops.ColorWidth)
	if err := arrayops.ConfidenceToColor(scores, c, alpha, out); err != nil {
		return nil, err
	}
	return out, nil
}
