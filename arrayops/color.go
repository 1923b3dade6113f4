package arrayops

import (
	"image/color"

	"github.com/chewxy/math32"
	"github.com/pkg/errors"
)

// ColorTable is a flat numClasses*4 RGBA table as consumed by ClassesToColor.
type ColorTable []byte

// NewColorTable builds a color table from per-class colors, giving every
// class the same alpha.
//
// Arguments:
//   - colors: One color per class, in class index order.
//   - alpha: Alpha assigned to every class.
//
// Returns:
//   - The flat table. Class 0 keeps its alpha here; ClassesToColor clears it.
func NewColorTable(colors []color.RGBA, alpha uint8) ColorTable {
	table := make(ColorTable, len(colors)*ColorWidth)
	for i, c := range colors {
		table[i*ColorWidth+rIndex] = c.R
		table[i*ColorWidth+gIndex] = c.G
		table[i*ColorWidth+bIndex] = c.B
		table[i*ColorWidth+aIndex] = alpha
	}
	return table
}

// NumClasses returns the number of classes the table covers.
func (t ColorTable) NumClasses() int {
	return len(t) / ColorWidth
}

// ConfidenceToColor scales a single-class confidence map by a color. Each
// channel is score*channel truncated toward zero and clamped to [0, 255]; the
// alpha channel uses alpha instead of c.A.
//
// Arguments:
//   - values: Per-pixel confidence, usually in [0, 1].
//   - c: Class color.
//   - alpha: Alpha at full confidence.
//   - output: RGBA bytes, len(values)*4.
func ConfidenceToColor(values []float32, c color.RGBA, alpha uint8, output []byte) error {
	if len(output) != len(values)*ColorWidth {
		return errors.Wrapf(ErrBufferSizeMismatch, "confidence to color: output has %d bytes, want %d", len(output), len(values)*ColorWidth)
	}
	if err := checkDistinct(values, output); err != nil {
		return err
	}

	channels := [ColorWidth]float32{float32(c.R), float32(c.G), float32(c.B), float32(alpha)}
	for i, v := range values {
		for ch, scale := range channels {
			output[i*ColorWidth+ch] = toByte(v * scale)
		}
	}
	return nil
}

func toByte(v float32) uint8 {
	if math32.IsNaN(v) {
		return 0
	}
	return uint8(math32.Max(0, math32.Min(255, math32.Trunc(v))))
}
