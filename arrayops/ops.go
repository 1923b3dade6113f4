// Package arrayops - dense transforms over per-pixel model score buffers.
//
// Every function writes into a caller-allocated output slice and validates all
// sizes before the first write, so a failed call leaves the output untouched.
// None of them retain their arguments, and all of them are safe to call
// concurrently on independent buffers.
package arrayops

import (
	"github.com/chewxy/math32"
	"github.com/pkg/errors"
)

// ColorWidth is the number of bytes per pixel in color tables and color outputs.
const ColorWidth = 4

const (
	rIndex = 0
	gIndex = 1
	bIndex = 2
	aIndex = 3
)

// Background is the class index reported for pixels with no confident class.
const Background = 0

// Threshold sets values above thresh to 1 and everything else to 0.
//
// The comparison is strict: an element equal to thresh maps to 0.
//
// Arguments:
//   - matrix: Input scores.
//   - values: Output buffer, same length as matrix.
//   - thresh: Threshold value.
//
// Returns:
//   - ErrBufferSizeMismatch if the lengths differ or the buffers overlap.
//
// @example
// out := make([]float32, 3)
// _ = Threshold([]float32{0.2, 0.6, 0.9}, out, 0.5) // out == [0 1 1]
func Threshold(matrix, values []float32, thresh float32) error {
	if len(values) != len(matrix) {
		return errors.Wrapf(ErrBufferSizeMismatch, "threshold: input has %d elements, output %d", len(matrix), len(values))
	}
	if err := checkDistinct(matrix, values); err != nil {
		return err
	}

	for i, v := range matrix {
		if v > thresh {
			values[i] = 1
		} else {
			values[i] = 0
		}
	}
	return nil
}

// FuzzyThreshold clips values above thresh to 1 and zeroes values below
// minAllowed. Values inside [minAllowed, thresh] keep their original score so
// they can be used for alpha blending instead of a hard mask.
//
// Arguments:
//   - matrix: Input scores.
//   - values: Output buffer, same length as matrix.
//   - thresh: Upper bound of the soft band.
//   - minAllowed: Lowest score kept as-is.
//
// Returns:
//   - ErrInvalidThresholdBand if minAllowed > thresh or either bound is NaN.
//   - ErrBufferSizeMismatch if the lengths differ or the buffers overlap.
func FuzzyThreshold(matrix, values []float32, thresh, minAllowed float32) error {
	if math32.IsNaN(thresh) || math32.IsNaN(minAllowed) {
		return errors.Wrap(ErrInvalidThresholdBand, "fuzzy threshold: NaN bound")
	}
	if minAllowed > thresh {
		return errors.Wrapf(ErrInvalidThresholdBand, "fuzzy threshold: minAllowed %g exceeds thresh %g", minAllowed, thresh)
	}
	if len(values) != len(matrix) {
		return errors.Wrapf(ErrBufferSizeMismatch, "fuzzy threshold: input has %d elements, output %d", len(matrix), len(values))
	}
	if err := checkDistinct(matrix, values); err != nil {
		return err
	}

	for i, v := range matrix {
		switch {
		case v > thresh:
			v = 1
		case v < minAllowed:
			v = 0
		}
		values[i] = v
	}
	return nil
}

// Argmax reduces a class-major [numClasses x n] score matrix to the winning
// class per position.
//
// Element (class c, position i) lives at matrix[c*n+i]. Ties keep the lowest
// class index. Positions whose best score is below minThreshold, or where no
// score beats the initial -1 floor, are assigned Background.
//
// Arguments:
//   - matrix: Class-major scores, len numClasses*n.
//   - output: Class index per position, len n.
//   - numClasses: Number of classes to reduce across.
//   - n: Number of positions (pixels) per class plane.
//   - minThreshold: Minimum accepted confidence.
//
// Returns:
//   - ErrBufferSizeMismatch on any dimension disagreement.
func Argmax(matrix []float32, output []int32, numClasses, n int, minThreshold float32) error {
	if numClasses < 1 || n < 0 {
		return errors.Wrapf(ErrBufferSizeMismatch, "argmax: invalid dimensions %d classes x %d", numClasses, n)
	}
	if len(matrix) != numClasses*n {
		return errors.Wrapf(ErrBufferSizeMismatch, "argmax: matrix has %d elements, want %d", len(matrix), numClasses*n)
	}
	if len(output) != n {
		return errors.Wrapf(ErrBufferSizeMismatch, "argmax: output has %d elements, want %d", len(output), n)
	}
	if err := checkDistinct(matrix, output); err != nil {
		return err
	}

	for i := 0; i < n; i++ {
		val := float32(-1)
		index := int32(-1)
		for c := 0; c < numClasses; c++ {
			if current := matrix[c*n+i]; current > val {
				val = current
				index = int32(c)
			}
		}
		if val < minThreshold || index < 0 {
			index = Background
		}
		output[i] = index
	}
	return nil
}

// ClassesToColor maps each class index to its RGBA entry in colorTable.
//
// Background pixels always get alpha 0, whatever the table holds for class 0.
//
// Arguments:
//   - classMatrix: Class index per pixel, len n.
//   - colorTable: numClasses*4 RGBA bytes.
//   - output: RGBA bytes, len n*4.
//   - n: Number of pixels.
//
// Returns:
//   - ErrClassIndexOutOfRange if any index has no table entry.
//   - ErrBufferSizeMismatch on any length disagreement.
func ClassesToColor(classMatrix []int32, colorTable, output []byte, n int) error {
	if n < 0 || len(classMatrix) != n {
		return errors.Wrapf(ErrBufferSizeMismatch, "classes to color: class matrix has %d elements, want %d", len(classMatrix), n)
	}
	if len(output) != n*ColorWidth {
		return errors.Wrapf(ErrBufferSizeMismatch, "classes to color: output has %d bytes, want %d", len(output), n*ColorWidth)
	}
	if len(colorTable) == 0 || len(colorTable)%ColorWidth != 0 {
		return errors.Wrapf(ErrBufferSizeMismatch, "classes to color: color table has %d bytes", len(colorTable))
	}
	if err := checkDistinct(classMatrix, output); err != nil {
		return err
	}
	if err := checkDistinct(colorTable, output); err != nil {
		return err
	}

	numClasses := int32(len(colorTable) / ColorWidth)
	for i, idx := range classMatrix {
		if idx < 0 || idx >= numClasses {
			return errors.Wrapf(ErrClassIndexOutOfRange, "classes to color: pixel %d has class %d, table holds %d", i, idx, numClasses)
		}
	}

	for i, idx := range classMatrix {
		src := colorTable[int(idx)*ColorWidth : int(idx)*ColorWidth+ColorWidth]
		dst := output[i*ColorWidth : i*ColorWidth+ColorWidth]
		dst[rIndex] = src[rIndex]
		dst[gIndex] = src[gIndex]
		dst[bIndex] = src[bIndex]
		if idx > Background {
			dst[aIndex] = src[aIndex]
		} else {
			dst[aIndex] = 0
		}
	}
	return nil
}
