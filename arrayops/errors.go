package arrayops

import (
	"unsafe"

	"github.com/pkg/errors"
)

var (
	// ErrBufferSizeMismatch is returned when an output, input or table length
	// disagrees with the dimensions of the call, or when input and output share
	// memory.
	ErrBufferSizeMismatch = errors.New("buffer size mismatch")
	// ErrClassIndexOutOfRange is returned when a class index has no entry in
	// the color table.
	ErrClassIndexOutOfRange = errors.New("class index out of range")
	// ErrInvalidThresholdBand is returned when minAllowed > thresh or either
	// bound is NaN.
	ErrInvalidThresholdBand = errors.New("invalid threshold band")
)

// overlaps reports whether a and b share any backing memory.
func overlaps[A, B any](a []A, b []B) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	var za A
	var zb B
	aStart := uintptr(unsafe.Pointer(unsafe.SliceData(a)))
	aEnd := aStart + uintptr(len(a))*unsafe.Sizeof(za)
	bStart := uintptr(unsafe.Pointer(unsafe.SliceData(b)))
	bEnd := bStart + uintptr(len(b))*unsafe.Sizeof(zb)
	return aStart < bEnd && bStart < aEnd
}

func checkDistinct[A, B any](in []A, out []B) error {
	if overlaps(in, out) {
		return errors.Wrap(ErrBufferSizeMismatch, "input and output buffers overlap")
	}
	return nil
}
