package arrayops

import (
	"image/color"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThreshold(t *testing.T) {
	out := make([]float32, 3)
	require.NoError(t, Threshold([]float32{0.2, 0.6, 0.9}, out, 0.5))
	assert.Equal(t, []float32{0, 1, 1}, out)
}

func TestThresholdBoundaryMapsToZero(t *testing.T) {
	in := []float32{0.5, 0.50001, 0.49999, -1, 2}
	out := make([]float32, len(in))
	require.NoError(t, Threshold(in, out, 0.5))
	assert.Equal(t, []float32{0, 1, 0, 0, 1}, out)
}

func TestThresholdProperty(t *testing.T) {
	in := make([]float32, 1000)
	for i := range in {
		in[i] = float32(i%101) / 100
	}
	out := make([]float32, len(in))
	for _, thresh := range []float32{0, 0.25, 0.5, 0.99, 1} {
		require.NoError(t, Threshold(in, out, thresh))
		for i, v := range in {
			if v > thresh {
				assert.Equal(t, float32(1), out[i], "index %d value %v thresh %v", i, v, thresh)
			} else {
				assert.Equal(t, float32(0), out[i], "index %d value %v thresh %v", i, v, thresh)
			}
		}
	}
}

func TestThresholdSizeMismatch(t *testing.T) {
	err := Threshold([]float32{1, 2, 3}, make([]float32, 2), 0.5)
	assert.ErrorIs(t, err, ErrBufferSizeMismatch)
}

func TestThresholdRejectsAliasedBuffers(t *testing.T) {
	buf := []float32{0.1, 0.9}
	err := Threshold(buf, buf, 0.5)
	assert.ErrorIs(t, err, ErrBufferSizeMismatch)
	assert.Equal(t, []float32{0.1, 0.9}, buf, "failed call must not write")
}

func TestFuzzyThreshold(t *testing.T) {
	in := []float32{0.05, 0.1, 0.3, 0.7, 0.71, 1.5}
	out := make([]float32, len(in))
	require.NoError(t, FuzzyThreshold(in, out, 0.7, 0.1))
	assert.Equal(t, []float32{0, 0.1, 0.3, 0.7, 1, 1}, out)
}

func TestFuzzyThresholdEqualBounds(t *testing.T) {
	in := []float32{0.2, 0.5, 0.8}
	out := make([]float32, len(in))
	require.NoError(t, FuzzyThreshold(in, out, 0.5, 0.5))
	assert.Equal(t, []float32{0, 0.5, 1}, out)
}

func TestFuzzyThresholdInvalidBand(t *testing.T) {
	out := []float32{7, 7}
	err := FuzzyThreshold([]float32{0.1, 0.2}, out, 0.3, 0.4)
	assert.ErrorIs(t, err, ErrInvalidThresholdBand)
	assert.Equal(t, []float32{7, 7}, out)

	err = FuzzyThreshold([]float32{0.1}, make([]float32, 1), float32(math.NaN()), 0)
	assert.ErrorIs(t, err, ErrInvalidThresholdBand)
}

func TestArgmax(t *testing.T) {
	out := make([]int32, 1)
	require.NoError(t, Argmax([]float32{0.3, 0.8}, out, 2, 1, 0.5))
	assert.Equal(t, []int32{1}, out)
}

func TestArgmaxTieKeepsFirstClass(t *testing.T) {
	out := make([]int32, 1)
	require.NoError(t, Argmax([]float32{0.9, 0.9}, out, 2, 1, 0))
	assert.Equal(t, []int32{0}, out)

	// Tie between classes 1 and 2.
	out = make([]int32, 1)
	require.NoError(t, Argmax([]float32{0.1, 0.6, 0.6}, out, 3, 1, 0))
	assert.Equal(t, []int32{1}, out)
}

func TestArgmaxBelowThresholdIsBackground(t *testing.T) {
	// 3 classes, 4 pixels, class-major.
	matrix := []float32{
		0.1, 0.0, 0.2, 0.1, // class 0
		0.2, 0.9, 0.3, 0.1, // class 1
		0.4, 0.0, 0.3, 0.6, // class 2
	}
	out := make([]int32, 4)
	require.NoError(t, Argmax(matrix, out, 3, 4, 0.5))
	assert.Equal(t, []int32{0, 1, 0, 2}, out)
}

func TestArgmaxScoresBelowFloor(t *testing.T) {
	out := make([]int32, 1)
	require.NoError(t, Argmax([]float32{-3, -2}, out, 2, 1, -10))
	assert.Equal(t, []int32{Background}, out)
}

func TestArgmaxSizeMismatch(t *testing.T) {
	assert.ErrorIs(t, Argmax(make([]float32, 5), make([]int32, 2), 3, 2, 0), ErrBufferSizeMismatch)
	assert.ErrorIs(t, Argmax(make([]float32, 6), make([]int32, 3), 3, 2, 0), ErrBufferSizeMismatch)
	assert.ErrorIs(t, Argmax(nil, nil, 0, 0, 0), ErrBufferSizeMismatch)
}

func TestClassesToColor(t *testing.T) {
	table := []byte{
		10, 20, 30, 255, // class 0 with a non-zero alpha
		1, 2, 3, 128,
		4, 5, 6, 200,
	}
	classes := []int32{0, 1, 2, 0}
	out := make([]byte, len(classes)*ColorWidth)
	require.NoError(t, ClassesToColor(classes, table, out, len(classes)))

	want := []byte{
		10, 20, 30, 0,
		1, 2, 3, 128,
		4, 5, 6, 200,
		10, 20, 30, 0,
	}
	if diff := cmp.Diff(want, out); diff != "" {
		t.Errorf("ClassesToColor mismatch (-want +got):\n%s", diff)
	}
}

func TestClassesToColorOutOfRange(t *testing.T) {
	table := []byte{0, 0, 0, 0, 1, 1, 1, 1}
	out := make([]byte, 8)

	err := ClassesToColor([]int32{1, 2}, table, out, 2)
	assert.ErrorIs(t, err, ErrClassIndexOutOfRange)
	assert.Equal(t, make([]byte, 8), out, "failed call must not write")

	err = ClassesToColor([]int32{-1, 0}, table, out, 2)
	assert.ErrorIs(t, err, ErrClassIndexOutOfRange)
}

func TestClassesToColorSizeMismatch(t *testing.T) {
	table := []byte{0, 0, 0, 0}
	assert.ErrorIs(t, ClassesToColor([]int32{0}, table, make([]byte, 3), 1), ErrBufferSizeMismatch)
	assert.ErrorIs(t, ClassesToColor([]int32{0}, table[:3], make([]byte, 4), 1), ErrBufferSizeMismatch)
	assert.ErrorIs(t, ClassesToColor([]int32{0, 0}, table, make([]byte, 4), 1), ErrBufferSizeMismatch)
}

func TestNewColorTable(t *testing.T) {
	table := NewColorTable([]color.RGBA{
		{R: 0, G: 0, B: 0, A: 255},
		{R: 255, G: 0, B: 0, A: 255},
	}, 180)
	assert.Equal(t, 2, table.NumClasses())
	assert.Equal(t, ColorTable{0, 0, 0, 180, 255, 0, 0, 180}, table)

	out := make([]byte, 8)
	require.NoError(t, ClassesToColor([]int32{0, 1}, table, out, 2))
	assert.Equal(t, []byte{0, 0, 0, 0, 255, 0, 0, 180}, out)
}

func TestConfidenceToColor(t *testing.T) {
	values := []float32{0, 0.5, 1, 2, -1}
	out := make([]byte, len(values)*ColorWidth)
	require.NoError(t, ConfidenceToColor(values, color.RGBA{R: 255, G: 101, B: 3}, 200, out))

	want := []byte{
		0, 0, 0, 0,
		127, 50, 1, 100,
		255, 101, 3, 200,
		255, 202, 6, 255,
		0, 0, 0, 0,
	}
	assert.Equal(t, want, out)
}

func TestConfidenceToColorSizeMismatch(t *testing.T) {
	err := ConfidenceToColor([]float32{1}, color.RGBA{}, 0, make([]byte, 3))
	assert.ErrorIs(t, err, ErrBufferSizeMismatch)
}

func BenchmarkArgmax(b *testing.B) {
	const classes, n = 21, 512 * 512
	matrix := make([]float32, classes*n)
	for i := range matrix {
		matrix[i] = float32(i%97) / 97
	}
	out := make([]int32, n)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = Argmax(matrix, out, classes, n, 0.3)
	}
}

func BenchmarkFuzzyThreshold(b *testing.B) {
	in := make([]float32, 512*512)
	for i := range in {
		in[i] = float32(i%100) / 100
	}
	out := make([]float32, len(in))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = FuzzyThreshold(in, out, 0.7, 0.3)
	}
}
