package pose

import "github.com/pkg/errors"

// KeypointOrder maps the semantic keypoint order of a reference model to the
// channel order a pose network emits: position i of the reference model is
// read from network channel order[i].
//
// The table belongs to a specific trained model. When the network is retrained
// with a different channel layout, add a new named order next to the existing
// ones instead of editing them.
type KeypointOrder []int

// UnityToNNLayer is the channel layout of the 14-keypoint rigid body network
// (layout v1): the network was trained with its keypoints shuffled relative to
// the reference model authored in the 3D scene.
var UnityToNNLayer = KeypointOrder{0, 1, 5, 2, 6, 3, 7, 4, 11, 8, 12, 9, 13, 10}

// Validate checks that the order is a permutation of [0, len).
func (o KeypointOrder) Validate() error {
	seen := make([]bool, len(o))
	for i, idx := range o {
		if idx < 0 || idx >= len(o) {
			return errors.Errorf("keypoint order: entry %d is %d, outside [0, %d)", i, idx, len(o))
		}
		if seen[idx] {
			return errors.Errorf("keypoint order: index %d appears twice", idx)
		}
		seen[idx] = true
	}
	return nil
}

// Inverse returns the order that undoes o.
func (o KeypointOrder) Inverse() KeypointOrder {
	inv := make(KeypointOrder, len(o))
	for i, idx := range o {
		inv[idx] = i
	}
	return inv
}

// Apply reorders points of dims coordinates each so that out[i] = points[o[i]].
//
// Arguments:
//   - points: Flat coordinates, len(o)*dims.
//   - dims: Coordinates per point (2 for image keypoints, 3 for model points).
//
// Returns:
//   - A new slice; points is not modified.
//   - ErrBufferSizeMismatch if points does not hold exactly len(o) points.
func (o KeypointOrder) Apply(points []float64, dims int) ([]float64, error) {
	if dims < 1 || len(points) != len(o)*dims {
		return nil, errors.Wrapf(ErrBufferSizeMismatch, "keypoint order: %d coordinates for %d points of %d dims", len(points), len(o), dims)
	}
	if err := o.Validate(); err != nil {
		return nil, err
	}
	out := make([]float64, len(points))
	for i, src := range o {
		copy(out[i*dims:(i+1)*dims], points[src*dims:(src+1)*dims])
	}
	return out, nil
}
