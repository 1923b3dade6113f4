package pose

import "github.com/pkg/errors"

var (
	// ErrDegenerateCorrespondences is returned when the correspondences cannot
	// determine a unique rigid transform: fewer than MinCorrespondences points,
	// collinear or coincident points, non-finite input, or a solve that does not
	// converge to a pose with every point in front of the camera.
	ErrDegenerateCorrespondences = errors.New("insufficient or degenerate correspondences")
	// ErrBufferSizeMismatch is returned when the coordinate slices, point count
	// and keypoint order disagree in length.
	ErrBufferSizeMismatch = errors.New("buffer size mismatch")
)
