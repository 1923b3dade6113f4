// Package lifting turns 2D rigid body keypoint detections into a 3D pose of
// the body's reference model, frame by frame.
package lifting

import "time"

// Keypoint is one detected 2D keypoint in image pixels.
type Keypoint struct {
	// Index is the keypoint's channel in the pose network.
	Index int     `json:"index"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Score float64 `json:"score"`
}

// Pose is one 2D detection of the rigid body.
type Pose struct {
	Keypoints []Keypoint `json:"keypoints"`
	Score     float64    `json:"score"`
	// Timestamp of the frame. Zero means the smoother falls back to its
	// configured frequency.
	Timestamp time.Time `json:"timestamp"`
}

// Options controls 2D filtering and 3D lifting.
type Options struct {
	// KeypointThreshold is the score a keypoint must exceed to count towards
	// RequiredKeypointsMeetingThreshold.
	KeypointThreshold float64 `json:"keypoint_threshold" yaml:"keypoint_threshold"`
	// RequiredKeypointsMeetingThreshold is the number of confident keypoints a
	// pose needs to be kept.
	RequiredKeypointsMeetingThreshold int `json:"required_keypoints_meeting_threshold" yaml:"required_keypoints_meeting_threshold"`
	// ExcludedKeypointIndices are keypoint indices left out of the 3D solve.
	ExcludedKeypointIndices []int `json:"excluded_keypoint_indices" yaml:"excluded_keypoint_indices"`
	// OrientationFlipAngleThreshold enables orientation tracking: when the pose
	// direction turns by more than this many degrees between frames, the
	// keypoints are swapped end for end. Nil disables tracking.
	OrientationFlipAngleThreshold *float64 `json:"orientation_flip_angle_threshold,omitempty" yaml:"orientation_flip_angle_threshold,omitempty"`
	// Smoothing enables filtering of keypoint positions. Nil disables it.
	Smoothing *SmoothingOptions `json:"smoothing,omitempty" yaml:"smoothing,omitempty"`
}

// DefaultOptions returns options requiring three keypoints above 0.6.
func DefaultOptions() Options {
	return Options{
		KeypointThreshold:                 0.6,
		RequiredKeypointsMeetingThreshold: 3,
	}
}

func (o Options) excluded(index int) bool {
	for _, e := range o.ExcludedKeypointIndices {
		if e == index {
			return true
		}
	}
	return false
}
