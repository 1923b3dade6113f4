package pose

import "gonum.org/v1/gonum/spatial/r3"

// Intrinsics describes a pinhole camera without lens distortion.
type Intrinsics struct {
	// FocalLength in pixels, shared by both axes.
	FocalLength float64 `json:"focal_length" yaml:"focal_length"`
	// CenterX is the principal point x coordinate in pixels.
	CenterX float64 `json:"center_x" yaml:"center_x"`
	// CenterY is the principal point y coordinate in pixels.
	CenterY float64 `json:"center_y" yaml:"center_y"`
}

// Project maps a camera-frame point to pixel coordinates.
func (in Intrinsics) Project(p r3.Vec) (u, v float64) {
	return in.FocalLength*p.X/p.Z + in.CenterX, in.FocalLength*p.Y/p.Z + in.CenterY
}

// normalize maps pixel coordinates to the z=1 image plane.
func (in Intrinsics) normalize(u, v float64) (x, y float64) {
	return (u - in.CenterX) / in.FocalLength, (v - in.CenterY) / in.FocalLength
}
