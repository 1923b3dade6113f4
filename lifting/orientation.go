package lifting

import (
	"math"
	"sync"

	"gonum.org/v1/gonum/spatial/r2"
)

// flipOrder swaps the two ends of the body. Keypoints past the first five
// keep their position.
var flipOrder = []int{2, 3, 0, 1, 4}

// direction points from the midpoint of keypoints 0 and 1 to the midpoint of
// keypoints 2 and 3.
func direction(p *Pose) (r2.Vec, bool) {
	if len(p.Keypoints) < 4 {
		return r2.Vec{}, false
	}
	k := p.Keypoints
	left := r2.Scale(0.5, r2.Add(r2.Vec{X: k[0].X, Y: k[0].Y}, r2.Vec{X: k[1].X, Y: k[1].Y}))
	right := r2.Scale(0.5, r2.Add(r2.Vec{X: k[2].X, Y: k[2].Y}, r2.Vec{X: k[3].X, Y: k[3].Y}))
	return r2.Sub(right, left), true
}

// angleDegrees returns the unsigned angle between a and b, or 0 when either is
// the zero vector.
func angleDegrees(a, b r2.Vec) float64 {
	if r2.Norm(a) == 0 || r2.Norm(b) == 0 {
		return 0
	}
	return math.Atan2(math.Abs(r2.Cross(a, b)), r2.Dot(a, b)) * 180 / math.Pi
}

// OrientationManager keeps the keypoints of a symmetric rigid body in a stable
// order across frames of one stream. It is safe for concurrent use, though
// frames should arrive in order.
type OrientationManager struct {
	mu           sync.Mutex
	flipDegrees  float64
	reference    r2.Vec // direction of the last oriented pose
	hasReference bool
	previousFlip bool
}

// NewOrientationManager returns a manager that flips poses turning more than
// flipDegrees from the previous frame.
func NewOrientationManager(flipDegrees float64) *OrientationManager {
	return &OrientationManager{flipDegrees: flipDegrees}
}

// SetThreshold changes the flip threshold.
func (m *OrientationManager) SetThreshold(flipDegrees float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flipDegrees = flipDegrees
}

// Orient compares p with the previously oriented pose and returns p, or a copy
// of p with its ends swapped when its direction turned past the threshold. The
// direction of the returned pose becomes the reference for the next frame; p
// itself is not retained.
func (m *OrientationManager) Orient(p *Pose) *Pose {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := direction(p)
	if !ok {
		return p
	}
	if !m.hasReference || angleDegrees(m.reference, current) <= m.flipDegrees {
		m.reference = current
		m.hasReference = true
		m.previousFlip = false
		return p
	}

	flipped := &Pose{
		Keypoints: make([]Keypoint, len(p.Keypoints)),
		Score:     p.Score,
		Timestamp: p.Timestamp,
	}
	copy(flipped.Keypoints, p.Keypoints)
	for dst, src := range flipOrder {
		if src < len(p.Keypoints) {
			flipped.Keypoints[dst] = p.Keypoints[src]
		}
	}
	m.reference, _ = direction(flipped)
	m.previousFlip = true
	return flipped
}

// Flipped reports whether the last oriented pose was flipped.
func (m *OrientationManager) Flipped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.previousFlip
}

// Reset forgets the previous pose, for example after the body leaves the frame.
func (m *OrientationManager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reference = r2.Vec{}
	m.hasReference = false
	m.previousFlip = false
}
