package segmentation

import (
	"image"
)

// Mask is a binary mask for one class.
type Mask struct {
	Label  string
	Width  int
	Height int
	// Values holds 1 for pixels in the class and 0 elsewhere, row-major.
	Values []float32
	// Area is the fraction of pixels covered.
	Area float64
}

// Mask returns the binary mask of class, or nil when the covered fraction of
// the frame is below areaThreshold.
//
// Arguments:
//   - class: The class to mask.
//   - clip: Scores strictly above clip are in the mask.
//   - areaThreshold: Minimum covered fraction in [0, 1]; filters small spurious regions.
func (r *Result) Mask(class Class, clip float32, areaThreshold float64) (*Mask, error) {
	values, err := r.ConfidenceScores(class, clip, clip)
	if err != nil {
		return nil, err
	}
	var covered float64
	for _, v := range values {
		covered += float64(v)
	}
	area := covered / float64(len(values))
	if len(values) == 0 || area < areaThreshold {
		r.log.Debug().
			Str("class", class.Label).
			Float64("area", area).
			Float64("area_threshold", areaThreshold).
			Msg("mask below area threshold")
		return nil, nil
	}
	return &Mask{
		Label:  class.Label,
		Width:  r.Width,
		Height: r.Height,
		Values: values,
		Area:   area,
	}, nil
}

// Masks returns the masks of every class that pass areaThreshold, in class
// order.
func (r *Result) Masks(confidence float32, areaThreshold float64) ([]*Mask, error) {
	var masks []*Mask
	for _, c := range r.Classes {
		m, err := r.Mask(c, confidence, areaThreshold)
		if err != nil {
			return nil, err
		}
		if m != nil {
			masks = append(masks, m)
		}
	}
	return masks, nil
}

// Image returns the mask as a grayscale image, 255 inside and 0 outside.
func (m *Mask) Image() *image.Gray {
	img := image.NewGray(image.Rect(0, 0, m.Width, m.Height))
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			if m.Values[y*m.Width+x] > 0 {
				img.Pix[y*img.Stride+x] = 255
			}
		}
	}
	return img
}
