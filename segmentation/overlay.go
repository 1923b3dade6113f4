package segmentation

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/nfnt/resize"
	"github.com/nvr-ai/go-vision/arrayops"
	"github.com/pkg/errors"
)

// NRGBA wraps a row-major buffer of width*height straight-alpha RGBA pixels, as
// written by ClassColors and ConfidenceColors, as an image without copying.
func NRGBA(buf []byte, width, height int) (*image.NRGBA, error) {
	if width < 0 || height < 0 || len(buf) != width*height*arrayops.ColorWidth {
		return nil, errors.Wrapf(arrayops.ErrBufferSizeMismatch, "%d bytes for %dx%d RGBA", len(buf), width, height)
	}
	return &image.NRGBA{
		Pix:    buf,
		Stride: width * arrayops.ColorWidth,
		Rect:   image.Rect(0, 0, width, height),
	}, nil
}

// ResizeNRGBA scales a colour overlay of width*height pixels to
// dstWidth*dstHeight, usually the size of the frame the model saw.
//
// Arguments:
//   - buf: Row-major straight-alpha RGBA bytes.
//   - width, height: Size of buf.
//   - dstWidth, dstHeight: Output size.
//   - interp: Sampling method; resize.NearestNeighbor keeps class edges hard.
//
// Returns:
//   - *image.NRGBA: The scaled overlay.
//
// @example
// overlay, _ := res.ClassColors(0.5, 180)
// scaled, err := segmentation.ResizeNRGBA(overlay, res.Width, res.Height, 1920, 1080, resize.NearestNeighbor)
func ResizeNRGBA(buf []byte, width, height, dstWidth, dstHeight int, interp resize.InterpolationFunction) (*image.NRGBA, error) {
	src, err := NRGBA(buf, width, height)
	if err != nil {
		return nil, err
	}
	if dstWidth <= 0 || dstHeight <= 0 {
		return nil, errors.Errorf("resize: invalid target size %dx%d", dstWidth, dstHeight)
	}
	scaled := resize.Resize(uint(dstWidth), uint(dstHeight), src, interp)
	if nrgba, ok := scaled.(*image.NRGBA); ok {
		return nrgba, nil
	}
	// Filtering kernels return premultiplied *image.RGBA.
	out := image.NewNRGBA(image.Rect(0, 0, dstWidth, dstHeight))
	draw.Draw(out, out.Bounds(), scaled, scaled.Bounds().Min, draw.Src)
	return out, nil
}

// Blend draws overlay over frame at the given opacity in [0, 1], scaling the
// overlay to the frame size first. Pixels with zero alpha leave the frame
// untouched.
func Blend(frame image.Image, overlay *image.NRGBA, opacity float64) *image.RGBA {
	bounds := frame.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(out, out.Bounds(), frame, bounds.Min, draw.Src)

	var src image.Image = overlay
	if overlay.Bounds().Dx() != bounds.Dx() || overlay.Bounds().Dy() != bounds.Dy() {
		src = resize.Resize(uint(bounds.Dx()), uint(bounds.Dy()), overlay, resize.NearestNeighbor)
	}

	if opacity < 0 {
		opacity = 0
	} else if opacity > 1 {
		opacity = 1
	}
	mask := image.NewUniform(color.Alpha{A: uint8(opacity * 255)})
	draw.DrawMask(out, out.Bounds(), src, src.Bounds().Min, mask, image.Point{}, draw.Over)
	return out
}
