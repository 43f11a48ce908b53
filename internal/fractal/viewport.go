package fractal

import (
	"errors"
	"image"
	"math"
)

var ErrEmptyRect = errors.New("zoom rectangle is empty")

// Viewport is the visible rectangle of the complex plane. ScaleX/ScaleY is
// the corner drawn at pixel (0,0); rows grow towards larger imaginary parts.
type Viewport struct {
	ScaleX     float64 `json:"scaleX"`
	ScaleY     float64 `json:"scaleY"`
	ScaleWidth float64 `json:"scaleWidth"`
}

// ScaleHeight keeps the pixel aspect ratio.
func (v Viewport) ScaleHeight(pixelWidth, pixelHeight int) float64 {
	return v.ScaleWidth * float64(pixelHeight) / float64(pixelWidth)
}

// At maps a (possibly fractional) pixel coordinate onto the plane.
func (v Viewport) At(col, row float64, pixelWidth, pixelHeight int) (x, y float64) {
	x = v.ScaleX + col/float64(pixelWidth)*v.ScaleWidth
	y = v.ScaleY + row/float64(pixelHeight)*v.ScaleHeight(pixelWidth, pixelHeight)
	return x, y
}

func (v Viewport) Valid() bool {
	finite := func(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }
	return finite(v.ScaleX) && finite(v.ScaleY) && finite(v.ScaleWidth) && v.ScaleWidth > 0
}

// Zoom returns the viewport whose top-left corner and width match the pixel
// rectangle r of a pixelWidth x pixelHeight image. The rectangle is clipped
// to the image; its height only matters for the corner since the aspect
// ratio follows the image.
func (v Viewport) Zoom(r image.Rectangle, pixelWidth, pixelHeight int) (Viewport, error) {
	r = r.Canon().Intersect(image.Rect(0, 0, pixelWidth, pixelHeight))
	if r.Dx() == 0 || r.Dy() == 0 {
		return v, ErrEmptyRect
	}
	x, y := v.At(float64(r.Min.X), float64(r.Min.Y), pixelWidth, pixelHeight)
	return Viewport{
		ScaleX:     x,
		ScaleY:     y,
		ScaleWidth: v.ScaleWidth * float64(r.Dx()) / float64(pixelWidth),
	}, nil
}

// Centered returns the viewport of the given width centred on (cx, cy) for a
// pixelWidth x pixelHeight image.
func Centered(cx, cy, width float64, pixelWidth, pixelHeight int) Viewport {
	v := Viewport{ScaleWidth: width}
	v.ScaleX = cx - width/2
	v.ScaleY = cy - v.ScaleHeight(pixelWidth, pixelHeight)/2
	return v
}
