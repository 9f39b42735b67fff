package transform

import (
	"image"
	"math"
)

// The pipeline consumes face bounding boxes as pixel rectangles with a top-left
// origin, matching image.Rectangle. Capture APIs that report normalized
// bottom-left-origin rectangles must be converted through
// PixelRectFromNormalized; that conversion flips the Y axis and nothing else.
// Width and height are never swapped.

// NormalizedRect is a bounding box with coordinates in [0,1], origin at the
// bottom-left corner of the image, as vision frameworks commonly report them.
type NormalizedRect struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// PixelRectFromNormalized converts a normalized bottom-left-origin rectangle to
// a pixel rectangle in top-left-origin image space.
func PixelRectFromNormalized(nr NormalizedRect, imgWidth, imgHeight int) image.Rectangle {
	w := float64(imgWidth)
	h := float64(imgHeight)
	x0 := nr.X * w
	y0 := (1 - nr.Y - nr.Height) * h
	return image.Rect(
		int(math.Round(x0)),
		int(math.Round(y0)),
		int(math.Round(x0+nr.Width*w)),
		int(math.Round(y0+nr.Height*h)),
	)
}
