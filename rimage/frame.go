// Package rimage holds the image-side types of the capture pipeline: the
// caller-owned color frame, the depth map sampler, and diagnostic overlay drawing.
package rimage

import (
	"image"
	"image/color"

	"github.com/pkg/errors"
)

// PixelOrder is the channel layout of a frame buffer.
type PixelOrder int

const (
	// BGRA is 4 bytes per pixel, blue first.
	BGRA PixelOrder = iota
	// BGR is 3 bytes per pixel, blue first.
	BGR
)

func (po PixelOrder) bytesPerPixel() int {
	if po == BGR {
		return 3
	}
	return 4
}

// Frame wraps a caller-owned color buffer for the duration of one pipeline call.
// The frame never retains the buffer past the call; annotations are written back
// in place.
type Frame struct {
	data          []byte
	width, height int
	stride        int
	order         PixelOrder
}

// NewFrame wraps the given buffer. stride is in bytes and may exceed
// width*bytesPerPixel for row-padded buffers.
func NewFrame(data []byte, width, height, stride int, order PixelOrder) (*Frame, error) {
	bpp := order.bytesPerPixel()
	if width <= 0 || height <= 0 {
		return nil, errors.Errorf("invalid frame dimensions (%d, %d)", width, height)
	}
	if stride < width*bpp {
		return nil, errors.Errorf("frame stride %d too small for width %d", stride, width)
	}
	if len(data) < (height-1)*stride+width*bpp {
		return nil, errors.Errorf("frame buffer has %d bytes, need at least %d", len(data), (height-1)*stride+width*bpp)
	}
	return &Frame{data: data, width: width, height: height, stride: stride, order: order}, nil
}

// Width returns the frame width in pixels.
func (f *Frame) Width() int { return f.width }

// Height returns the frame height in pixels.
func (f *Frame) Height() int { return f.height }

// Bounds implements image.Image.
func (f *Frame) Bounds() image.Rectangle { return image.Rect(0, 0, f.width, f.height) }

// ColorModel implements image.Image.
func (f *Frame) ColorModel() color.Model { return color.RGBAModel }

// In reports whether the pixel coordinate lies inside the frame.
func (f *Frame) In(x, y int) bool {
	return x >= 0 && y >= 0 && x < f.width && y < f.height
}

// At implements image.Image.
func (f *Frame) At(x, y int) color.Color {
	if !f.In(x, y) {
		return color.RGBA{}
	}
	o := y*f.stride + x*f.order.bytesPerPixel()
	return color.RGBA{R: f.data[o+2], G: f.data[o+1], B: f.data[o], A: 255}
}

// SetXY writes a color back into the underlying buffer.
func (f *Frame) SetXY(x, y int, c color.RGBA) {
	if !f.In(x, y) {
		return
	}
	o := y*f.stride + x*f.order.bytesPerPixel()
	f.data[o] = c.B
	f.data[o+1] = c.G
	f.data[o+2] = c.R
	if f.order == BGRA {
		f.data[o+3] = c.A
	}
}
