package rimage

import (
	"encoding/binary"
	"image"
	"image/color"
	"math"

	"github.com/pkg/errors"
)

// DepthEncoding is the per-element storage format of a depth buffer.
type DepthEncoding int

const (
	// DepthFloat32 is 4-byte little-endian IEEE 754 per pixel.
	DepthFloat32 DepthEncoding = iota
	// DepthUint16 is 2-byte little-endian unsigned per pixel.
	DepthUint16
)

func (de DepthEncoding) elementSize() int {
	if de == DepthUint16 {
		return 2
	}
	return 4
}

// DepthMap wraps a depth buffer with its own resolution and byte stride. The
// depth buffer is never assumed to share resolution or stride with the color
// frame it was captured alongside.
type DepthMap struct {
	data          []byte
	width, height int
	stride        int
	encoding      DepthEncoding
}

// NewDepthMap wraps the given buffer. stride is in bytes.
func NewDepthMap(data []byte, width, height, stride int, encoding DepthEncoding) (*DepthMap, error) {
	if width <= 0 || height <= 0 {
		return nil, errors.Errorf("invalid depth map dimensions (%d, %d)", width, height)
	}
	if stride < width*encoding.elementSize() {
		return nil, errors.Errorf("depth stride %d too small for width %d", stride, width)
	}
	return &DepthMap{data: data, width: width, height: height, stride: stride, encoding: encoding}, nil
}

// Width returns the depth map width in pixels.
func (dm *DepthMap) Width() int {
	if dm == nil {
		return 0
	}
	return dm.width
}

// Height returns the depth map height in pixels.
func (dm *DepthMap) Height() int {
	if dm == nil {
		return 0
	}
	return dm.height
}

// DepthAt returns the depth value at a coordinate in the depth map's own pixel
// space. It is total: a nil map, an out-of-bounds coordinate, a truncated
// buffer, or a non-finite stored value all yield 0.
func (dm *DepthMap) DepthAt(x, y int) float64 {
	if dm == nil || x < 0 || y < 0 || x >= dm.width || y >= dm.height {
		return 0
	}
	elem := dm.encoding.elementSize()
	offset := y*dm.stride + x*elem
	if offset < 0 || offset+elem > len(dm.data) {
		return 0
	}
	var v float64
	switch dm.encoding {
	case DepthUint16:
		v = float64(binary.LittleEndian.Uint16(dm.data[offset:]))
	case DepthFloat32:
		fallthrough
	default:
		v = float64(math.Float32frombits(binary.LittleEndian.Uint32(dm.data[offset:])))
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// Sample resolves a depth value for a pixel coordinate given in color-image
// space, rescaling to the depth map's own resolution first. The scale maps the
// last color column and row onto the last depth column and row, so edge pixels
// stay sampleable. Like DepthAt it is total and returns 0 rather than failing.
func (dm *DepthMap) Sample(colorX, colorY, colorWidth, colorHeight int) float64 {
	if dm == nil || colorWidth <= 0 || colorHeight <= 0 {
		return 0
	}
	var dx, dy int
	if colorWidth > 1 {
		dx = int(math.Round(float64(colorX) * float64(dm.width-1) / float64(colorWidth-1)))
	}
	if colorHeight > 1 {
		dy = int(math.Round(float64(colorY) * float64(dm.height-1) / float64(colorHeight-1)))
	}
	return dm.DepthAt(dx, dy)
}

// MinMax returns the smallest and largest finite positive depth values. ok is
// false if the map holds no usable values.
func (dm *DepthMap) MinMax() (minDepth, maxDepth float64, ok bool) {
	if dm == nil {
		return 0, 0, false
	}
	minDepth = math.Inf(1)
	maxDepth = math.Inf(-1)
	for y := 0; y < dm.height; y++ {
		for x := 0; x < dm.width; x++ {
			v := dm.DepthAt(x, y)
			if v <= 0 {
				continue
			}
			minDepth = math.Min(minDepth, v)
			maxDepth = math.Max(maxDepth, v)
			ok = true
		}
	}
	if !ok {
		return 0, 0, false
	}
	return minDepth, maxDepth, true
}

// Gray8 normalizes the full depth buffer into an 8-bit intensity image by a
// global min/max pass and a linear remap. Diagnostic only, not on the
// pose-estimation path.
func (dm *DepthMap) Gray8() *image.Gray {
	img := image.NewGray(image.Rect(0, 0, dm.Width(), dm.Height()))
	minDepth, maxDepth, ok := dm.MinMax()
	if !ok {
		return img
	}
	span := maxDepth - minDepth
	for y := 0; y < dm.height; y++ {
		for x := 0; x < dm.width; x++ {
			v := dm.DepthAt(x, y)
			if v <= 0 {
				continue
			}
			g := uint8(255)
			if span > 0 {
				g = uint8(math.Round((v - minDepth) / span * 255))
			}
			img.SetGray(x, y, color.Gray{Y: g})
		}
	}
	return img
}
