package pointcloud

import (
	"image/color"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/faceforge/facescan/rimage"
	"github.com/faceforge/facescan/transform"
)

// Default capture depth window, in meters. Samples outside it are sensor noise.
const (
	DefaultMinDepth = 0.1
	DefaultMaxDepth = 0.5
)

// BackprojectDepth converts a depth map into a point cloud using the given
// intrinsics, keeping only samples inside (minDepth, maxDepth). The intrinsics
// must describe the depth map's own resolution. If frame is non-nil its colors
// are sampled onto the points.
func BackprojectDepth(
	dm *rimage.DepthMap,
	intr *transform.CameraIntrinsics,
	minDepth, maxDepth float64,
	frame *rimage.Frame,
) (*PointCloud, error) {
	if err := intr.CheckValid(); err != nil {
		return nil, err
	}
	if intr.Width != dm.Width() || intr.Height != dm.Height() {
		return nil, errors.Errorf("intrinsics (%d,%d) do not match depth map (%d,%d)",
			intr.Width, intr.Height, dm.Width(), dm.Height())
	}
	pc := NewWithPrealloc(dm.Width() * dm.Height() / 4)
	for y := 0; y < dm.Height(); y++ {
		for x := 0; x < dm.Width(); x++ {
			z := dm.DepthAt(x, y)
			if z <= minDepth || z >= maxDepth {
				continue
			}
			px, py, pz := intr.PixelToPoint(float64(x), float64(y), z)
			p := r3.Vector{X: px, Y: py, Z: pz}
			if frame != nil {
				cx := x * frame.Width() / dm.Width()
				cy := y * frame.Height() / dm.Height()
				r, g, b, _ := frame.At(cx, cy).RGBA()
				pc.AppendColored(p, color.NRGBA{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(b >> 8), A: 255})
			} else {
				pc.Append(p)
			}
		}
	}
	return pc, nil
}
