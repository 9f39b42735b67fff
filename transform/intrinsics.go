// Package transform models the zero-distortion pinhole camera used by the
// capture pipeline and fixes the bounding-rectangle coordinate contract.
package transform

import (
	"encoding/json"
	"io"
	"math"
	"os"

	"github.com/pkg/errors"
	"go.viam.com/utils"
)

// ErrNoIntrinsics is when a camera does not have intrinsics parameters.
var ErrNoIntrinsics = errors.New("camera intrinsic parameters are not available")

// CameraIntrinsics holds the parameters for perspective projection between the
// 2D image plane and 3D camera space.
type CameraIntrinsics struct {
	Width  int     `json:"width_px"`
	Height int     `json:"height_px"`
	Fx     float64 `json:"fx"`
	Fy     float64 `json:"fy"`
	Ppx    float64 `json:"ppx"`
	Ppy    float64 `json:"ppy"`
}

// IntrinsicsForFrame derives per-frame intrinsics from image dimensions under
// the assumed zero-distortion lens model: focal length equals the image width,
// principal point is the image center. Callers must re-derive these for every
// frame rather than cache them across differing resolutions.
func IntrinsicsForFrame(width, height int) *CameraIntrinsics {
	return &CameraIntrinsics{
		Width:  width,
		Height: height,
		Fx:     float64(width),
		Fy:     float64(width),
		Ppx:    float64(width) / 2,
		Ppy:    float64(height) / 2,
	}
}

// CheckValid checks if the intrinsics fields are usable.
func (params *CameraIntrinsics) CheckValid() error {
	if params == nil {
		return errors.Wrap(ErrNoIntrinsics, "intrinsics do not exist")
	}
	if params.Width <= 0 || params.Height <= 0 {
		return errors.Wrapf(ErrNoIntrinsics, "invalid size (%d, %d)", params.Width, params.Height)
	}
	if params.Fx <= 0 || params.Fy <= 0 {
		return errors.Wrapf(ErrNoIntrinsics, "invalid focal length (%f, %f)", params.Fx, params.Fy)
	}
	return nil
}

// PixelToPoint transforms a pixel with depth to a 3D point in camera space.
func (params *CameraIntrinsics) PixelToPoint(x, y, z float64) (float64, float64, float64) {
	xm := (x - params.Ppx) / params.Fx * z
	ym := (y - params.Ppy) / params.Fy * z
	return xm, ym, z
}

// PointToPixel projects a 3D camera-space point to a pixel in the image plane.
// A point at zero depth projects to (-1,-1) so bounds cropping filters it out.
func (params *CameraIntrinsics) PointToPixel(x, y, z float64) (float64, float64) {
	if z != 0. {
		return (x/z)*params.Fx + params.Ppx, (y/z)*params.Fy + params.Ppy
	}
	return -1.0, -1.0
}

// ScaleTo rescales intrinsics delivered at a calibration reference width to the
// working resolution, preserving aspect ratio.
func (params *CameraIntrinsics) ScaleTo(width int) *CameraIntrinsics {
	scale := float64(width) / float64(params.Width)
	return &CameraIntrinsics{
		Width:  width,
		Height: int(math.Round(float64(params.Height) * scale)),
		Fx:     params.Fx * scale,
		Fy:     params.Fy * scale,
		Ppx:    params.Ppx * scale,
		Ppy:    params.Ppy * scale,
	}
}

// NewCameraIntrinsicsFromJSONFile reads intrinsics from a JSON calibration file.
func NewCameraIntrinsicsFromJSONFile(jsonPath string) (*CameraIntrinsics, error) {
	//nolint:gosec
	jsonFile, err := os.Open(jsonPath)
	if err != nil {
		return nil, errors.Wrap(err, "error opening JSON file")
	}
	defer utils.UncheckedErrorFunc(jsonFile.Close)
	byteValue, err := io.ReadAll(jsonFile)
	if err != nil {
		return nil, errors.Wrap(err, "error reading JSON data")
	}
	intrinsics := &CameraIntrinsics{}
	if err := json.Unmarshal(byteValue, intrinsics); err != nil {
		return nil, errors.Wrap(err, "error parsing JSON string")
	}
	return intrinsics, nil
}
