package face

import (
	"encoding/binary"
	"image"
	"math"
	"testing"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"github.com/faceforge/facescan/pointcloud"
	"github.com/faceforge/facescan/rimage"
)

func testFrame(t *testing.T, w, h int) *rimage.Frame {
	t.Helper()
	frame, err := rimage.NewFrame(make([]byte, w*h*4), w, h, w*4, rimage.BGRA)
	test.That(t, err, test.ShouldBeNil)
	return frame
}

// depth map with a mild gradient so the six sampled depths have spread
func testDepth(t *testing.T, w, h int) *rimage.DepthMap {
	t.Helper()
	buf := make([]byte, w*h*4)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			d := float32(0.3 + 0.001*float64(x) + 0.0005*float64(y))
			binary.LittleEndian.PutUint32(buf[(y*w+x)*4:], math.Float32bits(d))
		}
	}
	dm, err := rimage.NewDepthMap(buf, w, h, w*4, rimage.DepthFloat32)
	test.That(t, err, test.ShouldBeNil)
	return dm
}

func TestProcessFrame(t *testing.T) {
	logger := golog.NewTestLogger(t)
	pl := NewPipeline(NewDetector(logger), logger)

	frame := testFrame(t, 160, 120)
	depth := testDepth(t, 160, 120)
	box := image.Rect(40, 20, 120, 100)

	records, err := pl.ProcessFrame(frame, []image.Rectangle{box}, depth)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, records, test.ShouldHaveLength, 1)

	rec := records[0]
	test.That(t, rec.Landmarks.Points(), test.ShouldHaveLength, NumLandmarks)
	for _, d := range rec.Depths {
		test.That(t, d, test.ShouldBeGreaterThan, 0.0)
	}
	// object points are backprojections of the landmarks, so the recovered pose
	// is near-identity
	test.That(t, rec.Pose, test.ShouldNotBeNil)
	test.That(t, math.Abs(rec.Pose.Euler.Pitch), test.ShouldBeLessThan, 0.1)
	test.That(t, math.Abs(rec.Pose.Euler.Yaw), test.ShouldBeLessThan, 0.1)

	// the face box border is stroked along its top edge
	borderLit := false
	for x := box.Min.X; x <= box.Max.X && !borderLit; x++ {
		r, g, b, _ := frame.At(x, box.Min.Y).RGBA()
		borderLit = r != 0 || g != 0 || b != 0
	}
	test.That(t, borderLit, test.ShouldBeTrue)

	// the frame was annotated in place
	annotated := false
	for y := 0; y < frame.Height() && !annotated; y++ {
		for x := 0; x < frame.Width(); x++ {
			r, g, b, _ := frame.At(x, y).RGBA()
			if r != 0 || g != 0 || b != 0 {
				annotated = true
				break
			}
		}
	}
	test.That(t, annotated, test.ShouldBeTrue)
}

func TestProcessFrameIsolatesBadFaces(t *testing.T) {
	logger := golog.NewTestLogger(t)
	pl := NewPipeline(NewDetector(logger), logger)

	frame := testFrame(t, 160, 120)
	depth := testDepth(t, 160, 120)

	// a zero-area box is skipped, the valid face still comes back
	records, err := pl.ProcessFrame(frame, []image.Rectangle{
		image.Rect(10, 10, 10, 10),
		image.Rect(40, 20, 120, 100),
	}, depth)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, records, test.ShouldHaveLength, 1)
}

func TestProcessFrameWithoutDepth(t *testing.T) {
	logger := golog.NewTestLogger(t)
	pl := NewPipeline(NewDetector(logger), logger)

	frame := testFrame(t, 160, 120)
	records, err := pl.ProcessFrame(frame, []image.Rectangle{image.Rect(40, 20, 120, 100)}, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, records, test.ShouldHaveLength, 1)
	// no depth means zero spread, the pose is skipped but landmarks survive
	test.That(t, records[0].Pose, test.ShouldBeNil)
	test.That(t, records[0].Landmarks, test.ShouldNotBeNil)
}

func TestCaptureCloud(t *testing.T) {
	logger := golog.NewTestLogger(t)
	pl := NewPipeline(NewDetector(logger), logger)

	frame := testFrame(t, 160, 120)
	depth := testDepth(t, 160, 120)

	cloud, err := pl.CaptureCloud(frame, depth)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cloud.Len(), test.ShouldBeGreaterThan, 0)
	test.That(t, cloud.HasColors(), test.ShouldBeTrue)
	// the depth gradient runs past 0.5m, so the far corner is windowed out
	test.That(t, cloud.Len(), test.ShouldBeLessThan, 160*120)
	for i := 0; i < cloud.Len(); i++ {
		z := cloud.At(i).Z
		test.That(t, z, test.ShouldBeGreaterThan, pointcloud.DefaultMinDepth)
		test.That(t, z, test.ShouldBeLessThan, pointcloud.DefaultMaxDepth)
	}

	// intrinsics must describe the depth resolution, not the color resolution
	smallDepth := testDepth(t, 80, 60)
	cloud, err = pl.CaptureCloud(frame, smallDepth)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cloud.Len(), test.ShouldBeGreaterThan, 0)
}

func TestProcessFrameModelFailureIsFatal(t *testing.T) {
	logger := golog.NewTestLogger(t)
	pl := NewPipeline(NewDetectorFromModelFile("/nonexistent/model.bin", logger), logger)

	frame := testFrame(t, 64, 64)
	_, err := pl.ProcessFrame(frame, []image.Rectangle{image.Rect(0, 0, 32, 32)}, nil)
	test.That(t, errors.Is(err, ErrModelNotLoaded), test.ShouldBeTrue)
}
