package face

import (
	"fmt"
	"image"
	"image/color"
	"sync"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/faceforge/facescan/pointcloud"
	"github.com/faceforge/facescan/rimage"
	"github.com/faceforge/facescan/transform"
)

// FaceRecord is the structured per-face output of one frame: the landmarks, the
// six sampled depths, and the recovered pose. Pose is nil when estimation was
// skipped for that face.
type FaceRecord struct {
	Box       image.Rectangle
	Landmarks *LandmarkSet
	Depths    [6]float64
	Pose      *PoseEstimate
}

// Pipeline runs the per-frame path: landmark fitting, depth sampling, head pose
// estimation, and in-place overlay drawing. A pipeline owns its detector and
// processes one frame at a time; a frame must finish before the next is
// accepted. Callers needing concurrent frames use independent pipelines.
type Pipeline struct {
	detector *Detector
	logger   golog.Logger
	mu       sync.Mutex
}

// NewPipeline creates a pipeline around the given detector.
func NewPipeline(detector *Detector, logger golog.Logger) *Pipeline {
	return &Pipeline{detector: detector, logger: logger}
}

// ProcessFrame annotates the frame in place and returns one record per face
// whose landmarks could be fitted. Camera intrinsics are re-derived from the
// frame dimensions on every call. Per-face failures are isolated: a bad box or
// a degenerate pose never blocks the other faces in the frame, and real-time
// failures degrade silently to a missing overlay. A model load failure is the
// only fatal error.
func (pl *Pipeline) ProcessFrame(frame *rimage.Frame, boxes []image.Rectangle, depth *rimage.DepthMap) ([]FaceRecord, error) {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	intr := transform.IntrinsicsForFrame(frame.Width(), frame.Height())
	overlay := rimage.NewOverlay(frame)
	records := make([]FaceRecord, 0, len(boxes))

	for _, box := range boxes {
		landmarks, err := pl.detector.Detect(frame, box)
		if err != nil {
			if errors.Is(err, ErrModelNotLoaded) {
				return nil, err
			}
			pl.logger.Debugw("skipping face", "box", box, "error", err)
			continue
		}

		rec := FaceRecord{Box: box, Landmarks: landmarks}
		imagePts := landmarks.PosePoints()
		objectPts := make([]r3.Vector, len(imagePts))
		for i, p := range imagePts {
			z := depth.Sample(int(p.X), int(p.Y), frame.Width(), frame.Height())
			rec.Depths[i] = z
			x, y, zc := intr.PixelToPoint(p.X, p.Y, z)
			objectPts[i] = r3.Vector{X: x, Y: y, Z: zc}
		}

		pose, err := EstimatePose(imagePts[:], objectPts, intr)
		if err != nil {
			// degraded: landmarks only, no pose overlay for this face
			pl.logger.Debugw("pose estimation skipped", "box", box, "error", err)
		} else {
			rec.Pose = pose
		}

		overlay.Box(box, color.RGBA{B: 255, A: 255}, 1)
		overlay.Landmarks(landmarks.Points(), color.RGBA{G: 255, A: 255})
		if rec.Pose != nil {
			nose := landmarks.Point(LandmarkNoseTip)
			overlay.Ray(nose, rec.Pose.Gaze, color.RGBA{R: 255, A: 255}, 2)
			overlay.Label(
				fmt.Sprintf("pitch %.1f yaw %.1f roll %.1f", rec.Pose.Euler.Pitch, rec.Pose.Euler.Yaw, rec.Pose.Euler.Roll),
				image.Pt(box.Min.X, box.Max.Y+2), color.RGBA{R: 255, G: 255, B: 255, A: 255}, 12)
		}
		records = append(records, rec)
	}

	overlay.Commit()
	return records, nil
}

// CaptureCloud backprojects the full depth map of the current scan into a
// point cloud for the batch path, keeping samples inside the default capture
// depth window. Intrinsics are derived from the depth map's own resolution. If
// frame is non-nil its colors are sampled onto the points.
func (pl *Pipeline) CaptureCloud(frame *rimage.Frame, depth *rimage.DepthMap) (*pointcloud.PointCloud, error) {
	intr := transform.IntrinsicsForFrame(depth.Width(), depth.Height())
	cloud, err := pointcloud.BackprojectDepth(depth, intr, pointcloud.DefaultMinDepth, pointcloud.DefaultMaxDepth, frame)
	if err != nil {
		return nil, errors.Wrap(err, "backprojecting scan depth")
	}
	pl.logger.Debugf("captured cloud of %d points", cloud.Len())
	return cloud, nil
}
