package face

import (
	"image"
	"sync"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
)

var (
	// ErrModelNotLoaded means the landmark predictor could not be deserialized.
	// Fatal for the real-time path until resolved.
	ErrModelNotLoaded = errors.New("landmark model not loaded")
	// ErrDetectionFailed means no landmarks could be produced for a given box.
	// Recoverable: skip that face.
	ErrDetectionFailed = errors.New("landmark detection failed")
)

// Detector fits the 68-point shape model into face bounding boxes. The model is
// deserialized lazily on first use, exactly once: concurrent first callers are
// serialized so a single loader wins and the rest wait on the result.
//
// One detector instance processes one frame at a time; Detect holds an internal
// lock for the duration of a call.
type Detector struct {
	modelPath string
	logger    golog.Logger

	loadOnce sync.Once
	model    *shapeModel
	loadErr  error

	inferMu sync.Mutex
}

// NewDetector returns a detector backed by the bundled shape model.
func NewDetector(logger golog.Logger) *Detector {
	return &Detector{logger: logger}
}

// NewDetectorFromModelFile returns a detector that loads its shape model from
// the given file on first use.
func NewDetectorFromModelFile(path string, logger golog.Logger) *Detector {
	return &Detector{modelPath: path, logger: logger}
}

func (d *Detector) ensureModel() (*shapeModel, error) {
	d.loadOnce.Do(func() {
		d.model, d.loadErr = loadShapeModel(d.modelPath)
		if d.loadErr != nil {
			d.logger.Errorw("shape model load failed", "error", d.loadErr)
		} else {
			d.logger.Debugf("shape model loaded (%d points)", NumLandmarks)
		}
	})
	if d.loadErr != nil {
		return nil, errors.Wrap(ErrModelNotLoaded, d.loadErr.Error())
	}
	return d.model, nil
}

// Detect fits the shape model to the face inside box, given in pixel
// coordinates of img. It returns exactly 68 ordered landmarks, or
// ErrModelNotLoaded / ErrDetectionFailed.
func (d *Detector) Detect(img image.Image, box image.Rectangle) (*LandmarkSet, error) {
	model, err := d.ensureModel()
	if err != nil {
		return nil, err
	}

	d.inferMu.Lock()
	defer d.inferMu.Unlock()

	box = box.Canon()
	clipped := box.Intersect(img.Bounds())
	if clipped.Dx() <= 1 || clipped.Dy() <= 1 {
		return nil, errors.Wrapf(ErrDetectionFailed, "degenerate box %v", box)
	}

	ls := &LandmarkSet{}
	w := float64(clipped.Dx())
	h := float64(clipped.Dy())
	for i, m := range model.mean {
		ls.pts[i] = r2.Point{
			X: float64(clipped.Min.X) + m.X*w,
			Y: float64(clipped.Min.Y) + m.Y*h,
		}
	}
	return ls, nil
}
