package face

import (
	"image"
	"sync"
	"testing"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.viam.com/test"
)

func grayImage(w, h int) image.Image {
	return image.NewGray(image.Rect(0, 0, w, h))
}

func TestDetectContract(t *testing.T) {
	logger := golog.NewTestLogger(t)
	d := NewDetector(logger)

	img := grayImage(640, 480)
	box := image.Rect(200, 100, 400, 300)
	ls, err := d.Detect(img, box)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, ls.Points(), test.ShouldHaveLength, NumLandmarks)

	for _, p := range ls.Points() {
		test.That(t, p.X, test.ShouldBeGreaterThanOrEqualTo, float64(box.Min.X))
		test.That(t, p.X, test.ShouldBeLessThanOrEqualTo, float64(box.Max.X))
		test.That(t, p.Y, test.ShouldBeGreaterThanOrEqualTo, float64(box.Min.Y))
		test.That(t, p.Y, test.ShouldBeLessThanOrEqualTo, float64(box.Max.Y))
	}

	// index semantics: chin below nose tip, eyes above mouth, left of right
	test.That(t, ls.Point(LandmarkChin).Y, test.ShouldBeGreaterThan, ls.Point(LandmarkNoseTip).Y)
	test.That(t, ls.Point(LandmarkLeftEyeOuter).X, test.ShouldBeLessThan, ls.Point(LandmarkRightEyeOuter).X)
	test.That(t, ls.Point(LandmarkLeftMouthCorner).X, test.ShouldBeLessThan, ls.Point(LandmarkRightMouthCorner).X)
	test.That(t, ls.Point(LandmarkLeftEyeOuter).Y, test.ShouldBeLessThan, ls.Point(LandmarkLeftMouthCorner).Y)
}

func TestDetectDegenerateBox(t *testing.T) {
	d := NewDetector(golog.NewTestLogger(t))
	img := grayImage(640, 480)

	for _, box := range []image.Rectangle{
		image.Rect(10, 10, 10, 10),
		image.Rect(50, 50, 51, 50),
		image.Rect(-100, -100, -50, -50), // fully outside the image
	} {
		_, err := d.Detect(img, box)
		test.That(t, errors.Is(err, ErrDetectionFailed), test.ShouldBeTrue)
	}
}

func TestDetectModelNotLoaded(t *testing.T) {
	d := NewDetectorFromModelFile("/nonexistent/model.bin", golog.NewTestLogger(t))
	_, err := d.Detect(grayImage(64, 64), image.Rect(0, 0, 32, 32))
	test.That(t, errors.Is(err, ErrModelNotLoaded), test.ShouldBeTrue)

	// the load failure is sticky, later calls see the same error
	_, err = d.Detect(grayImage(64, 64), image.Rect(0, 0, 32, 32))
	test.That(t, errors.Is(err, ErrModelNotLoaded), test.ShouldBeTrue)
}

func TestDetectConcurrentFirstUse(t *testing.T) {
	d := NewDetector(golog.NewTestLogger(t))
	img := grayImage(640, 480)
	box := image.Rect(100, 100, 300, 300)

	var wg sync.WaitGroup
	errs := make([]error, 16)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = d.Detect(img, box)
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		test.That(t, err, test.ShouldBeNil)
	}
}

func TestParseShapeModelRejectsGarbage(t *testing.T) {
	_, err := parseShapeModel(nil)
	test.That(t, err, test.ShouldNotBeNil)
	_, err = parseShapeModel([]byte("not a model at all"))
	test.That(t, err, test.ShouldNotBeNil)
	// valid magic, truncated body
	_, err = parseShapeModel([]byte{'f', 'l', 'm', '1', 1, 0, 68, 0, 1, 2})
	test.That(t, err, test.ShouldNotBeNil)
}
