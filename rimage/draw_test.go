package rimage

import (
	"image"
	"image/color"
	"testing"

	"github.com/golang/geo/r2"
	"go.viam.com/test"
)

func blackFrame(t *testing.T, w, h int) *Frame {
	t.Helper()
	frame, err := NewFrame(make([]byte, w*h*4), w, h, w*4, BGRA)
	test.That(t, err, test.ShouldBeNil)
	return frame
}

func countLit(f *Frame, r image.Rectangle) int {
	lit := 0
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			cr, cg, cb, _ := f.At(x, y).RGBA()
			if cr != 0 || cg != 0 || cb != 0 {
				lit++
			}
		}
	}
	return lit
}

func TestOverlayBox(t *testing.T) {
	frame := blackFrame(t, 64, 64)
	box := image.Rect(10, 10, 40, 40)

	overlay := NewOverlay(frame)
	overlay.Box(box, color.RGBA{B: 255, A: 255}, 2)
	overlay.Commit()

	// the border is stroked, the interior stays untouched
	test.That(t, countLit(frame, image.Rect(9, 9, 41, 12)), test.ShouldBeGreaterThan, 0)
	test.That(t, countLit(frame, image.Rect(15, 15, 35, 35)), test.ShouldEqual, 0)
}

func TestOverlayLabel(t *testing.T) {
	frame := blackFrame(t, 128, 64)

	overlay := NewOverlay(frame)
	overlay.Label("pitch 1.0", image.Pt(4, 4), color.RGBA{R: 255, G: 255, B: 255, A: 255}, 14)
	overlay.Commit()

	test.That(t, countLit(frame, frame.Bounds()), test.ShouldBeGreaterThan, 0)
}

func TestOverlayLandmarksAndRay(t *testing.T) {
	frame := blackFrame(t, 64, 64)

	overlay := NewOverlay(frame)
	overlay.Landmarks([]r2.Point{{X: 20, Y: 20}}, color.RGBA{G: 255, A: 255})
	overlay.Ray(r2.Point{X: 30, Y: 30}, r2.Point{X: 50, Y: 30}, color.RGBA{R: 255, A: 255}, 2)
	overlay.Commit()

	test.That(t, countLit(frame, image.Rect(18, 18, 23, 23)), test.ShouldBeGreaterThan, 0)
	test.That(t, countLit(frame, image.Rect(32, 28, 48, 33)), test.ShouldBeGreaterThan, 0)
}
