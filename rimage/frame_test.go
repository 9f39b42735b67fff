package rimage

import (
	"image/color"
	"testing"

	"go.viam.com/test"
)

func TestFrameBGRRoundTrip(t *testing.T) {
	buf := make([]byte, 2*2*3)
	frame, err := NewFrame(buf, 2, 2, 6, BGR)
	test.That(t, err, test.ShouldBeNil)

	frame.SetXY(1, 0, color.RGBA{R: 10, G: 20, B: 30, A: 255})
	r, g, b, a := frame.At(1, 0).RGBA()
	test.That(t, uint8(r>>8), test.ShouldEqual, uint8(10))
	test.That(t, uint8(g>>8), test.ShouldEqual, uint8(20))
	test.That(t, uint8(b>>8), test.ShouldEqual, uint8(30))
	test.That(t, uint8(a>>8), test.ShouldEqual, uint8(255))

	// blue-first byte layout, three bytes per pixel, no alpha byte
	test.That(t, buf[3], test.ShouldEqual, byte(30))
	test.That(t, buf[4], test.ShouldEqual, byte(20))
	test.That(t, buf[5], test.ShouldEqual, byte(10))
}

func TestFrameBGRARoundTrip(t *testing.T) {
	buf := make([]byte, 2*2*4)
	frame, err := NewFrame(buf, 2, 2, 8, BGRA)
	test.That(t, err, test.ShouldBeNil)

	frame.SetXY(0, 1, color.RGBA{R: 1, G: 2, B: 3, A: 4})
	test.That(t, buf[8], test.ShouldEqual, byte(3))
	test.That(t, buf[9], test.ShouldEqual, byte(2))
	test.That(t, buf[10], test.ShouldEqual, byte(1))
	test.That(t, buf[11], test.ShouldEqual, byte(4))
}

func TestFramePaddedStride(t *testing.T) {
	// rows padded to 8 bytes even though 2 BGR pixels need only 6
	buf := make([]byte, 2*8)
	frame, err := NewFrame(buf, 2, 2, 8, BGR)
	test.That(t, err, test.ShouldBeNil)
	frame.SetXY(0, 1, color.RGBA{R: 7, A: 255})
	test.That(t, buf[10], test.ShouldEqual, byte(7))
}

func TestFrameRejectsBadGeometry(t *testing.T) {
	_, err := NewFrame(nil, 0, 2, 8, BGRA)
	test.That(t, err, test.ShouldNotBeNil)
	// stride smaller than a row of pixels
	_, err = NewFrame(make([]byte, 64), 2, 2, 5, BGR)
	test.That(t, err, test.ShouldNotBeNil)
	// buffer shorter than the last row needs
	_, err = NewFrame(make([]byte, 10), 2, 2, 8, BGRA)
	test.That(t, err, test.ShouldNotBeNil)
}
