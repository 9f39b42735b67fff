package rimage

import (
	"image"
	"image/color"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"github.com/golang/geo/r2"
	"golang.org/x/image/font/gofont/goregular"
)

var font *truetype.Font

// init sets up the fonts we want to use.
func init() {
	var err error
	font, err = truetype.Parse(goregular.TTF)
	if err != nil {
		panic(err)
	}
}

// Overlay draws diagnostic annotations over a frame. Drawing happens on an
// internal context; Commit writes the result back into the caller's buffer.
type Overlay struct {
	frame *Frame
	dc    *gg.Context
}

// NewOverlay creates an overlay over the given frame.
func NewOverlay(f *Frame) *Overlay {
	dc := gg.NewContext(f.Width(), f.Height())
	dc.DrawImage(f, 0, 0)
	return &Overlay{frame: f, dc: dc}
}

// Landmarks draws a dot for each landmark point.
func (o *Overlay) Landmarks(pts []r2.Point, c color.Color) {
	o.dc.SetColor(c)
	for _, p := range pts {
		o.dc.DrawCircle(p.X, p.Y, 2)
		o.dc.Fill()
	}
}

// Ray draws a line from one image point to another, used for the pose/gaze axis.
func (o *Overlay) Ray(from, to r2.Point, c color.Color, width float64) {
	o.dc.SetColor(c)
	o.dc.SetLineWidth(width)
	o.dc.DrawLine(from.X, from.Y, to.X, to.Y)
	o.dc.Stroke()
}

// Box draws an empty rectangle.
func (o *Overlay) Box(r image.Rectangle, c color.Color, width float64) {
	o.dc.SetColor(c)
	o.dc.SetLineWidth(width)
	o.dc.DrawRectangle(float64(r.Min.X), float64(r.Min.Y), float64(r.Dx()), float64(r.Dy()))
	o.dc.Stroke()
}

// Label writes a string at a particular point.
func (o *Overlay) Label(text string, p image.Point, c color.Color, size float64) {
	o.dc.SetFontFace(truetype.NewFace(font, &truetype.Options{Size: size}))
	o.dc.SetColor(c)
	o.dc.DrawStringWrapped(text, float64(p.X), float64(p.Y), 0, 0, float64(o.dc.Width()), 1, 0)
}

// Commit writes the annotated pixels back into the frame's buffer in place.
func (o *Overlay) Commit() {
	img := o.dc.Image()
	for y := 0; y < o.frame.Height(); y++ {
		for x := 0; x < o.frame.Width(); x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			o.frame.SetXY(x, y, color.RGBA{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(b >> 8), A: 255})
		}
	}
}
