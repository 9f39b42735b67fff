package pointcloud

import (
	"bytes"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"go.viam.com/test"
)

func makeTestCloud(withNormals, withColors bool) *PointCloud {
	pc := New()
	pts := []r3.Vector{
		{X: 0.1, Y: 0.2, Z: 0.3},
		{X: -0.4, Y: 0.5, Z: -0.6},
		{X: 0.007, Y: -0.008, Z: 0.009},
	}
	for i, p := range pts {
		switch {
		case withColors:
			pc.AppendColored(p, color.NRGBA{R: uint8(10 * i), G: uint8(20 * i), B: uint8(30 * i), A: 255})
		default:
			pc.Append(p)
		}
		if withNormals {
			pc.SetNormal(pc.Len()-1, r3.Vector{X: 0, Y: 0, Z: 1})
		}
	}
	return pc
}

func TestPCDRoundTrip(t *testing.T) {
	for _, enc := range []PCDType{PCDAscii, PCDBinary} {
		for _, withNormals := range []bool{false, true} {
			for _, withColors := range []bool{false, true} {
				pc := makeTestCloud(withNormals, withColors)
				var buf bytes.Buffer
				test.That(t, ToPCD(pc, &buf, enc), test.ShouldBeNil)

				back, err := ReadPCD(&buf)
				test.That(t, err, test.ShouldBeNil)
				test.That(t, back.Len(), test.ShouldEqual, pc.Len())
				test.That(t, back.HasNormals(), test.ShouldEqual, withNormals)
				test.That(t, back.HasColors(), test.ShouldEqual, withColors)
				for i := 0; i < pc.Len(); i++ {
					test.That(t, back.At(i).X, test.ShouldAlmostEqual, pc.At(i).X, 1e-6)
					test.That(t, back.At(i).Y, test.ShouldAlmostEqual, pc.At(i).Y, 1e-6)
					test.That(t, back.At(i).Z, test.ShouldAlmostEqual, pc.At(i).Z, 1e-6)
					if withNormals {
						test.That(t, back.Normal(i).Z, test.ShouldAlmostEqual, 1, 1e-6)
					}
					if withColors {
						test.That(t, back.Color(i), test.ShouldResemble, pc.Color(i))
					}
				}
			}
		}
	}
}

func TestNewFromFile(t *testing.T) {
	logger := golog.NewTestLogger(t)
	dir := t.TempDir()

	fn := filepath.Join(dir, "scan.pcd")
	pc := makeTestCloud(true, false)
	test.That(t, WriteToFile(pc, fn), test.ShouldBeNil)

	back, err := NewFromFile(fn, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, back.Len(), test.ShouldEqual, pc.Len())

	_, err = NewFromFile(filepath.Join(dir, "scan.xyz"), logger)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestReadPCDMalformed(t *testing.T) {
	// missing required fields
	bad := "VERSION .7\nFIELDS a b\nSIZE 4 4\nTYPE F F\nCOUNT 1 1\nWIDTH 0\nHEIGHT 1\nVIEWPOINT 0 0 0 1 0 0 0\nPOINTS 0\nDATA ascii\n"
	_, err := ReadPCD(bytes.NewReader([]byte(bad)))
	test.That(t, err, test.ShouldNotBeNil)

	// truncated body
	trunc := "VERSION .7\nFIELDS x y z\nSIZE 4 4 4\nTYPE F F F\nCOUNT 1 1 1\nWIDTH 2\nHEIGHT 1\nVIEWPOINT 0 0 0 1 0 0 0\nPOINTS 2\nDATA ascii\n1 2 3\n"
	_, err = ReadPCD(bytes.NewReader([]byte(trunc)))
	test.That(t, err, test.ShouldNotBeNil)

	_, err = ReadPCD(bytes.NewReader(nil))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestWriteToFileCreates(t *testing.T) {
	fn := filepath.Join(t.TempDir(), "out.pcd")
	test.That(t, WriteToFile(makeTestCloud(false, false), fn), test.ShouldBeNil)
	info, err := os.Stat(fn)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, info.Size(), test.ShouldBeGreaterThan, 0)
}
