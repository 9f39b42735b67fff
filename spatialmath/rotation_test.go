package spatialmath

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
)

func TestRotationVectorRoundTrip(t *testing.T) {
	for _, v := range []r3.Vector{
		{X: 0, Y: 0, Z: 0},
		{X: 0.1, Y: 0, Z: 0},
		{X: 0, Y: -0.4, Z: 0.2},
		{X: 1.2, Y: 0.7, Z: -0.3},
		{X: 0, Y: 0, Z: math.Pi / 2},
	} {
		rm := RotationMatrixFromVector(v)
		test.That(t, rm.Det(), test.ShouldAlmostEqual, 1, 1e-9)
		back := rm.RotationVector()
		test.That(t, back.X, test.ShouldAlmostEqual, v.X, 1e-9)
		test.That(t, back.Y, test.ShouldAlmostEqual, v.Y, 1e-9)
		test.That(t, back.Z, test.ShouldAlmostEqual, v.Z, 1e-9)
	}
}

func TestEulerAngles(t *testing.T) {
	// pure roll about Z
	rm := RotationMatrixFromVector(r3.Vector{X: 0, Y: 0, Z: math.Pi / 6})
	ea := rm.EulerAngles()
	test.That(t, ea.Roll, test.ShouldAlmostEqual, 30, 1e-9)
	test.That(t, ea.Pitch, test.ShouldAlmostEqual, 0, 1e-9)
	test.That(t, ea.Yaw, test.ShouldAlmostEqual, 0, 1e-9)

	// pure pitch about X
	rm = RotationMatrixFromVector(r3.Vector{X: math.Pi / 4, Y: 0, Z: 0})
	ea = rm.EulerAngles()
	test.That(t, ea.Pitch, test.ShouldAlmostEqual, 45, 1e-9)
	test.That(t, ea.Yaw, test.ShouldAlmostEqual, 0, 1e-9)
	test.That(t, ea.Roll, test.ShouldAlmostEqual, 0, 1e-9)

	// pure yaw about Y
	rm = RotationMatrixFromVector(r3.Vector{X: 0, Y: math.Pi / 3, Z: 0})
	ea = rm.EulerAngles()
	test.That(t, ea.Yaw, test.ShouldAlmostEqual, 60, 1e-9)
}

func TestPoseComposeInvert(t *testing.T) {
	p := NewPose(RotationMatrixFromVector(r3.Vector{X: 0.2, Y: -0.1, Z: 0.5}), r3.Vector{X: 1, Y: -2, Z: 3})
	ident := Compose(p, p.Invert())
	test.That(t, PoseAlmostEqual(ident, NewZeroPose(), 1e-9), test.ShouldBeTrue)

	pt := r3.Vector{X: 4, Y: 5, Z: 6}
	moved := p.TransformPoint(pt)
	back := p.Invert().TransformPoint(moved)
	test.That(t, back.X, test.ShouldAlmostEqual, pt.X, 1e-9)
	test.That(t, back.Y, test.ShouldAlmostEqual, pt.Y, 1e-9)
	test.That(t, back.Z, test.ShouldAlmostEqual, pt.Z, 1e-9)
}

func TestPoseMatrixRoundTrip(t *testing.T) {
	p := NewPose(RotationMatrixFromVector(r3.Vector{X: -0.3, Y: 0.8, Z: 0.1}), r3.Vector{X: 0.5, Y: 1.5, Z: -2.5})
	back, err := NewPoseFromMatrix(p.Matrix())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, PoseAlmostEqual(p, back, 1e-12), test.ShouldBeTrue)
}
