package spatialmath

import (
	"encoding/json"
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Pose is a rigid transform, a rotation followed by a translation.
type Pose struct {
	rot   *RotationMatrix
	trans r3.Vector
}

// NewPose creates a pose from a rotation and a translation.
func NewPose(rot *RotationMatrix, trans r3.Vector) Pose {
	if rot == nil {
		rot = NewZeroRotation()
	}
	return Pose{rot: rot, trans: trans}
}

// NewZeroPose returns the identity transform.
func NewZeroPose() Pose {
	return Pose{rot: NewZeroRotation()}
}

// Rotation returns the rotation component.
func (p Pose) Rotation() *RotationMatrix {
	if p.rot == nil {
		return NewZeroRotation()
	}
	return p.rot
}

// Translation returns the translation component.
func (p Pose) Translation() r3.Vector {
	return p.trans
}

// TransformPoint applies the pose to a point.
func (p Pose) TransformPoint(v r3.Vector) r3.Vector {
	return p.Rotation().Mul(v).Add(p.trans)
}

// Compose returns the pose equivalent to applying b first, then a.
func Compose(a, b Pose) Pose {
	return Pose{
		rot:   a.Rotation().MatMul(b.Rotation()),
		trans: a.Rotation().Mul(b.trans).Add(a.trans),
	}
}

// Invert returns the inverse transform.
func (p Pose) Invert() Pose {
	rt := p.Rotation().Transpose()
	return Pose{rot: rt, trans: rt.Mul(p.trans).Mul(-1)}
}

// Matrix returns the pose as a 4x4 homogeneous transform.
func (p Pose) Matrix() *mat.Dense {
	r := p.Rotation()
	return mat.NewDense(4, 4, []float64{
		r.At(0, 0), r.At(0, 1), r.At(0, 2), p.trans.X,
		r.At(1, 0), r.At(1, 1), r.At(1, 2), p.trans.Y,
		r.At(2, 0), r.At(2, 1), r.At(2, 2), p.trans.Z,
		0, 0, 0, 1,
	})
}

// NewPoseFromMatrix converts a 4x4 homogeneous transform into a Pose.
func NewPoseFromMatrix(m mat.Matrix) (Pose, error) {
	r, c := m.Dims()
	if r != 4 || c != 4 {
		return Pose{}, errors.Errorf("expected a 4x4 transform matrix, got %dx%d", r, c)
	}
	var rot [9]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			rot[3*i+j] = m.At(i, j)
		}
	}
	return Pose{
		rot:   &RotationMatrix{rot},
		trans: r3.Vector{X: m.At(0, 3), Y: m.At(1, 3), Z: m.At(2, 3)},
	}, nil
}

// PoseAlmostEqual reports whether two poses agree element-wise within tol.
func PoseAlmostEqual(a, b Pose, tol float64) bool {
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			if math.Abs(a.Rotation().At(i, j)-b.Rotation().At(i, j)) > tol {
				return false
			}
		}
	}
	d := a.trans.Sub(b.trans)
	return math.Abs(d.X) <= tol && math.Abs(d.Y) <= tol && math.Abs(d.Z) <= tol
}

type poseJSON struct {
	Rotation    [9]float64 `json:"rotation"`
	Translation [3]float64 `json:"translation"`
}

// MarshalJSON encodes the pose as a row-major rotation plus a translation.
func (p Pose) MarshalJSON() ([]byte, error) {
	return json.Marshal(poseJSON{
		Rotation:    p.Rotation().mat,
		Translation: [3]float64{p.trans.X, p.trans.Y, p.trans.Z},
	})
}

// UnmarshalJSON decodes a pose written by MarshalJSON.
func (p *Pose) UnmarshalJSON(data []byte) error {
	var pj poseJSON
	if err := json.Unmarshal(data, &pj); err != nil {
		return err
	}
	p.rot = &RotationMatrix{pj.Rotation}
	p.trans = r3.Vector{X: pj.Translation[0], Y: pj.Translation[1], Z: pj.Translation[2]}
	return nil
}
