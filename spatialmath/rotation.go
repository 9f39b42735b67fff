// Package spatialmath defines the rotation, translation, and pose types used
// throughout the capture pipeline, along with the closed-form rigid alignment solver.
package spatialmath

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

const defaultAngleEpsilon = 1e-8

// RotationMatrix is a 3x3 rotation matrix stored row-major.
type RotationMatrix struct {
	mat [9]float64
}

// NewRotationMatrix creates a rotation matrix from the given row-major slice.
func NewRotationMatrix(m [9]float64) *RotationMatrix {
	return &RotationMatrix{m}
}

// NewZeroRotation returns the identity rotation.
func NewZeroRotation() *RotationMatrix {
	return &RotationMatrix{[9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1}}
}

// At returns the value at the given row and column.
func (rm *RotationMatrix) At(row, col int) float64 {
	return rm.mat[3*row+col]
}

// Mul rotates the vector by the matrix.
func (rm *RotationMatrix) Mul(v r3.Vector) r3.Vector {
	return r3.Vector{
		X: rm.mat[0]*v.X + rm.mat[1]*v.Y + rm.mat[2]*v.Z,
		Y: rm.mat[3]*v.X + rm.mat[4]*v.Y + rm.mat[5]*v.Z,
		Z: rm.mat[6]*v.X + rm.mat[7]*v.Y + rm.mat[8]*v.Z,
	}
}

// MatMul returns the product rm * other.
func (rm *RotationMatrix) MatMul(other *RotationMatrix) *RotationMatrix {
	var out [9]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			sum := 0.0
			for k := 0; k < 3; k++ {
				sum += rm.mat[3*i+k] * other.mat[3*k+j]
			}
			out[3*i+j] = sum
		}
	}
	return &RotationMatrix{out}
}

// Transpose returns the transpose, which for a proper rotation is also the inverse.
func (rm *RotationMatrix) Transpose() *RotationMatrix {
	m := rm.mat
	return &RotationMatrix{[9]float64{
		m[0], m[3], m[6],
		m[1], m[4], m[7],
		m[2], m[5], m[8],
	}}
}

// Det returns the determinant of the matrix.
func (rm *RotationMatrix) Det() float64 {
	m := rm.mat
	return m[0]*(m[4]*m[8]-m[5]*m[7]) -
		m[1]*(m[3]*m[8]-m[5]*m[6]) +
		m[2]*(m[3]*m[7]-m[4]*m[6])
}

// Matrix returns a gonum dense copy of the matrix.
func (rm *RotationMatrix) Matrix() *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		rm.mat[0], rm.mat[1], rm.mat[2],
		rm.mat[3], rm.mat[4], rm.mat[5],
		rm.mat[6], rm.mat[7], rm.mat[8],
	})
}

// NewRotationMatrixFromDense copies a 3x3 gonum matrix into a RotationMatrix.
func NewRotationMatrixFromDense(m mat.Matrix) *RotationMatrix {
	var out [9]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[3*i+j] = m.At(i, j)
		}
	}
	return &RotationMatrix{out}
}

// EulerAngles are the pitch, yaw, and roll of a rotation, in degrees.
type EulerAngles struct {
	Pitch float64
	Yaw   float64
	Roll  float64
}

// EulerAngles extracts pitch, yaw, and roll in degrees using the transpose
// convention: pitch about X from R[2,1]/R[2,2], yaw about Y from -R[2,0], roll
// about Z from R[1,0]/R[0,0].
func (rm *RotationMatrix) EulerAngles() *EulerAngles {
	pitch := math.Atan2(rm.At(2, 1), rm.At(2, 2))
	yaw := math.Atan2(-rm.At(2, 0), math.Hypot(rm.At(2, 1), rm.At(2, 2)))
	roll := math.Atan2(rm.At(1, 0), rm.At(0, 0))
	const toDeg = 180.0 / math.Pi
	return &EulerAngles{Pitch: pitch * toDeg, Yaw: yaw * toDeg, Roll: roll * toDeg}
}

// RotationMatrixFromVector converts an axis-angle rotation vector, whose norm is
// the rotation angle in radians, into a rotation matrix (Rodrigues' formula).
func RotationMatrixFromVector(v r3.Vector) *RotationMatrix {
	theta := v.Norm()
	if theta < defaultAngleEpsilon {
		return NewZeroRotation()
	}
	k := v.Mul(1 / theta)
	s, c := math.Sin(theta), math.Cos(theta)
	t := 1 - c
	return &RotationMatrix{[9]float64{
		t*k.X*k.X + c, t*k.X*k.Y - s*k.Z, t*k.X*k.Z + s*k.Y,
		t*k.X*k.Y + s*k.Z, t*k.Y*k.Y + c, t*k.Y*k.Z - s*k.X,
		t*k.X*k.Z - s*k.Y, t*k.Y*k.Z + s*k.X, t*k.Z*k.Z + c,
	}}
}

// RotationVector converts the matrix back to axis-angle form. The zero vector is
// returned for the identity rotation.
func (rm *RotationMatrix) RotationVector() r3.Vector {
	trace := rm.mat[0] + rm.mat[4] + rm.mat[8]
	cosTheta := math.Max(-1, math.Min(1, (trace-1)/2))
	theta := math.Acos(cosTheta)
	if theta < defaultAngleEpsilon {
		return r3.Vector{}
	}
	if math.Pi-theta < 1e-6 {
		// near pi the off-diagonal difference vanishes, recover the axis from the diagonal
		axis := r3.Vector{
			X: math.Sqrt(math.Max(0, (rm.mat[0]+1)/2)),
			Y: math.Sqrt(math.Max(0, (rm.mat[4]+1)/2)),
			Z: math.Sqrt(math.Max(0, (rm.mat[8]+1)/2)),
		}
		if rm.mat[1] < 0 {
			axis.Y = -axis.Y
		}
		if rm.mat[2] < 0 {
			axis.Z = -axis.Z
		}
		return axis.Normalize().Mul(theta)
	}
	axis := r3.Vector{
		X: rm.At(2, 1) - rm.At(1, 2),
		Y: rm.At(0, 2) - rm.At(2, 0),
		Z: rm.At(1, 0) - rm.At(0, 1),
	}.Mul(1 / (2 * math.Sin(theta)))
	return axis.Mul(theta)
}
