package spatialmath

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// SolveRigid computes the rotation R and translation t that best map the columns
// of a onto the corresponding columns of b in the least-squares sense, using
// centroid subtraction, the cross-covariance matrix, and an SVD. If the
// unconstrained solution is a reflection, the last row of Vᵀ is negated so a
// proper rotation is always returned.
//
// Both inputs must be 3xN with the same N >= 1. Violating that is a caller bug
// and panics rather than returning an error.
func SolveRigid(a, b *mat.Dense) (*RotationMatrix, r3.Vector) {
	ra, ca := a.Dims()
	rb, cb := b.Dims()
	if ra != 3 || rb != 3 {
		panic(errors.Errorf("rigid solve requires 3xN inputs, got %dx%d and %dx%d", ra, ca, rb, cb))
	}
	if ca != cb || ca < 1 {
		panic(errors.Errorf("rigid solve requires matching non-empty point sets, got %d and %d columns", ca, cb))
	}

	centroidA := columnCentroid(a, ca)
	centroidB := columnCentroid(b, cb)

	// cross-covariance H = sum (a_i - ca)(b_i - cb)^T
	h := mat.NewDense(3, 3, nil)
	for i := 0; i < ca; i++ {
		da := [3]float64{a.At(0, i) - centroidA.X, a.At(1, i) - centroidA.Y, a.At(2, i) - centroidA.Z}
		db := [3]float64{b.At(0, i) - centroidB.X, b.At(1, i) - centroidB.Y, b.At(2, i) - centroidB.Z}
		for r := 0; r < 3; r++ {
			for c := 0; c < 3; c++ {
				h.Set(r, c, h.At(r, c)+da[r]*db[c])
			}
		}
	}

	var svd mat.SVD
	if ok := svd.Factorize(h, mat.SVDFull); !ok {
		panic(errors.New("rigid solve: SVD of cross-covariance failed to factorize"))
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	var rot mat.Dense
	rot.Mul(&v, u.T())
	if mat.Det(&rot) < 0 {
		// reflection: flip the last row of Vᵀ (last column of V) and recompute
		for r := 0; r < 3; r++ {
			v.Set(r, 2, -v.At(r, 2))
		}
		rot.Mul(&v, u.T())
	}

	rm := NewRotationMatrixFromDense(&rot)
	t := centroidB.Sub(rm.Mul(centroidA))
	return rm, t
}

func columnCentroid(m *mat.Dense, n int) r3.Vector {
	var c r3.Vector
	for i := 0; i < n; i++ {
		c.X += m.At(0, i)
		c.Y += m.At(1, i)
		c.Z += m.At(2, i)
	}
	return c.Mul(1 / float64(n))
}
