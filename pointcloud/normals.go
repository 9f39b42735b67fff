package pointcloud

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// DefaultNormalNeighborhood is how many nearest neighbors feed each normal estimate.
const DefaultNormalNeighborhood = 30

// EstimateNormals computes a per-point normal from the covariance of each
// point's k nearest neighbors, taking the eigenvector of the smallest
// eigenvalue. Normals are unoriented; use OrientNormalsToward to fix a side.
func EstimateNormals(cloud *PointCloud, k int) (*PointCloud, error) {
	if cloud.Len() < 3 {
		return nil, errors.Errorf("normal estimation needs at least 3 points, got %d", cloud.Len())
	}
	if k < 3 {
		k = DefaultNormalNeighborhood
	}
	tree := NewKDTree(cloud)
	out := cloud.Clone()
	for i := 0; i < cloud.Len(); i++ {
		p := cloud.At(i)
		idxs, _ := tree.NearestK(p, k)
		var centroid r3.Vector
		for _, j := range idxs {
			centroid = centroid.Add(cloud.At(j))
		}
		centroid = centroid.Mul(1 / float64(len(idxs)))

		cov := make([]float64, 9)
		for _, j := range idxs {
			d := cloud.At(j).Sub(centroid)
			cov[0] += d.X * d.X
			cov[1] += d.X * d.Y
			cov[2] += d.X * d.Z
			cov[4] += d.Y * d.Y
			cov[5] += d.Y * d.Z
			cov[8] += d.Z * d.Z
		}
		cov[3], cov[6], cov[7] = cov[1], cov[2], cov[5]

		var eig mat.EigenSym
		if ok := eig.Factorize(mat.NewSymDense(3, cov), true); !ok {
			return nil, errors.New("normal estimation: eigendecomposition failed")
		}
		var vecs mat.Dense
		eig.VectorsTo(&vecs)
		// eigenvalues are ascending, the first eigenvector spans the thinnest direction
		n := r3.Vector{X: vecs.At(0, 0), Y: vecs.At(1, 0), Z: vecs.At(2, 0)}
		if norm := n.Norm(); norm > 0 {
			n = n.Mul(1 / norm)
		}
		out.SetNormal(i, n)
	}
	return out, nil
}

// OrientNormalsToward flips normals so they point at the viewpoint, typically
// the camera location at the origin.
func OrientNormalsToward(cloud *PointCloud, viewpoint r3.Vector) {
	if !cloud.HasNormals() {
		return
	}
	for i := 0; i < cloud.Len(); i++ {
		n := cloud.Normal(i)
		if viewpoint.Sub(cloud.At(i)).Dot(n) < 0 {
			cloud.SetNormal(i, n.Mul(-1))
		}
	}
}
