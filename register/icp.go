// Package register aligns multiple partial scans: pairwise coarse-to-fine
// point-to-plane ICP and the pose graph assembled from the pairwise results.
package register

import (
	"math"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/faceforge/facescan/pointcloud"
	"github.com/faceforge/facescan/spatialmath"
)

// ErrRegistrationFailed means a pairwise alignment could not be computed, for
// example because the clouds share no overlap within the distance threshold.
var ErrRegistrationFailed = errors.New("pairwise registration failed")

const (
	icpMaxIterations = 30
	icpMinMatches    = 6
	icpConvergence   = 1e-10
)

// RegistrationResult is the outcome of one pairwise alignment: the transform
// taking the source cloud onto the target, and a 6x6 information matrix
// summarizing the confidence of the fine-pass correspondence set.
type RegistrationResult struct {
	Transform   spatialmath.Pose
	Information *mat.Dense
	Fitness     float64
	InlierRMSE  float64
}

type correspondence struct {
	src    r3.Vector // transformed source point
	tgt    r3.Vector
	normal r3.Vector
}

// PairwiseICP aligns source onto target with point-to-plane ICP run twice:
// first with the coarse correspondence-distance threshold from an identity
// seed, then with the fine threshold seeded from the coarse result. Normals are
// estimated for either cloud if absent; the point-to-plane residual requires
// them on the target.
func PairwiseICP(source, target *pointcloud.PointCloud, coarse, fine float64, logger golog.Logger) (*RegistrationResult, error) {
	if source.Len() < icpMinMatches || target.Len() < icpMinMatches {
		return nil, errors.Wrapf(ErrRegistrationFailed,
			"clouds too small to register (%d and %d points)", source.Len(), target.Len())
	}
	if coarse <= 0 || fine <= 0 || fine > coarse {
		return nil, errors.Wrapf(ErrRegistrationFailed,
			"thresholds must satisfy 0 < fine <= coarse, got coarse=%v fine=%v", coarse, fine)
	}

	var err error
	if !target.HasNormals() {
		if target, err = pointcloud.EstimateNormals(target, pointcloud.DefaultNormalNeighborhood); err != nil {
			return nil, errors.Wrap(err, "estimating target normals")
		}
		pointcloud.OrientNormalsToward(target, r3.Vector{})
	}
	if !source.HasNormals() {
		if source, err = pointcloud.EstimateNormals(source, pointcloud.DefaultNormalNeighborhood); err != nil {
			return nil, errors.Wrap(err, "estimating source normals")
		}
		pointcloud.OrientNormalsToward(source, r3.Vector{})
	}

	tree := pointcloud.NewKDTree(target)

	pose, err := icpStage(source, tree, coarse, spatialmath.NewZeroPose())
	if err != nil {
		return nil, errors.Wrap(err, "coarse pass")
	}
	pose, err = icpStage(source, tree, fine, pose)
	if err != nil {
		return nil, errors.Wrap(err, "fine pass")
	}

	corrs := findCorrespondences(source, tree, fine, pose)
	if len(corrs) < icpMinMatches {
		return nil, errors.Wrapf(ErrRegistrationFailed, "only %d fine correspondences", len(corrs))
	}

	info := mat.NewDense(6, 6, nil)
	var sqErr float64
	for _, c := range corrs {
		j := jacobianRow(c)
		for a := 0; a < 6; a++ {
			for b := 0; b < 6; b++ {
				info.Set(a, b, info.At(a, b)+j[a]*j[b])
			}
		}
		r := c.src.Sub(c.tgt).Dot(c.normal)
		sqErr += r * r
	}

	result := &RegistrationResult{
		Transform:   pose,
		Information: info,
		Fitness:     float64(len(corrs)) / float64(source.Len()),
		InlierRMSE:  math.Sqrt(sqErr / float64(len(corrs))),
	}
	logger.Debugf("registered pair: fitness=%.3f rmse=%.6f", result.Fitness, result.InlierRMSE)
	return result, nil
}

func icpStage(source *pointcloud.PointCloud, tree *pointcloud.KDTree, maxDist float64, seed spatialmath.Pose) (spatialmath.Pose, error) {
	pose := seed
	for iter := 0; iter < icpMaxIterations; iter++ {
		corrs := findCorrespondences(source, tree, maxDist, pose)
		if len(corrs) < icpMinMatches {
			return pose, errors.Wrapf(ErrRegistrationFailed,
				"only %d correspondences within %v", len(corrs), maxDist)
		}

		a := mat.NewDense(len(corrs), 6, nil)
		b := mat.NewVecDense(len(corrs), nil)
		for i, c := range corrs {
			j := jacobianRow(c)
			for col := 0; col < 6; col++ {
				a.Set(i, col, j[col])
			}
			b.SetVec(i, -c.src.Sub(c.tgt).Dot(c.normal))
		}

		var xi mat.VecDense
		if err := xi.SolveVec(a, b); err != nil {
			return pose, errors.Wrap(ErrRegistrationFailed, "point-to-plane system is singular")
		}

		delta := spatialmath.NewPose(
			spatialmath.RotationMatrixFromVector(r3.Vector{X: xi.AtVec(0), Y: xi.AtVec(1), Z: xi.AtVec(2)}),
			r3.Vector{X: xi.AtVec(3), Y: xi.AtVec(4), Z: xi.AtVec(5)},
		)
		pose = spatialmath.Compose(delta, pose)
		if mat.Norm(&xi, 2) < icpConvergence {
			break
		}
	}
	return pose, nil
}

func findCorrespondences(source *pointcloud.PointCloud, tree *pointcloud.KDTree, maxDist float64, pose spatialmath.Pose) []correspondence {
	maxSq := maxDist * maxDist
	corrs := make([]correspondence, 0, source.Len())
	for i := 0; i < source.Len(); i++ {
		p := pose.TransformPoint(source.At(i))
		idx, distSq, ok := tree.Nearest(p)
		if !ok || distSq > maxSq {
			continue
		}
		corrs = append(corrs, correspondence{
			src:    p,
			tgt:    tree.Cloud.At(idx),
			normal: tree.Cloud.Normal(idx),
		})
	}
	return corrs
}

// jacobianRow is the point-to-plane residual derivative for a small-angle
// twist (rx, ry, rz, tx, ty, tz): the cross product of the source point with
// the target normal, then the normal itself.
func jacobianRow(c correspondence) [6]float64 {
	cr := c.src.Cross(c.normal)
	return [6]float64{cr.X, cr.Y, cr.Z, c.normal.X, c.normal.Y, c.normal.Z}
}
