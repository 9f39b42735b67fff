package reconstruct

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"

	"github.com/faceforge/facescan/pointcloud"
)

// Defaults for statistical outlier removal.
const (
	DefaultOutlierNeighbors = 20
	DefaultOutlierStdDev    = 2.0
)

// RemoveStatisticalOutliers filters points whose mean distance to their k
// nearest neighbors exceeds the cloud-wide mean of that statistic by more than
// stddev standard deviations. Normals and colors of surviving points are kept.
func RemoveStatisticalOutliers(cloud *pointcloud.PointCloud, k int, stddev float64) (*pointcloud.PointCloud, error) {
	if k < 1 {
		return nil, errors.Errorf("need at least 1 neighbor, got %d", k)
	}
	if cloud.Len() <= k {
		return nil, errors.Errorf("cloud of %d points is too small for %d-neighbor filtering", cloud.Len(), k)
	}

	tree := pointcloud.NewKDTree(cloud)
	meanDists := make([]float64, cloud.Len())
	for i := 0; i < cloud.Len(); i++ {
		// the query point is its own nearest neighbor, ask for one extra
		idxs, distsSq := tree.NearestK(cloud.At(i), k+1)
		var sum float64
		n := 0
		for j, idx := range idxs {
			if idx == i {
				continue
			}
			sum += math.Sqrt(distsSq[j])
			n++
		}
		meanDists[i] = sum / float64(n)
	}

	mean, sd := stat.MeanStdDev(meanDists, nil)
	threshold := mean + stddev*sd

	filtered := pointcloud.New()
	for i := 0; i < cloud.Len(); i++ {
		if meanDists[i] > threshold {
			continue
		}
		p := cloud.At(i)
		switch {
		case cloud.HasNormals():
			filtered.AppendWithNormal(p, cloud.Normal(i))
		case cloud.HasColors():
			filtered.AppendColored(p, cloud.Color(i))
		default:
			filtered.Append(p)
		}
	}
	return filtered, nil
}

// AverageSpacing is the mean nearest-neighbor distance across the cloud, the
// base length for the ball-pivoting radii.
func AverageSpacing(cloud *pointcloud.PointCloud) (float64, error) {
	if cloud.Len() < 2 {
		return 0, errors.Errorf("cloud of %d points has no spacing", cloud.Len())
	}
	tree := pointcloud.NewKDTree(cloud)
	var sum float64
	for i := 0; i < cloud.Len(); i++ {
		idxs, distsSq := tree.NearestK(cloud.At(i), 2)
		for j, idx := range idxs {
			if idx != i {
				sum += math.Sqrt(distsSq[j])
				break
			}
		}
	}
	return sum / float64(cloud.Len()), nil
}
