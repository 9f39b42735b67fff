package reconstruct

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/utils"

	"github.com/faceforge/facescan/pointcloud"
)

var (
	// ErrEmptyMesh means reconstruction produced no triangles. An empty mesh is
	// a terminal failure, never a valid result.
	ErrEmptyMesh = errors.New("reconstruction produced an empty mesh")

	// ErrFileStaging means the input cloud could not be staged to a private
	// temporary file.
	ErrFileStaging = errors.New("staging input file failed")
)

// Reconstruct runs the full surface pipeline on one cloud: statistical outlier
// removal, normal estimation when absent, average-spacing measurement, and
// ball pivoting with radii scaled from that spacing. The returned mesh is
// non-empty and carries per-vertex normals. Cancellation is honored between
// stages.
func Reconstruct(ctx context.Context, cloud *pointcloud.PointCloud, logger golog.Logger) (*Mesh, error) {
	if cloud.Len() <= DefaultOutlierNeighbors {
		return nil, errors.Wrapf(ErrEmptyMesh, "cloud of %d points is too sparse", cloud.Len())
	}

	filtered, err := RemoveStatisticalOutliers(cloud, DefaultOutlierNeighbors, DefaultOutlierStdDev)
	if err != nil {
		return nil, err
	}
	logger.Debugf("outlier removal kept %d of %d points", filtered.Len(), cloud.Len())
	if filtered.Len() < 3 {
		return nil, errors.Wrap(ErrEmptyMesh, "too few points survive outlier removal")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if !filtered.HasNormals() {
		if filtered, err = pointcloud.EstimateNormals(filtered, pointcloud.DefaultNormalNeighborhood); err != nil {
			return nil, errors.Wrap(err, "estimating normals")
		}
		pointcloud.OrientNormalsToward(filtered, r3.Vector{})
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	spacing, err := AverageSpacing(filtered)
	if err != nil {
		return nil, err
	}
	if spacing <= 0 {
		return nil, errors.Wrap(ErrEmptyMesh, "cloud has zero point spacing")
	}
	radii := make([]float64, len(BallPivotRadiiFactors))
	for i, f := range BallPivotRadiiFactors {
		radii[i] = f * spacing
	}
	logger.Debugf("average spacing %.6f, pivot radii %v", spacing, radii)

	mesh, err := BallPivot(filtered, radii)
	if err != nil {
		return nil, err
	}
	mesh.ComputeVertexNormals()
	logger.Infow("surface reconstructed", "vertices", len(mesh.Vertices), "triangles", mesh.Len())
	return mesh, nil
}

// ReconstructFile reads a point cloud from inPath, reconstructs it, and writes
// the mesh to outPath as ascii PLY. The input is first copied to a private
// temporary file so concurrent jobs never share a staged path; the staged copy
// is removed on every exit path.
func ReconstructFile(ctx context.Context, inPath, outPath string, logger golog.Logger) error {
	staged, err := stageInput(inPath)
	if err != nil {
		return err
	}
	defer utils.UncheckedErrorFunc(func() error { return os.Remove(staged) })

	cloud, err := pointcloud.NewFromFile(staged, logger)
	if err != nil {
		return errors.Wrapf(err, "reading %s", inPath)
	}

	mesh, err := Reconstruct(ctx, cloud, logger)
	if err != nil {
		return err
	}
	return WriteMeshToFile(mesh, outPath)
}

// stageInput copies the file at path to an exclusive temp file with the same
// extension, returning the staged path.
func stageInput(path string) (string, error) {
	//nolint:gosec
	in, err := os.Open(path)
	if err != nil {
		return "", errors.Wrap(ErrFileStaging, err.Error())
	}
	defer utils.UncheckedErrorFunc(in.Close)

	tmp, err := os.CreateTemp("", "facescan-stage-*"+filepath.Ext(path))
	if err != nil {
		return "", errors.Wrap(ErrFileStaging, err.Error())
	}
	if _, err := io.Copy(tmp, in); err != nil {
		utils.UncheckedErrorFunc(tmp.Close)
		utils.UncheckedErrorFunc(func() error { return os.Remove(tmp.Name()) })
		return "", errors.Wrap(ErrFileStaging, err.Error())
	}
	if err := tmp.Close(); err != nil {
		utils.UncheckedErrorFunc(func() error { return os.Remove(tmp.Name()) })
		return "", errors.Wrap(ErrFileStaging, err.Error())
	}
	return tmp.Name(), nil
}
