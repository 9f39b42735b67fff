package reconstruct

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"github.com/faceforge/facescan/pointcloud"
)

// sphereCloud samples n roughly evenly spaced points on a sphere, with exact
// outward normals, via the Fibonacci lattice.
func sphereCloud(n int, radius float64) *pointcloud.PointCloud {
	cloud := pointcloud.NewWithPrealloc(n)
	golden := math.Pi * (3 - math.Sqrt(5))
	for i := 0; i < n; i++ {
		y := 1 - 2*float64(i)/float64(n-1)
		r := math.Sqrt(1 - y*y)
		theta := golden * float64(i)
		dir := r3.Vector{X: math.Cos(theta) * r, Y: y, Z: math.Sin(theta) * r}
		cloud.AppendWithNormal(dir.Mul(radius), dir)
	}
	return cloud
}

func TestReconstructSphere(t *testing.T) {
	logger := golog.NewTestLogger(t)
	cloud := sphereCloud(600, 0.1)

	mesh, err := Reconstruct(context.Background(), cloud, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, mesh.Len(), test.ShouldBeGreaterThan, cloud.Len()/2)
	test.That(t, mesh.Validate(), test.ShouldBeNil)
	test.That(t, mesh.Normals, test.ShouldHaveLength, len(mesh.Vertices))

	// closed-ish: most edges are shared by two triangles
	edgeFaces := map[[2]int]int{}
	for _, tri := range mesh.Triangles {
		for _, e := range [][2]int{{tri[0], tri[1]}, {tri[1], tri[2]}, {tri[2], tri[0]}} {
			if e[0] > e[1] {
				e[0], e[1] = e[1], e[0]
			}
			edgeFaces[e]++
		}
	}
	interior := 0
	for _, n := range edgeFaces {
		if n == 2 {
			interior++
		}
	}
	test.That(t, float64(interior)/float64(len(edgeFaces)), test.ShouldBeGreaterThan, 0.5)

	// vertex normals of a sphere mesh point away from the center
	outward := 0
	counted := 0
	for i, n := range mesh.Normals {
		if n.Norm() == 0 {
			continue
		}
		counted++
		if n.Dot(mesh.Vertices[i]) > 0 {
			outward++
		}
	}
	test.That(t, counted, test.ShouldBeGreaterThan, 0)
	test.That(t, float64(outward)/float64(counted), test.ShouldBeGreaterThan, 0.9)
}

func TestReconstructDegenerate(t *testing.T) {
	logger := golog.NewTestLogger(t)

	_, err := Reconstruct(context.Background(), pointcloud.New(), logger)
	test.That(t, errors.Is(err, ErrEmptyMesh), test.ShouldBeTrue)

	// collinear points admit no triangle
	line := pointcloud.New()
	for i := 0; i < 50; i++ {
		line.Append(r3.Vector{X: float64(i) * 0.01})
	}
	_, err = Reconstruct(context.Background(), line, logger)
	test.That(t, errors.Is(err, ErrEmptyMesh), test.ShouldBeTrue)

	// coincident points have zero spacing
	same := pointcloud.New()
	for i := 0; i < 50; i++ {
		same.Append(r3.Vector{X: 1, Y: 2, Z: 3})
	}
	_, err = Reconstruct(context.Background(), same, logger)
	test.That(t, errors.Is(err, ErrEmptyMesh), test.ShouldBeTrue)
}

func TestReconstructCancellation(t *testing.T) {
	logger := golog.NewTestLogger(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Reconstruct(ctx, sphereCloud(600, 0.1), logger)
	test.That(t, errors.Is(err, context.Canceled), test.ShouldBeTrue)
}

func TestRemoveStatisticalOutliers(t *testing.T) {
	cloud := sphereCloud(300, 0.1)
	// a far-away straggler gets filtered, the sphere survives
	cloud.Append(r3.Vector{X: 5, Y: 5, Z: 5})

	filtered, err := RemoveStatisticalOutliers(cloud, DefaultOutlierNeighbors, DefaultOutlierStdDev)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, filtered.Len(), test.ShouldBeLessThan, cloud.Len())
	test.That(t, filtered.Len(), test.ShouldBeGreaterThan, cloud.Len()*9/10)
	for i := 0; i < filtered.Len(); i++ {
		test.That(t, filtered.At(i).Norm(), test.ShouldBeLessThan, 1)
	}

	_, err = RemoveStatisticalOutliers(pointcloud.New(), DefaultOutlierNeighbors, DefaultOutlierStdDev)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestAverageSpacing(t *testing.T) {
	grid := pointcloud.New()
	for x := 0; x < 5; x++ {
		for y := 0; y < 5; y++ {
			grid.Append(r3.Vector{X: float64(x) * 0.02, Y: float64(y) * 0.02})
		}
	}
	spacing, err := AverageSpacing(grid)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, spacing, test.ShouldAlmostEqual, 0.02, 1e-9)

	_, err = AverageSpacing(pointcloud.New())
	test.That(t, err, test.ShouldNotBeNil)
}

func TestReconstructFile(t *testing.T) {
	logger := golog.NewTestLogger(t)
	dir := t.TempDir()

	inPath := filepath.Join(dir, "sphere.pcd")
	test.That(t, pointcloud.WriteToFile(sphereCloud(600, 0.1), inPath), test.ShouldBeNil)
	outPath := filepath.Join(dir, "sphere.ply")

	test.That(t, ReconstructFile(context.Background(), inPath, outPath, logger), test.ShouldBeNil)

	mesh, err := ReadMeshFromFile(outPath)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, mesh.Len(), test.ShouldBeGreaterThan, 0)

	// no staged copies left behind
	entries, err := os.ReadDir(os.TempDir())
	test.That(t, err, test.ShouldBeNil)
	for _, e := range entries {
		test.That(t, strings.HasPrefix(e.Name(), "facescan-stage-"), test.ShouldBeFalse)
	}
}

func TestReconstructFileStagingFailure(t *testing.T) {
	logger := golog.NewTestLogger(t)
	err := ReconstructFile(context.Background(), "/nonexistent/cloud.pcd", "/tmp/out.ply", logger)
	test.That(t, errors.Is(err, ErrFileStaging), test.ShouldBeTrue)
}
