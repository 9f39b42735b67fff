// Package pointcloud defines the point cloud container used by registration and
// surface reconstruction, along with nearest-neighbor search, normal
// estimation, depth backprojection, and file I/O.
package pointcloud

import (
	"image/color"

	"github.com/golang/geo/r3"

	"github.com/faceforge/facescan/spatialmath"
)

// PointCloud is an unordered set of 3D points, optionally carrying per-point
// normals and colors. Clouds are immutable once captured; downstream stages
// produce derived copies.
type PointCloud struct {
	positions []r3.Vector
	normals   []r3.Vector
	colors    []color.NRGBA
}

// New returns an empty PointCloud.
func New() *PointCloud {
	return &PointCloud{}
}

// NewWithPrealloc returns an empty PointCloud with preallocated capacity.
func NewWithPrealloc(size int) *PointCloud {
	return &PointCloud{positions: make([]r3.Vector, 0, size)}
}

// Len returns the number of points in the cloud.
func (pc *PointCloud) Len() int {
	return len(pc.positions)
}

// At returns the position of the i-th point.
func (pc *PointCloud) At(i int) r3.Vector {
	return pc.positions[i]
}

// Append adds a point without a normal.
func (pc *PointCloud) Append(p r3.Vector) {
	pc.positions = append(pc.positions, p)
	if pc.HasNormals() {
		pc.normals = append(pc.normals, r3.Vector{})
	}
	if pc.HasColors() {
		pc.colors = append(pc.colors, color.NRGBA{})
	}
}

// AppendWithNormal adds a point with its normal.
func (pc *PointCloud) AppendWithNormal(p, n r3.Vector) {
	if !pc.HasNormals() {
		pc.normals = make([]r3.Vector, len(pc.positions))
	}
	pc.positions = append(pc.positions, p)
	pc.normals = append(pc.normals, n)
	if pc.HasColors() {
		pc.colors = append(pc.colors, color.NRGBA{})
	}
}

// AppendColored adds a point with a color.
func (pc *PointCloud) AppendColored(p r3.Vector, c color.NRGBA) {
	if !pc.HasColors() {
		pc.colors = make([]color.NRGBA, len(pc.positions))
	}
	pc.positions = append(pc.positions, p)
	pc.colors = append(pc.colors, c)
	if pc.HasNormals() {
		pc.normals = append(pc.normals, r3.Vector{})
	}
}

// HasNormals reports whether the cloud carries per-point normals.
func (pc *PointCloud) HasNormals() bool {
	return len(pc.normals) > 0
}

// Normal returns the normal of the i-th point. Only valid if HasNormals.
func (pc *PointCloud) Normal(i int) r3.Vector {
	return pc.normals[i]
}

// SetNormal overwrites the normal of the i-th point.
func (pc *PointCloud) SetNormal(i int, n r3.Vector) {
	if !pc.HasNormals() {
		pc.normals = make([]r3.Vector, len(pc.positions))
	}
	pc.normals[i] = n
}

// HasColors reports whether the cloud carries per-point colors.
func (pc *PointCloud) HasColors() bool {
	return len(pc.colors) > 0
}

// Color returns the color of the i-th point. Only valid if HasColors.
func (pc *PointCloud) Color(i int) color.NRGBA {
	return pc.colors[i]
}

// Iterate calls fn for every point until it returns false.
func (pc *PointCloud) Iterate(fn func(i int, p r3.Vector) bool) {
	for i, p := range pc.positions {
		if !fn(i, p) {
			return
		}
	}
}

// Centroid returns the mean position of the cloud, or the zero vector for an
// empty cloud.
func (pc *PointCloud) Centroid() r3.Vector {
	if pc.Len() == 0 {
		return r3.Vector{}
	}
	var c r3.Vector
	for _, p := range pc.positions {
		c = c.Add(p)
	}
	return c.Mul(1 / float64(pc.Len()))
}

// Clone returns a deep copy of the cloud.
func (pc *PointCloud) Clone() *PointCloud {
	out := &PointCloud{
		positions: append([]r3.Vector(nil), pc.positions...),
	}
	if pc.HasNormals() {
		out.normals = append([]r3.Vector(nil), pc.normals...)
	}
	if pc.HasColors() {
		out.colors = append([]color.NRGBA(nil), pc.colors...)
	}
	return out
}

// Transform returns a copy of the cloud with the pose applied to every position
// and its rotation applied to every normal.
func (pc *PointCloud) Transform(pose spatialmath.Pose) *PointCloud {
	out := pc.Clone()
	rot := pose.Rotation()
	for i, p := range out.positions {
		out.positions[i] = pose.TransformPoint(p)
	}
	for i, n := range out.normals {
		out.normals[i] = rot.Mul(n)
	}
	return out
}
