// Package reconstruct turns a single denoised point cloud into a triangle
// mesh: statistical outlier removal, normal estimation, and ball-pivoting
// surface extraction.
package reconstruct

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// Mesh is a triangle mesh with per-vertex normals. A mesh returned by a
// successful reconstruction is never empty.
type Mesh struct {
	Vertices  []r3.Vector
	Triangles [][3]int
	Normals   []r3.Vector
}

// Len returns the number of triangles.
func (m *Mesh) Len() int {
	return len(m.Triangles)
}

// Validate checks that every triangle references existing vertices.
func (m *Mesh) Validate() error {
	for i, tri := range m.Triangles {
		for _, v := range tri {
			if v < 0 || v >= len(m.Vertices) {
				return errors.Errorf("triangle %d references vertex %d of %d", i, v, len(m.Vertices))
			}
		}
	}
	if m.Normals != nil && len(m.Normals) != len(m.Vertices) {
		return errors.Errorf("have %d normals for %d vertices", len(m.Normals), len(m.Vertices))
	}
	return nil
}

// ComputeVertexNormals replaces the mesh normals with area-weighted averages
// of the adjacent face normals. Vertices touching no triangle get a zero
// normal.
func (m *Mesh) ComputeVertexNormals() {
	normals := make([]r3.Vector, len(m.Vertices))
	for _, tri := range m.Triangles {
		a, b, c := m.Vertices[tri[0]], m.Vertices[tri[1]], m.Vertices[tri[2]]
		// cross product length carries the area weighting
		face := b.Sub(a).Cross(c.Sub(a))
		for _, v := range tri {
			normals[v] = normals[v].Add(face)
		}
	}
	for i, n := range normals {
		if n.Norm() > 0 {
			normals[i] = n.Normalize()
		}
	}
	m.Normals = normals
}
