package reconstruct

import (
	"math"
	"sort"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/faceforge/facescan/pointcloud"
)

// BallPivotRadiiFactors scale the average point spacing into the pivot radii
// used by Reconstruct.
var BallPivotRadiiFactors = []float64{0.5, 1, 2, 4}

const seedCandidateLimit = 30

type edgeKey struct{ lo, hi int }

func ekey(a, b int) edgeKey {
	if a > b {
		a, b = b, a
	}
	return edgeKey{a, b}
}

// frontEdge is a directed boundary edge. The adjacent triangle holds the
// directed edge (from, to); a triangle grown across it is (to, from, c).
type frontEdge struct {
	from, to, opposite int
}

type pivoter struct {
	cloud     *pointcloud.PointCloud
	tree      *pointcloud.KDTree
	used      []bool
	seedFrom  int
	edgeFaces map[edgeKey]int
	triSeen   map[[3]int]bool
	triangles [][3]int
	front     []frontEdge
	boundary  []frontEdge
}

// BallPivot runs ball-pivoting surface reconstruction over the cloud with the
// given pivot radii, smallest first. The cloud must carry normals; they decide
// which side of each triangle the ball sits on. An empty triangle set is
// ErrEmptyMesh.
func BallPivot(cloud *pointcloud.PointCloud, radii []float64) (*Mesh, error) {
	if cloud.Len() < 3 {
		return nil, errors.Wrapf(ErrEmptyMesh, "%d points cannot form a triangle", cloud.Len())
	}
	if !cloud.HasNormals() {
		return nil, errors.New("ball pivoting needs normals, estimate them first")
	}
	sorted := append([]float64(nil), radii...)
	sort.Float64s(sorted)

	pv := &pivoter{
		cloud:     cloud,
		tree:      pointcloud.NewKDTree(cloud),
		used:      make([]bool, cloud.Len()),
		edgeFaces: map[edgeKey]int{},
		triSeen:   map[[3]int]bool{},
	}

	for _, r := range sorted {
		if r <= 0 {
			return nil, errors.Errorf("pivot radius must be positive, got %v", r)
		}
		pv.run(r)
	}

	if len(pv.triangles) == 0 {
		return nil, errors.Wrap(ErrEmptyMesh, "ball pivoting produced no triangles")
	}

	mesh := &Mesh{
		Vertices:  make([]r3.Vector, cloud.Len()),
		Triangles: pv.triangles,
	}
	for i := 0; i < cloud.Len(); i++ {
		mesh.Vertices[i] = cloud.At(i)
	}
	return mesh, nil
}

// run grows the mesh at one radius: boundary edges left over from smaller
// radii are retried first, then fresh seeds are planted until none remain.
func (pv *pivoter) run(r float64) {
	pv.front = append(pv.front, pv.boundary...)
	pv.boundary = nil
	pv.seedFrom = 0
	for {
		for len(pv.front) > 0 {
			e := pv.front[len(pv.front)-1]
			pv.front = pv.front[:len(pv.front)-1]
			pv.pivotEdge(e, r)
		}
		if !pv.findSeed(r) {
			return
		}
	}
}

func (pv *pivoter) pivotEdge(e frontEdge, r float64) {
	if pv.edgeFaces[ekey(e.from, e.to)] != 1 {
		return
	}
	pa := pv.cloud.At(e.from)
	pb := pv.cloud.At(e.to)
	mid := pa.Add(pb).Mul(0.5)
	axis := pb.Sub(pa)
	if axis.Norm() == 0 {
		return
	}
	axis = axis.Normalize()

	// reference direction for the pivot angle: the current ball center if one
	// still exists at this radius, else the direction away from the opposite
	// vertex
	var ref r3.Vector
	if c, ok := pv.ballCenter(e.from, e.to, e.opposite, r); ok {
		ref = perpComponent(c.Sub(mid), axis)
	} else {
		ref = perpComponent(mid.Sub(pv.cloud.At(e.opposite)), axis)
	}
	if ref.Norm() == 0 {
		return
	}

	bestAngle := math.Inf(1)
	bestIdx := -1
	for _, cand := range pv.tree.RadiusSearch(mid, 2*r) {
		if cand == e.from || cand == e.to || cand == e.opposite {
			continue
		}
		if pv.edgeFaces[ekey(e.from, cand)] >= 2 || pv.edgeFaces[ekey(e.to, cand)] >= 2 {
			continue
		}
		if pv.triSeen[triKey(e.from, e.to, cand)] {
			continue
		}
		center, ok := pv.ballCenter(e.from, e.to, cand, r)
		if !ok || !pv.emptyBall(center, r, e.from, e.to, cand) {
			continue
		}
		u := perpComponent(center.Sub(mid), axis)
		if u.Norm() == 0 {
			continue
		}
		angle := math.Atan2(ref.Cross(u).Dot(axis), ref.Dot(u))
		if angle < 0 {
			angle += 2 * math.Pi
		}
		if angle < bestAngle {
			bestAngle = angle
			bestIdx = cand
		}
	}

	if bestIdx < 0 {
		pv.boundary = append(pv.boundary, e)
		return
	}
	pv.addTriangle(e.to, e.from, bestIdx)
}

// findSeed plants one new triangle among still-unused vertices. Reports false
// when the cloud is exhausted at this radius.
func (pv *pivoter) findSeed(r float64) bool {
	for ; pv.seedFrom < pv.cloud.Len(); pv.seedFrom++ {
		i := pv.seedFrom
		if pv.used[i] {
			continue
		}
		p := pv.cloud.At(i)
		nbrs := pv.tree.RadiusSearch(p, 2*r)
		sort.Slice(nbrs, func(a, b int) bool {
			return pv.cloud.At(nbrs[a]).Sub(p).Norm2() < pv.cloud.At(nbrs[b]).Sub(p).Norm2()
		})
		if len(nbrs) > seedCandidateLimit {
			nbrs = nbrs[:seedCandidateLimit]
		}
		for ji, j := range nbrs {
			if j == i || pv.used[j] {
				continue
			}
			for _, k := range nbrs[ji+1:] {
				if k == i || k == j || pv.used[k] {
					continue
				}
				center, ok := pv.ballCenter(i, j, k, r)
				if !ok || !pv.emptyBall(center, r, i, j, k) {
					continue
				}
				a, b, c := orientTriangle(pv.cloud, i, j, k)
				pv.addTriangle(a, b, c)
				return true
			}
		}
	}
	return false
}

func (pv *pivoter) addTriangle(a, b, c int) {
	pv.triangles = append(pv.triangles, [3]int{a, b, c})
	pv.triSeen[triKey(a, b, c)] = true
	pv.used[a], pv.used[b], pv.used[c] = true, true, true
	for _, e := range [][3]int{{a, b, c}, {b, c, a}, {c, a, b}} {
		k := ekey(e[0], e[1])
		pv.edgeFaces[k]++
		if pv.edgeFaces[k] == 1 {
			pv.front = append(pv.front, frontEdge{from: e[0], to: e[1], opposite: e[2]})
		}
	}
}

// ballCenter places a ball of radius r touching the three points, on the side
// their normals point to. Fails when the points are near collinear or the
// circumradius exceeds r.
func (pv *pivoter) ballCenter(a, b, c int, r float64) (r3.Vector, bool) {
	pa, pb, pc := pv.cloud.At(a), pv.cloud.At(b), pv.cloud.At(c)
	ab := pb.Sub(pa)
	ac := pc.Sub(pa)
	n := ab.Cross(ac)
	n2 := n.Norm2()
	if n2 < 1e-24 {
		return r3.Vector{}, false
	}
	circum := pa.Add(ac.Cross(n).Mul(ab.Norm2()).Add(n.Cross(ab).Mul(ac.Norm2())).Mul(1 / (2 * n2)))
	h2 := r*r - circum.Sub(pa).Norm2()
	if h2 < 0 {
		return r3.Vector{}, false
	}
	dir := n.Normalize()
	avgNormal := pv.cloud.Normal(a).Add(pv.cloud.Normal(b)).Add(pv.cloud.Normal(c))
	if dir.Dot(avgNormal) < 0 {
		dir = dir.Mul(-1)
	}
	return circum.Add(dir.Mul(math.Sqrt(h2))), true
}

// emptyBall reports whether no cloud point other than the triangle's own three
// lies strictly inside the ball.
func (pv *pivoter) emptyBall(center r3.Vector, r float64, a, b, c int) bool {
	for _, idx := range pv.tree.RadiusSearch(center, r*(1-1e-7)) {
		if idx != a && idx != b && idx != c {
			return false
		}
	}
	return true
}

func perpComponent(v, axis r3.Vector) r3.Vector {
	return v.Sub(axis.Mul(v.Dot(axis)))
}

// orientTriangle winds the triangle so its face normal agrees with the vertex
// normals.
func orientTriangle(cloud *pointcloud.PointCloud, a, b, c int) (int, int, int) {
	pa, pb, pc := cloud.At(a), cloud.At(b), cloud.At(c)
	face := pb.Sub(pa).Cross(pc.Sub(pa))
	avg := cloud.Normal(a).Add(cloud.Normal(b)).Add(cloud.Normal(c))
	if face.Dot(avg) < 0 {
		return a, c, b
	}
	return a, b, c
}

func triKey(a, b, c int) [3]int {
	if a > b {
		a, b = b, a
	}
	if b > c {
		b, c = c, b
	}
	if a > b {
		a, b = b, a
	}
	return [3]int{a, b, c}
}
