package pointcloud

import (
	"sort"

	"github.com/golang/geo/r3"
)

// KDTree is a static 3-d tree over the points of a cloud, used for
// correspondence search during registration and for neighborhood queries
// during normal estimation and outlier filtering.
type KDTree struct {
	Cloud *PointCloud
	nodes []kdNode
	root  int32
}

type kdNode struct {
	idx         int32
	left, right int32
}

// NewKDTree builds a k-d tree over the given cloud.
func NewKDTree(cloud *PointCloud) *KDTree {
	t := &KDTree{Cloud: cloud, root: -1}
	n := cloud.Len()
	if n == 0 {
		return t
	}
	idxs := make([]int32, n)
	for i := range idxs {
		idxs[i] = int32(i)
	}
	t.nodes = make([]kdNode, 0, n)
	t.root = t.build(idxs, 0)
	return t
}

func (t *KDTree) build(idxs []int32, depth int) int32 {
	if len(idxs) == 0 {
		return -1
	}
	axis := depth % 3
	sort.Slice(idxs, func(a, b int) bool {
		return axisValue(t.Cloud.At(int(idxs[a])), axis) < axisValue(t.Cloud.At(int(idxs[b])), axis)
	})
	mid := len(idxs) / 2
	node := kdNode{idx: idxs[mid]}
	pos := int32(len(t.nodes))
	t.nodes = append(t.nodes, node)
	left := t.build(idxs[:mid], depth+1)
	right := t.build(idxs[mid+1:], depth+1)
	t.nodes[pos].left = left
	t.nodes[pos].right = right
	return pos
}

func axisValue(v r3.Vector, axis int) float64 {
	switch axis {
	case 0:
		return v.X
	case 1:
		return v.Y
	default:
		return v.Z
	}
}

// Nearest returns the index of the closest point to p and the squared distance
// to it. ok is false for an empty tree.
func (t *KDTree) Nearest(p r3.Vector) (int, float64, bool) {
	if t.root < 0 {
		return 0, 0, false
	}
	best := int32(-1)
	bestDist := 0.0
	t.nearest(t.root, 0, p, &best, &bestDist)
	return int(best), bestDist, true
}

func (t *KDTree) nearest(node int32, depth int, p r3.Vector, best *int32, bestDist *float64) {
	if node < 0 {
		return
	}
	n := t.nodes[node]
	pt := t.Cloud.At(int(n.idx))
	d := p.Sub(pt).Norm2()
	if *best < 0 || d < *bestDist {
		*best = n.idx
		*bestDist = d
	}
	axis := depth % 3
	diff := axisValue(p, axis) - axisValue(pt, axis)
	near, far := n.left, n.right
	if diff > 0 {
		near, far = far, near
	}
	t.nearest(near, depth+1, p, best, bestDist)
	if diff*diff < *bestDist {
		t.nearest(far, depth+1, p, best, bestDist)
	}
}

type neighbor struct {
	idx  int32
	dist float64
}

// NearestK returns up to k indices of the nearest points to p, ordered closest
// first, along with their squared distances.
func (t *KDTree) NearestK(p r3.Vector, k int) ([]int, []float64) {
	if t.root < 0 || k <= 0 {
		return nil, nil
	}
	heap := make([]neighbor, 0, k)
	t.nearestK(t.root, 0, p, k, &heap)
	sort.Slice(heap, func(a, b int) bool { return heap[a].dist < heap[b].dist })
	idxs := make([]int, len(heap))
	dists := make([]float64, len(heap))
	for i, nb := range heap {
		idxs[i] = int(nb.idx)
		dists[i] = nb.dist
	}
	return idxs, dists
}

func (t *KDTree) nearestK(node int32, depth int, p r3.Vector, k int, heap *[]neighbor) {
	if node < 0 {
		return
	}
	n := t.nodes[node]
	pt := t.Cloud.At(int(n.idx))
	d := p.Sub(pt).Norm2()
	if len(*heap) < k {
		*heap = append(*heap, neighbor{n.idx, d})
		siftUpMax(*heap)
	} else if d < (*heap)[0].dist {
		(*heap)[0] = neighbor{n.idx, d}
		siftDownMax(*heap)
	}
	axis := depth % 3
	diff := axisValue(p, axis) - axisValue(pt, axis)
	near, far := n.left, n.right
	if diff > 0 {
		near, far = far, near
	}
	t.nearestK(near, depth+1, p, k, heap)
	if len(*heap) < k || diff*diff < (*heap)[0].dist {
		t.nearestK(far, depth+1, p, k, heap)
	}
}

// max-heap on dist, root at 0
func siftUpMax(h []neighbor) {
	i := len(h) - 1
	for i > 0 {
		parent := (i - 1) / 2
		if h[parent].dist >= h[i].dist {
			break
		}
		h[parent], h[i] = h[i], h[parent]
		i = parent
	}
}

func siftDownMax(h []neighbor) {
	i := 0
	for {
		l, r := 2*i+1, 2*i+2
		largest := i
		if l < len(h) && h[l].dist > h[largest].dist {
			largest = l
		}
		if r < len(h) && h[r].dist > h[largest].dist {
			largest = r
		}
		if largest == i {
			return
		}
		h[i], h[largest] = h[largest], h[i]
		i = largest
	}
}

// RadiusSearch returns the indices of all points within radius of p.
func (t *KDTree) RadiusSearch(p r3.Vector, radius float64) []int {
	if t.root < 0 || radius <= 0 {
		return nil
	}
	var out []int
	t.radius(t.root, 0, p, radius*radius, &out)
	return out
}

func (t *KDTree) radius(node int32, depth int, p r3.Vector, r2v float64, out *[]int) {
	if node < 0 {
		return
	}
	n := t.nodes[node]
	pt := t.Cloud.At(int(n.idx))
	if p.Sub(pt).Norm2() <= r2v {
		*out = append(*out, int(n.idx))
	}
	axis := depth % 3
	diff := axisValue(p, axis) - axisValue(pt, axis)
	near, far := n.left, n.right
	if diff > 0 {
		near, far = far, near
	}
	t.radius(near, depth+1, p, r2v, out)
	if diff*diff <= r2v {
		t.radius(far, depth+1, p, r2v, out)
	}
}
