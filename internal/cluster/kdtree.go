package cluster

import (
	"math"
	"sort"
)

// kdNode is one node of a static kd-tree over embedding vectors. The tree is
// built once per cluster and only queried for nearest neighbors.
type kdNode struct {
	index       int
	axis        int
	left, right *kdNode
}

type kdTree struct {
	vectors [][]float64
	root    *kdNode
}

// newKDTree builds a balanced kd-tree over the given member indexes, splitting
// on the median along cycling axes.
func newKDTree(vectors [][]float64, members []int) *kdTree {
	indexes := append([]int(nil), members...)
	tree := &kdTree{vectors: vectors}
	if len(indexes) > 0 {
		dims := len(vectors[indexes[0]])
		tree.root = tree.build(indexes, 0, dims)
	}
	return tree
}

func (t *kdTree) build(indexes []int, depth, dims int) *kdNode {
	if len(indexes) == 0 {
		return nil
	}

	axis := depth % dims
	sort.Slice(indexes, func(a, b int) bool {
		return t.vectors[indexes[a]][axis] < t.vectors[indexes[b]][axis]
	})

	median := len(indexes) / 2
	return &kdNode{
		index: indexes[median],
		axis:  axis,
		left:  t.build(indexes[:median], depth+1, dims),
		right: t.build(indexes[median+1:], depth+1, dims),
	}
}

// nearest returns the member index whose vector is closest to target. The
// second return is false for an empty tree.
func (t *kdTree) nearest(target []float64) (int, bool) {
	if t.root == nil {
		return 0, false
	}

	best := t.root.index
	bestDist := euclidean(target, t.vectors[best])
	t.search(t.root, target, &best, &bestDist)
	return best, true
}

func (t *kdTree) search(node *kdNode, target []float64, best *int, bestDist *float64) {
	if node == nil {
		return
	}

	if d := euclidean(target, t.vectors[node.index]); d < *bestDist {
		*best = node.index
		*bestDist = d
	}

	diff := target[node.axis] - t.vectors[node.index][node.axis]
	near, far := node.left, node.right
	if diff > 0 {
		near, far = far, near
	}

	t.search(near, target, best, bestDist)
	if math.Abs(diff) < *bestDist {
		t.search(far, target, best, bestDist)
	}
}
