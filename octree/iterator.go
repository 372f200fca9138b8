package octree

import (
	"container/heap"

	"github.com/golang/geo/r3"
)

// queryNode is one visited position during traversal, carrying just
// enough to test a Predicate against it and, if it isn't leaf-terminal, to
// expand its children without re-descending from the root.
type queryNode[T Payload[T]] struct {
	code       Code
	depth      uint8
	payload    T
	isLeaf     bool
	childInner *innerBlock[T]
	childLeaf  *leafBlock[T]
}

func rootQueryNode[T Payload[T]](m *Map[T]) queryNode[T] {
	return queryNode[T]{
		code:       NewCode(Key{}, m.rootDepth),
		depth:      m.rootDepth,
		payload:    m.rootPayload,
		isLeaf:     m.rootChild == nil,
		childInner: m.rootChild,
	}
}

// expand returns n's 8 children. n must not be leaf-terminal.
func expand[T Payload[T]](n queryNode[T]) [8]queryNode[T] {
	var out [8]queryNode[T]
	if n.childLeaf != nil {
		for j := uint8(0); j < 8; j++ {
			code, _ := n.code.Child(j)
			out[j] = queryNode[T]{code: code, depth: 0, payload: n.childLeaf.payload[j], isLeaf: true}
		}
		return out
	}
	inner := n.childInner
	for j := uint8(0); j < 8; j++ {
		code, _ := n.code.Child(j)
		leafBit := inner.isLeaf(j)
		cn := queryNode[T]{code: code, depth: n.depth - 1, payload: inner.payload[j], isLeaf: leafBit}
		if !leafBit {
			kid := inner.kids[j]
			if cn.depth-1 == 0 {
				cn.childLeaf = kid.leaf
			} else {
				cn.childInner = kid.inner
			}
		}
		out[j] = cn
	}
	return out
}

// boundingVolumeOfNode returns the world-space AABB covering n, computed
// from the map's coordinate mapping (C4). Only called for spatial
// predicates and the nearest iterator; structural-only queries never pay
// for it.
func boundingVolumeOfNode[T Payload[T]](m *Map[T], n queryNode[T]) AABB {
	center := m.CodeToCoord(n.code)
	half := m.SizeAt(n.depth) / 2
	return AABB{
		Min: r3.Vector{X: center.X - half, Y: center.Y - half, Z: center.Z - half},
		Max: r3.Vector{X: center.X + half, Y: center.Y + half, Z: center.Z + half},
	}
}

func (n queryNode[T]) view(m *Map[T], pred Predicate[T]) nodeView[T] {
	nv := nodeView[T]{code: n.code, depth: n.depth, payload: n.payload, isLeaf: n.isLeaf}
	if pred.spatial {
		nv.bv = boundingVolumeOfNode(m, n)
	}
	return nv
}

// QueryResult is one match yielded by a query iterator.
type QueryResult[T Payload[T]] struct {
	Code    Code
	Payload T
}

// QueryIterator is the lazy, finite, non-restartable depth-first pre-order
// iterator spec.md §4.6 describes: it holds a read borrow on the map (no
// structural mutation should happen concurrently with iteration) and walks
// nodes in pre-order, testing Predicate.value/Predicate.inner at each and
// pruning subtrees whose inner_check fails.
type QueryIterator[T Payload[T]] struct {
	m         *Map[T]
	pred      Predicate[T]
	earlyStop bool
	stack     []queryNode[T]
	done      bool
}

// Query returns a QueryIterator over m matching pred. When earlyStop is
// true, a node whose inner_check fails is yielded itself (in addition to
// being pruned), letting a caller collect aggregated ancestors of pruned
// regions instead of silently losing them.
func Query[T Payload[T]](m *Map[T], pred Predicate[T], earlyStop bool) *QueryIterator[T] {
	return &QueryIterator[T]{
		m:         m,
		pred:      pred,
		earlyStop: earlyStop,
		stack:     []queryNode[T]{rootQueryNode(m)},
	}
}

// Next advances the iterator. It returns false once exhausted; the
// iterator must not be reused afterward.
func (it *QueryIterator[T]) Next() (QueryResult[T], bool) {
	if it.done {
		return QueryResult[T]{}, false
	}
	for len(it.stack) > 0 {
		n := it.stack[len(it.stack)-1]
		it.stack = it.stack[:len(it.stack)-1]

		v := n.view(it.m, it.pred)
		innerOK := it.pred.inner(v)
		if innerOK && !n.isLeaf {
			children := expand(n)
			for j := 7; j >= 0; j-- {
				it.stack = append(it.stack, children[j])
			}
		}
		if it.pred.value(v) || (it.earlyStop && !innerOK) {
			return QueryResult[T]{Code: n.code, Payload: n.payload}, true
		}
	}
	it.done = true
	return QueryResult[T]{}, false
}

// nearestItem is one entry in the best-first priority queue: a pending
// node plus the distance from the query point to its bounding volume
// (a lower bound on the distance to anything within it).
type nearestItem[T Payload[T]] struct {
	node queryNode[T]
	dist float64
}

type nearestHeap[T Payload[T]] []nearestItem[T]

func (h nearestHeap[T]) Len() int { return len(h) }
func (h nearestHeap[T]) Less(i, j int) bool {
	if h[i].dist != h[j].dist {
		return h[i].dist < h[j].dist
	}
	return h[i].node.code < h[j].node.code // deterministic tie-break
}
func (h nearestHeap[T]) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *nearestHeap[T]) Push(x any)   { *h = append(*h, x.(nearestItem[T])) }
func (h *nearestHeap[T]) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// NearestIterator is the best-first iterator from spec.md §4.6: a
// container/heap priority queue over pending subtrees ordered by the
// distance from the query point to each subtree's bounding volume,
// refining the closest candidate until it bottoms out at a leaf (or a
// node small enough that epsilon tolerance makes further refinement
// pointless).
type NearestIterator[T Payload[T]] struct {
	m       *Map[T]
	point   r3.Vector
	epsilon float64
	h       nearestHeap[T]
}

// NewNearestIterator returns a NearestIterator yielding nodes of m in
// increasing distance from point. epsilon bounds how small a candidate
// subtree must shrink to before it is reported directly rather than being
// subdivided further; with epsilon == 0 every materialised subtree is
// refined down to its leaf-terminal nodes.
func NewNearestIterator[T Payload[T]](m *Map[T], point r3.Vector, epsilon float64) *NearestIterator[T] {
	root := rootQueryNode(m)
	bv := boundingVolumeOfNode(m, root)
	h := nearestHeap[T]{{node: root, dist: bv.DistanceToPoint(point)}}
	heap.Init(&h)
	return &NearestIterator[T]{m: m, point: point, epsilon: epsilon, h: h}
}

// Next advances the iterator, returning the next-nearest node.
func (it *NearestIterator[T]) Next() (QueryResult[T], bool) {
	for len(it.h) > 0 {
		item := heap.Pop(&it.h).(nearestItem[T])
		n := item.node
		if n.isLeaf || n.depth == 0 || it.m.SizeAt(n.depth) <= it.epsilon {
			return QueryResult[T]{Code: n.code, Payload: n.payload}, true
		}
		for _, c := range expand(n) {
			bv := boundingVolumeOfNode(it.m, c)
			heap.Push(&it.h, nearestItem[T]{node: c, dist: bv.DistanceToPoint(it.point)})
		}
	}
	return QueryResult[T]{}, false
}
