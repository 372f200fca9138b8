package octree

import "github.com/golang/geo/r3"

// nodeView is what a predicate sees of one visited node: enough to decide
// value_check/inner_check without the predicate ever touching the map's
// internals directly.
type nodeView[T Payload[T]] struct {
	code    Code
	depth   uint8
	payload T
	isLeaf  bool
	bv      AABB
}

// Predicate is a composable node test: valueCheck decides whether a node
// itself is reported by a query, innerCheck decides whether its subtree is
// worth descending into at all. spatial marks predicates that need a
// node's bounding volume computed, so the iterator can skip that work for
// purely structural/attribute predicates.
type Predicate[T Payload[T]] struct {
	spatial bool
	value   func(nodeView[T]) bool
	inner   func(nodeView[T]) bool
}

// And combines two predicates: a node must satisfy both to be reported,
// and a subtree is descended only if both predicates think it's worth it.
func (p Predicate[T]) And(q Predicate[T]) Predicate[T] {
	return Predicate[T]{
		spatial: p.spatial || q.spatial,
		value:   func(v nodeView[T]) bool { return p.value(v) && q.value(v) },
		inner:   func(v nodeView[T]) bool { return p.inner(v) && q.inner(v) },
	}
}

// Or combines two predicates: a node is reported if either is satisfied.
// Pruning requires that *neither* predicate's subtree could match.
func (p Predicate[T]) Or(q Predicate[T]) Predicate[T] {
	return Predicate[T]{
		spatial: p.spatial || q.spatial,
		value:   func(v nodeView[T]) bool { return p.value(v) || q.value(v) },
		inner:   func(v nodeView[T]) bool { return p.inner(v) || q.inner(v) },
	}
}

// Not negates a predicate's value_check. Its inner_check is always true:
// a subtree p would prune (because no descendant satisfies p) may still
// contain descendants that satisfy !p, so negation can never safely prune.
func Not[T Payload[T]](p Predicate[T]) Predicate[T] {
	return Predicate[T]{
		spatial: p.spatial,
		value:   func(v nodeView[T]) bool { return !p.value(v) },
		inner:   func(nodeView[T]) bool { return true },
	}
}

// Exists matches every visited node. Since the iterator only ever visits
// materialised nodes, this is the identity predicate — it exists mainly
// so callers composing predicates have an explicit "no-op" to AND/OR
// against.
func Exists[T Payload[T]]() Predicate[T] {
	return Predicate[T]{
		value: func(nodeView[T]) bool { return true },
		inner: func(nodeView[T]) bool { return true },
	}
}

// Leaf matches nodes with no materialised children.
func Leaf[T Payload[T]]() Predicate[T] {
	return Predicate[T]{
		value: func(v nodeView[T]) bool { return v.isLeaf },
		inner: func(nodeView[T]) bool { return true },
	}
}

// Parent matches nodes that do have materialised children.
func Parent[T Payload[T]]() Predicate[T] {
	return Predicate[T]{
		value: func(v nodeView[T]) bool { return !v.isLeaf },
		inner: func(nodeView[T]) bool { return true },
	}
}

// DepthMin matches nodes at depth >= min. Since depth strictly decreases
// toward the leaves, once a node's own depth has dropped to min no
// descendant can satisfy the predicate either, so inner_check prunes
// there.
func DepthMin[T Payload[T]](min uint8) Predicate[T] {
	return Predicate[T]{
		value: func(v nodeView[T]) bool { return v.depth >= min },
		inner: func(v nodeView[T]) bool { return v.depth > min },
	}
}

// DepthMax matches nodes at depth <= max. Every subtree eventually reaches
// depth 0, so inner_check only prunes at true leaves.
func DepthMax[T Payload[T]](max uint8) Predicate[T] {
	return Predicate[T]{
		value: func(v nodeView[T]) bool { return v.depth <= max },
		inner: func(v nodeView[T]) bool { return v.depth > 0 },
	}
}

// Inside matches nodes whose center falls within box, pruning subtrees
// whose bounding volume doesn't even intersect it.
func Inside[T Payload[T]](box AABB) Predicate[T] {
	return Predicate[T]{
		spatial: true,
		value:   func(v nodeView[T]) bool { return box.Contains(v.bv.Center()) },
		inner:   func(v nodeView[T]) bool { return box.Intersects(v.bv) },
	}
}

// Within matches nodes whose center falls within sphere s.
func Within[T Payload[T]](s Sphere) Predicate[T] {
	return Predicate[T]{
		spatial: true,
		value:   func(v nodeView[T]) bool { return s.Contains(v.bv.Center()) },
		inner:   func(v nodeView[T]) bool { return s.IntersectsAABB(v.bv) },
	}
}

// Nearest marks a query as spatial without filtering anything on its own;
// actual nearest-neighbour ordering is the best-first iterator's job
// (NewNearestIterator), not a predicate's. This exists so Nearest composes
// harmlessly as one AND/OR term alongside a real filter predicate.
func Nearest[T Payload[T]](point r3.Vector) Predicate[T] {
	return Predicate[T]{
		spatial: true,
		value:   func(nodeView[T]) bool { return true },
		inner:   func(nodeView[T]) bool { return true },
	}
}

// OccupancyState matches nodes classified as state. Its inner_check adds a
// conservative pruning shortcut only in the cases where the configured
// aggregation makes it sound: under MAX aggregation a parent log-odds
// below the occupied threshold proves every child is too (MAX can only
// grow), and symmetrically for MIN/free. Outside those cases inner_check
// stays permissive rather than guessing.
func OccupancyState(state State) Predicate[OccupancyPayload] {
	return Predicate[OccupancyPayload]{
		value: func(v nodeView[OccupancyPayload]) bool { return v.payload.State() == state },
		inner: func(v nodeView[OccupancyPayload]) bool {
			p := v.payload
			if !p.Known || p.rules == nil {
				return true
			}
			switch {
			case state == Occupied && p.rules.aggregation == AggregationMax && p.LogOdds < p.rules.occThres:
				return false
			case state == Free && p.rules.aggregation == AggregationMin && p.LogOdds > p.rules.freeThres:
				return false
			default:
				return true
			}
		},
	}
}
