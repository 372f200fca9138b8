package octree

import "unsafe"

// Map is a sparse, Morton-coded probabilistic octree over payload type T.
// The zero value is not usable; construct one with New.
type Map[T Payload[T]] struct {
	cfg   Config
	alloc *allocator[T]

	rootDepth uint8 // D-1

	rootPayload  T
	rootChild    *innerBlock[T] // nil until the first split below the root
	rootModified bool
	rootLock     spinFlag // guards rootChild creation under LockDepth/LockNode

	depthLocks []spinFlag // index by depth, used only under LockDepth

	nodeSizeTbl       []float64
	nodeSizeFactorTbl []float64
	maxValue          int64

	decode Decoder[T]

	size int64 // never written; always 0
}

// New constructs a Map over payload type T. seed is the payload value new
// nodes are filled from before any write (typically T's zero value, or
// for OccupancyPayload the value returned by NewOccupancyPayload).
func New[T Payload[T]](seed T, decode Decoder[T], opts ...Option) (*Map[T], error) {
	cfg, err := newConfig(opts...)
	if err != nil {
		return nil, err
	}

	m := &Map[T]{
		cfg:         cfg,
		alloc:       newAllocator[T](cfg.LockMode, cfg.CountNodes, cfg.Logger),
		rootDepth:   cfg.DepthLevels - 1,
		rootPayload: seed,
		decode:      decode,
	}
	m.depthLocks = make([]spinFlag, m.rootDepth+1)
	m.buildSizeTables()
	return m, nil
}

// SizeAt returns the edge length of a node at depth d. SizeAt(0) is the
// leaf-voxel edge length.
func (m *Map[T]) SizeAt(d uint8) float64 { return m.nodeSizeTbl[d] }

// RootDepth returns D-1, the depth of the single root node.
func (m *Map[T]) RootDepth() uint8 { return m.rootDepth }

// Root returns the payload currently stored at the root.
func (m *Map[T]) Root() T { return m.rootPayload }

// location pins down where find/createNode stopped: either at the root
// (no children at all yet) or at a specific slot of an inner or leaf
// block.
type location[T Payload[T]] struct {
	atRoot bool
	inner  *innerBlock[T]
	leafB  *leafBlock[T]
	slot   uint8
	depth  uint8
}

func (m *Map[T]) payloadAt(loc location[T]) T {
	switch {
	case loc.atRoot:
		return m.rootPayload
	case loc.inner != nil:
		return loc.inner.payload[loc.slot]
	default:
		return loc.leafB.payload[loc.slot]
	}
}

// find descends from the root following code's index at each depth,
// stopping at either the requested depth or the first leaf-terminal slot
// encountered — whichever is shallower. Per spec.md §8 this makes find
// monotone in depth: deeper codes return results at depth <= requested.
func (m *Map[T]) find(code Code) (location[T], error) {
	if code.Depth() > m.rootDepth {
		return location[T]{}, newError(OutOfBounds, "code depth %d exceeds root depth %d", code.Depth(), m.rootDepth)
	}

	if code.Depth() == m.rootDepth || m.rootChild == nil {
		return location[T]{atRoot: true, depth: m.rootDepth}, nil
	}

	bd := m.rootDepth - 1
	idx := code.Index(bd)
	cur := m.rootChild

	for {
		if cur.isLeaf(idx) || bd == code.Depth() {
			return location[T]{inner: cur, slot: idx, depth: bd}, nil
		}
		c := cur.kids[idx]
		if bd-1 == 0 {
			// depth-0 nodes have no leaf/modified bits of their own, so
			// the slot within the leaf block is simply code's index at
			// depth 0.
			return location[T]{leafB: c.leaf, slot: code.Index(0), depth: 0}, nil
		}
		cur = c.inner
		bd--
		idx = code.Index(bd)
	}
}

// Exists reports whether code names a node that has actually been
// materialised in the tree (as opposed to being collapsed into an
// ancestor).
func (m *Map[T]) Exists(code Code) (bool, error) {
	loc, err := m.find(code)
	if err != nil {
		return false, err
	}
	return loc.depth == code.Depth(), nil
}

// IsLeaf reports whether code's node is leaf-terminal: it has no
// materialised children, regardless of whether code's own depth is 0.
func (m *Map[T]) IsLeaf(code Code) (bool, error) {
	loc, err := m.find(code)
	if err != nil {
		return false, err
	}
	if loc.depth != code.Depth() {
		// code names a node shallower than where we stopped -- it was
		// never materialised as distinct from its ancestor, so from the
		// caller's point of view it is indistinguishable from a leaf.
		return true, nil
	}
	if loc.atRoot {
		return m.rootChild == nil, nil
	}
	if loc.inner != nil {
		return loc.inner.isLeaf(loc.slot), nil
	}
	return true, nil // depth 0: always leaf-terminal
}

// IsModified reports whether code's node or any descendant carries a
// pending, un-propagated write.
func (m *Map[T]) IsModified(code Code) (bool, error) {
	loc, err := m.find(code)
	if err != nil {
		return false, err
	}
	switch {
	case loc.atRoot:
		return m.rootModified, nil
	case loc.inner != nil:
		return loc.inner.isModified(loc.slot), nil
	default:
		return false, nil // depth 0 slots carry no modified bit of their own
	}
}

// At returns the payload stored at code, following find's "enclosing
// ancestor" rule when code's own depth was never materialised.
func (m *Map[T]) At(code Code) (T, error) {
	loc, err := m.find(code)
	if err != nil {
		var zero T
		return zero, err
	}
	return m.payloadAt(loc), nil
}

// Counts returns the allocator's live/allocated block statistics.
func (m *Map[T]) Counts() Counts { return m.alloc.counts() }

// MemoryUsage returns a lower bound, in bytes, on the memory held by
// currently-live node blocks.
func (m *Map[T]) MemoryUsage() uintptr {
	c := m.Counts()
	var innerSample innerBlock[T]
	var leafSample leafBlock[T]
	return uintptr(c.InnerUsed)*unsafe.Sizeof(innerSample) + uintptr(c.LeafUsed)*unsafe.Sizeof(leafSample)
}

// NumNodes returns the total number of materialised node slots: the
// root, plus every inner-block and leaf-block slot currently allocated.
// For a freshly cleared map this is 1 (the root only), matching
// spec.md's testable property for numLeafNodes + numInnerNodes +
// numInnerLeafNodes == 1. The count comes from the allocator's statistics,
// which are kept only while CountNodes is enabled (the default); with it
// disabled NumNodes always returns 1.
func (m *Map[T]) NumNodes() int64 {
	c := m.Counts()
	return 1 + c.InnerUsed*8 + c.LeafUsed*8
}

// Clear resets the map to a single root node, as if freshly constructed.
// When prune is true and ReuseNodes is set, existing blocks are returned to
// the allocator's free pool for reuse; otherwise they are discarded.
func (m *Map[T]) Clear(prune bool) {
	if m.rootChild != nil {
		m.freeSubtree(m.rootChild, m.rootDepth-1, prune && m.cfg.ReuseNodes)
	}
	m.rootChild = nil
	m.rootModified = false
	var zero T
	m.rootPayload = zero.Fill(m.rootPayload)
}

func (m *Map[T]) freeSubtree(b *innerBlock[T], depth uint8, reuse bool) {
	for i := uint8(0); i < 8; i++ {
		if b.isLeaf(i) {
			continue
		}
		kid := b.kids[i]
		if depth-1 == 0 {
			if kid.leaf != nil {
				m.alloc.freeLeaf(kid.leaf, reuse)
			}
			continue
		}
		if kid.inner != nil {
			m.freeSubtree(kid.inner, depth-1, reuse)
		}
	}
	m.alloc.freeInner(b, reuse)
}
