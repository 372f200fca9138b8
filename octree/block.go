package octree

import (
	"runtime"
	"sync/atomic"
)

// spinFlag is a single test-and-set lock: CompareAndSwap spun until it
// succeeds. It is the primitive the allocator and tree skeleton build
// LockDepth/LockNode locking from.
type spinFlag struct {
	held atomic.Bool
}

func (f *spinFlag) Lock() {
	for !f.held.CompareAndSwap(false, true) {
		runtime.Gosched()
	}
}

func (f *spinFlag) Unlock() {
	f.held.Store(false)
}

// leafBlock holds the 8 depth-0 sibling payloads under one parent slot.
// Depth-0 nodes can never subdivide further, so a leaf block carries no
// child pointers, leaf bits or modified bits of its own — those live in
// the parent inner block's slot bitfields.
type leafBlock[T Payload[T]] struct {
	payload [8]T
}

// child is a small tagged union over the two block flavours: a block at
// depth d's children live at depth d-1, which is a leafBlock when d-1==0
// and an innerBlock otherwise. Exactly one field is non-nil, or both are
// nil when the slot is unpopulated.
type child[T Payload[T]] struct {
	inner *innerBlock[T]
	leaf  *leafBlock[T]
}

func (c child[T]) isNil() bool { return c.inner == nil && c.leaf == nil }

// innerBlock holds the 8 sibling nodes at some depth d >= 1 under one
// parent slot. Each slot carries its own aggregated payload plus,
// structurally, a child reference, a leaf bit and a modified bit.
type innerBlock[T Payload[T]] struct {
	payload  [8]T
	kids     [8]child[T]
	leaf     uint8 // bit i set: slot i has no children, payload[i] is authoritative
	modified uint8 // bit i set: slot i or a descendant carries an un-propagated write
	locks    [8]spinFlag
}

func newInnerBlock[T Payload[T]]() *innerBlock[T] {
	b := &innerBlock[T]{leaf: 0xff}
	return b
}

func (b *innerBlock[T]) isLeaf(i uint8) bool     { return b.leaf&(1<<i) != 0 }
func (b *innerBlock[T]) setLeaf(i uint8)         { b.leaf |= 1 << i }
func (b *innerBlock[T]) clearLeaf(i uint8)       { b.leaf &^= 1 << i }
func (b *innerBlock[T]) isModified(i uint8) bool { return b.modified&(1<<i) != 0 }
func (b *innerBlock[T]) setModified(i uint8)     { b.modified |= 1 << i }
func (b *innerBlock[T]) clearModified(i uint8)   { b.modified &^= 1 << i }

func (b *innerBlock[T]) reset() {
	var zero innerBlock[T]
	*b = zero
	b.leaf = 0xff
}

func (b *leafBlock[T]) reset() {
	var zero leafBlock[T]
	*b = zero
}

// allocator owns the free-list pools for leaf and inner blocks, one
// dedicated spin flag per pool so the deallocate-on-prune path stays
// thread-safe even in LockNone mode, per spec.md §4.2.
type allocator[T Payload[T]] struct {
	mode   LockMode
	logger Logger

	innerPoolLock spinFlag
	innerPool     []*innerBlock[T]

	leafPoolLock spinFlag
	leafPool     []*leafBlock[T]

	innerUsed      atomic.Int64
	innerAllocated atomic.Int64
	leafUsed       atomic.Int64
	leafAllocated  atomic.Int64

	count bool
}

func newAllocator[T Payload[T]](mode LockMode, count bool, logger Logger) *allocator[T] {
	return &allocator[T]{mode: mode, count: count, logger: logger}
}

func (a *allocator[T]) allocInner() *innerBlock[T] {
	a.innerPoolLock.Lock()
	var b *innerBlock[T]
	if n := len(a.innerPool); n > 0 {
		b = a.innerPool[n-1]
		a.innerPool = a.innerPool[:n-1]
	}
	a.innerPoolLock.Unlock()

	if b == nil {
		// Free-list pool was empty: this split grows the live set rather
		// than reusing a pruned block.
		a.logger.Debugf("octree: inner pool exhausted, allocating new block")
		b = newInnerBlock[T]()
		if a.count {
			a.innerAllocated.Add(1)
		}
	}
	if a.count {
		a.innerUsed.Add(1)
	}
	return b
}

func (a *allocator[T]) allocLeaf() *leafBlock[T] {
	a.leafPoolLock.Lock()
	var b *leafBlock[T]
	if n := len(a.leafPool); n > 0 {
		b = a.leafPool[n-1]
		a.leafPool = a.leafPool[:n-1]
	}
	a.leafPoolLock.Unlock()

	if b == nil {
		a.logger.Debugf("octree: leaf pool exhausted, allocating new block")
		b = &leafBlock[T]{}
		if a.count {
			a.leafAllocated.Add(1)
		}
	}
	if a.count {
		a.leafUsed.Add(1)
	}
	return b
}

// freeInner releases b. When reuse is true it is reset and returned to
// the pool for amortised reuse; otherwise it is simply discarded and left
// to the garbage collector.
func (a *allocator[T]) freeInner(b *innerBlock[T], reuse bool) {
	if a.count {
		a.innerUsed.Add(-1)
	}
	if !reuse {
		return
	}
	b.reset()
	a.innerPoolLock.Lock()
	a.innerPool = append(a.innerPool, b)
	a.innerPoolLock.Unlock()
}

func (a *allocator[T]) freeLeaf(b *leafBlock[T], reuse bool) {
	if a.count {
		a.leafUsed.Add(-1)
	}
	if !reuse {
		return
	}
	b.reset()
	a.leafPoolLock.Lock()
	a.leafPool = append(a.leafPool, b)
	a.leafPoolLock.Unlock()
}

// Counts is a snapshot of the allocator's informational statistics.
// Correctness of the tree never depends on these values; they exist for
// diagnostics and tuning.
type Counts struct {
	InnerUsed, InnerAllocated int64
	LeafUsed, LeafAllocated   int64
}

func (a *allocator[T]) counts() Counts {
	return Counts{
		InnerUsed:      a.innerUsed.Load(),
		InnerAllocated: a.innerAllocated.Load(),
		LeafUsed:       a.leafUsed.Load(),
		LeafAllocated:  a.leafAllocated.Load(),
	}
}

// lockFor returns the flag to take before mutating slot i of block b at
// depth d, according to the configured lock mode. It returns nil for
// LockNone, where callers must skip locking entirely.
func (a *allocator[T]) lockFor(b *innerBlock[T], i uint8, depthFlags []spinFlag, d uint8) *spinFlag {
	switch a.mode {
	case LockNode:
		return &b.locks[i]
	case LockDepth:
		return &depthFlags[d]
	default:
		return nil
	}
}
