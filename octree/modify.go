package octree

import "go.uber.org/multierr"

// pathEntry pins one step of the root-to-node descent: the inner block
// visited and the slot taken within it. apply and setModified both need
// the full path (not just the final location find gives tree.go's
// read-only accessors) so they can mark every ancestor's modified bit on
// the way back up without a second descent.
type pathEntry[T Payload[T]] struct {
	inner *innerBlock[T]
	idx   uint8
	depth uint8
}

// ensureRootChild lazily allocates the root's inner block the first time
// anything below the root is written. Safe under concurrent writers: the
// nil check is re-done after taking rootLock, since another goroutine may
// have already finished the allocation while this one was spinning.
func (m *Map[T]) ensureRootChild() {
	if m.rootChild != nil {
		return
	}
	if m.cfg.LockMode != LockNone {
		m.rootLock.Lock()
		defer m.rootLock.Unlock()
	}
	if m.rootChild != nil {
		return
	}
	b := m.alloc.allocInner()
	var zero T
	for i := 0; i < 8; i++ {
		b.payload[i] = zero.Fill(m.rootPayload)
	}
	m.rootChild = b
}

// splitSlot materialises slot i of cur (at depth bd) into a fresh child
// block, seeding all 8 grandchildren from cur's current payload for that
// slot. A no-op if the slot was split by a concurrent writer while this
// goroutine was waiting on the lock.
func (m *Map[T]) splitSlot(cur *innerBlock[T], i uint8, bd uint8) {
	lock := m.alloc.lockFor(cur, i, m.depthLocks, bd)
	if lock != nil {
		lock.Lock()
		defer lock.Unlock()
	}
	if !cur.isLeaf(i) {
		return
	}

	parentVal := cur.payload[i]
	var zero T
	if bd-1 == 0 {
		nb := m.alloc.allocLeaf()
		for s := 0; s < 8; s++ {
			nb.payload[s] = zero.Fill(parentVal)
		}
		cur.kids[i] = child[T]{leaf: nb}
	} else {
		nb := m.alloc.allocInner()
		for s := 0; s < 8; s++ {
			nb.payload[s] = zero.Fill(parentVal)
		}
		cur.kids[i] = child[T]{inner: nb}
	}
	cur.clearLeaf(i)
}

// createNode descends to code, splitting leaf-terminal slots along the way
// so that code's own depth is always reached, and returns both the final
// location and the full root-to-node path for the caller to mark modified.
func (m *Map[T]) createNode(code Code) (location[T], []pathEntry[T], error) {
	if code.Depth() > m.rootDepth {
		return location[T]{}, nil, newError(OutOfBounds, "code depth %d exceeds root depth %d", code.Depth(), m.rootDepth)
	}
	if code.Depth() == m.rootDepth {
		return location[T]{atRoot: true, depth: m.rootDepth}, nil, nil
	}

	m.ensureRootChild()

	bd := m.rootDepth - 1
	idx := code.Index(bd)
	cur := m.rootChild
	path := make([]pathEntry[T], 0, bd+1)

	for {
		path = append(path, pathEntry[T]{inner: cur, idx: idx, depth: bd})
		if bd == code.Depth() {
			return location[T]{inner: cur, slot: idx, depth: bd}, path, nil
		}
		if cur.isLeaf(idx) {
			m.splitSlot(cur, idx, bd)
		}
		kid := cur.kids[idx]
		if bd-1 == 0 {
			return location[T]{leafB: kid.leaf, slot: code.Index(0), depth: 0}, path, nil
		}
		cur = kid.inner
		bd--
		idx = code.Index(bd)
	}
}

// locatePath is createNode's read-only counterpart: it descends exactly as
// find does (stopping at the first leaf-terminal slot) but also records
// the path, for operations like setModified that must not materialise
// nodes that were never written.
func (m *Map[T]) locatePath(code Code) (location[T], []pathEntry[T], error) {
	if code.Depth() > m.rootDepth {
		return location[T]{}, nil, newError(OutOfBounds, "code depth %d exceeds root depth %d", code.Depth(), m.rootDepth)
	}
	if code.Depth() == m.rootDepth || m.rootChild == nil {
		return location[T]{atRoot: true, depth: m.rootDepth}, nil, nil
	}

	bd := m.rootDepth - 1
	idx := code.Index(bd)
	cur := m.rootChild
	path := make([]pathEntry[T], 0, bd+1)

	for {
		path = append(path, pathEntry[T]{inner: cur, idx: idx, depth: bd})
		if cur.isLeaf(idx) || bd == code.Depth() {
			return location[T]{inner: cur, slot: idx, depth: bd}, path, nil
		}
		kid := cur.kids[idx]
		if bd-1 == 0 {
			return location[T]{leafB: kid.leaf, slot: code.Index(0), depth: 0}, path, nil
		}
		cur = kid.inner
		bd--
		idx = code.Index(bd)
	}
}

func (m *Map[T]) setPayloadAt(loc location[T], v T) {
	switch {
	case loc.atRoot:
		m.rootPayload = v
	case loc.inner != nil:
		loc.inner.payload[loc.slot] = v
	default:
		loc.leafB.payload[loc.slot] = v
	}
}

// markModifiedPath sets the modified bit on every ancestor slot in path,
// plus the root's modified flag. Called after a successful write so that a
// later PropagateModified knows which spine to recompute.
func (m *Map[T]) markModifiedPath(path []pathEntry[T]) {
	m.rootModified = true
	for _, e := range path {
		e.inner.setModified(e.idx)
	}
}

// Apply is the Phase A local mutation: it locates (creating intermediate
// nodes as needed) the node named by target. If target is a single
// leaf-terminal slot, its payload becomes f(current). If target is an
// interior slot that already has a materialised, non-leaf subtree below
// it, the write recurses through that subtree instead of overwriting the
// slot's aggregate directly: fBlock is applied in bulk to any wholly-leaf
// sub-block it encounters, f to any individual leaf slot that survives
// within a still-mixed block. Either way, the target and every ancestor
// up to the root are marked modified; the new aggregate is not visible to
// ancestors until PropagateModified runs.
func (m *Map[T]) Apply(target Code, f func(T) T, fBlock func(T) T) (T, error) {
	loc, path, err := m.createNode(target)
	if err != nil {
		var zero T
		return zero, err
	}

	if loc.inner != nil && !loc.inner.isLeaf(loc.slot) {
		m.applyBlock(loc.inner.kids[loc.slot], loc.depth-1, f, fBlock)
		m.markModifiedPath(path)
		return loc.inner.payload[loc.slot], nil
	}

	newVal := f(m.payloadAt(loc))
	m.setPayloadAt(loc, newVal)
	m.markModifiedPath(path)
	return newVal, nil
}

// applyBlock carries an interior Apply down through an already-materialised
// subtree at c, whose slots live at depth. A wholly-leaf sub-block (every
// slot leaf-terminal, including any depth-0 leafBlock) takes fBlock's bulk
// fast path; a still-mixed inner block applies f to its own leaf-terminal
// slots and recurses into the rest. Every visited inner slot is marked
// modified on the way back up; the caller is responsible for marking the
// slot that owns c itself.
func (m *Map[T]) applyBlock(c child[T], depth uint8, f, fBlock func(T) T) {
	if depth == 0 {
		b := c.leaf
		for i := 0; i < 8; i++ {
			b.payload[i] = fBlock(b.payload[i])
		}
		return
	}

	b := c.inner
	if b.leaf == 0xff {
		for i := uint8(0); i < 8; i++ {
			b.payload[i] = fBlock(b.payload[i])
			b.setModified(i)
		}
		return
	}
	for i := uint8(0); i < 8; i++ {
		if b.isLeaf(i) {
			b.payload[i] = f(b.payload[i])
			b.setModified(i)
			continue
		}
		m.applyBlock(b.kids[i], depth-1, f, fBlock)
		b.setModified(i)
	}
}

// SetModified marks code's node, and every existing ancestor at depth >=
// minDepth, as modified, without changing any payload. It does not
// materialise nodes that don't already exist; use Apply for that. A
// caller that only needs a shallow spine re-propagated (for example,
// after a batch of Applies whose deepest common ancestor is known) passes
// a minDepth above 0 to skip marking the untouched depths below it.
func (m *Map[T]) SetModified(code Code, minDepth uint8) error {
	_, path, err := m.locatePath(code)
	if err != nil {
		return err
	}
	m.rootModified = true
	for _, e := range path {
		if e.depth < minDepth {
			continue
		}
		e.inner.setModified(e.idx)
	}
	return nil
}

// ResetModified discards every pending modified bit at or below maxDepth,
// without recomputing any aggregate. This abandons
// uncommitted writes rather than integrating them, matching the recovery
// path for a PropagateModified call that returned a propagation-hook
// error: the affected subtree's modified bits are cleared so a retry does
// not loop forever re-attempting the same failing Update.
func (m *Map[T]) ResetModified(maxDepth uint8) {
	if m.rootChild == nil {
		m.rootModified = false
		return
	}
	m.resetModifiedBlock(m.rootChild, m.rootDepth-1, maxDepth)
	if maxDepth >= m.rootDepth {
		m.rootModified = false
	}
}

func (m *Map[T]) resetModifiedBlock(cur *innerBlock[T], depth uint8, maxDepth uint8) {
	if cur.modified == 0 {
		return
	}
	for i := uint8(0); i < 8; i++ {
		if !cur.isModified(i) {
			continue
		}
		if !cur.isLeaf(i) && depth-1 != 0 {
			m.resetModifiedBlock(cur.kids[i].inner, depth-1, maxDepth)
		}
		if depth <= maxDepth {
			cur.clearModified(i)
		}
	}
}

// pruneSlot collapses slot i of cur (whose child subtree is at depth
// childDepth) back to leaf-terminal, returning its child block to the
// allocator. Called only once that block's aggregate has been folded into
// cur.payload[i] and Payload.Collapsible confirmed the subtree is
// homogeneous.
func (m *Map[T]) pruneSlot(cur *innerBlock[T], i uint8, childDepth uint8) {
	m.cfg.Logger.Debugf("octree: pruning collapsible block at depth %d, slot %d", childDepth, i)
	kid := cur.kids[i]
	if childDepth == 0 {
		m.alloc.freeLeaf(kid.leaf, m.cfg.ReuseNodes)
	} else {
		m.alloc.freeInner(kid.inner, m.cfg.ReuseNodes)
	}
	cur.kids[i] = child[T]{}
	cur.setLeaf(i)
}

// PropagateModified is the Phase B upward pass: every slot marked modified
// at or below maxDepth has its aggregate recomputed from its 8 children via
// Payload.Update, bottom-up. When AutomaticPrune is set, a slot whose
// freshly recomputed children are all Payload.Collapsible is pruned back to
// leaf-terminal. Unless keepModified is true, modified bits are cleared as
// they are resolved; bits above maxDepth are always left set for a later
// call, preserving the lazy propagation contract. The walk joins the errors
// of its sub-walks with multierr and leaves a slot's modified bit set when
// its sub-walk failed; Payload.Update has no error result, so no step of the
// walk produces an error and the returned error is always nil. An Update
// that panics unwinds the walk with that slot's aggregate un-updated and its
// modified bit, and those of its ancestors, still set.
func (m *Map[T]) PropagateModified(maxDepth uint8, keepModified bool) error {
	if m.rootChild == nil || !m.rootModified {
		return nil
	}
	bd := m.rootDepth - 1
	changed, err := m.propagateBlock(m.rootChild, bd, maxDepth, keepModified)
	if changed {
		m.rootPayload = m.rootPayload.Update(m.rootChild.payload)
	}
	if !keepModified && m.rootChild.modified == 0 {
		m.rootModified = false
	}
	if err != nil {
		m.cfg.Logger.Warnf("octree: propagate modified reported errors, affected slots left modified for retry: %v", err)
	}
	return err
}

func (m *Map[T]) propagateBlock(cur *innerBlock[T], depth uint8, maxDepth uint8, keepModified bool) (bool, error) {
	if cur.modified == 0 {
		return false, nil
	}
	if depth > maxDepth {
		// This level's aggregates and modified bits are left for a later
		// call; only the modified subtrees below it are walked.
		var errs error
		for i := uint8(0); i < 8; i++ {
			if cur.isModified(i) && !cur.isLeaf(i) && depth-1 != 0 {
				_, err := m.propagateBlock(cur.kids[i].inner, depth-1, maxDepth, keepModified)
				errs = multierr.Append(errs, err)
			}
		}
		return false, errs
	}

	var errs error
	changedAny := false

	for i := uint8(0); i < 8; i++ {
		if !cur.isModified(i) {
			continue
		}
		if cur.isLeaf(i) {
			// A direct write landed on this slot itself (depth 0, or a
			// slot that was written before ever being split); there is
			// nothing underneath to aggregate.
			changedAny = true
			if !keepModified {
				cur.clearModified(i)
			}
			continue
		}

		kid := cur.kids[i]
		var children [8]T
		var childChanged bool
		var err error
		var childStillDirty bool

		if depth-1 == 0 {
			children = kid.leaf.payload
			childChanged = true
		} else {
			childChanged, err = m.propagateBlock(kid.inner, depth-1, maxDepth, keepModified)
			children = kid.inner.payload
			childStillDirty = kid.inner.modified != 0
		}
		errs = multierr.Append(errs, err)
		if err != nil {
			continue // leave this slot's modified bit set for a retry
		}
		if !childChanged {
			continue
		}

		cur.payload[i] = cur.payload[i].Update(children)
		changedAny = true

		if m.cfg.AutomaticPrune && !childStillDirty && cur.payload[i].Collapsible(children) {
			m.pruneSlot(cur, i, depth-1)
		}
		if !keepModified && !childStillDirty {
			cur.clearModified(i)
		}
	}

	return changedAny, errs
}
