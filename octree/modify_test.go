package octree

import (
	"testing"

	"go.viam.com/test"
)

func TestApplyMarksAncestorSpineModified(t *testing.T) {
	m := newTestMap(t)
	code := NewCode(Key{5, 5, 5}, 0)

	_, err := m.Apply(code, OccupancyPayload.ApplyHit, OccupancyPayload.ApplyHit)
	test.That(t, err, test.ShouldBeNil)

	test.That(t, m.rootModified, test.ShouldBeTrue)

	// Walk the ancestor chain explicitly: every inner block on the path
	// from root to code must have its slot's modified bit set.
	loc, path, err := m.locatePath(code)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, loc.depth, test.ShouldEqual, uint8(0))
	for _, e := range path {
		test.That(t, e.inner.isModified(e.idx), test.ShouldBeTrue)
	}
}

func TestPropagateModifiedAggregatesMax(t *testing.T) {
	m := newTestMap(t, WithAggregation(AggregationMax))
	base := Key{0, 0, 0}

	// A hit and a miss among the same depth-0 block's siblings; MAX
	// aggregation should carry the highest log-odds up to the parent.
	hitCode := NewCode(base, 0)
	missCode := NewCode(Key{1, 0, 0}, 0)

	hitVal, err := m.Apply(hitCode, OccupancyPayload.ApplyHit, OccupancyPayload.ApplyHit)
	test.That(t, err, test.ShouldBeNil)
	_, err = m.Apply(missCode, OccupancyPayload.ApplyMiss, OccupancyPayload.ApplyMiss)
	test.That(t, err, test.ShouldBeNil)

	err = m.PropagateModified(m.rootDepth, false)
	test.That(t, err, test.ShouldBeNil)

	parentCode, _ := hitCode.Parent(1)
	parent, err := m.At(parentCode)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, parent.LogOdds, test.ShouldEqual, hitVal.LogOdds)

	stillModified, err := m.IsModified(hitCode)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, stillModified, test.ShouldBeFalse)
}

func TestPropagateModifiedPrunesHomogeneousBlock(t *testing.T) {
	m := newTestMap(t, WithAutomaticPrune(true))
	parentCode := NewCode(Key{}, 1)

	for i := uint8(0); i < 8; i++ {
		child, err := parentCode.Child(i)
		test.That(t, err, test.ShouldBeNil)
		_, err = m.Apply(child, OccupancyPayload.ApplyHit, OccupancyPayload.ApplyHit)
		test.That(t, err, test.ShouldBeNil)
	}

	leafBefore, err := m.IsLeaf(parentCode)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, leafBefore, test.ShouldBeFalse)

	err = m.PropagateModified(m.rootDepth, false)
	test.That(t, err, test.ShouldBeNil)

	leafAfter, err := m.IsLeaf(parentCode)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, leafAfter, test.ShouldBeTrue)

	got, err := m.At(parentCode)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, got.State(), test.ShouldEqual, Occupied)
}

func TestResetModifiedAbandonsWrites(t *testing.T) {
	m := newTestMap(t)
	code := NewCode(Key{9, 9, 9}, 0)
	_, err := m.Apply(code, OccupancyPayload.ApplyHit, OccupancyPayload.ApplyHit)
	test.That(t, err, test.ShouldBeNil)

	m.ResetModified(m.rootDepth)

	modified, err := m.IsModified(code)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, modified, test.ShouldBeFalse)
	test.That(t, m.rootModified, test.ShouldBeFalse)

	// The write itself is not undone, only the pending-propagation marker.
	got, err := m.At(code)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, got.Known, test.ShouldBeTrue)
}

// TestApplyOnInteriorSlotRecursesThroughMaterialisedSubtree covers Apply's
// interior-non-leaf branch: a target whose slot already has a materialised,
// non-leaf subtree below it must recurse through that subtree via f/f_block
// rather than overwriting the slot's aggregate directly, and the forced
// write must be fully visible (no stuck modified bits, no stale aggregate)
// after the next PropagateModified.
func TestApplyOnInteriorSlotRecursesThroughMaterialisedSubtree(t *testing.T) {
	m := newTestMap(t)
	leafCode := NewCode(Key{4, 4, 4}, 0)

	_, err := m.Apply(leafCode, OccupancyPayload.ApplyHit, OccupancyPayload.ApplyHit)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, m.PropagateModified(m.rootDepth, false), test.ShouldBeNil)

	ancestorCode, err := leafCode.Parent(2)
	test.That(t, err, test.ShouldBeNil)
	leaf, err := m.IsLeaf(ancestorCode)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, leaf, test.ShouldBeFalse)

	calls := 0
	markMiss := func(p OccupancyPayload) OccupancyPayload {
		calls++
		return p.ApplyMiss()
	}

	_, err = m.Apply(ancestorCode, markMiss, markMiss)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, calls > 0, test.ShouldBeTrue)

	modified, err := m.IsModified(ancestorCode)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, modified, test.ShouldBeTrue)

	test.That(t, m.PropagateModified(m.rootDepth, false), test.ShouldBeNil)

	// No slot in the subtree may still report itself modified: the forced
	// write must be fully resolved, not left stuck.
	stillModified, err := m.IsModified(ancestorCode)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, stillModified, test.ShouldBeFalse)

	// One miss does not outweigh the earlier hit (logit(0.85) exceeds
	// -logit(0.4)), so the leaf and its MAX-aggregated ancestor stay occupied.
	got, err := m.At(leafCode)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, got.State(), test.ShouldEqual, Occupied)

	ancestorAfter, err := m.At(ancestorCode)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, ancestorAfter.State(), test.ShouldEqual, Occupied)
}

func TestSetModifiedRespectsMinDepth(t *testing.T) {
	m := newTestMap(t)
	code := NewCode(Key{2, 2, 2}, 0)
	_, err := m.Apply(code, OccupancyPayload.ApplyHit, OccupancyPayload.ApplyHit)
	test.That(t, err, test.ShouldBeNil)
	m.ResetModified(m.rootDepth)

	err = m.SetModified(code, m.rootDepth-1)
	test.That(t, err, test.ShouldBeNil)

	_, path, err := m.locatePath(code)
	test.That(t, err, test.ShouldBeNil)
	for _, e := range path {
		want := e.depth >= m.rootDepth-1
		test.That(t, e.inner.isModified(e.idx), test.ShouldEqual, want)
	}
}
