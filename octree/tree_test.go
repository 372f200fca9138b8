package octree

import (
	"testing"

	"go.viam.com/test"
)

func TestNewValidatesConfig(t *testing.T) {
	_, err := NewOccupancyMap(WithLeafSize(0), WithDepthLevels(8))
	test.That(t, err, test.ShouldBeError)
	test.That(t, IsKind(err, InvalidArgument), test.ShouldBeTrue)

	_, err = NewOccupancyMap(WithLeafSize(0.1), WithDepthLevels(2))
	test.That(t, err, test.ShouldBeError)
	test.That(t, IsKind(err, InvalidDepth), test.ShouldBeTrue)

	_, err = NewOccupancyMap(WithLeafSize(0.1), WithDepthLevels(8))
	test.That(t, err, test.ShouldBeNil)
}

func TestFreshMapHasOneNode(t *testing.T) {
	m := newTestMap(t)
	test.That(t, m.NumNodes(), test.ShouldEqual, int64(1))
	test.That(t, m.RootDepth(), test.ShouldEqual, uint8(7))
}

func TestFreshMapRootIsLeaf(t *testing.T) {
	m := newTestMap(t)
	root := NewCode(Key{}, m.rootDepth)
	leaf, err := m.IsLeaf(root)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, leaf, test.ShouldBeTrue)

	exists, err := m.Exists(root)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, exists, test.ShouldBeTrue)
}

func TestExistsFalseForUnmaterialisedDescendant(t *testing.T) {
	m := newTestMap(t)
	deep := NewCode(Key{}, 0)
	exists, err := m.Exists(deep)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, exists, test.ShouldBeFalse)

	leaf, err := m.IsLeaf(deep)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, leaf, test.ShouldBeTrue) // collapsed into the root, indistinguishable from a leaf
}

func TestFindRejectsDepthAboveRoot(t *testing.T) {
	m := newTestMap(t)
	bad := NewCode(Key{}, m.rootDepth+1)
	_, err := m.Exists(bad)
	test.That(t, err, test.ShouldBeError)
	test.That(t, IsKind(err, OutOfBounds), test.ShouldBeTrue)
}

func TestClearReturnsToSingleNode(t *testing.T) {
	m := newTestMap(t)
	leaf := NewCode(Key{100, 100, 100}, 0)
	_, err := m.Apply(leaf, OccupancyPayload.ApplyHit, OccupancyPayload.ApplyHit)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, m.NumNodes() > 1, test.ShouldBeTrue)

	m.Clear(true)
	test.That(t, m.NumNodes(), test.ShouldEqual, int64(1))
	test.That(t, m.rootModified, test.ShouldBeFalse)
}
