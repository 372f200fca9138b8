package octree

import (
	"testing"

	"go.viam.com/test"
)

func TestQueryVisitsRootOnFreshMap(t *testing.T) {
	m := newTestMap(t)
	it := Query[OccupancyPayload](m, Exists[OccupancyPayload](), false)
	result, ok := it.Next()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, result.Code, test.ShouldEqual, NewCode(Key{}, m.rootDepth))

	_, ok = it.Next()
	test.That(t, ok, test.ShouldBeFalse) // the root is leaf-terminal, nothing else to visit
}

func TestQueryFindsOccupiedLeavesOnly(t *testing.T) {
	m := newTestMap(t)
	hit := NewCode(Key{4, 4, 4}, 0)
	miss := NewCode(Key{4, 4, 5}, 0)
	_, err := m.Apply(hit, OccupancyPayload.ApplyHit, OccupancyPayload.ApplyHit)
	test.That(t, err, test.ShouldBeNil)
	_, err = m.Apply(miss, OccupancyPayload.ApplyMiss, OccupancyPayload.ApplyMiss)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, m.PropagateModified(m.rootDepth, false), test.ShouldBeNil)

	pred := Leaf[OccupancyPayload]().And(OccupancyState(Occupied))
	it := Query[OccupancyPayload](m, pred, false)

	var found []Code
	for {
		r, ok := it.Next()
		if !ok {
			break
		}
		found = append(found, r.Code)
	}
	test.That(t, len(found), test.ShouldEqual, 1)
	test.That(t, found[0], test.ShouldEqual, hit)
}

func TestNearestIteratorOrdersByDistance(t *testing.T) {
	m := newTestMap(t)
	near := NewCode(Key{100, 100, 100}, 0)
	far := NewCode(Key{0, 0, 0}, 0)
	_, err := m.Apply(near, OccupancyPayload.ApplyHit, OccupancyPayload.ApplyHit)
	test.That(t, err, test.ShouldBeNil)
	_, err = m.Apply(far, OccupancyPayload.ApplyHit, OccupancyPayload.ApplyHit)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, m.PropagateModified(m.rootDepth, false), test.ShouldBeNil)

	point := m.CodeToCoord(near)
	it := NewNearestIterator[OccupancyPayload](m, point, 0)

	r, ok := it.Next()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, r.Code.Depth(), test.ShouldEqual, uint8(0))

	prevDist := 0.0
	count := 0
	for count < 20 {
		r, ok := it.Next()
		if !ok {
			break
		}
		d := boundingVolumeOfNode(m, queryNode[OccupancyPayload]{code: r.Code, depth: r.Code.Depth()}).DistanceToPoint(point)
		test.That(t, d >= prevDist-1e-9, test.ShouldBeTrue)
		prevDist = d
		count++
	}
}
