package octree

import (
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
)

func TestDepthMinMaxPruning(t *testing.T) {
	min := DepthMin[OccupancyPayload](3)
	max := DepthMax[OccupancyPayload](5)

	shallow := nodeView[OccupancyPayload]{depth: 2}
	mid := nodeView[OccupancyPayload]{depth: 4}
	deep := nodeView[OccupancyPayload]{depth: 6}

	test.That(t, min.value(shallow), test.ShouldBeFalse)
	test.That(t, min.inner(shallow), test.ShouldBeFalse)
	test.That(t, min.value(mid), test.ShouldBeTrue)
	test.That(t, min.inner(mid), test.ShouldBeTrue)

	test.That(t, max.value(deep), test.ShouldBeFalse)
	test.That(t, max.inner(deep), test.ShouldBeTrue) // only leaves (depth 0) ever prune DepthMax
}

func TestAndOrNot(t *testing.T) {
	leaf := Leaf[OccupancyPayload]()
	parent := Parent[OccupancyPayload]()

	leafView := nodeView[OccupancyPayload]{isLeaf: true}
	parentView := nodeView[OccupancyPayload]{isLeaf: false}

	and := leaf.And(parent)
	test.That(t, and.value(leafView), test.ShouldBeFalse)
	test.That(t, and.value(parentView), test.ShouldBeFalse)

	or := leaf.Or(parent)
	test.That(t, or.value(leafView), test.ShouldBeTrue)
	test.That(t, or.value(parentView), test.ShouldBeTrue)

	not := Not(leaf)
	test.That(t, not.value(leafView), test.ShouldBeFalse)
	test.That(t, not.value(parentView), test.ShouldBeTrue)
	test.That(t, not.inner(leafView), test.ShouldBeTrue) // negation never prunes
}

func TestOccupancyStatePruningOnlySoundCases(t *testing.T) {
	cfgMax, err := newConfig(WithLeafSize(0.1), WithDepthLevels(8), WithAggregation(AggregationMax))
	test.That(t, err, test.ShouldBeNil)
	rulesMax := newAggregationRules(cfgMax)

	pred := OccupancyState(Occupied)
	low := NewOccupancyPayload(rulesMax).ApplyMiss()
	v := nodeView[OccupancyPayload]{payload: low}
	test.That(t, pred.inner(v), test.ShouldBeFalse) // max can only grow, so no child can be occupied

	cfgMean, err := newConfig(WithLeafSize(0.1), WithDepthLevels(8), WithAggregation(AggregationMean))
	test.That(t, err, test.ShouldBeNil)
	rulesMean := newAggregationRules(cfgMean)
	lowMean := NewOccupancyPayload(rulesMean).ApplyMiss()
	vMean := nodeView[OccupancyPayload]{payload: lowMean}
	test.That(t, pred.inner(vMean), test.ShouldBeTrue) // mean gives no sound bound, stays permissive
}

func TestInsideWithinBoundsCheck(t *testing.T) {
	box := AABB{Min: r3.Vector{X: -1, Y: -1, Z: -1}, Max: r3.Vector{X: 1, Y: 1, Z: 1}}
	inside := Inside[OccupancyPayload](box)

	contained := nodeView[OccupancyPayload]{bv: AABB{
		Min: r3.Vector{X: -0.1, Y: -0.1, Z: -0.1}, Max: r3.Vector{X: 0.1, Y: 0.1, Z: 0.1}}}
	outside := nodeView[OccupancyPayload]{bv: AABB{
		Min: r3.Vector{X: 5, Y: 5, Z: 5}, Max: r3.Vector{X: 6, Y: 6, Z: 6}}}

	test.That(t, inside.inner(contained), test.ShouldBeTrue)
	test.That(t, inside.inner(outside), test.ShouldBeFalse)
}
