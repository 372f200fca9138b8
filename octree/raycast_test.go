package octree

import (
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
)

// TestInsertRayMarksPathFreeAndEndpointOccupied checks the DDA path: every
// depth-0 voxel the ray crosses on the way to the endpoint becomes Free,
// and the endpoint's own voxel becomes Occupied, once the pending writes
// are propagated.
func TestInsertRayMarksPathFreeAndEndpointOccupied(t *testing.T) {
	m := newTestMap(t)
	origin := r3.Vector{X: -0.5, Y: 0, Z: 0}
	endpoint := r3.Vector{X: 0.5, Y: 0, Z: 0}

	test.That(t, InsertRay(m, origin, endpoint), test.ShouldBeNil)
	test.That(t, m.PropagateModified(m.rootDepth, false), test.ShouldBeNil)

	midCode, err := m.ToCode(r3.Vector{}, 0)
	test.That(t, err, test.ShouldBeNil)
	mid, err := m.At(midCode)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, mid.State(), test.ShouldEqual, Free)

	endCode, err := m.ToCode(endpoint, 0)
	test.That(t, err, test.ShouldBeNil)
	end, err := m.At(endCode)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, end.State(), test.ShouldEqual, Occupied)

	test.That(t, midCode, test.ShouldNotEqual, endCode)
}

// TestInsertRayZeroLengthOnlyMarksEndpointOccupied checks the zero-distance
// short-circuit: origin == endpoint skips the DDA walk entirely and applies
// a single hit at that one voxel.
func TestInsertRayZeroLengthOnlyMarksEndpointOccupied(t *testing.T) {
	m := newTestMap(t)
	p := r3.Vector{X: 0.25, Y: -0.15, Z: 0.05}

	test.That(t, InsertRay(m, p, p), test.ShouldBeNil)
	test.That(t, m.PropagateModified(m.rootDepth, false), test.ShouldBeNil)

	code, err := m.ToCode(p, 0)
	test.That(t, err, test.ShouldBeNil)
	got, err := m.At(code)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, got.State(), test.ShouldEqual, Occupied)
}

// TestInsertRayRejectsOutOfBoundsOrigin checks that an out-of-span origin
// surfaces the same OutOfBounds error ToKey itself would report.
func TestInsertRayRejectsOutOfBoundsOrigin(t *testing.T) {
	m := newTestMap(t)
	half := m.nodeSizeTbl[m.rootDepth] / 2
	origin := r3.Vector{X: half * 2, Y: 0, Z: 0}
	endpoint := r3.Vector{}

	err := InsertRay(m, origin, endpoint)
	test.That(t, err, test.ShouldBeError)
	test.That(t, IsKind(err, OutOfBounds), test.ShouldBeTrue)
}
