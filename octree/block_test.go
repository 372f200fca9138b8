package octree

import (
	"sync"
	"testing"

	"go.viam.com/test"
)

func TestSpinFlagMutualExclusion(t *testing.T) {
	var f spinFlag
	var counter int
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.Lock()
			counter++
			f.Unlock()
		}()
	}
	wg.Wait()
	test.That(t, counter, test.ShouldEqual, 50)
}

func TestInnerBlockLeafBits(t *testing.T) {
	b := newInnerBlock[OccupancyPayload]()
	for i := uint8(0); i < 8; i++ {
		test.That(t, b.isLeaf(i), test.ShouldBeTrue)
	}
	b.clearLeaf(3)
	test.That(t, b.isLeaf(3), test.ShouldBeFalse)
	test.That(t, b.isLeaf(4), test.ShouldBeTrue)
	b.setLeaf(3)
	test.That(t, b.isLeaf(3), test.ShouldBeTrue)
}

func TestInnerBlockModifiedBits(t *testing.T) {
	b := newInnerBlock[OccupancyPayload]()
	test.That(t, b.isModified(0), test.ShouldBeFalse)
	b.setModified(0)
	b.setModified(7)
	test.That(t, b.isModified(0), test.ShouldBeTrue)
	test.That(t, b.isModified(7), test.ShouldBeTrue)
	test.That(t, b.isModified(1), test.ShouldBeFalse)
	b.clearModified(0)
	test.That(t, b.isModified(0), test.ShouldBeFalse)
}

func TestInnerBlockReset(t *testing.T) {
	b := newInnerBlock[OccupancyPayload]()
	b.clearLeaf(2)
	b.setModified(2)
	b.reset()
	test.That(t, b.leaf, test.ShouldEqual, uint8(0xff))
	test.That(t, b.modified, test.ShouldEqual, uint8(0))
}

func TestAllocatorReuse(t *testing.T) {
	a := newAllocator[OccupancyPayload](LockNone, true, NoopLogger())
	b1 := a.allocInner()
	a.freeInner(b1, true)
	c := a.counts()
	test.That(t, c.InnerUsed, test.ShouldEqual, int64(0))
	test.That(t, c.InnerAllocated, test.ShouldEqual, int64(1))

	b2 := a.allocInner()
	test.That(t, b2, test.ShouldEqual, b1) // reused from the pool, not freshly allocated
	c = a.counts()
	test.That(t, c.InnerAllocated, test.ShouldEqual, int64(1))
}

func TestAllocatorNoReuseDiscards(t *testing.T) {
	a := newAllocator[OccupancyPayload](LockNone, true, NoopLogger())
	b1 := a.allocInner()
	a.freeInner(b1, false)
	b2 := a.allocInner()
	test.That(t, b2 == b1, test.ShouldBeFalse)
}

func TestAllocatorLockForModes(t *testing.T) {
	b := newInnerBlock[OccupancyPayload]()
	depthFlags := make([]spinFlag, 4)

	aNode := newAllocator[OccupancyPayload](LockNode, false, NoopLogger())
	test.That(t, aNode.lockFor(b, 3, depthFlags, 1), test.ShouldEqual, &b.locks[3])

	aDepth := newAllocator[OccupancyPayload](LockDepth, false, NoopLogger())
	test.That(t, aDepth.lockFor(b, 3, depthFlags, 2), test.ShouldEqual, &depthFlags[2])

	aNone := newAllocator[OccupancyPayload](LockNone, false, NoopLogger())
	test.That(t, aNone.lockFor(b, 3, depthFlags, 2), test.ShouldBeNil)
}
