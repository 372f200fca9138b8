package octree

import (
	"math"

	"github.com/golang/geo/r3"
)

// InsertRay is the sensor-update composition spec.md §4.5 explicitly keeps
// outside the core algorithm: it walks the depth-0 voxels between origin
// and endpoint using Amanatides & Woo's integer DDA, applying a free-space
// miss to every voxel the ray passes through and an occupied hit at
// endpoint itself. It is built entirely from the exported ToKey/Apply
// surface (plus the map's own size/maxValue bookkeeping, since it lives in
// this package) — the core has no notion of "ray" beyond this one
// composition point.
func InsertRay(m *Map[OccupancyPayload], origin, endpoint r3.Vector) error {
	const depth = uint8(0)
	size := m.SizeAt(depth)

	dir := endpoint.Sub(origin)
	dist := dir.Norm()
	if dist < 1e-9 {
		code, err := m.ToCode(endpoint, depth)
		if err != nil {
			return err
		}
		_, err = m.Apply(code, OccupancyPayload.ApplyHit, OccupancyPayload.ApplyHit)
		return err
	}
	dir = dir.Mul(1 / dist)

	startKey, err := m.ToKey(origin, depth)
	if err != nil {
		return err
	}
	endKey, err := m.ToKey(endpoint, depth)
	if err != nil {
		return err
	}

	stepOf := func(d float64) int64 {
		switch {
		case d > 0:
			return 1
		case d < 0:
			return -1
		default:
			return 0
		}
	}
	stepX, stepY, stepZ := stepOf(dir.X), stepOf(dir.Y), stepOf(dir.Z)

	boundary := func(k uint32, s int64) float64 {
		rel := float64(int64(k) - m.maxValue)
		if s > 0 {
			rel++
		}
		return rel * size
	}
	tMaxOf := func(originComp float64, k uint32, s int64, d float64) float64 {
		if s == 0 {
			return math.Inf(1)
		}
		return (boundary(k, s) - originComp) / d
	}
	tDeltaOf := func(s int64, d float64) float64 {
		if s == 0 {
			return math.Inf(1)
		}
		return size / math.Abs(d)
	}

	tMaxX := tMaxOf(origin.X, startKey[0], stepX, dir.X)
	tMaxY := tMaxOf(origin.Y, startKey[1], stepY, dir.Y)
	tMaxZ := tMaxOf(origin.Z, startKey[2], stepZ, dir.Z)
	tDeltaX := tDeltaOf(stepX, dir.X)
	tDeltaY := tDeltaOf(stepY, dir.Y)
	tDeltaZ := tDeltaOf(stepZ, dir.Z)

	cur := startKey
	// Bound the walk generously against floating-point drift near the
	// endpoint voxel; a correct DDA never needs more steps than 3x the
	// straight-line voxel count.
	limit := int(dist/size)*3 + 8

	for i := 0; i < limit && cur != endKey; i++ {
		code := NewCode(cur, depth)
		if _, err := m.Apply(code, OccupancyPayload.ApplyMiss, OccupancyPayload.ApplyMiss); err != nil {
			return err
		}
		switch {
		case tMaxX < tMaxY && tMaxX < tMaxZ:
			cur[0] = uint32(int64(cur[0]) + stepX)
			tMaxX += tDeltaX
		case tMaxY < tMaxZ:
			cur[1] = uint32(int64(cur[1]) + stepY)
			tMaxY += tDeltaY
		default:
			cur[2] = uint32(int64(cur[2]) + stepZ)
			tMaxZ += tDeltaZ
		}
	}

	// Ray targets are always depth-0 leaves, which never take Apply's
	// interior-block branch, so passing the same function as both f and
	// f_block is exact rather than a convenient approximation.
	endCode := NewCode(endKey, depth)
	_, err = m.Apply(endCode, OccupancyPayload.ApplyHit, OccupancyPayload.ApplyHit)
	return err
}
