package octree

import "github.com/golang/geo/r3"

// AABB is an axis-aligned bounding box, used for both the map's own
// extent and the Inside spatial predicate.
type AABB struct {
	Min, Max r3.Vector
}

// Contains reports whether p lies within the box, inclusive of its
// boundary.
func (b AABB) Contains(p r3.Vector) bool {
	return p.X >= b.Min.X && p.X <= b.Max.X &&
		p.Y >= b.Min.Y && p.Y <= b.Max.Y &&
		p.Z >= b.Min.Z && p.Z <= b.Max.Z
}

// Intersects reports whether b and o share at least one point.
func (b AABB) Intersects(o AABB) bool {
	return b.Min.X <= o.Max.X && b.Max.X >= o.Min.X &&
		b.Min.Y <= o.Max.Y && b.Max.Y >= o.Min.Y &&
		b.Min.Z <= o.Max.Z && b.Max.Z >= o.Min.Z
}

// ClosestPoint returns the point of b nearest to p.
func (b AABB) ClosestPoint(p r3.Vector) r3.Vector {
	clampf := func(v, lo, hi float64) float64 {
		if v < lo {
			return lo
		}
		if v > hi {
			return hi
		}
		return v
	}
	return r3.Vector{
		X: clampf(p.X, b.Min.X, b.Max.X),
		Y: clampf(p.Y, b.Min.Y, b.Max.Y),
		Z: clampf(p.Z, b.Min.Z, b.Max.Z),
	}
}

// DistanceToPoint returns the Euclidean distance from p to the nearest
// point of b (0 if p is inside).
func (b AABB) DistanceToPoint(p r3.Vector) float64 {
	return p.Sub(b.ClosestPoint(p)).Norm()
}

// Center returns the box's midpoint.
func (b AABB) Center() r3.Vector {
	return b.Min.Add(b.Max).Mul(0.5)
}

// HalfSize returns the box's half-extent along one axis, assuming a cube
// (all three axes equal), as used by boundingVolume().
func (b AABB) HalfSize() float64 {
	return (b.Max.X - b.Min.X) / 2
}

// Sphere is used by the Within spatial predicate and as the query
// geometry for best-first nearest search.
type Sphere struct {
	Center r3.Vector
	Radius float64
}

// IntersectsAABB reports whether s and b share at least one point.
func (s Sphere) IntersectsAABB(b AABB) bool {
	return b.DistanceToPoint(s.Center) <= s.Radius
}

// Contains reports whether p lies within s.
func (s Sphere) Contains(p r3.Vector) bool {
	return p.Sub(s.Center).Norm() <= s.Radius
}
