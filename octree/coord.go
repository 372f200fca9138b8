package octree

import (
	"math"

	"github.com/golang/geo/r3"
)

// nodeSize returns the edge length of a node at depth d.
func (m *Map[T]) nodeSize(d uint8) float64 {
	return m.nodeSizeTbl[d]
}

func (m *Map[T]) buildSizeTables() {
	m.nodeSizeTbl = make([]float64, m.rootDepth+1)
	m.nodeSizeFactorTbl = make([]float64, m.rootDepth+1)
	for d := uint8(0); d <= m.rootDepth; d++ {
		size := m.cfg.LeafSize * math.Exp2(float64(d))
		m.nodeSizeTbl[d] = size
		m.nodeSizeFactorTbl[d] = 1 / size
	}
	m.maxValue = int64(1) << (m.rootDepth - 1)
}

// ToKey converts a world coordinate into a lattice key at depth d,
// failing with OutOfBounds if the coordinate falls outside the map's
// representable span.
func (m *Map[T]) ToKey(p r3.Vector, d uint8) (Key, error) {
	half := m.nodeSizeTbl[m.rootDepth] / 2
	if math.Abs(p.X) > half || math.Abs(p.Y) > half || math.Abs(p.Z) > half {
		return Key{}, newError(OutOfBounds, "point %v outside map span +/- %v", p, half)
	}
	factor := m.nodeSizeFactorTbl[0]
	conv := func(v float64) uint32 {
		k := (int64(math.Floor(factor*v)) + m.maxValue) >> d << d
		return uint32(k)
	}
	return Key{conv(p.X), conv(p.Y), conv(p.Z)}, nil
}

// ToKeyChecked is the non-erroring form of ToKey, returning ok=false for
// an out-of-bounds coordinate.
func (m *Map[T]) ToKeyChecked(p r3.Vector, d uint8) (key Key, ok bool) {
	key, err := m.ToKey(p, d)
	return key, err == nil
}

// ToCoord converts a lattice key at depth d back to the world coordinate
// of the node's center.
func (m *Map[T]) ToCoord(k Key, d uint8) r3.Vector {
	if d >= m.rootDepth {
		// The root depth collapses to the map's center: there is only
		// ever one node there, and the general formula below is only
		// valid for d < rootDepth (it would otherwise divide the key's
		// single representable value by its own span).
		return r3.Vector{}
	}
	conv := func(comp uint32) float64 {
		return (math.Floor((float64(int64(comp)-m.maxValue))/math.Exp2(float64(d))) + 0.5) * m.nodeSizeTbl[d]
	}
	return r3.Vector{X: conv(k[0]), Y: conv(k[1]), Z: conv(k[2])}
}

// ToCode converts a world coordinate directly to a Code at depth d.
func (m *Map[T]) ToCode(p r3.Vector, d uint8) (Code, error) {
	k, err := m.ToKey(p, d)
	if err != nil {
		return 0, err
	}
	return NewCode(k, d), nil
}

// ToCodeChecked is the non-erroring form of ToCode.
func (m *Map[T]) ToCodeChecked(p r3.Vector, d uint8) (code Code, ok bool) {
	code, err := m.ToCode(p, d)
	return code, err == nil
}

// CodeToCoord converts a Code back to its node-center world coordinate.
func (m *Map[T]) CodeToCoord(c Code) r3.Vector {
	return m.ToCoord(c.Key(), c.Depth())
}

// BoundingVolume returns the AABB covering the map's full representable
// span, centered at the origin.
func (m *Map[T]) BoundingVolume() AABB {
	half := m.nodeSizeTbl[m.rootDepth] / 2
	return AABB{
		Min: r3.Vector{X: -half, Y: -half, Z: -half},
		Max: r3.Vector{X: half, Y: half, Z: half},
	}
}
