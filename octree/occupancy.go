package octree

import (
	"encoding/binary"
	"io"
	"math"
)

// State classifies a node's occupancy.
type State int

const (
	Unknown State = iota
	Free
	Occupied
)

func (s State) String() string {
	switch s {
	case Free:
		return "free"
	case Occupied:
		return "occupied"
	default:
		return "unknown"
	}
}

// aggregationRules is the shared, immutable configuration every
// OccupancyPayload produced by one Map carries a pointer to. Sharing it
// this way lets OccupancyPayload satisfy Payload[OccupancyPayload] (whose
// methods only ever see a T receiver, never the Map) while still being
// configurable per map: clamping bounds, classification thresholds,
// per-observation log-odds deltas and the upward-aggregation reduction
// are all fixed once, at construction, and read through this pointer.
type aggregationRules struct {
	clampMin, clampMax     float32
	freeThres, occThres     float32
	hitDelta, missDelta     float32
	aggregation             Aggregation
}

func newAggregationRules(cfg Config) *aggregationRules {
	return &aggregationRules{
		clampMin:   float32(logit(cfg.ClampingMin)),
		clampMax:   float32(logit(cfg.ClampingMax)),
		freeThres:  float32(logit(cfg.FreeThres)),
		occThres:   float32(logit(cfg.OccupiedThres)),
		hitDelta:   float32(logit(cfg.ProbHit)),
		missDelta:  float32(-logit(cfg.ProbMiss)),
		aggregation: cfg.Aggregation,
	}
}

func (r *aggregationRules) clamp(v float32) float32 {
	if v < r.clampMin {
		return r.clampMin
	}
	if v > r.clampMax {
		return r.clampMax
	}
	return v
}

// OccupancyPayload is the reference per-node payload: a single clamped
// log-odds scalar. It implements Payload[OccupancyPayload].
type OccupancyPayload struct {
	LogOdds float32
	Known   bool

	rules *aggregationRules
}

// NewOccupancyPayload returns the zero ("unknown") payload value used to
// seed a freshly constructed map.
func NewOccupancyPayload(rules *aggregationRules) OccupancyPayload {
	return OccupancyPayload{rules: rules}
}

// NewOccupancyMap constructs a Map[OccupancyPayload] — the reference
// probabilistic-occupancy map. aggregationRules is only ever reachable
// through this constructor: nothing outside the package can build or see
// one directly, so this is the one entry point callers outside the
// package use instead of composing New/NewOccupancyPayload/DecodeOccupancy
// themselves.
func NewOccupancyMap(opts ...Option) (*Map[OccupancyPayload], error) {
	cfg, err := newConfig(opts...)
	if err != nil {
		return nil, err
	}
	rules := newAggregationRules(cfg)
	return New[OccupancyPayload](NewOccupancyPayload(rules), DecodeOccupancy(rules), opts...)
}

// State classifies the payload per spec: unknown if never written, free
// if at or below the free threshold, occupied if at or above the
// occupied threshold, unknown in the (possibly empty) dead band between.
func (p OccupancyPayload) State() State {
	if !p.Known {
		return Unknown
	}
	switch {
	case p.LogOdds <= p.rules.freeThres:
		return Free
	case p.LogOdds >= p.rules.occThres:
		return Occupied
	default:
		return Unknown
	}
}

// ApplyHit increments log-odds by the configured prob_hit and clamps.
func (p OccupancyPayload) ApplyHit() OccupancyPayload {
	p.LogOdds = p.rules.clamp(p.LogOdds + p.rules.hitDelta)
	p.Known = true
	return p
}

// ApplyMiss decrements log-odds by the configured prob_miss and clamps.
func (p OccupancyPayload) ApplyMiss() OccupancyPayload {
	p.LogOdds = p.rules.clamp(p.LogOdds - p.rules.missDelta)
	p.Known = true
	return p
}

// Fill seeds a fresh child with its parent's current aggregate. Occupancy
// has no child-specific state to preserve, so this is a plain copy; the
// receiver is unused (it exists only so OccupancyPayload can satisfy
// Payload[OccupancyPayload]).
func (OccupancyPayload) Fill(parent OccupancyPayload) OccupancyPayload {
	return parent
}

// Update recomputes this slot's aggregate from its 8 children using the
// configured reduction.
func (p OccupancyPayload) Update(children [8]OccupancyPayload) OccupancyPayload {
	known := false
	for _, c := range children {
		known = known || c.Known
	}
	if !known {
		p.Known = false
		p.LogOdds = 0
		return p
	}

	var acc float32
	switch p.rules.aggregation {
	case AggregationMin:
		acc = math.MaxFloat32
		for _, c := range children {
			if c.LogOdds < acc {
				acc = c.LogOdds
			}
		}
	case AggregationMean:
		var sum float32
		for _, c := range children {
			sum += c.LogOdds
		}
		acc = sum / 8
	default: // AggregationMax
		acc = -math.MaxFloat32
		for _, c := range children {
			if c.LogOdds > acc {
				acc = c.LogOdds
			}
		}
	}

	p.Known = true
	p.LogOdds = p.rules.clamp(acc)
	return p
}

// Collapsible reports whether all 8 children share the same occupancy
// value within floating-point tolerance, making the subtree homogeneous
// with the parent's aggregate.
func (p OccupancyPayload) Collapsible(children [8]OccupancyPayload) bool {
	const epsilon = 1e-5
	first := children[0]
	for _, c := range children[1:] {
		if c.Known != first.Known {
			return false
		}
		if c.Known && absF32(c.LogOdds-first.LogOdds) > epsilon {
			return false
		}
	}
	return true
}

// Serialize writes the payload's wire representation: a presence byte
// followed by the log-odds value, little-endian.
func (p OccupancyPayload) Serialize(w io.Writer) error {
	var buf [5]byte
	if p.Known {
		buf[0] = 1
	}
	binary.LittleEndian.PutUint32(buf[1:], math.Float32bits(p.LogOdds))
	_, err := w.Write(buf[:])
	return err
}

// DecodeOccupancy returns a Decoder reading the wire representation
// Serialize wrote, re-attaching rules so the decoded values remain usable
// as Payload[OccupancyPayload] receivers.
func DecodeOccupancy(rules *aggregationRules) Decoder[OccupancyPayload] {
	return func(r io.Reader) (OccupancyPayload, error) {
		var buf [5]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return OccupancyPayload{}, err
		}
		return OccupancyPayload{
			Known:   buf[0] != 0,
			LogOdds: math.Float32frombits(binary.LittleEndian.Uint32(buf[1:])),
			rules:   rules,
		}, nil
	}
}

func absF32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
