package octree

import "io"

// Payload is the contract the core requires from whatever data a map
// stores per node. T is the concrete payload type itself (e.g.
// OccupancyPayload), so a Map[T] holds values of T directly in its node
// blocks with no interface boxing.
//
// This is the only thing a payload "mixin" — colour, semantic label,
// time-step, surfel accumulation, or (as shipped here) occupancy log-odds
// — has to implement; the core never inspects a payload beyond these four
// operations.
type Payload[T any] interface {
	// Fill seeds a fresh child from its parent's current value, during
	// split-on-descent.
	Fill(parent T) T

	// Update computes this slot's aggregate from its 8 children, during
	// upward propagation. The reduction (max/min/mean, union, merge...)
	// is entirely up to the payload.
	Update(children [8]T) T

	// Collapsible reports whether children form a homogeneous block
	// whose aggregate equals every child's value, under whatever
	// equality relaxation the payload defines. The core never invents
	// this equality itself.
	Collapsible(children [8]T) bool

	// Serialize writes this payload's wire representation.
	Serialize(w io.Writer) error
}

// Decoder reconstructs a payload value of type T from a reader. It is
// supplied explicitly to Read (rather than living on Payload) because Go
// interfaces can't express a static factory method.
type Decoder[T any] func(r io.Reader) (T, error)
