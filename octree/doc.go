// Package octree implements a sparse, Morton-coded probabilistic octree
// used to represent 3D occupancy: every point in space is either unknown,
// free or occupied. It is the core spatial index and update engine — key
// and code arithmetic, node-block allocation, lazy modified/propagate
// bookkeeping, and predicate-driven traversal — that the rest of a mapping
// stack (sensor models, visualisation, serialization codecs) builds on.
package octree
