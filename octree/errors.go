package octree

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies the error values that the octree package returns.
type Kind int

const (
	// OutOfBounds means a coordinate, key or code falls outside the map's
	// representable span, or a depth exceeds the root depth.
	OutOfBounds Kind = iota
	// InvalidDepth means depth_levels at construction was outside the
	// supported range.
	InvalidDepth
	// InvalidArgument means a sibling/child index or depth argument was
	// outside its valid range.
	InvalidArgument
	// IoError means the underlying reader/writer failed during
	// serialization.
	IoError
	// FormatError means the structural prefix was inconsistent with the
	// payload count, or the header magic did not match.
	FormatError
	// AllocationError means the node-block allocator was exhausted while
	// splitting on descent. The map remains usable; the triggering apply
	// unwinds without performing its innermost write.
	AllocationError
)

func (k Kind) String() string {
	switch k {
	case OutOfBounds:
		return "out of bounds"
	case InvalidDepth:
		return "invalid depth"
	case InvalidArgument:
		return "invalid argument"
	case IoError:
		return "io error"
	case FormatError:
		return "format error"
	case AllocationError:
		return "allocation error"
	default:
		return "unknown error"
	}
}

// Error is the error type returned by every fallible operation in this
// package. Use errors.As to recover it and Kind() to switch on the cause.
type Error struct {
	kind  Kind
	cause error
}

func newError(kind Kind, format string, args ...interface{}) *Error {
	return &Error{kind: kind, cause: errors.Errorf(format, args...)}
}

func wrapError(kind Kind, cause error, msg string) *Error {
	return &Error{kind: kind, cause: errors.Wrap(cause, msg)}
}

// Kind reports the error's classification.
func (e *Error) Kind() Kind { return e.kind }

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.kind, e.cause)
}

func (e *Error) Unwrap() error { return e.cause }

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.kind == kind
}
