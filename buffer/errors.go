package buffer

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidState marks a transition or operation attempted in the wrong state.
	ErrInvalidState = errors.New("buffer: invalid state")
	// ErrEmptyFreeList marks a pop from an empty free list.
	ErrEmptyFreeList = errors.New("buffer: free list is empty")
	// ErrClusterOverflow marks a size request the reference encoding cannot address.
	ErrClusterOverflow = errors.New("buffer: cluster count not representable")
	// ErrInvalidTypeConfig marks an unusable type configuration or element type.
	ErrInvalidTypeConfig = errors.New("buffer: invalid type configuration")
)

// violation panics with an error wrapping err. Contract violations are bugs in
// the caller and are never returned.
func violation(err error, format string, args ...any) {
	panic(fmt.Errorf("%w: %s", err, fmt.Sprintf(format, args...)))
}
