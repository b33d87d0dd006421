package datastore

import (
	"errors"
)

var (
	// ErrUnknownType is returned for a type id that was never added.
	ErrUnknownType = errors.New("unknown type")

	// ErrTypeMismatch is returned when the requested Go type differs from the
	// element type of the referenced buffer.
	ErrTypeMismatch = errors.New("element type mismatch")

	// ErrInvalidArgument is returned for malformed arguments.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInvalidRef is returned for references that do not name live memory.
	ErrInvalidRef = errors.New("invalid entry reference")

	// ErrNoFreeBuffer is returned when every buffer slot is in use.
	ErrNoFreeBuffer = errors.New("no free buffer")

	// ErrClosed is returned by operations on a closed Store.
	ErrClosed = errors.New("store closed")
)
