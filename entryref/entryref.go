package entryref

import (
	"errors"
	"fmt"
)

// ErrInvalidLayout is returned when the offset bit count cannot be encoded.
var ErrInvalidLayout = errors.New("entryref: invalid layout")

const (
	// MinOffsetBits is the smallest supported offset field.
	MinOffsetBits = 10
	// MaxOffsetBits leaves room for at least two buffer ids.
	MaxOffsetBits = 31
	// DefaultOffsetBits addresses 4M elements in each of 1024 buffers.
	DefaultOffsetBits = 22
)

// EntryRef is an opaque handle for one element (or cluster) in a data store.
type EntryRef uint32

// Valid reports whether the reference is not the reserved null value.
func (r EntryRef) Valid() bool { return r != 0 }

// Ref returns the raw 32-bit value.
func (r EntryRef) Ref() uint32 { return uint32(r) }

// Layout describes how references are split into buffer id and offset.
type Layout struct {
	offsetBits uint
	offsetMask uint32
}

// NewLayout creates a Layout with the given number of offset bits.
func NewLayout(offsetBits uint) (Layout, error) {
	if offsetBits < MinOffsetBits || offsetBits > MaxOffsetBits {
		return Layout{}, fmt.Errorf("%w: %d offset bits", ErrInvalidLayout, offsetBits)
	}
	return Layout{
		offsetBits: offsetBits,
		offsetMask: uint32(1)<<offsetBits - 1,
	}, nil
}

// DefaultLayout returns the layout with DefaultOffsetBits.
func DefaultLayout() Layout {
	l, _ := NewLayout(DefaultOffsetBits)
	return l
}

// OffsetBits returns the width of the offset field.
func (l Layout) OffsetBits() uint { return l.offsetBits }

// OffsetSize returns the number of offsets a single buffer can address.
func (l Layout) OffsetSize() uint64 { return uint64(1) << l.offsetBits }

// NumBuffers returns the number of buffer ids the layout can address.
func (l Layout) NumBuffers() uint32 { return uint32(1) << (32 - l.offsetBits) }

// Make builds a reference. It panics if either field does not fit, which is
// always a bug in the caller.
func (l Layout) Make(bufferID uint32, offset uint64) EntryRef {
	if uint64(bufferID) >= uint64(l.NumBuffers()) {
		panic(fmt.Sprintf("entryref: buffer id %d out of range (%d buffers)", bufferID, l.NumBuffers()))
	}
	if offset >= l.OffsetSize() {
		panic(fmt.Sprintf("entryref: offset %d out of range (%d offsets)", offset, l.OffsetSize()))
	}
	return EntryRef(bufferID<<l.offsetBits | uint32(offset))
}

// BufferID returns the buffer id field.
func (l Layout) BufferID(r EntryRef) uint32 { return uint32(r) >> l.offsetBits }

// Offset returns the offset field.
func (l Layout) Offset(r EntryRef) uint64 { return uint64(uint32(r) & l.offsetMask) }

// Split returns both fields.
func (l Layout) Split(r EntryRef) (bufferID uint32, offset uint64) {
	return l.BufferID(r), l.Offset(r)
}

func (l Layout) String() string {
	return fmt.Sprintf("Layout{offsetBits: %d, buffers: %d}", l.offsetBits, l.NumBuffers())
}
