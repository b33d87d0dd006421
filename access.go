package datastore

import (
	"fmt"
	"reflect"

	"github.com/hupe1980/datastore/buffer"
	"github.com/hupe1980/datastore/entryref"
)

// Allocate stores value as a new element of typeID and returns its reference.
// T must be the element type of typeID.
func Allocate[T any](s *Store, typeID uint32, value T) (entryref.EntryRef, error) {
	return AllocateArray(s, typeID, []T{value})
}

// AllocateArray stores values contiguously and returns the reference of the
// first one. The allocation is rounded up to whole clusters; a single cluster
// is taken from the free lists when they have one.
func AllocateArray[T any](s *Store, typeID uint32, values []T) (entryref.EntryRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ref, st, offset, err := s.reserve(typeID, reflect.TypeFor[T](), len(values))
	if err != nil {
		return 0, err
	}
	copy(buffer.Elems[T](st.Memory())[offset:], values)
	return ref, nil
}

// Get returns the element at ref. It is safe to call concurrently with the
// writer.
func Get[T any](s *Store, ref entryref.EntryRef) (T, error) {
	var zero T

	guard := s.generations.TakeGuard()
	defer guard.Release()

	view, offset, err := s.resolve(ref, reflect.TypeFor[T](), 1)
	if err != nil {
		return zero, err
	}
	return buffer.Elems[T](view.mem)[offset], nil
}

// GetArray returns a copy of the n elements starting at ref. It is safe to
// call concurrently with the writer.
func GetArray[T any](s *Store, ref entryref.EntryRef, n int) ([]T, error) {
	guard := s.generations.TakeGuard()
	defer guard.Release()

	view, offset, err := s.resolve(ref, reflect.TypeFor[T](), n)
	if err != nil {
		return nil, err
	}
	out := make([]T, n)
	copy(out, buffer.Elems[T](view.mem)[offset:offset+n])
	return out, nil
}

// Set overwrites the element at ref. Only elements of active buffers can be
// written; readers of the same element race with the write.
func Set[T any](s *Store, ref entryref.EntryRef, value T) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	view, offset, err := s.resolve(ref, reflect.TypeFor[T](), 1)
	if err != nil {
		return err
	}
	bufferID := s.layout.BufferID(ref)
	if !s.states[bufferID].IsActive() {
		return fmt.Errorf("%w: buffer %d is %s", ErrInvalidRef, bufferID, s.states[bufferID].Status())
	}
	buffer.Elems[T](view.mem)[offset] = value
	return nil
}
