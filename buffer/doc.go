// Package buffer implements the per-buffer state machine and the type-erased
// element policies of the data store.
//
// # Overview
//
// A data store keeps elements in large, type-homogeneous buffers. Every buffer
// slot is described by a State that moves through three states:
//
//	        OnActive              OnHold               OnFree
//	Free ─────────────▶ Active ─────────────▶ Hold ─────────────▶ Free
//	                      │  ▲
//	                      │  │ FallbackResize (old allocation is handed
//	                      └──┘ to the caller as a FallbackHold)
//
// Active buffers receive appends and recycle freed slots through their free
// list. Held buffers are read-only and keep their memory until the caller's
// generation tracker certifies that no reader predates the OnHold transition;
// only then may OnFree release it.
//
// # Type Erasure
//
// A State never knows its element type. All element work (reserved-slot
// initialization, copying on resize, scrubbing held ranges, destruction) goes
// through a TypeHandler. TypeBase implements the per-type aggregate counters and
// the sizing policy, and BufferType[T] combines it with the element operations
// of a concrete, pointer-free T.
//
//	ints := buffer.NewBufferType[uint32](1, 4, 1<<20)
//
//	var s buffer.State
//	elems, err := s.OnActive(1, typeID, ints, 10, layout.OffsetSize())
//	view := buffer.Elems[uint32](elems) // len == s.Capacity()
//
// # Free-Slot Registry
//
// Buffers of one type that have reusable slots are linked into a FreeListList,
// an index-based circular list so the allocator can find a recyclable slot in
// O(1) without scanning. A buffer without a FreeListList never recycles slots.
//
// # Concurrency
//
// Nothing in this package locks. One writer drives all transitions of a buffer;
// readers may dereference element memory of Active and Hold buffers without
// synchronization.
//
// # Errors
//
// Calling a transition in the wrong state, popping an empty free list or asking
// for more clusters than a reference can address are programming errors and
// panic with an error wrapping ErrInvalidState, ErrEmptyFreeList or
// ErrClusterOverflow. Allocation failures are returned as errors and leave the
// State unchanged.
package buffer
