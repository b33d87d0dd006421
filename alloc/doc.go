// Package alloc provides the raw memory allocations that back data store buffers.
//
// An Alloc owns one contiguous, zero-filled byte region. Ownership is explicit:
// an Alloc is moved with Take or Swap and released exactly once with Release.
// Release is idempotent so a moved-from (empty) Alloc can always be released.
//
// # Allocators
//
//   - Heap: 64-byte aligned Go heap slices, reclaimed by the garbage collector
//   - Anonymous: off-heap anonymous mappings, unmapped on Release
//   - Auto: Heap below a size threshold, Anonymous at or above it
//
// All allocators accept WithController to charge allocations against a
// resource.Controller memory budget. A request that does not fit the budget
// fails with ErrOutOfMemory and nothing is allocated.
//
// Memory handed out by this package is not scanned by the garbage collector
// for pointers, so only pointer-free element types may be stored in it.
package alloc
