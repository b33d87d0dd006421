// Package datastore provides a typed, generation-aware arena for fixed-size
// elements.
//
// Elements live in large buffers that hold a single element type. Callers get
// a compact 32-bit entry reference per allocation instead of a pointer, so
// indexes can store millions of references cheaply and the store can move
// elements around during compaction.
//
// # Quick Start
//
//	s, _ := datastore.New()
//	defer s.Close()
//
//	postings := s.AddType(buffer.NewBufferType[Posting](1, 1024, 1<<20))
//	ref, _ := datastore.Allocate(s, postings, Posting{DocID: 7})
//	p, _ := datastore.Get[Posting](s, ref)
//
// Element types must be pointer-free, because buffers may live outside the
// Go heap (see alloc.Anonymous).
//
// # Generations
//
// One writer mutates the store; any number of readers call Get and GetArray
// concurrently. Retired memory (freed elements, held buffers and buffers that
// were resized away) is kept until no reader can still observe it:
//
//	_ = s.HoldElem(ref, 1) // ref stays readable for current readers
//	s.Commit()             // release what readers can no longer see
//
// # Buffer Lifecycle
//
// Each buffer slot cycles through Free, Active and Hold. Active buffers take
// new elements and grow by in-place resize while small. Compaction moves the
// live elements of sparse buffers into fresh ones and puts the old buffers on
// hold; they return to Free after their hold period.
//
// # Key Features
//
//   - Per-type sizing with cluster granularity
//   - Free lists for recycling single-cluster entries
//   - Heap or off-heap (anonymous mmap) buffers with a memory budget
//   - Rate-limited compaction copies
//   - Structured logging (slog) and pluggable metrics
package datastore
