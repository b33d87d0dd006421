// Package mmap provides anonymous memory mappings for off-heap buffers.
//
// # Overview
//
// Buffers backing large element arrays are mapped outside the Go heap so the
// garbage collector neither scans nor moves them. A mapping is owned by exactly
// one caller and is released with Close.
//
// # Usage
//
//	m, err := mmap.MapAnon(1 << 20)
//	if err != nil { ... }
//	defer m.Close()
//
//	data := m.Bytes() // zero-filled, read-write
//
//	// Tell the kernel the pages may be dropped
//	m.Advise(mmap.AccessDontNeed)
//
// # Platform Support
//
//   - Unix (Linux, macOS, BSD): mmap(2) with MAP_ANON|MAP_PRIVATE, madvise(2) hints
//   - Windows: VirtualAlloc with MEM_RESERVE|MEM_COMMIT (advice is a no-op)
//
// # Thread Safety
//
// Bytes and Size are safe for concurrent use. Close is idempotent. Callers must
// ensure no goroutine touches the returned slice after Close returns.
package mmap
