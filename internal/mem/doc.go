// Package mem provides memory allocation utilities.
//
// # Aligned Allocation
//
// Heap-backed buffers are 64-byte aligned so element arrays of any
// fixed-size type start on a cache line.
package mem
