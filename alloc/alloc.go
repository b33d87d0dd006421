package alloc

import (
	"errors"
	"fmt"

	"github.com/hupe1980/datastore/internal/mem"
	"github.com/hupe1980/datastore/internal/mmap"
	"github.com/hupe1980/datastore/resource"
)

// ErrOutOfMemory is returned when an allocation cannot be satisfied.
var ErrOutOfMemory = errors.New("alloc: out of memory")

// DefaultMmapThreshold is the size from which Auto switches to anonymous mappings.
const DefaultMmapThreshold = 1 << 20

// Alloc is an owned raw memory allocation. The zero value is empty.
type Alloc struct {
	data    []byte
	release func() error
}

// Bytes returns the allocated memory, or nil if the Alloc is empty.
func (a *Alloc) Bytes() []byte { return a.data }

// Size returns the allocation size in bytes.
func (a *Alloc) Size() int { return len(a.data) }

// Empty reports whether the Alloc owns no memory.
func (a *Alloc) Empty() bool { return a.data == nil }

// Swap exchanges ownership with other.
func (a *Alloc) Swap(other *Alloc) {
	*a, *other = *other, *a
}

// Take moves ownership out of a, leaving it empty.
func (a *Alloc) Take() Alloc {
	out := *a
	*a = Alloc{}
	return out
}

// Release frees the memory and empties the Alloc.
func (a *Alloc) Release() error {
	release := a.release
	*a = Alloc{}
	if release == nil {
		return nil
	}
	return release()
}

// Allocator hands out raw memory.
type Allocator interface {
	// Alloc returns size bytes of zero-filled memory.
	Alloc(size int) (Alloc, error)
}

type options struct {
	controller *resource.Controller
}

// Option configures an Allocator.
type Option func(*options)

// WithController charges allocations against rc's memory budget.
func WithController(rc *resource.Controller) Option {
	return func(o *options) {
		o.controller = rc
	}
}

func applyOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

type heapAllocator struct {
	rc *resource.Controller
}

// Heap returns an Allocator backed by aligned Go heap slices.
func Heap(opts ...Option) Allocator {
	o := applyOptions(opts)
	return &heapAllocator{rc: o.controller}
}

func (h *heapAllocator) Alloc(size int) (Alloc, error) {
	if size <= 0 {
		return Alloc{}, nil
	}
	if err := h.rc.AcquireMemory(int64(size)); err != nil {
		return Alloc{}, fmt.Errorf("%w: %d bytes: %w", ErrOutOfMemory, size, err)
	}

	rc := h.rc
	return Alloc{
		data: mem.AllocAligned(size),
		release: func() error {
			rc.ReleaseMemory(int64(size))
			return nil
		},
	}, nil
}

type anonAllocator struct {
	rc *resource.Controller
}

// Anonymous returns an Allocator backed by off-heap anonymous mappings.
func Anonymous(opts ...Option) Allocator {
	o := applyOptions(opts)
	return &anonAllocator{rc: o.controller}
}

func (m *anonAllocator) Alloc(size int) (Alloc, error) {
	if size <= 0 {
		return Alloc{}, nil
	}
	if err := m.rc.AcquireMemory(int64(size)); err != nil {
		return Alloc{}, fmt.Errorf("%w: %d bytes: %w", ErrOutOfMemory, size, err)
	}

	mapping, err := mmap.MapAnon(size)
	if err != nil {
		m.rc.ReleaseMemory(int64(size))
		return Alloc{}, fmt.Errorf("%w: failed to map %d bytes: %w", ErrOutOfMemory, size, err)
	}
	// Entries are reached through references in no particular order.
	_ = mapping.Advise(mmap.AccessRandom)

	rc := m.rc
	return Alloc{
		data: mapping.Bytes(),
		release: func() error {
			rc.ReleaseMemory(int64(size))
			return mapping.Close()
		},
	}, nil
}

type autoAllocator struct {
	threshold int
	heap      Allocator
	anon      Allocator
}

// Auto returns an Allocator that uses the heap for allocations smaller than
// threshold and anonymous mappings otherwise. A non-positive threshold selects
// DefaultMmapThreshold.
func Auto(threshold int, opts ...Option) Allocator {
	if threshold <= 0 {
		threshold = DefaultMmapThreshold
	}
	return &autoAllocator{
		threshold: threshold,
		heap:      Heap(opts...),
		anon:      Anonymous(opts...),
	}
}

func (a *autoAllocator) Alloc(size int) (Alloc, error) {
	if size < a.threshold {
		return a.heap.Alloc(size)
	}
	return a.anon.Alloc(size)
}
