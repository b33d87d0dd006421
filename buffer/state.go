package buffer

import (
	"fmt"

	"github.com/hupe1980/datastore/alloc"
	"github.com/hupe1980/datastore/entryref"
	"github.com/hupe1980/datastore/internal/conv"
)

// Status is the lifecycle state of a buffer slot.
type Status uint8

const (
	// Free slots own no memory and belong to no type.
	Free Status = iota
	// Active buffers receive new elements.
	Active
	// Hold buffers are retired and read-only until certified unreachable.
	Hold
)

func (s Status) String() string {
	switch s {
	case Free:
		return "free"
	case Active:
		return "active"
	case Hold:
		return "hold"
	default:
		return fmt.Sprintf("Status(%d)", uint8(s))
	}
}

var defaultAllocator = alloc.Heap()

// State is the bookkeeping of one buffer slot.
//
// Counters are element counts. usedElems and allocElems exclude the reserved
// head; deadElems includes it. A State registers a pointer to its own used
// counter with its TypeHandler, so it must not be copied once active.
type State struct {
	usedElems     int
	allocElems    int
	reservedElems int
	deadElems     int
	holdElems     int

	status              Status
	disableElemHoldList bool

	freeList     []entryref.EntryRef
	freeListList *FreeListList // nil if free lists are disabled

	// Membership in freeListList, as buffer ids.
	nextHasFree uint32
	prevHasFree uint32
	linked      bool

	id          uint32
	typeHandler TypeHandler
	typeID      uint32
	clusterSize int
	compacting  bool

	allocator alloc.Allocator
	buffer    alloc.Alloc
}

// SetAllocator sets the allocator used by OnActive and FallbackResize.
// A nil allocator selects the package default heap allocator.
func (s *State) SetAllocator(a alloc.Allocator) {
	s.allocator = a
}

func (s *State) allocate(elems int) (alloc.Alloc, error) {
	bytes, err := conv.BytesFor(elems, s.typeHandler.ElementSize())
	if err != nil {
		violation(ErrClusterOverflow, "%v", err)
	}
	size, err := conv.Uint64ToInt(uint64(bytes))
	if err != nil {
		violation(ErrClusterOverflow, "%v", err)
	}
	a := s.allocator
	if a == nil {
		a = defaultAllocator
	}
	return a.Alloc(size)
}

func (s *State) expect(op string, want Status) {
	if s.status != want {
		violation(ErrInvalidState, "%s on %s buffer %d, want %s", op, s.status, s.id, want)
	}
}

// OnActive moves the slot from Free to Active for typeID. It allocates room for
// the reserved head plus at least sizeNeeded elements, bounded by maxClusters
// (the clusters a reference can address), and returns the element region past
// the reserved head.
//
// If the allocation fails the error is returned and the slot stays Free.
func (s *State) OnActive(bufferID, typeID uint32, h TypeHandler, sizeNeeded int, maxClusters uint64) ([]byte, error) {
	s.expect("OnActive", Free)
	if h == nil {
		violation(ErrInvalidTypeConfig, "nil type handler for buffer %d", bufferID)
	}
	if !s.buffer.Empty() || s.usedElems != 0 || s.deadElems != 0 || s.holdElems != 0 || len(s.freeList) != 0 || s.linked {
		violation(ErrInvalidState, "free buffer %d is not reset", bufferID)
	}

	clusters := h.CalcClustersToAlloc(bufferID, sizeNeeded, maxClusters)
	allocElems := clusters * h.ClusterSize()
	if allocElems < sizeNeeded {
		violation(ErrClusterOverflow, "sizing returned %d elements for %d needed", allocElems, sizeNeeded)
	}
	reserved := h.ReservedElements(bufferID)

	s.id = bufferID
	s.typeHandler = h
	buf, err := s.allocate(reserved + allocElems)
	if err != nil {
		s.id = 0
		s.typeHandler = nil
		return nil, fmt.Errorf("activate buffer %d: %w", bufferID, err)
	}

	s.buffer = buf
	s.typeID = typeID
	s.clusterSize = h.ClusterSize()
	s.reservedElems = reserved
	s.allocElems = allocElems
	s.deadElems = h.OnActive(bufferID, &s.usedElems, buf.Bytes())
	s.status = Active
	return s.Elements(), nil
}

// OnHold moves the slot from Active to Hold. The memory stays untouched; the
// free list is dropped because held buffers are never written again.
func (s *State) OnHold() {
	s.expect("OnHold", Active)
	s.typeHandler.OnHold(&s.usedElems)
	if len(s.freeList) != 0 {
		s.RemoveFromFreeListList()
		s.freeList = nil
	}
	s.freeListList = nil
	s.status = Hold
}

// OnFree moves the slot from Hold to Free, destroying the elements and
// releasing the memory. The caller must know that no reader can still hold a
// pointer into the buffer.
func (s *State) OnFree() error {
	s.expect("OnFree", Hold)
	h := s.typeHandler
	h.DestroyElements(s.buffer.Bytes(), s.reservedElems+s.usedElems)
	h.OnFree(s.usedElems)
	err := s.buffer.Release()

	allocator := s.allocator
	*s = State{allocator: allocator}
	if err != nil {
		return fmt.Errorf("free buffer: %w", err)
	}
	return nil
}

// DropBuffer releases the slot from any state. It skips the hold period and is
// only safe when no reader can exist, such as during teardown.
func (s *State) DropBuffer() error {
	switch s.status {
	case Free:
		return nil
	case Active:
		s.OnHold()
	}
	return s.OnFree()
}

// SetFreeListList sets the registry of buffers with free slots. nil disables
// slot recycling for this buffer. Free buffers never join a registry.
func (s *State) SetFreeListList(l *FreeListList) {
	if s.status == Free && l != nil {
		return
	}
	if l == s.freeListList {
		return
	}
	if s.freeListList != nil && len(s.freeList) != 0 {
		s.RemoveFromFreeListList()
	}
	s.freeListList = l
	if len(s.freeList) != 0 {
		s.AddToFreeListList()
	}
}

// FreeListList returns the registry, or nil if recycling is disabled.
func (s *State) FreeListList() *FreeListList { return s.freeListList }

// AddToFreeListList links the buffer into its registry. No-op if recycling is disabled.
func (s *State) AddToFreeListList() {
	if s.freeListList == nil {
		return
	}
	s.freeListList.link(s)
}

// RemoveFromFreeListList unlinks the buffer from its registry. No-op if
// recycling is disabled.
func (s *State) RemoveFromFreeListList() {
	if s.freeListList == nil {
		return
	}
	s.freeListList.unlink(s)
}

// InFreeListList reports whether the buffer is linked into a registry.
func (s *State) InFreeListList() bool { return s.linked }

// DisableElemHoldList makes HoldElems mark elements dead immediately.
func (s *State) DisableElemHoldList() {
	s.disableElemHoldList = true
}

// HoldElems accounts n elements that were just freed by the writer. It returns
// true if the caller must keep them on an element hold list until no reader
// can see them, or false if hold lists are disabled and the elements are
// already dead.
func (s *State) HoldElems(n int) bool {
	s.expect("HoldElems", Active)
	if s.disableElemHoldList {
		s.deadElems += n
		return false
	}
	s.holdElems += n
	return true
}

// DecHoldElems removes n elements from the hold count once their hold period ended.
func (s *State) DecHoldElems(n int) {
	if s.holdElems < n {
		violation(ErrInvalidState, "release of %d held elements, buffer %d holds %d", n, s.id, s.holdElems)
	}
	s.holdElems -= n
}

// FreeElem marks the n elements at ref dead. On an active buffer with
// recycling enabled a full cluster is pushed on the free list, joining the
// registry if the list was empty.
func (s *State) FreeElem(ref entryref.EntryRef, n int) {
	if s.status == Free {
		violation(ErrInvalidState, "FreeElem on free buffer %d", s.id)
	}
	s.deadElems += n
	if s.status == Active && s.freeListList != nil && n == s.clusterSize {
		s.freeList = append(s.freeList, ref)
		if len(s.freeList) == 1 {
			s.AddToFreeListList()
		}
	}
}

// PopFreeList returns the most recently freed reference, leaving the registry
// when the list becomes empty.
func (s *State) PopFreeList() entryref.EntryRef {
	s.expect("PopFreeList", Active)
	n := len(s.freeList)
	if n == 0 {
		violation(ErrEmptyFreeList, "buffer %d", s.id)
	}
	ref := s.freeList[n-1]
	s.freeList = s.freeList[:n-1]
	if len(s.freeList) == 0 {
		s.RemoveFromFreeListList()
	}
	s.deadElems -= s.clusterSize
	return ref
}

// FreeListLen returns the number of recyclable references.
func (s *State) FreeListLen() int { return len(s.freeList) }

// IncDeadElems marks n more elements dead without touching the free list.
func (s *State) IncDeadElems(n int) { s.deadElems += n }

// CleanHold scrubs [offset, offset+length) of the element region with the
// type's empty entry.
func (s *State) CleanHold(offset, length int) {
	if s.status == Free {
		violation(ErrInvalidState, "CleanHold on free buffer %d", s.id)
	}
	if offset < 0 || length < 0 || offset+length > s.usedElems {
		violation(ErrInvalidState, "clean of [%d, %d) beyond %d used elements", offset, offset+length, s.usedElems)
	}
	s.typeHandler.CleanHold(s.Elements(), offset, length)
}

// FallbackResize moves the contents of an active buffer into a larger
// allocation with room for sizeNeeded more elements. The old allocation is
// returned as a FallbackHold: readers may still use pointers into it, so the
// caller releases it once they are gone. Offsets stay valid.
func (s *State) FallbackResize(bufferID uint32, sizeNeeded int, maxClusters uint64) ([]byte, *FallbackHold, error) {
	s.expect("FallbackResize", Active)
	h := s.typeHandler

	clusters := h.CalcClustersToAlloc(bufferID, s.usedElems+sizeNeeded, maxClusters)
	allocElems := clusters * s.clusterSize
	if allocElems < s.usedElems+sizeNeeded || allocElems <= s.allocElems {
		violation(ErrClusterOverflow, "resize of buffer %d to %d elements (used %d, need %d, capacity %d)",
			bufferID, allocElems, s.usedElems, sizeNeeded, s.allocElems)
	}

	buf, err := s.allocate(s.reservedElems + allocElems)
	if err != nil {
		return nil, nil, fmt.Errorf("resize buffer %d: %w", bufferID, err)
	}

	live := s.reservedElems + s.usedElems
	h.FallbackCopy(buf.Bytes(), s.buffer.Bytes(), live)

	hold := &FallbackHold{
		buffer:    s.buffer.Take(),
		handler:   h,
		usedElems: live,
	}
	s.buffer = buf
	s.allocElems = allocElems
	return s.Elements(), hold, nil
}

// Size returns the number of elements handed out, excluding the reserved head.
func (s *State) Size() int { return s.usedElems }

// Capacity returns the number of allocatable elements.
func (s *State) Capacity() int { return s.allocElems }

// Remaining returns the number of elements that can still be appended.
func (s *State) Remaining() int { return s.allocElems - s.usedElems }

// PushedBack records that n elements were appended.
func (s *State) PushedBack(n int) {
	if s.usedElems+n > s.allocElems {
		violation(ErrInvalidState, "push of %d elements, buffer %d has %d remaining", n, s.id, s.Remaining())
	}
	s.usedElems += n
}

// ReservedElems returns the size of the reserved head.
func (s *State) ReservedElems() int { return s.reservedElems }

// DeadElems returns the number of dead elements, including the reserved head.
func (s *State) DeadElems() int { return s.deadElems }

// HoldElemCount returns the number of elements waiting on a hold list.
func (s *State) HoldElemCount() int { return s.holdElems }

// Elements returns the element region past the reserved head, sized to the
// full capacity. It is nil for a free buffer.
func (s *State) Elements() []byte {
	if s.buffer.Empty() {
		return nil
	}
	return s.buffer.Bytes()[s.reservedElems*s.typeHandler.ElementSize():]
}

// Memory returns the whole allocation including the reserved head.
func (s *State) Memory() []byte { return s.buffer.Bytes() }

// AllocatedBytes returns the size of the owned allocation.
func (s *State) AllocatedBytes() int { return s.buffer.Size() }

// SetCompacting marks the buffer as a compaction source. The flag is never cleared.
func (s *State) SetCompacting() { s.compacting = true }

// Compacting reports whether the buffer is being compacted.
func (s *State) Compacting() bool { return s.compacting }

// Status returns the lifecycle state.
func (s *State) Status() Status { return s.status }

// IsActive reports whether the buffer is active.
func (s *State) IsActive() bool { return s.status == Active }

// IsActiveType reports whether the buffer is active for typeID.
func (s *State) IsActiveType(typeID uint32) bool { return s.status == Active && s.typeID == typeID }

// IsOnHold reports whether the buffer is held.
func (s *State) IsOnHold() bool { return s.status == Hold }

// IsFree reports whether the slot is free.
func (s *State) IsFree() bool { return s.status == Free }

// BufferID returns the id the buffer was activated with.
func (s *State) BufferID() uint32 { return s.id }

// TypeID returns the type the buffer was activated for.
func (s *State) TypeID() uint32 { return s.typeID }

// ClusterSize returns the cached cluster size of the buffer's type.
func (s *State) ClusterSize() int { return s.clusterSize }

// TypeHandler returns the handler of the buffer's type, or nil if free.
func (s *State) TypeHandler() TypeHandler { return s.typeHandler }

// FallbackHold keeps the allocation a buffer was resized away from.
type FallbackHold struct {
	buffer    alloc.Alloc
	handler   TypeHandler
	usedElems int
}

// Memory returns the old allocation.
func (f *FallbackHold) Memory() []byte { return f.buffer.Bytes() }

// Size returns the size of the old allocation in bytes.
func (f *FallbackHold) Size() int { return f.buffer.Size() }

// Release destroys the copied-away elements and frees the old allocation.
// It is idempotent.
func (f *FallbackHold) Release() error {
	if f.buffer.Empty() {
		return nil
	}
	f.handler.DestroyElements(f.buffer.Bytes(), f.usedElems)
	return f.buffer.Release()
}
