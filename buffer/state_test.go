package buffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/datastore/alloc"
	"github.com/hupe1980/datastore/entryref"
	"github.com/hupe1980/datastore/resource"
)

func assertFreeInvariants(t *testing.T, s *State) {
	t.Helper()
	assert.True(t, s.IsFree())
	assert.Equal(t, Free, s.Status())
	assert.Equal(t, 0, s.Size())
	assert.Equal(t, 0, s.Capacity())
	assert.Equal(t, 0, s.DeadElems())
	assert.Equal(t, 0, s.HoldElemCount())
	assert.Equal(t, 0, s.FreeListLen())
	assert.Equal(t, 0, s.AllocatedBytes())
	assert.Nil(t, s.Memory())
	assert.Nil(t, s.Elements())
	assert.Nil(t, s.TypeHandler())
	assert.False(t, s.InFreeListList())
	assert.False(t, s.Compacting())
}

func TestState_Lifecycle(t *testing.T) {
	h := NewBufferType[uint64](1, 4, 1024)
	var s State
	assertFreeInvariants(t, &s)

	elems, err := s.OnActive(1, 3, h, 10, testRefSize)
	require.NoError(t, err)
	assert.True(t, s.IsActive())
	assert.True(t, s.IsActiveType(3))
	assert.False(t, s.IsActiveType(4))
	assert.Equal(t, uint32(1), s.BufferID())
	assert.Equal(t, uint32(3), s.TypeID())
	assert.Equal(t, 1, s.ClusterSize())
	assert.Same(t, h, s.TypeHandler())

	assert.Equal(t, 0, s.Size())
	assert.GreaterOrEqual(t, s.Capacity(), 10)
	assert.Equal(t, s.Capacity(), s.Remaining())
	assert.Len(t, Elems[uint64](elems), s.Capacity())

	view := Elems[uint64](elems)
	for i := 0; i < 6; i++ {
		view[i] = uint64(i + 1)
	}
	s.PushedBack(4)
	s.PushedBack(2)
	assert.Equal(t, 6, s.Size())
	assert.Equal(t, s.Capacity()-s.Size(), s.Remaining())

	s.OnHold()
	assert.True(t, s.IsOnHold())
	assert.Equal(t, uint64(6), Elems[uint64](s.Elements())[5], "held memory is untouched")

	require.NoError(t, s.OnFree())
	assertFreeInvariants(t, &s)
	assert.Equal(t, 0, h.ActiveBuffers())
	assert.Equal(t, 0, h.HoldBuffers())

	// The slot can be reused for another type.
	other := NewBufferType[uint32](1, 1, 16)
	_, err = s.OnActive(1, 9, other, 1, testRefSize)
	require.NoError(t, err)
	assert.True(t, s.IsActiveType(9))
	require.NoError(t, s.DropBuffer())
	assertFreeInvariants(t, &s)
}

func TestState_ReservedElements(t *testing.T) {
	h := NewBufferType[uint32](1, 4, 1024, WithEmptyEntry(uint32(0xFFFFFFFF)))
	var s State

	elems, err := s.OnActive(0, 0, h, 10, testRefSize)
	require.NoError(t, err)
	assert.Equal(t, 1, s.ReservedElems())
	assert.Equal(t, 1, s.DeadElems())
	assert.Equal(t, 0, s.Size())
	assert.Equal(t, uint32(0xFFFFFFFF), Elems[uint32](s.Memory())[0])
	assert.Len(t, s.Memory(), (s.Capacity()+1)*4)
	assert.Len(t, elems, s.Capacity()*4)

	require.NoError(t, s.DropBuffer())
	assertFreeInvariants(t, &s)
}

func TestState_WrongStateTransitions(t *testing.T) {
	h := NewBufferType[uint32](1, 1, 16)
	var s State

	requirePanicIs(t, ErrInvalidState, func() { s.OnHold() })
	requirePanicIs(t, ErrInvalidState, func() { _ = s.OnFree() })
	requirePanicIs(t, ErrInvalidState, func() { s.PopFreeList() })
	requirePanicIs(t, ErrInvalidState, func() { _, _, _ = s.FallbackResize(1, 1, testRefSize) })

	_, err := s.OnActive(1, 0, h, 1, testRefSize)
	require.NoError(t, err)
	requirePanicIs(t, ErrInvalidState, func() { _, _ = s.OnActive(1, 0, h, 1, testRefSize) })
	requirePanicIs(t, ErrInvalidState, func() { _ = s.OnFree() })
	requirePanicIs(t, ErrEmptyFreeList, func() { s.PopFreeList() })
	requirePanicIs(t, ErrInvalidState, func() { s.PushedBack(s.Capacity() + 1) })

	s.OnHold()
	requirePanicIs(t, ErrInvalidState, func() { s.OnHold() })
	requirePanicIs(t, ErrInvalidState, func() { s.HoldElems(1) })
	require.NoError(t, s.OnFree())
}

func TestState_AllocationFailure(t *testing.T) {
	rc := resource.NewController(resource.Config{MemoryLimitBytes: 64})
	h := NewBufferType[uint64](1, 16, 1024)

	var s State
	s.SetAllocator(alloc.Heap(alloc.WithController(rc)))

	_, err := s.OnActive(1, 0, h, 16, testRefSize)
	assert.ErrorIs(t, err, alloc.ErrOutOfMemory)
	assertFreeInvariants(t, &s)
	assert.Equal(t, 0, h.ActiveBuffers())
	assert.Equal(t, int64(0), rc.MemoryUsage())
}

func TestState_FreeListScenario(t *testing.T) {
	layout := entryref.DefaultLayout()
	sl := newSlots(4)
	h := NewBufferType[uint32](1, 4, 1024)
	s := &sl.states[1]

	_, err := s.OnActive(1, 0, h, 10, layout.OffsetSize())
	require.NoError(t, err)
	s.SetFreeListList(sl.free)
	assert.GreaterOrEqual(t, s.Capacity(), 10)
	assert.LessOrEqual(t, s.Capacity(), 1024)

	s.PushedBack(10)
	dead := s.DeadElems()

	freed := []entryref.EntryRef{layout.Make(1, 2), layout.Make(1, 5), layout.Make(1, 7)}
	for _, ref := range freed {
		s.FreeElem(ref, 1)
	}
	assert.Equal(t, dead+3, s.DeadElems())
	assert.Equal(t, 3, s.FreeListLen())
	assert.True(t, s.InFreeListList())
	assert.Equal(t, 1, sl.free.Len())
	assert.Same(t, s, sl.free.HeadState())

	assert.Equal(t, freed[2], s.PopFreeList())
	assert.Equal(t, freed[1], s.PopFreeList())
	assert.True(t, s.InFreeListList())
	assert.Equal(t, freed[0], s.PopFreeList())

	assert.Equal(t, dead, s.DeadElems())
	assert.Equal(t, 0, dead)
	assert.False(t, s.InFreeListList())
	assert.True(t, sl.free.Empty())

	s.OnHold()
	require.NoError(t, s.OnFree())
	assertFreeInvariants(t, s)
}

func TestState_PopThenReAddRestores(t *testing.T) {
	layout := entryref.DefaultLayout()
	sl := newSlots(4)
	h := NewBufferType[uint32](1, 4, 1024)

	for id := uint32(1); id <= 2; id++ {
		s := &sl.states[id]
		_, err := s.OnActive(id, 0, h, 8, layout.OffsetSize())
		require.NoError(t, err)
		s.SetFreeListList(sl.free)
		s.PushedBack(8)
	}
	a, b := &sl.states[1], &sl.states[2]
	a.FreeElem(layout.Make(1, 3), 1)
	b.FreeElem(layout.Make(2, 4), 1)
	b.FreeElem(layout.Make(2, 6), 1)

	for _, s := range []*State{a, b} {
		beforeDead := s.DeadElems()
		beforeMember := s.InFreeListList()
		beforeLen := sl.free.Len()

		ref := s.PopFreeList()
		s.FreeElem(ref, s.ClusterSize())

		assert.Equal(t, beforeDead, s.DeadElems())
		assert.Equal(t, beforeMember, s.InFreeListList())
		assert.Equal(t, beforeLen, sl.free.Len())
	}
}

func TestState_RecyclingDisabled(t *testing.T) {
	layout := entryref.DefaultLayout()
	sl := newSlots(2)
	h := NewBufferType[uint32](1, 4, 1024)
	s := &sl.states[1]

	_, err := s.OnActive(1, 0, h, 8, layout.OffsetSize())
	require.NoError(t, err)
	s.PushedBack(8)

	// No registry: freed elements are only counted dead.
	s.FreeElem(layout.Make(1, 1), 1)
	assert.Equal(t, 1, s.DeadElems())
	assert.Equal(t, 0, s.FreeListLen())
	s.AddToFreeListList()
	s.RemoveFromFreeListList()
	assert.True(t, sl.free.Empty())

	// Enabling links the buffer as soon as it has a free slot.
	s.SetFreeListList(sl.free)
	s.FreeElem(layout.Make(1, 2), 1)
	assert.True(t, s.InFreeListList())

	// Disabling again unlinks but keeps the list.
	s.SetFreeListList(nil)
	assert.False(t, s.InFreeListList())
	assert.Equal(t, 1, s.FreeListLen())
	assert.True(t, sl.free.Empty())

	// Multi-element frees are not recycled.
	s.SetFreeListList(sl.free)
	s.FreeElem(layout.Make(1, 4), 2)
	assert.Equal(t, 1, s.FreeListLen())
	assert.Equal(t, 4, s.DeadElems())

	s.OnHold()
	assert.True(t, sl.free.Empty())
	assert.Equal(t, 0, s.FreeListLen())
	require.NoError(t, s.OnFree())
}

func TestState_FreeSlotRegistryNotJoinedWhenFree(t *testing.T) {
	sl := newSlots(2)
	s := &sl.states[1]
	s.SetFreeListList(sl.free)
	assert.Nil(t, s.FreeListList())
}

func TestState_ElemHoldList(t *testing.T) {
	layout := entryref.DefaultLayout()
	h := NewBufferType[uint32](1, 4, 1024, WithEmptyEntry(uint32(42)))
	var s State

	elems, err := s.OnActive(1, 0, h, 8, layout.OffsetSize())
	require.NoError(t, err)
	view := Elems[uint32](elems)
	for i := range 8 {
		view[i] = uint32(i + 100)
	}
	s.PushedBack(8)

	require.True(t, s.HoldElems(2))
	assert.Equal(t, 2, s.HoldElemCount())
	assert.Equal(t, 0, s.DeadElems())

	// Hold period over: scrub and mark dead.
	s.DecHoldElems(2)
	s.CleanHold(3, 2)
	s.FreeElem(layout.Make(1, 3), 2)
	assert.Equal(t, 0, s.HoldElemCount())
	assert.Equal(t, 2, s.DeadElems())
	assert.Equal(t, []uint32{100, 101, 102, 42, 42, 105}, view[:6])

	requirePanicIs(t, ErrInvalidState, func() { s.DecHoldElems(1) })
	requirePanicIs(t, ErrInvalidState, func() { s.CleanHold(7, 2) })

	s.DisableElemHoldList()
	assert.False(t, s.HoldElems(3))
	assert.Equal(t, 0, s.HoldElemCount())
	assert.Equal(t, 5, s.DeadElems())

	require.NoError(t, s.DropBuffer())
}

func TestState_FallbackResize(t *testing.T) {
	h := NewBufferType[uint64](1, 4, 1<<16)
	var s State

	elems, err := s.OnActive(0, 0, h, 8, testRefSize)
	require.NoError(t, err)
	capacity := s.Capacity()
	view := Elems[uint64](elems)
	for i := 0; i < capacity; i++ {
		view[i] = uint64(i*i + 1)
	}
	s.PushedBack(capacity)
	oldMem := s.Memory()

	newElems, hold, err := s.FallbackResize(0, 5, testRefSize)
	require.NoError(t, err)
	require.NotNil(t, hold)

	assert.GreaterOrEqual(t, s.Capacity(), capacity+5)
	assert.Equal(t, capacity, s.Size())
	assert.Equal(t, s.Capacity()-capacity, s.Remaining())

	newView := Elems[uint64](newElems)
	for i := 0; i < capacity; i++ {
		assert.Equal(t, view[i], newView[i], "element %d", i)
	}
	// Reserved head is carried over.
	assert.Equal(t, Elems[uint64](oldMem)[0], Elems[uint64](s.Memory())[0])

	// Old allocation stays readable until the hold is released.
	assert.Equal(t, len(oldMem), hold.Size())
	assert.Equal(t, uint64(2), Elems[uint64](hold.Memory())[2])
	require.NoError(t, hold.Release())
	assert.Nil(t, hold.Memory())
	require.NoError(t, hold.Release())

	// Aggregates only count the buffer once.
	assert.Equal(t, 1, h.ActiveBuffers())
	assert.Equal(t, capacity, h.ActiveUsedElems())

	s.OnHold()
	require.NoError(t, s.OnFree())
	assertFreeInvariants(t, &s)
}

func TestState_FallbackResizeNotGrowing(t *testing.T) {
	h := NewBufferType[uint32](1, 4, 8)
	var s State

	_, err := s.OnActive(1, 0, h, 8, testRefSize)
	require.NoError(t, err)
	s.PushedBack(8)

	requirePanicIs(t, ErrClusterOverflow, func() { _, _, _ = s.FallbackResize(1, 1, testRefSize) })
	require.NoError(t, s.DropBuffer())
}

func TestState_FallbackResizeAllocationFailure(t *testing.T) {
	rc := resource.NewController(resource.Config{MemoryLimitBytes: 64})
	h := NewBufferType[uint32](1, 8, 1024)
	var s State
	s.SetAllocator(alloc.Heap(alloc.WithController(rc)))

	_, err := s.OnActive(1, 0, h, 8, testRefSize)
	require.NoError(t, err)
	s.PushedBack(8)

	_, _, err = s.FallbackResize(1, 100, testRefSize)
	assert.ErrorIs(t, err, resource.ErrMemoryLimitExceeded)
	assert.Equal(t, 8, s.Capacity())
	assert.Equal(t, 32, s.AllocatedBytes())

	require.NoError(t, s.DropBuffer())
	assert.Equal(t, int64(0), rc.MemoryUsage())
}

func TestState_Compacting(t *testing.T) {
	h := NewBufferType[uint32](1, 1, 8)
	var s State
	_, err := s.OnActive(1, 0, h, 1, testRefSize)
	require.NoError(t, err)

	assert.False(t, s.Compacting())
	s.SetCompacting()
	s.SetCompacting()
	assert.True(t, s.Compacting())

	s.OnHold()
	assert.True(t, s.Compacting())
	require.NoError(t, s.OnFree())
	assert.False(t, s.Compacting())
}

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "free", Free.String())
	assert.Equal(t, "active", Active.String())
	assert.Equal(t, "hold", Hold.String())
	assert.Equal(t, "Status(9)", Status(9).String())
}
