package datastore

import (
	"context"
	"fmt"
	"reflect"
	"slices"
	"time"

	"github.com/hupe1980/datastore/buffer"
	"github.com/hupe1980/datastore/entryref"
)

// Compaction moves the live entries of sparse buffers into fresh ones:
//
//	ids, _ := s.StartCompact(typeID)
//	newRefs, _ := datastore.MoveAll[T](ctx, s, liveRefs, entryLen)
//	// publish newRefs to readers
//	_ = s.FinishCompact(ids)
//	s.Commit()
//
// Compacting buffers take no new entries. FinishCompact puts them on hold, so
// readers that still use the old references keep working until they leave
// their generation.

// StartCompact marks every active buffer of typeID for compaction, switches
// the type to a new primary buffer and returns the marked buffer ids.
func (s *Store) StartCompact(typeID uint32) ([]uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	te, err := s.typeEntryLocked(typeID)
	if err != nil {
		return nil, err
	}
	if err := s.switchLocked(typeID, te, 0); err != nil {
		return nil, err
	}

	var ids []uint32
	for i := range s.states {
		bufferID := uint32(i) //nolint:gosec // bounded by the layout's buffer count
		st := &s.states[i]
		if bufferID == te.primary || !st.IsActiveType(typeID) || st.Compacting() {
			continue
		}
		s.markCompacting(bufferID, st)
		ids = append(ids, bufferID)
	}
	s.beginCompaction(te)
	return ids, nil
}

// StartCompactWorstBuffer marks the active buffer of typeID with the most dead
// elements for compaction. It reports false if no buffer has dead elements.
func (s *Store) StartCompactWorstBuffer(typeID uint32) (uint32, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	te, err := s.typeEntryLocked(typeID)
	if err != nil {
		return 0, false, err
	}

	var (
		worst     uint32
		worstDead int
	)
	for i := range s.states {
		st := &s.states[i]
		if !st.IsActiveType(typeID) || st.Compacting() {
			continue
		}
		if dead := wastedElems(st); dead > worstDead {
			worst, worstDead = uint32(i), dead //nolint:gosec // bounded by the layout's buffer count
		}
	}
	if worstDead == 0 {
		return 0, false, nil
	}

	if te.hasPrimary && te.primary == worst {
		if err := s.switchLocked(typeID, te, 0); err != nil {
			return 0, false, err
		}
	}
	s.markCompacting(worst, &s.states[worst])
	s.beginCompaction(te)
	return worst, true, nil
}

// wastedElems returns the dead elements of a buffer beyond its reserved head.
func wastedElems(st *buffer.State) int {
	cs := st.ClusterSize()
	reserved := (st.ReservedElems() + cs - 1) / cs * cs
	return st.DeadElems() - reserved
}

func (s *Store) markCompacting(bufferID uint32, st *buffer.State) {
	st.SetCompacting()
	st.SetFreeListList(nil)
	s.compacting.Add(bufferID)
}

func (s *Store) beginCompaction(te *typeEntry) {
	if te.compacting {
		return
	}
	te.compacting = true
	te.compactStart = time.Now()
	te.moved = 0
}

// NeedsMove reports whether ref points into a buffer under compaction.
func (s *Store) NeedsMove(ref entryref.EntryRef) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.compacting.Contains(s.layout.BufferID(ref))
}

// CompactingBuffers returns the ids of buffers under compaction, ascending.
func (s *Store) CompactingBuffers() []uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.compacting.ToArray()
}

// Move copies the n elements at ref out of a compacting buffer and returns
// the new reference. n is the length the entry was allocated with. References
// outside compacting buffers are returned as is.
func Move[T any](s *Store, ref entryref.EntryRef, n int) (entryref.EntryRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed.Load() {
		return 0, ErrClosed
	}
	return moveLocked[T](s, ref, n)
}

func moveLocked[T any](s *Store, ref entryref.EntryRef, n int) (entryref.EntryRef, error) {
	if !s.compacting.Contains(s.layout.BufferID(ref)) {
		return ref, nil
	}
	st, offset, err := s.stateOf(ref)
	if err != nil {
		return 0, err
	}
	elemType := reflect.TypeFor[T]()
	if st.TypeHandler().ElementType() != elemType {
		return 0, fmt.Errorf("%w: buffer %d stores %s, not %s", ErrTypeMismatch, st.BufferID(), st.TypeHandler().ElementType(), elemType)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%w: move of %d elements", ErrInvalidArgument, n)
	}
	cs := st.ClusterSize()
	elems := (n + cs - 1) / cs * cs
	if offset < st.ReservedElems() || offset+elems > st.ReservedElems()+st.Size() {
		return 0, fmt.Errorf("%w: %d elements at offset %d of buffer %d", ErrInvalidRef, n, offset, st.BufferID())
	}

	typeID := st.TypeID()
	newRef, dst, dstOffset, err := s.reserve(typeID, elemType, n)
	if err != nil {
		return 0, err
	}
	src := buffer.Elems[T](st.Memory())[offset : offset+n]
	copy(buffer.Elems[T](dst.Memory())[dstOffset:dstOffset+n], src)

	st.IncDeadElems(elems)
	s.types[typeID].moved++
	return newRef, nil
}

// MoveAll moves every reference in refs that needs it and returns the new
// references in the same order. Every entry is n elements long. Copy
// throughput is paced by the resource controller.
func MoveAll[T any](ctx context.Context, s *Store, refs []entryref.EntryRef, n int) ([]entryref.EntryRef, error) {
	out := make([]entryref.EntryRef, len(refs))
	for i, ref := range refs {
		bytes, ok := s.moveCost(ref, n)
		if !ok {
			out[i] = ref
			continue
		}
		if err := s.controller.AcquireCopy(ctx, bytes); err != nil {
			return nil, err
		}
		newRef, err := Move[T](s, ref, n)
		if err != nil {
			return nil, err
		}
		out[i] = newRef
	}
	return out, nil
}

// moveCost returns the bytes a move of n elements at ref copies, and false if
// it needs none.
func (s *Store) moveCost(ref entryref.EntryRef, n int) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.compacting.Contains(s.layout.BufferID(ref)) {
		return 0, false
	}
	st, _, err := s.stateOf(ref)
	if err != nil || n <= 0 {
		// Let Move report it.
		return 0, true
	}
	return n * st.TypeHandler().ElementSize(), true
}

// FinishCompact puts the compacted buffers on hold. They are released once
// no reader can still see them.
func (s *Store) FinishCompact(ids []uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed.Load() {
		return ErrClosed
	}

	var typeIDs []uint32
	for _, id := range ids {
		if int(id) >= len(s.states) {
			return fmt.Errorf("%w: buffer %d out of range", ErrInvalidRef, id)
		}
		if st := &s.states[id]; !st.IsActive() || !st.Compacting() {
			return fmt.Errorf("%w: buffer %d is %s and not compacting", ErrInvalidRef, id, st.Status())
		}
		typeIDs = append(typeIDs, s.states[id].TypeID())
	}
	ids = slices.Clone(ids)
	slices.Sort(ids)
	ids = slices.Compact(ids)
	for _, id := range ids {
		if err := s.holdBufferLocked(id); err != nil {
			return err
		}
	}

	slices.Sort(typeIDs)
	for _, typeID := range slices.Compact(typeIDs) {
		te := s.types[typeID]
		if !te.compacting {
			continue
		}
		buffers := 0
		for _, id := range ids {
			if s.states[id].TypeID() == typeID {
				buffers++
			}
		}
		s.logger.LogCompaction(typeID, ids, te.moved)
		s.metrics.RecordCompaction(typeID, buffers, te.moved, time.Since(te.compactStart))
		te.compacting = false
	}
	return nil
}
