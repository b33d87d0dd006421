package datastore

import (
	"github.com/hupe1980/datastore/buffer"
)

// MemoryStats summarizes the memory of all buffers. Element counts include the
// reserved heads; elements of held buffers count as hold elements.
type MemoryStats struct {
	AllocElems int
	UsedElems  int
	DeadElems  int
	HoldElems  int

	AllocBytes int
	UsedBytes  int
	DeadBytes  int
	HoldBytes  int

	// PendingReleaseBytes is the memory waiting for readers to leave older
	// generations: held buffers, resized-away allocations and held elements.
	PendingReleaseBytes int

	FreeBuffers    int
	ActiveBuffers  int
	HoldBuffers    int
	CompactBuffers int
}

// Stats returns the current memory statistics.
func (s *Store) Stats() MemoryStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stats MemoryStats
	for i := range s.states {
		st := &s.states[i]
		switch st.Status() {
		case buffer.Free:
			stats.FreeBuffers++
			continue
		case buffer.Active:
			stats.ActiveBuffers++
		case buffer.Hold:
			stats.HoldBuffers++
		}
		if st.Compacting() {
			stats.CompactBuffers++
		}

		elemSize := st.TypeHandler().ElementSize()
		alloc := st.ReservedElems() + st.Capacity()
		used := st.ReservedElems() + st.Size()

		var dead, hold int
		if st.IsOnHold() {
			hold = used
		} else {
			dead = st.DeadElems()
			hold = st.HoldElemCount()
		}

		stats.AllocElems += alloc
		stats.UsedElems += used
		stats.DeadElems += dead
		stats.HoldElems += hold
		stats.AllocBytes += st.AllocatedBytes()
		stats.UsedBytes += used * elemSize
		stats.DeadBytes += dead * elemSize
		stats.HoldBytes += hold * elemSize
	}
	stats.PendingReleaseBytes = s.holder.HeldBytes()
	return stats
}
