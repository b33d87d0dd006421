// Package generation tracks which generations readers may still observe, so a
// single writer knows when retired memory can be reclaimed.
//
// # Generations
//
// The writer advances the generation after publishing a batch of changes.
// Readers enter a generation by taking a Guard and leave it by releasing it:
//
//	g := h.TakeGuard()
//	defer g.Release()
//	// read shared data
//
// OldestUsedGeneration is the lowest generation a reader may still be in.
// Anything retired while the current generation was g is safe to reclaim once
// the oldest used generation is greater than g.
//
// # Hold Lists
//
// Holder queues release callbacks for retired memory. The writer tags queued
// entries with the current generation (TransferHoldLists) and releases them
// once no reader can see them (TrimHoldLists):
//
//	holder.Hold(4096, release)
//	holder.TransferHoldLists(h.CurrentGeneration())
//	h.IncGeneration()
//	holder.TrimHoldLists(h.OldestUsedGeneration())
//
// Guards are safe for concurrent use. IncGeneration, UpdateOldestUsed and the
// Holder belong to the writer.
package generation
