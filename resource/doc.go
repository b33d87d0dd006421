// Package resource implements the Controller for store-wide memory and copy budgets.
//
// The Controller governs two resources:
//
//   - Memory: bytes held by buffer allocations (non-blocking, fail-fast)
//   - Copy bandwidth: bytes moved by compaction (token bucket)
//
// # Memory Management
//
// Memory tracking uses a weighted semaphore for the hard limit and an atomic
// counter for usage. AcquireMemory never blocks; exhaustion is reported to the
// caller, which owns any retry policy:
//
//	rc := resource.NewController(resource.Config{
//	    MemoryLimitBytes: 1 << 30, // 1GB limit
//	})
//
//	if err := rc.AcquireMemory(1 << 20); err != nil {
//	    // ErrMemoryLimitExceeded
//	}
//	defer rc.ReleaseMemory(1 << 20)
//
// # Copy Pacing
//
// Compaction moves live elements into fresh buffers. A token bucket keeps
// large compactions from monopolising memory bandwidth:
//
//	rc := resource.NewController(resource.Config{
//	    CopyLimitBytesPerSec: 256 << 20,
//	})
//
//	if err := rc.AcquireCopy(ctx, 4096); err != nil {
//	    return err
//	}
//
// # Nil Safety
//
// All methods handle a nil Controller gracefully: they become no-ops.
package resource
