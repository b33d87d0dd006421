package resource

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// ErrMemoryLimitExceeded is returned when memory limit would be exceeded.
var ErrMemoryLimitExceeded = errors.New("memory limit exceeded")

// Config holds resource limits.
type Config struct {
	// MemoryLimitBytes is the hard limit for buffer memory.
	// If 0, no hard limit is enforced (only tracking).
	MemoryLimitBytes int64

	// CopyLimitBytesPerSec caps compaction copy throughput.
	// If 0, unlimited.
	CopyLimitBytesPerSec int64
}

// Controller manages store-wide resources.
type Controller struct {
	cfg Config

	// Memory
	memSem  *semaphore.Weighted // nil if unlimited
	memUsed atomic.Int64
	memPeak atomic.Int64

	// Copy
	copyLimiter *rate.Limiter
	copied      atomic.Int64
}

// NewController creates a new resource controller.
func NewController(cfg Config) *Controller {
	c := &Controller{
		cfg: cfg,
	}

	if cfg.MemoryLimitBytes > 0 {
		c.memSem = semaphore.NewWeighted(cfg.MemoryLimitBytes)
	}

	if cfg.CopyLimitBytesPerSec > 0 {
		c.copyLimiter = rate.NewLimiter(rate.Limit(cfg.CopyLimitBytesPerSec), int(cfg.CopyLimitBytesPerSec))
	}

	return c
}

// AcquireMemory attempts to reserve memory.
// Returns ErrMemoryLimitExceeded if limit would be exceeded.
// Non-blocking - callers control retry/backoff policy.
func (c *Controller) AcquireMemory(bytes int64) error {
	if c == nil {
		return nil
	}
	if bytes <= 0 {
		return nil
	}

	if c.memSem != nil {
		if !c.memSem.TryAcquire(bytes) {
			return ErrMemoryLimitExceeded
		}
	}

	used := c.memUsed.Add(bytes)
	for {
		peak := c.memPeak.Load()
		if used <= peak || c.memPeak.CompareAndSwap(peak, used) {
			break
		}
	}
	return nil
}

// ReleaseMemory releases reserved memory.
func (c *Controller) ReleaseMemory(bytes int64) {
	if c == nil {
		return
	}
	if bytes <= 0 {
		return
	}

	if c.memSem != nil {
		c.memSem.Release(bytes)
	}
	c.memUsed.Add(-bytes)
}

// MemoryUsage returns the current memory usage in bytes.
func (c *Controller) MemoryUsage() int64 {
	if c == nil {
		return 0
	}
	return c.memUsed.Load()
}

// PeakMemoryUsage returns the highest memory usage observed.
func (c *Controller) PeakMemoryUsage() int64 {
	if c == nil {
		return 0
	}
	return c.memPeak.Load()
}

// MemoryLimit returns the configured memory limit in bytes (0 if unlimited).
func (c *Controller) MemoryLimit() int64 {
	if c == nil {
		return 0
	}
	return c.cfg.MemoryLimitBytes
}

// AcquireCopy waits until the copy limit allows the specified number of bytes.
// Requests larger than the bucket are split so they never fail outright.
func (c *Controller) AcquireCopy(ctx context.Context, bytes int) error {
	if c == nil || bytes <= 0 {
		return nil
	}
	if c.copyLimiter != nil {
		burst := c.copyLimiter.Burst()
		for remaining := bytes; remaining > 0; remaining -= burst {
			if err := c.copyLimiter.WaitN(ctx, min(remaining, burst)); err != nil {
				return err
			}
		}
	}
	c.copied.Add(int64(bytes))
	return nil
}

// TryAcquireCopy attempts to acquire copy tokens without blocking.
func (c *Controller) TryAcquireCopy(bytes int) bool {
	if c == nil {
		return true
	}
	if c.copyLimiter != nil && !c.copyLimiter.AllowN(time.Now(), bytes) {
		return false
	}
	c.copied.Add(int64(bytes))
	return true
}

// CopiedBytes returns the total number of bytes admitted for copying.
func (c *Controller) CopiedBytes() int64 {
	if c == nil {
		return 0
	}
	return c.copied.Load()
}
