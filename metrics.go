package datastore

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting buffer lifecycle metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
//
// Example Prometheus integration:
//
//	type PrometheusCollector struct {
//	    activeCounter prometheus.Counter
//	    allocatedGauge prometheus.Gauge
//	}
//
//	func (p *PrometheusCollector) RecordBufferActive(typeID uint32, bytes int, err error) {
//	    p.activeCounter.Inc()
//	    p.allocatedGauge.Add(float64(bytes))
//	}
type MetricsCollector interface {
	// RecordBufferActive is called after each buffer activation.
	// bytes is the size of the new allocation, err is nil if successful.
	RecordBufferActive(typeID uint32, bytes int, err error)

	// RecordBufferHold is called when a buffer enters its hold period.
	RecordBufferHold(typeID uint32, bytes int)

	// RecordBufferFree is called when a held buffer is released.
	RecordBufferFree(typeID uint32, bytes int, err error)

	// RecordFallbackResize is called after each in-place buffer growth.
	RecordFallbackResize(typeID uint32, oldBytes, newBytes int, err error)

	// RecordCompaction is called when a compaction finishes.
	// buffers is the number of compacted buffers, moved the number of moved
	// entries and duration the time since the compaction started.
	RecordCompaction(typeID uint32, buffers, moved int, duration time.Duration)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordBufferActive(uint32, int, error)            {}
func (NoopMetricsCollector) RecordBufferHold(uint32, int)                     {}
func (NoopMetricsCollector) RecordBufferFree(uint32, int, error)              {}
func (NoopMetricsCollector) RecordFallbackResize(uint32, int, int, error)     {}
func (NoopMetricsCollector) RecordCompaction(uint32, int, int, time.Duration) {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	ActiveCount         atomic.Int64
	ActiveErrors        atomic.Int64
	ActiveBytes         atomic.Int64
	HoldCount           atomic.Int64
	FreeCount           atomic.Int64
	FreeErrors          atomic.Int64
	FreeBytes           atomic.Int64
	ResizeCount         atomic.Int64
	ResizeErrors        atomic.Int64
	ResizeBytes         atomic.Int64
	CompactionCount     atomic.Int64
	CompactedBuffers    atomic.Int64
	MovedEntries        atomic.Int64
	CompactionTotalNano atomic.Int64
}

// RecordBufferActive implements MetricsCollector.
func (b *BasicMetricsCollector) RecordBufferActive(typeID uint32, bytes int, err error) {
	if err != nil {
		b.ActiveErrors.Add(1)
		return
	}
	b.ActiveCount.Add(1)
	b.ActiveBytes.Add(int64(bytes))
}

// RecordBufferHold implements MetricsCollector.
func (b *BasicMetricsCollector) RecordBufferHold(typeID uint32, bytes int) {
	b.HoldCount.Add(1)
}

// RecordBufferFree implements MetricsCollector.
func (b *BasicMetricsCollector) RecordBufferFree(typeID uint32, bytes int, err error) {
	b.FreeCount.Add(1)
	b.FreeBytes.Add(int64(bytes))
	if err != nil {
		b.FreeErrors.Add(1)
	}
}

// RecordFallbackResize implements MetricsCollector.
func (b *BasicMetricsCollector) RecordFallbackResize(typeID uint32, oldBytes, newBytes int, err error) {
	if err != nil {
		b.ResizeErrors.Add(1)
		return
	}
	b.ResizeCount.Add(1)
	b.ResizeBytes.Add(int64(newBytes - oldBytes))
}

// RecordCompaction implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCompaction(typeID uint32, buffers, moved int, duration time.Duration) {
	b.CompactionCount.Add(1)
	b.CompactedBuffers.Add(int64(buffers))
	b.MovedEntries.Add(int64(moved))
	b.CompactionTotalNano.Add(duration.Nanoseconds())
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		ActiveCount:        b.ActiveCount.Load(),
		ActiveErrors:       b.ActiveErrors.Load(),
		ActiveBytes:        b.ActiveBytes.Load(),
		HoldCount:          b.HoldCount.Load(),
		FreeCount:          b.FreeCount.Load(),
		FreeErrors:         b.FreeErrors.Load(),
		FreeBytes:          b.FreeBytes.Load(),
		ResizeCount:        b.ResizeCount.Load(),
		ResizeErrors:       b.ResizeErrors.Load(),
		ResizeBytes:        b.ResizeBytes.Load(),
		CompactionCount:    b.CompactionCount.Load(),
		CompactedBuffers:   b.CompactedBuffers.Load(),
		MovedEntries:       b.MovedEntries.Load(),
		CompactionAvgNanos: b.getAvgCompactionNanos(),
	}
}

func (b *BasicMetricsCollector) getAvgCompactionNanos() int64 {
	count := b.CompactionCount.Load()
	if count == 0 {
		return 0
	}
	return b.CompactionTotalNano.Load() / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	ActiveCount        int64
	ActiveErrors       int64
	ActiveBytes        int64
	HoldCount          int64
	FreeCount          int64
	FreeErrors         int64
	FreeBytes          int64
	ResizeCount        int64
	ResizeErrors       int64
	ResizeBytes        int64
	CompactionCount    int64
	CompactedBuffers   int64
	MovedEntries       int64
	CompactionAvgNanos int64
}
