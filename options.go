package datastore

import (
	"log/slog"

	"github.com/hupe1980/datastore/alloc"
	"github.com/hupe1980/datastore/entryref"
	"github.com/hupe1980/datastore/generation"
	"github.com/hupe1980/datastore/resource"
)

// DefaultMaxBuffers caps the buffer slot table when the reference layout
// could address more buffers.
const DefaultMaxBuffers = 4096

type options struct {
	offsetBits       uint
	maxBuffers       int
	allocator        alloc.Allocator
	controller       *resource.Controller
	generations      *generation.Handler
	freeLists        bool
	metricsCollector MetricsCollector
	logger           *Logger
}

// Option configures a Store.
type Option func(*options)

// WithOffsetBits sets the width of the offset field of entry references.
// More offset bits allow larger buffers but fewer of them.
//
// If not set, entryref.DefaultOffsetBits is used.
func WithOffsetBits(bits uint) Option {
	return func(o *options) {
		o.offsetBits = bits
	}
}

// WithMaxBuffers limits the number of buffer slots. The limit never exceeds
// what the reference layout can address.
func WithMaxBuffers(n int) Option {
	return func(o *options) {
		o.maxBuffers = n
	}
}

// WithAllocator sets the allocator for buffer memory.
//
// If nil is passed, alloc.Auto is used, charged against the resource
// controller if one is configured.
func WithAllocator(a alloc.Allocator) Option {
	return func(o *options) {
		o.allocator = a
	}
}

// WithResourceController configures memory budgeting and compaction copy pacing.
//
// Example:
//
//	rc := resource.NewController(resource.Config{
//	    MemoryLimitBytes:     1 << 30,
//	    CopyLimitBytesPerSec: 64 << 20,
//	})
//	s, _ := datastore.New(datastore.WithResourceController(rc))
func WithResourceController(rc *resource.Controller) Option {
	return func(o *options) {
		o.controller = rc
	}
}

// WithGenerationHandler shares a generation handler with other structures.
// If not set, the Store creates its own.
func WithGenerationHandler(h *generation.Handler) Option {
	return func(o *options) {
		o.generations = h
	}
}

// WithFreeLists enables recycling of freed single-cluster entries.
func WithFreeLists() Option {
	return func(o *options) {
		o.freeLists = true
	}
}

// WithMetricsCollector configures a metrics collector for buffer lifecycle events.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &datastore.BasicMetricsCollector{}
//	s, _ := datastore.New(datastore.WithMetricsCollector(metrics))
//	// ... use s ...
//	stats := metrics.GetStats()
//	fmt.Printf("Buffers: %d, Resizes: %d\n", stats.ActiveCount, stats.ResizeCount)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for buffer lifecycle events.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := datastore.NewJSONLogger(slog.LevelDebug)
//	s, _ := datastore.New(datastore.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		offsetBits:       entryref.DefaultOffsetBits,
		maxBuffers:       DefaultMaxBuffers,
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.metricsCollector == nil {
		o.metricsCollector = NoopMetricsCollector{}
	}
	if o.logger == nil {
		o.logger = NoopLogger()
	}
	if o.allocator == nil {
		o.allocator = alloc.Auto(alloc.DefaultMmapThreshold, alloc.WithController(o.controller))
	}
	if o.generations == nil {
		o.generations = generation.NewHandler()
	}
	return o
}
