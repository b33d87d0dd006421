package datastore

import (
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with datastore-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	return &Logger{
		Logger: slog.New(slog.DiscardHandler),
	}
}

// WithBufferID adds a buffer_id field to the logger.
func (l *Logger) WithBufferID(id uint32) *Logger {
	return &Logger{
		Logger: l.Logger.With("buffer_id", id),
	}
}

// WithTypeID adds a type_id field to the logger.
func (l *Logger) WithTypeID(id uint32) *Logger {
	return &Logger{
		Logger: l.Logger.With("type_id", id),
	}
}

// LogBufferActive logs a buffer activation.
func (l *Logger) LogBufferActive(bufferID, typeID uint32, capacity int, err error) {
	if err != nil {
		l.Error("buffer activation failed",
			"buffer_id", bufferID,
			"type_id", typeID,
			"error", err,
		)
	} else {
		l.Debug("buffer activated",
			"buffer_id", bufferID,
			"type_id", typeID,
			"capacity", capacity,
		)
	}
}

// LogBufferHold logs a buffer entering its hold period.
func (l *Logger) LogBufferHold(bufferID, typeID uint32, used, dead int) {
	l.Debug("buffer on hold",
		"buffer_id", bufferID,
		"type_id", typeID,
		"used", used,
		"dead", dead,
	)
}

// LogBufferFree logs a held buffer being released.
func (l *Logger) LogBufferFree(bufferID, typeID uint32, err error) {
	if err != nil {
		l.Error("buffer release failed",
			"buffer_id", bufferID,
			"type_id", typeID,
			"error", err,
		)
	} else {
		l.Debug("buffer released",
			"buffer_id", bufferID,
			"type_id", typeID,
		)
	}
}

// LogFallbackResize logs an in-place growth of an active buffer.
func (l *Logger) LogFallbackResize(bufferID, typeID uint32, oldCapacity, newCapacity int, err error) {
	if err != nil {
		l.Error("buffer resize failed",
			"buffer_id", bufferID,
			"type_id", typeID,
			"capacity", oldCapacity,
			"error", err,
		)
	} else {
		l.Debug("buffer resized",
			"buffer_id", bufferID,
			"type_id", typeID,
			"old_capacity", oldCapacity,
			"new_capacity", newCapacity,
		)
	}
}

// LogCompaction logs the end of a compaction.
func (l *Logger) LogCompaction(typeID uint32, buffers []uint32, moved int) {
	l.Info("compaction finished",
		"type_id", typeID,
		"buffers", buffers,
		"moved", moved,
	)
}
