package dedupe

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// NoopEventSink is a no-operation implementation of EventSink.
// Useful when no indexing pipeline is attached, and for testing.
type NoopEventSink struct{}

// NewNoopEventSink creates a new no-operation event sink
func NewNoopEventSink() EventSink {
	return &NoopEventSink{}
}

// RecordCreated does nothing and returns nil
func (n *NoopEventSink) RecordCreated(ctx context.Context, record *FileRecord) error {
	return nil
}

// RecordDeleted does nothing and returns nil
func (n *NoopEventSink) RecordDeleted(ctx context.Context, id uuid.UUID) error {
	return nil
}

// LoggingEventSink is an event sink that logs events but takes no other
// action. Useful for development and debugging.
type LoggingEventSink struct {
	logger *slog.Logger
}

// NewLoggingEventSink creates a new logging event sink
func NewLoggingEventSink(logger *slog.Logger) EventSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingEventSink{logger: logger}
}

// RecordCreated logs the record creation event
func (l *LoggingEventSink) RecordCreated(ctx context.Context, record *FileRecord) error {
	l.logger.Info("record created",
		"record_id", record.ID,
		"content_hash", record.ContentHash,
		"filename", record.OriginalFilename,
		"size", record.Size)
	return nil
}

// RecordDeleted logs the record deletion event
func (l *LoggingEventSink) RecordDeleted(ctx context.Context, id uuid.UUID) error {
	l.logger.Info("record deleted", "record_id", id)
	return nil
}
