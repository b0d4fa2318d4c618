package audit

import (
	"context"
	"errors"
	"log/slog"
)

// LogSink writes events to a structured logger.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Append(ctx context.Context, event Event) error {
	attrs := []any{
		"log_type", "audit",
		"event_id", event.ID,
		"type", string(event.Type),
		"timestamp", event.Timestamp,
	}
	if event.UserID != "" {
		attrs = append(attrs, "user_id", event.UserID)
	}
	if event.AppType != "" {
		attrs = append(attrs, "app_type", string(event.AppType))
	}
	if event.SessionID != "" {
		attrs = append(attrs, "session_id", event.SessionID)
	}
	if event.Error != "" {
		attrs = append(attrs, "error", event.Error)
	}
	if len(event.Metadata) > 0 {
		attrs = append(attrs, "metadata", event.Metadata)
	}
	s.logger.InfoContext(ctx, "audit", attrs...)
	return nil
}

// MultiSink fans one event out to every sink and joins their errors.
type MultiSink []Sink

func (m MultiSink) Append(ctx context.Context, event Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Append(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
