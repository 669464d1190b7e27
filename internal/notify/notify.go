// Package notify delivers automation notifications.
package notify

import (
	"context"
	"fmt"
	"io"
	"sync"

	"tidy-go/internal/tidy"
)

// LogSink records notifications in the log.
type LogSink struct {
	logger tidy.Logger
}

var _ tidy.NotificationSink = (*LogSink)(nil)

func NewLogSink(logger tidy.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Notify(ctx context.Context, n tidy.Notification) error {
	s.logger.Info("notification", "kind", n.Kind, "id", n.Identifier, "title", n.Title, "body", n.Body)
	return nil
}

// WriterSink prints notifications as "title: body" lines, e.g. to a terminal.
type WriterSink struct {
	mu sync.Mutex
	w  io.Writer
}

var _ tidy.NotificationSink = (*WriterSink)(nil)

func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

func (s *WriterSink) Notify(ctx context.Context, n tidy.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := fmt.Fprintf(s.w, "%s: %s\n", n.Title, n.Body); err != nil {
		return fmt.Errorf("writing notification: %w", err)
	}
	return nil
}

// Multi fans a notification out to several sinks. Every sink is tried;
// the first error is returned.
type Multi []tidy.NotificationSink

func (m Multi) Notify(ctx context.Context, n tidy.Notification) error {
	var firstErr error
	for _, s := range m {
		if err := s.Notify(ctx, n); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
