package testutil

import (
	"context"
	"sync"

	"tidy-go/internal/tidy"
)

// RecordingSink collects notifications for assertions.
type RecordingSink struct {
	mu   sync.Mutex
	sent []tidy.Notification
	Err  error
}

var _ tidy.NotificationSink = (*RecordingSink)(nil)

func NewRecordingSink() *RecordingSink {
	return &RecordingSink{}
}

func (s *RecordingSink) Notify(ctx context.Context, n tidy.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.sent = append(s.sent, n)
	return nil
}

// Sent returns a copy of everything delivered so far.
func (s *RecordingSink) Sent() []tidy.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]tidy.Notification(nil), s.sent...)
}

// Count returns how many notifications of kind were delivered.
func (s *RecordingSink) Count(kind tidy.NotificationKind) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, x := range s.sent {
		if x.Kind == kind {
			n++
		}
	}
	return n
}
