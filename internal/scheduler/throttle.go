package scheduler

import (
	"time"

	"tidy-go/internal/tidy"
)

// notificationWindow is the rolling window of the hourly cap.
const notificationWindow = time.Hour

// allowNotification applies the hourly cap across kinds and the per-kind cooldown.
func (s *AutomationState) allowNotification(p Policy, n tidy.Notification, now time.Time) bool {
	s.expireSent(now)
	if len(s.SentAt) >= p.cfg.MaxNotificationsPerHour {
		return false
	}
	if cd := p.cooldown(n.Kind); cd > 0 {
		if last, ok := s.LastNotified[n.Identifier]; ok && now.Sub(last) < cd {
			return false
		}
	}
	return true
}

func (s *AutomationState) recordNotification(n tidy.Notification, now time.Time) {
	s.SentAt = append(s.SentAt, now)
	s.LastNotified[n.Identifier] = now
}

// expireSent drops deliveries older than the rolling window.
func (s *AutomationState) expireSent(now time.Time) {
	i := 0
	for i < len(s.SentAt) && now.Sub(s.SentAt[i]) >= notificationWindow {
		i++
	}
	s.SentAt = s.SentAt[i:]
}
