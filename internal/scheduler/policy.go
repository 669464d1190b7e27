package scheduler

import (
	"math"
	"time"

	"tidy-go/internal/config"
	"tidy-go/internal/tidy"
)

// Policy holds the numeric automation rules: backoff, interval bounds,
// notification limits and confidence floors.
type Policy struct {
	cfg config.AutomationConfig
}

// NewPolicy creates a Policy. Each zero field in cfg is replaced by its default.
func NewPolicy(cfg config.AutomationConfig) Policy {
	cfg.ApplyDefaults()
	return Policy{cfg: cfg}
}

// Config returns the settings the policy was built from.
func (p Policy) Config() config.AutomationConfig { return p.cfg }

// BackoffMinutes returns the extra delay after the given number of
// consecutive failures. Below the failure threshold it is zero; from the
// threshold on it grows geometrically from the minimum interval and is capped.
func (p Policy) BackoffMinutes(failures int) int {
	if failures < p.cfg.MaxConsecutiveFailures {
		return 0
	}
	exp := float64(failures - p.cfg.MaxConsecutiveFailures)
	minutes := float64(p.cfg.MinIntervalMinutes) * math.Pow(p.cfg.BackoffMultiplier, exp)
	if minutes > float64(p.cfg.MaxBackoffMinutes) || math.IsInf(minutes, 1) {
		return p.cfg.MaxBackoffMinutes
	}
	return int(minutes)
}

// Backoff is BackoffMinutes as a duration.
func (p Policy) Backoff(failures int) time.Duration {
	return time.Duration(p.BackoffMinutes(failures)) * time.Minute
}

// ClampInterval bounds a scan interval to [min, max] minutes.
func (p Policy) ClampInterval(minutes int) int {
	return max(p.cfg.MinIntervalMinutes, min(minutes, p.cfg.MaxIntervalMinutes))
}

// Interval is the configured scan interval after clamping.
func (p Policy) Interval() time.Duration {
	return time.Duration(p.ClampInterval(p.cfg.IntervalMinutes)) * time.Minute
}

// NextDelay is the wait before the next scheduled scan: the interval, or
// the backoff when that is longer.
func (p Policy) NextDelay(failures int) time.Duration {
	return max(p.Interval(), p.Backoff(failures))
}

// Debounce is the window in which repeated triggers collapse.
func (p Policy) Debounce() time.Duration {
	return time.Duration(p.cfg.DebounceSeconds) * time.Second
}

// ScanTimeout bounds a single scan.
func (p Policy) ScanTimeout() time.Duration {
	return time.Duration(p.cfg.ScanTimeoutMinutes) * time.Minute
}

// ShouldSuggest reports whether a match is confident enough to show.
func (p Policy) ShouldSuggest(confidence float64) bool {
	return confidence >= p.cfg.SuggestionMinConfidence
}

// ShouldAutoOrganize reports whether a match may be moved without review.
func (p Policy) ShouldAutoOrganize(confidence float64) bool {
	return confidence >= p.cfg.AutoOrganizeMinConfidence
}

// AutoOrganizeFloor is the minimum confidence for unattended moves.
func (p Policy) AutoOrganizeFloor() float64 {
	return p.cfg.AutoOrganizeMinConfidence
}

// BacklogDue reports whether the metrics call for a backlog reminder.
func (p Policy) BacklogDue(m tidy.AutomationMetrics) bool {
	if m.Pending > 0 && m.Pending >= p.cfg.BacklogThreshold {
		return true
	}
	return m.OldestPendingAgeDays != nil && *m.OldestPendingAgeDays >= p.cfg.AgeThresholdDays
}

// cooldown returns the per-kind repeat window for a notification.
func (p Policy) cooldown(kind tidy.NotificationKind) time.Duration {
	switch kind {
	case tidy.NotificationBacklogReminder:
		return time.Duration(p.cfg.BacklogCooldownHours) * time.Hour
	case tidy.NotificationError:
		return time.Duration(p.cfg.ErrorCooldownMinutes) * time.Minute
	default:
		return 0
	}
}
