package scheduler

import (
	"time"

	"tidy-go/internal/tidy"
)

// Phase is the scheduler's current mode.
type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhaseScanning Phase = "scanning"
	PhaseBackoff  Phase = "backoff"
	PhaseCooldown Phase = "cooldown" // a trigger was accepted within the debounce window
)

// AutomationState is everything the scheduler remembers between scans.
// It is owned by one Scheduler and only read through snapshots.
type AutomationState struct {
	Scanning            bool
	ConsecutiveFailures int
	LastTriggerAt       time.Time
	LastScanAt          time.Time // last finished attempt, successful or not
	LastSuccessAt       time.Time
	LastError           error
	LastMetrics         *tidy.AutomationMetrics
	IntervalMinutes     int

	// LastNotified is keyed by notification identifier.
	LastNotified map[string]time.Time

	// SentAt holds delivery times within the last hour, oldest first.
	SentAt []time.Time
}

func newState(intervalMinutes int) *AutomationState {
	return &AutomationState{
		IntervalMinutes: intervalMinutes,
		LastNotified:    make(map[string]time.Time),
	}
}

func (s *AutomationState) clone() AutomationState {
	c := *s
	c.LastNotified = make(map[string]time.Time, len(s.LastNotified))
	for k, v := range s.LastNotified {
		c.LastNotified[k] = v
	}
	c.SentAt = append([]time.Time(nil), s.SentAt...)
	if s.LastMetrics != nil {
		m := *s.LastMetrics
		c.LastMetrics = &m
	}
	return c
}

// phase derives the current phase at now.
func (s *AutomationState) phase(p Policy, now time.Time) Phase {
	switch {
	case s.Scanning:
		return PhaseScanning
	case s.inBackoff(p, now):
		return PhaseBackoff
	case !s.LastTriggerAt.IsZero() && now.Sub(s.LastTriggerAt) < p.Debounce():
		return PhaseCooldown
	default:
		return PhaseIdle
	}
}

func (s *AutomationState) inBackoff(p Policy, now time.Time) bool {
	backoff := p.Backoff(s.ConsecutiveFailures)
	return backoff > 0 && now.Sub(s.LastScanAt) < backoff
}
