package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"tidy-go/internal/config"
	"tidy-go/internal/testutil"
	"tidy-go/internal/tidy"
)

func TestPolicy_BackoffMinutes(t *testing.T) {
	p := NewPolicy(config.DefaultAutomationConfig())

	tests := []struct {
		failures int
		want     int
	}{
		{0, 0},
		{1, 0},
		{2, 0},
		{3, 5},
		{4, 10},
		{5, 20},
		{6, 40},
		{7, 80},
		{8, 120},
		{20, 120},
		{5000, 120},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, p.BackoffMinutes(tt.failures), "failures=%d", tt.failures)
	}
}

func TestPolicy_BackoffMinutes_CustomSettings(t *testing.T) {
	cfg := config.DefaultAutomationConfig()
	cfg.MaxConsecutiveFailures = 1
	cfg.MinIntervalMinutes = 10
	cfg.BackoffMultiplier = 3
	cfg.MaxBackoffMinutes = 60
	p := NewPolicy(cfg)

	assert.Equal(t, 0, p.BackoffMinutes(0))
	assert.Equal(t, 10, p.BackoffMinutes(1))
	assert.Equal(t, 30, p.BackoffMinutes(2))
	assert.Equal(t, 60, p.BackoffMinutes(3))
	assert.Equal(t, 60*time.Minute, p.Backoff(3))
}

func TestPolicy_Intervals(t *testing.T) {
	p := NewPolicy(config.AutomationConfig{})

	assert.Equal(t, 5, p.ClampInterval(1))
	assert.Equal(t, 30, p.ClampInterval(30))
	assert.Equal(t, 1440, p.ClampInterval(5000))
	assert.Equal(t, 30*time.Minute, p.Interval())

	assert.Equal(t, 30*time.Minute, p.NextDelay(0))
	assert.Equal(t, 30*time.Minute, p.NextDelay(4), "backoff shorter than the interval")
	assert.Equal(t, 80*time.Minute, p.NextDelay(7))
	assert.Equal(t, time.Minute, p.Debounce())
	assert.Equal(t, 10*time.Minute, p.ScanTimeout())
}

func TestPolicy_PartialConfigGetsFieldDefaults(t *testing.T) {
	p := NewPolicy(config.AutomationConfig{IntervalMinutes: 60, BacklogThreshold: 5})

	assert.Equal(t, time.Hour, p.Interval())
	assert.Equal(t, config.DefaultMaxNotificationsPerHour, p.Config().MaxNotificationsPerHour)
	assert.Equal(t, 5, p.Config().BacklogThreshold)
	assert.Equal(t, 5*time.Minute, p.Backoff(3))

	s := newState(60)
	n := tidy.Notification{Kind: tidy.NotificationError, Identifier: "scan-error"}
	assert.True(t, s.allowNotification(p, n, testutil.FixedTime), "a zero cap must not silence notifications")
}

func TestPolicy_ConfidenceGates(t *testing.T) {
	p := NewPolicy(config.DefaultAutomationConfig())

	tests := []struct {
		confidence float64
		suggest    bool
		auto       bool
	}{
		{0.5, false, false},
		{0.74, false, false},
		{0.75, true, false},
		{0.89, true, false},
		{0.9, true, true},
		{0.95, true, true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.suggest, p.ShouldSuggest(tt.confidence), "suggest %.2f", tt.confidence)
		assert.Equal(t, tt.auto, p.ShouldAutoOrganize(tt.confidence), "auto %.2f", tt.confidence)
	}
	assert.Equal(t, 0.9, p.AutoOrganizeFloor())
}

func TestPolicy_BacklogDue(t *testing.T) {
	p := NewPolicy(config.DefaultAutomationConfig())
	days := func(n int) *int { return &n }

	tests := []struct {
		name string
		m    tidy.AutomationMetrics
		want bool
	}{
		{"nothing pending", tidy.AutomationMetrics{}, false},
		{"below thresholds", tidy.AutomationMetrics{Pending: 49, OldestPendingAgeDays: days(6)}, false},
		{"count threshold", tidy.AutomationMetrics{Pending: 50, OldestPendingAgeDays: days(0)}, true},
		{"age threshold", tidy.AutomationMetrics{Pending: 1, OldestPendingAgeDays: days(7)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.BacklogDue(tt.m))
		})
	}
}
