// Package scheduler decides when to scan, backs off after repeated failures
// and throttles the notifications that automation produces.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"tidy-go/internal/config"
	"tidy-go/internal/tidy"
)

// Skip reasons reported in Result.Skipped.
const (
	SkipDebounced  = "debounced"
	SkipBackoff    = "backoff"
	SkipInProgress = "in progress"
	SkipStopped    = "stopped"
)

// RunReport is what a Job hands back after a successful run.
type RunReport struct {
	Metrics   tidy.AutomationMetrics
	Organized int

	// Issues are non-fatal problems worth telling the user about, such as
	// an unreadable folder or a destination that went away.
	Issues []*tidy.AutomationError
}

// Job is the work performed for an accepted trigger.
// A returned error counts as a failed scan and drives backoff.
type Job interface {
	Run(ctx context.Context, trigger tidy.Trigger) (*RunReport, error)
}

// JobFunc adapts a function to Job.
type JobFunc func(ctx context.Context, trigger tidy.Trigger) (*RunReport, error)

func (f JobFunc) Run(ctx context.Context, trigger tidy.Trigger) (*RunReport, error) {
	return f(ctx, trigger)
}

// Observer receives scheduler events, typically for metrics.
type Observer interface {
	TriggerSkipped(trigger tidy.Trigger, reason string)
	ScanFinished(trigger tidy.Trigger, report *RunReport, err error, elapsed time.Duration)
	NotificationSent(n tidy.Notification)
}

// Result describes what RunOnce did with a trigger.
type Result struct {
	Trigger       tidy.Trigger
	Skipped       string // empty when the job ran
	Report        *RunReport
	Err           error
	Notifications []tidy.Notification
}

// Ran reports whether the job was executed.
func (r *Result) Ran() bool { return r.Skipped == "" }

// Scheduler runs a Job on a timer and on demand. All decisions are made
// against a single AutomationState.
type Scheduler struct {
	policy   Policy
	job      Job
	sink     tidy.NotificationSink
	clock    tidy.Clock
	logger   tidy.Logger
	observer Observer

	mu       sync.Mutex
	state    *AutomationState
	debounce *rate.Limiter

	triggers chan tidy.Trigger
	after    func(time.Duration) <-chan time.Time
}

// New creates a Scheduler.
func New(cfg config.AutomationConfig, job Job, sink tidy.NotificationSink, clock tidy.Clock, logger tidy.Logger) *Scheduler {
	policy := NewPolicy(cfg)
	s := &Scheduler{
		policy:   policy,
		job:      job,
		sink:     sink,
		clock:    clock,
		logger:   logger,
		state:    newState(policy.ClampInterval(policy.cfg.IntervalMinutes)),
		triggers: make(chan tidy.Trigger, 1),
		after:    time.After,
	}
	s.debounce = s.newLimiter()
	return s
}

func (s *Scheduler) newLimiter() *rate.Limiter {
	every := rate.Inf
	if d := s.policy.Debounce(); d > 0 {
		every = rate.Every(d)
	}
	return rate.NewLimiter(every, 1)
}

// SetObserver registers an observer. Call before Run.
func (s *Scheduler) SetObserver(o Observer) {
	s.observer = o
}

// Policy returns the scheduler's policy.
func (s *Scheduler) Policy() Policy { return s.policy }

// State returns a snapshot of the automation state.
func (s *Scheduler) State() AutomationState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// Phase returns the current phase.
func (s *Scheduler) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.phase(s.policy, s.clock.Now())
}

// Trigger queues a trigger for the run loop without blocking. It returns
// false when a trigger is already queued; the two are coalesced.
func (s *Scheduler) Trigger(t tidy.Trigger) bool {
	select {
	case s.triggers <- t:
		return true
	default:
		s.logger.Debug("trigger coalesced", "trigger", t)
		return false
	}
}

// Run processes the timer and queued triggers until ctx is cancelled.
// It fires an appLaunch trigger first. A scan in flight when ctx is
// cancelled is allowed to finish; no further trigger is processed.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started", "interval", s.policy.Interval())
	s.handle(ctx, tidy.TriggerAppLaunch)

	for {
		s.mu.Lock()
		delay := s.policy.NextDelay(s.state.ConsecutiveFailures)
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return nil
		case <-s.after(delay):
			s.handle(ctx, tidy.TriggerScheduled)
		case t := <-s.triggers:
			s.handle(ctx, t)
		}
	}
}

func (s *Scheduler) handle(ctx context.Context, t tidy.Trigger) {
	if ctx.Err() != nil {
		return
	}
	res, err := s.RunOnce(ctx, t)
	if err != nil {
		s.logger.Error("automation run failed", "trigger", t, "error", err)
		return
	}
	if !res.Ran() {
		s.logger.Debug("trigger skipped", "trigger", t, "reason", res.Skipped)
	}
}

// RunOnce decides whether trigger should start a scan and, if so, runs the
// job synchronously. The job runs on a context that survives cancellation
// of ctx but is bounded by the scan timeout. The returned error is the
// job's error, also recorded in the Result.
func (s *Scheduler) RunOnce(ctx context.Context, trigger tidy.Trigger) (*Result, error) {
	res := &Result{Trigger: trigger}
	if ctx.Err() != nil {
		res.Skipped = SkipStopped
		return res, nil
	}

	if reason := s.accept(trigger); reason != "" {
		res.Skipped = reason
		if s.observer != nil {
			s.observer.TriggerSkipped(trigger, reason)
		}
		return res, nil
	}

	s.logger.Info("scan triggered", "trigger", trigger)
	start := s.clock.Now()

	jobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.policy.ScanTimeout())
	report, err := s.job.Run(jobCtx, trigger)
	cancel()

	elapsed := s.clock.Now().Sub(start)
	if s.observer != nil {
		s.observer.ScanFinished(trigger, report, err, elapsed)
	}

	res.Report = report
	res.Err = err
	res.Notifications = s.finish(context.WithoutCancel(ctx), report, err)
	if err != nil {
		return res, fmt.Errorf("running %s scan: %w", trigger, err)
	}
	return res, nil
}

// accept applies the in-progress, backoff and debounce checks and marks
// the scan as started. It returns a skip reason, or "" to proceed.
// Manual triggers bypass backoff and debounce.
func (s *Scheduler) accept(trigger tidy.Trigger) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	if s.state.Scanning {
		return SkipInProgress
	}

	if trigger == tidy.TriggerManual {
		// Restart the debounce window at the manual scan.
		s.debounce = s.newLimiter()
		s.debounce.AllowN(now, 1)
	} else {
		if s.state.inBackoff(s.policy, now) {
			return SkipBackoff
		}
		if !s.debounce.AllowN(now, 1) {
			return SkipDebounced
		}
	}

	s.state.Scanning = true
	s.state.LastTriggerAt = now
	return ""
}

// finish records the outcome and sends any notifications it calls for.
func (s *Scheduler) finish(ctx context.Context, report *RunReport, err error) []tidy.Notification {
	s.mu.Lock()
	now := s.clock.Now()
	st := s.state
	st.Scanning = false
	st.LastScanAt = now
	st.LastError = err

	var due []tidy.Notification
	if err != nil {
		st.ConsecutiveFailures++
		due = append(due, errorNotification(tidy.KindOf(err)))
		s.logger.Warn("scan failed",
			"failures", st.ConsecutiveFailures,
			"backoff_minutes", s.policy.BackoffMinutes(st.ConsecutiveFailures),
			"error", err)
	} else {
		st.ConsecutiveFailures = 0
		st.LastSuccessAt = now
		if report != nil {
			m := report.Metrics
			st.LastMetrics = &m
			for _, issue := range report.Issues {
				due = append(due, errorNotification(issue.Kind))
			}
			if report.Organized > 0 {
				due = append(due, organizedNotification(report.Organized))
			}
			if s.policy.BacklogDue(m) {
				due = append(due, backlogNotification(m))
			}
		}
	}
	s.mu.Unlock()

	return s.notify(ctx, due)
}

// notify delivers the notifications that pass the throttle.
func (s *Scheduler) notify(ctx context.Context, due []tidy.Notification) []tidy.Notification {
	if s.sink == nil || s.policy.cfg.DisableNotifications {
		return nil
	}

	var sent []tidy.Notification
	seen := make(map[string]bool)
	for _, n := range due {
		if seen[n.Identifier] {
			continue
		}
		seen[n.Identifier] = true

		s.mu.Lock()
		now := s.clock.Now()
		allowed := s.state.allowNotification(s.policy, n, now)
		s.mu.Unlock()
		if !allowed {
			s.logger.Debug("notification throttled", "id", n.Identifier)
			continue
		}

		if err := s.sink.Notify(ctx, n); err != nil {
			s.logger.Warn("notification failed", "id", n.Identifier, "error", err)
			continue
		}

		s.mu.Lock()
		s.state.recordNotification(n, now)
		s.mu.Unlock()
		if s.observer != nil {
			s.observer.NotificationSent(n)
		}
		sent = append(sent, n)
	}
	return sent
}

func errorNotification(kind tidy.ErrorKind) tidy.Notification {
	return tidy.Notification{
		Kind:       tidy.NotificationError,
		ErrorKind:  kind,
		Identifier: kind.NotificationID(),
		Title:      kind.Title(),
		Body:       errorBody(kind),
	}
}

func errorBody(kind tidy.ErrorKind) string {
	switch kind {
	case tidy.ErrorBookmarkInvalid:
		return "Access to a folder was revoked. Grant access again to resume organizing."
	case tidy.ErrorDestinationInaccessible:
		return "A destination folder could not be reached. Check that it still exists."
	case tidy.ErrorPermissionDenied:
		return "A folder could not be read because permission was denied."
	default:
		return "Scanning your folders failed. Automation will retry later."
	}
}

func organizedNotification(n int) tidy.Notification {
	return tidy.Notification{
		Kind:       tidy.NotificationFilesOrganized,
		Identifier: string(tidy.NotificationFilesOrganized),
		Title:      "Files Organized",
		Body:       fmt.Sprintf("%d files were moved to their destinations.", n),
	}
}

func backlogNotification(m tidy.AutomationMetrics) tidy.Notification {
	body := fmt.Sprintf("%d files are waiting to be organized.", m.Pending)
	if m.OldestPendingAgeDays != nil && *m.OldestPendingAgeDays > 0 {
		body = fmt.Sprintf("%d files are waiting to be organized. The oldest has waited %d days.", m.Pending, *m.OldestPendingAgeDays)
	}
	return tidy.Notification{
		Kind:       tidy.NotificationBacklogReminder,
		Identifier: string(tidy.NotificationBacklogReminder),
		Title:      "Files Need Review",
		Body:       body,
	}
}
