package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tidy-go/internal/config"
	"tidy-go/internal/testutil"
	"tidy-go/internal/tidy"
)

// fakeJob returns a configurable outcome and records the triggers it ran for.
type fakeJob struct {
	mu       sync.Mutex
	report   *RunReport
	err      error
	triggers []tidy.Trigger
	ctxs     []context.Context
}

func (j *fakeJob) Run(ctx context.Context, trigger tidy.Trigger) (*RunReport, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.triggers = append(j.triggers, trigger)
	j.ctxs = append(j.ctxs, ctx)
	if j.err != nil {
		return nil, j.err
	}
	if j.report == nil {
		return &RunReport{}, nil
	}
	r := *j.report
	return &r, nil
}

func (j *fakeJob) set(report *RunReport, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.report, j.err = report, err
}

func (j *fakeJob) runs() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.triggers)
}

type fixture struct {
	clock *testutil.StubClock
	sink  *testutil.RecordingSink
	job   *fakeJob
	sched *Scheduler
}

func newFixture(t *testing.T, mutate func(*config.AutomationConfig)) *fixture {
	t.Helper()
	cfg := config.DefaultAutomationConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	f := &fixture{
		clock: testutil.FixedClock(),
		sink:  testutil.NewRecordingSink(),
		job:   &fakeJob{},
	}
	f.sched = New(cfg, f.job, f.sink, f.clock, tidy.NewNopLogger())
	return f
}

func (f *fixture) run(t *testing.T, trigger tidy.Trigger) *Result {
	t.Helper()
	res, err := f.sched.RunOnce(context.Background(), trigger)
	if f.job.err == nil {
		require.NoError(t, err)
	}
	return res
}

func TestRunOnce_Debounce(t *testing.T) {
	f := newFixture(t, nil)

	assert.True(t, f.run(t, tidy.TriggerAppLaunch).Ran())
	assert.Equal(t, PhaseCooldown, f.sched.Phase())

	f.clock.Advance(30 * time.Second)
	res := f.run(t, tidy.TriggerFolderChanged)
	assert.Equal(t, SkipDebounced, res.Skipped)

	f.clock.Advance(29 * time.Second)
	assert.Equal(t, SkipDebounced, f.run(t, tidy.TriggerScheduled).Skipped)

	f.clock.Advance(2 * time.Second)
	assert.True(t, f.run(t, tidy.TriggerScheduled).Ran())
	assert.Equal(t, 2, f.job.runs())

	f.clock.Advance(2 * time.Minute)
	assert.Equal(t, PhaseIdle, f.sched.Phase())
}

func TestRunOnce_ManualBypassesDebounce(t *testing.T) {
	f := newFixture(t, nil)

	f.run(t, tidy.TriggerScheduled)
	f.clock.Advance(5 * time.Second)
	assert.True(t, f.run(t, tidy.TriggerManual).Ran())

	// The window restarts at the manual scan.
	f.clock.Advance(40 * time.Second)
	assert.Equal(t, SkipDebounced, f.run(t, tidy.TriggerFolderChanged).Skipped)
	f.clock.Advance(21 * time.Second)
	assert.True(t, f.run(t, tidy.TriggerFolderChanged).Ran())
}

func TestRunOnce_BackoffAfterRepeatedFailures(t *testing.T) {
	f := newFixture(t, nil)
	f.job.set(nil, errors.New("disk on fire"))

	for i := 1; i <= 3; i++ {
		res, err := f.sched.RunOnce(context.Background(), tidy.TriggerScheduled)
		require.Error(t, err)
		require.True(t, res.Ran())
		assert.Equal(t, i, f.sched.State().ConsecutiveFailures)
		f.clock.Advance(61 * time.Second)
	}

	// Three failures: 5 minutes of backoff from the last attempt.
	assert.Equal(t, PhaseBackoff, f.sched.Phase())
	res, err := f.sched.RunOnce(context.Background(), tidy.TriggerScheduled)
	require.NoError(t, err)
	assert.Equal(t, SkipBackoff, res.Skipped)

	f.clock.Advance(4 * time.Minute)
	assert.Equal(t, PhaseIdle, f.sched.Phase())
	f.job.set(&RunReport{}, nil)
	assert.True(t, f.run(t, tidy.TriggerScheduled).Ran())

	st := f.sched.State()
	assert.Zero(t, st.ConsecutiveFailures)
	assert.NoError(t, st.LastError)
	assert.Equal(t, f.clock.Now(), st.LastSuccessAt)
}

func TestRunOnce_ManualBypassesBackoff(t *testing.T) {
	f := newFixture(t, nil)
	f.job.set(nil, errors.New("boom"))
	for i := 0; i < 3; i++ {
		f.sched.RunOnce(context.Background(), tidy.TriggerManual)
	}
	require.Equal(t, PhaseBackoff, f.sched.Phase())

	f.job.set(&RunReport{}, nil)
	res := f.run(t, tidy.TriggerManual)
	assert.True(t, res.Ran())
	assert.Zero(t, f.sched.State().ConsecutiveFailures)
}

func TestRunOnce_FailureNotifiesMappedKind(t *testing.T) {
	f := newFixture(t, nil)
	f.job.set(nil, tidy.NewAutomationError(tidy.ErrorPermissionDenied, errors.New("open /secret: permission denied")))

	res, err := f.sched.RunOnce(context.Background(), tidy.TriggerManual)
	require.Error(t, err)
	require.Len(t, res.Notifications, 1)

	n := res.Notifications[0]
	assert.Equal(t, tidy.NotificationError, n.Kind)
	assert.Equal(t, tidy.ErrorPermissionDenied, n.ErrorKind)
	assert.Equal(t, "permissionDenied", n.Identifier)
	assert.Equal(t, "Permission Denied", n.Title)
	assert.NotContains(t, n.Body, "/secret", "raw OS text stays out of notifications")
	assert.Equal(t, 1, f.sink.Count(tidy.NotificationError))
}

func TestRunOnce_ErrorCooldownPerKind(t *testing.T) {
	f := newFixture(t, nil)
	f.job.set(&RunReport{Issues: []*tidy.AutomationError{
		tidy.NewAutomationError(tidy.ErrorScanFailed, nil),
	}}, nil)

	f.run(t, tidy.TriggerManual)
	f.clock.Advance(10 * time.Minute)
	f.run(t, tidy.TriggerManual)
	assert.Equal(t, 1, f.sink.Count(tidy.NotificationError), "same kind within cooldown")

	f.job.set(&RunReport{Issues: []*tidy.AutomationError{
		tidy.NewAutomationError(tidy.ErrorScanFailed, nil),
		tidy.NewAutomationError(tidy.ErrorDestinationInaccessible, nil),
	}}, nil)
	f.clock.Advance(10 * time.Minute)
	f.run(t, tidy.TriggerManual)
	assert.Equal(t, 2, f.sink.Count(tidy.NotificationError), "other kinds are not blocked")

	f.clock.Advance(61 * time.Minute)
	f.run(t, tidy.TriggerManual)
	assert.Equal(t, 4, f.sink.Count(tidy.NotificationError))
}

func TestRunOnce_HourlyNotificationCap(t *testing.T) {
	f := newFixture(t, nil)
	f.job.set(&RunReport{Organized: 3}, nil)

	for i := 0; i < 8; i++ {
		f.run(t, tidy.TriggerManual)
		f.clock.Advance(5 * time.Minute)
	}
	assert.Equal(t, 5, f.sink.Count(tidy.NotificationFilesOrganized))

	// 40 minutes elapsed; the first delivery leaves the window at 60.
	f.clock.Advance(20 * time.Minute)
	f.run(t, tidy.TriggerManual)
	assert.Equal(t, 6, f.sink.Count(tidy.NotificationFilesOrganized))
	assert.Contains(t, f.sink.Sent()[0].Body, "3 files")
}

func TestRunOnce_CapCountsAllKinds(t *testing.T) {
	f := newFixture(t, func(c *config.AutomationConfig) { c.MaxNotificationsPerHour = 2 })
	f.job.set(&RunReport{
		Organized: 1,
		Metrics:   tidy.AutomationMetrics{Pending: 80},
		Issues:    []*tidy.AutomationError{tidy.NewAutomationError(tidy.ErrorScanFailed, nil)},
	}, nil)

	res := f.run(t, tidy.TriggerManual)
	assert.Len(t, res.Notifications, 2)
	assert.Len(t, f.sink.Sent(), 2)
}

func TestRunOnce_BacklogReminderCooldown(t *testing.T) {
	f := newFixture(t, nil)
	age := 9
	f.job.set(&RunReport{Metrics: tidy.AutomationMetrics{Pending: 3, OldestPendingAgeDays: &age}}, nil)

	res := f.run(t, tidy.TriggerManual)
	require.Len(t, res.Notifications, 1)
	assert.Equal(t, tidy.NotificationBacklogReminder, res.Notifications[0].Kind)
	assert.Contains(t, res.Notifications[0].Body, "9 days")

	f.clock.Advance(2 * time.Hour)
	f.run(t, tidy.TriggerManual)
	f.clock.Advance(21 * time.Hour)
	f.run(t, tidy.TriggerManual)
	assert.Equal(t, 1, f.sink.Count(tidy.NotificationBacklogReminder))

	f.clock.Advance(time.Hour)
	f.run(t, tidy.TriggerManual)
	assert.Equal(t, 2, f.sink.Count(tidy.NotificationBacklogReminder))
}

func TestRunOnce_NotificationsDisabled(t *testing.T) {
	f := newFixture(t, func(c *config.AutomationConfig) { c.DisableNotifications = true })
	f.job.set(nil, errors.New("boom"))

	res, _ := f.sched.RunOnce(context.Background(), tidy.TriggerManual)
	assert.Empty(t, res.Notifications)
	assert.Empty(t, f.sink.Sent())
}

func TestRunOnce_SinkFailureIsNotCounted(t *testing.T) {
	f := newFixture(t, nil)
	f.sink.Err = errors.New("sink down")
	f.job.set(&RunReport{Organized: 1}, nil)

	res := f.run(t, tidy.TriggerManual)
	assert.Empty(t, res.Notifications)
	assert.Empty(t, f.sched.State().SentAt)
}

func TestRunOnce_CancelledContext(t *testing.T) {
	f := newFixture(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := f.sched.RunOnce(ctx, tidy.TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, SkipStopped, res.Skipped)
	assert.Zero(t, f.job.runs())
}

func TestRunOnce_JobContextIsBounded(t *testing.T) {
	f := newFixture(t, nil)
	f.run(t, tidy.TriggerManual)

	require.Len(t, f.job.ctxs, 1)
	deadline, ok := f.job.ctxs[0].Deadline()
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(10*time.Minute), deadline, time.Minute)
}

// blockingJob waits for release before returning.
type blockingJob struct {
	started chan tidy.Trigger
	release chan struct{}
	ctxErr  chan error
}

func newBlockingJob() *blockingJob {
	return &blockingJob{
		started: make(chan tidy.Trigger, 10),
		release: make(chan struct{}),
		ctxErr:  make(chan error, 10),
	}
}

func (j *blockingJob) Run(ctx context.Context, trigger tidy.Trigger) (*RunReport, error) {
	j.started <- trigger
	<-j.release
	j.ctxErr <- ctx.Err()
	return &RunReport{}, nil
}

func TestRunOnce_InProgress(t *testing.T) {
	job := newBlockingJob()
	clock := testutil.FixedClock()
	s := New(config.DefaultAutomationConfig(), job, nil, clock, tidy.NewNopLogger())

	done := make(chan struct{})
	go func() {
		s.RunOnce(context.Background(), tidy.TriggerManual)
		close(done)
	}()
	<-job.started
	assert.Equal(t, PhaseScanning, s.Phase())

	res, err := s.RunOnce(context.Background(), tidy.TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, SkipInProgress, res.Skipped)

	close(job.release)
	<-done
}

func TestTrigger_Coalesces(t *testing.T) {
	f := newFixture(t, nil)
	assert.True(t, f.sched.Trigger(tidy.TriggerFolderChanged))
	assert.False(t, f.sched.Trigger(tidy.TriggerThresholdExceeded))
}

func TestRun_ProcessesTimerAndTriggers(t *testing.T) {
	job := newBlockingJob()
	close(job.release)
	clock := testutil.FixedClock()
	s := New(config.DefaultAutomationConfig(), job, nil, clock, tidy.NewNopLogger())

	ticks := make(chan time.Time)
	delays := make(chan time.Duration, 10)
	s.after = func(d time.Duration) <-chan time.Time {
		delays <- d
		return ticks
	}

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan error)
	go func() { stopped <- s.Run(ctx) }()

	assert.Equal(t, tidy.TriggerAppLaunch, <-job.started)
	assert.Equal(t, 30*time.Minute, <-delays)

	clock.Advance(30 * time.Minute)
	ticks <- clock.Now()
	assert.Equal(t, tidy.TriggerScheduled, <-job.started)
	<-delays

	clock.Advance(2 * time.Minute)
	s.Trigger(tidy.TriggerFolderChanged)
	assert.Equal(t, tidy.TriggerFolderChanged, <-job.started)
	<-delays

	cancel()
	require.NoError(t, <-stopped)
}

func TestRun_CancelLetsScanFinish(t *testing.T) {
	job := newBlockingJob()
	clock := testutil.FixedClock()
	s := New(config.DefaultAutomationConfig(), job, nil, clock, tidy.NewNopLogger())
	s.after = func(time.Duration) <-chan time.Time { return make(chan time.Time) }

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan error)
	go func() { stopped <- s.Run(ctx) }()

	<-job.started
	s.Trigger(tidy.TriggerManual)
	cancel()
	close(job.release)

	assert.NoError(t, <-job.ctxErr, "in-flight scan is not cancelled")
	require.NoError(t, <-stopped)

	select {
	case tr := <-job.started:
		t.Fatalf("trigger %s ran after cancellation", tr)
	default:
	}
	assert.False(t, s.State().Scanning)
}
