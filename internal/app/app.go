package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	iofs "io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"tidy-go/internal/boundary"
	"tidy-go/internal/config"
	"tidy-go/internal/database"
	"tidy-go/internal/fs"
	"tidy-go/internal/metrics"
	"tidy-go/internal/organizer"
	"tidy-go/internal/pipeline"
	"tidy-go/internal/rules"
	"tidy-go/internal/scheduler"
	"tidy-go/internal/secure"
	"tidy-go/internal/tidy"
	"tidy-go/internal/tokenstore"
	"tidy-go/internal/watch"
)

// Options adjust how a TidyApp is built.
type Options struct {
	// Passphrase unlocks a passphrase-protected token identity.
	Passphrase tokenstore.PassphraseFunc

	// Console receives log output in addition to the log file. Nil keeps logs in the file only.
	Console io.Writer

	Verbose bool

	// Clock and IDs default to the real clock and random UUIDs.
	Clock tidy.Clock
	IDs   tidy.IDGenerator
}

// TidyApp is the application layer between the CLI and the engine.
// It constructs all dependencies from config, exposes high-level operations
// and manages the DB lifecycle on Close.
type TidyApp struct {
	cfg       *config.Config
	db        *database.SQLiteDatabase
	tokens    tidy.TokenStore
	guard     *boundary.Guard
	provider  *fs.OSMetadataProvider
	pipeline  *pipeline.Pipeline
	mover     *secure.Mover
	organizer *organizer.Organizer
	metrics   *metrics.Metrics
	clock     tidy.Clock
	idgen     tidy.IDGenerator
	logger    tidy.Logger
	logFile   *os.File
}

// NewTidyApp creates a fully wired TidyApp from the given config.
// The caller must call Close when done.
func NewTidyApp(cfg *config.Config, opts Options) (*TidyApp, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	clock := opts.Clock
	if clock == nil {
		clock = tidy.RealClock{}
	}
	idgen := opts.IDs
	if idgen == nil {
		idgen = tidy.UUIDGenerator{}
	}

	homeDir := cfg.HomeDir
	if homeDir == "" {
		var err error
		if homeDir, err = os.UserHomeDir(); err != nil {
			return nil, fmt.Errorf("cannot determine home directory: %w", err)
		}
		cfg.HomeDir = homeDir
	}

	runID := clock.Now().UTC().Format("20060102T150405Z")
	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	sl, logFile, err := newLogger(cfg.LogDir, runID, level, opts.Console)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: sl}

	db, err := database.NewDatabaseFromConfig(cfg.Database)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("creating database: %w", err)
	}
	if err := db.CheckMigrations(); err != nil {
		db.Close()
		logFile.Close()
		return nil, fmt.Errorf("database schema out of date: %w", err)
	}
	lastRun, err := db.MaxScanRunID(context.Background())
	if err != nil {
		db.Close()
		logFile.Close()
		return nil, fmt.Errorf("reading scan history: %w", err)
	}
	logger.Debug("database opened", "path", db.Path(), "last_run", lastRun)

	tokens, err := tokenstore.NewTokenStoreFromConfig(cfg.Tokens, opts.Passphrase)
	if err != nil {
		db.Close()
		logFile.Close()
		return nil, fmt.Errorf("creating token store: %w", err)
	}

	guard := boundary.NewGuard(homeDir, tokens, clock, logger)
	provider := fs.NewOSMetadataProvider(cfg.Scan, logger)
	mover := secure.NewMover(guard, logger)

	return &TidyApp{
		cfg:       cfg,
		db:        db,
		tokens:    tokens,
		guard:     guard,
		provider:  provider,
		pipeline:  pipeline.New(provider, db, rules.NewEngine(clock), idgen, clock, logger),
		mover:     mover,
		organizer: organizer.New(db, mover, logger),
		metrics:   metrics.New(),
		clock:     clock,
		idgen:     idgen,
		logger:    logger,
		logFile:   logFile,
	}, nil
}

// Config returns the loaded configuration.
func (a *TidyApp) Config() *config.Config { return a.cfg }

// Metrics returns the app's collectors.
func (a *TidyApp) Metrics() *metrics.Metrics { return a.metrics }

// Logger returns the app's logger.
func (a *TidyApp) Logger() tidy.Logger { return a.logger }

// ScanSummary is the result of Scan.
type ScanSummary struct {
	RunID    int64
	Outcome  *pipeline.ScanOutcome
	Organize *organizer.Result // nil unless organizing was requested
}

// Scan lists the configured folders, evaluates the rules and persists the
// records as one scan run. With organize set, ready records at or above the
// auto-organize floor are moved afterwards.
func (a *TidyApp) Scan(ctx context.Context, trigger tidy.Trigger, organize bool) (*ScanSummary, error) {
	op := NewScanOperation(trigger)
	if err := op.Start(ctx, a.db, a.clock.Now()); err != nil {
		return nil, err
	}

	summary, scanErr := a.scan(ctx, organize)
	var outcome *pipeline.ScanOutcome
	if summary != nil {
		outcome = summary.Outcome
	}
	if err := op.Finish(context.WithoutCancel(ctx), a.db, a.clock.Now(), outcome, scanErr); err != nil {
		a.logger.Error("recording scan run failed", "run", op.ID, "error", err)
	}
	if scanErr != nil {
		return nil, scanErr
	}

	summary.RunID = op.ID
	a.exportMetrics(summary)
	return summary, nil
}

func (a *TidyApp) scan(ctx context.Context, organize bool) (*ScanSummary, error) {
	ruleSet, err := a.db.ListRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading rules: %w", err)
	}

	base, custom := a.cfg.ScanLocations()
	outcome, err := a.pipeline.ScanAndPersist(ctx, pipeline.ScanRequest{Base: base, Custom: custom, Rules: ruleSet})
	if err != nil {
		return nil, err
	}
	if total := len(base) + len(custom); total > 0 && outcome.Failed() == total {
		return nil, tidy.NewAutomationError(scanErrorKind(outcome.Errors), errors.New("no folder could be scanned"))
	}

	summary := &ScanSummary{Outcome: outcome}
	if organize {
		res, err := a.organizer.OrganizeReady(ctx, a.cfg.Automation.AutoOrganizeMinConfidence)
		if err != nil {
			return nil, fmt.Errorf("organizing: %w", err)
		}
		summary.Organize = res
	}
	return summary, nil
}

// scanErrorKind picks the kind reported when every folder failed.
func scanErrorKind(errs map[string]error) tidy.ErrorKind {
	for _, err := range errs {
		if !errors.Is(err, iofs.ErrPermission) {
			return tidy.ErrorScanFailed
		}
	}
	return tidy.ErrorPermissionDenied
}

func (a *TidyApp) exportMetrics(summary *ScanSummary) {
	a.metrics.SetRecordMetrics(summary.Outcome.Metrics)
	if a.cfg.Metrics.TextfilePath == "" {
		return
	}
	if err := a.metrics.WriteToTextfile(a.cfg.Metrics.TextfilePath); err != nil {
		a.logger.Warn("metrics export failed", "error", err)
	}
}

// Organize moves ready records at or above minConfidence.
func (a *TidyApp) Organize(ctx context.Context, minConfidence float64) (*organizer.Result, error) {
	return a.organizer.OrganizeReady(ctx, minConfidence)
}

// Job returns the scheduler job: a scan, optionally followed by organizing.
func (a *TidyApp) Job() scheduler.Job {
	return scheduler.JobFunc(func(ctx context.Context, trigger tidy.Trigger) (*scheduler.RunReport, error) {
		summary, err := a.Scan(ctx, trigger, a.cfg.Automation.AutoOrganize)
		if err != nil {
			return nil, err
		}
		return runReport(summary), nil
	})
}

// runReport converts a scan summary into what the scheduler acts on.
func runReport(summary *ScanSummary) *scheduler.RunReport {
	report := &scheduler.RunReport{Metrics: summary.Outcome.Metrics}
	for _, key := range summary.Outcome.SortedErrorKeys() {
		err := summary.Outcome.Errors[key]
		kind := tidy.ErrorScanFailed
		if errors.Is(err, iofs.ErrPermission) {
			kind = tidy.ErrorPermissionDenied
		}
		report.Issues = append(report.Issues, tidy.NewAutomationError(kind, err))
	}
	if res := summary.Organize; res != nil {
		report.Organized = len(res.Moved)
		report.Issues = append(report.Issues, res.Issues...)
	}
	return report
}

// NewScheduler builds a scheduler that runs Job and reports to the app's metrics.
func (a *TidyApp) NewScheduler(sink tidy.NotificationSink) *scheduler.Scheduler {
	s := scheduler.New(a.cfg.Automation, a.Job(), sink, a.clock, a.logger)
	s.SetObserver(a.metrics)
	return s
}

// Run starts the scheduler and a watcher on the scanned folders and blocks
// until ctx is cancelled.
func (a *TidyApp) Run(ctx context.Context, sink tidy.NotificationSink) error {
	s := a.NewScheduler(sink)

	w, err := watch.New(s, a.logger)
	if err != nil {
		a.logger.Warn("folder watching disabled", "error", err)
	} else {
		base, custom := a.cfg.ScanLocations()
		n := w.Add(append(base, custom...))
		a.logger.Info("watching folders", "count", n)
		w.Start(ctx)
		defer w.Stop()
	}

	return s.Run(ctx)
}

// Rules

// ListRules returns all rules in evaluation order.
func (a *TidyApp) ListRules(ctx context.Context) ([]*tidy.Rule, error) {
	return a.db.ListRules(ctx)
}

// AddRule normalizes and saves a new rule. The rule's destination must be a granted folder.
func (a *TidyApp) AddRule(ctx context.Context, in tidy.RuleInput) (*tidy.Rule, error) {
	tok, err := a.guard.Token(ctx, in.Destination.Key)
	if err != nil {
		return nil, fmt.Errorf("rule destination: %w", err)
	}
	if in.Destination.DisplayName == "" {
		in.Destination.DisplayName = tok.DisplayName
	}
	if in.ID == "" {
		in.ID = a.idgen.New()
	}
	if in.CreatedAt.IsZero() {
		in.CreatedAt = a.clock.Now()
	}

	rule, err := tidy.NewRule(in)
	if err != nil {
		return nil, err
	}
	if err := a.db.SaveRule(ctx, rule); err != nil {
		return nil, err
	}
	a.logger.Info("rule added", "id", rule.ID, "name", rule.Name)
	return rule, nil
}

// RemoveRule deletes a rule.
func (a *TidyApp) RemoveRule(ctx context.Context, id string) error {
	return a.db.DeleteRule(ctx, id)
}

// SetRuleEnabled enables or disables a rule.
func (a *TidyApp) SetRuleEnabled(ctx context.Context, id string, enabled bool) error {
	rule, err := a.db.FindRule(ctx, id)
	if err != nil {
		return err
	}
	if rule == nil {
		return fmt.Errorf("rule not found: %s", id)
	}
	rule.Enabled = enabled
	return a.db.SaveRule(ctx, rule)
}

// SeedRules inserts the default rule set and grants the default destination
// folders that exist. It returns the number of rules and folders added.
func (a *TidyApp) SeedRules(ctx context.Context) (int, int, error) {
	defaults, err := rules.DefaultRules(a.idgen, a.clock.Now())
	if err != nil {
		return 0, 0, err
	}
	n, err := a.db.SeedRules(ctx, defaults)
	if err != nil {
		return 0, 0, err
	}

	granted := 0
	for _, d := range rules.SeedDestinations {
		_, err := a.guard.Token(ctx, d.Ref.Key)
		if err == nil {
			continue
		}
		if !errors.Is(err, boundary.ErrTokenNotFound) {
			return n, granted, err
		}
		path := filepath.Join(a.cfg.HomeDir, d.RelPath)
		if info, err := os.Stat(path); err != nil || !info.IsDir() {
			continue
		}
		if _, err := a.guard.Grant(ctx, d.Ref.Key, d.Ref.DisplayName, path); err != nil {
			a.logger.Warn("cannot grant default folder", "key", d.Ref.Key, "error", err)
			continue
		}
		granted++
	}
	return n, granted, nil
}

// Folders

// GrantFolder authorizes path as a destination under key.
func (a *TidyApp) GrantFolder(ctx context.Context, key, displayName, path string) (*tidy.AccessToken, error) {
	return a.guard.Grant(ctx, key, displayName, path)
}

// ValidateFolder checks a granted folder and returns its resolved path.
func (a *TidyApp) ValidateFolder(ctx context.Context, key string) (string, error) {
	return a.guard.Validate(ctx, key)
}

// RevokeFolder removes a granted folder.
func (a *TidyApp) RevokeFolder(ctx context.Context, key string) error {
	return a.guard.Release(ctx, key)
}

// ListFolders returns all granted folders.
func (a *TidyApp) ListFolders(ctx context.Context) ([]*tidy.AccessToken, error) {
	return a.guard.List(ctx)
}

// Records

// ListRecords returns records, optionally filtered by status.
func (a *TidyApp) ListRecords(ctx context.Context, status tidy.Status) ([]*tidy.FileRecord, error) {
	return a.db.ListRecords(ctx, tidy.RecordFilter{Status: status})
}

// RejectRecord declines the suggested destination for the file at path.
func (a *TidyApp) RejectRecord(ctx context.Context, path string) error {
	return a.updateRecord(ctx, path, func(r *tidy.FileRecord) error { return r.Reject() })
}

// SkipRecord excludes the file at path from organizing.
func (a *TidyApp) SkipRecord(ctx context.Context, path string) error {
	return a.updateRecord(ctx, path, func(r *tidy.FileRecord) error {
		r.Skip()
		return nil
	})
}

func (a *TidyApp) updateRecord(ctx context.Context, rawPath string, change func(*tidy.FileRecord) error) error {
	path, err := filepath.Abs(rawPath)
	if err != nil {
		return fmt.Errorf("resolving path: %w", err)
	}
	rec, err := a.db.FindRecordByPath(ctx, path)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("no record for %s; run a scan first", path)
	}
	if err := change(rec); err != nil {
		return err
	}
	return a.db.UpdateRecord(ctx, rec)
}

// Move validates and moves one file into the granted folder key. A record
// for the file, if any, is marked organized.
func (a *TidyApp) Move(ctx context.Context, rawPath, key string) (string, error) {
	path, err := filepath.Abs(rawPath)
	if err != nil {
		return "", fmt.Errorf("resolving path: %w", err)
	}
	tok, err := a.guard.Token(ctx, key)
	if err != nil {
		return "", err
	}

	newPath, err := a.mover.Move(ctx, path, tok.Ref())
	if err != nil {
		return "", err
	}

	rec, err := a.db.FindRecordByPath(ctx, path)
	if err != nil {
		return newPath, err
	}
	if rec != nil {
		rec.MarkOrganized(newPath)
		if err := a.db.UpdateRecord(ctx, rec); err != nil {
			return newPath, err
		}
	}
	return newPath, nil
}

// History returns the most recent scan runs.
func (a *TidyApp) History(ctx context.Context, limit int) ([]*tidy.ScanRun, error) {
	return a.db.ListScanRuns(ctx, limit)
}

// Close closes the database and the log file.
func (a *TidyApp) Close() error {
	var firstErr error
	if err := a.db.Close(); err != nil {
		firstErr = fmt.Errorf("closing database: %w", err)
	}
	if a.logFile != nil {
		if err := a.logFile.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing log file: %w", err)
		}
	}
	return firstErr
}

// scanTimeout is the upper bound for a CLI-triggered scan.
func (a *TidyApp) scanTimeout() time.Duration {
	return time.Duration(a.cfg.Automation.ScanTimeoutMinutes) * time.Minute
}

// ScanWithTimeout runs Scan bounded by the configured scan timeout.
func (a *TidyApp) ScanWithTimeout(ctx context.Context, trigger tidy.Trigger, organize bool) (*ScanSummary, error) {
	ctx, cancel := context.WithTimeout(ctx, a.scanTimeout())
	defer cancel()
	return a.Scan(ctx, trigger, organize)
}
