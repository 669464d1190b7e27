//go:build linux || darwin

package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"tidy-go/internal/boundary"
	"tidy-go/internal/config"
	"tidy-go/internal/testutil"
	"tidy-go/internal/tidy"
)

func newTestApp(t *testing.T, dirs ...string) (*TidyApp, string) {
	t.Helper()
	home := t.TempDir()
	for _, d := range dirs {
		if err := os.MkdirAll(filepath.Join(home, d), 0755); err != nil {
			t.Fatalf("creating %s: %v", d, err)
		}
	}

	cfg := config.NewConfig(home, t.TempDir())
	cfg.Database = config.DatabaseConfig{Type: "memory"}
	cfg.Tokens = config.TokensConfig{Type: "memory"}

	a, err := NewTidyApp(cfg, Options{Clock: testutil.FixedClock(), IDs: testutil.NewStubIDGenerator()})
	if err != nil {
		t.Fatalf("NewTidyApp() error = %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a, home
}

func writeFile(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("data"), 0644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}

func findRecord(t *testing.T, a *TidyApp, path string) *tidy.FileRecord {
	t.Helper()
	rec, err := a.db.FindRecordByPath(context.Background(), path)
	if err != nil {
		t.Fatalf("FindRecordByPath() error = %v", err)
	}
	if rec == nil {
		t.Fatalf("no record for %s", path)
	}
	return rec
}

func TestSeedRules(t *testing.T) {
	ctx := context.Background()
	a, _ := newTestApp(t, "Downloads", "Desktop", "Documents")

	n, granted, err := a.SeedRules(ctx)
	if err != nil {
		t.Fatalf("SeedRules() error = %v", err)
	}
	if n == 0 {
		t.Error("SeedRules() inserted no rules")
	}
	// Only Documents exists of the default destinations.
	if granted != 1 {
		t.Errorf("granted = %d, want 1", granted)
	}

	n, granted, err = a.SeedRules(ctx)
	if err != nil {
		t.Fatalf("second SeedRules() error = %v", err)
	}
	if n != 0 || granted != 0 {
		t.Errorf("second SeedRules() = %d, %d, want 0, 0", n, granted)
	}
}

func TestAddRule_RequiresGrantedDestination(t *testing.T) {
	a, _ := newTestApp(t, "Downloads", "Desktop")

	_, err := a.AddRule(context.Background(), tidy.RuleInput{
		Name:            "Invoices",
		Enabled:         true,
		Destination:     tidy.DestinationRef{Key: "invoices"},
		LegacyCondition: tidy.Condition{Type: tidy.ConditionExtensionEquals, Value: "pdf"},
	})
	if !errors.Is(err, boundary.ErrTokenNotFound) {
		t.Fatalf("AddRule() error = %v, want ErrTokenNotFound", err)
	}
}

func TestScan_SuggestsAndOrganizes(t *testing.T) {
	ctx := context.Background()
	a, home := newTestApp(t, "Downloads", "Desktop", "Documents")
	downloads := filepath.Join(home, "Downloads")

	if _, _, err := a.SeedRules(ctx); err != nil {
		t.Fatalf("SeedRules() error = %v", err)
	}
	rule, err := a.AddRule(ctx, tidy.RuleInput{
		Name:        "Invoices",
		Enabled:     true,
		SortOrder:   1,
		Destination: tidy.DestinationRef{Key: "documents"},
		Conditions: []tidy.Condition{
			{Type: tidy.ConditionExtensionEquals, Value: "pdf"},
			{Type: tidy.ConditionNameContains, Value: "invoice"},
		},
		Operator: tidy.OperatorAnd,
	})
	if err != nil {
		t.Fatalf("AddRule() error = %v", err)
	}
	if rule.Destination.DisplayName != "Documents" {
		t.Errorf("DisplayName = %q, want Documents", rule.Destination.DisplayName)
	}

	invoice := filepath.Join(downloads, "invoice-march.pdf")
	notes := filepath.Join(downloads, "notes.pdf")
	writeFile(t, invoice)
	writeFile(t, notes)

	summary, err := a.Scan(ctx, tidy.TriggerManual, true)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if summary.RunID == 0 {
		t.Error("RunID not set")
	}
	if summary.Organize == nil || len(summary.Organize.Moved) != 1 {
		t.Fatalf("Organize = %+v, want one move", summary.Organize)
	}
	if _, err := os.Stat(filepath.Join(home, "Documents", "invoice-march.pdf")); err != nil {
		t.Errorf("organized file missing: %v", err)
	}
	if _, err := os.Stat(invoice); !os.IsNotExist(err) {
		t.Errorf("source still present: %v", err)
	}

	// The single-condition PDF rule stays a suggestion below the auto floor.
	rec := findRecord(t, a, notes)
	if rec.Status != tidy.StatusReady {
		t.Errorf("notes status = %q, want ready", rec.Status)
	}
	if summary.Organize.Skipped != 1 {
		t.Errorf("Skipped = %d, want 1", summary.Organize.Skipped)
	}

	report := runReport(summary)
	if report.Organized != 1 {
		t.Errorf("report.Organized = %d, want 1", report.Organized)
	}
	if len(report.Issues) != 0 {
		t.Errorf("report.Issues = %v, want none", report.Issues)
	}

	runs, err := a.History(ctx, 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(runs) != 1 || runs[0].Status != StatusSuccess {
		t.Errorf("History() = %+v, want one successful run", runs)
	}
}

func TestRejectRecord_SurvivesRescan(t *testing.T) {
	ctx := context.Background()
	a, home := newTestApp(t, "Downloads", "Desktop", "Documents")
	if _, _, err := a.SeedRules(ctx); err != nil {
		t.Fatalf("SeedRules() error = %v", err)
	}
	notes := filepath.Join(home, "Downloads", "notes.pdf")
	writeFile(t, notes)

	if _, err := a.Scan(ctx, tidy.TriggerManual, false); err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if err := a.RejectRecord(ctx, notes); err != nil {
		t.Fatalf("RejectRecord() error = %v", err)
	}
	if _, err := a.Scan(ctx, tidy.TriggerManual, false); err != nil {
		t.Fatalf("second Scan() error = %v", err)
	}

	rec := findRecord(t, a, notes)
	if rec.Status != tidy.StatusPending || rec.Destination != nil {
		t.Errorf("record = %q %v, want pending without destination", rec.Status, rec.Destination)
	}
	if rec.RejectionCount != 1 {
		t.Errorf("RejectionCount = %d, want 1", rec.RejectionCount)
	}

	if err := a.SkipRecord(ctx, notes); err != nil {
		t.Fatalf("SkipRecord() error = %v", err)
	}
	if rec := findRecord(t, a, notes); rec.Status != tidy.StatusSkipped {
		t.Errorf("status = %q, want skipped", rec.Status)
	}
}

func TestMove_MarksRecordOrganized(t *testing.T) {
	ctx := context.Background()
	a, home := newTestApp(t, "Downloads", "Desktop", "Documents")
	if _, err := a.GrantFolder(ctx, "documents", "Documents", filepath.Join(home, "Documents")); err != nil {
		t.Fatalf("GrantFolder() error = %v", err)
	}
	src := filepath.Join(home, "Downloads", "letter.txt")
	writeFile(t, src)
	if _, err := a.Scan(ctx, tidy.TriggerManual, false); err != nil {
		t.Fatalf("Scan() error = %v", err)
	}

	newPath, err := a.Move(ctx, src, "documents")
	if err != nil {
		t.Fatalf("Move() error = %v", err)
	}
	if filepath.Base(newPath) != "letter.txt" {
		t.Errorf("newPath = %q", newPath)
	}

	rec := findRecord(t, a, src)
	if rec.Status != tidy.StatusOrganized || rec.OrganizedPath != newPath {
		t.Errorf("record = %q %q, want organized at %q", rec.Status, rec.OrganizedPath, newPath)
	}
}

func TestScan_AllFoldersFail(t *testing.T) {
	a, _ := newTestApp(t)

	_, err := a.Scan(context.Background(), tidy.TriggerScheduled, false)
	var ae *tidy.AutomationError
	if !errors.As(err, &ae) {
		t.Fatalf("Scan() error = %v, want AutomationError", err)
	}
	if ae.Kind != tidy.ErrorScanFailed {
		t.Errorf("Kind = %q, want %q", ae.Kind, tidy.ErrorScanFailed)
	}

	runs, err := a.History(context.Background(), 1)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(runs) != 1 || runs[0].Status != StatusError {
		t.Errorf("History() = %+v, want one failed run", runs)
	}
}

func TestFolders(t *testing.T) {
	ctx := context.Background()
	a, home := newTestApp(t, "Documents")
	docs := filepath.Join(home, "Documents")

	if _, err := a.GrantFolder(ctx, "documents", "Documents", docs); err != nil {
		t.Fatalf("GrantFolder() error = %v", err)
	}
	resolved, err := a.ValidateFolder(ctx, "documents")
	if err != nil {
		t.Fatalf("ValidateFolder() error = %v", err)
	}
	want, _ := filepath.EvalSymlinks(docs)
	if resolved != want {
		t.Errorf("ValidateFolder() = %q, want %q", resolved, want)
	}

	folders, err := a.ListFolders(ctx)
	if err != nil || len(folders) != 1 {
		t.Fatalf("ListFolders() = %v, %v, want one folder", folders, err)
	}

	if err := a.RevokeFolder(ctx, "documents"); err != nil {
		t.Fatalf("RevokeFolder() error = %v", err)
	}
	if _, err := a.ValidateFolder(ctx, "documents"); !errors.Is(err, boundary.ErrTokenNotFound) {
		t.Errorf("ValidateFolder() after revoke error = %v, want ErrTokenNotFound", err)
	}
}

func TestScheduler_JobFailureNotifies(t *testing.T) {
	a, _ := newTestApp(t)
	sink := testutil.NewRecordingSink()
	s := a.NewScheduler(sink)

	res, err := s.RunOnce(context.Background(), tidy.TriggerManual)
	if err == nil {
		t.Fatal("RunOnce() error = nil, want scan failure")
	}
	if res == nil || !res.Ran() {
		t.Fatalf("RunOnce() result = %+v, want a run", res)
	}
	if got := sink.Count(tidy.NotificationError); got != 1 {
		t.Errorf("error notifications = %d, want 1", got)
	}
	if sent := sink.Sent(); len(sent) == 1 && sent[0].ErrorKind != tidy.ErrorScanFailed {
		t.Errorf("ErrorKind = %q, want %q", sent[0].ErrorKind, tidy.ErrorScanFailed)
	}
	if got := s.State().ConsecutiveFailures; got != 1 {
		t.Errorf("ConsecutiveFailures = %d, want 1", got)
	}
}
