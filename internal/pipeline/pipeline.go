// Package pipeline turns provider listings into persisted, rule-evaluated file records.
package pipeline

import (
	"context"
	"fmt"
	"io/fs"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"tidy-go/internal/rules"
	"tidy-go/internal/tidy"
)

// maxConcurrentLocations bounds the provider fan-out.
const maxConcurrentLocations = 8

// ScanRequest lists the folders to scan and the rules to evaluate.
// Base locations are scanned before custom ones when keys or paths overlap.
type ScanRequest struct {
	Base   []tidy.ScanLocation
	Custom []tidy.ScanLocation
	Rules  []*tidy.Rule
}

// ScanOutcome is the result of one pipeline run.
type ScanOutcome struct {
	// Records persisted by this run, ordered by path.
	Records []*tidy.FileRecord

	// Errors holds one *tidy.ScanError per failed location key.
	Errors map[string]error

	Metrics tidy.AutomationMetrics
}

// Failed reports how many locations could not be scanned.
func (o *ScanOutcome) Failed() int { return len(o.Errors) }

// Matched reports how many records have a suggested destination.
func (o *ScanOutcome) Matched() int {
	n := 0
	for _, r := range o.Records {
		if r.Destination != nil {
			n++
		}
	}
	return n
}

// Pipeline scans folders, evaluates rules and persists the result.
// Runs are serialized.
type Pipeline struct {
	provider tidy.MetadataProvider
	records  tidy.RecordStore
	engine   *rules.Engine
	idgen    tidy.IDGenerator
	clock    tidy.Clock
	logger   tidy.Logger

	mu sync.Mutex
}

// New creates a Pipeline.
func New(provider tidy.MetadataProvider, records tidy.RecordStore, engine *rules.Engine, idgen tidy.IDGenerator, clock tidy.Clock, logger tidy.Logger) *Pipeline {
	return &Pipeline{
		provider: provider,
		records:  records,
		engine:   engine,
		idgen:    idgen,
		clock:    clock,
		logger:   logger,
	}
}

// ScanAndPersist lists every requested location, evaluates the enabled rules
// against each file and persists the records in one transaction.
// Folder failures are collected in the outcome and never abort the run.
func (p *Pipeline) ScanAndPersist(ctx context.Context, req ScanRequest) (*ScanOutcome, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	locations := dedupeLocations(append(append([]tidy.ScanLocation(nil), req.Base...), req.Custom...))
	p.logger.Debug("scan started", "locations", len(locations), "rules", len(req.Rules))

	listings, scanErrors, err := p.list(ctx, locations)
	if err != nil {
		return nil, err
	}

	var okKeys []string
	for _, loc := range locations {
		if _, failed := scanErrors[loc.Key]; !failed {
			okKeys = append(okKeys, loc.Key)
		}
	}

	existing, err := p.existing(ctx, okKeys)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	enabled := rules.Enabled(req.Rules)
	seen := make(map[string]bool)
	var batch []*tidy.FileRecord
	for _, loc := range locations {
		for _, m := range listings[loc.Key] {
			if seen[m.Path] {
				continue
			}
			seen[m.Path] = true
			batch = append(batch, p.buildRecord(m, existing[m.Path], enabled))
		}
	}

	persisted, err := p.records.ApplyScan(ctx, tidy.ScanBatch{Records: batch, PruneLocationKeys: okKeys})
	if err != nil {
		return nil, fmt.Errorf("persisting scan: %w", err)
	}

	// Status counts cover every stored record, including those of folders
	// that failed this time; TotalScanned is this scan only.
	stored, err := p.records.ListRecords(ctx, tidy.RecordFilter{})
	if err != nil {
		return nil, fmt.Errorf("loading records for metrics: %w", err)
	}
	metrics := tidy.ComputeMetrics(stored, p.clock.Now())
	metrics.TotalScanned = len(persisted)

	outcome := &ScanOutcome{
		Records: persisted,
		Errors:  scanErrors,
		Metrics: metrics,
	}
	p.logger.Info("scan finished",
		"scanned", len(persisted),
		"matched", outcome.Matched(),
		"failed_folders", outcome.Failed())
	return outcome, nil
}

// list fans out one provider request per location.
func (p *Pipeline) list(ctx context.Context, locations []tidy.ScanLocation) (map[string][]tidy.FileMetadata, map[string]error, error) {
	var mu sync.Mutex
	listings := make(map[string][]tidy.FileMetadata, len(locations))
	scanErrors := make(map[string]error)

	fail := func(loc tidy.ScanLocation, err error) {
		p.logger.Warn("location scan failed", "location", loc.Key, "path", loc.Path, "error", err)
		mu.Lock()
		scanErrors[loc.Key] = &tidy.ScanError{LocationKey: loc.Key, Path: loc.Path, Err: err}
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentLocations)
	for _, loc := range locations {
		g.Go(func() error {
			if !p.provider.HasAccess(loc) && !p.provider.RequestAccess(gctx, loc) {
				fail(loc, fs.ErrPermission)
				return nil
			}

			batch, err := p.provider.Scan(gctx, []tidy.ScanLocation{loc})
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				fail(loc, err)
				return nil
			}
			if locErr := batch.Errors[loc.Key]; locErr != nil {
				fail(loc, locErr)
				return nil
			}

			mu.Lock()
			listings[loc.Key] = batch.Records
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	return listings, scanErrors, nil
}

func (p *Pipeline) existing(ctx context.Context, keys []string) (map[string]*tidy.FileRecord, error) {
	byPath := make(map[string]*tidy.FileRecord)
	if len(keys) == 0 {
		return byPath, nil
	}
	records, err := p.records.ListRecords(ctx, tidy.RecordFilter{LocationKeys: keys})
	if err != nil {
		return nil, fmt.Errorf("loading existing records: %w", err)
	}
	for _, r := range records {
		byPath[r.Path] = r
	}
	return byPath, nil
}

// buildRecord merges provider metadata with the stored record and the rule result.
func (p *Pipeline) buildRecord(m tidy.FileMetadata, prev *tidy.FileRecord, enabled []*tidy.Rule) *tidy.FileRecord {
	if prev != nil && prev.Status == tidy.StatusOrganized && prev.OrganizedPath != m.Path {
		// The organized file left this path; what is here now is a new file.
		p.logger.Debug("path reused after organizing", "path", m.Path, "previous", prev.OrganizedPath)
		prev = nil
	}

	var rec *tidy.FileRecord
	if prev == nil {
		rec = tidy.NewFileRecord(p.idgen.New(), m)
	} else {
		copied := *prev
		rec = &copied
		rec.UpdateMetadata(m)
	}

	if rec.Status.Terminal() {
		return rec
	}

	match := p.engine.Evaluate(m, enabled)
	if match != nil && rec.RejectedDestinationName != "" && match.Destination.DisplayName == rec.RejectedDestinationName {
		p.logger.Debug("suppressing rejected destination", "path", m.Path, "destination", match.Destination.DisplayName)
		match = nil
	}

	if match == nil {
		rec.ClearMatch()
		rec.Status = tidy.StatusPending
		return rec
	}
	rec.ApplyMatch(match)
	rec.Status = tidy.StatusReady
	return rec
}

// dedupeLocations drops repeated keys, keeping the first occurrence.
func dedupeLocations(locations []tidy.ScanLocation) []tidy.ScanLocation {
	seen := make(map[string]bool, len(locations))
	out := make([]tidy.ScanLocation, 0, len(locations))
	for _, loc := range locations {
		if seen[loc.Key] {
			continue
		}
		seen[loc.Key] = true
		out = append(out, loc)
	}
	return out
}

// SortedErrorKeys returns the failed location keys in order.
func (o *ScanOutcome) SortedErrorKeys() []string {
	keys := make([]string, 0, len(o.Errors))
	for k := range o.Errors {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
