// Package rules evaluates file metadata against ordered rule sets.
//
// Evaluation is pure and deterministic: the same file and rules always
// produce the same MatchResult, which keeps re-scans idempotent.
package rules

import (
	"sort"
	"strings"
	"time"

	"tidy-go/internal/tidy"
)

// Confidence scores attached to matches.
const (
	ConfidenceLow      = 0.5
	ConfidenceMedium   = 0.7
	ConfidenceHigh     = 0.9
	ConfidenceVeryHigh = 0.95
)

// Engine evaluates rules. The zero value uses the real clock for age conditions.
type Engine struct {
	clock tidy.Clock
}

// NewEngine creates an Engine. clock drives olderThanDays conditions.
func NewEngine(clock tidy.Clock) *Engine {
	return &Engine{clock: clock}
}

func (e *Engine) now() time.Time {
	if e == nil || e.clock == nil {
		return time.Now()
	}
	return e.clock.Now()
}

// Evaluate returns the first enabled rule, in ascending sort order, whose
// conditions hold and whose exclusions do not. It returns nil when no rule matches.
func (e *Engine) Evaluate(file tidy.File, rules []*tidy.Rule) *tidy.MatchResult {
	now := e.now()
	for _, rule := range Sorted(rules) {
		if !rule.Enabled {
			continue
		}
		if !matches(file, rule, now) {
			continue
		}
		return &tidy.MatchResult{
			RuleID:      rule.ID,
			RuleName:    rule.Name,
			Destination: rule.Destination,
			Confidence:  Confidence(rule),
			Reason:      Reason(rule),
		}
	}
	return nil
}

// FileMatchesRule reports whether file satisfies rule, ignoring the enabled flag.
func (e *Engine) FileMatchesRule(file tidy.File, rule *tidy.Rule) bool {
	return matches(file, rule, e.now())
}

// Sorted returns a copy of rules ordered by sort order, then name, then id.
func Sorted(rules []*tidy.Rule) []*tidy.Rule {
	out := append([]*tidy.Rule(nil), rules...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.SortOrder != b.SortOrder {
			return a.SortOrder < b.SortOrder
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.ID < b.ID
	})
	return out
}

// Enabled filters rules down to the enabled ones.
func Enabled(rules []*tidy.Rule) []*tidy.Rule {
	var out []*tidy.Rule
	for _, r := range rules {
		if r.Enabled {
			out = append(out, r)
		}
	}
	return out
}

func matches(file tidy.File, rule *tidy.Rule, now time.Time) bool {
	if !conditionsHold(file, rule.Conditions, rule.Operator, now) {
		return false
	}
	for _, ex := range rule.Exclusions {
		if conditionHolds(file, ex, now) {
			return false
		}
	}
	return true
}

// conditionsHold combines conditions with op. An empty list never holds,
// whatever the operator: a rule that specifies nothing organizes nothing.
func conditionsHold(file tidy.File, conditions []tidy.Condition, op tidy.Operator, now time.Time) bool {
	if len(conditions) == 0 {
		return false
	}

	switch op {
	case tidy.OperatorOr:
		for _, c := range conditions {
			if conditionHolds(file, c, now) {
				return true
			}
		}
		return false
	case tidy.OperatorAnd:
		for _, c := range conditions {
			if !conditionHolds(file, c, now) {
				return false
			}
		}
		return true
	default:
		return conditionHolds(file, conditions[0], now)
	}
}

func conditionHolds(file tidy.File, c tidy.Condition, now time.Time) bool {
	switch c.Type {
	case tidy.ConditionExtensionEquals:
		want := normalizeExtension(c.Value)
		return want != "" && normalizeExtension(file.FileExtension()) == want
	case tidy.ConditionNameContains:
		return c.Value != "" && strings.Contains(strings.ToLower(file.FileName()), strings.ToLower(c.Value))
	case tidy.ConditionNameStartsWith:
		return c.Value != "" && strings.HasPrefix(strings.ToLower(file.FileName()), strings.ToLower(c.Value))
	case tidy.ConditionNameEndsWith:
		if c.Value == "" {
			return false
		}
		suffix := strings.ToLower(c.Value)
		name := strings.ToLower(file.FileName())
		return strings.HasSuffix(name, suffix) || strings.HasSuffix(baseName(name), suffix)
	case tidy.ConditionSizeLargerThan:
		limit, err := ParseSize(c.Value)
		return err == nil && file.FileSize() > limit
	case tidy.ConditionSizeSmallerThan:
		limit, err := ParseSize(c.Value)
		return err == nil && file.FileSize() < limit
	case tidy.ConditionOlderThanDays:
		days, err := parseDays(c.Value)
		if err != nil || file.FileModifiedAt().IsZero() {
			return false
		}
		return now.Sub(file.FileModifiedAt()) > time.Duration(days)*24*time.Hour
	case tidy.ConditionSourceLocation:
		return tidy.ParseSourceLocation(c.Value) == file.FileLocation() && file.FileLocation() != tidy.LocationUnknown
	default:
		return false
	}
}

func normalizeExtension(ext string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
}

// baseName strips the extension so "report_final.pdf" ends with "_final".
func baseName(name string) string {
	if i := strings.LastIndex(name, "."); i > 0 {
		return name[:i]
	}
	return name
}
