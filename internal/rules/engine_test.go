package rules_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tidy-go/internal/rules"
	"tidy-go/internal/testutil"
	"tidy-go/internal/tidy"
)

var (
	pdfCond     = tidy.Condition{Type: tidy.ConditionExtensionEquals, Value: "pdf"}
	invoiceCond = tidy.Condition{Type: tidy.ConditionNameContains, Value: "invoice"}
	documents   = tidy.DestinationRef{Key: "documents", DisplayName: "Documents"}
)

func file(name string) tidy.FileMetadata {
	return tidy.FileMetadata{
		Path:      "/home/user/Downloads/" + name,
		Name:      name,
		Extension: tidy.ExtensionOf(name),
		Size:      2048,
		Location:  tidy.LocationDownloads,
	}
}

func mustRule(t *testing.T, in tidy.RuleInput) *tidy.Rule {
	t.Helper()
	if in.Name == "" {
		in.Name = "rule"
	}
	if in.Destination.Key == "" {
		in.Destination = documents
	}
	if in.ID == "" {
		in.ID = in.Name
	}
	rule, err := tidy.NewRule(in)
	require.NoError(t, err)
	return rule
}

func TestEngine_Confidence(t *testing.T) {
	engine := rules.NewEngine(testutil.FixedClock())

	tests := []struct {
		name string
		rule tidy.RuleInput
		file string
		want float64
	}{
		{
			name: "single legacy extension is low",
			rule: tidy.RuleInput{Enabled: true, LegacyCondition: pdfCond},
			file: "report.pdf",
			want: 0.5,
		},
		{
			name: "single name condition is medium",
			rule: tidy.RuleInput{Enabled: true, Conditions: []tidy.Condition{invoiceCond}},
			file: "invoice-2024.txt",
			want: 0.7,
		},
		{
			name: "compound and is high",
			rule: tidy.RuleInput{Enabled: true, Conditions: []tidy.Condition{pdfCond, invoiceCond}, Operator: tidy.OperatorAnd},
			file: "invoice-2024.pdf",
			want: 0.9,
		},
		{
			name: "compound or is high",
			rule: tidy.RuleInput{Enabled: true, Conditions: []tidy.Condition{pdfCond, invoiceCond}, Operator: tidy.OperatorOr},
			file: "report.pdf",
			want: 0.9,
		},
		{
			name: "three conditions stay at or above high",
			rule: tidy.RuleInput{
				Enabled: true,
				Conditions: []tidy.Condition{
					pdfCond, invoiceCond,
					{Type: tidy.ConditionSourceLocation, Value: "downloads"},
				},
				Operator: tidy.OperatorAnd,
			},
			file: "invoice-2024.pdf",
			want: 0.95,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			match := engine.Evaluate(file(tt.file), []*tidy.Rule{mustRule(t, tt.rule)})
			require.NotNil(t, match)
			assert.InDelta(t, tt.want, match.Confidence, 1e-9)
			assert.GreaterOrEqual(t, match.Confidence, 0.0)
			assert.LessOrEqual(t, match.Confidence, 1.0)
		})
	}
}

func TestEngine_CompoundOperators(t *testing.T) {
	engine := rules.NewEngine(testutil.FixedClock())
	and := mustRule(t, tidy.RuleInput{Enabled: true, Conditions: []tidy.Condition{pdfCond, invoiceCond}, Operator: tidy.OperatorAnd})
	or := mustRule(t, tidy.RuleInput{Enabled: true, Conditions: []tidy.Condition{pdfCond, invoiceCond}, Operator: tidy.OperatorOr})

	tests := []struct {
		file    string
		wantAnd bool
		wantOr  bool
	}{
		{file: "invoice-march.pdf", wantAnd: true, wantOr: true},
		{file: "report.pdf", wantAnd: false, wantOr: true},
		{file: "invoice-march.docx", wantAnd: false, wantOr: true},
		{file: "notes.txt", wantAnd: false, wantOr: false},
	}

	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			assert.Equal(t, tt.wantAnd, engine.Evaluate(file(tt.file), []*tidy.Rule{and}) != nil, "and")
			assert.Equal(t, tt.wantOr, engine.Evaluate(file(tt.file), []*tidy.Rule{or}) != nil, "or")
		})
	}
}

func TestEngine_EmptyConditionsNeverMatch(t *testing.T) {
	engine := rules.NewEngine(testutil.FixedClock())

	for _, op := range []tidy.Operator{tidy.OperatorSingle, tidy.OperatorAnd, tidy.OperatorOr} {
		t.Run(string(op), func(t *testing.T) {
			rule := mustRule(t, tidy.RuleInput{Enabled: true, Operator: op})
			require.Empty(t, rule.Conditions)
			assert.Nil(t, engine.Evaluate(file("anything.pdf"), []*tidy.Rule{rule}))
			assert.False(t, engine.FileMatchesRule(file("anything.pdf"), rule))
		})
	}
}

func TestEngine_DisabledRuleNeverMatches(t *testing.T) {
	engine := rules.NewEngine(testutil.FixedClock())
	rule := mustRule(t, tidy.RuleInput{Enabled: false, LegacyCondition: pdfCond})

	assert.Nil(t, engine.Evaluate(file("report.pdf"), []*tidy.Rule{rule}))
	assert.True(t, engine.FileMatchesRule(file("report.pdf"), rule), "FileMatchesRule ignores the enabled flag")
}

func TestEngine_ExclusionVetoesMatch(t *testing.T) {
	engine := rules.NewEngine(testutil.FixedClock())
	rule := mustRule(t, tidy.RuleInput{
		Enabled:    true,
		Conditions: []tidy.Condition{pdfCond},
		Exclusions: []tidy.Condition{{Type: tidy.ConditionNameStartsWith, Value: "draft"}},
	})

	assert.NotNil(t, engine.Evaluate(file("final.pdf"), []*tidy.Rule{rule}))
	assert.Nil(t, engine.Evaluate(file("DRAFT-contract.pdf"), []*tidy.Rule{rule}))
}

func TestEngine_FirstRuleBySortOrderWins(t *testing.T) {
	engine := rules.NewEngine(testutil.FixedClock())
	late := mustRule(t, tidy.RuleInput{
		ID: "late", Name: "Late", Enabled: true, SortOrder: 20,
		LegacyCondition: pdfCond,
		Destination:     tidy.DestinationRef{Key: "archive"},
	})
	early := mustRule(t, tidy.RuleInput{
		ID: "early", Name: "Early", Enabled: true, SortOrder: 10,
		Conditions:  []tidy.Condition{pdfCond, invoiceCond},
		Operator:    tidy.OperatorAnd,
		Destination: tidy.DestinationRef{Key: "invoices"},
	})

	match := engine.Evaluate(file("invoice.pdf"), []*tidy.Rule{late, early})
	require.NotNil(t, match)
	assert.Equal(t, "early", match.RuleID)
	assert.Equal(t, "invoices", match.Destination.Key)

	match = engine.Evaluate(file("report.pdf"), []*tidy.Rule{late, early})
	require.NotNil(t, match)
	assert.Equal(t, "late", match.RuleID)
}

func TestEngine_Predicates(t *testing.T) {
	clock := testutil.FixedClock()
	engine := rules.NewEngine(clock)

	old := file("old.log")
	old.ModifiedAt = clock.Now().Add(-40 * 24 * time.Hour)
	big := file("movie.mkv")
	big.Size = 20 << 20

	tests := []struct {
		name string
		cond tidy.Condition
		file tidy.FileMetadata
		want bool
	}{
		{"extension with leading dot", tidy.Condition{Type: tidy.ConditionExtensionEquals, Value: ".PDF"}, file("a.pdf"), true},
		{"extension mismatch", tidy.Condition{Type: tidy.ConditionExtensionEquals, Value: "pdf"}, file("a.pdfx"), false},
		{"contains ignores case", tidy.Condition{Type: tidy.ConditionNameContains, Value: "INVOICE"}, file("my-Invoice.pdf"), true},
		{"starts with ignores case", tidy.Condition{Type: tidy.ConditionNameStartsWith, Value: "screenshot"}, file("Screenshot 2024.png"), true},
		{"starts with mismatch", tidy.Condition{Type: tidy.ConditionNameStartsWith, Value: "scan"}, file("my scan.png"), false},
		{"ends with base name", tidy.Condition{Type: tidy.ConditionNameEndsWith, Value: "_final"}, file("report_FINAL.pdf"), true},
		{"ends with full name", tidy.Condition{Type: tidy.ConditionNameEndsWith, Value: ".tar.gz"}, file("src.tar.gz"), true},
		{"empty value never matches", tidy.Condition{Type: tidy.ConditionNameContains, Value: ""}, file("a.pdf"), false},
		{"larger than", tidy.Condition{Type: tidy.ConditionSizeLargerThan, Value: "10MB"}, big, true},
		{"smaller than", tidy.Condition{Type: tidy.ConditionSizeSmallerThan, Value: "10MB"}, big, false},
		{"older than", tidy.Condition{Type: tidy.ConditionOlderThanDays, Value: "30"}, old, true},
		{"not older than", tidy.Condition{Type: tidy.ConditionOlderThanDays, Value: "60"}, old, false},
		{"source location", tidy.Condition{Type: tidy.ConditionSourceLocation, Value: "Downloads"}, file("a.pdf"), true},
		{"other source location", tidy.Condition{Type: tidy.ConditionSourceLocation, Value: "desktop"}, file("a.pdf"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := mustRule(t, tidy.RuleInput{Enabled: true, Conditions: []tidy.Condition{tt.cond}})
			assert.Equal(t, tt.want, engine.FileMatchesRule(tt.file, rule))
		})
	}
}

func TestEngine_Reason(t *testing.T) {
	engine := rules.NewEngine(testutil.FixedClock())

	tests := []struct {
		name string
		rule tidy.RuleInput
		file string
		want string
	}{
		{
			name: "single clause has no operator token",
			rule: tidy.RuleInput{Enabled: true, LegacyCondition: pdfCond},
			file: "a.pdf",
			want: "Extension is .pdf",
		},
		{
			name: "and joins clauses",
			rule: tidy.RuleInput{Enabled: true, Conditions: []tidy.Condition{pdfCond, invoiceCond}, Operator: tidy.OperatorAnd},
			file: "invoice.pdf",
			want: "Extension is .pdf AND name contains 'invoice'",
		},
		{
			name: "or joins clauses",
			rule: tidy.RuleInput{Enabled: true, Conditions: []tidy.Condition{invoiceCond, pdfCond}, Operator: tidy.OperatorOr},
			file: "invoice.txt",
			want: "Name contains 'invoice' OR extension is .pdf",
		},
		{
			name: "size clause is humanized",
			rule: tidy.RuleInput{Enabled: true, Conditions: []tidy.Condition{{Type: tidy.ConditionSizeSmallerThan, Value: "10MB"}}},
			file: "a.txt",
			want: "Size is smaller than 10 MB",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			match := engine.Evaluate(file(tt.file), []*tidy.Rule{mustRule(t, tt.rule)})
			require.NotNil(t, match)
			assert.Equal(t, tt.want, match.Reason)
		})
	}
}

func TestEngine_Deterministic(t *testing.T) {
	engine := rules.NewEngine(testutil.FixedClock())
	ruleSet := []*tidy.Rule{
		mustRule(t, tidy.RuleInput{ID: "b", Name: "B", Enabled: true, LegacyCondition: pdfCond}),
		mustRule(t, tidy.RuleInput{ID: "a", Name: "A", Enabled: true, Conditions: []tidy.Condition{invoiceCond}}),
	}

	first := engine.Evaluate(file("invoice.pdf"), ruleSet)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, engine.Evaluate(file("invoice.pdf"), ruleSet))
	}
	assert.Equal(t, "a", first.RuleID, "equal sort order falls back to name")
}

func TestConfidenceLevel(t *testing.T) {
	assert.Equal(t, rules.LevelLow, rules.ConfidenceLevel(0.5))
	assert.Equal(t, rules.LevelMedium, rules.ConfidenceLevel(0.7))
	assert.Equal(t, rules.LevelHigh, rules.ConfidenceLevel(0.9))
	assert.Equal(t, rules.LevelHigh, rules.ConfidenceLevel(0.95))
}
