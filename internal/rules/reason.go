package rules

import (
	"fmt"
	"strings"

	"tidy-go/internal/tidy"
)

// Confidence scores how specific a rule's conditions are.
//
// One extension condition is low, one name condition is medium, and two or
// more conditions are high regardless of operator. Other single conditions
// (size, age, location) are low.
func Confidence(rule *tidy.Rule) float64 {
	switch n := len(rule.Conditions); {
	case n >= 3:
		return ConfidenceVeryHigh
	case n == 2:
		return ConfidenceHigh
	case n == 1 && rule.Conditions[0].Type.NameBased():
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// Level buckets a confidence score for display.
type Level string

const (
	LevelLow    Level = "low"
	LevelMedium Level = "medium"
	LevelHigh   Level = "high"
)

// ConfidenceLevel returns the display bucket for score.
func ConfidenceLevel(score float64) Level {
	switch {
	case score >= ConfidenceHigh:
		return LevelHigh
	case score >= ConfidenceMedium:
		return LevelMedium
	default:
		return LevelLow
	}
}

// Reason builds the display explanation for a rule's conditions, e.g.
// "Extension is .pdf AND name contains 'invoice'".
func Reason(rule *tidy.Rule) string {
	clauses := make([]string, 0, len(rule.Conditions))
	for _, c := range rule.Conditions {
		clauses = append(clauses, Clause(c))
	}

	var reason string
	switch rule.Operator {
	case tidy.OperatorOr:
		reason = strings.Join(clauses, " OR ")
	default:
		reason = strings.Join(clauses, " AND ")
	}
	return capitalize(reason)
}

// Clause describes a single condition in lowercase.
func Clause(c tidy.Condition) string {
	switch c.Type {
	case tidy.ConditionExtensionEquals:
		return "extension is ." + normalizeExtension(c.Value)
	case tidy.ConditionNameContains:
		return fmt.Sprintf("name contains '%s'", c.Value)
	case tidy.ConditionNameStartsWith:
		return fmt.Sprintf("name starts with '%s'", c.Value)
	case tidy.ConditionNameEndsWith:
		return fmt.Sprintf("name ends with '%s'", c.Value)
	case tidy.ConditionSizeLargerThan:
		return "size is larger than " + displaySize(c.Value)
	case tidy.ConditionSizeSmallerThan:
		return "size is smaller than " + displaySize(c.Value)
	case tidy.ConditionOlderThanDays:
		return fmt.Sprintf("older than %s days", strings.TrimSpace(c.Value))
	case tidy.ConditionSourceLocation:
		return "source is " + string(tidy.ParseSourceLocation(c.Value))
	default:
		return fmt.Sprintf("%s %s", c.Type, c.Value)
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func displaySize(value string) string {
	n, err := ParseSize(value)
	if err != nil {
		return value
	}
	return FormatSize(n)
}
