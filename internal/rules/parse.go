package rules

import (
	"fmt"
	"strconv"
	"strings"

	"tidy-go/internal/tidy"
)

var sizeUnits = []struct {
	suffix string
	factor int64
}{
	{"TB", 1 << 40},
	{"GB", 1 << 30},
	{"MB", 1 << 20},
	{"KB", 1 << 10},
	{"B", 1},
}

// ParseSize parses a byte count with an optional unit suffix ("10MB", "512", "1.5GB").
func ParseSize(s string) (int64, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return 0, fmt.Errorf("empty size")
	}

	factor := int64(1)
	for _, u := range sizeUnits {
		if strings.HasSuffix(s, u.suffix) {
			factor = u.factor
			s = strings.TrimSpace(strings.TrimSuffix(s, u.suffix))
			break
		}
	}

	n, err := strconv.ParseFloat(s, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid size: %q", s)
	}
	return int64(n * float64(factor)), nil
}

// FormatSize renders n with the largest whole unit, e.g. 10485760 -> "10 MB".
func FormatSize(n int64) string {
	for _, u := range sizeUnits {
		if u.factor > 1 && n >= u.factor && n%u.factor == 0 {
			return fmt.Sprintf("%d %s", n/u.factor, u.suffix)
		}
	}
	return fmt.Sprintf("%d B", n)
}

func parseDays(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid day count: %q", s)
	}
	return n, nil
}

// conditionSyntax lists the CLI prefixes in match order; longer prefixes first.
var conditionSyntax = []struct {
	prefix string
	typ    tidy.ConditionType
}{
	{"location=", tidy.ConditionSourceLocation},
	{"ext=", tidy.ConditionExtensionEquals},
	{"name~", tidy.ConditionNameContains},
	{"name^", tidy.ConditionNameStartsWith},
	{"name$", tidy.ConditionNameEndsWith},
	{"size>", tidy.ConditionSizeLargerThan},
	{"size<", tidy.ConditionSizeSmallerThan},
	{"age>", tidy.ConditionOlderThanDays},
}

// ParseCondition parses the compact CLI syntax:
//
//	ext=pdf  name~invoice  name^scan  name$_final  size>10MB  size<1KB  age>30  location=downloads
func ParseCondition(expr string) (tidy.Condition, error) {
	expr = strings.TrimSpace(expr)
	for _, s := range conditionSyntax {
		if !strings.HasPrefix(strings.ToLower(expr), s.prefix) {
			continue
		}
		value := strings.TrimSpace(expr[len(s.prefix):])
		if value == "" {
			return tidy.Condition{}, fmt.Errorf("condition %q has no value", expr)
		}
		c := tidy.Condition{Type: s.typ, Value: value}
		if err := validateValue(c); err != nil {
			return tidy.Condition{}, err
		}
		return c, nil
	}
	return tidy.Condition{}, fmt.Errorf("unrecognized condition: %q", expr)
}

// FormatCondition renders a condition in the syntax ParseCondition accepts.
func FormatCondition(c tidy.Condition) string {
	for _, s := range conditionSyntax {
		if s.typ == c.Type {
			return s.prefix + c.Value
		}
	}
	return fmt.Sprintf("%s:%s", c.Type, c.Value)
}

func validateValue(c tidy.Condition) error {
	switch c.Type {
	case tidy.ConditionSizeLargerThan, tidy.ConditionSizeSmallerThan:
		if _, err := ParseSize(c.Value); err != nil {
			return err
		}
	case tidy.ConditionOlderThanDays:
		if _, err := parseDays(c.Value); err != nil {
			return err
		}
	case tidy.ConditionSourceLocation:
		if tidy.ParseSourceLocation(c.Value) == tidy.LocationUnknown {
			return fmt.Errorf("unknown location: %q", c.Value)
		}
	}
	return nil
}
