package tidy

import (
	"context"
	"fmt"
	"time"
)

// ConditionType identifies the predicate a Condition applies.
type ConditionType string

const (
	ConditionExtensionEquals ConditionType = "extensionEquals"
	ConditionNameContains    ConditionType = "nameContains"
	ConditionNameStartsWith  ConditionType = "nameStartsWith"
	ConditionNameEndsWith    ConditionType = "nameEndsWith"
	ConditionSizeLargerThan  ConditionType = "sizeLargerThan"
	ConditionSizeSmallerThan ConditionType = "sizeSmallerThan"
	ConditionOlderThanDays   ConditionType = "olderThanDays"
	ConditionSourceLocation  ConditionType = "sourceLocation"
)

// Valid reports whether t is a known condition type.
func (t ConditionType) Valid() bool {
	switch t {
	case ConditionExtensionEquals, ConditionNameContains, ConditionNameStartsWith,
		ConditionNameEndsWith, ConditionSizeLargerThan, ConditionSizeSmallerThan,
		ConditionOlderThanDays, ConditionSourceLocation:
		return true
	}
	return false
}

// NameBased reports whether the condition inspects the file name.
func (t ConditionType) NameBased() bool {
	return t == ConditionNameContains || t == ConditionNameStartsWith || t == ConditionNameEndsWith
}

// Condition is a single predicate over file metadata.
type Condition struct {
	Type  ConditionType
	Value string
}

// IsZero reports whether the condition is unset.
func (c Condition) IsZero() bool {
	return c.Type == "" && c.Value == ""
}

// Operator combines a rule's conditions.
type Operator string

const (
	OperatorSingle Operator = "single"
	OperatorAnd    Operator = "and"
	OperatorOr     Operator = "or"
)

// ParseOperator validates an operator string. Empty means single.
func ParseOperator(s string) (Operator, error) {
	switch op := Operator(s); op {
	case "":
		return OperatorSingle, nil
	case OperatorSingle, OperatorAnd, OperatorOr:
		return op, nil
	default:
		return "", fmt.Errorf("unknown operator: %q", s)
	}
}

// ActionType is what happens to a matched file. Only move is supported.
type ActionType string

const ActionMove ActionType = "move"

// Rule maps matching files to a destination.
//
// Conditions and Operator always hold the effective condition set; the legacy
// single condition is kept only so it can be written back unchanged.
type Rule struct {
	ID          string
	Name        string
	Enabled     bool
	SortOrder   int
	Action      ActionType
	Destination DestinationRef

	LegacyCondition Condition
	Conditions      []Condition
	Operator        Operator
	Exclusions      []Condition

	// SeedKey is set for rules created by the first-run seed set.
	SeedKey   string
	CreatedAt time.Time
}

// RuleInput carries both authoring forms of a rule before normalization.
type RuleInput struct {
	ID              string
	Name            string
	Enabled         bool
	SortOrder       int
	Destination     DestinationRef
	LegacyCondition Condition
	Conditions      []Condition
	Operator        Operator
	Exclusions      []Condition
	SeedKey         string
	CreatedAt       time.Time
}

// NewRule normalizes a RuleInput into a Rule.
//
// A non-empty Conditions list wins and the legacy condition is ignored for
// evaluation. An empty list with a legacy condition becomes a one-condition
// single rule. A single operator over two or more conditions becomes and.
func NewRule(in RuleInput) (*Rule, error) {
	if in.Name == "" {
		return nil, fmt.Errorf("rule name is required")
	}
	if in.Destination.Key == "" {
		return nil, fmt.Errorf("rule %q: destination is required", in.Name)
	}

	op, err := ParseOperator(string(in.Operator))
	if err != nil {
		return nil, fmt.Errorf("rule %q: %w", in.Name, err)
	}

	conditions := append([]Condition(nil), in.Conditions...)
	if len(conditions) == 0 && !in.LegacyCondition.IsZero() {
		conditions = []Condition{in.LegacyCondition}
		op = OperatorSingle
	}
	if op == OperatorSingle && len(conditions) > 1 {
		op = OperatorAnd
	}

	for _, c := range append(append([]Condition(nil), conditions...), in.Exclusions...) {
		if !c.Type.Valid() {
			return nil, fmt.Errorf("rule %q: unknown condition type %q", in.Name, c.Type)
		}
	}

	if in.Destination.DisplayName == "" {
		in.Destination.DisplayName = in.Destination.Key
	}

	return &Rule{
		ID:              in.ID,
		Name:            in.Name,
		Enabled:         in.Enabled,
		SortOrder:       in.SortOrder,
		Action:          ActionMove,
		Destination:     in.Destination,
		LegacyCondition: in.LegacyCondition,
		Conditions:      conditions,
		Operator:        op,
		Exclusions:      append([]Condition(nil), in.Exclusions...),
		SeedKey:         in.SeedKey,
		CreatedAt:       in.CreatedAt,
	}, nil
}

// MatchResult is the outcome of a successful rule evaluation.
type MatchResult struct {
	RuleID      string
	RuleName    string
	Destination DestinationRef
	Confidence  float64
	Reason      string
}

// RuleStore persists rules.
type RuleStore interface {
	// ListRules returns all rules ordered by sort order.
	ListRules(ctx context.Context) ([]*Rule, error)

	// FindRule returns nil, nil when the rule does not exist.
	FindRule(ctx context.Context, id string) (*Rule, error)

	// SaveRule inserts or replaces a rule with its conditions.
	SaveRule(ctx context.Context, rule *Rule) error

	// DeleteRule removes a rule. Missing rules are not an error.
	DeleteRule(ctx context.Context, id string) error

	// SeedRules inserts rules whose SeedKey is not yet present and returns
	// how many were inserted. Re-seeding never duplicates.
	SeedRules(ctx context.Context, rules []*Rule) (int, error)
}
