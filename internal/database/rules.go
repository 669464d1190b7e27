package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"tidy-go/internal/tidy"
)

const ruleColumns = `id, name, enabled, sort_order, action, destination_key, destination_name,
	legacy_type, legacy_value, operator, seed_key, created_at`

func scanRuleRow(row rowScanner) (*tidy.Rule, error) {
	var (
		r                tidy.Rule
		action, operator string
		legacyType       string
		seedKey          sql.NullString
	)
	err := row.Scan(&r.ID, &r.Name, &r.Enabled, &r.SortOrder, &action,
		&r.Destination.Key, &r.Destination.DisplayName,
		&legacyType, &r.LegacyCondition.Value, &operator, &seedKey, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	r.Action = tidy.ActionType(action)
	r.Operator = tidy.Operator(operator)
	r.LegacyCondition.Type = tidy.ConditionType(legacyType)
	r.SeedKey = seedKey.String
	return &r, nil
}

// loadConditions fills Conditions and Exclusions for the given rules.
func loadConditions(ctx context.Context, q queryer, rules map[string]*tidy.Rule) error {
	rows, err := q.QueryContext(ctx,
		`SELECT rule_id, is_exclusion, type, value FROM rule_conditions ORDER BY rule_id, is_exclusion, position`)
	if err != nil {
		return fmt.Errorf("listing rule conditions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			ruleID    string
			exclusion bool
			c         tidy.Condition
			typ       string
		)
		if err := rows.Scan(&ruleID, &exclusion, &typ, &c.Value); err != nil {
			return fmt.Errorf("scanning rule condition: %w", err)
		}
		c.Type = tidy.ConditionType(typ)

		r, ok := rules[ruleID]
		if !ok {
			continue
		}
		if exclusion {
			r.Exclusions = append(r.Exclusions, c)
		} else {
			r.Conditions = append(r.Conditions, c)
		}
	}
	return rows.Err()
}

// ListRules returns all rules ordered by sort order, then name.
func (s *SQLiteDatabase) ListRules(ctx context.Context) ([]*tidy.Rule, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+ruleColumns+` FROM rules ORDER BY sort_order, name, id`)
	if err != nil {
		return nil, fmt.Errorf("listing rules: %w", err)
	}

	var out []*tidy.Rule
	byID := make(map[string]*tidy.Rule)
	for rows.Next() {
		r, err := scanRuleRow(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning rule: %w", err)
		}
		out = append(out, r)
		byID[r.ID] = r
	}
	if err := rows.Close(); err != nil {
		return nil, fmt.Errorf("listing rules: %w", err)
	}

	if err := loadConditions(ctx, s.db, byID); err != nil {
		return nil, err
	}
	return out, nil
}

// FindRule returns nil, nil when the rule does not exist.
func (s *SQLiteDatabase) FindRule(ctx context.Context, id string) (*tidy.Rule, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+ruleColumns+` FROM rules WHERE id = ?`, id)
	r, err := scanRuleRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding rule: %w", err)
	}

	if err := loadConditions(ctx, s.db, map[string]*tidy.Rule{r.ID: r}); err != nil {
		return nil, err
	}
	return r, nil
}

// SaveRule inserts or replaces a rule and its conditions.
func (s *SQLiteDatabase) SaveRule(ctx context.Context, rule *tidy.Rule) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if err := saveRule(ctx, tx, rule); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing rule: %w", err)
	}
	return nil
}

func saveRule(ctx context.Context, tx *sql.Tx, rule *tidy.Rule) error {
	var seedKey sql.NullString
	if rule.SeedKey != "" {
		seedKey = sql.NullString{String: rule.SeedKey, Valid: true}
	}
	action := rule.Action
	if action == "" {
		action = tidy.ActionMove
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO rules (`+ruleColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			enabled = excluded.enabled,
			sort_order = excluded.sort_order,
			action = excluded.action,
			destination_key = excluded.destination_key,
			destination_name = excluded.destination_name,
			legacy_type = excluded.legacy_type,
			legacy_value = excluded.legacy_value,
			operator = excluded.operator,
			seed_key = excluded.seed_key`,
		rule.ID, rule.Name, rule.Enabled, rule.SortOrder, string(action),
		rule.Destination.Key, rule.Destination.DisplayName,
		string(rule.LegacyCondition.Type), rule.LegacyCondition.Value, string(rule.Operator),
		seedKey, rule.CreatedAt)
	if err != nil {
		return fmt.Errorf("saving rule %s: %w", rule.ID, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM rule_conditions WHERE rule_id = ?`, rule.ID); err != nil {
		return fmt.Errorf("clearing conditions of rule %s: %w", rule.ID, err)
	}

	insert := func(conditions []tidy.Condition, exclusion bool) error {
		for i, c := range conditions {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO rule_conditions (rule_id, is_exclusion, position, type, value) VALUES (?, ?, ?, ?, ?)`,
				rule.ID, exclusion, i, string(c.Type), c.Value)
			if err != nil {
				return fmt.Errorf("saving condition %d of rule %s: %w", i, rule.ID, err)
			}
		}
		return nil
	}
	if err := insert(rule.Conditions, false); err != nil {
		return err
	}
	return insert(rule.Exclusions, true)
}

// DeleteRule removes a rule; its conditions cascade.
func (s *SQLiteDatabase) DeleteRule(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM rules WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting rule %s: %w", id, err)
	}
	return nil
}

// SeedRules inserts rules whose seed key is not present yet.
func (s *SQLiteDatabase) SeedRules(ctx context.Context, rules []*tidy.Rule) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	inserted := 0
	for _, rule := range rules {
		if rule.SeedKey == "" {
			return 0, fmt.Errorf("seed rule %q has no seed key", rule.Name)
		}

		var exists int
		err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM rules WHERE seed_key = ?`, rule.SeedKey).Scan(&exists)
		if err != nil {
			return 0, fmt.Errorf("checking seed %s: %w", rule.SeedKey, err)
		}
		if exists > 0 {
			continue
		}

		if err := saveRule(ctx, tx, rule); err != nil {
			return 0, err
		}
		inserted++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing seed: %w", err)
	}
	return inserted, nil
}
