package alerts

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/keyxmakerx/stream/internal/apperror"
)

// RuleRepository defines the data access contract for alert rules.
type RuleRepository interface {
	List(ctx context.Context) ([]Rule, error)
	FindByID(ctx context.Context, id string) (*Rule, error)
	Create(ctx context.Context, rule *Rule) error
	Update(ctx context.Context, rule *Rule) error
	Delete(ctx context.Context, id string) error

	// Upsert creates or replaces a rule by ID. Used for file seeding.
	Upsert(ctx context.Context, rule *Rule) error
}

// ruleRepository implements RuleRepository with MariaDB. The trigger tree
// and actions are stored as JSON in their array-indexed shape.
type ruleRepository struct {
	db *sql.DB
}

// NewRuleRepository creates a new rule repository.
func NewRuleRepository(db *sql.DB) RuleRepository {
	return &ruleRepository{db: db}
}

const ruleColumns = `id, name, status, triggers, trigger_groups, actions, created_at, updated_at`

// List returns all rules ordered by name.
func (r *ruleRepository) List(ctx context.Context) ([]Rule, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+ruleColumns+` FROM alert_rules ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("listing alert rules: %w", err)
	}
	defer rows.Close()

	var rules []Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, *rule)
	}
	return rules, rows.Err()
}

// FindByID retrieves a rule by its ID.
func (r *ruleRepository) FindByID(ctx context.Context, id string) (*Rule, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+ruleColumns+` FROM alert_rules WHERE id = ?`, id)
	rule, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("alert rule not found")
	}
	if err != nil {
		return nil, err
	}
	return rule, nil
}

// Create inserts a new rule.
func (r *ruleRepository) Create(ctx context.Context, rule *Rule) error {
	triggers, groups, actions, err := encodeRule(rule)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO alert_rules (id, name, status, triggers, trigger_groups, actions, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rule.ID, rule.Name, rule.Status, triggers, groups, actions, rule.CreatedAt, rule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating alert rule: %w", err)
	}
	return nil
}

// Update replaces a rule's name, status, tree and actions.
func (r *ruleRepository) Update(ctx context.Context, rule *Rule) error {
	triggers, groups, actions, err := encodeRule(rule)
	if err != nil {
		return err
	}
	result, err := r.db.ExecContext(ctx,
		`UPDATE alert_rules SET name = ?, status = ?, triggers = ?, trigger_groups = ?, actions = ?, updated_at = ?
		 WHERE id = ?`,
		rule.Name, rule.Status, triggers, groups, actions, rule.UpdatedAt, rule.ID,
	)
	if err != nil {
		return fmt.Errorf("updating alert rule: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		// MariaDB reports zero affected rows for no-op updates too.
		if _, err := r.FindByID(ctx, rule.ID); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes a rule.
func (r *ruleRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM alert_rules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting alert rule: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return apperror.NewNotFound("alert rule not found")
	}
	return nil
}

// Upsert creates or replaces a rule by ID, keeping its original created_at.
func (r *ruleRepository) Upsert(ctx context.Context, rule *Rule) error {
	triggers, groups, actions, err := encodeRule(rule)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO alert_rules (id, name, status, triggers, trigger_groups, actions, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON DUPLICATE KEY UPDATE name = VALUES(name), status = VALUES(status), triggers = VALUES(triggers),
		                         trigger_groups = VALUES(trigger_groups), actions = VALUES(actions),
		                         updated_at = VALUES(updated_at)`,
		rule.ID, rule.Name, rule.Status, triggers, groups, actions, rule.CreatedAt, rule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upserting alert rule: %w", err)
	}
	return nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRule(s scanner) (*Rule, error) {
	var rule Rule
	var triggersRaw, groupsRaw, actionsRaw []byte
	if err := s.Scan(&rule.ID, &rule.Name, &rule.Status, &triggersRaw, &groupsRaw, &actionsRaw,
		&rule.CreatedAt, &rule.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning alert rule: %w", err)
	}
	if err := decodeRule(&rule, triggersRaw, groupsRaw, actionsRaw); err != nil {
		return nil, err
	}
	return &rule, nil
}

func encodeRule(rule *Rule) (triggers, groups, actions []byte, err error) {
	if triggers, err = json.Marshal(nonNil(rule.Triggers)); err != nil {
		return nil, nil, nil, fmt.Errorf("encoding triggers: %w", err)
	}
	if groups, err = json.Marshal(nonNil(rule.Groups)); err != nil {
		return nil, nil, nil, fmt.Errorf("encoding groups: %w", err)
	}
	if actions, err = json.Marshal(nonNil(rule.Actions)); err != nil {
		return nil, nil, nil, fmt.Errorf("encoding actions: %w", err)
	}
	return triggers, groups, actions, nil
}

func decodeRule(rule *Rule, triggers, groups, actions []byte) error {
	if len(triggers) > 0 {
		if err := json.Unmarshal(triggers, &rule.Triggers); err != nil {
			return fmt.Errorf("decoding triggers of rule %s: %w", rule.ID, err)
		}
	}
	if len(groups) > 0 {
		if err := json.Unmarshal(groups, &rule.Groups); err != nil {
			return fmt.Errorf("decoding groups of rule %s: %w", rule.ID, err)
		}
	}
	if len(actions) > 0 {
		if err := json.Unmarshal(actions, &rule.Actions); err != nil {
			return fmt.Errorf("decoding actions of rule %s: %w", rule.ID, err)
		}
	}
	return nil
}

// nonNil makes empty slices encode as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
