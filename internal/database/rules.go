package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/trogers1052/journal-alert-service/internal/models"
)

const ruleColumns = `id, user_id, rule_key, trigger_type, severity, channels, enabled,
	       title, message, config, created_at, updated_at`

// RuleFilter narrows ListAlertRules. Kind is a derived attribute, so it is
// applied in memory after the scan.
type RuleFilter struct {
	EnabledOnly bool
	Kind        string
}

// CreateAlertRule inserts a new alert rule
func (db *DB) CreateAlertRule(ctx context.Context, r *models.AlertRule) error {
	query := `
		INSERT INTO alert_rules (
			user_id, rule_key, trigger_type, severity, channels, enabled,
			title, message, config, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`
	now := time.Now()
	if r.Severity == "" {
		r.Severity = models.SeverityInfo
	}
	r.Channels = models.NormalizeChannels(r.Channels)

	err := db.conn.QueryRowContext(ctx, query,
		r.UserID, r.RuleKey, r.TriggerType, r.Severity, pq.Array(r.Channels), r.Enabled,
		r.Title, r.Message, r.Config, now, now,
	).Scan(&r.ID)

	if err != nil {
		return fmt.Errorf("failed to create alert rule: %w", err)
	}
	r.CreatedAt = now
	r.UpdatedAt = now
	return nil
}

// GetAlertRuleByID retrieves an alert rule by ID
func (db *DB) GetAlertRuleByID(ctx context.Context, id uuid.UUID) (*models.AlertRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM alert_rules WHERE id = $1`
	r, err := scanRule(db.conn.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("alert rule not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get alert rule: %w", err)
	}
	return r, nil
}

// ListAlertRules retrieves a user's alert rules, optionally narrowed by
// enabled flag and derived kind.
func (db *DB) ListAlertRules(ctx context.Context, userID uuid.UUID, filter RuleFilter) ([]*models.AlertRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM alert_rules WHERE user_id = $1`
	if filter.EnabledOnly {
		query += ` AND enabled = true`
	}
	query += ` ORDER BY created_at ASC`

	rows, err := db.conn.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query alert rules: %w", err)
	}
	defer rows.Close()

	var rules []*models.AlertRule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert rule: %w", err)
		}
		if filter.Kind != "" && r.Kind() != filter.Kind {
			continue
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

// FindRuleByTriggerSignature returns the first rule whose trigger type or
// rule key matches the given signature, used by core-rule seeding.
func (db *DB) FindRuleByTriggerSignature(ctx context.Context, userID uuid.UUID, signature string) (*models.AlertRule, error) {
	query := `
		SELECT ` + ruleColumns + `
		FROM alert_rules
		WHERE user_id = $1 AND (UPPER(trigger_type) LIKE $2 OR UPPER(rule_key) LIKE $2)
		LIMIT 1
	`
	pattern := "%" + strings.ToUpper(signature) + "%"
	r, err := scanRule(db.conn.QueryRowContext(ctx, query, userID, pattern))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find rule by signature: %w", err)
	}
	return r, nil
}

// RulePatch carries the fields of a partial rule update. Nil fields are
// left untouched; Config merges rather than replaces.
type RulePatch struct {
	Title    *string
	Message  *string
	Severity *string
	Enabled  *bool
	Channels []string
	Config   *models.RuleConfig
}

// PatchAlertRule applies a partial update and returns the updated rule.
func (db *DB) PatchAlertRule(ctx context.Context, id uuid.UUID, patch RulePatch) (*models.AlertRule, error) {
	r, err := db.GetAlertRuleByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if patch.Title != nil {
		r.Title = *patch.Title
	}
	if patch.Message != nil {
		r.Message = *patch.Message
	}
	if patch.Severity != nil {
		if !models.ValidSeverity(*patch.Severity) {
			return nil, fmt.Errorf("invalid severity: %s", *patch.Severity)
		}
		r.Severity = *patch.Severity
	}
	if patch.Enabled != nil {
		r.Enabled = *patch.Enabled
	}
	if patch.Channels != nil {
		r.Channels = models.NormalizeChannels(patch.Channels)
	}
	if patch.Config != nil {
		r.Config.Merge(*patch.Config)
	}

	query := `
		UPDATE alert_rules SET
			title = $2, message = $3, severity = $4, enabled = $5,
			channels = $6, config = $7, updated_at = $8
		WHERE id = $1
	`
	r.UpdatedAt = time.Now()
	result, err := db.conn.ExecContext(ctx, query,
		r.ID, r.Title, r.Message, r.Severity, r.Enabled,
		pq.Array(r.Channels), r.Config, r.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update alert rule: %w", err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return nil, fmt.Errorf("alert rule not found: %s", id)
	}
	return r, nil
}

// DeleteOrDisableAlertRule hard-deletes a rule, falling back to disabling
// it when existing events keep the row referenced. Returns true when the
// row was actually deleted.
func (db *DB) DeleteOrDisableAlertRule(ctx context.Context, id uuid.UUID) (bool, error) {
	result, err := db.conn.ExecContext(ctx, `DELETE FROM alert_rules WHERE id = $1`, id)
	if err == nil {
		rowsAffected, _ := result.RowsAffected()
		if rowsAffected == 0 {
			return false, fmt.Errorf("alert rule not found: %s", id)
		}
		return true, nil
	}
	if !isForeignKeyViolation(err) {
		return false, fmt.Errorf("failed to delete alert rule: %w", err)
	}

	_, err = db.conn.ExecContext(ctx,
		`UPDATE alert_rules SET enabled = false, updated_at = $2 WHERE id = $1`,
		id, time.Now(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to disable alert rule: %w", err)
	}
	return false, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRule(row rowScanner) (*models.AlertRule, error) {
	var r models.AlertRule
	var channels pq.StringArray
	err := row.Scan(
		&r.ID, &r.UserID, &r.RuleKey, &r.TriggerType, &r.Severity, &channels, &r.Enabled,
		&r.Title, &r.Message, &r.Config, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.Channels = models.NormalizeChannels(channels)
	return &r, nil
}
