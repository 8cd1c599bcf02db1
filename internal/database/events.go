package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/trogers1052/journal-alert-service/internal/models"
)

const eventColumns = `id, user_id, rule_id, alert_date, status, dismissed_until,
	       triggered_at, acknowledged_at, payload, created_at, updated_at`

// eventInsertVariants lists the column sets attempted for inserts, from the
// full current schema down to the bare minimum an ancient deployment can
// accept. The startup probe picks the first variant the live table covers.
var eventInsertVariants = [][]string{
	{"user_id", "rule_id", "alert_date", "status", "dismissed_until", "triggered_at", "acknowledged_at", "payload", "created_at", "updated_at"},
	{"user_id", "rule_id", "alert_date", "status", "payload"},
	{"user_id", "rule_id", "status", "payload"},
	{"user_id", "rule_id"},
}

// EventFilter narrows ListAlertEvents.
type EventFilter struct {
	IncludeDismissed bool
	IncludeSnoozed   bool
	Kind             string
	Since            time.Time
}

// GetEventByRuleAndDate returns the event for (user, rule, date) in any
// status, or nil when none exists.
func (db *DB) GetEventByRuleAndDate(ctx context.Context, userID, ruleID uuid.UUID, date time.Time) (*models.AlertEvent, error) {
	query := `
		SELECT ` + eventColumns + `
		FROM alert_events
		WHERE user_id = $1 AND rule_id = $2 AND alert_date = $3
	`
	e, err := scanEvent(db.conn.QueryRowContext(ctx, query, userID, ruleID, dateOnly(date)))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get alert event: %w", err)
	}
	return e, nil
}

// ListAlertEvents retrieves a user's events, newest first.
func (db *DB) ListAlertEvents(ctx context.Context, userID uuid.UUID, filter EventFilter) ([]*models.AlertEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM alert_events WHERE user_id = $1`
	args := []interface{}{userID}
	if !filter.IncludeDismissed {
		query += ` AND status != '` + models.EventStatusDismissed + `'`
	}
	if !filter.Since.IsZero() {
		args = append(args, dateOnly(filter.Since))
		query += fmt.Sprintf(` AND alert_date >= $%d`, len(args))
	}
	query += ` ORDER BY triggered_at DESC`

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query alert events: %w", err)
	}
	defer rows.Close()

	now := time.Now()
	var events []*models.AlertEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert event: %w", err)
		}
		if !filter.IncludeSnoozed && e.Snoozed(now) {
			continue
		}
		if filter.Kind != "" && e.Payload.Kind != filter.Kind {
			continue
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// InsertAlertEvent creates a new active event row, degrading the column set
// per eventInsertVariants when the live schema lacks optional columns.
func (db *DB) InsertAlertEvent(ctx context.Context, e *models.AlertEvent) error {
	now := time.Now()
	if e.Status == "" {
		e.Status = models.EventStatusActive
	}
	if e.TriggeredAt.IsZero() {
		e.TriggeredAt = now
	}
	e.CreatedAt = now
	e.UpdatedAt = now

	start := 0
	for i, variant := range eventInsertVariants {
		if db.supportsVariant(variant) {
			start = i
			break
		}
	}

	var lastErr error
	for _, variant := range eventInsertVariants[start:] {
		err := db.insertEventVariant(ctx, e, variant)
		if err == nil {
			return nil
		}
		lastErr = err
		if !isUndefinedColumn(err) {
			return fmt.Errorf("failed to insert alert event: %w", err)
		}
	}
	return fmt.Errorf("failed to insert alert event with any column set: %w", lastErr)
}

func (db *DB) supportsVariant(cols []string) bool {
	if db.eventCols == nil {
		return true
	}
	for _, c := range cols {
		if !db.eventCols[c] {
			return false
		}
	}
	return true
}

func (db *DB) insertEventVariant(ctx context.Context, e *models.AlertEvent, cols []string) error {
	values := map[string]interface{}{
		"user_id":         e.UserID,
		"rule_id":         e.RuleID,
		"alert_date":      dateOnly(e.AlertDate),
		"status":          e.Status,
		"dismissed_until": e.DismissedUntil,
		"triggered_at":    e.TriggeredAt,
		"acknowledged_at": e.AcknowledgedAt,
		"payload":         e.Payload,
		"created_at":      e.CreatedAt,
		"updated_at":      e.UpdatedAt,
	}

	placeholders := make([]string, len(cols))
	args := make([]interface{}, len(cols))
	for i, c := range cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = values[c]
	}

	query := fmt.Sprintf(
		`INSERT INTO alert_events (%s) VALUES (%s) RETURNING id`,
		strings.Join(cols, ", "), strings.Join(placeholders, ", "),
	)
	return db.conn.QueryRowContext(ctx, query, args...).Scan(&e.ID)
}

// UpsertTestEvent inserts or refreshes a test-fired event for (user, rule,
// today), resolving conflicts on the unique key in the store.
func (db *DB) UpsertTestEvent(ctx context.Context, e *models.AlertEvent) error {
	query := `
		INSERT INTO alert_events (
			user_id, rule_id, alert_date, status, triggered_at, payload, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		ON CONFLICT ON CONSTRAINT alert_events_user_rule_date_key DO UPDATE SET
			status = EXCLUDED.status,
			triggered_at = EXCLUDED.triggered_at,
			payload = EXCLUDED.payload,
			updated_at = EXCLUDED.updated_at
		RETURNING id
	`
	now := time.Now()
	e.Status = models.EventStatusActive
	e.TriggeredAt = now
	e.Payload.Test = true

	err := db.conn.QueryRowContext(ctx, query,
		e.UserID, e.RuleID, dateOnly(e.AlertDate), e.Status, e.TriggeredAt, e.Payload, now,
	).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert test event: %w", err)
	}
	return nil
}

// UpdateEventPayload replaces an event's payload without touching status or
// timestamps, used by the reconciler's refresh path.
func (db *DB) UpdateEventPayload(ctx context.Context, id uuid.UUID, payload models.EventPayload) error {
	query := `UPDATE alert_events SET payload = $2, updated_at = $3 WHERE id = $1`
	result, err := db.conn.ExecContext(ctx, query, id, payload, time.Now())
	if err != nil {
		return fmt.Errorf("failed to update event payload: %w", err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("alert event not found: %s", id)
	}
	return nil
}

// PatchEventPayload shallow-merges the given fields into the stored payload.
func (db *DB) PatchEventPayload(ctx context.Context, id uuid.UUID, fields map[string]interface{}) error {
	blob, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("failed to marshal payload patch: %w", err)
	}
	query := `UPDATE alert_events SET payload = payload || $2::jsonb, updated_at = $3 WHERE id = $1`
	result, err := db.conn.ExecContext(ctx, query, id, blob, time.Now())
	if err != nil {
		return fmt.Errorf("failed to patch event payload: %w", err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("alert event not found: %s", id)
	}
	return nil
}

// AutoResolveEvent dismisses an event whose trigger condition stopped
// holding, annotating the payload with the resolution reason.
func (db *DB) AutoResolveEvent(ctx context.Context, id uuid.UUID, reason string) error {
	blob, err := json.Marshal(map[string]string{"auto_resolved_reason": reason})
	if err != nil {
		return fmt.Errorf("failed to marshal resolution annotation: %w", err)
	}
	query := `
		UPDATE alert_events SET
			status = $2,
			payload = payload || $3::jsonb,
			updated_at = $4
		WHERE id = $1
	`
	_, err = db.conn.ExecContext(ctx, query, id, models.EventStatusDismissed, blob, time.Now())
	if err != nil {
		return fmt.Errorf("failed to auto-resolve event: %w", err)
	}
	return nil
}

// DismissEvent marks an event acknowledged by the user.
func (db *DB) DismissEvent(ctx context.Context, id uuid.UUID) error {
	now := time.Now()
	query := `
		UPDATE alert_events SET status = $2, acknowledged_at = $3, updated_at = $3
		WHERE id = $1
	`
	result, err := db.conn.ExecContext(ctx, query, id, models.EventStatusDismissed, now)
	if err != nil {
		return fmt.Errorf("failed to dismiss event: %w", err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("alert event not found: %s", id)
	}
	return nil
}

// SnoozeEvent sets the dismissed_until timestamp without changing status.
func (db *DB) SnoozeEvent(ctx context.Context, id uuid.UUID, until time.Time) error {
	query := `UPDATE alert_events SET dismissed_until = $2, updated_at = $3 WHERE id = $1`
	result, err := db.conn.ExecContext(ctx, query, id, until, time.Now())
	if err != nil {
		return fmt.Errorf("failed to snooze event: %w", err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("alert event not found: %s", id)
	}
	return nil
}

// DeleteOrDismissEvent hard-deletes an event, dismissing it instead when
// the delete is rejected. Returns true when the row was actually deleted.
func (db *DB) DeleteOrDismissEvent(ctx context.Context, id uuid.UUID) (bool, error) {
	result, err := db.conn.ExecContext(ctx, `DELETE FROM alert_events WHERE id = $1`, id)
	if err == nil {
		rowsAffected, _ := result.RowsAffected()
		if rowsAffected == 0 {
			return false, fmt.Errorf("alert event not found: %s", id)
		}
		return true, nil
	}
	if dismissErr := db.DismissEvent(ctx, id); dismissErr != nil {
		return false, fmt.Errorf("failed to delete or dismiss event: %w", err)
	}
	return false, nil
}

func scanEvent(row rowScanner) (*models.AlertEvent, error) {
	var e models.AlertEvent
	var dismissedUntil, acknowledgedAt sql.NullTime
	err := row.Scan(
		&e.ID, &e.UserID, &e.RuleID, &e.AlertDate, &e.Status, &dismissedUntil,
		&e.TriggeredAt, &acknowledgedAt, &e.Payload, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if dismissedUntil.Valid {
		e.DismissedUntil = &dismissedUntil.Time
	}
	if acknowledgedAt.Valid {
		e.AcknowledgedAt = &acknowledgedAt.Time
	}
	return &e, nil
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
