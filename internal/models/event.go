package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Alert event status constants
const (
	EventStatusActive    = "active"
	EventStatusDismissed = "dismissed"
)

// AutoResolvedTriggerCleared annotates events the reconciler dismissed
// because their trigger condition stopped holding.
const AutoResolvedTriggerCleared = "trigger_cleared"

// EventPayload is the rendered context stored with an alert event. Known
// fields are typed; unknown keys written by older clients are preserved in
// Extra across payload patches.
type EventPayload struct {
	Title              string                 `json:"title,omitempty"`
	Message            string                 `json:"message,omitempty"`
	Severity           string                 `json:"severity,omitempty"`
	Kind               string                 `json:"kind,omitempty"`
	Category           string                 `json:"category,omitempty"`
	TriggerType        string                 `json:"trigger_type,omitempty"`
	Channels           []string               `json:"channels,omitempty"`
	Test               bool                   `json:"test,omitempty"`
	AutoResolvedReason string                 `json:"auto_resolved_reason,omitempty"`
	Stats              *StatsExcerpt          `json:"stats,omitempty"`
	OpenPositions      []OpenPosition         `json:"open_positions,omitempty"`
	ExpiringToday      []OpenPosition         `json:"expiring_today,omitempty"`
	Extra              map[string]interface{} `json:"-"`
}

type payloadAlias EventPayload

// MarshalJSON folds Extra back into the flat object.
func (p EventPayload) MarshalJSON() ([]byte, error) {
	base, err := json.Marshal(payloadAlias(p))
	if err != nil {
		return nil, err
	}
	if len(p.Extra) == 0 {
		return base, nil
	}
	merged := map[string]interface{}{}
	for k, v := range p.Extra {
		merged[k] = v
	}
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	return json.Marshal(merged)
}

// UnmarshalJSON keeps unknown keys in Extra.
func (p *EventPayload) UnmarshalJSON(data []byte) error {
	var known payloadAlias
	if err := json.Unmarshal(data, &known); err != nil {
		return err
	}
	raw := map[string]interface{}{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for _, k := range []string{
		"title", "message", "severity", "kind", "category", "trigger_type",
		"channels", "test", "auto_resolved_reason", "stats",
		"open_positions", "expiring_today",
	} {
		delete(raw, k)
	}
	*p = EventPayload(known)
	if len(raw) > 0 {
		p.Extra = raw
	}
	return nil
}

// Value implements driver.Valuer so EventPayload stores as jsonb.
func (p EventPayload) Value() (driver.Value, error) {
	return json.Marshal(p)
}

// Scan implements sql.Scanner.
func (p *EventPayload) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*p = EventPayload{}
		return nil
	case []byte:
		return p.UnmarshalJSON(v)
	case string:
		return p.UnmarshalJSON([]byte(v))
	default:
		return fmt.Errorf("unsupported event payload type %T", src)
	}
}

// AlertEvent is the materialized occurrence of a fired rule on a date.
// Exactly one row exists per (user, rule, alert date).
type AlertEvent struct {
	ID             uuid.UUID    `json:"id"`
	UserID         uuid.UUID    `json:"user_id"`
	RuleID         uuid.UUID    `json:"rule_id"`
	AlertDate      time.Time    `json:"alert_date"`
	Status         string       `json:"status"`
	DismissedUntil *time.Time   `json:"dismissed_until,omitempty"`
	TriggeredAt    time.Time    `json:"triggered_at"`
	AcknowledgedAt *time.Time   `json:"acknowledged_at,omitempty"`
	Payload        EventPayload `json:"payload"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// Dismissed reports whether the event has been dismissed (manually or by
// auto-resolution).
func (e *AlertEvent) Dismissed() bool {
	return e.Status == EventStatusDismissed
}

// Snoozed reports whether the event is snoozed past now.
func (e *AlertEvent) Snoozed(now time.Time) bool {
	return e.DismissedUntil != nil && e.DismissedUntil.After(now)
}
