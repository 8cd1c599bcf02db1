package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/trogers1052/journal-alert-service/internal/models"
	"go.uber.org/zap"
)

// EventStore is the slice of the event table the reconciler writes through.
type EventStore interface {
	GetEventByRuleAndDate(ctx context.Context, userID, ruleID uuid.UUID, date time.Time) (*models.AlertEvent, error)
	InsertAlertEvent(ctx context.Context, e *models.AlertEvent) error
	UpdateEventPayload(ctx context.Context, id uuid.UUID, payload models.EventPayload) error
	AutoResolveEvent(ctx context.Context, id uuid.UUID, reason string) error
}

// Outcome describes what a reconciliation pass did for one rule.
type Outcome struct {
	Created  *models.AlertEvent
	Resolved *models.AlertEvent
	Changed  bool
}

// Reconciler keeps exactly one event per (user, rule, date) in the state
// the current verdict demands. Transitions are idempotent: feeding the
// same verdict twice performs at most a payload refresh the second time.
type Reconciler struct {
	events EventStore
	log    *zap.Logger
}

// NewReconciler creates a Reconciler.
func NewReconciler(events EventStore, log *zap.Logger) *Reconciler {
	return &Reconciler{events: events, log: log}
}

// Reconcile applies one verdict for one rule on one date.
func (r *Reconciler) Reconcile(ctx context.Context, rule *models.AlertRule, triggerType string, stats *models.DailyStats, fired bool) (Outcome, error) {
	existing, err := r.events.GetEventByRuleAndDate(ctx, rule.UserID, rule.ID, stats.Date)
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to look up event for rule %s: %w", rule.ID, err)
	}

	if !fired {
		return r.resolveCleared(ctx, existing)
	}

	payload := BuildPayload(rule, triggerType, stats)

	if existing == nil {
		event := &models.AlertEvent{
			UserID:    rule.UserID,
			RuleID:    rule.ID,
			AlertDate: stats.Date,
			Status:    models.EventStatusActive,
			Payload:   payload,
		}
		if err := r.events.InsertAlertEvent(ctx, event); err != nil {
			return Outcome{}, err
		}
		return Outcome{Created: event, Changed: true}, nil
	}

	if existing.Dismissed() {
		// The user's decision stands for the rest of the day.
		return Outcome{}, nil
	}

	// Keep the dismissal-exempt markers the stored payload carries.
	payload.Test = existing.Payload.Test
	if err := r.events.UpdateEventPayload(ctx, existing.ID, payload); err != nil {
		return Outcome{}, err
	}
	return Outcome{Changed: true}, nil
}

// resolveCleared dismisses an active event whose trigger stopped holding.
// Manually dismissed events and test-fired events are left untouched.
func (r *Reconciler) resolveCleared(ctx context.Context, existing *models.AlertEvent) (Outcome, error) {
	if existing == nil || existing.Dismissed() || existing.Payload.Test {
		return Outcome{}, nil
	}
	if err := r.events.AutoResolveEvent(ctx, existing.ID, models.AutoResolvedTriggerCleared); err != nil {
		return Outcome{}, err
	}
	existing.Status = models.EventStatusDismissed
	existing.Payload.AutoResolvedReason = models.AutoResolvedTriggerCleared
	return Outcome{Resolved: existing, Changed: true}, nil
}

// BuildPayload renders the full event payload for a fired rule, falling
// back to generated title/message when the rule has no custom text.
func BuildPayload(rule *models.AlertRule, triggerType string, stats *models.DailyStats) models.EventPayload {
	title := rule.Title
	if title == "" {
		title = TitleFor(triggerType)
	}
	message := rule.Message
	if message == "" {
		message = MessageFor(triggerType, stats)
	}
	return models.EventPayload{
		Title:         title,
		Message:       message,
		Severity:      rule.Severity,
		Kind:          rule.Kind(),
		Category:      rule.Category(),
		TriggerType:   triggerType,
		Channels:      models.NormalizeChannels(rule.Channels),
		Stats:         stats.Excerpt(),
		OpenPositions: stats.OpenPositions,
		ExpiringToday: stats.ExpiringToday,
	}
}
