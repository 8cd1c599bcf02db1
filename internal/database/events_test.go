package database

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trogers1052/journal-alert-service/internal/models"
)

func TestEventsRepository(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	testDB := SetupTestDB(t)
	defer testDB.Cleanup(t)
	ctx := context.Background()

	today := dateOnly(time.Now())

	createRule := func(t *testing.T, userID uuid.UUID) *models.AlertRule {
		t.Helper()
		rule := &models.AlertRule{
			UserID:      userID,
			TriggerType: models.TriggerDailyGoal,
			Enabled:     true,
			Title:       "Goal check",
		}
		require.NoError(t, testDB.CreateAlertRule(ctx, rule))
		return rule
	}

	newEvent := func(rule *models.AlertRule) *models.AlertEvent {
		return &models.AlertEvent{
			UserID:    rule.UserID,
			RuleID:    rule.ID,
			AlertDate: today,
			Payload: models.EventPayload{
				Title:       "Goal check",
				Severity:    models.SeverityInfo,
				Kind:        models.KindReminder,
				TriggerType: models.TriggerDailyGoal,
			},
		}
	}

	t.Run("InsertAlertEvent and GetEventByRuleAndDate round-trip", func(t *testing.T) {
		testDB.TruncateAll(t)
		rule := createRule(t, uuid.New())

		event := newEvent(rule)
		require.NoError(t, testDB.InsertAlertEvent(ctx, event))
		assert.NotEqual(t, uuid.Nil, event.ID)
		assert.Equal(t, models.EventStatusActive, event.Status)

		got, err := testDB.GetEventByRuleAndDate(ctx, rule.UserID, rule.ID, today)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, event.ID, got.ID)
		assert.Equal(t, "Goal check", got.Payload.Title)
		assert.Equal(t, models.KindReminder, got.Payload.Kind)
	})

	t.Run("GetEventByRuleAndDate returns nil when absent", func(t *testing.T) {
		testDB.TruncateAll(t)

		got, err := testDB.GetEventByRuleAndDate(ctx, uuid.New(), uuid.New(), today)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("unique key rejects duplicate event per rule and date", func(t *testing.T) {
		testDB.TruncateAll(t)
		rule := createRule(t, uuid.New())

		require.NoError(t, testDB.InsertAlertEvent(ctx, newEvent(rule)))
		err := testDB.InsertAlertEvent(ctx, newEvent(rule))
		require.Error(t, err)
		assert.True(t, isUniqueViolation(err))
	})

	t.Run("UpsertTestEvent refreshes instead of conflicting", func(t *testing.T) {
		testDB.TruncateAll(t)
		rule := createRule(t, uuid.New())

		first := newEvent(rule)
		require.NoError(t, testDB.UpsertTestEvent(ctx, first))
		assert.True(t, first.Payload.Test)

		second := newEvent(rule)
		second.Payload.Title = "Refreshed"
		require.NoError(t, testDB.UpsertTestEvent(ctx, second))
		assert.Equal(t, first.ID, second.ID)

		got, err := testDB.GetEventByRuleAndDate(ctx, rule.UserID, rule.ID, today)
		require.NoError(t, err)
		assert.Equal(t, "Refreshed", got.Payload.Title)
		assert.True(t, got.Payload.Test)
	})

	t.Run("ListAlertEvents hides dismissed and snoozed by default", func(t *testing.T) {
		testDB.TruncateAll(t)
		userID := uuid.New()

		active := newEvent(createRule(t, userID))
		require.NoError(t, testDB.InsertAlertEvent(ctx, active))

		dismissed := newEvent(createRule(t, userID))
		require.NoError(t, testDB.InsertAlertEvent(ctx, dismissed))
		require.NoError(t, testDB.DismissEvent(ctx, dismissed.ID))

		snoozed := newEvent(createRule(t, userID))
		require.NoError(t, testDB.InsertAlertEvent(ctx, snoozed))
		require.NoError(t, testDB.SnoozeEvent(ctx, snoozed.ID, time.Now().Add(time.Hour)))

		visible, err := testDB.ListAlertEvents(ctx, userID, EventFilter{})
		require.NoError(t, err)
		require.Len(t, visible, 1)
		assert.Equal(t, active.ID, visible[0].ID)

		all, err := testDB.ListAlertEvents(ctx, userID, EventFilter{
			IncludeDismissed: true,
			IncludeSnoozed:   true,
		})
		require.NoError(t, err)
		assert.Len(t, all, 3)
	})

	t.Run("ListAlertEvents shows events whose snooze expired", func(t *testing.T) {
		testDB.TruncateAll(t)
		userID := uuid.New()

		event := newEvent(createRule(t, userID))
		require.NoError(t, testDB.InsertAlertEvent(ctx, event))
		require.NoError(t, testDB.SnoozeEvent(ctx, event.ID, time.Now().Add(-time.Minute)))

		visible, err := testDB.ListAlertEvents(ctx, userID, EventFilter{})
		require.NoError(t, err)
		assert.Len(t, visible, 1)
	})

	t.Run("ListAlertEvents filters by kind", func(t *testing.T) {
		testDB.TruncateAll(t)
		userID := uuid.New()

		reminder := newEvent(createRule(t, userID))
		require.NoError(t, testDB.InsertAlertEvent(ctx, reminder))

		alarm := newEvent(createRule(t, userID))
		alarm.Payload.Kind = models.KindAlarm
		require.NoError(t, testDB.InsertAlertEvent(ctx, alarm))

		alarms, err := testDB.ListAlertEvents(ctx, userID, EventFilter{Kind: models.KindAlarm})
		require.NoError(t, err)
		require.Len(t, alarms, 1)
		assert.Equal(t, alarm.ID, alarms[0].ID)
	})

	t.Run("AutoResolveEvent dismisses and annotates", func(t *testing.T) {
		testDB.TruncateAll(t)
		rule := createRule(t, uuid.New())

		event := newEvent(rule)
		require.NoError(t, testDB.InsertAlertEvent(ctx, event))
		require.NoError(t, testDB.AutoResolveEvent(ctx, event.ID, models.AutoResolvedTriggerCleared))

		got, err := testDB.GetEventByRuleAndDate(ctx, rule.UserID, rule.ID, today)
		require.NoError(t, err)
		assert.Equal(t, models.EventStatusDismissed, got.Status)
		assert.Equal(t, models.AutoResolvedTriggerCleared, got.Payload.AutoResolvedReason)
		// The rest of the payload survives the jsonb merge.
		assert.Equal(t, "Goal check", got.Payload.Title)
	})

	t.Run("UpdateEventPayload replaces payload", func(t *testing.T) {
		testDB.TruncateAll(t)
		rule := createRule(t, uuid.New())

		event := newEvent(rule)
		require.NoError(t, testDB.InsertAlertEvent(ctx, event))

		refreshed := event.Payload
		refreshed.Message = "Updated message"
		require.NoError(t, testDB.UpdateEventPayload(ctx, event.ID, refreshed))

		got, err := testDB.GetEventByRuleAndDate(ctx, rule.UserID, rule.ID, today)
		require.NoError(t, err)
		assert.Equal(t, "Updated message", got.Payload.Message)
	})

	t.Run("PatchEventPayload shallow-merges fields", func(t *testing.T) {
		testDB.TruncateAll(t)
		rule := createRule(t, uuid.New())

		event := newEvent(rule)
		event.Payload.Message = "original"
		require.NoError(t, testDB.InsertAlertEvent(ctx, event))

		require.NoError(t, testDB.PatchEventPayload(ctx, event.ID, map[string]interface{}{
			"message": "edited",
			"note":    "user annotation",
		}))

		got, err := testDB.GetEventByRuleAndDate(ctx, rule.UserID, rule.ID, today)
		require.NoError(t, err)
		assert.Equal(t, "edited", got.Payload.Message)
		assert.Equal(t, "user annotation", got.Payload.Extra["note"])
		// Keys absent from the patch are untouched.
		assert.Equal(t, "Goal check", got.Payload.Title)
	})

	t.Run("PatchEventPayload errors on unknown event", func(t *testing.T) {
		testDB.TruncateAll(t)

		err := testDB.PatchEventPayload(ctx, uuid.New(), map[string]interface{}{"note": "x"})
		assert.Error(t, err)
	})

	t.Run("DismissEvent stamps acknowledged_at", func(t *testing.T) {
		testDB.TruncateAll(t)
		rule := createRule(t, uuid.New())

		event := newEvent(rule)
		require.NoError(t, testDB.InsertAlertEvent(ctx, event))
		require.NoError(t, testDB.DismissEvent(ctx, event.ID))

		got, err := testDB.GetEventByRuleAndDate(ctx, rule.UserID, rule.ID, today)
		require.NoError(t, err)
		assert.True(t, got.Dismissed())
		assert.NotNil(t, got.AcknowledgedAt)
	})

	t.Run("DeleteOrDismissEvent removes the row", func(t *testing.T) {
		testDB.TruncateAll(t)
		rule := createRule(t, uuid.New())

		event := newEvent(rule)
		require.NoError(t, testDB.InsertAlertEvent(ctx, event))

		deleted, err := testDB.DeleteOrDismissEvent(ctx, event.ID)
		require.NoError(t, err)
		assert.True(t, deleted)

		got, err := testDB.GetEventByRuleAndDate(ctx, rule.UserID, rule.ID, today)
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}
