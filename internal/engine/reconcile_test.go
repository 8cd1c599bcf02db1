package engine

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trogers1052/journal-alert-service/internal/models"
	"go.uber.org/zap"
)

// fakeEventStore keeps events in memory keyed by (user, rule, date).
type fakeEventStore struct {
	events map[string]*models.AlertEvent

	InsertCalls      int
	UpdateCalls      int
	AutoResolveCalls int
	UpsertTestCalls  int
}

func newFakeEventStore() *fakeEventStore {
	return &fakeEventStore{events: map[string]*models.AlertEvent{}}
}

func eventKey(userID, ruleID uuid.UUID, date time.Time) string {
	return userID.String() + ":" + ruleID.String() + ":" + date.Format("2006-01-02")
}

func (f *fakeEventStore) GetEventByRuleAndDate(_ context.Context, userID, ruleID uuid.UUID, date time.Time) (*models.AlertEvent, error) {
	e, ok := f.events[eventKey(userID, ruleID, date)]
	if !ok {
		return nil, nil
	}
	copied := *e
	return &copied, nil
}

func (f *fakeEventStore) InsertAlertEvent(_ context.Context, e *models.AlertEvent) error {
	f.InsertCalls++
	e.ID = uuid.New()
	e.TriggeredAt = time.Now()
	copied := *e
	f.events[eventKey(e.UserID, e.RuleID, e.AlertDate)] = &copied
	return nil
}

func (f *fakeEventStore) UpdateEventPayload(_ context.Context, id uuid.UUID, payload models.EventPayload) error {
	f.UpdateCalls++
	for _, e := range f.events {
		if e.ID == id {
			e.Payload = payload
			return nil
		}
	}
	return nil
}

func (f *fakeEventStore) AutoResolveEvent(_ context.Context, id uuid.UUID, reason string) error {
	f.AutoResolveCalls++
	for _, e := range f.events {
		if e.ID == id {
			e.Status = models.EventStatusDismissed
			e.Payload.AutoResolvedReason = reason
			return nil
		}
	}
	return nil
}

func (f *fakeEventStore) UpsertTestEvent(_ context.Context, e *models.AlertEvent) error {
	f.UpsertTestCalls++
	key := eventKey(e.UserID, e.RuleID, e.AlertDate)
	if existing, ok := f.events[key]; ok {
		e.ID = existing.ID
	} else {
		e.ID = uuid.New()
	}
	e.Status = models.EventStatusActive
	copied := *e
	f.events[key] = &copied
	return nil
}

func goalRule() *models.AlertRule {
	return &models.AlertRule{
		ID:          uuid.New(),
		UserID:      uuid.New(),
		TriggerType: models.TriggerDailyGoal,
		Severity:    models.SeverityInfo,
		Enabled:     true,
	}
}

func TestReconcileCreatesEventWhenFired(t *testing.T) {
	store := newFakeEventStore()
	r := NewReconciler(store, zap.NewNop())
	rule := goalRule()
	stats := statsWithPnL("600")

	outcome, err := r.Reconcile(context.Background(), rule, models.TriggerDailyGoal, stats, true)
	require.NoError(t, err)

	assert.True(t, outcome.Changed)
	require.NotNil(t, outcome.Created)
	assert.Equal(t, models.EventStatusActive, outcome.Created.Status)
	assert.Equal(t, models.TriggerDailyGoal, outcome.Created.Payload.TriggerType)
	assert.Equal(t, 1, store.InsertCalls)
}

func TestReconcileRefreshesExistingActiveEvent(t *testing.T) {
	store := newFakeEventStore()
	r := NewReconciler(store, zap.NewNop())
	rule := goalRule()
	stats := statsWithPnL("600")

	_, err := r.Reconcile(context.Background(), rule, models.TriggerDailyGoal, stats, true)
	require.NoError(t, err)

	// Second pass with the same verdict updates the payload, no new row.
	stats = statsWithPnL("700")
	outcome, err := r.Reconcile(context.Background(), rule, models.TriggerDailyGoal, stats, true)
	require.NoError(t, err)

	assert.True(t, outcome.Changed)
	assert.Nil(t, outcome.Created)
	assert.Equal(t, 1, store.InsertCalls)
	assert.Equal(t, 1, store.UpdateCalls)
}

func TestReconcileRespectsDismissal(t *testing.T) {
	store := newFakeEventStore()
	r := NewReconciler(store, zap.NewNop())
	rule := goalRule()
	stats := statsWithPnL("600")

	outcome, err := r.Reconcile(context.Background(), rule, models.TriggerDailyGoal, stats, true)
	require.NoError(t, err)

	// User dismisses the event.
	key := eventKey(rule.UserID, rule.ID, stats.Date)
	store.events[key].Status = models.EventStatusDismissed

	// Trigger still holds; the dismissal stands for the day.
	outcome, err = r.Reconcile(context.Background(), rule, models.TriggerDailyGoal, stats, true)
	require.NoError(t, err)

	assert.False(t, outcome.Changed)
	assert.Equal(t, 1, store.InsertCalls, "no duplicate event for a dismissed alert")
	assert.Equal(t, 0, store.UpdateCalls)
}

func TestReconcileAutoResolvesClearedTrigger(t *testing.T) {
	store := newFakeEventStore()
	r := NewReconciler(store, zap.NewNop())
	rule := goalRule()
	stats := statsWithPnL("600")

	_, err := r.Reconcile(context.Background(), rule, models.TriggerDailyGoal, stats, true)
	require.NoError(t, err)

	// P&L drops back under the goal.
	outcome, err := r.Reconcile(context.Background(), rule, models.TriggerDailyGoal, stats, false)
	require.NoError(t, err)

	assert.True(t, outcome.Changed)
	require.NotNil(t, outcome.Resolved)
	assert.Equal(t, models.EventStatusDismissed, outcome.Resolved.Status)
	assert.Equal(t, models.AutoResolvedTriggerCleared, outcome.Resolved.Payload.AutoResolvedReason)
	assert.Equal(t, 1, store.AutoResolveCalls)
}

func TestReconcileNeverAutoResolvesManualDismissal(t *testing.T) {
	store := newFakeEventStore()
	r := NewReconciler(store, zap.NewNop())
	rule := goalRule()
	stats := statsWithPnL("600")

	_, err := r.Reconcile(context.Background(), rule, models.TriggerDailyGoal, stats, true)
	require.NoError(t, err)

	key := eventKey(rule.UserID, rule.ID, stats.Date)
	store.events[key].Status = models.EventStatusDismissed

	outcome, err := r.Reconcile(context.Background(), rule, models.TriggerDailyGoal, stats, false)
	require.NoError(t, err)

	assert.False(t, outcome.Changed)
	assert.Equal(t, 0, store.AutoResolveCalls)
	assert.Empty(t, store.events[key].Payload.AutoResolvedReason,
		"a manual dismissal keeps its own record, no trigger_cleared annotation")
}

func TestReconcileLeavesTestEventsAlone(t *testing.T) {
	store := newFakeEventStore()
	r := NewReconciler(store, zap.NewNop())
	rule := goalRule()
	stats := statsWithPnL("0")

	// Seed a test-fired event.
	event := &models.AlertEvent{
		UserID:    rule.UserID,
		RuleID:    rule.ID,
		AlertDate: stats.Date,
		Status:    models.EventStatusActive,
		Payload:   models.EventPayload{Test: true},
	}
	require.NoError(t, store.InsertAlertEvent(context.Background(), event))

	outcome, err := r.Reconcile(context.Background(), rule, models.TriggerDailyGoal, stats, false)
	require.NoError(t, err)

	assert.False(t, outcome.Changed)
	assert.Equal(t, 0, store.AutoResolveCalls, "test events survive a clear verdict")
}

func TestReconcileKeepsTestMarkerOnRefresh(t *testing.T) {
	store := newFakeEventStore()
	r := NewReconciler(store, zap.NewNop())
	rule := goalRule()
	stats := statsWithPnL("600")

	event := &models.AlertEvent{
		UserID:    rule.UserID,
		RuleID:    rule.ID,
		AlertDate: stats.Date,
		Status:    models.EventStatusActive,
		Payload:   models.EventPayload{Test: true},
	}
	require.NoError(t, store.InsertAlertEvent(context.Background(), event))

	_, err := r.Reconcile(context.Background(), rule, models.TriggerDailyGoal, stats, true)
	require.NoError(t, err)

	key := eventKey(rule.UserID, rule.ID, stats.Date)
	assert.True(t, store.events[key].Payload.Test,
		"payload refresh must not drop the test marker")
}

func TestReconcileNoEventNoTrigger(t *testing.T) {
	store := newFakeEventStore()
	r := NewReconciler(store, zap.NewNop())

	outcome, err := r.Reconcile(context.Background(), goalRule(), models.TriggerDailyGoal, statsWithPnL("0"), false)
	require.NoError(t, err)

	assert.False(t, outcome.Changed)
	assert.Equal(t, 0, store.InsertCalls)
	assert.Equal(t, 0, store.AutoResolveCalls)
}

func TestBuildPayloadPrefersRuleText(t *testing.T) {
	rule := goalRule()
	rule.Title = "My goal"
	rule.Message = "Nice work"
	stats := statsWithPnL("600")

	payload := BuildPayload(rule, models.TriggerDailyGoal, stats)
	assert.Equal(t, "My goal", payload.Title)
	assert.Equal(t, "Nice work", payload.Message)

	rule.Title = ""
	rule.Message = ""
	payload = BuildPayload(rule, models.TriggerDailyGoal, stats)
	assert.Equal(t, "Daily goal reached", payload.Title)
	assert.Contains(t, payload.Message, "$600.00")
	require.NotNil(t, payload.Stats)
	assert.Equal(t, "2026-08-28", payload.Stats.Date)
}
