package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/trogers1052/journal-alert-service/internal/bus"
	"github.com/trogers1052/journal-alert-service/internal/database"
	"github.com/trogers1052/journal-alert-service/internal/models"
	"go.uber.org/zap"
)

// RuleStore is the slice of the rule table the engine reads and seeds.
type RuleStore interface {
	ActiveUsers(ctx context.Context) ([]uuid.UUID, error)
	ListAlertRules(ctx context.Context, userID uuid.UUID, filter database.RuleFilter) ([]*models.AlertRule, error)
	GetAlertRuleByID(ctx context.Context, id uuid.UUID) (*models.AlertRule, error)
	FindRuleByTriggerSignature(ctx context.Context, userID uuid.UUID, signature string) (*models.AlertRule, error)
	CreateAlertRule(ctx context.Context, r *models.AlertRule) error
}

// TestEventStore extends EventStore with the test-fire upsert.
type TestEventStore interface {
	EventStore
	UpsertTestEvent(ctx context.Context, e *models.AlertEvent) error
}

// StatsProvider computes the daily snapshot. Never fails; sources degrade
// to defaults internally.
type StatsProvider interface {
	ComputeDailyStats(ctx context.Context, userID uuid.UUID, date time.Time) *models.DailyStats
}

// Notifier fans alert transitions out to external consumers. Optional.
type Notifier interface {
	PublishAlertTriggered(ctx context.Context, event *models.AlertEvent) error
	PublishAlertResolved(ctx context.Context, event *models.AlertEvent) error
}

// LastRun records the outcome of the most recent pass for observability.
type LastRun struct {
	At     time.Time `json:"at"`
	Status string    `json:"status"`
	Note   string    `json:"note,omitempty"`
}

// Run status values
const (
	RunStatusOK      = "ok"
	RunStatusError   = "error"
	RunStatusSkipped = "skipped"
)

// coreRuleSeeds are the built-in rules ensured once per engine start for
// every active user, keyed by trigger signature.
var coreRuleSeeds = []models.AlertRule{
	{
		RuleKey:     "core_open_positions",
		TriggerType: models.TriggerOpenPositions,
		Severity:    models.SeverityWarning,
		Channels:    []string{models.ChannelInApp, models.ChannelPopup},
		Enabled:     true,
		Title:       "Open positions check",
	},
	{
		RuleKey:     "core_options_expiring",
		TriggerType: models.TriggerOptionsExpiring,
		Severity:    models.SeverityWarning,
		Channels:    []string{models.ChannelInApp, models.ChannelPopup},
		Enabled:     true,
		Title:       "Options expiring today",
	},
}

// Engine is the polling alert evaluator. One pass reads every active
// user's rules, computes their daily snapshot, evaluates each rule and
// reconciles its event row. At most one pass runs at a time; overlapping
// wake-ups are dropped, not queued.
type Engine struct {
	rules      RuleStore
	events     TestEventStore
	stats      StatsProvider
	reconciler *Reconciler
	signals    *bus.Bus
	notifier   Notifier
	log        *zap.Logger

	interval time.Duration
	now      func() time.Time

	running atomic.Bool
	runNow  chan struct{}
	seeded  bool

	mu      sync.Mutex
	lastRun LastRun
}

// New creates an Engine. notifier may be nil when Kafka fan-out is not
// configured.
func New(rules RuleStore, events TestEventStore, stats StatsProvider, signals *bus.Bus, notifier Notifier, interval time.Duration, log *zap.Logger) *Engine {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Engine{
		rules:      rules,
		events:     events,
		stats:      stats,
		reconciler: NewReconciler(events, log),
		signals:    signals,
		notifier:   notifier,
		log:        log,
		interval:   interval,
		now:        time.Now,
		runNow:     make(chan struct{}, 1),
	}
}

// Start runs the polling loop until ctx is cancelled: once immediately,
// then on every tick or wake-up signal. Blocks; run it in a goroutine.
func (e *Engine) Start(ctx context.Context) error {
	e.log.Info("alert engine starting", zap.Duration("interval", e.interval))

	var wake <-chan bus.Message
	if e.signals != nil {
		sub := e.signals.Subscribe(bus.TopicRunNow, 1)
		defer sub.Close()
		wake = sub.C
	}

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	e.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			e.log.Info("alert engine stopping")
			return nil
		case <-ticker.C:
			e.RunOnce(ctx)
		case <-e.runNow:
			e.RunOnce(ctx)
		case _, ok := <-wake:
			if !ok {
				// Bus shut down first; keep ticking on the interval.
				wake = nil
				continue
			}
			e.RunOnce(ctx)
		}
	}
}

// RunNow requests an immediate pass. Non-blocking; if a pass is already
// pending or in flight the request is dropped.
func (e *Engine) RunNow() {
	select {
	case e.runNow <- struct{}{}:
	default:
	}
}

// LastRun returns the recorded outcome of the most recent pass.
func (e *Engine) LastRun() LastRun {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastRun
}

// RunOnce executes a single guarded pass. A pass already in flight causes
// this call to return immediately.
func (e *Engine) RunOnce(ctx context.Context) {
	if !e.running.CompareAndSwap(false, true) {
		e.log.Debug("pass already in flight, dropping run request")
		return
	}
	defer e.running.Store(false)

	start := e.now()
	err := e.runPass(ctx)

	e.mu.Lock()
	e.lastRun = LastRun{At: start, Status: RunStatusOK}
	if err != nil {
		e.lastRun.Status = RunStatusError
		e.lastRun.Note = err.Error()
	}
	e.mu.Unlock()

	if err != nil {
		e.log.Error("alert pass failed", zap.Error(err))
	}
}

func (e *Engine) runPass(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("alert pass panicked: %v", r)
		}
	}()

	users, err := e.rules.ActiveUsers(ctx)
	if err != nil {
		return fmt.Errorf("failed to list active users: %w", err)
	}

	if !e.seeded {
		// Attempted once per start; failures wait for the next start.
		for _, userID := range users {
			e.ensureCoreRules(ctx, userID)
		}
		e.seeded = true
	}

	today := e.today()
	for _, userID := range users {
		e.runUserPass(ctx, userID, today)
	}
	return nil
}

func (e *Engine) runUserPass(ctx context.Context, userID uuid.UUID, today time.Time) {
	rules, err := e.rules.ListAlertRules(ctx, userID, database.RuleFilter{EnabledOnly: true})
	if err != nil {
		e.log.Warn("failed to list rules",
			zap.String("user_id", userID.String()), zap.Error(err))
		return
	}
	if len(rules) == 0 {
		return
	}

	stats := e.stats.ComputeDailyStats(ctx, userID, today)

	changed := false
	for _, rule := range rules {
		triggerType, ok := ResolveTriggerType(rule)
		if !ok {
			e.log.Warn("rule has no resolvable trigger type, skipping",
				zap.String("rule_id", rule.ID.String()),
				zap.String("title", rule.Title))
			continue
		}

		filtered := FilterIgnored(stats, rule)
		fired := IsTriggered(triggerType, filtered, rule)

		outcome, err := e.reconciler.Reconcile(ctx, rule, triggerType, filtered, fired)
		if err != nil {
			// Write-degraded: this rule misses the pass, the rest proceed.
			e.log.Warn("failed to reconcile rule",
				zap.String("rule_id", rule.ID.String()), zap.Error(err))
			continue
		}
		changed = changed || outcome.Changed
		e.notify(ctx, outcome)
	}

	if changed {
		e.publishForcePull(ctx, userID)
	}
}

func (e *Engine) notify(ctx context.Context, outcome Outcome) {
	if e.notifier == nil {
		return
	}
	if outcome.Created != nil {
		if err := e.notifier.PublishAlertTriggered(ctx, outcome.Created); err != nil {
			e.log.Warn("failed to publish alert notification", zap.Error(err))
		}
	}
	if outcome.Resolved != nil {
		if err := e.notifier.PublishAlertResolved(ctx, outcome.Resolved); err != nil {
			e.log.Warn("failed to publish resolve notification", zap.Error(err))
		}
	}
}

func (e *Engine) publishForcePull(ctx context.Context, userID uuid.UUID) {
	if e.signals == nil {
		return
	}
	if err := e.signals.Publish(ctx, bus.Message{
		Topic:  bus.TopicForcePull,
		UserID: userID,
		At:     e.now(),
	}); err != nil {
		e.log.Warn("failed to publish force-pull signal", zap.Error(err))
	}
}

// ensureCoreRules creates the built-in rules a user is missing. Attempted
// once per engine start; any failure just leaves the rule for a later
// start.
func (e *Engine) ensureCoreRules(ctx context.Context, userID uuid.UUID) {
	for _, seed := range coreRuleSeeds {
		existing, err := e.rules.FindRuleByTriggerSignature(ctx, userID, seed.TriggerType)
		if err != nil {
			e.log.Warn("failed to check core rule",
				zap.String("user_id", userID.String()),
				zap.String("trigger", seed.TriggerType), zap.Error(err))
			continue
		}
		if existing != nil {
			continue
		}
		rule := seed
		rule.UserID = userID
		if err := e.rules.CreateAlertRule(ctx, &rule); err != nil {
			e.log.Warn("failed to seed core rule",
				zap.String("user_id", userID.String()),
				zap.String("trigger", seed.TriggerType), zap.Error(err))
			continue
		}
		e.log.Info("seeded core rule",
			zap.String("user_id", userID.String()),
			zap.String("trigger", seed.TriggerType))
	}
}

// TestFire creates or refreshes a test event for the rule, exempt from
// auto-resolution on later passes.
func (e *Engine) TestFire(ctx context.Context, ruleID uuid.UUID) (*models.AlertEvent, error) {
	rule, err := e.rules.GetAlertRuleByID(ctx, ruleID)
	if err != nil {
		return nil, err
	}

	triggerType, ok := ResolveTriggerType(rule)
	if !ok {
		return nil, fmt.Errorf("rule %s has no resolvable trigger type", ruleID)
	}

	today := e.today()
	stats := e.stats.ComputeDailyStats(ctx, rule.UserID, today)
	payload := BuildPayload(rule, triggerType, FilterIgnored(stats, rule))
	payload.Test = true

	event := &models.AlertEvent{
		UserID:    rule.UserID,
		RuleID:    rule.ID,
		AlertDate: today,
		Payload:   payload,
	}
	if err := e.events.UpsertTestEvent(ctx, event); err != nil {
		return nil, err
	}
	e.publishForcePull(ctx, rule.UserID)
	return event, nil
}

func (e *Engine) today() time.Time {
	y, m, d := e.now().UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
