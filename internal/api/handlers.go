package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/trogers1052/journal-alert-service/internal/database"
	"github.com/trogers1052/journal-alert-service/internal/engine"
	"github.com/trogers1052/journal-alert-service/internal/models"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Store is the slice of the database the HTTP layer reads and writes.
type Store interface {
	CreateAlertRule(ctx context.Context, r *models.AlertRule) error
	GetAlertRuleByID(ctx context.Context, id uuid.UUID) (*models.AlertRule, error)
	ListAlertRules(ctx context.Context, userID uuid.UUID, filter database.RuleFilter) ([]*models.AlertRule, error)
	PatchAlertRule(ctx context.Context, id uuid.UUID, patch database.RulePatch) (*models.AlertRule, error)
	DeleteOrDisableAlertRule(ctx context.Context, id uuid.UUID) (bool, error)

	ListAlertEvents(ctx context.Context, userID uuid.UUID, filter database.EventFilter) ([]*models.AlertEvent, error)
	PatchEventPayload(ctx context.Context, id uuid.UUID, fields map[string]interface{}) error
	DismissEvent(ctx context.Context, id uuid.UUID) error
	SnoozeEvent(ctx context.Context, id uuid.UUID, until time.Time) error
	DeleteOrDismissEvent(ctx context.Context, id uuid.UUID) (bool, error)
}

// EngineControl is the slice of the engine the HTTP layer drives.
type EngineControl interface {
	RunNow()
	LastRun() engine.LastRun
	TestFire(ctx context.Context, ruleID uuid.UUID) (*models.AlertEvent, error)
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	store      Store
	engine     EngineControl
	log        *zap.Logger
	runLimiter *rate.Limiter
}

// NewHandler creates a new Handler
func NewHandler(store Store, eng EngineControl, log *zap.Logger) *Handler {
	return &Handler{
		store:  store,
		engine: eng,
		log:    log,
		// Run-now is cheap to request but not to serve; cap bursts.
		runLimiter: rate.NewLimiter(rate.Every(2*time.Second), 3),
	}
}

// ListRules handles GET /api/v1/users/{userID}/rules
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUUID(w, r, "userID")
	if !ok {
		return
	}

	filter := database.RuleFilter{
		EnabledOnly: r.URL.Query().Get("enabled") == "true",
		Kind:        r.URL.Query().Get("kind"),
	}

	rules, err := h.store.ListAlertRules(r.Context(), userID, filter)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if rules == nil {
		rules = []*models.AlertRule{}
	}

	respondJSON(w, http.StatusOK, rules)
}

// CreateRule handles POST /api/v1/users/{userID}/rules
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUUID(w, r, "userID")
	if !ok {
		return
	}

	var req struct {
		RuleKey     string             `json:"rule_key"`
		TriggerType string             `json:"trigger_type"`
		Severity    string             `json:"severity"`
		Channels    []string           `json:"channels"`
		Enabled     *bool              `json:"enabled"`
		Title       string             `json:"title"`
		Message     string             `json:"message"`
		Config      *models.RuleConfig `json:"config"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if req.Severity == "" {
		req.Severity = models.SeverityInfo
	}
	if !models.ValidSeverity(req.Severity) {
		http.Error(w, "invalid severity", http.StatusBadRequest)
		return
	}

	rule := &models.AlertRule{
		UserID:      userID,
		RuleKey:     req.RuleKey,
		TriggerType: req.TriggerType,
		Severity:    req.Severity,
		Channels:    models.NormalizeChannels(req.Channels),
		Enabled:     true,
		Title:       req.Title,
		Message:     req.Message,
	}
	if req.Enabled != nil {
		rule.Enabled = *req.Enabled
	}
	if req.Config != nil {
		rule.Config = *req.Config
	}

	// Title inference is a read-path shim for old rows; new rules must
	// declare their trigger.
	if _, resolvable := engine.ResolveDeclaredTrigger(rule); !resolvable {
		http.Error(w, "trigger_type is required (or a recognized rule_key)", http.StatusBadRequest)
		return
	}

	if err := h.store.CreateAlertRule(r.Context(), rule); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusCreated, rule)
}

// GetRule handles GET /api/v1/rules/{id}
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	rule, err := h.store.GetAlertRuleByID(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	respondJSON(w, http.StatusOK, rule)
}

// PatchRule handles PATCH /api/v1/rules/{id}
func (h *Handler) PatchRule(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	var req struct {
		Title    *string            `json:"title"`
		Message  *string            `json:"message"`
		Severity *string            `json:"severity"`
		Enabled  *bool              `json:"enabled"`
		Channels []string           `json:"channels"`
		Config   *models.RuleConfig `json:"config"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Severity != nil && !models.ValidSeverity(*req.Severity) {
		http.Error(w, "invalid severity", http.StatusBadRequest)
		return
	}

	rule, err := h.store.PatchAlertRule(r.Context(), id, database.RulePatch{
		Title:    req.Title,
		Message:  req.Message,
		Severity: req.Severity,
		Enabled:  req.Enabled,
		Channels: req.Channels,
		Config:   req.Config,
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, rule)
}

// DeleteRule handles DELETE /api/v1/rules/{id}. Rules with recorded events
// are disabled instead of removed so event history stays intact.
func (h *Handler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	deleted, err := h.store.DeleteOrDisableAlertRule(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !deleted {
		respondJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// TestRule handles POST /api/v1/rules/{id}/test
func (h *Handler) TestRule(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	event, err := h.engine.TestFire(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusCreated, event)
}

// ListEvents handles GET /api/v1/users/{userID}/events
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUUID(w, r, "userID")
	if !ok {
		return
	}

	q := r.URL.Query()
	filter := database.EventFilter{
		IncludeDismissed: q.Get("include_dismissed") == "true",
		IncludeSnoozed:   q.Get("include_snoozed") == "true",
		Kind:             q.Get("kind"),
	}
	if raw := q.Get("since"); raw != "" {
		since, err := time.Parse("2006-01-02", raw)
		if err != nil {
			http.Error(w, "invalid since date, want YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		filter.Since = since
	}

	events, err := h.store.ListAlertEvents(r.Context(), userID, filter)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []*models.AlertEvent{}
	}

	respondJSON(w, http.StatusOK, events)
}

// PatchEventPayload handles PATCH /api/v1/events/{id}/payload. Fields are
// shallow-merged into the stored payload; keys not in the request body are
// left alone.
func (h *Handler) PatchEventPayload(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	var fields map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(fields) == 0 {
		http.Error(w, "payload fields required", http.StatusBadRequest)
		return
	}

	if err := h.store.PatchEventPayload(r.Context(), id, fields); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "patched"})
}

// DismissEvent handles POST /api/v1/events/{id}/dismiss
func (h *Handler) DismissEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	if err := h.store.DismissEvent(r.Context(), id); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "dismissed"})
}

// SnoozeEvent handles POST /api/v1/events/{id}/snooze
func (h *Handler) SnoozeEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	var req struct {
		Minutes int     `json:"minutes"`
		Until   *string `json:"until"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	until := time.Now().Add(15 * time.Minute)
	switch {
	case req.Until != nil:
		t, err := time.Parse(time.RFC3339, *req.Until)
		if err != nil {
			http.Error(w, "invalid until timestamp, want RFC3339", http.StatusBadRequest)
			return
		}
		until = t
	case req.Minutes > 0:
		until = time.Now().Add(time.Duration(req.Minutes) * time.Minute)
	}

	if err := h.store.SnoozeEvent(r.Context(), id, until); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"status":       "snoozed",
		"snooze_until": until.Format(time.RFC3339),
	})
}

// DeleteEvent handles DELETE /api/v1/events/{id}. Falls back to dismissing
// when the schema rejects the delete.
func (h *Handler) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	deleted, err := h.store.DeleteOrDismissEvent(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !deleted {
		respondJSON(w, http.StatusOK, map[string]string{"status": "dismissed"})
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// RunEngine handles POST /api/v1/engine/run
func (h *Handler) RunEngine(w http.ResponseWriter, r *http.Request) {
	if !h.runLimiter.Allow() {
		http.Error(w, "too many run requests", http.StatusTooManyRequests)
		return
	}

	h.engine.RunNow()
	respondJSON(w, http.StatusAccepted, map[string]string{"status": "scheduled"})
}

// EngineStatus handles GET /api/v1/engine/status
func (h *Handler) EngineStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.engine.LastRun())
}

// HealthCheck handles GET /health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)[name])
	if err != nil {
		http.Error(w, "invalid "+name, http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
