package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Canonical trigger type constants
const (
	TriggerDailyGoal          = "DAILY_GOAL"
	TriggerMaxLoss            = "MAX_LOSS"
	TriggerMaxGain            = "MAX_GAIN"
	TriggerOpenPositions      = "OPEN_POSITIONS"
	TriggerOptionsExpiring    = "OPTIONS_EXPIRING"
	TriggerImpulse            = "IMPULSE"
	TriggerMissingScreenshots = "MISSING_SCREENSHOTS"
	TriggerMissingEmotions    = "MISSING_EMOTIONS"
	TriggerChecklist          = "CHECKLIST"
)

// Severity constants
const (
	SeverityInfo     = "info"
	SeveritySuccess  = "success"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Delivery channel constants
const (
	ChannelPopup = "popup"
	ChannelInApp = "inapp"
	ChannelVoice = "voice"
)

// Derived rule kind constants
const (
	KindReminder = "reminder"
	KindAlarm    = "alarm"
)

// Derived rule category constants
const (
	CategoryRisk       = "risk"
	CategoryGoal       = "goal"
	CategoryPositions  = "positions"
	CategoryDiscipline = "discipline"
	CategoryJournal    = "journal"
	CategoryGeneral    = "general"
)

// RuleConfig holds per-trigger thresholds. Known fields are typed; anything
// else a client stored in the config blob survives round-trips via Extra.
type RuleConfig struct {
	Kind              string
	Category          string
	DailyGoal         decimal.Decimal
	MaxLoss           decimal.Decimal
	MaxGain           decimal.Decimal
	MinOpenPositions  int
	OpenPositionsMode string
	IgnoreTradeIDs    []string
	Extra             map[string]interface{}
}

// MarshalJSON flattens known fields and the Extra bucket into one object.
func (c RuleConfig) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(c.Extra)+8)
	for k, v := range c.Extra {
		out[k] = v
	}
	if c.Kind != "" {
		out["kind"] = c.Kind
	}
	if c.Category != "" {
		out["category"] = c.Category
	}
	if !c.DailyGoal.IsZero() {
		out["daily_goal"] = c.DailyGoal
	}
	if !c.MaxLoss.IsZero() {
		out["max_loss"] = c.MaxLoss
	}
	if !c.MaxGain.IsZero() {
		out["max_gain"] = c.MaxGain
	}
	if c.MinOpenPositions != 0 {
		out["min_open_positions"] = c.MinOpenPositions
	}
	if c.OpenPositionsMode != "" {
		out["open_positions_mode"] = c.OpenPositionsMode
	}
	if len(c.IgnoreTradeIDs) > 0 {
		out["ignore_trade_ids"] = c.IgnoreTradeIDs
	}
	return json.Marshal(out)
}

// UnmarshalJSON pulls known keys out of the blob and keeps the rest in Extra.
func (c *RuleConfig) UnmarshalJSON(data []byte) error {
	raw := map[string]interface{}{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*c = RuleConfig{Extra: map[string]interface{}{}}
	for k, v := range raw {
		switch k {
		case "kind":
			c.Kind = strings.ToLower(StringOrEmpty(v))
		case "category":
			c.Category = strings.ToLower(StringOrEmpty(v))
		case "daily_goal":
			c.DailyGoal = DecimalOrZero(v)
		case "max_loss":
			c.MaxLoss = DecimalOrZero(v)
		case "max_gain":
			c.MaxGain = DecimalOrZero(v)
		case "min_open_positions":
			c.MinOpenPositions = IntOrZero(v)
		case "open_positions_mode":
			c.OpenPositionsMode = strings.ToLower(StringOrEmpty(v))
		case "ignore_trade_ids":
			c.IgnoreTradeIDs = stringSlice(v)
		default:
			c.Extra[k] = v
		}
	}
	return nil
}

// Merge overlays non-empty fields of other onto c, used for config-merge
// patches. Extra keys merge shallowly.
func (c *RuleConfig) Merge(other RuleConfig) {
	if other.Kind != "" {
		c.Kind = other.Kind
	}
	if other.Category != "" {
		c.Category = other.Category
	}
	if !other.DailyGoal.IsZero() {
		c.DailyGoal = other.DailyGoal
	}
	if !other.MaxLoss.IsZero() {
		c.MaxLoss = other.MaxLoss
	}
	if !other.MaxGain.IsZero() {
		c.MaxGain = other.MaxGain
	}
	if other.MinOpenPositions != 0 {
		c.MinOpenPositions = other.MinOpenPositions
	}
	if other.OpenPositionsMode != "" {
		c.OpenPositionsMode = other.OpenPositionsMode
	}
	if other.IgnoreTradeIDs != nil {
		c.IgnoreTradeIDs = other.IgnoreTradeIDs
	}
	if c.Extra == nil {
		c.Extra = map[string]interface{}{}
	}
	for k, v := range other.Extra {
		c.Extra[k] = v
	}
}

// Value implements driver.Valuer so RuleConfig stores as jsonb.
func (c RuleConfig) Value() (driver.Value, error) {
	return json.Marshal(c)
}

// Scan implements sql.Scanner.
func (c *RuleConfig) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*c = RuleConfig{Extra: map[string]interface{}{}}
		return nil
	case []byte:
		return c.UnmarshalJSON(v)
	case string:
		return c.UnmarshalJSON([]byte(v))
	default:
		return fmt.Errorf("unsupported rule config type %T", src)
	}
}

// AlertRule is a user-authored trigger definition.
type AlertRule struct {
	ID          uuid.UUID  `json:"id"`
	UserID      uuid.UUID  `json:"user_id"`
	RuleKey     string     `json:"rule_key,omitempty"`
	TriggerType string     `json:"trigger_type,omitempty"`
	Severity    string     `json:"severity"`
	Channels    []string   `json:"channels"`
	Enabled     bool       `json:"enabled"`
	Title       string     `json:"title,omitempty"`
	Message     string     `json:"message,omitempty"`
	Config      RuleConfig `json:"config"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Kind derives the rule's effective kind. The derivation is deterministic:
// explicit config wins, then trigger-type keywords, then severity.
func (r *AlertRule) Kind() string {
	if k := r.Config.Kind; k == KindReminder || k == KindAlarm {
		return k
	}
	t := strings.ToLower(r.TriggerType)
	switch {
	case containsAny(t, "loss", "gain", "impulse", "risk"):
		return KindAlarm
	case containsAny(t, "goal", "expir", "position", "screenshot", "emotion", "checklist", "journal"):
		return KindReminder
	}
	if r.Severity == SeverityCritical || r.Severity == SeverityWarning {
		return KindAlarm
	}
	return KindReminder
}

// Category derives the rule's category with the same precedence as Kind.
func (r *AlertRule) Category() string {
	if c := r.Config.Category; c != "" {
		return c
	}
	t := strings.ToLower(r.TriggerType)
	switch {
	case containsAny(t, "loss", "gain", "risk"):
		return CategoryRisk
	case containsAny(t, "goal"):
		return CategoryGoal
	case containsAny(t, "position", "expir"):
		return CategoryPositions
	case containsAny(t, "impulse"):
		return CategoryDiscipline
	case containsAny(t, "screenshot", "emotion", "checklist", "journal", "note"):
		return CategoryJournal
	}
	if r.Severity == SeverityCritical || r.Severity == SeverityWarning {
		return CategoryRisk
	}
	return CategoryGeneral
}

// ValidSeverity reports whether s is one of the four severity levels.
func ValidSeverity(s string) bool {
	switch s {
	case SeverityInfo, SeveritySuccess, SeverityWarning, SeverityCritical:
		return true
	}
	return false
}

// NormalizeChannels drops unknown channels and defaults to inapp.
func NormalizeChannels(channels []string) []string {
	var out []string
	for _, ch := range channels {
		switch strings.ToLower(strings.TrimSpace(ch)) {
		case ChannelPopup:
			out = append(out, ChannelPopup)
		case ChannelInApp:
			out = append(out, ChannelInApp)
		case ChannelVoice:
			out = append(out, ChannelVoice)
		}
	}
	if len(out) == 0 {
		return []string{ChannelInApp}
	}
	return out
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func stringSlice(v interface{}) []string {
	switch vv := v.(type) {
	case []string:
		return vv
	case []interface{}:
		out := make([]string, 0, len(vv))
		for _, item := range vv {
			if s := StringOrEmpty(item); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
