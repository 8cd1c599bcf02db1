package engine

import (
	"strings"

	"github.com/trogers1052/journal-alert-service/internal/models"
)

// triggerAliases maps every trigger-type spelling ever written by a client
// to its canonical type. Lookups go through canonicalTrigger, which
// normalizes case and separators first. Retire entries only alongside the
// migration that rewrites their rows.
var triggerAliases = map[string]string{
	"DAILY_GOAL":           models.TriggerDailyGoal,
	"GOAL":                 models.TriggerDailyGoal,
	"PROFIT_TARGET":        models.TriggerDailyGoal,
	"DAILY_PROFIT_GOAL":    models.TriggerDailyGoal,
	"MAX_LOSS":             models.TriggerMaxLoss,
	"LOSS_LIMIT":           models.TriggerMaxLoss,
	"DAILY_MAX_LOSS":       models.TriggerMaxLoss,
	"STOP_TRADING_LOSS":    models.TriggerMaxLoss,
	"MAX_GAIN":             models.TriggerMaxGain,
	"GAIN_LIMIT":           models.TriggerMaxGain,
	"DAILY_MAX_GAIN":       models.TriggerMaxGain,
	"OPEN_POSITIONS":       models.TriggerOpenPositions,
	"OPEN_POSITION":        models.TriggerOpenPositions,
	"POSITIONS_OPEN":       models.TriggerOpenPositions,
	"EOD_OPEN_POSITIONS":   models.TriggerOpenPositions,
	"OPTIONS_EXPIRING":     models.TriggerOptionsExpiring,
	"EXPIRING_OPTIONS":     models.TriggerOptionsExpiring,
	"OPTIONS_EXPIRY":       models.TriggerOptionsExpiring,
	"EXPIRY":               models.TriggerOptionsExpiring,
	"IMPULSE":              models.TriggerImpulse,
	"IMPULSE_TRADES":       models.TriggerImpulse,
	"MISSING_SCREENSHOTS":  models.TriggerMissingScreenshots,
	"MISSING_SCREENSHOT":   models.TriggerMissingScreenshots,
	"NO_SCREENSHOT":        models.TriggerMissingScreenshots,
	"MISSING_EMOTIONS":     models.TriggerMissingEmotions,
	"MISSING_EMOTION":      models.TriggerMissingEmotions,
	"NO_EMOTION":           models.TriggerMissingEmotions,
	"CHECKLIST":            models.TriggerChecklist,
	"CHECKLIST_INCOMPLETE": models.TriggerChecklist,
	"MISSING_CHECKLIST":    models.TriggerChecklist,
}

// canonicalTrigger normalizes a candidate spelling and resolves it against
// the alias table.
func canonicalTrigger(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	s = strings.ToUpper(s)
	s = strings.NewReplacer(" ", "_", "-", "_", ".", "_").Replace(s)
	t, ok := triggerAliases[s]
	return t, ok
}

// ResolveDeclaredTrigger resolves a rule's trigger type from what a client
// actually declared, in fixed order: the explicit field, the rule key, then
// config-embedded hints. The legacy title shim is excluded, so the write
// path can require new rules to declare their trigger.
func ResolveDeclaredTrigger(rule *models.AlertRule) (string, bool) {
	candidates := []string{rule.TriggerType, rule.RuleKey}
	for _, key := range []string{"trigger_type", "trigger", "alert_type", "type"} {
		if v := models.StringOrEmpty(rule.Config.Extra[key]); v != "" {
			candidates = append(candidates, v)
		}
	}

	for _, c := range candidates {
		if t, ok := canonicalTrigger(c); ok {
			return t, true
		}
	}
	return "", false
}

// ResolveTriggerType resolves a rule's canonical trigger type: declared
// spellings first, then the legacy title-inference shim for rows written
// before trigger_type existed. A rule that resolves nowhere is skipped for
// the pass.
func ResolveTriggerType(rule *models.AlertRule) (string, bool) {
	if t, ok := ResolveDeclaredTrigger(rule); ok {
		return t, true
	}
	return inferTriggerFromTitle(rule.Title)
}
