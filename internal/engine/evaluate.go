package engine

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/trogers1052/journal-alert-service/internal/models"
)

// Open-position modes that opt a rule out of intraday position alerts.
const (
	positionsModeSwing   = "swing"
	positionsModePremium = "premium"
)

// FilterIgnored returns a copy of stats with the rule's ignored position
// ids removed from both position lists. The caller's snapshot is shared
// across rules and must not be mutated.
func FilterIgnored(stats *models.DailyStats, rule *models.AlertRule) *models.DailyStats {
	if len(rule.Config.IgnoreTradeIDs) == 0 {
		return stats
	}
	ignored := make(map[string]bool, len(rule.Config.IgnoreTradeIDs))
	for _, id := range rule.Config.IgnoreTradeIDs {
		ignored[strings.ToLower(id)] = true
	}

	filtered := *stats
	filtered.OpenPositions = withoutIgnored(stats.OpenPositions, ignored)
	filtered.ExpiringToday = withoutIgnored(stats.ExpiringToday, ignored)
	return &filtered
}

func withoutIgnored(positions []models.OpenPosition, ignored map[string]bool) []models.OpenPosition {
	out := make([]models.OpenPosition, 0, len(positions))
	for _, p := range positions {
		if ignored[strings.ToLower(p.ID)] {
			continue
		}
		out = append(out, p)
	}
	return out
}

// IsTriggered evaluates one trigger type against the snapshot. Pure:
// thresholds come from the rule config, falling back to the snapshot's
// plan-derived values. Unknown trigger types never fire.
func IsTriggered(triggerType string, stats *models.DailyStats, rule *models.AlertRule) bool {
	switch triggerType {
	case models.TriggerDailyGoal:
		if stats.GoalMet != nil && *stats.GoalMet {
			return true
		}
		goal := override(rule.Config.DailyGoal, stats.DailyGoal)
		return goal.IsPositive() && stats.NetPnL.GreaterThanOrEqual(goal)

	case models.TriggerMaxLoss:
		limit := override(rule.Config.MaxLoss, stats.MaxLoss).Abs()
		return limit.IsPositive() && stats.NetPnL.LessThanOrEqual(limit.Neg())

	case models.TriggerMaxGain:
		limit := override(rule.Config.MaxGain, stats.MaxGain).Abs()
		return limit.IsPositive() && stats.NetPnL.GreaterThanOrEqual(limit)

	case models.TriggerOpenPositions:
		switch rule.Config.OpenPositionsMode {
		case positionsModeSwing, positionsModePremium:
			// Explicit opt-out: swing/premium positions are held on purpose.
			return false
		}
		min := rule.Config.MinOpenPositions
		if min <= 0 {
			min = 1
		}
		return stats.OpenPositionCount() >= min

	case models.TriggerOptionsExpiring:
		return len(stats.ExpiringToday) > 0

	case models.TriggerImpulse:
		return stats.ImpulseCount > 0

	case models.TriggerMissingScreenshots:
		return stats.MissingScreenshots > 0

	case models.TriggerMissingEmotions:
		return stats.MissingEmotions > 0

	case models.TriggerChecklist:
		return stats.MissingChecklist > 0
	}
	return false
}

func override(configured, fallback decimal.Decimal) decimal.Decimal {
	if configured.IsPositive() {
		return configured
	}
	return fallback
}

// TitleFor returns the default title used when a rule carries no custom
// title.
func TitleFor(triggerType string) string {
	switch triggerType {
	case models.TriggerDailyGoal:
		return "Daily goal reached"
	case models.TriggerMaxLoss:
		return "Max loss hit"
	case models.TriggerMaxGain:
		return "Max gain hit"
	case models.TriggerOpenPositions:
		return "Open positions"
	case models.TriggerOptionsExpiring:
		return "Options expiring today"
	case models.TriggerImpulse:
		return "Impulse trades logged"
	case models.TriggerMissingScreenshots:
		return "Trades missing screenshots"
	case models.TriggerMissingEmotions:
		return "Trades missing emotions"
	case models.TriggerChecklist:
		return "Checklist incomplete"
	}
	return "Alert"
}

// MessageFor renders the default message for a fired trigger.
func MessageFor(triggerType string, stats *models.DailyStats) string {
	switch triggerType {
	case models.TriggerDailyGoal:
		return fmt.Sprintf("Net P&L %s reached your daily goal of %s.",
			dollars(stats.NetPnL), dollars(stats.DailyGoal))
	case models.TriggerMaxLoss:
		return fmt.Sprintf("Net P&L %s breached your max loss of %s. Step away.",
			dollars(stats.NetPnL), dollars(stats.MaxLoss))
	case models.TriggerMaxGain:
		return fmt.Sprintf("Net P&L %s passed your max gain of %s. Consider locking it in.",
			dollars(stats.NetPnL), dollars(stats.MaxGain))
	case models.TriggerOpenPositions:
		return fmt.Sprintf("You have %d open position(s).", stats.OpenPositionCount())
	case models.TriggerOptionsExpiring:
		return fmt.Sprintf("%d option position(s) expire today: %s.",
			len(stats.ExpiringToday), symbolList(stats.ExpiringToday))
	case models.TriggerImpulse:
		return fmt.Sprintf("%d impulse trade(s) logged today.", stats.ImpulseCount)
	case models.TriggerMissingScreenshots:
		return fmt.Sprintf("%d trade(s) today have no screenshot.", stats.MissingScreenshots)
	case models.TriggerMissingEmotions:
		return fmt.Sprintf("%d trade(s) today have no emotion logged.", stats.MissingEmotions)
	case models.TriggerChecklist:
		return fmt.Sprintf("%d trade(s) today skipped the checklist.", stats.MissingChecklist)
	}
	return "Alert condition met."
}

func dollars(d decimal.Decimal) string {
	return "$" + d.StringFixed(2)
}

func symbolList(positions []models.OpenPosition) string {
	seen := map[string]bool{}
	var symbols []string
	for _, p := range positions {
		if seen[p.Symbol] {
			continue
		}
		seen[p.Symbol] = true
		symbols = append(symbols, p.Symbol)
	}
	return strings.Join(symbols, ", ")
}
