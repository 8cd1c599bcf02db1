package engine

import (
	"regexp"

	"github.com/trogers1052/journal-alert-service/internal/models"
)

// Legacy title-inference shim. Rules created before trigger types were
// stored explicitly carry only a free-text title; this maps the known
// title vocabulary onto canonical trigger types. New rules must store a
// trigger type and never rely on this path.
//
// TODO: retire once the v1-rule migration backfills trigger_type for the
// remaining legacy rows.

type titlePattern struct {
	re      *regexp.Regexp
	trigger string
}

// Ordered: more specific vocabulary first so "options expiring" does not
// land on OPEN_POSITIONS via "position".
var titlePatterns = []titlePattern{
	{regexp.MustCompile(`(?i)expir`), models.TriggerOptionsExpiring},
	{regexp.MustCompile(`(?i)screenshot`), models.TriggerMissingScreenshots},
	{regexp.MustCompile(`(?i)emotion`), models.TriggerMissingEmotions},
	{regexp.MustCompile(`(?i)checklist`), models.TriggerChecklist},
	{regexp.MustCompile(`(?i)impulse`), models.TriggerImpulse},
	{regexp.MustCompile(`(?i)position`), models.TriggerOpenPositions},
	{regexp.MustCompile(`(?i)loss`), models.TriggerMaxLoss},
	{regexp.MustCompile(`(?i)(goal|target)`), models.TriggerDailyGoal},
	{regexp.MustCompile(`(?i)gain`), models.TriggerMaxGain},
}

func inferTriggerFromTitle(title string) (string, bool) {
	if title == "" {
		return "", false
	}
	for _, p := range titlePatterns {
		if p.re.MatchString(title) {
			return p.trigger, true
		}
	}
	return "", false
}
