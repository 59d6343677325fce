package scoring

import (
	"sort"

	"github.com/noah-isme/screentime-api/internal/models"
)

// Evaluate classifies a day. Rules are checked in priority order and the first
// match wins: blocked-app usage, then the effective limit. An app on the allow
// list is never treated as blocked, but being allowed does not make a day compliant.
// Strict mode does not influence the verdict.
func Evaluate(event models.UsageEvent, snapshot models.PolicySnapshot) models.Verdict {
	var blocked []string
	for name, minutes := range event.PerAppMinutes {
		if minutes <= 0 {
			continue
		}
		key := models.AppKey(name)
		if _, ok := snapshot.Allow[key]; ok {
			continue
		}
		if _, ok := snapshot.Block[key]; ok {
			blocked = append(blocked, key)
		}
	}
	if len(blocked) > 0 {
		sort.Strings(blocked)
		return models.Verdict{Kind: models.VerdictViolation, Reason: models.ReasonBlockedAppUsed, BlockedApps: blocked}
	}

	if event.TotalMinutes > snapshot.EffectiveLimitMinutes {
		return models.Verdict{Kind: models.VerdictViolation, Reason: models.ReasonOverLimit}
	}
	return models.Verdict{Kind: models.VerdictCompliant, Reason: models.ReasonNone}
}
