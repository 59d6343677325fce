package scoring

import (
	"fmt"

	"github.com/noah-isme/screentime-api/internal/models"
	appErrors "github.com/noah-isme/screentime-api/pkg/errors"
)

const (
	MinDailyLimitMinutes = 1
	MaxDailyLimitMinutes = 24 * 60
)

// ValidateLimit checks a daily limit against the allowed range.
func ValidateLimit(minutes int) error {
	if minutes < MinDailyLimitMinutes || minutes > MaxDailyLimitMinutes {
		return appErrors.Clone(appErrors.ErrInvalidConfig,
			fmt.Sprintf("daily_limit_minutes must be within [%d,%d], got %d", MinDailyLimitMinutes, MaxDailyLimitMinutes, minutes))
	}
	return nil
}

// Resolve computes the rule set in force for a class on the given date.
// The weekend doubling applies to the limit only; app sets are copied so later
// edits to the class do not leak into an evaluation.
func Resolve(policy models.ClassPolicy, date models.Date) (models.PolicySnapshot, error) {
	if err := ValidateLimit(policy.DailyLimitMinutes); err != nil {
		return models.PolicySnapshot{}, err
	}
	if date.IsZero() {
		return models.PolicySnapshot{}, appErrors.Clone(appErrors.ErrInvalidUsageEvent, "date is required")
	}

	snapshot := models.PolicySnapshot{
		Date:                  date,
		EffectiveLimitMinutes: policy.DailyLimitMinutes,
		StrictMode:            policy.StrictMode,
		Allow:                 copySet(policy.Allow),
		Block:                 copySet(policy.Block),
	}
	if policy.WeekendMode && date.IsWeekend() {
		snapshot.EffectiveLimitMinutes = policy.DailyLimitMinutes * 2
		snapshot.WeekendDoubled = true
	}
	return snapshot, nil
}

func copySet(src map[string]struct{}) map[string]struct{} {
	dst := make(map[string]struct{}, len(src))
	for key := range src {
		dst[models.AppKey(key)] = struct{}{}
	}
	return dst
}
