package scoring

import (
	"fmt"
	"strings"

	"github.com/noah-isme/screentime-api/internal/models"
	appErrors "github.com/noah-isme/screentime-api/pkg/errors"
)

// DefaultUsageToleranceMinutes is how far the per-app sum may exceed the total.
const DefaultUsageToleranceMinutes = 5

// NormalizeUsage validates a usage event at the ingest boundary and returns a
// copy whose app identifiers are lower-cased, merging case variants.
func NormalizeUsage(event models.UsageEvent, toleranceMinutes int) (models.UsageEvent, error) {
	if toleranceMinutes < 0 {
		toleranceMinutes = 0
	}
	if strings.TrimSpace(event.StudentID) == "" {
		return models.UsageEvent{}, invalidUsage("student_id is required")
	}
	if event.Date.IsZero() {
		return models.UsageEvent{}, invalidUsage("date is required")
	}
	if event.TotalMinutes < 0 {
		return models.UsageEvent{}, invalidUsage("total_minutes must not be negative")
	}
	if event.TotalMinutes > MaxDailyLimitMinutes {
		return models.UsageEvent{}, invalidUsage(fmt.Sprintf("total_minutes exceeds %d minutes in a day", MaxDailyLimitMinutes))
	}

	apps := make(models.AppMinutes, len(event.PerAppMinutes))
	for name, minutes := range event.PerAppMinutes {
		key := models.AppKey(name)
		if key == "" {
			return models.UsageEvent{}, invalidUsage("app identifier must not be empty")
		}
		if minutes < 0 {
			return models.UsageEvent{}, invalidUsage(fmt.Sprintf("minutes for %q must not be negative", name))
		}
		apps[key] += minutes
	}
	if sum := apps.Sum(); sum > event.TotalMinutes+toleranceMinutes {
		return models.UsageEvent{}, invalidUsage(fmt.Sprintf("per-app minutes (%d) exceed total_minutes (%d)", sum, event.TotalMinutes))
	}

	normalized := event
	normalized.StudentID = strings.TrimSpace(event.StudentID)
	normalized.PerAppMinutes = apps
	return normalized, nil
}

func invalidUsage(msg string) error {
	return appErrors.Clone(appErrors.ErrInvalidUsageEvent, msg)
}
