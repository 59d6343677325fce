package scoring

import (
	"math"

	"github.com/noah-isme/screentime-api/internal/models"
)

const (
	weekStreakDays  = 7
	monthStreakDays = 30
	pointsPerLevel  = 10
)

// Milestones derives the built-in badges in display order. A nil ledger
// unlocks nothing, not even started.
func Milestones(ledger *models.ScoreLedger) []models.Milestone {
	if ledger == nil {
		return []models.Milestone{
			{ID: models.MilestoneStarted},
			{ID: models.MilestoneWeekStreak},
			{ID: models.MilestoneMonthStreak},
		}
	}
	return []models.Milestone{
		{ID: models.MilestoneStarted, Unlocked: true},
		{ID: models.MilestoneWeekStreak, Unlocked: ledger.CurrentStreakDays >= weekStreakDays || ledger.LongestStreakDays >= weekStreakDays},
		{ID: models.MilestoneMonthStreak, Unlocked: ledger.LongestStreakDays >= monthStreakDays},
	}
}

// LevelOf is the presentation view of a balance: one level per ten points and
// progress towards the next whole point.
func LevelOf(points float64) models.Level {
	if points < 0 {
		points = 0
	}
	whole := math.Floor(points)
	progress := math.Round((points-whole)*100*100) / 100
	if progress >= 100 {
		progress = 0
	}
	return models.Level{
		Level:          int(math.Floor(points / pointsPerLevel)),
		ProgressToNext: progress,
		NextPoint:      int(whole) + 1,
		NeedsAttention: points < pointsPerLevel,
	}
}
