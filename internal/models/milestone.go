package models

// MilestoneID names a built-in badge.
type MilestoneID string

const (
	MilestoneStarted     MilestoneID = "started"
	MilestoneWeekStreak  MilestoneID = "week_streak"
	MilestoneMonthStreak MilestoneID = "month_streak"
)

// Milestone is a derived badge state.
type Milestone struct {
	ID       MilestoneID `json:"id"`
	Unlocked bool        `json:"unlocked"`
}

// Level is the presentation view of a point balance.
type Level struct {
	Level          int     `json:"level"`
	ProgressToNext float64 `json:"progress_to_next"`
	NextPoint      int     `json:"next_point"`
	NeedsAttention bool    `json:"needs_attention"`
}
