package models

import "time"

// VerdictKind classifies an evaluated day.
type VerdictKind string

const (
	VerdictCompliant VerdictKind = "COMPLIANT"
	VerdictViolation VerdictKind = "VIOLATION"
)

// Reason names the rule that produced a verdict.
type Reason string

const (
	ReasonNone           Reason = "none"
	ReasonOverLimit      Reason = "over_limit"
	ReasonBlockedAppUsed Reason = "blocked_app_used"
)

// Verdict is the classification of one usage event under one policy snapshot.
type Verdict struct {
	Kind        VerdictKind `json:"verdict"`
	Reason      Reason      `json:"reason"`
	BlockedApps []string    `json:"blocked_apps,omitempty"`
}

// Compliant reports whether the day was compliant.
func (v Verdict) Compliant() bool {
	return v.Kind == VerdictCompliant
}

// ScoreLedger is a student's running score state.
type ScoreLedger struct {
	StudentID         string    `db:"student_id" json:"student_id"`
	Points            float64   `db:"points" json:"points"`
	CurrentStreakDays int       `db:"current_streak_days" json:"current_streak_days"`
	LongestStreakDays int       `db:"longest_streak_days" json:"longest_streak_days"`
	LastEvaluatedDate Date      `db:"last_evaluated_date" json:"last_evaluated_date"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}

// LedgerEntry records what one evaluation changed so it can be reversed exactly.
type LedgerEntry struct {
	StudentID         string      `db:"student_id" json:"student_id"`
	Date              Date        `db:"usage_date" json:"date"`
	Verdict           VerdictKind `db:"verdict" json:"verdict"`
	Reason            Reason      `db:"reason" json:"reason"`
	PointsDelta       float64     `db:"points_delta" json:"points_delta"`
	BonusApplied      bool        `db:"bonus_applied" json:"bonus_applied"`
	StreakBefore      int         `db:"streak_before" json:"streak_before"`
	LongestBefore     int         `db:"longest_before" json:"longest_before"`
	PrevEvaluatedDate Date        `db:"prev_evaluated_date" json:"prev_evaluated_date"`
	Backdated         bool        `db:"backdated" json:"backdated"`
	EvaluatedAt       time.Time   `db:"evaluated_at" json:"evaluated_at"`
}

// LedgerFilter bounds ledger history queries.
type LedgerFilter struct {
	From  Date
	To    Date
	Limit int
}
