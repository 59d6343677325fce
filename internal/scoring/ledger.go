package scoring

import (
	"time"

	"github.com/noah-isme/screentime-api/internal/models"
	appErrors "github.com/noah-isme/screentime-api/pkg/errors"
)

// Outcome describes how Apply treated an evaluation.
type Outcome string

const (
	// OutcomeApplied is a first evaluation of a date after the last evaluated one.
	OutcomeApplied Outcome = "applied"
	// OutcomeReapplied replaced the evaluation of the most recent date.
	OutcomeReapplied Outcome = "reapplied"
	// OutcomeBackdated touched only points for a date before the most recent one.
	OutcomeBackdated Outcome = "backdated"
	// OutcomeUnchanged means the date already carried the same verdict.
	OutcomeUnchanged Outcome = "unchanged"
)

// Result is the ledger state after Apply together with the entry to persist.
type Result struct {
	Ledger  models.ScoreLedger
	Entry   models.LedgerEntry
	Outcome Outcome
}

// Changed reports whether the ledger or entry must be written.
func (r Result) Changed() bool {
	return r.Outcome != OutcomeUnchanged
}

// NewLedger is the state of a freshly enrolled student.
func NewLedger(studentID string, rules Rules, now time.Time) models.ScoreLedger {
	rules = rules.WithDefaults()
	return models.ScoreLedger{
		StudentID: studentID,
		Points:    rules.StartingPoints,
		UpdatedAt: now,
	}
}

// Apply folds one verdict for date into the ledger. prior is the entry already
// recorded for the same student and date, if any.
//
// Dates after the last evaluated date move the ledger forward. Re-evaluating
// the last evaluated date first reverses its recorded entry. Dates before it
// only adjust points: streaks are forward-only counters and are not replayed.
func Apply(ledger models.ScoreLedger, prior *models.LedgerEntry, date models.Date, verdict models.Verdict, rules Rules, now time.Time) (Result, error) {
	if date.IsZero() {
		return Result{}, appErrors.Clone(appErrors.ErrInvalidUsageEvent, "date is required")
	}
	if verdict.Kind != models.VerdictCompliant && verdict.Kind != models.VerdictViolation {
		return Result{}, appErrors.Clone(appErrors.ErrValidation, "unknown verdict")
	}
	rules = rules.WithDefaults()

	if prior != nil && prior.Verdict == verdict.Kind && prior.Reason == verdict.Reason {
		return Result{Ledger: ledger, Entry: *prior, Outcome: OutcomeUnchanged}, nil
	}

	last := ledger.LastEvaluatedDate
	switch {
	case last.IsZero() || date.After(last):
		return forward(ledger, date, verdict, rules, now, OutcomeApplied), nil
	case prior != nil && !prior.Backdated && date.Equal(last):
		reverted := reverse(ledger, *prior)
		return forward(reverted, date, verdict, rules, now, OutcomeReapplied), nil
	default:
		return backdated(ledger, prior, date, verdict, rules, now), nil
	}
}

func forward(ledger models.ScoreLedger, date models.Date, verdict models.Verdict, rules Rules, now time.Time, outcome Outcome) Result {
	entry := models.LedgerEntry{
		StudentID:         ledger.StudentID,
		Date:              date,
		Verdict:           verdict.Kind,
		Reason:            verdict.Reason,
		StreakBefore:      ledger.CurrentStreakDays,
		LongestBefore:     ledger.LongestStreakDays,
		PrevEvaluatedDate: ledger.LastEvaluatedDate,
		EvaluatedAt:       now,
	}

	if rules.ResetStreakOnGap && !ledger.LastEvaluatedDate.IsZero() && date.DaysSince(ledger.LastEvaluatedDate) > 1 {
		ledger.CurrentStreakDays = 0
	}

	var delta float64
	if verdict.Compliant() {
		ledger.CurrentStreakDays++
		if ledger.CurrentStreakDays > ledger.LongestStreakDays {
			ledger.LongestStreakDays = ledger.CurrentStreakDays
		}
		delta = rules.PointStep
		if ledger.CurrentStreakDays%rules.StreakBonusPeriod == 0 {
			delta += rules.StreakBonus
			entry.BonusApplied = true
		}
	} else {
		ledger.CurrentStreakDays = 0
		delta = -rules.PointStep
	}

	before := ledger.Points
	ledger.Points = clampPoints(before + delta)
	ledger.LastEvaluatedDate = date
	ledger.UpdatedAt = now

	entry.PointsDelta = roundPoints(ledger.Points - before)
	return Result{Ledger: ledger, Entry: entry, Outcome: outcome}
}

// reverse undoes a forward entry recorded for the ledger's last evaluated date.
func reverse(ledger models.ScoreLedger, entry models.LedgerEntry) models.ScoreLedger {
	ledger.Points = clampPoints(ledger.Points - entry.PointsDelta)
	ledger.CurrentStreakDays = entry.StreakBefore
	ledger.LongestStreakDays = entry.LongestBefore
	ledger.LastEvaluatedDate = entry.PrevEvaluatedDate
	return ledger
}

func backdated(ledger models.ScoreLedger, prior *models.LedgerEntry, date models.Date, verdict models.Verdict, rules Rules, now time.Time) Result {
	points := ledger.Points
	if prior != nil {
		points = clampPoints(points - prior.PointsDelta)
	}

	delta := rules.PointStep
	if !verdict.Compliant() {
		delta = -rules.PointStep
	}
	after := clampPoints(points + delta)

	ledger.Points = after
	ledger.UpdatedAt = now

	entry := models.LedgerEntry{
		StudentID:         ledger.StudentID,
		Date:              date,
		Verdict:           verdict.Kind,
		Reason:            verdict.Reason,
		PointsDelta:       roundPoints(after - points),
		StreakBefore:      ledger.CurrentStreakDays,
		LongestBefore:     ledger.LongestStreakDays,
		PrevEvaluatedDate: ledger.LastEvaluatedDate,
		Backdated:         true,
		EvaluatedAt:       now,
	}
	return Result{Ledger: ledger, Entry: entry, Outcome: OutcomeBackdated}
}
