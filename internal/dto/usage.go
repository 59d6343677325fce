package dto

import "github.com/noah-isme/screentime-api/internal/models"

// SubmitUsageRequest is one day of usage for the student in the path.
type SubmitUsageRequest struct {
	Date          string         `json:"date" validate:"required,datetime=2006-01-02"`
	TotalMinutes  *int           `json:"total_minutes" validate:"required"`
	PerAppMinutes map[string]int `json:"per_app_minutes"`
}

// BatchUsageItem is a usage summary addressed to a student.
type BatchUsageItem struct {
	StudentID string `json:"student_id" validate:"required"`
	SubmitUsageRequest
}

// BatchUsageRequest submits many usage summaries for asynchronous evaluation.
type BatchUsageRequest struct {
	Events []BatchUsageItem `json:"events" validate:"required,min=1,max=500,dive"`
}

// BatchUsageResponse acknowledges a batch.
type BatchUsageResponse struct {
	BatchID  string `json:"batch_id"`
	Accepted int    `json:"accepted"`
	Rejected int    `json:"rejected"`
}

// EvaluationResponse reports the outcome of one usage submission.
type EvaluationResponse struct {
	StudentID string      `json:"student_id"`
	Date      models.Date `json:"date"`
	models.Verdict
	Outcome    string              `json:"outcome"`
	Ledger     models.ScoreLedger  `json:"ledger"`
	Milestones []models.Milestone  `json:"milestones"`
	Level      models.Level        `json:"level"`
	Policy     ClassPolicyResponse `json:"policy"`
}

// LedgerResponse is a student's ledger with its presentation level.
type LedgerResponse struct {
	models.ScoreLedger
	Level models.Level `json:"level"`
}

// MilestonesResponse lists a student's badges.
type MilestonesResponse struct {
	StudentID  string             `json:"student_id"`
	Milestones []models.Milestone `json:"milestones"`
	Level      models.Level       `json:"level"`
}
