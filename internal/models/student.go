package models

import "time"

// Student is a learner enrolled in at most one class.
type Student struct {
	ID        string    `db:"id" json:"id"`
	FullName  string    `db:"full_name" json:"full_name"`
	Email     *string   `db:"email" json:"email,omitempty"`
	ClassID   *string   `db:"class_id" json:"class_id,omitempty"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// StudentStanding joins a student with its ledger values for class views.
type StudentStanding struct {
	StudentID         string  `db:"student_id" json:"student_id"`
	FullName          string  `db:"full_name" json:"full_name"`
	Points            float64 `db:"points" json:"points"`
	CurrentStreakDays int     `db:"current_streak_days" json:"current_streak_days"`
	LongestStreakDays int     `db:"longest_streak_days" json:"longest_streak_days"`
	LastEvaluatedDate Date    `db:"last_evaluated_date" json:"last_evaluated_date"`
}

// StudentFilter encapsulates allowed search parameters for listing students.
type StudentFilter struct {
	Search   string
	ClassID  string
	Page     int
	PageSize int
}

// Pagination describes a page of list results.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
