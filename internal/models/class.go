package models

import (
	"strings"
	"time"
)

// Class is a teacher's class group and carries the screen-time policy for its students.
type Class struct {
	ID                string    `db:"id" json:"id"`
	TeacherID         string    `db:"teacher_id" json:"teacher_id"`
	Name              string    `db:"name" json:"name"`
	SchoolYear        string    `db:"school_year" json:"school_year"`
	Description       string    `db:"description" json:"description"`
	DailyLimitMinutes int       `db:"daily_limit_minutes" json:"daily_limit_minutes"`
	WeekendMode       bool      `db:"weekend_mode" json:"weekend_mode"`
	StrictMode        bool      `db:"strict_mode" json:"strict_mode"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}

// ClassSummary extends Class with the number of enrolled students.
type ClassSummary struct {
	Class
	StudentCount int `db:"student_count" json:"student_count"`
}

// ClassFilter defines filter criteria for listing classes.
type ClassFilter struct {
	TeacherID string
	Search    string
	Page      int
	PageSize  int
}

// AppType marks an app rule as allowed or blocked.
type AppType string

const (
	AppTypeAllowed AppType = "allowed"
	AppTypeBlocked AppType = "blocked"
)

// Valid reports whether the type is one of the known values.
func (t AppType) Valid() bool {
	return t == AppTypeAllowed || t == AppTypeBlocked
}

// AppRule is a single entry of a class allow or block list.
type AppRule struct {
	ID        string    `db:"id" json:"id"`
	ClassID   string    `db:"class_id" json:"class_id"`
	AppName   string    `db:"app_name" json:"app_name"`
	AppKey    string    `db:"app_key" json:"-"`
	AppType   AppType   `db:"app_type" json:"app_type"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// AppKey normalises an app identifier; allow/block matching is case-insensitive.
func AppKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// ClassPolicy is the configuration the policy resolver consumes.
type ClassPolicy struct {
	ClassID           string              `json:"class_id"`
	DailyLimitMinutes int                 `json:"daily_limit_minutes"`
	WeekendMode       bool                `json:"weekend_mode"`
	StrictMode        bool                `json:"strict_mode"`
	Allow             map[string]struct{} `json:"-"`
	Block             map[string]struct{} `json:"-"`
}

// PolicyFor assembles the policy of a class from its rows.
func PolicyFor(class Class, rules []AppRule) ClassPolicy {
	policy := ClassPolicy{
		ClassID:           class.ID,
		DailyLimitMinutes: class.DailyLimitMinutes,
		WeekendMode:       class.WeekendMode,
		StrictMode:        class.StrictMode,
		Allow:             make(map[string]struct{}),
		Block:             make(map[string]struct{}),
	}
	for _, rule := range rules {
		key := rule.AppKey
		if key == "" {
			key = AppKey(rule.AppName)
		}
		switch rule.AppType {
		case AppTypeAllowed:
			policy.Allow[key] = struct{}{}
		case AppTypeBlocked:
			policy.Block[key] = struct{}{}
		}
	}
	return policy
}

// PolicySnapshot is the rule set in force for one class on one date.
type PolicySnapshot struct {
	Date                  Date                `json:"date"`
	EffectiveLimitMinutes int                 `json:"effective_limit_minutes"`
	WeekendDoubled        bool                `json:"weekend_doubled"`
	StrictMode            bool                `json:"strict_mode"`
	Allow                 map[string]struct{} `json:"-"`
	Block                 map[string]struct{} `json:"-"`
}
