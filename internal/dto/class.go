package dto

import "github.com/noah-isme/screentime-api/internal/models"

// CreateClassRequest captures the creation payload of a class. Omitted policy
// fields fall back to the configured defaults.
type CreateClassRequest struct {
	TeacherID         string `json:"teacher_id" validate:"required,max=64"`
	Name              string `json:"name" validate:"required,max=100"`
	SchoolYear        string `json:"school_year" validate:"max=20"`
	Description       string `json:"description" validate:"max=500"`
	DailyLimitMinutes *int   `json:"daily_limit_minutes"`
	WeekendMode       *bool  `json:"weekend_mode"`
	StrictMode        *bool  `json:"strict_mode"`
}

// UpdateClassRequest modifies the descriptive fields of a class.
type UpdateClassRequest struct {
	Name        string `json:"name" validate:"required,max=100"`
	SchoolYear  string `json:"school_year" validate:"max=20"`
	Description string `json:"description" validate:"max=500"`
}

// UpdatePolicyRequest replaces the policy values of a class. The limit range is
// checked by the scoring engine and reported as INVALID_CONFIG.
type UpdatePolicyRequest struct {
	DailyLimitMinutes int  `json:"daily_limit_minutes"`
	WeekendMode       bool `json:"weekend_mode"`
	StrictMode        bool `json:"strict_mode"`
}

// AddAppRuleRequest puts an app on the allow or block list of a class.
type AddAppRuleRequest struct {
	AppName string `json:"app_name" validate:"required,max=100"`
	AppType string `json:"app_type" validate:"required,oneof=allowed blocked"`
}

// ClassPolicyResponse is the resolved policy of a class for one date.
type ClassPolicyResponse struct {
	ClassID               string      `json:"class_id"`
	Date                  models.Date `json:"date"`
	DailyLimitMinutes     int         `json:"daily_limit_minutes"`
	EffectiveLimitMinutes int         `json:"effective_limit_minutes"`
	WeekendMode           bool        `json:"weekend_mode"`
	WeekendDoubled        bool        `json:"weekend_doubled"`
	StrictMode            bool        `json:"strict_mode"`
	AllowedApps           []string    `json:"allowed_apps"`
	BlockedApps           []string    `json:"blocked_apps"`
}
