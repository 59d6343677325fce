package dto

import (
	"time"

	"github.com/noah-isme/screentime-api/internal/models"
)

// ClassDashboardResponse summarises compliance for a class.
type ClassDashboardResponse struct {
	ClassID            string                   `json:"class_id"`
	ClassName          string                   `json:"class_name"`
	StudentCount       int                      `json:"student_count"`
	AveragePoints      float64                  `json:"average_points"`
	ViolationsThisWeek int                      `json:"violations_this_week"`
	NeedsAttention     int                      `json:"needs_attention"`
	WeekStart          models.Date              `json:"week_start"`
	Students           []models.StudentStanding `json:"students"`
	GeneratedAt        time.Time                `json:"generated_at"`
}
