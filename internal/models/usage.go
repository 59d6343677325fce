package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// AppMinutes maps an app identifier to the minutes it was used.
type AppMinutes map[string]int

// Sum adds up the per-app minutes.
func (m AppMinutes) Sum() int {
	total := 0
	for _, minutes := range m {
		total += minutes
	}
	return total
}

// Apps returns the app identifiers in sorted order.
func (m AppMinutes) Apps() []string {
	apps := make([]string, 0, len(m))
	for app := range m {
		apps = append(apps, app)
	}
	sort.Strings(apps)
	return apps
}

// Value stores the mapping as a JSON document.
func (m AppMinutes) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	raw, err := json.Marshal(map[string]int(m))
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

// Scan decodes the JSON document written by Value.
func (m *AppMinutes) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*m = AppMinutes{}
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("cannot scan %T into AppMinutes", src)
	}
	decoded := map[string]int{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return fmt.Errorf("decode per-app minutes: %w", err)
	}
	*m = decoded
	return nil
}

// UsageEvent is one student's observed usage for one calendar day.
type UsageEvent struct {
	StudentID     string     `db:"student_id" json:"student_id"`
	Date          Date       `db:"usage_date" json:"date"`
	TotalMinutes  int        `db:"total_minutes" json:"total_minutes"`
	PerAppMinutes AppMinutes `db:"per_app_minutes" json:"per_app_minutes"`
	ReceivedAt    time.Time  `db:"received_at" json:"received_at"`
}
