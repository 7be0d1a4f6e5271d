package domain

import (
	"time"

	"github.com/google/uuid"
)

// UsageEntry is one recorded slice of elapsed seconds for a task on a date.
// Entries for the same date add up; they never replace each other.
type UsageEntry struct {
	Date    string `json:"date"`
	Time    string `json:"time,omitempty"`
	Seconds int64  `json:"seconds"`
}

// ScreenTime is the per-task usage row. DurationMinutes keeps its store
// name even though entries carry seconds.
type ScreenTime struct {
	ID              int64        `db:"id" json:"id"`
	TaskID          int64        `db:"task_id" json:"task_id"`
	AppName         string       `db:"app_name" json:"app_name"`
	DurationMinutes []UsageEntry `db:"duration_minutes" json:"duration_minutes"`
	UpdatedAt       time.Time    `db:"updated_at" json:"updated_at"`

	// Owner of the task, filled by joins; not part of the feed payload.
	UserID uuid.UUID `db:"user_id" json:"-"`
}

// DailyAggregate is the derived actual-vs-target row for one date.
// Efficiency is nil when the task has no usable target.
type DailyAggregate struct {
	Date          string   `json:"date"`
	ActualSeconds int64    `json:"actual_seconds"`
	ActualMinutes float64  `json:"actual_minutes"`
	ActualLabel   string   `json:"actual_label"`
	TargetMinutes float64  `json:"target_minutes"`
	TargetLabel   string   `json:"target_label"`
	Efficiency    *float64 `json:"efficiency"`
	Badge         string   `json:"badge"`
}

func (a DailyAggregate) HasTarget() bool { return a.Efficiency != nil }
