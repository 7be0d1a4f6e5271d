package domain

import (
	"math"
	"time"

	"github.com/google/uuid"

	"screentime/internal/timefmt"
)

// Task is a tracked unit of work bound to one application and a daily
// time budget. A completed task must not stay active.
type Task struct {
	ID          int64          `db:"id" json:"id"`
	UserID      uuid.UUID      `db:"user_id" json:"user_id"`
	Title       string         `db:"title" json:"title"`
	AppName     string         `db:"appname" json:"app_name"`
	HoursPerDay timefmt.Target `db:"hours_perday" json:"hours_perday"`
	Deadline    *time.Time     `db:"deadline" json:"deadline,omitempty"`
	Completed   bool           `db:"status" json:"completed"`
	IsActive    bool           `db:"is_active" json:"is_active"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at" json:"updated_at"`
}

// Violates reports whether the task breaks the completed-implies-inactive rule.
func (t Task) Violates() bool {
	return t.Completed && t.IsActive
}

// DaysLeft counts whole days until the deadline, never below zero.
func (t Task) DaysLeft(now time.Time) int {
	if t.Deadline == nil {
		return 0
	}
	d := int(math.Ceil(t.Deadline.Sub(now).Hours() / 24))
	if d < 0 {
		return 0
	}
	return d
}

// DeadlineProgress is the elapsed share of the creation-to-deadline window, 0..1.
func (t Task) DeadlineProgress(now time.Time) float64 {
	if t.Deadline == nil {
		return 0
	}
	total := int(math.Ceil(t.Deadline.Sub(t.CreatedAt).Hours() / 24))
	if total < 1 {
		total = 1
	}
	p := 1 - float64(t.DaysLeft(now))/float64(total)
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}
