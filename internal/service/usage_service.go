package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"screentime/internal/domain"
	"screentime/internal/metrics"
	"screentime/internal/repository"
	"screentime/internal/timefmt"
	"screentime/internal/usage"
)

// DefaultUsageSeconds is credited when the tracker omits seconds.
const DefaultUsageSeconds = 60

var (
	ErrForbidden    = errors.New("forbidden")
	ErrInvalidUsage = errors.New("invalid usage report")
)

type TaskGetter interface {
	GetByID(ctx context.Context, id int64) (*domain.Task, error)
}

type UsageStore interface {
	AddUsage(ctx context.Context, taskID int64, appName string, seconds int64, now time.Time) (*domain.ScreenTime, error)
	GetByTaskID(ctx context.Context, taskID int64) (*domain.ScreenTime, error)
	TodayLogs(ctx context.Context, taskID int64, date string) ([]domain.UsageEntry, error)
}

// Progress is the per-task report behind the progress view.
type Progress struct {
	TaskID            int64                   `json:"task_id"`
	Title             string                  `json:"title"`
	Target            string                  `json:"target"`
	Days              []domain.DailyAggregate `json:"days"`
	Page              int                     `json:"page"`
	TotalPages        int                     `json:"total_pages"`
	AverageEfficiency *float64                `json:"average_efficiency"`
	TodaySeconds      int64                   `json:"today_seconds"`
}

type UsageService struct {
	tasks TaskGetter
	usage UsageStore
	now   func() time.Time
}

func NewUsageService(tasks TaskGetter, usage UsageStore) *UsageService {
	return &UsageService{tasks: tasks, usage: usage, now: time.Now}
}

// Task loads the task and checks the caller may see it.
func (s *UsageService) Task(ctx context.Context, caller Claims, taskID int64) (*domain.Task, error) {
	t, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if t.UserID != caller.UserID && !caller.IsAdmin() {
		return nil, ErrForbidden
	}
	return t, nil
}

// RecordUsage credits seconds to today's entry of the task.
func (s *UsageService) RecordUsage(ctx context.Context, caller Claims, taskID int64, appName string, seconds int64) (*domain.ScreenTime, error) {
	if seconds < 0 {
		return nil, fmt.Errorf("%w: negative seconds", ErrInvalidUsage)
	}
	if seconds == 0 {
		seconds = DefaultUsageSeconds
	}
	t, err := s.Task(ctx, caller, taskID)
	if err != nil {
		return nil, err
	}
	if appName == "" {
		appName = t.AppName
	}

	st, err := s.usage.AddUsage(ctx, taskID, appName, seconds, s.now())
	if err != nil {
		return nil, fmt.Errorf("record usage for task %d: %w", taskID, err)
	}
	metrics.UsageRecorded.WithLabelValues(appName).Add(float64(seconds))
	return st, nil
}

// DayLogs returns the task's entries for date, today when empty.
func (s *UsageService) DayLogs(ctx context.Context, caller Claims, taskID int64, date string) ([]domain.UsageEntry, error) {
	if date == "" {
		date = timefmt.DateOf(s.now())
	} else if _, err := time.Parse(timefmt.DateLayout, date); err != nil {
		return nil, fmt.Errorf("%w: bad date %q", ErrInvalidUsage, date)
	}
	if _, err := s.Task(ctx, caller, taskID); err != nil {
		return nil, err
	}
	return s.usage.TodayLogs(ctx, taskID, date)
}

// Progress aggregates the task's whole history and returns one zero-based
// page of it.
func (s *UsageService) Progress(ctx context.Context, caller Claims, taskID int64, page int) (*Progress, error) {
	t, err := s.Task(ctx, caller, taskID)
	if err != nil {
		return nil, err
	}

	var entries []domain.UsageEntry
	st, err := s.usage.GetByTaskID(ctx, taskID)
	switch {
	case err == nil:
		entries = st.DurationMinutes
	case errors.Is(err, repository.ErrNotFound):
	default:
		return nil, err
	}

	aggs, err := usage.Aggregate(taskID, entries, t.HoursPerDay)
	if err != nil {
		return nil, err
	}
	rows, pages := usage.Page(aggs, page, usage.DefaultPageSize)

	p := &Progress{
		TaskID:       t.ID,
		Title:        t.Title,
		Target:       t.HoursPerDay.String(),
		Days:         rows,
		Page:         page,
		TotalPages:   pages,
		TodaySeconds: usage.TodaySeconds(entries, timefmt.DateOf(s.now())),
	}
	if avg, ok := usage.AverageEfficiency(aggs); ok {
		p.AverageEfficiency = &avg
	}
	return p, nil
}
