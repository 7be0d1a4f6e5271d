package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"screentime/internal/domain"
	"screentime/internal/timefmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ScreenTimeRepository struct {
	db *pgxpool.Pool
}

func NewScreenTimeRepository(db *pgxpool.Pool) *ScreenTimeRepository {
	return &ScreenTimeRepository{db: db}
}

func scanScreenTime(row pgx.Row, extra ...any) (domain.ScreenTime, error) {
	var (
		st  domain.ScreenTime
		raw []byte
	)
	dest := append([]any{&st.ID, &st.TaskID, &st.AppName, &raw, &st.UpdatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return st, err
	}
	entries, err := decodeEntries(raw)
	if err != nil {
		return st, fmt.Errorf("screen_time %d: %w", st.ID, err)
	}
	st.DurationMinutes = entries
	return st, nil
}

func decodeEntries(raw []byte) ([]domain.UsageEntry, error) {
	entries := []domain.UsageEntry{}
	if len(raw) == 0 {
		return entries, nil
	}
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("decode duration_minutes: %w", err)
	}
	if entries == nil {
		entries = []domain.UsageEntry{}
	}
	return entries, nil
}

// GetByTaskID returns the usage row of a task, ErrNotFound if it has none yet.
func (r *ScreenTimeRepository) GetByTaskID(ctx context.Context, taskID int64) (*domain.ScreenTime, error) {
	st, err := scanScreenTime(r.db.QueryRow(ctx,
		`SELECT id, task_id, COALESCE(app_name, ''), duration_minutes, updated_at
		 FROM screen_time
		 WHERE task_id = $1`,
		taskID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("screen_time for task %d: %w", taskID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// TodayLogs returns a task's entries for one date; none is not an error.
func (r *ScreenTimeRepository) TodayLogs(ctx context.Context, taskID int64, date string) ([]domain.UsageEntry, error) {
	st, err := r.GetByTaskID(ctx, taskID)
	if errors.Is(err, ErrNotFound) {
		return []domain.UsageEntry{}, nil
	}
	if err != nil {
		return nil, err
	}
	out := []domain.UsageEntry{}
	for _, e := range st.DurationMinutes {
		if e.Date == date {
			out = append(out, e)
		}
	}
	return out, nil
}

// ListActive returns the usage rows of every active task with its owner.
func (r *ScreenTimeRepository) ListActive(ctx context.Context) ([]domain.ScreenTime, error) {
	rows, err := r.db.Query(ctx,
		`SELECT s.id, s.task_id, COALESCE(s.app_name, ''), s.duration_minutes, s.updated_at, t.user_id
		 FROM screen_time s
		 JOIN tasks t ON t.id = s.task_id
		 WHERE t.is_active = TRUE`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	res := []domain.ScreenTime{}
	for rows.Next() {
		var owner uuid.UUID
		st, err := scanScreenTime(rows, &owner)
		if err != nil {
			return nil, err
		}
		st.UserID = owner
		res = append(res, st)
	}
	return res, rows.Err()
}

// AddUsage adds seconds to the task's entry for now's date, appending a new
// entry or inserting the row when missing. Concurrent first reports for a
// task meet on the task_id unique key and then queue on the row lock.
func (r *ScreenTimeRepository) AddUsage(ctx context.Context, taskID int64, appName string, seconds int64, now time.Time) (*domain.ScreenTime, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	date := timefmt.DateOf(now)
	clock := now.Format(time.TimeOnly)

	if _, err := tx.Exec(ctx,
		`INSERT INTO screen_time (task_id, app_name, date, duration_minutes, updated_at)
		 VALUES ($1, $2, $3, '[]'::jsonb, $4)
		 ON CONFLICT (task_id) DO NOTHING`,
		taskID, appName, date, now,
	); err != nil {
		return nil, err
	}

	st, err := scanScreenTime(tx.QueryRow(ctx,
		`SELECT id, task_id, COALESCE(app_name, ''), duration_minutes, updated_at
		 FROM screen_time
		 WHERE task_id = $1
		 FOR UPDATE`,
		taskID,
	))
	if err != nil {
		return nil, err
	}

	st.DurationMinutes = accumulate(st.DurationMinutes, date, clock, seconds)
	st.UpdatedAt = now
	raw, err := json.Marshal(st.DurationMinutes)
	if err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx,
		`UPDATE screen_time SET duration_minutes = $1::jsonb, updated_at = $2 WHERE id = $3`,
		string(raw), now, st.ID,
	); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &st, nil
}

// accumulate adds seconds to the first entry for date or appends one.
func accumulate(entries []domain.UsageEntry, date, clock string, seconds int64) []domain.UsageEntry {
	for i := range entries {
		if entries[i].Date == date {
			entries[i].Seconds += seconds
			entries[i].Time = clock
			return entries
		}
	}
	return append(entries, domain.UsageEntry{Date: date, Time: clock, Seconds: seconds})
}
