package repository

import (
	"context"
	"errors"
	"fmt"

	"screentime/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("not found")

const taskColumns = `id, user_id, title, COALESCE(appname, ''), hours_perday, deadline, status, is_active, created_at, updated_at`

type TaskRepository struct {
	db *pgxpool.Pool
}

func NewTaskRepository(db *pgxpool.Pool) *TaskRepository {
	return &TaskRepository{db: db}
}

func scanTask(row pgx.Row) (domain.Task, error) {
	var t domain.Task
	err := row.Scan(
		&t.ID,
		&t.UserID,
		&t.Title,
		&t.AppName,
		&t.HoursPerDay,
		&t.Deadline,
		&t.Completed,
		&t.IsActive,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	return t, err
}

// ListTasks returns the user's tasks, newest first.
func (r *TaskRepository) ListTasks(ctx context.Context, userID uuid.UUID) ([]domain.Task, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+taskColumns+`
		 FROM tasks
		 WHERE user_id = $1
		 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	res := []domain.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r *TaskRepository) GetByID(ctx context.Context, id int64) (*domain.Task, error) {
	t, err := scanTask(r.db.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("task %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *TaskRepository) CreateTask(ctx context.Context, t *domain.Task) error {
	return r.db.QueryRow(ctx,
		`INSERT INTO tasks (user_id, title, appname, hours_perday, deadline, status, is_active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, created_at, updated_at`,
		t.UserID, t.Title, t.AppName, t.HoursPerDay, t.Deadline, t.Completed, t.IsActive,
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
}

func (r *TaskRepository) SetActive(ctx context.Context, id int64, active bool) error {
	return r.exec(ctx, id, `UPDATE tasks SET is_active = $1, updated_at = NOW() WHERE id = $2`, active, id)
}

func (r *TaskRepository) SetCompleted(ctx context.Context, id int64, completed bool) error {
	return r.exec(ctx, id, `UPDATE tasks SET status = $1, updated_at = NOW() WHERE id = $2`, completed, id)
}

func (r *TaskRepository) DeleteTask(ctx context.Context, id int64) error {
	return r.exec(ctx, id, `DELETE FROM tasks WHERE id = $1`, id)
}

func (r *TaskRepository) exec(ctx context.Context, id int64, sql string, args ...any) error {
	tag, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("task %d: %w", id, ErrNotFound)
	}
	return nil
}
