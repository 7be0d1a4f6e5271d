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

type ProfileRepository struct {
	db *pgxpool.Pool
}

func NewProfileRepository(db *pgxpool.Pool) *ProfileRepository {
	return &ProfileRepository{db: db}
}

func (r *ProfileRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Profile, error) {
	var p domain.Profile
	err := r.db.QueryRow(ctx,
		`SELECT id, COALESCE(full_name, ''), role, tracker_installed
		 FROM profiles
		 WHERE id = $1`,
		id,
	).Scan(&p.ID, &p.FullName, &p.Role, &p.TrackerInstalled)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("profile %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *ProfileRepository) ListByRole(ctx context.Context, role string) ([]domain.Profile, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, COALESCE(full_name, ''), role, tracker_installed
		 FROM profiles
		 WHERE role = $1
		 ORDER BY full_name`,
		role,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	res := []domain.Profile{}
	for rows.Next() {
		var p domain.Profile
		if err := rows.Scan(&p.ID, &p.FullName, &p.Role, &p.TrackerInstalled); err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

// Upsert creates or renames a profile; used by the token tool.
func (r *ProfileRepository) Upsert(ctx context.Context, p *domain.Profile) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO profiles (id, full_name, role)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO UPDATE SET full_name = EXCLUDED.full_name, role = EXCLUDED.role`,
		p.ID, p.FullName, p.Role,
	)
	return err
}

func (r *ProfileRepository) SetTrackerInstalled(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `UPDATE profiles SET tracker_installed = TRUE WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("profile %s: %w", id, ErrNotFound)
	}
	return nil
}
