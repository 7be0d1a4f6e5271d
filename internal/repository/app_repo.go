package repository

import (
	"context"

	"screentime/internal/domain"

	"github.com/jackc/pgx/v5/pgxpool"
)

type AppRepository struct {
	db *pgxpool.Pool
}

func NewAppRepository(db *pgxpool.Pool) *AppRepository {
	return &AppRepository{db: db}
}

func (r *AppRepository) List(ctx context.Context) ([]domain.App, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, app_name, COALESCE(display_name, app_name) FROM app_registry ORDER BY display_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	res := []domain.App{}
	for rows.Next() {
		var a domain.App
		if err := rows.Scan(&a.ID, &a.Name, &a.DisplayName); err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}
