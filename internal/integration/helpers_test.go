package integration

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"screentime/internal/domain"
	"screentime/internal/repository"
)

// openDB connects to DATABASE_URL and applies every migration, skipping
// the test when no database is configured.
func openDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}

	pool, err := pgxpool.New(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	migDir := filepath.Join("..", "migrations")
	files, err := os.ReadDir(migDir)
	require.NoError(t, err)
	var names []string
	for _, f := range files {
		names = append(names, f.Name())
	}
	sort.Strings(names)
	for _, name := range names {
		b, err := os.ReadFile(filepath.Join(migDir, name))
		require.NoError(t, err)
		_, err = pool.Exec(context.Background(), string(b))
		require.NoError(t, err, "apply %s", name)
	}
	return pool
}

// newProfile creates a throwaway profile and removes it, with its tasks,
// when the test ends.
func newProfile(t *testing.T, pool *pgxpool.Pool, role string) domain.Profile {
	t.Helper()
	p := domain.Profile{ID: uuid.New(), FullName: "it-" + role, Role: role}
	require.NoError(t, repository.NewProfileRepository(pool).Upsert(context.Background(), &p))
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), `DELETE FROM profiles WHERE id = $1`, p.ID)
	})
	return p
}
