// Command issue_token creates or updates a profile and prints a signed
// access token for it. Handy for local runs of the dashboard.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"screentime/internal/db"
	"screentime/internal/domain"
	"screentime/internal/logger"
	"screentime/internal/repository"
	"screentime/internal/service"
)

func main() {
	_ = godotenv.Load()
	logger.Init("info", false)

	id := flag.String("id", "", "profile id (uuid); random when empty")
	name := flag.String("name", "Test User", "full name")
	admin := flag.Bool("admin", false, "grant the admin role")
	ttl := flag.Duration("ttl", service.DefaultTokenTTL, "token lifetime")
	flag.Parse()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		logger.Fatal("DATABASE_URL not set")
	}

	userID := uuid.New()
	if *id != "" {
		var err error
		if userID, err = uuid.Parse(*id); err != nil {
			logger.Fatal("invalid -id", "error", err)
		}
	}
	role := domain.RoleUser
	if *admin {
		role = domain.RoleAdmin
	}

	pool := db.Connect(dsn)
	defer pool.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	repo := repository.NewProfileRepository(pool)
	if err := repo.Upsert(ctx, &domain.Profile{ID: userID, FullName: *name, Role: role}); err != nil {
		logger.Fatal("upsert profile", "error", err)
	}
	p, err := repo.GetByID(ctx, userID)
	if err != nil {
		logger.Fatal("read back profile", "error", err)
	}
	logger.Info("profile ready", "id", p.ID, "name", p.FullName, "role", p.Role)

	service.InitJWT(os.Getenv("JWT_SECRET"))
	token, err := service.GenerateJWT(p.ID, p.Role, *ttl)
	if err != nil {
		logger.Fatal("generate token", "error", err)
	}
	fmt.Println(token)
}
