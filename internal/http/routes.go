package http

import (
	"context"

	"screentime/internal/config"
	"screentime/internal/http/handlers"
	"screentime/internal/http/middleware"
	"screentime/internal/repository"
	"screentime/internal/service"
	"screentime/internal/tasksync"
	"screentime/internal/tracker"
	"screentime/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	redis "github.com/redis/go-redis/v9"
)

// NewHandler wires repositories and services over the pool. rdb may be
// nil, which disables tracker control.
func NewHandler(db *pgxpool.Pool, rdb *redis.Client, hub *ws.Hub, cfg *config.Config) *handlers.Handler {
	taskRepo := repository.NewTaskRepository(db)
	usageRepo := repository.NewScreenTimeRepository(db)

	h := &handlers.Handler{
		Tasks:    tasksync.New(taskRepo, tasksync.WithMaxPasses(cfg.SyncMaxPasses)),
		Browse:   tasksync.New(taskRepo, tasksync.WithMaxPasses(cfg.SyncMaxPasses), tasksync.ReadOnly()),
		Usage:    service.NewUsageService(taskRepo, usageRepo),
		Profiles: repository.NewProfileRepository(db),
		Apps:     service.NewAppCatalog(repository.NewAppRepository(db), cfg.AppCacheTTL),
		OnUsage:  hub.Notify,
	}
	if rdb != nil {
		h.Tracker = tracker.NewStore(rdb)
	}
	return h
}

// NewHealthHandler checks the pool and, when configured, Redis.
func NewHealthHandler(db *pgxpool.Pool, rdb *redis.Client, version string) *handlers.HealthHandler {
	extra := map[string]handlers.Pinger{}
	if rdb != nil {
		extra["redis"] = handlers.PingFunc(func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
	}
	return handlers.NewHealthHandler(db, version, extra)
}

func RegisterRoutes(r *gin.Engine, h *handlers.Handler, health *handlers.HealthHandler, hub *ws.Hub, cfg *config.Config) {
	r.Use(middleware.Metrics())

	// Health checks (no rate limiting)
	r.GET("/health", health.Health)
	r.GET("/healthz", health.Liveness)
	r.GET("/readyz", health.Readiness)

	r.GET("/ws/usage", ws.HandleUsage(hub, cfg.AllowedOrigin))

	v1 := r.Group("/api/v1")
	v1.Use(middleware.JWT(), middleware.RateLimit(cfg.APIRateLimit, cfg.APIRateWindow))
	registerAPIRoutes(v1, h)
}

func registerAPIRoutes(api *gin.RouterGroup, h *handlers.Handler) {
	api.GET("/me", h.Me)
	api.GET("/apps", h.ListApps)

	// Tasks
	api.GET("/tasks", h.ListTasks)
	api.POST("/tasks", h.CreateTask)
	api.PATCH("/tasks/:id", h.UpdateTask)
	api.PATCH("/tasks/:id/toggle", h.ToggleTask)
	api.DELETE("/tasks/:id", h.DeleteTask)
	api.POST("/tasks/:id/activate", h.ActivateTask)
	api.POST("/tasks/:id/deactivate", h.DeactivateTask)
	api.GET("/tasks/:id/progress", h.Progress)

	// Usage and the desktop tracker
	api.POST("/update-usage", h.UpdateUsage)
	api.GET("/screen-time", h.ScreenTime)
	api.POST("/start-tracker", h.StartTracker)
	api.POST("/stop-tracker", h.StopTracker)
	api.GET("/tracker/active", h.ActiveTrackers)
	api.POST("/tracker-installed", h.TrackerInstalled)

	admin := api.Group("/admin")
	admin.Use(middleware.AdminOnly(h.Profiles))
	{
		admin.GET("/users", h.ListUsers)
		admin.GET("/users/:id/tasks", h.UserTasks)
		admin.GET("/tasks/:id/progress", h.Progress)
	}
}
