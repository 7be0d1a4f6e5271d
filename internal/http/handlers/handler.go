package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"screentime/internal/domain"
	"screentime/internal/http/middleware"
	"screentime/internal/repository"
	"screentime/internal/service"
	"screentime/internal/tasksync"
	"screentime/internal/tracker"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type ProfileStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Profile, error)
	ListByRole(ctx context.Context, role string) ([]domain.Profile, error)
	SetTrackerInstalled(ctx context.Context, id uuid.UUID) error
}

type TrackerControl interface {
	Start(ctx context.Context, taskID int64, appName string) error
	Stop(ctx context.Context, taskID int64) error
	Active(ctx context.Context) ([]tracker.Command, error)
}

type Handler struct {
	// Tasks heals and mutates the caller's own list.
	Tasks *tasksync.Synchronizer
	// Browse is read-only, for admins looking at other users.
	Browse   *tasksync.Synchronizer
	Usage    *service.UsageService
	Profiles ProfileStore
	Apps     service.AppLister
	Tracker  TrackerControl
	// OnUsage is called after usage is recorded; the usage hub pushes on it.
	OnUsage func()
}

func claims(c *gin.Context) (service.Claims, bool) {
	cl, ok := middleware.ClaimsFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "redirect": "/login"})
	}
	return cl, ok
}

func paramID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

// respondError maps domain errors onto status codes. Nothing here is
// retried; the client decides.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, tasksync.ErrNotFound), errors.Is(err, tracker.ErrUnknownTask):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, service.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	case errors.Is(err, tasksync.ErrReadOnly):
		c.JSON(http.StatusForbidden, gin.H{"error": "read-only"})
	case errors.Is(err, service.ErrInvalidUsage):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, tasksync.ErrInvariantUnrestored):
		c.JSON(http.StatusConflict, gin.H{"error": "completed tasks are still active, try again"})
	case errors.Is(err, context.Canceled):
		c.Status(499)
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
