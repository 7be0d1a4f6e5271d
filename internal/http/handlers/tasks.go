package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"screentime/internal/domain"
	"screentime/internal/timefmt"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func (h *Handler) ListTasks(c *gin.Context) {
	cl, ok := claims(c)
	if !ok {
		return
	}
	tasks, err := h.Tasks.Refetch(c.Request.Context(), cl.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tasks)
}

type createTaskRequest struct {
	Title       string         `json:"title"`
	AppName     string         `json:"app_name"`
	HoursPerDay timefmt.Target `json:"hours_perday"`
	Deadline    string         `json:"deadline"`
}

func (h *Handler) CreateTask(c *gin.Context) {
	cl, ok := claims(c)
	if !ok {
		return
	}

	var req createTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad request"})
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "title required"})
		return
	}
	if _, err := req.HoursPerDay.Hours(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "hours_perday must be HH:MM:SS or hours"})
		return
	}

	t := &domain.Task{
		Title:       req.Title,
		AppName:     req.AppName,
		HoursPerDay: req.HoursPerDay,
	}
	if req.Deadline != "" {
		d, err := time.Parse(timefmt.DateLayout, req.Deadline)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "deadline must be YYYY-MM-DD"})
			return
		}
		t.Deadline = &d
	}

	if err := h.Tasks.Create(c.Request.Context(), cl.UserID, t); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

type mutation func(ctx context.Context, userID uuid.UUID, taskID int64) error

func (h *Handler) ToggleTask(c *gin.Context)     { h.mutateTask(c, h.Tasks.Toggle) }
func (h *Handler) DeleteTask(c *gin.Context)     { h.mutateTask(c, h.Tasks.Delete) }
func (h *Handler) ActivateTask(c *gin.Context)   { h.mutateTask(c, h.Tasks.Activate) }
func (h *Handler) DeactivateTask(c *gin.Context) { h.mutateTask(c, h.Tasks.Deactivate) }

// mutateTask answers with the refetched list so the caller never has to
// patch its own copy.
func (h *Handler) mutateTask(c *gin.Context, fn mutation) {
	cl, ok := claims(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := fn(c.Request.Context(), cl.UserID, id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.Tasks.Tasks(cl.UserID))
}

type updateTaskRequest struct {
	Completed *bool `json:"completed"`
	IsActive  *bool `json:"is_active"`
}

// UpdateTask applies explicit flag values, unlike ToggleTask.
func (h *Handler) UpdateTask(c *gin.Context) {
	cl, ok := claims(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req updateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil || (req.Completed == nil && req.IsActive == nil) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "completed or is_active required"})
		return
	}

	ctx := c.Request.Context()
	if req.Completed != nil {
		if err := h.Tasks.Complete(ctx, cl.UserID, id, *req.Completed); err != nil {
			respondError(c, err)
			return
		}
	}
	if req.IsActive != nil {
		fn := h.Tasks.Deactivate
		if *req.IsActive {
			fn = h.Tasks.Activate
		}
		if err := fn(ctx, cl.UserID, id); err != nil {
			respondError(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, h.Tasks.Tasks(cl.UserID))
}

func (h *Handler) Progress(c *gin.Context) {
	cl, ok := claims(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "0"))

	p, err := h.Usage.Progress(c.Request.Context(), cl, id, page)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}
