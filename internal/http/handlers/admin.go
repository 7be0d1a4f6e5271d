package handlers

import (
	"net/http"

	"screentime/internal/domain"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ListUsers returns every regular user for the admin overview.
func (h *Handler) ListUsers(c *gin.Context) {
	users, err := h.Profiles.ListByRole(c.Request.Context(), domain.RoleUser)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, users)
}

// UserTasks shows another user's tasks without writing anything back.
func (h *Handler) UserTasks(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	tasks, err := h.Browse.Refetch(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tasks)
}
