package handlers

import (
	"errors"
	"net/http"

	"screentime/internal/domain"
	"screentime/internal/repository"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func (h *Handler) Me(c *gin.Context) {
	cl, ok := claims(c)
	if !ok {
		return
	}

	p, err := h.Profiles.GetByID(c.Request.Context(), cl.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		// a token holder without a profile row still gets its identity
		p = &domain.Profile{ID: cl.UserID, Role: domain.RoleUser}
	} else if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, p)
}

type trackerInstalledRequest struct {
	UserID string `json:"user_id"`
}

// TrackerInstalled flags the caller's profile once the desktop agent is set
// up. Admins may flag any user.
func (h *Handler) TrackerInstalled(c *gin.Context) {
	cl, ok := claims(c)
	if !ok {
		return
	}
	var req trackerInstalledRequest
	_ = c.ShouldBindJSON(&req)

	target := cl.UserID
	if req.UserID != "" && req.UserID != cl.UserID.String() {
		if !cl.IsAdmin() {
			c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		id, err := uuid.Parse(req.UserID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user_id"})
			return
		}
		target = id
	}

	if err := h.Profiles.SetTrackerInstalled(c.Request.Context(), target); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
