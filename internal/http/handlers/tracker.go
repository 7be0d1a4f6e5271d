package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

type trackerRequest struct {
	TaskID  int64  `json:"task_id"`
	AppName string `json:"appname"`
}

func (h *Handler) trackerReady(c *gin.Context) bool {
	if h.Tracker == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "tracker control unavailable"})
		return false
	}
	return true
}

func (h *Handler) StartTracker(c *gin.Context) {
	if !h.trackerReady(c) {
		return
	}
	cl, ok := claims(c)
	if !ok {
		return
	}
	var req trackerRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.TaskID <= 0 || req.AppName == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing appname or task_id"})
		return
	}
	if _, err := h.Usage.Task(c.Request.Context(), cl, req.TaskID); err != nil {
		respondError(c, err)
		return
	}

	if err := h.Tracker.Start(c.Request.Context(), req.TaskID, req.AppName); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": fmt.Sprintf("Started tracking %s for task %d", req.AppName, req.TaskID)})
}

func (h *Handler) StopTracker(c *gin.Context) {
	if !h.trackerReady(c) {
		return
	}
	cl, ok := claims(c)
	if !ok {
		return
	}
	var req trackerRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.TaskID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing task_id"})
		return
	}
	if _, err := h.Usage.Task(c.Request.Context(), cl, req.TaskID); err != nil {
		respondError(c, err)
		return
	}

	if err := h.Tracker.Stop(c.Request.Context(), req.TaskID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": fmt.Sprintf("Stop requested for task %d", req.TaskID)})
}

// ActiveTrackers is polled by the desktop agent.
func (h *Handler) ActiveTrackers(c *gin.Context) {
	if !h.trackerReady(c) {
		return
	}
	cmds, err := h.Tracker.Active(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cmds)
}

func (h *Handler) ListApps(c *gin.Context) {
	apps, err := h.Apps.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, apps)
}
