package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

type updateUsageRequest struct {
	TaskID  int64  `json:"task_id"`
	AppName string `json:"app_name"`
	Seconds int64  `json:"seconds"`
}

// UpdateUsage is called by the desktop tracker once per elapsed slice.
func (h *Handler) UpdateUsage(c *gin.Context) {
	cl, ok := claims(c)
	if !ok {
		return
	}
	var req updateUsageRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.TaskID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "task_id required"})
		return
	}

	st, err := h.Usage.RecordUsage(c.Request.Context(), cl, req.TaskID, req.AppName, req.Seconds)
	if err != nil {
		respondError(c, err)
		return
	}
	if h.OnUsage != nil {
		h.OnUsage()
	}
	c.JSON(http.StatusOK, gin.H{
		"message":          fmt.Sprintf("Screen time updated for task %d", req.TaskID),
		"duration_minutes": st.DurationMinutes,
	})
}

// ScreenTime returns one day's log entries of a task.
func (h *Handler) ScreenTime(c *gin.Context) {
	cl, ok := claims(c)
	if !ok {
		return
	}
	taskID, err := strconv.ParseInt(c.Query("task_id"), 10, 64)
	if err != nil || taskID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "task_id required"})
		return
	}

	logs, err := h.Usage.DayLogs(c.Request.Context(), cl, taskID, c.Query("date"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"duration_minutes": logs})
}
