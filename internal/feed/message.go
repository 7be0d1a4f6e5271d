package feed

import (
	"encoding/json"
	"fmt"

	"screentime/internal/domain"
	"screentime/internal/usage"
)

// Row is one element of a usage feed message.
type Row struct {
	TaskID          int64               `json:"task_id"`
	DurationMinutes []domain.UsageEntry `json:"duration_minutes"`
}

// ParseSnapshot decodes a feed message into task id -> seconds logged on
// today. The result is a complete replacement, never a delta.
func ParseSnapshot(msg []byte, today string) (map[int64]int64, error) {
	var rows []Row
	if err := json.Unmarshal(msg, &rows); err != nil {
		return nil, fmt.Errorf("decode usage message: %w", err)
	}

	out := make(map[int64]int64, len(rows))
	for _, r := range rows {
		if r.TaskID == 0 {
			return nil, fmt.Errorf("decode usage message: row without task_id")
		}
		out[r.TaskID] += usage.TodaySeconds(r.DurationMinutes, today)
	}
	return out, nil
}
