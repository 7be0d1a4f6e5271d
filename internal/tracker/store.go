// Package tracker records start/stop commands for the desktop tracker
// agent in Redis. The agent polls the active set and reports usage back
// through /update-usage.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"screentime/internal/metrics"

	redis "github.com/redis/go-redis/v9"
)

const (
	activeKey = "tracker:active"

	StateRunning = "running"
	StateStopped = "stopped"
)

var ErrUnknownTask = errors.New("tracker: unknown task")

// Command is the last instruction recorded for a task.
type Command struct {
	TaskID    int64     `json:"task_id"`
	AppName   string    `json:"app_name"`
	State     string    `json:"state"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Store struct {
	rdb *redis.Client
	now func() time.Time
}

func NewStore(rdb *redis.Client) *Store {
	return &Store{rdb: rdb, now: time.Now}
}

func taskKey(id int64) string {
	return "tracker:task:" + strconv.FormatInt(id, 10)
}

func (s *Store) Start(ctx context.Context, taskID int64, appName string) error {
	metrics.TrackerCommands.WithLabelValues("start").Inc()
	_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, taskKey(taskID),
			"app_name", appName,
			"state", StateRunning,
			"updated_at", s.now().UTC().Format(time.RFC3339),
		)
		p.SAdd(ctx, activeKey, taskID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("tracker start %d: %w", taskID, err)
	}
	return nil
}

// Stop marks the task stopped. The app name is kept so the agent can
// tell which process to release.
func (s *Store) Stop(ctx context.Context, taskID int64) error {
	metrics.TrackerCommands.WithLabelValues("stop").Inc()
	_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, taskKey(taskID),
			"state", StateStopped,
			"updated_at", s.now().UTC().Format(time.RFC3339),
		)
		p.SRem(ctx, activeKey, taskID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("tracker stop %d: %w", taskID, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, taskID int64) (Command, error) {
	vals, err := s.rdb.HGetAll(ctx, taskKey(taskID)).Result()
	if err != nil {
		return Command{}, fmt.Errorf("tracker get %d: %w", taskID, err)
	}
	if len(vals) == 0 {
		return Command{}, ErrUnknownTask
	}
	return decode(taskID, vals), nil
}

// Active lists running tasks ordered by id.
func (s *Store) Active(ctx context.Context) ([]Command, error) {
	members, err := s.rdb.SMembers(ctx, activeKey).Result()
	if err != nil {
		return nil, fmt.Errorf("tracker active: %w", err)
	}

	ids := make([]int64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = s.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = p.HGetAll(ctx, taskKey(id))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("tracker active: %w", err)
	}

	out := make([]Command, 0, len(ids))
	for i, id := range ids {
		out = append(out, decode(id, cmds[i].Val()))
	}
	return out, nil
}

func decode(id int64, vals map[string]string) Command {
	c := Command{TaskID: id, AppName: vals["app_name"], State: vals["state"]}
	if ts, err := time.Parse(time.RFC3339, vals["updated_at"]); err == nil {
		c.UpdatedAt = ts
	}
	return c
}
