// Package changefeed listens for row change notifications that the
// migration triggers publish with pg_notify.
package changefeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"screentime/internal/logger"
	"screentime/internal/metrics"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	ChannelScreenTime = "screen_time_changes"
	ChannelTasks      = "tasks_changes"

	defaultRetry = 5 * time.Second
)

// Event is one changed row.
type Event struct {
	Channel string `json:"-"`
	Table   string `json:"table"`
	Op      string `json:"op"`
	ID      int64  `json:"id"`
	TaskID  int64  `json:"task_id,omitempty"`
}

// ParseNotification decodes a trigger payload. The table falls back to
// the channel name when the payload omits it.
func ParseNotification(channel, payload string) (Event, error) {
	var ev Event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return Event{}, fmt.Errorf("decode %s notification: %w", channel, err)
	}
	switch ev.Op {
	case "INSERT", "UPDATE", "DELETE":
	default:
		return Event{}, fmt.Errorf("decode %s notification: unknown op %q", channel, ev.Op)
	}
	ev.Channel = channel
	if ev.Table == "" {
		switch channel {
		case ChannelScreenTime:
			ev.Table = "screen_time"
		case ChannelTasks:
			ev.Table = "tasks"
		}
	}
	return ev, nil
}

type Listener struct {
	pool     *pgxpool.Pool
	channels []string
	handle   func(Event)
	retry    time.Duration
	log      *slog.Logger
}

func New(pool *pgxpool.Pool, handle func(Event)) *Listener {
	return &Listener{
		pool:     pool,
		channels: []string{ChannelScreenTime, ChannelTasks},
		handle:   handle,
		retry:    defaultRetry,
		log:      logger.Component("changefeed"),
	}
}

// Run listens until ctx is done, re-establishing the session after any
// connection error.
func (l *Listener) Run(ctx context.Context) {
	for {
		err := l.listen(ctx)
		if ctx.Err() != nil {
			return
		}
		l.log.Warn("change listener lost, retrying", "error", err, "in", l.retry)

		timer := time.NewTimer(l.retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (l *Listener) listen(ctx context.Context) error {
	pooled, err := l.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire: %w", err)
	}
	// a LISTENing session must not go back to the pool
	conn := pooled.Hijack()
	defer conn.Close(context.Background())

	for _, ch := range l.channels {
		if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{ch}.Sanitize()); err != nil {
			return fmt.Errorf("listen %s: %w", ch, err)
		}
	}
	l.log.Info("listening for row changes", "channels", l.channels)

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			return fmt.Errorf("wait: %w", err)
		}
		ev, err := ParseNotification(n.Channel, n.Payload)
		if err != nil {
			l.log.Warn("ignoring change notification", "error", err)
			continue
		}
		metrics.ChangeEvents.WithLabelValues(ev.Table, ev.Op).Inc()
		l.handle(ev)
	}
}
