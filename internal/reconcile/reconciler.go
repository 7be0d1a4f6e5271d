// Package reconcile decides which elapsed-seconds value to show for the
// selected task: the live feed counter, a frozen snapshot fetched from the
// server, or the last entry logged today.
package reconcile

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"screentime/internal/domain"
	"screentime/internal/logger"
	"screentime/internal/metrics"
	"screentime/internal/timefmt"
	"screentime/internal/usage"
)

// Tracker controls the desktop tracker process.
type Tracker interface {
	Start(ctx context.Context, taskID int64, appName string) error
	Stop(ctx context.Context, taskID int64, appName string) error
}

// SnapshotSource returns a task's log entries for one date.
type SnapshotSource interface {
	TodayLogs(ctx context.Context, taskID int64, date string) ([]domain.UsageEntry, error)
}

type Option func(*Reconciler)

func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) { r.now = now }
}

// WithoutTracker disables tracker commands, for read-only views.
func WithoutTracker() Option {
	return func(r *Reconciler) { r.tracker = nil }
}

type Reconciler struct {
	tracker   Tracker
	snapshots SnapshotSource
	now       func() time.Time
	log       *slog.Logger

	mu       sync.Mutex
	selected *domain.Task
	logs     []domain.UsageEntry
	frozen   *int64
	live     map[int64]int64
	// last is_active value seen per task; transitions are judged against it.
	seen map[int64]bool
}

func New(tracker Tracker, snapshots SnapshotSource, opts ...Option) *Reconciler {
	r := &Reconciler{
		tracker:   tracker,
		snapshots: snapshots,
		now:       time.Now,
		log:       logger.Component("reconcile"),
		live:      map[int64]int64{},
		seen:      map[int64]bool{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Select makes task the displayed one. logs are the task's own usage
// entries, used for the last-entry fallback.
func (r *Reconciler) Select(ctx context.Context, task domain.Task, logs []domain.UsageEntry) {
	r.mu.Lock()
	t := task
	r.selected = &t
	r.logs = logs
	r.frozen = nil
	if _, ok := r.seen[task.ID]; !ok {
		r.seen[task.ID] = task.IsActive
	}
	r.mu.Unlock()

	if !task.IsActive {
		r.refreshFrozen(ctx, task.ID)
	}
}

// Clear drops the selection.
func (r *Reconciler) Clear() {
	r.mu.Lock()
	r.selected = nil
	r.logs = nil
	r.frozen = nil
	r.mu.Unlock()
}

// Observe feeds a fresh task row. A change of is_active sends exactly one
// start or stop command; the first sighting of a task sends none.
func (r *Reconciler) Observe(ctx context.Context, task domain.Task) {
	r.mu.Lock()
	prev, known := r.seen[task.ID]
	r.seen[task.ID] = task.IsActive
	transition := known && prev != task.IsActive

	isSelected := r.selected != nil && r.selected.ID == task.ID
	if isSelected {
		t := task
		r.selected = &t
		if transition && task.IsActive {
			r.frozen = nil
		}
	}
	r.mu.Unlock()

	if transition {
		r.notify(ctx, task)
	}
	if isSelected && transition && !task.IsActive {
		r.refreshFrozen(ctx, task.ID)
	}
}

// ObserveAll feeds every row of a task list and forgets tasks that are gone.
func (r *Reconciler) ObserveAll(ctx context.Context, tasks []domain.Task) {
	present := make(map[int64]bool, len(tasks))
	for _, t := range tasks {
		present[t.ID] = true
		r.Observe(ctx, t)
	}

	r.mu.Lock()
	for id := range r.seen {
		if !present[id] {
			delete(r.seen, id)
		}
	}
	if r.selected != nil && !present[r.selected.ID] {
		r.selected = nil
		r.logs = nil
		r.frozen = nil
	}
	r.mu.Unlock()
}

// SetLive replaces the live usage mapping.
func (r *Reconciler) SetLive(live map[int64]int64) {
	if live == nil {
		live = map[int64]int64{}
	}
	r.mu.Lock()
	r.live = live
	r.mu.Unlock()
}

// Displayed returns the seconds to show for the selected task.
func (r *Reconciler) Displayed() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	t := r.selected
	if t == nil {
		return 0
	}
	if t.IsActive {
		return r.live[t.ID]
	}
	if r.frozen != nil {
		return *r.frozen
	}

	now := r.now()
	today := timefmt.DateOf(now)
	if t.UpdatedAt.IsZero() || timefmt.DateOf(t.UpdatedAt.In(now.Location())) != today {
		return 0
	}
	return usage.LastEntrySeconds(r.logs, today)
}

// Selected returns the selected task, if any.
func (r *Reconciler) Selected() (domain.Task, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.selected == nil {
		return domain.Task{}, false
	}
	return *r.selected, true
}

func (r *Reconciler) refreshFrozen(ctx context.Context, taskID int64) {
	if r.snapshots == nil {
		return
	}
	today := timefmt.DateOf(r.now())
	logs, err := r.snapshots.TodayLogs(ctx, taskID, today)
	if err != nil {
		r.log.Error("failed to fetch frozen usage", "task_id", taskID, "error", err)
		return
	}
	total := usage.TodaySeconds(logs, today)

	r.mu.Lock()
	defer r.mu.Unlock()
	// the selection may have moved on while fetching
	if r.selected == nil || r.selected.ID != taskID || r.selected.IsActive {
		return
	}
	r.frozen = &total
}

func (r *Reconciler) notify(ctx context.Context, task domain.Task) {
	if r.tracker == nil {
		return
	}
	var err error
	if task.IsActive {
		metrics.TrackerCommands.WithLabelValues("start").Inc()
		err = r.tracker.Start(ctx, task.ID, task.AppName)
	} else {
		metrics.TrackerCommands.WithLabelValues("stop").Inc()
		err = r.tracker.Stop(ctx, task.ID, task.AppName)
	}
	if err != nil {
		// not retried; the next transition sends a fresh command
		r.log.Error("tracker command failed", "task_id", task.ID, "active", task.IsActive, "error", err)
	}
}
