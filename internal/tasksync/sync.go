// Package tasksync keeps a user's task list in step with the store and
// heals completed tasks that are still marked active.
package tasksync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"screentime/internal/domain"
	"screentime/internal/logger"
	"screentime/internal/metrics"
)

const DefaultMaxPasses = 3

var (
	ErrInvariantUnrestored = errors.New("completed tasks still active after corrective passes")
	ErrReadOnly            = errors.New("task list is read-only")
	ErrNotFound            = errors.New("task not found")
)

// TaskStore is the persisted side of the task list.
type TaskStore interface {
	// ListTasks returns the user's tasks, newest created_at first.
	ListTasks(ctx context.Context, userID uuid.UUID) ([]domain.Task, error)
	SetActive(ctx context.Context, taskID int64, active bool) error
	SetCompleted(ctx context.Context, taskID int64, completed bool) error
	CreateTask(ctx context.Context, t *domain.Task) error
	DeleteTask(ctx context.Context, taskID int64) error
}

// Event announces a fresh task list for a user.
type Event struct {
	UserID uuid.UUID
	Tasks  []domain.Task
}

type Option func(*Synchronizer)

// WithMaxPasses caps the corrective passes FetchTasks makes.
func WithMaxPasses(n int) Option {
	return func(s *Synchronizer) {
		if n > 0 {
			s.maxPasses = n
		}
	}
}

// ReadOnly builds a synchronizer for browsing another user's tasks:
// no corrective writes, mutations refused.
func ReadOnly() Option {
	return func(s *Synchronizer) { s.readOnly = true }
}

type Synchronizer struct {
	store     TaskStore
	maxPasses int
	readOnly  bool
	log       *slog.Logger

	group singleflight.Group
	locks *taskLocks

	fetchSeq atomic.Uint64

	mu        sync.Mutex
	cached    map[uuid.UUID][]domain.Task
	cachedSeq map[uuid.UUID]uint64
	subs      map[int]chan Event
	nextSub   int
}

func New(store TaskStore, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		store:     store,
		maxPasses: DefaultMaxPasses,
		log:       logger.Component("tasksync"),
		locks:     newTaskLocks(),
		cached:    make(map[uuid.UUID][]domain.Task),
		cachedSeq: make(map[uuid.UUID]uint64),
		subs:      make(map[int]chan Event),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FetchTasks lists the user's tasks and deactivates any that are completed
// yet still active. Up to maxPasses corrective passes run, each followed by
// a fresh list that decides whether the invariant holds.
func (s *Synchronizer) FetchTasks(ctx context.Context, userID uuid.UUID) ([]domain.Task, error) {
	for pass := 0; ; pass++ {
		tasks, err := s.store.ListTasks(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("list tasks: %w", err)
		}

		var violating []int64
		for _, t := range tasks {
			if t.Violates() {
				violating = append(violating, t.ID)
			}
		}
		if len(violating) == 0 {
			return tasks, nil
		}

		if s.readOnly {
			// Another user's list: show the healed view without writing.
			for i := range tasks {
				if tasks[i].Violates() {
					tasks[i].IsActive = false
				}
			}
			return tasks, nil
		}
		if pass == s.maxPasses {
			break
		}

		for _, id := range violating {
			if err := s.store.SetActive(ctx, id, false); err != nil {
				return nil, fmt.Errorf("deactivate completed task %d: %w", id, err)
			}
			metrics.InvariantCorrections.Inc()
		}
		s.log.Info("deactivated completed tasks", "user_id", userID, "count", len(violating), "pass", pass+1)
	}

	metrics.InvariantFailures.Inc()
	return nil, fmt.Errorf("user %s: %w", userID, ErrInvariantUnrestored)
}

// Refetch fetches the list, caches it and notifies subscribers.
// Concurrent refetches for one user share a single fetch.
func (s *Synchronizer) Refetch(ctx context.Context, userID uuid.UUID) ([]domain.Task, error) {
	return s.refetch(ctx, userID, false)
}

// refetch with fresh set never joins a fetch that was already running, so
// the result reflects every write the caller made before calling it.
func (s *Synchronizer) refetch(ctx context.Context, userID uuid.UUID, fresh bool) ([]domain.Task, error) {
	key := userID.String()
	if fresh {
		s.group.Forget(key)
	}
	v, err, _ := s.group.Do(key, func() (any, error) {
		seq := s.fetchSeq.Add(1)
		tasks, err := s.FetchTasks(ctx, userID)
		if err != nil {
			return nil, err
		}
		return s.cache(userID, seq, tasks), nil
	})
	if err != nil {
		s.log.Error("refetch failed", "user_id", userID, "error", err)
		return nil, err
	}
	return v.([]domain.Task), nil
}

// cache stores tasks unless a fetch that started later already landed, in
// which case the newer list is kept and returned.
func (s *Synchronizer) cache(userID uuid.UUID, seq uint64, tasks []domain.Task) []domain.Task {
	s.mu.Lock()
	if seq < s.cachedSeq[userID] {
		newer := append([]domain.Task(nil), s.cached[userID]...)
		s.mu.Unlock()
		return newer
	}
	s.cachedSeq[userID] = seq
	s.cached[userID] = tasks
	s.mu.Unlock()

	s.publish(Event{UserID: userID, Tasks: tasks})
	return tasks
}

// Tasks returns the last fetched list for the user.
func (s *Synchronizer) Tasks(userID uuid.UUID) []domain.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Task, len(s.cached[userID]))
	copy(out, s.cached[userID])
	return out
}

// Subscribe returns a channel of task list events. Only the latest event
// is kept for a slow reader.
func (s *Synchronizer) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 1)

	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.mu.Unlock()

	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(ch)
		}
	}
}

func (s *Synchronizer) publish(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- ev:
			continue
		default:
		}
		// drop the stale event
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- ev:
		default:
		}
	}
}

func (s *Synchronizer) find(userID uuid.UUID, taskID int64) (domain.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.cached[userID] {
		if t.ID == taskID {
			return t, true
		}
	}
	return domain.Task{}, false
}
