package tasksync

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"screentime/internal/domain"
)

// Create inserts a task for the user and refetches.
func (s *Synchronizer) Create(ctx context.Context, userID uuid.UUID, t *domain.Task) error {
	if s.readOnly {
		return ErrReadOnly
	}
	t.UserID = userID
	if err := s.store.CreateTask(ctx, t); err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	_, err := s.refetch(ctx, userID, true)
	return err
}

// Toggle flips the completion flag. The current value is read from the
// store while the task is locked.
func (s *Synchronizer) Toggle(ctx context.Context, userID uuid.UUID, taskID int64) error {
	return s.mutate(ctx, userID, taskID, true, func(t domain.Task) error {
		return s.store.SetCompleted(ctx, taskID, !t.Completed)
	})
}

// Complete sets the completion flag outright.
func (s *Synchronizer) Complete(ctx context.Context, userID uuid.UUID, taskID int64, completed bool) error {
	return s.mutate(ctx, userID, taskID, false, func(domain.Task) error {
		return s.store.SetCompleted(ctx, taskID, completed)
	})
}

func (s *Synchronizer) Delete(ctx context.Context, userID uuid.UUID, taskID int64) error {
	return s.mutate(ctx, userID, taskID, false, func(domain.Task) error {
		return s.store.DeleteTask(ctx, taskID)
	})
}

func (s *Synchronizer) Activate(ctx context.Context, userID uuid.UUID, taskID int64) error {
	return s.mutate(ctx, userID, taskID, false, func(domain.Task) error {
		return s.store.SetActive(ctx, taskID, true)
	})
}

func (s *Synchronizer) Deactivate(ctx context.Context, userID uuid.UUID, taskID int64) error {
	return s.mutate(ctx, userID, taskID, false, func(domain.Task) error {
		return s.store.SetActive(ctx, taskID, false)
	})
}

// mutate runs fn with the task's lock held, through the refetch that
// follows the write. A failed mutation leaves the cached list untouched.
// fresh makes fn see the stored row rather than the cached one.
func (s *Synchronizer) mutate(ctx context.Context, userID uuid.UUID, taskID int64, fresh bool, fn func(domain.Task) error) error {
	if s.readOnly {
		return ErrReadOnly
	}

	unlock := s.locks.lock(taskID)
	defer unlock()

	t, err := s.current(ctx, userID, taskID, fresh)
	if err != nil {
		return err
	}
	if err := fn(t); err != nil {
		s.log.Error("task mutation failed", "task_id", taskID, "error", err)
		return fmt.Errorf("task %d: %w", taskID, err)
	}
	_, err = s.refetch(ctx, userID, true)
	return err
}

// current finds the user's task, in the cache unless fresh is set. A cache
// miss loads the list once before giving up.
func (s *Synchronizer) current(ctx context.Context, userID uuid.UUID, taskID int64, fresh bool) (domain.Task, error) {
	if !fresh {
		if t, ok := s.find(userID, taskID); ok {
			return t, nil
		}
	}
	if _, err := s.refetch(ctx, userID, fresh); err != nil {
		return domain.Task{}, err
	}
	t, ok := s.find(userID, taskID)
	if !ok {
		return domain.Task{}, fmt.Errorf("task %d: %w", taskID, ErrNotFound)
	}
	return t, nil
}

// taskLocks hands out one mutex per task id and forgets it once unused.
type taskLocks struct {
	mu    sync.Mutex
	locks map[int64]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newTaskLocks() *taskLocks {
	return &taskLocks{locks: make(map[int64]*refMutex)}
}

func (l *taskLocks) lock(id int64) func() {
	l.mu.Lock()
	m, ok := l.locks[id]
	if !ok {
		m = &refMutex{}
		l.locks[id] = m
	}
	m.refs++
	l.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		l.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}
