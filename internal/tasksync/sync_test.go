package tasksync

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"screentime/internal/domain"
)

type mockStore struct {
	mu        sync.Mutex
	tasks     map[int64]*domain.Task
	nextID    int64
	listCalls int
	setActive []int64
	// sticky ids ignore deactivation, simulating a store that keeps
	// reporting the violation.
	sticky  map[int64]bool
	listErr error
	failSet error
}

func newMockStore(tasks ...domain.Task) *mockStore {
	m := &mockStore{tasks: make(map[int64]*domain.Task), sticky: make(map[int64]bool)}
	for i := range tasks {
		t := tasks[i]
		m.tasks[t.ID] = &t
		if t.ID > m.nextID {
			m.nextID = t.ID
		}
	}
	return m
}

func (m *mockStore) ListTasks(_ context.Context, userID uuid.UUID) ([]domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []domain.Task
	for _, t := range m.tasks {
		if t.UserID == userID {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *mockStore) SetActive(_ context.Context, id int64, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSet != nil {
		return m.failSet
	}
	m.setActive = append(m.setActive, id)
	t, ok := m.tasks[id]
	if !ok {
		return errors.New("no such task")
	}
	if !m.sticky[id] {
		t.IsActive = active
	}
	return nil
}

func (m *mockStore) SetCompleted(_ context.Context, id int64, completed bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return errors.New("no such task")
	}
	t.Completed = completed
	return nil
}

func (m *mockStore) CreateTask(_ context.Context, t *domain.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	t.ID = m.nextID
	t.CreatedAt = time.Now()
	cp := *t
	m.tasks[t.ID] = &cp
	return nil
}

func (m *mockStore) DeleteTask(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tasks, id)
	return nil
}

func task(id int64, user uuid.UUID, completed, active bool, age time.Duration) domain.Task {
	return domain.Task{
		ID:        id,
		UserID:    user,
		Title:     "task",
		Completed: completed,
		IsActive:  active,
		CreatedAt: time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC).Add(-age),
	}
}

func TestFetchTasks_CleanList(t *testing.T) {
	user := uuid.New()
	store := newMockStore(
		task(1, user, false, true, 2*time.Hour),
		task(2, user, true, false, time.Hour),
	)
	s := New(store)

	tasks, err := s.FetchTasks(context.Background(), user)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, int64(2), tasks[0].ID, "newest first")
	assert.Equal(t, 1, store.listCalls)
	assert.Empty(t, store.setActive)
}

func TestFetchTasks_DeactivatesCompleted(t *testing.T) {
	user := uuid.New()
	store := newMockStore(
		task(1, user, true, true, time.Hour),
		task(2, user, true, true, 2*time.Hour),
		task(3, user, false, true, 3*time.Hour),
	)
	s := New(store)

	tasks, err := s.FetchTasks(context.Background(), user)
	require.NoError(t, err)
	for _, tk := range tasks {
		assert.False(t, tk.Violates(), "task %d", tk.ID)
	}
	assert.ElementsMatch(t, []int64{1, 2}, store.setActive)
	assert.Equal(t, 2, store.listCalls)
}

func TestFetchTasks_GivesUpAfterMaxPasses(t *testing.T) {
	user := uuid.New()
	store := newMockStore(task(1, user, true, true, time.Hour))
	store.sticky[1] = true
	s := New(store, WithMaxPasses(3))

	_, err := s.FetchTasks(context.Background(), user)
	assert.ErrorIs(t, err, ErrInvariantUnrestored)
	// three corrective passes plus the list that finds it still broken
	assert.Equal(t, 4, store.listCalls)
	assert.Len(t, store.setActive, 3)
}

func TestFetchTasks_SinglePassVerifiesCorrection(t *testing.T) {
	user := uuid.New()
	store := newMockStore(task(1, user, true, true, time.Hour))
	s := New(store, WithMaxPasses(1))

	tasks, err := s.FetchTasks(context.Background(), user)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.False(t, tasks[0].IsActive)
	assert.Equal(t, 2, store.listCalls)
}

func TestFetchTasks_ReadOnlyMasksWithoutWriting(t *testing.T) {
	user := uuid.New()
	store := newMockStore(task(1, user, true, true, time.Hour))
	s := New(store, ReadOnly())

	tasks, err := s.FetchTasks(context.Background(), user)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.False(t, tasks[0].IsActive)
	assert.Empty(t, store.setActive)
	assert.True(t, store.tasks[1].IsActive, "store untouched")

	assert.ErrorIs(t, s.Activate(context.Background(), user, 1), ErrReadOnly)
}

func TestFetchTasks_Errors(t *testing.T) {
	user := uuid.New()

	store := newMockStore()
	store.listErr = errors.New("connection refused")
	_, err := New(store).FetchTasks(context.Background(), user)
	assert.Error(t, err)

	store = newMockStore(task(1, user, true, true, time.Hour))
	store.failSet = errors.New("permission denied")
	_, err = New(store).FetchTasks(context.Background(), user)
	assert.ErrorContains(t, err, "deactivate completed task 1")
}

func TestRefetch_PublishesEvent(t *testing.T) {
	user := uuid.New()
	store := newMockStore(task(1, user, false, false, time.Hour))
	s := New(store)

	events, unsubscribe := s.Subscribe()
	defer unsubscribe()

	_, err := s.Refetch(context.Background(), user)
	require.NoError(t, err)

	select {
	case ev := <-events:
		assert.Equal(t, user, ev.UserID)
		assert.Len(t, ev.Tasks, 1)
	case <-time.After(time.Second):
		t.Fatal("no event")
	}
	assert.Len(t, s.Tasks(user), 1)
}

func TestSubscribe_KeepsLatest(t *testing.T) {
	user := uuid.New()
	store := newMockStore(task(1, user, false, false, time.Hour))
	s := New(store)
	events, unsubscribe := s.Subscribe()

	ctx := context.Background()
	_, err := s.Refetch(ctx, user)
	require.NoError(t, err)
	require.NoError(t, s.Create(ctx, user, &domain.Task{Title: "second"}))

	ev := <-events
	assert.Len(t, ev.Tasks, 2)

	unsubscribe()
	unsubscribe()
	_, open := <-events
	assert.False(t, open)
}

func TestMutations(t *testing.T) {
	user := uuid.New()
	store := newMockStore(task(1, user, false, false, time.Hour))
	s := New(store)
	ctx := context.Background()

	_, err := s.Refetch(ctx, user)
	require.NoError(t, err)

	require.NoError(t, s.Activate(ctx, user, 1))
	assert.True(t, s.Tasks(user)[0].IsActive)

	// Completing an active task: the refetch heals it.
	require.NoError(t, s.Toggle(ctx, user, 1))
	got := s.Tasks(user)[0]
	assert.True(t, got.Completed)
	assert.False(t, got.IsActive)

	require.NoError(t, s.Delete(ctx, user, 1))
	assert.Empty(t, s.Tasks(user))

	assert.ErrorIs(t, s.Deactivate(ctx, user, 1), ErrNotFound)
}

func TestTaskLocks_Serializes(t *testing.T) {
	l := newTaskLocks()
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := l.lock(7)
			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			inside--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxSeen)
	assert.Empty(t, l.locks)
}

func TestMutations_ColdCacheLoadsOwnListOnly(t *testing.T) {
	owner, stranger := uuid.New(), uuid.New()
	store := newMockStore(task(4, owner, false, false, 0))
	s := New(store)
	ctx := context.Background()

	require.NoError(t, s.Activate(ctx, owner, 4))
	assert.True(t, s.Tasks(owner)[0].IsActive)

	assert.ErrorIs(t, s.Deactivate(ctx, stranger, 4), ErrNotFound)
	assert.True(t, store.tasks[4].IsActive)
}

// gatedStore holds one ListTasks call after it has read the rows, so the
// fetch it belongs to returns a list older than later writes.
type gatedStore struct {
	*mockStore
	armed   chan struct{}
	entered chan struct{}
	release chan struct{}
}

func newGatedStore(m *mockStore) *gatedStore {
	return &gatedStore{
		mockStore: m,
		armed:     make(chan struct{}, 1),
		entered:   make(chan struct{}),
		release:   make(chan struct{}),
	}
}

func (g *gatedStore) ListTasks(ctx context.Context, userID uuid.UUID) ([]domain.Task, error) {
	tasks, err := g.mockStore.ListTasks(ctx, userID)
	select {
	case <-g.armed:
		close(g.entered)
		<-g.release
	default:
	}
	return tasks, err
}

func TestMutations_RefetchIgnoresFetchStartedBeforeWrite(t *testing.T) {
	user := uuid.New()
	store := newGatedStore(newMockStore(task(1, user, false, false, time.Hour)))
	s := New(store)
	ctx := context.Background()

	_, err := s.Refetch(ctx, user)
	require.NoError(t, err)

	events, unsubscribe := s.Subscribe()
	defer unsubscribe()

	store.armed <- struct{}{}
	staleDone := make(chan []domain.Task)
	go func() {
		tasks, _ := s.Refetch(ctx, user)
		staleDone <- tasks
	}()
	<-store.entered

	require.NoError(t, s.Activate(ctx, user, 1))
	assert.True(t, s.Tasks(user)[0].IsActive)

	close(store.release)
	stale := <-staleDone
	require.Len(t, stale, 1)
	assert.True(t, stale[0].IsActive, "late fetch hands back the newer list")
	assert.True(t, s.Tasks(user)[0].IsActive)

	ev := <-events
	assert.True(t, ev.Tasks[0].IsActive)
	select {
	case ev := <-events:
		t.Fatalf("stale list was published: %+v", ev.Tasks)
	default:
	}
}

type slowCompleteStore struct {
	*mockStore
}

func (s slowCompleteStore) SetCompleted(ctx context.Context, id int64, completed bool) error {
	time.Sleep(50 * time.Millisecond)
	return s.mockStore.SetCompleted(ctx, id, completed)
}

func TestToggle_ConcurrentTogglesCancelOut(t *testing.T) {
	user := uuid.New()
	store := newMockStore(task(1, user, false, false, time.Hour))
	s := New(slowCompleteStore{store})
	ctx := context.Background()

	_, err := s.Refetch(ctx, user)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.Toggle(ctx, user, 1)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	assert.False(t, store.tasks[1].Completed)
	assert.False(t, s.Tasks(user)[0].Completed)
}
