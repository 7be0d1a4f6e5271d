package dashboard

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"screentime/internal/domain"
	"screentime/internal/feed"
	"screentime/internal/service"
	"screentime/internal/timefmt"
)

var testNow = time.Date(2026, 10, 16, 11, 0, 0, 0, time.UTC)

type fakeBackend struct {
	mu       sync.Mutex
	tasks    []domain.Task
	logs     map[int64][]domain.UsageEntry
	progress *service.Progress
	started  []int64
	stopped  []int64
	commands []string
	writes   int
}

func (f *fakeBackend) ListTasks(_ context.Context, _ uuid.UUID) ([]domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Task(nil), f.tasks...), nil
}

func (f *fakeBackend) update(id int64, fn func(*domain.Task)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.tasks {
		if f.tasks[i].ID == id {
			fn(&f.tasks[i])
			f.writes++
			return nil
		}
	}
	return errors.New("missing")
}

func (f *fakeBackend) SetActive(_ context.Context, id int64, active bool) error {
	return f.update(id, func(t *domain.Task) { t.IsActive = active })
}

func (f *fakeBackend) SetCompleted(_ context.Context, id int64, completed bool) error {
	return f.update(id, func(t *domain.Task) { t.Completed = completed })
}

func (f *fakeBackend) CreateTask(_ context.Context, t *domain.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks = append(f.tasks, *t)
	return nil
}

func (f *fakeBackend) DeleteTask(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.tasks {
		if f.tasks[i].ID == id {
			f.tasks = append(f.tasks[:i], f.tasks[i+1:]...)
			return nil
		}
	}
	return errors.New("missing")
}

func (f *fakeBackend) TodayLogs(_ context.Context, id int64, _ string) ([]domain.UsageEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logs[id], nil
}

func (f *fakeBackend) Start(_ context.Context, id int64, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, id)
	f.commands = append(f.commands, "start")
	return nil
}

func (f *fakeBackend) Stop(_ context.Context, id int64, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = append(f.stopped, id)
	f.commands = append(f.commands, "stop")
	return nil
}

func (f *fakeBackend) Progress(_ context.Context, _ int64, page int) (*service.Progress, error) {
	if f.progress == nil {
		return nil, errors.New("no progress")
	}
	p := *f.progress
	p.Page = page
	return &p, nil
}

type fakeFeed struct {
	mu         sync.Mutex
	connectErr error
	closed     int
	ch         chan map[int64]int64
}

func newFakeFeed() *fakeFeed { return &fakeFeed{ch: make(chan map[int64]int64, 1)} }

func (f *fakeFeed) Connect(context.Context) error { return f.connectErr }

func (f *fakeFeed) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *fakeFeed) State() feed.State { return feed.Connected }

func (f *fakeFeed) Subscribe() (<-chan map[int64]int64, func()) {
	return f.ch, func() {}
}

var owner = uuid.MustParse("7b1c2f9e-3a4d-4e5f-8a6b-9c0d1e2f3a4b")

func newModel(t *testing.T, b *fakeBackend, readOnly bool) (*Model, *fakeFeed) {
	t.Helper()
	f := newFakeFeed()
	m := New(context.Background(), Deps{
		UserID:   owner,
		ReadOnly: readOnly,
		Backend:  b,
		Feed:     f,
		Now:      func() time.Time { return testNow },
	})
	t.Cleanup(m.Shutdown)
	return m, f
}

func sampleTasks() []domain.Task {
	return []domain.Task{
		{ID: 2, UserID: owner, Title: "Write report", AppName: "code", IsActive: true, HoursPerDay: timefmt.TargetFromHours(2), UpdatedAt: testNow},
		{ID: 1, UserID: owner, Title: "Read papers", AppName: "zotero", UpdatedAt: testNow},
	}
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func send(m *Model, msg tea.Msg) tea.Cmd {
	_, cmd := m.Update(msg)
	return cmd
}

func TestQuitClosesFeedEvenWithoutConnection(t *testing.T) {
	m, f := newModel(t, &fakeBackend{}, false)
	f.connectErr = errors.New("dial refused")

	msg := m.connectFeed()()
	send(m, msg)
	assert.Contains(t, m.View(), "dial refused")

	cmd := send(m, key("q"))
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())

	m.Shutdown()
	assert.Equal(t, 1, f.closed)
}

func TestTaskEventsFillList(t *testing.T) {
	m, _ := newModel(t, &fakeBackend{}, false)

	send(m, tasksMsg{UserID: owner, Tasks: sampleTasks()})
	view := m.View()
	assert.Contains(t, view, "Write report")
	assert.Contains(t, view, "Read papers")

	// another user's list is ignored
	send(m, tasksMsg{UserID: uuid.New(), Tasks: nil})
	assert.Len(t, m.tasks, 2)

	send(m, key("j"))
	send(m, key("j"))
	assert.Equal(t, 1, m.cursor)

	send(m, tasksMsg{UserID: owner, Tasks: sampleTasks()[:1]})
	assert.Equal(t, 0, m.cursor)
}

func TestSelectedActiveTaskShowsLiveSeconds(t *testing.T) {
	b := &fakeBackend{tasks: sampleTasks()}
	m, _ := newModel(t, b, false)
	send(m, tasksMsg{UserID: owner, Tasks: sampleTasks()})

	cmd := send(m, key("enter"))
	require.NotNil(t, cmd)
	send(m, cmd())
	assert.Equal(t, int64(2), m.selected)

	send(m, liveMsg{2: 180})
	assert.Contains(t, m.View(), "3 min")
}

func TestSelectedInactiveTaskShowsFrozen(t *testing.T) {
	b := &fakeBackend{
		tasks: sampleTasks(),
		logs:  map[int64][]domain.UsageEntry{1: {{Date: "2026-10-16", Seconds: 45}}},
	}
	m, _ := newModel(t, b, false)
	send(m, tasksMsg{UserID: owner, Tasks: sampleTasks()})

	send(m, key("j"))
	send(m, send(m, key("enter"))())
	assert.Contains(t, m.View(), "45 sec")
}

func TestMutationKeysGoThroughSynchronizer(t *testing.T) {
	b := &fakeBackend{tasks: sampleTasks()}
	m, _ := newModel(t, b, false)
	send(m, tasksMsg{UserID: owner, Tasks: sampleTasks()})

	send(m, key("j"))
	cmd := send(m, key("a"))
	require.NotNil(t, cmd)
	send(m, cmd())
	assert.Equal(t, "activate done", m.status)
	assert.True(t, b.tasks[1].IsActive)

	cmd = send(m, key("t"))
	send(m, cmd())
	assert.True(t, b.tasks[1].Completed)
	assert.False(t, b.tasks[1].IsActive, "completed task was deactivated on refetch")

	cmd = send(m, key("x"))
	send(m, cmd())
	assert.Len(t, b.tasks, 1)
}

func TestReadOnlyRefusesMutations(t *testing.T) {
	b := &fakeBackend{tasks: sampleTasks()}
	m, _ := newModel(t, b, true)
	send(m, tasksMsg{UserID: owner, Tasks: sampleTasks()})

	for _, k := range []string{"a", "d", "t", "x"} {
		assert.Nil(t, send(m, key(k)), k)
	}
	assert.Equal(t, "read-only view", m.status)
	assert.Zero(t, b.writes)
	assert.Contains(t, m.View(), "read-only")
}

func TestProgressPages(t *testing.T) {
	eff := 75.0
	b := &fakeBackend{
		tasks: sampleTasks(),
		progress: &service.Progress{
			TaskID: 2, Title: "Write report", TotalPages: 2, AverageEfficiency: &eff,
			Days: []domain.DailyAggregate{{Date: "2026-10-16", ActualLabel: "1 hr 30 min", TargetLabel: "2 hrs", Efficiency: &eff, Badge: "Good"}},
		},
	}
	m, _ := newModel(t, b, false)
	send(m, tasksMsg{UserID: owner, Tasks: sampleTasks()})

	send(m, send(m, key("p"))())
	view := m.View()
	assert.Contains(t, view, "Good")
	assert.Contains(t, view, "75.0%")
	assert.Contains(t, view, "page 1/2")

	send(m, send(m, key("n"))())
	assert.Equal(t, 1, m.progress.Page)
	assert.Nil(t, send(m, key("n")), "already on the last page")

	send(m, key("esc"))
	assert.Equal(t, listView, m.mode)
}

func TestTaskListsObservedInOrder(t *testing.T) {
	b := &fakeBackend{}
	m, _ := newModel(t, b, false)

	list := func(active bool) tasksMsg {
		return tasksMsg{UserID: owner, Tasks: []domain.Task{{ID: 7, UserID: owner, AppName: "code", IsActive: active}}}
	}
	// first sighting is silent, then one start and one stop
	for _, active := range []bool{false, true, false, false, true, false} {
		send(m, list(active))
	}

	assert.Eventually(t, func() bool {
		b.mu.Lock()
		defer b.mu.Unlock()
		return len(b.started) == 2 && len(b.stopped) == 2
	}, 2*time.Second, 10*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	b.mu.Lock()
	defer b.mu.Unlock()
	assert.Equal(t, []string{"start", "stop", "start", "stop"}, b.commands)
	assert.Equal(t, []int64{7, 7}, b.started)
}
