// Package dashboard is the terminal task view. It owns the task list
// synchronizer, the live/frozen reconciler and the usage feed for as long
// as the program runs.
package dashboard

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"

	"screentime/internal/domain"
	"screentime/internal/feed"
	"screentime/internal/logger"
	"screentime/internal/reconcile"
	"screentime/internal/service"
	"screentime/internal/tasksync"
	"screentime/internal/timefmt"
)

// Backend is everything the view needs from the API.
type Backend interface {
	tasksync.TaskStore
	reconcile.SnapshotSource
	reconcile.Tracker
	Progress(ctx context.Context, taskID int64, page int) (*service.Progress, error)
}

// Feed is the realtime usage connection.
type Feed interface {
	Connect(ctx context.Context) error
	Close() error
	State() feed.State
	Subscribe() (<-chan map[int64]int64, func())
}

type Deps struct {
	// UserID is whose tasks are shown.
	UserID uuid.UUID
	// ReadOnly is set when an admin browses another user's tasks.
	ReadOnly  bool
	Backend   Backend
	Feed      Feed
	MaxPasses int
	Now       func() time.Time
}

type viewMode int

const (
	listView viewMode = iota
	progressView
)

type (
	tasksMsg    tasksync.Event
	liveMsg     map[int64]int64
	tickMsg     time.Time
	selectedMsg struct{ taskID int64 }
	progressMsg struct{ p *service.Progress }
	doneMsg     struct {
		action string
		err    error
	}
	errMsg struct {
		action string
		err    error
	}
)

type Model struct {
	ctx      context.Context
	userID   uuid.UUID
	readOnly bool
	backend  Backend
	feed     Feed
	tasklist *tasksync.Synchronizer
	rec      *reconcile.Reconciler
	observe  *observer
	now      func() time.Time
	log      *slog.Logger

	syncEvents <-chan tasksync.Event
	liveEvents <-chan map[int64]int64
	unsubSync  func()
	unsubLive  func()
	closeOnce  sync.Once

	tasks    []domain.Task
	cursor   int
	selected int64
	mode     viewMode
	progress *service.Progress
	page     int
	status   string
	width    int
	height   int
}

func New(ctx context.Context, d Deps) *Model {
	now := d.Now
	if now == nil {
		now = time.Now
	}

	syncOpts := []tasksync.Option{tasksync.WithMaxPasses(d.MaxPasses)}
	recOpts := []reconcile.Option{reconcile.WithClock(now)}
	if d.ReadOnly {
		syncOpts = append(syncOpts, tasksync.ReadOnly())
		recOpts = append(recOpts, reconcile.WithoutTracker())
	}

	m := &Model{
		ctx:      ctx,
		userID:   d.UserID,
		readOnly: d.ReadOnly,
		backend:  d.Backend,
		feed:     d.Feed,
		tasklist: tasksync.New(d.Backend, syncOpts...),
		rec:      reconcile.New(d.Backend, d.Backend, recOpts...),
		now:      now,
		log:      logger.Component("dashboard"),
	}
	m.observe = newObserver(ctx, m.rec)
	m.syncEvents, m.unsubSync = m.tasklist.Subscribe()
	m.liveEvents, m.unsubLive = m.feed.Subscribe()
	return m
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		m.connectFeed(),
		m.refetch(),
		waitSync(m.syncEvents),
		waitLive(m.liveEvents),
		tick(),
	)
}

// Shutdown closes the feed and drops subscriptions. It runs once, whether
// the feed ever connected or not.
func (m *Model) Shutdown() {
	m.closeOnce.Do(func() {
		m.unsubSync()
		m.unsubLive()
		m.observe.close()
		if err := m.feed.Close(); err != nil {
			m.log.Warn("closing usage feed", "error", err)
		}
	})
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m, m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height

	case tickMsg:
		return m, tick()

	case tasksMsg:
		if msg.UserID != m.userID {
			return m, waitSync(m.syncEvents)
		}
		m.tasks = msg.Tasks
		m.clampCursor()
		if m.selected != 0 && m.taskByID(m.selected) == nil {
			m.selected = 0
			m.mode = listView
		}
		m.observe.push(msg.Tasks)
		return m, waitSync(m.syncEvents)

	case liveMsg:
		m.rec.SetLive(msg)
		return m, waitLive(m.liveEvents)

	case selectedMsg:
		m.selected = msg.taskID

	case progressMsg:
		m.progress = msg.p
		m.mode = progressView

	case doneMsg:
		if msg.err != nil {
			m.status = msg.action + " failed: " + describe(msg.err)
		} else {
			m.status = msg.action + " done"
		}

	case errMsg:
		m.status = msg.action + ": " + describe(msg.err)
	}
	return m, nil
}

func (m *Model) handleKey(k tea.KeyMsg) tea.Cmd {
	switch k.String() {
	case "q", "ctrl+c":
		m.Shutdown()
		return tea.Quit
	case "j", "down":
		if m.mode == listView && m.cursor < len(m.tasks)-1 {
			m.cursor++
		}
	case "k", "up":
		if m.mode == listView && m.cursor > 0 {
			m.cursor--
		}
	case "enter":
		if t := m.cursorTask(); t != nil {
			return m.selectTask(*t)
		}
	case "esc":
		m.mode = listView
	case "r":
		return m.refetch()
	case "a":
		return m.mutate("activate", m.tasklist.Activate)
	case "d":
		return m.mutate("deactivate", m.tasklist.Deactivate)
	case "t":
		return m.mutate("toggle", m.tasklist.Toggle)
	case "x":
		return m.mutate("delete", m.tasklist.Delete)
	case "p":
		if t := m.cursorTask(); t != nil {
			m.page = 0
			return m.loadProgress(t.ID, 0)
		}
	case "n", "right":
		if m.mode == progressView && m.progress != nil && m.page < m.progress.TotalPages-1 {
			m.page++
			return m.loadProgress(m.progress.TaskID, m.page)
		}
	case "b", "left":
		if m.mode == progressView && m.progress != nil && m.page > 0 {
			m.page--
			return m.loadProgress(m.progress.TaskID, m.page)
		}
	}
	return nil
}

func (m *Model) connectFeed() tea.Cmd {
	return func() tea.Msg {
		if err := m.feed.Connect(m.ctx); err != nil {
			return errMsg{action: "usage feed", err: err}
		}
		return nil
	}
}

func (m *Model) refetch() tea.Cmd {
	return func() tea.Msg {
		// success arrives through the subscription
		if _, err := m.tasklist.Refetch(m.ctx, m.userID); err != nil {
			return errMsg{action: "load tasks", err: err}
		}
		return nil
	}
}

func (m *Model) selectTask(t domain.Task) tea.Cmd {
	return func() tea.Msg {
		logs, err := m.backend.TodayLogs(m.ctx, t.ID, timefmt.DateOf(m.now()))
		if err != nil {
			// the reconciler still has the live and frozen tiers
			m.log.Warn("loading task logs", "task_id", t.ID, "error", err)
		}
		m.rec.Select(m.ctx, t, logs)
		return selectedMsg{taskID: t.ID}
	}
}

type mutation func(ctx context.Context, userID uuid.UUID, taskID int64) error

func (m *Model) mutate(action string, fn mutation) tea.Cmd {
	if m.readOnly {
		m.status = "read-only view"
		return nil
	}
	t := m.cursorTask()
	if t == nil {
		return nil
	}
	id := t.ID
	m.status = action + "..."
	return func() tea.Msg {
		return doneMsg{action: action, err: fn(m.ctx, m.userID, id)}
	}
}

func (m *Model) loadProgress(taskID int64, page int) tea.Cmd {
	return func() tea.Msg {
		p, err := m.backend.Progress(m.ctx, taskID, page)
		if err != nil {
			return errMsg{action: "progress", err: err}
		}
		return progressMsg{p: p}
	}
}

func (m *Model) cursorTask() *domain.Task {
	if m.cursor < 0 || m.cursor >= len(m.tasks) {
		return nil
	}
	return &m.tasks[m.cursor]
}

func (m *Model) taskByID(id int64) *domain.Task {
	for i := range m.tasks {
		if m.tasks[i].ID == id {
			return &m.tasks[i]
		}
	}
	return nil
}

func (m *Model) clampCursor() {
	if m.cursor >= len(m.tasks) {
		m.cursor = len(m.tasks) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

func waitSync(ch <-chan tasksync.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return nil
		}
		return tasksMsg(ev)
	}
}

func waitLive(ch <-chan map[int64]int64) tea.Cmd {
	return func() tea.Msg {
		live, ok := <-ch
		if !ok {
			return nil
		}
		return liveMsg(live)
	}
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func describe(err error) string {
	switch {
	case errors.Is(err, tasksync.ErrInvariantUnrestored):
		return "completed tasks are still active, press r to retry"
	case errors.Is(err, tasksync.ErrNotFound):
		return "task no longer exists"
	case errors.Is(err, tasksync.ErrReadOnly):
		return "read-only view"
	default:
		return err.Error()
	}
}
