package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"screentime/internal/domain"
	"screentime/internal/http/middleware"
	"screentime/internal/repository"
	"screentime/internal/service"
	"screentime/internal/tasksync"
	"screentime/internal/timefmt"
	"screentime/internal/tracker"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore backs tasks, usage and profiles for handler tests.
type memStore struct {
	mu       sync.Mutex
	tasks    map[int64]*domain.Task
	usage    map[int64]*domain.ScreenTime
	profiles map[uuid.UUID]*domain.Profile
	nextID   int64
}

func newMemStore() *memStore {
	return &memStore{
		tasks:    map[int64]*domain.Task{},
		usage:    map[int64]*domain.ScreenTime{},
		profiles: map[uuid.UUID]*domain.Profile{},
	}
}

func (m *memStore) ListTasks(_ context.Context, userID uuid.UUID) ([]domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.Task{}
	for _, t := range m.tasks {
		if t.UserID == userID {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *memStore) update(id int64, fn func(*domain.Task)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return repository.ErrNotFound
	}
	fn(t)
	return nil
}

func (m *memStore) SetActive(_ context.Context, id int64, active bool) error {
	return m.update(id, func(t *domain.Task) { t.IsActive = active })
}

func (m *memStore) SetCompleted(_ context.Context, id int64, completed bool) error {
	return m.update(id, func(t *domain.Task) { t.Completed = completed })
}

func (m *memStore) CreateTask(_ context.Context, t *domain.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	t.ID = m.nextID
	cp := *t
	m.tasks[t.ID] = &cp
	return nil
}

func (m *memStore) DeleteTask(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tasks, id)
	return nil
}

func (m *memStore) GetByID(_ context.Context, id int64) (*domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task %d: %w", id, repository.ErrNotFound)
	}
	cp := *t
	return &cp, nil
}

func (m *memStore) AddUsage(_ context.Context, taskID int64, app string, seconds int64, now time.Time) (*domain.ScreenTime, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.usage[taskID]
	if !ok {
		st = &domain.ScreenTime{TaskID: taskID, AppName: app}
		m.usage[taskID] = st
	}
	date := timefmt.DateOf(now)
	for i := range st.DurationMinutes {
		if st.DurationMinutes[i].Date == date {
			st.DurationMinutes[i].Seconds += seconds
			return st, nil
		}
	}
	st.DurationMinutes = append(st.DurationMinutes, domain.UsageEntry{Date: date, Seconds: seconds})
	return st, nil
}

func (m *memStore) GetByTaskID(_ context.Context, taskID int64) (*domain.ScreenTime, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.usage[taskID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return st, nil
}

func (m *memStore) TodayLogs(ctx context.Context, taskID int64, date string) ([]domain.UsageEntry, error) {
	st, err := m.GetByTaskID(ctx, taskID)
	if errors.Is(err, repository.ErrNotFound) {
		return []domain.UsageEntry{}, nil
	}
	out := []domain.UsageEntry{}
	for _, e := range st.DurationMinutes {
		if e.Date == date {
			out = append(out, e)
		}
	}
	return out, nil
}

type profileStore struct{ m *memStore }

func (p profileStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Profile, error) {
	p.m.mu.Lock()
	defer p.m.mu.Unlock()
	pr, ok := p.m.profiles[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *pr
	return &cp, nil
}

func (p profileStore) ListByRole(_ context.Context, role string) ([]domain.Profile, error) {
	p.m.mu.Lock()
	defer p.m.mu.Unlock()
	out := []domain.Profile{}
	for _, pr := range p.m.profiles {
		if pr.Role == role {
			out = append(out, *pr)
		}
	}
	return out, nil
}

func (p profileStore) SetTrackerInstalled(_ context.Context, id uuid.UUID) error {
	p.m.mu.Lock()
	defer p.m.mu.Unlock()
	pr, ok := p.m.profiles[id]
	if !ok {
		return repository.ErrNotFound
	}
	pr.TrackerInstalled = true
	return nil
}

type staticApps []domain.App

func (s staticApps) List(context.Context) ([]domain.App, error) { return s, nil }

type env struct {
	router *gin.Engine
	store  *memStore
	redis  *miniredis.Miniredis
	pushes int
	user   uuid.UUID
	admin  uuid.UUID
}

func newEnv(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)
	service.InitJWT("handler-secret")

	e := &env{store: newMemStore(), user: uuid.New(), admin: uuid.New()}
	e.store.profiles[e.user] = &domain.Profile{ID: e.user, FullName: "Ada", Role: domain.RoleUser}
	e.store.profiles[e.admin] = &domain.Profile{ID: e.admin, FullName: "Root", Role: domain.RoleAdmin}

	e.redis = miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: e.redis.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	profiles := profileStore{e.store}
	h := &Handler{
		Tasks:    tasksync.New(e.store),
		Browse:   tasksync.New(e.store, tasksync.ReadOnly()),
		Usage:    service.NewUsageService(e.store, e.store),
		Profiles: profiles,
		Apps:     staticApps{{ID: 1, Name: "code", DisplayName: "VS Code"}},
		Tracker:  tracker.NewStore(rdb),
		OnUsage:  func() { e.pushes++ },
	}

	r := gin.New()
	api := r.Group("/api/v1", middleware.JWT())
	api.GET("/me", h.Me)
	api.GET("/apps", h.ListApps)
	api.GET("/tasks", h.ListTasks)
	api.POST("/tasks", h.CreateTask)
	api.PATCH("/tasks/:id", h.UpdateTask)
	api.PATCH("/tasks/:id/toggle", h.ToggleTask)
	api.DELETE("/tasks/:id", h.DeleteTask)
	api.POST("/tasks/:id/activate", h.ActivateTask)
	api.POST("/tasks/:id/deactivate", h.DeactivateTask)
	api.GET("/tasks/:id/progress", h.Progress)
	api.POST("/update-usage", h.UpdateUsage)
	api.GET("/screen-time", h.ScreenTime)
	api.POST("/start-tracker", h.StartTracker)
	api.POST("/stop-tracker", h.StopTracker)
	api.GET("/tracker/active", h.ActiveTrackers)
	api.POST("/tracker-installed", h.TrackerInstalled)
	admin := api.Group("/admin", middleware.AdminOnly(profiles))
	admin.GET("/users", h.ListUsers)
	admin.GET("/users/:id/tasks", h.UserTasks)
	e.router = r
	return e
}

func (e *env) do(t *testing.T, as uuid.UUID, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	tok, err := service.GenerateJWT(as, domain.RoleUser, time.Hour)
	require.NoError(t, err)

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestTasks_CreateListMutate(t *testing.T) {
	e := newEnv(t)

	w := e.do(t, e.user, http.MethodPost, "/api/v1/tasks",
		`{"title":"Write report","app_name":"code","hours_perday":"02:00:00","deadline":"2026-12-01"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[domain.Task](t, w)
	assert.Equal(t, "Write report", created.Title)
	require.NotNil(t, created.Deadline)

	w = e.do(t, e.user, http.MethodPost, fmt.Sprintf("/api/v1/tasks/%d/activate", created.ID), "")
	require.Equal(t, http.StatusOK, w.Code)
	tasks := decode[[]domain.Task](t, w)
	require.Len(t, tasks, 1)
	assert.True(t, tasks[0].IsActive)

	// completing an active task comes back deactivated
	w = e.do(t, e.user, http.MethodPatch, fmt.Sprintf("/api/v1/tasks/%d/toggle", created.ID), "")
	require.Equal(t, http.StatusOK, w.Code)
	tasks = decode[[]domain.Task](t, w)
	assert.True(t, tasks[0].Completed)
	assert.False(t, tasks[0].IsActive)

	w = e.do(t, e.user, http.MethodDelete, fmt.Sprintf("/api/v1/tasks/%d", created.ID), "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[[]domain.Task](t, w))
}

func TestTasks_UpdateExplicitFlags(t *testing.T) {
	e := newEnv(t)
	e.store.tasks[2] = &domain.Task{ID: 2, UserID: e.user}

	w := e.do(t, e.user, http.MethodPatch, "/api/v1/tasks/2", `{"is_active":true}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, e.store.tasks[2].IsActive)

	// sending the same value twice is idempotent, unlike toggle
	for i := 0; i < 2; i++ {
		w = e.do(t, e.user, http.MethodPatch, "/api/v1/tasks/2", `{"completed":true}`)
		require.Equal(t, http.StatusOK, w.Code)
	}
	assert.True(t, e.store.tasks[2].Completed)
	assert.False(t, e.store.tasks[2].IsActive)

	assert.Equal(t, http.StatusBadRequest, e.do(t, e.user, http.MethodPatch, "/api/v1/tasks/2", `{}`).Code)
}

func TestTasks_CreateValidation(t *testing.T) {
	e := newEnv(t)
	for _, body := range []string{
		`{"title":"  "}`,
		`{"title":"x","hours_perday":"2:00"}`,
		`{"title":"x","deadline":"tomorrow"}`,
		`not json`,
	} {
		w := e.do(t, e.user, http.MethodPost, "/api/v1/tasks", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}
}

func TestTasks_ListHealsViolations(t *testing.T) {
	e := newEnv(t)
	e.store.tasks[1] = &domain.Task{ID: 1, UserID: e.user, Completed: true, IsActive: true}

	w := e.do(t, e.user, http.MethodGet, "/api/v1/tasks", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decode[[]domain.Task](t, w)[0].IsActive)
	assert.False(t, e.store.tasks[1].IsActive)
}

func TestTasks_CannotTouchOthers(t *testing.T) {
	e := newEnv(t)
	other := uuid.New()
	e.store.tasks[5] = &domain.Task{ID: 5, UserID: other}

	w := e.do(t, e.user, http.MethodPost, "/api/v1/tasks/5/activate", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.False(t, e.store.tasks[5].IsActive)

	w = e.do(t, e.user, http.MethodGet, "/api/v1/tasks/5/progress", "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = e.do(t, e.user, http.MethodPost, "/api/v1/tasks/abc/activate", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUsage_RecordAndRead(t *testing.T) {
	e := newEnv(t)
	e.store.tasks[1] = &domain.Task{ID: 1, UserID: e.user, AppName: "code", HoursPerDay: timefmt.TargetFromHours(1)}

	w := e.do(t, e.user, http.MethodPost, "/api/v1/update-usage", `{"task_id":1}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = e.do(t, e.user, http.MethodPost, "/api/v1/update-usage", `{"task_id":1,"seconds":30}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, e.pushes)

	w = e.do(t, e.user, http.MethodGet, "/api/v1/screen-time?task_id=1", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[struct {
		DurationMinutes []domain.UsageEntry `json:"duration_minutes"`
	}](t, w)
	require.Len(t, body.DurationMinutes, 1)
	assert.Equal(t, int64(90), body.DurationMinutes[0].Seconds)

	w = e.do(t, e.user, http.MethodGet, "/api/v1/tasks/1/progress", "")
	require.Equal(t, http.StatusOK, w.Code)
	p := decode[service.Progress](t, w)
	require.Len(t, p.Days, 1)
	assert.Equal(t, 1.5, p.Days[0].ActualMinutes)

	assert.Equal(t, http.StatusBadRequest, e.do(t, e.user, http.MethodPost, "/api/v1/update-usage", `{}`).Code)
	assert.Equal(t, http.StatusBadRequest, e.do(t, e.user, http.MethodPost, "/api/v1/update-usage", `{"task_id":1,"seconds":-1}`).Code)
	assert.Equal(t, http.StatusBadRequest, e.do(t, e.user, http.MethodGet, "/api/v1/screen-time", "").Code)
}

func TestTracker_StartStopActive(t *testing.T) {
	e := newEnv(t)
	e.store.tasks[3] = &domain.Task{ID: 3, UserID: e.user}

	w := e.do(t, e.user, http.MethodPost, "/api/v1/start-tracker", `{"task_id":3,"appname":"code"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = e.do(t, e.user, http.MethodGet, "/api/v1/tracker/active", "")
	require.Equal(t, http.StatusOK, w.Code)
	cmds := decode[[]tracker.Command](t, w)
	require.Len(t, cmds, 1)
	assert.Equal(t, "code", cmds[0].AppName)

	w = e.do(t, e.user, http.MethodPost, "/api/v1/stop-tracker", `{"task_id":3}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "stopped", e.redis.HGet("tracker:task:3", "state"))

	w = e.do(t, e.user, http.MethodPost, "/api/v1/start-tracker", `{"task_id":3}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestProfileEndpoints(t *testing.T) {
	e := newEnv(t)

	w := e.do(t, e.user, http.MethodGet, "/api/v1/me", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Ada", decode[domain.Profile](t, w).FullName)

	w = e.do(t, e.user, http.MethodPost, "/api/v1/tracker-installed", `{}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, e.store.profiles[e.user].TrackerInstalled)

	w = e.do(t, e.user, http.MethodPost, "/api/v1/tracker-installed", fmt.Sprintf(`{"user_id":%q}`, e.admin))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = e.do(t, e.user, http.MethodGet, "/api/v1/apps", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]domain.App](t, w), 1)
}

func TestAdmin_ReadOnlyBrowse(t *testing.T) {
	e := newEnv(t)
	e.store.tasks[9] = &domain.Task{ID: 9, UserID: e.user, Completed: true, IsActive: true}

	assert.Equal(t, http.StatusForbidden, e.do(t, e.user, http.MethodGet, "/api/v1/admin/users", "").Code)

	w := e.do(t, e.admin, http.MethodGet, "/api/v1/admin/users", "")
	require.Equal(t, http.StatusOK, w.Code)
	users := decode[[]domain.Profile](t, w)
	require.Len(t, users, 1)
	assert.Equal(t, e.user, users[0].ID)

	w = e.do(t, e.admin, http.MethodGet, "/api/v1/admin/users/"+e.user.String()+"/tasks", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decode[[]domain.Task](t, w)[0].IsActive)
	// the stored row is untouched
	assert.True(t, e.store.tasks[9].IsActive)
}

func TestHealth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	up := PingFunc(func(context.Context) error { return nil })
	down := PingFunc(func(context.Context) error { return errors.New("connection refused") })

	r := gin.New()
	r.GET("/ok", NewHealthHandler(up, "test", map[string]Pinger{"redis": up}).Readiness)
	r.GET("/bad", NewHealthHandler(up, "test", map[string]Pinger{"redis": down}).Readiness)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/bad", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "connection refused")
}
