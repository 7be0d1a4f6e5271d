// Package apiclient talks to the screentime REST API on behalf of the
// dashboard. It satisfies the task store, snapshot source and tracker
// interfaces the dashboard's components are built on.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"screentime/internal/domain"
	"screentime/internal/service"

	"github.com/google/uuid"
)

const apiPrefix = "/api/v1"

var ErrMalformedResponse = errors.New("malformed response")

// APIError is a non-2xx answer. Redirect is set on auth failures.
type APIError struct {
	Status   int
	Message  string
	Redirect string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// IsUnauthorized reports whether err is a 401 or 403 from the API.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && (apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden)
}

type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client

	mu   sync.RWMutex
	self uuid.UUID
}

func New(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// AuthHeader is the header the usage feed dial needs.
func (c *Client) AuthHeader() http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+c.token)
	return h
}

// Me loads the caller's profile and remembers its id, so that listing
// anyone else's tasks goes through the admin route.
func (c *Client) Me(ctx context.Context) (*domain.Profile, error) {
	var p domain.Profile
	if err := c.do(ctx, http.MethodGet, "/me", nil, &p); err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.self = p.ID
	c.mu.Unlock()
	return &p, nil
}

func (c *Client) isSelf(id uuid.UUID) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.self == uuid.Nil || c.self == id
}

func (c *Client) ListTasks(ctx context.Context, userID uuid.UUID) ([]domain.Task, error) {
	path := "/tasks"
	if !c.isSelf(userID) {
		path = "/admin/users/" + userID.String() + "/tasks"
	}
	var tasks []domain.Task
	if err := c.do(ctx, http.MethodGet, path, nil, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

func (c *Client) SetActive(ctx context.Context, taskID int64, active bool) error {
	action := "deactivate"
	if active {
		action = "activate"
	}
	return c.do(ctx, http.MethodPost, "/tasks/"+strconv.FormatInt(taskID, 10)+"/"+action, nil, nil)
}

func (c *Client) SetCompleted(ctx context.Context, taskID int64, completed bool) error {
	body := map[string]bool{"completed": completed}
	return c.do(ctx, http.MethodPatch, "/tasks/"+strconv.FormatInt(taskID, 10), body, nil)
}

func (c *Client) CreateTask(ctx context.Context, t *domain.Task) error {
	body := map[string]any{
		"title":        t.Title,
		"app_name":     t.AppName,
		"hours_perday": t.HoursPerDay,
	}
	if t.Deadline != nil {
		body["deadline"] = t.Deadline.Format(time.DateOnly)
	}
	return c.do(ctx, http.MethodPost, "/tasks", body, t)
}

func (c *Client) DeleteTask(ctx context.Context, taskID int64) error {
	return c.do(ctx, http.MethodDelete, "/tasks/"+strconv.FormatInt(taskID, 10), nil, nil)
}

// TodayLogs fetches a task's entries for date.
func (c *Client) TodayLogs(ctx context.Context, taskID int64, date string) ([]domain.UsageEntry, error) {
	q := url.Values{}
	q.Set("task_id", strconv.FormatInt(taskID, 10))
	q.Set("date", date)

	var resp struct {
		DurationMinutes []domain.UsageEntry `json:"duration_minutes"`
	}
	if err := c.do(ctx, http.MethodGet, "/screen-time?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	return resp.DurationMinutes, nil
}

func (c *Client) Progress(ctx context.Context, taskID int64, page int) (*service.Progress, error) {
	var p service.Progress
	path := fmt.Sprintf("/tasks/%d/progress?page=%d", taskID, page)
	if err := c.do(ctx, http.MethodGet, path, nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// RecordUsage adds seconds to the task's log for today, the way the desktop
// tracker does.
func (c *Client) RecordUsage(ctx context.Context, taskID int64, seconds int64) error {
	body := map[string]any{"task_id": taskID, "seconds": seconds}
	return c.do(ctx, http.MethodPost, "/update-usage", body, nil)
}

func (c *Client) Start(ctx context.Context, taskID int64, appName string) error {
	body := map[string]any{"task_id": taskID, "appname": appName}
	return c.do(ctx, http.MethodPost, "/start-tracker", body, nil)
}

func (c *Client) Stop(ctx context.Context, taskID int64, _ string) error {
	body := map[string]any{"task_id": taskID}
	return c.do(ctx, http.MethodPost, "/stop-tracker", body, nil)
}

func (c *Client) ListUsers(ctx context.Context) ([]domain.Profile, error) {
	var users []domain.Profile
	if err := c.do(ctx, http.MethodGet, "/admin/users", nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// do sends one request. out may be nil; the body is still checked to be
// JSON so that an HTML error page never passes for success.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal %s %s request: %w", method, path, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+apiPrefix+path, body)
	if err != nil {
		return fmt.Errorf("failed to build %s %s request: %w", method, path, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s %s: read body: %w", method, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var payload struct {
			Error    string `json:"error"`
			Redirect string `json:"redirect"`
		}
		if json.Unmarshal(raw, &payload) == nil && payload.Error != "" {
			apiErr.Message = payload.Error
			apiErr.Redirect = payload.Redirect
		}
		return apiErr
	}

	if !json.Valid(raw) {
		return fmt.Errorf("%s %s: %w", method, path, ErrMalformedResponse)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s %s: %w: %v", method, path, ErrMalformedResponse, err)
	}
	return nil
}
