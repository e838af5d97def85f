package fieldlinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Fieldline HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Task represents the API task model (partial).
type Task struct {
	ID              string   `json:"id"`
	OrgID           string   `json:"org_id"`
	Title           string   `json:"title"`
	Status          string   `json:"status"`
	Visibility      string   `json:"visibility,omitempty"`
	AssignedUserIDs []string `json:"assigned_user_ids,omitempty"`
	Version         int64    `json:"version"`
}

// ActionEvent represents one entry in a task's action log.
type ActionEvent struct {
	ID      string `json:"id"`
	TaskID  string `json:"task_id"`
	Action  string `json:"action"`
	At      string `json:"at"`
	ActorID string `json:"actor_id"`
	Note    string `json:"note,omitempty"`
}

// Timesheet is the derived work summary for a task.
type Timesheet struct {
	TaskID         string        `json:"task_id"`
	Status         string        `json:"status"`
	ElapsedMinutes int           `json:"elapsed_minutes"`
	Events         []ActionEvent `json:"events"`
}

// AuditEntry is one immutable edit record.
type AuditEntry struct {
	ID       string `json:"id"`
	TaskID   string `json:"task_id"`
	EditedAt string `json:"edited_at"`
	EditedBy string `json:"edited_by"`
	Changes  []struct {
		Field  string `json:"field"`
		Before string `json:"before"`
		After  string `json:"after"`
	} `json:"changes"`
}

// Event represents a journal entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	OrgID      string `json:"org_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// TaskPage wraps list responses with cursors.
type TaskPage struct {
	Items      []Task `json:"items"`
	NextCursor string `json:"next_cursor"`
}

// CreateTask creates a task.
func (c *Client) CreateTask(ctx context.Context, title string, opts map[string]any) (Task, error) {
	body := map[string]any{"title": title}
	for k, v := range opts {
		body[k] = v
	}
	var resp Task
	err := c.do(ctx, http.MethodPost, "tasks", body, &resp)
	return resp, err
}

// GetTask fetches a task by id.
func (c *Client) GetTask(ctx context.Context, id string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodGet, "tasks/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// ListTasks returns one page of visible tasks.
func (c *Client) ListTasks(ctx context.Context, limit int, cursor string) (TaskPage, error) {
	endpoint := "tasks"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	if cursor != "" {
		sep := "?"
		if strings.Contains(endpoint, "?") {
			sep = "&"
		}
		endpoint = fmt.Sprintf("%s%scursor=%s", endpoint, sep, url.QueryEscape(cursor))
	}
	var resp TaskPage
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// PerformAction appends a lifecycle action. extras may carry lat/lng,
// token, note, or override.
func (c *Client) PerformAction(ctx context.Context, taskID, action string, extras map[string]any) (Task, error) {
	body := map[string]any{"action": action}
	for k, v := range extras {
		body[k] = v
	}
	var resp Task
	endpoint := fmt.Sprintf("tasks/%s/actions", url.PathEscape(taskID))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// TaskTimesheet fetches the derived work summary for a task.
func (c *Client) TaskTimesheet(ctx context.Context, taskID string) (Timesheet, error) {
	var resp Timesheet
	endpoint := fmt.Sprintf("tasks/%s/timesheet", url.PathEscape(taskID))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// TaskAudit fetches a task's audit trail.
func (c *Client) TaskAudit(ctx context.Context, taskID string) ([]AuditEntry, error) {
	var resp []AuditEntry
	endpoint := fmt.Sprintf("tasks/%s/audit", url.PathEscape(taskID))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Events returns recent journal events.
func (c *Client) Events(ctx context.Context, afterID int64, limit int) ([]Event, error) {
	endpoint := fmt.Sprintf("events?after_id=%d", afterID)
	if limit > 0 {
		endpoint = fmt.Sprintf("%s&limit=%d", endpoint, limit)
	}
	var resp []Event
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/v1/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
