package stagelinesdk

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

// Client is a minimal Stageline HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	APIKey      string
	BearerToken string
	// ActorID is sent as X-Actor-Id when no credential is set.
	ActorID    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v0",
		Timeout:  10 * time.Second,
	}
}

// Item represents the API work item model (partial).
type Item struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Description   string     `json:"description,omitempty"`
	Stage         string     `json:"stage"`
	StagePosition int        `json:"stage_position"`
	Priority      string     `json:"priority"`
	IsOnHold      bool       `json:"is_on_hold"`
	HoldReason    *string    `json:"hold_reason,omitempty"`
	HoldStartedAt *time.Time `json:"hold_started_at,omitempty"`
	TotalHoldDays int        `json:"total_hold_days"`
	HourlyRate    *float64   `json:"hourly_rate,omitempty"`
	ActualHours   int        `json:"actual_hours"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Entry is a time entry. DurationMinutes is nil while the timer runs.
type Entry struct {
	ID              string     `json:"id"`
	ItemID          string     `json:"item_id"`
	Description     string     `json:"description,omitempty"`
	StartedAt       time.Time  `json:"started_at"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
	DurationMinutes *int       `json:"duration_minutes,omitempty"`
	IsRunning       bool       `json:"is_running"`
	IsBillable      bool       `json:"is_billable"`
}

type Stats struct {
	ItemID          string  `json:"item_id"`
	TotalMinutes    int     `json:"total_minutes"`
	BillableMinutes int     `json:"billable_minutes"`
	BillableAmount  float64 `json:"billable_amount"`
	EntriesCount    int     `json:"entries_count"`
	ActualHours     int     `json:"actual_hours"`
}

// AttentionItem is one row of the attention report.
type AttentionItem struct {
	Item        Item   `json:"item"`
	DaysInStage int    `json:"days_in_stage"`
	Level       string `json:"level"`
}

type HeldItem struct {
	Item     Item   `json:"item"`
	HoldDays int    `json:"hold_days"`
	Reason   string `json:"reason,omitempty"`
}

type AttentionReport struct {
	GeneratedAt time.Time       `json:"generated_at"`
	Items       []AttentionItem `json:"items"`
	OnHold      []HeldItem      `json:"on_hold"`
	Warning     int             `json:"warning"`
	Danger      int             `json:"danger"`
	StageCounts map[string]int  `json:"stage_counts"`
}

// Event represents an audit log entry.
type Event struct {
	ID          int64     `json:"id"`
	OccurredAt  time.Time `json:"occurred_at"`
	Action      string    `json:"action"`
	ItemID      *string   `json:"item_id,omitempty"`
	Description string    `json:"description"`
	ActorID     string    `json:"actor_id"`
	Payload     string    `json:"payload_json"`
}

// APIError wraps non-2xx responses. Code is taken from the error envelope
// when the body carries one.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateItem creates an item in BACKLOG.
func (c *Client) CreateItem(ctx context.Context, name, description string) (Item, error) {
	body := map[string]any{"name": name}
	if description != "" {
		body["description"] = description
	}
	var resp Item
	err := c.do(ctx, http.MethodPost, "items", body, &resp)
	return resp, err
}

// ListItems lists items in pipeline order; stage may be empty.
func (c *Client) ListItems(ctx context.Context, stage string) ([]Item, error) {
	endpoint := "items"
	if stage != "" {
		endpoint += "?stage=" + url.QueryEscape(stage)
	}
	var resp struct {
		Items []Item `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

// MoveToStage moves an item to a stage and position.
func (c *Client) MoveToStage(ctx context.Context, itemID, stage string, position int) (Item, error) {
	var resp Item
	err := c.do(ctx, http.MethodPost, itemPath(itemID, "stage"), map[string]any{"stage": stage, "position": position}, &resp)
	return resp, err
}

// SetHold puts an item on hold (onHold=true) or resumes it.
func (c *Client) SetHold(ctx context.Context, itemID string, onHold bool, reason string) (Item, error) {
	var resp Item
	err := c.do(ctx, http.MethodPost, itemPath(itemID, "hold"), map[string]any{"on_hold": onHold, "reason": reason}, &resp)
	return resp, err
}

// StartTimer starts a timer on an item; the server stops any other running timer.
func (c *Client) StartTimer(ctx context.Context, itemID, description string) (Entry, error) {
	var resp Entry
	err := c.do(ctx, http.MethodPost, itemPath(itemID, "timer"), map[string]any{"description": description}, &resp)
	return resp, err
}

func (c *Client) StopTimer(ctx context.Context, entryID string) (Entry, error) {
	var resp Entry
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("entries/%s/stop", url.PathEscape(entryID)), nil, &resp)
	return resp, err
}

// RunningTimer returns the running entry, or nil when no timer runs.
func (c *Client) RunningTimer(ctx context.Context) (*Entry, error) {
	var resp struct {
		Running bool   `json:"running"`
		Entry   *Entry `json:"entry"`
	}
	if err := c.do(ctx, http.MethodGet, "timer", nil, &resp); err != nil {
		return nil, err
	}
	if !resp.Running {
		return nil, nil
	}
	return resp.Entry, nil
}

// LogTime records completed minutes on an item.
func (c *Client) LogTime(ctx context.Context, itemID string, minutes int, description string) (Entry, error) {
	var resp Entry
	err := c.do(ctx, http.MethodPost, itemPath(itemID, "entries"), map[string]any{"duration_minutes": minutes, "description": description}, &resp)
	return resp, err
}

func (c *Client) Entries(ctx context.Context, itemID string) ([]Entry, error) {
	var resp struct {
		Items []Entry `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, itemPath(itemID, "entries"), nil, &resp)
	return resp.Items, err
}

func (c *Client) Stats(ctx context.Context, itemID string) (Stats, error) {
	var resp Stats
	err := c.do(ctx, http.MethodGet, itemPath(itemID, "stats"), nil, &resp)
	return resp, err
}

func (c *Client) Attention(ctx context.Context) (AttentionReport, error) {
	var resp AttentionReport
	err := c.do(ctx, http.MethodGet, "attention", nil, &resp)
	return resp, err
}

// Events returns recent audit events, newest first. itemID may be empty.
func (c *Client) Events(ctx context.Context, itemID string, limit int) ([]Event, error) {
	q := url.Values{}
	if itemID != "" {
		q.Set("item_id", itemID)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	endpoint := "events"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp struct {
		Items []Event `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	u := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, u, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	case c.ActorID != "":
		req.Header.Set("X-Actor-Id", c.ActorID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func itemPath(itemID, p string) string {
	return fmt.Sprintf("items/%s/%s", url.PathEscape(itemID), p)
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/") + "/" + strings.Trim(c.BasePath, "/")
}
