package streamlinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Streamline HTTP API client for command surfaces.
type Client struct {
	BaseURL string
	// GuildID scopes every stream call.
	GuildID     string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, guildID, token string) *Client {
	return &Client{
		BaseURL:     baseURL,
		GuildID:     guildID,
		BearerToken: token,
		Timeout:     10 * time.Second,
	}
}

// Stream is the API stream model.
type Stream struct {
	PublicID      string     `json:"public_id"`
	OwnerID       string     `json:"owner_id"`
	SponsorID     string     `json:"sponsor_id,omitempty"`
	Subject       string     `json:"subject"`
	Category      string     `json:"category,omitempty"`
	Link          string     `json:"link,omitempty"`
	GuildID       string     `json:"guild_id"`
	Status        string     `json:"status"`
	DueAt         time.Time  `json:"due_at"`
	CreatedAt     time.Time  `json:"created_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	DaysRemaining int        `json:"days_remaining"`
	Badge         string     `json:"badge"`
}

// CreateStream is the create request. Zero DueInDays uses the server default.
type CreateStream struct {
	Subject   string `json:"subject"`
	OwnerID   string `json:"owner_id,omitempty"`
	SponsorID string `json:"sponsor_id,omitempty"`
	DueInDays int    `json:"due_in_days,omitempty"`
	Category  string `json:"category,omitempty"`
	Link      string `json:"link,omitempty"`
}

// Removed identifies a stream deleted by a sweep or wipe.
type Removed struct {
	PublicID string `json:"public_id"`
	Scope    string `json:"scope"`
	OwnerID  string `json:"owner_id"`
	Subject  string `json:"subject"`
}

type RemovedList struct {
	Count   int       `json:"count"`
	Removed []Removed `json:"removed"`
}

// ReminderReport summarises one reminder scan.
type ReminderReport struct {
	WindowStart  time.Time `json:"window_start"`
	WindowEnd    time.Time `json:"window_end"`
	Scopes       int       `json:"scopes"`
	Items        int       `json:"items"`
	BatchesSent  int       `json:"batches_sent"`
	DirectSent   int       `json:"direct_sent"`
	DirectFailed int       `json:"direct_failed"`
}

// Event represents an audit entry.
type Event struct {
	ID       int64          `json:"id"`
	TS       string         `json:"ts"`
	Type     string         `json:"type"`
	GuildID  string         `json:"guild_id"`
	PublicID string         `json:"public_id"`
	ActorID  string         `json:"actor_id"`
	Payload  map[string]any `json:"payload"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Details    map[string]any
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// IsDuplicate reports whether err is a rejected duplicate submission and
// returns the conflicting public id when known.
func IsDuplicate(err error) (string, bool) {
	var ae *APIError
	if !errors.As(err, &ae) || ae.Code != "duplicate_submission" {
		return "", false
	}
	id, _ := ae.Details["conflict_public_id"].(string)
	return id, true
}

// CreateStream registers a stream for the token's subject.
func (c *Client) CreateStream(ctx context.Context, in CreateStream) (Stream, error) {
	var resp Stream
	err := c.do(ctx, http.MethodPost, c.guildPath("streams"), in, &resp)
	return resp, err
}

// ListStreams lists streams; empty status lists all.
func (c *Client) ListStreams(ctx context.Context, status, ownerID string) ([]Stream, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	if ownerID != "" {
		q.Set("owner_id", ownerID)
	}
	endpoint := c.guildPath("streams")
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp struct {
		Items []Stream `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

func (c *Client) GetStream(ctx context.Context, publicID string) (Stream, error) {
	var resp Stream
	err := c.do(ctx, http.MethodGet, c.guildPath("streams/"+url.PathEscape(publicID)), nil, &resp)
	return resp, err
}

// CompleteStream marks a stream completed as the token's subject.
func (c *Client) CompleteStream(ctx context.Context, publicID string) (Stream, error) {
	var resp Stream
	err := c.do(ctx, http.MethodPost, c.guildPath("streams/"+url.PathEscape(publicID)+"/complete"), nil, &resp)
	return resp, err
}

func (c *Client) WipeStreams(ctx context.Context) (RemovedList, error) {
	var resp RemovedList
	err := c.do(ctx, http.MethodDelete, c.guildPath("streams"), nil, &resp)
	return resp, err
}

// Sweep runs the retention sweep. A nil window uses the server's window.
func (c *Client) Sweep(ctx context.Context, scope string, windowHours *int) (RemovedList, error) {
	body := map[string]any{}
	if scope != "" {
		body["scope"] = scope
	}
	if windowHours != nil {
		body["window_hours"] = *windowHours
	}
	var resp RemovedList
	err := c.do(ctx, http.MethodPost, "v0/maintenance/sweep", body, &resp)
	return resp, err
}

// Remind runs the due-tomorrow reminder scan across every guild.
func (c *Client) Remind(ctx context.Context) (ReminderReport, error) {
	var resp ReminderReport
	err := c.do(ctx, http.MethodPost, "v0/maintenance/remind", nil, &resp)
	return resp, err
}

// Events returns recent audit events of the guild.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	endpoint := c.guildPath("events")
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
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
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
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
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string         `json:"code"`
				Message string         `json:"message"`
				Details map[string]any `json:"details"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
			apiErr.Details = env.Error.Details
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) guildPath(p string) string {
	return fmt.Sprintf("v0/guilds/%s/%s", url.PathEscape(c.GuildID), strings.TrimLeft(p, "/"))
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
