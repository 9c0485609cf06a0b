package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/stormlight/almanac/internal/entity"
	"github.com/stormlight/almanac/internal/task"
)

// APIError is a non-2xx response from the remote service.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("remote returned %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("remote returned %d", e.StatusCode)
}

// Client is the HTTP implementation of Transport.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// ClientConfig holds client construction options.
type ClientConfig struct {
	// BaseURL is the service root, e.g. "https://api.example.com".
	BaseURL string

	// Token is the bearer token attached to every request.
	Token string

	// Timeout bounds each request (default: 30s).
	Timeout time.Duration
}

// NewClient creates an HTTP transport for the remote calendar service.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL cannot be empty")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		baseURL: cfg.BaseURL,
		token:   cfg.Token,
		http:    &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// ListEntities implements Transport.ListEntities.
func (c *Client) ListEntities(ctx context.Context, rangeStart, rangeEnd time.Time) (*ListResult, error) {
	q := url.Values{}
	q.Set("start", rangeStart.Format(time.RFC3339))
	q.Set("end", rangeEnd.Format(time.RFC3339))

	var out ListResult
	if err := c.do(ctx, http.MethodGet, "/v1/entities?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateEntity implements Transport.CreateEntity.
func (c *Client) CreateEntity(ctx context.Context, e *entity.Entity) (*CreateResult, error) {
	var out CreateResult
	if err := c.do(ctx, http.MethodPost, "/v1/entities", e, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateEntity implements Transport.UpdateEntity.
func (c *Client) UpdateEntity(ctx context.Context, ref entity.Ref, patch entity.Patch) (*MutateResult, error) {
	var out MutateResult
	path := "/v1/entities/" + url.PathEscape(ref.ID())
	if err := c.do(ctx, http.MethodPatch, path, patch, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteEntity implements Transport.DeleteEntity.
func (c *Client) DeleteEntity(ctx context.Context, ref entity.Ref) (*MutateResult, error) {
	var out MutateResult
	path := "/v1/entities/" + url.PathEscape(ref.ID())
	if err := c.do(ctx, http.MethodDelete, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListTasks implements Transport.ListTasks.
func (c *Client) ListTasks(ctx context.Context) (*TaskListResult, error) {
	var out TaskListResult
	if err := c.do(ctx, http.MethodGet, "/v1/tasks", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateTask implements Transport.CreateTask.
func (c *Client) CreateTask(ctx context.Context, t task.Task) (*TaskResult, error) {
	var out TaskResult
	if err := c.do(ctx, http.MethodPost, "/v1/tasks", t, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateTask implements Transport.UpdateTask.
func (c *Client) UpdateTask(ctx context.Context, taskID string, t task.Task) (*MutateResult, error) {
	var out MutateResult
	path := "/v1/tasks/" + url.PathEscape(taskID)
	if err := c.do(ctx, http.MethodPatch, path, t, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteTask implements Transport.DeleteTask.
func (c *Client) DeleteTask(ctx context.Context, taskID string) (*MutateResult, error) {
	var out MutateResult
	path := "/v1/tasks/" + url.PathEscape(taskID)
	if err := c.do(ctx, http.MethodDelete, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// do performs one JSON round trip against the service.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var payload struct {
			Error string `json:"error"`
		}
		if data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16)); err == nil {
			if json.Unmarshal(data, &payload) == nil {
				apiErr.Message = payload.Error
			}
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
