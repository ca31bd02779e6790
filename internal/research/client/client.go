// Package client is the Go client for the research task API.
package client

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

	"deepresearch/internal/server/ports"
)

// APIError is a non-2xx reply from the server.
type APIError struct {
	StatusCode int
	Message    string `json:"error"`
	Details    string `json:"details"`
}

func (e *APIError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("api error %d: %s: %s", e.StatusCode, e.Message, e.Details)
	}
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

// Unwrap maps well-known statuses onto the domain sentinels.
func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusNotFound:
		return ports.ErrTaskNotFound
	case http.StatusBadRequest:
		return ports.ErrInvalidRequest
	case http.StatusConflict:
		return ports.ErrTaskFrozen
	default:
		return nil
	}
}

// Client talks to the research API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// New creates a client for the server at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateTask starts a research task and returns its id.
func (c *Client) CreateTask(ctx context.Context, goal string, mode ports.ResearchMode) (string, error) {
	var created struct {
		TaskID string `json:"taskId"`
	}
	body := map[string]string{"goal": goal, "mode": string(mode)}
	if err := c.do(ctx, http.MethodPost, "/api/research", body, &created); err != nil {
		return "", err
	}
	return created.TaskID, nil
}

// GetTask reads the current snapshot.
func (c *Client) GetTask(ctx context.Context, taskID string) (*ports.ResearchTask, error) {
	var task ports.ResearchTask
	if err := c.do(ctx, http.MethodGet, "/api/research/"+url.PathEscape(taskID), nil, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// ListTasks returns the task summaries, newest first.
func (c *Client) ListTasks(ctx context.Context) ([]ports.TaskSummary, error) {
	var listed struct {
		Tasks []ports.TaskSummary `json:"tasks"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/research", nil, &listed); err != nil {
		return nil, err
	}
	return listed.Tasks, nil
}

// CancelTask asks the server to stop a running task.
func (c *Client) CancelTask(ctx context.Context, taskID string) error {
	return c.do(ctx, http.MethodPost, "/api/research/"+url.PathEscape(taskID)+"/cancel", nil, nil)
}

// DeleteTask removes a task.
func (c *Client) DeleteTask(ctx context.Context, taskID string) error {
	return c.do(ctx, http.MethodDelete, "/api/research/"+url.PathEscape(taskID), nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var reader io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if jsonErr := json.Unmarshal(data, apiErr); jsonErr != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(data))
		}
		return apiErr
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
