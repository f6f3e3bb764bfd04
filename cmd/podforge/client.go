package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"syscall"
	"time"

	"podforge/internal/api"
)

// apiClient is a thin HTTP client for the daemon's JSON API.
type apiClient struct {
	base   string
	token  string
	client *http.Client
}

func newAPIClient(addr, token string) (*apiClient, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("daemon API address not configured; set paths.api_bind or pass --api")
	}
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	return &apiClient{
		base:   strings.TrimSuffix(addr, "/"),
		token:  strings.TrimSpace(token),
		client: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func (c *apiClient) status() (*api.StatusResponse, error) {
	var out api.StatusResponse
	if err := c.do(http.MethodGet, "/api/status", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) createTask(url string) (*api.TaskView, error) {
	var out api.TaskResponse
	if err := c.do(http.MethodPost, "/api/tasks", api.CreateTaskRequest{URL: url}, &out); err != nil {
		return nil, err
	}
	return &out.Task, nil
}

func (c *apiClient) listTasks(statuses []string) ([]api.TaskView, error) {
	path := "/api/tasks"
	if len(statuses) > 0 {
		query := make([]string, len(statuses))
		for i, status := range statuses {
			query[i] = "status=" + status
		}
		path += "?" + strings.Join(query, "&")
	}
	var out api.TaskListResponse
	if err := c.do(http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Tasks, nil
}

func (c *apiClient) getTask(taskID string) (*api.TaskView, error) {
	var out api.TaskResponse
	if err := c.do(http.MethodGet, "/api/tasks/"+taskID, nil, &out); err != nil {
		return nil, err
	}
	return &out.Task, nil
}

func (c *apiClient) retryTask(taskID string) (*api.TaskView, error) {
	var out api.TaskResponse
	if err := c.do(http.MethodPost, "/api/tasks/"+taskID+"/retry", nil, &out); err != nil {
		return nil, err
	}
	return &out.Task, nil
}

func (c *apiClient) removeTask(taskID string) (bool, error) {
	var out api.RemoveResponse
	err := c.do(http.MethodDelete, "/api/tasks/"+taskID, nil, &out)
	if err != nil {
		var apiErr *apiError
		if errors.As(err, &apiErr) && apiErr.status == http.StatusNotFound {
			return false, nil
		}
		return false, err
	}
	return out.Removed, nil
}

type apiError struct {
	status  int
	message string
}

func (e *apiError) Error() string {
	return e.message
}

func (c *apiClient) do(method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequest(method, c.base+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return wrapDialError(err, c.base)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var payload api.ErrorResponse
		if decodeErr := json.NewDecoder(resp.Body).Decode(&payload); decodeErr == nil && payload.Error != "" {
			return &apiError{status: resp.StatusCode, message: payload.Error}
		}
		return &apiError{status: resp.StatusCode, message: fmt.Sprintf("daemon returned %d", resp.StatusCode)}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func wrapDialError(err error, base string) error {
	if errors.Is(err, syscall.ECONNREFUSED) {
		return fmt.Errorf("connect to daemon at %s: connection refused; start it with `podforge serve`", base)
	}
	return fmt.Errorf("connect to daemon: %w", err)
}
