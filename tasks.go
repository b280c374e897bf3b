package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
)

// TaskClient creates follow-up tasks in the external task tracker, used by
// collect_feedback to assign one feedback task per mentioned teammate.
type TaskClient interface {
	CreateTask(ctx context.Context, t TaskSpec) (string, error)
}

type TaskSpec struct {
	Title    string `json:"title"`
	Assignee string `json:"assignee"`
	Notes    string `json:"notes,omitempty"`
	DueDate  string `json:"due_date,omitempty"`
}

type httpTaskClient struct {
	client  *http.Client
	baseURL string
	token   string
}

func NewHTTPTaskClient(baseURL, token string) TaskClient {
	return &httpTaskClient{client: externalHTTPClient, baseURL: strings.TrimRight(baseURL, "/"), token: token}
}

type taskCreateResponse struct {
	ID    string `json:"id"`
	URL   string `json:"url"`
	Error string `json:"error"`
}

func (c *httpTaskClient) CreateTask(ctx context.Context, t TaskSpec) (string, error) {
	if c.baseURL == "" {
		return "", fmt.Errorf("task tracker is not configured")
	}

	bodyBytes, err := json.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("marshaling task: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/tasks", bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("creating task request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("task tracker error: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading task response: %w", err)
	}

	var parsed taskCreateResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("parsing task response: %w", err)
	}
	if resp.StatusCode >= 300 || parsed.Error != "" {
		msg := parsed.Error
		if msg == "" {
			msg = fmt.Sprintf("status %d", resp.StatusCode)
		}
		log.Printf("tasks create error assignee=%s: %s", t.Assignee, msg)
		return "", fmt.Errorf("task tracker error: %s", msg)
	}

	ref := parsed.URL
	if ref == "" {
		ref = parsed.ID
	}
	log.Printf("tasks created assignee=%s ref=%s", t.Assignee, ref)
	return ref, nil
}
