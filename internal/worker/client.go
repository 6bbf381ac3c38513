// Package worker is the HTTP client for the service fronting the
// long-lived generation worker: it starts executions, opens their push
// streams, polls status, and requests cancellation.
package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// ErrExecutionNotFound is returned when the service no longer knows the
// execution id (e.g. evicted after a restart).
var ErrExecutionNotFound = errors.New("execution not found")

// ExecutionStatus is the server-side state of one execution.
type ExecutionStatus string

const (
	StatusRunning   ExecutionStatus = "running"
	StatusCompleted ExecutionStatus = "completed"
	StatusFailed    ExecutionStatus = "failed"
)

// SubmitRequest starts a new execution.
type SubmitRequest struct {
	ProjectPath          string `json:"project_path"`
	ProjectID            string `json:"project_id,omitempty"`
	Prompt               string `json:"prompt"`
	ResumeConversationID string `json:"resume_conversation_id,omitempty"`
}

// SubmitResponse carries the handle for a freshly started execution.
type SubmitResponse struct {
	ExecutionID   string `json:"execution_id"`
	StreamAddress string `json:"stream_address"`
}

// StatusResponse is the reply to a status query.
type StatusResponse struct {
	ExecutionID string          `json:"execution_id"`
	Status      ExecutionStatus `json:"status"`
	Error       string          `json:"error,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Client talks to the worker-fronting service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a client for the service at baseURL.
func NewClient(baseURL string, logger *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			// Submit/status/cancel are quick; the stream uses its own
			// request with no timeout.
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

// Submit asks the service to start an execution and returns its handle.
func (c *Client) Submit(ctx context.Context, req *SubmitRequest) (*SubmitResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal submit request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/executions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build submit request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("submit request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, c.decodeError(resp, "submit")
	}

	var submitResp SubmitResponse
	if err := json.NewDecoder(resp.Body).Decode(&submitResp); err != nil {
		return nil, fmt.Errorf("failed to decode submit response: %w", err)
	}
	if submitResp.ExecutionID == "" {
		return nil, fmt.Errorf("submit response missing execution id")
	}

	c.logger.Debug("execution submitted", "execution_id", submitResp.ExecutionID)
	return &submitResp, nil
}

// Status queries the server-side state of an execution.
func (c *Client) Status(ctx context.Context, executionID string) (*StatusResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.executionURL(executionID), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build status request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("status request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrExecutionNotFound, executionID)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, c.decodeError(resp, "status")
	}

	var statusResp StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&statusResp); err != nil {
		return nil, fmt.Errorf("failed to decode status response: %w", err)
	}
	return &statusResp, nil
}

// Cancel requests cancellation of an execution. Best-effort: the caller
// does not wait for the execution to actually stop.
func (c *Client) Cancel(ctx context.Context, executionID string) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.executionURL(executionID)+"/cancel", nil)
	if err != nil {
		return fmt.Errorf("failed to build cancel request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("cancel request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", ErrExecutionNotFound, executionID)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("cancel rejected with status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) executionURL(executionID string) string {
	return c.baseURL + "/api/executions/" + executionID
}

func (c *Client) decodeError(resp *http.Response, op string) error {
	var payload errorResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64*1024)).Decode(&payload); err == nil && payload.Error != "" {
		return fmt.Errorf("%s rejected: %s", op, payload.Error)
	}
	return fmt.Errorf("%s rejected with status %d", op, resp.StatusCode)
}
