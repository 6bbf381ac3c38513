package controller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pcovell/genflow/internal/session"
	"github.com/pcovell/genflow/internal/worker"
)

// maxPollErrors is how many consecutive failed status queries the poll
// loop tolerates before giving up and failing the task.
const maxPollErrors = 5

// Poll substitutes for a lost stream: it checks execution status once
// per interval until the execution reaches a terminal state. A poll loop
// and a stream must never run for the same session at the same time;
// callers enforce that through the transport registry.
func (c *Controller) Poll(ctx context.Context, sessionID, executionID string, interval time.Duration) *Result {
	c.logger.Info("poll fallback started",
		"session_id", sessionID,
		"execution_id", executionID,
		"interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	consecutiveErrors := 0
	var lastErr error

	for {
		status, err := c.client.Status(ctx, executionID)
		switch {
		case errors.Is(err, worker.ErrExecutionNotFound):
			// Evicted server-side; nothing left to wait for.
			return &Result{
				Status:       session.TaskFailed,
				ErrorMessage: fmt.Sprintf("execution %s no longer known to worker service", executionID),
			}

		case err != nil:
			consecutiveErrors++
			lastErr = err
			if consecutiveErrors >= maxPollErrors {
				return &Result{
					Status:       session.TaskFailed,
					ErrorMessage: fmt.Sprintf("status polling gave up: %v", lastErr),
				}
			}

		default:
			consecutiveErrors = 0
			if err := c.store.Touch(sessionID); err != nil {
				c.logger.Warn("failed to touch session", "session_id", sessionID, "error", err)
			}

			switch status.Status {
			case worker.StatusRunning:
				// Keep polling.
			case worker.StatusCompleted:
				return &Result{Status: session.TaskCompleted}
			default:
				msg := status.Error
				if msg == "" {
					msg = fmt.Sprintf("execution ended with status %q", status.Status)
				}
				return &Result{Status: session.TaskFailed, ErrorMessage: msg}
			}
		}

		select {
		case <-ctx.Done():
			return &Result{Aborted: true}
		case <-ticker.C:
		}
	}
}
