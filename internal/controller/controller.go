// Package controller drives one execution's push stream for a session:
// it decodes arriving frames into the in-memory log/file-change
// projections and resolves the terminal outcome. Two entrypoints exist —
// submitting fresh work and re-attaching to a known execution id — and
// both converge on the same consume loop.
package controller

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pcovell/genflow/internal/protocol"
	"github.com/pcovell/genflow/internal/session"
	"github.com/pcovell/genflow/internal/worker"
)

// Result is the outcome of consuming one execution.
type Result struct {
	// Status is TaskCompleted or TaskFailed. Only meaningful when
	// neither Transient nor Aborted is set.
	Status session.TaskStatus

	// Transient means the stream ended without a terminal event. The
	// execution may still be completing server-side; the caller should
	// fall back to polling rather than failing the task.
	Transient bool

	// Aborted means the consume loop was cancelled locally.
	Aborted bool

	ConversationID string
	Usage          *protocol.Usage
	DurationMS     int64
	CostUSD        float64
	ErrorMessage   string

	// ErrorLogged means the failure already produced an error log entry
	// (a structured error frame). Callers add one otherwise, so every
	// user-visible failure is accompanied by a log entry.
	ErrorLogged bool
}

// Recorder persists decoded events (the NDJSON transcript).
type Recorder interface {
	Record(sessionID, executionID string, evt *protocol.Event) error
}

// Controller owns the in-memory projections for every session and the
// consume loop that feeds them. Persisted state stays in the session
// store; nothing here survives a restart.
type Controller struct {
	store  *session.Store
	client *worker.Client
	logger *slog.Logger

	recorder Recorder
	onLog    func(sessionID string, entry protocol.LogEntry)

	mu      sync.Mutex
	logs    map[string][]protocol.LogEntry
	changes map[string][]protocol.FileChange
}

// New creates a controller backed by the given store and worker client.
func New(store *session.Store, client *worker.Client, logger *slog.Logger) *Controller {
	return &Controller{
		store:   store,
		client:  client,
		logger:  logger,
		logs:    make(map[string][]protocol.LogEntry),
		changes: make(map[string][]protocol.FileChange),
	}
}

// SetRecorder wires an event transcript. Optional.
func (c *Controller) SetRecorder(r Recorder) {
	c.recorder = r
}

// SetLogHandler registers a callback invoked for each new log entry,
// in arrival order. Optional; used to feed live display.
func (c *Controller) SetLogHandler(fn func(sessionID string, entry protocol.LogEntry)) {
	c.onLog = fn
}

// Run is one live stream attachment.
type Run struct {
	ExecutionID string
	stream      *worker.Stream
}

// Close tears down the attachment's stream.
func (r *Run) Close() {
	r.stream.Close()
}

// Submit starts a new server-side execution for the session's task. The
// returned execution id is persisted before any stream handling begins,
// so recovery can find the execution even if the stream never opens.
func (c *Controller) Submit(ctx context.Context, sess *session.Session, taskID, prompt string) (string, error) {
	resp, err := c.client.Submit(ctx, &worker.SubmitRequest{
		ProjectPath:          sess.ProjectPath,
		ProjectID:            sess.ProjectID,
		Prompt:               prompt,
		ResumeConversationID: sess.ResumableConversationID,
	})
	if err != nil {
		return "", fmt.Errorf("submit failed: %w", err)
	}

	if err := c.store.SetCurrentExecution(sess.ID, resp.ExecutionID, taskID); err != nil {
		return "", fmt.Errorf("failed to persist execution id: %w", err)
	}

	c.logger.Info("execution started",
		"session_id", sess.ID,
		"task_id", taskID,
		"execution_id", resp.ExecutionID)
	return resp.ExecutionID, nil
}

// Attach opens the push stream for a known execution id. Used right
// after Submit and for re-attaching when navigating back to a session
// with work already in flight.
func (c *Controller) Attach(ctx context.Context, executionID string) (*Run, error) {
	stream, err := c.client.OpenStream(ctx, executionID)
	if err != nil {
		return nil, err
	}
	return &Run{ExecutionID: executionID, stream: stream}, nil
}

// Consume handles the stream until a terminal event, transport loss, or
// cancellation. Every event refreshes the session's activity timestamp.
func (c *Controller) Consume(ctx context.Context, sessionID string, run *Run) *Result {
	var pendingConvID string

	for {
		select {
		case <-ctx.Done():
			run.Close()
			return &Result{Aborted: true}

		case evt, ok := <-run.stream.Events():
			if !ok {
				// Stream ended without a terminal event. Not a failure:
				// the execution may still finish server-side.
				result := &Result{Transient: true}
				if err := run.stream.Err(); err != nil {
					result.ErrorMessage = err.Error()
				}
				c.logger.Warn("stream lost without terminal event",
					"session_id", sessionID,
					"execution_id", run.ExecutionID,
					"error", result.ErrorMessage)
				return result
			}

			c.record(sessionID, run.ExecutionID, evt)
			if err := c.store.Touch(sessionID); err != nil {
				c.logger.Warn("failed to touch session", "session_id", sessionID, "error", err)
			}

			switch evt.Kind {
			case protocol.EventKindConnected:
				// Hold the id until a successful result confirms it, so
				// a failed run never corrupts resumption.
				if evt.ConversationID != "" {
					pendingConvID = evt.ConversationID
				}

			case protocol.EventKindResult:
				run.Close()
				if evt.IsError {
					return &Result{
						Status:       session.TaskFailed,
						ErrorMessage: "execution reported failure",
					}
				}
				convID := evt.ConversationID
				if convID == "" {
					convID = pendingConvID
				}
				return &Result{
					Status:         session.TaskCompleted,
					ConversationID: convID,
					Usage:          evt.Usage,
					DurationMS:     evt.DurationMS,
					CostUSD:        evt.CostUSD,
				}

			case protocol.EventKindError:
				c.project(sessionID, evt)
				run.Close()
				return &Result{
					Status:       session.TaskFailed,
					ErrorMessage: evt.Content,
					ErrorLogged:  true,
				}

			default:
				c.project(sessionID, evt)
			}
		}
	}
}

// Logs returns a copy of the session's log projection.
func (c *Controller) Logs(sessionID string) []protocol.LogEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	logs := make([]protocol.LogEntry, len(c.logs[sessionID]))
	copy(logs, c.logs[sessionID])
	return logs
}

// FileChanges returns a copy of the session's file-change projection.
func (c *Controller) FileChanges(sessionID string) []protocol.FileChange {
	c.mu.Lock()
	defer c.mu.Unlock()

	changes := make([]protocol.FileChange, len(c.changes[sessionID]))
	copy(changes, c.changes[sessionID])
	return changes
}

// ClearProjections drops the in-memory projections for a session.
func (c *Controller) ClearProjections(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.logs, sessionID)
	delete(c.changes, sessionID)
}

// EchoUser appends a synthetic user log entry, so submitted prompts show
// up in the log without a server round trip.
func (c *Controller) EchoUser(sessionID, content string) {
	c.appendLog(sessionID, protocol.LogEntry{
		ID:        newEntryID(),
		Type:      protocol.LogEntryUser,
		Content:   content,
		Timestamp: time.Now().UTC(),
	})
}

// AppendSystem appends a synthetic system log entry.
func (c *Controller) AppendSystem(sessionID, content string) {
	c.appendLog(sessionID, protocol.LogEntry{
		ID:        newEntryID(),
		Type:      protocol.LogEntrySystem,
		Content:   content,
		Timestamp: time.Now().UTC(),
	})
}

// AppendError appends a synthetic error log entry, used for failures
// that never produced an error frame (submission errors, poll
// exhaustion).
func (c *Controller) AppendError(sessionID, content string) {
	c.appendLog(sessionID, protocol.LogEntry{
		ID:        newEntryID(),
		Type:      protocol.LogEntryError,
		Content:   content,
		Timestamp: time.Now().UTC(),
	})
}

// project translates one non-terminal event into projection records.
func (c *Controller) project(sessionID string, evt *protocol.Event) {
	now := time.Now().UTC()

	if entry := protocol.ToLogEntry(evt, now); entry != nil {
		c.appendLog(sessionID, *entry)
	}
	if change := protocol.ToFileChange(evt, now); change != nil {
		c.mu.Lock()
		c.changes[sessionID] = append(c.changes[sessionID], *change)
		c.mu.Unlock()
	}
}

func (c *Controller) appendLog(sessionID string, entry protocol.LogEntry) {
	c.mu.Lock()
	c.logs[sessionID] = append(c.logs[sessionID], entry)
	c.mu.Unlock()

	if c.onLog != nil {
		c.onLog(sessionID, entry)
	}
}

func newEntryID() string {
	return uuid.New().String()
}

func (c *Controller) record(sessionID, executionID string, evt *protocol.Event) {
	if c.recorder == nil {
		return
	}
	if err := c.recorder.Record(sessionID, executionID, evt); err != nil {
		c.logger.Warn("failed to record event", "session_id", sessionID, "error", err)
	}
}
