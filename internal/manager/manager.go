// Package manager owns the task queue: it selects the next pending task
// per session (FIFO, at most one running), submits it through the
// streaming controller, and advances or halts on terminal outcomes. It
// also hosts the startup recovery coordinator.
package manager

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pcovell/genflow/internal/controller"
	"github.com/pcovell/genflow/internal/notify"
	"github.com/pcovell/genflow/internal/session"
	"github.com/pcovell/genflow/internal/skills"
	"github.com/pcovell/genflow/internal/worker"
)

// Config holds the manager's timing knobs.
type Config struct {
	// FinalizeDelay is the pause between a task reaching a terminal
	// state and the next advance, so the terminal state stays visible
	// before the next task's activity replaces it.
	FinalizeDelay time.Duration

	// RemovalGrace is how long a completed task stays in the queue
	// before it is removed. Failed tasks are never auto-removed.
	RemovalGrace time.Duration

	// PollInterval is the status-check cadence of the poll fallback.
	PollInterval time.Duration

	// RecoveryWindow bounds how long the recovering flag may stay set.
	RecoveryWindow time.Duration
}

// DefaultConfig returns the production timings.
func DefaultConfig() Config {
	return Config{
		FinalizeDelay:  2 * time.Second,
		RemovalGrace:   5 * time.Second,
		PollInterval:   30 * time.Second,
		RecoveryWindow: 15 * time.Second,
	}
}

// Manager coordinates queue execution across sessions. All persisted
// mutation flows through the session store; the manager adds the
// sequencing: one running task per session, FIFO order, halting when
// auto-start is off.
type Manager struct {
	store    *session.Store
	ctrl     *controller.Controller
	client   *worker.Client
	catalog  skills.Catalog
	notifier *notify.Notifier
	cfg      Config
	logger   *slog.Logger

	registry *transportRegistry

	// advanceMu serializes the check-and-dequeue step so two concurrent
	// advances cannot both start work on the same session.
	advanceMu sync.Mutex

	// OnQueueEmpty, if set, fires when an advance finds nothing pending.
	OnQueueEmpty func(sessionID string)

	recoverOnce sync.Once
	recovering  sync.Mutex
	inRecovery  bool

	wg sync.WaitGroup
}

// New creates a manager. catalog may be nil if no skill tasks are used;
// notifier may be nil to disable downstream invalidation signals.
func New(store *session.Store, ctrl *controller.Controller, client *worker.Client, catalog skills.Catalog, notifier *notify.Notifier, cfg Config, logger *slog.Logger) *Manager {
	if notifier == nil {
		notifier = &notify.Notifier{}
	}
	return &Manager{
		store:    store,
		ctrl:     ctrl,
		client:   client,
		catalog:  catalog,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger,
		registry: newTransportRegistry(),
	}
}

// Notifier returns the downstream invalidation notifier.
func (m *Manager) Notifier() *notify.Notifier {
	return m.notifier
}

// ActiveTransport reports the session's live transport kind, if any.
func (m *Manager) ActiveTransport(sessionID string) (TransportKind, bool) {
	return m.registry.active(sessionID)
}

// Enqueue validates and appends tasks to the session queue. Appending is
// idempotent by task id and never disturbs a running task.
func (m *Manager) Enqueue(sessionID string, tasks []*session.Task) (int, error) {
	for _, task := range tasks {
		if err := task.Validate(); err != nil {
			return 0, err
		}
	}
	added, err := m.store.AddTasks(sessionID, tasks)
	if err != nil {
		return 0, err
	}
	if added > 0 {
		m.logger.Info("tasks enqueued", "session_id", sessionID, "added", added)
	}
	return added, nil
}

// Advance starts the next pending task if the session is idle and
// auto-start is on. No-op otherwise.
func (m *Manager) Advance(ctx context.Context, sessionID string) error {
	m.advanceMu.Lock()

	sess := m.store.Get(sessionID)
	if sess == nil || sess.IsRunning || !sess.AutoStart {
		m.advanceMu.Unlock()
		return nil
	}

	task := sess.FirstPending()
	if task == nil {
		m.advanceMu.Unlock()
		if err := m.store.SetRunning(sessionID, false); err != nil {
			return err
		}
		if err := m.store.SetAutoStart(sessionID, false); err != nil {
			return err
		}
		m.logger.Info("queue empty", "session_id", sessionID)
		if m.OnQueueEmpty != nil {
			m.OnQueueEmpty(sessionID)
		}
		return nil
	}

	if err := m.store.SetRunning(sessionID, true); err != nil {
		m.advanceMu.Unlock()
		return err
	}
	if err := m.store.UpdateTaskStatus(sessionID, task.ID, session.TaskRunning); err != nil {
		m.store.SetRunning(sessionID, false)
		m.advanceMu.Unlock()
		return err
	}
	m.advanceMu.Unlock()

	prompt, err := m.promptFor(task)
	if err != nil {
		// No execution to start: the task itself is unrunnable.
		m.ctrl.AppendError(sessionID, err.Error())
		m.finalize(sessionID, task.ID, &controller.Result{
			Status:       session.TaskFailed,
			ErrorMessage: err.Error(),
			ErrorLogged:  true,
		})
		return nil
	}

	m.logger.Info("task dequeued",
		"session_id", sessionID,
		"task_id", task.ID,
		"label", task.Label)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.runTask(ctx, sessionID, task.ID, prompt)
	}()
	return nil
}

// StartAuto turns on auto-start for a session and kicks an advance.
func (m *Manager) StartAuto(ctx context.Context, sessionID string) error {
	if err := m.store.SetAutoStart(sessionID, true); err != nil {
		return err
	}
	return m.Advance(ctx, sessionID)
}

// Abort tears down the session's live transport, requests server-side
// cancellation (best effort), fails the in-flight task, and halts the
// queue. It never retries.
func (m *Manager) Abort(ctx context.Context, sessionID string) error {
	if t := m.registry.remove(sessionID); t != nil {
		t.cancel()
	}

	sess := m.store.Get(sessionID)
	if sess == nil {
		return nil
	}

	if sess.CurrentExecutionID != "" {
		// Fire and forget: cancellation success is not awaited.
		execID := sess.CurrentExecutionID
		go func() {
			cancelCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := m.client.Cancel(cancelCtx, execID); err != nil {
				m.logger.Warn("cancel request failed", "execution_id", execID, "error", err)
			}
		}()
	}

	if task := sess.RunningTask(); task != nil {
		if err := m.store.UpdateTaskStatus(sessionID, task.ID, session.TaskFailed); err != nil {
			return err
		}
		m.ctrl.AppendSystem(sessionID, "execution aborted")
	}

	if err := m.store.SetCurrentExecution(sessionID, "", ""); err != nil {
		return err
	}
	if err := m.store.SetRunning(sessionID, false); err != nil {
		return err
	}
	if err := m.store.SetAutoStart(sessionID, false); err != nil {
		return err
	}

	m.logger.Info("session aborted", "session_id", sessionID)
	return nil
}

// DismissTask removes a failed task from the queue. Failed tasks are
// kept for inspection until dismissed explicitly.
func (m *Manager) DismissTask(sessionID, taskID string) error {
	sess := m.store.Get(sessionID)
	if sess == nil {
		return nil
	}
	task := sess.FindTask(taskID)
	if task == nil {
		return nil
	}
	if task.Status == session.TaskRunning {
		return fmt.Errorf("task %s is running; abort the session first", taskID)
	}
	return m.store.RemoveTask(sessionID, taskID)
}

// RetryTask puts a failed task back at pending so a later advance picks
// it up again.
func (m *Manager) RetryTask(ctx context.Context, sessionID, taskID string) error {
	sess := m.store.Get(sessionID)
	if sess == nil {
		return fmt.Errorf("no such session: %s", sessionID)
	}
	task := sess.FindTask(taskID)
	if task == nil {
		return fmt.Errorf("%w: %s", session.ErrTaskNotFound, taskID)
	}
	if task.Status != session.TaskFailed {
		return fmt.Errorf("task %s is %s, only failed tasks can be retried", taskID, task.Status)
	}
	if err := m.store.UpdateTaskStatus(sessionID, taskID, session.TaskPending); err != nil {
		return err
	}
	return m.Advance(ctx, sessionID)
}

// Wait blocks until all in-flight task goroutines return. Used by the
// CLI run loop and tests.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Shutdown cancels every live transport.
func (m *Manager) Shutdown() {
	m.registry.shutdown()
}

// runTask drives one execution end to end: submit, stream, fall back to
// polling on transport loss, then finalize.
func (m *Manager) runTask(ctx context.Context, sessionID, taskID, prompt string) {
	sess := m.store.Get(sessionID)
	if sess == nil {
		return
	}

	execID, err := m.ctrl.Submit(ctx, sess, taskID, prompt)
	if err != nil {
		// Submission failure: no stream or poll ever starts.
		m.ctrl.AppendError(sessionID, err.Error())
		m.finalize(sessionID, taskID, &controller.Result{
			Status:       session.TaskFailed,
			ErrorMessage: err.Error(),
			ErrorLogged:  true,
		})
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	t := &transport{kind: TransportStream, executionID: execID, cancel: cancel}
	m.registry.put(sessionID, t)
	defer m.registry.removeIf(sessionID, t)

	var result *controller.Result
	run, err := m.ctrl.Attach(runCtx, execID)
	if err != nil {
		// Submit succeeded, so the execution is in flight even though
		// the stream never opened. Poll instead of failing.
		m.logger.Warn("stream open failed, falling back to poll",
			"session_id", sessionID, "execution_id", execID, "error", err)
		m.registry.setKind(sessionID, TransportPoll)
		result = m.ctrl.Poll(runCtx, sessionID, execID, m.cfg.PollInterval)
	} else {
		result = m.ctrl.Consume(runCtx, sessionID, run)
		if result.Transient {
			run.Close()
			m.registry.setKind(sessionID, TransportPoll)
			result = m.ctrl.Poll(runCtx, sessionID, execID, m.cfg.PollInterval)
		}
	}

	if result.Aborted {
		// Abort already reconciled the store.
		return
	}

	m.finalize(sessionID, taskID, result)
}

// finalize records a terminal outcome and schedules the follow-ups: the
// delayed next advance, and for completed tasks the delayed removal and
// the downstream invalidation signal.
func (m *Manager) finalize(sessionID, taskID string, result *controller.Result) {
	if err := m.store.SetCurrentExecution(sessionID, "", ""); err != nil {
		m.logger.Error("failed to clear execution", "session_id", sessionID, "error", err)
	}
	if err := m.store.UpdateTaskStatus(sessionID, taskID, result.Status); err != nil {
		m.logger.Error("failed to record task outcome", "session_id", sessionID, "task_id", taskID, "error", err)
	}

	switch result.Status {
	case session.TaskCompleted:
		if result.ConversationID != "" {
			if err := m.store.SetResumableID(sessionID, result.ConversationID); err != nil {
				m.logger.Error("failed to persist resumable id", "session_id", sessionID, "error", err)
			}
		}

		attrs := []any{"session_id", sessionID, "task_id", taskID, "duration_ms", result.DurationMS, "cost_usd", result.CostUSD}
		if result.Usage != nil {
			attrs = append(attrs, "input_tokens", result.Usage.InputTokens, "output_tokens", result.Usage.OutputTokens)
		}
		m.logger.Info("task completed", attrs...)

		if sess := m.store.Get(sessionID); sess != nil {
			if task := sess.FindTask(taskID); task != nil {
				m.notifier.TaskCompleted(task)
			}
		}

		time.AfterFunc(m.cfg.RemovalGrace, func() {
			if err := m.store.RemoveTask(sessionID, taskID); err != nil {
				m.logger.Warn("failed to remove completed task", "task_id", taskID, "error", err)
			}
		})

	case session.TaskFailed:
		if result.ErrorMessage != "" && !result.ErrorLogged {
			m.ctrl.AppendError(sessionID, result.ErrorMessage)
		}
		m.logger.Warn("task failed", "session_id", sessionID, "task_id", taskID, "error", result.ErrorMessage)
	}

	if err := m.store.SetRunning(sessionID, false); err != nil {
		m.logger.Error("failed to clear running flag", "session_id", sessionID, "error", err)
	}

	time.AfterFunc(m.cfg.FinalizeDelay, func() {
		if err := m.Advance(context.Background(), sessionID); err != nil {
			m.logger.Error("advance after finalize failed", "session_id", sessionID, "error", err)
		}
	})
}

// promptFor resolves a task to the instruction sent to the worker:
// the direct prompt verbatim, or the synthesized skill instruction.
func (m *Manager) promptFor(task *session.Task) (string, error) {
	if task.DirectPrompt != "" {
		return task.DirectPrompt, nil
	}
	if m.catalog == nil {
		return "", fmt.Errorf("task %s references skill %s but no catalog is configured", task.ID, task.SkillID)
	}
	skill, ok := m.catalog.Get(task.SkillID)
	if !ok {
		return "", fmt.Errorf("task %s references unknown skill %s", task.ID, task.SkillID)
	}
	return skills.Synthesize(skill, task.ContextParams), nil
}
