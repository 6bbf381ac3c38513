package manager

import (
	"context"
	"errors"
	"time"

	"github.com/pcovell/genflow/internal/controller"
	"github.com/pcovell/genflow/internal/session"
	"github.com/pcovell/genflow/internal/worker"
)

// Recover reconciles every session with in-flight or stalled work
// against actual server-side execution status. It runs once per process
// lifetime; repeat calls are no-ops. Streams cannot be re-opened after a
// restart, so an execution still running server-side is re-attached
// through the poll fallback.
func (m *Manager) Recover(ctx context.Context) {
	m.recoverOnce.Do(func() {
		m.setRecovering(true)
		defer m.setRecovering(false)

		// Bound the window even if a status query drags.
		clear := time.AfterFunc(m.cfg.RecoveryWindow, func() { m.setRecovering(false) })
		defer clear.Stop()

		m.logger.Info("recovery started")
		for _, sess := range m.store.All() {
			needsRecovery := sess.RunningTask() != nil ||
				(sess.AutoStart && sess.PendingCount() > 0)
			if !needsRecovery {
				if sess.IsRunning {
					// Stale flag with nothing to recover.
					m.store.SetRunning(sess.ID, false)
				}
				continue
			}
			m.recoverSession(ctx, sess)
		}
		m.logger.Info("recovery finished")
	})
}

// Recovering reports whether startup reconciliation is still in flight,
// so the consuming layer can suppress premature idle states.
func (m *Manager) Recovering() bool {
	m.recovering.Lock()
	defer m.recovering.Unlock()
	return m.inRecovery
}

func (m *Manager) setRecovering(v bool) {
	m.recovering.Lock()
	m.inRecovery = v
	m.recovering.Unlock()
}

func (m *Manager) recoverSession(ctx context.Context, sess *session.Session) {
	log := m.logger.With("session_id", sess.ID)

	if sess.CurrentExecutionID != "" {
		execID := sess.CurrentExecutionID
		taskID := sess.CurrentTaskID

		status, err := m.client.Status(ctx, execID)
		switch {
		case errors.Is(err, worker.ErrExecutionNotFound):
			log.Warn("recovered execution evicted", "execution_id", execID)
			m.finalize(sess.ID, taskID, &controller.Result{
				Status:       session.TaskFailed,
				ErrorMessage: "execution lost across restart",
			})

		case err != nil:
			log.Warn("recovery status query failed", "execution_id", execID, "error", err)
			m.finalize(sess.ID, taskID, &controller.Result{
				Status:       session.TaskFailed,
				ErrorMessage: err.Error(),
			})

		case status.Status == worker.StatusCompleted:
			log.Info("recovered execution already completed", "execution_id", execID)
			m.finalize(sess.ID, taskID, &controller.Result{Status: session.TaskCompleted})

		case status.Status == worker.StatusRunning:
			// Still in flight: re-attach via polling, never re-finalize.
			log.Info("recovered execution still running, polling", "execution_id", execID)
			m.store.SetRunning(sess.ID, true)

			pollCtx, cancel := context.WithCancel(ctx)
			t := &transport{kind: TransportPoll, executionID: execID, cancel: cancel}
			m.registry.put(sess.ID, t)

			m.wg.Add(1)
			go func() {
				defer m.wg.Done()
				defer cancel()
				defer m.registry.removeIf(sess.ID, t)

				result := m.ctrl.Poll(pollCtx, sess.ID, execID, m.cfg.PollInterval)
				if result.Aborted {
					return
				}
				m.finalize(sess.ID, taskID, result)
			}()

		default:
			msg := status.Error
			if msg == "" {
				msg = "execution ended while disconnected"
			}
			m.finalize(sess.ID, taskID, &controller.Result{
				Status:       session.TaskFailed,
				ErrorMessage: msg,
			})
		}
		return
	}

	// No execution id persisted. A task stuck at running is a crash
	// artifact: demote it so it runs again rather than dropping it.
	if task := sess.RunningTask(); task != nil {
		log.Warn("demoting running task with no execution id", "task_id", task.ID)
		if err := m.store.UpdateTaskStatus(sess.ID, task.ID, session.TaskPending); err != nil {
			log.Error("failed to demote task", "task_id", task.ID, "error", err)
		}
	}
	if err := m.store.SetRunning(sess.ID, false); err != nil {
		log.Error("failed to clear running flag", "error", err)
	}

	if sess.AutoStart {
		if err := m.Advance(ctx, sess.ID); err != nil {
			log.Error("advance after recovery failed", "error", err)
		}
	}
}
