// Package session owns the persisted per-session execution state: the
// task queue, running/auto-start flags, and the identifiers that let a
// restarted process re-attach to in-flight work. Live projections (log
// entries, file changes) are deliberately not persisted here.
package session

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/pcovell/genflow/internal/fsutil"
)

// SchemaVersion identifies the on-disk state format.
const SchemaVersion = 1

// ErrTaskNotFound is returned when an operation names a task that is not
// in the session's queue.
var ErrTaskNotFound = errors.New("task not found")

// State is the persisted document: a version tag plus the session table.
type State struct {
	Version  int                 `json:"version"`
	Sessions map[string]*Session `json:"sessions"`
}

// Store is a durable, keyed table of sessions. Every mutation runs under
// the store lock and is flushed to disk atomically before it returns, so
// readers always observe the most recent write and a crash never leaves a
// half-applied operation on disk.
type Store struct {
	mu     sync.Mutex
	path   string
	state  *State
	logger *slog.Logger
	clock  func() time.Time
}

// NewStore opens the store at path, loading existing state or starting
// empty when the file does not exist yet.
func NewStore(path string, logger *slog.Logger) (*Store, error) {
	store := &Store{
		path:   path,
		logger: logger,
		clock:  func() time.Time { return time.Now().UTC() },
		state: &State{
			Version:  SchemaVersion,
			Sessions: make(map[string]*Session),
		},
	}

	var loaded State
	err := fsutil.ReadJSON(path, &loaded)
	switch {
	case os.IsNotExist(err):
		// Fresh store.
	case err != nil:
		return nil, fmt.Errorf("failed to load session store: %w", err)
	default:
		if loaded.Version != SchemaVersion {
			return nil, fmt.Errorf("session store version %d not supported (want %d)", loaded.Version, SchemaVersion)
		}
		if loaded.Sessions == nil {
			loaded.Sessions = make(map[string]*Session)
		}
		store.state = &loaded
	}

	return store, nil
}

// Init ensures a session record exists with the given project context.
// Existing sessions keep their queue and flags; only the project fields
// are refreshed.
func (s *Store) Init(sessionID, projectPath, projectID string) error {
	return s.update(sessionID, func(sess *Session) {
		sess.ProjectPath = projectPath
		sess.ProjectID = projectID
	})
}

// AddTasks appends tasks to the session queue, skipping any whose id is
// already queued. Returns the number actually added. A running task is
// never disturbed.
func (s *Store) AddTasks(sessionID string, tasks []*Task) (int, error) {
	added := 0
	err := s.update(sessionID, func(sess *Session) {
		for _, task := range tasks {
			if sess.FindTask(task.ID) != nil {
				continue
			}
			queued := *task
			if queued.Status == "" {
				queued.Status = TaskPending
			}
			if queued.AddedAt.IsZero() {
				queued.AddedAt = s.clock()
			}
			sess.Queue = append(sess.Queue, &queued)
			added++
		}
	})
	return added, err
}

// UpdateTaskStatus moves a task to the given status, stamping StartedAt
// on running and CompletedAt on terminal states. Completed tasks bump the
// session's completed counter.
func (s *Store) UpdateTaskStatus(sessionID, taskID string, status TaskStatus) error {
	found := false
	err := s.update(sessionID, func(sess *Session) {
		task := sess.FindTask(taskID)
		if task == nil {
			return
		}
		found = true

		task.Status = status
		now := s.clock()
		switch {
		case status == TaskRunning:
			task.StartedAt = &now
		case status.Terminal():
			task.CompletedAt = &now
		}
		if status == TaskCompleted {
			sess.CompletedCount++
		}
	})
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: %s in session %s", ErrTaskNotFound, taskID, sessionID)
	}
	return nil
}

// RemoveTask drops a task from the queue. Removing an absent task is a
// no-op.
func (s *Store) RemoveTask(sessionID, taskID string) error {
	return s.update(sessionID, func(sess *Session) {
		for i, task := range sess.Queue {
			if task.ID == taskID {
				sess.Queue = append(sess.Queue[:i], sess.Queue[i+1:]...)
				return
			}
		}
	})
}

// SetResumableID records the conversation id a future execution should
// resume from.
func (s *Store) SetResumableID(sessionID, conversationID string) error {
	return s.update(sessionID, func(sess *Session) {
		sess.ResumableConversationID = conversationID
	})
}

// SetCurrentExecution records (or clears, with empty strings) the
// in-flight execution and the task it belongs to. The two ids travel
// together: an execution id without its task id is unrecoverable state.
func (s *Store) SetCurrentExecution(sessionID, executionID, taskID string) error {
	return s.update(sessionID, func(sess *Session) {
		sess.CurrentExecutionID = executionID
		sess.CurrentTaskID = taskID
	})
}

// SetRunning sets the session-level running flag.
func (s *Store) SetRunning(sessionID string, running bool) error {
	return s.update(sessionID, func(sess *Session) {
		sess.IsRunning = running
	})
}

// SetAutoStart sets whether the manager may dequeue without being asked.
func (s *Store) SetAutoStart(sessionID string, autoStart bool) error {
	return s.update(sessionID, func(sess *Session) {
		sess.AutoStart = autoStart
	})
}

// Touch refreshes the session's last-activity timestamp.
func (s *Store) Touch(sessionID string) error {
	return s.update(sessionID, func(sess *Session) {})
}

// Get returns a deep copy of the session, or nil if it has never been
// created.
func (s *Store) Get(sessionID string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.state.Sessions[sessionID]
	if !ok {
		return nil
	}
	return sess.Clone()
}

// All returns deep copies of every session, ordered by id.
func (s *Store) All() []*Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.state.Sessions))
	for id := range s.state.Sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	sessions := make([]*Session, 0, len(ids))
	for _, id := range ids {
		sessions = append(sessions, s.state.Sessions[id].Clone())
	}
	return sessions
}

// update runs fn against the (get-or-created) session under the store
// lock, refreshes LastActivityAt, and persists the whole table.
func (s *Store) update(sessionID string, fn func(*Session)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.state.Sessions[sessionID]
	if !ok {
		sess = &Session{
			ID:    sessionID,
			Queue: []*Task{},
		}
		s.state.Sessions[sessionID] = sess
	}

	fn(sess)
	sess.LastActivityAt = s.clock()

	if err := fsutil.AtomicWriteJSON(s.path, s.state); err != nil {
		return fmt.Errorf("failed to persist session store: %w", err)
	}
	return nil
}
