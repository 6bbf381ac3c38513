package session

import (
	"fmt"
	"time"
)

// TaskStatus tracks a task through its lifecycle.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
)

// Terminal reports whether the status is an end state.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed
}

// Task is one unit of requested generation work: either a reference to a
// named skill or a literal prompt, never both.
type Task struct {
	ID            string            `json:"id"`
	SkillID       string            `json:"skill_id,omitempty"`
	DirectPrompt  string            `json:"direct_prompt,omitempty"`
	Label         string            `json:"label"`
	Status        TaskStatus        `json:"status"`
	AddedAt       time.Time         `json:"added_at"`
	StartedAt     *time.Time        `json:"started_at,omitempty"`
	CompletedAt   *time.Time        `json:"completed_at,omitempty"`
	ContextParams map[string]string `json:"context_params,omitempty"`
}

// Validate checks that the task names exactly one work source.
func (t *Task) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("task has no id")
	}
	if t.SkillID == "" && t.DirectPrompt == "" {
		return fmt.Errorf("task %s: needs a skill id or a direct prompt", t.ID)
	}
	if t.SkillID != "" && t.DirectPrompt != "" {
		return fmt.Errorf("task %s: skill id and direct prompt are mutually exclusive", t.ID)
	}
	return nil
}

// Session is a named, persisted execution context: a task queue plus the
// identifiers needed to resume or recover in-flight work.
type Session struct {
	ID                      string    `json:"id"`
	ProjectPath             string    `json:"project_path"`
	ProjectID               string    `json:"project_id,omitempty"`
	ResumableConversationID string    `json:"resumable_conversation_id,omitempty"`
	CurrentExecutionID      string    `json:"current_execution_id,omitempty"`
	CurrentTaskID           string    `json:"current_task_id,omitempty"`
	Queue                   []*Task   `json:"queue"`
	IsRunning               bool      `json:"is_running"`
	AutoStart               bool      `json:"auto_start"`
	LastActivityAt          time.Time `json:"last_activity_at"`
	CompletedCount          int       `json:"completed_count"`
}

// FindTask returns the queued task with the given id, or nil.
func (s *Session) FindTask(taskID string) *Task {
	for _, task := range s.Queue {
		if task.ID == taskID {
			return task
		}
	}
	return nil
}

// FirstPending returns the earliest-added pending task, or nil. Queue
// order is submission order, so the first match wins.
func (s *Session) FirstPending() *Task {
	for _, task := range s.Queue {
		if task.Status == TaskPending {
			return task
		}
	}
	return nil
}

// RunningTask returns the task currently marked running, or nil. At most
// one task per session may be running.
func (s *Session) RunningTask() *Task {
	for _, task := range s.Queue {
		if task.Status == TaskRunning {
			return task
		}
	}
	return nil
}

// PendingCount returns the number of pending tasks in the queue.
func (s *Session) PendingCount() int {
	n := 0
	for _, task := range s.Queue {
		if task.Status == TaskPending {
			n++
		}
	}
	return n
}

// Clone returns a deep copy so callers can read session state without
// holding a reference into the store.
func (s *Session) Clone() *Session {
	clone := *s
	clone.Queue = make([]*Task, len(s.Queue))
	for i, task := range s.Queue {
		taskCopy := *task
		if task.StartedAt != nil {
			startedAt := *task.StartedAt
			taskCopy.StartedAt = &startedAt
		}
		if task.CompletedAt != nil {
			completedAt := *task.CompletedAt
			taskCopy.CompletedAt = &completedAt
		}
		if task.ContextParams != nil {
			taskCopy.ContextParams = make(map[string]string, len(task.ContextParams))
			for k, v := range task.ContextParams {
				taskCopy.ContextParams[k] = v
			}
		}
		clone.Queue[i] = &taskCopy
	}
	return &clone
}
