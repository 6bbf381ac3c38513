package protocol

import (
	"time"
)

// EventKind discriminates the frames pushed by the worker service.
type EventKind string

const (
	EventKindConnected  EventKind = "connected"
	EventKindMessage    EventKind = "message"
	EventKindToolUse    EventKind = "tool_use"
	EventKindToolResult EventKind = "tool_result"
	EventKindResult     EventKind = "result"
	EventKindError      EventKind = "error"
)

// Usage carries token accounting reported by the worker on completion.
type Usage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// Event is one decoded stream frame. Exactly the fields for the frame's
// kind are populated; the rest stay zero.
type Event struct {
	Kind EventKind `json:"kind"`

	// connected
	ConversationID string `json:"conversation_id,omitempty"`

	// message, tool_result, error
	Content string `json:"content,omitempty"`

	// tool_use
	ToolUseID string         `json:"tool_use_id,omitempty"`
	ToolName  string         `json:"tool_name,omitempty"`
	ToolInput map[string]any `json:"tool_input,omitempty"`

	// result
	Usage      *Usage  `json:"usage,omitempty"`
	DurationMS int64   `json:"duration_ms,omitempty"`
	CostUSD    float64 `json:"cost_usd,omitempty"`
	IsError    bool    `json:"is_error,omitempty"`
}

// LogEntryType classifies a log record for display.
type LogEntryType string

const (
	LogEntryUser       LogEntryType = "user"
	LogEntryAssistant  LogEntryType = "assistant"
	LogEntryToolUse    LogEntryType = "tool_use"
	LogEntryToolResult LogEntryType = "tool_result"
	LogEntrySystem     LogEntryType = "system"
	LogEntryError      LogEntryType = "error"
)

// LogEntry is an immutable, append-only display record derived from a
// stream event (or synthesized locally, e.g. echoing user input).
type LogEntry struct {
	ID        string         `json:"id"`
	Type      LogEntryType   `json:"type"`
	Content   string         `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
	ToolName  string         `json:"tool_name,omitempty"`
	ToolInput map[string]any `json:"tool_input,omitempty"`
}

// ChangeType classifies how a tool invocation touched the filesystem.
type ChangeType string

const (
	ChangeEdit   ChangeType = "edit"
	ChangeWrite  ChangeType = "write"
	ChangeRead   ChangeType = "read"
	ChangeDelete ChangeType = "delete"
)

// FileChange is derived from tool_use events that name a file path.
type FileChange struct {
	FilePath   string     `json:"file_path"`
	ChangeType ChangeType `json:"change_type"`
	Timestamp  time.Time  `json:"timestamp"`
	ToolUseID  string     `json:"tool_use_id,omitempty"`
	Preview    string     `json:"preview,omitempty"`
}
