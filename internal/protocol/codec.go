package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MaxFrameSize is the maximum accepted frame size (256 KiB).
const MaxFrameSize = 256 * 1024

// Decode parses one raw stream frame into a typed event. Malformed frames
// (bad JSON, missing or unknown kind, oversized) return nil — streams
// interleave keep-alive noise and a bad frame must never kill the stream.
func Decode(raw string) *Event {
	raw = strings.TrimSpace(raw)
	if raw == "" || len(raw) > MaxFrameSize {
		return nil
	}

	var evt Event
	if err := json.Unmarshal([]byte(raw), &evt); err != nil {
		return nil
	}

	switch evt.Kind {
	case EventKindConnected, EventKindMessage, EventKindToolUse,
		EventKindToolResult, EventKindResult, EventKindError:
		return &evt
	default:
		return nil
	}
}

// ToLogEntry translates an event into zero or one display record.
// connected and result frames drive controller state, not the log.
func ToLogEntry(evt *Event, now time.Time) *LogEntry {
	switch evt.Kind {
	case EventKindMessage:
		return &LogEntry{
			ID:        uuid.New().String(),
			Type:      LogEntryAssistant,
			Content:   evt.Content,
			Timestamp: now,
		}

	case EventKindToolUse:
		return &LogEntry{
			ID:        uuid.New().String(),
			Type:      LogEntryToolUse,
			Content:   fmt.Sprintf("Using tool: %s", evt.ToolName),
			Timestamp: now,
			ToolName:  evt.ToolName,
			ToolInput: evt.ToolInput,
		}

	case EventKindToolResult:
		return &LogEntry{
			ID:        uuid.New().String(),
			Type:      LogEntryToolResult,
			Content:   evt.Content,
			Timestamp: now,
		}

	case EventKindError:
		return &LogEntry{
			ID:        uuid.New().String(),
			Type:      LogEntryError,
			Content:   evt.Content,
			Timestamp: now,
		}

	default:
		return nil
	}
}

// fileTools maps worker tool names to the kind of filesystem mutation
// they perform. Tools absent from the map produce no FileChange.
var fileTools = map[string]ChangeType{
	"Edit":      ChangeEdit,
	"MultiEdit": ChangeEdit,
	"Write":     ChangeWrite,
	"Read":      ChangeRead,
	"Delete":    ChangeDelete,
}

// ToFileChange derives a file-change record from a tool_use event, or nil
// when the tool does not touch the filesystem or names no path.
func ToFileChange(evt *Event, now time.Time) *FileChange {
	if evt.Kind != EventKindToolUse {
		return nil
	}

	changeType, ok := fileTools[evt.ToolName]
	if !ok {
		return nil
	}

	path, _ := evt.ToolInput["file_path"].(string)
	if path == "" {
		path, _ = evt.ToolInput["path"].(string)
	}
	if path == "" {
		return nil
	}

	change := &FileChange{
		FilePath:   path,
		ChangeType: changeType,
		Timestamp:  now,
		ToolUseID:  evt.ToolUseID,
	}

	if preview, ok := evt.ToolInput["content"].(string); ok {
		change.Preview = truncate(preview, 200)
	} else if preview, ok := evt.ToolInput["new_string"].(string); ok {
		change.Preview = truncate(preview, 200)
	}

	return change
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
