package transcript

import (
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/pcovell/genflow/internal/protocol"
)

const previewLimit = 120

// Formatter formats session log entries and file changes for console output
type Formatter struct {
	user      *color.Color
	assistant *color.Color
	tool      *color.Color
	system    *color.Color
	errc      *color.Color
	faint     *color.Color
}

// NewFormatter creates a new transcript formatter
func NewFormatter() *Formatter {
	return &Formatter{
		user:      color.New(color.FgCyan, color.Bold),
		assistant: color.New(color.FgWhite),
		tool:      color.New(color.FgYellow),
		system:    color.New(color.FgGreen),
		errc:      color.New(color.FgRed, color.Bold),
		faint:     color.New(color.Faint),
	}
}

// FormatEntry formats a single log entry for console display
func (f *Formatter) FormatEntry(e *protocol.LogEntry) string {
	ts := f.faint.Sprint(e.Timestamp.Format("15:04:05"))

	switch e.Type {
	case protocol.LogEntryUser:
		return fmt.Sprintf("%s %s %s", ts, f.user.Sprint("you>"), e.Content)

	case protocol.LogEntryAssistant:
		return fmt.Sprintf("%s %s", ts, f.assistant.Sprint(e.Content))

	case protocol.LogEntryToolUse:
		detail := f.toolDetail(e)
		if detail != "" {
			return fmt.Sprintf("%s %s", ts, f.tool.Sprintf("[%s] %s", e.ToolName, detail))
		}
		return fmt.Sprintf("%s %s", ts, f.tool.Sprintf("[%s]", e.ToolName))

	case protocol.LogEntryToolResult:
		return fmt.Sprintf("%s %s", ts, f.faint.Sprint(truncate(e.Content, previewLimit)))

	case protocol.LogEntrySystem:
		return fmt.Sprintf("%s %s", ts, f.system.Sprintf("* %s", e.Content))

	case protocol.LogEntryError:
		return fmt.Sprintf("%s %s", ts, f.errc.Sprintf("error: %s", e.Content))
	}

	return fmt.Sprintf("%s %s", ts, e.Content)
}

// FormatChange formats a file change for console display
func (f *Formatter) FormatChange(c *protocol.FileChange) string {
	line := fmt.Sprintf("[%s] %s", c.ChangeType, c.FilePath)
	if c.Preview != "" {
		line += " " + f.faint.Sprint(truncate(c.Preview, previewLimit))
	}
	return f.tool.Sprint(line)
}

// FormatSummary formats the end-of-task telemetry line
func (f *Formatter) FormatSummary(label string, inputTokens, outputTokens, durationMS int64, costUSD float64) string {
	dur := time.Duration(durationMS) * time.Millisecond
	return f.faint.Sprintf("%s finished in %s (in=%d out=%d tokens, $%.4f)",
		label, dur.Round(100*time.Millisecond), inputTokens, outputTokens, costUSD)
}

// toolDetail pulls the most useful argument out of a tool invocation.
func (f *Formatter) toolDetail(e *protocol.LogEntry) string {
	if len(e.ToolInput) == 0 {
		return ""
	}

	for _, key := range []string{"file_path", "path", "command", "prompt"} {
		if v, ok := e.ToolInput[key].(string); ok && v != "" {
			return truncate(v, previewLimit)
		}
	}
	return ""
}

func truncate(s string, limit int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
