package transcript

import (
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"

	"github.com/pcovell/genflow/internal/protocol"
)

func init() {
	// Plain text assertions.
	color.NoColor = true
}

func entry(typ protocol.LogEntryType, content string) *protocol.LogEntry {
	return &protocol.LogEntry{
		ID:        "e1",
		Type:      typ,
		Content:   content,
		Timestamp: time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC),
	}
}

func TestFormatEntryUser(t *testing.T) {
	f := NewFormatter()
	got := f.FormatEntry(entry(protocol.LogEntryUser, "build the roster"))
	assert.Equal(t, "09:26:53 you> build the roster", got)
}

func TestFormatEntryAssistant(t *testing.T) {
	f := NewFormatter()
	got := f.FormatEntry(entry(protocol.LogEntryAssistant, "Working on it."))
	assert.Equal(t, "09:26:53 Working on it.", got)
}

func TestFormatEntryToolUse(t *testing.T) {
	f := NewFormatter()
	e := entry(protocol.LogEntryToolUse, "")
	e.ToolName = "Edit"
	e.ToolInput = map[string]any{"file_path": "assets/orc.json"}
	assert.Equal(t, "09:26:53 [Edit] assets/orc.json", f.FormatEntry(e))

	e.ToolInput = nil
	assert.Equal(t, "09:26:53 [Edit]", f.FormatEntry(e))
}

func TestFormatEntrySystemAndError(t *testing.T) {
	f := NewFormatter()
	assert.Equal(t, "09:26:53 * execution aborted",
		f.FormatEntry(entry(protocol.LogEntrySystem, "execution aborted")))
	assert.Equal(t, "09:26:53 error: worker unreachable",
		f.FormatEntry(entry(protocol.LogEntryError, "worker unreachable")))
}

func TestFormatEntryTruncatesToolResults(t *testing.T) {
	f := NewFormatter()
	long := ""
	for i := 0; i < 40; i++ {
		long += "abcdefghij"
	}
	got := f.FormatEntry(entry(protocol.LogEntryToolResult, long))
	assert.Contains(t, got, "...")
	assert.Less(t, len(got), 160)
}

func TestFormatChange(t *testing.T) {
	f := NewFormatter()
	got := f.FormatChange(&protocol.FileChange{
		FilePath:   "scenes/opening.md",
		ChangeType: protocol.ChangeEdit,
		Preview:    "The gates\nswing open",
	})
	assert.Equal(t, "[edit] scenes/opening.md The gates swing open", got)
}

func TestFormatSummary(t *testing.T) {
	f := NewFormatter()
	got := f.FormatSummary("roster", 1200, 450, 8300, 0.0421)
	assert.Contains(t, got, "roster finished in 8.3s")
	assert.Contains(t, got, "in=1200 out=450")
	assert.Contains(t, got, "$0.0421")
}
