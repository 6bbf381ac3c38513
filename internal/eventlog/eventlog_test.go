package eventlog

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/pcovell/genflow/internal/protocol"
)

func TestRecordAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events", "assets.ndjson")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	log, err := New(path, logger)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	events := []*protocol.Event{
		{Kind: protocol.EventKindConnected, ConversationID: "conv-1"},
		{Kind: protocol.EventKindMessage, Content: "drafting"},
		{Kind: protocol.EventKindResult},
	}
	for _, evt := range events {
		if err := log.Record("assets", "exec-1", evt); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}
	if err := log.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	records, err := Read(path)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("records = %d, want 3", len(records))
	}
	for i, rec := range records {
		if rec.SessionID != "assets" || rec.ExecutionID != "exec-1" {
			t.Errorf("record %d ids = %s/%s", i, rec.SessionID, rec.ExecutionID)
		}
		if rec.Event.Kind != events[i].Kind {
			t.Errorf("record %d kind = %s, want %s", i, rec.Event.Kind, events[i].Kind)
		}
		if rec.ReceivedAt.IsZero() {
			t.Errorf("record %d missing timestamp", i)
		}
	}
}

func TestAppendAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.ndjson")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	first, err := New(path, logger)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	first.Record("s", "e1", &protocol.Event{Kind: protocol.EventKindMessage})
	first.Close()

	second, err := New(path, logger)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	second.Record("s", "e2", &protocol.Event{Kind: protocol.EventKindResult})
	second.Close()

	records, err := Read(path)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("records = %d, want 2 (append, not truncate)", len(records))
	}
	if records[0].ExecutionID != "e1" || records[1].ExecutionID != "e2" {
		t.Errorf("order = %s,%s", records[0].ExecutionID, records[1].ExecutionID)
	}
}
