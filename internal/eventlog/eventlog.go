// Package eventlog persists every decoded stream event to an append-only
// NDJSON transcript. The live log/file-change projections are in-memory
// only; the transcript is the durable audit trail of what the worker
// actually sent.
package eventlog

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pcovell/genflow/internal/ndjson"
	"github.com/pcovell/genflow/internal/protocol"
)

// Record is one transcript line.
type Record struct {
	SessionID   string          `json:"session_id"`
	ExecutionID string          `json:"execution_id,omitempty"`
	ReceivedAt  time.Time       `json:"received_at"`
	Event       *protocol.Event `json:"event"`
}

// Log appends records to an NDJSON file.
type Log struct {
	file    *os.File
	encoder *ndjson.Encoder
	logger  *slog.Logger
	mu      sync.Mutex
}

// New opens (or creates) the transcript at logPath for appending.
func New(logPath string, logger *slog.Logger) (*Log, error) {
	dir := filepath.Dir(logPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	return &Log{
		file:    file,
		encoder: ndjson.NewEncoder(file),
		logger:  logger,
	}, nil
}

// Record appends one event to the transcript.
func (l *Log) Record(sessionID, executionID string, evt *protocol.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.encoder.Encode(Record{
		SessionID:   sessionID,
		ExecutionID: executionID,
		ReceivedAt:  time.Now().UTC(),
		Event:       evt,
	})
}

// Close closes the transcript file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// Read loads every record from a transcript file, in order.
func Read(logPath string) ([]Record, error) {
	file, err := os.Open(logPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer file.Close()

	var records []Record
	dec := ndjson.NewDecoder(file)
	for {
		var rec Record
		if err := dec.Decode(&rec); err == io.EOF {
			break
		} else if err != nil {
			return nil, fmt.Errorf("failed to read transcript: %w", err)
		}
		records = append(records, rec)
	}
	return records, nil
}
