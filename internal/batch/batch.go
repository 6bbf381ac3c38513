// Package batch coalesces rapid successive log entries into a single
// flush per display tick, so a fast stream never forces an unbounded
// update rate on the consumer. Entries are only deferred, never
// reordered.
package batch

import (
	"sync"
	"time"

	"github.com/pcovell/genflow/internal/protocol"
)

// Buffer accumulates log entries and delivers them in arrival order via
// one flush callback per tick. Appending while a flush is pending just
// grows the batch.
type Buffer struct {
	interval time.Duration
	flush    func([]protocol.LogEntry)

	mu      sync.Mutex
	entries []protocol.LogEntry
	pending bool
	closed  bool
}

// NewBuffer creates a buffer that flushes at most once per interval.
func NewBuffer(interval time.Duration, flush func([]protocol.LogEntry)) *Buffer {
	return &Buffer{
		interval: interval,
		flush:    flush,
	}
}

// Append adds an entry and schedules a flush if none is outstanding.
func (b *Buffer) Append(entry protocol.LogEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	b.entries = append(b.entries, entry)
	if b.pending {
		return
	}
	b.pending = true
	time.AfterFunc(b.interval, b.doFlush)
}

// Flush delivers any buffered entries immediately.
func (b *Buffer) Flush() {
	b.doFlush()
}

// Close flushes remaining entries and stops accepting new ones.
func (b *Buffer) Close() {
	b.doFlush()
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
}

func (b *Buffer) doFlush() {
	b.mu.Lock()
	entries := b.entries
	b.entries = nil
	b.pending = false
	b.mu.Unlock()

	if len(entries) > 0 {
		b.flush(entries)
	}
}
