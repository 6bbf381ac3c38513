package worker

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/pcovell/genflow/internal/ndjson"
	"github.com/pcovell/genflow/internal/protocol"
)

// Stream is one open push-stream connection. Frames arrive on Events()
// already decoded; undecodable lines are dropped. When the channel
// closes, Err() reports why: nil for a clean server close, otherwise the
// transport error.
type Stream struct {
	events chan *protocol.Event
	body   io.ReadCloser
	cancel context.CancelFunc
	done   chan struct{}

	mu  sync.Mutex
	err error

	closeOnce sync.Once
}

// OpenStream connects to the push stream for an execution. Used both for
// fresh submissions and for re-attaching to a known execution id.
func (c *Client) OpenStream(ctx context.Context, executionID string) (*Stream, error) {
	streamCtx, cancel := context.WithCancel(ctx)

	httpReq, err := http.NewRequestWithContext(streamCtx, http.MethodGet, c.executionURL(executionID)+"/stream", nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to build stream request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/x-ndjson")

	// Deliberately not the shared client: streams outlive its timeout.
	resp, err := http.DefaultTransport.RoundTrip(httpReq)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("stream connect failed: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("%w: %s", ErrExecutionNotFound, executionID)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("stream rejected with status %d", resp.StatusCode)
	}

	stream := &Stream{
		events: make(chan *protocol.Event, 64),
		body:   resp.Body,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go stream.readLoop()

	c.logger.Debug("stream opened", "execution_id", executionID)
	return stream, nil
}

// Events returns the decoded frame channel. Closed when the stream ends.
func (s *Stream) Events() <-chan *protocol.Event {
	return s.events
}

// Err reports why the stream ended. Valid after Events() is closed.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close tears the stream down. Safe to call more than once and
// concurrently with the read loop.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.cancel()
		s.body.Close()
	})
	return nil
}

func (s *Stream) readLoop() {
	defer close(s.events)

	dec := ndjson.NewDecoder(s.body)
	for {
		line, err := dec.ReadLine()
		if err == io.EOF {
			return
		}
		if err != nil {
			s.mu.Lock()
			s.err = err
			s.mu.Unlock()
			return
		}

		// Malformed frames (keep-alives and the like) decode to nil and
		// are dropped without ending the stream.
		evt := protocol.Decode(line)
		if evt == nil {
			continue
		}

		select {
		case s.events <- evt:
		case <-s.done:
			return
		}
	}
}
