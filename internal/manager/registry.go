package manager

import (
	"context"
	"sync"
)

// TransportKind says which kind of live transport a session holds.
type TransportKind string

const (
	TransportStream TransportKind = "stream"
	TransportPoll   TransportKind = "poll"
)

// transport is one live stream or poll loop. These handles are process
// state only: they are never persisted, and a session holds at most one
// at a time.
type transport struct {
	kind        TransportKind
	executionID string
	cancel      context.CancelFunc
}

// transportRegistry tracks the live transport per session. Registering a
// new transport tears down any previous one, which is what enforces the
// stream/poll mutual exclusion.
type transportRegistry struct {
	mu sync.Mutex
	m  map[string]*transport
}

func newTransportRegistry() *transportRegistry {
	return &transportRegistry{m: make(map[string]*transport)}
}

// put registers a transport, cancelling whatever was there before.
func (r *transportRegistry) put(sessionID string, t *transport) {
	r.mu.Lock()
	prev := r.m[sessionID]
	r.m[sessionID] = t
	r.mu.Unlock()

	if prev != nil && prev != t {
		prev.cancel()
	}
}

// setKind updates the kind of the registered transport without touching
// its cancel func (the stream→poll handoff reuses one run context).
func (r *transportRegistry) setKind(sessionID string, kind TransportKind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.m[sessionID]; ok {
		t.kind = kind
	}
}

// remove unregisters and returns the session's transport, if any.
func (r *transportRegistry) remove(sessionID string) *transport {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := r.m[sessionID]
	delete(r.m, sessionID)
	return t
}

// removeIf unregisters only if the given transport is still current.
func (r *transportRegistry) removeIf(sessionID string, t *transport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.m[sessionID] == t {
		delete(r.m, sessionID)
	}
}

// active reports the kind of the session's live transport.
func (r *transportRegistry) active(sessionID string) (TransportKind, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.m[sessionID]
	if !ok {
		return "", false
	}
	return t.kind, true
}

// shutdown cancels every live transport. Called on process exit.
func (r *transportRegistry) shutdown() {
	r.mu.Lock()
	transports := make([]*transport, 0, len(r.m))
	for _, t := range r.m {
		transports = append(transports, t)
	}
	r.m = make(map[string]*transport)
	r.mu.Unlock()

	for _, t := range transports {
		t.cancel()
	}
}
