package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pcovell/genflow/internal/protocol"
	"github.com/pcovell/genflow/internal/session"
	"github.com/pcovell/genflow/internal/worker"
)

func newTestController(t *testing.T, serverURL string) (*Controller, *session.Store) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := session.NewStore(filepath.Join(t.TempDir(), "sessions.json"), logger)
	require.NoError(t, err)
	client := worker.NewClient(serverURL, logger)
	return New(store, client, logger), store
}

// streamServer serves a submit endpoint plus a scripted frame stream.
func streamServer(t *testing.T, frames []string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/executions", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(worker.SubmitResponse{
			ExecutionID:   "exec-1",
			StreamAddress: "/api/executions/exec-1/stream",
		})
	})
	mux.HandleFunc("GET /api/executions/exec-1/stream", func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		for _, frame := range frames {
			fmt.Fprintln(w, frame)
			flusher.Flush()
		}
	})
	return httptest.NewServer(mux)
}

func TestSubmitPersistsExecutionIDBeforeStreaming(t *testing.T) {
	server := streamServer(t, nil)
	defer server.Close()

	ctrl, store := newTestController(t, server.URL)
	require.NoError(t, store.Init("assets", "/projects/grimdark", ""))
	store.AddTasks("assets", []*session.Task{{ID: "t1", DirectPrompt: "p", Status: session.TaskPending}})

	sess := store.Get("assets")
	execID, err := ctrl.Submit(context.Background(), sess, "t1", "generate orc portraits")
	require.NoError(t, err)
	require.Equal(t, "exec-1", execID)

	// Persisted before any stream handling.
	sess = store.Get("assets")
	require.Equal(t, "exec-1", sess.CurrentExecutionID)
	require.Equal(t, "t1", sess.CurrentTaskID)
}

func TestSubmitFailurePersistsNothing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "no such project"})
	}))
	defer server.Close()

	ctrl, store := newTestController(t, server.URL)
	require.NoError(t, store.Init("assets", "/missing", ""))

	_, err := ctrl.Submit(context.Background(), store.Get("assets"), "t1", "p")
	require.Error(t, err)
	require.Empty(t, store.Get("assets").CurrentExecutionID)
}

func TestConsumeToolUseThenResult(t *testing.T) {
	server := streamServer(t, []string{
		`{"kind":"tool_use","tool_name":"Write","tool_use_id":"tu-1","tool_input":{"file_path":"assets/orc.png.json"}}`,
		`{"kind":"tool_use","tool_name":"Edit","tool_use_id":"tu-2","tool_input":{"file_path":"assets/index.json","new_string":"[1]"}}`,
		`{"kind":"result","conversation_id":"conv-9","is_error":false,"usage":{"input_tokens":10,"output_tokens":50},"duration_ms":1200,"cost_usd":0.01}`,
	})
	defer server.Close()

	ctrl, _ := newTestController(t, server.URL)
	run, err := ctrl.Attach(context.Background(), "exec-1")
	require.NoError(t, err)

	result := ctrl.Consume(context.Background(), "assets", run)
	require.False(t, result.Transient)
	require.False(t, result.Aborted)
	require.Equal(t, session.TaskCompleted, result.Status)
	require.Equal(t, "conv-9", result.ConversationID)
	require.NotNil(t, result.Usage)
	require.Equal(t, int64(1200), result.DurationMS)

	// Exactly two tool_use log entries, none for the result frame.
	logs := ctrl.Logs("assets")
	require.Len(t, logs, 2)
	for _, entry := range logs {
		require.Equal(t, protocol.LogEntryToolUse, entry.Type)
	}

	// Both tool_use frames named file paths.
	changes := ctrl.FileChanges("assets")
	require.Len(t, changes, 2)
	require.Equal(t, protocol.ChangeWrite, changes[0].ChangeType)
	require.Equal(t, protocol.ChangeEdit, changes[1].ChangeType)
}

func TestConsumeConnectedIDConfirmedOnlyByResult(t *testing.T) {
	server := streamServer(t, []string{
		`{"kind":"connected","conversation_id":"conv-early"}`,
		`{"kind":"message","content":"thinking"}`,
		`{"kind":"result","is_error":false}`,
	})
	defer server.Close()

	ctrl, _ := newTestController(t, server.URL)
	run, err := ctrl.Attach(context.Background(), "exec-1")
	require.NoError(t, err)

	result := ctrl.Consume(context.Background(), "assets", run)
	require.Equal(t, session.TaskCompleted, result.Status)
	// The result frame carried no id, so the one captured from connected
	// is released now — and only now.
	require.Equal(t, "conv-early", result.ConversationID)
}

func TestConsumeErrorEventFailsTask(t *testing.T) {
	server := streamServer(t, []string{
		`{"kind":"message","content":"starting"}`,
		`{"kind":"error","content":"worker ran out of budget"}`,
	})
	defer server.Close()

	ctrl, _ := newTestController(t, server.URL)
	run, err := ctrl.Attach(context.Background(), "exec-1")
	require.NoError(t, err)

	result := ctrl.Consume(context.Background(), "assets", run)
	require.Equal(t, session.TaskFailed, result.Status)
	require.Equal(t, "worker ran out of budget", result.ErrorMessage)

	// The error frame is the last log entry.
	logs := ctrl.Logs("assets")
	require.Len(t, logs, 2)
	require.Equal(t, protocol.LogEntryError, logs[1].Type)
}

func TestConsumeResultWithIsError(t *testing.T) {
	server := streamServer(t, []string{
		`{"kind":"connected","conversation_id":"conv-bad"}`,
		`{"kind":"result","is_error":true}`,
	})
	defer server.Close()

	ctrl, _ := newTestController(t, server.URL)
	run, err := ctrl.Attach(context.Background(), "exec-1")
	require.NoError(t, err)

	result := ctrl.Consume(context.Background(), "assets", run)
	require.Equal(t, session.TaskFailed, result.Status)
	// A failed run must not surface a conversation id for resumption.
	require.Empty(t, result.ConversationID)
}

func TestConsumeTransportLossIsTransient(t *testing.T) {
	server := streamServer(t, []string{
		`{"kind":"message","content":"partial work"}`,
		// Stream just ends: no result, no error frame.
	})
	defer server.Close()

	ctrl, _ := newTestController(t, server.URL)
	run, err := ctrl.Attach(context.Background(), "exec-1")
	require.NoError(t, err)

	result := ctrl.Consume(context.Background(), "assets", run)
	require.True(t, result.Transient)
	require.False(t, result.Aborted)
	require.Empty(t, result.Status)
}

func TestConsumeAbort(t *testing.T) {
	release := make(chan struct{})
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/executions/exec-1/stream", func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		fmt.Fprintln(w, `{"kind":"message","content":"working"}`)
		flusher.Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	server := httptest.NewServer(mux)
	defer server.Close()
	defer close(release)

	ctrl, _ := newTestController(t, server.URL)
	ctx, cancel := context.WithCancel(context.Background())
	run, err := ctrl.Attach(ctx, "exec-1")
	require.NoError(t, err)

	done := make(chan *Result, 1)
	go func() { done <- ctrl.Consume(ctx, "assets", run) }()

	// Wait until the first frame has been projected, then abort.
	require.Eventually(t, func() bool {
		return len(ctrl.Logs("assets")) == 1
	}, 2*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case result := <-done:
		require.True(t, result.Aborted)
	case <-time.After(2 * time.Second):
		t.Fatal("consume did not return after abort")
	}
}

func TestLogHandlerSeesArrivalOrder(t *testing.T) {
	server := streamServer(t, []string{
		`{"kind":"message","content":"one"}`,
		`{"kind":"message","content":"two"}`,
		`{"kind":"message","content":"three"}`,
		`{"kind":"result","is_error":false}`,
	})
	defer server.Close()

	ctrl, _ := newTestController(t, server.URL)

	var mu sync.Mutex
	var order []string
	ctrl.SetLogHandler(func(sessionID string, entry protocol.LogEntry) {
		mu.Lock()
		defer mu.Unlock()
		order = append(order, entry.Content)
	})

	run, err := ctrl.Attach(context.Background(), "exec-1")
	require.NoError(t, err)
	ctrl.Consume(context.Background(), "assets", run)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"one", "two", "three"}, order)
}

func TestEchoUserAndClearProjections(t *testing.T) {
	server := streamServer(t, nil)
	defer server.Close()

	ctrl, _ := newTestController(t, server.URL)
	ctrl.EchoUser("assets", "generate the orc faction")

	logs := ctrl.Logs("assets")
	require.Len(t, logs, 1)
	require.Equal(t, protocol.LogEntryUser, logs[0].Type)

	ctrl.ClearProjections("assets")
	require.Empty(t, ctrl.Logs("assets"))
	require.Empty(t, ctrl.FileChanges("assets"))
}

func TestProjectionsAreIsolatedPerSession(t *testing.T) {
	server := streamServer(t, nil)
	defer server.Close()

	ctrl, _ := newTestController(t, server.URL)
	ctrl.EchoUser("assets", "a")
	ctrl.EchoUser("factions", "b")

	require.Len(t, ctrl.Logs("assets"), 1)
	require.Len(t, ctrl.Logs("factions"), 1)
	require.Equal(t, "a", ctrl.Logs("assets")[0].Content)
	require.Equal(t, "b", ctrl.Logs("factions")[0].Content)
}
