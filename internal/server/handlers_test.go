package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tripwise/server/internal/agent/graph"
	"github.com/tripwise/server/internal/agent/model"
	"github.com/tripwise/server/internal/agent/repo"
	"github.com/tripwise/server/internal/agent/stream"
	errx "github.com/tripwise/server/internal/core/error"
	"github.com/tripwise/server/internal/interrupt"
)

type stubRunner struct {
	fn func(ctx context.Context, in model.QueryInput) (graph.Result, error)
}

func (r *stubRunner) Invoke(ctx context.Context, in model.QueryInput) (graph.Result, error) {
	return r.fn(ctx, in)
}

func completeRunner(content string) *stubRunner {
	return &stubRunner{fn: func(ctx context.Context, in model.QueryInput) (graph.Result, error) {
		return graph.Result{Content: content, Terminal: string(stream.EventComplete)}, nil
	}}
}

func newTestServer(t *testing.T, runner graph.Runner) (*Server, *interrupt.Registry, *repo.MemoryStateRepository) {
	t.Helper()
	registry := interrupt.NewRegistry()
	states := repo.NewMemoryStateRepository()
	s, err := New(Options{
		Runner:     runner,
		States:     states,
		Interrupts: registry,
	})
	require.NoError(t, err)
	return s, registry, states
}

func doJSON(s *Server, method, path, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestNewValidation(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)

	_, err = New(Options{Runner: completeRunner("ok")})
	assert.Error(t, err)
}

func TestRootAndHealth(t *testing.T) {
	s, _, _ := newTestServer(t, completeRunner("ok"))

	w := doJSON(s, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "tripwise")

	w = doJSON(s, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, w.Code)

	var health map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, "disabled", health["redis"])
	assert.EqualValues(t, 0, health["active_queries"])
}

func TestChatStreamRequiresQuery(t *testing.T) {
	s, _, _ := newTestServer(t, completeRunner("ok"))

	w := doJSON(s, http.MethodPost, "/api/chat/stream", `{"query": "  "}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(s, http.MethodPost, "/api/chat/stream", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestChatStreamAcceptsMessageAlias(t *testing.T) {
	var got model.QueryInput
	runner := &stubRunner{fn: func(ctx context.Context, in model.QueryInput) (graph.Result, error) {
		got = in
		return graph.Result{Content: "ok", Terminal: string(stream.EventComplete)}, nil
	}}
	s, _, _ := newTestServer(t, runner)

	w := doJSON(s, http.MethodPost, "/api/chat/stream", `{"message": "find flights"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "find flights", got.Query)
}

func TestChatStreamCompleteFlow(t *testing.T) {
	runner := &stubRunner{fn: func(ctx context.Context, in model.QueryInput) (graph.Result, error) {
		// Events emitted mid-run reach the stream through the context.
		pub := stream.FromContext(ctx)
		pub.Emit(stream.Event{Type: stream.EventAgentStart, Agent: model.AgentFlight})
		return graph.Result{Content: "Found 3 flights.", Terminal: string(stream.EventComplete)}, nil
	}}
	s, registry, _ := newTestServer(t, runner)

	w := doJSON(s, http.MethodPost, "/api/chat/stream", `{"query": "find flights", "thread_id": "t1", "user_id": "u1"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	assert.NotEmpty(t, w.Header().Get("X-Query-ID"))
	assert.Equal(t, "t1", w.Header().Get("X-Thread-ID"))

	body := w.Body.String()
	assert.Contains(t, body, "event: start")
	assert.Contains(t, body, "event: agent_start")
	assert.Contains(t, body, "event: complete")
	assert.Contains(t, body, "Found 3 flights.")

	// The tracking entry is dropped once the stream is drained.
	assert.Zero(t, registry.Active())
}

func TestChatStreamPipelineError(t *testing.T) {
	runner := &stubRunner{fn: func(ctx context.Context, in model.QueryInput) (graph.Result, error) {
		return graph.Result{}, errx.New(errors.New("upstream exploded"), http.StatusBadGateway, errx.ProviderErrorMessage)
	}}
	s, _, _ := newTestServer(t, runner)

	w := doJSON(s, http.MethodPost, "/api/chat/stream", `{"query": "find flights"}`)
	body := w.Body.String()
	assert.Contains(t, body, "event: error")
	assert.Contains(t, body, errx.ProviderErrorMessage)
	// Internal detail never leaks to the client.
	assert.NotContains(t, body, "upstream exploded")
}

func TestChatStreamPanicRecovery(t *testing.T) {
	runner := &stubRunner{fn: func(ctx context.Context, in model.QueryInput) (graph.Result, error) {
		panic("boom")
	}}
	s, _, _ := newTestServer(t, runner)

	w := doJSON(s, http.MethodPost, "/api/chat/stream", `{"query": "find flights"}`)
	body := w.Body.String()
	assert.Contains(t, body, "event: error")
	assert.Contains(t, body, errx.SystemErrorMessage)
	assert.NotContains(t, body, "boom")
}

func TestCancel(t *testing.T) {
	s, registry, _ := newTestServer(t, completeRunner("ok"))

	w := doJSON(s, http.MethodPost, "/api/chat/cancel", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(s, http.MethodPost, "/api/chat/cancel", `{"query_id": "missing"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	registry.Register("q1", "t1", "find flights")
	w = doJSON(s, http.MethodPost, "/api/chat/cancel", `{"query_id": "q1", "reason": "changed plans"}`)
	assert.Equal(t, http.StatusOK, w.Code)

	var ack struct {
		QueryID   string `json:"query_id"`
		Status    string `json:"status"`
		Reason    string `json:"reason"`
		Timestamp string `json:"timestamp"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ack))
	assert.Equal(t, "q1", ack.QueryID)
	assert.Equal(t, string(interrupt.StatusInterrupted), ack.Status)
	assert.Equal(t, "changed plans", ack.Reason)
	assert.NotEmpty(t, ack.Timestamp)

	cancelled, reason := registry.ShouldInterrupt("q1")
	assert.True(t, cancelled)
	assert.Equal(t, "changed plans", reason)
}

func TestStatus(t *testing.T) {
	s, registry, _ := newTestServer(t, completeRunner("ok"))

	w := doJSON(s, http.MethodGet, "/api/chat/status/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	registry.Register("q1", "t1", "find flights")
	w = doJSON(s, http.MethodGet, "/api/chat/status/q1", "")
	assert.Equal(t, http.StatusOK, w.Code)

	var info interrupt.Info
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	assert.Equal(t, "q1", info.QueryID)
	assert.Equal(t, interrupt.StatusProcessing, info.Status)
}

func TestResume(t *testing.T) {
	var got model.QueryInput
	runner := &stubRunner{fn: func(ctx context.Context, in model.QueryInput) (graph.Result, error) {
		got = in
		return graph.Result{Content: "resumed", Terminal: string(stream.EventComplete)}, nil
	}}
	s, registry, _ := newTestServer(t, runner)

	w := doJSON(s, http.MethodPost, "/api/chat/resume", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// A stale cancellation flag from the interrupted query must not leak
	// into the resumed run.
	registry.Register("q-old", "t1", "original")
	registry.Cancel("q-old", "stop")

	w = doJSON(s, http.MethodPost, "/api/chat/resume", `{"thread_id": "t1", "previous_query_id": "q-old"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "event: complete")

	assert.Equal(t, "t1", got.ThreadID)
	assert.Equal(t, "Please continue with my previous request.", got.Query)
	assert.NotEqual(t, "q-old", got.QueryID)
	assert.Equal(t, interrupt.StatusNotFound, registry.Status("q-old").Status)

	// query_id remains accepted as an alias for previous_query_id.
	registry.Register("q-alias", "t1", "original")
	w = doJSON(s, http.MethodPost, "/api/chat/resume", `{"thread_id": "t1", "query_id": "q-alias", "query": "keep going"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "keep going", got.Query)
	assert.Equal(t, interrupt.StatusNotFound, registry.Status("q-alias").Status)
}

func TestHistory(t *testing.T) {
	s, _, states := newTestServer(t, completeRunner("ok"))

	w := doJSON(s, http.MethodGet, "/api/chat/history/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	state := model.NewConversationState("q1", "t1", "find flights")
	state.AppendAssistant("Here are your flights.")
	state.Status = model.StatusComplete
	require.NoError(t, states.Save(context.Background(), state))

	w = doJSON(s, http.MethodGet, "/api/chat/history/t1", "")
	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		ThreadID string           `json:"thread_id"`
		Status   string           `json:"status"`
		Messages []historyMessage `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "t1", resp.ThreadID)
	assert.Equal(t, string(model.StatusComplete), resp.Status)
	require.Len(t, resp.Messages, 2)
	assert.Equal(t, "user", resp.Messages[0].Role)
	assert.Equal(t, "find flights", resp.Messages[0].Content)
	assert.Equal(t, "assistant", resp.Messages[1].Role)
}

func TestCORSPreflight(t *testing.T) {
	s, _, _ := newTestServer(t, completeRunner("ok"))

	req := httptest.NewRequest(http.MethodOptions, "/api/chat/stream", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestWriteSSEFormat(t *testing.T) {
	w := httptest.NewRecorder()
	writeSSE(w, stream.Event{Type: stream.EventToken, Content: "hel"})

	body := w.Body.String()
	assert.True(t, strings.HasPrefix(body, "event: token\ndata: "))
	assert.True(t, strings.HasSuffix(body, "\n\n"))
	assert.Contains(t, body, `"content":"hel"`)
}
