package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/opsdeck/opsdeck/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(ClientConfig{BaseURL: srv.URL, Timeout: 5 * time.Second}, logging.New(nil, "silent"))
}

func collect(t *testing.T, events <-chan ExchangeEvent) []ExchangeEvent {
	t.Helper()
	var got []ExchangeEvent
	for ev := range events {
		got = append(got, ev)
	}
	return got
}

func TestOpenExchange_StreamsEvents(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat/stream", r.URL.Path)

		var req ExchangeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "plan my day", req.Message)
		assert.True(t, req.Stream)

		w.Write([]byte(`{"type":"session","session_id":"s1"}` + "\n"))
		w.Write([]byte(`{"type":"reasoning","content":"looking at calendar"}` + "\n"))
		w.Write([]byte(`{"type":"message","id":"m1","content":"Two meetings today."}` + "\n"))
	}))

	events, err := client.OpenExchange(context.Background(), ExchangeRequest{Message: "plan my day"})
	require.NoError(t, err)

	got := collect(t, events)
	require.Len(t, got, 3)
	assert.Equal(t, SessionEvent{SessionID: "s1"}, got[0])
	assert.Equal(t, ReasoningEvent{Content: "looking at calendar"}, got[1])
	assert.Equal(t, MessageEvent{ID: "m1", Content: "Two meetings today."}, got[2])
}

func TestOpenExchange_SkipsMalformedLines(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"type":"session","session_id":"s1"}` + "\n"))
		w.Write([]byte("not json at all\n"))
		w.Write([]byte(`{"type":"telemetry"}` + "\n"))
		w.Write([]byte("\n"))
		w.Write([]byte(`{"type":"message","id":"m1","content":"done"}` + "\n"))
	}))

	events, err := client.OpenExchange(context.Background(), ExchangeRequest{Message: "hi"})
	require.NoError(t, err)

	got := collect(t, events)
	require.Len(t, got, 2)
	assert.Equal(t, SessionEvent{SessionID: "s1"}, got[0])
	assert.Equal(t, MessageEvent{ID: "m1", Content: "done"}, got[1])
}

func TestOpenExchange_ReassemblesSplitLines(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		// One event split across two writes: the reader must buffer until the
		// newline arrives.
		w.Write([]byte(`{"type":"message","id":"m1",`))
		flusher.Flush()
		w.Write([]byte(`"content":"split across chunks"}` + "\n"))
		flusher.Flush()
	}))

	events, err := client.OpenExchange(context.Background(), ExchangeRequest{Message: "hi"})
	require.NoError(t, err)

	got := collect(t, events)
	require.Len(t, got, 1)
	assert.Equal(t, MessageEvent{ID: "m1", Content: "split across chunks"}, got[0])
}

func TestOpenExchange_HTTPError(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))

	_, err := client.OpenExchange(context.Background(), ExchangeRequest{Message: "hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestOpenExchange_SendsBearerToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
	}))
	t.Cleanup(srv.Close)

	client := NewClient(ClientConfig{BaseURL: srv.URL, Token: "secret"}, logging.New(nil, "silent"))
	events, err := client.OpenExchange(context.Background(), ExchangeRequest{Message: "hi"})
	require.NoError(t, err)
	collect(t, events)

	assert.Equal(t, "Bearer secret", gotAuth)
}

func TestExchange_Buffered(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)

		var req ExchangeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.False(t, req.Stream)

		json.NewEncoder(w).Encode(ExchangeResult{SessionID: "s1", Message: "All done."})
	}))

	result, err := client.Exchange(context.Background(), ExchangeRequest{Message: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "s1", result.SessionID)
	assert.Equal(t, "All done.", result.Message)
}

func TestSubmitDecision(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/approvals/decide", r.URL.Path)

		var req DecisionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "p1", req.ProposalID)
		assert.True(t, req.Approved)

		json.NewEncoder(w).Encode(DecisionResult{Status: "ok", ExecutionStatus: "executed"})
	}))

	result, err := client.SubmitDecision(context.Background(), DecisionRequest{ProposalID: "p1", Approved: true})
	require.NoError(t, err)
	assert.Equal(t, "executed", result.EffectiveStatus())
}

func TestSubmitDecision_ServerError(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "executor unavailable", http.StatusBadGateway)
	}))

	_, err := client.SubmitDecision(context.Background(), DecisionRequest{ProposalID: "p1", Approved: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestDecisionResult_EffectiveStatus_Fallback(t *testing.T) {
	r := &DecisionResult{Status: "executed"}
	assert.Equal(t, "executed", r.EffectiveStatus())

	r = &DecisionResult{Status: "ok", ExecutionStatus: "failed"}
	assert.Equal(t, "failed", r.EffectiveStatus())
}

func TestHistory(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/sessions/s1/messages", r.URL.Path)
		w.Write([]byte(`{"messages":[
			{"id":"m1","content":"hello","sender":"user"},
			{"id":"m2","content":"hi there","sender":"assistant","metadata":{"agents":["mail"]}}
		]}`))
	}))

	msgs, err := client.History(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "hello", msgs[0].Content)
	assert.Equal(t, "assistant", string(msgs[1].Sender))
	assert.NotNil(t, msgs[1].Metadata)
}

func TestSessions(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/sessions", r.URL.Path)
		w.Write([]byte(`{"sessions":[{"id":"s1","title":"Morning triage"},{"id":"s2","title":"Inbox zero"}]}`))
	}))

	sessions, err := client.Sessions(context.Background())
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "Morning triage", sessions[0].Title)
}
