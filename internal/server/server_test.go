package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ryandam9/gemma-chatd/internal/backend"
	"github.com/ryandam9/gemma-chatd/internal/chat"
	"github.com/ryandam9/gemma-chatd/internal/events"
	"github.com/ryandam9/gemma-chatd/internal/session"
)

func newTestServer(gen backend.Generator) *Server {
	svc := chat.New(session.NewStore(), gen, nil, chat.Config{Model: "test-model"})
	return New(":0", svc, nil)
}

func echoBackend() backend.Generator {
	return backend.GeneratorFunc(func(ctx context.Context, p string) (string, error) {
		return p + "a reply", nil
	})
}

func postJSON(t *testing.T, handler http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest("POST", path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func get(handler http.Handler, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("GET", path, nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func TestChatEndpoint(t *testing.T) {
	h := newTestServer(echoBackend()).Handler()

	w := postJSON(t, h, "/api/chat", map[string]any{"message": "hi"})
	if w.Code != http.StatusOK {
		t.Fatalf("POST /api/chat status = %d; want 200: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Response   string `json:"response"`
		SessionID  string `json:"session_id"`
		Timestamp  string `json:"timestamp"`
		LastPrompt string `json:"last_prompt"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}

	if resp.Response != "a reply" {
		t.Errorf("response = %q; want %q", resp.Response, "a reply")
	}
	if resp.SessionID == "" {
		t.Error("session_id missing from response")
	}
	if resp.Timestamp == "" {
		t.Error("timestamp missing from response")
	}
	if !strings.Contains(resp.LastPrompt, "<start_of_turn>user\nhi") {
		t.Errorf("last_prompt = %q; want the prompt sent to the backend", resp.LastPrompt)
	}
}

func TestChatEndpointSessionContinuity(t *testing.T) {
	h := newTestServer(echoBackend()).Handler()

	w := postJSON(t, h, "/api/chat", map[string]any{"message": "first"})
	var first struct {
		SessionID string `json:"session_id"`
	}
	json.Unmarshal(w.Body.Bytes(), &first)

	w = postJSON(t, h, "/api/chat", map[string]any{"message": "second", "session_id": first.SessionID})
	var second struct {
		SessionID  string `json:"session_id"`
		LastPrompt string `json:"last_prompt"`
	}
	json.Unmarshal(w.Body.Bytes(), &second)

	if second.SessionID != first.SessionID {
		t.Errorf("session id changed: %q -> %q", first.SessionID, second.SessionID)
	}
	if !strings.Contains(second.LastPrompt, "first") {
		t.Error("second prompt lost the first exchange")
	}
}

func TestChatEndpointRejectsEmptyMessage(t *testing.T) {
	h := newTestServer(echoBackend()).Handler()

	w := postJSON(t, h, "/api/chat", map[string]any{"message": ""})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d; want 400", w.Code)
	}
}

func TestChatEndpointBackendFailure(t *testing.T) {
	h := newTestServer(backend.GeneratorFunc(func(ctx context.Context, p string) (string, error) {
		return "", errors.New("model crashed")
	})).Handler()

	w := postJSON(t, h, "/api/chat", map[string]any{"message": "hi"})
	if w.Code != http.StatusBadGateway {
		t.Errorf("status = %d; want 502", w.Code)
	}
}

func TestHistoryEndpoint(t *testing.T) {
	h := newTestServer(echoBackend()).Handler()

	w := postJSON(t, h, "/api/chat", map[string]any{"message": "hello"})
	var cr struct {
		SessionID string `json:"session_id"`
	}
	json.Unmarshal(w.Body.Bytes(), &cr)

	w = get(h, "/api/history/"+cr.SessionID)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /api/history status = %d; want 200", w.Code)
	}

	var hist struct {
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &hist); err != nil {
		t.Fatal(err)
	}

	if hist.SessionID != cr.SessionID {
		t.Errorf("history session_id = %q; want %q", hist.SessionID, cr.SessionID)
	}
	if len(hist.Messages) != 2 {
		t.Fatalf("history has %d messages; want 2", len(hist.Messages))
	}
	if hist.Messages[0].Role != "user" || hist.Messages[0].Content != "hello" {
		t.Errorf("message 0 = %+v; want user/hello", hist.Messages[0])
	}
	if hist.Messages[1].Role != "assistant" || hist.Messages[1].Content != "a reply" {
		t.Errorf("message 1 = %+v; want assistant/a reply", hist.Messages[1])
	}
}

func TestHistoryEndpointNotFound(t *testing.T) {
	h := newTestServer(echoBackend()).Handler()

	w := get(h, "/api/history/no-such-id")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d; want 404", w.Code)
	}
}

func TestClearEndpoint(t *testing.T) {
	h := newTestServer(echoBackend()).Handler()

	w := postJSON(t, h, "/api/chat", map[string]any{"message": "hello"})
	var cr struct {
		SessionID string `json:"session_id"`
	}
	json.Unmarshal(w.Body.Bytes(), &cr)

	w = postJSON(t, h, "/api/clear/"+cr.SessionID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("POST /api/clear status = %d; want 200: %s", w.Code, w.Body.String())
	}

	w = get(h, "/api/history/"+cr.SessionID)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /api/history after clear status = %d; id must stay valid", w.Code)
	}
	var hist struct {
		Messages []any `json:"messages"`
	}
	json.Unmarshal(w.Body.Bytes(), &hist)
	if len(hist.Messages) != 0 {
		t.Errorf("history after clear has %d messages; want 0", len(hist.Messages))
	}
}

func TestClearEndpointNotFound(t *testing.T) {
	h := newTestServer(echoBackend()).Handler()

	w := postJSON(t, h, "/api/clear/no-such-id", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d; want 404", w.Code)
	}
}

func TestSessionCountEndpoint(t *testing.T) {
	h := newTestServer(echoBackend()).Handler()

	postJSON(t, h, "/api/chat", map[string]any{"message": "a"})
	postJSON(t, h, "/api/chat", map[string]any{"message": "b"})

	w := get(h, "/api/sessions/count")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; want 200", w.Code)
	}

	var stats struct {
		Active int `json:"active_sessions"`
		Total  int `json:"total_sessions_created"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil {
		t.Fatal(err)
	}
	if stats.Active != 2 || stats.Total != 2 {
		t.Errorf("stats = %+v; want 2 active, 2 total", stats)
	}
}

func TestHealthEndpoint(t *testing.T) {
	h := newTestServer(echoBackend()).Handler()

	w := get(h, "/health")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; want 200", w.Code)
	}
	var health struct {
		Status string `json:"status"`
	}
	json.Unmarshal(w.Body.Bytes(), &health)
	if health.Status != "healthy" {
		t.Errorf("status field = %q; want healthy", health.Status)
	}
}

func TestCORSHeaders(t *testing.T) {
	h := newTestServer(echoBackend()).Handler()

	w := get(h, "/health")
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q; want *", got)
	}

	req := httptest.NewRequest("OPTIONS", "/api/chat", nil)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("OPTIONS preflight status = %d; want 200", w.Code)
	}
}

func TestIndexPage(t *testing.T) {
	h := newTestServer(echoBackend()).Handler()

	w := get(h, "/")
	if w.Code != http.StatusOK {
		t.Fatalf("GET / status = %d; want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q; want text/html", ct)
	}
	if !strings.Contains(w.Body.String(), "/api/chat") {
		t.Error("index page does not reference the chat API")
	}
}

func TestEventsEndpointStreamsLifecycle(t *testing.T) {
	bus := events.NewBus()
	svc := chat.New(session.NewStore(), echoBackend(), bus, chat.Config{Model: "m"})
	srv := New(":0", svc, bus)

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, "GET", ts.URL+"/api/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q; want text/event-stream", ct)
	}

	if _, err := svc.SendMessage(context.Background(), "", "hi"); err != nil {
		t.Fatal(err)
	}

	buf := make([]byte, 4096)
	n, err := resp.Body.Read(buf)
	if err != nil {
		t.Fatalf("reading event stream: %v", err)
	}
	if !strings.Contains(string(buf[:n]), string(events.SessionCreated)) {
		t.Errorf("stream = %q; want a %s event", buf[:n], events.SessionCreated)
	}
}
