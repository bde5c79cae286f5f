package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	_ "modernc.org/sqlite"

	"github.com/hewlab/hew/internal/agent/ai"
	"github.com/hewlab/hew/internal/agent/runner"
	"github.com/hewlab/hew/internal/agent/session"
	"github.com/hewlab/hew/internal/agent/tools"
	"github.com/hewlab/hew/internal/config"
)

const testSchema = `
CREATE TABLE sessions (
    id TEXT PRIMARY KEY,
    name TEXT,
    summary TEXT,
    message_count INTEGER DEFAULT 0,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);
CREATE UNIQUE INDEX idx_sessions_name ON sessions(name);
CREATE TABLE session_messages (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
    role TEXT NOT NULL,
    content TEXT,
    tool_calls TEXT,
    tool_results TEXT,
    created_at INTEGER NOT NULL DEFAULT (unixepoch())
);
`

// stubProvider answers every stream with a fixed script
type stubProvider struct {
	id     string
	script []ai.StreamEvent
	models []ai.ModelDescriptor
}

func (p *stubProvider) ID() string { return p.id }

func (p *stubProvider) Stream(ctx context.Context, req *ai.ChatRequest) (<-chan ai.StreamEvent, error) {
	ch := make(chan ai.StreamEvent, len(p.script)+1)
	for _, ev := range p.script {
		ch <- ev
	}
	ch <- ai.StreamEvent{Type: ai.EventTypeDone}
	close(ch)
	return ch, nil
}

func (p *stubProvider) ListModels(ctx context.Context) ([]ai.ModelDescriptor, error) {
	return p.models, nil
}

func (p *stubProvider) Cancel() {}

func newTestServer(t *testing.T, provider *stubProvider) (*Server, *session.Manager) {
	t.Helper()

	sqlDB, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	if _, err := sqlDB.Exec(testSchema); err != nil {
		t.Fatal(err)
	}
	sessions, err := session.New(sqlDB)
	if err != nil {
		t.Fatal(err)
	}

	aiRouter := ai.NewRouter()
	aiRouter.Register(provider)

	registry := tools.NewRegistry()
	registry.RegisterDefaults()

	cfg := config.DefaultConfig()
	cfg.ContextMode = "minimal"
	cfg.WorkspaceDir = t.TempDir()

	run := runner.New(cfg, sessions, aiRouter, registry)
	return New(cfg, run, aiRouter, sessions, Options{Quiet: true}), sessions
}

func textProvider() *stubProvider {
	return &stubProvider{
		id:     "stub",
		script: []ai.StreamEvent{{Type: ai.EventTypeText, Text: "hello from the loop"}},
		models: []ai.ModelDescriptor{
			{Provider: "stub", ID: "stub-small"},
			{Provider: "stub", ID: "stub-large"},
		},
	}
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t, textProvider())
	ts := httptest.NewServer(s.routes())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d", resp.StatusCode)
	}
}

func TestListModels(t *testing.T) {
	s, _ := newTestServer(t, textProvider())
	ts := httptest.NewServer(s.routes())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/v1/models")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var body struct {
		Models []ai.ModelDescriptor `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if len(body.Models) != 2 {
		t.Fatalf("expected 2 models, got %d", len(body.Models))
	}
	if body.Models[0].ID != "stub-large" {
		t.Errorf("models must be sorted by id, got %v", body.Models)
	}
}

func TestSessionEndpoints(t *testing.T) {
	s, sessions := newTestServer(t, textProvider())
	ts := httptest.NewServer(s.routes())
	defer ts.Close()

	sess, err := sessions.GetOrCreate("api-test")
	if err != nil {
		t.Fatal(err)
	}
	err = sessions.AppendMessage(sess.ID, session.Message{Role: "user", Content: "hi"})
	if err != nil {
		t.Fatal(err)
	}

	resp, err := http.Get(ts.URL + "/api/v1/agent/sessions")
	if err != nil {
		t.Fatal(err)
	}
	var listBody struct {
		Sessions []session.Session `json:"sessions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&listBody); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if len(listBody.Sessions) != 1 || listBody.Sessions[0].SessionKey != "api-test" {
		t.Fatalf("unexpected session list: %+v", listBody.Sessions)
	}

	resp, err = http.Get(ts.URL + "/api/v1/agent/sessions/" + sess.ID + "/messages")
	if err != nil {
		t.Fatal(err)
	}
	var msgBody struct {
		Messages []session.Message `json:"messages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&msgBody); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if len(msgBody.Messages) != 1 || msgBody.Messages[0].Content != "hi" {
		t.Fatalf("unexpected messages: %+v", msgBody.Messages)
	}

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/v1/agent/sessions/"+sess.ID, nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("delete status = %d", resp.StatusCode)
	}

	remaining, err := sessions.ListSessions()
	if err != nil {
		t.Fatal(err)
	}
	if len(remaining) != 0 {
		t.Errorf("session not deleted: %+v", remaining)
	}
}

func TestCancelEndpoint(t *testing.T) {
	s, _ := newTestServer(t, textProvider())
	ts := httptest.NewServer(s.routes())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/v1/agent/cancel", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("cancel status = %d", resp.StatusCode)
	}
}

func TestCORSLocalhostOnly(t *testing.T) {
	s, _ := newTestServer(t, textProvider())
	ts := httptest.NewServer(s.routes())
	defer ts.Close()

	cases := []struct {
		origin  string
		allowed bool
	}{
		{"http://localhost:5173", true},
		{"http://127.0.0.1:8080", true},
		{"https://evil.example.com", false},
	}
	for _, tc := range cases {
		req, _ := http.NewRequest(http.MethodGet, ts.URL+"/health", nil)
		req.Header.Set("Origin", tc.origin)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()

		got := resp.Header.Get("Access-Control-Allow-Origin")
		if tc.allowed && got != tc.origin {
			t.Errorf("origin %s should be allowed, got header %q", tc.origin, got)
		}
		if !tc.allowed && got != "" {
			t.Errorf("origin %s must not get CORS headers, got %q", tc.origin, got)
		}
	}
}

func TestIsLocalhostOrigin(t *testing.T) {
	allowed := []string{
		"http://localhost:3000",
		"http://127.0.0.1",
		"http://app.localhost:5173",
	}
	for _, origin := range allowed {
		if !isLocalhostOrigin(origin) {
			t.Errorf("%s should be allowed", origin)
		}
	}
	denied := []string{
		"https://example.com",
		"http://localhost.example.com",
		"not a url at all://",
	}
	for _, origin := range denied {
		if isLocalhostOrigin(origin) {
			t.Errorf("%s must be denied", origin)
		}
	}
}

func TestAgentWebSocketRun(t *testing.T) {
	s, _ := newTestServer(t, textProvider())
	ts := httptest.NewServer(s.routes())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/agent/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dialing websocket: %v", err)
	}
	defer conn.Close()

	err = conn.WriteJSON(clientFrame{
		Type:       "run",
		SessionKey: "ws-test",
		Prompt:     "say hello",
	})
	if err != nil {
		t.Fatal(err)
	}

	var gotText string
	deadline := time.Now().Add(10 * time.Second)
	for {
		conn.SetReadDeadline(deadline)
		var frame serverFrame
		if err := conn.ReadJSON(&frame); err != nil {
			t.Fatalf("reading frame: %v", err)
		}
		if frame.Type == ai.EventTypeError {
			t.Fatalf("unexpected error frame: %s", frame.Error)
		}
		if frame.Type == ai.EventTypeText {
			gotText += frame.Text
		}
		if frame.Type == ai.EventTypeDone {
			break
		}
	}
	if gotText != "hello from the loop" {
		t.Errorf("streamed text = %q", gotText)
	}
}

func TestAgentWebSocketUnknownFrame(t *testing.T) {
	s, _ := newTestServer(t, textProvider())
	ts := httptest.NewServer(s.routes())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/agent/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(clientFrame{Type: "bogus"}); err != nil {
		t.Fatal(err)
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var frame serverFrame
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatal(err)
	}
	if frame.Type != ai.EventTypeError || !strings.Contains(frame.Error, "unknown frame type") {
		t.Errorf("expected unknown frame error, got %+v", frame)
	}
}
