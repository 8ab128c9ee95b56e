package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nhcloud/voicechat/internal/admission"
	"github.com/nhcloud/voicechat/internal/archive"
	"github.com/nhcloud/voicechat/internal/chat"
	"github.com/nhcloud/voicechat/internal/config"
	"github.com/nhcloud/voicechat/internal/observability"
	"github.com/nhcloud/voicechat/internal/protocol"
	"github.com/nhcloud/voicechat/internal/relay"
	"github.com/nhcloud/voicechat/internal/session"
)

// testStack is the full service wired with an in-memory archive and a mock
// chat completer. Voice mode is left unconfigured on purpose.
type testStack struct {
	srv      *httptest.Server
	sessions *session.Registry
	limiter  *admission.Limiter
	store    *archive.InMemoryStore
}

func newTestStack(t *testing.T, maxConns int) *testStack {
	t.Helper()

	cfg := config.Config{AllowAnyOrigin: true}
	metrics := observability.NewMetrics("test_httpapi_" + strings.ToLower(t.Name()))
	sessions := session.NewRegistry(time.Minute)
	limiter := admission.NewLimiter(admission.Config{
		MaxConnectionsPerUser: maxConns,
		MaxRequestsPerWindow:  1000,
		Window:                time.Minute,
	})
	store := archive.NewInMemoryStore()

	voice := relay.NewVoiceRelay(cfg, sessions, metrics)
	text := relay.NewTextRelay(sessions, chat.NewMockCompleter(), "assistant", metrics)
	dispatcher := relay.NewDispatcher(sessions, limiter, voice, text, store, metrics)

	srv := httptest.NewServer(New(cfg, dispatcher).Router())
	t.Cleanup(srv.Close)

	return &testStack{srv: srv, sessions: sessions, limiter: limiter, store: store}
}

func (s *testStack) dial(t *testing.T, query string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(s.srv.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", query, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHealthEndpoint(t *testing.T) {
	stack := newTestStack(t, 3)

	resp, err := http.Get(stack.srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body struct {
		Status             string `json:"status"`
		UpstreamConfigured bool   `json:"upstream_configured"`
		ArchiveMode        string `json:"archive_mode"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Status != "ok" || body.UpstreamConfigured || body.ArchiveMode != "in-memory" {
		t.Fatalf("body = %+v", body)
	}
}

func TestTextModeEndToEnd(t *testing.T) {
	stack := newTestStack(t, 3)
	conn := stack.dial(t, "?mode=text")

	var created protocol.SessionCreated
	if err := conn.ReadJSON(&created); err != nil {
		t.Fatalf("read session.created: %v", err)
	}
	if created.Type != protocol.TypeSessionCreated || len(created.SessionID) != 32 {
		t.Fatalf("created = %+v", created)
	}
	if stack.sessions.ActiveCount() != 1 {
		t.Fatalf("ActiveCount = %d, want 1", stack.sessions.ActiveCount())
	}

	if err := conn.WriteJSON(map[string]string{"type": "text_message", "content": "hi"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	var resp protocol.TextResponse
	if err := conn.ReadJSON(&resp); err != nil {
		t.Fatalf("read: %v", err)
	}
	if resp.Content != "You said: hi" {
		t.Fatalf("content = %q", resp.Content)
	}
}

func TestInvalidModeGetsPolicyClose(t *testing.T) {
	stack := newTestStack(t, 3)
	conn := stack.dial(t, "?mode=carrier-pigeon")

	_, _, err := conn.ReadMessage()
	closeErr, ok := err.(*websocket.CloseError)
	if !ok {
		t.Fatalf("read error = %v, want close error", err)
	}
	if closeErr.Code != websocket.ClosePolicyViolation || closeErr.Text != "invalid mode" {
		t.Fatalf("close = %d %q", closeErr.Code, closeErr.Text)
	}
	if stack.sessions.ActiveCount() != 0 {
		t.Fatalf("invalid mode must not create a session")
	}
}

func TestConcurrencyLimitClosesWithReason(t *testing.T) {
	stack := newTestStack(t, 1)

	first := stack.dial(t, "?mode=text&token=abc")
	var created protocol.SessionCreated
	if err := first.ReadJSON(&created); err != nil {
		t.Fatalf("first connection: %v", err)
	}

	second := stack.dial(t, "?mode=text&token=abc")
	_, _, err := second.ReadMessage()
	closeErr, ok := err.(*websocket.CloseError)
	if !ok {
		t.Fatalf("read error = %v, want close error", err)
	}
	if closeErr.Code != websocket.ClosePolicyViolation {
		t.Fatalf("close code = %d, want %d", closeErr.Code, websocket.ClosePolicyViolation)
	}
	if closeErr.Text != admission.ReasonMaxConnections {
		t.Fatalf("close reason = %q, want %q", closeErr.Text, admission.ReasonMaxConnections)
	}

	// A different token is unaffected by the first user's limit.
	other := stack.dial(t, "?mode=text&token=xyz")
	if err := other.ReadJSON(&created); err != nil {
		t.Fatalf("other user: %v", err)
	}
}

func TestCleanupRunsOncePerConnection(t *testing.T) {
	stack := newTestStack(t, 1)

	conn := stack.dial(t, "?mode=text&token=abc")
	var created protocol.SessionCreated
	if err := conn.ReadJSON(&created); err != nil {
		t.Fatalf("read session.created: %v", err)
	}

	closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := conn.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(time.Second)); err != nil {
		t.Fatalf("close: %v", err)
	}

	waitFor(t, func() bool { return len(stack.store.Records()) == 1 })
	if stack.sessions.ActiveCount() != 0 {
		t.Fatalf("session not removed after disconnect")
	}

	rec := stack.store.Records()[0]
	if rec.SessionID != created.SessionID || rec.Mode != session.ModeText || rec.EndReason != "closed" {
		t.Fatalf("record = %+v", rec)
	}

	// The slot was released: the same token can connect again.
	again := stack.dial(t, "?mode=text&token=abc")
	if err := again.ReadJSON(&created); err != nil {
		t.Fatalf("reconnect after release: %v", err)
	}
}

func TestAnonymousUsersAreDistinct(t *testing.T) {
	stack := newTestStack(t, 1)

	// With a per-user cap of one, two tokenless clients can both connect
	// only if each gets its own anonymous identity.
	var created protocol.SessionCreated
	a := stack.dial(t, "?mode=text")
	if err := a.ReadJSON(&created); err != nil {
		t.Fatalf("first anonymous client: %v", err)
	}
	b := stack.dial(t, "?mode=text")
	if err := b.ReadJSON(&created); err != nil {
		t.Fatalf("second anonymous client: %v", err)
	}

	a.Close()
	b.Close()
	waitFor(t, func() bool { return len(stack.store.Records()) == 2 })

	records := stack.store.Records()
	if records[0].UserID == records[1].UserID {
		t.Fatalf("both anonymous clients got user id %q", records[0].UserID)
	}
	for _, rec := range records {
		if !strings.HasPrefix(rec.UserID, "anonymous-") {
			t.Fatalf("user id = %q, want anonymous prefix", rec.UserID)
		}
	}
}

func TestParseMode(t *testing.T) {
	cases := []struct {
		raw  string
		mode session.Mode
		ok   bool
	}{
		{"", session.ModeVoice, true},
		{"voice", session.ModeVoice, true},
		{"text", session.ModeText, true},
		{"TEXT", session.ModeText, true},
		{" voice ", session.ModeVoice, true},
		{"video", "", false},
	}
	for _, tc := range cases {
		mode, ok := parseMode(tc.raw)
		if mode != tc.mode || ok != tc.ok {
			t.Errorf("parseMode(%q) = (%q, %v), want (%q, %v)", tc.raw, mode, ok, tc.mode, tc.ok)
		}
	}
}

// waitFor polls until the condition holds or the deadline passes. Dispatcher
// cleanup runs after the handler returns, slightly behind the client's view.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within deadline")
}
