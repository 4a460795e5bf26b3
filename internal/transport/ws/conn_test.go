package ws

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"live-quiz-client/internal/domain"
	"live-quiz-client/internal/protocol"
)

type testServer struct {
	*httptest.Server
	conns    chan *websocket.Conn
	requests chan *http.Request
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{
		conns:    make(chan *websocket.Conn, 1),
		requests: make(chan *http.Request, 1),
	}
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/quiz/", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ts.requests <- r
		ts.conns <- conn
	})
	ts.Server = httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func (ts *testServer) accept(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case conn := <-ts.conns:
		t.Cleanup(func() { conn.Close() })
		return conn
	case <-time.After(5 * time.Second):
		t.Fatalf("server did not accept connection")
		return nil
	}
}

func testEndpoint(ts *testServer) Endpoint {
	return Endpoint{BaseURL: ts.URL, QuizID: "quiz-1", Participant: "alice smith"}
}

func nextEvent(t *testing.T, c *Conn) (Event, bool) {
	t.Helper()
	select {
	case ev, ok := <-c.Events():
		return ev, ok
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for connection event")
		return Event{}, false
	}
}

func openConn(t *testing.T, ts *testServer) *Conn {
	t.Helper()
	c := New(testEndpoint(ts), DefaultConfig())
	t.Cleanup(func() { _ = c.Close() })
	if err := c.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}
	if ev, _ := nextEvent(t, c); ev.State != domain.ConnConnecting {
		t.Fatalf("expected connecting event, got %v", ev.State)
	}
	if ev, _ := nextEvent(t, c); ev.State != domain.ConnOpen || ev.Frame != nil {
		t.Fatalf("expected open event, got %+v", ev)
	}
	return c
}

func TestEndpointURL(t *testing.T) {
	got, err := Endpoint{BaseURL: "http://localhost:8000/", QuizID: "quiz 1", Participant: "bob"}.URL()
	if err != nil {
		t.Fatalf("url: %v", err)
	}
	if got != "ws://localhost:8000/ws/quiz/quiz%201?username=bob" {
		t.Fatalf("unexpected url %s", got)
	}
	if _, err := (Endpoint{BaseURL: "ftp://x", QuizID: "q", Participant: "p"}).URL(); err == nil {
		t.Fatalf("expected unsupported scheme error")
	}
}

func TestOpenReceiveAndSend(t *testing.T) {
	ts := newTestServer(t)
	c := openConn(t, ts)
	server := ts.accept(t)

	req := <-ts.requests
	if req.URL.Path != "/ws/quiz/quiz-1" || req.URL.Query().Get("username") != "alice smith" {
		t.Fatalf("unexpected request %s", req.URL.String())
	}

	push := `{"type":"quiz_complete","data":{"message":"Done"}}`
	if err := server.WriteMessage(websocket.TextMessage, []byte(push)); err != nil {
		t.Fatalf("server write: %v", err)
	}
	ev, _ := nextEvent(t, c)
	if string(ev.Frame) != push {
		t.Fatalf("expected pushed frame, got %+v", ev)
	}

	if err := c.Send(protocol.SubmitAnswer{QuestionID: "q1", AnswerID: "a2"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	_ = server.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, frame, err := server.ReadMessage()
	if err != nil {
		t.Fatalf("server read: %v", err)
	}
	if !strings.Contains(string(frame), `"type":"submit_answer"`) || !strings.Contains(string(frame), `"answer_id":"a2"`) {
		t.Fatalf("unexpected frame %s", frame)
	}
}

func TestZeroTimeoutsFallBackToDefaults(t *testing.T) {
	ts := newTestServer(t)
	cfg := DefaultConfig()
	cfg.PingInterval = 0
	cfg.ReadTimeout = 0
	cfg.WriteTimeout = -time.Second
	cfg.SendBufferSize = 0

	c := New(testEndpoint(ts), cfg)
	t.Cleanup(func() { _ = c.Close() })
	if c.config != DefaultConfig() {
		t.Fatalf("expected defaults, got %+v", c.config)
	}
	if err := c.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}
	server := ts.accept(t)
	for _, want := range []domain.ConnectionState{domain.ConnConnecting, domain.ConnOpen} {
		if ev, _ := nextEvent(t, c); ev.State != want {
			t.Fatalf("expected %v, got %+v", want, ev)
		}
	}

	if err := server.WriteMessage(websocket.TextMessage, []byte(`{"type":"error","data":{}}`)); err != nil {
		t.Fatalf("server write: %v", err)
	}
	if ev, ok := nextEvent(t, c); !ok || ev.Frame == nil {
		t.Fatalf("expected frame on channel with zero read timeout, got %+v ok=%v", ev, ok)
	}
	if err := c.Send(protocol.RequestNextQuestion{}); err != nil {
		t.Fatalf("send: %v", err)
	}
	_ = server.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, _, err := server.ReadMessage(); err != nil {
		t.Fatalf("server read: %v", err)
	}
}

func TestSendBeforeOpenFails(t *testing.T) {
	c := New(Endpoint{BaseURL: "ws://127.0.0.1:1", QuizID: "q", Participant: "p"}, DefaultConfig())
	if err := c.Send(protocol.RequestNextQuestion{}); !errors.Is(err, domain.ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	ts := newTestServer(t)
	c := openConn(t, ts)
	ts.accept(t)

	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if c.State() != domain.ConnClosed {
		t.Fatalf("expected closed state, got %v", c.State())
	}
	if err := c.Send(protocol.RequestNextQuestion{}); !errors.Is(err, domain.ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected after close, got %v", err)
	}
	for {
		if _, ok := nextEvent(t, c); !ok {
			break
		}
	}
}

func TestServerDropReportsError(t *testing.T) {
	ts := newTestServer(t)
	c := openConn(t, ts)
	server := ts.accept(t)

	// Drop the TCP connection without a close handshake.
	server.UnderlyingConn().Close()

	ev, ok := nextEvent(t, c)
	if !ok || ev.State != domain.ConnErrored || !errors.Is(ev.Err, domain.ErrTransport) {
		t.Fatalf("expected errored event, got %+v ok=%v", ev, ok)
	}
	if _, ok := nextEvent(t, c); ok {
		t.Fatalf("expected events channel closed after errored event")
	}
	if err := c.Send(protocol.RequestNextQuestion{}); !errors.Is(err, domain.ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected after drop, got %v", err)
	}
}

func TestServerCloseReportsClosed(t *testing.T) {
	ts := newTestServer(t)
	c := openConn(t, ts)
	server := ts.accept(t)

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")
	if err := server.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)); err != nil {
		t.Fatalf("server close: %v", err)
	}
	ev, ok := nextEvent(t, c)
	if !ok || ev.State != domain.ConnClosed || ev.Err != nil {
		t.Fatalf("expected closed event, got %+v ok=%v", ev, ok)
	}
}

func TestDialFailureReportsError(t *testing.T) {
	ts := newTestServer(t)
	endpoint := testEndpoint(ts)
	ts.Close()

	c := New(endpoint, DefaultConfig())
	err := c.Open(context.Background())
	if !errors.Is(err, domain.ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}
	if ev, _ := nextEvent(t, c); ev.State != domain.ConnConnecting {
		t.Fatalf("expected connecting event, got %v", ev.State)
	}
	if ev, _ := nextEvent(t, c); ev.State != domain.ConnErrored {
		t.Fatalf("expected errored event, got %v", ev.State)
	}
	if err := c.Open(context.Background()); err == nil {
		t.Fatalf("expected second open to fail")
	}
}
