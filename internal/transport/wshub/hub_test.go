package wshub

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"planwise/internal/transport"
	logx "planwise/pkg/logx"
)

func dial(t *testing.T, h *Hub, userID int64) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.ServeWS(w, r, userID)
	}))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func read(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var m Message
	if err := conn.ReadJSON(&m); err != nil {
		t.Fatalf("read: %v", err)
	}
	return m
}

func TestSendReachesOnlyTargetUser(t *testing.T) {
	t.Parallel()

	h := New(logx.Nop())
	defer h.Close()

	alice := dial(t, h, 1)
	bob := dial(t, h, 2)
	if m := read(t, alice); m.Type != "connection" {
		t.Fatalf("first message = %q, want connection", m.Type)
	}
	if m := read(t, bob); m.Type != "connection" {
		t.Fatalf("first message = %q, want connection", m.Type)
	}

	err := h.Send(context.Background(), transport.Notification{
		Kind:   transport.KindBreak,
		UserID: 1,
		Title:  "Time for a break!",
	})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	m := read(t, alice)
	if m.Type != "notification" {
		t.Fatalf("type = %q, want notification", m.Type)
	}
	raw, _ := json.Marshal(m.Data)
	var n transport.Notification
	if err := json.Unmarshal(raw, &n); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if n.Kind != transport.KindBreak || n.Title != "Time for a break!" {
		t.Fatalf("notification = %+v", n)
	}

	_ = bob.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, _, err := bob.ReadMessage(); err == nil {
		t.Fatalf("user 2 received a notification addressed to user 1")
	}
}

func TestSendWithoutClients(t *testing.T) {
	t.Parallel()

	h := New(logx.Nop())
	if err := h.Send(context.Background(), transport.Notification{UserID: 9}); err != nil {
		t.Fatalf("Send() error = %v, want nil", err)
	}
	if got := h.Connections(9); got != 0 {
		t.Fatalf("Connections() = %d, want 0", got)
	}
}

func TestCloseDisconnects(t *testing.T) {
	t.Parallel()

	h := New(logx.Nop())
	conn := dial(t, h, 3)
	read(t, conn)
	if got := h.Connections(3); got != 1 {
		t.Fatalf("Connections() = %d, want 1", got)
	}

	h.Close()
	if got := h.Connections(3); got != 0 {
		t.Fatalf("Connections() after Close = %d, want 0", got)
	}
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatalf("ReadMessage() after Close = nil error, want close")
	}
}
