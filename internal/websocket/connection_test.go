package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// newCapturingServer upgrades one connection and forwards every received
// text frame to the returned channel.
func newCapturingServer(t *testing.T) (*httptest.Server, chan []byte) {
	t.Helper()
	received := make(chan []byte, 16)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("Upgrade failed: %v", err)
			return
		}
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			received <- data
		}
	}))
	t.Cleanup(server.Close)

	return server, received
}

func dialConnection(t *testing.T, server *httptest.Server) *Connection {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http")
	raw, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	conn := NewConnection(raw, time.Second, 16)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestConnection_WriteJSONDelivers(t *testing.T) {
	server, received := newCapturingServer(t)
	conn := dialConnection(t, server)

	if err := conn.WriteJSON(map[string]string{"data": "hello"}); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}

	select {
	case data := <-received:
		var frame map[string]string
		if err := json.Unmarshal(data, &frame); err != nil {
			t.Fatalf("Received invalid JSON: %v", err)
		}
		if frame["data"] != "hello" {
			t.Errorf("Expected data hello, got %q", frame["data"])
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for frame")
	}
}

func TestConnection_WritesArriveInOrder(t *testing.T) {
	server, received := newCapturingServer(t)
	conn := dialConnection(t, server)

	for i := 0; i < 5; i++ {
		if err := conn.WriteJSON(map[string]int{"seq": i}); err != nil {
			t.Fatalf("WriteJSON %d failed: %v", i, err)
		}
	}

	for i := 0; i < 5; i++ {
		select {
		case data := <-received:
			var frame map[string]int
			if err := json.Unmarshal(data, &frame); err != nil {
				t.Fatalf("Received invalid JSON: %v", err)
			}
			if frame["seq"] != i {
				t.Fatalf("Expected seq %d, got %d", i, frame["seq"])
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("Timed out waiting for frame %d", i)
		}
	}
}

func TestConnection_WriteAfterClose(t *testing.T) {
	server, _ := newCapturingServer(t)
	conn := dialConnection(t, server)

	if err := conn.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := conn.WriteJSON(map[string]string{"data": "late"}); err != ErrConnectionClosed {
		t.Errorf("Expected ErrConnectionClosed, got %v", err)
	}
}

func TestConnection_WriteInvalidValue(t *testing.T) {
	server, _ := newCapturingServer(t)
	conn := dialConnection(t, server)

	if err := conn.WriteJSON(make(chan int)); err != ErrInvalidJSON {
		t.Errorf("Expected ErrInvalidJSON, got %v", err)
	}
}

func TestConnection_CloseIsIdempotent(t *testing.T) {
	server, _ := newCapturingServer(t)
	conn := dialConnection(t, server)

	if err := conn.Close(); err != nil {
		t.Fatalf("First close failed: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Errorf("Second close must be a no-op, got %v", err)
	}
}
