package websocket

import (
	"context"
	"sync"
	"testing"

	"watchtower/internal/session"
	"watchtower/pkg/interfaces"
	"watchtower/pkg/types"
)

type nopLayer struct{}

func (nopLayer) GroupAdd(group string, sub interfaces.Subscriber) error     { return nil }
func (nopLayer) GroupDiscard(group string, sub interfaces.Subscriber) error { return nil }
func (nopLayer) GroupSend(ctx context.Context, group string, msg *types.GroupMessage) error {
	return nil
}
func (nopLayer) Close() error { return nil }

type nopTransport struct {
	mu     sync.Mutex
	closed bool
}

func (n *nopTransport) WriteJSON(v interface{}) error { return nil }
func (n *nopTransport) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.closed = true
	return nil
}

func newRegistrySession(t *testing.T, tokenKey string) *session.Session {
	t.Helper()
	sess := session.New(&nopTransport{}, nopLayer{}, nil, tokenKey)
	t.Cleanup(sess.Close)
	return sess
}

func TestRegistry_RegisterUnregister(t *testing.T) {
	registry := NewRegistry()
	sess := newRegistrySession(t, "")

	if err := registry.Register(sess); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if stats := registry.Stats(); stats["total_connections"] != 1 {
		t.Errorf("Expected 1 connection, got %d", stats["total_connections"])
	}

	registry.Unregister(sess)
	if stats := registry.Stats(); stats["total_connections"] != 0 {
		t.Errorf("Expected 0 connections, got %d", stats["total_connections"])
	}
}

func TestRegistry_NilSession(t *testing.T) {
	registry := NewRegistry()

	if err := registry.Register(nil); err != ErrNilSession {
		t.Errorf("Expected ErrNilSession, got %v", err)
	}
	registry.Unregister(nil) // must not panic
}

func TestRegistry_UnregisterIsIdempotent(t *testing.T) {
	registry := NewRegistry()
	sess := newRegistrySession(t, "")

	if err := registry.Register(sess); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	registry.Unregister(sess)
	registry.Unregister(sess)

	if stats := registry.Stats(); stats["total_connections"] != 0 {
		t.Errorf("Expected 0 connections, got %d", stats["total_connections"])
	}
}

func TestRegistry_StatsCountsTokenSessions(t *testing.T) {
	registry := NewRegistry()

	tokenSess := newRegistrySession(t, "tok1")
	passwordSess := newRegistrySession(t, "")

	if err := registry.Register(tokenSess); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := registry.Register(passwordSess); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	stats := registry.Stats()
	if stats["total_connections"] != 2 {
		t.Errorf("Expected 2 connections, got %d", stats["total_connections"])
	}
	if stats["token_sessions"] != 1 {
		t.Errorf("Expected 1 token session, got %d", stats["token_sessions"])
	}
}

func TestRegistry_CloseAll(t *testing.T) {
	registry := NewRegistry()

	transport := &nopTransport{}
	sess := session.New(transport, nopLayer{}, nil, "")
	if err := registry.Register(sess); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	registry.CloseAll()

	transport.mu.Lock()
	closed := transport.closed
	transport.mu.Unlock()
	if !closed {
		t.Error("CloseAll must close registered sessions")
	}
}
