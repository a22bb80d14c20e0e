package revocation

import (
	"context"
	"errors"
	"sync"
	"testing"

	"watchtower/pkg/interfaces"
	"watchtower/pkg/types"
)

type captureLayer struct {
	mu      sync.Mutex
	sends   map[string][]*types.GroupMessage
	sendErr error
}

func newCaptureLayer() *captureLayer {
	return &captureLayer{sends: make(map[string][]*types.GroupMessage)}
}

func (c *captureLayer) GroupAdd(group string, sub interfaces.Subscriber) error     { return nil }
func (c *captureLayer) GroupDiscard(group string, sub interfaces.Subscriber) error { return nil }

func (c *captureLayer) GroupSend(ctx context.Context, group string, msg *types.GroupMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sends[group] = append(c.sends[group], msg)
	return nil
}

func (c *captureLayer) Close() error { return nil }

func TestNotifier_PublishesLogoutToTokenGroup(t *testing.T) {
	layer := newCaptureLayer()
	notifier := NewNotifier(layer)

	notifier.NotifyTokenDeleted("tok1")

	layer.mu.Lock()
	defer layer.mu.Unlock()

	frames := layer.sends[types.TokenGroup("tok1")]
	if len(frames) != 1 {
		t.Fatalf("Expected one logout publish, got %d", len(frames))
	}
	if frames[0].Type != types.MessageTypeLogout {
		t.Errorf("Expected logout type, got %q", frames[0].Type)
	}
	if frames[0].Message != "" {
		t.Errorf("Expected empty message, got %q", frames[0].Message)
	}

	// Only the one token's group is targeted.
	if len(layer.sends) != 1 {
		t.Errorf("Expected a single targeted group, got %v", layer.sends)
	}
}

func TestNotifier_PublishFailureIsSwallowed(t *testing.T) {
	layer := newCaptureLayer()
	layer.sendErr = errors.New("layer unavailable")
	notifier := NewNotifier(layer)

	// Best-effort delivery: no panic, no retry, no error surfaced.
	notifier.NotifyTokenDeleted("tok1")
}
