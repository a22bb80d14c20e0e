package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/nats-io/nats.go"

	"watchtower/pkg/interfaces"
	"watchtower/pkg/types"
)

const subjectPrefix = "watchtower.group."

// NATSLayer is the networked channel layer for multi-process deployments.
// Each group maps to a NATS subject; every local subscriber of a group
// holds its own NATS subscription, so cross-process publishes reach local
// sessions the same way local publishes do.
type NATSLayer struct {
	conn *nats.Conn

	mu     sync.Mutex
	subs   map[string]map[string]*nats.Subscription // group -> handleID -> subscription
	closed bool
}

// NewNATSLayer connects to the given NATS URL.
func NewNATSLayer(url string) (*NATSLayer, error) {
	conn, err := nats.Connect(url, nats.Name("watchtower"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}

	return &NATSLayer{
		conn: conn,
		subs: make(map[string]map[string]*nats.Subscription),
	}, nil
}

// GroupAdd subscribes the handle to the group's subject. Re-adding the same
// handle is a no-op.
func (n *NATSLayer) GroupAdd(group string, sub interfaces.Subscriber) error {
	if sub == nil {
		return ErrNilSubscriber
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return interfaces.ErrLayerClosed
	}

	handles, exists := n.subs[group]
	if !exists {
		handles = make(map[string]*nats.Subscription)
		n.subs[group] = handles
	}
	if _, exists := handles[sub.HandleID()]; exists {
		return nil
	}

	natsSub, err := n.conn.Subscribe(subjectPrefix+group, func(m *nats.Msg) {
		var msg types.GroupMessage
		if err := json.Unmarshal(m.Data, &msg); err != nil {
			log.Printf("Dropping undecodable group message on %s: %v", m.Subject, err)
			return
		}
		sub.Receive(&msg)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to group %s: %w", group, err)
	}

	handles[sub.HandleID()] = natsSub
	return nil
}

// GroupDiscard drops the handle's subscription to the group. Discarding a
// non-member is a no-op.
func (n *NATSLayer) GroupDiscard(group string, sub interfaces.Subscriber) error {
	if sub == nil {
		return ErrNilSubscriber
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	handles, exists := n.subs[group]
	if !exists {
		return nil
	}
	natsSub, exists := handles[sub.HandleID()]
	if !exists {
		return nil
	}

	delete(handles, sub.HandleID())
	if len(handles) == 0 {
		delete(n.subs, group)
	}

	if err := natsSub.Unsubscribe(); err != nil {
		return fmt.Errorf("failed to unsubscribe from group %s: %w", group, err)
	}
	return nil
}

// GroupSend publishes the message to the group's subject. Delivery to the
// members is handled by the NATS server, including members in other
// processes.
func (n *NATSLayer) GroupSend(ctx context.Context, group string, msg *types.GroupMessage) error {
	if n.conn == nil || n.conn.IsClosed() {
		return ErrNotConnected
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode group message: %w", err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if err := n.conn.Publish(subjectPrefix+group, data); err != nil {
		return fmt.Errorf("failed to publish to group %s: %w", group, err)
	}
	return nil
}

// Close drains outstanding subscriptions and closes the NATS connection.
func (n *NATSLayer) Close() error {
	n.mu.Lock()
	n.closed = true
	n.subs = make(map[string]map[string]*nats.Subscription)
	n.mu.Unlock()

	if err := n.conn.Drain(); err != nil {
		n.conn.Close()
		return fmt.Errorf("failed to drain NATS connection: %w", err)
	}
	return nil
}
