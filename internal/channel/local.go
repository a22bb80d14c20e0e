package channel

import (
	"context"
	"sync"

	"watchtower/pkg/interfaces"
	"watchtower/pkg/types"
)

// LocalLayer is the in-process channel layer: a group table guarded by a
// RWMutex, delivering to subscribers inline. Subscribers guarantee a
// non-blocking Receive, so a publish never stalls on a slow consumer.
type LocalLayer struct {
	mu     sync.RWMutex
	groups map[string]map[string]interfaces.Subscriber // group -> handleID -> subscriber
	closed bool
}

// NewLocalLayer creates an empty local channel layer.
func NewLocalLayer() *LocalLayer {
	return &LocalLayer{
		groups: make(map[string]map[string]interfaces.Subscriber),
	}
}

// GroupAdd adds a subscriber handle to a group, creating the group on first
// join. Re-adding the same handle is a no-op.
func (l *LocalLayer) GroupAdd(group string, sub interfaces.Subscriber) error {
	if sub == nil {
		return ErrNilSubscriber
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return interfaces.ErrLayerClosed
	}

	members, exists := l.groups[group]
	if !exists {
		members = make(map[string]interfaces.Subscriber)
		l.groups[group] = members
	}
	members[sub.HandleID()] = sub
	return nil
}

// GroupDiscard removes a subscriber handle from a group. Empty groups are
// deleted so the table does not accumulate dead entries. Discarding a
// non-member is a no-op.
func (l *LocalLayer) GroupDiscard(group string, sub interfaces.Subscriber) error {
	if sub == nil {
		return ErrNilSubscriber
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if members, exists := l.groups[group]; exists {
		delete(members, sub.HandleID())
		if len(members) == 0 {
			delete(l.groups, group)
		}
	}
	return nil
}

// GroupSend delivers a message to every current member of a group.
// Membership is snapshotted under the read lock so delivery does not hold
// the lock while subscribers run.
func (l *LocalLayer) GroupSend(ctx context.Context, group string, msg *types.GroupMessage) error {
	l.mu.RLock()
	if l.closed {
		l.mu.RUnlock()
		return interfaces.ErrLayerClosed
	}
	members := l.groups[group]
	subs := make([]interfaces.Subscriber, 0, len(members))
	for _, sub := range members {
		subs = append(subs, sub)
	}
	l.mu.RUnlock()

	for _, sub := range subs {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		sub.Receive(msg)
	}
	return nil
}

// GroupCount reports the current member count of a group. Used by tests and
// the health endpoint; the core routing path never inspects membership.
func (l *LocalLayer) GroupCount(group string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.groups[group])
}

// Close drops every group. Subsequent adds and sends fail.
func (l *LocalLayer) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.closed = true
	l.groups = make(map[string]map[string]interfaces.Subscriber)
	return nil
}
