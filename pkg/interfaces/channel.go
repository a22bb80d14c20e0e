package interfaces

import (
	"context"

	"watchtower/pkg/types"
)

// Subscriber is a connection-side handle the channel layer delivers to.
// Receive must not block: a slow subscriber drops frames rather than
// stalling fan-out to the rest of the group.
type Subscriber interface {
	HandleID() string
	Receive(msg *types.GroupMessage)
}

// ChannelLayer is the process-wide publish/subscribe backplane. Groups are
// implicitly created on first add and garbage-collected when empty; the
// core never inspects membership, only adds, discards, and publishes.
type ChannelLayer interface {
	GroupAdd(group string, sub Subscriber) error
	GroupDiscard(group string, sub Subscriber) error
	GroupSend(ctx context.Context, group string, msg *types.GroupMessage) error
	Close() error
}
