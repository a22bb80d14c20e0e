package revocation

import (
	"context"
	"log"

	"watchtower/pkg/interfaces"
	"watchtower/pkg/types"
)

// Notifier reacts to token deletion by publishing a logout to the token's
// private group, forcing the one session authenticated by that token to
// disconnect. Delivery is at-most-once and best-effort: the publish runs
// to completion synchronously and a failure is logged, not retried.
type Notifier struct {
	layer interfaces.ChannelLayer
}

// NewNotifier creates a notifier over the channel layer.
func NewNotifier(layer interfaces.ChannelLayer) *Notifier {
	return &Notifier{layer: layer}
}

// NotifyTokenDeleted publishes the logout frame for the deleted token.
// Registered as the token store's deletion hook.
func (n *Notifier) NotifyTokenDeleted(key string) {
	msg := &types.GroupMessage{
		Type:    types.MessageTypeLogout,
		Message: "",
	}
	if err := n.layer.GroupSend(context.Background(), types.TokenGroup(key), msg); err != nil {
		log.Printf("Failed to publish logout for revoked token: %v", err)
	}
}
