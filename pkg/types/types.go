package types

import (
	"strconv"
	"strings"
	"time"
)

// Message categories distributed through the gateway.
const (
	CategoryTelemetry = "telemetry"
	CategoryEvent     = "event"
	CategoryHeartbeat = "heartbeat"
	CategoryCommand   = "cmd"
)

// Control message options.
const (
	OptionSubscribe   = "subscribe"
	OptionUnsubscribe = "unsubscribe"
)

// Group message types carried over the channel layer.
const (
	MessageTypeDeliver = "deliver"
	MessageTypeLogout  = "logout"
)

// Well-known group names.
// The two firehose groups receive every data message regardless of its
// declared category; the heartbeat group carries the aggregator's output.
const (
	GroupTelemetryFirehose = "telemetry-all-all"
	GroupEventFirehose     = "event-all-all"
	GroupHeartbeat         = "heartbeat-manager-0-stream"
)

// TokenGroup returns the private group targeted when the token with the
// given key is revoked. One subscriber is expected: the session that
// authenticated with that exact token.
func TokenGroup(key string) string {
	return "token-" + key
}

// Token is an opaque bearer credential bound to one user.
type Token struct {
	Key       string    `json:"key"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// SubscribeRequest is a parsed subscribe/unsubscribe control message.
// SalIndex is a pointer so the legacy 2-component key shape (no category,
// no salindex) can be distinguished from an explicit salindex of zero.
type SubscribeRequest struct {
	Option   string
	Category string
	Csc      string
	SalIndex *int
	Stream   string
}

// TopicKey computes the group key for a control message. Two key shapes
// coexist: the 4-component `category-csc-salindex-stream` form (category
// defaults to telemetry) and the legacy 2-component `csc-stream` form,
// produced when neither category nor salindex is present. A request with a
// category but no salindex yields `category-csc-stream`, which is how the
// firehose groups are expressed as subscriptions.
func (r *SubscribeRequest) TopicKey() string {
	if r.Category == "" && r.SalIndex == nil {
		return r.Csc + "-" + r.Stream
	}
	category := r.Category
	if category == "" {
		category = CategoryTelemetry
	}
	parts := []string{category, r.Csc}
	if r.SalIndex != nil {
		parts = append(parts, strconv.Itoa(*r.SalIndex))
	}
	parts = append(parts, r.Stream)
	return strings.Join(parts, "-")
}

// DataMessage is a parsed data relay message. Each Data value is a
// JSON-encoded string holding that csc's stream-name to value mapping.
type DataMessage struct {
	Category string
	SalIndex *int
	Data     map[string]string
}

// StreamGroup returns the per-stream fan-out group for a data message.
// Without a salindex the legacy 2-component shape is used so that legacy
// subscriptions keep receiving traffic.
func StreamGroup(category, csc string, salindex *int, stream string) string {
	if salindex == nil {
		return csc + "-" + stream
	}
	return strings.Join([]string{category, csc, strconv.Itoa(*salindex), stream}, "-")
}

// AggregateGroup returns the all-streams group for one csc.
func AggregateGroup(category, csc string) string {
	return category + "-" + csc + "-all"
}

// GroupMessage is the envelope published through the channel layer.
type GroupMessage struct {
	Type         string      `json:"type"`
	Category     string      `json:"category,omitempty"`
	Data         interface{} `json:"data,omitempty"`
	Subscription string      `json:"subscription,omitempty"`
	Message      string      `json:"message,omitempty"`
}

// OutboundFrame is what a session writes to its client for a delivered
// group message.
type OutboundFrame struct {
	Data         interface{} `json:"data"`
	Category     string      `json:"category,omitempty"`
	Subscription string      `json:"subscription,omitempty"`
}

// AckFrame acknowledges a subscribe/unsubscribe to the caller only.
type AckFrame struct {
	Data string `json:"data"`
}

// HeartbeatEntry is one source's liveness record inside a dispatched
// heartbeat frame.
type HeartbeatEntry struct {
	Csc      string            `json:"csc"`
	SalIndex int               `json:"salindex"`
	Data     HeartbeatEntryVal `json:"data"`
}

type HeartbeatEntryVal struct {
	Timestamp float64 `json:"timestamp"`
}

// ProducerHeartbeat is the per-stream payload shape producers publish under
// category "event", csc "Heartbeat". Sessions relay it into the aggregator.
type ProducerHeartbeat struct {
	Csc                    string  `json:"csc"`
	LastHeartbeatTimestamp float64 `json:"last_heartbeat_timestamp"`
}
