package session

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/google/uuid"

	"watchtower/pkg/interfaces"
	"watchtower/pkg/types"
)

// Heartbeat producer traffic is recognized by this category/csc pair and
// fed into the aggregator in addition to normal relay.
const (
	heartbeatCategory = types.CategoryEvent
	heartbeatCsc      = "Heartbeat"
)

// Session is one authenticated streaming connection and its subscription
// state. It owns its membership set exclusively: only its own control
// messages mutate it, and the whole set is discarded on close. The session
// is registered with the channel layer as a subscriber handle; delivered
// group messages are forwarded to the transport, except a logout frame,
// which closes the connection instead.
type Session struct {
	id         string
	transport  interfaces.Transport
	layer      interfaces.ChannelLayer
	heartbeats interfaces.HeartbeatRecorder
	tokenKey   string

	mu         sync.Mutex
	membership map[string]struct{}
	closed     bool

	inbound   chan *types.GroupMessage
	done      chan struct{}
	closeOnce sync.Once
}

// New creates a session for an admitted connection. tokenKey is empty for
// password-authenticated sessions; a non-empty key makes the session the
// target of that token's private revocation group.
func New(transport interfaces.Transport, layer interfaces.ChannelLayer, heartbeats interfaces.HeartbeatRecorder, tokenKey string) *Session {
	return &Session{
		id:         uuid.New().String(),
		transport:  transport,
		layer:      layer,
		heartbeats: heartbeats,
		tokenKey:   tokenKey,
		membership: make(map[string]struct{}),
		inbound:    make(chan *types.GroupMessage, 64),
		done:       make(chan struct{}),
	}
}

// HandleID implements interfaces.Subscriber.
func (s *Session) HandleID() string {
	return s.id
}

// TokenKey returns the key of the token that authenticated this session,
// or the empty string.
func (s *Session) TokenKey() string {
	return s.tokenKey
}

// Start joins the private revocation group for token-authenticated
// sessions and begins forwarding delivered group messages to the client.
func (s *Session) Start() error {
	if s.tokenKey != "" {
		if err := s.layer.GroupAdd(types.TokenGroup(s.tokenKey), s); err != nil {
			return err
		}
	}
	go s.deliverLoop()
	return nil
}

// Receive implements interfaces.Subscriber. It never blocks: a forced
// logout closes the session immediately, taking priority over any buffered
// relays; ordinary frames are queued, and dropped if the session's buffer
// is full.
func (s *Session) Receive(msg *types.GroupMessage) {
	if msg.Type == types.MessageTypeLogout {
		s.Close()
		return
	}

	select {
	case s.inbound <- msg:
	case <-s.done:
	default:
		log.Printf("Session %s dropping frame: delivery buffer full", s.id)
	}
}

// deliverLoop writes queued group messages to the transport until the
// session closes.
func (s *Session) deliverLoop() {
	for {
		select {
		case msg := <-s.inbound:
			frame := &types.OutboundFrame{
				Data:         msg.Data,
				Category:     msg.Category,
				Subscription: msg.Subscription,
			}
			if err := s.transport.WriteJSON(frame); err != nil {
				log.Printf("Session %s delivery failed: %v", s.id, err)
			}
		case <-s.done:
			return
		}
	}
}

// HandleMessage parses and dispatches one inbound client frame. Messages
// from one client are handled strictly in arrival order by the read pump
// calling this serially. A malformed frame is a recoverable per-message
// error: it is dropped with no acknowledgement and the connection stays
// open.
func (s *Session) HandleMessage(ctx context.Context, raw []byte) {
	control, data, err := types.ParseClientMessage(raw)
	if err != nil {
		log.Printf("Session %s dropping message: %v", s.id, err)
		return
	}

	if control != nil {
		s.handleControl(control)
		return
	}
	s.handleData(ctx, data)
}

// handleControl mutates the membership set and acknowledges to the caller
// only. Both directions are idempotent: a duplicate subscribe or a
// non-member unsubscribe still acknowledges but touches nothing.
func (s *Session) handleControl(req *types.SubscribeRequest) {
	key := req.TopicKey()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	_, member := s.membership[key]
	var ack string
	switch req.Option {
	case types.OptionSubscribe:
		if !member {
			s.membership[key] = struct{}{}
		}
		ack = "Successfully subscribed to " + key
	case types.OptionUnsubscribe:
		if member {
			delete(s.membership, key)
		}
		ack = "Successfully unsubscribed to " + key
	}
	s.mu.Unlock()

	switch req.Option {
	case types.OptionSubscribe:
		if !member {
			if err := s.layer.GroupAdd(key, s); err != nil {
				log.Printf("Session %s failed to join group %s: %v", s.id, key, err)
			}
		}
	case types.OptionUnsubscribe:
		if member {
			if err := s.layer.GroupDiscard(key, s); err != nil {
				log.Printf("Session %s failed to leave group %s: %v", s.id, key, err)
			}
		}
	}

	if err := s.transport.WriteJSON(&types.AckFrame{Data: ack}); err != nil {
		log.Printf("Session %s failed to acknowledge %s: %v", s.id, req.Option, err)
	}
}

// handleData fans a data message out through the channel layer: one
// publish per stream, one aggregate publish per csc, and finally the full
// decoded payload to both firehose groups. All per-stream publishes for a
// message precede its firehose publishes. Publish failures are logged and
// the remaining publishes proceed.
func (s *Session) handleData(ctx context.Context, msg *types.DataMessage) {
	full := make(map[string]map[string]json.RawMessage, len(msg.Data))

	for csc, encoded := range msg.Data {
		streams, err := types.DecodeStreams(encoded)
		if err != nil {
			log.Printf("Session %s dropping csc %s payload: %v", s.id, csc, err)
			continue
		}

		aggregate := make(map[string]json.RawMessage, len(streams))
		for stream, value := range streams {
			group := types.StreamGroup(msg.Category, csc, msg.SalIndex, stream)
			s.publish(ctx, group, &types.GroupMessage{
				Type:     types.MessageTypeDeliver,
				Category: msg.Category,
				Data:     map[string]map[string]json.RawMessage{csc: {stream: value}},
			})
			aggregate[stream] = value
		}

		s.publish(ctx, types.AggregateGroup(msg.Category, csc), &types.GroupMessage{
			Type:     types.MessageTypeDeliver,
			Category: msg.Category,
			Data:     map[string]map[string]json.RawMessage{csc: aggregate},
		})

		if msg.Category == heartbeatCategory && csc == heartbeatCsc {
			s.relayHeartbeats(aggregate)
		}

		full[csc] = aggregate
	}

	// Firehose tier: every data message, regardless of its own category,
	// reaches both wildcard groups.
	for _, group := range []string{types.GroupTelemetryFirehose, types.GroupEventFirehose} {
		s.publish(ctx, group, &types.GroupMessage{
			Type:     types.MessageTypeDeliver,
			Category: msg.Category,
			Data:     full,
		})
	}
}

// relayHeartbeats records producer liveness carried in Heartbeat event
// streams. Values not matching the producer heartbeat shape are relayed as
// ordinary data but skipped here.
func (s *Session) relayHeartbeats(streams map[string]json.RawMessage) {
	if s.heartbeats == nil {
		return
	}
	for _, value := range streams {
		var hb types.ProducerHeartbeat
		if err := json.Unmarshal(value, &hb); err != nil || hb.Csc == "" {
			continue
		}
		s.heartbeats.SetTimestamp(hb.Csc, hb.LastHeartbeatTimestamp)
	}
}

// publish sends one group message, containing any failure to this session.
func (s *Session) publish(ctx context.Context, group string, msg *types.GroupMessage) {
	if err := s.layer.GroupSend(ctx, group, msg); err != nil {
		log.Printf("Session %s publish to group %s failed: %v", s.id, group, err)
	}
}

// Close transitions the session to CLOSED: the handle leaves every joined
// group and the private token group, the delivery loop stops, and the
// transport is closed. Idempotent; any in-flight delivery is best-effort.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		groups := make([]string, 0, len(s.membership))
		for key := range s.membership {
			groups = append(groups, key)
		}
		s.membership = make(map[string]struct{})
		s.mu.Unlock()

		for _, group := range groups {
			if err := s.layer.GroupDiscard(group, s); err != nil {
				log.Printf("Session %s failed to leave group %s: %v", s.id, group, err)
			}
		}
		if s.tokenKey != "" {
			if err := s.layer.GroupDiscard(types.TokenGroup(s.tokenKey), s); err != nil {
				log.Printf("Session %s failed to leave token group: %v", s.id, err)
			}
		}

		close(s.done)
		if err := s.transport.Close(); err != nil {
			log.Printf("Session %s transport close: %v", s.id, err)
		}
	})
}

// Subscribed reports whether the session currently holds the given topic
// key. Used by tests and the health endpoint.
func (s *Session) Subscribed(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, member := s.membership[key]
	return member
}
