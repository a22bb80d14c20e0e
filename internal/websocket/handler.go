package websocket

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"watchtower/internal/auth"
	"watchtower/internal/config"
	"watchtower/internal/session"
	"watchtower/pkg/interfaces"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Cross-origin dashboards are the normal clients; origin policy is
		// enforced by the deployment's reverse proxy.
		return true
	},
	HandshakeTimeout: 10 * time.Second,
}

// Handler upgrades authenticated connections into subscription sessions
// and runs their read pumps.
type Handler struct {
	authenticator *auth.Authenticator
	layer         interfaces.ChannelLayer
	heartbeats    interfaces.HeartbeatRecorder
	registry      *Registry
	cfg           *config.WebSocketConfig
}

// NewHandler creates the websocket handler.
func NewHandler(authenticator *auth.Authenticator, layer interfaces.ChannelLayer, heartbeats interfaces.HeartbeatRecorder, registry *Registry, cfg *config.WebSocketConfig) *Handler {
	return &Handler{
		authenticator: authenticator,
		layer:         layer,
		heartbeats:    heartbeats,
		registry:      registry,
		cfg:           cfg,
	}
}

// HandleWebSocket authenticates the request, upgrades it, and starts the
// session. Failed authentication refuses the upgrade with no structured
// error frame.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	principal := h.authenticator.Authenticate(r.Context(), r.URL.Query())
	if !h.authenticator.Admit(principal) {
		http.Error(w, "Authentication failed", http.StatusForbidden)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	wsConn := NewConnection(conn, h.cfg.WriteTimeout, h.cfg.BufferSize)
	sess := session.New(wsConn, h.layer, h.heartbeats, principal.TokenKey)

	if err := sess.Start(); err != nil {
		log.Printf("Failed to start session: %v", err)
		_ = wsConn.Close()
		return
	}

	if err := h.registry.Register(sess); err != nil {
		log.Printf("Failed to register session: %v", err)
		sess.Close()
		return
	}

	go h.readPump(wsConn, sess)
}

// readPump reads client frames in arrival order and dispatches them to the
// session. It owns the session's cleanup: when the read side ends for any
// reason (peer close, forced revocation, shutdown), the session leaves all
// its groups and the connection is closed.
func (h *Handler) readPump(conn *Connection, sess *session.Session) {
	defer func() {
		h.registry.Unregister(sess)
		sess.Close()
	}()

	if err := conn.conn.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout)); err != nil {
		log.Printf("Failed to set read deadline: %v", err)
		return
	}
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout))
	})

	ticker := time.NewTicker(h.cfg.PingInterval)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ticker.C:
				deadline := time.Now().Add(h.cfg.WriteTimeout)
				if err := conn.conn.WriteControl(websocket.PingMessage, []byte{}, deadline); err != nil {
					return
				}
			case <-conn.ctx.Done():
				return
			}
		}
	}()

	for {
		messageType, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				log.Printf("WebSocket read error: %v", err)
			}
			return
		}

		if messageType == websocket.TextMessage {
			sess.HandleMessage(context.Background(), data)
		}
	}
}
