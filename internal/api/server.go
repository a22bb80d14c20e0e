package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"watchtower/pkg/interfaces"
	"watchtower/pkg/types"
)

// Stats is the registry's reporting surface; the API never touches
// connection internals.
type Stats interface {
	Stats() map[string]int
}

// Heartbeats is the aggregator's reporting surface.
type Heartbeats interface {
	Snapshot() map[string]float64
}

// Server is the HTTP interface: token CRUD (the deletion side of which
// triggers revocation) and a health endpoint. No business logic, only HTTP
// handling and JSON serialization.
type Server struct {
	tokens     interfaces.TokenStore
	stats      Stats
	heartbeats Heartbeats
	router     *http.ServeMux
}

// NewServer wires the routes.
func NewServer(tokens interfaces.TokenStore, stats Stats, heartbeats Heartbeats) *Server {
	s := &Server{
		tokens:     tokens,
		stats:      stats,
		heartbeats: heartbeats,
		router:     http.NewServeMux(),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Handle("/api/tokens", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleTokens))))
	s.router.Handle("/api/tokens/", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleTokenByKey))))
	s.router.Handle("/health", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.healthCheck))))
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type CreateTokenRequest struct {
	UserID string `json:"user_id"`
}

type CreateTokenResponse struct {
	Token *types.Token `json:"token"`
}

type HealthResponse struct {
	Status      string             `json:"status"`
	Timestamp   time.Time          `json:"timestamp"`
	Connections map[string]int     `json:"connections"`
	Heartbeats  map[string]float64 `json:"heartbeats"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

// handleTokens serves the collection endpoint: POST creates a token.
func (s *Server) handleTokens(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.createToken(w, r)
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
	default:
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleTokenByKey serves DELETE /api/tokens/{key}. A successful delete
// fires the store's deletion hooks, which force-disconnect the session the
// token authenticated.
func (s *Server) handleTokenByKey(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(r.URL.Path, "/api/tokens/")
	if key == "" || strings.Contains(key, "/") {
		s.sendError(w, "Token key required", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodDelete:
		s.deleteToken(w, r, key)
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
	default:
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) createToken(w http.ResponseWriter, r *http.Request) {
	var req CreateTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	if req.UserID == "" {
		s.sendError(w, "user_id is required", http.StatusBadRequest)
		return
	}

	token, err := s.tokens.Create(r.Context(), req.UserID)
	if err != nil {
		log.Printf("Token creation failed: %v", err)
		s.sendError(w, "Failed to create token", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusCreated)
	s.sendJSON(w, &CreateTokenResponse{Token: token})
}

func (s *Server) deleteToken(w http.ResponseWriter, r *http.Request, key string) {
	err := s.tokens.Delete(r.Context(), key)
	if errors.Is(err, interfaces.ErrTokenNotFound) {
		s.sendError(w, "Token not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Printf("Token deletion failed: %v", err)
		s.sendError(w, "Failed to delete token", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.sendJSON(w, &HealthResponse{
		Status:      "healthy",
		Timestamp:   time.Now(),
		Connections: s.stats.Stats(),
		Heartbeats:  s.heartbeats.Snapshot(),
	})
}

func (s *Server) sendJSON(w http.ResponseWriter, v interface{}) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	w.WriteHeader(code)
	s.sendJSON(w, &ErrorResponse{Error: message, Code: code})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		next.ServeHTTP(w, r)
	})
}

func (s *Server) jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}
