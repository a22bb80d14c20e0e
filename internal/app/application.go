package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"watchtower/internal/api"
	"watchtower/internal/auth"
	"watchtower/internal/channel"
	"watchtower/internal/config"
	"watchtower/internal/heartbeat"
	"watchtower/internal/revocation"
	"watchtower/internal/token"
	"watchtower/internal/websocket"
	"watchtower/pkg/interfaces"
)

// Application coordinates all system components. Construction order:
// token store → channel layer → aggregator → notifier → registry →
// websocket handler → API → HTTP server.
type Application struct {
	config     *config.Config
	tokens     *token.Store
	layer      interfaces.ChannelLayer
	aggregator *heartbeat.Aggregator
	registry   *websocket.Registry
	apiServer  *api.Server
	httpServer *http.Server

	aggCancel context.CancelFunc
}

// NewApplication builds the component graph from a validated config.
func NewApplication(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	tokens, err := token.NewStore(cfg.Database.Path, cfg.Database.Timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token store: %w", err)
	}

	var layer interfaces.ChannelLayer
	if cfg.Channel.NATSURL != "" {
		layer, err = channel.NewNATSLayer(cfg.Channel.NATSURL)
		if err != nil {
			_ = tokens.Close()
			return nil, fmt.Errorf("failed to initialize NATS channel layer: %w", err)
		}
	} else {
		layer = channel.NewLocalLayer()
	}

	aggregator := heartbeat.NewAggregator(layer, cfg.Heartbeat)

	notifier := revocation.NewNotifier(layer)
	tokens.OnDelete(notifier.NotifyTokenDeleted)

	registry := websocket.NewRegistry()

	authenticator := auth.NewAuthenticator(tokens, cfg.Auth.ProcessPassword)
	wsHandler := websocket.NewHandler(authenticator, layer, aggregator, registry, cfg.WebSocket)

	apiServer := api.NewServer(tokens, registry, aggregator)

	mux := http.NewServeMux()
	mux.Handle("/api/", apiServer)
	mux.Handle("/health", apiServer)
	mux.HandleFunc("/ws", wsHandler.HandleWebSocket)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      mux,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:     cfg,
		tokens:     tokens,
		layer:      layer,
		aggregator: aggregator,
		registry:   registry,
		apiServer:  apiServer,
		httpServer: httpServer,
	}, nil
}

// Start begins application execution: the heartbeat aggregator first, then
// the HTTP server.
func (app *Application) Start(ctx context.Context) error {
	log.Printf("Starting watchtower on %s", app.httpServer.Addr)

	aggCtx, cancel := context.WithCancel(context.Background())
	app.aggCancel = cancel
	app.aggregator.Initialize(aggCtx)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := app.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	select {
	case err := <-serverErrCh:
		app.aggregator.Stop()
		return err
	case <-time.After(100 * time.Millisecond):
		log.Printf("Watchtower started")
		return nil
	case <-ctx.Done():
		app.aggregator.Stop()
		return ctx.Err()
	}
}

// Stop shuts down in reverse order: HTTP → sessions → aggregator →
// channel layer → token store.
func (app *Application) Stop(ctx context.Context) error {
	log.Printf("Shutting down watchtower")

	if err := app.httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	app.registry.CloseAll()

	app.aggregator.Stop()
	if app.aggCancel != nil {
		app.aggCancel()
	}

	if err := app.layer.Close(); err != nil {
		log.Printf("Channel layer shutdown error: %v", err)
	}

	if err := app.tokens.Close(); err != nil {
		log.Printf("Token store shutdown error: %v", err)
	}

	log.Printf("Watchtower shutdown complete")
	return nil
}

// GetAddr returns the server address for external connections.
func (app *Application) GetAddr() string {
	return app.httpServer.Addr
}
