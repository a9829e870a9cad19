package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"chatconnect/internal/api"
	"chatconnect/internal/config"
	"chatconnect/internal/database"
	"chatconnect/internal/hub"
	"chatconnect/internal/presence"
	"chatconnect/internal/rooms"
	"chatconnect/internal/router"
	"chatconnect/internal/session"
	"chatconnect/internal/websocket"
	dbconfig "chatconnect/pkg/database"
)

const drainTimeout = 2 * time.Second

// Application coordinates all system components
// Component initialization follows strict dependency order:
// Store → Sessions → Rooms → Transport registry → Router → Presence → Hub → HTTP
type Application struct {
	config     *config.Config
	store      *database.Manager
	sessions   *session.Registry
	directory  *rooms.Directory
	registry   *websocket.Registry
	router     *router.Router
	tracker    *presence.Tracker
	hub        *hub.Hub
	apiServer  *api.Server
	httpServer *http.Server
	listener   net.Listener
}

// NewApplication builds every component; nothing runs until Start
func NewApplication(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	store, err := database.NewManager(&dbconfig.Config{
		Name:         cfg.Database.Name,
		HistoryLimit: cfg.Database.HistoryLimit,
		WriteTimeout: cfg.Database.WriteTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize history store: %w", err)
	}

	sessions := session.NewRegistry(cfg.Chat.DefaultRoom)
	directory := rooms.NewDirectory(sessions, cfg.Chat.SeedRooms)

	// The transport registry is the emitter every domain component delivers through
	registry := websocket.NewRegistry()

	messageRouter := router.NewRouter(sessions, directory, store, registry, router.Options{
		RateLimit:   cfg.Chat.RateLimit,
		MaxFileSize: cfg.Chat.MaxFileSize,
	})
	tracker := presence.NewTracker(sessions, directory, store, registry)

	hubOptions := hub.DefaultOptions()
	hubOptions.EventBuffer = cfg.WebSocket.EventBuffer
	messageHub := hub.NewHub(messageRouter, tracker, directory, registry, hubOptions)

	wsHandler := websocket.NewHandler(registry, messageHub, websocket.Options{
		PingInterval: cfg.WebSocket.PingInterval,
		ReadTimeout:  cfg.WebSocket.ReadTimeout,
		WriteTimeout: cfg.WebSocket.WriteTimeout,
		BufferSize:   cfg.WebSocket.BufferSize,
		MaxFileSize:  cfg.Chat.MaxFileSize,
	})

	apiServer := api.NewServer(store, directory, registry, sessions, cfg.Chat.MaxFileSize)
	apiServer.Mount("/ws", http.HandlerFunc(wsHandler.HandleWebSocket))

	httpServer := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      apiServer,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:     cfg,
		store:      store,
		sessions:   sessions,
		directory:  directory,
		registry:   registry,
		router:     messageRouter,
		tracker:    tracker,
		hub:        messageHub,
		apiServer:  apiServer,
		httpServer: httpServer,
	}, nil
}

// Start runs the hub, then begins accepting connections
// The listener is bound before Start returns, so GetAddr is usable immediately.
func (app *Application) Start(ctx context.Context) error {
	log.Printf("Starting chatconnect on %s", app.httpServer.Addr)

	if err := app.hub.Start(ctx); err != nil {
		return fmt.Errorf("failed to start message hub: %w", err)
	}

	listener, err := net.Listen("tcp", app.httpServer.Addr)
	if err != nil {
		_ = app.hub.Stop()
		return fmt.Errorf("failed to listen on %s: %w", app.httpServer.Addr, err)
	}
	app.listener = listener

	go func() {
		if err := app.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("HTTP server error: %v", err)
		}
	}()

	log.Printf("chatconnect started successfully on %s", listener.Addr())
	return nil
}

// Stop shuts down in reverse dependency order: HTTP → connections → Hub → Store
func (app *Application) Stop(ctx context.Context) error {
	log.Printf("Shutting down chatconnect")

	var errs []error
	if err := app.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("HTTP server shutdown: %w", err))
	}

	// Hijacked WebSocket connections are not tracked by http.Server
	app.registry.CloseAll()
	app.awaitDisconnects(ctx)

	if err := app.hub.Stop(); err != nil && !errors.Is(err, hub.ErrHubNotRunning) {
		errs = append(errs, fmt.Errorf("message hub shutdown: %w", err))
	}
	if err := app.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("history store shutdown: %w", err))
	}

	log.Printf("chatconnect shutdown complete")
	return errors.Join(errs...)
}

// awaitDisconnects gives the hub a chance to drain departure notices
func (app *Application) awaitDisconnects(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	deadline := time.After(drainTimeout)
	for app.sessions.Count() > 0 && app.hub.IsRunning() {
		select {
		case <-ctx.Done():
			return
		case <-deadline:
			log.Printf("Shutdown proceeding with %d sessions still registered", app.sessions.Count())
			return
		case <-ticker.C:
		}
	}
}

// GetAddr returns the bound listen address, resolving port 0 after Start
func (app *Application) GetAddr() string {
	if app.listener != nil {
		return app.listener.Addr().String()
	}
	return app.httpServer.Addr
}

// Handler exposes the HTTP surface for in-process tests
func (app *Application) Handler() http.Handler {
	return app.apiServer
}
