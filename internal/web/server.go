package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/aarthig0611/face-recognition-app/internal/config"
	"github.com/aarthig0611/face-recognition-app/internal/database"
	"github.com/aarthig0611/face-recognition-app/internal/logger"
	"github.com/aarthig0611/face-recognition-app/internal/session"
	"github.com/aarthig0611/face-recognition-app/internal/web/handlers"
	"github.com/aarthig0611/face-recognition-app/internal/web/middleware"
)

var log = logger.Log

// Server represents the web server
type Server struct {
	config      *config.Config
	router      *chi.Mux
	httpServer  *http.Server
	manager     *session.Manager
	store       database.GalleryReader
	broadcaster *session.Broadcaster
	hub         *handlers.WebSocketHub
}

// NewServer creates a new web server. It registers its SSE broadcaster and
// WebSocket hub as sinks of manager.
func NewServer(cfg *config.Config, manager *session.Manager, store database.GalleryReader) *Server {
	r := chi.NewRouter()

	s := &Server{
		config:      cfg,
		router:      r,
		manager:     manager,
		store:       store,
		broadcaster: session.NewBroadcaster(),
		hub:         handlers.NewWebSocketHub(middleware.WebSocketOriginPatterns(cfg.Web.AllowedOrigins)...),
	}
	manager.AddSink(s.broadcaster)
	manager.AddSink(s.hub)

	// Set up middleware stack
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.Web.AllowedOrigins))

	// Set up routes
	s.setupRoutes()

	// Create HTTP server
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
		// no write timeout: SSE and WebSocket streams are long-lived
	}

	return s
}

// Start runs the WebSocket hub and serves HTTP until Shutdown.
func (s *Server) Start() error {
	go s.hub.Run()

	log.Infof("web: listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown stops the active session, closes WebSocket clients and gracefully
// shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info("web: shutting down")

	s.manager.Shutdown()
	s.hub.Stop()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// Router returns the chi router for testing
func (s *Server) Router() *chi.Mux {
	return s.router
}
