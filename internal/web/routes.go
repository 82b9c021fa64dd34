package web

import (
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/aarthig0611/face-recognition-app/internal/web/handlers"
	"github.com/aarthig0611/face-recognition-app/internal/web/middleware"
)

func (s *Server) setupRoutes() {
	// Create handlers
	galleryHandler := handlers.NewGalleryHandler(s.manager, s.store)
	registerHandler := handlers.NewRegisterHandler(s.manager)
	analyzeHandler := handlers.NewAnalyzeHandler(s.manager)
	sessionsHandler := handlers.NewSessionsHandler(s.manager, s.broadcaster, s.config.Web.ReplayDir, s.config.Detector.Timeout)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", handlers.HealthCheck)

		// Streams stay open; no logging or timeout middleware.
		r.Get("/ws", s.hub.ServeHTTP)
		r.Get("/sessions/{id}/events", sessionsHandler.Events)

		r.Group(func(r chi.Router) {
			r.Use(chiMiddleware.Logger)
			r.Use(chiMiddleware.Timeout(2 * time.Minute))

			// Gallery
			r.Get("/descriptors", galleryHandler.Descriptors)
			r.Get("/identities", galleryHandler.Identities)
			r.Post("/gallery/reload", galleryHandler.Reload)

			// Registration
			r.With(middleware.RateLimit(s.config.Register.Rate, s.config.Register.Burst)).
				Post("/register", registerHandler.Register)

			// Single photo
			r.Post("/analyze", analyzeHandler.Analyze)

			// Capture sessions
			r.Post("/sessions", sessionsHandler.Start)
			r.Get("/sessions/current", sessionsHandler.Current)
			r.Post("/sessions/{id}/frames", sessionsHandler.PushFrame)
			r.Delete("/sessions/{id}", sessionsHandler.Stop)
			r.Get("/sessions/{id}/report", sessionsHandler.Report)
		})
	})
}
