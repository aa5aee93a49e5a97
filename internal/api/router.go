package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		// Rig metadata and live state
		r.Get("/about", s.handleAbout)
		r.Get("/state", s.handleState)
		r.Get("/params", s.handleParams)

		// Connection lifecycle
		r.Post("/connect", s.handleConnect)
		r.Post("/disconnect", s.handleDisconnect)

		// Command issuance and recorded lifecycle events
		r.Route("/commands/{id}", func(r chi.Router) {
			r.Post("/", s.handleCommand)
			r.Get("/events", s.handleCommandEvents)
		})

		// Recorded samples per measure
		r.Get("/measures/{id}/history", s.handleMeasureHistory)

		// WebSocket for live tick and event streams
		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// handleHealth returns the server health status and rig connectivity.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"version":   s.version,
		"connected": s.rig.Connected(),
	})
}
