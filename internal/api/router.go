package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		// WebSocket authenticates with a ticket, validated in the handler.
		r.Get("/ws", s.handleWebSocket)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Post("/auth/ws-ticket", s.handleWSTicket)

			r.Route("/receivers", func(r chi.Router) {
				r.Get("/", s.handleListReceivers)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetReceiver)
					r.Post("/commands", s.handleCommand)
				})
			})

			r.Post("/discovery", s.handleDiscovery)
		})
	})

	return r
}

// handleHealth returns the server and bridge status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	managed, online := s.bridge.ReceiverCounts()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":            "ok",
		"version":           s.version,
		"uptime_seconds":    int64(time.Since(s.started).Seconds()),
		"receivers_managed": managed,
		"receivers_online":  online,
		"websocket_clients": s.hub.ClientCount(),
	})
}
