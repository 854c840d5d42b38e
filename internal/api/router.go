package api

import (
	"net/http"

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

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeNotFound(w, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, ErrCodeMethodNotAllow, "method not allowed")
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		// Authenticated by single-use ticket, checked in the handler.
		r.Get("/ws", s.handleWebSocket)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Post("/auth/ws-ticket", s.handleWSTicket)
			r.Get("/auth/whoami", s.handleWhoAmI)

			r.Get("/stats", s.handleStats)
			r.Get("/audit", s.handleListAuditLogs)

			r.Route("/registries", func(r chi.Router) {
				r.Get("/", s.handleListRegistries)
				r.Post("/", s.handleCreateRegistry)

				r.Route("/{registry}", func(r chi.Router) {
					r.Get("/", s.handleGetRegistry)
					r.Get("/exists", s.handleRegistryExists)
					r.Get("/owner", s.handleIsOwner)
					r.Post("/devices", s.handleAddDevice)

					r.Route("/devices/{device}", func(r chi.Router) {
						r.Get("/", s.handleGetDevice)
						r.Get("/exists", s.handleDeviceExists)
						r.Put("/metadata", s.handleSetDeviceMetadata)
						r.Put("/data", s.handleSetDeviceData)
						r.Post("/metadata/params", s.handleSetDeviceMetadataParam)
					})
				})
			})
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}
