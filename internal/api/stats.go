package api

import (
	"net/http"

	"github.com/nerrad567/registry-core/internal/store"
)

// statsResponse extends store statistics with transport counters.
type statsResponse struct {
	store.Stats
	WebSocketClients int `json:"websocket_clients"`
}

// handleStats returns contract-wide counts.
func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, statsResponse{
		Stats:            s.store.Stats(),
		WebSocketClients: s.hub.ClientCount(),
	})
}
