package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/own-bridge/internal/inventory"
)

// handleInventoryThings returns the persisted things with their last known
// status, properties and channel values.
func (s *Server) handleInventoryThings(w http.ResponseWriter, r *http.Request) {
	if !s.requireInventory(w) {
		return
	}

	things, err := s.inventory.ListThings(r.Context())
	if err != nil {
		s.logger.Error("failed to list inventory things", "error", err)
		writeInternalError(w, "failed to list things")
		return
	}
	if things == nil {
		things = []inventory.Thing{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"things": things,
		"count":  len(things),
	})
}

// handleInventoryThing returns one persisted thing.
func (s *Server) handleInventoryThing(w http.ResponseWriter, r *http.Request) {
	if !s.requireInventory(w) {
		return
	}

	t, err := s.inventory.GetThing(r.Context(), chi.URLParam(r, "id"))
	if inventory.IsNotFound(err) {
		writeNotFound(w, "thing not found")
		return
	}
	if err != nil {
		s.logger.Error("failed to get inventory thing", "error", err)
		writeInternalError(w, "failed to get thing")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// handleInventoryDiscovery returns the persisted discovery inbox,
// optionally filtered with ?bridge=.
func (s *Server) handleInventoryDiscovery(w http.ResponseWriter, r *http.Request) {
	if !s.requireInventory(w) {
		return
	}

	results, err := s.inventory.ListDiscovery(r.Context(), r.URL.Query().Get("bridge"))
	if err != nil {
		s.logger.Error("failed to list discovery inbox", "error", err)
		writeInternalError(w, "failed to list discovery results")
		return
	}
	if results == nil {
		results = []inventory.DiscoveryResult{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"results": results,
		"count":   len(results),
	})
}

func (s *Server) requireInventory(w http.ResponseWriter) bool {
	if s.inventory == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "inventory not configured")
		return false
	}
	return true
}
