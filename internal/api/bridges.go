package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/own-bridge/internal/bridges/openwebnet"
)

// handleListBridges returns every configured gateway bridge.
func (s *Server) handleListBridges(w http.ResponseWriter, _ *http.Request) {
	bridges := s.service.BridgeSnapshots()
	writeJSON(w, http.StatusOK, map[string]any{
		"bridges": bridges,
		"count":   len(bridges),
	})
}

// handleGetBridge returns one bridge with its gateway state and counters.
func (s *Server) handleGetBridge(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	b, ok := s.service.BridgeSnapshot(id)
	if !ok {
		writeNotFound(w, "bridge not found")
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// handleStartScan starts a device search on a bridge.
//
// Responds 202 with the scan id, 404 for an unknown bridge, 503 when the
// gateway is not connected.
func (s *Server) handleStartScan(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	scanID, err := s.service.StartScan(id)
	if err != nil {
		writeBridgeError(w, err)
		return
	}

	s.logger.Info("device scan requested", "bridge", id, "scan_id", scanID, "request_id", requestID(r))
	writeJSON(w, http.StatusAccepted, map[string]string{
		"bridge":  id,
		"scan_id": scanID,
	})
}

// handleStopScan ends a running device search.
func (s *Server) handleStopScan(w http.ResponseWriter, r *http.Request) {
	if err := s.service.StopScan(chi.URLParam(r, "id")); err != nil {
		writeBridgeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleBridgeDiscovery returns the discovery results of one bridge.
func (s *Server) handleBridgeDiscovery(w http.ResponseWriter, r *http.Request) {
	results, err := s.service.DiscoveryResults(chi.URLParam(r, "id"))
	if err != nil {
		writeBridgeError(w, err)
		return
	}
	writeDiscovery(w, results)
}

// handleListDiscovery returns the live discovery results, optionally
// filtered with ?bridge=.
func (s *Server) handleListDiscovery(w http.ResponseWriter, r *http.Request) {
	results, err := s.service.DiscoveryResults(r.URL.Query().Get("bridge"))
	if err != nil {
		writeBridgeError(w, err)
		return
	}
	writeDiscovery(w, results)
}

func writeDiscovery(w http.ResponseWriter, results []openwebnet.DiscoveryResult) {
	if results == nil {
		results = []openwebnet.DiscoveryResult{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"results": results,
		"count":   len(results),
	})
}
