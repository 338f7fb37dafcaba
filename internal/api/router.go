package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/own-bridge/internal/bridges/openwebnet"
)

// healthCheckTimeout bounds the database probe of the health endpoint.
const healthCheckTimeout = 2 * time.Second

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

		r.Route("/bridges", func(r chi.Router) {
			r.Get("/", s.handleListBridges)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetBridge)
				r.Post("/scan", s.handleStartScan)
				r.Delete("/scan", s.handleStopScan)
				r.Get("/discovery", s.handleBridgeDiscovery)
			})
		})

		r.Route("/things", func(r chi.Router) {
			r.Get("/", s.handleListThings)
			r.Get("/{id}", s.handleGetThing)
			r.Post("/{id}/channels/{channel}", s.handleChannelCommand)
		})

		r.Get("/discovery", s.handleListDiscovery)

		// Persisted view, available after a restart before gateways report.
		r.Route("/inventory", func(r chi.Router) {
			r.Get("/things", s.handleInventoryThings)
			r.Get("/things/{id}", s.handleInventoryThing)
			r.Get("/discovery", s.handleInventoryDiscovery)
		})

		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// handleHealth reports the service health. A failing database makes the
// response 503; a disconnected MQTT broker only degrades it.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	components := map[string]string{}

	if s.database != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()
		if err := s.database.HealthCheck(ctx); err != nil {
			s.logger.Warn("database health check failed", "error", err)
			components["database"] = "error"
			status = "unhealthy"
			code = http.StatusServiceUnavailable
		} else {
			components["database"] = "ok"
		}
	}

	if s.mqtt != nil {
		if s.mqtt.IsConnected() {
			components["mqtt"] = "connected"
		} else {
			components["mqtt"] = "disconnected"
			if status == "ok" {
				status = "degraded"
			}
		}
	}

	bridges := s.service.BridgeSnapshots()
	online := 0
	for _, b := range bridges {
		if b.Status.Status == openwebnet.StatusOnline {
			online++
		}
	}

	writeJSON(w, code, map[string]any{
		"status":          status,
		"version":         s.version,
		"uptime_seconds":  int64(time.Since(s.startTime).Seconds()),
		"components":      components,
		"bridges":         len(bridges),
		"bridges_online":  online,
		"websocket_peers": s.hub.ClientCount(),
	})
}
