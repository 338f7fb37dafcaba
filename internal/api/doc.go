// Package api implements the HTTP API of own-bridge.
//
// This package provides:
//   - Read endpoints for bridges, things and discovery results
//   - A channel command endpoint sharing the MQTT command model
//   - Device scan control per bridge
//   - The persisted inventory view, available before gateways report
//   - A WebSocket stream relaying state, status and discovery events
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//
// # Architecture
//
//	HTTP client ──► chi router ──► ThingService (openwebnet.Service)
//	                    │                │
//	                    │                └──► gateway ──► BUS / ZigBee
//	                    └──► InventoryReader (SQLite)
//
//	MQTT state/status/discovery ──► Hub ──► WebSocket clients
//
// # Graceful Degradation
//
// The server operates without MQTT (no event relay) and without the
// inventory (the /inventory routes answer 503).
//
// The server follows the same lifecycle pattern as other components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api
