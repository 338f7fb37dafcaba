// Package openwebnet implements the OpenWebNet gateway bridge for own-bridge.
//
// It connects to BTicino/Legrand gateways, either a BUS/SCS gateway over
// TCP or a ZigBee USB dongle over a serial port, and exposes their lighting
// devices to a home-automation host over MQTT.
//
// # Architecture
//
//	┌──────────────┐  MQTT   ┌──────────────────────────────────────────────┐
//	│     Host     │◄───────►│ Service (service.go)                         │
//	└──────────────┘         │  • command intake, acks                      │
//	                         │  • status / state / discovery fan-out        │
//	                         │      ├──► inventory (SQLite)                 │
//	                         │      └──► history (InfluxDB)                 │
//	                         └───────┬──────────────────────────▲───────────┘
//	                                 │ HandleCommand            │ Callback
//	                         ┌───────▼──────────┐       ┌───────┴──────────┐
//	                         │ Device           │──────►│ Bridge           │
//	                         │  • reconciler    │ send  │  • Registry      │
//	                         │  • state timeout │◄──────│  • Discovery     │
//	                         └──────────────────┘ route │  • watchdog      │
//	                                                    └───────┬──────────┘
//	                                                            │ Transport
//	                                                    ┌───────▼──────────┐
//	                                                    │ Gateway          │
//	                                                    │ (internal/own)   │
//	                                                    └──────────────────┘
//
// A Bridge owns one gateway connection and turns its listener events into
// a thing status. Lighting reports are routed by logical device id to the
// registered Device; during a scan, reports from unknown addresses become
// discovery results. A Device turns host commands into frames and, for
// dimmers, reconciles reported levels against its own recent commands so
// the echo of a brightness change is not mistaken for a user action.
//
// # Addresses
//
// A WHERE address maps to a logical device id: on BUS '#' becomes 'h'
// ("0#4#01" → "0h4h01"); on ZigBee the unit suffix is dropped
// ("765432101#9" → "7654321"). Thing UIDs are
// openwebnet:<type>:<bridge>:<logicalId>.
//
// # MQTT Topics
//
//	ownbridge/command/openwebnet/{thing}/{channel}   host → bridge
//	ownbridge/ack/openwebnet/{thing}/{channel}       command result
//	ownbridge/state/openwebnet/{thing}/{channel}     retained channel state
//	ownbridge/status/openwebnet/{thing}              retained thing status
//	ownbridge/health/openwebnet/{bridge}             retained bridge health
//	ownbridge/discovery/openwebnet/{bridge}          discovery results
//
// # Thread Safety
//
// All exported types are safe for concurrent use. Listener events of one
// gateway are delivered in order on that gateway's event goroutine.
package openwebnet
