// Package own is a small OpenWebNet protocol client.
//
// It speaks the text frame protocol used by BTicino/Legrand gateways
// ("*WHO*WHAT*WHERE##") over two transports:
//
//   - BusGateway: a BUS/SCS IP gateway reached over TCP, with the OPEN
//     password handshake.
//   - ZigBeeGateway: a ZigBee USB dongle reached over a serial port, with
//     optional port auto-discovery.
//
// # Architecture
//
//	          ┌──────────────┐   frames   ┌──────────────┐
//	Send ───► │   session    │ ─────────► │   gateway    │
//	          │ (reconnect,  │ ◄───────── │ (TCP/serial) │
//	          │  stats)      │            └──────────────┘
//	          └──────┬───────┘
//	                 │ events (one goroutine, in order)
//	                 ▼
//	             Listener
//
// Both gateways share the session runner: Start opens the connection in
// the background, events are delivered to subscribed listeners, and a
// session lost after it was established is re-opened with exponential
// backoff. Frames are parsed into Message values whose Kind lets callers
// dispatch without looking at WHO codes.
//
// Thread Safety: all exported methods are safe for concurrent use.
package own
