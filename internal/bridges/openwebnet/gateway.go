package openwebnet

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/own-bridge/internal/own"
)

// Default BUS gateway parameters.
const (
	DefaultBusHost     = own.DefaultBusHost
	DefaultBusPort     = own.DefaultBusPort
	DefaultBusPassword = own.DefaultBusPassword

	// sendTimeout bounds one fire-and-forget frame write.
	sendTimeout = 3 * time.Second
)

// Transport is the protocol session of one gateway. It is implemented by
// own.BusGateway and own.ZigBeeGateway.
type Transport interface {
	Start() error
	Subscribe(l own.Listener)
	Unsubscribe(l own.Listener)
	IsConnected() bool
	Send(ctx context.Context, msg own.Message) error
	Stats() own.Stats
	Close() error
}

// GatewayConfig holds the transport parameters of one gateway.
type GatewayConfig struct {
	Kind GatewayKind

	// BUS parameters.
	Host     string
	Port     int
	Password string

	// SerialPort names the ZigBee dongle port. Empty means auto-discover.
	SerialPort string

	ConnectTimeout    time.Duration
	ReconnectInterval time.Duration
}

// TransportFactory creates the transport for a gateway configuration.
type TransportFactory func(cfg GatewayConfig, logger own.Logger) (Transport, error)

// NewTransport is the default TransportFactory. Every call returns a new,
// independently owned session.
func NewTransport(cfg GatewayConfig, logger own.Logger) (Transport, error) {
	session := own.SessionConfig{
		ConnectTimeout:    cfg.ConnectTimeout,
		ReconnectInterval: cfg.ReconnectInterval,
	}

	switch cfg.Kind {
	case GatewayBUS:
		gw := own.NewBusGateway(own.BusConfig{
			SessionConfig: session,
			Host:          cfg.Host,
			Port:          cfg.Port,
			Password:      cfg.Password,
		})
		if logger != nil {
			gw.SetLogger(logger)
		}
		return gw, nil
	case GatewayZigBee:
		gw := own.NewZigBeeGateway(own.ZigBeeConfig{
			SessionConfig: session,
			SerialPort:    cfg.SerialPort,
		})
		if logger != nil {
			gw.SetLogger(logger)
		}
		return gw, nil
	default:
		return nil, fmt.Errorf("%w: gateway kind %d", ErrInvalidArgument, cfg.Kind)
	}
}

// ConnState is the connection state of a gateway.
type ConnState string

// Connection states.
const (
	ConnUnknown      ConnState = "UNKNOWN"
	ConnConnecting   ConnState = "CONNECTING"
	ConnConnected    ConnState = "CONNECTED"
	ConnDisconnected ConnState = "DISCONNECTED"
	ConnError        ConnState = "ERROR"
)

// Gateway owns the single transport of a bridge and tracks its connection
// state. State changes are driven by the transport's listener events,
// relayed by the bridge.
//
// Thread Safety: All methods are safe for concurrent use.
type Gateway struct {
	cfg       GatewayConfig
	transport Transport
	logger    own.Logger

	mu        sync.RWMutex
	state     ConnState
	lastCause string
}

func newGateway(cfg GatewayConfig, t Transport, logger own.Logger) *Gateway {
	return &Gateway{cfg: cfg, transport: t, logger: logger, state: ConnUnknown}
}

// Kind returns the transport kind.
func (g *Gateway) Kind() GatewayKind { return g.cfg.Kind }

// Config returns the transport parameters.
func (g *Gateway) Config() GatewayConfig { return g.cfg }

// Connect starts the transport. It returns at once; the outcome arrives
// as a listener event. Connecting while already connected or connecting is
// a no-op.
//
// Returns:
//   - error: a wrapped own.ErrClosed once the gateway was closed
func (g *Gateway) Connect() error {
	g.mu.Lock()
	if g.state == ConnConnecting || g.state == ConnConnected {
		g.mu.Unlock()
		return nil
	}
	g.state = ConnConnecting
	g.mu.Unlock()

	if err := g.transport.Start(); err != nil {
		g.setState(ConnError, err.Error())
		return fmt.Errorf("connect gateway: %w", err)
	}
	return nil
}

// IsConnected reports whether the transport session is established.
func (g *Gateway) IsConnected() bool {
	return g.transport.IsConnected()
}

// Send writes msg to the gateway. It never blocks on a disconnected
// transport and never reports failure: errors are logged and the frame
// is dropped.
func (g *Gateway) Send(msg own.Message) {
	if !g.transport.IsConnected() {
		g.logDebug("gateway not connected, dropping frame", "frame", msg.String())
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	if err := g.transport.Send(ctx, msg); err != nil {
		if g.logger != nil {
			g.logger.Warn("failed to send frame", "frame", msg.String(), "error", err)
		}
	}
}

// State returns the connection state and the last error cause.
func (g *Gateway) State() (ConnState, string) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state, g.lastCause
}

// Stats returns the transport statistics.
func (g *Gateway) Stats() own.Stats {
	return g.transport.Stats()
}

// PortName returns the serial port in use by a ZigBee transport.
func (g *Gateway) PortName() string {
	if p, ok := g.transport.(interface{ PortName() string }); ok {
		return p.PortName()
	}
	return ""
}

func (g *Gateway) subscribe(l own.Listener)   { g.transport.Subscribe(l) }
func (g *Gateway) unsubscribe(l own.Listener) { g.transport.Unsubscribe(l) }

// close shuts the transport down and waits for its goroutines.
func (g *Gateway) close() error {
	err := g.transport.Close()
	g.setState(ConnDisconnected, "")
	return err
}

func (g *Gateway) setState(s ConnState, cause string) {
	g.mu.Lock()
	g.state = s
	if cause != "" {
		g.lastCause = cause
	}
	g.mu.Unlock()
}

func (g *Gateway) logDebug(msg string, keysAndValues ...any) {
	if g.logger != nil {
		g.logger.Debug(msg, keysAndValues...)
	}
}
