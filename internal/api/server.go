package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/own-bridge/internal/bridges/openwebnet"
	"github.com/nerrad567/own-bridge/internal/infrastructure/config"
	"github.com/nerrad567/own-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/own-bridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/own-bridge/internal/inventory"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// ThingService is the bridge service as seen by the API.
// *openwebnet.Service satisfies it.
type ThingService interface {
	BridgeSnapshots() []openwebnet.BridgeSnapshot
	BridgeSnapshot(id string) (openwebnet.BridgeSnapshot, bool)
	ThingSnapshots() []openwebnet.ThingSnapshot
	ThingSnapshot(id string) (openwebnet.ThingSnapshot, bool)
	SendCommand(thingID, channel, text string) error
	StartScan(bridgeID string) (string, error)
	StopScan(bridgeID string) error
	DiscoveryResults(bridgeID string) ([]openwebnet.DiscoveryResult, error)
}

// InventoryReader reads persisted things and discovery results.
// *inventory.SQLiteRepository satisfies it.
type InventoryReader interface {
	ListThings(ctx context.Context) ([]inventory.Thing, error)
	GetThing(ctx context.Context, id string) (*inventory.Thing, error)
	ListDiscovery(ctx context.Context, bridgeID string) ([]inventory.DiscoveryResult, error)
}

// EventSource supplies the MQTT messages relayed to WebSocket clients.
// *mqtt.Client satisfies it.
type EventSource interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	IsConnected() bool
}

// HealthChecker is a component that can report its own health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config    config.APIConfig
	Logger    *logging.Logger
	Service   ThingService
	Inventory InventoryReader // optional: /inventory routes answer 503 without it
	MQTT      EventSource     // optional: no event relay without it
	Database  HealthChecker   // optional
	Version   string
}

// Server is the HTTP API server of own-bridge.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg       config.APIConfig
	logger    *logging.Logger
	service   ThingService
	inventory InventoryReader
	mqtt      EventSource
	database  HealthChecker
	version   string
	startTime time.Time
	server    *http.Server
	hub       *Hub
	cancel    context.CancelFunc // cancels background goroutines on Close()
	topics    []string           // MQTT subscriptions owned by the event relay
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (config, logger, service)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Service == nil {
		return nil, fmt.Errorf("bridge service is required")
	}

	return &Server{
		cfg:       deps.Config,
		logger:    deps.Logger,
		service:   deps.Service,
		inventory: deps.Inventory,
		mqtt:      deps.MQTT,
		database:  deps.Database,
		version:   deps.Version,
		startTime: time.Now(),
		hub:       NewHub(deps.Config.WS, deps.Logger),
	}, nil
}

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub, subscribes to MQTT state, status and
// discovery topics for the event relay, and launches the HTTP listener in
// a background goroutine. The server can be stopped with Close().
//
// Parameters:
//   - ctx: Context for cancellation (not used for listener lifetime)
//
// Returns:
//   - error: If the server fails to start
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	go s.hub.Run(srvCtx)

	if err := s.subscribeEvents(); err != nil {
		s.logger.Warn("failed to subscribe to events for WebSocket", "error", err)
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		s.logger.Info("API server starting", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
//
// Returns:
//   - error: If shutdown encounters an error
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}
	s.unsubscribeEvents()

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
