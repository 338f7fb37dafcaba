package openwebnet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/own-bridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/own-bridge/internal/own"
)

// DefaultHealthInterval is the health publish period when none is configured.
const DefaultHealthInterval = 30 * time.Second

// HealthPublisher is the interface for publishing health messages.
// This is typically implemented by an MQTT client.
type HealthPublisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// BridgeSource lists the bridges to report on.
type BridgeSource interface {
	Bridges() []*Bridge
}

// HealthReporterConfig holds configuration for the health reporter.
type HealthReporterConfig struct {
	// Version is the service version carried in every message.
	Version string

	// Interval is how often to publish. Default: DefaultHealthInterval.
	Interval time.Duration

	Publisher HealthPublisher
	Bridges   BridgeSource

	// Clock supplies the current time. Default: time.Now.
	Clock Clock

	Logger own.Logger
}

// HealthReporter publishes one retained health message per bridge at a
// fixed interval.
//
// Thread Safety: All methods are safe for concurrent use.
type HealthReporter struct {
	version   string
	interval  time.Duration
	publisher HealthPublisher
	bridges   BridgeSource
	clock     Clock
	logger    own.Logger
	startTime time.Time
	topics    mqtt.Topics

	// stopOnce prevents double-close panics
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewHealthReporter creates a health reporter.
//
// Parameters:
//   - cfg: Configuration for the health reporter
//
// Returns:
//   - *HealthReporter: Ready to start (call Start to begin reporting)
func NewHealthReporter(cfg HealthReporterConfig) *HealthReporter {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultHealthInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	return &HealthReporter{
		version:   cfg.Version,
		interval:  cfg.Interval,
		publisher: cfg.Publisher,
		bridges:   cfg.Bridges,
		clock:     cfg.Clock,
		logger:    cfg.Logger,
		startTime: cfg.Clock(),
		done:      make(chan struct{}),
	}
}

// Start begins periodic reporting until ctx is cancelled or Stop is called.
func (h *HealthReporter) Start(ctx context.Context) {
	h.wg.Add(1)
	go h.reportLoop(ctx)
}

// Stop ends reporting and publishes a final "stopping" message for every
// bridge. Safe to call multiple times.
func (h *HealthReporter) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.wg.Wait()

		for _, b := range h.listBridges() {
			if err := h.publish(b, HealthStopping, "service stopping"); err != nil {
				h.logError("failed to publish stopping health", err, b)
			}
		}
	})
}

// PublishNow publishes the current health of every bridge immediately.
//
// Returns:
//   - error: the joined publish errors, nil if all succeeded
func (h *HealthReporter) PublishNow() error {
	var errs []error
	for _, b := range h.listBridges() {
		status, reason := h.determineStatus(b)
		if err := h.publish(b, status, reason); err != nil {
			errs = append(errs, fmt.Errorf("bridge %s: %w", b.ID(), err))
		}
	}
	return errors.Join(errs...)
}

func (h *HealthReporter) reportLoop(ctx context.Context) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	if err := h.PublishNow(); err != nil {
		h.logError("failed to publish initial health", err, nil)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case <-ticker.C:
			if err := h.PublishNow(); err != nil {
				h.logError("failed to publish health", err, nil)
			}
		}
	}
}

// determineStatus maps the bridge status onto a health status. A lost
// MQTT connection outranks the bridge status.
func (h *HealthReporter) determineStatus(b *Bridge) (HealthStatus, string) {
	if h.publisher == nil || !h.publisher.IsConnected() {
		return HealthDegraded, "MQTT disconnected"
	}

	s := b.Status()
	switch s.Status {
	case StatusOnline:
		return HealthHealthy, ""
	case StatusOffline:
		reason := s.Description
		if reason == "" {
			reason = string(s.Detail)
		}
		return HealthUnhealthy, reason
	default:
		if gw := b.Gateway(); gw != nil {
			if state, _ := gw.State(); state == ConnConnecting {
				return HealthStarting, "gateway connecting"
			}
		}
		return HealthStarting, "waiting for gateway"
	}
}

func (h *HealthReporter) publish(b *Bridge, status HealthStatus, reason string) error {
	if h.publisher == nil {
		return nil
	}

	msg := NewHealthMessage(b, h.version, status, h.startTime, h.clock())
	msg.Reason = reason

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal health message: %w", err)
	}
	return h.publisher.Publish(h.topics.BridgeHealth(Protocol, b.ID()), payload, 1, true)
}

func (h *HealthReporter) listBridges() []*Bridge {
	if h.bridges == nil {
		return nil
	}
	return h.bridges.Bridges()
}

func (h *HealthReporter) logError(msg string, err error, b *Bridge) {
	if h.logger == nil {
		return
	}
	if b != nil {
		h.logger.Error(msg, "bridge", b.ID(), "error", err)
		return
	}
	h.logger.Error(msg, "error", err)
}
