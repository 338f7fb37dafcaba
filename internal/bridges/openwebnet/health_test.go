package openwebnet

import (
	"context"
	"testing"
	"time"
)

// staticBridges is a fixed BridgeSource.
type staticBridges []*Bridge

func (s staticBridges) Bridges() []*Bridge { return s }

func newTestReporter(h *harness, pub HealthPublisher) *HealthReporter {
	return NewHealthReporter(HealthReporterConfig{
		Version:   "1.0.0",
		Interval:  time.Hour,
		Publisher: pub,
		Bridges:   staticBridges{h.bridge},
		Clock:     h.clock.Now,
	})
}

func TestNewHealthReporter_Defaults(t *testing.T) {
	r := NewHealthReporter(HealthReporterConfig{})

	if r.interval != DefaultHealthInterval {
		t.Errorf("interval = %v, want %v", r.interval, DefaultHealthInterval)
	}
	if err := r.PublishNow(); err != nil {
		t.Errorf("PublishNow() without publisher error = %v", err)
	}
}

func TestHealthReporter_DetermineStatus(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(h *harness)
		mqttDown   bool
		wantStatus HealthStatus
		wantReason string
	}{
		{
			name:       "connecting",
			setup:      func(*harness) {},
			wantStatus: HealthStarting,
			wantReason: "gateway connecting",
		},
		{
			name:       "online",
			setup:      func(h *harness) { h.connect() },
			wantStatus: HealthHealthy,
		},
		{
			name: "offline with cause",
			setup: func(h *harness) {
				h.scheduler.fire(GatewayOnlineTimeout)
			},
			wantStatus: HealthUnhealthy,
			wantReason: "Could not connect to gateway before timeout",
		},
		{
			name:       "mqtt down outranks bridge",
			setup:      func(h *harness) { h.connect() },
			mqttDown:   true,
			wantStatus: HealthDegraded,
			wantReason: "MQTT disconnected",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, ThingTypeBusGateway)
			tt.setup(h)
			pub := newMockMQTT()
			pub.setConnected(!tt.mqttDown)
			r := newTestReporter(h, pub)

			status, reason := r.determineStatus(h.bridge)

			if status != tt.wantStatus || reason != tt.wantReason {
				t.Errorf("determineStatus() = %s %q, want %s %q", status, reason, tt.wantStatus, tt.wantReason)
			}
		})
	}
}

func TestHealthReporter_PublishNow(t *testing.T) {
	h := newHarness(t, ThingTypeBusGateway)
	h.connect()
	pub := newMockMQTT()
	r := newTestReporter(h, pub)
	h.clock.Advance(10 * time.Second)

	if err := r.PublishNow(); err != nil {
		t.Fatalf("PublishNow() error = %v", err)
	}

	var msg HealthMessage
	p := pub.last(t, "ownbridge/health/openwebnet/gw1", &msg)
	if !p.retained || p.qos != 1 {
		t.Errorf("published qos=%d retained=%v, want 1 true", p.qos, p.retained)
	}
	if msg.Status != HealthHealthy || msg.Version != "1.0.0" || msg.UptimeSeconds != 10 {
		t.Errorf("msg = %+v", msg)
	}
}

func TestHealthReporter_PublishError(t *testing.T) {
	h := newHarness(t, ThingTypeBusGateway)
	pub := newMockMQTT()
	pub.publishErr = errPublish
	r := newTestReporter(h, pub)

	if err := r.PublishNow(); err == nil {
		t.Error("PublishNow() error = nil, want publish failure")
	}
}

func TestHealthReporter_StartStop(t *testing.T) {
	h := newHarness(t, ThingTypeBusGateway)
	h.connect()
	pub := newMockMQTT()
	r := newTestReporter(h, pub)

	r.Start(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for len(pub.on("ownbridge/health/openwebnet/gw1")) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("initial health not published")
		}
		time.Sleep(5 * time.Millisecond)
	}

	r.Stop()
	r.Stop()

	var msg HealthMessage
	pub.last(t, "ownbridge/health/openwebnet/gw1", &msg)
	if msg.Status != HealthStopping {
		t.Errorf("final status = %s, want stopping", msg.Status)
	}
}

func TestHealthReporter_ContextCancel(t *testing.T) {
	h := newHarness(t, ThingTypeBusGateway)
	pub := newMockMQTT()
	r := newTestReporter(h, pub)

	ctx, cancel := context.WithCancel(context.Background())
	r.Start(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("report loop did not exit on cancel")
	}
}
