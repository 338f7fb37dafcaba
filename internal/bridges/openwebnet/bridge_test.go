package openwebnet

import (
	"errors"
	"testing"

	"github.com/nerrad567/own-bridge/internal/own"
)

func TestBridgeInitializeConnects(t *testing.T) {
	h := newHarness(t, ThingTypeBusGateway)

	if got := h.bridge.Status(); got.Status != StatusUnknown {
		t.Errorf("Status() = %+v, want UNKNOWN", got)
	}
	if h.transport.starts != 1 {
		t.Errorf("transport started %d times, want 1", h.transport.starts)
	}
	if h.transport.subscribers() != 1 {
		t.Errorf("subscribers = %d, want 1", h.transport.subscribers())
	}
	if state, _ := h.bridge.Gateway().State(); state != ConnConnecting {
		t.Errorf("gateway state = %s, want CONNECTING", state)
	}
	if h.scheduler.pending(GatewayOnlineTimeout) != 1 {
		t.Error("watchdog not armed")
	}
}

func TestBridgeWatchdog(t *testing.T) {
	t.Run("unknown after timeout goes offline", func(t *testing.T) {
		h := newHarness(t, ThingTypeBusGateway)
		h.scheduler.fire(GatewayOnlineTimeout)

		got := h.bridge.Status()
		if got.Status != StatusOffline || got.Detail != DetailCommunicationError {
			t.Errorf("Status() = %+v, want OFFLINE/COMMUNICATION_ERROR", got)
		}
	})

	t.Run("connected before timeout", func(t *testing.T) {
		h := newHarness(t, ThingTypeBusGateway)
		h.connect()
		h.scheduler.fire(GatewayOnlineTimeout)

		if got := h.bridge.Status(); got != Online() {
			t.Errorf("Status() = %+v, want ONLINE", got)
		}
	})
}

func TestBridgeAlreadyConnected(t *testing.T) {
	transport := &mockTransport{connected: true}
	sched := &manualScheduler{}
	b := NewBridge(BridgeConfig{
		ID:        "gw1",
		Type:      ThingTypeBusGateway,
		Scheduler: sched,
		NewTransport: func(GatewayConfig, own.Logger) (Transport, error) {
			return transport, nil
		},
	})
	if err := b.Initialize(); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	defer b.Dispose()

	if got := b.Status(); got != Online() {
		t.Errorf("Status() = %+v, want ONLINE", got)
	}
	if transport.starts != 0 {
		t.Errorf("transport started %d times, want 0", transport.starts)
	}
	if sched.pending(GatewayOnlineTimeout) != 0 {
		t.Error("watchdog armed for a connected gateway")
	}
}

func TestBridgeTransportFactoryError(t *testing.T) {
	b := NewBridge(BridgeConfig{
		ID:        "gw1",
		Type:      ThingTypeBusGateway,
		Scheduler: &manualScheduler{},
		NewTransport: func(GatewayConfig, own.Logger) (Transport, error) {
			return nil, ErrInvalidArgument
		},
	})
	if err := b.Initialize(); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("Initialize() error = %v, want ErrInvalidArgument", err)
	}
	if got := b.Status(); got.Detail != DetailConfigurationError {
		t.Errorf("Status() = %+v, want CONFIGURATION_ERROR", got)
	}
}

func TestBridgeConnectionErrorCauses(t *testing.T) {
	tests := []struct {
		kind own.ConnErrorKind
		want string
	}{
		{own.ConnErrDisconnected, "Please check that the ZigBee dongle is correctly plugged-in, and the driver installed and loaded"},
		{own.ConnErrNoSerialPorts, "No serial ports found"},
		{own.ConnErrRuntimeEnvironment, "Make sure the serial port driver is supported on this platform"},
		{own.ConnErrIO, "Connection error (IO Exception). Check network and Configuration Parameters"},
		{own.ConnErrOther, "Unrecognised connection error"},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			h := newHarness(t, ThingTypeDongle)
			h.bridge.OnConnectionError(&own.ConnError{Kind: tt.kind, Err: errors.New("boom")})

			want := Offline(DetailCommunicationError, tt.want)
			if got := h.bridge.Status(); got != want {
				t.Errorf("Status() = %+v, want %+v", got, want)
			}
			state, cause := h.bridge.Gateway().State()
			if state != ConnError || cause != tt.want {
				t.Errorf("gateway state = %s %q", state, cause)
			}
		})
	}
}

func TestBridgeDisconnectAndReconnect(t *testing.T) {
	h := newHarness(t, ThingTypeBusGateway)
	h.connect()
	d := h.device(t, ThingTypeBusOnOffSwitch, "51")
	h.bridge.OnMessage(mustParse(t, "*1*1*51##"))

	h.transport.setConnected(false)
	h.bridge.OnDisconnected(errors.New("connection reset"))

	want := Offline(DetailCommunicationError, "The gateway HAS BEEN DISCONNECTED")
	if got := h.bridge.Status(); got != want {
		t.Errorf("Status() = %+v, want %+v", got, want)
	}
	if got := d.Status(); got.Detail != DetailBridgeOffline {
		t.Errorf("device Status() = %+v, want BRIDGE_OFFLINE", got)
	}

	h.transport.setConnected(true)
	h.bridge.OnReconnected()

	if got := h.bridge.Status(); got != Online() {
		t.Errorf("Status() = %+v, want ONLINE", got)
	}
	if got := h.transport.frames(); !equalStrings(got, []string{"*#1*51##"}) {
		t.Errorf("frames after reconnect = %v", got)
	}
	if got := d.Status(); got.Status != StatusUnknown {
		t.Errorf("device Status() = %+v, want UNKNOWN", got)
	}
}

func TestBridgeConnectionClosedKeepsStatus(t *testing.T) {
	h := newHarness(t, ThingTypeBusGateway)
	h.connect()

	h.bridge.OnConnectionClosed()

	if got := h.bridge.Status(); got != Online() {
		t.Errorf("Status() = %+v, want ONLINE", got)
	}
	if state, _ := h.bridge.Gateway().State(); state != ConnDisconnected {
		t.Errorf("gateway state = %s, want DISCONNECTED", state)
	}
}

func TestBridgeProperties(t *testing.T) {
	h := newHarness(t, ThingTypeDongle)
	h.transport.port = "/dev/ttyUSB0"
	h.transport.setConnected(true)
	h.bridge.OnConnected()

	if got := h.transport.frames(); !equalStrings(got, []string{"*#13**16##"}) {
		t.Errorf("frames = %v, want firmware request", got)
	}

	h.bridge.OnMessage(mustParse(t, "*#13**16*1*2*3##"))

	uid := h.bridge.UID()
	if got := h.callback.property(uid, PropertyFirmwareVersion); got != "1.2.3" {
		t.Errorf("firmwareVersion = %q", got)
	}
	if got := h.callback.property(uid, PropertySerialPort); got != "/dev/ttyUSB0" {
		t.Errorf("serialPort = %q", got)
	}
}

func TestBridgeIgnoresUnroutedFrames(t *testing.T) {
	h := newHarness(t, ThingTypeBusGateway)
	h.connect()

	for _, frame := range []string{"*#*1##", "*#*0##", "*2*1*41##", "*1*1*99##"} {
		h.bridge.OnMessage(mustParse(t, frame))
	}
	if len(h.callback.states) != 0 {
		t.Errorf("unexpected state updates: %v", h.callback.states)
	}
}

func TestBridgeRegisterInvalid(t *testing.T) {
	h := newHarness(t, ThingTypeBusGateway)

	if err := h.bridge.RegisterDevice("", nil); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("RegisterDevice() error = %v", err)
	}
	if err := h.bridge.UnregisterDevice(""); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("UnregisterDevice() error = %v", err)
	}
}

func TestBridgeDispose(t *testing.T) {
	h := newHarness(t, ThingTypeBusGateway)

	h.bridge.Dispose()

	if !h.transport.closed {
		t.Error("transport not closed")
	}
	if h.transport.subscribers() != 0 {
		t.Error("bridge still subscribed")
	}
	if h.scheduler.pending(GatewayOnlineTimeout) != 0 {
		t.Error("watchdog still pending")
	}
	if err := h.bridge.Initialize(); !errors.Is(err, ErrDisposed) {
		t.Errorf("Initialize() after Dispose error = %v", err)
	}
}
