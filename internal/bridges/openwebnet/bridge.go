package openwebnet

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/own-bridge/internal/own"
)

// Bridge status descriptions.
const (
	descDisconnected   = "The gateway HAS BEEN DISCONNECTED"
	descWatchdog       = "Could not connect to gateway before timeout"
	descUnknownFailure = "unknown error"
)

// Connection error causes shown in the bridge status.
var connErrorCauses = map[own.ConnErrorKind]string{
	own.ConnErrDisconnected:       "Please check that the ZigBee dongle is correctly plugged-in, and the driver installed and loaded",
	own.ConnErrNoSerialPorts:      "No serial ports found",
	own.ConnErrRuntimeEnvironment: "Make sure the serial port driver is supported on this platform",
	own.ConnErrIO:                 "Connection error (IO Exception). Check network and Configuration Parameters",
	own.ConnErrOther:              "Unrecognised connection error",
}

// ConnErrorCause returns the status description for a connection error kind.
func ConnErrorCause(kind own.ConnErrorKind) string {
	if cause, ok := connErrorCauses[kind]; ok {
		return cause
	}
	return connErrorCauses[own.ConnErrOther]
}

// generalWhere addresses every lighting point of a gateway.
func generalWhere(kind GatewayKind) string {
	if kind == GatewayZigBee {
		return "0#9"
	}
	return "0"
}

// BridgeConfig configures one gateway bridge.
type BridgeConfig struct {
	// ID is the bridge id, the third segment of every thing UID under it.
	ID string

	// Type is ThingTypeBusGateway or ThingTypeDongle.
	Type ThingType

	// Label is the display name. Defaults to the type label.
	Label string

	// Gateway holds the transport parameters. Kind is derived from Type.
	Gateway GatewayConfig

	// Callback receives status, state and property updates.
	Callback Callback

	// Scheduler runs the watchdog and timeouts. Default: DefaultScheduler.
	Scheduler Scheduler

	// Clock supplies the current time. Default: time.Now.
	Clock Clock

	// Logger is optional.
	Logger own.Logger

	// NewTransport creates the gateway transport. Default: NewTransport.
	NewTransport TransportFactory
}

// Bridge is the handler of one gateway thing. It owns the gateway
// connection, routes network reports to registered devices and reports
// its own status from the connection events.
//
// Thread Safety:
//   - All exported methods are safe for concurrent use.
//   - Listener callbacks arrive on the transport's event goroutine.
type Bridge struct {
	id        string
	uid       ThingUID
	thingType ThingType
	label     string
	kind      GatewayKind

	cfg       BridgeConfig
	callback  Callback
	scheduler Scheduler
	clock     Clock
	logger    own.Logger

	registry *Registry

	mu         sync.Mutex
	gateway    *Gateway
	status     Status
	properties map[string]string
	watchdog   Timer
	scan       *scan
	disposed   bool
}

var _ own.Listener = (*Bridge)(nil)

// scan is a running device search.
type scan struct {
	discovery *Discovery
	timer     Timer
	started   time.Time
}

// NewBridge creates a bridge handler. Call Initialize to connect.
func NewBridge(cfg BridgeConfig) *Bridge {
	if cfg.Label == "" {
		cfg.Label = cfg.Type.Label()
	}
	if cfg.Type == ThingTypeDongle {
		cfg.Gateway.Kind = GatewayZigBee
	} else {
		cfg.Gateway.Kind = GatewayBUS
	}
	if cfg.Callback == nil {
		cfg.Callback = nopCallback{}
	}
	if cfg.Scheduler == nil {
		cfg.Scheduler = DefaultScheduler
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.NewTransport == nil {
		cfg.NewTransport = NewTransport
	}

	return &Bridge{
		id:         cfg.ID,
		uid:        BridgeUID(cfg.Type, cfg.ID),
		thingType:  cfg.Type,
		label:      cfg.Label,
		kind:       cfg.Gateway.Kind,
		cfg:        cfg,
		callback:   cfg.Callback,
		scheduler:  cfg.Scheduler,
		clock:      cfg.Clock,
		logger:     cfg.Logger,
		registry:   NewRegistry(),
		status:     Unknown(""),
		properties: make(map[string]string),
	}
}

// ID returns the bridge id.
func (b *Bridge) ID() string { return b.id }

// UID returns the bridge thing UID.
func (b *Bridge) UID() ThingUID { return b.uid }

// Type returns the bridge thing type.
func (b *Bridge) Type() ThingType { return b.thingType }

// Label returns the display label.
func (b *Bridge) Label() string { return b.label }

// Kind returns the gateway transport kind.
func (b *Bridge) Kind() GatewayKind { return b.kind }

// Registry returns the device registry of this bridge.
func (b *Bridge) Registry() *Registry { return b.registry }

// Gateway returns the gateway connection, or nil before Initialize.
func (b *Bridge) Gateway() *Gateway {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.gateway
}

// Status returns the bridge thing status.
func (b *Bridge) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

// Properties returns a copy of the bridge properties.
func (b *Bridge) Properties() map[string]string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]string, len(b.properties))
	for k, v := range b.properties {
		out[k] = v
	}
	return out
}

// Scanning reports whether a device search is running.
func (b *Bridge) Scanning() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.scan != nil
}

// Initialize creates the gateway connection and starts connecting.
//
// The bridge is ONLINE at once if the transport is already connected.
// Otherwise it is UNKNOWN until a connection event arrives; if none
// arrives within GatewayOnlineTimeout it goes OFFLINE.
//
// Returns:
//   - error: the transport factory error, or ErrDisposed
func (b *Bridge) Initialize() error {
	b.mu.Lock()
	if b.disposed {
		b.mu.Unlock()
		return ErrDisposed
	}
	if b.gateway != nil {
		b.mu.Unlock()
		return nil
	}
	b.mu.Unlock()

	transport, err := b.cfg.NewTransport(b.cfg.Gateway, b.logger)
	if err != nil {
		b.setStatus(Offline(DetailConfigurationError, err.Error()))
		return fmt.Errorf("create gateway transport: %w", err)
	}

	gw := newGateway(b.cfg.Gateway, transport, b.logger)
	gw.subscribe(b)

	b.mu.Lock()
	b.gateway = gw
	b.mu.Unlock()

	if gw.IsConnected() {
		b.logInfo("gateway already connected", "bridge", b.uid.String())
		gw.setState(ConnConnected, "")
		b.setStatus(Online())
		return nil
	}

	b.setStatus(Unknown(""))
	b.logDebug("connecting gateway", "bridge", b.uid.String(), "kind", b.kind.String())

	b.mu.Lock()
	b.watchdog = b.scheduler.Schedule(GatewayOnlineTimeout, b.onWatchdog)
	b.mu.Unlock()

	if err := gw.Connect(); err != nil {
		b.logError("gateway connect failed", err, "bridge", b.uid.String())
	}
	return nil
}

// Reconnect restarts a gateway left in ERROR after a failed connect.
//
// Returns:
//   - error: ErrDisposed, or the connect error
func (b *Bridge) Reconnect() error {
	gw := b.Gateway()
	if gw == nil {
		return b.Initialize()
	}
	if b.isDisposed() {
		return ErrDisposed
	}
	return gw.Connect()
}

func (b *Bridge) onWatchdog() {
	b.mu.Lock()
	still := !b.disposed && b.status.Status == StatusUnknown
	b.watchdog = nil
	b.mu.Unlock()

	if still {
		b.logInfo("bridge still unknown after timeout, setting offline", "bridge", b.uid.String())
		b.setStatus(Offline(DetailCommunicationError, descWatchdog))
	}
}

// Dispose closes the gateway connection. It returns after the transport
// has stopped; no listener event is delivered afterwards.
func (b *Bridge) Dispose() {
	b.teardown("dispose")
}

// HandleRemoval closes the gateway connection like Dispose.
func (b *Bridge) HandleRemoval() {
	b.teardown("removal")
}

func (b *Bridge) teardown(reason string) {
	b.mu.Lock()
	b.disposed = true
	gw := b.gateway
	if b.watchdog != nil {
		b.watchdog.Stop()
		b.watchdog = nil
	}
	if b.scan != nil {
		b.scan.timer.Stop()
		b.scan = nil
	}
	b.mu.Unlock()

	if gw == nil {
		return
	}
	gw.unsubscribe(b)
	if err := gw.close(); err != nil {
		b.logError("gateway close failed", err, "bridge", b.uid.String())
	}
	b.logDebug("gateway closed and unsubscribed", "bridge", b.uid.String(), "reason", reason)
}

// RegisterDevice routes reports for id to handle.
//
// Returns:
//   - error: ErrInvalidArgument if id is empty or handle is nil
func (b *Bridge) RegisterDevice(id string, handle *Device) error {
	if err := b.registry.Register(id, handle); err != nil {
		b.logError("device registration rejected", err, "bridge", b.uid.String())
		return err
	}
	b.logDebug("device registered", "bridge", b.uid.String(), "id", id)
	return nil
}

// UnregisterDevice stops routing reports for id.
//
// Returns:
//   - error: ErrInvalidArgument if id is empty
func (b *Bridge) UnregisterDevice(id string) error {
	if err := b.registry.Unregister(id); err != nil {
		b.logError("device unregistration rejected", err, "bridge", b.uid.String())
		return err
	}
	b.logDebug("device unregistered", "bridge", b.uid.String(), "id", id)
	return nil
}

// SearchDevices starts a device search reporting to d. Lighting reports
// from unregistered addresses are turned into new devices until the scan
// window ends.
//
// Returns:
//   - bool: false if the gateway is not connected
func (b *Bridge) SearchDevices(d *Discovery) bool {
	if !b.isConnected() {
		b.logWarn("gateway not connected, cannot search for devices", "bridge", b.uid.String())
		return false
	}

	b.mu.Lock()
	if b.scan != nil {
		b.scan.timer.Stop()
	}
	s := &scan{discovery: d, started: b.clock()}
	s.timer = b.scheduler.Schedule(ScanWindow, func() { b.endScan(s) })
	b.scan = s
	b.mu.Unlock()

	b.logInfo("searching for devices", "bridge", b.uid.String())
	b.send(own.LightingStatus(generalWhere(b.kind)))
	return true
}

// StopScan ends a running device search.
func (b *Bridge) StopScan() {
	b.mu.Lock()
	s := b.scan
	b.mu.Unlock()
	if s != nil {
		s.timer.Stop()
		b.endScan(s)
	}
}

func (b *Bridge) endScan(s *scan) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.scan == s {
		b.scan = nil
		b.logInfo("device search finished", "bridge", b.uid.String())
	}
}

// OnConnected implements own.Listener.
func (b *Bridge) OnConnected() {
	gw := b.Gateway()
	if gw == nil {
		return
	}
	gw.setState(ConnConnected, "")
	b.logInfo("gateway connected", "bridge", b.uid.String())
	b.setStatus(Online())

	if port := gw.PortName(); port != "" {
		b.setProperty(PropertySerialPort, port)
	}
	gw.Send(own.FirmwareRequest())
	b.refreshDevices()
}

// OnConnectionError implements own.Listener.
func (b *Bridge) OnConnectionError(err *own.ConnError) {
	cause := descUnknownFailure
	if err != nil {
		cause = ConnErrorCause(err.Kind)
	}
	if gw := b.Gateway(); gw != nil {
		gw.setState(ConnError, cause)
	}
	b.logInfo("gateway connection error", "bridge", b.uid.String(), "cause", cause)
	b.setStatus(Offline(DetailCommunicationError, cause))
}

// OnConnectionClosed implements own.Listener. The bridge status is left
// unchanged; the bridge may already be going away.
func (b *Bridge) OnConnectionClosed() {
	if gw := b.Gateway(); gw != nil {
		gw.setState(ConnDisconnected, "")
	}
	b.logDebug("gateway connection closed", "bridge", b.uid.String())
}

// OnDisconnected implements own.Listener.
func (b *Bridge) OnDisconnected(err error) {
	cause := descDisconnected
	if gw := b.Gateway(); gw != nil {
		detail := ""
		if err != nil {
			detail = err.Error()
		}
		gw.setState(ConnDisconnected, detail)
	}
	b.logWarn("gateway disconnected", "bridge", b.uid.String(), "error", err)
	b.setStatus(Offline(DetailCommunicationError, cause))
	b.bridgeOfflineDevices()
}

// OnReconnected implements own.Listener.
func (b *Bridge) OnReconnected() {
	if gw := b.Gateway(); gw != nil {
		gw.setState(ConnConnected, "")
	}
	b.logInfo("gateway reconnected", "bridge", b.uid.String())
	b.setStatus(Online())
	b.refreshDevices()
}

// OnMessage implements own.Listener.
func (b *Bridge) OnMessage(msg own.Message) {
	switch msg.Kind {
	case own.KindAck, own.KindNack:
		return
	case own.KindLighting:
		b.dispatchLighting(msg)
	case own.KindGatewayManagement:
		if version, ok := msg.FirmwareVersion(); ok {
			b.setProperty(PropertyFirmwareVersion, version)
			return
		}
		b.logDebug("gateway management frame", "frame", msg.String())
	case own.KindNonce, own.KindOther:
		b.logDebug("ignoring frame", "frame", msg.String(), "kind", msg.Kind.String())
	default:
		b.logDebug("ignoring frame", "frame", msg.String(), "kind", msg.Kind.String())
	}
}

func (b *Bridge) dispatchLighting(msg own.Message) {
	id := LogicalID(msg.Where, b.kind)
	if device, ok := b.registry.Lookup(id); ok {
		device.OnLightingReport(msg)
		return
	}

	b.mu.Lock()
	s := b.scan
	b.mu.Unlock()

	if s == nil {
		b.logDebug("no device registered for address, ignoring", "where", msg.Where, "id", id)
		return
	}
	if msg.Where == generalWhere(b.kind) {
		return
	}
	if b.kind == GatewayZigBee {
		if _, _, err := own.SplitZigBeeWhere(msg.Where); err != nil {
			b.logDebug("ignoring report without unit", "where", msg.Where)
			return
		}
	}

	level, _ := msg.Level()
	s.discovery.OnNewDevice(msg.Where, deviceTypeFor(b.kind, level))
}

// refreshDevices asks for the state of every device not yet ONLINE.
func (b *Bridge) refreshDevices() {
	for _, d := range b.registry.Devices() {
		if d.Status().Status != StatusOnline {
			d.refresh()
		}
	}
}

// bridgeOfflineDevices marks every registered device BRIDGE_OFFLINE.
func (b *Bridge) bridgeOfflineDevices() {
	for _, d := range b.registry.Devices() {
		d.bridgeOffline()
	}
}

func (b *Bridge) isConnected() bool {
	gw := b.Gateway()
	return gw != nil && gw.IsConnected()
}

func (b *Bridge) isDisposed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.disposed
}

// send is the fire-and-forget path used by devices.
func (b *Bridge) send(msg own.Message) {
	gw := b.Gateway()
	if gw == nil {
		b.logDebug("gateway not initialised, dropping frame", "frame", msg.String())
		return
	}
	gw.Send(msg)
}

func (b *Bridge) now() time.Time {
	return b.clock()
}

func (b *Bridge) setStatus(s Status) {
	b.mu.Lock()
	if b.status == s {
		b.mu.Unlock()
		return
	}
	b.status = s
	b.mu.Unlock()

	b.logInfo("bridge status changed", "bridge", b.uid.String(),
		"status", string(s.Status), "detail", string(s.Detail), "description", s.Description)
	b.callback.StatusUpdated(b.uid, s)
}

func (b *Bridge) setProperty(key, value string) {
	b.mu.Lock()
	if b.properties[key] == value {
		b.mu.Unlock()
		return
	}
	b.properties[key] = value
	b.mu.Unlock()

	b.logInfo("bridge property updated", "bridge", b.uid.String(), "key", key, "value", value)
	b.callback.PropertyUpdated(b.uid, key, value)
}

func (b *Bridge) logDebug(msg string, keysAndValues ...any) {
	if b.logger != nil {
		b.logger.Debug(msg, keysAndValues...)
	}
}

func (b *Bridge) logInfo(msg string, keysAndValues ...any) {
	if b.logger != nil {
		b.logger.Info(msg, keysAndValues...)
	}
}

func (b *Bridge) logWarn(msg string, keysAndValues ...any) {
	if b.logger != nil {
		b.logger.Warn(msg, keysAndValues...)
	}
}

func (b *Bridge) logError(msg string, err error, keysAndValues ...any) {
	if b.logger == nil {
		return
	}
	if err == nil {
		err = errors.New(descUnknownFailure)
	}
	b.logger.Error(msg, append(keysAndValues, "error", err)...)
}
