package openwebnet

import (
	"fmt"
	"slices"
	"sync"

	"github.com/nerrad567/own-bridge/internal/own"
)

// Device status descriptions.
const (
	descWaitingState   = "waiting state update..."
	descNoBridge       = "No bridge associated, please assign a bridge in thing configuration."
	descMissingWhere   = "Missing required property 'where'"
	descNoChannelState = "Could not get channel state"
)

// DeviceConfig describes one device thing.
type DeviceConfig struct {
	// Type is the device thing type.
	Type ThingType

	// Where is the logical device id (the "where" property).
	Where string

	// Label is the display name. Defaults to the type label.
	Label string

	// Bridge owns the device. A nil bridge is a configuration error
	// reported by Initialize.
	Bridge *Bridge
}

// Device is the handle of one device thing. It holds the device status
// and, for dimmers, the brightness reconciliation state.
//
// Thread Safety: All methods are safe for concurrent use. Commands and
// network reports for one device are serialised by the device lock;
// different devices never contend.
type Device struct {
	uid       ThingUID
	thingType ThingType
	id        string
	label     string
	bridge    *Bridge

	mu         sync.Mutex
	status     Status
	brightness BrightnessState
	lastStates map[string]State
	timers     []Timer
	registered bool
	disposed   bool
}

// NewDevice creates a device handle. Call Initialize to attach it.
func NewDevice(cfg DeviceConfig) *Device {
	label := cfg.Label
	if label == "" {
		label = cfg.Type.Label()
	}

	bridgeID := ""
	if cfg.Bridge != nil {
		bridgeID = cfg.Bridge.ID()
	}

	return &Device{
		uid:        DeviceUID(cfg.Type, bridgeID, cfg.Where),
		thingType:  cfg.Type,
		id:         cfg.Where,
		label:      label,
		bridge:     cfg.Bridge,
		status:     Unknown(""),
		brightness: NewBrightnessState(),
		lastStates: make(map[string]State),
	}
}

// UID returns the thing UID.
func (d *Device) UID() ThingUID { return d.uid }

// ID returns the logical device id.
func (d *Device) ID() string { return d.id }

// Type returns the thing type.
func (d *Device) Type() ThingType { return d.thingType }

// Label returns the display label.
func (d *Device) Label() string { return d.label }

// Status returns the current thing status.
func (d *Device) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status
}

// Brightness returns a copy of the brightness reconciliation state.
func (d *Device) Brightness() BrightnessState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.brightness
}

// States returns the last published value of every channel.
func (d *Device) States() map[string]State {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]State, len(d.lastStates))
	for k, v := range d.lastStates {
		out[k] = v
	}
	return out
}

// Initialize registers the device with its bridge and sets it UNKNOWN
// until the first report. When the gateway is already connected the
// channel states are requested immediately.
//
// Returns:
//   - error: ErrNoBridge or ErrMissingProperty on configuration errors,
//     ErrInvalidArgument from the registry
func (d *Device) Initialize() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.bridge == nil {
		d.setStatusLocked(Offline(DetailConfigurationError, descNoBridge))
		return fmt.Errorf("%w: device %s", ErrNoBridge, d.uid)
	}
	if d.id == "" {
		d.setStatusLocked(Offline(DetailConfigurationError, descMissingWhere))
		return fmt.Errorf("%w: %s on device %s", ErrMissingProperty, ConfigWhere, d.uid)
	}

	if err := d.bridge.RegisterDevice(d.id, d); err != nil {
		return err
	}
	d.registered = true
	d.disposed = false
	d.setStatusLocked(Unknown(descWaitingState))

	if d.bridge.isConnected() {
		for _, channel := range d.stateChannels() {
			d.requestChannelStateLocked(channel)
		}
	}
	return nil
}

// HandleCommand applies a host command to channel.
//
// Commands are dropped (logged, no error) when the gateway is not
// connected; the device goes OFFLINE with BRIDGE_OFFLINE.
//
// Returns:
//   - error: ErrNoBridge, ErrUnsupportedChannel or ErrUnsupportedCommand
func (d *Device) HandleCommand(channel string, cmd Command) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.bridge == nil {
		d.logError("device is not associated to any bridge, skipping command", ErrNoBridge)
		return fmt.Errorf("%w: device %s", ErrNoBridge, d.uid)
	}
	if d.disposed {
		return ErrDisposed
	}
	if !d.supportsChannel(channel) {
		return fmt.Errorf("%w: %s on %s", ErrUnsupportedChannel, channel, d.thingType)
	}

	if !d.bridge.isConnected() {
		d.logDebug("gateway not connected, dropping command", "command", cmd.String(), "channel", channel)
		d.setStatusLocked(Offline(DetailBridgeOffline, ""))
		return nil
	}

	if cmd.Kind == CommandRefresh {
		d.requestChannelStateLocked(channel)
		return nil
	}

	switch channel {
	case ChannelBrightness, ChannelDimmerLevel:
		return d.handleBrightnessLocked(cmd)
	case ChannelSwitch, ChannelSwitch01, ChannelSwitch02:
		return d.handleSwitchLocked(channel, cmd)
	default:
		return fmt.Errorf("%w: %s on channel %s", ErrUnsupportedCommand, cmd, channel)
	}
}

// RequestChannelState asks the gateway for the channel's state and arms
// the state request timeout: if the device is still UNKNOWN when it fires,
// the device goes OFFLINE with COMMUNICATION_ERROR.
func (d *Device) RequestChannelState(channel string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.requestChannelStateLocked(channel)
}

// OnLightingReport applies a lighting frame addressed to this device.
func (d *Device) OnLightingReport(msg own.Message) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.disposed {
		return
	}
	if d.status.Status != StatusOnline {
		d.setStatusLocked(Online())
	}

	if d.thingType.IsDimmer() {
		d.updateBrightnessLocked(msg)
		return
	}
	d.updateOnOffLocked(msg)
}

// refresh re-requests the channel states after the gateway (re)connects.
func (d *Device) refresh() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.disposed {
		return
	}
	d.setStatusLocked(Unknown(descWaitingState))
	for _, channel := range d.stateChannels() {
		d.requestChannelStateLocked(channel)
	}
}

// bridgeOffline marks the device unreachable through its bridge.
func (d *Device) bridgeOffline() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.disposed {
		return
	}
	d.setStatusLocked(Offline(DetailBridgeOffline, ""))
}

// HandleRemoval unregisters the device from its bridge and disposes it.
func (d *Device) HandleRemoval() {
	d.mu.Lock()
	registered := d.registered
	d.registered = false
	d.mu.Unlock()

	if registered && d.bridge != nil {
		if err := d.bridge.UnregisterDevice(d.id); err != nil {
			d.logError("failed to unregister device", err)
		}
	}
	d.Dispose()
}

// Dispose stops pending timers. Reports arriving afterwards are ignored.
func (d *Device) Dispose() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.disposed = true
	for _, t := range d.timers {
		t.Stop()
	}
	d.timers = nil
}

func (d *Device) handleBrightnessLocked(cmd Command) error {
	switch cmd.Kind {
	case CommandPercent:
		d.dimToLocked(PercentToLevel(cmd.Value), false)
	case CommandIncrease:
		d.dimToLocked(d.brightness.LastKnownLevel+1, false)
	case CommandDecrease:
		d.dimToLocked(d.brightness.LastKnownLevel-1, false)
	case CommandOn:
		d.dimToLocked(MinLevel, true)
	case CommandOff:
		d.dimToLocked(MinLevel, false)
	case CommandDecimal:
		d.dimToLocked(cmd.Value, false)
	default:
		return fmt.Errorf("%w: %s on brightness", ErrUnsupportedCommand, cmd)
	}
	return nil
}

func (d *Device) dimToLocked(level int, resume bool) {
	next, fx := d.brightness.DimTo(level, resume, d.bridge.now())
	d.logDebug("dim", "requested", level, "resume", resume,
		"from", d.brightness.LastKnownLevel, "to", next.LastKnownLevel, "send", fx.Send)
	d.brightness = next
	d.applyLocked(fx)
}

func (d *Device) updateBrightnessLocked(msg own.Message) {
	level, ok := msg.Level()
	if !ok {
		d.logDebug("ignoring unsupported lighting frame", "frame", msg.String())
		return
	}
	next, fx := d.brightness.OnReport(level, d.bridge.now(), BrightnessChangeDelay)
	d.logDebug("brightness report", "level", level,
		"known", next.LastKnownLevel, "publish", fx.Publish, "request_status", fx.RequestStatus)
	d.brightness = next
	d.applyLocked(fx)
}

// applyLocked performs the effects of a brightness transition.
func (d *Device) applyLocked(fx Effects) {
	where := d.whereFor(ChannelBrightness)

	if fx.Send {
		if fx.WireLevel == MinLevel {
			d.bridge.send(own.LightingOff(where))
		} else if msg, err := own.LightingDim(where, fx.WireLevel); err != nil {
			d.logError("cannot build dim request", err)
		} else {
			d.bridge.send(msg)
		}
	}
	if fx.RequestStatus {
		d.bridge.send(own.LightingStatus(where))
	}
	if fx.Publish {
		d.updateStateLocked(ChannelBrightness, PercentState(fx.Level*10))
		d.updateStateLocked(ChannelDimmerLevel, DecimalState(fx.Level))
	}
}

func (d *Device) handleSwitchLocked(channel string, cmd Command) error {
	where := d.whereFor(channel)
	switch cmd.Kind {
	case CommandOn:
		d.bridge.send(own.LightingOn(where))
	case CommandOff:
		d.bridge.send(own.LightingOff(where))
	default:
		return fmt.Errorf("%w: %s on %s", ErrUnsupportedCommand, cmd, channel)
	}
	return nil
}

func (d *Device) updateOnOffLocked(msg own.Message) {
	channel := ChannelSwitch
	if d.bridge.Kind() == GatewayZigBee {
		channel = ChannelSwitch01
		if UnitOf(msg.Where, GatewayZigBee) == Unit02 {
			channel = ChannelSwitch02
		}
	}

	switch {
	case msg.IsOn():
		d.updateStateLocked(channel, OnOffState(true))
	case msg.IsOff():
		d.updateStateLocked(channel, OnOffState(false))
	default:
		d.logDebug("ignoring unsupported lighting frame", "frame", msg.String())
	}
}

func (d *Device) requestChannelStateLocked(channel string) {
	d.bridge.send(own.LightingStatus(d.whereFor(channel)))

	// The task locks d.mu before reading timer, so it sees the assignment.
	var timer Timer
	timer = d.bridge.scheduler.Schedule(StateRequestTimeout, func() {
		d.onStateRequestTimeout(&timer)
	})
	d.timers = append(d.timers, timer)
}

// onStateRequestTimeout runs when a state request timer expires. The
// expired timer is dropped from the pending list and the device goes
// offline if it is still UNKNOWN.
func (d *Device) onStateRequestTimeout(fired *Timer) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.removeTimerLocked(*fired)
	if d.disposed || d.status.Status != StatusUnknown {
		return
	}
	d.logInfo("state request timer expired, device still unknown")
	d.setStatusLocked(Offline(DetailCommunicationError, descNoChannelState))
}

func (d *Device) removeTimerLocked(t Timer) {
	for i, pending := range d.timers {
		if pending == t {
			d.timers = append(d.timers[:i], d.timers[i+1:]...)
			return
		}
	}
}

// whereFor returns the WHERE addressing channel on this device.
func (d *Device) whereFor(channel string) string {
	kind := d.bridge.Kind()
	unit := Unit01
	if kind == GatewayZigBee && channel == ChannelSwitch02 {
		unit = Unit02
	}
	return Where(d.id, unit, kind)
}

// stateChannels lists the channels whose state is requested at startup.
// dimmerLevel shares its WHERE with brightness.
func (d *Device) stateChannels() []string {
	switch d.thingType {
	case ThingTypeDimmer, ThingTypeBusDimmer:
		return []string{ChannelBrightness}
	case ThingTypeBusOnOffSwitch, ThingTypeOnOffSwitch, ThingTypeOnOffSwitch2U:
		return d.thingType.Channels()
	}
	if d.bridge.Kind() == GatewayZigBee {
		return []string{ChannelSwitch01}
	}
	return []string{ChannelSwitch}
}

// supportsChannel accepts the type's channels. Generic devices accept any
// lighting channel.
func (d *Device) supportsChannel(channel string) bool {
	if d.thingType == ThingTypeDevice {
		switch channel {
		case ChannelSwitch, ChannelSwitch01, ChannelSwitch02, ChannelBrightness, ChannelDimmerLevel:
			return true
		}
		return false
	}
	return slices.Contains(d.thingType.Channels(), channel)
}

func (d *Device) setStatusLocked(s Status) {
	if d.status == s {
		return
	}
	d.status = s
	if d.bridge != nil {
		d.bridge.logInfo("device status changed", "thing", d.uid.String(),
			"status", string(s.Status), "detail", string(s.Detail))
		d.bridge.callback.StatusUpdated(d.uid, s)
	}
}

func (d *Device) updateStateLocked(channel string, s State) {
	d.lastStates[channel] = s
	d.bridge.callback.StateUpdated(d.uid, channel, s)
}

func (d *Device) logDebug(msg string, keysAndValues ...any) {
	if d.bridge != nil {
		d.bridge.logDebug(msg, append([]any{"thing", d.uid.String()}, keysAndValues...)...)
	}
}

func (d *Device) logInfo(msg string, keysAndValues ...any) {
	if d.bridge != nil {
		d.bridge.logInfo(msg, append([]any{"thing", d.uid.String()}, keysAndValues...)...)
	}
}

func (d *Device) logError(msg string, err error) {
	if d.bridge != nil {
		d.bridge.logError(msg, err, "thing", d.uid.String())
	}
}
