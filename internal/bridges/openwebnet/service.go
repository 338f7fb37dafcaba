package openwebnet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/own-bridge/internal/infrastructure/influxdb"
	"github.com/nerrad567/own-bridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/own-bridge/internal/inventory"
	"github.com/nerrad567/own-bridge/internal/own"
)

// storeTimeout bounds each inventory write made from a callback.
const storeTimeout = 5 * time.Second

// MQTTClient is the subset of the MQTT client used by the service.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	IsConnected() bool
}

// Inventory persists things, their status and channel values, and the
// discovery inbox.
type Inventory interface {
	UpsertThing(ctx context.Context, t inventory.Thing) error
	UpdateStatus(ctx context.Context, id, status, detail, description string) error
	SetProperty(ctx context.Context, id, name, value string) error
	SaveChannelState(ctx context.Context, id, channel, value string) error
	RemoveThingsExcept(ctx context.Context, keep []string) (int64, error)
	SaveDiscovery(ctx context.Context, d inventory.DiscoveryResult) error
	DeleteDiscovery(ctx context.Context, thingUID string) error
}

// History records channel state and status changes as time series.
type History interface {
	WriteChannelState(thingID, bridgeID, channel string, v influxdb.ChannelValue)
	WriteThingStatus(thingID, bridgeID, status, detail, description string)
}

// ServiceConfig configures a Service.
type ServiceConfig struct {
	// Config lists the gateways and things. Required.
	Config *Config

	ConnectTimeout    time.Duration
	ReconnectInterval time.Duration

	// MQTT carries commands in and status out. Optional: without it the
	// service still runs the bridges (discover command, tests).
	MQTT MQTTClient
	QoS  byte

	// Inventory and History are optional sinks.
	Inventory Inventory
	History   History

	Logger own.Logger

	// Test hooks. Defaults: NewTransport, DefaultScheduler, time.Now,
	// uuid.NewString.
	NewTransport TransportFactory
	Scheduler    Scheduler
	Clock        Clock
	NewScanID    func() string
}

// Service hosts the configured bridges and devices. It is the host side
// of the core: it receives every status, state, property and discovery
// update through the Callback and DiscoverySink interfaces and fans them
// out to MQTT, the inventory and the history. MQTT channel commands are
// routed back to the device handles.
//
// Thing ids from the configuration name things in topics and the API;
// thing UIDs stay internal to the core.
//
// Thread Safety: All methods are safe for concurrent use. The bridge,
// device and id maps are built by NewService and never modified.
type Service struct {
	cfg    ServiceConfig
	topics mqtt.Topics

	bridges     []*Bridge
	bridgeByID  map[string]*Bridge
	bridgeByUID map[ThingUID]*Bridge
	discoveries map[string]*Discovery
	devices     []*Device
	deviceByID  map[string]*Device
	thingIDs    map[ThingUID]string
	wheres      map[ThingUID]string

	mu         sync.Mutex
	scanIDs    map[string]string
	started    bool
	closed     bool
	subscribed string
}

var (
	_ Callback      = (*Service)(nil)
	_ DiscoverySink = (*Service)(nil)
	_ BridgeSource  = (*Service)(nil)
)

// NewService builds the bridges and devices of cfg.Config. Nothing
// connects until Start.
//
// Returns:
//   - *Service: ready to start
//   - error: if the configuration is missing or names a device twice
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Config == nil {
		return nil, fmt.Errorf("%w: nil configuration", ErrInvalidArgument)
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.NewScanID == nil {
		cfg.NewScanID = uuid.NewString
	}

	s := &Service{
		cfg:         cfg,
		bridgeByID:  make(map[string]*Bridge),
		bridgeByUID: make(map[ThingUID]*Bridge),
		discoveries: make(map[string]*Discovery),
		deviceByID:  make(map[string]*Device),
		thingIDs:    make(map[ThingUID]string),
		wheres:      make(map[ThingUID]string),
		scanIDs:     make(map[string]string),
	}

	for _, g := range cfg.Config.Gateways {
		b := NewBridge(BridgeConfig{
			ID:           g.ID,
			Type:         g.ThingType(),
			Label:        g.Label,
			Gateway:      g.GatewayConfig(cfg.ConnectTimeout, cfg.ReconnectInterval),
			Callback:     s,
			Scheduler:    cfg.Scheduler,
			Clock:        cfg.Clock,
			Logger:       cfg.Logger,
			NewTransport: cfg.NewTransport,
		})
		s.bridges = append(s.bridges, b)
		s.bridgeByID[g.ID] = b
		s.bridgeByUID[b.UID()] = b
		s.thingIDs[b.UID()] = g.ID
		s.discoveries[g.ID] = NewDiscovery(b, s)
	}

	logicalIDs := make(map[string]string)
	for _, th := range cfg.Config.Things {
		b, ok := s.bridgeByID[th.Bridge]
		if !ok {
			return nil, fmt.Errorf("%w: thing %s names bridge %q", ErrUnknownBridge, th.ID, th.Bridge)
		}
		t, err := ParseThingType(th.Type)
		if err != nil {
			return nil, fmt.Errorf("thing %s: %w", th.ID, err)
		}

		logical := LogicalID(th.Where, b.Kind())
		key := th.Bridge + "/" + logical
		if other, dup := logicalIDs[key]; dup {
			return nil, fmt.Errorf("%w: things %s and %s share address %s on bridge %s",
				ErrInvalidArgument, other, th.ID, th.Where, th.Bridge)
		}
		logicalIDs[key] = th.ID

		d := NewDevice(DeviceConfig{Type: t, Where: logical, Label: th.Label, Bridge: b})
		s.devices = append(s.devices, d)
		s.deviceByID[th.ID] = d
		s.thingIDs[d.UID()] = th.ID
		s.wheres[d.UID()] = logical
	}

	return s, nil
}

// Start records the things in the inventory, initializes every bridge and
// device, and subscribes to channel commands. Bridge and device
// initialization failures are reported through their status, not here.
//
// Returns:
//   - error: if the command subscription fails
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started || s.closed {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.mu.Unlock()

	s.syncInventory(ctx)

	for _, b := range s.bridges {
		if err := b.Initialize(); err != nil {
			s.logError("bridge initialization failed", err, "bridge", b.ID())
		}
	}
	for _, d := range s.devices {
		if err := d.Initialize(); err != nil {
			s.logError("device initialization failed", err, "thing", s.thingID(d.UID()))
		}
	}

	if s.cfg.MQTT == nil {
		return nil
	}
	topic := s.topics.AllChannelCommands(Protocol)
	if err := s.cfg.MQTT.Subscribe(topic, s.cfg.QoS, s.handleCommandMessage); err != nil {
		return fmt.Errorf("subscribing to channel commands: %w", err)
	}
	s.mu.Lock()
	s.subscribed = topic
	s.mu.Unlock()

	s.logInfo("openwebnet service started", "bridges", len(s.bridges), "things", len(s.devices))
	return nil
}

// Close unsubscribes from commands and disposes every device and bridge.
// Safe to call multiple times.
func (s *Service) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	topic := s.subscribed
	s.subscribed = ""
	s.mu.Unlock()

	if topic != "" && s.cfg.MQTT != nil {
		if err := s.cfg.MQTT.Unsubscribe(topic); err != nil {
			s.logWarn("unsubscribing from channel commands failed", "error", err)
		}
	}

	for _, d := range s.devices {
		d.Dispose()
	}
	for _, b := range s.bridges {
		b.Dispose()
	}
	s.logInfo("openwebnet service stopped")
}

// Bridges returns the bridges in configuration order.
func (s *Service) Bridges() []*Bridge {
	out := make([]*Bridge, len(s.bridges))
	copy(out, s.bridges)
	return out
}

// Bridge returns the bridge with the given id.
func (s *Service) Bridge(id string) (*Bridge, bool) {
	b, ok := s.bridgeByID[id]
	return b, ok
}

// Device returns the device with the given thing id.
func (s *Service) Device(id string) (*Device, bool) {
	d, ok := s.deviceByID[id]
	return d, ok
}

// SendCommand parses text for channel and applies it to a device.
//
// A command for a device whose gateway is disconnected is handed to the
// device, which drops it and goes OFFLINE; the caller gets ErrNotConnected.
//
// Returns:
//   - error: ErrUnknownThing, ErrUnsupportedCommand, ErrUnsupportedChannel
//     or ErrNotConnected
func (s *Service) SendCommand(thingID, channel, text string) error {
	d, ok := s.deviceByID[thingID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownThing, thingID)
	}
	cmd, err := ParseCommand(channel, text)
	if err != nil {
		return err
	}

	connected := d.bridge != nil && d.bridge.isConnected()
	if err := d.HandleCommand(channel, cmd); err != nil {
		return err
	}
	if !connected {
		return fmt.Errorf("%w: command for %s dropped", ErrNotConnected, thingID)
	}

	s.logDebug("command dispatched", "thing", thingID, "channel", channel, "command", cmd.String())
	return nil
}

// StartScan starts a device search on a bridge.
//
// Returns:
//   - string: the scan id carried by the resulting discovery messages
//   - error: ErrUnknownBridge, or ErrNotConnected if the search was refused
func (s *Service) StartScan(bridgeID string) (string, error) {
	disc, ok := s.discoveries[bridgeID]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownBridge, bridgeID)
	}

	scanID := s.cfg.NewScanID()
	s.mu.Lock()
	previous, had := s.scanIDs[bridgeID]
	s.scanIDs[bridgeID] = scanID
	s.mu.Unlock()

	if !disc.StartScan() {
		s.mu.Lock()
		if had {
			s.scanIDs[bridgeID] = previous
		} else {
			delete(s.scanIDs, bridgeID)
		}
		s.mu.Unlock()
		return "", fmt.Errorf("%w: cannot scan bridge %s", ErrNotConnected, bridgeID)
	}

	s.logInfo("device scan started", "bridge", bridgeID, "scan_id", scanID)
	return scanID, nil
}

// StopScan ends a running device search.
func (s *Service) StopScan(bridgeID string) error {
	b, ok := s.bridgeByID[bridgeID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownBridge, bridgeID)
	}
	b.StopScan()
	return nil
}

// DiscoveryResults returns the results of one bridge, or of every bridge
// when bridgeID is empty.
func (s *Service) DiscoveryResults(bridgeID string) ([]DiscoveryResult, error) {
	if bridgeID != "" {
		disc, ok := s.discoveries[bridgeID]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownBridge, bridgeID)
		}
		return disc.Results(), nil
	}

	var out []DiscoveryResult
	for _, b := range s.bridges {
		out = append(out, s.discoveries[b.ID()].Results()...)
	}
	return out, nil
}

// StatusUpdated implements Callback.
//
// Device updates arrive with the device lock held, so nothing here may
// call back into a device.
func (s *Service) StatusUpdated(uid ThingUID, status Status) {
	id := s.thingID(uid)

	var props map[string]string
	if b, ok := s.bridgeByUID[uid]; ok {
		props = b.Properties()
	}
	s.publishJSON(s.topics.ThingStatus(Protocol, id), NewStatusMessage(id, uid, status, props, s.cfg.Clock()), true)

	if s.cfg.Inventory != nil {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()
		err := s.cfg.Inventory.UpdateStatus(ctx, id, string(status.Status), string(status.Detail), status.Description)
		if err != nil && !errors.Is(err, inventory.ErrThingNotFound) {
			s.logWarn("storing thing status failed", "thing", id, "error", err)
		}
	}
	if s.cfg.History != nil {
		s.cfg.History.WriteThingStatus(id, s.bridgeIDOf(uid),
			string(status.Status), string(status.Detail), status.Description)
	}
}

// StateUpdated implements Callback.
func (s *Service) StateUpdated(uid ThingUID, channel string, state State) {
	id := s.thingID(uid)
	msg := NewStateMessage(id, uid, channel, state, s.cfg.Clock())
	s.publishJSON(s.topics.ChannelState(Protocol, id, channel), msg, true)

	if s.cfg.Inventory != nil {
		value, err := json.Marshal(state)
		if err == nil {
			ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
			err = s.cfg.Inventory.SaveChannelState(ctx, id, channel, string(value))
			cancel()
		}
		if err != nil {
			s.logWarn("storing channel state failed", "thing", id, "channel", channel, "error", err)
		}
	}
	if s.cfg.History != nil {
		s.cfg.History.WriteChannelState(id, s.bridgeIDOf(uid), channel,
			influxdb.ChannelValue{Kind: string(state.Kind), On: state.On, Value: state.Value})
	}
}

// PropertyUpdated implements Callback. Bridge properties are republished
// with the bridge status.
func (s *Service) PropertyUpdated(uid ThingUID, key, value string) {
	id := s.thingID(uid)

	if s.cfg.Inventory != nil {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()
		if err := s.cfg.Inventory.SetProperty(ctx, id, key, value); err != nil {
			s.logWarn("storing property failed", "thing", id, "key", key, "error", err)
		}
	}

	if b, ok := s.bridgeByUID[uid]; ok {
		msg := NewStatusMessage(id, uid, b.Status(), b.Properties(), s.cfg.Clock())
		s.publishJSON(s.topics.ThingStatus(Protocol, id), msg, true)
	}
}

// ThingDiscovered implements DiscoverySink.
func (s *Service) ThingDiscovered(r DiscoveryResult) {
	bridgeID := s.bridgeIDOf(r.BridgeUID)
	scanID := s.scanID(bridgeID)

	result := r
	s.publishJSON(s.topics.BridgeDiscovery(Protocol, bridgeID), DiscoveryMessage{
		Timestamp: s.cfg.Clock().UTC(),
		Bridge:    bridgeID,
		ScanID:    scanID,
		Event:     DiscoveryAdded,
		ThingUID:  r.ThingUID,
		Result:    &result,
	}, false)

	if s.cfg.Inventory != nil {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()
		err := s.cfg.Inventory.SaveDiscovery(ctx, inventory.DiscoveryResult{
			ThingUID:  r.ThingUID.String(),
			BridgeID:  bridgeID,
			ThingType: string(r.ThingType),
			Label:     r.Label,
			Where:     r.Properties[ConfigWhere],
			ScanID:    scanID,
			FoundAt:   r.Found,
		})
		if err != nil {
			s.logWarn("storing discovery result failed", "thing", r.ThingUID.String(), "error", err)
		}
	}
}

// ThingRemoved implements DiscoverySink.
func (s *Service) ThingRemoved(uid ThingUID) {
	bridgeID := s.bridgeIDOf(uid)
	s.publishJSON(s.topics.BridgeDiscovery(Protocol, bridgeID), DiscoveryMessage{
		Timestamp: s.cfg.Clock().UTC(),
		Bridge:    bridgeID,
		ScanID:    s.scanID(bridgeID),
		Event:     DiscoveryRemoved,
		ThingUID:  uid,
	}, false)

	if s.cfg.Inventory != nil {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()
		err := s.cfg.Inventory.DeleteDiscovery(ctx, uid.String())
		if err != nil && !errors.Is(err, inventory.ErrDiscoveryNotFound) {
			s.logWarn("removing discovery result failed", "thing", uid.String(), "error", err)
		}
	}
}

// handleCommandMessage is the MQTT handler for channel commands. Every
// command on a well-formed topic is acknowledged.
func (s *Service) handleCommandMessage(topic string, payload []byte) error {
	category, protocol, thing, channel, ok := mqtt.ParseChannelTopic(topic)
	if !ok || category != "command" || protocol != Protocol {
		s.logDebug("ignoring message on unexpected topic", "topic", topic)
		return nil
	}

	msg, err := DecodeCommandMessage(payload)
	if err != nil {
		s.logWarn("invalid command payload", "thing", thing, "channel", channel, "error", err)
		return s.publishAck(NewAckError(CommandMessage{}, thing, channel,
			ErrCodeInvalidCommand, err.Error(), s.cfg.Clock()))
	}

	if err := s.SendCommand(thing, channel, msg.Command); err != nil {
		s.logInfo("command rejected", "thing", thing, "channel", channel,
			"command", msg.Command, "error", err)
		return s.publishAck(NewAckError(msg, thing, channel, AckCode(err), err.Error(), s.cfg.Clock()))
	}
	return s.publishAck(NewAckMessage(msg, thing, channel, s.cfg.Clock()))
}

func (s *Service) publishAck(ack AckMessage) error {
	if s.cfg.MQTT == nil {
		return nil
	}
	payload, err := json.Marshal(ack)
	if err != nil {
		return fmt.Errorf("marshal ack: %w", err)
	}
	return s.cfg.MQTT.Publish(s.topics.CommandAck(Protocol, ack.Thing, ack.Channel), payload, s.cfg.QoS, false)
}

// syncInventory records every configured thing and drops the ones no
// longer configured. Failures are logged; the inventory is not required
// to run the bridges.
func (s *Service) syncInventory(ctx context.Context) {
	if s.cfg.Inventory == nil {
		return
	}

	keep := make([]string, 0, len(s.bridges)+len(s.devices))
	for _, b := range s.bridges {
		keep = append(keep, b.ID())
		s.upsertThing(ctx, inventory.Thing{
			ID:    b.ID(),
			UID:   b.UID().String(),
			Type:  string(b.Type()),
			Label: b.Label(),
		})
	}
	for _, d := range s.devices {
		id := s.thingID(d.UID())
		keep = append(keep, id)
		s.upsertThing(ctx, inventory.Thing{
			ID:       id,
			UID:      d.UID().String(),
			BridgeID: s.bridgeIDOf(d.UID()),
			Type:     string(d.Type()),
			Where:    s.wheres[d.UID()],
			Label:    d.Label(),
		})
	}

	removed, err := s.cfg.Inventory.RemoveThingsExcept(ctx, keep)
	if err != nil {
		s.logWarn("pruning inventory failed", "error", err)
	} else if removed > 0 {
		s.logInfo("removed unconfigured things from inventory", "count", removed)
	}
}

func (s *Service) upsertThing(ctx context.Context, t inventory.Thing) {
	if err := s.cfg.Inventory.UpsertThing(ctx, t); err != nil {
		s.logWarn("storing thing failed", "thing", t.ID, "error", err)
	}
}

func (s *Service) publishJSON(topic string, v any, retained bool) {
	if s.cfg.MQTT == nil {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		s.logError("marshal mqtt payload failed", err, "topic", topic)
		return
	}
	if err := s.cfg.MQTT.Publish(topic, payload, s.cfg.QoS, retained); err != nil {
		s.logDebug("mqtt publish failed", "topic", topic, "error", err)
	}
}

// thingID maps a UID to its configured id. Things that are not configured
// keep their UID's last segment.
func (s *Service) thingID(uid ThingUID) string {
	if id, ok := s.thingIDs[uid]; ok {
		return id
	}
	return uid.ID()
}

// bridgeIDOf returns the bridge segment of a UID.
func (s *Service) bridgeIDOf(uid ThingUID) string {
	parts := strings.Split(string(uid), ":")
	if len(parts) < 3 {
		return ""
	}
	return parts[2]
}

func (s *Service) scanID(bridgeID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scanIDs[bridgeID]
}

func (s *Service) logDebug(msg string, keysAndValues ...any) {
	if s.cfg.Logger != nil {
		s.cfg.Logger.Debug(msg, keysAndValues...)
	}
}

func (s *Service) logInfo(msg string, keysAndValues ...any) {
	if s.cfg.Logger != nil {
		s.cfg.Logger.Info(msg, keysAndValues...)
	}
}

func (s *Service) logWarn(msg string, keysAndValues ...any) {
	if s.cfg.Logger != nil {
		s.cfg.Logger.Warn(msg, keysAndValues...)
	}
}

func (s *Service) logError(msg string, err error, keysAndValues ...any) {
	if s.cfg.Logger != nil {
		s.cfg.Logger.Error(msg, append(keysAndValues, "error", err)...)
	}
}
