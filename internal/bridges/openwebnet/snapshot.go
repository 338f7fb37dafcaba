package openwebnet

// BridgeSnapshot is a point-in-time view of a bridge for the API.
type BridgeSnapshot struct {
	ID         string            `json:"id"`
	UID        ThingUID          `json:"uid"`
	Type       ThingType         `json:"type"`
	Label      string            `json:"label"`
	Kind       string            `json:"kind"`
	Status     Status            `json:"status"`
	Properties map[string]string `json:"properties,omitempty"`
	Gateway    *GatewayHealth    `json:"gateway"`
	Statistics *BridgeStatistics `json:"statistics,omitempty"`
	Things     int               `json:"things"`
	Scanning   bool              `json:"scanning"`
}

// ThingSnapshot is a point-in-time view of a device for the API.
type ThingSnapshot struct {
	ID       string           `json:"id"`
	UID      ThingUID         `json:"uid"`
	Bridge   string           `json:"bridge"`
	Type     ThingType        `json:"type"`
	Label    string           `json:"label"`
	Where    string           `json:"where"`
	Status   Status           `json:"status"`
	Channels []string         `json:"channels"`
	States   map[string]State `json:"states,omitempty"`
}

// SnapshotBridge captures the current view of a bridge.
func SnapshotBridge(b *Bridge) BridgeSnapshot {
	gateway, stats := gatewayHealth(b)
	return BridgeSnapshot{
		ID:         b.ID(),
		UID:        b.UID(),
		Type:       b.Type(),
		Label:      b.Label(),
		Kind:       b.Kind().String(),
		Status:     b.Status(),
		Properties: b.Properties(),
		Gateway:    gateway,
		Statistics: stats,
		Things:     b.Registry().Len(),
		Scanning:   b.Scanning(),
	}
}

// BridgeSnapshots returns a view of every bridge in configuration order.
func (s *Service) BridgeSnapshots() []BridgeSnapshot {
	out := make([]BridgeSnapshot, 0, len(s.bridges))
	for _, b := range s.bridges {
		out = append(out, SnapshotBridge(b))
	}
	return out
}

// ThingSnapshots returns a view of every configured device in
// configuration order.
func (s *Service) ThingSnapshots() []ThingSnapshot {
	out := make([]ThingSnapshot, 0, len(s.devices))
	for _, d := range s.devices {
		out = append(out, s.snapshotDevice(d))
	}
	return out
}

// ThingSnapshot returns the view of one configured device.
func (s *Service) ThingSnapshot(id string) (ThingSnapshot, bool) {
	d, ok := s.deviceByID[id]
	if !ok {
		return ThingSnapshot{}, false
	}
	return s.snapshotDevice(d), true
}

func (s *Service) snapshotDevice(d *Device) ThingSnapshot {
	return ThingSnapshot{
		ID:       s.thingID(d.UID()),
		UID:      d.UID(),
		Bridge:   s.bridgeIDOf(d.UID()),
		Type:     d.Type(),
		Label:    d.Label(),
		Where:    s.wheres[d.UID()],
		Status:   d.Status(),
		Channels: d.Type().Channels(),
		States:   d.States(),
	}
}

// BridgeSnapshot returns the view of one bridge.
func (s *Service) BridgeSnapshot(id string) (BridgeSnapshot, bool) {
	b, ok := s.bridgeByID[id]
	if !ok {
		return BridgeSnapshot{}, false
	}
	return SnapshotBridge(b), true
}
