package openwebnet

import (
	"sort"
	"sync"
	"time"
)

// ScanWindow is how long a device scan collects reports.
const ScanWindow = 60 * time.Second

// RepresentationProperty is the property identifying a discovered device.
const RepresentationProperty = ConfigWhere

// DiscoveryResult describes a device found on a gateway.
type DiscoveryResult struct {
	ThingUID   ThingUID          `json:"thing_uid"`
	ThingType  ThingType         `json:"thing_type"`
	BridgeUID  ThingUID          `json:"bridge_uid"`
	Label      string            `json:"label"`
	Properties map[string]string `json:"properties"`
	Found      time.Time         `json:"found"`
}

func (r DiscoveryResult) equal(o DiscoveryResult) bool {
	if r.ThingUID != o.ThingUID || r.ThingType != o.ThingType || r.BridgeUID != o.BridgeUID || r.Label != o.Label {
		return false
	}
	if len(r.Properties) != len(o.Properties) {
		return false
	}
	for k, v := range r.Properties {
		if o.Properties[k] != v {
			return false
		}
	}
	return true
}

// DiscoverySink receives discovery results. Implemented by the inventory
// and the MQTT announcer.
type DiscoverySink interface {
	ThingDiscovered(r DiscoveryResult)
	ThingRemoved(uid ThingUID)
}

// Discovery turns new-device notifications from a bridge into discovery
// results. Results are keyed by logical id, so a physical device has at
// most one result. A 2-unit ZigBee switch is reported once, as
// on_off_switch2u, whichever unit is seen first. A device first seen as a
// switch is upgraded when a report shows it dims; it is never downgraded.
//
// Thread Safety: All methods are safe for concurrent use.
type Discovery struct {
	bridge *Bridge
	sink   DiscoverySink
	clock  Clock

	mu      sync.Mutex
	results map[string]DiscoveryResult // by logical id
}

// NewDiscovery creates the discovery service of a bridge.
func NewDiscovery(bridge *Bridge, sink DiscoverySink) *Discovery {
	return &Discovery{
		bridge:  bridge,
		sink:    sink,
		clock:   bridge.now,
		results: make(map[string]DiscoveryResult),
	}
}

// StartScan asks the bridge to search for devices.
//
// Returns:
//   - bool: false if the gateway is not connected
func (d *Discovery) StartScan() bool {
	return d.bridge.SearchDevices(d)
}

// OnNewDevice records a device found at where.
//
// Returns:
//   - DiscoveryResult: the result now describing the device
//   - bool: true if a result was emitted to the sink
func (d *Discovery) OnNewDevice(where string, deviceType DeviceType) (DiscoveryResult, bool) {
	kind := d.bridge.Kind()
	logicalID := LogicalID(where, kind)
	thingType := deviceType.ThingType()
	whereLabel := where

	if kind == GatewayZigBee && thingType == ThingTypeOnOffSwitch && UnitOf(where, kind) == Unit02 {
		thingType = ThingTypeOnOffSwitch2U
		whereLabel = WhereLabel(where)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	existing, known := d.results[logicalID]
	if known && existing.ThingType != thingType && discoveryRank(thingType) <= discoveryRank(existing.ThingType) {
		return existing, false
	}

	result := DiscoveryResult{
		ThingUID:   DeviceUID(thingType, d.bridge.ID(), logicalID),
		ThingType:  thingType,
		BridgeUID:  d.bridge.UID(),
		Label:      thingType.Label() + " (WHERE=" + whereLabel + ")",
		Properties: map[string]string{ConfigWhere: logicalID},
		Found:      d.clock(),
	}

	if known {
		if existing.equal(result) {
			return existing, false
		}
		if existing.ThingUID != result.ThingUID {
			d.sink.ThingRemoved(existing.ThingUID)
			d.bridge.logDebug("retracted superseded result",
				"thing", existing.ThingUID.String(), "by", result.ThingUID.String())
		}
	}

	d.results[logicalID] = result
	d.bridge.logInfo("device discovered", "thing", result.ThingUID.String(),
		"where", where, "device_type", deviceType.String())
	d.sink.ThingDiscovered(result)
	return result, true
}

// Results returns the current results sorted by thing UID.
func (d *Discovery) Results() []DiscoveryResult {
	d.mu.Lock()
	out := make([]DiscoveryResult, 0, len(d.results))
	for _, r := range d.results {
		out = append(out, r)
	}
	d.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ThingUID < out[j].ThingUID })
	return out
}

// Remove drops a result, typically once it has been accepted as a thing.
func (d *Discovery) Remove(uid ThingUID) bool {
	d.mu.Lock()
	found := false
	for id, r := range d.results {
		if r.ThingUID == uid {
			delete(d.results, id)
			found = true
			break
		}
	}
	d.mu.Unlock()

	if found {
		d.sink.ThingRemoved(uid)
	}
	return found
}

// discoveryRank orders thing types by how much a report tells about the
// device. A result is only replaced by one of higher rank.
func discoveryRank(t ThingType) int {
	switch t {
	case ThingTypeBusOnOffSwitch, ThingTypeOnOffSwitch:
		return 1
	case ThingTypeBusDimmer, ThingTypeDimmer, ThingTypeOnOffSwitch2U, ThingTypeAutomation:
		return 2
	default:
		return 0
	}
}

// deviceTypeFor infers the device category of a lighting report seen
// during a scan.
func deviceTypeFor(kind GatewayKind, level int) DeviceType {
	dimmable := level >= minWireDimLevel && level <= MaxLevel
	switch {
	case kind == GatewayZigBee && dimmable:
		return DeviceTypeZigBeeDimmer
	case kind == GatewayZigBee:
		return DeviceTypeZigBeeOnOffSwitch
	case dimmable:
		return DeviceTypeBusDimmer
	default:
		return DeviceTypeBusOnOffSwitch
	}
}
