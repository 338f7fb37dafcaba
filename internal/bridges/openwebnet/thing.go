package openwebnet

import (
	"fmt"
	"strings"
	"time"
)

// BindingID prefixes every thing UID.
const BindingID = "openwebnet"

// ThingType identifies what kind of thing a bridge or device is.
type ThingType string

// Bridge thing types.
const (
	ThingTypeDongle     ThingType = "dongle"
	ThingTypeBusGateway ThingType = "bus_gateway"
)

// Device thing types.
const (
	ThingTypeDevice         ThingType = "device"
	ThingTypeBusOnOffSwitch ThingType = "bus_on_off_switch"
	ThingTypeBusDimmer      ThingType = "bus_dimmer"
	ThingTypeOnOffSwitch    ThingType = "on_off_switch"
	ThingTypeOnOffSwitch2U  ThingType = "on_off_switch2u"
	ThingTypeDimmer         ThingType = "dimmer"
	ThingTypeAutomation     ThingType = "automation"
)

var thingLabels = map[ThingType]string{
	ThingTypeDongle:         "OpenWebNet ZigBee USB Dongle",
	ThingTypeBusGateway:     "OpenWebNet BUS/SCS Gateway",
	ThingTypeDevice:         "OpenWebNet GENERIC Device",
	ThingTypeBusOnOffSwitch: "OpenWebNet BUS/SCS On/Off Switch",
	ThingTypeBusDimmer:      "OpenWebNet BUS/SCS Dimmer",
	ThingTypeOnOffSwitch:    "OpenWebNet ZigBee On/Off Switch",
	ThingTypeOnOffSwitch2U:  "OpenWebNet ZigBee 2-units On/Off Switch",
	ThingTypeDimmer:         "OpenWebNet ZigBee Dimmer",
	ThingTypeAutomation:     "OpenWebNet ZigBee Automation",
}

// ParseThingType validates a thing type name.
func ParseThingType(s string) (ThingType, error) {
	t := ThingType(s)
	if _, ok := thingLabels[t]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidThingType, s)
	}
	return t, nil
}

// Label returns the default display label for the thing type.
func (t ThingType) Label() string {
	return thingLabels[t]
}

// IsBridge reports whether the type is a gateway rather than a device.
func (t ThingType) IsBridge() bool {
	return t == ThingTypeDongle || t == ThingTypeBusGateway
}

// IsDimmer reports whether devices of this type carry brightness state.
func (t ThingType) IsDimmer() bool {
	return t == ThingTypeDimmer || t == ThingTypeBusDimmer
}

// Channels lists the channels a device of this type exposes.
func (t ThingType) Channels() []string {
	switch t {
	case ThingTypeBusOnOffSwitch:
		return []string{ChannelSwitch}
	case ThingTypeOnOffSwitch:
		return []string{ChannelSwitch01}
	case ThingTypeOnOffSwitch2U:
		return []string{ChannelSwitch01, ChannelSwitch02}
	case ThingTypeDimmer, ThingTypeBusDimmer:
		return []string{ChannelBrightness, ChannelDimmerLevel}
	case ThingTypeAutomation:
		return []string{ChannelShutter}
	default:
		return nil
	}
}

// Channel ids.
const (
	ChannelSwitch      = "switch"
	ChannelSwitch01    = "switch_01"
	ChannelSwitch02    = "switch_02"
	ChannelBrightness  = "brightness"
	ChannelShutter     = "shutter"
	ChannelDimmerLevel = "dimmerLevel"
)

// Configuration and property keys.
const (
	ConfigSerialPort        = "serialPort"
	ConfigWhere             = "where"
	ConfigHost              = "host"
	ConfigPort              = "port"
	ConfigPasswd            = "passwd"
	PropertyFirmwareVersion = "firmwareVersion"
	PropertySerialPort      = "serialPort"
)

// Timing.
const (
	// StateRequestTimeout is how long a device may stay UNKNOWN after a
	// state request before it is set OFFLINE.
	StateRequestTimeout = 5 * time.Second

	// GatewayOnlineTimeout is how long a bridge may stay UNKNOWN after
	// connect before it is set OFFLINE.
	GatewayOnlineTimeout = 20 * time.Second

	// BrightnessChangeDelay is the anti-echo window after a self-issued
	// brightness command.
	BrightnessChangeDelay = 1500 * time.Millisecond
)

// ThingUID identifies a thing: "openwebnet:<type>:<bridge>[:<id>]".
type ThingUID string

// BridgeUID builds the UID of a bridge thing.
func BridgeUID(t ThingType, bridgeID string) ThingUID {
	return ThingUID(strings.Join([]string{BindingID, string(t), bridgeID}, ":"))
}

// DeviceUID builds the UID of a device thing under a bridge.
func DeviceUID(t ThingType, bridgeID, logicalID string) ThingUID {
	return ThingUID(strings.Join([]string{BindingID, string(t), bridgeID, logicalID}, ":"))
}

// ID returns the last segment of the UID.
func (u ThingUID) ID() string {
	s := string(u)
	return s[strings.LastIndex(s, ":")+1:]
}

// Type returns the thing type segment of the UID.
func (u ThingUID) Type() ThingType {
	parts := strings.Split(string(u), ":")
	if len(parts) < 2 {
		return ""
	}
	return ThingType(parts[1])
}

func (u ThingUID) String() string {
	return string(u)
}

// DeviceType is the device category reported by gateway discovery.
type DeviceType int

// Discoverable device categories.
const (
	DeviceTypeUnknown DeviceType = iota
	DeviceTypeBusOnOffSwitch
	DeviceTypeBusDimmer
	DeviceTypeZigBeeOnOffSwitch
	DeviceTypeZigBeeDimmer
	DeviceTypeZigBeeAutomation
)

// String returns the device category name.
func (d DeviceType) String() string {
	switch d {
	case DeviceTypeBusOnOffSwitch:
		return "SCS_ON_OFF_SWITCH"
	case DeviceTypeBusDimmer:
		return "SCS_DIMMER_SWITCH"
	case DeviceTypeZigBeeOnOffSwitch:
		return "ZIGBEE_ON_OFF_SWITCH"
	case DeviceTypeZigBeeDimmer:
		return "ZIGBEE_DIMMER_SWITCH"
	case DeviceTypeZigBeeAutomation:
		return "ZIGBEE_SHUTTER_CONTROL"
	default:
		return "UNKNOWN"
	}
}

// ThingType maps a discovered device category to its thing type.
// Unknown categories map to the generic device type.
func (d DeviceType) ThingType() ThingType {
	switch d {
	case DeviceTypeBusOnOffSwitch:
		return ThingTypeBusOnOffSwitch
	case DeviceTypeBusDimmer:
		return ThingTypeBusDimmer
	case DeviceTypeZigBeeOnOffSwitch:
		return ThingTypeOnOffSwitch
	case DeviceTypeZigBeeDimmer:
		return ThingTypeDimmer
	case DeviceTypeZigBeeAutomation:
		return ThingTypeAutomation
	default:
		return ThingTypeDevice
	}
}
