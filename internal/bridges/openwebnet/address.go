package openwebnet

import (
	"strings"

	"github.com/nerrad567/own-bridge/internal/own"
)

// GatewayKind is the physical transport of a gateway.
type GatewayKind int

// Gateway kinds.
const (
	GatewayBUS GatewayKind = iota
	GatewayZigBee
)

// String returns "BUS" or "ZIGBEE".
func (k GatewayKind) String() string {
	if k == GatewayZigBee {
		return "ZIGBEE"
	}
	return "BUS"
}

// Unit selects one unit of a multi-unit ZigBee device.
type Unit int

// ZigBee units.
const (
	Unit01 Unit = 1
	Unit02 Unit = 2
)

func (u Unit) suffix() string {
	if u == Unit02 {
		return own.Unit02
	}
	return own.Unit01
}

// BUS logical ids cannot contain '#', so it is swapped for 'h'.
const (
	busReservedChar    = "#"
	busPlaceholderChar = "h"
)

// LogicalID derives the logical device id from a WHERE address.
//
// BUS: the WHERE with '#' replaced by 'h' ("0#4#01" → "0h4h01").
// ZigBee: the device address without its unit suffix ("765432101#9" → "7654321").
// A ZigBee WHERE that does not carry a unit suffix is returned sanitised.
func LogicalID(where string, kind GatewayKind) string {
	if kind == GatewayZigBee {
		if addr, _, err := own.SplitZigBeeWhere(where); err == nil {
			return addr
		}
	}
	return strings.ReplaceAll(where, busReservedChar, busPlaceholderChar)
}

// Where rebuilds the WHERE address of a logical id. The unit is only used
// for ZigBee gateways.
func Where(logicalID string, unit Unit, kind GatewayKind) string {
	if kind == GatewayZigBee {
		return logicalID + unit.suffix()
	}
	return strings.ReplaceAll(logicalID, busPlaceholderChar, busReservedChar)
}

// UnitOf returns the unit addressed by a ZigBee WHERE. BUS addresses and
// unparsable WHEREs report Unit01.
func UnitOf(where string, kind GatewayKind) Unit {
	if kind != GatewayZigBee {
		return Unit01
	}
	if _, unit, err := own.SplitZigBeeWhere(where); err == nil && unit == own.Unit02 {
		return Unit02
	}
	return Unit01
}

// WhereLabel returns the address shown in discovery labels. The second unit
// of a 2-unit device is shown with unit 00, the device-wide address.
func WhereLabel(where string) string {
	return strings.Replace(where, "02#", "00#", 1)
}
