package openwebnet

// ThingStatus is the visible state of a bridge or device.
type ThingStatus string

// Thing statuses.
const (
	StatusUnknown ThingStatus = "UNKNOWN"
	StatusOnline  ThingStatus = "ONLINE"
	StatusOffline ThingStatus = "OFFLINE"
)

// StatusDetail qualifies an OFFLINE status.
type StatusDetail string

// Status details.
const (
	DetailNone               StatusDetail = "NONE"
	DetailCommunicationError StatusDetail = "COMMUNICATION_ERROR"
	DetailConfigurationError StatusDetail = "CONFIGURATION_ERROR"
	DetailBridgeOffline      StatusDetail = "BRIDGE_OFFLINE"
)

// Status is a thing status with its detail and description.
type Status struct {
	Status      ThingStatus  `json:"status"`
	Detail      StatusDetail `json:"detail"`
	Description string       `json:"description,omitempty"`
}

// Unknown builds an UNKNOWN status.
func Unknown(description string) Status {
	return Status{Status: StatusUnknown, Detail: DetailNone, Description: description}
}

// Online builds an ONLINE status.
func Online() Status {
	return Status{Status: StatusOnline, Detail: DetailNone}
}

// Offline builds an OFFLINE status.
func Offline(detail StatusDetail, description string) Status {
	return Status{Status: StatusOffline, Detail: detail, Description: description}
}

// StateKind is the type of a channel state value.
type StateKind string

// Channel state kinds.
const (
	StateOnOff   StateKind = "onoff"
	StatePercent StateKind = "percent"
	StateDecimal StateKind = "decimal"
)

// State is a channel value published to the host.
type State struct {
	Kind  StateKind `json:"kind"`
	On    bool      `json:"on,omitempty"`
	Value int       `json:"value"`
}

// OnOffState builds a switch state.
func OnOffState(on bool) State {
	v := 0
	if on {
		v = 1
	}
	return State{Kind: StateOnOff, On: on, Value: v}
}

// PercentState builds a brightness state (0-100).
func PercentState(percent int) State {
	return State{Kind: StatePercent, On: percent > 0, Value: percent}
}

// DecimalState builds a discrete numeric state.
func DecimalState(value int) State {
	return State{Kind: StateDecimal, Value: value}
}

// Callback receives status, channel state and property updates for things.
// It is implemented by the host side (MQTT publisher, inventory).
type Callback interface {
	StatusUpdated(uid ThingUID, status Status)
	StateUpdated(uid ThingUID, channel string, state State)
	PropertyUpdated(uid ThingUID, key, value string)
}

// nopCallback discards every update.
type nopCallback struct{}

func (nopCallback) StatusUpdated(ThingUID, Status)           {}
func (nopCallback) StateUpdated(ThingUID, string, State)  {}
func (nopCallback) PropertyUpdated(ThingUID, string, string) {}
