package openwebnet

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/own-bridge/internal/own"
)

// MQTT message types exchanged between the bridge service and the host.
// Topics are built by the infrastructure mqtt package with Protocol as the
// protocol segment.

// Protocol is the protocol segment of every openwebnet MQTT topic.
const Protocol = BindingID

// CommandMessage is a host command for one channel.
// Topic: ownbridge/command/openwebnet/{thing}/{channel}
//
// The payload is either this JSON envelope or the bare command text
// ("ON", "50", "INCREASE", ...).
type CommandMessage struct {
	// ID correlates the command with its acknowledgement. Optional.
	ID string `json:"id,omitempty"`

	// Command is the command text accepted by ParseCommand.
	Command string `json:"command"`

	// Source indicates where the command originated ("mqtt", "api", ...).
	Source string `json:"source,omitempty"`
}

// DecodeCommandMessage accepts a JSON envelope or bare command text.
func DecodeCommandMessage(payload []byte) (CommandMessage, error) {
	text := strings.TrimSpace(string(payload))
	if text == "" {
		return CommandMessage{}, fmt.Errorf("%w: empty payload", ErrUnsupportedCommand)
	}
	if !strings.HasPrefix(text, "{") {
		return CommandMessage{Command: text}, nil
	}

	var msg CommandMessage
	if err := json.Unmarshal([]byte(text), &msg); err != nil {
		return CommandMessage{}, fmt.Errorf("unmarshal command message: %w", err)
	}
	if msg.Command == "" {
		return CommandMessage{}, fmt.Errorf("%w: missing command", ErrUnsupportedCommand)
	}
	return msg, nil
}

// AckStatus represents the acknowledgment status of a command.
type AckStatus string

const (
	// AckAccepted indicates the command was applied to the device.
	AckAccepted AckStatus = "accepted"

	// AckFailed indicates the command could not be executed.
	AckFailed AckStatus = "failed"
)

// Error codes for command failures.
const (
	ErrCodeInvalidCommand     = "INVALID_COMMAND"
	ErrCodeUnsupportedChannel = "UNSUPPORTED_CHANNEL"
	ErrCodeNotConfigured      = "NOT_CONFIGURED"
	ErrCodeBridgeOffline      = "BRIDGE_OFFLINE"
	ErrCodeBridgeError        = "BRIDGE_ERROR"
)

// AckMessage acknowledges a channel command.
// Topic: ownbridge/ack/openwebnet/{thing}/{channel}
type AckMessage struct {
	CommandID string    `json:"command_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Thing     string    `json:"thing"`
	Channel   string    `json:"channel"`
	Command   string    `json:"command"`
	Status    AckStatus `json:"status"`
	Protocol  string    `json:"protocol"`
	Error     *AckError `json:"error,omitempty"`
}

// AckError contains error details for failed commands.
type AckError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewAckMessage creates an acceptance for a command.
func NewAckMessage(cmd CommandMessage, thing, channel string, now time.Time) AckMessage {
	return AckMessage{
		CommandID: cmd.ID,
		Timestamp: now.UTC(),
		Thing:     thing,
		Channel:   channel,
		Command:   cmd.Command,
		Status:    AckAccepted,
		Protocol:  Protocol,
	}
}

// NewAckError creates a failed acknowledgment with error details.
func NewAckError(cmd CommandMessage, thing, channel, code, message string, now time.Time) AckMessage {
	ack := NewAckMessage(cmd, thing, channel, now)
	ack.Status = AckFailed
	ack.Error = &AckError{Code: code, Message: message}
	return ack
}

// AckCode maps a command error to its acknowledgment error code.
func AckCode(err error) string {
	switch {
	case errors.Is(err, ErrUnknownThing), errors.Is(err, ErrNoBridge), errors.Is(err, ErrMissingProperty):
		return ErrCodeNotConfigured
	case errors.Is(err, ErrUnsupportedChannel):
		return ErrCodeUnsupportedChannel
	case errors.Is(err, ErrUnsupportedCommand):
		return ErrCodeInvalidCommand
	case errors.Is(err, ErrNotConnected):
		return ErrCodeBridgeOffline
	default:
		return ErrCodeBridgeError
	}
}

// StateMessage carries the state of one channel.
// Topic: ownbridge/state/openwebnet/{thing}/{channel}
// QoS: 1, Retained: Yes
type StateMessage struct {
	Thing     string    `json:"thing"`
	UID       ThingUID  `json:"uid"`
	Channel   string    `json:"channel"`
	Timestamp time.Time `json:"timestamp"`
	State     State     `json:"state"`
	Protocol  string    `json:"protocol"`
}

// NewStateMessage creates a channel state message.
func NewStateMessage(thing string, uid ThingUID, channel string, s State, now time.Time) StateMessage {
	return StateMessage{
		Thing:     thing,
		UID:       uid,
		Channel:   channel,
		Timestamp: now.UTC(),
		State:     s,
		Protocol:  Protocol,
	}
}

// StatusMessage carries the status of a bridge or device.
// Topic: ownbridge/status/openwebnet/{thing}
// QoS: 1, Retained: Yes
type StatusMessage struct {
	Thing      string            `json:"thing"`
	UID        ThingUID          `json:"uid"`
	Timestamp  time.Time         `json:"timestamp"`
	Status     Status            `json:"status"`
	Properties map[string]string `json:"properties,omitempty"`
	Protocol   string            `json:"protocol"`
}

// NewStatusMessage creates a thing status message.
func NewStatusMessage(thing string, uid ThingUID, s Status, props map[string]string, now time.Time) StatusMessage {
	return StatusMessage{
		Thing:      thing,
		UID:        uid,
		Timestamp:  now.UTC(),
		Status:     s,
		Properties: props,
		Protocol:   Protocol,
	}
}

// HealthStatus represents the operational status of a bridge.
type HealthStatus string

const (
	// HealthHealthy indicates the gateway is connected and ONLINE.
	HealthHealthy HealthStatus = "healthy"

	// HealthDegraded indicates the bridge is working with issues.
	HealthDegraded HealthStatus = "degraded"

	// HealthUnhealthy indicates the gateway is OFFLINE.
	HealthUnhealthy HealthStatus = "unhealthy"

	// HealthStarting indicates the gateway has not connected yet.
	HealthStarting HealthStatus = "starting"

	// HealthStopping indicates the service is shutting down.
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage reports the operational status of one bridge.
// Topic: ownbridge/health/openwebnet/{bridge}
// QoS: 1, Retained: Yes
// Interval: openwebnet.health_interval (default 30 seconds)
type HealthMessage struct {
	Bridge        string            `json:"bridge"`
	UID           ThingUID          `json:"uid"`
	Timestamp     time.Time         `json:"timestamp"`
	Status        HealthStatus      `json:"status"`
	Version       string            `json:"version"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Gateway       *GatewayHealth    `json:"gateway,omitempty"`
	Statistics    *BridgeStatistics `json:"statistics,omitempty"`
	ThingsManaged int               `json:"things_managed"`
	Reason        string            `json:"reason,omitempty"`
}

// GatewayHealth describes the gateway connection.
type GatewayHealth struct {
	Kind         string     `json:"kind"`
	State        ConnState  `json:"state"`
	Cause        string     `json:"cause,omitempty"`
	Reconnecting bool       `json:"reconnecting,omitempty"`
	LastActivity *time.Time `json:"last_activity,omitempty"`
}

// BridgeStatistics contains frame counters of the gateway session.
type BridgeStatistics struct {
	FramesReceived uint64 `json:"frames_received"`
	FramesSent     uint64 `json:"frames_sent"`
	FramesInvalid  uint64 `json:"frames_invalid"`
	FramesDropped  uint64 `json:"frames_dropped"`
	Errors         uint64 `json:"errors"`
	Reconnects     uint64 `json:"reconnects"`
}

// NewHealthMessage builds the health message of a bridge from its
// gateway state and session statistics.
func NewHealthMessage(b *Bridge, version string, status HealthStatus, startTime, now time.Time) HealthMessage {
	gateway, stats := gatewayHealth(b)
	return HealthMessage{
		Bridge:        b.ID(),
		UID:           b.UID(),
		Timestamp:     now.UTC(),
		Status:        status,
		Version:       version,
		UptimeSeconds: int64(now.Sub(startTime).Seconds()),
		Gateway:       gateway,
		Statistics:    stats,
		ThingsManaged: b.Registry().Len(),
	}
}

// gatewayHealth reads the connection state and counters of a bridge.
// Statistics are nil until the gateway has been created.
func gatewayHealth(b *Bridge) (*GatewayHealth, *BridgeStatistics) {
	gw := b.Gateway()
	if gw == nil {
		return &GatewayHealth{Kind: b.Kind().String(), State: ConnUnknown}, nil
	}

	state, cause := gw.State()
	stats := gw.Stats()
	health := &GatewayHealth{
		Kind:         b.Kind().String(),
		State:        state,
		Cause:        cause,
		Reconnecting: stats.Reconnecting,
	}
	if !stats.LastActivity.IsZero() {
		last := stats.LastActivity.UTC()
		health.LastActivity = &last
	}
	return health, newBridgeStatistics(stats)
}

func newBridgeStatistics(s own.Stats) *BridgeStatistics {
	return &BridgeStatistics{
		FramesReceived: s.FramesRx,
		FramesSent:     s.FramesTx,
		FramesInvalid:  s.FramesInvalid,
		FramesDropped:  s.FramesDropped,
		Errors:         s.ErrorsTotal,
		Reconnects:     s.ReconnectsTotal,
	}
}

// DiscoveryEvent says whether a result was added or retracted.
type DiscoveryEvent string

// Discovery events.
const (
	DiscoveryAdded   DiscoveryEvent = "discovered"
	DiscoveryRemoved DiscoveryEvent = "removed"
)

// DiscoveryMessage announces a discovery result change.
// Topic: ownbridge/discovery/openwebnet/{bridge}
type DiscoveryMessage struct {
	Timestamp time.Time        `json:"timestamp"`
	Bridge    string           `json:"bridge"`
	ScanID    string           `json:"scan_id,omitempty"`
	Event     DiscoveryEvent   `json:"event"`
	ThingUID  ThingUID         `json:"thing_uid"`
	Result    *DiscoveryResult `json:"result,omitempty"`
}
