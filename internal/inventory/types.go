package inventory

import "time"

// Thing is the stored record of a bridge or device.
type Thing struct {
	ID       string `json:"id"`
	UID      string `json:"uid"`
	BridgeID string `json:"bridge_id,omitempty"`
	Type     string `json:"type"`
	Where    string `json:"where,omitempty"`
	Label    string `json:"label"`

	Status            string `json:"status"`
	StatusDetail      string `json:"status_detail"`
	StatusDescription string `json:"status_description,omitempty"`

	// Properties and Channels are filled by Get and List.
	Properties map[string]string       `json:"properties,omitempty"`
	Channels   map[string]ChannelValue `json:"channels,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// ChannelValue is the last published value of a channel, as the JSON
// document that was sent to the host.
type ChannelValue struct {
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DiscoveryResult is an entry of the discovery inbox.
type DiscoveryResult struct {
	ThingUID  string    `json:"thing_uid"`
	BridgeID  string    `json:"bridge_id"`
	ThingType string    `json:"thing_type"`
	Label     string    `json:"label"`
	Where     string    `json:"where"`
	ScanID    string    `json:"scan_id,omitempty"`
	FoundAt   time.Time `json:"found_at"`
}

// Status values for a thing created before its first status report.
const (
	defaultStatus = "UNKNOWN"
	defaultDetail = "NONE"
)
