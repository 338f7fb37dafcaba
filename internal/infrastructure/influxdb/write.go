package influxdb

import (
	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurements written by the bridge.
const (
	MeasurementChannelState = "channel_state"
	MeasurementThingStatus  = "thing_status"
)

// ChannelValue is one channel state sample.
type ChannelValue struct {
	// Kind is the state kind ("onoff", "percent", "decimal").
	Kind string

	On    bool
	Value int
}

// WriteChannelState records a channel state change.
//
// Tags: thing_id, bridge_id, channel, kind. Fields: value (int) and on (bool).
//
// Example:
//
//	client.WriteChannelState("living_dimmer", "gw1", "brightness",
//	    influxdb.ChannelValue{Kind: "percent", On: true, Value: 70})
func (c *Client) WriteChannelState(thingID, bridgeID, channel string, v ChannelValue) {
	c.writePoint(MeasurementChannelState,
		map[string]string{
			"thing_id":  thingID,
			"bridge_id": bridgeID,
			"channel":   channel,
			"kind":      v.Kind,
		},
		map[string]interface{}{
			"value": v.Value,
			"on":    v.On,
		},
	)
}

// WriteThingStatus records a status transition of a bridge or device.
//
// Tags: thing_id, bridge_id. Fields: status, detail, online, and
// description when not empty.
func (c *Client) WriteThingStatus(thingID, bridgeID, status, detail, description string) {
	fields := map[string]interface{}{
		"status": status,
		"detail": detail,
		"online": status == "ONLINE",
	}
	if description != "" {
		fields["description"] = description
	}
	c.writePoint(MeasurementThingStatus,
		map[string]string{
			"thing_id":  thingID,
			"bridge_id": bridgeID,
		},
		fields,
	)
}

// writePoint drops the point when the client is closed.
func (c *Client) writePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() || c.writer == nil {
		return
	}
	c.writer.WritePoint(write.NewPoint(measurement, tags, fields, c.now()))
}
