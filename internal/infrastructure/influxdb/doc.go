// Package influxdb records own-bridge history in InfluxDB.
//
// It wraps the official influxdb-client-go v2 library. Two measurements are
// written:
//   - channel_state: every switch and brightness change per thing
//   - thing_status: every ONLINE/OFFLINE/UNKNOWN transition
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // history is optional
//	}
//	defer client.Close()
//
// # Thread Safety
//
// All methods are safe for concurrent use. Writes are non-blocking and
// batched according to batch_size and flush_interval.
package influxdb
