// Package influxdb records receiver telemetry in InfluxDB.
//
// It wraps the official influxdb-client-go v2 library. The bridge writes one
// receiver_state point per successful poll, tagged by receiver_id, so volume,
// power and playback position can be graphed over time.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteReceiverState("kitchen", map[string]any{"volume": 12, "power": 1})
//
// # Error Handling
//
// Writes are non-blocking and batched (batch_size, flush_interval); batch
// failures are delivered to the SetOnError callback. Connection and health
// check errors are returned directly.
package influxdb
