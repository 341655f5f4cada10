package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// MeasurementReceiverState is the measurement written for each poll.
const MeasurementReceiverState = "receiver_state"


// WriteReceiverState records one poll of a receiver.
//
// The write is non-blocking; points are batched and sent asynchronously.
// Fields are whatever the bridge selected from the poll (power, volume,
// mute, sleep, position...); an empty map writes nothing.
//
// Parameters:
//   - receiverID: Bridge-local receiver identifier (e.g., "kitchen")
//   - fields: Numeric or boolean readings keyed by field name
func (c *Client) WriteReceiverState(receiverID string, fields map[string]any) {
	if !c.IsConnected() || len(fields) == 0 {
		return
	}
	c.writeAPI.WritePoint(receiverPoint(receiverID, fields, time.Now()))
}

// receiverPoint builds the receiver_state point tagged by receiver_id.
func receiverPoint(receiverID string, fields map[string]any, ts time.Time) *write.Point {
	return write.NewPoint(
		MeasurementReceiverState,
		map[string]string{"receiver_id": receiverID},
		fields,
		ts,
	)
}
