package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// MeasurementDeviceCheck is the measurement holding one point per probe.
const MeasurementDeviceCheck = "device_check"

// WriteDeviceCheck records one probe outcome. online is the device status
// after the check, which can differ from reachable only for Unknown.
// The write is non-blocking.
//
//	client.WriteDeviceCheck("d1", "10.0.0.1", true, true, time.Now())
func (c *Client) WriteDeviceCheck(deviceID, address string, reachable, online bool, ts time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(deviceCheckPoint(deviceID, address, reachable, online, ts))
}

func deviceCheckPoint(deviceID, address string, reachable, online bool, ts time.Time) *write.Point {
	return write.NewPoint(
		MeasurementDeviceCheck,
		map[string]string{
			"device_id": deviceID,
			"address":   address,
		},
		map[string]interface{}{
			"reachable": reachable,
			"online":    online,
		},
		ts,
	)
}
