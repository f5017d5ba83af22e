// Package influxdb records probe results in InfluxDB.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, batched non-blocking writes, and health checks. Each check
// becomes one device_check point tagged with device_id and address.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.SetOnError(func(err error) {
//	    log.Warn("influxdb write failed", "error", err)
//	})
//	client.WriteDeviceCheck("d1", "10.0.0.1", true, true, time.Now())
//
// Writes are batched according to influxdb.batch_size and
// influxdb.flush_interval. Write errors arrive asynchronously through the
// SetOnError callback; connection and health check errors are returned
// directly.
package influxdb
