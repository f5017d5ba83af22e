// Package mqtt connects Netwatch to an MQTT broker.
//
// Netwatch publishes device checks and accepts monitoring commands; it
// never consumes device traffic. The client keeps a retained presence
// message on {prefix}/system/status: online with device counts after every
// (re)connect, offline with reason "shutdown" on Close, and offline with
// reason "connection_lost" as the broker-held will.
//
//	client, err := mqtt.Connect(cfg.MQTT, func() mqtt.Summary {
//	    return mqtt.Summary{Devices: registry.Count(), Running: len(supervisor.Running())}
//	})
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.Publish(client.Topics().DeviceStatus("d1"), payload, 1, true)
//
// Set the password through NETWATCH_MQTT_PASSWORD rather than the config
// file, and enable TLS for brokers off the local host.
package mqtt
