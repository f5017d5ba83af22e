// Package monitor runs one polling session per monitored device.
//
// A session repeatedly probes the device's current address, records the
// outcome through the device registry, notifies observers, and sleeps for the
// check interval. Sleeping and probing both end as soon as the session is
// cancelled.
//
// # Lifecycle
//
//	sup := monitor.New(registry, prober, monitor.Options{
//	    Interval: 5 * time.Second,
//	    Timeout:  500 * time.Millisecond,
//	})
//	sup.SetLogger(log)
//	sup.AddObserver(monitor.NewMQTTObserver(mqttClient, mqttClient.Topics(), 1))
//
//	if err := sup.Start(ctx, "d1"); err != nil { ... }
//	defer sup.Close()
//
// Start is idempotent. Stop cancels the session and waits up to
// Options.StopTimeout for it to exit; if it has not exited by then, Stop
// still returns success and the session finishes on its own.
package monitor
