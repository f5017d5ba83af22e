// Package device provides the device record, its status model, and the
// Registry that caches devices over the SQLite store.
//
// # Key Types
//
//   - Device: a monitored endpoint (id, address, name, description, status,
//     last check) with an in-memory ring of recent events
//   - Status: Unknown until the first probe, then Online or Offline
//   - History: fixed-capacity event ring, oldest evicted first
//   - Transition: pure function from (previous status, probe result) to the
//     next status and the event to record
//   - Registry: read-through/write-through cache, the single source of truth
//     for which devices exist
//
// # Usage
//
//	repo := device.NewSQLiteRepository(handle)
//	registry := device.NewRegistry(repo)
//	registry.SetLogger(log)
//
//	dev, err := registry.Add(ctx, &device.Device{
//	    ID:      device.GenerateID(),
//	    Address: "10.0.0.1",
//	    Name:    "core switch",
//	})
//
//	event, err := registry.RecordCheck(ctx, dev.ID, dev.Address, true, time.Now())
//
// Only status and last check are persisted. History starts empty on every
// process start.
package device
