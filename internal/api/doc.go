// Package api provides the HTTP REST API and WebSocket feed for Netwatch.
//
// Routes, all under /api/v1:
//
//	GET    /health
//	GET    /metrics                         runtime and monitoring statistics
//	GET    /ws                              live check events
//	GET    /devices                         list (refreshed from the store)
//	POST   /devices                         add; the ID is generated
//	GET    /devices/{id}
//	PATCH  /devices/{id}                    partial update
//	DELETE /devices/{id}                    stop monitoring, then delete
//	GET    /devices/{id}/history            events, status, last check
//	POST   /devices/{id}/monitoring/start
//	POST   /devices/{id}/monitoring/stop
//	GET    /monitoring                      monitored device IDs
//	POST   /monitoring/start                start every device
//	POST   /monitoring/stop                 stop every device
//
// WebSocket clients subscribe to "device.checked" for every check or
// "device.checked:<id>" for one device:
//
//	{"type": "subscribe", "id": "1", "payload": {"channels": ["device.checked"]}}
//
// The server follows the same lifecycle as other components:
//
//	server, err := api.New(deps)
//	err = server.Start(ctx)
//	defer server.Close()
package api
