package api

import (
	"net/http"
	"runtime"
	"time"
)

// ReconnectCounter reports how often the store connection was recycled.
type ReconnectCounter interface {
	Reconnects() int
}

// ConnectionReporter reports whether an optional client is connected.
type ConnectionReporter interface {
	IsConnected() bool
}

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string            `json:"timestamp"`
	Version       string            `json:"version"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Runtime       RuntimeMetrics    `json:"runtime"`
	WebSocket     WSMetrics         `json:"websocket"`
	Monitoring    MonitoringMetrics `json:"monitoring"`
	Devices       DeviceMetrics     `json:"devices"`
	Database      *DatabaseMetrics  `json:"database,omitempty"`
	Connections   map[string]bool   `json:"connections,omitempty"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// MonitoringMetrics describes the polling sessions. ActiveLoops can exceed
// Running briefly while stopped sessions finish their last probe.
type MonitoringMetrics struct {
	Running     int `json:"running"`
	ActiveLoops int `json:"active_loops"`
}

// DeviceMetrics contains device registry statistics.
type DeviceMetrics struct {
	Total    int            `json:"total"`
	ByStatus map[string]int `json:"by_status"`
}

// DatabaseMetrics contains store connection statistics.
type DatabaseMetrics struct {
	Reconnects int `json:"reconnects"`
}

// handleMetrics returns runtime, monitoring and registry statistics.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		WebSocket: WSMetrics{
			ConnectedClients: s.hub.ClientCount(),
		},
		Monitoring: MonitoringMetrics{
			Running:     len(s.supervisor.Running()),
			ActiveLoops: s.supervisor.Active(),
		},
	}

	regStats := s.registry.Stats()
	metrics.Devices = DeviceMetrics{
		Total:    regStats.Total,
		ByStatus: make(map[string]int, len(regStats.ByStatus)),
	}
	for status, count := range regStats.ByStatus {
		metrics.Devices.ByStatus[status.String()] = count
	}

	if s.store != nil {
		metrics.Database = &DatabaseMetrics{Reconnects: s.store.Reconnects()}
	}
	if len(s.conns) > 0 {
		metrics.Connections = make(map[string]bool, len(s.conns))
		for name, c := range s.conns {
			metrics.Connections[name] = c.IsConnected()
		}
	}

	writeJSON(w, http.StatusOK, metrics)
}
