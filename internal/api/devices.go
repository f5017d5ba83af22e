package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/netwatch-core/internal/device"
	"github.com/nerrad567/netwatch-core/internal/monitor"
)

// deviceResponse is a device with its monitoring state.
type deviceResponse struct {
	device.Device
	IsOnline   *bool                 `json:"is_online"`
	Monitoring monitor.SessionStatus `json:"monitoring"`
}

// createDeviceRequest is the body of POST /devices.
type createDeviceRequest struct {
	Address     string `json:"address"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// historyResponse carries the events under both the legacy "results" key
// and "events", and the status as both a nullable boolean and a label.
type historyResponse struct {
	Results   []device.Event `json:"results"`
	Events    []device.Event `json:"events"`
	IsOnline  *bool          `json:"is_online"`
	Status    device.Status  `json:"status"`
	LastCheck *string        `json:"last_check"`
}

func (s *Server) toResponse(d *device.Device) deviceResponse {
	return deviceResponse{
		Device:     *d,
		IsOnline:   d.Status.Online(),
		Monitoring: s.supervisor.Status(d.ID),
	}
}

// handleListDevices returns every device, refreshed from the store.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.registry.List(r.Context())
	if err != nil {
		s.writeDeviceError(w, err, "failed to list devices")
		return
	}

	out := make([]deviceResponse, 0, len(devices))
	for i := range devices {
		out = append(out, s.toResponse(&devices[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": out, "count": len(out)})
}

// handleGetDevice returns a single device by ID.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	dev, err := s.registry.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeDeviceError(w, err, "failed to get device")
		return
	}
	writeJSON(w, http.StatusOK, s.toResponse(dev))
}

// handleCreateDevice registers a device under a generated ID. The device
// is not monitored until started.
func (s *Server) handleCreateDevice(w http.ResponseWriter, r *http.Request) {
	var req createDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	dev, err := s.registry.Add(r.Context(), &device.Device{
		ID:          device.GenerateID(),
		Address:     req.Address,
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		s.writeDeviceError(w, err, "failed to create device")
		return
	}
	writeJSON(w, http.StatusCreated, s.toResponse(dev))
}

// handleUpdateDevice applies a partial update. Empty address or name are
// ignored; description may be cleared.
func (s *Server) handleUpdateDevice(w http.ResponseWriter, r *http.Request) {
	var u device.Update
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	dev, err := s.registry.Update(r.Context(), chi.URLParam(r, "id"), u)
	if err != nil {
		s.writeDeviceError(w, err, "failed to update device")
		return
	}
	writeJSON(w, http.StatusOK, s.toResponse(dev))
}

// handleDeleteDevice stops monitoring and removes the device.
func (s *Server) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	if err := s.supervisor.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeDeviceError(w, err, "failed to delete device")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleDeviceHistory returns the in-memory event history together with
// the current status and last check.
func (s *Server) handleDeviceHistory(w http.ResponseWriter, r *http.Request) {
	snap, err := s.registry.History(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeDeviceError(w, err, "failed to get device history")
		return
	}

	events := snap.Events
	if events == nil {
		events = []device.Event{}
	}
	resp := historyResponse{
		Results:  events,
		Events:   events,
		IsOnline: snap.Status.Online(),
		Status:   snap.Status,
	}
	if snap.LastCheck != nil {
		ts := snap.LastCheck.Local().Format(device.EventTimeLayout)
		resp.LastCheck = &ts
	}
	writeJSON(w, http.StatusOK, resp)
}

// monitoringResponse reports the session state of one device.
type monitoringResponse struct {
	DeviceID string                `json:"device_id"`
	Status   monitor.SessionStatus `json:"status"`
}

// handleStartMonitoring starts the device's session. Starting a monitored
// device is not an error.
func (s *Server) handleStartMonitoring(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.supervisor.Start(r.Context(), id); err != nil {
		s.writeDeviceError(w, err, "failed to start monitoring")
		return
	}
	writeJSON(w, http.StatusOK, monitoringResponse{DeviceID: id, Status: s.supervisor.Status(id)})
}

// handleStopMonitoring stops the device's session, waiting briefly for it
// to exit.
func (s *Server) handleStopMonitoring(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.supervisor.Stop(r.Context(), id); err != nil {
		s.writeDeviceError(w, err, "failed to stop monitoring")
		return
	}
	writeJSON(w, http.StatusOK, monitoringResponse{DeviceID: id, Status: s.supervisor.Status(id)})
}

// handleMonitoringStatus lists the monitored devices.
func (s *Server) handleMonitoringStatus(w http.ResponseWriter, _ *http.Request) {
	running := s.supervisor.Running()
	writeJSON(w, http.StatusOK, map[string]any{"running": running, "count": len(running)})
}

// handleStartAll starts every known device. Per-device failures are logged
// by the supervisor and do not fail the request.
func (s *Server) handleStartAll(w http.ResponseWriter, r *http.Request) {
	s.supervisor.StartAll(r.Context())
	s.handleMonitoringStatus(w, r)
}

// handleStopAll stops every session.
func (s *Server) handleStopAll(w http.ResponseWriter, r *http.Request) {
	s.supervisor.StopAll()
	s.handleMonitoringStatus(w, r)
}
