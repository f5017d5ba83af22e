package device

import (
	"encoding/json"
	"time"
)

// Status is the last known reachability of a device.
type Status int

const (
	// StatusUnknown means the device has never been probed.
	StatusUnknown Status = iota
	StatusOnline
	StatusOffline
)

// String returns the display label used in events and API payloads.
func (s Status) String() string {
	switch s {
	case StatusOnline:
		return "Online"
	case StatusOffline:
		return "Offline"
	default:
		return "Unknown"
	}
}

// MarshalJSON encodes the status as its label.
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON accepts the labels produced by MarshalJSON.
func (s *Status) UnmarshalJSON(data []byte) error {
	var label string
	if err := json.Unmarshal(data, &label); err != nil {
		return err
	}
	*s = ParseStatus(label)
	return nil
}

// ParseStatus converts a label back into a Status.
// Unrecognised labels map to StatusUnknown.
func ParseStatus(label string) Status {
	switch label {
	case "Online", "online":
		return StatusOnline
	case "Offline", "offline":
		return StatusOffline
	default:
		return StatusUnknown
	}
}

// StatusFromReachable maps a probe outcome to Online or Offline.
func StatusFromReachable(reachable bool) Status {
	if reachable {
		return StatusOnline
	}
	return StatusOffline
}

// Online reports the status as a nullable boolean, the storage encoding.
// It returns nil for StatusUnknown.
func (s Status) Online() *bool {
	switch s {
	case StatusOnline:
		v := true
		return &v
	case StatusOffline:
		v := false
		return &v
	default:
		return nil
	}
}

// Device is a monitored network endpoint.
//
// Status and LastCheck always change together. History is kept in memory only
// and is never written to the store.
type Device struct {
	ID          string     `json:"id"`
	Address     string     `json:"address"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Status      Status     `json:"status"`
	LastCheck   *time.Time `json:"last_check,omitempty"`
	History     History    `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DeepCopy returns an independent copy, including the event ring.
func (d *Device) DeepCopy() *Device {
	if d == nil {
		return nil
	}

	cpy := *d
	if d.LastCheck != nil {
		t := *d.LastCheck
		cpy.LastCheck = &t
	}
	cpy.History = d.History.Clone()
	return &cpy
}

// Update carries optional field changes for an existing device.
//
// A nil field is left untouched. Address and Name are also left untouched
// when set to an empty string; Description may be cleared.
type Update struct {
	Address     *string `json:"address,omitempty"`
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

// apply merges u into d and reports whether anything changed.
func (u Update) apply(d *Device) bool {
	changed := false
	if u.Address != nil && *u.Address != "" && *u.Address != d.Address {
		d.Address = *u.Address
		changed = true
	}
	if u.Name != nil && *u.Name != "" && *u.Name != d.Name {
		d.Name = *u.Name
		changed = true
	}
	if u.Description != nil && *u.Description != d.Description {
		d.Description = *u.Description
		changed = true
	}
	return changed
}

// Snapshot is the history view returned to callers: the recorded events plus
// the current status and last check time, read together.
type Snapshot struct {
	Events    []Event    `json:"events"`
	Status    Status     `json:"status"`
	LastCheck *time.Time `json:"last_check,omitempty"`
}
