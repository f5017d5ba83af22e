package mqtt

import (
	"encoding/json"
	"time"
)

// Presence statuses.
const (
	PresenceOnline  = "online"
	PresenceOffline = "offline"
)

// Offline reasons. ReasonConnectionLost is only ever sent by the broker,
// as the will.
const (
	ReasonShutdown       = "shutdown"
	ReasonConnectionLost = "connection_lost"
)

// Summary is the monitoring state announced with a presence message.
type Summary struct {
	Devices int `json:"devices"`
	Running int `json:"running"`
}

// SummaryFunc reports the current Summary.
type SummaryFunc func() Summary

// Presence is the retained message on the system status topic.
//
//	{"status":"online","client_id":"netwatch-core","monitoring":{"devices":3,"running":2},"timestamp":"..."}
type Presence struct {
	Status     string    `json:"status"`
	ClientID   string    `json:"client_id"`
	Reason     string    `json:"reason,omitempty"`
	Monitoring *Summary  `json:"monitoring,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Encode returns p as JSON.
func (p Presence) Encode() []byte {
	b, _ := json.Marshal(p) //nolint:errcheck // Plain struct, cannot fail
	return b
}
