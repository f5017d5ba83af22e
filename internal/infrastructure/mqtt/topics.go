package mqtt

import "strings"

// DefaultTopicPrefix is the root of every topic when Topics.Prefix is empty.
const DefaultTopicPrefix = "netwatch"

// Topics builds the topic names under one prefix.
//
//	{prefix}/status/{device_id}   retained latest status
//	{prefix}/events/{device_id}   one message per recorded check
//	{prefix}/command/monitoring   start and stop requests
//	{prefix}/system/status        presence, also the will
type Topics struct {
	Prefix string
}

func (t Topics) join(parts ...string) string {
	root := strings.TrimSuffix(t.Prefix, "/")
	if root == "" {
		root = DefaultTopicPrefix
	}
	return root + "/" + strings.Join(parts, "/")
}

// DeviceStatus returns the retained status topic of a device.
func (t Topics) DeviceStatus(deviceID string) string {
	return t.join("status", deviceID)
}

// DeviceEvent returns the event topic of a device.
func (t Topics) DeviceEvent(deviceID string) string {
	return t.join("events", deviceID)
}

// MonitoringCommand returns the topic on which start and stop requests are
// accepted.
func (t Topics) MonitoringCommand() string {
	return t.join("command", "monitoring")
}

// SystemStatus returns the presence topic.
func (t Topics) SystemStatus() string {
	return t.join("system", "status")
}
