package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/netwatch-core/internal/device"
	"github.com/nerrad567/netwatch-core/internal/infrastructure/mqtt"
)

// Check is one recorded probe outcome handed to observers.
type Check struct {
	DeviceID  string
	Address   string
	Reachable bool
	Event     device.Event
	Time      time.Time
}

// Observer receives every check a session records. Observers run on the
// session goroutine and must not block for long; errors are logged and do
// not affect monitoring.
type Observer interface {
	ObserveCheck(ctx context.Context, c Check) error
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(ctx context.Context, c Check) error

// ObserveCheck calls f.
func (f ObserverFunc) ObserveCheck(ctx context.Context, c Check) error {
	return f(ctx, c)
}

// Publisher is the MQTT publishing surface used by MQTTObserver.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// statusMessage is the retained per-device status payload.
type statusMessage struct {
	DeviceID  string        `json:"device_id"`
	Address   string        `json:"address"`
	Status    device.Status `json:"status"`
	Online    *bool         `json:"online"`
	LastCheck time.Time     `json:"last_check"`
}

// eventMessage is the per-check event payload.
type eventMessage struct {
	DeviceID string           `json:"device_id"`
	Address  string           `json:"address"`
	Kind     device.EventKind `json:"kind"`
	Status   device.Status    `json:"status"`
	Message  string           `json:"message"`
	Time     time.Time        `json:"time"`
}

// MQTTObserver publishes each check as a retained status message and a
// non-retained event message.
type MQTTObserver struct {
	pub    Publisher
	topics mqtt.Topics
	qos    byte
}

// NewMQTTObserver creates an observer publishing under topics at qos.
func NewMQTTObserver(pub Publisher, topics mqtt.Topics, qos byte) *MQTTObserver {
	return &MQTTObserver{pub: pub, topics: topics, qos: qos}
}

// ObserveCheck implements Observer.
func (o *MQTTObserver) ObserveCheck(_ context.Context, c Check) error {
	status, err := json.Marshal(statusMessage{
		DeviceID:  c.DeviceID,
		Address:   c.Address,
		Status:    c.Event.Status,
		Online:    c.Event.Status.Online(),
		LastCheck: c.Time,
	})
	if err != nil {
		return fmt.Errorf("encoding status: %w", err)
	}
	if err := o.pub.Publish(o.topics.DeviceStatus(c.DeviceID), status, o.qos, true); err != nil {
		return fmt.Errorf("publishing status: %w", err)
	}

	event, err := json.Marshal(eventMessage{
		DeviceID: c.DeviceID,
		Address:  c.Address,
		Kind:     c.Event.Kind,
		Status:   c.Event.Status,
		Message:  c.Event.Message,
		Time:     c.Event.Time,
	})
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}
	if err := o.pub.Publish(o.topics.DeviceEvent(c.DeviceID), event, o.qos, false); err != nil {
		return fmt.Errorf("publishing event: %w", err)
	}
	return nil
}

// PointWriter is the time-series surface used by InfluxObserver.
type PointWriter interface {
	WriteDeviceCheck(deviceID, address string, reachable, online bool, ts time.Time)
}

// InfluxObserver records each check as a time-series point.
type InfluxObserver struct {
	w PointWriter
}

// NewInfluxObserver creates an observer writing to w.
func NewInfluxObserver(w PointWriter) *InfluxObserver {
	return &InfluxObserver{w: w}
}

// ObserveCheck implements Observer. Writes are batched by the client, so
// this never fails.
func (o *InfluxObserver) ObserveCheck(_ context.Context, c Check) error {
	o.w.WriteDeviceCheck(c.DeviceID, c.Address, c.Reachable, c.Event.Status == device.StatusOnline, c.Time)
	return nil
}
