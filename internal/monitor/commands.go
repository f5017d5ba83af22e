package monitor

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nerrad567/netwatch-core/internal/infrastructure/mqtt"
)

// Command actions accepted on the monitoring command topic.
const (
	ActionStart    = "start"
	ActionStop     = "stop"
	ActionStartAll = "start_all"
	ActionStopAll  = "stop_all"
)

// commandQueueSize bounds commands received but not yet applied.
const commandQueueSize = 32

var (
	errMissingDeviceID  = errors.New("device_id is required")
	errCommandQueueFull = errors.New("command queue full")
)

// Subscriber is the MQTT subscription surface used for remote commands.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// Command is a remote start or stop request.
//
//	{"action": "start", "device_id": "d1"}
//	{"action": "stop_all"}
type Command struct {
	Action   string `json:"action"`
	DeviceID string `json:"device_id,omitempty"`
}

// SubscribeCommands routes messages on the monitoring command topic to the
// supervisor. Commands are applied in arrival order by a single worker, so
// a stop waiting on a session never holds up the MQTT client.
func (s *Supervisor) SubscribeCommands(sub Subscriber, topics mqtt.Topics) error {
	s.commandsOnce.Do(func() { go s.runCommands() })
	return sub.Subscribe(topics.MonitoringCommand(), 1, s.handleCommand)
}

// handleCommand decodes one payload and queues it. Errors are returned to
// the MQTT client, which logs them.
func (s *Supervisor) handleCommand(_ string, payload []byte) error {
	var cmd Command
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return fmt.Errorf("decoding command: %w", err)
	}

	select {
	case s.commands <- cmd:
		return nil
	default:
		return fmt.Errorf("%s: %w", cmd.Action, errCommandQueueFull)
	}
}

// runCommands applies queued commands until the supervisor is closed.
func (s *Supervisor) runCommands() {
	for {
		select {
		case <-s.baseCtx.Done():
			return
		case cmd := <-s.commands:
			if err := s.Apply(cmd); err != nil {
				s.logger.Warn("monitoring command failed",
					"action", cmd.Action,
					"device_id", cmd.DeviceID,
					"error", err,
				)
			}
		}
	}
}

// Apply executes a command against the supervisor.
func (s *Supervisor) Apply(cmd Command) error {
	ctx := s.baseCtx

	switch cmd.Action {
	case ActionStart:
		if cmd.DeviceID == "" {
			return fmt.Errorf("%s: %w", cmd.Action, errMissingDeviceID)
		}
		return s.Start(ctx, cmd.DeviceID)
	case ActionStop:
		if cmd.DeviceID == "" {
			return fmt.Errorf("%s: %w", cmd.Action, errMissingDeviceID)
		}
		return s.Stop(ctx, cmd.DeviceID)
	case ActionStartAll:
		s.StartAll(ctx)
		return nil
	case ActionStopAll:
		s.StopAll()
		return nil
	default:
		return fmt.Errorf("unknown command action %q", cmd.Action)
	}
}
