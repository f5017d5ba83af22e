package mqtt

import (
	"context"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/netwatch-core/internal/infrastructure/config"
)

// Logger is the logging surface used by the client.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// MessageHandler receives one inbound message. A returned error is logged.
type MessageHandler func(topic string, payload []byte) error

// subscription is remembered so it can be renewed after a reconnect, since
// sessions are clean and the broker forgets them.
type subscription struct {
	qos     byte
	handler MessageHandler
}

// Client is the broker connection used to export device checks and accept
// monitoring commands. It announces its presence on the system status
// topic, renews subscriptions after reconnecting, and is safe for
// concurrent use.
type Client struct {
	conn   pahomqtt.Client
	cfg    config.MQTTConfig
	topics Topics

	mu      sync.Mutex
	subs    map[string]subscription
	summary SummaryFunc
	onState func(connected bool, err error)
	logger  Logger
}

// Connect dials the broker described by cfg. summary, which may be nil,
// supplies the device counts carried by every online presence, including the
// first. The connection retries in the background after the first success;
// the first attempt must complete within the connect timeout.
func Connect(cfg config.MQTTConfig, summary SummaryFunc) (*Client, error) {
	c := newClient(cfg, nil)
	c.summary = summary

	opts := newClientOptions(cfg, c.topics)
	opts.SetOnConnectHandler(func(pahomqtt.Client) { c.handleConnect() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.handleLost(err) })
	opts.SetReconnectingHandler(func(pahomqtt.Client, *pahomqtt.ClientOptions) {
		c.log().Warn("MQTT reconnecting", "broker", brokerURL(cfg))
	})

	c.conn = pahomqtt.NewClient(opts)
	if err := wait(c.conn.Connect(), connectTimeout); err != nil {
		c.conn.Disconnect(0)
		return nil, fmt.Errorf("%w: %s: %w", ErrConnectionFailed, brokerURL(cfg), err)
	}
	return c, nil
}

func newClient(cfg config.MQTTConfig, conn pahomqtt.Client) *Client {
	return &Client{
		conn:   conn,
		cfg:    cfg,
		topics: Topics{Prefix: cfg.TopicPrefix},
		subs:   make(map[string]subscription),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for connection events and handler failures.
func (c *Client) SetLogger(logger Logger) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logger = logger
}

// SetStateHandler registers fn to be told about every (re)connect and every
// lost connection.
func (c *Client) SetStateHandler(fn func(connected bool, err error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onState = fn
}

// Topics returns the topic builder for the configured prefix.
func (c *Client) Topics() Topics {
	return c.topics
}

// IsConnected reports whether the connection is currently open.
func (c *Client) IsConnected() bool {
	return c.conn != nil && c.conn.IsConnectionOpen()
}

// HealthCheck reports ErrNotConnected while the broker is unreachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// Publish sends payload to topic and waits for the broker to accept it.
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if err := validate(topic, qos); err != nil {
		return err
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: %d byte payload exceeds %d", ErrPublishFailed, len(payload), maxPayloadSize)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	if err := wait(c.conn.Publish(topic, qos, retained, payload), publishTimeout); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPublishFailed, topic, err)
	}
	return nil
}

// Subscribe registers handler for topic. The subscription is renewed after
// every reconnect.
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	if err := validate(topic, qos); err != nil {
		return err
	}
	if handler == nil {
		return fmt.Errorf("%w: nil handler for %s", ErrSubscribeFailed, topic)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	if err := wait(c.conn.Subscribe(topic, qos, c.wrapHandler(handler)), publishTimeout); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrSubscribeFailed, topic, err)
	}

	c.mu.Lock()
	c.subs[topic] = subscription{qos: qos, handler: handler}
	c.mu.Unlock()
	return nil
}

// Close announces a graceful shutdown on the system status topic and
// disconnects.
func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}
	if c.IsConnected() {
		presence := c.presence(PresenceOffline, ReasonShutdown)
		if err := c.Publish(c.topics.SystemStatus(), presence.Encode(), c.qos(), true); err != nil {
			c.log().Warn("publishing offline presence failed", "error", err)
		}
	}
	c.conn.Disconnect(disconnectQuiesce)
	return nil
}

// handleConnect runs on the first connect and after every reconnect.
func (c *Client) handleConnect() {
	c.mu.Lock()
	subs := make(map[string]subscription, len(c.subs))
	for topic, sub := range c.subs {
		subs[topic] = sub
	}
	onState := c.onState
	c.mu.Unlock()

	for topic, sub := range subs {
		if err := wait(c.conn.Subscribe(topic, sub.qos, c.wrapHandler(sub.handler)), publishTimeout); err != nil {
			c.log().Error("renewing subscription failed", "topic", topic, "error", err)
		}
	}

	presence := c.presence(PresenceOnline, "")
	if err := wait(c.conn.Publish(c.topics.SystemStatus(), c.qos(), true, presence.Encode()), publishTimeout); err != nil {
		c.log().Warn("publishing online presence failed", "error", err)
	}

	c.log().Info("MQTT connected", "broker", brokerURL(c.cfg), "subscriptions", len(subs))
	if onState != nil {
		onState(true, nil)
	}
}

func (c *Client) handleLost(err error) {
	c.log().Warn("MQTT connection lost", "error", err)

	c.mu.Lock()
	onState := c.onState
	c.mu.Unlock()
	if onState != nil {
		onState(false, err)
	}
}

// presence builds a presence message carrying the current summary, if any.
func (c *Client) presence(status, reason string) Presence {
	c.mu.Lock()
	fn := c.summary
	c.mu.Unlock()

	p := Presence{
		Status:    status,
		ClientID:  c.cfg.Broker.ClientID,
		Reason:    reason,
		Timestamp: time.Now().UTC(),
	}
	if fn != nil {
		sum := fn()
		p.Monitoring = &sum
	}
	return p
}

// wrapHandler adapts a MessageHandler for paho, logging errors and
// recovering panics so one bad command cannot stop the client.
func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				c.log().Error("MQTT handler panicked", "topic", msg.Topic(), "panic", r)
			}
		}()
		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			c.log().Warn("MQTT handler failed", "topic", msg.Topic(), "error", err)
		}
	}
}

func (c *Client) log() Logger {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.logger
}

func (c *Client) qos() byte {
	return byte(c.cfg.QoS) // #nosec G115 -- validated to 0..2 by config
}

func validate(topic string, qos byte) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	return nil
}

// wait blocks on a paho token for at most timeout.
func wait(t pahomqtt.Token, timeout time.Duration) error {
	if !t.WaitTimeout(timeout) {
		return fmt.Errorf("timed out after %v", timeout)
	}
	return t.Error()
}
