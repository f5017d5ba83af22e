package mqtt

import (
	"crypto/tls"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/netwatch-core/internal/infrastructure/config"
)

const (
	connectTimeout    = 10 * time.Second
	publishTimeout    = 5 * time.Second
	disconnectQuiesce = 1000 // ms
	keepAlive         = 60 * time.Second

	maxQoS         = 2
	maxPayloadSize = 1 << 20

	// willQoS is fixed at 1 so a crash is always reported.
	willQoS = 1
)

// brokerURL returns the paho server URL for cfg.
func brokerURL(cfg config.MQTTConfig) string {
	scheme := "tcp"
	if cfg.Broker.TLS {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker.Host, cfg.Broker.Port)
}

// newClientOptions builds paho options: clean session, retrying
// auto-reconnect within the configured delays, and a retained will that
// marks the monitor offline on the system status topic.
func newClientOptions(cfg config.MQTTConfig, topics Topics) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions().
		AddBroker(brokerURL(cfg)).
		SetClientID(cfg.Broker.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(time.Duration(cfg.Reconnect.InitialDelay) * time.Second).
		SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second).
		SetConnectTimeout(connectTimeout).
		SetKeepAlive(keepAlive)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}
	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	will := Presence{
		Status:    PresenceOffline,
		ClientID:  cfg.Broker.ClientID,
		Reason:    ReasonConnectionLost,
		Timestamp: time.Now().UTC(),
	}
	opts.SetBinaryWill(topics.SystemStatus(), will.Encode(), willQoS, true)

	return opts
}
