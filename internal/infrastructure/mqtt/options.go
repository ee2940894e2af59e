package mqtt

import (
	"crypto/tls"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nana4rider/wisun-gateway/internal/infrastructure/config"
)

const (
	// defaultConnectTimeout bounds the initial broker connection.
	defaultConnectTimeout = 10 * time.Second

	// defaultPublishTimeout bounds waiting for a publish or subscribe ack.
	defaultPublishTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the flush window on disconnect, in
	// milliseconds (paho's unit for Disconnect).
	defaultDisconnectQuiesce = 1000

	// defaultKeepAlive is the MQTT keepalive interval.
	defaultKeepAlive = 60 * time.Second

	// maxQoS is the highest valid MQTT QoS level.
	maxQoS = 2

	// tlsMinVersion floors TLS at 1.2 for broker connections.
	tlsMinVersion = tls.VersionTLS12
)

// Availability payloads for the gateway status topic. Plain strings,
// not JSON, so Home Assistant can point availability_topic straight at
// it.
const (
	statusOnline  = "online"
	statusOffline = "offline"
)

// buildClientOptions translates the gateway's MQTT config into paho
// client options: broker URL, credentials, clean session, keepalive,
// and auto-reconnect using the configured backoff bounds.
func buildClientOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	scheme := "tcp"
	if cfg.Broker.TLS {
		scheme = "ssl"
	}
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker.Host, cfg.Broker.Port))

	opts.SetClientID(cfg.Broker.ClientID)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}

	// Clean session: broker-side subscription state is rebuilt by
	// replaySubscriptions on reconnect instead.
	opts.SetCleanSession(true)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(time.Duration(cfg.Reconnect.InitialDelay) * time.Second)
	opts.SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second)

	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetKeepAlive(defaultKeepAlive)

	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{
			MinVersion: tlsMinVersion,
		})
	}

	return opts
}

// configureLWT registers the Last Will: a retained "offline" on the
// gateway status topic, published by the broker if the connection dies
// without a clean Close. Subscribers treat it exactly like the offline
// we publish on shutdown.
func configureLWT(opts *pahomqtt.ClientOptions) {
	opts.SetWill(Topics{}.GatewayStatus(), statusOffline, 1, true)
}
