// Package transport delivers encoded IR/RF payloads to a blaster bridge.
// Transmission is fire-and-forget: a successful send only means the bridge
// accepted the payload, not that the fixture received the signal.
package transport

import (
	"context"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/dokzlo13/irlightd/internal/config"
)

const defaultPublishTimeout = 10 * time.Second

// Transport sends a single encoded payload to the blaster.
type Transport interface {
	Send(ctx context.Context, payload string) error
	Close()
}

// New creates a transport from fixture configuration. The shared MQTT client
// may be nil when no MQTT transport is configured.
func New(cfg config.TransportConfig, client mqtt.Client, minSendInterval time.Duration) (Transport, error) {
	switch cfg.Type {
	case "mqtt":
		if client == nil {
			return nil, fmt.Errorf("mqtt transport requires a broker connection")
		}
		return NewMQTT(client, cfg.Topic, cfg.QoS, minSendInterval), nil
	case "http":
		return NewHTTP(cfg.URL, cfg.Timeout.Duration(), minSendInterval), nil
	default:
		return nil, fmt.Errorf("unknown transport type %q", cfg.Type)
	}
}
