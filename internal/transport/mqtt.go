package transport

import (
	"context"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"golang.org/x/time/rate"
)

// MQTT publishes payloads to a blaster command topic on a shared broker
// connection. A rate limiter enforces minimum spacing between publishes so
// bursts from multiple fixtures do not flood the blaster.
type MQTT struct {
	client  mqtt.Client
	topic   string
	qos     byte
	limiter *rate.Limiter
}

// NewMQTT creates an MQTT transport with minimum spacing between publishes.
func NewMQTT(client mqtt.Client, topic string, qos byte, minSendInterval time.Duration) *MQTT {
	if minSendInterval <= 0 {
		minSendInterval = 100 * time.Millisecond
	}
	return &MQTT{
		client:  client,
		topic:   topic,
		qos:     qos,
		limiter: rate.NewLimiter(rate.Every(minSendInterval), 1),
	}
}

// Send publishes the payload and waits for broker acknowledgment.
func (t *MQTT) Send(ctx context.Context, payload string) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}

	token := t.client.Publish(t.topic, t.qos, false, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("publish to %s timed out", t.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s failed: %w", t.topic, err)
	}

	return nil
}

// Close is a no-op; the broker connection is shared and owned by the app.
func (t *MQTT) Close() {}
