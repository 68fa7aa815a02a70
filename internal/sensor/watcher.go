// Package sensor observes external power sensors over MQTT. A sensor gives
// indirect, possibly delayed confirmation of a fixture's on/off state and is
// the only way to notice changes made with a physical remote.
package sensor

import (
	"fmt"
	"strings"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/irlightd/internal/eventbus"
)

// StateUnknown is reported until the first reading arrives or when the
// payload is not a recognizable on/off value.
const StateUnknown = "unknown"

// Watcher subscribes to one sensor state topic, remembers the last reading
// and emits a bus event per transition.
type Watcher struct {
	fixtureID string
	topic     string
	bus       *eventbus.Bus

	mu      sync.Mutex
	current string
}

// NewWatcher creates a watcher for a fixture's power sensor topic.
func NewWatcher(fixtureID, topic string, bus *eventbus.Bus) *Watcher {
	return &Watcher{
		fixtureID: fixtureID,
		topic:     topic,
		bus:       bus,
		current:   StateUnknown,
	}
}

// Current returns the last observed reading ("on", "off" or unknown).
func (w *Watcher) Current() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Subscribe starts delivering sensor transitions on the event bus.
func (w *Watcher) Subscribe(client mqtt.Client) error {
	token := client.Subscribe(w.topic, 0, w.handleMessage)
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", w.topic, err)
	}

	log.Info().
		Str("fixture", w.fixtureID).
		Str("topic", w.topic).
		Msg("Power sensor watcher subscribed")
	return nil
}

func (w *Watcher) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	state := Normalize(string(msg.Payload()))

	w.mu.Lock()
	old := w.current
	w.current = state
	w.mu.Unlock()

	log.Debug().
		Str("fixture", w.fixtureID).
		Str("old", old).
		Str("new", state).
		Msg("Power sensor reading")

	w.bus.Publish(eventbus.Event{
		Type: eventbus.EventTypeSensor,
		Data: map[string]interface{}{
			"fixture": w.fixtureID,
			"old":     old,
			"new":     state,
		},
	})
}

// Normalize maps common sensor payload spellings onto on/off. Anything else
// (empty, "unavailable", junk) becomes unknown.
func Normalize(payload string) string {
	switch strings.ToLower(strings.TrimSpace(payload)) {
	case "on", "1", "true":
		return "on"
	case "off", "0", "false":
		return "off"
	default:
		return StateUnknown
	}
}
