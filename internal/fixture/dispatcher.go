package fixture

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/dokzlo13/irlightd/internal/transport"
)

// dispatcher serializes outgoing command bursts for one fixture.
//
// The exclusive lock is held for the entire burst, not per transmission.
// A "move N steps" operation is only meaningful as a unit; interleaving two
// bursts would scramble both tracked positions.
type dispatcher struct {
	fixtureID string
	tx        transport.Transport
	commands  map[string]string
	delay     time.Duration
	recorder  CommandRecorder

	// onAcquire runs after the lock is taken, before the first transmission.
	// The controller uses it to clear remote-control attribution: any
	// hub-issued command means the hub is the most recent actor.
	onAcquire func()

	mu  sync.Mutex
	log zerolog.Logger
}

// send transmits the encoded payload for name exactly count times in
// sequence. Unknown commands and transport failures are logged, never
// returned: a failed repeat must not abort the rest of the burst and
// nothing may propagate out of the send path.
func (d *dispatcher) send(ctx context.Context, name string, count int) {
	payload, ok := d.commands[name]
	if !ok {
		d.log.Error().Str("command", name).Msg("Unknown command")
		return
	}

	d.log.Debug().Str("command", name).Int("count", count).Msg("Sending remote command")

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.onAcquire != nil {
		d.onAcquire()
	}

	sent, failed := 0, 0
	for i := 0; i < count; i++ {
		// Many IR protocols need spacing between repeats.
		if i > 0 && d.delay > 0 {
			select {
			case <-ctx.Done():
				d.log.Warn().Str("command", name).Int("sent", sent).Msg("Burst interrupted by shutdown")
				d.record(name, count, sent, failed)
				return
			case <-time.After(d.delay):
			}
		}

		if err := d.tx.Send(ctx, payload); err != nil {
			failed++
			d.log.Error().Err(err).Str("command", name).Int("attempt", i+1).Msg("Transmission failed")
			continue
		}
		sent++
	}

	d.record(name, count, sent, failed)
}

func (d *dispatcher) record(name string, count, sent, failed int) {
	if d.recorder != nil {
		d.recorder.Record(d.fixtureID, name, count, sent, failed)
	}
}
