package fixture

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/irlightd/internal/clock"
	"github.com/dokzlo13/irlightd/internal/device"
	"github.com/dokzlo13/irlightd/internal/transport"
)

// Options configures a fixture controller.
type Options struct {
	ID           string
	Name         string
	DeviceCode   int
	Caps         *device.Capabilities
	Transport    transport.Transport
	Delay        time.Duration // Spacing between repeats within a burst
	Clock        clock.Scheduler
	Publisher    StatePublisher
	Recorder     CommandRecorder
	Sensor       SensorSource  // nil disables both sensor reconciliation paths
	ConfirmDelay time.Duration // Sensor confirmation delay after on/off commands
	RestorePower bool          // Trust persisted power state in SeedFrom
}

var _ FixtureController = (*Controller)(nil)

// Controller owns the assumed state of one fixture and drives it through
// discrete step commands.
type Controller struct {
	id         string
	name       string
	deviceCode int
	caps       *device.Capabilities
	disp       *dispatcher
	clock      clock.Scheduler
	pub        StatePublisher
	sensor     SensorSource

	confirmDelay time.Duration
	restorePower bool

	hasBrightness bool
	hasColorTemp  bool

	// mu guards all assumed state fields below. Sensor events, confirmation
	// timer callbacks and command bursts run on different goroutines; the
	// mutex is what keeps their mutations coherent.
	mu            sync.Mutex
	power         Power
	onByRemote    bool
	brightnessVal int
	brightnessIdx int
	colorTempVal  int
	colorTempIdx  int

	// At most one confirmation timer is outstanding. Scheduling a new one
	// bumps the generation; a fired callback with a stale generation is a
	// cancelled timer that lost the race and must do nothing.
	pendingGen    int
	pendingExpect Power
	pendingCancel clock.CancelFunc

	log zerolog.Logger
}

// New creates a controller with capability defaults: power on, brightness
// 100, color temperature at the warm end of the scale.
func New(opts Options) *Controller {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.ConfirmDelay == 0 {
		opts.ConfirmDelay = 10 * time.Second
	}

	c := &Controller{
		id:            opts.ID,
		name:          opts.Name,
		deviceCode:    opts.DeviceCode,
		caps:          opts.Caps,
		clock:         opts.Clock,
		pub:           opts.Publisher,
		sensor:        opts.Sensor,
		confirmDelay:  opts.ConfirmDelay,
		restorePower:  opts.RestorePower,
		power:         PowerOn,
		brightnessIdx: -1,
		colorTempIdx:  -1,
		log:           log.With().Str("fixture", opts.ID).Logger(),
	}

	if opts.Caps.SupportsColorTemp() {
		if v, ok := opts.Caps.MaxColorTemp(); ok {
			c.hasColorTemp = true
			c.colorTempVal = v
			c.colorTempIdx = len(opts.Caps.ColorTemp) - 1
		}
	}

	if opts.Caps.SupportsBrightness() {
		c.hasBrightness = true
		c.brightnessVal = 100
		if len(opts.Caps.Brightness) > 0 {
			c.brightnessIdx = ClosestMatch(100, opts.Caps.Brightness)
		}
	}

	c.disp = &dispatcher{
		fixtureID: opts.ID,
		tx:        opts.Transport,
		commands:  opts.Caps.Commands,
		delay:     opts.Delay,
		recorder:  opts.Recorder,
		onAcquire: c.clearRemoteAttribution,
		log:       c.log,
	}

	return c
}

// ID returns the fixture identifier.
func (c *Controller) ID() string { return c.id }

// Name returns the fixture display name.
func (c *Controller) Name() string { return c.name }

// IsOn reports whether the fixture is believed to be on, either because the
// hub turned it on or because the sensor attributed it to the remote.
func (c *Controller) IsOn() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.power == PowerOn || c.onByRemote
}

// TurnOn drives the fixture toward the requested targets.
func (c *Controller) TurnOn(ctx context.Context, req Request) {
	did := false

	c.mu.Lock()
	needPower := c.power != PowerOn && !c.onByRemote
	if needPower {
		c.power = PowerOn
	}
	c.mu.Unlock()

	if needPower {
		did = true
		c.disp.send(ctx, device.CmdPowerOn, 1)
		c.scheduleConfirmation(PowerOn)
	}

	if req.ColorTemp != nil && c.hasColorTemp && len(c.caps.ColorTemp) > 0 {
		if c.stepColorTemp(ctx, *req.ColorTemp) {
			did = true
		}
	}

	if req.Brightness != nil && c.hasBrightness {
		// A nightlight command, when fitted, handles brightness 1 directly
		// and bypasses the step algorithm entirely.
		if *req.Brightness == 1 && c.caps.SupportsNightlight() {
			c.mu.Lock()
			c.brightnessVal = 1
			if len(c.caps.Brightness) > 0 {
				c.brightnessIdx = ClosestMatch(1, c.caps.Brightness)
			}
			c.power = PowerOn
			c.mu.Unlock()

			did = true
			c.disp.send(ctx, device.CmdNightlight, 1)
		} else if len(c.caps.Brightness) > 0 {
			if c.stepBrightness(ctx, *req.Brightness) {
				did = true
			}
		}
	}

	// If nothing above fired, re-issue power on even though we think the
	// light is already on: a physical remote may have turned it off behind
	// our back. Skip this when the sensor attributed the light to the
	// remote, since on and off may share one remote code and an extra
	// emission would actually toggle it off.
	if !did {
		c.mu.Lock()
		byRemote := c.onByRemote
		if !byRemote {
			c.power = PowerOn
		}
		c.mu.Unlock()

		if !byRemote {
			c.disp.send(ctx, device.CmdPowerOn, 1)
			c.scheduleConfirmation(PowerOn)
		}
	}

	c.publish()
}

// TurnOff unconditionally powers the fixture off.
func (c *Controller) TurnOff(ctx context.Context) {
	c.mu.Lock()
	c.power = PowerOff
	c.mu.Unlock()

	c.disp.send(ctx, device.CmdPowerOff, 1)
	c.scheduleConfirmation(PowerOff)
	c.publish()
}

// Toggle delegates to TurnOn or TurnOff based on the current belief.
func (c *Controller) Toggle(ctx context.Context) {
	if c.IsOn() {
		c.TurnOff(ctx)
	} else {
		c.TurnOn(ctx, Request{})
	}
}

// stepColorTemp moves the tracked color temperature toward target.
// The scale is ascending with the coldest value first, so an increasing
// step maps to the warmer command.
func (c *Controller) stepColorTemp(ctx context.Context, target int) bool {
	c.mu.Lock()
	cur := c.colorTempIdx
	curVal := c.colorTempVal
	c.mu.Unlock()

	dir, steps, newIdx := ComputeSteps(cur, target, c.caps.ColorTemp)
	if steps == 0 {
		return false
	}

	cmd := device.CmdColorTempColder
	if dir == StepIncrease {
		cmd = device.CmdColorTempWarmer
	}

	c.log.Debug().
		Int("from", curVal).Int("from_step", cur).
		Int("target", target).Int("to_step", newIdx).
		Msg("Changing color temperature")

	c.mu.Lock()
	c.colorTempIdx = newIdx
	c.colorTempVal = c.caps.ColorTemp[newIdx]
	c.mu.Unlock()

	c.disp.send(ctx, cmd, steps)
	return true
}

// stepBrightness moves the tracked brightness toward target.
func (c *Controller) stepBrightness(ctx context.Context, target int) bool {
	c.mu.Lock()
	cur := c.brightnessIdx
	curVal := c.brightnessVal
	c.mu.Unlock()

	dir, steps, newIdx := ComputeSteps(cur, target, c.caps.Brightness)
	if steps == 0 {
		return false
	}

	cmd := device.CmdBrightnessDecrease
	if dir == StepIncrease {
		cmd = device.CmdBrightnessIncrease
	}

	c.log.Debug().
		Int("from", curVal).Int("from_step", cur).
		Int("target", target).Int("to_step", newIdx).
		Msg("Changing brightness")

	c.mu.Lock()
	c.brightnessIdx = newIdx
	c.brightnessVal = c.caps.Brightness[newIdx]
	c.mu.Unlock()

	c.disp.send(ctx, cmd, steps)
	return true
}

// clearRemoteAttribution runs under the dispatcher lock before every burst.
func (c *Controller) clearRemoteAttribution() {
	c.mu.Lock()
	c.onByRemote = false
	c.mu.Unlock()
}

// HandleSensorEvent applies an instantaneous power sensor transition.
//
// A sensor reading of on while the hub assumed off means an actor other than
// the hub turned the fixture on. A reading of off is authoritative and also
// clears the remote attribution.
func (c *Controller) HandleSensorEvent(oldState, newState string) {
	if !validPowerString(newState) {
		return
	}
	if oldState == newState {
		return
	}

	c.mu.Lock()
	switch Power(newState) {
	case PowerOn:
		if c.power == PowerOff {
			c.power = PowerOn
			c.onByRemote = true
			c.log.Info().Msg("Power sensor reports on, attributing to remote")
		}
	case PowerOff:
		c.onByRemote = false
		if c.power == PowerOn {
			c.power = PowerOff
			c.log.Info().Msg("Power sensor reports off")
		}
	}
	c.mu.Unlock()

	c.publish()
}

// scheduleConfirmation arms a debounced re-check of the sensor after a
// hub-issued on/off command. IR transmission has no acknowledgment; a sensor
// still disagreeing after the grace period is the only sign the command
// never arrived. A new confirmation always replaces any outstanding one.
func (c *Controller) scheduleConfirmation(expected Power) {
	if c.sensor == nil {
		return
	}

	c.mu.Lock()
	if c.pendingCancel != nil {
		c.pendingCancel()
		c.pendingCancel = nil
		c.pendingExpect = ""
	}
	c.pendingGen++
	gen := c.pendingGen
	c.pendingExpect = expected
	c.pendingCancel = c.clock.After(c.confirmDelay, func() { c.confirmPower(gen) })
	c.mu.Unlock()

	c.log.Debug().Str("expected", string(expected)).Msg("Scheduled power sensor check")
}

func (c *Controller) confirmPower(gen int) {
	c.mu.Lock()
	if gen != c.pendingGen {
		// Replaced or cancelled after this timer already fired.
		c.mu.Unlock()
		return
	}
	c.pendingCancel = nil
	expected := c.pendingExpect
	c.pendingExpect = ""
	c.mu.Unlock()

	current := c.sensor.Current()
	c.log.Debug().
		Str("expected", string(expected)).
		Str("current", current).
		Msg("Executing power sensor check")

	if !validPowerString(string(expected)) || !validPowerString(current) || string(expected) == current {
		return
	}

	c.mu.Lock()
	c.power = Power(current)
	c.mu.Unlock()

	c.log.Warn().Str("power", current).Msg("Power sensor check failed, reverted assumed state")
	c.publish()
}

// SeedFrom overwrites capability defaults with a persisted snapshot. It runs
// exactly once, before the fixture goes live, and never interleaves with the
// runtime mutation paths.
func (c *Controller) SeedFrom(snap Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if validPowerString(snap.Power) && c.restorePower {
		c.power = Power(snap.Power)
	}
	if snap.Brightness != nil && c.hasBrightness {
		c.brightnessVal = *snap.Brightness
		if len(c.caps.Brightness) > 0 {
			c.brightnessIdx = ClosestMatch(c.brightnessVal, c.caps.Brightness)
		}
	}
	if snap.ColorTemp != nil && c.hasColorTemp {
		c.colorTempVal = *snap.ColorTemp
		c.colorTempIdx = ClosestMatch(c.colorTempVal, c.caps.ColorTemp)
	}
}

// State returns the current externally visible snapshot.
func (c *Controller) State() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		Power:      string(c.power),
		IsOn:       c.power == PowerOn || c.onByRemote,
		OnByRemote: c.onByRemote,
	}
	if c.hasBrightness {
		v := c.brightnessVal
		snap.Brightness = &v
	}
	if c.hasColorTemp {
		v := c.colorTempVal
		snap.ColorTemp = &v
	}
	return snap
}

// Attributes returns static fixture metadata for display.
func (c *Controller) Attributes() map[string]any {
	c.mu.Lock()
	onByRemote := c.onByRemote
	c.mu.Unlock()

	return map[string]any{
		"device_code":          c.deviceCode,
		"manufacturer":         c.caps.Manufacturer,
		"supported_models":     c.caps.SupportedModels,
		"supported_controller": c.caps.Controller,
		"commands_encoding":    c.caps.Encoding,
		"on_by_remote":         onByRemote,
	}
}

func (c *Controller) publish() {
	if c.pub == nil {
		return
	}
	c.pub.PublishState(c.id, c.State())
}
