// Package fixture tracks assumed state for stateless IR/RF light fixtures
// and translates continuous targets into discrete step command bursts.
//
// The fixture has no feedback channel. Everything here is the hub's best
// local estimate, corrected opportunistically by resync bursts and by an
// optional external power sensor.
package fixture

import "context"

// Power is the hub's belief about fixture power.
type Power string

const (
	PowerOn  Power = "on"
	PowerOff Power = "off"
)

// validPowerString reports whether s is a well-defined on/off value.
// Sensor readings use the same strings; anything else is treated as unknown
// and ignored by both reconciliation paths.
func validPowerString(s string) bool {
	return s == string(PowerOn) || s == string(PowerOff)
}

// Request carries optional continuous targets for a turn-on operation.
type Request struct {
	Brightness *int `json:"brightness,omitempty"`
	ColorTemp  *int `json:"color_temp,omitempty"`
}

// Snapshot is the externally visible view of assumed state. It is published
// to observers on every mutation and persisted across restarts.
type Snapshot struct {
	Power      string `json:"power"`
	IsOn       bool   `json:"is_on"`
	Brightness *int   `json:"brightness,omitempty"`
	ColorTemp  *int   `json:"color_temp,omitempty"`
	OnByRemote bool   `json:"on_by_remote"`
}

// StatePublisher receives the current snapshot after every state mutation.
type StatePublisher interface {
	PublishState(id string, snap Snapshot)
}

// SensorSource exposes the last observed power sensor reading.
// Returns "on", "off" or an unknown value when the sensor is unavailable.
type SensorSource interface {
	Current() string
}

// CommandRecorder records dispatched command bursts for auditing.
type CommandRecorder interface {
	Record(fixtureID, command string, count, sent, failed int)
}

// FixtureController is the surface control layers program against.
type FixtureController interface {
	TurnOn(ctx context.Context, req Request)
	TurnOff(ctx context.Context)
	Toggle(ctx context.Context)
	State() Snapshot
	Attributes() map[string]any
}
