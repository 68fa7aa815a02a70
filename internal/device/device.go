// Package device loads IR/RF device capability definitions from code files.
// A code file describes everything the daemon knows about a fixture model:
// ordered brightness and color temperature scales plus the encoded payload
// for every discrete command the remote supports.
package device

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Command names used in device code files. The fixture is stateless; these
// are the only signals it understands.
const (
	CmdPowerOn            = "on"
	CmdPowerOff           = "off"
	CmdBrightnessIncrease = "brighten"
	CmdBrightnessDecrease = "dim"
	CmdColorTempColder    = "colder"
	CmdColorTempWarmer    = "warmer"
	CmdNightlight         = "night"
)

// Capabilities is the immutable capability set of a fixture model.
// Loaded once at setup and shared by reference, read-only thereafter.
type Capabilities struct {
	Manufacturer    string            `json:"manufacturer"`
	SupportedModels []string          `json:"supportedModels"`
	Controller      string            `json:"supportedController"`
	Encoding        string            `json:"commandsEncoding"`
	Brightness      []int             `json:"brightness"`
	ColorTemp       []int             `json:"colorTemperature"`
	Commands        map[string]string `json:"commands"`
}

// Load reads the capability definition for a device code from codesDir.
// Failure to resolve the file is a fatal setup error for the fixture.
func Load(codesDir string, deviceCode int) (*Capabilities, error) {
	path := filepath.Join(codesDir, fmt.Sprintf("%d.json", deviceCode))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read device code file %s: %w", path, err)
	}

	var caps Capabilities
	if err := json.Unmarshal(data, &caps); err != nil {
		return nil, fmt.Errorf("failed to parse device code file %s: %w", path, err)
	}

	if len(caps.Commands) == 0 {
		return nil, fmt.Errorf("device code file %s: no commands defined", path)
	}

	return &caps, nil
}

// HasCommand reports whether the command name has an encoded payload.
func (c *Capabilities) HasCommand(name string) bool {
	_, ok := c.Commands[name]
	return ok
}

// SupportsColorTemp reports whether both color temperature step commands exist.
func (c *Capabilities) SupportsColorTemp() bool {
	return c.HasCommand(CmdColorTempWarmer) && c.HasCommand(CmdColorTempColder)
}

// SupportsBrightness reports whether the fixture can change brightness,
// either through step commands or a dedicated nightlight command.
func (c *Capabilities) SupportsBrightness() bool {
	if c.HasCommand(CmdNightlight) {
		return true
	}
	return c.HasCommand(CmdBrightnessIncrease) && c.HasCommand(CmdBrightnessDecrease)
}

// SupportsNightlight reports whether a dedicated nightlight command exists.
func (c *Capabilities) SupportsNightlight() bool {
	return c.HasCommand(CmdNightlight)
}

// SupportsOnOff reports whether both power commands exist.
func (c *Capabilities) SupportsOnOff() bool {
	return c.HasCommand(CmdPowerOn) && c.HasCommand(CmdPowerOff)
}

// MinColorTemp returns the coldest supported color temperature.
// The scale is ascending by convention: first element coldest, last warmest.
func (c *Capabilities) MinColorTemp() (int, bool) {
	if len(c.ColorTemp) == 0 {
		return 0, false
	}
	return c.ColorTemp[0], true
}

// MaxColorTemp returns the warmest supported color temperature.
func (c *Capabilities) MaxColorTemp() (int, bool) {
	if len(c.ColorTemp) == 0 {
		return 0, false
	}
	return c.ColorTemp[len(c.ColorTemp)-1], true
}
