package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Log             LogConfig         `yaml:"log"`
	Database        DatabaseConfig    `yaml:"database"`
	MQTT            MQTTConfig        `yaml:"mqtt"`
	API             APIConfig         `yaml:"api"`
	Healthcheck     HealthcheckConfig `yaml:"healthcheck"`
	Ledger          LedgerConfig      `yaml:"ledger"`
	EventBus        EventBusConfig    `yaml:"eventbus"`
	Fixtures        []FixtureConfig   `yaml:"fixtures"`
	ShutdownTimeout Duration          `yaml:"shutdown_timeout"` // General shutdown timeout for graceful stops
}

// LogConfig contains logging settings
type LogConfig struct {
	Level   string `yaml:"level"`
	UseJSON bool   `yaml:"json"`
	Colors  bool   `yaml:"colors"`
}

// GetLevel returns the log level with default
func (c *LogConfig) GetLevel() string {
	if c.Level == "" {
		return "info"
	}
	return c.Level
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// MQTTConfig contains the shared MQTT broker connection settings.
// The broker carries both blaster command topics and power sensor state topics.
type MQTTConfig struct {
	Broker          string   `yaml:"broker"`
	ClientID        string   `yaml:"client_id"`
	Username        string   `yaml:"username"`
	Password        string   `yaml:"password"`
	ConnectTimeout  Duration `yaml:"connect_timeout"`
	MinSendInterval Duration `yaml:"min_send_interval"` // Minimum spacing between broker publishes
}

// APIConfig contains control API server settings
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// HealthcheckConfig contains health check server settings
type HealthcheckConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// LedgerConfig contains command ledger settings
type LedgerConfig struct {
	CleanupInterval Duration `yaml:"cleanup_interval"`
	RetentionDays   int      `yaml:"retention_days"`
}

// EventBusConfig contains event bus settings
type EventBusConfig struct {
	Workers   int `yaml:"workers"`    // Number of worker goroutines (default: 4)
	QueueSize int `yaml:"queue_size"` // Event queue size (default: 100)
}

// GetWorkers returns worker count with default
func (c *EventBusConfig) GetWorkers() int {
	if c.Workers <= 0 {
		return 4
	}
	return c.Workers
}

// GetQueueSize returns queue size with default
func (c *EventBusConfig) GetQueueSize() int {
	if c.QueueSize <= 0 {
		return 100
	}
	return c.QueueSize
}

// FixtureConfig describes a single IR/RF controlled light fixture
type FixtureConfig struct {
	ID         string          `yaml:"id"`
	Name       string          `yaml:"name"`
	DeviceCode int             `yaml:"device_code"`
	CodesDir   string          `yaml:"codes_dir"`
	Delay      Duration        `yaml:"delay"` // Spacing between repeated commands in a burst
	Transport  TransportConfig `yaml:"transport"`
	Sensor     *SensorConfig   `yaml:"power_sensor"`
}

// TransportConfig selects and configures the blaster transport for a fixture
type TransportConfig struct {
	Type    string   `yaml:"type"` // "mqtt" or "http"
	Topic   string   `yaml:"topic"`
	QoS     byte     `yaml:"qos"`
	URL     string   `yaml:"url"`
	Timeout Duration `yaml:"timeout"`
}

// SensorConfig describes an optional external power sensor for a fixture.
// The sensor gives indirect, possibly delayed confirmation of on/off state.
type SensorConfig struct {
	Topic        string   `yaml:"topic"`
	Delay        Duration `yaml:"delay"`         // Confirmation check delay after on/off commands
	RestoreState *bool    `yaml:"restore_state"` // Trust persisted power state across restarts (default: true)
}

// GetRestoreState returns the restore flag with default
func (c *SensorConfig) GetRestoreState() bool {
	if c.RestoreState == nil {
		return true
	}
	return *c.RestoreState
}

// Duration is a wrapper around time.Duration for YAML unmarshalling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "./irlightd.sqlite"
	}

	// MQTT defaults
	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = "irlightd"
	}
	if cfg.MQTT.ConnectTimeout == 0 {
		cfg.MQTT.ConnectTimeout = Duration(10 * time.Second)
	}
	if cfg.MQTT.MinSendInterval == 0 {
		cfg.MQTT.MinSendInterval = Duration(100 * time.Millisecond)
	}

	// API defaults
	if cfg.API.Port == 0 {
		cfg.API.Port = 8099
	}
	if cfg.API.Host == "" {
		cfg.API.Host = "0.0.0.0"
	}

	// Healthcheck defaults
	if cfg.Healthcheck.Port == 0 {
		cfg.Healthcheck.Port = 9090
	}
	if cfg.Healthcheck.Host == "" {
		cfg.Healthcheck.Host = "0.0.0.0"
	}

	// Ledger defaults
	if cfg.Ledger.CleanupInterval == 0 {
		cfg.Ledger.CleanupInterval = Duration(24 * time.Hour)
	}
	if cfg.Ledger.RetentionDays == 0 {
		cfg.Ledger.RetentionDays = 30
	}

	// General shutdown timeout
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = Duration(5 * time.Second)
	}

	// Per-fixture defaults
	for i := range cfg.Fixtures {
		f := &cfg.Fixtures[i]
		if f.Name == "" {
			f.Name = f.ID
		}
		if f.CodesDir == "" {
			f.CodesDir = "./codes"
		}
		if f.Delay == 0 {
			f.Delay = Duration(500 * time.Millisecond)
		}
		if f.Transport.Timeout == 0 {
			f.Transport.Timeout = Duration(10 * time.Second)
		}
		if f.Sensor != nil && f.Sensor.Delay == 0 {
			f.Sensor.Delay = Duration(10 * time.Second)
		}
	}
}

func (cfg *Config) validate() error {
	seen := make(map[string]bool)
	for i := range cfg.Fixtures {
		f := &cfg.Fixtures[i]
		if f.ID == "" {
			return fmt.Errorf("fixture %d: id is required", i)
		}
		if seen[f.ID] {
			return fmt.Errorf("fixture %q: duplicate id", f.ID)
		}
		seen[f.ID] = true
		if f.DeviceCode <= 0 {
			return fmt.Errorf("fixture %q: device_code is required", f.ID)
		}
		switch f.Transport.Type {
		case "mqtt":
			if f.Transport.Topic == "" {
				return fmt.Errorf("fixture %q: transport topic is required for mqtt", f.ID)
			}
		case "http":
			if f.Transport.URL == "" {
				return fmt.Errorf("fixture %q: transport url is required for http", f.ID)
			}
		default:
			return fmt.Errorf("fixture %q: unknown transport type %q", f.ID, f.Transport.Type)
		}
		if f.Sensor != nil && f.Sensor.Topic == "" {
			return fmt.Errorf("fixture %q: power_sensor topic is required", f.ID)
		}
	}
	return nil
}

// expandEnvVars expands environment variables in the format ${VAR} or ${VAR:default}
func expandEnvVars(input string) string {
	// Match ${VAR} or ${VAR:default}
	re := regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

	return re.ReplaceAllStringFunc(input, func(match string) string {
		parts := re.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultVal := ""
		if len(parts) >= 3 {
			defaultVal = parts[2]
		}

		if val := os.Getenv(varName); val != "" {
			return val
		}
		return defaultVal
	})
}
