// Package config loads daemon configuration from a YAML or JSON file with
// environment overrides.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/sweeney/dishwasher-scheduler/internal/logic"
)

// EnvPrefix prefixes environment overrides. Nested keys use a double
// underscore, e.g. DW_CYCLE__MIN_POWER=8.
const EnvPrefix = "DW_"

// PlaceholderAPIKey is the value shipped in the example config.
const PlaceholderAPIKey = "YOUR-API-KEY-HERE"

type Config struct {
	Cycle     CycleConfig   `json:"cycle"`
	Tick      time.Duration `json:"tick"`
	Heartbeat time.Duration `json:"heartbeat"`
	MQTT      MQTTConfig    `json:"mqtt"`
	Shelly    ShellyConfig  `json:"shelly"`
	Tibber    TibberConfig  `json:"tibber"`
	HTTP      HTTPConfig    `json:"http"`
	Button    ButtonConfig  `json:"button"`
	Log       LogConfig     `json:"log"`
}

// CycleConfig holds the scheduling parameters of the load.
type CycleConfig struct {
	IdleTimeout  time.Duration `json:"idle_timeout"`
	StartOffset  time.Duration `json:"start_offset"`
	MinPower     float64       `json:"min_power"`
	FallbackHour int           `json:"fallback_hour"`
}

// Logic converts the section into the scheduling core's config.
func (c CycleConfig) Logic() logic.Config {
	return logic.Config{
		IdleTimeout:  c.IdleTimeout,
		StartOffset:  c.StartOffset,
		MinPower:     c.MinPower,
		FallbackHour: c.FallbackHour,
	}
}

// MQTTConfig defines the broker connection shared by the relay binding and
// the event publisher.
type MQTTConfig struct {
	Broker   string `json:"broker"`
	ClientID string `json:"client_id"`
	Username string `json:"username"`
	Password string `json:"password"`
	// Topic is the base topic for published cycle and system events.
	Topic string `json:"topic"`
	// BufferSize bounds how many events are kept while disconnected.
	BufferSize int `json:"buffer_size"`
}

// ShellyConfig addresses the Shelly Gen2 relay over MQTT.
type ShellyConfig struct {
	// Prefix is the device's MQTT topic prefix, usually its device id.
	Prefix     string        `json:"prefix"`
	SwitchID   int           `json:"switch_id"`
	RPCTimeout time.Duration `json:"rpc_timeout"`
	// SelfWindow is how long after a command a matching change counts as ours.
	SelfWindow time.Duration `json:"self_window"`
	// SelfSources lists Shelly "source" values that always count as ours.
	SelfSources []string `json:"self_sources"`
}

// TibberConfig configures the price source.
type TibberConfig struct {
	APIKey  string        `json:"api_key"`
	URL     string        `json:"url"`
	Timeout time.Duration `json:"timeout"`
}

// Configured reports whether a real API key is set.
func (c TibberConfig) Configured() bool {
	key := strings.TrimSpace(c.APIKey)
	return key != "" && key != PlaceholderAPIKey
}

// HTTPConfig configures the status server. An empty Addr disables it.
type HTTPConfig struct {
	Addr string `json:"addr"`
}

// ButtonConfig configures the optional manual start button.
type ButtonConfig struct {
	Enabled bool   `json:"enabled"`
	Chip    string `json:"chip"`
	Pin     int    `json:"pin"`
}

type LogConfig struct {
	Level string `json:"level"`
}

// Default returns the configuration used for keys missing from the file.
func Default() Config {
	return Config{
		Cycle: CycleConfig{
			IdleTimeout:  30 * time.Minute,
			StartOffset:  -25 * time.Minute,
			MinPower:     6,
			FallbackHour: 3,
		},
		Tick:      time.Second,
		Heartbeat: 15 * time.Minute,
		MQTT: MQTTConfig{
			Broker:     "tcp://localhost:1883",
			ClientID:   "dishwasher-scheduler",
			Topic:      "home/dishwasher/scheduler",
			BufferSize: 100,
		},
		Shelly: ShellyConfig{
			Prefix:     "shellyplus1pm",
			RPCTimeout: 5 * time.Second,
			SelfWindow: 10 * time.Second,
		},
		Tibber: TibberConfig{
			URL:     "https://api.tibber.com/v1-beta/gql",
			Timeout: 15 * time.Second,
		},
		HTTP:   HTTPConfig{Addr: ":8080"},
		Button: ButtonConfig{Chip: "gpiochip0", Pin: 17},
		Log:    LogConfig{Level: "info"},
	}
}

// Load reads the file at path (if non-empty) over the defaults, applies
// DW_ environment overrides and validates the result.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if path != "" {
		var parser koanf.Parser
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			parser = yaml.Parser()
		case ".json":
			parser = json.Parser()
		default:
			return nil, fmt.Errorf("unsupported config format: %s", filepath.Ext(path))
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), strings.ToLower(EnvPrefix))
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults fills values that cannot be pre-seeded before decoding.
func (c *Config) SetDefaults() {
	if len(c.Shelly.SelfSources) == 0 {
		c.Shelly.SelfSources = []string{"loopback"}
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "dishwasher-scheduler"
	}
}

// Validate checks ranges and mandatory fields.
func (c Config) Validate() error {
	if c.Cycle.FallbackHour < 0 || c.Cycle.FallbackHour > 23 {
		return fmt.Errorf("cycle.fallback_hour must be 0-23, got %d", c.Cycle.FallbackHour)
	}
	if c.Cycle.IdleTimeout <= 0 {
		return fmt.Errorf("cycle.idle_timeout must be positive")
	}
	if c.Cycle.MinPower < 0 {
		return fmt.Errorf("cycle.min_power must not be negative")
	}
	if c.Tick <= 0 {
		return fmt.Errorf("tick must be positive")
	}
	if c.Tick >= c.Cycle.IdleTimeout {
		return fmt.Errorf("tick (%v) must be shorter than cycle.idle_timeout (%v)", c.Tick, c.Cycle.IdleTimeout)
	}
	if c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required")
	}
	if c.Shelly.Prefix == "" {
		return fmt.Errorf("shelly.prefix is required")
	}
	if c.Shelly.SwitchID < 0 {
		return fmt.Errorf("shelly.switch_id must not be negative")
	}
	if c.Shelly.RPCTimeout <= 0 {
		return fmt.Errorf("shelly.rpc_timeout must be positive")
	}
	if c.Button.Enabled && c.Button.Pin < 0 {
		return fmt.Errorf("button.pin must not be negative")
	}
	return nil
}
