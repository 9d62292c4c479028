// Package config holds the keypad daemon settings and loads them from a
// TOML or YAML file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/lluppes/pikeypad/internal/gpio"
	"github.com/lluppes/pikeypad/internal/keypad"
)

// Config is the complete daemon configuration.
type Config struct {
	GPIO GPIOConfig `toml:"gpio" yaml:"gpio"`
	Scan ScanConfig `toml:"scan" yaml:"scan"`
	MQTT MQTTConfig `toml:"mqtt" yaml:"mqtt"`
	HTTP HTTPConfig `toml:"http" yaml:"http"`
}

// GPIOConfig selects the line driver and wiring.
type GPIOConfig struct {
	Driver    string `toml:"driver" yaml:"driver"`
	Chip      string `toml:"chip" yaml:"chip"`
	Pins      []int  `toml:"pins" yaml:"pins"`
	ActiveLow bool   `toml:"active_low" yaml:"active_low"`
}

// ScanConfig controls the scanner timing.
type ScanConfig struct {
	Source  string        `toml:"source" yaml:"source"`
	Tick    time.Duration `toml:"tick" yaml:"tick"`
	Hold    time.Duration `toml:"hold" yaml:"hold"`
	Idle    time.Duration `toml:"idle" yaml:"idle"`
	Verbose bool          `toml:"verbose" yaml:"verbose"`
}

// MQTTConfig configures event publishing. An empty broker disables it.
type MQTTConfig struct {
	Broker     string        `toml:"broker" yaml:"broker"`
	ClientID   string        `toml:"client_id" yaml:"client_id"`
	Heartbeat  time.Duration `toml:"heartbeat" yaml:"heartbeat"`
	BufferSize int           `toml:"buffer_size" yaml:"buffer_size"`
}

// HTTPConfig configures the status page. An empty address disables it.
type HTTPConfig struct {
	Addr string `toml:"addr" yaml:"addr"`
}

// Default returns the reference configuration.
func Default() *Config {
	return &Config{
		GPIO: GPIOConfig{
			Driver: gpio.DriverCdev,
			Chip:   gpio.DefaultChip,
			Pins:   append([]int(nil), keypad.DefaultPins...),
		},
		Scan: ScanConfig{
			Source: keypad.DefaultSource,
			Tick:   keypad.DefaultTickInterval,
			Hold:   keypad.DefaultHoldWindow,
			Idle:   keypad.DefaultIdleWindow,
		},
		MQTT: MQTTConfig{
			ClientID:   "keypad-monitor",
			Heartbeat:  15 * time.Minute,
			BufferSize: 100,
		},
		HTTP: HTTPConfig{Addr: ":80"},
	}
}

// Load reads path over the defaults. The format follows the extension:
// .toml, .yaml or .yml. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("decode TOML: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("decode YAML: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q", ext)
	}
	return cfg, nil
}

// ParsePins parses a comma-separated list of line numbers, e.g.
// "16,20,21,5,6,13,19,26".
func ParsePins(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	pins := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("invalid pin %q: %w", p, err)
		}
		pins = append(pins, n)
	}
	return pins, nil
}

// FormatPins is the inverse of ParsePins.
func FormatPins(pins []int) string {
	s := make([]string, len(pins))
	for i, p := range pins {
		s[i] = strconv.Itoa(p)
	}
	return strings.Join(s, ",")
}
