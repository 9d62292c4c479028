package config

import (
	"fmt"
	"strings"

	"github.com/lluppes/pikeypad/internal/gpio"
	"github.com/lluppes/pikeypad/internal/keypad"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate checks the configuration and reports every problem found.
func (c *Config) Validate() error {
	var errs ValidationErrors
	add := func(field, format string, v ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, v...)})
	}

	known := false
	for _, d := range gpio.Drivers() {
		if c.GPIO.Driver == d {
			known = true
		}
	}
	if !known {
		add("gpio.driver", "unknown driver %q (want one of %s)", c.GPIO.Driver, strings.Join(gpio.Drivers(), ", "))
	}
	if _, err := keypad.NewPinAssignment(c.GPIO.Pins); err != nil {
		add("gpio.pins", "%s", strings.TrimPrefix(err.Error(), "keypad: configuration: "))
	}
	for _, p := range c.GPIO.Pins {
		if p < 0 {
			add("gpio.pins", "negative line number %d", p)
		}
	}

	if c.Scan.Tick <= 0 {
		add("scan.tick", "must be positive")
	}
	if c.Scan.Hold <= 0 {
		add("scan.hold", "must be positive")
	}
	if c.Scan.Idle <= 0 {
		add("scan.idle", "must be positive")
	}

	if c.MQTT.Heartbeat < 0 {
		add("mqtt.heartbeat", "must not be negative")
	}
	if c.MQTT.BufferSize < 0 {
		add("mqtt.buffer_size", "must not be negative")
	}
	if c.MQTT.Broker != "" && !strings.Contains(c.MQTT.Broker, "://") {
		add("mqtt.broker", "%q is not a URL such as tcp://host:1883", c.MQTT.Broker)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
