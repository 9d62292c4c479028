// Package gpio provides digital line access with hardware abstraction.
// The real drivers use the Linux GPIO character device (go-gpiocdev), the
// BCM2835 register map (go-rpio) or periph.io.
// The fake implementation allows testing without hardware.
package gpio

import (
	"errors"
	"fmt"
	"time"
)

// Level is the logical level of a line.
type Level int

const (
	Low Level = iota
	High
)

func (l Level) String() string {
	if l == High {
		return "High"
	}
	return "Low"
}

// Mode is the direction and bias a line is configured with.
type Mode int

const (
	// OutputLow drives the line as an output, initially low.
	OutputLow Mode = iota
	// InputPullUp reads the line with the internal pull-up enabled.
	InputPullUp
	// InputPullDown reads the line with the internal pull-down enabled.
	InputPullDown
)

func (m Mode) String() string {
	switch m {
	case OutputLow:
		return "output-low"
	case InputPullUp:
		return "input-pull-up"
	case InputPullDown:
		return "input-pull-down"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Transition is delivered when a subscribed line changes level.
type Transition struct {
	Line int       // line id (offset / BCM number)
	Time time.Time // when the driver observed the edge
}

// TransitionHandler receives transitions. It is called on a driver goroutine.
type TransitionHandler func(Transition)

// Line is a single opened digital line.
type Line interface {
	// ID returns the line id the line was opened with.
	ID() int

	// SetMode reconfigures direction and bias.
	SetMode(m Mode) error

	// Write sets the output level. The line must be an output.
	Write(v Level) error

	// Read returns the current logical level.
	Read() (Level, error)

	// OnTransition subscribes h to both-edge notifications on the line.
	// Only one handler is kept per line.
	OnTransition(h TransitionHandler) error

	// Close releases the line.
	Close() error
}

// Controller opens lines on a GPIO chip.
type Controller interface {
	// Open requests line id. Opening a line twice returns ErrLineBusy.
	Open(id int) (Line, error)

	// Close releases the controller and any lines still open.
	Close() error
}

var (
	// ErrLineBusy is returned when a line is already held.
	ErrLineBusy = errors.New("gpio: line busy")

	// ErrClosed is returned when using a closed line or controller.
	ErrClosed = errors.New("gpio: closed")

	// ErrUnknownDriver is returned by Open for unrecognised driver names.
	ErrUnknownDriver = errors.New("gpio: unknown driver")

	// ErrUnsupported is returned by real drivers on platforms without GPIO.
	ErrUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")
)

// Driver names accepted by Open.
const (
	DriverCdev   = "cdev"
	DriverRpio   = "rpio"
	DriverPeriph = "periph"
)

// DefaultChip is the character device used by the cdev driver.
const DefaultChip = "gpiochip0"

// Drivers lists the driver names accepted by Open.
func Drivers() []string {
	return []string{DriverCdev, DriverRpio, DriverPeriph}
}

// Open returns a hardware controller for the named driver.
// chip is only used by the cdev driver; empty selects DefaultChip.
func Open(driver, chip string) (Controller, error) {
	var (
		c   Controller
		err error
	)
	// Concrete nil pointers must not leak out as non-nil interfaces.
	switch driver {
	case DriverCdev, "":
		if chip == "" {
			chip = DefaultChip
		}
		var cc *CdevController
		if cc, err = NewCdevController(chip); err == nil {
			c = cc
		}
	case DriverRpio:
		var rc *RpioController
		if rc, err = NewRpioController(); err == nil {
			c = rc
		}
	case DriverPeriph:
		var pc *PeriphController
		if pc, err = NewPeriphController(); err == nil {
			c = pc
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}
