// Package keypad decodes a 4x4 matrix keypad wired to eight digital lines.
// It contains the scanning state machine and the debounce gate; line access
// goes through gpio.Controller and time is injectable.
package keypad

import (
	"fmt"
	"time"
)

// Grid dimensions.
const (
	Rows     = 4
	Cols     = 4
	PinCount = Rows + Cols
)

// Defaults for Options.
const (
	DefaultTickInterval = 20 * time.Millisecond
	DefaultHoldWindow   = 25 * time.Millisecond
	DefaultIdleWindow   = 15 * time.Second
	DefaultSource       = "keypad"
)

// DefaultPins is the reference wiring: columns 16,20,21,5 and rows 6,13,19,26.
var DefaultPins = []int{16, 20, 21, 5, 6, 13, 19, 26}

// PinAssignment holds the eight line ids. Positions 0-3 are columns,
// positions 4-7 are rows.
type PinAssignment [PinCount]int

// NewPinAssignment validates ids: exactly eight, all distinct.
func NewPinAssignment(ids []int) (PinAssignment, error) {
	var p PinAssignment
	if len(ids) != PinCount {
		return p, &ConfigurationError{
			Reason: fmt.Sprintf("need %d line ids, got %d", PinCount, len(ids)),
		}
	}
	seen := make(map[int]bool, PinCount)
	for i, id := range ids {
		if seen[id] {
			return p, &ConfigurationError{
				Reason: fmt.Sprintf("line %d listed more than once", id),
			}
		}
		seen[id] = true
		p[i] = id
	}
	return p, nil
}

// Columns returns the four column line ids.
func (p PinAssignment) Columns() []int {
	return append([]int(nil), p[:Cols]...)
}

// RowLines returns the four row line ids.
func (p PinAssignment) RowLines() []int {
	return append([]int(nil), p[Cols:]...)
}

// ColumnIndex returns the column index of line id, or -1.
func (p PinAssignment) ColumnIndex(id int) int {
	for i := 0; i < Cols; i++ {
		if p[i] == id {
			return i
		}
	}
	return -1
}

// RowIndex returns the row index of line id, or -1.
func (p PinAssignment) RowIndex(id int) int {
	for i := 0; i < Rows; i++ {
		if p[Cols+i] == id {
			return i
		}
	}
	return -1
}

// KeyEvent is handed to observers once per accepted press.
type KeyEvent struct {
	Source string // scanner name, Options.Source
	Key    string // one of "0".."9", "A".."D", "*", "#"
	Row    int
	Col    int
	Time   time.Time
}

// Handler observes key events. Errors and panics are isolated per handler.
type Handler func(KeyEvent) error

// SetupResult is the outcome of New. Callers must check OK before relying on
// events.
type SetupResult struct {
	OK      bool
	Message string
	Err     error // *ConfigurationError or *SetupError when !OK
}

// Stats counts scanner activity since construction.
type Stats struct {
	Emitted       uint64 // key events delivered to handlers
	Duplicates    uint64 // transitions suppressed by the gate
	Abandoned     uint64 // cycles where no row or column resolved
	ScanErrors    uint64 // cycles that failed with a line error
	HandlerErrors uint64 // handler errors and panics
	IdleClears    uint64 // records reset by Tick
}

// Options configures a Scanner. The zero value gives the reference wiring:
// active-high reads, 25ms hold, 15s idle window, no diagnostics.
type Options struct {
	// Source names the scanner in KeyEvent.Source.
	Source string

	// ActiveLow treats a low read as "pressed". This depends on the pull
	// resistor wiring of the target board.
	ActiveLow bool

	// HoldWindow is how long an accepted level stays recorded before the
	// next tick may clear it.
	HoldWindow time.Duration

	// IdleWindow is how far the clear deadline moves after an idle clear.
	IdleWindow time.Duration

	// Verbose routes diagnostics to Logf.
	Verbose bool
	Logf    func(format string, v ...any)

	// Now defaults to time.Now.
	Now func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Source == "" {
		o.Source = DefaultSource
	}
	if o.HoldWindow <= 0 {
		o.HoldWindow = DefaultHoldWindow
	}
	if o.IdleWindow <= 0 {
		o.IdleWindow = DefaultIdleWindow
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}
