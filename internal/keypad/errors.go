package keypad

import "fmt"

// ConfigurationError reports an unusable pin list. Construction stops before
// any line is opened.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "keypad: configuration: " + e.Reason
}

// SetupError reports a line that could not be opened or configured.
type SetupError struct {
	Line int
	Op   string
	Err  error
}

func (e *SetupError) Error() string {
	if e.Line < 0 {
		return fmt.Sprintf("keypad: setup: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("keypad: setup: %s line %d: %v", e.Op, e.Line, e.Err)
}

func (e *SetupError) Unwrap() error { return e.Err }

// ScanCycleError reports a failed scan cycle. The cycle is abandoned and the
// scanner keeps listening.
type ScanCycleError struct {
	Line int // triggering line
	Row  int
	Col  int
	Op   string
	Err  error
}

func (e *ScanCycleError) Error() string {
	return fmt.Sprintf("keypad: scan line %d (row %d, col %d): %s: %v",
		e.Line, e.Row, e.Col, e.Op, e.Err)
}

func (e *ScanCycleError) Unwrap() error { return e.Err }

// LogicError means a lookup was attempted outside the 4x4 grid. Callers only
// pass resolved indices, so this indicates a defect.
type LogicError struct {
	Col int
	Row int
}

func (e *LogicError) Error() string {
	return fmt.Sprintf("keypad: no key at col %d, row %d", e.Col, e.Row)
}
