package gpio

import (
	"errors"
	"testing"
)

func TestLevelString(t *testing.T) {
	if Low.String() != "Low" {
		t.Errorf("Low: got %q", Low.String())
	}
	if High.String() != "High" {
		t.Errorf("High: got %q", High.String())
	}
}

func TestModeString(t *testing.T) {
	tests := []struct {
		mode Mode
		want string
	}{
		{OutputLow, "output-low"},
		{InputPullUp, "input-pull-up"},
		{InputPullDown, "input-pull-down"},
		{Mode(42), "mode(42)"},
	}
	for _, tt := range tests {
		if got := tt.mode.String(); got != tt.want {
			t.Errorf("Mode(%d): got %q, want %q", int(tt.mode), got, tt.want)
		}
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	c, err := Open("bitbang", "")
	if !errors.Is(err, ErrUnknownDriver) {
		t.Errorf("expected ErrUnknownDriver, got %v", err)
	}
	if c != nil {
		t.Errorf("expected nil controller, got %v", c)
	}
}

func TestDrivers(t *testing.T) {
	got := Drivers()
	if len(got) != 3 {
		t.Fatalf("expected 3 drivers, got %v", got)
	}
	if got[0] != DriverCdev {
		t.Errorf("expected cdev first (default), got %q", got[0])
	}
}

// FakeController must satisfy Controller.
var _ Controller = (*FakeController)(nil)
var _ Line = (*FakeLine)(nil)
