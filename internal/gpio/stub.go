//go:build !linux

package gpio

// CdevController is not available on non-Linux platforms.
type CdevController struct{}

// NewCdevController returns ErrUnsupported on non-Linux platforms.
func NewCdevController(string) (*CdevController, error) {
	return nil, ErrUnsupported
}

// Open is not implemented on non-Linux platforms.
func (c *CdevController) Open(int) (Line, error) { return nil, ErrUnsupported }

// Close is not implemented on non-Linux platforms.
func (c *CdevController) Close() error { return nil }

// RpioController is not available on non-Linux platforms.
type RpioController struct{}

// NewRpioController returns ErrUnsupported on non-Linux platforms.
func NewRpioController() (*RpioController, error) {
	return nil, ErrUnsupported
}

// Open is not implemented on non-Linux platforms.
func (c *RpioController) Open(int) (Line, error) { return nil, ErrUnsupported }

// Close is not implemented on non-Linux platforms.
func (c *RpioController) Close() error { return nil }

// PeriphController is not available on non-Linux platforms.
type PeriphController struct{}

// NewPeriphController returns ErrUnsupported on non-Linux platforms.
func NewPeriphController() (*PeriphController, error) {
	return nil, ErrUnsupported
}

// Open is not implemented on non-Linux platforms.
func (c *PeriphController) Open(int) (Line, error) { return nil, ErrUnsupported }

// Close is not implemented on non-Linux platforms.
func (c *PeriphController) Close() error { return nil }
