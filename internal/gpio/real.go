//go:build linux

package gpio

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

// CdevController drives lines through the Linux GPIO character device.
type CdevController struct {
	mu     sync.Mutex
	chip   *gpiocdev.Chip
	lines  map[int]*cdevLine
	closed bool
}

// NewCdevController opens the named chip, e.g. "gpiochip0".
func NewCdevController(name string) (*CdevController, error) {
	chip, err := gpiocdev.NewChip(name)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}
	return &CdevController{
		chip:  chip,
		lines: make(map[int]*cdevLine),
	}, nil
}

// Open requests the line as input with pull-down, matching Pi boot defaults.
// The event handler is attached here, since the character device only accepts
// one at request time; edge detection stays off until OnTransition.
func (c *CdevController) Open(id int) (Line, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}
	if _, ok := c.lines[id]; ok {
		return nil, fmt.Errorf("line %d: %w", id, ErrLineBusy)
	}

	l := &cdevLine{ctrl: c, id: id, mode: InputPullDown}
	req, err := c.chip.RequestLine(id,
		gpiocdev.AsInput,
		gpiocdev.WithPullDown,
		gpiocdev.WithEventHandler(l.onEvent))
	if err != nil {
		return nil, fmt.Errorf("request line %d: %w", id, err)
	}

	l.req = req
	c.lines[id] = l
	return l, nil
}

// Close releases every line still open and then the chip.
func (c *CdevController) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	open := make([]*cdevLine, 0, len(c.lines))
	for _, l := range c.lines {
		open = append(open, l)
	}
	c.mu.Unlock()

	var errs []error
	for _, l := range open {
		if err := l.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := c.chip.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close chip: %w", err))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

func (c *CdevController) release(id int) {
	c.mu.Lock()
	delete(c.lines, id)
	c.mu.Unlock()
}

// cdevRequest is the part of *gpiocdev.Line used by cdevLine.
type cdevRequest interface {
	Reconfigure(...gpiocdev.LineConfigOption) error
	SetValue(int) error
	Value() (int, error)
	Close() error
}

type cdevLine struct {
	ctrl *CdevController
	id   int

	mu      sync.Mutex
	req     cdevRequest
	mode    Mode
	handler TransitionHandler
}

func (l *cdevLine) ID() int { return l.id }

func (l *cdevLine) SetMode(m Mode) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.req == nil {
		return ErrClosed
	}
	if err := l.req.Reconfigure(cdevConfig(m, l.handler != nil)...); err != nil {
		return fmt.Errorf("line %d: set %s: %w", l.id, m, err)
	}
	l.mode = m
	return nil
}

func (l *cdevLine) Write(v Level) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.req == nil {
		return ErrClosed
	}
	if err := l.req.SetValue(int(v)); err != nil {
		return fmt.Errorf("line %d: write: %w", l.id, err)
	}
	return nil
}

func (l *cdevLine) Read() (Level, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.req == nil {
		return Low, ErrClosed
	}
	v, err := l.req.Value()
	if err != nil {
		return Low, fmt.Errorf("line %d: read: %w", l.id, err)
	}
	if v != 0 {
		return High, nil
	}
	return Low, nil
}

// OnTransition enables both-edge detection on the existing request and
// routes events to h.
func (l *cdevLine) OnTransition(h TransitionHandler) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.req == nil {
		return ErrClosed
	}
	if err := l.req.Reconfigure(cdevConfig(l.mode, true)...); err != nil {
		return fmt.Errorf("line %d: enable edges: %w", l.id, err)
	}
	l.handler = h
	return nil
}

// onEvent runs on the gpiocdev event goroutine. The handler is called
// without holding l.mu since it may scan this line.
func (l *cdevLine) onEvent(evt gpiocdev.LineEvent) {
	l.mu.Lock()
	h := l.handler
	l.mu.Unlock()

	if h != nil {
		h(Transition{Line: evt.Offset, Time: time.Now()})
	}
}

// Close reconfigures the line to input with pull-down (Pi boot default)
// before releasing it, so attached hardware sees a clean state.
func (l *cdevLine) Close() error {
	l.mu.Lock()
	req := l.req
	l.req = nil
	edges := l.handler != nil
	l.handler = nil
	l.mu.Unlock()

	if req == nil {
		return nil
	}
	defer l.ctrl.release(l.id)

	var errs []error
	if err := req.Reconfigure(cdevConfig(InputPullDown, edges)...); err != nil {
		errs = append(errs, fmt.Errorf("reconfigure line %d: %w", l.id, err))
	}
	if err := req.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close line %d: %w", l.id, err))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// cdevConfig maps a Mode to character device options. Edge detection is
// repeated on reconfigure so a subscribed line keeps delivering events.
func cdevConfig(m Mode, edges bool) []gpiocdev.LineConfigOption {
	var opts []gpiocdev.LineConfigOption
	switch m {
	case OutputLow:
		return []gpiocdev.LineConfigOption{gpiocdev.AsOutput(0)}
	case InputPullUp:
		opts = []gpiocdev.LineConfigOption{gpiocdev.AsInput, gpiocdev.WithPullUp}
	default:
		opts = []gpiocdev.LineConfigOption{gpiocdev.AsInput, gpiocdev.WithPullDown}
	}
	if edges {
		opts = append(opts, gpiocdev.WithBothEdges)
	}
	return opts
}
