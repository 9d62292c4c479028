//go:build linux

package gpio

import (
	"errors"
	"fmt"
	"sync"
	"time"

	pgpio "periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// periphEdgeWait bounds each WaitForEdge so watchers notice Close.
const periphEdgeWait = 100 * time.Millisecond

// PeriphController drives pins registered with periph.io, addressed by
// BCM number ("GPIO<n>").
type PeriphController struct {
	mu     sync.Mutex
	lines  map[int]*periphLine
	closed bool
}

// NewPeriphController initialises the periph host drivers.
func NewPeriphController() (*PeriphController, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("init periph host: %w", err)
	}
	return &PeriphController{lines: make(map[int]*periphLine)}, nil
}

// Open looks up GPIO<id> and configures it as input with pull-down.
func (c *PeriphController) Open(id int) (Line, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}
	if _, ok := c.lines[id]; ok {
		return nil, fmt.Errorf("line %d: %w", id, ErrLineBusy)
	}

	pin := gpioreg.ByName(fmt.Sprintf("GPIO%d", id))
	if pin == nil {
		return nil, fmt.Errorf("line %d: no such pin", id)
	}
	if err := pin.In(pgpio.PullDown, pgpio.NoEdge); err != nil {
		return nil, fmt.Errorf("line %d: configure input: %w", id, err)
	}

	l := &periphLine{ctrl: c, id: id, pin: pin, mode: InputPullDown}
	c.lines[id] = l
	return l, nil
}

// Close releases every line still open.
func (c *PeriphController) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	open := make([]*periphLine, 0, len(c.lines))
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
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

type periphLine struct {
	ctrl *PeriphController
	id   int
	pin  pgpio.PinIO

	mu     sync.Mutex
	mode   Mode
	edges  bool
	closed bool
	stop   chan struct{}
	done   chan struct{}
}

func (l *periphLine) ID() int { return l.id }

func (l *periphLine) SetMode(m Mode) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrClosed
	}
	if err := l.apply(m); err != nil {
		return fmt.Errorf("line %d: set %s: %w", l.id, m, err)
	}
	l.mode = m
	return nil
}

func (l *periphLine) apply(m Mode) error {
	edge := pgpio.NoEdge
	if l.edges {
		edge = pgpio.BothEdges
	}
	switch m {
	case OutputLow:
		return l.pin.Out(pgpio.Low)
	case InputPullUp:
		return l.pin.In(pgpio.PullUp, edge)
	case InputPullDown:
		return l.pin.In(pgpio.PullDown, edge)
	default:
		return fmt.Errorf("unsupported %s", m)
	}
}

func (l *periphLine) Write(v Level) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrClosed
	}
	if err := l.pin.Out(pgpio.Level(v == High)); err != nil {
		return fmt.Errorf("line %d: write: %w", l.id, err)
	}
	return nil
}

func (l *periphLine) Read() (Level, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return Low, ErrClosed
	}
	if l.pin.Read() == pgpio.High {
		return High, nil
	}
	return Low, nil
}

// OnTransition turns on both-edge detection and starts a watcher goroutine.
func (l *periphLine) OnTransition(h TransitionHandler) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrClosed
	}
	if l.stop != nil {
		l.mu.Unlock()
		return fmt.Errorf("line %d: already subscribed", l.id)
	}
	l.edges = true
	if err := l.apply(l.mode); err != nil {
		l.edges = false
		l.mu.Unlock()
		return fmt.Errorf("line %d: enable edges: %w", l.id, err)
	}
	l.stop = make(chan struct{})
	l.done = make(chan struct{})
	stop, done := l.stop, l.done
	l.mu.Unlock()

	go func() {
		defer close(done)
		for {
			select {
			case <-stop:
				return
			default:
			}
			// WaitForEdge is not called under l.mu; the pin serialises itself.
			if l.pin.WaitForEdge(periphEdgeWait) {
				h(Transition{Line: l.id, Time: time.Now()})
			}
		}
	}()
	return nil
}

func (l *periphLine) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	stop, done := l.stop, l.done
	l.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}

	l.ctrl.mu.Lock()
	delete(l.ctrl.lines, l.id)
	l.ctrl.mu.Unlock()

	if err := l.pin.In(pgpio.PullDown, pgpio.NoEdge); err != nil {
		return fmt.Errorf("reconfigure line %d: %w", l.id, err)
	}
	return nil
}
