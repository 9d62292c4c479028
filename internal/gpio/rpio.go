//go:build linux

package gpio

import (
	"fmt"
	"sync"
	"time"

	"github.com/stianeikeland/go-rpio/v4"
)

// rpioEdgePoll is how often a subscribed pin's edge-detect flag is polled.
const rpioEdgePoll = time.Millisecond

// RpioController drives BCM283x pins through /dev/gpiomem.
// Register access is not safe for concurrent use, so every pin operation
// holds mu.
type RpioController struct {
	mu     sync.Mutex
	lines  map[int]*rpioLine
	closed bool
}

// NewRpioController maps GPIO memory. Only one may be open per process.
func NewRpioController() (*RpioController, error) {
	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("open rpio: %w", err)
	}
	return &RpioController{lines: make(map[int]*rpioLine)}, nil
}

// Open configures the pin as input with pull-down.
func (c *RpioController) Open(id int) (Line, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}
	if _, ok := c.lines[id]; ok {
		return nil, fmt.Errorf("line %d: %w", id, ErrLineBusy)
	}

	pin := rpio.Pin(id)
	pin.Input()
	pin.PullDown()

	l := &rpioLine{ctrl: c, id: id, pin: pin}
	c.lines[id] = l
	return l, nil
}

// Close releases all pins and unmaps GPIO memory.
func (c *RpioController) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	open := make([]*rpioLine, 0, len(c.lines))
	for _, l := range c.lines {
		open = append(open, l)
	}
	c.mu.Unlock()

	for _, l := range open {
		l.Close()
	}
	if err := rpio.Close(); err != nil {
		return fmt.Errorf("close rpio: %w", err)
	}
	return nil
}

type rpioLine struct {
	ctrl *RpioController
	id   int
	pin  rpio.Pin

	// guarded by ctrl.mu
	closed bool
	stop   chan struct{}
	done   chan struct{}
}

func (l *rpioLine) ID() int { return l.id }

func (l *rpioLine) SetMode(m Mode) error {
	l.ctrl.mu.Lock()
	defer l.ctrl.mu.Unlock()

	if l.closed {
		return ErrClosed
	}
	switch m {
	case OutputLow:
		l.pin.Output()
		l.pin.Low()
	case InputPullUp:
		l.pin.Input()
		l.pin.PullUp()
	case InputPullDown:
		l.pin.Input()
		l.pin.PullDown()
	default:
		return fmt.Errorf("line %d: unsupported %s", l.id, m)
	}
	return nil
}

func (l *rpioLine) Write(v Level) error {
	l.ctrl.mu.Lock()
	defer l.ctrl.mu.Unlock()

	if l.closed {
		return ErrClosed
	}
	if v == High {
		l.pin.High()
	} else {
		l.pin.Low()
	}
	return nil
}

func (l *rpioLine) Read() (Level, error) {
	l.ctrl.mu.Lock()
	defer l.ctrl.mu.Unlock()

	if l.closed {
		return Low, ErrClosed
	}
	if l.pin.Read() == rpio.High {
		return High, nil
	}
	return Low, nil
}

// OnTransition enables hardware edge detection and polls the event flag.
func (l *rpioLine) OnTransition(h TransitionHandler) error {
	l.ctrl.mu.Lock()
	if l.closed {
		l.ctrl.mu.Unlock()
		return ErrClosed
	}
	if l.stop != nil {
		l.ctrl.mu.Unlock()
		return fmt.Errorf("line %d: already subscribed", l.id)
	}
	l.pin.Detect(rpio.AnyEdge)
	l.stop = make(chan struct{})
	l.done = make(chan struct{})
	stop, done := l.stop, l.done
	l.ctrl.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(rpioEdgePoll)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				l.ctrl.mu.Lock()
				fired := l.pin.EdgeDetected()
				l.ctrl.mu.Unlock()
				if fired {
					h(Transition{Line: l.id, Time: time.Now()})
				}
			}
		}
	}()
	return nil
}

func (l *rpioLine) Close() error {
	l.ctrl.mu.Lock()
	if l.closed {
		l.ctrl.mu.Unlock()
		return nil
	}
	l.closed = true
	stop, done := l.stop, l.done
	l.ctrl.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}

	l.ctrl.mu.Lock()
	l.pin.Detect(rpio.NoEdge)
	l.pin.Input()
	l.pin.PullDown()
	delete(l.ctrl.lines, l.id)
	l.ctrl.mu.Unlock()
	return nil
}
