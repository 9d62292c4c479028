package keypad

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lluppes/pikeypad/internal/gpio"
)

// Scanner owns the eight keypad lines. Row transitions trigger a column
// scan; resolved keys pass through the Gate and are handed to handlers.
type Scanner struct {
	opts   Options
	pins   PinAssignment
	active gpio.Level
	gate   *Gate
	setup  SetupResult

	// scanMu serialises scan cycles and Close; the column lines are shared
	// by every cycle.
	scanMu sync.Mutex
	cols   [Cols]gpio.Line
	rows   [Rows]gpio.Line
	closed bool

	mu       sync.RWMutex
	handlers []Handler

	emitted       atomic.Uint64
	duplicates    atomic.Uint64
	abandoned     atomic.Uint64
	scanErrors    atomic.Uint64
	handlerErrors atomic.Uint64
	idleClears    atomic.Uint64
}

// New validates pins, opens and configures the lines and subscribes to row
// transitions. It never fails outright: the outcome is reported by Setup.
// A scanner whose setup failed holds no lines and never emits.
func New(ctrl gpio.Controller, pins []int, opts Options) *Scanner {
	opts = opts.withDefaults()
	s := &Scanner{opts: opts, active: gpio.High}
	if opts.ActiveLow {
		s.active = gpio.Low
	}
	s.gate = NewGate(opts.HoldWindow, opts.IdleWindow, opts.Now())

	p, err := NewPinAssignment(pins)
	if err != nil {
		s.setup = SetupResult{
			Message: fmt.Sprintf("please supply a list of %d GPIO line numbers", PinCount),
			Err:     err,
		}
		s.closed = true
		s.debugf("%s", s.setup.Message)
		return s
	}
	s.pins = p

	if err := s.initLines(ctrl); err != nil {
		s.releaseLines()
		s.setup = SetupResult{
			Message: "GPIO initialization failed! " + err.Error(),
			Err:     err,
		}
		s.closed = true
		s.debugf("%s", s.setup.Message)
		return s
	}

	s.setup = SetupResult{
		OK:      true,
		Message: fmt.Sprintf("keypad ready on lines %v (columns %v, rows %v)", p[:], p.Columns(), p.RowLines()),
	}
	return s
}

// initLines opens the columns as low outputs and the rows as pulled-up
// inputs, then subscribes to the rows. Driver panics are converted into a
// SetupError.
func (s *Scanner) initLines(ctrl gpio.Controller) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &SetupError{Line: -1, Op: "initialize", Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	if ctrl == nil {
		return &SetupError{Line: -1, Op: "open controller", Err: errors.New("GPIO controller not found")}
	}

	for i, id := range s.pins.Columns() {
		l, err := ctrl.Open(id)
		if err != nil {
			return &SetupError{Line: id, Op: "open column", Err: err}
		}
		s.cols[i] = l
		if err := l.SetMode(gpio.OutputLow); err != nil {
			return &SetupError{Line: id, Op: "configure column", Err: err}
		}
		if err := l.Write(gpio.Low); err != nil {
			return &SetupError{Line: id, Op: "drive column", Err: err}
		}
	}

	for i, id := range s.pins.RowLines() {
		l, err := ctrl.Open(id)
		if err != nil {
			return &SetupError{Line: id, Op: "open row", Err: err}
		}
		s.rows[i] = l
		if err := l.SetMode(gpio.InputPullUp); err != nil {
			return &SetupError{Line: id, Op: "configure row", Err: err}
		}
	}

	for _, l := range s.rows {
		if err := l.OnTransition(s.handleTransition); err != nil {
			return &SetupError{Line: l.ID(), Op: "subscribe row", Err: err}
		}
	}
	return nil
}

// Setup returns the construction outcome.
func (s *Scanner) Setup() SetupResult {
	return s.setup
}

// Pins returns the validated pin assignment.
func (s *Scanner) Pins() PinAssignment {
	return s.pins
}

// OnKey registers h. Handlers run synchronously in registration order.
func (s *Scanner) OnKey(h Handler) {
	if h == nil {
		return
	}
	s.mu.Lock()
	s.handlers = append(s.handlers, h)
	s.mu.Unlock()
}

// Tick runs the idle-clear check and reports whether the record was
// cleared. Call it periodically, e.g. every DefaultTickInterval.
func (s *Scanner) Tick(now time.Time) bool {
	if !s.gate.Tick(now) {
		return false
	}
	s.idleClears.Add(1)
	return true
}

// Debounce returns a copy of the debounce record.
func (s *Scanner) Debounce() Record {
	return s.gate.Record()
}

// Stats returns activity counters.
func (s *Scanner) Stats() Stats {
	return Stats{
		Emitted:       s.emitted.Load(),
		Duplicates:    s.duplicates.Load(),
		Abandoned:     s.abandoned.Load(),
		ScanErrors:    s.scanErrors.Load(),
		HandlerErrors: s.handlerErrors.Load(),
		IdleClears:    s.idleClears.Load(),
	}
}

// Close stops scanning, returns every line to input with pull-down and
// releases it. It is safe to call more than once.
func (s *Scanner) Close() error {
	s.scanMu.Lock()
	if s.closed {
		s.scanMu.Unlock()
		return nil
	}
	s.closed = true
	s.scanMu.Unlock()

	// Drivers wait for their event goroutines on close, and those may be
	// blocked on scanMu, so lines are released without holding it.
	return s.releaseLines()
}

func (s *Scanner) releaseLines() error {
	var errs []error
	for _, group := range [][]gpio.Line{s.cols[:], s.rows[:]} {
		for i, l := range group {
			if l == nil {
				continue
			}
			if err := l.SetMode(gpio.InputPullDown); err != nil && !errors.Is(err, gpio.ErrClosed) {
				errs = append(errs, fmt.Errorf("reset line %d: %w", l.ID(), err))
			}
			if err := l.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close line %d: %w", l.ID(), err))
			}
			group[i] = nil
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

func (s *Scanner) handleTransition(tr gpio.Transition) {
	ev, ok := s.runCycle(tr)
	if ok {
		s.emit(ev)
	}
}

// runCycle performs one scan under scanMu. Errors never leave this
// function; they are counted and reported through diagnostics.
func (s *Scanner) runCycle(tr gpio.Transition) (ev KeyEvent, ok bool) {
	s.scanMu.Lock()
	defer s.scanMu.Unlock()

	if s.closed {
		return KeyEvent{}, false
	}

	defer func() {
		if r := recover(); r != nil {
			s.scanErrors.Add(1)
			s.debugf("%v", &ScanCycleError{Line: tr.Line, Row: -1, Col: -1, Op: "scan", Err: fmt.Errorf("panic: %v", r)})
			ev, ok = KeyEvent{}, false
		}
	}()

	ev, ok, err := s.scan(tr)
	if err != nil {
		s.scanErrors.Add(1)
		s.debugf("%v", err)
		return KeyEvent{}, false
	}
	return ev, ok
}

func (s *Scanner) scan(tr gpio.Transition) (KeyEvent, bool, error) {
	row, col := -1, -1
	fail := func(op string, err error) (KeyEvent, bool, error) {
		return KeyEvent{}, false, &ScanCycleError{Line: tr.Line, Row: row, Col: col, Op: op, Err: err}
	}

	idx := s.pins.RowIndex(tr.Line)
	if idx < 0 {
		return fail("resolve row", errors.New("not a row line"))
	}
	line := s.rows[idx]

	level, err := line.Read()
	if err != nil {
		return fail("read row", err)
	}

	now := s.opts.Now()
	switch s.gate.Observe(level, s.active, now) {
	case Duplicate:
		s.duplicates.Add(1)
		s.debugf("%s - skipping duplicate value for line %d", now.Format("15:04:05.0000"), tr.Line)
		return KeyEvent{}, false, nil
	case Inactive:
		return KeyEvent{}, false, nil
	}

	row = idx

	// Columns idle as low outputs so an unpressed grid reads a known
	// baseline; for the scan they become pulled-down inputs so the active
	// row pulls exactly one of them through the closed switch. Drive low
	// first, then switch all to input.
	for _, c := range s.cols {
		if err := c.SetMode(gpio.OutputLow); err != nil {
			return fail("drive column", err)
		}
		if err := c.Write(gpio.Low); err != nil {
			return fail("drive column", err)
		}
	}
	for _, c := range s.cols {
		if err := c.SetMode(gpio.InputPullDown); err != nil {
			return fail("release column", err)
		}
	}

	for _, c := range s.cols {
		v, err := c.Read()
		if err != nil {
			return fail("read column", err)
		}
		if v == s.active {
			col = s.pins.ColumnIndex(c.ID())
			break
		}
	}

	if row < 0 || col < 0 {
		s.abandoned.Add(1)
		s.debugf("no column active for line %d (row %d), cycle abandoned", tr.Line, row)
		return KeyEvent{}, false, nil
	}

	key, err := Resolve(col, row)
	if err != nil {
		return fail("resolve key", err)
	}
	return KeyEvent{
		Source: s.opts.Source,
		Key:    key,
		Row:    row,
		Col:    col,
		Time:   now,
	}, true, nil
}

// emit runs every handler; a failing handler does not stop the others.
func (s *Scanner) emit(ev KeyEvent) {
	s.emitted.Add(1)
	s.debugf("found character %s", ev.Key)

	s.mu.RLock()
	handlers := make([]Handler, len(s.handlers))
	copy(handlers, s.handlers)
	s.mu.RUnlock()

	for i, h := range handlers {
		if err := s.callHandler(h, ev); err != nil {
			s.handlerErrors.Add(1)
			s.debugf("handler %d failed for key %s: %v", i, ev.Key, err)
		}
	}
}

func (s *Scanner) callHandler(h Handler, ev KeyEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return h(ev)
}

func (s *Scanner) debugf(format string, v ...any) {
	if s.opts.Verbose && s.opts.Logf != nil {
		s.opts.Logf(format, v...)
	}
}
