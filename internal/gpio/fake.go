package gpio

import (
	"fmt"
	"sync"
	"time"
)

// FakeController is an in-memory Controller for tests.
// Input levels are scripted per line id and survive close/reopen.
// It is safe for concurrent use.
type FakeController struct {
	mu       sync.Mutex
	lines    map[int]*FakeLine
	inputs   map[int]Level
	ops      []string
	closed   bool
	readHook func(id int)

	openErr      map[int]error
	modeErr      map[int]error
	readErr      map[int]error
	writeErr     map[int]error
	subscribeErr map[int]error
}

// NewFakeController creates a FakeController with every input low.
func NewFakeController() *FakeController {
	return &FakeController{
		lines:        make(map[int]*FakeLine),
		inputs:       make(map[int]Level),
		openErr:      make(map[int]error),
		modeErr:      make(map[int]error),
		readErr:      make(map[int]error),
		writeErr:     make(map[int]error),
		subscribeErr: make(map[int]error),
	}
}

// Open returns a FakeLine configured as input with pull-down.
func (f *FakeController) Open(id int) (Line, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil, ErrClosed
	}
	if err := f.openErr[id]; err != nil {
		return nil, err
	}
	if _, ok := f.lines[id]; ok {
		return nil, fmt.Errorf("line %d: %w", id, ErrLineBusy)
	}
	l := &FakeLine{ctrl: f, id: id, mode: InputPullDown}
	f.lines[id] = l
	f.record("open %d", id)
	return l, nil
}

// Close closes every open line.
func (f *FakeController) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for id, l := range f.lines {
		l.closed = true
		l.handler = nil
		delete(f.lines, id)
	}
	f.closed = true
	return nil
}

// Closed reports whether Close was called.
func (f *FakeController) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// SetInput sets the level a line reads while configured as an input.
func (f *FakeController) SetInput(id int, v Level) {
	f.mu.Lock()
	f.inputs[id] = v
	f.mu.Unlock()
}

// Trigger delivers a transition for line id to its handler, synchronously.
// It returns false if the line is not open or not subscribed.
func (f *FakeController) Trigger(id int) bool {
	f.mu.Lock()
	l, ok := f.lines[id]
	var h TransitionHandler
	if ok {
		h = l.handler
	}
	f.mu.Unlock()

	if h == nil {
		return false
	}
	h(Transition{Line: id, Time: time.Now()})
	return true
}

// SetReadHook installs fn to run before every Read, outside the lock.
func (f *FakeController) SetReadHook(fn func(id int)) {
	f.mu.Lock()
	f.readHook = fn
	f.mu.Unlock()
}

// FailOpen makes Open(id) return err. A nil err clears the failure.
func (f *FakeController) FailOpen(id int, err error) { f.fail(f.openErr, id, err) }

// FailMode makes SetMode on line id return err.
func (f *FakeController) FailMode(id int, err error) { f.fail(f.modeErr, id, err) }

// FailRead makes Read on line id return err.
func (f *FakeController) FailRead(id int, err error) { f.fail(f.readErr, id, err) }

// FailWrite makes Write on line id return err.
func (f *FakeController) FailWrite(id int, err error) { f.fail(f.writeErr, id, err) }

// FailSubscribe makes OnTransition on line id return err.
func (f *FakeController) FailSubscribe(id int, err error) { f.fail(f.subscribeErr, id, err) }

func (f *FakeController) fail(m map[int]error, id int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(m, id)
		return
	}
	m[id] = err
}

// Ops returns the operations performed so far, e.g. "mode 16 output-low".
func (f *FakeController) Ops() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.ops))
	copy(out, f.ops)
	return out
}

// ResetOps clears the operation log.
func (f *FakeController) ResetOps() {
	f.mu.Lock()
	f.ops = nil
	f.mu.Unlock()
}

// IsOpen reports whether line id is currently open.
func (f *FakeController) IsOpen(id int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.lines[id]
	return ok
}

// Mode returns the current mode of an open line.
func (f *FakeController) Mode(id int) (Mode, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.lines[id]
	if !ok {
		return 0, false
	}
	return l.mode, true
}

// Subscribed reports whether line id has a transition handler.
func (f *FakeController) Subscribed(id int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.lines[id]
	return ok && l.handler != nil
}

// record appends to the op log. Caller holds f.mu.
func (f *FakeController) record(format string, v ...any) {
	f.ops = append(f.ops, fmt.Sprintf(format, v...))
}

// FakeLine is a Line handed out by FakeController.
type FakeLine struct {
	ctrl    *FakeController
	id      int
	mode    Mode
	out     Level
	handler TransitionHandler
	closed  bool
}

func (l *FakeLine) ID() int { return l.id }

func (l *FakeLine) SetMode(m Mode) error {
	f := l.ctrl
	f.mu.Lock()
	defer f.mu.Unlock()

	if l.closed {
		return ErrClosed
	}
	if err := f.modeErr[l.id]; err != nil {
		return err
	}
	l.mode = m
	if m == OutputLow {
		l.out = Low
	}
	f.record("mode %d %s", l.id, m)
	return nil
}

func (l *FakeLine) Write(v Level) error {
	f := l.ctrl
	f.mu.Lock()
	defer f.mu.Unlock()

	if l.closed {
		return ErrClosed
	}
	if err := f.writeErr[l.id]; err != nil {
		return err
	}
	if l.mode != OutputLow {
		return fmt.Errorf("line %d: write to %s line", l.id, l.mode)
	}
	l.out = v
	f.record("write %d %s", l.id, v)
	return nil
}

// Read returns the written level for outputs and the scripted input level
// otherwise.
func (l *FakeLine) Read() (Level, error) {
	f := l.ctrl
	f.mu.Lock()
	hook := f.readHook
	f.mu.Unlock()
	if hook != nil {
		hook(l.id)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if l.closed {
		return Low, ErrClosed
	}
	if err := f.readErr[l.id]; err != nil {
		return Low, err
	}
	f.record("read %d", l.id)
	if l.mode == OutputLow {
		return l.out, nil
	}
	return f.inputs[l.id], nil
}

func (l *FakeLine) OnTransition(h TransitionHandler) error {
	f := l.ctrl
	f.mu.Lock()
	defer f.mu.Unlock()

	if l.closed {
		return ErrClosed
	}
	if err := f.subscribeErr[l.id]; err != nil {
		return err
	}
	l.handler = h
	f.record("subscribe %d", l.id)
	return nil
}

func (l *FakeLine) Close() error {
	f := l.ctrl
	f.mu.Lock()
	defer f.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	l.handler = nil
	if f.lines[l.id] == l {
		delete(f.lines, l.id)
	}
	f.record("close %d", l.id)
	return nil
}
