package keypad

import (
	"sync"
	"time"

	"github.com/lluppes/pikeypad/internal/gpio"
)

// Verdict is the gate's decision for one row read.
type Verdict int

const (
	// Inactive means the level is new but not the pressed polarity.
	Inactive Verdict = iota
	// Duplicate means the level equals the recorded one (bounce or held key).
	Duplicate
	// Accepted means a fresh press; the level has been recorded.
	Accepted
)

func (v Verdict) String() string {
	switch v {
	case Duplicate:
		return "duplicate"
	case Accepted:
		return "accepted"
	default:
		return "inactive"
	}
}

// Record is a copy of the gate state.
type Record struct {
	Raw     string    // last accepted level text, "" when cleared
	ClearAt time.Time // UTC instant after which Tick clears Raw
}

// Gate suppresses identical consecutive row reads. The scan path and the
// idle tick both mutate the record, so every access holds mu.
type Gate struct {
	hold time.Duration
	idle time.Duration

	mu  sync.Mutex
	rec Record
}

// NewGate creates an empty gate whose first clear is due at now.
func NewGate(hold, idle time.Duration, now time.Time) *Gate {
	return &Gate{
		hold: hold,
		idle: idle,
		rec:  Record{ClearAt: now.UTC()},
	}
}

// Observe compares raw against the record and, for a fresh active level,
// records it with a clear deadline of now+hold. Compare and record happen
// in one critical section.
func (g *Gate) Observe(raw, active gpio.Level, now time.Time) Verdict {
	g.mu.Lock()
	defer g.mu.Unlock()

	text := raw.String()
	if text == g.rec.Raw {
		return Duplicate
	}
	if raw != active {
		return Inactive
	}
	g.rec.Raw = text
	g.rec.ClearAt = now.UTC().Add(g.hold)
	return Accepted
}

// ShouldEmit reports whether raw is a fresh active level, recording it if so.
func (g *Gate) ShouldEmit(raw, active gpio.Level, now time.Time) bool {
	return g.Observe(raw, active, now) == Accepted
}

// Tick clears the record once its deadline has passed and pushes the next
// deadline out by the idle window. It reports whether it cleared.
func (g *Gate) Tick(now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now = now.UTC()
	if now.Before(g.rec.ClearAt) {
		return false
	}
	g.rec.Raw = ""
	g.rec.ClearAt = now.Add(g.idle)
	return true
}

// Record returns a copy of the current state.
func (g *Gate) Record() Record {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rec
}
