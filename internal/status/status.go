// Package status provides a thread-safe status tracker for the keypad daemon.
// It is read by the HTTP handlers and by the MQTT heartbeat.
package status

import (
	"sync"
	"time"

	"github.com/lluppes/pikeypad/internal/keypad"
)

// NetworkInfo contains network state as reported by the host environment.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	Driver      string
	Pins        []int
	ActiveLow   bool
	TickMs      int64
	HoldMs      int64
	IdleMs      int64
	HeartbeatMs int64
	Broker      string
	HTTPPort    string
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Ready         bool
	SetupMessage  string
	KeyCounts     map[string]int
	TotalKeys     int
	LastKey       string
	LastKeyTime   time.Time
	Scanner       keypad.Stats
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu            sync.RWMutex
	snap          Snapshot
	lastHeartbeat time.Time
}

// NewTracker creates a Tracker with the given start time and config.
// Every key starts with a zero count.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	counts := make(map[string]int, keypad.Rows*keypad.Cols)
	for _, k := range keypad.Keys() {
		counts[k] = 0
	}
	return &Tracker{
		snap: Snapshot{
			KeyCounts: counts,
			StartTime: startTime,
			Config:    cfg,
		},
		lastHeartbeat: startTime,
	}
}

// SetSetup records the scanner construction outcome.
func (t *Tracker) SetSetup(res keypad.SetupResult) {
	t.mu.Lock()
	t.snap.Ready = res.OK
	t.snap.SetupMessage = res.Message
	t.mu.Unlock()
}

// KeyPressed counts ev. It has the keypad.Handler signature.
func (t *Tracker) KeyPressed(ev keypad.KeyEvent) error {
	t.mu.Lock()
	t.snap.KeyCounts[ev.Key]++
	t.snap.TotalKeys++
	t.snap.LastKey = ev.Key
	t.snap.LastKeyTime = ev.Time
	t.mu.Unlock()
	return nil
}

// SetScannerStats stores the latest scanner counters.
// Called from runLoop on every tick.
func (t *Tracker) SetScannerStats(st keypad.Stats) {
	t.mu.Lock()
	t.snap.Scanner = st
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// CheckHeartbeat reports whether interval has elapsed since the last
// heartbeat (or start) and, if so, marks now as the last heartbeat.
// A non-positive interval disables heartbeats.
func (t *Tracker) CheckHeartbeat(now time.Time, interval time.Duration) bool {
	if interval <= 0 {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if now.Sub(t.lastHeartbeat) < interval {
		return false
	}
	t.lastHeartbeat = now
	return true
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	s.KeyCounts = make(map[string]int, len(t.snap.KeyCounts))
	for k, v := range t.snap.KeyCounts {
		s.KeyCounts[k] = v
	}
	s.Config.Pins = append([]int(nil), t.snap.Config.Pins...)
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
