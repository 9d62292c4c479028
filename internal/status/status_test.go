package status

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/lluppes/pikeypad/internal/keypad"
)

func keyAt(key string, at time.Time) keypad.KeyEvent {
	return keypad.KeyEvent{Source: "keypad", Key: key, Time: at}
}

func TestNewTracker(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := Config{Driver: "cdev", TickMs: 20, HoldMs: 25, Broker: "tcp://localhost:1883", HTTPPort: ":80"}
	tr := NewTracker(start, cfg)

	snap := tr.Snapshot()
	if !snap.StartTime.Equal(start) {
		t.Errorf("StartTime: got %v, want %v", snap.StartTime, start)
	}
	if snap.Config.TickMs != 20 {
		t.Errorf("Config.TickMs: got %d, want 20", snap.Config.TickMs)
	}
	if snap.Config.HTTPPort != ":80" {
		t.Errorf("Config.HTTPPort: got %q, want %q", snap.Config.HTTPPort, ":80")
	}
	if snap.Ready {
		t.Error("expected Ready=false initially")
	}
	if snap.MQTTConnected {
		t.Error("expected MQTTConnected=false initially")
	}
	if len(snap.KeyCounts) != 16 {
		t.Errorf("expected 16 zeroed key counts, got %d", len(snap.KeyCounts))
	}
	for k, n := range snap.KeyCounts {
		if n != 0 {
			t.Errorf("key %s: got count %d, want 0", k, n)
		}
	}
}

func TestSetSetup(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})

	tr.SetSetup(keypad.SetupResult{OK: true, Message: "keypad ready"})
	snap := tr.Snapshot()
	if !snap.Ready || snap.SetupMessage != "keypad ready" {
		t.Errorf("unexpected setup state: ready=%v msg=%q", snap.Ready, snap.SetupMessage)
	}

	tr.SetSetup(keypad.SetupResult{Message: "GPIO initialization failed!"})
	if tr.Snapshot().Ready {
		t.Error("expected Ready=false after failed setup")
	}
}

func TestKeyPressed(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	at := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	var h keypad.Handler = tr.KeyPressed
	for i, k := range []string{"1", "2", "1", "#"} {
		if err := h(keyAt(k, at.Add(time.Duration(i)*time.Second))); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	snap := tr.Snapshot()
	if snap.KeyCounts["1"] != 2 {
		t.Errorf("KeyCounts[1]: got %d, want 2", snap.KeyCounts["1"])
	}
	if snap.KeyCounts["#"] != 1 {
		t.Errorf("KeyCounts[#]: got %d, want 1", snap.KeyCounts["#"])
	}
	if snap.TotalKeys != 4 {
		t.Errorf("TotalKeys: got %d, want 4", snap.TotalKeys)
	}
	if snap.LastKey != "#" {
		t.Errorf("LastKey: got %q, want #", snap.LastKey)
	}
	if !snap.LastKeyTime.Equal(at.Add(3 * time.Second)) {
		t.Errorf("LastKeyTime: got %v", snap.LastKeyTime)
	}
}

func TestSetScannerStats(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	tr.SetScannerStats(keypad.Stats{Emitted: 4, Duplicates: 9})

	snap := tr.Snapshot()
	if snap.Scanner.Emitted != 4 || snap.Scanner.Duplicates != 9 {
		t.Errorf("unexpected stats %+v", snap.Scanner)
	}
}

func TestSetMQTTConnected(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})

	tr.SetMQTTConnected(true)
	if !tr.Snapshot().MQTTConnected {
		t.Error("expected MQTTConnected=true")
	}

	tr.SetMQTTConnected(false)
	if tr.Snapshot().MQTTConnected {
		t.Error("expected MQTTConnected=false")
	}
}

func TestSetNetwork(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})

	if tr.Snapshot().Network != nil {
		t.Error("expected nil Network initially")
	}

	net := &NetworkInfo{Type: "wifi", IP: "192.168.1.42", Status: "connected"}
	tr.SetNetwork(net)

	snap := tr.Snapshot()
	if snap.Network == nil {
		t.Fatal("expected non-nil Network")
	}
	if snap.Network.IP != "192.168.1.42" {
		t.Errorf("Network.IP: got %q, want %q", snap.Network.IP, "192.168.1.42")
	}
}

func TestCheckHeartbeat(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tr := NewTracker(start, Config{})
	interval := 15 * time.Minute

	if tr.CheckHeartbeat(start.Add(14*time.Minute), interval) {
		t.Error("heartbeat before interval")
	}
	if !tr.CheckHeartbeat(start.Add(15*time.Minute), interval) {
		t.Error("expected heartbeat at interval")
	}
	if tr.CheckHeartbeat(start.Add(16*time.Minute), interval) {
		t.Error("heartbeat should be measured from the last one")
	}
	if !tr.CheckHeartbeat(start.Add(30*time.Minute), interval) {
		t.Error("expected second heartbeat")
	}
	if tr.CheckHeartbeat(start.Add(time.Hour), 0) {
		t.Error("zero interval should disable heartbeats")
	}
}

func TestSnapshotUptime(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	snap := Snapshot{
		StartTime: start,
		Now:       start.Add(15 * time.Minute),
	}

	if snap.Uptime() != 15*time.Minute {
		t.Errorf("Uptime: got %v, want 15m", snap.Uptime())
	}
}

func TestSnapshotNowIsSet(t *testing.T) {
	tr := NewTracker(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), Config{})

	before := time.Now()
	snap := tr.Snapshot()
	after := time.Now()

	if snap.Now.Before(before) || snap.Now.After(after) {
		t.Errorf("Now (%v) not between %v and %v", snap.Now, before, after)
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	tr := NewTracker(time.Now(), Config{Pins: []int{1, 2, 3, 4, 5, 6, 7, 8}})
	tr.KeyPressed(keyAt("5", time.Now()))

	snap1 := tr.Snapshot()
	snap1.KeyCounts["5"] = 100
	snap1.Config.Pins[0] = 99

	tr.KeyPressed(keyAt("6", time.Now()))

	snap2 := tr.Snapshot()
	if snap2.KeyCounts["5"] != 1 {
		t.Errorf("snapshot map should be a copy; got %d", snap2.KeyCounts["5"])
	}
	if snap2.Config.Pins[0] != 1 {
		t.Errorf("snapshot pins should be a copy; got %d", snap2.Config.Pins[0])
	}
	if snap1.LastKey != "5" {
		t.Errorf("earlier snapshot changed: LastKey %q", snap1.LastKey)
	}
}

func TestFormatJSON(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	snap := Snapshot{
		Ready:         true,
		SetupMessage:  "keypad ready",
		KeyCounts:     map[string]int{"1": 5, "A": 2},
		TotalKeys:     7,
		LastKey:       "A",
		LastKeyTime:   start.Add(10 * time.Minute),
		Scanner:       keypad.Stats{Emitted: 7, Duplicates: 12},
		StartTime:     start,
		Now:           start.Add(15 * time.Minute),
		MQTTConnected: true,
		Config: Config{
			Driver: "cdev", Pins: []int{16, 20, 21, 5, 6, 13, 19, 26},
			TickMs: 20, HoldMs: 25, IdleMs: 15000, HeartbeatMs: 900000,
			Broker: "tcp://localhost:1883", HTTPPort: ":80",
		},
	}

	data := FormatJSON(snap)

	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if !parsed.Status.Ready {
		t.Error("expected Ready=true")
	}
	if parsed.Status.Setup != "keypad ready" {
		t.Errorf("Setup: got %q", parsed.Status.Setup)
	}
	if parsed.Status.UptimeSeconds != 900 {
		t.Errorf("UptimeSeconds: got %d, want 900", parsed.Status.UptimeSeconds)
	}
	if !parsed.Status.MQTT.Connected {
		t.Error("expected MQTT.Connected=true")
	}
	if parsed.Status.KeyCounts["1"] != 5 {
		t.Errorf("KeyCounts[1]: got %d, want 5", parsed.Status.KeyCounts["1"])
	}
	if parsed.Status.LastKey == nil || parsed.Status.LastKey.Key != "A" {
		t.Fatalf("LastKey: got %+v", parsed.Status.LastKey)
	}
	if parsed.Status.LastKey.Timestamp != "2026-01-01T00:10:00Z" {
		t.Errorf("LastKey.Timestamp: got %q", parsed.Status.LastKey.Timestamp)
	}
	if parsed.Status.Scanner.Duplicates != 12 {
		t.Errorf("Scanner.Duplicates: got %d, want 12", parsed.Status.Scanner.Duplicates)
	}
	if len(parsed.Status.Config.Pins) != 8 || parsed.Status.Config.IdleMs != 15000 {
		t.Errorf("unexpected config %+v", parsed.Status.Config)
	}
	// Event and Reason should be omitted
	if parsed.Status.Event != "" {
		t.Errorf("expected empty Event for web format, got %q", parsed.Status.Event)
	}
	if parsed.Status.Reason != "" {
		t.Errorf("expected empty Reason for web format, got %q", parsed.Status.Reason)
	}
}

func TestFormatJSONBeforeFirstKey(t *testing.T) {
	snap := Snapshot{
		StartTime: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Now:       time.Date(2026, 1, 1, 0, 0, 1, 0, time.UTC),
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(FormatJSON(snap), &raw); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	status := raw["status"].(map[string]interface{})
	if _, exists := status["last_key"]; exists {
		t.Error("last_key should be omitted before the first key")
	}
	if counts, ok := status["key_counts"].(map[string]interface{}); !ok || len(counts) != 0 {
		t.Errorf("key_counts should be an empty object, got %v", status["key_counts"])
	}
}

func TestFormatStatusEvent(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	snap := Snapshot{
		Ready:     true,
		TotalKeys: 3,
		StartTime: start,
		Now:       start.Add(15 * time.Minute),
		Config:    Config{TickMs: 20, Broker: "tcp://localhost:1883"},
	}

	data := FormatStatusEvent(snap, "HEARTBEAT", "")

	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if parsed.Status.Event != "HEARTBEAT" {
		t.Errorf("Event: got %q, want HEARTBEAT", parsed.Status.Event)
	}
	if parsed.Status.Reason != "" {
		t.Errorf("Reason: got %q, want empty", parsed.Status.Reason)
	}
	if parsed.Status.TotalKeys != 3 {
		t.Errorf("TotalKeys: got %d, want 3", parsed.Status.TotalKeys)
	}
	if parsed.Status.UptimeSeconds != 900 {
		t.Errorf("UptimeSeconds: got %d, want 900", parsed.Status.UptimeSeconds)
	}
}

func TestFormatStatusEventShutdown(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	snap := Snapshot{
		StartTime: start,
		Now:       start.Add(30 * time.Minute),
		Config:    Config{Broker: "tcp://localhost:1883"},
	}

	data := FormatStatusEvent(snap, "SHUTDOWN", "SIGTERM")

	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if parsed.Status.Event != "SHUTDOWN" {
		t.Errorf("Event: got %q, want SHUTDOWN", parsed.Status.Event)
	}
	if parsed.Status.Reason != "SIGTERM" {
		t.Errorf("Reason: got %q, want SIGTERM", parsed.Status.Reason)
	}
}

func TestFormatStatusEventOmitsReasonWhenEmpty(t *testing.T) {
	snap := Snapshot{
		StartTime: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Now:       time.Date(2026, 1, 1, 0, 0, 1, 0, time.UTC),
	}

	data := FormatStatusEvent(snap, "STARTUP", "")

	var raw map[string]interface{}
	json.Unmarshal(data, &raw)
	status := raw["status"].(map[string]interface{})
	if _, exists := status["reason"]; exists {
		t.Error("reason should be omitted when empty")
	}
	if status["event"] != "STARTUP" {
		t.Errorf("event: got %v, want STARTUP", status["event"])
	}
}

func TestFormatJSONWithNetwork(t *testing.T) {
	snap := Snapshot{
		StartTime: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Now:       time.Date(2026, 1, 1, 0, 1, 0, 0, time.UTC),
		Network:   &NetworkInfo{Type: "wifi", IP: "192.168.1.42", Status: "connected", SSID: "MyNet"},
		Config:    Config{Broker: "tcp://localhost:1883"},
	}

	data := FormatJSON(snap)

	var parsed StatusJSON
	json.Unmarshal(data, &parsed)

	if parsed.Status.Network == nil {
		t.Fatal("expected Network in JSON")
	}
	if parsed.Status.Network.IP != "192.168.1.42" {
		t.Errorf("Network.IP: got %q, want 192.168.1.42", parsed.Status.Network.IP)
	}
	if parsed.Status.Network.SSID != "MyNet" {
		t.Errorf("Network.SSID: got %q, want MyNet", parsed.Status.Network.SSID)
	}
}

func TestConcurrentAccess(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	var wg sync.WaitGroup

	// Writer
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			tr.KeyPressed(keyAt("5", time.Now()))
			tr.SetScannerStats(keypad.Stats{Emitted: uint64(i)})
			tr.SetMQTTConnected(i%2 == 0)
			tr.SetNetwork(&NetworkInfo{IP: "1.2.3.4"})
		}
	}()

	// Reader
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			snap := tr.Snapshot()
			_ = snap.Uptime()
			_ = FormatJSON(snap)
		}
	}()

	wg.Wait()

	if n := tr.Snapshot().KeyCounts["5"]; n != 1000 {
		t.Errorf("KeyCounts[5]: got %d, want 1000", n)
	}
}
