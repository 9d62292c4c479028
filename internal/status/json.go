package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string         `json:"event,omitempty"`
	Reason        string         `json:"reason,omitempty"`
	Ready         bool           `json:"ready"`
	Setup         string         `json:"setup"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	StartTime     string         `json:"start_time"`
	Timestamp     string         `json:"timestamp"`
	MQTT          MQTTStatus     `json:"mqtt"`
	LastKey       *LastKeyJSON   `json:"last_key,omitempty"`
	TotalKeys     int            `json:"total_keys"`
	KeyCounts     map[string]int `json:"key_counts"`
	Scanner       ScannerJSON    `json:"scanner"`
	Network       *NetworkJSON   `json:"network,omitempty"`
	Config        ConfigJSON     `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// LastKeyJSON is the most recent key press.
type LastKeyJSON struct {
	Key       string `json:"key"`
	Timestamp string `json:"timestamp"`
}

// ScannerJSON is the JSON representation of keypad.Stats.
type ScannerJSON struct {
	Emitted       uint64 `json:"emitted"`
	Duplicates    uint64 `json:"duplicates"`
	Abandoned     uint64 `json:"abandoned"`
	ScanErrors    uint64 `json:"scan_errors"`
	HandlerErrors uint64 `json:"handler_errors"`
	IdleClears    uint64 `json:"idle_clears"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	Driver      string `json:"driver"`
	Pins        []int  `json:"pins"`
	ActiveLow   bool   `json:"active_low"`
	TickMs      int64  `json:"tick_ms"`
	HoldMs      int64  `json:"hold_ms"`
	IdleMs      int64  `json:"idle_ms"`
	HeartbeatMs int64  `json:"heartbeat_ms"`
	Broker      string `json:"broker"`
	HTTPPort    string `json:"http_port"`
}

func buildInner(snap Snapshot) StatusInner {
	inner := StatusInner{
		Ready:         snap.Ready,
		Setup:         snap.SetupMessage,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		TotalKeys:     snap.TotalKeys,
		KeyCounts:     snap.KeyCounts,
		Scanner: ScannerJSON{
			Emitted:       snap.Scanner.Emitted,
			Duplicates:    snap.Scanner.Duplicates,
			Abandoned:     snap.Scanner.Abandoned,
			ScanErrors:    snap.Scanner.ScanErrors,
			HandlerErrors: snap.Scanner.HandlerErrors,
			IdleClears:    snap.Scanner.IdleClears,
		},
		Config: ConfigJSON{
			Driver:      snap.Config.Driver,
			Pins:        snap.Config.Pins,
			ActiveLow:   snap.Config.ActiveLow,
			TickMs:      snap.Config.TickMs,
			HoldMs:      snap.Config.HoldMs,
			IdleMs:      snap.Config.IdleMs,
			HeartbeatMs: snap.Config.HeartbeatMs,
			Broker:      snap.Config.Broker,
			HTTPPort:    snap.Config.HTTPPort,
		},
	}
	if inner.KeyCounts == nil {
		inner.KeyCounts = map[string]int{}
	}
	if snap.LastKey != "" {
		inner.LastKey = &LastKeyJSON{
			Key:       snap.LastKey,
			Timestamp: snap.LastKeyTime.UTC().Format(time.RFC3339),
		}
	}
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
