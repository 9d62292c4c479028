// Command keypad-monitor scans a 4x4 matrix keypad on GPIO lines and publishes
// key presses to MQTT.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lluppes/pikeypad/internal/config"
	"github.com/lluppes/pikeypad/internal/gpio"
	"github.com/lluppes/pikeypad/internal/keypad"
	"github.com/lluppes/pikeypad/internal/mqtt"
	"github.com/lluppes/pikeypad/internal/status"
	"github.com/lluppes/pikeypad/internal/web"
)

func main() {
	cfg, probe, err := parseFlags(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}
	if err := run(cfg, probe); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

// parseFlags loads the optional config file and overlays the flags that were
// set explicitly on the command line.
func parseFlags(args []string) (*config.Config, bool, error) {
	def := config.Default()
	fs := flag.NewFlagSet("keypad-monitor", flag.ContinueOnError)

	configPath := fs.String("config", "", "Config file (.toml, .yaml or .yml)")
	driver := fs.String("driver", def.GPIO.Driver, "GPIO driver: cdev, rpio or periph")
	chip := fs.String("chip", def.GPIO.Chip, "GPIO chip for the cdev driver")
	pins := fs.String("pins", config.FormatPins(def.GPIO.Pins), "Line numbers: 4 columns then 4 rows")
	activeLow := fs.Bool("active-low", def.GPIO.ActiveLow, "Treat a low row/column read as pressed")
	source := fs.String("source", def.Scan.Source, "Keypad name reported in events")
	tick := fs.Duration("tick", def.Scan.Tick, "Idle-clear check interval")
	hold := fs.Duration("hold", def.Scan.Hold, "How long an accepted press is remembered")
	idle := fs.Duration("idle", def.Scan.Idle, "Deadline extension after an idle clear")
	verbose := fs.Bool("verbose", def.Scan.Verbose, "Log scanner diagnostics")
	broker := fs.String("broker", def.MQTT.Broker, "MQTT broker address (empty to disable)")
	clientID := fs.String("client-id", def.MQTT.ClientID, "MQTT client id")
	heartbeat := fs.Duration("heartbeat", def.MQTT.Heartbeat, "Heartbeat interval (0 to disable)")
	httpAddr := fs.String("http", def.HTTP.Addr, "HTTP status address (empty to disable)")
	probe := fs.Bool("probe", false, "Set up the keypad, print the result and exit")

	if err := fs.Parse(args); err != nil {
		return nil, false, err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return nil, false, err
	}

	var perr error
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "driver":
			cfg.GPIO.Driver = *driver
		case "chip":
			cfg.GPIO.Chip = *chip
		case "pins":
			p, err := config.ParsePins(*pins)
			if err != nil {
				perr = fmt.Errorf("-pins: %w", err)
				return
			}
			cfg.GPIO.Pins = p
		case "active-low":
			cfg.GPIO.ActiveLow = *activeLow
		case "source":
			cfg.Scan.Source = *source
		case "tick":
			cfg.Scan.Tick = *tick
		case "hold":
			cfg.Scan.Hold = *hold
		case "idle":
			cfg.Scan.Idle = *idle
		case "verbose":
			cfg.Scan.Verbose = *verbose
		case "broker":
			cfg.MQTT.Broker = *broker
		case "client-id":
			cfg.MQTT.ClientID = *clientID
		case "heartbeat":
			cfg.MQTT.Heartbeat = *heartbeat
		case "http":
			cfg.HTTP.Addr = *httpAddr
		}
	})
	if perr != nil {
		return nil, false, perr
	}

	if err := cfg.Validate(); err != nil {
		return nil, false, err
	}
	return cfg, *probe, nil
}

func run(cfg *config.Config, probe bool) error {
	// A missing controller is reported through the keypad setup result.
	ctrl, err := gpio.Open(cfg.GPIO.Driver, cfg.GPIO.Chip)
	if err != nil {
		log.Printf("gpio: %v", err)
		ctrl = nil
	} else {
		defer ctrl.Close()
	}

	scanner := keypad.New(ctrl, cfg.GPIO.Pins, scannerOptions(cfg))
	defer scanner.Close()

	res := scanner.Setup()
	if probe {
		fmt.Println(res.Message)
		if !res.OK {
			return fmt.Errorf("keypad setup: %w", res.Err)
		}
		return nil
	}
	if !res.OK {
		return fmt.Errorf("keypad setup: %s: %w", res.Message, res.Err)
	}
	log.Printf("keypad: %s", res.Message)

	// Initialize status tracker (before STARTUP so snapshot is available)
	tracker := status.NewTracker(time.Now(), statusConfig(cfg))
	tracker.SetSetup(res)
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	var publisher mqtt.Publisher = disabledPublisher{}
	var conn mqtt.ConnectionStatus = disabledPublisher{}
	if cfg.MQTT.Broker != "" {
		p, err := mqtt.NewRealPublisher(mqtt.Options{
			Broker:     cfg.MQTT.Broker,
			ClientID:   cfg.MQTT.ClientID,
			BufferSize: cfg.MQTT.BufferSize,
		})
		if err != nil {
			return fmt.Errorf("init mqtt: %w", err)
		}
		publisher, conn = p, p
	}
	defer publisher.Close()

	scanner.OnKey(logKey)
	scanner.OnKey(tracker.KeyPressed)
	scanner.OnKey(mqtt.HandleKey(publisher))

	// Publish startup event with full status snapshot
	snap := tracker.Snapshot()
	startupEvent := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := publisher.PublishSystem(startupEvent); err != nil {
		log.Printf("failed to publish startup event: %v", err)
	} else {
		log.Printf("published startup event")
	}

	// Start HTTP status server
	if cfg.HTTP.Addr != "" {
		srv := web.New(cfg.HTTP.Addr, tracker)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http status server listening on %s", cfg.HTTP.Addr)
	}

	log.Printf("started: driver=%s pins=%v tick=%v hold=%v idle=%v broker=%q heartbeat=%v",
		cfg.GPIO.Driver, cfg.GPIO.Pins, cfg.Scan.Tick, cfg.Scan.Hold, cfg.Scan.Idle, cfg.MQTT.Broker, cfg.MQTT.Heartbeat)

	ticker := time.NewTicker(cfg.Scan.Tick)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(scanner, publisher, conn, tracker, cfg.MQTT.Heartbeat, time.Now, ticker.C, sigCh)
}

// idleScanner is the part of keypad.Scanner driven by runLoop.
type idleScanner interface {
	Tick(now time.Time) bool
	Stats() keypad.Stats
}

func runLoop(sc idleScanner, publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, heartbeat time.Duration, now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal) error {
	for {
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			refresh(sc, mqttStatus, tracker)
			snap := tracker.Snapshot()
			event := mqtt.SystemEvent{
				Timestamp:  now(),
				Event:      "SHUTDOWN",
				Reason:     signalName,
				Retained:   true,
				RawPayload: status.FormatStatusEvent(snap, "SHUTDOWN", signalName),
			}
			if err := publisher.PublishSystem(event); err != nil {
				log.Printf("failed to publish shutdown event: %v", err)
			} else {
				log.Printf("published shutdown event")
			}
			return nil

		case <-tick:
			t := now()
			sc.Tick(t)
			refresh(sc, mqttStatus, tracker)

			if !tracker.CheckHeartbeat(t, heartbeat) {
				continue
			}
			// Refresh network info for heartbeat
			if net := readNetworkInfo(); net != nil {
				tracker.SetNetwork(net)
			}
			snap := tracker.Snapshot()
			st := snap.Scanner
			log.Printf("heartbeat: uptime=%v keys=%d duplicates=%d scan_errors=%d",
				t.Sub(snap.StartTime).Truncate(time.Second), snap.TotalKeys, st.Duplicates, st.ScanErrors)

			hbEvent := mqtt.SystemEvent{
				Timestamp:  t,
				Event:      "HEARTBEAT",
				RawPayload: status.FormatStatusEvent(snap, "HEARTBEAT", ""),
			}
			if err := publisher.PublishSystem(hbEvent); err != nil {
				log.Printf("heartbeat publish error: %v", err)
			}
		}
	}
}

// refresh copies scanner and MQTT state into the tracker for HTTP consumers.
func refresh(sc idleScanner, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker) {
	tracker.SetScannerStats(sc.Stats())
	if mqttStatus != nil {
		tracker.SetMQTTConnected(mqttStatus.IsConnected())
	}
}

func logKey(ev keypad.KeyEvent) error {
	log.Printf("key: %s (row %d, col %d)", ev.Key, ev.Row, ev.Col)
	return nil
}

func scannerOptions(cfg *config.Config) keypad.Options {
	return keypad.Options{
		Source:     cfg.Scan.Source,
		ActiveLow:  cfg.GPIO.ActiveLow,
		HoldWindow: cfg.Scan.Hold,
		IdleWindow: cfg.Scan.Idle,
		Verbose:    cfg.Scan.Verbose,
		Logf: func(format string, v ...any) {
			log.Printf("keypad: "+format, v...)
		},
	}
}

func statusConfig(cfg *config.Config) status.Config {
	return status.Config{
		Driver:      cfg.GPIO.Driver,
		Pins:        append([]int(nil), cfg.GPIO.Pins...),
		ActiveLow:   cfg.GPIO.ActiveLow,
		TickMs:      cfg.Scan.Tick.Milliseconds(),
		HoldMs:      cfg.Scan.Hold.Milliseconds(),
		IdleMs:      cfg.Scan.Idle.Milliseconds(),
		HeartbeatMs: cfg.MQTT.Heartbeat.Milliseconds(),
		Broker:      cfg.MQTT.Broker,
		HTTPPort:    cfg.HTTP.Addr,
	}
}

// disabledPublisher is used when no broker is configured.
type disabledPublisher struct{}

func (disabledPublisher) Publish(keypad.KeyEvent) error { return nil }

func (disabledPublisher) PublishSystem(mqtt.SystemEvent) error { return nil }

func (disabledPublisher) Close() error { return nil }

func (disabledPublisher) IsConnected() bool { return false }

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
