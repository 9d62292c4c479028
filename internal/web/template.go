package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/lluppes/pikeypad/internal/keypad"
	"github.com/lluppes/pikeypad/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"ms": func(v int64) string {
		if v == 0 {
			return "disabled"
		}
		return fmt.Sprintf("%dms", v)
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Keypad Monitor</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
table.grid td { text-align: center; border: 1px solid #ddd; width: 25%; }
table.grid .key { font-size: 1.4em; font-weight: bold; }
table.grid .last { background: #e6f4e6; }
.ready, .connected { color: green; }
.failed, .disconnected { color: red; }
</style>
</head>
<body>
<h1>Keypad Monitor</h1>

<h2>Keypad</h2>
<table>
<tr><th>Setup</th><td id="setup" class="{{if .Ready}}ready{{else}}failed{{end}}">{{if .Ready}}ready{{else}}failed{{end}}</td></tr>
<tr><th>Message</th><td>{{.SetupMessage}}</td></tr>
<tr><th>Last key</th><td id="last-key">{{if .LastKey}}{{.LastKey}} at {{.LastKeyTime.UTC.Format "2006-01-02T15:04:05Z"}}{{else}}none{{end}}</td></tr>
<tr><th>Total presses</th><td>{{.TotalKeys}}</td></tr>
</table>

<table class="grid">
{{range .Grid}}<tr>{{range .}}<td class="{{if .Last}}last{{end}}"><span class="key">{{.Key}}</span><br>{{.Count}}</td>{{end}}</tr>
{{end}}</table>

<h2>Scanner</h2>
<table>
<tr><th>Emitted</th><td>{{.Scanner.Emitted}}</td></tr>
<tr><th>Duplicates</th><td>{{.Scanner.Duplicates}}</td></tr>
<tr><th>Abandoned</th><td>{{.Scanner.Abandoned}}</td></tr>
<tr><th>Scan errors</th><td>{{.Scanner.ScanErrors}}</td></tr>
<tr><th>Handler errors</th><td>{{.Scanner.HandlerErrors}}</td></tr>
<tr><th>Idle clears</th><td>{{.Scanner.IdleClears}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{if .Config.Broker}}{{.Config.Broker}}{{else}}disabled{{end}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Driver</th><td>{{.Config.Driver}}</td></tr>
<tr><th>Pins</th><td>{{.Config.Pins}}{{if .Config.ActiveLow}} (active low){{end}}</td></tr>
<tr><th>Tick</th><td>{{ms .Config.TickMs}}</td></tr>
<tr><th>Hold</th><td>{{ms .Config.HoldMs}}</td></tr>
<tr><th>Idle</th><td>{{ms .Config.IdleMs}}</td></tr>
<tr><th>Heartbeat</th><td>{{ms .Config.HeartbeatMs}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPPort}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
</body>
</html>
`

type keyCell struct {
	Key   string
	Count int
	Last  bool
}

func renderHTML(w io.Writer, snap status.Snapshot) error {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
		Grid   [keypad.Rows][keypad.Cols]keyCell
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	for row := 0; row < keypad.Rows; row++ {
		for col := 0; col < keypad.Cols; col++ {
			k, _ := keypad.Resolve(col, row)
			data.Grid[row][col] = keyCell{Key: k, Count: snap.KeyCounts[k], Last: k == snap.LastKey}
		}
	}
	return indexTmpl.Execute(w, data)
}
