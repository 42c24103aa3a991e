package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/injector-bench/internal/status"
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
	"countdown": status.FormatCountdown,
	"us": func(d time.Duration) int64 { return d.Microseconds() },
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Injector Bench</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.connected { color: green; }
.disconnected { color: red; }
.live-dot { display: inline-block; width: 8px; height: 8px; border-radius: 50%; margin-left: 6px; vertical-align: middle; }
.live-dot.ok { background: green; }
.live-dot.err { background: red; }
.live-dot.pending { background: orange; }
button { font-family: monospace; margin-right: 4px; }
</style>
</head>
<body>
<h1>Injector Bench<span id="live-dot" class="live-dot pending" title="connecting"></span></h1>

<h2>Test</h2>
<table>
<tr><th>State</th><td id="state" class="{{if .Session.Running}}on{{else}}off{{end}}">{{.Session.StateString}}</td></tr>
<tr><th>Profile</th><td id="profile">{{if .Session.Profile}}{{.Session.Profile}}{{else}}-{{end}}</td></tr>
<tr><th>Remaining</th><td id="remaining">{{countdown .Session.Countdown}}</td></tr>
<tr><th>Injectors</th><td id="channels">{{range $i, $en := .Session.Enabled}}{{if $en}}<span class="{{if index $.Session.Levels $i}}on{{else}}off{{end}}">{{$i}}</span> {{end}}{{end}}</td></tr>
<tr><th>Firing</th><td>{{.Session.FiringMode}}</td></tr>
<tr><th>Cycle / open / closed</th><td id="plan">{{us .Session.Plan.Cycle}} / {{us .Session.Plan.Open}} / {{us .Session.Plan.Close}} us</td></tr>
</table>
<p>
<button onclick="api('/api/start?profile=low')">Low RPM</button>
<button onclick="api('/api/start?profile=high')">High RPM</button>
<button onclick="api('/api/start?profile=manual')">Manual</button>
<button onclick="api('/api/start?profile=leak')">Leak test</button>
<button onclick="api('/api/stop')">Stop</button>
</p>

<h2>Settings{{if .SettingsReplaced}} <span class="disconnected">(factory defaults restored)</span>{{end}}</h2>
<table>
<tr><th>Injectors</th><td>{{.Settings.NumInjectors}}</td></tr>
<tr><th>Work time</th><td>{{.Settings.WorkTimeMinutes}} min</td></tr>
<tr><th>Injection mode</th><td>{{.Settings.InjectionMode}}</td></tr>
<tr><th>Speed</th><td>{{.Settings.SpeedRPM}} rpm</td></tr>
<tr><th>Firing mode</th><td>{{.Settings.FiringMode}}</td></tr>
<tr><th>Duty</th><td>{{.Settings.DutyPercent}}%</td></tr>
</table>

<h2>Counts</h2>
<table>
<tr><th>Sessions</th><td>{{.Counts.Sessions}}</td></tr>
<tr><th>Completed</th><td>{{.Counts.Completed}}</td></tr>
<tr><th>Aborted</th><td>{{.Counts.Aborted}}</td></tr>
<tr><th>Open pulses</th><td>{{.Counts.Toggles}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{if .Config.Broker}}{{.Config.Broker}}{{else}}disabled{{end}}</td></tr>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Poll</th><td>{{.Config.PollUs}}us</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> | <a href="/api/settings">Settings</a></p>
<script>
function api(path) {
  fetch(path, { method: "POST" });
}
(function() {
  var dot = document.getElementById("live-dot");
  var stateEl = document.getElementById("state");

  function setDot(cls, title) {
    dot.className = "live-dot " + cls;
    dot.title = title;
  }

  function connect() {
    var proto = location.protocol === "https:" ? "wss://" : "ws://";
    var ws = new WebSocket(proto + location.host + "/ws");
    ws.onopen = function() { setDot("ok", "live"); };
    ws.onclose = function() {
      setDot("err", "offline");
      setTimeout(connect, 5000);
    };
    ws.onmessage = function(ev) {
      try {
        var s = JSON.parse(ev.data).status;
        stateEl.textContent = s.state;
        stateEl.className = s.state === "RUNNING" ? "on" : "off";
        document.getElementById("profile").textContent = s.profile || "-";
        document.getElementById("remaining").textContent = s.remaining;
        var html = "";
        s.channels.forEach(function(c) {
          if (c.enabled) html += '<span class="' + (c.open ? "on" : "off") + '">' + c.index + "</span> ";
        });
        document.getElementById("channels").innerHTML = html;
        document.getElementById("plan").textContent =
          s.plan.cycle_us + " / " + s.plan.open_us + " / " + s.plan.close_us + " us";
      } catch (e) {}
    };
  }
  connect();
})();
</script>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	indexTmpl.Execute(w, data)
}
