package web

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sweeney/injector-bench/internal/config"
	"github.com/sweeney/injector-bench/internal/logic"
	"github.com/sweeney/injector-bench/internal/status"
)

type testEnv struct {
	ts       *httptest.Server
	srv      *Server
	tracker  *status.Tracker
	store    *config.Store
	commands chan logic.Command
}

func newTestServer(t *testing.T) *testEnv {
	t.Helper()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := status.Config{
		PollUs:      250,
		HeartbeatMs: 900000,
		Broker:      "tcp://192.168.1.200:1883",
		HTTPAddr:    ":8080",
	}
	tr := status.NewTracker(start, cfg)

	store := config.NewStore(filepath.Join(t.TempDir(), "settings.yaml"))
	if _, err := store.Load(); err != nil {
		t.Fatalf("store.Load: %v", err)
	}
	tr.SetSettings(store.Current(), store.Replaced())

	commands := make(chan logic.Command, 1)
	srv := New(":0", tr, store, commands)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testEnv{ts: ts, srv: srv, tracker: tr, store: store, commands: commands}
}

func getStatus(t *testing.T, url string) status.StatusJSON {
	t.Helper()
	resp, err := http.Get(url + "/index.json")
	if err != nil {
		t.Fatalf("GET /index.json: %v", err)
	}
	defer resp.Body.Close()

	var sj status.StatusJSON
	if err := json.NewDecoder(resp.Body).Decode(&sj); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	return sj
}

func TestJSONEndpoint(t *testing.T) {
	env := newTestServer(t)
	env.tracker.UpdateSession(status.Session{
		Running:       true,
		Profile:       logic.ProfileHighRPM,
		Countdown:     59,
		Enabled:       [4]bool{true, true, true, true},
		ActiveChannel: -1,
		FiringMode:    logic.Batch,
	})
	env.tracker.SetMQTTConnected(true)

	resp, err := http.Get(env.ts.URL + "/index.json")
	if err != nil {
		t.Fatalf("GET /index.json: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q, want application/json", ct)
	}

	var sj status.StatusJSON
	if err := json.NewDecoder(resp.Body).Decode(&sj); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}

	if sj.Status.State != "RUNNING" {
		t.Errorf("State: got %q, want RUNNING", sj.Status.State)
	}
	if sj.Status.Profile != "high" {
		t.Errorf("Profile: got %q, want high", sj.Status.Profile)
	}
	if sj.Status.Remaining != "0:00:59" {
		t.Errorf("Remaining: got %q", sj.Status.Remaining)
	}
	if !sj.Status.MQTT.Connected {
		t.Error("expected MQTT.Connected=true")
	}
	if sj.Status.Config.PollUs != 250 {
		t.Errorf("Config.PollUs: got %d, want 250", sj.Status.Config.PollUs)
	}
	if !sj.Status.SettingsReplaced {
		t.Error("expected settings_replaced after loading from an empty directory")
	}
}

func TestHTMLEndpointRoot(t *testing.T) {
	env := newTestServer(t)
	env.tracker.UpdateSession(status.Session{
		Running:   true,
		Profile:   logic.ProfileManual,
		Countdown: 3661,
		Enabled:   [4]bool{true, true, false, false},
		Levels:    [4]bool{true, false, false, false},
	})

	resp, err := http.Get(env.ts.URL + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	ct := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type: got %q, want text/html", ct)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if !strings.Contains(string(body), "1:01:01") {
		t.Error("page should show the countdown as H:MM:SS")
	}
	if !strings.Contains(string(body), "RUNNING") {
		t.Error("page should show the session state")
	}
}

func TestHTMLEndpointIndexHTML(t *testing.T) {
	env := newTestServer(t)

	resp, err := http.Get(env.ts.URL + "/index.html")
	if err != nil {
		t.Fatalf("GET /index.html: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
}

func TestNotFoundForUnknownPath(t *testing.T) {
	env := newTestServer(t)

	resp, err := http.Get(env.ts.URL + "/nonexistent")
	if err != nil {
		t.Fatalf("GET /nonexistent: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 404 {
		t.Errorf("status: got %d, want 404", resp.StatusCode)
	}
}

func TestStartSendsCommand(t *testing.T) {
	env := newTestServer(t)

	resp, err := http.Post(env.ts.URL+"/api/start?profile=leak", "", nil)
	if err != nil {
		t.Fatalf("POST /api/start: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status: got %d, want 202", resp.StatusCode)
	}
	select {
	case cmd := <-env.commands:
		if cmd.Stop || cmd.Profile != logic.ProfileLeakTest || cmd.Source != "http" {
			t.Errorf("command: got %+v", cmd)
		}
	default:
		t.Fatal("no command forwarded")
	}
}

func TestStartRejections(t *testing.T) {
	env := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		want   int
	}{
		{"unknown profile", http.MethodPost, "/api/start?profile=turbo", http.StatusBadRequest},
		{"missing profile", http.MethodPost, "/api/start", http.StatusBadRequest},
		{"get not allowed", http.MethodGet, "/api/start?profile=low", http.StatusMethodNotAllowed},
		{"stop via get", http.MethodGet, "/api/stop", http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest(tt.method, env.ts.URL+tt.path, nil)
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("request: %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Errorf("status: got %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}

	if len(env.commands) != 0 {
		t.Error("rejected requests must not forward commands")
	}
}

func TestStartWhileRunningConflicts(t *testing.T) {
	env := newTestServer(t)
	env.tracker.UpdateSession(status.Session{Running: true, Profile: logic.ProfileLowRPM})

	resp, err := http.Post(env.ts.URL+"/api/start?profile=high", "", nil)
	if err != nil {
		t.Fatalf("POST /api/start: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("status: got %d, want 409", resp.StatusCode)
	}
}

func TestBusyControlLoop(t *testing.T) {
	env := newTestServer(t)
	env.commands <- logic.Command{Stop: true}

	resp, err := http.Post(env.ts.URL+"/api/stop", "", nil)
	if err != nil {
		t.Fatalf("POST /api/stop: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status: got %d, want 503", resp.StatusCode)
	}
}

func TestStopSendsCommand(t *testing.T) {
	env := newTestServer(t)

	resp, err := http.Post(env.ts.URL+"/api/stop", "", nil)
	if err != nil {
		t.Fatalf("POST /api/stop: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status: got %d, want 202", resp.StatusCode)
	}
	cmd := <-env.commands
	if !cmd.Stop {
		t.Errorf("expected stop command, got %+v", cmd)
	}
}

func TestSettingsGet(t *testing.T) {
	env := newTestServer(t)

	resp, err := http.Get(env.ts.URL + "/api/settings")
	if err != nil {
		t.Fatalf("GET /api/settings: %v", err)
	}
	defer resp.Body.Close()

	var got config.Settings
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != config.Factory() {
		t.Errorf("settings: got %+v, want factory", got)
	}
}

func TestSettingsPostPersists(t *testing.T) {
	env := newTestServer(t)

	body := `{"numInjectors":2,"workTimeMinutes":5,"injectionMode":360,"speedRpm":2520,"firingMode":"sequential","dutyPercent":30}`
	resp, err := http.Post(env.ts.URL+"/api/settings", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST /api/settings: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Fatalf("status: got %d, want 200", resp.StatusCode)
	}

	want := config.Settings{
		Version:         config.Version,
		NumInjectors:    2,
		WorkTimeMinutes: 5,
		InjectionMode:   360,
		SpeedRPM:        2500,
		FiringMode:      "sequential",
		DutyPercent:     30,
	}
	if got := env.store.Current(); got != want {
		t.Errorf("store: got %+v, want %+v", got, want)
	}

	reloaded := config.NewStore(env.store.Path())
	if got, _ := reloaded.Load(); got != want {
		t.Errorf("persisted: got %+v, want %+v", got, want)
	}

	sj := getStatus(t, env.ts.URL)
	if sj.Status.SettingsReplaced {
		t.Error("settings_replaced should clear after a save")
	}
	if sj.Status.Settings.SpeedRPM != 2500 {
		t.Errorf("status settings: got %+v", sj.Status.Settings)
	}
}

func TestSettingsPostRejected(t *testing.T) {
	tests := []struct {
		name    string
		running bool
		body    string
		want    int
	}{
		{"bad json", false, "{", http.StatusBadRequest},
		{"bad firing mode", false, `{"numInjectors":4,"workTimeMinutes":1,"injectionMode":720,"speedRpm":1000,"firingMode":"wasted","dutyPercent":50}`, http.StatusBadRequest},
		{"bad injection mode", false, `{"numInjectors":4,"workTimeMinutes":1,"injectionMode":540,"speedRpm":1000,"firingMode":"batch","dutyPercent":50}`, http.StatusBadRequest},
		{"while running", true, `{"numInjectors":2,"workTimeMinutes":1,"injectionMode":720,"speedRpm":1000,"firingMode":"batch","dutyPercent":50}`, http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestServer(t)
			env.tracker.UpdateSession(status.Session{Running: tt.running})

			resp, err := http.Post(env.ts.URL+"/api/settings", "application/json", strings.NewReader(tt.body))
			if err != nil {
				t.Fatalf("POST /api/settings: %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Errorf("status: got %d, want %d", resp.StatusCode, tt.want)
			}
			if env.store.Current() != config.Factory() {
				t.Error("rejected settings must not be stored")
			}
		})
	}
}

func TestWebsocketFeed(t *testing.T) {
	env := newTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go env.srv.RunFeed(ctx, 10*time.Millisecond)

	wsURL := "ws" + strings.TrimPrefix(env.ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var first status.StatusJSON
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read initial frame: %v", err)
	}
	if first.Status.State != "STOPPED" {
		t.Errorf("initial state: got %q", first.Status.State)
	}

	env.tracker.UpdateSession(status.Session{Running: true, Profile: logic.ProfileLeakTest, Countdown: 10})

	for {
		var sj status.StatusJSON
		if err := conn.ReadJSON(&sj); err != nil {
			t.Fatalf("read update: %v", err)
		}
		if sj.Status.State == "RUNNING" {
			if sj.Status.Profile != "leak" || sj.Status.Countdown != 10 {
				t.Errorf("update: got %+v", sj.Status)
			}
			return
		}
	}
}
