// Package status provides a thread-safe status tracker for the injector-bench daemon.
// It is written by the control loop and read by HTTP handlers, the websocket
// feed and MQTT system events.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/injector-bench/internal/config"
	"github.com/sweeney/injector-bench/internal/logic"
)

// Config contains daemon configuration for display.
type Config struct {
	PollUs      int64
	HeartbeatMs int64
	Broker      string
	HTTPAddr    string
	SerialPort  string
}

// Session is the control loop's view of the running test.
type Session struct {
	Running       bool
	Profile       logic.ProfileKind
	Countdown     uint
	Levels        [logic.MaxChannels]bool
	Enabled       [logic.MaxChannels]bool
	ActiveChannel int
	FiringMode    logic.FiringMode
	Plan          logic.TimingPlan
	SweepIndex    int
}

// Counts tracks session outcomes and output activity since startup.
type Counts struct {
	Sessions  int
	Completed int
	Aborted   int
	Toggles   int
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type and safe to use after the lock is released.
type Snapshot struct {
	Session          Session
	Settings         config.Settings
	SettingsReplaced bool
	Counts           Counts
	LastStopReason   string
	StartTime        time.Time
	Now              time.Time
	MQTTConnected    bool
	Config           Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
			Session:   Session{ActiveChannel: -1},
		},
	}
}

// UpdateSession replaces the session view.
// Called from runLoop whenever the session produced events.
func (t *Tracker) UpdateSession(s Session) {
	t.mu.Lock()
	t.snap.Session = s
	t.mu.Unlock()
}

// Record folds session events into the counters.
func (t *Tracker) Record(events []logic.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, e := range events {
		switch e.Type {
		case logic.EventStarted:
			t.snap.Counts.Sessions++
		case logic.EventStopped:
			if e.Reason == logic.ReasonComplete {
				t.snap.Counts.Completed++
			} else {
				t.snap.Counts.Aborted++
			}
			t.snap.LastStopReason = e.Reason
		case logic.EventChannel:
			if e.High {
				t.snap.Counts.Toggles++
			}
		}
	}
}

// SetSettings records the settings in force and whether they were restored
// from factory defaults.
func (t *Tracker) SetSettings(s config.Settings, replaced bool) {
	t.mu.Lock()
	t.snap.Settings = s
	t.snap.SettingsReplaced = replaced
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
