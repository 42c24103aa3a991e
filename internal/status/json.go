package status

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/sweeney/injector-bench/internal/config"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event            string          `json:"event,omitempty"`
	Reason           string          `json:"reason,omitempty"`
	State            string          `json:"state"`
	Profile          string          `json:"profile,omitempty"`
	Countdown        uint            `json:"countdown"`
	Remaining        string          `json:"remaining"`
	FiringMode       string          `json:"firing_mode"`
	ActiveChannel    int             `json:"active_channel"`
	SweepIndex       int             `json:"sweep_index"`
	Channels         []ChannelJSON   `json:"channels"`
	Plan             PlanJSON        `json:"plan"`
	Settings         config.Settings `json:"settings"`
	SettingsReplaced bool            `json:"settings_replaced"`
	Counts           CountsJSON      `json:"counts"`
	LastStopReason   string          `json:"last_stop_reason,omitempty"`
	UptimeSeconds    int64           `json:"uptime_seconds"`
	StartTime        string          `json:"start_time"`
	Timestamp        string          `json:"timestamp"`
	MQTT             MQTTStatus      `json:"mqtt"`
	Config           ConfigJSON      `json:"config"`
}

// ChannelJSON reports one injector output.
type ChannelJSON struct {
	Index   int  `json:"index"`
	Enabled bool `json:"enabled"`
	Open    bool `json:"open"`
}

// PlanJSON is the timing plan in microseconds.
type PlanJSON struct {
	CycleUs       int64 `json:"cycle_us"`
	OpenUs        int64 `json:"open_us"`
	CloseUs       int64 `json:"close_us"`
	PhaseOffsetUs int64 `json:"phase_offset_us"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of session counters.
type CountsJSON struct {
	Sessions  int `json:"sessions"`
	Completed int `json:"completed"`
	Aborted   int `json:"aborted"`
	Toggles   int `json:"open_pulses"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	PollUs      int64  `json:"poll_us"`
	HeartbeatMs int64  `json:"heartbeat_ms"`
	Broker      string `json:"broker"`
	HTTPAddr    string `json:"http_addr"`
	SerialPort  string `json:"serial_port,omitempty"`
}

// FormatCountdown renders remaining seconds as H:MM:SS.
func FormatCountdown(seconds uint) string {
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	return fmt.Sprintf("%d:%02d:%02d", h, m, s)
}

// StateString returns RUNNING or STOPPED.
func (s Session) StateString() string {
	if s.Running {
		return "RUNNING"
	}
	return "STOPPED"
}

func buildInner(snap Snapshot) StatusInner {
	sess := snap.Session
	channels := make([]ChannelJSON, len(sess.Levels))
	for i := range sess.Levels {
		channels[i] = ChannelJSON{Index: i, Enabled: sess.Enabled[i], Open: sess.Levels[i]}
	}

	return StatusInner{
		State:         sess.StateString(),
		Profile:       string(sess.Profile),
		Countdown:     sess.Countdown,
		Remaining:     FormatCountdown(sess.Countdown),
		FiringMode:    string(sess.FiringMode),
		ActiveChannel: sess.ActiveChannel,
		SweepIndex:    sess.SweepIndex,
		Channels:      channels,
		Plan: PlanJSON{
			CycleUs:       sess.Plan.Cycle.Microseconds(),
			OpenUs:        sess.Plan.Open.Microseconds(),
			CloseUs:       sess.Plan.Close.Microseconds(),
			PhaseOffsetUs: sess.Plan.PhaseOffset.Microseconds(),
		},
		Settings:         snap.Settings,
		SettingsReplaced: snap.SettingsReplaced,
		Counts: CountsJSON{
			Sessions:  snap.Counts.Sessions,
			Completed: snap.Counts.Completed,
			Aborted:   snap.Counts.Aborted,
			Toggles:   snap.Counts.Toggles,
		},
		LastStopReason: snap.LastStopReason,
		UptimeSeconds:  int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:      snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:      snap.Now.UTC().Format(time.RFC3339),
		MQTT:           MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Config: ConfigJSON{
			PollUs:      snap.Config.PollUs,
			HeartbeatMs: snap.Config.HeartbeatMs,
			Broker:      snap.Config.Broker,
			HTTPAddr:    snap.Config.HTTPAddr,
			SerialPort:  snap.Config.SerialPort,
		},
	}
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
