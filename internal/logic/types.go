// Package logic contains the pure injection timing and firing logic for the bench.
// This package has NO external dependencies (no GPIO, MQTT, OS, or time.Sleep).
// Time is always injectable via Micros parameters.
package logic

import (
	"errors"
	"fmt"
	"time"
)

// MaxChannels is the number of physical injector outputs on the bench.
const MaxChannels = 4

// Micros is a free-running microsecond counter. It wraps at 2^32 (about 71
// minutes), so differences must be taken with Since, never compared directly.
type Micros uint32

// Since returns the time elapsed from earlier to m using modular arithmetic.
func (m Micros) Since(earlier Micros) time.Duration {
	return time.Duration(uint32(m-earlier)) * time.Microsecond
}

// Add returns m advanced by d, wrapping like the hardware counter does.
func (m Micros) Add(d time.Duration) Micros {
	return m + Micros(uint32(d/time.Microsecond))
}

// CycleDegrees is the crank-angle span of one injection cycle.
type CycleDegrees uint

const (
	Crank360 CycleDegrees = 360
	Cam720   CycleDegrees = 720
)

// Valid reports whether c is one of the supported spans.
func (c CycleDegrees) Valid() bool {
	return c == Crank360 || c == Cam720
}

// FiringMode selects how channels are sequenced.
type FiringMode string

const (
	Batch      FiringMode = "batch"
	Sequential FiringMode = "sequential"
)

// Valid reports whether f is a known firing mode.
func (f FiringMode) Valid() bool {
	switch f {
	case Batch, Sequential:
		return true
	}
	return false
}

// ProfileKind identifies a test session profile.
type ProfileKind string

const (
	ProfileLowRPM   ProfileKind = "low"
	ProfileHighRPM  ProfileKind = "high"
	ProfileManual   ProfileKind = "manual"
	ProfileLeakTest ProfileKind = "leak"
)

// ParseProfileKind accepts the short names plus a few aliases used by the
// front panel ("idle", "load").
func ParseProfileKind(s string) (ProfileKind, error) {
	switch s {
	case "low", "idle", "lowrpm":
		return ProfileLowRPM, nil
	case "high", "load", "highrpm":
		return ProfileHighRPM, nil
	case "manual":
		return ProfileManual, nil
	case "leak", "leaktest":
		return ProfileLeakTest, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownProfile, s)
}

// Sentinel errors returned by the core.
var (
	ErrDegenerate     = errors.New("degenerate timing input")
	ErrAlreadyRunning = errors.New("session already running")
	ErrUnknownProfile = errors.New("unknown profile")
	ErrUnknownMode    = errors.New("unknown firing mode")
)

// EngineProfile is the simulated engine operating point.
type EngineProfile struct {
	SpeedRPM     uint
	DutyPercent  uint
	CycleDegrees CycleDegrees
}

// Validate rejects profiles the timing calculator cannot handle.
func (p EngineProfile) Validate() error {
	if p.SpeedRPM == 0 {
		return fmt.Errorf("%w: speed must be > 0", ErrDegenerate)
	}
	if p.DutyPercent == 0 || p.DutyPercent >= 100 {
		return fmt.Errorf("%w: duty %d%% outside 1-99", ErrDegenerate, p.DutyPercent)
	}
	if !p.CycleDegrees.Valid() {
		return fmt.Errorf("%w: cycle degrees %d", ErrDegenerate, p.CycleDegrees)
	}
	return nil
}

// TimingPlan is an immutable snapshot of pulse durations. A new plan always
// replaces the previous one as a whole value.
type TimingPlan struct {
	Cycle       time.Duration
	Open        time.Duration
	Close       time.Duration
	PhaseOffset time.Duration
}

// Settings is the subset of persisted configuration the session consumes.
type Settings struct {
	NumInjectors    uint
	WorkTimeMinutes uint
	CycleDegrees    CycleDegrees
	SpeedRPM        uint
	FiringMode      FiringMode
	DutyPercent     uint
}

// LeakProfile is one (duty, rpm) entry of the leak test sweep.
type LeakProfile struct {
	DutyPercent uint
	SpeedRPM    uint
}

// LeakProfileTable is the fixed leak test sweep.
var LeakProfileTable = [5]LeakProfile{
	{DutyPercent: 30, SpeedRPM: 800},
	{DutyPercent: 50, SpeedRPM: 1600},
	{DutyPercent: 40, SpeedRPM: 3200},
	{DutyPercent: 60, SpeedRPM: 4000},
	{DutyPercent: 80, SpeedRPM: 6000},
}

// Command is a request from a collaborator (web, MQTT, console, button) to
// the control loop.
type Command struct {
	Stop    bool
	Profile ProfileKind
	Source  string
}

func (c Command) String() string {
	if c.Stop {
		return "stop"
	}
	return "start " + string(c.Profile)
}

// EventType identifies an output of the session state machine.
type EventType string

const (
	EventChannel   EventType = "CHANNEL"
	EventCountdown EventType = "COUNTDOWN"
	EventSweep     EventType = "SWEEP"
	EventStarted   EventType = "STARTED"
	EventStopped   EventType = "STOPPED"
)

// Event is produced by Session for the output, display and publishing
// collaborators.
type Event struct {
	Type      EventType
	Channel   int
	High      bool
	Countdown uint
	Profile   ProfileKind
	Sweep     int
	Plan      TimingPlan
	Reason    string
}

// Stop reasons carried by EventStopped.
const (
	ReasonComplete = "complete"
	ReasonCommand  = "command"
	ReasonShutdown = "shutdown"
	ReasonButton   = "button"
)
