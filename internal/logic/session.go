package logic

import (
	"fmt"
	"time"
)

// Reference operating points for the fixed profiles.
const (
	LowRPMSpeed  uint = 800
	HighRPMSpeed uint = 7500
	FactoryDuty  uint = 50
)

// Leak test parameters.
const (
	LeakTestSeconds uint = 10
	LeakPulse            = 4 * time.Millisecond
	SweepInterval        = 2 * time.Second

	// leakSweepWrap is where the sweep index returns to 0. The table has five
	// entries but the sweep only ever visits the first four.
	leakSweepWrap = 4
)

// CountdownInterval is the countdown resolution.
const CountdownInterval = time.Second

// Session owns the test state: stopped or running one profile with a
// countdown, plus the leak test sweep. It drives the Scheduler.
type Session struct {
	sched *Scheduler

	running    bool
	kind       ProfileKind
	countdown  uint
	lastSecond Micros
	lastSweep  Micros
	sweepIndex int
	degrees    CycleDegrees
	channels   uint
	plan       TimingPlan

	leakSeconds uint
}

// NewSession creates a stopped session driving sched.
func NewSession(sched *Scheduler) *Session {
	return &Session{
		sched:       sched,
		leakSeconds: LeakTestSeconds,
	}
}

// Running reports whether a test is in progress.
func (s *Session) Running() bool { return s.running }

// Kind returns the running profile, or "" when stopped.
func (s *Session) Kind() ProfileKind {
	if !s.running {
		return ""
	}
	return s.kind
}

// Countdown returns the remaining seconds of the current session.
func (s *Session) Countdown() uint { return s.countdown }

// Plan returns the timing plan currently in force.
func (s *Session) Plan() TimingPlan { return s.plan }

// SweepIndex returns the index of the next leak table entry to apply.
func (s *Session) SweepIndex() int { return s.sweepIndex }

// Levels returns the commanded level of every channel.
func (s *Session) Levels() [MaxChannels]bool { return s.sched.Levels() }

// Enabled returns which channels take part in the session.
func (s *Session) Enabled() [MaxChannels]bool { return s.sched.Enabled() }

// ActiveChannel returns the sequential active channel, or -1.
func (s *Session) ActiveChannel() int { return s.sched.ActiveChannel() }

// FiringMode returns the firing mode of the current or last session.
func (s *Session) FiringMode() FiringMode { return s.sched.Mode() }

// Start begins a session. Starting while running is rejected with
// ErrAlreadyRunning and leaves the running session untouched.
func (s *Session) Start(kind ProfileKind, settings Settings, now Micros) ([]Event, error) {
	if s.running {
		return nil, ErrAlreadyRunning
	}

	if err := s.sched.Configure(settings.FiringMode, settings.NumInjectors); err != nil {
		return nil, fmt.Errorf("configure scheduler: %w", err)
	}

	var (
		plan      TimingPlan
		countdown uint
		err       error
	)
	engine := EngineProfile{
		DutyPercent:  FactoryDuty,
		CycleDegrees: settings.CycleDegrees,
	}
	switch kind {
	case ProfileLowRPM:
		engine.SpeedRPM = LowRPMSpeed
		plan, err = ComputeTimingPlan(engine, settings.NumInjectors)
		countdown = settings.WorkTimeMinutes * 60
	case ProfileHighRPM:
		engine.SpeedRPM = HighRPMSpeed
		plan, err = ComputeTimingPlan(engine, settings.NumInjectors)
		countdown = settings.WorkTimeMinutes * 60
	case ProfileManual:
		engine.SpeedRPM = settings.SpeedRPM
		engine.DutyPercent = settings.DutyPercent
		plan, err = ComputeTimingPlan(engine, settings.NumInjectors)
		countdown = settings.WorkTimeMinutes * 60
	case ProfileLeakTest:
		plan, err = FixedTimingPlan(LeakPulse, LeakPulse, settings.NumInjectors)
		countdown = s.leakSeconds
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProfile, kind)
	}
	if err != nil {
		return nil, fmt.Errorf("compute timing for %s: %w", kind, err)
	}
	if countdown == 0 {
		return nil, fmt.Errorf("%w: work time must be >= 1 minute", ErrDegenerate)
	}

	events := channelEvents(s.sched.ForceLow(now))

	s.running = true
	s.kind = kind
	s.countdown = countdown
	s.lastSecond = now
	s.lastSweep = now
	s.sweepIndex = 0
	s.degrees = settings.CycleDegrees
	s.channels = settings.NumInjectors
	s.plan = plan

	return append(events, Event{
		Type:      EventStarted,
		Profile:   kind,
		Countdown: countdown,
		Plan:      plan,
	}), nil
}

// Tick advances the session by one loop iteration. The sweep and countdown
// accumulators run on their own cadences; pulses are evaluated last, and not
// at all in the iteration where the countdown expires.
func (s *Session) Tick(now Micros) []Event {
	if !s.running {
		return nil
	}

	var events []Event

	if s.kind == ProfileLeakTest && now.Since(s.lastSweep) >= SweepInterval {
		if ev, ok := s.advanceSweep(); ok {
			events = append(events, ev)
		}
		s.lastSweep = now
	}

	if now.Since(s.lastSecond) >= CountdownInterval {
		if s.countdown > 0 {
			s.countdown--
		}
		s.lastSecond = now
		events = append(events, Event{Type: EventCountdown, Countdown: s.countdown, Profile: s.kind})
		if s.countdown == 0 {
			return append(events, s.Stop(now, ReasonComplete)...)
		}
	}

	return append(events, channelEvents(s.sched.Tick(now, s.plan))...)
}

// advanceSweep applies the current leak table entry and moves the index on.
func (s *Session) advanceSweep() (Event, bool) {
	idx := s.sweepIndex
	entry := LeakProfileTable[idx]
	plan, err := ComputeTimingPlan(EngineProfile{
		SpeedRPM:     entry.SpeedRPM,
		DutyPercent:  entry.DutyPercent,
		CycleDegrees: s.degrees,
	}, s.channels)

	s.sweepIndex++
	if s.sweepIndex == leakSweepWrap {
		s.sweepIndex = 0
	}

	if err != nil {
		return Event{}, false
	}
	s.plan = plan
	return Event{Type: EventSweep, Profile: s.kind, Sweep: idx, Plan: plan}, true
}

// Stop forces every channel low and returns to Stopped. It is safe to call
// when already stopped; the channels are still forced low but no
// EventStopped is produced.
func (s *Session) Stop(now Micros, reason string) []Event {
	events := channelEvents(s.sched.ForceLow(now))
	if !s.running {
		return events
	}
	s.running = false
	return append(events, Event{
		Type:      EventStopped,
		Profile:   s.kind,
		Countdown: s.countdown,
		Reason:    reason,
	})
}

func channelEvents(toggles []Toggle) []Event {
	if len(toggles) == 0 {
		return nil
	}
	events := make([]Event, len(toggles))
	for i, t := range toggles {
		events[i] = Event{Type: EventChannel, Channel: t.Channel, High: t.High}
	}
	return events
}
