package logic

import "fmt"

// sequentialHandoff is the toggle count on the active channel after which the
// next channel takes over: one open edge plus one close edge.
const sequentialHandoff = 1

// Scheduler decides which channels are ticked on each loop iteration.
type Scheduler struct {
	drivers      [MaxChannels]*PulseDriver
	mode         FiringMode
	channelCount int

	// sequential state
	active  int
	toggles int
}

// NewScheduler creates a scheduler for channelCount channels (1..MaxChannels).
func NewScheduler(mode FiringMode, channelCount uint) (*Scheduler, error) {
	s := &Scheduler{}
	for i := range s.drivers {
		s.drivers[i] = NewPulseDriver(i)
	}
	if err := s.Configure(mode, channelCount); err != nil {
		return nil, err
	}
	return s, nil
}

// Configure sets the firing mode and channel count for the next session.
// It must not be called while a session is running.
func (s *Scheduler) Configure(mode FiringMode, channelCount uint) error {
	if !mode.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
	if channelCount == 0 || channelCount > MaxChannels {
		return fmt.Errorf("%w: channel count %d outside 1-%d", ErrDegenerate, channelCount, MaxChannels)
	}
	s.mode = mode
	s.channelCount = int(channelCount)
	for i, d := range s.drivers {
		d.SetEnabled(i < s.channelCount)
	}
	s.active = 0
	s.toggles = 0
	return nil
}

// Mode returns the configured firing mode.
func (s *Scheduler) Mode() FiringMode { return s.mode }

// ChannelCount returns the number of enabled channels.
func (s *Scheduler) ChannelCount() int { return s.channelCount }

// ActiveChannel returns the channel currently being fired in sequential mode,
// or -1 in batch mode.
func (s *Scheduler) ActiveChannel() int {
	if s.mode != Sequential {
		return -1
	}
	return s.active
}

// Levels returns the commanded level of every physical channel.
func (s *Scheduler) Levels() [MaxChannels]bool {
	var out [MaxChannels]bool
	for i, d := range s.drivers {
		out[i] = d.IsOpen()
	}
	return out
}

// Enabled returns which physical channels take part in the session.
func (s *Scheduler) Enabled() [MaxChannels]bool {
	var out [MaxChannels]bool
	for i, d := range s.drivers {
		out[i] = d.Enabled()
	}
	return out
}

// Tick evaluates the channels for one loop iteration. Every channel sees the
// same now value.
func (s *Scheduler) Tick(now Micros, plan TimingPlan) []Toggle {
	switch s.mode {
	case Batch:
		return s.tickBatch(now, plan)
	case Sequential:
		return s.tickSequential(now, plan)
	default:
		// Configure rejects anything else.
		return nil
	}
}

func (s *Scheduler) tickBatch(now Micros, plan TimingPlan) []Toggle {
	var toggles []Toggle
	for _, d := range s.drivers[:s.channelCount] {
		if t, ok := d.Tick(now, plan); ok {
			toggles = append(toggles, t)
		}
	}
	return toggles
}

func (s *Scheduler) tickSequential(now Micros, plan TimingPlan) []Toggle {
	t, ok := s.drivers[s.active].Tick(now, plan)
	if !ok {
		return nil
	}
	s.toggles++
	if s.toggles > sequentialHandoff {
		s.active = (s.active + 1) % s.channelCount
		s.toggles = 0
	}
	return []Toggle{t}
}

// ForceLow closes every physical channel and rewinds the sequential state.
// The returned toggles cover all channels so the caller can write each one low.
func (s *Scheduler) ForceLow(now Micros) []Toggle {
	toggles := make([]Toggle, 0, MaxChannels)
	for _, d := range s.drivers {
		d.Reset(now)
		toggles = append(toggles, Toggle{Channel: d.Index(), High: false})
	}
	s.active = 0
	s.toggles = 0
	return toggles
}
