package logic

// Toggle reports a level change on one channel.
type Toggle struct {
	Channel int
	High    bool
}

// PulseDriver runs the open/close state machine for a single channel.
// It never blocks: each Tick compares the elapsed time since the last toggle
// against the threshold for the current level.
type PulseDriver struct {
	index      int
	enabled    bool
	open       bool
	lastToggle Micros
}

// NewPulseDriver creates a closed, disabled driver for channel index.
func NewPulseDriver(index int) *PulseDriver {
	return &PulseDriver{index: index}
}

// Index returns the physical channel number.
func (p *PulseDriver) Index() int { return p.index }

// Enabled reports whether the channel takes part in the session.
func (p *PulseDriver) Enabled() bool { return p.enabled }

// SetEnabled includes or excludes the channel. It does not change the level.
func (p *PulseDriver) SetEnabled(enabled bool) { p.enabled = enabled }

// IsOpen reports the commanded level (true = injector open, output high).
func (p *PulseDriver) IsOpen() bool { return p.open }

// LastToggle returns the timestamp of the last level change or reset.
func (p *PulseDriver) LastToggle() Micros { return p.lastToggle }

// Tick toggles the channel if it has held its current level for longer than
// the plan allows. At most one toggle happens per call. A late call toggles
// immediately; the overrun is not compensated.
func (p *PulseDriver) Tick(now Micros, plan TimingPlan) (Toggle, bool) {
	if !p.enabled {
		return Toggle{}, false
	}

	threshold := plan.Close
	if p.open {
		threshold = plan.Open
	}

	if now.Since(p.lastToggle) <= threshold {
		return Toggle{}, false
	}

	p.open = !p.open
	p.lastToggle = now
	return Toggle{Channel: p.index, High: p.open}, true
}

// Reset forces the channel closed and restarts its timing from now.
// The caller must drive the output low.
func (p *PulseDriver) Reset(now Micros) {
	p.open = false
	p.lastToggle = now
}
