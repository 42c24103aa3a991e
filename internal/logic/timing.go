package logic

import (
	"fmt"
	"time"
)

// cycleScaleMicros scales 60/(rpm/degrees) so that 1000 rpm over 720 degrees
// yields 43200 µs.
const cycleScaleMicros = 60 * 1000

// CycleDuration returns the length of one injection cycle, truncated to whole
// microseconds. speedRPM must be non-zero.
func CycleDuration(speedRPM uint, degrees CycleDegrees) time.Duration {
	us := uint64(cycleScaleMicros) * uint64(degrees) / uint64(speedRPM)
	return time.Duration(us) * time.Microsecond
}

// OpenDuration returns duty% of the cycle, truncated to whole microseconds.
func OpenDuration(speedRPM, dutyPercent uint, degrees CycleDegrees) time.Duration {
	cycleUS := uint64(CycleDuration(speedRPM, degrees) / time.Microsecond)
	return time.Duration(uint64(dutyPercent)*cycleUS/100) * time.Microsecond
}

// ComputeTimingPlan derives the pulse durations for profile spread over
// channelCount injectors.
func ComputeTimingPlan(profile EngineProfile, channelCount uint) (TimingPlan, error) {
	if err := profile.Validate(); err != nil {
		return TimingPlan{}, err
	}
	if channelCount == 0 {
		return TimingPlan{}, fmt.Errorf("%w: channel count must be >= 1", ErrDegenerate)
	}

	cycle := CycleDuration(profile.SpeedRPM, profile.CycleDegrees)
	open := OpenDuration(profile.SpeedRPM, profile.DutyPercent, profile.CycleDegrees)

	return TimingPlan{
		Cycle:       cycle,
		Open:        open,
		Close:       cycle - open,
		PhaseOffset: cycle / time.Duration(channelCount),
	}, nil
}

// FixedTimingPlan builds a plan from explicit on/off times, independent of
// any engine model.
func FixedTimingPlan(open, closed time.Duration, channelCount uint) (TimingPlan, error) {
	if channelCount == 0 {
		return TimingPlan{}, fmt.Errorf("%w: channel count must be >= 1", ErrDegenerate)
	}
	if open <= 0 || closed <= 0 {
		return TimingPlan{}, fmt.Errorf("%w: on/off times must be positive", ErrDegenerate)
	}
	cycle := open + closed
	return TimingPlan{
		Cycle:       cycle,
		Open:        open,
		Close:       closed,
		PhaseOffset: cycle / time.Duration(channelCount),
	}, nil
}
