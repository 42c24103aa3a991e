// Package config holds the persisted bench settings and the daemon options.
package config

import (
	"errors"
	"fmt"

	"golang.org/x/exp/constraints"

	"github.com/sweeney/injector-bench/internal/logic"
)

// Version tags the settings record layout. Records with any other tag are
// replaced by factory settings.
const Version = "VER01"

// Settings ranges as exposed on the front panel.
const (
	MinInjectors = 1
	MaxInjectors = logic.MaxChannels
	MinWorkTime  = 1
	MaxWorkTime  = 60
	MinRPM       = 500
	MaxRPM       = 8000
	RPMStep      = 50
	MinDuty      = 1
	MaxDuty      = 90
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid settings")

// Settings is the persisted user configuration record.
type Settings struct {
	Version         string `yaml:"version" json:"version"`
	NumInjectors    uint   `yaml:"num_injectors" json:"numInjectors"`
	WorkTimeMinutes uint   `yaml:"work_time_minutes" json:"workTimeMinutes"`
	InjectionMode   uint   `yaml:"injection_mode" json:"injectionMode"` // 360 or 720 degrees
	SpeedRPM        uint   `yaml:"speed_rpm" json:"speedRpm"`
	FiringMode      string `yaml:"firing_mode" json:"firingMode"` // "batch" or "sequential"
	DutyPercent     uint   `yaml:"duty_percent" json:"dutyPercent"`
}

// Factory returns the factory default settings.
func Factory() Settings {
	return Settings{
		Version:         Version,
		NumInjectors:    4,
		WorkTimeMinutes: 1,
		InjectionMode:   uint(logic.Cam720),
		SpeedRPM:        1000,
		FiringMode:      string(logic.Batch),
		DutyPercent:     50,
	}
}

// Validate checks every field against its range.
func (s Settings) Validate() error {
	if s.Version != Version {
		return fmt.Errorf("%w: version %q, want %q", ErrInvalid, s.Version, Version)
	}
	if s.NumInjectors < MinInjectors || s.NumInjectors > MaxInjectors {
		return fmt.Errorf("%w: num_injectors %d outside %d-%d", ErrInvalid, s.NumInjectors, MinInjectors, MaxInjectors)
	}
	if s.WorkTimeMinutes < MinWorkTime || s.WorkTimeMinutes > MaxWorkTime {
		return fmt.Errorf("%w: work_time_minutes %d outside %d-%d", ErrInvalid, s.WorkTimeMinutes, MinWorkTime, MaxWorkTime)
	}
	if !logic.CycleDegrees(s.InjectionMode).Valid() {
		return fmt.Errorf("%w: injection_mode %d, want 360 or 720", ErrInvalid, s.InjectionMode)
	}
	if s.SpeedRPM < MinRPM || s.SpeedRPM > MaxRPM || s.SpeedRPM%RPMStep != 0 {
		return fmt.Errorf("%w: speed_rpm %d outside %d-%d step %d", ErrInvalid, s.SpeedRPM, MinRPM, MaxRPM, RPMStep)
	}
	if !logic.FiringMode(s.FiringMode).Valid() {
		return fmt.Errorf("%w: firing_mode %q", ErrInvalid, s.FiringMode)
	}
	if s.DutyPercent < MinDuty || s.DutyPercent > MaxDuty {
		return fmt.Errorf("%w: duty_percent %d outside %d-%d", ErrInvalid, s.DutyPercent, MinDuty, MaxDuty)
	}
	return nil
}

// Normalize clamps the numeric fields into range the way the panel fields
// wrap at their limits, and snaps the speed down to the RPM step.
// Enumerated fields are left for Validate to reject.
func (s Settings) Normalize() Settings {
	s.NumInjectors = clamp(s.NumInjectors, MinInjectors, MaxInjectors)
	s.WorkTimeMinutes = clamp(s.WorkTimeMinutes, MinWorkTime, MaxWorkTime)
	s.SpeedRPM = clamp(s.SpeedRPM, MinRPM, MaxRPM)
	s.SpeedRPM -= s.SpeedRPM % RPMStep
	s.DutyPercent = clamp(s.DutyPercent, MinDuty, MaxDuty)
	return s
}

// Logic converts the record into the values the session consumes.
func (s Settings) Logic() logic.Settings {
	return logic.Settings{
		NumInjectors:    s.NumInjectors,
		WorkTimeMinutes: s.WorkTimeMinutes,
		CycleDegrees:    logic.CycleDegrees(s.InjectionMode),
		SpeedRPM:        s.SpeedRPM,
		FiringMode:      logic.FiringMode(s.FiringMode),
		DutyPercent:     s.DutyPercent,
	}
}

func clamp[T constraints.Ordered](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
