//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// RealWriter drives injector outputs using the Linux GPIO character device.
type RealWriter struct {
	chip  *gpiocdev.Chip
	lines []*gpiocdev.Line
}

// NewRealWriter requests one output line per channel, all initially low.
func NewRealWriter(chipName string, offsets []int) (*RealWriter, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	w := &RealWriter{chip: chip}
	for ch, offset := range offsets {
		line, err := chip.RequestLine(offset, gpiocdev.AsOutput(0), gpiocdev.WithConsumer("injector-bench"))
		if err != nil {
			w.Close()
			return nil, fmt.Errorf("request channel %d pin %d: %w", ch, offset, err)
		}
		w.lines = append(w.lines, line)
	}
	return w, nil
}

// Set drives channel high or low.
func (w *RealWriter) Set(channel int, high bool) error {
	if channel < 0 || channel >= len(w.lines) {
		return fmt.Errorf("channel %d not wired", channel)
	}
	v := 0
	if high {
		v = 1
	}
	if err := w.lines[channel].SetValue(v); err != nil {
		return fmt.Errorf("set channel %d: %w", channel, err)
	}
	return nil
}

// Close drives every output low, then returns the lines to inputs with
// pull-down so the injector drivers stay off while the daemon is not running.
func (w *RealWriter) Close() error {
	var errs []error

	for ch, line := range w.lines {
		if err := line.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("drive channel %d low: %w", ch, err))
		}
		if err := line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure channel %d: %w", ch, err))
		}
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close channel %d: %w", ch, err))
		}
	}
	w.lines = nil
	if w.chip != nil {
		if err := w.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
		w.chip = nil
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

// RealReader reads a normally-open stop button wired to ground.
type RealReader struct {
	chip *gpiocdev.Chip
	pin  *gpiocdev.Line
}

// NewRealReader requests the stop button line as an active-low input with pull-up.
func NewRealReader(chipName string, offset int) (*RealReader, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	line, err := chip.RequestLine(offset, gpiocdev.AsInput, gpiocdev.WithPullUp, gpiocdev.AsActiveLow)
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request stop pin %d: %w", offset, err)
	}

	return &RealReader{chip: chip, pin: line}, nil
}

// Read returns true while the button is pressed.
func (r *RealReader) Read() (bool, error) {
	v, err := r.pin.Value()
	if err != nil {
		return false, fmt.Errorf("read stop pin: %w", err)
	}
	return v == 1, nil
}

// Close releases GPIO resources.
func (r *RealReader) Close() error {
	var errs []error
	if r.pin != nil {
		if err := r.pin.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close stop pin: %w", err))
		}
	}
	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
