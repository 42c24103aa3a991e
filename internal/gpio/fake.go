package gpio

import (
	"errors"
	"fmt"
)

// Write records a single call to FakeWriter.Set.
type Write struct {
	Channel int
	High    bool
}

// FakeWriter is a test double that records output writes.
type FakeWriter struct {
	// Writes contains every Set call in order.
	Writes []Write

	// Levels holds the last level written to each channel.
	Levels [4]bool

	// SetError, if set, will be returned by Set (the write is still recorded).
	SetError error

	// Closed tracks if Close was called
	Closed bool
}

// NewFakeWriter creates a FakeWriter with all outputs low.
func NewFakeWriter() *FakeWriter {
	return &FakeWriter{}
}

// Set records the write.
func (f *FakeWriter) Set(channel int, high bool) error {
	if channel < 0 || channel >= len(f.Levels) {
		return fmt.Errorf("channel %d not wired", channel)
	}
	f.Writes = append(f.Writes, Write{Channel: channel, High: high})
	f.Levels[channel] = high
	return f.SetError
}

// Close drives every output low and marks the writer as closed.
func (f *FakeWriter) Close() error {
	f.Levels = [4]bool{}
	f.Closed = true
	return nil
}

// AnyHigh reports whether any output is currently high.
func (f *FakeWriter) AnyHigh() bool {
	for _, l := range f.Levels {
		if l {
			return true
		}
	}
	return false
}

// Reset clears recorded writes.
func (f *FakeWriter) Reset() {
	f.Writes = nil
	f.Levels = [4]bool{}
	f.SetError = nil
	f.Closed = false
}

// FakeReader is a test double that returns scripted stop button values.
type FakeReader struct {
	// Samples contains scripted pressed values to return.
	// Each call to Read() consumes the next sample.
	Samples []bool

	// index tracks current position in Samples
	index int

	// Closed tracks if Close was called
	Closed bool

	// ReadError, if set, will be returned by Read()
	ReadError error
}

// NewFakeReader creates a FakeReader with the given samples.
func NewFakeReader(samples []bool) *FakeReader {
	return &FakeReader{Samples: samples}
}

// Read returns the next scripted sample.
// If samples are exhausted, returns the last sample repeatedly.
func (f *FakeReader) Read() (bool, error) {
	if f.ReadError != nil {
		return false, f.ReadError
	}

	if len(f.Samples) == 0 {
		return false, errors.New("no samples configured")
	}

	sample := f.Samples[f.index]
	if f.index < len(f.Samples)-1 {
		f.index++
	}

	return sample, nil
}

// Close marks the reader as closed.
func (f *FakeReader) Close() error {
	f.Closed = true
	return nil
}

// Reset resets the reader to the beginning of samples.
func (f *FakeReader) Reset() {
	f.index = 0
	f.Closed = false
}
