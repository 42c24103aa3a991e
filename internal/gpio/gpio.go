// Package gpio drives the injector outputs and reads the stop button.
// The real implementation uses the Linux GPIO character device.
// The fake implementations allow testing without hardware.
package gpio

// Writer sets injector output levels.
type Writer interface {
	// Set drives channel high (injector open) or low.
	Set(channel int, high bool) error

	// Close drives every output low and releases GPIO resources.
	Close() error
}

// Reader reads the hardware stop button.
type Reader interface {
	// Read returns true while the stop button is pressed.
	Read() (bool, error)

	// Close releases GPIO resources.
	Close() error
}

// NopReader is used when no stop button is wired.
type NopReader struct{}

func (NopReader) Read() (bool, error) { return false, nil }
func (NopReader) Close() error        { return nil }
