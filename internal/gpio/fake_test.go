package gpio

import (
	"errors"
	"testing"
)

func TestFakeWriterRecordsWrites(t *testing.T) {
	f := NewFakeWriter()

	if err := f.Set(0, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := f.Set(3, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := f.Set(0, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []Write{{0, true}, {3, true}, {0, false}}
	if len(f.Writes) != len(want) {
		t.Fatalf("expected %d writes, got %d", len(want), len(f.Writes))
	}
	for i := range want {
		if f.Writes[i] != want[i] {
			t.Errorf("write %d: got %+v, want %+v", i, f.Writes[i], want[i])
		}
	}
	if f.Levels != [4]bool{false, false, false, true} {
		t.Errorf("unexpected levels: %v", f.Levels)
	}
	if !f.AnyHigh() {
		t.Error("expected AnyHigh with channel 3 high")
	}
}

func TestFakeWriterRejectsUnwiredChannel(t *testing.T) {
	f := NewFakeWriter()
	if err := f.Set(4, true); err == nil {
		t.Error("expected error for channel 4")
	}
	if len(f.Writes) != 0 {
		t.Errorf("expected no writes recorded, got %d", len(f.Writes))
	}
}

func TestFakeWriterError(t *testing.T) {
	f := NewFakeWriter()
	f.SetError = errors.New("simulated error")

	if err := f.Set(1, true); err == nil || err.Error() != "simulated error" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestFakeWriterCloseDrivesLow(t *testing.T) {
	f := NewFakeWriter()
	f.Set(1, true)
	f.Set(2, true)

	if err := f.Close(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if !f.Closed {
		t.Error("should be closed after Close()")
	}
	if f.AnyHigh() {
		t.Errorf("outputs should be low after Close, got %v", f.Levels)
	}
}

func TestFakeReaderRead(t *testing.T) {
	f := NewFakeReader([]bool{false, true, false})

	for i, want := range []bool{false, true, false, false} {
		got, err := f.Read()
		if err != nil {
			t.Fatalf("read %d: unexpected error: %v", i, err)
		}
		if got != want {
			t.Errorf("read %d: got %v, want %v", i, got, want)
		}
	}
}

func TestFakeReaderNoSamples(t *testing.T) {
	f := NewFakeReader(nil)

	if _, err := f.Read(); err == nil {
		t.Error("expected error with no samples")
	}
}

func TestFakeReaderError(t *testing.T) {
	f := NewFakeReader([]bool{true})
	f.ReadError = errors.New("simulated error")

	_, err := f.Read()
	if err == nil {
		t.Error("expected error to be returned")
	}
	if err.Error() != "simulated error" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestFakeReaderReset(t *testing.T) {
	f := NewFakeReader([]bool{true, false})
	f.Read()
	f.Reset()

	got, _ := f.Read()
	if !got {
		t.Error("after reset: expected first sample again")
	}
}

func TestNopReader(t *testing.T) {
	var r Reader = NopReader{}
	pressed, err := r.Read()
	if err != nil || pressed {
		t.Errorf("NopReader.Read: got (%v, %v)", pressed, err)
	}
}
