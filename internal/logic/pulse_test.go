package logic

import (
	"testing"
	"time"
)

var testPlan = TimingPlan{
	Cycle: 300 * time.Microsecond,
	Open:  100 * time.Microsecond,
	Close: 200 * time.Microsecond,
}

func enabledDriver(at Micros) *PulseDriver {
	d := NewPulseDriver(0)
	d.SetEnabled(true)
	d.Reset(at)
	return d
}

func TestPulseDriverDisabledNeverToggles(t *testing.T) {
	d := NewPulseDriver(2)
	for now := Micros(0); now < 10000; now += 50 {
		if _, ok := d.Tick(now, testPlan); ok {
			t.Fatalf("disabled driver toggled at %d", now)
		}
	}
	if d.IsOpen() {
		t.Error("disabled driver should stay closed")
	}
}

func TestPulseDriverThresholdIsExclusive(t *testing.T) {
	d := enabledDriver(0)

	// Closed: needs elapsed > 200µs
	if _, ok := d.Tick(200, testPlan); ok {
		t.Fatal("should not open at exactly the close threshold")
	}
	tg, ok := d.Tick(201, testPlan)
	if !ok || !tg.High {
		t.Fatalf("expected open at 201µs, got %+v ok=%v", tg, ok)
	}
	if d.LastToggle() != 201 {
		t.Errorf("LastToggle: got %d, want 201", d.LastToggle())
	}

	// Open: needs elapsed > 100µs
	if _, ok := d.Tick(301, testPlan); ok {
		t.Fatal("should not close at exactly the open threshold")
	}
	tg, ok = d.Tick(302, testPlan)
	if !ok || tg.High {
		t.Fatalf("expected close at 302µs, got %+v ok=%v", tg, ok)
	}
}

func TestPulseDriverStrictAlternation(t *testing.T) {
	d := enabledDriver(0)

	var toggles []Toggle
	for now := Micros(0); now < 20000; now += 7 {
		if tg, ok := d.Tick(now, testPlan); ok {
			toggles = append(toggles, tg)
		}
	}

	if len(toggles) < 10 {
		t.Fatalf("expected many toggles, got %d", len(toggles))
	}
	for i, tg := range toggles {
		wantHigh := i%2 == 0
		if tg.High != wantHigh {
			t.Fatalf("toggle %d: got High=%v, want %v", i, tg.High, wantHigh)
		}
	}
}

func TestPulseDriverAcrossCounterWrap(t *testing.T) {
	d := enabledDriver(0xFFFFFF00)

	// 0x10 is 272µs after 0xFFFFFF00 once the counter wraps.
	tg, ok := d.Tick(0x10, testPlan)
	if !ok || !tg.High {
		t.Fatalf("expected open across wrap, got %+v ok=%v", tg, ok)
	}

	// 0x10 + 100µs is exactly the open threshold.
	if _, ok := d.Tick(0x10+100, testPlan); ok {
		t.Fatal("should not close at exactly the open threshold after wrap")
	}
}

func TestPulseDriverOverrunNoCatchUp(t *testing.T) {
	d := enabledDriver(0)

	// A very late tick toggles once.
	if _, ok := d.Tick(1_000_000, testPlan); !ok {
		t.Fatal("expected toggle after overrun")
	}
	// The overrun is not compensated: the next tick waits a full threshold.
	if _, ok := d.Tick(1_000_001, testPlan); ok {
		t.Fatal("expected no catch-up toggle")
	}
	if _, ok := d.Tick(1_000_101, testPlan); !ok {
		t.Fatal("expected close one open-threshold later")
	}
}

func TestPulseDriverResetForcesClosed(t *testing.T) {
	d := enabledDriver(0)
	d.Tick(201, testPlan)
	if !d.IsOpen() {
		t.Fatal("setup: driver should be open")
	}

	d.Reset(250)
	if d.IsOpen() {
		t.Error("Reset should force closed")
	}
	if d.LastToggle() != 250 {
		t.Errorf("LastToggle after reset: got %d, want 250", d.LastToggle())
	}

	// Reset is idempotent.
	d.Reset(260)
	if d.IsOpen() {
		t.Error("second Reset should leave closed")
	}
}
