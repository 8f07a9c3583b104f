package mock

import (
	"sync"
	"testing"
	"time"
)

func TestMockClock(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	clock := NewMockClock(start)

	if !clock.Now().Equal(start) {
		t.Fatalf("expected %v, got %v", start, clock.Now())
	}

	if got := clock.In(-time.Minute); !got.Equal(start.Add(-time.Minute)) {
		t.Errorf("expected In to be relative to now, got %v", got)
	}
	if !clock.Now().Equal(start) {
		t.Errorf("In must not move the clock")
	}

	if got := clock.Advance(90 * time.Minute); !got.Equal(start.Add(90 * time.Minute)) {
		t.Errorf("expected Advance to return the new time, got %v", got)
	}
	if want := start.Add(90 * time.Minute); !clock.Now().Equal(want) {
		t.Errorf("expected %v after advance, got %v", want, clock.Now())
	}

	later := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)
	clock.Set(later)
	if !clock.Now().Equal(later) {
		t.Errorf("expected %v after set, got %v", later, clock.Now())
	}
}

func TestMockClock_ZeroStartsAtNow(t *testing.T) {
	before := time.Now()
	clock := NewMockClock(time.Time{})
	if clock.Now().Before(before) {
		t.Errorf("zero start should initialise to the current time")
	}
}

func TestMockClock_ConcurrentAdvance(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	clock := NewMockClock(start)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			clock.Advance(time.Second)
			_ = clock.Now()
		}()
	}
	wg.Wait()

	if want := start.Add(50 * time.Second); !clock.Now().Equal(want) {
		t.Errorf("expected %v, got %v", want, clock.Now())
	}
}

func TestClockFunc(t *testing.T) {
	if time.Since(SystemClock.Now()) > time.Second {
		t.Errorf("SystemClock should track wall time")
	}

	fixed := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	var c Clock = ClockFunc(func() time.Time { return fixed })
	if !c.Now().Equal(fixed) {
		t.Errorf("expected %v, got %v", fixed, c.Now())
	}
}
