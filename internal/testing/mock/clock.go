package mock

import (
	"sync"
	"time"
)

// Clock is the time source of the mock servers. Components under test take
// a func() time.Time instead; pass MockClock.Now to them so token expiry,
// cache TTLs and the mock authorization server agree on the time.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a now function, such as time.Now, to Clock.
type ClockFunc func() time.Time

// Now calls f.
func (f ClockFunc) Now() time.Time { return f() }

// SystemClock reads the wall clock.
var SystemClock Clock = ClockFunc(time.Now)

// MockClock is a Clock that only moves when told to.
type MockClock struct {
	mu      sync.RWMutex
	current time.Time
}

// NewMockClock starts a MockClock at t, or at the wall time when t is zero.
func NewMockClock(t time.Time) *MockClock {
	if t.IsZero() {
		t = time.Now()
	}
	return &MockClock{current: t}
}

func (m *MockClock) Now() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// In returns the instant d from now without moving the clock. Negative
// durations give instants in the past, e.g. an already expired token.
func (m *MockClock) In(d time.Duration) time.Time {
	return m.Now().Add(d)
}

// Advance moves the clock forward by d and returns the new time.
func (m *MockClock) Advance(d time.Duration) time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = m.current.Add(d)
	return m.current
}

// Set jumps to t.
func (m *MockClock) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = t
}
