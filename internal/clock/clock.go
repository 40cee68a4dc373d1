// Package clock provides a time abstraction for testable time-dependent code.
// Use RealClock for production and MockClock for testing.
//
// Times returned by RealClock.Now carry Go's monotonic clock reading, so
// instants derived from them with Add keep comparing on the monotonic base
// even when the wall clock is stepped.
package clock

import (
	"sync"
	"time"
)

// Clock is an interface for time operations, allowing time to be mocked in tests.
type Clock interface {
	// Now returns the current time
	Now() time.Time

	// NewTimer creates a Timer that delivers the current time on its channel
	// after at least duration d. A non-positive d fires immediately.
	NewTimer(d time.Duration) Timer

	// Until returns the duration until t, never negative
	Until(t time.Time) time.Duration
}

// Timer represents a single event that can be stopped
type Timer interface {
	// C returns the channel on which the expiry time is delivered
	C() <-chan time.Time

	// Stop prevents the Timer from firing. Returns true if the call stops the timer,
	// false if the timer has already expired or been stopped.
	Stop() bool
}

// RealClock implements Clock using the standard time package
type RealClock struct{}

type realTimer struct {
	timer *time.Timer
}

// NewRealClock creates a new RealClock instance
func NewRealClock() *RealClock {
	return &RealClock{}
}

// Now returns the current time
func (c *RealClock) Now() time.Time {
	return time.Now()
}

// NewTimer wraps time.NewTimer
func (c *RealClock) NewTimer(d time.Duration) Timer {
	return &realTimer{timer: time.NewTimer(d)}
}

// Until returns the time remaining until t
func (c *RealClock) Until(t time.Time) time.Duration {
	d := time.Until(t)
	if d < 0 {
		return 0
	}
	return d
}

func (t *realTimer) C() <-chan time.Time {
	return t.timer.C
}

func (t *realTimer) Stop() bool {
	return t.timer.Stop()
}

// MockClock is a Clock implementation for testing that allows manual time control.
// Its times carry no monotonic reading; Set can move it backwards to simulate
// a wall-clock step.
type MockClock struct {
	mu      sync.Mutex
	current time.Time
	timers  []*mockTimer
}

type mockTimer struct {
	clock    *MockClock
	deadline time.Time
	ch       chan time.Time
	stopped  bool
}

// NewMockClock creates a new MockClock starting at the given time
func NewMockClock(start time.Time) *MockClock {
	return &MockClock{
		current: start,
		timers:  make([]*mockTimer, 0),
	}
}

// Now returns the mock current time
func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// NewTimer schedules a timer on the mock timeline
func (c *MockClock) NewTimer(d time.Duration) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()

	timer := &mockTimer{
		clock:    c,
		deadline: c.current.Add(d),
		ch:       make(chan time.Time, 1),
	}
	if d <= 0 {
		timer.stopped = true
		timer.ch <- c.current
		return timer
	}
	c.timers = append(c.timers, timer)
	return timer
}

// Until returns the duration between the mock current time and t
func (c *MockClock) Until(t time.Time) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	d := t.Sub(c.current)
	if d < 0 {
		return 0
	}
	return d
}

// Pending returns the number of timers that have not fired or been stopped
func (c *MockClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, timer := range c.timers {
		if !timer.stopped {
			n++
		}
	}
	return n
}

// Advance moves the mock clock forward by duration d and fires any timers that have expired
func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.current = c.current.Add(d)

	remaining := c.timers[:0]
	for _, timer := range c.timers {
		if timer.stopped {
			continue
		}
		if timer.deadline.After(c.current) {
			remaining = append(remaining, timer)
			continue
		}
		timer.stopped = true
		timer.ch <- c.current
	}
	c.timers = remaining
}

// Set sets the mock clock to a specific time. Moving forward fires expired
// timers; moving backward only changes the reading.
func (c *MockClock) Set(t time.Time) {
	c.mu.Lock()
	old := c.current
	c.mu.Unlock()

	if t.After(old) {
		c.Advance(t.Sub(old))
		return
	}

	c.mu.Lock()
	c.current = t
	c.mu.Unlock()
}

func (t *mockTimer) C() <-chan time.Time {
	return t.ch
}

// Stop prevents the timer from firing
func (t *mockTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()

	wasActive := !t.stopped
	t.stopped = true
	return wasActive
}
