package testutil

import (
	"sync"
	"time"
)

// DefaultStart is the first instant a DeterministicClock hands out.
var DefaultStart = time.Date(2021, 3, 1, 0, 0, 0, 0, time.UTC)

// DeterministicClock hands out evenly spaced timestamps for tests.
//
// The same sequence of calls always yields the same instants, so scenarios
// replay to identical logs and golden files.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type DeterministicClock struct {
	mu    sync.Mutex
	start time.Time
	step  time.Duration
	seq   int64
}

// NewDeterministicClock creates a clock starting at DefaultStart with
// one-second steps. The first call to Next() returns DefaultStart.
func NewDeterministicClock() *DeterministicClock {
	return NewDeterministicClockAt(DefaultStart, time.Second)
}

// NewDeterministicClockAt creates a clock with a custom origin and step.
func NewDeterministicClockAt(start time.Time, step time.Duration) *DeterministicClock {
	return &DeterministicClock{start: start.UTC(), step: step}
}

// Next returns the current instant and advances by one step.
func (c *DeterministicClock) Next() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.at(c.seq)
	c.seq++
	return t
}

// Current returns the instant Next would return, without advancing.
func (c *DeterministicClock) Current() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.at(c.seq)
}

// At returns the instant of step n (0-based) without touching the clock.
func (c *DeterministicClock) At(n int) time.Time {
	return c.at(int64(n))
}

// Reset rewinds the clock to its origin.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq = 0
}

func (c *DeterministicClock) at(n int64) time.Time {
	return c.start.Add(time.Duration(n) * c.step)
}
