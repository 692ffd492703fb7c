package audio

import (
	"sync"
	"time"
)

// Clock abstracts playback timing so tests can drive the scheduler
// deterministically without wall-clock audio timing.
type Clock interface {
	Now() time.Time
	// Schedule invokes fn repeatedly at the given interval until the
	// returned stop function is called.
	Schedule(interval time.Duration, fn func()) (stop func())
}

// systemClock is the production clock
type systemClock struct{}

// SystemClock returns the wall-clock implementation
func SystemClock() Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return time.Now()
}

func (systemClock) Schedule(interval time.Duration, fn func()) func() {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				ticker.Stop()
				return
			case <-ticker.C:
				fn()
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() { close(done) })
	}
}

// ManualClock advances only when told to; each Advance delivers due
// ticks synchronously, making scheduler behavior reproducible in tests.
type ManualClock struct {
	mu      sync.Mutex
	now     time.Time
	fn      func()
	stopped bool
}

// NewManualClock starts at an arbitrary fixed epoch
func NewManualClock() *ManualClock {
	return &ManualClock{now: time.Unix(0, 0)}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *ManualClock) Schedule(interval time.Duration, fn func()) func() {
	c.mu.Lock()
	c.fn = fn
	c.stopped = false
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		c.stopped = true
		c.mu.Unlock()
	}
}

// Advance moves time forward and fires the scheduled callback once.
// Callers advance in steps no larger than their event spacing when
// per-event precision matters.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	fn := c.fn
	stopped := c.stopped
	c.mu.Unlock()

	if fn != nil && !stopped {
		fn()
	}
}
