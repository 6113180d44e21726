package testutil

import (
	"fmt"
	"sync"
	"time"

	"github.com/roach88/rclgo/internal/rcl"
)

// SimClock drives a ROS time clock by hand.
//
// The wrapped clock has its ROS time override enabled from the start, so
// timers created on it only fire when the test advances time. This makes
// timer dispatch reproducible regardless of wall time.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type SimClock struct {
	mu    sync.Mutex
	clock *rcl.Clock
	start time.Duration
	now   time.Duration
}

// NewSimClock creates a simulated clock reading start.
func NewSimClock(start time.Duration) (*SimClock, error) {
	clock, err := rcl.NewClock(rcl.ROSTime)
	if err != nil {
		return nil, err
	}
	if err := clock.SetROSTimeOverride(rcl.Time(start)); err != nil {
		return nil, err
	}
	if err := clock.EnableROSTimeOverride(); err != nil {
		return nil, err
	}
	return &SimClock{clock: clock, start: start, now: start}, nil
}

// Clock returns the ROS clock to hand to nodes and timers.
func (c *SimClock) Clock() *rcl.Clock {
	return c.clock
}

// Now returns the simulated time.
func (c *SimClock) Now() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves simulated time forward by d. Timers whose period elapsed
// become ready; jump callbacks run before Advance returns.
func (c *SimClock) Advance(d time.Duration) error {
	if d < 0 {
		return fmt.Errorf("advance: negative duration %s", d)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += d
	return c.clock.SetROSTimeOverride(rcl.Time(c.now))
}

// Reset moves simulated time back to the start. Timers see a backward jump
// and restart their period.
func (c *SimClock) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.start
	return c.clock.SetROSTimeOverride(rcl.Time(c.now))
}
