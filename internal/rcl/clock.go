package rcl

import (
	"sync"
	"time"
)

// ClockType selects the time source of a Clock.
type ClockType int

const (
	ClockUninitialized ClockType = iota
	ROSTime
	SystemTime
	SteadyTime
)

// String returns the clock type name.
func (t ClockType) String() string {
	switch t {
	case ROSTime:
		return "ROS_TIME"
	case SystemTime:
		return "SYSTEM_TIME"
	case SteadyTime:
		return "STEADY_TIME"
	default:
		return "UNINITIALIZED"
	}
}

// ClockChange describes how a time jump changed the ROS time source.
type ClockChange int

const (
	// ROSTimeNoChange: ROS time is active and will continue to be active.
	ROSTimeNoChange ClockChange = iota + 1
	// ROSTimeActivated: ROS time is being activated.
	ROSTimeActivated
	// ROSTimeDeactivated: the clock will report system time after the jump.
	ROSTimeDeactivated
	// SystemTimeNoChange: ROS time is inactive and the clock keeps reporting system time.
	SystemTimeNoChange
)

// String returns the change name.
func (c ClockChange) String() string {
	switch c {
	case ROSTimeNoChange:
		return "ROS_TIME_NO_CHANGE"
	case ROSTimeActivated:
		return "ROS_TIME_ACTIVATED"
	case ROSTimeDeactivated:
		return "ROS_TIME_DEACTIVATED"
	case SystemTimeNoChange:
		return "SYSTEM_TIME_NO_CHANGE"
	default:
		return "UNKNOWN"
	}
}

// Time is a point on a clock's timeline in nanoseconds.
type Time int64

// Add returns t+d.
func (t Time) Add(d time.Duration) Time {
	return t + Time(d)
}

// Sub returns t-u.
func (t Time) Sub(u Time) time.Duration {
	return time.Duration(t - u)
}

// Seconds returns t in seconds.
func (t Time) Seconds() float64 {
	return float64(t) / float64(time.Second)
}

// TimeJump describes a discontinuity delivered to jump callbacks.
type TimeJump struct {
	Change ClockChange
	Delta  time.Duration
}

// JumpThreshold decides which jumps a callback is told about.
// A zero MinForward or MinBackward disables that direction.
type JumpThreshold struct {
	OnClockChange bool
	MinForward    time.Duration
	MinBackward   time.Duration
}

func (th JumpThreshold) matches(j TimeJump) bool {
	if j.Change == ROSTimeActivated || j.Change == ROSTimeDeactivated {
		return th.OnClockChange
	}
	if th.MinForward > 0 && j.Delta >= th.MinForward {
		return true
	}
	if th.MinBackward > 0 && j.Delta <= -th.MinBackward {
		return true
	}
	return false
}

type jumpHandler struct {
	id        int
	threshold JumpThreshold
	pre       func()
	post      func(TimeJump)
}

// Clock reports the current time of one ClockType. A ROSTime clock can be
// overridden, which is how simulated time is driven.
type Clock struct {
	typ ClockType

	mu              sync.Mutex
	overrideEnabled bool
	overrideTime    Time
	handlers        []jumpHandler
	nextHandlerID   int
}

var steadyEpoch = time.Now()

// NewClock creates a clock of the given type.
func NewClock(typ ClockType) (*Clock, error) {
	switch typ {
	case ROSTime, SystemTime, SteadyTime:
		return &Clock{typ: typ}, nil
	default:
		return nil, newError(ErrCodeInvalidArgument, "cannot create a clock of type %s", typ)
	}
}

// Type returns the clock type.
func (c *Clock) Type() ClockType {
	return c.typ
}

// Now returns the current time.
func (c *Clock) Now() Time {
	switch c.typ {
	case SteadyTime:
		return Time(time.Since(steadyEpoch))
	case ROSTime:
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.overrideEnabled {
			return c.overrideTime
		}
	}
	return Time(time.Now().UnixNano())
}

// ROSTimeOverrideEnabled reports whether Now returns the override time.
func (c *Clock) ROSTimeOverrideEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.overrideEnabled
}

func (c *Clock) requireROSTime(op string) error {
	if c.typ != ROSTime {
		return newError(ErrCodeInvalidArgument, "%s requires a ROS_TIME clock, got %s", op, c.typ)
	}
	return nil
}

// EnableROSTimeOverride makes Now return the override time.
func (c *Clock) EnableROSTimeOverride() error {
	if err := c.requireROSTime("EnableROSTimeOverride"); err != nil {
		return err
	}
	c.mu.Lock()
	if c.overrideEnabled {
		c.mu.Unlock()
		return nil
	}
	jump := TimeJump{
		Change: ROSTimeActivated,
		Delta:  c.overrideTime.Sub(Time(time.Now().UnixNano())),
	}
	handlers := c.matchingLocked(jump)
	c.mu.Unlock()

	c.jump(handlers, jump, func() {
		c.overrideEnabled = true
	})
	return nil
}

// DisableROSTimeOverride makes Now return system time again.
func (c *Clock) DisableROSTimeOverride() error {
	if err := c.requireROSTime("DisableROSTimeOverride"); err != nil {
		return err
	}
	c.mu.Lock()
	if !c.overrideEnabled {
		c.mu.Unlock()
		return nil
	}
	jump := TimeJump{
		Change: ROSTimeDeactivated,
		Delta:  Time(time.Now().UnixNano()).Sub(c.overrideTime),
	}
	handlers := c.matchingLocked(jump)
	c.mu.Unlock()

	c.jump(handlers, jump, func() {
		c.overrideEnabled = false
	})
	return nil
}

// SetROSTimeOverride sets the override time. Jump callbacks only run when the
// override is enabled.
func (c *Clock) SetROSTimeOverride(t Time) error {
	if err := c.requireROSTime("SetROSTimeOverride"); err != nil {
		return err
	}
	c.mu.Lock()
	if !c.overrideEnabled {
		c.overrideTime = t
		c.mu.Unlock()
		return nil
	}
	jump := TimeJump{Change: ROSTimeNoChange, Delta: t.Sub(c.overrideTime)}
	handlers := c.matchingLocked(jump)
	c.mu.Unlock()

	c.jump(handlers, jump, func() {
		c.overrideTime = t
	})
	return nil
}

func (c *Clock) matchingLocked(j TimeJump) []jumpHandler {
	var out []jumpHandler
	for _, h := range c.handlers {
		if h.threshold.matches(j) {
			out = append(out, h)
		}
	}
	return out
}

// jump runs pre callbacks, applies the change under the lock, then runs post
// callbacks. Callbacks run without the lock held so they may call Now.
func (c *Clock) jump(handlers []jumpHandler, j TimeJump, apply func()) {
	for _, h := range handlers {
		if h.pre != nil {
			h.pre()
		}
	}
	c.mu.Lock()
	apply()
	c.mu.Unlock()
	for _, h := range handlers {
		if h.post != nil {
			h.post(j)
		}
	}
}

// AddJumpCallback registers callbacks run before and after a matching jump.
// The returned function removes them.
func (c *Clock) AddJumpCallback(threshold JumpThreshold, pre func(), post func(TimeJump)) (remove func(), err error) {
	if threshold.MinForward < 0 || threshold.MinBackward < 0 {
		return nil, newError(ErrCodeInvalidArgument, "jump thresholds must not be negative")
	}
	c.mu.Lock()
	c.nextHandlerID++
	id := c.nextHandlerID
	c.handlers = append(c.handlers, jumpHandler{id: id, threshold: threshold, pre: pre, post: post})
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, h := range c.handlers {
			if h.id == id {
				c.handlers = append(c.handlers[:i], c.handlers[i+1:]...)
				return
			}
		}
	}, nil
}
