package rcl

import (
	"context"
	"sync"
	"time"
)

// Timer is ready whenever its clock reaches the next call time. Missed
// periods are skipped, not queued.
type Timer struct {
	entity
	clock    *Clock
	callback func(ctx context.Context) error

	mu         sync.Mutex
	period     time.Duration
	nextCall   Time
	lastCall   Time
	canceled   bool
	prevNow    Time
	removeJump func()
}

// CreateTimer creates a timer calling callback every period on the node's
// clock, or the clock given with WithClock.
func (n *Node) CreateTimer(period time.Duration, callback func(ctx context.Context) error, opts ...EntityOption) (*Timer, error) {
	if period <= 0 {
		return nil, newError(ErrCodeInvalidArgument, "timer period must be positive, got %s", period)
	}
	if callback == nil {
		return nil, newError(ErrCodeInvalidArgument, "timer callback must not be nil")
	}
	base, cfg, err := n.newEntity(KindTimer, "timer_"+period.String(), opts)
	if err != nil {
		return nil, err
	}
	clock := cfg.clock
	if clock == nil {
		clock = n.clock
	}

	t := &Timer{
		entity:   base,
		clock:    clock,
		callback: callback,
		period:   period,
	}
	now := clock.Now()
	t.lastCall = now
	t.nextCall = now.Add(period)

	if clock.Type() == ROSTime {
		remove, err := clock.AddJumpCallback(
			JumpThreshold{OnClockChange: true, MinForward: 1, MinBackward: 1},
			t.preJump, t.postJump)
		if err != nil {
			return nil, err
		}
		t.removeJump = remove
	}

	if err := n.addEntity(t); err != nil {
		if t.removeJump != nil {
			t.removeJump()
		}
		return nil, err
	}
	return t, nil
}

func (t *Timer) preJump() {
	now := t.clock.Now()
	t.mu.Lock()
	t.prevNow = now
	t.mu.Unlock()
}

// postJump keeps the time remaining until the next call across a switch
// between system and ROS time, and restarts the period after a backward
// jump past the last call.
func (t *Timer) postJump(j TimeJump) {
	now := t.clock.Now()
	t.mu.Lock()
	switch {
	case j.Change == ROSTimeActivated || j.Change == ROSTimeDeactivated:
		t.nextCall = now.Add(t.nextCall.Sub(t.prevNow))
		t.lastCall = now.Add(t.lastCall.Sub(t.prevNow))
	case now < t.lastCall:
		t.lastCall = now
		t.nextCall = now.Add(t.period)
	}
	t.mu.Unlock()
	t.handle.Signal()
}

// Period returns the timer period.
func (t *Timer) Period() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.period
}

// IsReady reports whether the clock has reached the next call time.
func (t *Timer) IsReady() bool {
	if t.IsDestroyed() {
		return false
	}
	now := t.clock.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.canceled && now >= t.nextCall
}

// TimeUntilReady implements Timed.
func (t *Timer) TimeUntilReady() (time.Duration, bool) {
	if t.IsDestroyed() {
		return 0, false
	}
	now := t.clock.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.canceled {
		return 0, false
	}
	d := t.nextCall.Sub(now)
	if d <= 0 {
		return 0, true
	}
	if t.clock.Type() == ROSTime && t.clock.ROSTimeOverrideEnabled() {
		return 0, false
	}
	return d, true
}

// TimeUntilNextCall returns the time until the next call; negative when
// overdue.
func (t *Timer) TimeUntilNextCall() time.Duration {
	now := t.clock.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.nextCall.Sub(now)
}

// TimeSinceLastCall returns the time since the last call, or since creation.
func (t *Timer) TimeSinceLastCall() time.Duration {
	now := t.clock.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	return now.Sub(t.lastCall)
}

// Take advances the timer past the current time and returns its callback.
func (t *Timer) Take() (Task, bool) {
	if t.IsDestroyed() {
		return nil, false
	}
	now := t.clock.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.canceled || now < t.nextCall {
		return nil, false
	}
	missed := int64(now.Sub(t.nextCall) / t.period)
	t.nextCall = t.nextCall.Add(time.Duration(missed+1) * t.period)
	t.lastCall = now
	return t.callback, true
}

// Cancel stops the timer until Reset.
func (t *Timer) Cancel() {
	t.mu.Lock()
	t.canceled = true
	t.mu.Unlock()
	t.handle.Signal()
}

// IsCanceled reports whether the timer is canceled.
func (t *Timer) IsCanceled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.canceled
}

// Reset restarts the period from now and un-cancels the timer.
func (t *Timer) Reset() {
	now := t.clock.Now()
	t.mu.Lock()
	t.canceled = false
	t.lastCall = now
	t.nextCall = now.Add(t.period)
	t.mu.Unlock()
	t.handle.Signal()
}

// Destroy removes the timer from its node.
func (t *Timer) Destroy() error {
	if t.destroyed.Swap(true) {
		return newError(ErrCodeInvalidHandle, "timer already destroyed")
	}
	if t.removeJump != nil {
		t.removeJump()
	}
	t.node.removeEntity(t)
	return nil
}
