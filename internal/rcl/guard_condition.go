package rcl

import (
	"context"
	"sync"
)

// GuardCondition becomes ready once per Trigger.
type GuardCondition struct {
	entity
	callback func(ctx context.Context) error

	mu       sync.Mutex
	triggers int
}

// CreateGuardCondition creates a guard condition. callback may be nil.
func (n *Node) CreateGuardCondition(callback func(ctx context.Context) error, opts ...EntityOption) (*GuardCondition, error) {
	base, _, err := n.newEntity(KindGuardCondition, "guard_condition", opts)
	if err != nil {
		return nil, err
	}
	gc := &GuardCondition{entity: base, callback: callback}
	if err := n.addEntity(gc); err != nil {
		return nil, err
	}
	return gc, nil
}

// Trigger makes the guard condition ready for one more dispatch.
func (gc *GuardCondition) Trigger() error {
	if gc.IsDestroyed() {
		return newError(ErrCodeInvalidHandle, "guard condition is destroyed")
	}
	gc.mu.Lock()
	gc.triggers++
	gc.mu.Unlock()
	gc.handle.Signal()
	return nil
}

// IsReady reports whether a trigger is pending.
func (gc *GuardCondition) IsReady() bool {
	if gc.IsDestroyed() {
		return false
	}
	gc.mu.Lock()
	defer gc.mu.Unlock()
	return gc.triggers > 0
}

// Take consumes one trigger.
func (gc *GuardCondition) Take() (Task, bool) {
	if gc.IsDestroyed() {
		return nil, false
	}
	gc.mu.Lock()
	defer gc.mu.Unlock()
	if gc.triggers == 0 {
		return nil, false
	}
	gc.triggers--
	if gc.callback == nil {
		return func(context.Context) error { return nil }, true
	}
	return gc.callback, true
}

// Destroy removes the guard condition from its node.
func (gc *GuardCondition) Destroy() error {
	if gc.destroyed.Swap(true) {
		return newError(ErrCodeInvalidHandle, "guard condition already destroyed")
	}
	gc.node.removeEntity(gc)
	return nil
}
