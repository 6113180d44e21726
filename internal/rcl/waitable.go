package rcl

import (
	"context"
	"sync/atomic"
	"time"
)

// EntityKind names the kind of a schedulable entity.
type EntityKind string

const (
	KindSubscription   EntityKind = "subscription"
	KindTimer          EntityKind = "timer"
	KindService        EntityKind = "service"
	KindClient         EntityKind = "client"
	KindActionServer   EntityKind = "action_server"
	KindActionClient   EntityKind = "action_client"
	KindGuardCondition EntityKind = "guard_condition"
)

// Task is a callback invocation with its input already captured.
type Task func(ctx context.Context) error

// Waitable is an entity an executor can wait on and dispatch.
//
// IsReady must be cheap and side-effect free. Take consumes one unit of
// work and returns the invocation for it; it returns false when there was
// nothing to take, which callers treat as a spurious wakeup.
type Waitable interface {
	GID() string
	Name() string
	Kind() EntityKind
	Node() *Node
	WaitHandle() *WaitHandle
	CallbackGroup() *CallbackGroup
	IsReady() bool
	Take() (Task, bool)
}

// Timed is implemented by entities that become ready with the passage of
// time. ok is false when no wall-clock wait will make the entity ready,
// e.g. a canceled timer or one driven by overridden ROS time.
type Timed interface {
	TimeUntilReady() (d time.Duration, ok bool)
}

// entity holds what every Waitable shares.
type entity struct {
	gid       string
	name      string
	kind      EntityKind
	node      *Node
	group     *CallbackGroup
	handle    WaitHandle
	destroyed atomic.Bool
}

func (e *entity) GID() string                   { return e.gid }
func (e *entity) Name() string                  { return e.name }
func (e *entity) Kind() EntityKind              { return e.kind }
func (e *entity) Node() *Node                   { return e.node }
func (e *entity) WaitHandle() *WaitHandle       { return &e.handle }
func (e *entity) CallbackGroup() *CallbackGroup { return e.group }

// IsDestroyed reports whether Destroy was called.
func (e *entity) IsDestroyed() bool {
	return e.destroyed.Load()
}

type entityConfig struct {
	name  string
	group *CallbackGroup
	qos   *QoSProfile
	clock *Clock
}

// EntityOption configures entity creation.
type EntityOption func(*entityConfig)

// WithCallbackGroup assigns the entity to g instead of the node's default
// group. g must belong to the same node.
func WithCallbackGroup(g *CallbackGroup) EntityOption {
	return func(c *entityConfig) {
		c.group = g
	}
}

// WithName sets the entity's display name used in logs and dispatch
// records. Defaults depend on the kind, e.g. the topic of a subscription.
func WithName(name string) EntityOption {
	return func(c *entityConfig) {
		c.name = name
	}
}

// WithQoS sets the QoS profile of a subscription, service or client.
func WithQoS(q QoSProfile) EntityOption {
	return func(c *entityConfig) {
		c.qos = &q
	}
}

// WithClock sets the clock of a timer. Default: the node's clock.
func WithClock(clock *Clock) EntityOption {
	return func(c *entityConfig) {
		c.clock = clock
	}
}
