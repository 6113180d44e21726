package rcl

import (
	"context"
	"sync"
)

// MessageCallback handles one message taken from a subscription.
type MessageCallback func(ctx context.Context, msg any) error

// Subscription queues messages from matching publishers. Its queue obeys
// the QoS history: KeepLast drops the oldest message when full, KeepAll
// grows without bound.
type Subscription struct {
	entity
	topic    string
	typeName string
	qos      QoSProfile
	callback MessageCallback

	mu      sync.Mutex
	queue   []any
	dropped int
}

// CreateSubscription subscribes to topic. QoS defaults to QoSDefault.
func (n *Node) CreateSubscription(topic, typeName string, callback MessageCallback, opts ...EntityOption) (*Subscription, error) {
	if callback == nil {
		return nil, newError(ErrCodeInvalidArgument, "subscription callback must not be nil")
	}
	if typeName == "" {
		return nil, newError(ErrCodeInvalidArgument, "subscription type must not be empty")
	}
	base, cfg, err := n.newEntity(KindSubscription, "", opts)
	if err != nil {
		return nil, err
	}
	qos := QoSDefault
	if cfg.qos != nil {
		qos = *cfg.qos
	}
	if err := qos.Validate(); err != nil {
		return nil, err
	}
	resolved, err := n.ResolveTopicName(topic, false)
	if err != nil {
		return nil, err
	}

	s := &Subscription{
		entity:   base,
		topic:    resolved,
		typeName: typeName,
		qos:      qos,
		callback: callback,
	}
	if cfg.name == "" {
		s.name = resolved
	}
	if err := n.addEntity(s); err != nil {
		return nil, err
	}
	n.ctx.Graph().addSubscription(s)
	return s, nil
}

// Subscribe creates a subscription whose callback receives T. A message of
// another Go type fails the callback with a TYPE_MISMATCH error.
func Subscribe[T any](n *Node, topic, typeName string, callback func(ctx context.Context, msg T) error, opts ...EntityOption) (*Subscription, error) {
	if callback == nil {
		return nil, newError(ErrCodeInvalidArgument, "subscription callback must not be nil")
	}
	return n.CreateSubscription(topic, typeName, func(ctx context.Context, msg any) error {
		typed, ok := msg.(T)
		if !ok {
			var zero T
			return newError(ErrCodeTypeMismatch, "subscription on %s expected %T, got %T", topic, zero, msg)
		}
		return callback(ctx, typed)
	}, opts...)
}

// Topic returns the resolved topic name.
func (s *Subscription) Topic() string { return s.topic }

// TypeName returns the message type.
func (s *Subscription) TypeName() string { return s.typeName }

// QoS returns the subscription's profile.
func (s *Subscription) QoS() QoSProfile { return s.qos }

func (s *Subscription) enqueue(msg any) {
	if s.IsDestroyed() {
		return
	}
	s.mu.Lock()
	if depth := s.qos.queueDepth(); depth > 0 && len(s.queue) >= depth {
		s.queue[0] = nil
		s.queue = s.queue[1:]
		s.dropped++
	}
	s.queue = append(s.queue, msg)
	s.mu.Unlock()
	s.handle.Signal()
}

// Pending returns the number of queued messages.
func (s *Subscription) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Dropped returns the number of messages discarded by KeepLast history.
func (s *Subscription) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// IsReady reports whether a message is queued.
func (s *Subscription) IsReady() bool {
	if s.IsDestroyed() {
		return false
	}
	return s.Pending() > 0
}

// Take pops the oldest message and returns the callback bound to it.
func (s *Subscription) Take() (Task, bool) {
	if s.IsDestroyed() {
		return nil, false
	}
	s.mu.Lock()
	if len(s.queue) == 0 {
		s.mu.Unlock()
		return nil, false
	}
	msg := s.queue[0]
	s.queue[0] = nil
	if len(s.queue) == 1 {
		s.queue = s.queue[:0]
	} else {
		s.queue = s.queue[1:]
	}
	s.mu.Unlock()

	return func(ctx context.Context) error {
		return s.callback(ctx, msg)
	}, true
}

// Destroy removes the subscription from its node and the graph.
func (s *Subscription) Destroy() error {
	if s.destroyed.Swap(true) {
		return newError(ErrCodeInvalidHandle, "subscription already destroyed")
	}
	s.node.removeEntity(s)
	if g := s.node.ctx.Graph(); g != nil {
		g.removeSubscription(s)
	}
	return nil
}
