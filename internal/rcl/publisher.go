package rcl

import (
	"slices"
	"sync"
	"sync/atomic"
)

// Publisher sends messages to subscriptions on its topic. It is not a
// Waitable: publishing never waits.
type Publisher struct {
	gid      string
	node     *Node
	topic    string
	typeName string
	qos      QoSProfile

	mu        sync.Mutex
	retained  []any
	destroyed atomic.Bool
}

// CreatePublisher creates a publisher on topic, resolved against the node's
// namespace and remap rules.
func (n *Node) CreatePublisher(topic, typeName string, qos QoSProfile) (*Publisher, error) {
	if err := n.ctx.checkRunning("create publisher"); err != nil {
		return nil, err
	}
	if err := qos.Validate(); err != nil {
		return nil, err
	}
	if typeName == "" {
		return nil, newError(ErrCodeInvalidArgument, "publisher type must not be empty")
	}
	resolved, err := n.ResolveTopicName(topic, false)
	if err != nil {
		return nil, err
	}

	p := &Publisher{
		gid:      n.ctx.newID(),
		node:     n,
		topic:    resolved,
		typeName: typeName,
		qos:      qos,
	}

	n.mu.Lock()
	if n.destroyed {
		n.mu.Unlock()
		return nil, newError(ErrCodeInvalidHandle, "node %s is destroyed", n.fqn)
	}
	n.publishers = append(n.publishers, p)
	n.mu.Unlock()

	n.ctx.Graph().addPublisher(p)
	return p, nil
}

// GID returns the publisher's unique id.
func (p *Publisher) GID() string { return p.gid }

// Topic returns the resolved topic name.
func (p *Publisher) Topic() string { return p.topic }

// TypeName returns the message type.
func (p *Publisher) TypeName() string { return p.typeName }

// QoS returns the publisher's profile.
func (p *Publisher) QoS() QoSProfile { return p.qos }

// Node returns the owning node.
func (p *Publisher) Node() *Node { return p.node }

// Publish delivers msg to every matching subscription. Transient local
// publishers also retain the last depth messages for late joiners.
func (p *Publisher) Publish(msg any) error {
	if p.destroyed.Load() {
		return newError(ErrCodeInvalidHandle, "publisher on %s is destroyed", p.topic)
	}
	if err := p.node.ctx.checkRunning("publish"); err != nil {
		return err
	}
	if p.qos.Durability == DurabilityTransientLocal {
		p.mu.Lock()
		p.retained = append(p.retained, msg)
		if depth := p.qos.queueDepth(); depth > 0 && len(p.retained) > depth {
			p.retained = slices.Delete(p.retained, 0, len(p.retained)-depth)
		}
		p.mu.Unlock()
	}
	p.node.ctx.Graph().route(p, msg)
	return nil
}

func (p *Publisher) retainedSamples() []any {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.retained)
}

// SubscriptionCount returns the number of subscriptions on the topic.
func (p *Publisher) SubscriptionCount() int {
	return p.node.ctx.Graph().CountSubscribers(p.topic)
}

// Destroy removes the publisher from the graph.
func (p *Publisher) Destroy() error {
	if p.destroyed.Swap(true) {
		return newError(ErrCodeInvalidHandle, "publisher already destroyed")
	}
	n := p.node
	n.mu.Lock()
	n.publishers = removeItem(n.publishers, p)
	n.mu.Unlock()
	if g := n.ctx.Graph(); g != nil {
		g.removePublisher(p)
	}
	return nil
}
