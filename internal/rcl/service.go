package rcl

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// ServiceHandler answers one request.
type ServiceHandler func(ctx context.Context, request any) (any, error)

type serviceRequest struct {
	client  *Client
	seq     int64
	request any
}

// Service queues requests from clients and answers them when dispatched.
type Service struct {
	entity
	typeName string
	qos      QoSProfile
	handler  ServiceHandler

	mu       sync.Mutex
	requests []serviceRequest
}

// CreateService creates a service server. The name is resolved like a topic.
func (n *Node) CreateService(name, typeName string, handler ServiceHandler, opts ...EntityOption) (*Service, error) {
	if handler == nil {
		return nil, newError(ErrCodeInvalidArgument, "service handler must not be nil")
	}
	resolved, err := n.ResolveTopicName(name, false)
	if err != nil {
		return nil, err
	}
	base, cfg, err := n.newEntity(KindService, resolved, opts)
	if err != nil {
		return nil, err
	}
	qos := QoSServicesDefault
	if cfg.qos != nil {
		qos = *cfg.qos
	}
	s := &Service{entity: base, typeName: typeName, qos: qos, handler: handler}
	// Endpoints are matched on the resolved name, not the display name.
	s.name = resolved
	if err := n.addEntity(s); err != nil {
		return nil, err
	}
	n.ctx.Graph().addService(s)
	return s, nil
}

// ServiceName returns the resolved service name.
func (s *Service) ServiceName() string { return s.name }

// TypeName returns the service type.
func (s *Service) TypeName() string { return s.typeName }

func (s *Service) enqueue(r serviceRequest) {
	s.mu.Lock()
	s.requests = append(s.requests, r)
	s.mu.Unlock()
	s.handle.Signal()
}

// IsReady reports whether a request is queued.
func (s *Service) IsReady() bool {
	if s.IsDestroyed() {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests) > 0
}

// Take pops the oldest request. The returned task runs the handler and sends
// the response, or the handler's error, back to the client.
func (s *Service) Take() (Task, bool) {
	if s.IsDestroyed() {
		return nil, false
	}
	s.mu.Lock()
	if len(s.requests) == 0 {
		s.mu.Unlock()
		return nil, false
	}
	r := s.requests[0]
	s.requests = s.requests[1:]
	s.mu.Unlock()

	return func(ctx context.Context) error {
		resp, err := s.handler(ctx, r.request)
		r.client.deliver(serviceResponse{seq: r.seq, response: resp, err: err})
		if err != nil {
			return fmt.Errorf("service %s: %w", s.name, err)
		}
		return nil
	}, true
}

// Destroy removes the service from its node and the graph.
func (s *Service) Destroy() error {
	if s.destroyed.Swap(true) {
		return newError(ErrCodeInvalidHandle, "service already destroyed")
	}
	s.node.removeEntity(s)
	if g := s.node.ctx.Graph(); g != nil {
		g.removeService(s)
	}
	return nil
}

type serviceResponse struct {
	seq      int64
	response any
	err      error
}

// Client sends requests to a service. Responses are queued on the client and
// complete their futures when the executor dispatches the client.
type Client struct {
	entity
	typeName string
	qos      QoSProfile

	mu        sync.Mutex
	seq       int64
	pending   map[int64]*Future
	responses []serviceResponse
}

// CreateClient creates a client for the named service.
func (n *Node) CreateClient(name, typeName string, opts ...EntityOption) (*Client, error) {
	resolved, err := n.ResolveTopicName(name, false)
	if err != nil {
		return nil, err
	}
	base, cfg, err := n.newEntity(KindClient, resolved, opts)
	if err != nil {
		return nil, err
	}
	qos := QoSServicesDefault
	if cfg.qos != nil {
		qos = *cfg.qos
	}
	c := &Client{entity: base, typeName: typeName, qos: qos, pending: make(map[int64]*Future)}
	c.name = resolved
	if err := n.addEntity(c); err != nil {
		return nil, err
	}
	n.ctx.Graph().addClient(c)
	return c, nil
}

// ServiceName returns the resolved service name.
func (c *Client) ServiceName() string { return c.name }

// ServiceIsReady reports whether a server with a matching type exists.
func (c *Client) ServiceIsReady() bool {
	return c.node.ctx.Graph().findService(c.name, c.typeName) != nil
}

// WaitForService blocks until a server appears, ctx is done or timeout
// elapses. A negative timeout waits forever.
func (c *Client) WaitForService(ctx context.Context, timeout time.Duration) bool {
	if timeout >= 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	graph := c.node.ctx.Graph()
	for {
		changed := graph.Changed()
		if c.ServiceIsReady() {
			return true
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return false
		case <-c.node.ctx.Done():
			return false
		}
	}
}

// CallAsync sends request and returns a future for the response.
// Returns ErrServiceUnavailable if no server exists.
func (c *Client) CallAsync(request any) (*Future, error) {
	if c.IsDestroyed() {
		return nil, newError(ErrCodeInvalidHandle, "client %s is destroyed", c.name)
	}
	server := c.node.ctx.Graph().findService(c.name, c.typeName)
	if server == nil {
		return nil, fmt.Errorf("call %s: %w", c.name, ErrServiceUnavailable)
	}

	f := NewFuture()
	c.mu.Lock()
	c.seq++
	seq := c.seq
	c.pending[seq] = f
	c.mu.Unlock()

	server.enqueue(serviceRequest{client: c, seq: seq, request: request})
	return f, nil
}

func (c *Client) deliver(r serviceResponse) {
	if c.IsDestroyed() {
		return
	}
	c.mu.Lock()
	c.responses = append(c.responses, r)
	c.mu.Unlock()
	c.handle.Signal()
}

// IsReady reports whether a response is queued.
func (c *Client) IsReady() bool {
	if c.IsDestroyed() {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.responses) > 0
}

// Take pops the oldest response and returns a task completing its future.
func (c *Client) Take() (Task, bool) {
	if c.IsDestroyed() {
		return nil, false
	}
	c.mu.Lock()
	if len(c.responses) == 0 {
		c.mu.Unlock()
		return nil, false
	}
	r := c.responses[0]
	c.responses = c.responses[1:]
	f := c.pending[r.seq]
	delete(c.pending, r.seq)
	c.mu.Unlock()

	return func(context.Context) error {
		if f == nil {
			return nil
		}
		if r.err != nil {
			f.SetError(r.err)
		} else {
			f.SetResult(r.response)
		}
		return nil
	}, true
}

// Destroy removes the client and cancels its pending futures.
func (c *Client) Destroy() error {
	if c.destroyed.Swap(true) {
		return newError(ErrCodeInvalidHandle, "client already destroyed")
	}
	c.mu.Lock()
	pending := c.pending
	c.pending = make(map[int64]*Future)
	c.mu.Unlock()
	for _, f := range pending {
		f.Cancel()
	}
	c.node.removeEntity(c)
	if g := c.node.ctx.Graph(); g != nil {
		g.removeClient(c)
	}
	return nil
}
