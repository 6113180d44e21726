package launch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/roach88/rclgo/internal/executor"
	"github.com/roach88/rclgo/internal/names"
	"github.com/roach88/rclgo/internal/rcl"
)

// ErrInjected is returned by callbacks failed through FailNext.
var ErrInjected = errors.New("injected failure")

// Option configures Build.
type Option func(*buildConfig)

type buildConfig struct {
	clock  *rcl.Clock
	logger *slog.Logger
	execs  []executor.Option
}

// WithClock makes every node share clock, e.g. a ROS time clock driven by
// a simulation.
func WithClock(clock *rcl.Clock) Option {
	return func(c *buildConfig) {
		c.clock = clock
	}
}

// WithLogger sets the logger of the executor and of Build itself.
// Default: the context's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *buildConfig) {
		c.logger = logger
	}
}

// WithExecutorOptions passes options to the executor Build creates.
func WithExecutorOptions(opts ...executor.Option) Option {
	return func(c *buildConfig) {
		c.execs = append(c.execs, opts...)
	}
}

// Entity is a launched entity together with its synthetic behavior.
type Entity struct {
	Node     string
	Name     string
	Kind     rcl.EntityKind
	Waitable rcl.Waitable

	from   string
	work   time.Duration
	out    *rcl.Publisher
	calls  atomic.Int64
	fails  atomic.Int64
	panics atomic.Int64
}

// Calls returns how many times the entity's callback ran.
func (e *Entity) Calls() int64 { return e.calls.Load() }

// FailNext makes the next n invocations return ErrInjected.
func (e *Entity) FailNext(n int) { e.fails.Add(int64(n)) }

// PanicNext makes the next n invocations panic.
func (e *Entity) PanicNext(n int) { e.panics.Add(int64(n)) }

// takeOne decrements c if it is positive and reports whether it did.
func takeOne(c *atomic.Int64) bool {
	for {
		n := c.Load()
		if n <= 0 {
			return false
		}
		if c.CompareAndSwap(n, n-1) {
			return true
		}
	}
}

// run performs one invocation: injected faults first, then work, then the
// optional publish.
func (e *Entity) run(ctx context.Context, msg any) error {
	seq := e.calls.Add(1)
	if takeOne(&e.panics) {
		panic(fmt.Sprintf("%s: injected panic", e.from))
	}
	if takeOne(&e.fails) {
		return ErrInjected
	}
	if e.work > 0 {
		t := time.NewTimer(e.work)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		}
	}
	if e.out == nil {
		return nil
	}
	if msg == nil {
		msg = Count{From: e.from, Seq: seq}
	}
	return e.out.Publish(msg)
}

// System is a launched description: its nodes, their entities and the
// executor they are registered with.
type System struct {
	Context  *rcl.Context
	Executor *executor.Executor

	logger     *slog.Logger
	nodeKeys   []string
	nodes      map[string]*rcl.Node
	entities   map[string]*Entity
	publishers map[string]*rcl.Publisher
	clients    map[string]*rcl.Client
}

func entityKey(node, name string) string { return node + "/" + name }

// Build creates the nodes and entities of d on rctx and registers them
// with a new executor. On error everything created so far is destroyed.
func Build(rctx *rcl.Context, d *Description, opts ...Option) (*System, error) {
	if errs := Check(d); len(errs) > 0 {
		return nil, errs
	}
	cfg := buildConfig{logger: rctx.Logger()}
	for _, opt := range opts {
		opt(&cfg)
	}

	kind, _ := executor.ParseKind(d.Executor.Kind)
	execOpts := append([]executor.Option{
		executor.WithContext(rctx),
		executor.WithLogger(cfg.logger),
		executor.WithSource(d.Source),
	}, cfg.execs...)

	s := &System{
		Context:    rctx,
		Executor:   executor.New(kind, d.Executor.Workers, execOpts...),
		logger:     cfg.logger.With("component", "launch"),
		nodes:      make(map[string]*rcl.Node),
		entities:   make(map[string]*Entity),
		publishers: make(map[string]*rcl.Publisher),
		clients:    make(map[string]*rcl.Client),
	}
	for _, key := range d.NodeKeys() {
		if err := s.buildNode(key, d.Nodes[key], cfg); err != nil {
			_ = s.Executor.Shutdown(context.Background())
			s.destroy()
			return nil, fmt.Errorf("launch node %s: %w", key, err)
		}
	}
	s.logger.Info("launched",
		"source", d.Source,
		"nodes", len(s.nodes),
		"entities", len(s.entities),
		"executor", string(kind),
		"workers", s.Executor.Workers(),
	)
	return s, nil
}

func (s *System) buildNode(key string, spec NodeSpec, cfg buildConfig) error {
	nodeOpts := []rcl.NodeOption{rcl.WithNamespace(orDefault(spec.Namespace, "/"))}
	if cfg.clock != nil {
		nodeOpts = append(nodeOpts, rcl.WithNodeClock(cfg.clock))
	}
	for _, name := range sortedKeys(spec.Parameters) {
		nodeOpts = append(nodeOpts, rcl.WithParameter(name, spec.Parameters[name]))
	}
	for _, r := range spec.Remaps {
		rule, err := names.ParseRule(r)
		if err != nil {
			return err
		}
		nodeOpts = append(nodeOpts, rcl.WithRemaps(rule))
	}

	node, err := rcl.NewNode(s.Context, spec.NodeName(key), nodeOpts...)
	if err != nil {
		return err
	}
	s.nodes[key] = node
	s.nodeKeys = append(s.nodeKeys, key)

	groups := make(map[string]*rcl.CallbackGroup)
	for _, name := range sortedKeys(spec.Groups) {
		g, err := createGroup(node, spec.Groups[name])
		if err != nil {
			return fmt.Errorf("group %s: %w", name, err)
		}
		groups[name] = g
	}
	entityOpts := func(name, group string) []rcl.EntityOption {
		opts := []rcl.EntityOption{rcl.WithName(name)}
		if g := groups[group]; g != nil {
			opts = append(opts, rcl.WithCallbackGroup(g))
		}
		return opts
	}

	for _, name := range sortedKeys(spec.Publishers) {
		p := spec.Publishers[name]
		qos, _ := QoSProfile(p.QoS, p.Depth)
		pub, err := node.CreatePublisher(p.Topic, orDefault(p.Type, DefaultMessageType), qos)
		if err != nil {
			return fmt.Errorf("publisher %s: %w", name, err)
		}
		s.publishers[entityKey(key, name)] = pub
	}

	for _, name := range sortedKeys(spec.Timers) {
		t := spec.Timers[name]
		e := s.newEntity(key, node, name, rcl.KindTimer, t.Work, t.Publish)
		period, _ := parseDuration(t.Period)
		timer, err := node.CreateTimer(period, func(ctx context.Context) error {
			return e.run(ctx, nil)
		}, entityOpts(name, t.Group)...)
		if err != nil {
			return fmt.Errorf("timer %s: %w", name, err)
		}
		e.Waitable = timer
	}

	for _, name := range sortedKeys(spec.Subscriptions) {
		sub := spec.Subscriptions[name]
		e := s.newEntity(key, node, name, rcl.KindSubscription, sub.Work, sub.Publish)
		qos, _ := QoSProfile(sub.QoS, sub.Depth)
		w, err := node.CreateSubscription(sub.Topic, orDefault(sub.Type, DefaultMessageType),
			func(ctx context.Context, msg any) error {
				return e.run(ctx, msg)
			},
			append(entityOpts(name, sub.Group), rcl.WithQoS(qos))...)
		if err != nil {
			return fmt.Errorf("subscription %s: %w", name, err)
		}
		e.Waitable = w
	}

	for _, name := range sortedKeys(spec.Guards) {
		g := spec.Guards[name]
		e := s.newEntity(key, node, name, rcl.KindGuardCondition, g.Work, "")
		gc, err := node.CreateGuardCondition(func(ctx context.Context) error {
			return e.run(ctx, nil)
		}, entityOpts(name, g.Group)...)
		if err != nil {
			return fmt.Errorf("guard %s: %w", name, err)
		}
		e.Waitable = gc
	}

	for _, name := range sortedKeys(spec.Services) {
		sv := spec.Services[name]
		e := s.newEntity(key, node, name, rcl.KindService, sv.Work, "")
		srv, err := node.CreateService(orDefault(sv.Service, name), orDefault(sv.Type, DefaultServiceType),
			func(ctx context.Context, request any) (any, error) {
				if err := e.run(ctx, nil); err != nil {
					return nil, err
				}
				return request, nil
			},
			entityOpts(name, sv.Group)...)
		if err != nil {
			return fmt.Errorf("service %s: %w", name, err)
		}
		e.Waitable = srv
	}

	for _, name := range sortedKeys(spec.Clients) {
		cl := spec.Clients[name]
		client, err := node.CreateClient(cl.Service, orDefault(cl.Type, DefaultServiceType), entityOpts(name, cl.Group)...)
		if err != nil {
			return fmt.Errorf("client %s: %w", name, err)
		}
		e := s.newEntity(key, node, name, rcl.KindClient, "", "")
		e.Waitable = client
		s.clients[entityKey(key, name)] = client
	}

	return s.Executor.AddNode(node)
}

func createGroup(node *rcl.Node, g GroupSpec) (*rcl.CallbackGroup, error) {
	if g.Kind == "custom" {
		return node.CreateCustomCallbackGroup(rcl.MaxConcurrency(g.MaxConcurrency))
	}
	kind, err := rcl.ParseGroupKind(g.Kind)
	if err != nil {
		return nil, err
	}
	return node.CreateCallbackGroup(kind)
}

func (s *System) newEntity(key string, node *rcl.Node, name string, kind rcl.EntityKind, work, publish string) *Entity {
	d, _ := parseDuration(work)
	e := &Entity{
		Node: key,
		Name: name,
		Kind: kind,
		from: node.FullyQualifiedName() + "/" + name,
		work: d,
	}
	if publish != "" {
		e.out = s.publishers[entityKey(key, publish)]
	}
	s.entities[entityKey(key, name)] = e
	return e
}

// Node returns the node launched under key.
func (s *System) Node(key string) (*rcl.Node, bool) {
	n, ok := s.nodes[key]
	return n, ok
}

// Nodes returns the launched nodes in build order.
func (s *System) Nodes() []*rcl.Node {
	out := make([]*rcl.Node, len(s.nodeKeys))
	for i, key := range s.nodeKeys {
		out[i] = s.nodes[key]
	}
	return out
}

// Entity returns the entity name of the node launched under key.
func (s *System) Entity(node, name string) (*Entity, error) {
	e, ok := s.entities[entityKey(node, name)]
	if !ok {
		return nil, fmt.Errorf("no entity %s on node %s", name, node)
	}
	return e, nil
}

// Entities returns the number of launched entities.
func (s *System) Entities() int { return len(s.entities) }

// Publish publishes msg on a publisher of the description. A nil msg
// publishes a Count from the publisher.
func (s *System) Publish(node, publisher string, msg any) error {
	pub, ok := s.publishers[entityKey(node, publisher)]
	if !ok {
		return fmt.Errorf("no publisher %s on node %s", publisher, node)
	}
	if msg == nil {
		msg = Count{From: pub.Node().FullyQualifiedName() + "/" + publisher}
	}
	return pub.Publish(msg)
}

// Trigger triggers a guard condition of the description.
func (s *System) Trigger(node, guard string) error {
	e, err := s.Entity(node, guard)
	if err != nil {
		return err
	}
	gc, ok := e.Waitable.(*rcl.GuardCondition)
	if !ok {
		return fmt.Errorf("%s on node %s is a %s, not a guard condition", guard, node, e.Kind)
	}
	return gc.Trigger()
}

// Call sends request through a client of the description.
func (s *System) Call(node, client string, request any) (*rcl.Future, error) {
	c, ok := s.clients[entityKey(node, client)]
	if !ok {
		return nil, fmt.Errorf("no client %s on node %s", client, node)
	}
	return c.CallAsync(request)
}

// Close shuts the executor down and destroys the launched nodes.
func (s *System) Close(ctx context.Context) error {
	err := s.Executor.Shutdown(ctx)
	s.destroy()
	return err
}

func (s *System) destroy() {
	for i := len(s.nodeKeys) - 1; i >= 0; i-- {
		n := s.nodes[s.nodeKeys[i]]
		if n.IsDestroyed() {
			continue
		}
		if err := n.Destroy(); err != nil {
			s.logger.Warn("destroy node", "node", n.FullyQualifiedName(), "error", err)
		}
	}
}
