package rcl

import (
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/roach88/rclgo/internal/names"
)

// ExecutorRef is the view a Node has of the executor it is attached to.
type ExecutorRef interface {
	ID() string
	// Wake interrupts the executor's wait so it rebuilds its wait set.
	Wake()
}

type nodeConfig struct {
	namespace     string
	clock         *Clock
	remaps        []names.Rule
	useGlobalArgs bool
	params        map[string]string
}

// NodeOption configures NewNode.
type NodeOption func(*nodeConfig)

// WithNamespace sets the node namespace. Relative namespaces are made
// absolute. Default: "/".
func WithNamespace(ns string) NodeOption {
	return func(c *nodeConfig) {
		c.namespace = ns
	}
}

// WithNodeClock shares clock with the node instead of creating a ROS time
// clock for it.
func WithNodeClock(clock *Clock) NodeOption {
	return func(c *nodeConfig) {
		c.clock = clock
	}
}

// WithRemaps adds node-local remap rules, applied before the context's.
func WithRemaps(rules ...names.Rule) NodeOption {
	return func(c *nodeConfig) {
		c.remaps = append(c.remaps, rules...)
	}
}

// WithoutGlobalArgs ignores the remaps and parameters of the context's
// --ros-args.
func WithoutGlobalArgs() NodeOption {
	return func(c *nodeConfig) {
		c.useGlobalArgs = false
	}
}

// WithParameter sets a parameter value. Command-line overrides win.
func WithParameter(name, value string) NodeOption {
	return func(c *nodeConfig) {
		if c.params == nil {
			c.params = make(map[string]string)
		}
		c.params[name] = value
	}
}

// Node groups entities under a name and namespace. It owns its entities and
// callback groups; an executor only references them.
type Node struct {
	ctx       *Context
	name      string
	namespace string
	fqn       string
	logger    *slog.Logger
	clock     *Clock
	remaps    []names.Rule
	params    map[string]string

	mu           sync.Mutex
	defaultGroup *CallbackGroup
	groups       []*CallbackGroup
	entities     []Waitable
	publishers   []*Publisher
	executor     ExecutorRef
	destroyed    bool
}

// NewNode creates a node in ctx.
//
// Errors:
//   - NOT_INITIALIZED if ctx is not running
//   - INVALID_ARGUMENT for an invalid node name or namespace
func NewNode(ctx *Context, name string, opts ...NodeOption) (*Node, error) {
	if err := ctx.checkRunning("create node"); err != nil {
		return nil, err
	}

	cfg := nodeConfig{namespace: "/", useGlobalArgs: true}
	for _, opt := range opts {
		opt(&cfg)
	}

	rules := slices.Clone(cfg.remaps)
	params := make(map[string]string)
	for k, v := range cfg.params {
		params[k] = v
	}
	if cfg.useGlobalArgs {
		if args := ctx.Args(); args != nil {
			rules = append(rules, args.Remaps...)
			for k, v := range args.ParamsFor(name) {
				params[k] = v
			}
		}
	}

	ns := cfg.namespace
	if ns == "" {
		ns = "/"
	} else if !strings.HasPrefix(ns, "/") {
		ns = "/" + ns
	}
	name = names.RemapNodeName(name, rules)
	ns = names.RemapNamespace(name, ns, rules)

	if err := names.ValidateNodeName(name); err != nil {
		return nil, wrapError(ErrCodeInvalidArgument, err, "invalid node name %q", name)
	}
	if err := names.ValidateNamespace(ns); err != nil {
		return nil, wrapError(ErrCodeInvalidArgument, err, "invalid namespace %q", ns)
	}

	clock := cfg.clock
	if clock == nil {
		clock, _ = NewClock(ROSTime)
	}

	fqn := names.FullyQualifiedNodeName(name, ns)
	n := &Node{
		ctx:       ctx,
		name:      name,
		namespace: ns,
		fqn:       fqn,
		logger:    ctx.Logger().With("logger", loggerName(name, ns)),
		clock:     clock,
		remaps:    rules,
		params:    params,
	}
	n.defaultGroup = newCallbackGroup(ctx.newID(), MutuallyExclusive, nil, n)
	n.groups = []*CallbackGroup{n.defaultGroup}

	ctx.Graph().addNode(n)
	n.logger.Debug("node created", "node", fqn)
	return n, nil
}

// loggerName follows the rcl convention: namespace tokens and node name
// joined with dots.
func loggerName(name, ns string) string {
	ns = strings.Trim(ns, "/")
	if ns == "" {
		return name
	}
	return strings.ReplaceAll(ns, "/", ".") + "." + name
}

// Name returns the node name.
func (n *Node) Name() string { return n.name }

// Namespace returns the node namespace.
func (n *Node) Namespace() string { return n.namespace }

// FullyQualifiedName returns namespace + "/" + name.
func (n *Node) FullyQualifiedName() string { return n.fqn }

// Context returns the context the node was created in.
func (n *Node) Context() *Context { return n.ctx }

// Logger returns the node logger.
func (n *Node) Logger() *slog.Logger { return n.logger }

// Clock returns the node clock used by timers by default.
func (n *Node) Clock() *Clock { return n.clock }

// Parameter returns a parameter value set on the node or on the command line.
func (n *Node) Parameter(name string) (string, bool) {
	v, ok := n.params[name]
	return v, ok
}

// DefaultCallbackGroup returns the node's implicit MutuallyExclusive group.
func (n *Node) DefaultCallbackGroup() *CallbackGroup { return n.defaultGroup }

// CreateCallbackGroup creates a MutuallyExclusive or Reentrant group.
func (n *Node) CreateCallbackGroup(kind GroupKind) (*CallbackGroup, error) {
	if kind == Custom {
		return nil, newError(ErrCodeInvalidArgument, "custom groups need a policy, use CreateCustomCallbackGroup")
	}
	return n.addGroup(newCallbackGroup(n.ctx.newID(), kind, nil, n))
}

// CreateCustomCallbackGroup creates a group whose admission is decided by policy.
func (n *Node) CreateCustomCallbackGroup(policy Policy) (*CallbackGroup, error) {
	if policy == nil {
		return nil, newError(ErrCodeInvalidArgument, "policy must not be nil")
	}
	return n.addGroup(newCallbackGroup(n.ctx.newID(), Custom, policy, n))
}

func (n *Node) addGroup(g *CallbackGroup) (*CallbackGroup, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.destroyed {
		return nil, newError(ErrCodeInvalidHandle, "node %s is destroyed", n.fqn)
	}
	n.groups = append(n.groups, g)
	return g, nil
}

// CallbackGroups returns the node's groups in creation order, default first.
func (n *Node) CallbackGroups() []*CallbackGroup {
	n.mu.Lock()
	defer n.mu.Unlock()
	return slices.Clone(n.groups)
}

// Entities returns the node's schedulable entities in creation order.
func (n *Node) Entities() []Waitable {
	n.mu.Lock()
	defer n.mu.Unlock()
	return slices.Clone(n.entities)
}

// ResolveTopicName expands name for this node and, unless onlyExpand is set,
// applies remap rules.
func (n *Node) ResolveTopicName(name string, onlyExpand bool) (string, error) {
	resolved, err := names.ResolveName(name, n.name, n.namespace, n.remaps, onlyExpand)
	if err != nil {
		return "", wrapError(ErrCodeInvalidArgument, err, "resolve %q", name)
	}
	return resolved, nil
}

// AttachExecutor records ref as the node's executor. A node belongs to at
// most one executor; attaching to a second one returns ErrNodeAttached and
// leaves the first attachment in place.
func (n *Node) AttachExecutor(ref ExecutorRef) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.destroyed {
		return newError(ErrCodeInvalidHandle, "node %s is destroyed", n.fqn)
	}
	if n.executor != nil {
		if n.executor.ID() == ref.ID() {
			return nil
		}
		return ErrNodeAttached
	}
	n.executor = ref
	return nil
}

// DetachExecutor clears the attachment if ref is the current executor.
func (n *Node) DetachExecutor(ref ExecutorRef) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.executor != nil && n.executor.ID() == ref.ID() {
		n.executor = nil
	}
}

// Executor returns the attached executor, or nil.
func (n *Node) Executor() ExecutorRef {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.executor
}

// wake interrupts the attached executor, if any.
func (n *Node) wake() {
	if ref := n.Executor(); ref != nil {
		ref.Wake()
	}
}

func (n *Node) resolveGroup(cfg entityConfig) (*CallbackGroup, error) {
	if cfg.group == nil {
		return n.defaultGroup, nil
	}
	if cfg.group.node != n {
		return nil, newError(ErrCodeInvalidArgument, "callback group %s belongs to another node", cfg.group.id)
	}
	return cfg.group, nil
}

// newEntity validates the node and options and fills in the shared entity
// fields.
func (n *Node) newEntity(kind EntityKind, name string, opts []EntityOption) (entity, entityConfig, error) {
	var cfg entityConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := n.ctx.checkRunning("create " + string(kind)); err != nil {
		return entity{}, cfg, err
	}
	group, err := n.resolveGroup(cfg)
	if err != nil {
		return entity{}, cfg, err
	}
	if cfg.name != "" {
		name = cfg.name
	}
	return entity{
		gid:   n.ctx.newID(),
		name:  name,
		kind:  kind,
		node:  n,
		group: group,
	}, cfg, nil
}

// addEntity registers w with the node and its group and wakes the executor
// so the new entity joins the next wait set.
func (n *Node) addEntity(w Waitable) error {
	n.mu.Lock()
	if n.destroyed {
		n.mu.Unlock()
		return newError(ErrCodeInvalidHandle, "node %s is destroyed", n.fqn)
	}
	n.entities = append(n.entities, w)
	n.mu.Unlock()

	w.CallbackGroup().add(w)
	n.wake()
	return nil
}

func (n *Node) removeEntity(w Waitable) {
	n.mu.Lock()
	n.entities = removeItem(n.entities, w)
	n.mu.Unlock()

	w.CallbackGroup().remove(w)
	n.wake()
}

type destroyer interface {
	Destroy() error
}

// Destroy destroys every entity and removes the node from the graph. The
// node stays attached to its executor until the executor removes it; it just
// has nothing left to dispatch.
func (n *Node) Destroy() error {
	n.mu.Lock()
	if n.destroyed {
		n.mu.Unlock()
		return newError(ErrCodeInvalidHandle, "node %s is already destroyed", n.fqn)
	}
	entities := slices.Clone(n.entities)
	publishers := slices.Clone(n.publishers)
	n.mu.Unlock()

	for _, w := range entities {
		if d, ok := w.(destroyer); ok {
			_ = d.Destroy()
		}
	}
	for _, p := range publishers {
		_ = p.Destroy()
	}
	n.mu.Lock()
	n.destroyed = true
	n.mu.Unlock()

	if g := n.ctx.Graph(); g != nil {
		g.removeNode(n)
	}
	n.wake()
	n.logger.Debug("node destroyed", "node", n.fqn)
	return nil
}

// IsDestroyed reports whether Destroy was called.
func (n *Node) IsDestroyed() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.destroyed
}
