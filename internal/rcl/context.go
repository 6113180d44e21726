package rcl

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"unicode/utf8"

	"github.com/roach88/rclgo/internal/logging"
)

// MaxDomainID is the largest domain id accepted by Init.
const MaxDomainID = 232

// DomainIDEnv is read by Init when no domain id is given.
const DomainIDEnv = "ROS_DOMAIN_ID"

type contextState int

const (
	contextUninitialized contextState = iota
	contextRunning
	contextShutdown
)

// Context owns the process-wide state of a ROS client: parsed arguments, the
// domain id, signal handling registration and the graph of nodes created in
// it.
//
// A Context is initialized once and shut down once. It cannot be reused
// after Shutdown; create a new one instead.
type Context struct {
	mu         sync.Mutex
	state      contextState
	domainID   int
	args       *ROSArgs
	logger     *slog.Logger
	ids        IDGenerator
	onShutdown []func()
	done       chan struct{}
	graph      *Graph
}

// NewContext creates an uninitialized context.
func NewContext() *Context {
	return &Context{
		done: make(chan struct{}),
	}
}

type initConfig struct {
	domainID    *int
	args        []string
	logger      *slog.Logger
	ids         IDGenerator
	signalOpts  SignalHandlerOptions
	signalIsSet bool
}

// InitOption configures Context.Init.
type InitOption func(*initConfig)

// WithDomainID sets the domain id instead of reading ROS_DOMAIN_ID.
func WithDomainID(id int) InitOption {
	return func(c *initConfig) {
		c.domainID = &id
	}
}

// WithArgs passes a command line whose --ros-args sections are parsed.
func WithArgs(args []string) InitOption {
	return func(c *initConfig) {
		c.args = args
	}
}

// WithLogger sets the parent logger for all nodes in the context.
func WithLogger(logger *slog.Logger) InitOption {
	return func(c *initConfig) {
		c.logger = logger
	}
}

// WithIDGenerator replaces the UUIDv7 generator, e.g. for reproducible tests.
func WithIDGenerator(ids IDGenerator) InitOption {
	return func(c *initConfig) {
		c.ids = ids
	}
}

// WithSignalHandlers selects which signals shut the context down.
// Default: SignalHandlerAll.
func WithSignalHandlers(opts SignalHandlerOptions) InitOption {
	return func(c *initConfig) {
		c.signalOpts = opts
		c.signalIsSet = true
	}
}

// Init initializes the context.
//
// Errors:
//   - ALREADY_INITIALIZED if Init was already called on this context
//   - INVALID_ARGUMENT for a bad domain id or non UTF-8 arguments
//   - INVALID_ROS_ARGS or *UnknownROSArgsError for bad --ros-args sections
func (c *Context) Init(opts ...InitOption) error {
	cfg := initConfig{signalOpts: SignalHandlerAll}
	for _, opt := range opts {
		opt(&cfg)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != contextUninitialized {
		return newError(ErrCodeAlreadyInitialized, "context is already initialized")
	}

	for i, arg := range cfg.args {
		if !utf8.ValidString(arg) {
			return newError(ErrCodeInvalidArgument, "argument %d is not valid UTF-8", i)
		}
	}

	rosArgs, err := ParseROSArgs(cfg.args)
	if err != nil {
		return err
	}

	domainID, err := resolveDomainID(cfg.domainID)
	if err != nil {
		return err
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
		if rosArgs.LogLevel != "" {
			logger = logging.NewLogger(logging.ParseLevel(rosArgs.LogLevel), "text")
		}
	}
	if cfg.ids == nil {
		cfg.ids = UUIDv7Generator{}
	}

	c.domainID = domainID
	c.args = rosArgs
	c.logger = logger
	c.ids = cfg.ids
	c.graph = newGraph()
	c.state = contextRunning

	if cfg.signalOpts != SignalHandlerNo {
		registerSignalContext(c, cfg.signalOpts)
	}

	logger.Debug("context initialized", "domain_id", domainID, "remaps", len(rosArgs.Remaps))
	return nil
}

func resolveDomainID(explicit *int) (int, error) {
	if explicit != nil {
		if *explicit < 0 || *explicit > MaxDomainID {
			return 0, newError(ErrCodeInvalidArgument, "domain id %d out of range [0, %d]", *explicit, MaxDomainID)
		}
		return *explicit, nil
	}
	env := os.Getenv(DomainIDEnv)
	if env == "" {
		return 0, nil
	}
	id, err := strconv.Atoi(env)
	if err != nil {
		return 0, wrapError(ErrCodeInvalidArgument, err, "%s=%q is not an integer", DomainIDEnv, env)
	}
	if id < 0 || id > MaxDomainID {
		return 0, newError(ErrCodeInvalidArgument, "%s=%d out of range [0, %d]", DomainIDEnv, id, MaxDomainID)
	}
	return id, nil
}

// Shutdown shuts the context down and runs OnShutdown callbacks in
// registration order.
//
// Errors: NOT_INITIALIZED before Init, ALREADY_SHUTDOWN on a second call.
func (c *Context) Shutdown() error {
	c.mu.Lock()
	switch c.state {
	case contextUninitialized:
		c.mu.Unlock()
		return newError(ErrCodeNotInitialized, "context is not initialized")
	case contextShutdown:
		c.mu.Unlock()
		return newError(ErrCodeAlreadyShutdown, "context is already shut down")
	}
	c.state = contextShutdown
	callbacks := c.onShutdown
	c.onShutdown = nil
	close(c.done)
	logger := c.logger
	c.mu.Unlock()

	unregisterSignalContext(c)

	for _, fn := range callbacks {
		fn()
	}
	logger.Debug("context shut down")
	return nil
}

// TryShutdown shuts the context down if it is running. It is a no-op on a
// context that is already shut down.
func (c *Context) TryShutdown() error {
	err := c.Shutdown()
	if CodeOf(err) == ErrCodeAlreadyShutdown {
		return nil
	}
	return err
}

// OK reports whether the context is initialized and not shut down.
func (c *Context) OK() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == contextRunning
}

// Done is closed when the context shuts down.
func (c *Context) Done() <-chan struct{} {
	return c.done
}

// OnShutdown registers fn to run during Shutdown. If the context is already
// shut down, fn runs immediately.
func (c *Context) OnShutdown(fn func()) {
	c.mu.Lock()
	if c.state == contextShutdown {
		c.mu.Unlock()
		fn()
		return
	}
	c.onShutdown = append(c.onShutdown, fn)
	c.mu.Unlock()
}

// DomainID returns the domain id chosen at Init.
func (c *Context) DomainID() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == contextUninitialized {
		return 0, newError(ErrCodeNotInitialized, "context is not initialized")
	}
	return c.domainID, nil
}

// Args returns the parsed ROS arguments. It is nil before Init.
func (c *Context) Args() *ROSArgs {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.args
}

// Logger returns the context's logger.
func (c *Context) Logger() *slog.Logger {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.logger == nil {
		return slog.Default()
	}
	return c.logger
}

// Graph returns the node graph. It is nil before Init.
func (c *Context) Graph() *Graph {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.graph
}

func (c *Context) newID() string {
	c.mu.Lock()
	ids := c.ids
	c.mu.Unlock()
	if ids == nil {
		ids = UUIDv7Generator{}
	}
	return ids.Generate()
}

// checkRunning returns NOT_INITIALIZED unless the context is running.
func (c *Context) checkRunning(what string) error {
	if c == nil {
		return newError(ErrCodeNotInitialized, "%s: nil context", what)
	}
	if !c.OK() {
		return newError(ErrCodeNotInitialized, "%s: context is not initialized or already shut down", what)
	}
	return nil
}

var (
	defaultMu      sync.Mutex
	defaultContext = NewContext()
)

// DefaultContext returns the process-wide context used by Init and Shutdown.
func DefaultContext() *Context {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	return defaultContext
}

// Init initializes the default context. After the default context has been
// shut down, Init replaces it with a fresh one.
func Init(opts ...InitOption) error {
	defaultMu.Lock()
	c := defaultContext
	c.mu.Lock()
	if c.state == contextShutdown {
		c.mu.Unlock()
		c = NewContext()
		defaultContext = c
	} else {
		c.mu.Unlock()
	}
	defaultMu.Unlock()

	if err := c.Init(opts...); err != nil {
		return fmt.Errorf("init default context: %w", err)
	}
	return nil
}

// Shutdown shuts down the default context.
func Shutdown() error {
	return DefaultContext().Shutdown()
}
