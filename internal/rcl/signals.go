package rcl

import (
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// SignalHandlerOptions selects which signals shut down registered contexts.
type SignalHandlerOptions int

const (
	SignalHandlerNo SignalHandlerOptions = iota
	SignalHandlerSigInt
	SignalHandlerSigTerm
	SignalHandlerAll
)

// String returns the option name.
func (o SignalHandlerOptions) String() string {
	switch o {
	case SignalHandlerNo:
		return "NO"
	case SignalHandlerSigInt:
		return "SIGINT"
	case SignalHandlerSigTerm:
		return "SIGTERM"
	case SignalHandlerAll:
		return "ALL"
	default:
		return "UNKNOWN"
	}
}

func (o SignalHandlerOptions) signals() []os.Signal {
	switch o {
	case SignalHandlerSigInt:
		return []os.Signal{os.Interrupt}
	case SignalHandlerSigTerm:
		return []os.Signal{syscall.SIGTERM}
	case SignalHandlerAll:
		return []os.Signal{os.Interrupt, syscall.SIGTERM}
	default:
		return nil
	}
}

// signalHandlers is the single process-wide handler. Contexts register on
// Init and unregister on Shutdown; the OS handler is removed with the last one.
var signalHandlers struct {
	mu       sync.Mutex
	opts     SignalHandlerOptions
	ch       chan os.Signal
	stop     chan struct{}
	contexts map[*Context]struct{}
}

// InstallSignalHandlers installs the handler for opts. Installing again with
// different options replaces the handled signal set.
func InstallSignalHandlers(opts SignalHandlerOptions) {
	signalHandlers.mu.Lock()
	defer signalHandlers.mu.Unlock()
	installLocked(opts)
}

func installLocked(opts SignalHandlerOptions) {
	if signalHandlers.opts == opts && signalHandlers.ch != nil {
		return
	}
	uninstallLocked()
	if opts == SignalHandlerNo {
		return
	}

	ch := make(chan os.Signal, 1)
	stop := make(chan struct{})
	signal.Notify(ch, opts.signals()...)
	signalHandlers.opts = opts
	signalHandlers.ch = ch
	signalHandlers.stop = stop

	go func() {
		for {
			select {
			case sig := <-ch:
				handleSignal(sig)
			case <-stop:
				return
			}
		}
	}()
}

// UninstallSignalHandlers removes the handler. Registered contexts stay
// running.
func UninstallSignalHandlers() {
	signalHandlers.mu.Lock()
	defer signalHandlers.mu.Unlock()
	uninstallLocked()
}

func uninstallLocked() {
	if signalHandlers.ch != nil {
		signal.Stop(signalHandlers.ch)
		close(signalHandlers.stop)
	}
	signalHandlers.ch = nil
	signalHandlers.stop = nil
	signalHandlers.opts = SignalHandlerNo
}

// CurrentSignalHandlerOptions returns the installed options, SignalHandlerNo
// if none.
func CurrentSignalHandlerOptions() SignalHandlerOptions {
	signalHandlers.mu.Lock()
	defer signalHandlers.mu.Unlock()
	return signalHandlers.opts
}

func registerSignalContext(c *Context, opts SignalHandlerOptions) {
	signalHandlers.mu.Lock()
	defer signalHandlers.mu.Unlock()
	if signalHandlers.contexts == nil {
		signalHandlers.contexts = make(map[*Context]struct{})
	}
	signalHandlers.contexts[c] = struct{}{}
	if signalHandlers.ch == nil {
		installLocked(opts)
	}
}

func unregisterSignalContext(c *Context) {
	signalHandlers.mu.Lock()
	defer signalHandlers.mu.Unlock()
	if _, ok := signalHandlers.contexts[c]; !ok {
		return
	}
	delete(signalHandlers.contexts, c)
	if len(signalHandlers.contexts) == 0 {
		uninstallLocked()
	}
}

// handleSignal shuts down every registered context.
func handleSignal(sig os.Signal) {
	signalHandlers.mu.Lock()
	contexts := make([]*Context, 0, len(signalHandlers.contexts))
	for c := range signalHandlers.contexts {
		contexts = append(contexts, c)
	}
	signalHandlers.mu.Unlock()

	slog.Info("signal received, shutting down", "signal", sig.String(), "contexts", len(contexts))
	for _, c := range contexts {
		if err := c.TryShutdown(); err != nil {
			slog.Warn("shutdown on signal failed", "error", err)
		}
	}
}
