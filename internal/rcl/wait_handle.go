package rcl

import "sync"

// WaitHandle is the readiness signal of one entity.
//
// An executor attaches a shared channel to the handles in its wait set.
// Signal sends on that channel without blocking, so a buffered channel of
// size 1 coalesces any number of signals into one wakeup. A signal raised
// while no channel is attached is latched and reported by the next Attach.
type WaitHandle struct {
	mu      sync.Mutex
	pending bool
	waiter  chan<- struct{}
}

// Signal marks the handle as signaled and wakes the attached waiter.
// Safe from any goroutine.
func (h *WaitHandle) Signal() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.pending = true
	if h.waiter == nil {
		return
	}
	select {
	case h.waiter <- struct{}{}:
	default:
	}
}

// Attach routes future signals to ch and returns, and clears, the latched
// signal state.
func (h *WaitHandle) Attach(ch chan<- struct{}) (pending bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.waiter = ch
	pending = h.pending
	h.pending = false
	return pending
}

// Detach stops routing signals to ch. Later signals are latched. A handle
// already attached to another channel is left alone, so a wait that ends
// late cannot unhook the wait that replaced it.
func (h *WaitHandle) Detach(ch chan<- struct{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.waiter == ch {
		h.waiter = nil
	}
}
