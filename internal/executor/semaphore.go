package executor

import (
	"sync/atomic"

	xsemaphore "golang.org/x/sync/semaphore"
)

// semaphore bounds concurrent callbacks of a multi-threaded executor.
// A nil semaphore means inline execution.
type semaphore struct {
	w     *xsemaphore.Weighted
	size  int64
	inUse atomic.Int64
}

func newSemaphore(n int) *semaphore {
	if n <= 0 {
		return nil
	}
	return &semaphore{w: xsemaphore.NewWeighted(int64(n)), size: int64(n)}
}

// TryAcquire takes a slot without blocking.
func (s *semaphore) TryAcquire() bool {
	if s == nil {
		return true
	}
	if !s.w.TryAcquire(1) {
		return false
	}
	s.inUse.Add(1)
	return true
}

// Release returns a slot.
func (s *semaphore) Release() {
	if s == nil {
		return
	}
	s.inUse.Add(-1)
	s.w.Release(1)
}

// Full reports whether every slot is taken.
func (s *semaphore) Full() bool {
	if s == nil {
		return false
	}
	return s.inUse.Load() >= s.size
}

// Capacity returns the number of slots, 0 for a nil semaphore.
func (s *semaphore) Capacity() int {
	if s == nil {
		return 0
	}
	return int(s.size)
}

// InUse returns the number of taken slots.
func (s *semaphore) InUse() int {
	if s == nil {
		return 0
	}
	return int(s.inUse.Load())
}
