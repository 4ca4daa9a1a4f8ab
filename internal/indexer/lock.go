package indexer

import "sync/atomic"

// reconcileLock provides non-blocking lock semantics using atomic
// operations. Concurrent reconcile requests for the same root fail
// fast with ErrReconcileBusy instead of queueing.
type reconcileLock struct {
	state atomic.Int32 // 0 = unlocked, 1 = locked
}

// TryAcquire attempts to acquire the lock without blocking.
// Returns true if the lock was successfully acquired, false otherwise.
func (l *reconcileLock) TryAcquire() bool {
	return l.state.CompareAndSwap(0, 1)
}

// Release releases the lock.
// Must only be called by the goroutine that successfully acquired the lock.
func (l *reconcileLock) Release() {
	l.state.Store(0)
}
