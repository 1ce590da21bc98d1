// Package sync provides the spinlock used to serialize access to page tables
// and allocator state.
package sync

import (
	"runtime"
	"sync/atomic"
)

const (
	// spinAttemptsBeforeYield is the number of failed acquisition
	// attempts after which Acquire yields the processor.
	spinAttemptsBeforeYield = 64
)

var (
	// yieldFn is invoked by Acquire after spinAttemptsBeforeYield failed
	// attempts. Tests may replace it.
	yieldFn = runtime.Gosched
)

// Spinlock implements a lock where each task trying to acquire it busy-waits
// till the lock becomes available. The zero value is an unlocked Spinlock.
type Spinlock struct {
	state uint32
}

// Acquire blocks until the lock can be acquired by the currently active task.
// Any attempt to re-acquire a lock already held by the current task will cause
// a deadlock.
func (l *Spinlock) Acquire() {
	acquireSpinlock(&l.state, spinAttemptsBeforeYield)
}

// TryToAcquire attempts to acquire the lock and returns true if the lock could
// be acquired or false otherwise.
func (l *Spinlock) TryToAcquire() bool {
	return atomic.SwapUint32(&l.state, 1) == 0
}

// Release relinquishes a held lock allowing other tasks to acquire it. Calling
// Release while the lock is free has no effect.
func (l *Spinlock) Release() {
	atomic.StoreUint32(&l.state, 0)
}

// acquireSpinlock spins on a compare-and-swap of state from 0 to 1, yielding
// after every attemptsBeforeYielding failed attempts.
func acquireSpinlock(state *uint32, attemptsBeforeYielding uint32) {
	for attempts := uint32(1); !atomic.CompareAndSwapUint32(state, 0, 1); attempts++ {
		if attempts%attemptsBeforeYielding == 0 {
			yieldFn()
		}
	}
}
