// Package admission implements the gate between installation and
// execution: a reader-writer installation lock, a bounded submission
// semaphore, and a rotating box-id allocator. install_runtime and
// update_package_index hold the installation lock for write; execute
// holds it for read for the whole of its critical section, so the
// runtime directory tree is stable for the duration of a submission.
package admission

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// MaxBoxID bounds the box-id space; wrap-around is safe because every
// Sandbox's cleanup completes well before its id is due for reuse in
// steady state.
const MaxBoxID = 900

// Control bundles the three admission primitives behind the
// operations the installation and execution coordinators actually
// need, so neither has to reach into sync/semaphore directly.
type Control struct {
	installLock sync.RWMutex
	submissions *semaphore.Weighted
	nextBoxID   atomic.Uint64
}

// New builds a Control with maxConcurrentSubmissions permits in the
// submission semaphore.
func New(maxConcurrentSubmissions int64) *Control {
	return &Control{
		submissions: semaphore.NewWeighted(maxConcurrentSubmissions),
	}
}

// LockInstall acquires the installation lock for write, blocking any
// concurrent execution's read hold and any other installation.
func (c *Control) LockInstall() {
	c.installLock.Lock()
}

// UnlockInstall releases the write hold taken by LockInstall.
func (c *Control) UnlockInstall() {
	c.installLock.Unlock()
}

// RLockExecute acquires the installation lock for read, held for the
// full duration of an execution's critical section.
func (c *Control) RLockExecute() {
	c.installLock.RLock()
}

// RUnlockExecute releases the read hold taken by RLockExecute.
func (c *Control) RUnlockExecute() {
	c.installLock.RUnlock()
}

// AcquireSubmission blocks until a submission permit is available or
// ctx is cancelled.
func (c *Control) AcquireSubmission(ctx context.Context) error {
	return c.submissions.Acquire(ctx, 1)
}

// ReleaseSubmission returns the permit acquired by AcquireSubmission.
func (c *Control) ReleaseSubmission() {
	c.submissions.Release(1)
}

// NextBoxID returns the next box id: an atomic fetch-add taken modulo
// MaxBoxID.
func (c *Control) NextBoxID() uint32 {
	v := c.nextBoxID.Add(1) - 1
	return uint32(v % MaxBoxID)
}
