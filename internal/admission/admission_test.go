package admission

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextBoxID_WrapsAroundModulo(t *testing.T) {
	c := New(1)
	var last uint32
	for i := 0; i < MaxBoxID+5; i++ {
		last = c.NextBoxID()
	}
	assert.Less(t, last, uint32(MaxBoxID))
}

func TestNextBoxID_DisjointUnderConcurrency(t *testing.T) {
	c := New(1)
	const n = 200
	seen := make(chan uint32, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			seen <- c.NextBoxID()
		}()
	}
	wg.Wait()
	close(seen)

	ids := make(map[uint32]int)
	for id := range seen {
		ids[id]++
	}
	assert.Len(t, ids, n)
}

func TestSubmissionSemaphore_BoundsConcurrency(t *testing.T) {
	c := New(2)
	ctx := context.Background()
	require.NoError(t, c.AcquireSubmission(ctx))
	require.NoError(t, c.AcquireSubmission(ctx))

	acquired := make(chan struct{})
	go func() {
		_ = c.AcquireSubmission(ctx)
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("third acquire should have blocked while two permits are held")
	case <-time.After(50 * time.Millisecond):
	}

	c.ReleaseSubmission()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("third acquire should have unblocked after a release")
	}
	c.ReleaseSubmission()
}

func TestInstallLock_ExcludesExecuteReaders(t *testing.T) {
	c := New(1)
	c.LockInstall()

	readLocked := make(chan struct{})
	go func() {
		c.RLockExecute()
		close(readLocked)
		c.RUnlockExecute()
	}()

	select {
	case <-readLocked:
		t.Fatal("read lock should not be granted while a writer holds it")
	case <-time.After(50 * time.Millisecond):
	}

	c.UnlockInstall()
	select {
	case <-readLocked:
	case <-time.After(time.Second):
		t.Fatal("read lock should be granted after writer releases")
	}
}

func TestInstallLock_AllowsConcurrentExecuteReaders(t *testing.T) {
	c := New(1)
	c.RLockExecute()
	defer c.RUnlockExecute()

	readLocked := make(chan struct{})
	go func() {
		c.RLockExecute()
		close(readLocked)
		c.RUnlockExecute()
	}()

	select {
	case <-readLocked:
	case <-time.After(time.Second):
		t.Fatal("a second reader should not block behind the first")
	}
}
