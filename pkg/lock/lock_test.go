package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arcadia-hq/arcadia-sdk/pkg/kvstore"
)

func newTestLocker() *Locker {
	return NewLocker(kvstore.NewMemoryStore(), Options{PollInterval: 5 * time.Millisecond})
}

func TestAcquire_NoWaitFailsImmediately(t *testing.T) {
	ctx := context.Background()
	locker := newTestLocker()

	first, err := locker.Acquire(ctx, "order:42", 0, time.Minute)
	require.NoError(t, err)
	require.NotNil(t, first)

	start := time.Now()
	_, err = locker.Acquire(ctx, "order:42", 0, time.Minute)
	require.ErrorIs(t, err, ErrLockBusy)
	require.Less(t, time.Since(start), 50*time.Millisecond, "wait<=0 must not poll")
}

func TestAcquire_WaitSucceedsAfterRelease(t *testing.T) {
	ctx := context.Background()
	locker := newTestLocker()

	first, err := locker.Acquire(ctx, "k", 0, time.Minute)
	require.NoError(t, err)

	go func() {
		time.Sleep(20 * time.Millisecond)
		locker.Release(ctx, first)
	}()

	second, err := locker.Acquire(ctx, "k", 500*time.Millisecond, time.Minute)
	require.NoError(t, err)
	require.NotNil(t, second)
	require.NotEqual(t, first.Token, second.Token)
}

func TestAcquire_WaitExhausted(t *testing.T) {
	ctx := context.Background()
	locker := newTestLocker()

	_, err := locker.Acquire(ctx, "k", 0, time.Minute)
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, "k", 30*time.Millisecond, time.Minute)
	require.ErrorIs(t, err, ErrLockBusy)
}

func TestRelease_StaleTokenDoesNotUnlockOtherOwner(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemoryStore()
	locker := NewLocker(store, Options{PollInterval: 5 * time.Millisecond})

	stale := &Handle{Key: "k", Token: "expired-token"}

	current, err := locker.Acquire(ctx, "k", 0, time.Minute)
	require.NoError(t, err)

	locker.Release(ctx, stale)

	// The current owner's entry must survive a stale release.
	value, found, err := store.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, current.Token, value)
}

func TestAcquire_SingleHolderUnderContention(t *testing.T) {
	ctx := context.Background()
	locker := newTestLocker()

	const contenders = 16
	var acquired atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := locker.Acquire(ctx, "hot", 0, time.Minute); err == nil {
				acquired.Add(1)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, int32(1), acquired.Load())
}

func TestAcquire_ContextCanceledDuringWait(t *testing.T) {
	locker := newTestLocker()

	_, err := locker.Acquire(context.Background(), "k", 0, time.Minute)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err = locker.Acquire(ctx, "k", time.Second, time.Minute)
	require.ErrorIs(t, err, context.Canceled)
}
