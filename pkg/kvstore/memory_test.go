package kvstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryStore_SetNX(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	ok, err := store.SetNX(ctx, "k", "v1", 0)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = store.SetNX(ctx, "k", "v2", 0)
	require.NoError(t, err)
	require.False(t, ok)

	value, found, err := store.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "v1", value)
}

func TestMemoryStore_TTLExpiry(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	current := time.Now()
	store.now = func() time.Time { return current }

	ok, err := store.SetNX(ctx, "k", "v", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	_, found, err := store.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, found)

	current = current.Add(2 * time.Second)

	_, found, err = store.Get(ctx, "k")
	require.NoError(t, err)
	require.False(t, found)

	// An expired key can be re-claimed.
	ok, err = store.SetNX(ctx, "k", "v2", time.Second)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestMemoryStore_CompareAndDelete(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.Set(ctx, "k", "token-a", 0))

	deleted, err := store.CompareAndDelete(ctx, "k", "token-b")
	require.NoError(t, err)
	require.False(t, deleted)

	_, found, err := store.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, found)

	deleted, err = store.CompareAndDelete(ctx, "k", "token-a")
	require.NoError(t, err)
	require.True(t, deleted)

	_, found, err = store.Get(ctx, "k")
	require.NoError(t, err)
	require.False(t, found)
}

func TestMemoryStore_Del(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.Set(ctx, "k", "v", 0))
	require.NoError(t, store.Del(ctx, "k"))
	require.NoError(t, store.Del(ctx, "missing"))

	_, found, err := store.Get(ctx, "k")
	require.NoError(t, err)
	require.False(t, found)
}
