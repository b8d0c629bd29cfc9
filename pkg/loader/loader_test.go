package loader_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arcadia-hq/arcadia-sdk/pkg/loader"
)

func countingFetch(calls *atomic.Int64, rows map[int64]string) loader.BatchFunc[int64, string] {
	return func(_ context.Context, keys []int64) (map[int64]string, error) {
		calls.Add(1)
		out := make(map[int64]string, len(keys))
		for _, k := range keys {
			if v, ok := rows[k]; ok {
				out[k] = v
			}
		}
		return out, nil
	}
}

func TestLoad_CoalescesConcurrentCallsIntoOneFetch(t *testing.T) {
	var calls atomic.Int64
	l := loader.New(countingFetch(&calls, map[int64]string{
		1: "alice", 2: "bob", 3: "carol",
	}), loader.Options{Wait: 10 * time.Millisecond})

	var wg sync.WaitGroup
	results := make([]string, 3)
	for i := range int64(3) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, ok, err := l.Load(context.Background(), i+1)
			require.NoError(t, err)
			require.True(t, ok)
			results[i] = v
		}()
	}
	wg.Wait()

	require.EqualValues(t, 1, calls.Load())
	require.Equal(t, []string{"alice", "bob", "carol"}, results)
}

func TestLoad_MissReturnsNotFound(t *testing.T) {
	var calls atomic.Int64
	l := loader.New(countingFetch(&calls, map[int64]string{1: "alice"}), loader.Options{})

	v, ok, err := l.Load(context.Background(), 999)
	require.NoError(t, err)
	require.False(t, ok)
	require.Empty(t, v)
}

func TestLoadMany_DeduplicatesKeysAndPreservesOrder(t *testing.T) {
	var calls atomic.Int64
	var seenKeys []int64
	l := loader.New(func(_ context.Context, keys []int64) (map[int64]string, error) {
		calls.Add(1)
		seenKeys = keys
		return map[int64]string{1: "alice", 2: "bob"}, nil
	}, loader.Options{})

	values, found, err := l.LoadMany(context.Background(), []int64{1, 2, 1, 3})
	require.NoError(t, err)
	require.EqualValues(t, 1, calls.Load())
	require.Equal(t, []int64{1, 2, 3}, seenKeys)
	require.Equal(t, []string{"alice", "bob", "alice", ""}, values)
	require.Equal(t, []bool{true, true, true, false}, found)
}

func TestLoad_MaxBatchFiresEarly(t *testing.T) {
	var calls atomic.Int64
	l := loader.New(countingFetch(&calls, map[int64]string{1: "a", 2: "b", 3: "c", 4: "d"}), loader.Options{
		Wait:     time.Hour,
		MaxBatch: 2,
	})

	values, found, err := l.LoadMany(context.Background(), []int64{1, 2})
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, values)
	require.Equal(t, []bool{true, true}, found)
	require.EqualValues(t, 1, calls.Load())
}

func TestLoad_FetchErrorReachesEveryCaller(t *testing.T) {
	fetchErr := errors.New("relation does not exist")
	l := loader.New(func(_ context.Context, _ []int64) (map[int64]string, error) {
		return nil, fetchErr
	}, loader.Options{})

	first := l.LoadThunk(context.Background(), 1)
	second := l.LoadThunk(context.Background(), 2)

	_, _, err := first()
	require.ErrorIs(t, err, fetchErr)
	_, _, err = second()
	require.ErrorIs(t, err, fetchErr)
}

func TestLoad_SeparateBatchesFetchSeparately(t *testing.T) {
	var calls atomic.Int64
	l := loader.New(countingFetch(&calls, map[int64]string{1: "a", 2: "b"}), loader.Options{Wait: time.Millisecond})

	_, ok, err := l.Load(context.Background(), 1)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = l.Load(context.Background(), 2)
	require.NoError(t, err)
	require.True(t, ok)

	require.EqualValues(t, 2, calls.Load())
}

func TestRegistry_ForReturnsSameLoaderPerName(t *testing.T) {
	registry := loader.NewRegistry()
	construct := func() *loader.Loader[int64, string] {
		return loader.New(func(_ context.Context, _ []int64) (map[int64]string, error) {
			return nil, nil
		}, loader.Options{})
	}

	a := loader.For(registry, "users", construct)
	b := loader.For(registry, "users", construct)
	c := loader.For(registry, "departments", construct)

	require.Same(t, a, b)
	require.NotSame(t, a, c)
}
