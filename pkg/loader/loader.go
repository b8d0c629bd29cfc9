package loader

import (
	"context"
	"sync"
	"time"
)

// BatchFunc fetches all requested keys at once. Keys absent from the result
// map are reported to callers as misses, not errors.
type BatchFunc[K comparable, V any] func(ctx context.Context, keys []K) (map[K]V, error)

type Options struct {
	// Wait is how long the first Load in a batch waits for more keys to
	// coalesce before the fetch runs.
	Wait time.Duration
	// MaxBatch triggers the fetch early once this many distinct keys are
	// pending. Zero means unbounded.
	MaxBatch int
}

func (o *Options) setDefaults() {
	if o.Wait <= 0 {
		o.Wait = time.Millisecond
	}
}

// Loader coalesces point lookups of one entity kind into batched fetches.
// It is request-scoped: construct one per inbound request and discard it
// when the request ends.
type Loader[K comparable, V any] struct {
	fetch BatchFunc[K, V]
	opts  Options

	mu      sync.Mutex
	current *batch[K, V]
}

func New[K comparable, V any](fetch BatchFunc[K, V], opts Options) *Loader[K, V] {
	opts.setDefaults()
	return &Loader[K, V]{fetch: fetch, opts: opts}
}

type batch[K comparable, V any] struct {
	keys    []K
	pending map[K]struct{}
	done    chan struct{}
	results map[K]V
	err     error
	fired   bool
}

// Thunk defers a single lookup. Calling it blocks until the batch has run.
type Thunk[V any] func() (V, bool, error)

// Load resolves one key, coalescing with other in-flight loads on the same
// loader. The bool result is false when the key had no match.
func (l *Loader[K, V]) Load(ctx context.Context, key K) (V, bool, error) {
	return l.LoadThunk(ctx, key)()
}

// LoadThunk registers the key in the current batch and returns a thunk for
// its result, letting callers queue several keys before blocking.
func (l *Loader[K, V]) LoadThunk(ctx context.Context, key K) Thunk[V] {
	l.mu.Lock()
	b := l.current
	if b == nil {
		b = &batch[K, V]{
			pending: make(map[K]struct{}),
			done:    make(chan struct{}),
		}
		l.current = b
		go l.scheduleFire(ctx, b)
	}
	if _, ok := b.pending[key]; !ok {
		b.pending[key] = struct{}{}
		b.keys = append(b.keys, key)
	}
	if l.opts.MaxBatch > 0 && len(b.keys) >= l.opts.MaxBatch {
		l.fire(ctx, b)
	}
	l.mu.Unlock()

	return func() (V, bool, error) {
		<-b.done
		var zero V
		if b.err != nil {
			return zero, false, b.err
		}
		v, ok := b.results[key]
		if !ok {
			return zero, false, nil
		}
		return v, true, nil
	}
}

// LoadMany resolves several keys through one batch.
func (l *Loader[K, V]) LoadMany(ctx context.Context, keys []K) ([]V, []bool, error) {
	thunks := make([]Thunk[V], len(keys))
	for i, key := range keys {
		thunks[i] = l.LoadThunk(ctx, key)
	}
	values := make([]V, len(keys))
	found := make([]bool, len(keys))
	for i, thunk := range thunks {
		v, ok, err := thunk()
		if err != nil {
			return nil, nil, err
		}
		values[i] = v
		found[i] = ok
	}
	return values, found, nil
}

func (l *Loader[K, V]) scheduleFire(ctx context.Context, b *batch[K, V]) {
	timer := time.NewTimer(l.opts.Wait)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	case <-b.done:
		return
	}
	l.mu.Lock()
	l.fire(ctx, b)
	l.mu.Unlock()
}

// fire runs the batched fetch exactly once. Callers hold l.mu.
func (l *Loader[K, V]) fire(ctx context.Context, b *batch[K, V]) {
	if b.fired {
		return
	}
	b.fired = true
	if l.current == b {
		l.current = nil
	}
	keys := b.keys
	go func() {
		defer close(b.done)
		if len(keys) == 0 {
			b.results = map[K]V{}
			return
		}
		b.results, b.err = l.fetch(ctx, keys)
	}()
}
