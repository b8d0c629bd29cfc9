package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/arcadia-hq/arcadia-sdk/pkg/configuration"
	"github.com/arcadia-hq/arcadia-sdk/pkg/kvstore"
	"github.com/arcadia-hq/arcadia-sdk/pkg/serrors"
)

var ErrLockBusy = serrors.NewError("LOCK_CONFLICT", "resource is locked, retry later", "")

// NoWait makes Acquire fail immediately when the lock is busy instead of
// falling back to the configured default wait.
const NoWait = time.Duration(-1)

// Handle proves ownership of an acquired lock. The token is required to
// release it: a lock that expired and was re-acquired by another owner holds
// a different token, so a stale release becomes a no-op.
type Handle struct {
	Key   string
	Token string
	Lease time.Duration
}

type Options struct {
	PollInterval time.Duration
	Logger       *logrus.Entry
}

func (o *Options) setDefaults() {
	if o.PollInterval == 0 {
		o.PollInterval = configuration.Use().Lock.PollInterval
	}
	if o.Logger == nil {
		o.Logger = logrus.NewEntry(logrus.StandardLogger())
	}
}

// Locker grants named mutual-exclusion locks backed by the coordination
// store. The store's set-if-not-exists is the sole serialization point, so
// instances in separate processes contend correctly.
type Locker struct {
	store kvstore.Store
	opts  Options
	m     *lockMetrics
}

func NewLocker(store kvstore.Store, opts Options) *Locker {
	opts.setDefaults()
	return &Locker{
		store: store,
		opts:  opts,
		m:     getMetrics(),
	}
}

// Acquire claims key for at most lease. When the lock is busy and wait is
// positive, acquisition is retried on the poll interval until the wait
// time runs out.
func (l *Locker) Acquire(ctx context.Context, key string, wait, lease time.Duration) (*Handle, error) {
	token := uuid.New().String()
	start := time.Now()
	deadline := start.Add(wait)

	for {
		ok, err := l.store.SetNX(ctx, key, token, lease)
		if err != nil {
			l.m.acquireTotal.WithLabelValues(resultError).Inc()
			return nil, err
		}
		if ok {
			l.m.acquireTotal.WithLabelValues(resultAcquired).Inc()
			l.m.waitSeconds.Observe(time.Since(start).Seconds())
			return &Handle{Key: key, Token: token, Lease: lease}, nil
		}

		if wait <= 0 || !time.Now().Add(l.opts.PollInterval).Before(deadline) {
			l.m.acquireTotal.WithLabelValues(resultBusy).Inc()
			return nil, fmt.Errorf("%w: key=%s", ErrLockBusy, key)
		}

		select {
		case <-ctx.Done():
			l.m.acquireTotal.WithLabelValues(resultError).Inc()
			return nil, ctx.Err()
		case <-time.After(l.opts.PollInterval):
		}
	}
}

// Release removes the lock via token-checked atomic delete. By the time it
// runs the protected work is already done, so failures are logged and
// swallowed rather than surfaced.
func (l *Locker) Release(ctx context.Context, handle *Handle) {
	if handle == nil {
		return
	}
	deleted, err := l.store.CompareAndDelete(ctx, handle.Key, handle.Token)
	if err != nil {
		l.opts.Logger.WithError(err).WithField("key", handle.Key).Warn("lock: release failed")
		return
	}
	if !deleted {
		// Lease expired and someone else may hold the key now.
		l.opts.Logger.WithField("key", handle.Key).Debug("lock: release skipped, token no longer current")
	}
}
