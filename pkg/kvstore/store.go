package kvstore

import (
	"context"
	"time"

	"github.com/arcadia-hq/arcadia-sdk/pkg/serrors"
)

// ErrUnavailable marks coordination-store failures on a critical path.
// Callers must treat it as an infrastructure fault, never as permission to
// proceed without coordination.
var ErrUnavailable = serrors.NewError("COORDINATION_UNAVAILABLE", "coordination store unavailable", "")

// Store is the minimal contract the coordination layer needs from a
// low-latency key-value store. SetNX is the sole serialization point for
// lock acquisition and idempotency admission; CompareAndDelete must be
// atomic from the store's perspective.
type Store interface {
	// SetNX stores value under key only if the key does not exist yet.
	// Returns true when the value was written.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	// Get returns the value and whether the key exists.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set unconditionally stores value under key.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// Del removes key. Removing an absent key is not an error.
	Del(ctx context.Context, key string) error
	// CompareAndDelete removes key only if its current value equals expected.
	// Returns true when the key was removed.
	CompareAndDelete(ctx context.Context, key, expected string) (bool, error)
}
