package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/arcadia-hq/arcadia-sdk/pkg/configuration"
	"github.com/arcadia-hq/arcadia-sdk/pkg/kvstore"
	"github.com/arcadia-hq/arcadia-sdk/pkg/serrors"
)

var ErrInFlight = serrors.NewError("IDEMPOTENT_IN_FLIGHT", "duplicate request is being processed", "")

const (
	statusProcessing = "processing"
	statusDone       = "done"
)

// Record is what the coordination store holds per idempotency key: either
// the processing sentinel or the serialized result of the first successful
// execution.
type Record struct {
	Status      string `json:"status"`
	Code        int    `json:"code,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body,omitempty"`
}

func (r Record) IsProcessing() bool {
	return r.Status == statusProcessing
}

type Options struct {
	TTL       time.Duration
	KeyPrefix string
	Logger    *logrus.Entry
}

func (o *Options) setDefaults() {
	conf := configuration.Use()
	if o.TTL == 0 {
		o.TTL = conf.Idempotency.TTL
	}
	if o.KeyPrefix == "" {
		o.KeyPrefix = conf.Idempotency.KeyPrefix
	}
	if o.Logger == nil {
		o.Logger = logrus.NewEntry(logrus.StandardLogger())
	}
}

// Guard deduplicates logically identical requests. Admission rides on the
// store's set-if-not-exists, so concurrent duplicates across processes are
// serialized by the store, not by this client.
type Guard struct {
	store kvstore.Store
	opts  Options
	m     *guardMetrics
}

func NewGuard(store kvstore.Store, opts Options) *Guard {
	opts.setDefaults()
	return &Guard{
		store: store,
		opts:  opts,
		m:     getMetrics(),
	}
}

// FingerprintKey derives the store key from the caller's identity and the
// resolved request fingerprint.
func (g *Guard) FingerprintKey(userID int64, method, path, fingerprint string) string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%d:%s:%s:%s", userID, method, path, fingerprint))
	return g.opts.KeyPrefix + hex.EncodeToString(sum[:])
}

// Admit claims the key for execution. The returned replay record is non-nil
// when a prior execution already stored its result; ErrInFlight is returned
// while another execution holds the processing sentinel.
func (g *Guard) Admit(ctx context.Context, key string) (*Record, error) {
	processing, err := json.Marshal(Record{Status: statusProcessing})
	if err != nil {
		return nil, err
	}

	// Two rounds cover the window where the prior holder's entry expires
	// between our failed SetNX and the Get.
	for attempt := 0; attempt < 2; attempt++ {
		ok, err := g.store.SetNX(ctx, key, string(processing), g.opts.TTL)
		if err != nil {
			g.m.admissionsTotal.WithLabelValues(resultError).Inc()
			return nil, err
		}
		if ok {
			g.m.admissionsTotal.WithLabelValues(resultAdmitted).Inc()
			return nil, nil
		}

		value, found, err := g.store.Get(ctx, key)
		if err != nil {
			g.m.admissionsTotal.WithLabelValues(resultError).Inc()
			return nil, err
		}
		if !found {
			continue
		}

		var record Record
		if err := json.Unmarshal([]byte(value), &record); err != nil {
			return nil, fmt.Errorf("idempotency: corrupt record for %s: %w", key, err)
		}
		if record.IsProcessing() {
			g.m.admissionsTotal.WithLabelValues(resultInFlight).Inc()
			return nil, fmt.Errorf("%w: key=%s", ErrInFlight, key)
		}
		g.m.admissionsTotal.WithLabelValues(resultReplayed).Inc()
		return &record, nil
	}

	g.m.admissionsTotal.WithLabelValues(resultInFlight).Inc()
	return nil, fmt.Errorf("%w: key=%s", ErrInFlight, key)
}

// Finalize overwrites the processing sentinel with the execution result,
// resetting the TTL.
func (g *Guard) Finalize(ctx context.Context, key string, record Record) error {
	record.Status = statusDone
	payload, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return g.store.Set(ctx, key, string(payload), g.opts.TTL)
}

// Abandon clears the key after a failed execution so a legitimate retry is
// not blocked until TTL expiry. Best effort: deletion errors are swallowed.
func (g *Guard) Abandon(ctx context.Context, key string) {
	if err := g.store.Del(ctx, key); err != nil {
		g.opts.Logger.WithError(err).WithField("key", key).Warn("idempotency: failed to clear key after error")
	}
}
