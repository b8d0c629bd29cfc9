package idempotency

import (
	"bytes"
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/arcadia-hq/arcadia-sdk/pkg/composables"
	"github.com/arcadia-hq/arcadia-sdk/pkg/configuration"
	"github.com/arcadia-hq/arcadia-sdk/pkg/httpapi"
	"github.com/arcadia-hq/arcadia-sdk/pkg/keytpl"
)

// Config declares the idempotency guard for one route. When Key is empty
// the request is fingerprinted by an opaque digest over body, query and
// route params.
type Config struct {
	Key     string
	Message string
	// KeepOnError leaves the processing sentinel in place after a failed
	// execution instead of clearing it. The default follows the
	// IDEMPOTENCY_DELETE_ON_ERROR setting, which clears the sentinel.
	KeepOnError bool

	MaxBodyBytes int64
}

func (c *Config) setDefaults() {
	if c.Message == "" {
		c.Message = "duplicate request is being processed"
	}
	if !c.KeepOnError && !configuration.Use().Idempotency.DeleteOnError {
		c.KeepOnError = true
	}
}

type resultCaptureWriter struct {
	http.ResponseWriter
	statusCode    int
	statusWritten bool
	body          *bytes.Buffer
}

func (w *resultCaptureWriter) WriteHeader(code int) {
	if !w.statusWritten {
		w.statusCode = code
		w.statusWritten = true
		w.ResponseWriter.WriteHeader(code)
	}
}

func (w *resultCaptureWriter) Write(b []byte) (int, error) {
	if !w.statusWritten {
		w.statusCode = http.StatusOK
		w.statusWritten = true
	}
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *resultCaptureWriter) Status() int {
	if w.statusCode == 0 {
		return http.StatusOK
	}
	return w.statusCode
}

// Middleware deduplicates requests sharing one idempotency key: the first
// execution's result is cached for replay, concurrent duplicates are
// rejected, and the handler never runs twice for the same key within TTL.
func Middleware(guard *Guard, cfg Config) mux.MiddlewareFunc {
	cfg.setDefaults()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, err := keytpl.RequestBody(r, cfg.MaxBodyBytes)
			if err != nil {
				_ = httpapi.WriteError(w, http.StatusBadRequest, "IDEMPOTENT_BAD_REQUEST", "failed to read request body", map[string]string{
					"error": err.Error(),
				})
				return
			}

			fingerprint := ""
			if cfg.Key != "" {
				fingerprint = keytpl.Resolve(cfg.Key, r, body)
			} else {
				fingerprint = keytpl.Digest(r, body)
			}
			key := guard.FingerprintKey(composables.UseUserID(r.Context()), r.Method, r.URL.Path, fingerprint)

			replay, err := guard.Admit(r.Context(), key)
			if err != nil {
				if errors.Is(err, ErrInFlight) {
					_ = httpapi.WriteError(w, http.StatusTooManyRequests, ErrInFlight.Code, cfg.Message, nil)
					return
				}
				_ = httpapi.WriteBaseError(w, http.StatusServiceUnavailable, err, nil)
				return
			}
			if replay != nil {
				if replay.ContentType != "" {
					w.Header().Set("Content-Type", replay.ContentType)
				}
				w.Header().Set("X-Idempotent-Replay", "true")
				w.WriteHeader(replay.Code)
				_, _ = w.Write(replay.Body)
				return
			}

			captured := &resultCaptureWriter{ResponseWriter: w, body: &bytes.Buffer{}}
			finalized := false

			// Finalization must run on the panic path too, or the key stays
			// PROCESSING until TTL even though nothing is in flight.
			defer func() {
				if finalized {
					return
				}
				if !cfg.KeepOnError {
					guard.Abandon(context.WithoutCancel(r.Context()), key)
				}
			}()

			next.ServeHTTP(captured, r)

			ctx := context.WithoutCancel(r.Context())
			if captured.Status() < http.StatusBadRequest {
				record := Record{
					Code:        captured.Status(),
					ContentType: captured.Header().Get("Content-Type"),
					Body:        captured.body.Bytes(),
				}
				if err := guard.Finalize(ctx, key, record); err != nil {
					if logger, ok := composables.TryUseLogger(r.Context()); ok {
						logger.WithError(err).WithField("key", key).Warn("idempotency: failed to store result")
					}
					// Leave the defer to clear the sentinel so retries are
					// not blocked by a result that was never stored.
					return
				}
				finalized = true
				return
			}

			if !cfg.KeepOnError {
				guard.Abandon(ctx, key)
			}
			finalized = true
		})
	}
}
