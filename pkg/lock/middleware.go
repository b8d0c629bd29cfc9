package lock

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/arcadia-hq/arcadia-sdk/pkg/configuration"
	"github.com/arcadia-hq/arcadia-sdk/pkg/httpapi"
	"github.com/arcadia-hq/arcadia-sdk/pkg/keytpl"
)

// Config declares the lock guarding one route. Key supports
// {body.x}/{query.x}/{params.x} placeholders resolved per request.
type Config struct {
	Key     string
	Wait    time.Duration
	Lease   time.Duration
	Message string

	MaxBodyBytes int64
}

func (c *Config) setDefaults() {
	conf := configuration.Use()
	if c.Wait == 0 {
		c.Wait = conf.Lock.DefaultWait
	} else if c.Wait < 0 {
		// NoWait: fail fast on a busy lock.
		c.Wait = 0
	}
	if c.Lease == 0 {
		c.Lease = conf.Lock.DefaultLease
	}
	if c.Message == "" {
		c.Message = "resource is locked, retry later"
	}
}

// Middleware acquires the configured lock before the handler runs and
// releases it afterward, even when the handler panics.
func Middleware(locker *Locker, cfg Config) mux.MiddlewareFunc {
	cfg.setDefaults()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, err := keytpl.RequestBody(r, cfg.MaxBodyBytes)
			if err != nil {
				_ = httpapi.WriteError(w, http.StatusBadRequest, "LOCK_BAD_REQUEST", "failed to read request body", map[string]string{
					"error": err.Error(),
				})
				return
			}

			key, complete := keytpl.ResolveStrict(cfg.Key, r, body)
			if !complete {
				_ = httpapi.WriteError(w, http.StatusBadRequest, "LOCK_BAD_REQUEST", "lock key could not be resolved from the request", map[string]string{
					"key_template": cfg.Key,
				})
				return
			}

			handle, err := locker.Acquire(r.Context(), key, cfg.Wait, cfg.Lease)
			if err != nil {
				if errors.Is(err, ErrLockBusy) {
					_ = httpapi.WriteError(w, http.StatusConflict, ErrLockBusy.Code, cfg.Message, map[string]string{
						"key": key,
					})
					return
				}
				_ = httpapi.WriteBaseError(w, http.StatusServiceUnavailable, err, map[string]string{
					"key": key,
				})
				return
			}
			// The request context may already be canceled once the handler
			// unwinds; release must still reach the store.
			defer locker.Release(context.WithoutCancel(r.Context()), handle)

			next.ServeHTTP(w, r)
		})
	}
}
