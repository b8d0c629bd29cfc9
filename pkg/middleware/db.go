package middleware

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5"

	"github.com/arcadia-hq/arcadia-sdk/pkg/composables"
	"github.com/arcadia-hq/arcadia-sdk/pkg/httpapi"
)

// Transactional wraps the handler in a database transaction with the
// tenant's row-level-security setting applied. The transaction commits
// only when the handler produced a success status.
func Transactional() mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			pool, err := composables.UsePool(r.Context())
			if err != nil {
				_ = httpapi.WriteBaseError(w, http.StatusInternalServerError, err, nil)
				return
			}
			tx, err := pool.Begin(r.Context())
			if err != nil {
				_ = httpapi.WriteError(w, http.StatusServiceUnavailable, "COORDINATION_UNAVAILABLE", "could not begin transaction", nil)
				return
			}
			defer func() {
				if err := tx.Rollback(r.Context()); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
					if logger, ok := composables.TryUseLogger(r.Context()); ok {
						logger.WithError(err).Error("failed to rollback transaction")
					}
				}
			}()

			ctx := composables.WithTx(r.Context(), tx)
			if err := composables.ApplyTenantRLS(ctx, tx); err != nil {
				_ = httpapi.WriteBaseError(w, http.StatusInternalServerError, err, nil)
				return
			}

			wrapped := wrapResponseWriter(w)
			next.ServeHTTP(wrapped, r.WithContext(ctx))

			if wrapped.Status() < http.StatusBadRequest {
				if err := tx.Commit(r.Context()); err != nil {
					if logger, ok := composables.TryUseLogger(r.Context()); ok {
						logger.WithError(err).Error("failed to commit transaction")
					}
				}
			}
		})
	}
}
