package middleware

import (
	"context"
	"net/http"

	"github.com/NYTimes/gziphandler"
	"github.com/gorilla/mux"

	"github.com/arcadia-hq/arcadia-sdk/pkg/composables"
	"github.com/arcadia-hq/arcadia-sdk/pkg/configuration"
	"github.com/arcadia-hq/arcadia-sdk/pkg/loader"
)

// Provide attaches a fixed value to every request context. Used at server
// assembly time for process-wide dependencies like the database pool.
func Provide(key any, value any) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), key, value)))
		})
	}
}

// RequestParams collects per-request call details into composables.Params.
func RequestParams() mux.MiddlewareFunc {
	conf := configuration.Use()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			params := &composables.Params{
				IP:        realIP(r, conf),
				UserAgent: r.UserAgent(),
				Request:   r,
				Writer:    w,
			}
			next.ServeHTTP(w, r.WithContext(composables.WithParams(r.Context(), params)))
		})
	}
}

// WithLoaders gives each request a fresh batch-loader registry so cached
// rows never leak across requests or tenants.
func WithLoaders() mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := composables.WithLoaders(r.Context(), loader.NewRegistry())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Gzip compresses responses for clients that accept it.
func Gzip() mux.MiddlewareFunc {
	return gziphandler.GzipHandler
}
