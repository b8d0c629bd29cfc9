package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/arcadia-hq/arcadia-sdk/pkg/composables"
	"github.com/arcadia-hq/arcadia-sdk/pkg/configuration"
	"github.com/arcadia-hq/arcadia-sdk/pkg/httpapi"
)

// TenantResolver maps a request host to its tenant. Implemented by the
// tenant repository.
type TenantResolver interface {
	TenantIDByDomain(ctx context.Context, domain string) (uuid.UUID, error)
}

// RequireTenant establishes the tenant frame for the request. The tenant id
// comes from the configured header when present, otherwise from a host
// lookup through resolver. Requests with no resolvable tenant are rejected.
func RequireTenant(resolver TenantResolver) mux.MiddlewareFunc {
	conf := configuration.Use()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tenantID, ok := tenantFromHeader(r, conf)
			if !ok && resolver != nil {
				if host := normalizeHost(r.Host); host != "" {
					id, err := resolver.TenantIDByDomain(r.Context(), host)
					if err == nil {
						tenantID, ok = id, true
					} else if logger, found := composables.TryUseLogger(r.Context()); found {
						logger.WithField("host", host).WithError(err).Warn("tenant not found for host")
					}
				}
			}
			if !ok {
				_ = httpapi.WriteError(w, http.StatusUnauthorized, composables.ErrNoTenant.Code, composables.ErrNoTenant.Message, nil)
				return
			}

			frame := &composables.TenantFrame{
				TenantID:  tenantID,
				RequestID: w.Header().Get("X-Request-Id"),
			}
			next.ServeHTTP(w, r.WithContext(composables.WithTenant(r.Context(), frame)))
		})
	}
}

func tenantFromHeader(r *http.Request, conf *configuration.Configuration) (uuid.UUID, bool) {
	raw := r.Header.Get(conf.TenantIDHeader)
	if raw == "" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

func normalizeHost(raw string) string {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return ""
	}
	if h, _, err := net.SplitHostPort(raw); err == nil {
		return strings.TrimSpace(h)
	}
	return raw
}
