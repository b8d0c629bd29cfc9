package optimistic

import (
	"bytes"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/tidwall/sjson"

	"github.com/arcadia-hq/arcadia-sdk/pkg/httpapi"
	"github.com/arcadia-hq/arcadia-sdk/pkg/keytpl"
)

// Config declares the optimistic-lock guard for one route. IDPath and
// VersionPath use the same {body.x}/{query.x}/{params.x} placeholder syntax
// as the other interceptors.
type Config struct {
	Reader      VersionReader
	IDPath      string
	VersionPath string

	MaxBodyBytes int64
}

func (c *Config) setDefaults() {
	if c.IDPath == "" {
		c.IDPath = "{body.id}"
	}
	if c.VersionPath == "" {
		c.VersionPath = "{body.version}"
	}
}

// bodyPath returns the gjson path when the template points into the body,
// which is the only place the bumped version can be injected.
func bodyPath(template string) (string, bool) {
	if strings.HasPrefix(template, "{body.") && strings.HasSuffix(template, "}") {
		return strings.TrimSuffix(strings.TrimPrefix(template, "{body."), "}"), true
	}
	return "", false
}

// Middleware rejects stale writes before they reach the handler. On a
// version match it rewrites the request body so the declared version becomes
// declared+1: the handler's own conditional update then acts as the final
// compare-and-swap.
func Middleware(cfg Config) mux.MiddlewareFunc {
	cfg.setDefaults()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, err := keytpl.RequestBody(r, cfg.MaxBodyBytes)
			if err != nil {
				_ = httpapi.WriteError(w, http.StatusBadRequest, "OPTIMISTIC_BAD_REQUEST", "failed to read request body", map[string]string{
					"error": err.Error(),
				})
				return
			}

			id := keytpl.Resolve(cfg.IDPath, r, body)
			declaredRaw := keytpl.Resolve(cfg.VersionPath, r, body)
			if id == "" || declaredRaw == "" {
				// The operation is not version-guarded; let it through.
				next.ServeHTTP(w, r)
				return
			}

			declared, err := strconv.ParseInt(declaredRaw, 10, 64)
			if err != nil {
				_ = httpapi.WriteError(w, http.StatusBadRequest, "OPTIMISTIC_BAD_REQUEST", "declared version is not an integer", map[string]string{
					"version": declaredRaw,
				})
				return
			}

			stored, found, err := cfg.Reader.CurrentVersion(r.Context(), id)
			if err != nil {
				_ = httpapi.WriteBaseError(w, http.StatusServiceUnavailable, err, nil)
				return
			}
			if !found {
				_ = httpapi.WriteError(w, http.StatusNotFound, ErrNotFound.Code, ErrNotFound.Message, map[string]string{
					"id": id,
				})
				return
			}
			if stored != declared {
				_ = httpapi.WriteError(w, http.StatusConflict, ErrVersionConflict.Code, ErrVersionConflict.Message, map[string]string{
					"id":               id,
					"declared_version": strconv.FormatInt(declared, 10),
					"stored_version":   strconv.FormatInt(stored, 10),
				})
				return
			}

			if path, ok := bodyPath(cfg.VersionPath); ok {
				bumped, err := sjson.SetBytes(body, path, declared+1)
				if err != nil {
					_ = httpapi.WriteError(w, http.StatusBadRequest, "OPTIMISTIC_BAD_REQUEST", "failed to rewrite version in body", map[string]string{
						"error": err.Error(),
					})
					return
				}
				r.Body = io.NopCloser(bytes.NewReader(bumped))
				r.ContentLength = int64(len(bumped))
			}

			next.ServeHTTP(w, r)
		})
	}
}
