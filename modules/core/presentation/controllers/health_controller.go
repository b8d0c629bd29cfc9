package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arcadia-hq/arcadia-sdk/pkg/httpapi"
	"github.com/arcadia-hq/arcadia-sdk/pkg/kvstore"
	"github.com/arcadia-hq/arcadia-sdk/pkg/server"
)

type HealthController struct {
	pool  *pgxpool.Pool
	store kvstore.Store
}

func NewHealthController(pool *pgxpool.Pool, store kvstore.Store) server.Controller {
	return &HealthController{pool: pool, store: store}
}

func (c *HealthController) Key() string {
	return "/health"
}

func (c *HealthController) Register(r *mux.Router) {
	r.HandleFunc("/health", c.health).Methods(http.MethodGet)
}

func (c *HealthController) health(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{"database": "ok", "coordination": "ok"}
	status := http.StatusOK

	ctx, cancel := timeoutContext(r)
	defer cancel()

	if c.pool != nil {
		if err := c.pool.Ping(ctx); err != nil {
			checks["database"] = err.Error()
			status = http.StatusServiceUnavailable
		}
	}
	if c.store != nil {
		if _, _, err := c.store.Get(ctx, "health:probe"); err != nil {
			checks["coordination"] = err.Error()
			status = http.StatusServiceUnavailable
		}
	}

	_ = httpapi.WriteJSON(w, status, checks)
}

func timeoutContext(r *http.Request) (ctx context.Context, cancel context.CancelFunc) {
	return context.WithTimeout(r.Context(), 2*time.Second)
}
