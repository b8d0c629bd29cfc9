package server

import (
	"context"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/arcadia-hq/arcadia-sdk/modules/core/domain/entities/tenant"
	"github.com/arcadia-hq/arcadia-sdk/pkg/configuration"
	"github.com/arcadia-hq/arcadia-sdk/pkg/constants"
	"github.com/arcadia-hq/arcadia-sdk/pkg/metrics"
	"github.com/arcadia-hq/arcadia-sdk/pkg/middleware"
	"github.com/arcadia-hq/arcadia-sdk/pkg/server"
	"github.com/arcadia-hq/arcadia-sdk/pkg/tenantjob"
)

type DefaultOptions struct {
	Logger        *logrus.Logger
	Configuration *configuration.Configuration
	Pool          *pgxpool.Pool
	Tenants       tenant.Repository
	Controllers   []server.Controller
}

// Default assembles the standard middleware stack and route set.
func Default(options *DefaultOptions) (*server.HTTPServer, error) {
	middlewares := []mux.MiddlewareFunc{
		middleware.WithLogger(options.Logger, middleware.DefaultLoggerOptions()),
		middleware.Provide(constants.PoolKey, options.Pool),
		middleware.RequestParams(),
		middleware.WithLoaders(),
		middleware.RequireTenant(&tenantResolver{repo: options.Tenants}),
	}

	controllers := append([]server.Controller{
		metrics.NewPrometheusController(""),
	}, options.Controllers...)

	return server.NewHTTPServer(controllers, middlewares, nil, nil), nil
}

// tenantResolver narrows the tenant repository to the middleware contract.
type tenantResolver struct {
	repo tenant.Repository
}

func (r *tenantResolver) TenantIDByDomain(ctx context.Context, domain string) (uuid.UUID, error) {
	t, err := r.repo.GetByDomain(ctx, domain)
	if err != nil {
		return uuid.Nil, err
	}
	return t.ID(), nil
}

// TenantLister adapts the tenant repository for the job executor.
func TenantLister(repo tenant.Repository) tenantjob.TenantLister {
	return &tenantLister{repo: repo}
}

type tenantLister struct {
	repo tenant.Repository
}

func (l *tenantLister) AllActive(ctx context.Context) ([]tenantjob.Tenant, error) {
	all, err := l.repo.AllActive(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]tenantjob.Tenant, len(all))
	for i, t := range all {
		out[i] = tenantjob.Tenant{ID: t.ID(), Name: t.Name()}
	}
	return out, nil
}
