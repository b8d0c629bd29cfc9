package composables

import (
	"context"

	"github.com/arcadia-hq/arcadia-sdk/pkg/constants"
	"github.com/arcadia-hq/arcadia-sdk/pkg/loader"
)

// WithLoaders attaches a fresh per-request loader registry to the context.
func WithLoaders(ctx context.Context, registry *loader.Registry) context.Context {
	return context.WithValue(ctx, constants.LoadersKey, registry)
}

// UseLoaders returns the request's loader registry.
func UseLoaders(ctx context.Context) (*loader.Registry, bool) {
	registry, ok := ctx.Value(constants.LoadersKey).(*loader.Registry)
	return registry, ok
}
