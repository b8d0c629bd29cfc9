package composables

import (
	"context"

	"github.com/google/uuid"

	"github.com/arcadia-hq/arcadia-sdk/pkg/constants"
	"github.com/arcadia-hq/arcadia-sdk/pkg/serrors"
)

var ErrNoTenant = serrors.NewError("TENANT_CONTEXT_MISSING", "tenant not found in context", "")

// TenantFrame carries the active tenant for one logical request. Frames are
// bound to the context and shadow each other like a stack: a nested
// RunWithTenant sees its own frame, and the caller's frame is untouched once
// the nested call returns.
type TenantFrame struct {
	TenantID     uuid.UUID
	IgnoreTenant bool
	RequestID    string
}

func WithTenant(ctx context.Context, frame *TenantFrame) context.Context {
	return context.WithValue(ctx, constants.TenantKey, frame)
}

// UseTenant returns the innermost tenant frame, if any.
func UseTenant(ctx context.Context) (*TenantFrame, bool) {
	frame, ok := ctx.Value(constants.TenantKey).(*TenantFrame)
	return frame, ok
}

func UseTenantID(ctx context.Context) (uuid.UUID, error) {
	frame, ok := UseTenant(ctx)
	if !ok {
		return uuid.Nil, ErrNoTenant
	}
	return frame.TenantID, nil
}

// UseRequestID returns the correlation id of the active frame or "" when no
// frame exists.
func UseRequestID(ctx context.Context) string {
	frame, ok := UseTenant(ctx)
	if !ok {
		return ""
	}
	return frame.RequestID
}

type TenantRunOption func(*TenantFrame)

// IgnoringTenantFilter forces the derived frame to bypass tenant filtering.
func IgnoringTenantFilter() TenantRunOption {
	return func(frame *TenantFrame) {
		frame.IgnoreTenant = true
	}
}

// RunWithTenant executes fn with a frame derived from the current one but
// with the tenant replaced. The request id is inherited so logs stay
// correlated across tenant hops.
func RunWithTenant(ctx context.Context, tenantID uuid.UUID, fn func(context.Context) error, opts ...TenantRunOption) error {
	frame := &TenantFrame{TenantID: tenantID}
	if outer, ok := UseTenant(ctx); ok {
		frame.RequestID = outer.RequestID
		frame.IgnoreTenant = outer.IgnoreTenant
	}
	for _, opt := range opts {
		opt(frame)
	}
	return fn(WithTenant(ctx, frame))
}

// RunIgnoringTenant executes fn with tenant filtering disabled. It must not
// fail when no outer frame exists: bootstrap and background code runs under
// the super tenant instead.
func RunIgnoringTenant(ctx context.Context, fn func(context.Context) error) error {
	tenantID := constants.SuperTenantID
	if outer, ok := UseTenant(ctx); ok {
		tenantID = outer.TenantID
	}
	return RunWithTenant(ctx, tenantID, fn, IgnoringTenantFilter())
}

// ShouldApplyTenantFilter reports whether queries issued under ctx must be
// restricted to the active tenant's rows.
func ShouldApplyTenantFilter(ctx context.Context) bool {
	frame, ok := UseTenant(ctx)
	if !ok {
		return false
	}
	if frame.IgnoreTenant {
		return false
	}
	return frame.TenantID != constants.SuperTenantID
}
