package composables

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/arcadia-hq/arcadia-sdk/pkg/constants"
)

func TestRunWithTenant_NestingRestores(t *testing.T) {
	outer := uuid.New()
	middle := uuid.New()
	inner := uuid.New()

	ctx := WithTenant(context.Background(), &TenantFrame{TenantID: outer, RequestID: "req-1"})

	err := RunWithTenant(ctx, middle, func(ctx context.Context) error {
		id, err := UseTenantID(ctx)
		require.NoError(t, err)
		require.Equal(t, middle, id)
		require.Equal(t, "req-1", UseRequestID(ctx))

		return RunWithTenant(ctx, inner, func(ctx context.Context) error {
			id, err := UseTenantID(ctx)
			require.NoError(t, err)
			require.Equal(t, inner, id)
			return nil
		})
	})
	require.NoError(t, err)

	// After full unwind the outermost frame is still the active one.
	id, err := UseTenantID(ctx)
	require.NoError(t, err)
	require.Equal(t, outer, id)
}

func TestRunWithTenant_DeepNestingUnwindsInOrder(t *testing.T) {
	base := uuid.New()
	ctx := WithTenant(context.Background(), &TenantFrame{TenantID: base})

	var run func(ctx context.Context, depth int) error
	run = func(ctx context.Context, depth int) error {
		if depth == 0 {
			return nil
		}
		next := uuid.New()
		before, err := UseTenantID(ctx)
		require.NoError(t, err)

		err = RunWithTenant(ctx, next, func(ctx context.Context) error {
			return run(ctx, depth-1)
		})
		require.NoError(t, err)

		after, err := UseTenantID(ctx)
		require.NoError(t, err)
		require.Equal(t, before, after, "frame must be restored at depth %d", depth)
		return nil
	}

	require.NoError(t, run(ctx, 16))
}

func TestRunIgnoringTenant_NoOuterFrame(t *testing.T) {
	err := RunIgnoringTenant(context.Background(), func(ctx context.Context) error {
		id, err := UseTenantID(ctx)
		require.NoError(t, err)
		require.Equal(t, constants.SuperTenantID, id)
		require.False(t, ShouldApplyTenantFilter(ctx))
		return nil
	})
	require.NoError(t, err)
}

func TestRunIgnoringTenant_KeepsOuterTenant(t *testing.T) {
	tenantID := uuid.New()
	ctx := WithTenant(context.Background(), &TenantFrame{TenantID: tenantID})
	require.True(t, ShouldApplyTenantFilter(ctx))

	err := RunIgnoringTenant(ctx, func(ctx context.Context) error {
		id, err := UseTenantID(ctx)
		require.NoError(t, err)
		require.Equal(t, tenantID, id)
		require.False(t, ShouldApplyTenantFilter(ctx))
		return nil
	})
	require.NoError(t, err)

	// Filtering applies again once the ignoring scope is gone.
	require.True(t, ShouldApplyTenantFilter(ctx))
}

func TestShouldApplyTenantFilter(t *testing.T) {
	require.False(t, ShouldApplyTenantFilter(context.Background()))

	superCtx := WithTenant(context.Background(), &TenantFrame{TenantID: constants.SuperTenantID})
	require.False(t, ShouldApplyTenantFilter(superCtx))

	tenantCtx := WithTenant(context.Background(), &TenantFrame{TenantID: uuid.New()})
	require.True(t, ShouldApplyTenantFilter(tenantCtx))

	ignored := WithTenant(context.Background(), &TenantFrame{TenantID: uuid.New(), IgnoreTenant: true})
	require.False(t, ShouldApplyTenantFilter(ignored))
}

func TestUseTenantID_NoFrame(t *testing.T) {
	_, err := UseTenantID(context.Background())
	require.ErrorIs(t, err, ErrNoTenant)
}

func TestTenantFrames_ConcurrentIsolation(t *testing.T) {
	const workers = 32

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			want := uuid.New()
			ctx := WithTenant(context.Background(), &TenantFrame{TenantID: want})
			for j := 0; j < 100; j++ {
				got, err := UseTenantID(ctx)
				if err != nil || got != want {
					t.Errorf("tenant frame leaked across goroutines: got %v, want %v", got, want)
					return
				}
			}
		}()
	}
	wg.Wait()
}
