package persistence

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/arcadia-hq/arcadia-sdk/modules/core/domain/entities/tenant"
	"github.com/arcadia-hq/arcadia-sdk/pkg/composables"
)

var ErrTenantNotFound = fmt.Errorf("tenant not found")

const tenantFindQuery = `SELECT id, name, domain, is_active, created_at, updated_at FROM tenants`

type TenantRepository struct{}

func NewTenantRepository() tenant.Repository {
	return &TenantRepository{}
}

func (r *TenantRepository) GetByID(ctx context.Context, id uuid.UUID) (*tenant.Tenant, error) {
	tenants, err := r.queryTenants(ctx, tenantFindQuery+" WHERE id = $1", id)
	if err != nil {
		return nil, err
	}
	if len(tenants) == 0 {
		return nil, ErrTenantNotFound
	}
	return tenants[0], nil
}

func (r *TenantRepository) GetByDomain(ctx context.Context, domain string) (*tenant.Tenant, error) {
	tenants, err := r.queryTenants(ctx, tenantFindQuery+" WHERE domain = $1", strings.ToLower(domain))
	if err != nil {
		return nil, err
	}
	if len(tenants) == 0 {
		return nil, ErrTenantNotFound
	}
	return tenants[0], nil
}

func (r *TenantRepository) AllActive(ctx context.Context) ([]*tenant.Tenant, error) {
	return r.queryTenants(ctx, tenantFindQuery+" WHERE is_active ORDER BY created_at")
}

func (r *TenantRepository) Create(ctx context.Context, t *tenant.Tenant) (*tenant.Tenant, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	query := `
		INSERT INTO tenants (id, name, domain, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`
	var id uuid.UUID
	if err := tx.QueryRow(
		ctx,
		query,
		t.ID(),
		t.Name(),
		strings.ToLower(strings.TrimSpace(t.Domain())),
		t.IsActive(),
		t.CreatedAt(),
		t.UpdatedAt(),
	).Scan(&id); err != nil {
		return nil, errors.Wrap(err, "failed to create tenant")
	}
	return r.GetByID(ctx, id)
}

func (r *TenantRepository) Update(ctx context.Context, t *tenant.Tenant) (*tenant.Tenant, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	query := `
		UPDATE tenants
		SET name = $1, domain = $2, is_active = $3, updated_at = $4
		WHERE id = $5
	`
	if _, err := tx.Exec(
		ctx,
		query,
		t.Name(),
		strings.ToLower(strings.TrimSpace(t.Domain())),
		t.IsActive(),
		t.UpdatedAt(),
		t.ID(),
	); err != nil {
		return nil, errors.Wrap(err, "failed to update tenant")
	}
	return r.GetByID(ctx, t.ID())
}

func (r *TenantRepository) queryTenants(ctx context.Context, query string, args ...any) ([]*tenant.Tenant, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query tenants")
	}
	defer rows.Close()

	var tenants []*tenant.Tenant
	for rows.Next() {
		var (
			id                   uuid.UUID
			name, domain         string
			isActive             bool
			createdAt, updatedAt time.Time
		)
		if err := rows.Scan(&id, &name, &domain, &isActive, &createdAt, &updatedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan tenant")
		}
		tenants = append(tenants, tenant.New(
			name,
			tenant.WithID(id),
			tenant.WithDomain(domain),
			tenant.WithIsActive(isActive),
			tenant.WithCreatedAt(createdAt),
			tenant.WithUpdatedAt(updatedAt),
		))
	}
	return tenants, rows.Err()
}
