package department

import (
	"context"

	"github.com/google/uuid"
)

// Repository also serves as the department tree for data-scope resolution.
type Repository interface {
	GetByID(ctx context.Context, id int64) (*Department, error)
	DescendantIDs(ctx context.Context, deptID int64) ([]int64, error)
}

type Department struct {
	id       int64
	tenantID uuid.UUID
	parentID *int64
	name     string
}

func New(id int64, tenantID uuid.UUID, parentID *int64, name string) *Department {
	return &Department{
		id:       id,
		tenantID: tenantID,
		parentID: parentID,
		name:     name,
	}
}

func (d *Department) ID() int64 {
	return d.id
}

func (d *Department) TenantID() uuid.UUID {
	return d.tenantID
}

func (d *Department) ParentID() *int64 {
	return d.parentID
}

func (d *Department) Name() string {
	return d.name
}
