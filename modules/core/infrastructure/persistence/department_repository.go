package persistence

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/arcadia-hq/arcadia-sdk/modules/core/domain/entities/department"
	"github.com/arcadia-hq/arcadia-sdk/pkg/composables"
)

var ErrDepartmentNotFound = fmt.Errorf("department not found")

type DepartmentRepository struct{}

func NewDepartmentRepository() department.Repository {
	return &DepartmentRepository{}
}

func (r *DepartmentRepository) GetByID(ctx context.Context, id int64) (*department.Department, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	query := `SELECT id, tenant_id, parent_id, name FROM departments WHERE id = $1`
	var (
		deptID   int64
		tenantID uuid.UUID
		parentID *int64
		name     string
	)
	if err := tx.QueryRow(ctx, query, id).Scan(&deptID, &tenantID, &parentID, &name); err != nil {
		return nil, ErrDepartmentNotFound
	}
	return department.New(deptID, tenantID, parentID, name), nil
}

// DescendantIDs walks the department tree downward from deptID, excluding
// the root itself. Satisfies datascope.DeptTree.
func (r *DepartmentRepository) DescendantIDs(ctx context.Context, deptID int64) ([]int64, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	query := `
		WITH RECURSIVE subtree AS (
			SELECT id FROM departments WHERE parent_id = $1
			UNION ALL
			SELECT d.id FROM departments d
			INNER JOIN subtree s ON d.parent_id = s.id
		)
		SELECT id FROM subtree
	`
	rows, err := tx.Query(ctx, query, deptID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query department subtree")
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "failed to scan department id")
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
