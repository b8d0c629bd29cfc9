package optimistic

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/arcadia-hq/arcadia-sdk/pkg/composables"
	"github.com/arcadia-hq/arcadia-sdk/pkg/serrors"
)

var (
	ErrVersionConflict = serrors.NewError("VERSION_CONFLICT", "resource was modified concurrently, refresh and retry", "")
	ErrNotFound        = serrors.NewError("RESOURCE_NOT_FOUND", "resource not found", "")
)

// VersionReader reports the currently stored version of an entity. The
// middleware consults it before admitting a version-guarded write.
type VersionReader interface {
	CurrentVersion(ctx context.Context, id string) (version int64, found bool, err error)
}

// RowVersionReader reads versions straight from the row store. Table and
// column names come from static route configuration, never from the
// request, so identifier interpolation here is safe.
type RowVersionReader struct {
	Table         string
	IDColumn      string
	VersionColumn string
	// TenantColumn scopes the lookup to the active tenant when set and the
	// context requires filtering.
	TenantColumn string
}

func (r RowVersionReader) CurrentVersion(ctx context.Context, id string) (int64, bool, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return 0, false, err
	}

	idColumn := r.IDColumn
	if idColumn == "" {
		idColumn = "id"
	}
	versionColumn := r.VersionColumn
	if versionColumn == "" {
		versionColumn = "version"
	}

	query := fmt.Sprintf(
		"SELECT %s FROM %s WHERE %s = $1",
		pgx.Identifier{versionColumn}.Sanitize(),
		pgx.Identifier{r.Table}.Sanitize(),
		pgx.Identifier{idColumn}.Sanitize(),
	)
	args := []any{id}

	if r.TenantColumn != "" && composables.ShouldApplyTenantFilter(ctx) {
		tenantID, err := composables.UseTenantID(ctx)
		if err != nil {
			return 0, false, err
		}
		query += fmt.Sprintf(" AND %s = $2", pgx.Identifier{r.TenantColumn}.Sanitize())
		args = append(args, tenantID)
	}

	var version int64
	if err := tx.QueryRow(ctx, query, args...).Scan(&version); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return version, true, nil
}

// UpdateVersioned performs the conditional write itself: the row-store
// predicate `WHERE id = ? AND version = ?` is the one place true atomicity
// lives, so zero rows affected is the authoritative conflict signal even
// when a pre-check raced with a concurrent writer. Returns the new version
// on success.
func UpdateVersioned(ctx context.Context, table, idColumn, versionColumn string, id any, expected int64, sets map[string]any) (int64, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return 0, err
	}

	columns := make([]string, 0, len(sets))
	for column := range sets {
		columns = append(columns, column)
	}
	sort.Strings(columns)

	assignments := make([]string, 0, len(columns)+1)
	args := make([]any, 0, len(columns)+2)
	for i, column := range columns {
		assignments = append(assignments, fmt.Sprintf("%s = $%d", pgx.Identifier{column}.Sanitize(), i+1))
		args = append(args, sets[column])
	}
	assignments = append(assignments, fmt.Sprintf("%s = %s + 1", pgx.Identifier{versionColumn}.Sanitize(), pgx.Identifier{versionColumn}.Sanitize()))

	query := fmt.Sprintf(
		"UPDATE %s SET %s WHERE %s = $%d AND %s = $%d RETURNING %s",
		pgx.Identifier{table}.Sanitize(),
		strings.Join(assignments, ", "),
		pgx.Identifier{idColumn}.Sanitize(),
		len(args)+1,
		pgx.Identifier{versionColumn}.Sanitize(),
		len(args)+2,
		pgx.Identifier{versionColumn}.Sanitize(),
	)
	args = append(args, id, expected)

	var newVersion int64
	if err := tx.QueryRow(ctx, query, args...).Scan(&newVersion); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("%w: %s id=%v expected_version=%d", ErrVersionConflict, table, id, expected)
		}
		return 0, err
	}
	return newVersion, nil
}
