package datascope_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arcadia-hq/arcadia-sdk/pkg/datascope"
)

type fakeTree struct {
	children map[int64][]int64
	err      error
}

func (f *fakeTree) DescendantIDs(_ context.Context, deptID int64) ([]int64, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.children[deptID], nil
}

func TestResolve_SuperAdminShortCircuits(t *testing.T) {
	sc, err := datascope.Resolve(context.Background(), datascope.User{
		ID:         1,
		SuperAdmin: true,
		Roles:      []datascope.Role{{Key: "auditor", Scope: datascope.ScopeSelf}},
	}, nil)
	require.NoError(t, err)
	require.Equal(t, datascope.ScopeAll, sc.Scope)
	require.Empty(t, sc.DeptIDs)
}

func TestResolve_AdminRoleKeyShortCircuits(t *testing.T) {
	sc, err := datascope.Resolve(context.Background(), datascope.User{
		ID: 1,
		Roles: []datascope.Role{
			{Key: "auditor", Scope: datascope.ScopeSelf},
			{Key: datascope.AdminRoleKey, Scope: datascope.ScopeSelf},
		},
	}, nil)
	require.NoError(t, err)
	require.Equal(t, datascope.ScopeAll, sc.Scope)
}

func TestResolve_MostPermissiveScopeWins(t *testing.T) {
	tree := &fakeTree{children: map[int64][]int64{10: {11, 12}}}
	sc, err := datascope.Resolve(context.Background(), datascope.User{
		ID:     2,
		DeptID: 10,
		Roles: []datascope.Role{
			{Key: "manager", Scope: datascope.ScopeDeptOnly},
			{Key: "director", Scope: datascope.ScopeDeptAndChild},
		},
	}, tree)
	require.NoError(t, err)
	require.Equal(t, datascope.ScopeDeptAndChild, sc.Scope)
	require.Equal(t, []int64{10, 11, 12}, sc.DeptIDs)
}

func TestResolve_CustomScopeUnionsRoleDepartments(t *testing.T) {
	sc, err := datascope.Resolve(context.Background(), datascope.User{
		ID:     3,
		DeptID: 10,
		Roles: []datascope.Role{
			{Key: "sales", Scope: datascope.ScopeDeptCustom, DeptIDs: []int64{20, 21}},
			{Key: "support", Scope: datascope.ScopeDeptCustom, DeptIDs: []int64{21, 22}},
		},
	}, nil)
	require.NoError(t, err)
	require.Equal(t, datascope.ScopeDeptCustom, sc.Scope)
	require.Equal(t, []int64{20, 21, 22}, sc.DeptIDs)
}

func TestResolve_SelfWithoutDepartment(t *testing.T) {
	sc, err := datascope.Resolve(context.Background(), datascope.User{
		ID:    4,
		Roles: []datascope.Role{{Key: "viewer", Scope: datascope.ScopeSelf}},
	}, nil)
	require.NoError(t, err)
	require.Equal(t, datascope.ScopeSelf, sc.Scope)
	require.Empty(t, sc.DeptIDs)

	clause, args := sc.Filter("dept_id", "created_by", 3)
	require.Equal(t, "created_by = $3", clause)
	require.Equal(t, []any{int64(4)}, args)
}

func TestScope_OrderedPermissiveFirst(t *testing.T) {
	require.Less(t, datascope.ScopeAll, datascope.ScopeDeptCustom)
	require.Less(t, datascope.ScopeDeptCustom, datascope.ScopeDeptAndChild)
	require.Less(t, datascope.ScopeDeptAndChild, datascope.ScopeDeptOnly)
	require.Less(t, datascope.ScopeDeptOnly, datascope.ScopeSelf)
}

func TestResolve_NoScopedRolesFallsBackToSelf(t *testing.T) {
	sc, err := datascope.Resolve(context.Background(), datascope.User{ID: 5}, nil)
	require.NoError(t, err)
	require.Equal(t, datascope.ScopeSelf, sc.Scope)
}

func TestResolve_TreeErrorPropagates(t *testing.T) {
	tree := &fakeTree{err: errors.New("connection reset")}
	_, err := datascope.Resolve(context.Background(), datascope.User{
		ID:     6,
		DeptID: 10,
		Roles:  []datascope.Role{{Key: "director", Scope: datascope.ScopeDeptAndChild}},
	}, tree)
	require.Error(t, err)
}

func TestFilter_AllIsUnrestricted(t *testing.T) {
	sc := &datascope.ScopeContext{Scope: datascope.ScopeAll}
	clause, args := sc.Filter("dept_id", "created_by", 1)
	require.Empty(t, clause)
	require.Nil(t, args)
}

func TestFilter_DeptScopeUsesPlaceholder(t *testing.T) {
	sc := &datascope.ScopeContext{
		Scope:   datascope.ScopeDeptOnly,
		DeptIDs: []int64{10},
	}
	clause, args := sc.Filter("dept_id", "created_by", 2)
	require.Equal(t, "dept_id = ANY($2)", clause)
	require.Equal(t, []any{[]int64{10}}, args)
}

func TestFilter_EmptyDeptScopeMatchesNothing(t *testing.T) {
	sc := &datascope.ScopeContext{Scope: datascope.ScopeDeptOnly}
	clause, args := sc.Filter("dept_id", "created_by", 1)
	require.Equal(t, "FALSE", clause)
	require.Nil(t, args)
}
