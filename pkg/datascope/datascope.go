package datascope

import (
	"context"
	"fmt"
	"slices"
)

// Scope describes which rows a caller may see. Lower values are more
// permissive, so the effective scope across several roles is the minimum.
type Scope int

const (
	ScopeAll Scope = iota + 1
	ScopeDeptCustom
	ScopeDeptAndChild
	ScopeDeptOnly
	ScopeSelf
)

func (s Scope) String() string {
	switch s {
	case ScopeAll:
		return "all"
	case ScopeDeptCustom:
		return "dept_custom"
	case ScopeDeptOnly:
		return "dept_only"
	case ScopeDeptAndChild:
		return "dept_and_child"
	case ScopeSelf:
		return "self"
	default:
		return fmt.Sprintf("scope(%d)", int(s))
	}
}

// AdminRoleKey short-circuits scope resolution to ScopeAll no matter what
// the role declares.
const AdminRoleKey = "admin"

type Role struct {
	Key     string
	Scope   Scope
	DeptIDs []int64
}

type User struct {
	ID         int64
	DeptID     int64
	SuperAdmin bool
	Roles      []Role
}

// DeptTree resolves the descendants of a department. Implemented by the
// department repository with a recursive query.
type DeptTree interface {
	DescendantIDs(ctx context.Context, deptID int64) ([]int64, error)
}

// ScopeContext is the resolved, read-only visibility decision for one
// request. An empty DeptIDs list means "unrestricted" only for ScopeAll and
// ScopeSelf; for the department scopes it means no department is visible.
type ScopeContext struct {
	Scope   Scope
	UserID  int64
	DeptID  int64
	DeptIDs []int64
}

// Resolve computes the effective scope for a user and expands it into the
// concrete department-id list. tree may be nil when no role carries the
// dept-and-child scope.
func Resolve(ctx context.Context, user User, tree DeptTree) (*ScopeContext, error) {
	sc := &ScopeContext{
		UserID: user.ID,
		DeptID: user.DeptID,
	}

	if user.SuperAdmin {
		sc.Scope = ScopeAll
		return sc, nil
	}

	effective := Scope(0)
	for _, role := range user.Roles {
		if role.Key == AdminRoleKey {
			sc.Scope = ScopeAll
			return sc, nil
		}
		if role.Scope == 0 {
			continue
		}
		if effective == 0 || role.Scope < effective {
			effective = role.Scope
		}
	}
	if effective == 0 {
		// No role declares a scope; fall back to the narrowest one.
		effective = ScopeSelf
	}
	sc.Scope = effective

	switch effective {
	case ScopeAll, ScopeSelf:
		// No department list.
	case ScopeDeptCustom:
		seen := make(map[int64]struct{})
		for _, role := range user.Roles {
			if role.Scope != ScopeDeptCustom {
				continue
			}
			for _, id := range role.DeptIDs {
				if _, ok := seen[id]; ok {
					continue
				}
				seen[id] = struct{}{}
				sc.DeptIDs = append(sc.DeptIDs, id)
			}
		}
		slices.Sort(sc.DeptIDs)
	case ScopeDeptOnly:
		if user.DeptID != 0 {
			sc.DeptIDs = []int64{user.DeptID}
		}
	case ScopeDeptAndChild:
		if user.DeptID != 0 {
			sc.DeptIDs = []int64{user.DeptID}
			if tree != nil {
				children, err := tree.DescendantIDs(ctx, user.DeptID)
				if err != nil {
					return nil, fmt.Errorf("resolve descendant departments: %w", err)
				}
				for _, id := range children {
					if id != user.DeptID {
						sc.DeptIDs = append(sc.DeptIDs, id)
					}
				}
				slices.Sort(sc.DeptIDs)
			}
		}
	}
	return sc, nil
}

// Filter renders the scope as a SQL predicate with positional placeholders
// starting at argIndex. An empty clause means the query needs no extra
// condition. Department scopes that resolved to zero visible departments
// render a predicate that matches nothing.
func (sc *ScopeContext) Filter(deptColumn, userColumn string, argIndex int) (string, []any) {
	switch sc.Scope {
	case ScopeAll:
		return "", nil
	case ScopeSelf:
		return fmt.Sprintf("%s = $%d", userColumn, argIndex), []any{sc.UserID}
	default:
		if len(sc.DeptIDs) == 0 {
			return "FALSE", nil
		}
		return fmt.Sprintf("%s = ANY($%d)", deptColumn, argIndex), []any{sc.DeptIDs}
	}
}
