package policy

import (
	"fmt"

	"kimberlite/internal/ids"
	"kimberlite/internal/query"
)

// Role is an access level, ordered least to most restrictive.
type Role int

const (
	RoleAdmin Role = iota
	RoleAnalyst
	RoleUser
	RoleAuditor
)

func (r Role) String() string {
	switch r {
	case RoleAdmin:
		return "Admin"
	case RoleAnalyst:
		return "Analyst"
	case RoleUser:
		return "User"
	case RoleAuditor:
		return "Auditor"
	default:
		return "Role(?)"
	}
}

// CanRead, CanWrite, CanDelete, CanExport, CrossTenant, CanAccessAudit
// and CanGrant each expose one fixed capability: Admin has every capability; Analyst reads and exports across
// tenants but never writes; User reads and writes its own tenant only;
// Auditor touches nothing but audit logs.
func (r Role) CanRead() bool        { return r == RoleAdmin || r == RoleAnalyst || r == RoleUser }
func (r Role) CanWrite() bool       { return r == RoleAdmin || r == RoleUser }
func (r Role) CanDelete() bool      { return r == RoleAdmin }
func (r Role) CanExport() bool      { return r == RoleAdmin || r == RoleAnalyst }
func (r Role) CrossTenant() bool    { return r == RoleAdmin || r == RoleAnalyst }
func (r Role) CanAccessAudit() bool { return r == RoleAdmin || r == RoleAuditor }
func (r Role) CanGrant() bool       { return r == RoleAdmin }

// restrictiveness orders roles from least restrictive (0) to most
// restrictive (3): Admin, Analyst, User, Auditor. Lower is more
// powerful.
func (r Role) restrictiveness() int {
	switch r {
	case RoleAdmin:
		return 0
	case RoleAnalyst:
		return 1
	case RoleUser:
		return 2
	case RoleAuditor:
		return 3
	default:
		return 3
	}
}

// CanEscalateTo reports whether a grant from r to target is a
// de-escalation or a same-role grant, never an escalation: r may only
// grant a role that is at least as restrictive as itself. A grantor
// can never hand out more power than it holds.
func (r Role) CanEscalateTo(target Role) bool {
	return r.restrictiveness() <= target.restrictiveness()
}

// RowFilter is one row-level predicate an AccessPolicy forces onto
// every query it governs; Value is always bound as a parameter, never
// interpolated into SQL text.
type RowFilter struct {
	Column string
	Op     query.CmpOp
	Value  any
}

// AccessPolicy is a role plus an optional
// tenant scope and allow/deny lists for streams, columns, and rows.
type AccessPolicy struct {
	Role         Role
	Tenant       *ids.TenantId
	AllowStreams []string
	DenyStreams  []string
	AllowColumns []string
	DenyColumns  []string
	RowFilters   []RowFilter
}

// RbacFilter rewrites a SelectStmt under one AccessPolicy.
type RbacFilter struct {
	policy AccessPolicy
}

func NewRbacFilter(policy AccessPolicy) *RbacFilter {
	return &RbacFilter{policy: policy}
}

// RewriteStatement transforms stmt per the filter's AccessPolicy: denied
// columns are stripped from the projection, the policy's row filters
// and tenant scope (if any) are conjoined onto WHERE as bound
// parameters appended to params. The input statement is never mutated;
// the caller must use the returned statement and parameter slice
// together. No row-filter or tenant value is ever written into the SQL
// text itself, so no value — however adversarial — can introduce a new
// clause, subquery, or table.
func (f *RbacFilter) RewriteStatement(stmt *query.SelectStmt, params []any) (*query.SelectStmt, []any, error) {
	if !f.policy.Role.CanRead() {
		return nil, nil, &AccessDeniedError{Role: f.policy.Role, Reason: "role has no read capability"}
	}
	if err := f.checkStreamAccess(stmt.Table); err != nil {
		return nil, nil, err
	}
	if len(f.policy.DenyColumns) > 0 || len(f.policy.AllowColumns) > 0 {
		for _, it := range stmt.Items {
			if it.Star {
				return nil, nil, &AccessDeniedError{
					Role:   f.policy.Role,
					Reason: "SELECT * cannot be column-filtered; expand the projection explicitly first",
				}
			}
		}
	}

	out := *stmt
	out.Items = f.filterColumns(stmt.Items)

	newParams := append([]any{}, params...)
	where := stmt.Where
	for _, rf := range f.policy.RowFilters {
		where, newParams = conjoinParam(where, rf.Column, rf.Op, rf.Value, newParams)
	}
	if f.policy.Tenant != nil {
		where, newParams = conjoinParam(where, "tenant_id", query.OpEQ, int64(*f.policy.Tenant), newParams)
	}
	out.Where = where

	return &out, newParams, nil
}

// conjoinParam appends `column op $n` (n = len(params) after the
// append) onto where via AND, binding value as the new parameter
// rather than formatting it into the expression tree as a literal.
func conjoinParam(where query.Expr, column string, op query.CmpOp, value any, params []any) (query.Expr, []any) {
	params = append(params, value)
	cmp := query.BinaryExpr{
		Op:    op,
		Left:  query.ColumnRef{Name: column},
		Right: query.Param{Index: len(params)},
	}
	if where == nil {
		return cmp, params
	}
	return query.BinaryExpr{Op: query.OpAnd, Left: where, Right: cmp}, params
}

func (f *RbacFilter) checkStreamAccess(table string) error {
	for _, d := range f.policy.DenyStreams {
		if d == table {
			return &AccessDeniedError{Role: f.policy.Role, Reason: fmt.Sprintf("stream %q is denied", table)}
		}
	}
	if len(f.policy.AllowStreams) == 0 {
		return nil
	}
	for _, a := range f.policy.AllowStreams {
		if a == table {
			return nil
		}
	}
	return &AccessDeniedError{Role: f.policy.Role, Reason: fmt.Sprintf("stream %q is not in the allow list", table)}
}

func (f *RbacFilter) filterColumns(items []query.SelectItem) []query.SelectItem {
	denied := make(map[string]bool, len(f.policy.DenyColumns))
	for _, c := range f.policy.DenyColumns {
		denied[c] = true
	}
	var allowed map[string]bool
	if len(f.policy.AllowColumns) > 0 {
		allowed = make(map[string]bool, len(f.policy.AllowColumns))
		for _, c := range f.policy.AllowColumns {
			allowed[c] = true
		}
	}

	out := make([]query.SelectItem, 0, len(items))
	for _, it := range items {
		if it.IsAgg {
			out = append(out, it)
			continue
		}
		if denied[it.Column.Name] {
			continue
		}
		if allowed != nil && !allowed[it.Column.Name] {
			continue
		}
		out = append(out, it)
	}
	return out
}
