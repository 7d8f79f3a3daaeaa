package runtime

import (
	"context"
	"fmt"
	"time"

	"kimberlite/internal/ids"
	"kimberlite/internal/kernel"
	"kimberlite/internal/policy"
	"kimberlite/internal/preflight"
	"kimberlite/internal/query"
)

// ExecuteWrite compiles an INSERT/UPDATE/DELETE statement against the
// runtime's live catalog and submits one kernel.MutateRow command per
// affected row, in order. unsafe bypasses the DANGER preflight
// refusal for an unfiltered UPDATE/DELETE.
func (r *Runtime) ExecuteWrite(ctx context.Context, tenant ids.TenantId, sql string, params []any, unsafe bool) ([]kernel.Effect, []preflight.Warning, error) {
	r.mu.Lock()
	eng := r.engine()
	stmt, err := eng.Parse(sql)
	if err != nil {
		r.mu.Unlock()
		return nil, nil, err
	}
	warnings := preflight.Check(stmt)
	if preflight.Refuse(warnings, unsafe) {
		r.mu.Unlock()
		return nil, warnings, fmt.Errorf("runtime: refusing destructive statement without --unsafe")
	}
	intents, err := eng.CompileWrite(sql, params)
	r.mu.Unlock()
	if err != nil {
		return nil, warnings, err
	}

	var all []kernel.Effect
	for _, intent := range intents {
		cmd := kernel.MutateRow{
			TableId: intent.Table.TableId,
			Op:      kernel.RowOp(intent.Op),
			RowData: intent.Row,
		}
		effects, err := r.Submit(ctx, tenant, cmd)
		if err != nil {
			return all, warnings, err
		}
		all = append(all, effects...)
	}
	return all, warnings, nil
}

// ValidateConsent checks purpose against tableName's backing stream
// classification and subject's consent record, per policy.ValidateQuery.
// Callers that need GDPR purpose/consent gating on a read call this
// before Query/QueryAt; it is not invoked automatically, since not
// every query is subject to a declared purpose.
func (r *Runtime) ValidateConsent(tableName, subject string, purpose policy.Purpose) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tableId, ok := r.state.TableNameIndex.Get(tableName)
	if !ok {
		return query.ErrTableNotFound
	}
	table, ok := r.state.Tables.Get(tableId)
	if !ok {
		return query.ErrTableNotFound
	}
	streamMeta, ok := r.state.Streams.Get(table.StreamId)
	if !ok {
		return fmt.Errorf("runtime: table %q references missing backing stream", tableName)
	}
	return r.consent.ValidateQuery(subject, purpose, streamMeta.DataClass)
}

// Query runs a SELECT through accessPolicy's RBAC rewrite before
// executing it against the live store: denied columns are stripped and
// row filters/tenant scope are conjoined as bound parameters, never
// interpolated into SQL text.
func (r *Runtime) Query(accessPolicy policy.AccessPolicy, sql string, params []any) ([]map[string]any, error) {
	if err := r.checkRatePolicy(accessPolicy); err != nil {
		return nil, err
	}

	r.mu.Lock()
	eng := r.engine()
	sel, err := eng.ParseSelect(sql)
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}

	rewritten, boundParams, err := policy.NewRbacFilter(accessPolicy).RewriteStatement(sel, params)
	if err != nil {
		return nil, err
	}
	return eng.QueryStatement(rewritten, boundParams)
}

// QueryWithDeadline is Query with a hard deadline: a query still
// running at deadline fails with query.QueryTimeoutError without
// touching any state. The deadline is read off the runtime's clock, so
// tests can drive it with a mock.
func (r *Runtime) QueryWithDeadline(accessPolicy policy.AccessPolicy, sql string, params []any, deadline time.Time) ([]map[string]any, error) {
	if err := r.checkRatePolicy(accessPolicy); err != nil {
		return nil, err
	}

	r.mu.Lock()
	eng := r.engine().WithClock(r.clock).WithDeadline(deadline)
	sel, err := eng.ParseSelect(sql)
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}

	rewritten, boundParams, err := policy.NewRbacFilter(accessPolicy).RewriteStatement(sel, params)
	if err != nil {
		return nil, err
	}
	return eng.QueryStatement(rewritten, boundParams)
}

// QueryAt is Query's point-in-time counterpart: it runs the
// RBAC-rewritten statement against a snapshot pinned at or before
// offset.
func (r *Runtime) QueryAt(accessPolicy policy.AccessPolicy, sql string, params []any, offset ids.Offset) ([]map[string]any, error) {
	if err := r.checkRatePolicy(accessPolicy); err != nil {
		return nil, err
	}

	r.mu.Lock()
	eng := r.engine()
	sel, err := eng.ParseSelect(sql)
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}

	rewritten, boundParams, err := policy.NewRbacFilter(accessPolicy).RewriteStatement(sel, params)
	if err != nil {
		return nil, err
	}
	return eng.QueryStatementAt(rewritten, boundParams, offset)
}
