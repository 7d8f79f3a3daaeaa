package runtime

import (
	"context"
	"fmt"

	"kimberlite/internal/ids"
	"kimberlite/internal/kernel"
	"kimberlite/internal/preflight"
	"kimberlite/internal/query"
)

// engine builds a query.Engine bound to the runtime's current catalog
// snapshot and live store. A fresh Engine per call is cheap: it holds
// no state of its own beyond the parser, catalog and store references.
func (r *Runtime) engine() *query.Engine {
	return query.NewEngine(stateCatalog{state: r.state}, r.store)
}

// ExecuteDDL compiles and submits a CREATE TABLE / DROP TABLE /
// CREATE INDEX / ALTER TABLE statement. unsafe bypasses the DANGER
// preflight refusal (an operator's explicit --unsafe override); it
// never bypasses a kernel invariant.
func (r *Runtime) ExecuteDDL(ctx context.Context, tenant ids.TenantId, sql string, unsafe bool) ([]kernel.Effect, []preflight.Warning, error) {
	r.mu.Lock()
	eng := r.engine()
	stmt, err := eng.Parse(sql)
	r.mu.Unlock()
	if err != nil {
		return nil, nil, err
	}

	warnings := preflight.Check(stmt)
	if preflight.Refuse(warnings, unsafe) {
		return nil, warnings, fmt.Errorf("runtime: refusing destructive statement without --unsafe")
	}

	cmd, err := r.buildDDLCommand(stmt)
	if err != nil {
		return nil, warnings, err
	}
	effects, err := r.Submit(ctx, tenant, cmd)
	return effects, warnings, err
}

func (r *Runtime) buildDDLCommand(stmt query.Statement) (kernel.Command, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch s := stmt.(type) {
	case *query.CreateTableStmt:
		return kernel.CreateTable{
			TableId:    r.ids.table(),
			Name:       s.Name,
			Columns:    s.Columns,
			PrimaryKey: s.PrimaryKey,
		}, nil

	case *query.DropTableStmt:
		tableId, ok := r.state.TableNameIndex.Get(s.Name)
		if !ok {
			return nil, query.ErrTableNotFound
		}
		return kernel.DropTable{TableId: tableId}, nil

	case *query.CreateIndexStmt:
		tableId, ok := r.state.TableNameIndex.Get(s.Table)
		if !ok {
			return nil, query.ErrTableNotFound
		}
		return kernel.CreateIndex{
			IndexId: r.ids.index(),
			TableId: tableId,
			Name:    s.Name,
			Columns: s.Columns,
		}, nil

	case *query.AlterTableStmt:
		tableId, ok := r.state.TableNameIndex.Get(s.Table)
		if !ok {
			return nil, query.ErrTableNotFound
		}
		return kernel.AlterTable{
			TableId:     tableId,
			AddColumns:  s.AddColumns,
			DropColumns: s.DropColumns,
		}, nil

	default:
		return nil, &query.UnsupportedFeatureError{Msg: fmt.Sprintf("ExecuteDDL: unsupported statement %T", stmt)}
	}
}
