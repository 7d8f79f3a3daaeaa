package runtime

import (
	"context"
	"fmt"

	"kimberlite/internal/ids"
	"kimberlite/internal/kernel"
	"kimberlite/internal/schemaload"
)

// Bootstrap submits every command in plan, in order, under tenant. It
// is the runtime-side half of the declarative schema loader: schemaload
// compiles table/index definitions into commands using its own
// IdAllocator (seeded by the caller), Bootstrap applies them and then
// folds the ids that allocator consumed into the runtime's own
// allocator so a later ExecuteDDL call never reissues one of them.
func (r *Runtime) Bootstrap(ctx context.Context, tenant ids.TenantId, plan *schemaload.Plan, alloc *schemaload.IdAllocator) error {
	for _, cmd := range plan.Commands {
		if _, err := r.Submit(ctx, tenant, cmd); err != nil {
			return fmt.Errorf("runtime: bootstrap: %w", err)
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if alloc.NextTableId > 0 {
		r.ids.observeTable(alloc.NextTableId - 1)
	}
	if alloc.NextIndexId > 0 {
		r.ids.observeIndex(alloc.NextIndexId - 1)
	}
	return nil
}

// CreateStream registers a new stream not backed by a table, under the
// tenant's next auto-assigned local stream number.
func (r *Runtime) CreateStream(ctx context.Context, tenant ids.TenantId, cmd kernel.CreateStreamWithAutoId) ([]kernel.Effect, error) {
	return r.Submit(ctx, tenant, cmd)
}

// AppendBatch appends events to an existing stream.
func (r *Runtime) AppendBatch(ctx context.Context, tenant ids.TenantId, cmd kernel.AppendBatch) ([]kernel.Effect, error) {
	return r.Submit(ctx, tenant, cmd)
}
