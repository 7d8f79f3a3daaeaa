package runtime

import (
	"kimberlite/internal/ids"
	"kimberlite/internal/kernel"
	"kimberlite/internal/schema"
)

// stateCatalog adapts a kernel.State snapshot to query.Catalog: the
// query engine is never handed a *kernel.State directly, only this
// narrow read-only view, so it stays decoupled from the kernel's
// identifier space.
type stateCatalog struct {
	state *kernel.State
}

func (c stateCatalog) Table(name string) (*schema.TableMetadata, bool) {
	id, ok := c.state.TableNameIndex.Get(name)
	if !ok {
		return nil, false
	}
	table, ok := c.state.Tables.Get(id)
	if !ok {
		return nil, false
	}
	return &table, true
}

func (c stateCatalog) IndexesFor(tableId ids.TableId) []schema.IndexMetadata {
	var out []schema.IndexMetadata
	c.state.Indexes.Ascend(func(_ ids.IndexId, idx schema.IndexMetadata) bool {
		if idx.TableId == tableId {
			out = append(out, idx)
		}
		return true
	})
	return out
}
