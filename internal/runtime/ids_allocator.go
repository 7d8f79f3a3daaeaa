package runtime

import (
	"sync"

	"kimberlite/internal/ids"
)

// idAllocator hands out fresh TableId/IndexId values. The kernel
// itself never assigns these (unlike stream ids, which
// CreateStreamWithAutoId manages via State.NextStreamId): CreateTable
// and CreateIndex both take an explicit id, so whatever constructs
// those commands — here, the runtime's DDL path — owns the counter.
type idAllocator struct {
	mu        sync.Mutex
	nextTable ids.TableId
	nextIndex ids.IndexId
}

func newIdAllocator() *idAllocator {
	return &idAllocator{nextTable: 1, nextIndex: 1}
}

func (a *idAllocator) table() ids.TableId {
	a.mu.Lock()
	defer a.mu.Unlock()
	id := a.nextTable
	a.nextTable++
	return id
}

func (a *idAllocator) index() ids.IndexId {
	a.mu.Lock()
	defer a.mu.Unlock()
	id := a.nextIndex
	a.nextIndex++
	return id
}

// observeTable advances the allocator past id, so ids loaded from a
// schemaload.Plan (which allocates independently before the runtime
// exists) are never reissued.
func (a *idAllocator) observeTable(id ids.TableId) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if id >= a.nextTable {
		a.nextTable = id + 1
	}
}

func (a *idAllocator) observeIndex(id ids.IndexId) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if id >= a.nextIndex {
		a.nextIndex = id + 1
	}
}
