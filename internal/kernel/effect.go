package kernel

import (
	"kimberlite/internal/ids"
	"kimberlite/internal/schema"
)

// Effect is the closed set of side effects apply() asks the runtime to
// carry out once a command has been accepted. Effects never describe
// how to do the work, only what happened to the state.
type Effect interface {
	isEffect()
}

// StreamMetadataWrite asks the runtime to persist a stream's catalog
// entry.
type StreamMetadataWrite struct {
	Meta schema.StreamMetadata
}

func (StreamMetadataWrite) isEffect() {}

// TableMetadataWrite asks the runtime to persist a table's catalog
// entry.
type TableMetadataWrite struct {
	Meta schema.TableMetadata
}

func (TableMetadataWrite) isEffect() {}

// TableMetadataDrop asks the runtime to remove a table's catalog
// entry. It carries no instruction to touch the backing stream.
type TableMetadataDrop struct {
	TableId ids.TableId
}

func (TableMetadataDrop) isEffect() {}

// IndexMetadataWrite asks the runtime to persist an index's catalog
// entry.
type IndexMetadataWrite struct {
	Meta schema.IndexMetadata
}

func (IndexMetadataWrite) isEffect() {}

// StorageAppend asks the runtime to append Events to StreamId's
// record log starting at Base.
type StorageAppend struct {
	StreamId ids.StreamId
	Base     ids.Offset
	Events   [][]byte
}

func (StorageAppend) isEffect() {}

// WakeProjection asks the runtime to drive the stream's projection
// forward over the newly appended range [From, To).
type WakeProjection struct {
	StreamId ids.StreamId
	From     ids.Offset
	To       ids.Offset
}

func (WakeProjection) isEffect() {}

// UpdateProjection asks the runtime to apply a single row mutation to
// a table's projection over the range [From, To) of its backing
// stream.
type UpdateProjection struct {
	TableId ids.TableId
	From    ids.Offset
	To      ids.Offset
}

func (UpdateProjection) isEffect() {}

// AuditAction describes, at the semantic level, who did what to which
// tenant's catalog. The runtime stamps it with a wall-clock time and a
// signature when it turns this into a durable audit log entry; apply()
// never touches either.
type AuditAction struct {
	TenantId ids.TenantId
	Kind     string
	Summary  string
}

// AuditLogAppend asks the runtime to record an audit entry. Every
// successful state-changing command produces exactly one of these,
// regardless of how many other effects it produces.
type AuditLogAppend struct {
	Action AuditAction
}

func (AuditLogAppend) isEffect() {}
