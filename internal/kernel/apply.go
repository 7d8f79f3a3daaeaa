package kernel

import (
	"fmt"

	"kimberlite/internal/ids"
	"kimberlite/internal/schema"
)

// Apply is the kernel's single entrypoint: a pure function from
// (State, tenant, Command) to (State', []Effect) or an error. Every
// command carries the tenant that issued it; no path reachable from
// here performs I/O, reads the clock, or consults a random source.
func Apply(state *State, tenant ids.TenantId, cmd Command) (*State, []Effect, error) {
	switch c := cmd.(type) {
	case CreateStream:
		return applyCreateStream(state, tenant, c)
	case CreateStreamWithAutoId:
		return applyCreateStreamWithAutoId(state, tenant, c)
	case AppendBatch:
		return applyAppendBatch(state, tenant, c)
	case CreateTable:
		return applyCreateTable(state, tenant, c)
	case DropTable:
		return applyDropTable(state, tenant, c)
	case AlterTable:
		return applyAlterTable(state, tenant, c)
	case CreateIndex:
		return applyCreateIndex(state, tenant, c)
	case MutateRow:
		return applyMutateRow(state, tenant, c)
	default:
		return nil, nil, fmt.Errorf("kernel: unrecognized command %T", cmd)
	}
}

func auditEffect(tenant ids.TenantId, kind, summary string) Effect {
	return AuditLogAppend{Action: AuditAction{TenantId: tenant, Kind: kind, Summary: summary}}
}

func applyCreateStream(state *State, tenant ids.TenantId, c CreateStream) (*State, []Effect, error) {
	if _, ok := state.Streams.Get(c.StreamId); ok {
		return nil, nil, ErrStreamIdExists
	}
	if state.streamNameTaken(tenant, c.Name) {
		return nil, nil, ErrStreamNameExists
	}

	meta := schema.StreamMetadata{
		StreamId:      c.StreamId,
		StreamName:    c.Name,
		DataClass:     c.DataClass,
		Placement:     c.Placement,
		CurrentOffset: ids.ZeroOffset,
	}
	if err := meta.Validate(); err != nil {
		return nil, nil, err
	}

	next := state.withStreams(state.Streams.Set(c.StreamId, meta))
	effects := []Effect{
		StreamMetadataWrite{Meta: meta},
		auditEffect(tenant, "CreateStream", fmt.Sprintf("stream %s (%q) created", c.StreamId, c.Name)),
	}
	return next, effects, nil
}

func applyCreateStreamWithAutoId(state *State, tenant ids.TenantId, c CreateStreamWithAutoId) (*State, []Effect, error) {
	local := state.NextStreamId
	streamId := ids.NewStreamId(tenant, local)

	next, effects, err := applyCreateStream(state, tenant, CreateStream{
		StreamId:  streamId,
		Name:      c.Name,
		DataClass: c.DataClass,
		Placement: c.Placement,
	})
	if err != nil {
		return nil, nil, err
	}
	next.NextStreamId = local + 1
	return next, effects, nil
}

func applyAppendBatch(state *State, tenant ids.TenantId, c AppendBatch) (*State, []Effect, error) {
	meta, ok := state.Streams.Get(c.StreamId)
	if !ok {
		return nil, nil, ErrStreamNotFound
	}
	if meta.CurrentOffset != c.ExpectedOffset {
		return nil, nil, &UnexpectedStreamOffsetError{
			Expected: uint64(c.ExpectedOffset),
			Actual:   uint64(meta.CurrentOffset),
		}
	}

	base := meta.CurrentOffset
	newOffset := base.Add(uint64(len(c.Events)))
	meta.CurrentOffset = newOffset

	next := state.withStreams(state.Streams.Set(c.StreamId, meta))
	effects := []Effect{
		StorageAppend{StreamId: c.StreamId, Base: base, Events: c.Events},
		WakeProjection{StreamId: c.StreamId, From: base, To: newOffset},
		auditEffect(tenant, "AppendBatch", fmt.Sprintf("stream %s appended %d events at base %d", c.StreamId, len(c.Events), base)),
	}
	return next, effects, nil
}

func applyCreateTable(state *State, tenant ids.TenantId, c CreateTable) (*State, []Effect, error) {
	if _, ok := state.Tables.Get(c.TableId); ok {
		return nil, nil, ErrTableIdExists
	}
	if _, ok := state.TableNameIndex.Get(c.Name); ok {
		return nil, nil, ErrTableNameExists
	}

	table := schema.TableMetadata{
		TableId:    c.TableId,
		Name:       c.Name,
		Columns:    c.Columns,
		PrimaryKey: c.PrimaryKey,
	}
	if err := table.Validate(); err != nil {
		return nil, nil, err
	}

	streamId := ids.NewStreamId(tenant, state.NextStreamId)
	if state.streamNameTaken(tenant, schema.BackingStreamName(c.Name)) {
		return nil, nil, ErrStreamNameExists
	}
	table.StreamId = streamId

	// Backing streams start Confidential and globally placed; the
	// policy layer may tighten classification from column contents on
	// read, but the catalog entry itself carries a conservative floor.
	streamMeta := schema.StreamMetadata{
		StreamId:      streamId,
		StreamName:    schema.BackingStreamName(c.Name),
		DataClass:     schema.DataClassConfidential,
		Placement:     schema.GlobalPlacement(),
		CurrentOffset: ids.ZeroOffset,
	}
	if err := streamMeta.Validate(); err != nil {
		return nil, nil, err
	}

	next := state.withTables(
		state.Tables.Set(c.TableId, table),
		state.TableNameIndex.Set(c.Name, c.TableId),
	)
	next.Streams = next.Streams.Set(streamId, streamMeta)
	next.NextStreamId = state.NextStreamId + 1

	effects := []Effect{
		StreamMetadataWrite{Meta: streamMeta},
		TableMetadataWrite{Meta: table},
		auditEffect(tenant, "CreateTable", fmt.Sprintf("table %q (id=%d) created backed by stream %s", c.Name, c.TableId, streamId)),
	}
	return next, effects, nil
}

func applyDropTable(state *State, tenant ids.TenantId, c DropTable) (*State, []Effect, error) {
	table, ok := state.Tables.Get(c.TableId)
	if !ok {
		return nil, nil, ErrTableNotFound
	}

	// The table's backing stream and every row already appended to it
	// are left untouched: nothing is ever deleted from the log. Any
	// index built over this table becomes orphaned and must be dropped
	// from the catalog alongside it.
	indexes := state.Indexes
	state.Indexes.Ascend(func(id ids.IndexId, idx schema.IndexMetadata) bool {
		if idx.TableId == c.TableId {
			indexes = indexes.Delete(id)
		}
		return true
	})

	next := state.withTables(
		state.Tables.Delete(c.TableId),
		state.TableNameIndex.Delete(table.Name),
	)
	next.Indexes = indexes

	effects := []Effect{
		TableMetadataDrop{TableId: c.TableId},
		auditEffect(tenant, "DropTable", fmt.Sprintf("table %q (id=%d) dropped", table.Name, c.TableId)),
	}
	return next, effects, nil
}

func applyAlterTable(state *State, tenant ids.TenantId, c AlterTable) (*State, []Effect, error) {
	table, ok := state.Tables.Get(c.TableId)
	if !ok {
		return nil, nil, ErrTableNotFound
	}

	existing := make(map[string]bool, len(table.Columns))
	for _, col := range table.Columns {
		existing[col.Name] = true
	}
	dropped := make(map[string]bool, len(c.DropColumns))
	for _, name := range c.DropColumns {
		dropped[name] = true
	}
	for _, add := range c.AddColumns {
		if dropped[add.Name] {
			return nil, nil, ErrAlterTableConflict
		}
		if existing[add.Name] {
			return nil, nil, ErrColumnExists
		}
	}
	pk := make(map[string]bool, len(table.PrimaryKey))
	for _, name := range table.PrimaryKey {
		pk[name] = true
	}
	for _, name := range c.DropColumns {
		if !existing[name] {
			return nil, nil, ErrColumnNotFound
		}
		if pk[name] {
			return nil, nil, ErrPrimaryKeyColumn
		}
	}

	columns := make([]schema.ColumnDef, 0, len(table.Columns)+len(c.AddColumns))
	for _, col := range table.Columns {
		if !dropped[col.Name] {
			columns = append(columns, col)
		}
	}
	columns = append(columns, c.AddColumns...)

	updated := table
	updated.Columns = columns
	if err := updated.Validate(); err != nil {
		return nil, nil, err
	}

	next := state.withTables(state.Tables.Set(c.TableId, updated), state.TableNameIndex)
	effects := []Effect{
		TableMetadataWrite{Meta: updated},
		auditEffect(tenant, "AlterTable", fmt.Sprintf("table %q (id=%d): +%d/-%d columns", table.Name, c.TableId, len(c.AddColumns), len(c.DropColumns))),
	}
	return next, effects, nil
}

func applyCreateIndex(state *State, tenant ids.TenantId, c CreateIndex) (*State, []Effect, error) {
	if _, ok := state.Indexes.Get(c.IndexId); ok {
		return nil, nil, ErrIndexIdExists
	}
	table, ok := state.Tables.Get(c.TableId)
	if !ok {
		return nil, nil, ErrTableNotFound
	}

	idx := schema.IndexMetadata{
		IndexId: c.IndexId,
		Name:    c.Name,
		TableId: c.TableId,
		Columns: c.Columns,
	}
	if err := idx.Validate(&table); err != nil {
		return nil, nil, err
	}

	next := state.withIndexes(state.Indexes.Set(c.IndexId, idx))
	effects := []Effect{
		IndexMetadataWrite{Meta: idx},
		auditEffect(tenant, "CreateIndex", fmt.Sprintf("index %q (id=%d) created on table %q", c.Name, c.IndexId, table.Name)),
	}
	return next, effects, nil
}

func applyMutateRow(state *State, tenant ids.TenantId, c MutateRow) (*State, []Effect, error) {
	table, ok := state.Tables.Get(c.TableId)
	if !ok {
		return nil, nil, ErrTableNotFound
	}
	streamMeta, ok := state.Streams.Get(table.StreamId)
	if !ok {
		return nil, nil, fmt.Errorf("kernel: table %q references missing backing stream %s", table.Name, table.StreamId)
	}

	base := streamMeta.CurrentOffset
	newOffset := base.Add(1)
	streamMeta.CurrentOffset = newOffset

	// The stored event is the op byte followed by the row's encoded
	// form: the projection store strips it back off to know whether to
	// write or tombstone.
	event := make([]byte, 0, len(c.RowData)+1)
	event = append(event, byte(c.Op))
	event = append(event, c.RowData...)

	next := state.withStreams(state.Streams.Set(table.StreamId, streamMeta))
	effects := []Effect{
		StorageAppend{StreamId: table.StreamId, Base: base, Events: [][]byte{event}},
		UpdateProjection{TableId: c.TableId, From: base, To: newOffset},
		auditEffect(tenant, c.Op.String(), fmt.Sprintf("%s on table %q (id=%d) at stream offset %d", c.Op, table.Name, c.TableId, base)),
	}
	return next, effects, nil
}
