package projection

import (
	"fmt"

	"kimberlite/internal/collections"
	"kimberlite/internal/ids"
	"kimberlite/internal/schema"
)

// RowOp mirrors the op byte the kernel prefixes to every row event
// appended to a table's backing stream: this is the wire contract
// StorageAppend effects carry across the kernel/projection boundary.
type RowOp byte

const (
	RowInsert RowOp = 0
	RowUpdate RowOp = 1
	RowDelete RowOp = 2
)

func lessKey(a, b string) bool         { return a < b }
func lessTableId(a, b ids.TableId) bool { return a < b }
func lessIndexId(a, b ids.IndexId) bool { return a < b }

type rowVersion struct {
	row          Row
	visibleFrom  ids.Offset
	tombstonedAt *ids.Offset
}

type tableStore struct {
	table schema.TableMetadata
	rows  *collections.OrderedMap[string, []rowVersion]
}

func newTableStore(table schema.TableMetadata) *tableStore {
	return &tableStore{table: table, rows: collections.New[string, []rowVersion](lessKey)}
}

func (s *tableStore) write(key string, row Row, at ids.Offset) {
	versions, _ := s.rows.Get(key)
	versions = append(append([]rowVersion{}, versions...), rowVersion{row: row, visibleFrom: at})
	s.rows = s.rows.Set(key, versions)
}

func (s *tableStore) tombstone(key string, at ids.Offset) {
	versions, ok := s.rows.Get(key)
	if !ok || len(versions) == 0 {
		return
	}
	updated := append([]rowVersion{}, versions...)
	last := &updated[len(updated)-1]
	if last.tombstonedAt == nil {
		tAt := at
		last.tombstonedAt = &tAt
	}
	s.rows = s.rows.Set(key, updated)
}

func liveVersion[V any](versions []versionRecord[V], asOf ids.Offset) (V, bool) {
	var zero V
	var best *versionRecord[V]
	for i := range versions {
		v := &versions[i]
		if v.visibleFrom > asOf {
			break
		}
		if v.tombstonedAt != nil && *v.tombstonedAt <= asOf {
			best = nil
			continue
		}
		best = v
	}
	if best == nil {
		return zero, false
	}
	return best.value, true
}

// versionRecord is the generic shape liveVersion operates on. getAt
// copies a row's rowVersion history into it; index entries are not
// resolved through it (indexStore.liveAt has its own as-of loop).
type versionRecord[V any] struct {
	value        V
	visibleFrom  ids.Offset
	tombstonedAt *ids.Offset
}

func (s *tableStore) getAt(key string, asOf ids.Offset) (Row, bool) {
	versions, ok := s.rows.Get(key)
	if !ok {
		return nil, false
	}
	records := make([]versionRecord[Row], len(versions))
	for i, v := range versions {
		records[i] = versionRecord[Row]{value: v.row, visibleFrom: v.visibleFrom, tombstonedAt: v.tombstonedAt}
	}
	return liveVersion(records, asOf)
}

// ScanResult is one row yielded by a range scan, paired with the
// composite primary-key bytes it was stored under.
type ScanResult struct {
	Key string
	Row Row
}

func (s *tableStore) scanAt(from, to *string, asOf ids.Offset, reverse bool, limit int, fn func(ScanResult) bool) {
	count := 0
	visit := func(key string, versions []rowVersion) bool {
		records := make([]versionRecord[Row], len(versions))
		for i, v := range versions {
			records[i] = versionRecord[Row]{value: v.row, visibleFrom: v.visibleFrom, tombstonedAt: v.tombstonedAt}
		}
		row, ok := liveVersion(records, asOf)
		if !ok {
			return true
		}
		if limit > 0 && count >= limit {
			return false
		}
		count++
		return fn(ScanResult{Key: key, Row: row})
	}
	if reverse {
		s.rows.DescendRange(from, to, visit)
	} else {
		s.rows.AscendRange(from, to, visit)
	}
}

type indexVersion struct {
	primaryKey   string
	visibleFrom  ids.Offset
	tombstonedAt *ids.Offset
}

type indexStore struct {
	index   schema.IndexMetadata
	entries *collections.OrderedMap[string, []indexVersion]
}

func newIndexStore(index schema.IndexMetadata) *indexStore {
	return &indexStore{index: index, entries: collections.New[string, []indexVersion](lessKey)}
}

func (s *indexStore) insert(indexKey, primaryKey string, at ids.Offset) {
	versions, _ := s.entries.Get(indexKey)
	versions = append(append([]indexVersion{}, versions...), indexVersion{primaryKey: primaryKey, visibleFrom: at})
	s.entries = s.entries.Set(indexKey, versions)
}

func (s *indexStore) tombstone(indexKey, primaryKey string, at ids.Offset) {
	versions, ok := s.entries.Get(indexKey)
	if !ok {
		return
	}
	updated := append([]indexVersion{}, versions...)
	for i := len(updated) - 1; i >= 0; i-- {
		if updated[i].primaryKey == primaryKey && updated[i].tombstonedAt == nil {
			tAt := at
			updated[i].tombstonedAt = &tAt
			break
		}
	}
	s.entries = s.entries.Set(indexKey, updated)
}

// liveAt returns every primary key still live under indexKey as of
// asOf: a non-unique index may map one key to several rows at once.
func (s *indexStore) liveAt(indexKey string, asOf ids.Offset) []string {
	versions, ok := s.entries.Get(indexKey)
	if !ok {
		return nil
	}
	var live []string
	for _, v := range versions {
		if v.visibleFrom > asOf {
			continue
		}
		if v.tombstonedAt != nil && *v.tombstonedAt <= asOf {
			continue
		}
		live = append(live, v.primaryKey)
	}
	return live
}

// Store is the projection layer's entire materialized state: one
// tableStore per table, one indexStore per secondary index, and the
// applied_position each table has caught up to. It is the single
// consumer of StorageAppend events on table-backing streams.
type Store struct {
	tables          *collections.OrderedMap[ids.TableId, *tableStore]
	indexes         *collections.OrderedMap[ids.IndexId, *indexStore]
	appliedPosition *collections.OrderedMap[ids.TableId, ids.Offset]
}

func NewStore() *Store {
	return &Store{
		tables:          collections.New[ids.TableId, *tableStore](lessTableId),
		indexes:         collections.New[ids.IndexId, *indexStore](lessIndexId),
		appliedPosition: collections.New[ids.TableId, ids.Offset](lessTableId),
	}
}

// RegisterTable makes table available for row application and
// queries. Safe to call again with the same table: it is a no-op once
// the table already has a store.
func (s *Store) RegisterTable(table schema.TableMetadata) {
	if _, ok := s.tables.Get(table.TableId); ok {
		return
	}
	s.tables = s.tables.Set(table.TableId, newTableStore(table))
	s.appliedPosition = s.appliedPosition.Set(table.TableId, ids.ZeroOffset)
}

// RefreshTable replaces a registered table's metadata while keeping
// its rows and applied position, so events appended after an ALTER
// TABLE decode against the new column set. Registers the table when it
// was not yet known.
func (s *Store) RefreshTable(table schema.TableMetadata) {
	ts, ok := s.tables.Get(table.TableId)
	if !ok {
		s.RegisterTable(table)
		return
	}
	s.tables = s.tables.Set(table.TableId, &tableStore{table: table, rows: ts.rows})
}

// RegisterIndex makes index available for scan_index. The table it
// covers must already be registered.
func (s *Store) RegisterIndex(index schema.IndexMetadata) error {
	if _, ok := s.tables.Get(index.TableId); !ok {
		return fmt.Errorf("projection: register index %q: table %d not registered", index.Name, index.TableId)
	}
	if _, ok := s.indexes.Get(index.IndexId); ok {
		return nil
	}
	s.indexes = s.indexes.Set(index.IndexId, newIndexStore(index))
	return nil
}

// AppliedPosition returns the highest offset tableId's projection has
// applied. ok is false when the table is unknown or nothing has been
// applied to it yet.
func (s *Store) AppliedPosition(tableId ids.TableId) (ids.Offset, bool) {
	next, ok := s.appliedPosition.Get(tableId)
	if !ok || next == ids.ZeroOffset {
		return ids.ZeroOffset, false
	}
	return next - 1, true
}

// ApplyRowAppend decodes and applies a run of backing-stream events
// starting at base, in order, advancing tableId's applied_position.
// Idempotent w.r.t. offsets at or below the current applied_position:
// callers may safely re-deliver a range that overlaps what was already
// applied.
func (s *Store) ApplyRowAppend(tableId ids.TableId, base ids.Offset, events [][]byte) error {
	ts, ok := s.tables.Get(tableId)
	if !ok {
		return fmt.Errorf("projection: apply row append: table %d not registered", tableId)
	}
	applied, _ := s.appliedPosition.Get(tableId)

	offset := base
	for _, raw := range events {
		if offset < applied {
			offset = offset.Add(1)
			continue
		}
		if err := s.applyOneRow(ts, tableId, raw, offset); err != nil {
			return err
		}
		offset = offset.Add(1)
	}
	if offset > applied {
		s.appliedPosition = s.appliedPosition.Set(tableId, offset)
	}
	return nil
}

func (s *Store) applyOneRow(ts *tableStore, tableId ids.TableId, raw []byte, at ids.Offset) error {
	if len(raw) < 1 {
		return fmt.Errorf("projection: row event at offset %d is empty", at)
	}
	op := RowOp(raw[0])
	row, err := DecodeRow(&ts.table, raw[1:])
	if err != nil {
		return fmt.Errorf("projection: decode row event at offset %d: %w", at, err)
	}

	pkValues := ColumnValues(row, ts.table.PrimaryKey)
	keyBytes, err := EncodeKey(pkValues)
	if err != nil {
		return fmt.Errorf("projection: encode primary key at offset %d: %w", at, err)
	}
	key := string(keyBytes)

	switch op {
	case RowInsert, RowUpdate:
		ts.write(key, row, at)
		s.updateIndexesForRow(tableId, ts, row, key, at, false)
	case RowDelete:
		ts.tombstone(key, at)
		s.updateIndexesForRow(tableId, ts, row, key, at, true)
	default:
		return fmt.Errorf("projection: unrecognized row op %d at offset %d", op, at)
	}
	return nil
}

func (s *Store) updateIndexesForRow(tableId ids.TableId, ts *tableStore, row Row, primaryKey string, at ids.Offset, tombstone bool) {
	s.indexes.Ascend(func(_ ids.IndexId, idx *indexStore) bool {
		if idx.index.TableId != tableId {
			return true
		}
		values := ColumnValues(row, idx.index.Columns)
		keyBytes, err := EncodeKey(values)
		if err != nil {
			return true
		}
		indexKey := string(keyBytes)
		if tombstone {
			idx.tombstone(indexKey, primaryKey, at)
		} else {
			idx.insert(indexKey, primaryKey, at)
		}
		return true
	})
}

// Get performs a point lookup in tableId's current state.
func (s *Store) Get(tableId ids.TableId, key []byte) (Row, bool, error) {
	ts, ok := s.tables.Get(tableId)
	if !ok {
		return nil, false, fmt.Errorf("projection: get: table %d not registered", tableId)
	}
	applied, _ := s.appliedPosition.Get(tableId)
	row, ok := ts.getAt(string(key), applied)
	return row, ok, nil
}

// Scan performs an ordered range scan over tableId's current state.
// from/to bound the encoded primary key (nil means unbounded); limit
// <= 0 means unbounded.
func (s *Store) Scan(tableId ids.TableId, from, to []byte, reverse bool, limit int, fn func(ScanResult) bool) error {
	ts, ok := s.tables.Get(tableId)
	if !ok {
		return fmt.Errorf("projection: scan: table %d not registered", tableId)
	}
	applied, _ := s.appliedPosition.Get(tableId)
	ts.scanAt(bytesToKeyPtr(from), bytesToKeyPtr(to), applied, reverse, limit, fn)
	return nil
}

// ScanIndex returns the primary keys currently live under indexKey.
func (s *Store) ScanIndex(indexId ids.IndexId, indexKey []byte) ([]string, error) {
	idx, ok := s.indexes.Get(indexId)
	if !ok {
		return nil, fmt.Errorf("projection: scan index: index %d not registered", indexId)
	}
	ts, ok := s.tables.Get(idx.index.TableId)
	if !ok {
		return nil, fmt.Errorf("projection: scan index: table %d not registered", idx.index.TableId)
	}
	applied, _ := s.appliedPosition.Get(ts.table.TableId)
	return idx.liveAt(string(indexKey), applied), nil
}

// Snapshot is a read-only view of the store pinned to the highest
// applied offset at or below asOf, implementing snapshot_at. Every
// method behaves exactly like its Store counterpart except that the
// visibility horizon never advances even as the live Store keeps
// ingesting further effects.
type Snapshot struct {
	store *Store
	asOf  map[ids.TableId]ids.Offset
}

// SnapshotAt returns a read view of tableId pinned to the highest
// offset applied at or before asOf. If the table has not yet reached
// asOf, the snapshot exposes whatever has been applied so far; the
// caller is responsible for waiting on applied_position first if it
// needs asOf to be fully caught up.
func (s *Store) SnapshotAt(tableId ids.TableId, asOf ids.Offset) (*Snapshot, error) {
	applied, ok := s.appliedPosition.Get(tableId)
	if !ok {
		return nil, fmt.Errorf("projection: snapshot_at: table %d not registered", tableId)
	}
	horizon := asOf
	if applied < horizon {
		horizon = applied
	}
	return &Snapshot{store: s, asOf: map[ids.TableId]ids.Offset{tableId: horizon}}, nil
}

func (snap *Snapshot) Get(tableId ids.TableId, key []byte) (Row, bool, error) {
	ts, ok := snap.store.tables.Get(tableId)
	if !ok {
		return nil, false, fmt.Errorf("projection: get: table %d not registered", tableId)
	}
	asOf, ok := snap.asOf[tableId]
	if !ok {
		return nil, false, fmt.Errorf("projection: get: table %d not covered by this snapshot", tableId)
	}
	row, ok := ts.getAt(string(key), asOf)
	return row, ok, nil
}

func (snap *Snapshot) Scan(tableId ids.TableId, from, to []byte, reverse bool, limit int, fn func(ScanResult) bool) error {
	ts, ok := snap.store.tables.Get(tableId)
	if !ok {
		return fmt.Errorf("projection: scan: table %d not registered", tableId)
	}
	asOf, ok := snap.asOf[tableId]
	if !ok {
		return fmt.Errorf("projection: scan: table %d not covered by this snapshot", tableId)
	}
	ts.scanAt(bytesToKeyPtr(from), bytesToKeyPtr(to), asOf, reverse, limit, fn)
	return nil
}

func bytesToKeyPtr(b []byte) *string {
	if b == nil {
		return nil
	}
	s := string(b)
	return &s
}
