package migrate

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/BurntSushi/toml"
)

// Script is one migration's identity: an auto-numbered id, a name, and
// the SQL text that produced its compiled Plan. Checksum is the
// SHA-256 hex digest of SQL, computed once and carried alongside it
// rather than recomputed on every comparison.
type Script struct {
	ID       uint32
	Name     string
	SQL      string
	Checksum string
}

// NewScript checksums sql and returns the Script record for it.
func NewScript(id uint32, name, sql string) Script {
	sum := sha256.Sum256([]byte(sql))
	return Script{ID: id, Name: name, SQL: sql, Checksum: hex.EncodeToString(sum[:])}
}

// ValidateSequence rejects a migration set with a gap or a duplicate
// in its id numbering: applying script N+2 before N+1 exists is never
// valid, matching the original migration tracker's gap-free sequence
// rule.
func ValidateSequence(scripts []Script) error {
	sorted := append([]Script(nil), scripts...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	for i, s := range sorted {
		expected := uint32(i + 1)
		if s.ID != expected {
			return fmt.Errorf("migrate: expected migration id %d, found %d (%s)", expected, s.ID, s.Name)
		}
	}
	return nil
}

// LockEntry is one migration's checksum as recorded the last time the
// lock file was updated.
type LockEntry struct {
	ID       uint32 `toml:"id"`
	Name     string `toml:"name"`
	Checksum string `toml:"checksum"`
}

// LockFile is the tamper-evidence ledger for a migrations directory:
// once a migration is locked, any later change to its SQL text is
// caught by Validate before the (now-divergent) script is ever run
// again, independent of whether the tracker considers it applied.
type LockFile struct {
	Version    int         `toml:"version"`
	Migrations []LockEntry `toml:"migration"`
}

// NewLockFile returns an empty, version-1 lock file.
func NewLockFile() *LockFile {
	return &LockFile{Version: 1}
}

// LoadLockFile parses a TOML-encoded lock file. An empty or all-
// whitespace document decodes to an empty LockFile rather than an
// error, so a freshly initialized migrations directory need not ship
// a placeholder file.
func LoadLockFile(data []byte) (*LockFile, error) {
	lf := NewLockFile()
	if len(data) == 0 {
		return lf, nil
	}
	if _, err := toml.Decode(string(data), lf); err != nil {
		return nil, fmt.Errorf("migrate: decode lock file: %w", err)
	}
	if lf.Version == 0 {
		lf.Version = 1
	}
	return lf, nil
}

// Encode renders the lock file back to TOML for writing to disk.
func (lf *LockFile) Encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(lf); err != nil {
		return nil, fmt.Errorf("migrate: encode lock file: %w", err)
	}
	return buf.Bytes(), nil
}

// IsLocked reports whether id already has a recorded checksum.
func (lf *LockFile) IsLocked(id uint32) bool {
	for _, e := range lf.Migrations {
		if e.ID == id {
			return true
		}
	}
	return false
}

// Lock records (or replaces) s's checksum, keeping entries sorted by
// id so the on-disk file diffs cleanly in version control.
func (lf *LockFile) Lock(s Script) {
	filtered := lf.Migrations[:0]
	for _, e := range lf.Migrations {
		if e.ID != s.ID {
			filtered = append(filtered, e)
		}
	}
	lf.Migrations = append(filtered, LockEntry{ID: s.ID, Name: s.Name, Checksum: s.Checksum})
	sort.Slice(lf.Migrations, func(i, j int) bool { return lf.Migrations[i].ID < lf.Migrations[j].ID })
}

// Validate rejects any script whose checksum no longer matches its
// locked entry. Scripts with no locked entry yet (never-before-seen
// ids) are not an error here; Update is what locks them.
func (lf *LockFile) Validate(scripts []Script) error {
	byID := make(map[uint32]LockEntry, len(lf.Migrations))
	for _, e := range lf.Migrations {
		byID[e.ID] = e
	}
	for _, s := range scripts {
		locked, ok := byID[s.ID]
		if !ok {
			continue
		}
		if locked.Checksum != s.Checksum {
			return &ChecksumMismatchError{ID: s.ID, Expected: locked.Checksum, Actual: s.Checksum}
		}
	}
	return nil
}

// Update validates scripts against the existing lock entries, then
// locks every script that was not already locked. It never re-locks
// (and so never silently accepts a changed checksum for) a migration
// already on file — that requires an explicit Lock call.
func (lf *LockFile) Update(scripts []Script) error {
	if err := lf.Validate(scripts); err != nil {
		return err
	}
	for _, s := range scripts {
		if !lf.IsLocked(s.ID) {
			lf.Lock(s)
		}
	}
	return nil
}

// ChecksumMismatchError reports a migration script whose SQL text no
// longer matches the checksum recorded in the lock file — the script
// was edited after being locked.
type ChecksumMismatchError struct {
	ID       uint32
	Expected string
	Actual   string
}

func (e *ChecksumMismatchError) Error() string {
	return fmt.Sprintf("migrate: migration %d checksum mismatch: locked %s, found %s", e.ID, e.Expected, e.Actual)
}
