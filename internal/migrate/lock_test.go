package migrate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateSequenceAcceptsGapFreeIds(t *testing.T) {
	scripts := []Script{
		NewScript(1, "first", "CREATE TABLE a (id UUID)"),
		NewScript(2, "second", "CREATE TABLE b (id UUID)"),
	}
	assert.NoError(t, ValidateSequence(scripts))
}

func TestValidateSequenceRejectsGap(t *testing.T) {
	scripts := []Script{
		NewScript(1, "first", "CREATE TABLE a (id UUID)"),
		NewScript(3, "third", "CREATE TABLE c (id UUID)"),
	}
	assert.Error(t, ValidateSequence(scripts))
}

func TestLockFileLockAndIsLocked(t *testing.T) {
	lf := NewLockFile()
	s := NewScript(1, "first", "CREATE TABLE a (id UUID)")
	assert.False(t, lf.IsLocked(1))
	lf.Lock(s)
	assert.True(t, lf.IsLocked(1))
	require.Len(t, lf.Migrations, 1)
	assert.Equal(t, s.Checksum, lf.Migrations[0].Checksum)
}

func TestLockFileValidateSucceedsOnMatchingChecksum(t *testing.T) {
	lf := NewLockFile()
	s := NewScript(1, "first", "CREATE TABLE a (id UUID)")
	lf.Lock(s)
	assert.NoError(t, lf.Validate([]Script{s}))
}

func TestLockFileValidateRejectsChangedScript(t *testing.T) {
	lf := NewLockFile()
	lf.Lock(NewScript(1, "first", "CREATE TABLE a (id UUID)"))

	changed := NewScript(1, "first", "CREATE TABLE a (id UUID, name TEXT)")
	err := lf.Validate([]Script{changed})
	require.Error(t, err)
	assert.IsType(t, &ChecksumMismatchError{}, err)
}

func TestLockFileUpdateLocksNewScriptsWithoutRelockingExisting(t *testing.T) {
	lf := NewLockFile()
	first := NewScript(1, "first", "CREATE TABLE a (id UUID)")
	lf.Lock(first)

	second := NewScript(2, "second", "CREATE TABLE b (id UUID)")
	require.NoError(t, lf.Update([]Script{first, second}))
	assert.True(t, lf.IsLocked(1))
	assert.True(t, lf.IsLocked(2))

	// A changed script 1 must still be caught by Update, which
	// validates before locking anything new.
	changedFirst := NewScript(1, "first", "CREATE TABLE a (id UUID, extra TEXT)")
	err := lf.Update([]Script{changedFirst, second})
	assert.Error(t, err)
}

func TestLockFileEncodeDecodeRoundTrips(t *testing.T) {
	lf := NewLockFile()
	lf.Lock(NewScript(1, "first", "CREATE TABLE a (id UUID)"))
	lf.Lock(NewScript(2, "second", "CREATE TABLE b (id UUID)"))

	data, err := lf.Encode()
	require.NoError(t, err)

	loaded, err := LoadLockFile(data)
	require.NoError(t, err)
	assert.Equal(t, lf.Version, loaded.Version)
	require.Len(t, loaded.Migrations, 2)
	assert.Equal(t, lf.Migrations, loaded.Migrations)
}

func TestLoadLockFileEmptyDataYieldsEmptyLockFile(t *testing.T) {
	lf, err := LoadLockFile(nil)
	require.NoError(t, err)
	assert.Equal(t, 1, lf.Version)
	assert.Empty(t, lf.Migrations)
}
