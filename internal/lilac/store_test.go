package lilac

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreFirstRun(t *testing.T) {
	s, err := LoadStore(filepath.Join(t.TempDir(), "store.json"))
	require.NoError(t, err)
	assert.Equal(t, emptyTreeSHA, s.LastCommit)
	assert.Empty(t, s.Failed)
}

func TestStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	s, err := LoadStore(path)
	require.NoError(t, err)

	s.LastCommit = "abc123"
	s.Failed["pkg"] = "2.0"
	require.NoError(t, s.Save())

	loaded, err := LoadStore(path)
	require.NoError(t, err)
	assert.Equal(t, "abc123", loaded.LastCommit)
	assert.Equal(t, map[string]string{"pkg": "2.0"}, loaded.Failed)
}

func TestStoreSaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "store.json")
	s, err := LoadStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Save())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "store.json", entries[0].Name())
}

func TestStoreCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	_, err := LoadStore(path)
	require.Error(t, err)
}

func TestLockExcludesSecondInstance(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.lock")
	l1, err := AcquireLock(path)
	require.NoError(t, err)
	defer l1.Release()

	_, err = AcquireLock(path)
	require.Error(t, err)

	l1.Release()
	l2, err := AcquireLock(path)
	require.NoError(t, err)
	l2.Release()
}
