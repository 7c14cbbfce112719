package util

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteJSONAtomicRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "summary.json")
	require.NoError(t, WriteJSONAtomic(path, map[string]int{"processed": 3}))

	var got map[string]int
	require.NoError(t, ReadJSON(path, &got))
	require.Equal(t, 3, got["processed"])

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp files must not be left behind")
}

func TestListFilesFiltersAndSorts(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.json", "a.PDF", "c.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}
	got, err := ListFiles(dir, ".json", ".pdf")
	require.NoError(t, err)
	require.Equal(t, []string{filepath.Join(dir, "a.PDF"), filepath.Join(dir, "b.json")}, got)

	missing, err := ListFiles(filepath.Join(dir, "nope"), ".json")
	require.NoError(t, err)
	require.Empty(t, missing)
}
