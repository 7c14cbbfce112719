package dropdir

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFetchReadsJSONAndPDF(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "acme")
	require.NoError(t, os.MkdirAll(dir, 0o755))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.json"), []byte(`{"source":"caselaw","title":"Doe v. Shop","published_at":"2026-03-01T12:00:00Z","fields":{"snippet":"ADA website"}}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.json"), []byte(`[{"source":"recall","title":"Heater recall"},{"source":"recall","title":"Old","published_at":"2020-01-01T00:00:00Z"}]`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte(`{`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "filing.pdf"), []byte("%PDF-1.4 test"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, os.Chtimes(filepath.Join(dir, "filing.pdf"), now, now))

	since := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b, err := New(root, "acme").Fetch(context.Background(), since, time.Time{})
	require.NoError(t, err)

	require.Len(t, b.Items, 3)
	require.Equal(t, "Doe v. Shop", b.Items[0].Title)
	require.Equal(t, filepath.Join("acme", "a.json"), b.Items[0].ObjectKey)
	require.Equal(t, "Heater recall", b.Items[1].Title)
	require.Equal(t, UploadSource, b.Items[2].Source)
	require.Equal(t, "filing", b.Items[2].Title)
	require.Equal(t, "application/pdf", b.Items[2].MIMEType)
	require.Contains(t, b.Note, "broken.json")
}

func TestFetchMissingDirIsEmpty(t *testing.T) {
	b, err := New(t.TempDir(), "nobody").Fetch(context.Background(), time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Empty(t, b.Items)
}

func TestDirStaysUnderRoot(t *testing.T) {
	a := New("/data/in", "../etc")
	require.Equal(t, filepath.Join("/data/in", "etc"), a.Dir())
}
