package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nben/cipofetch/internal/parse"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// writeZip builds a zip archive on disk from the given member name/content pairs.
func writeZip(t *testing.T, path string, members map[string]string) {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range members {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = io.WriteString(w, content)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func TestExtractClassifiesMembers(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "PT_main_2024_01.zip")
	writeZip(t, archivePath, map[string]string{
		"PT_main_2024_01.csv":       "header\nrow",
		"PT_abstract_2024_01.csv":   "header\nrow",
		"readme.txt":                "not a table file",
		"nested/PT_claim_2024.csv":  "header\nrow",
	})

	e := NewExtractor(filepath.Join(dir, "scratch"), testLogger())
	files, err := e.Extract(context.Background(), archivePath)
	require.NoError(t, err)

	assert.Len(t, files, 3)
	assert.Contains(t, files, parse.TableMain)
	assert.Contains(t, files, parse.TableAbstract)
	assert.Contains(t, files, parse.TableClaim)

	data, err := os.ReadFile(files[parse.TableMain])
	require.NoError(t, err)
	assert.Equal(t, "header\nrow", string(data))
}

func TestExtractRejectsGarbage(t *testing.T) {
	dir := t.TempDir()
	bogus := filepath.Join(dir, "not_a_zip.zip")
	require.NoError(t, os.WriteFile(bogus, []byte("this is not a zip archive"), 0o644))

	e := NewExtractor(filepath.Join(dir, "scratch"), testLogger())
	_, err := e.Extract(context.Background(), bogus)
	assert.ErrorIs(t, err, ErrCorruptArchive)
}

func TestExtractRejectsUnrecognisedContents(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "other.zip")
	writeZip(t, archivePath, map[string]string{
		"notes.txt":  "hello",
		"image.png": "binary",
	})

	e := NewExtractor(filepath.Join(dir, "scratch"), testLogger())
	_, err := e.Extract(context.Background(), archivePath)
	assert.ErrorIs(t, err, ErrCorruptArchive)
}

func TestExtractHonoursCancellation(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "PT_main.zip")
	writeZip(t, archivePath, map[string]string{"PT_main.csv": "header"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := NewExtractor(filepath.Join(dir, "scratch"), testLogger())
	_, err := e.Extract(ctx, archivePath)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCleanupRemovesScratchDir(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "PT_main_2024.zip")
	writeZip(t, archivePath, map[string]string{"PT_main_2024.csv": "header\nrow"})

	scratch := filepath.Join(dir, "scratch")
	e := NewExtractor(scratch, testLogger())
	_, err := e.Extract(context.Background(), archivePath)
	require.NoError(t, err)

	destDir := filepath.Join(scratch, "PT_main_2024")
	_, err = os.Stat(destDir)
	require.NoError(t, err)

	e.Cleanup(archivePath)
	_, err = os.Stat(destDir)
	assert.True(t, os.IsNotExist(err))
}
