package fetchcache

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nben/cipofetch/internal/catalog"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEnsureLocalDownloadsAndCaches(t *testing.T) {
	const payload = "zip-bytes-here"
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		io.WriteString(w, payload)
	}))
	defer server.Close()

	dir := t.TempDir()
	cache := New(dir, testLogger())
	res := catalog.Resource{
		URL:          server.URL + "/pt_main_2024.zip",
		Filename:     "pt_main_2024.zip",
		Size:         int64(len(payload)),
		LastModified: "2024-05-01",
	}

	arch, hit, err := cache.EnsureLocal(context.Background(), res)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, int32(1), hits.Load())

	data, err := os.ReadFile(arch.Path)
	require.NoError(t, err)
	assert.Equal(t, payload, string(data))

	_, err = os.Stat(arch.Path + ".json")
	require.NoError(t, err)

	// Unchanged signature: second call is a hit with no network access.
	arch2, hit, err := cache.EnsureLocal(context.Background(), res)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, arch.Path, arch2.Path)
	assert.Equal(t, int32(1), hits.Load())
}

func TestEnsureLocalRedownloadsOnChangedSignature(t *testing.T) {
	const payload = "updated-content"
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		io.WriteString(w, payload)
	}))
	defer server.Close()

	cache := New(t.TempDir(), testLogger())
	res := catalog.Resource{
		URL:          server.URL + "/pt_main.zip",
		Filename:     "pt_main.zip",
		Size:         int64(len(payload)),
		LastModified: "2024-05-01",
	}

	_, _, err := cache.EnsureLocal(context.Background(), res)
	require.NoError(t, err)

	res.LastModified = "2024-06-01"
	_, hit, err := cache.EnsureLocal(context.Background(), res)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, int32(2), hits.Load())
}

func TestEnsureLocalUnsignedResourceHitsExistingCopy(t *testing.T) {
	const payload = "scraped-archive"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, payload)
	}))
	defer server.Close()

	cache := New(t.TempDir(), testLogger())
	res := catalog.Resource{URL: server.URL + "/pt_main.zip", Filename: "pt_main.zip"}

	_, hit, err := cache.EnsureLocal(context.Background(), res)
	require.NoError(t, err)
	assert.False(t, hit)

	_, hit, err = cache.EnsureLocal(context.Background(), res)
	require.NoError(t, err)
	assert.True(t, hit)
}

func TestEnsureLocalIncompleteTransfer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "short")
	}))
	defer server.Close()

	dir := t.TempDir()
	cache := New(dir, testLogger())
	res := catalog.Resource{
		URL:      server.URL + "/pt_main.zip",
		Filename: "pt_main.zip",
		Size:     9999,
	}

	_, _, err := cache.EnsureLocal(context.Background(), res)
	assert.ErrorIs(t, err, ErrDownloadFailed)

	// No partial file may appear under the final cache name.
	_, statErr := os.Stat(filepath.Join(dir, "pt_main.zip"))
	assert.True(t, os.IsNotExist(statErr))
	_, statErr = os.Stat(filepath.Join(dir, "pt_main.zip.partial"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestEnsureLocalHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer server.Close()

	cache := New(t.TempDir(), testLogger())
	res := catalog.Resource{URL: server.URL + "/missing.zip", Filename: "missing.zip"}

	_, _, err := cache.EnsureLocal(context.Background(), res)
	assert.ErrorIs(t, err, ErrDownloadFailed)
}

func TestStats(t *testing.T) {
	dir := t.TempDir()
	cache := New(dir, testLogger())

	files, size, err := cache.Stats()
	require.NoError(t, err)
	assert.Zero(t, files)
	assert.Zero(t, size)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.zip"), []byte("12345"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.zip.json"), []byte("{}"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.zip.partial"), []byte("xx"), 0o644))

	files, size, err = cache.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, files)
	assert.Equal(t, int64(5), size)
}
