package pipeline

import (
	"archive/zip"
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nben/cipofetch/internal/archive"
	"github.com/nben/cipofetch/internal/catalog"
	"github.com/nben/cipofetch/internal/fetchcache"
	"github.com/nben/cipofetch/internal/parse"
	"github.com/nben/cipofetch/internal/progress"
	"github.com/nben/cipofetch/internal/store"
)

const mainHeader = "Patent Number - Numéro du brevet|Filing Date - Date de dépôt|Grant Date - Date de l'octroi|Application Status Code - Code du statut de la demande|Application Type Code - Code du type de la demande|Application/Patent Title English - Demande/Titre anglais du brevet|Application/Patent Title French - Demande/Titre français du brevet"

const abstractHeader = "Patent Number - Numéro du brevet|Abstract text sequence number - Texte de l'abrégé numéro de séquence|Language of Filing Code - Langue du type de dépôt|Abstract Language Code - Code de la langue du résumé|Abstract Text - Texte de l'abrégé"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func buildZip(t *testing.T, members map[string]string) []byte {
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
	return buf.Bytes()
}

// registry serves a CKAN package_show listing plus the archives it
// advertises, counting downloads per archive.
type registry struct {
	mu           sync.Mutex
	archives     map[string][]byte
	lastModified map[string]string
	downloads    map[string]int
	catalogDown  bool
	baseURL      string
	server       *httptest.Server
}

func newRegistry(t *testing.T) *registry {
	t.Helper()
	reg := &registry{
		archives:     make(map[string][]byte),
		lastModified: make(map[string]string),
		downloads:    make(map[string]int),
	}
	reg.server = httptest.NewServer(http.HandlerFunc(reg.handle))
	reg.baseURL = reg.server.URL
	t.Cleanup(reg.server.Close)
	return reg
}

func (reg *registry) setArchive(name, lastModified string, data []byte) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.archives[name] = data
	reg.lastModified[name] = lastModified
}

func (reg *registry) downloadCount(name string) int {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return reg.downloads[name]
}

func (reg *registry) handle(w http.ResponseWriter, r *http.Request) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	switch {
	case r.URL.Path == "/action/package_show":
		if reg.catalogDown {
			http.Error(w, "registry offline", http.StatusServiceUnavailable)
			return
		}
		type jsonResource struct {
			URL          string `json:"url"`
			Name         string `json:"name"`
			Format       string `json:"format"`
			Size         int64  `json:"size"`
			LastModified string `json:"last_modified"`
		}
		resources := []jsonResource{}
		for name, data := range reg.archives {
			resources = append(resources, jsonResource{
				URL:          reg.baseURL + "/dl/" + name,
				Name:         name,
				Format:       "ZIP",
				Size:         int64(len(data)),
				LastModified: reg.lastModified[name],
			})
		}
		resp := map[string]any{
			"success": true,
			"result": map[string]any{
				"title":     "Patent bulk data",
				"resources": resources,
			},
		}
		json.NewEncoder(w).Encode(resp)

	case r.URL.Path == "/listing":
		fmt.Fprint(w, "<html><body>")
		for name := range reg.archives {
			fmt.Fprintf(w, `<a href="/dl/%s">%s</a>`, name, name)
		}
		fmt.Fprint(w, "</body></html>")

	default:
		name := filepath.Base(r.URL.Path)
		data, ok := reg.archives[name]
		if !ok {
			http.NotFound(w, r)
			return
		}
		reg.downloads[name]++
		w.Write(data)
	}
}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, store.InitializeSchema(db))
	return db
}

func newTestPipeline(t *testing.T, reg *registry, db *sql.DB, cacheDir string, listingURLs []string) (*Pipeline, *progress.Reporter) {
	t.Helper()
	logger := testLogger()
	reporter := progress.NewReporter()
	p := New(
		catalog.NewClient(reg.baseURL, "test-dataset", logger),
		fetchcache.New(cacheDir, logger),
		archive.NewExtractor(filepath.Join(t.TempDir(), "scratch"), logger),
		parse.NewParser(logger),
		db,
		reporter,
		listingURLs,
		logger,
	)
	return p, reporter
}

func sampleArchive(t *testing.T) []byte {
	t.Helper()
	return buildZip(t, map[string]string{
		"pt_main_1.csv": mainHeader + "\n" +
			"CA123|2020-01-15|2022-06-30|GR|PC|Solar Widget|Presse solaire\n",
		"pt_abstract_1.csv": abstractHeader + "\n" +
			"CA123|1|EN|EN|An improved solar widget.\n",
	})
}

func TestRunImportsAndSecondRunHitsCache(t *testing.T) {
	reg := newRegistry(t)
	reg.setArchive("pt_1.zip", "2024-01-01", sampleArchive(t))
	db := openTestDB(t)
	cacheDir := t.TempDir()
	ctx := context.Background()

	p, reporter := newTestPipeline(t, reg, db, cacheDir, nil)
	require.NoError(t, p.Run(ctx, false))

	detail, err := store.GetPatentDetail(ctx, db, "CA123")
	require.NoError(t, err)
	assert.Equal(t, "2020-01-15", detail.FilingDate)
	assert.Equal(t, "Solar Widget", detail.TitleEN)
	require.Len(t, detail.Abstracts, 1)
	assert.Equal(t, "EN", detail.Abstracts[0].Language)

	snap := reporter.Status()
	assert.Equal(t, 1, snap.Completed)
	assert.Zero(t, snap.Cached)
	assert.Empty(t, snap.Failed)
	assert.Equal(t, 1, reg.downloadCount("pt_1.zip"))

	// Second run: unchanged signature, already imported. No download, no
	// new rows, resource observed from cache.
	p2, reporter2 := newTestPipeline(t, reg, db, cacheDir, nil)
	require.NoError(t, p2.Run(ctx, false))

	snap2 := reporter2.Status()
	assert.Equal(t, 1, snap2.Completed)
	assert.Equal(t, 1, snap2.Cached)
	assert.Equal(t, 1, reg.downloadCount("pt_1.zip"))

	counts, err := store.TableCounts(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts["patents"])
	assert.Equal(t, int64(1), counts["patent_abstracts"])
}

func TestRunForceReimportsWithoutDuplicates(t *testing.T) {
	reg := newRegistry(t)
	reg.setArchive("pt_1.zip", "2024-01-01", sampleArchive(t))
	db := openTestDB(t)
	cacheDir := t.TempDir()
	ctx := context.Background()

	p, _ := newTestPipeline(t, reg, db, cacheDir, nil)
	require.NoError(t, p.Run(ctx, false))
	require.NoError(t, p.Run(ctx, true))

	assert.Equal(t, 1, reg.downloadCount("pt_1.zip"))

	var imports int
	require.NoError(t, db.QueryRow(
		"SELECT COUNT(*) FROM import_log WHERE event = ?", store.EventImportEnd).Scan(&imports))
	assert.Equal(t, 2, imports)

	counts, err := store.TableCounts(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts["patents"])
	assert.Equal(t, int64(1), counts["patent_abstracts"])
}

func TestRunRedownloadsOnChangedSignature(t *testing.T) {
	reg := newRegistry(t)
	reg.setArchive("pt_1.zip", "2024-01-01", sampleArchive(t))
	db := openTestDB(t)
	cacheDir := t.TempDir()
	ctx := context.Background()

	p, _ := newTestPipeline(t, reg, db, cacheDir, nil)
	require.NoError(t, p.Run(ctx, false))

	updated := buildZip(t, map[string]string{
		"pt_main_1.csv": mainHeader + "\n" +
			"CA123|2020-01-15|2022-06-30|LA|PC|Solar Widget|Presse solaire\n",
	})
	reg.setArchive("pt_1.zip", "2024-02-01", updated)

	p2, _ := newTestPipeline(t, reg, db, cacheDir, nil)
	require.NoError(t, p2.Run(ctx, false))

	assert.Equal(t, 2, reg.downloadCount("pt_1.zip"))

	detail, err := store.GetPatentDetail(ctx, db, "CA123")
	require.NoError(t, err)
	assert.Equal(t, "LA", detail.StatusCode)
}

func TestRunIsolatesBadResource(t *testing.T) {
	reg := newRegistry(t)
	reg.setArchive("pt_good.zip", "2024-01-01", sampleArchive(t))
	reg.setArchive("pt_bad.zip", "2024-01-01", []byte("this is not a zip archive"))
	db := openTestDB(t)
	ctx := context.Background()

	p, reporter := newTestPipeline(t, reg, db, t.TempDir(), nil)
	err := p.Run(ctx, false)
	require.Error(t, err)

	// The good resource still imported in full.
	_, err = store.GetPatentDetail(ctx, db, "CA123")
	require.NoError(t, err)

	snap := reporter.Status()
	assert.Equal(t, 1, snap.Completed)
	require.Len(t, snap.Failed, 1)
	assert.Equal(t, "pt_bad.zip", snap.Failed[0].Filename)

	var errEvents int
	require.NoError(t, db.QueryRow(
		"SELECT COUNT(*) FROM import_log WHERE event = ? AND filename = ?",
		store.EventError, "pt_bad.zip").Scan(&errEvents))
	assert.Equal(t, 1, errEvents)
}

func TestRunCatalogFailureAbortsBatch(t *testing.T) {
	reg := newRegistry(t)
	reg.setArchive("pt_1.zip", "2024-01-01", sampleArchive(t))
	reg.catalogDown = true
	db := openTestDB(t)

	p, _ := newTestPipeline(t, reg, db, t.TempDir(), nil)
	err := p.Run(context.Background(), false)
	assert.ErrorIs(t, err, catalog.ErrUnavailable)
	assert.Zero(t, reg.downloadCount("pt_1.zip"))
}

func TestRunFallsBackToListingScrape(t *testing.T) {
	reg := newRegistry(t)
	reg.setArchive("pt_1.zip", "", sampleArchive(t))
	reg.catalogDown = true
	db := openTestDB(t)
	ctx := context.Background()

	p, reporter := newTestPipeline(t, reg, db, t.TempDir(), []string{reg.baseURL + "/listing"})
	require.NoError(t, p.Run(ctx, false))

	assert.Equal(t, 1, reg.downloadCount("pt_1.zip"))
	assert.Equal(t, 1, reporter.Status().Completed)

	_, err := store.GetPatentDetail(ctx, db, "CA123")
	require.NoError(t, err)
}
