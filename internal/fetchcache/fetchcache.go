// Package fetchcache keeps one local copy of each remote archive, keyed by
// resource filename, and skips re-downloading whenever the remote signature
// (size + last-modified) is unchanged. A JSON sidecar next to each cached
// file records the signature it was downloaded under.
package fetchcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nben/cipofetch/internal/catalog"
	"github.com/nben/cipofetch/internal/util"
)

// ErrDownloadFailed indicates an incomplete or failed transfer. The resource
// is skipped for this run; no partial file is left under the final cache name.
var ErrDownloadFailed = errors.New("download failed")

// Archive is a locally cached copy of a remote resource.
type Archive struct {
	Path     string
	Resource catalog.Resource
}

// sidecar is the persisted signature record per cached file.
type sidecar struct {
	URL          string `json:"url"`
	Size         int64  `json:"size"`
	LastModified string `json:"last_modified"`
	DownloadedAt string `json:"downloaded_at"`
}

// Cache manages the archive cache directory.
type Cache struct {
	dir    string
	client *http.Client
	logger *slog.Logger
}

func New(dir string, logger *slog.Logger) *Cache {
	return &Cache{dir: dir, client: util.DefaultHTTPClient(), logger: logger}
}

// EnsureLocal returns a local copy of the resource, downloading it if the
// cached copy is missing or stale. The bool return reports a cache hit
// (no network access performed).
func (c *Cache) EnsureLocal(ctx context.Context, res catalog.Resource) (Archive, bool, error) {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return Archive{}, false, fmt.Errorf("create cache dir %s: %w", c.dir, err)
	}

	finalPath := filepath.Join(c.dir, cacheKey(res.Filename))
	l := c.logger.With(slog.String("resource", res.Filename), slog.String("path", finalPath))

	if c.isFresh(finalPath, res) {
		l.Debug("Cache hit, skipping download.")
		return Archive{Path: finalPath, Resource: res}, true, nil
	}

	l.Info("Downloading resource.", slog.String("url", res.URL))
	start := time.Now()
	if err := c.download(ctx, res, finalPath); err != nil {
		return Archive{}, false, err
	}
	l.Info("Download complete.", slog.Duration("duration", time.Since(start).Round(time.Millisecond)))
	return Archive{Path: finalPath, Resource: res}, false, nil
}

// isFresh reports whether a cached copy exists whose recorded signature
// matches the descriptor. Descriptors with no signature (scraped listings)
// accept any existing copy for the same URL.
func (c *Cache) isFresh(finalPath string, res catalog.Resource) bool {
	if _, err := os.Stat(finalPath); err != nil {
		return false
	}
	data, err := os.ReadFile(finalPath + ".json")
	if err != nil {
		return false
	}
	var sc sidecar
	if err := json.Unmarshal(data, &sc); err != nil {
		c.logger.Warn("Unreadable cache sidecar, treating as stale.", "path", finalPath, "error", err)
		return false
	}
	if sc.URL != res.URL {
		return false
	}
	if res.Size == 0 && res.LastModified == "" {
		return true
	}
	return sc.Size == res.Size && sc.LastModified == res.LastModified
}

// download streams the resource to a temporary name, verifies completeness,
// and atomically renames it into the cache. Only then is the sidecar written.
func (c *Cache) download(ctx context.Context, res catalog.Resource, finalPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, res.URL, nil)
	if err != nil {
		return fmt.Errorf("%w: create request: %w", ErrDownloadFailed, err)
	}
	req.Header.Set("Accept", "application/zip,application/octet-stream,*/*")

	body, contentLength, err := util.Fetch(c.client, req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDownloadFailed, err)
	}
	defer body.Close()

	tmpPath := finalPath + ".partial"
	out, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("%w: create temp file %s: %w", ErrDownloadFailed, tmpPath, err)
	}

	written, copyErr := io.Copy(out, body)
	closeErr := out.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: write %s: %w", ErrDownloadFailed, tmpPath, err)
	}

	expected := res.Size
	if expected == 0 {
		expected = contentLength
	}
	if expected > 0 && written != expected {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: incomplete transfer of %s: got %d bytes, expected %d", ErrDownloadFailed, res.URL, written, expected)
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: rename into cache: %w", ErrDownloadFailed, err)
	}

	sc := sidecar{
		URL:          res.URL,
		Size:         res.Size,
		LastModified: res.LastModified,
		DownloadedAt: time.Now().UTC().Format(time.RFC3339),
	}
	data, err := json.Marshal(sc)
	if err != nil {
		return fmt.Errorf("marshal sidecar for %s: %w", finalPath, err)
	}
	if err := os.WriteFile(finalPath+".json", data, 0o644); err != nil {
		return fmt.Errorf("write sidecar for %s: %w", finalPath, err)
	}
	return nil
}

// Stats summarizes the cache directory for status displays.
func (c *Cache) Stats() (files int, totalBytes int64, err error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, 0, nil
		}
		return 0, 0, fmt.Errorf("read cache dir %s: %w", c.dir, err)
	}
	for _, e := range entries {
		if e.IsDir() || strings.HasSuffix(e.Name(), ".json") || strings.HasSuffix(e.Name(), ".partial") {
			continue
		}
		info, infoErr := e.Info()
		if infoErr != nil {
			continue
		}
		files++
		totalBytes += info.Size()
	}
	return files, totalBytes, nil
}

// cacheKey maps a resource filename to a stable cache entry name.
func cacheKey(filename string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, filename)
}
