// Package archive expands downloaded zip archives into a scratch directory
// and classifies each member file by the patent table it feeds.
package archive

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/nben/cipofetch/internal/parse"
)

// ErrCorruptArchive indicates an archive that cannot be opened, or that
// contains no recognisable member files.
var ErrCorruptArchive = errors.New("corrupt archive")

// Extractor expands archives into per-archive scratch subdirectories.
type Extractor struct {
	scratchDir string
	logger     *slog.Logger
}

func NewExtractor(scratchDir string, logger *slog.Logger) *Extractor {
	return &Extractor{scratchDir: scratchDir, logger: logger}
}

// Extract expands the archive at path and returns the extracted member files
// keyed by the table each one feeds. Members whose names match no known
// table are logged and skipped; an archive where nothing matches is corrupt.
func (e *Extractor) Extract(ctx context.Context, path string) (map[parse.Table]string, error) {
	l := e.logger.With(slog.String("archive", filepath.Base(path)))

	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrCorruptArchive, path, err)
	}
	defer zr.Close()

	destDir := filepath.Join(e.scratchDir, strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, fmt.Errorf("create scratch dir %s: %w", destDir, err)
	}

	extracted := make(map[parse.Table]string)
	for _, f := range zr.File {
		select {
		case <-ctx.Done():
			l.Warn("Cancelled during extraction.")
			return nil, ctx.Err()
		default:
		}
		if f.FileInfo().IsDir() {
			continue
		}
		table, ok := parse.ClassifyFilename(filepath.Base(f.Name))
		if !ok {
			l.Debug("Skipping unrecognised archive member.", slog.String("member", f.Name))
			continue
		}
		outPath := filepath.Join(destDir, filepath.Base(f.Name))
		if err := extractMember(f, outPath); err != nil {
			return nil, fmt.Errorf("%w: extract member %s: %w", ErrCorruptArchive, f.Name, err)
		}
		extracted[table] = outPath
		l.Debug("Extracted member.", slog.String("member", f.Name), slog.String("table", string(table)))
	}

	if len(extracted) == 0 {
		return nil, fmt.Errorf("%w: no recognisable member files in %s", ErrCorruptArchive, path)
	}
	l.Info("Archive extracted.", slog.Int("files", len(extracted)), slog.String("dest", destDir))
	return extracted, nil
}

func extractMember(f *zip.File, outPath string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.Create(outPath)
	if err != nil {
		return err
	}
	_, copyErr := io.Copy(out, rc)
	closeErr := out.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		os.Remove(outPath)
		return err
	}
	return nil
}

// Cleanup removes the scratch subdirectory created for the given archive.
func (e *Extractor) Cleanup(archivePath string) {
	destDir := filepath.Join(e.scratchDir, strings.TrimSuffix(filepath.Base(archivePath), filepath.Ext(archivePath)))
	if err := os.RemoveAll(destDir); err != nil {
		e.logger.Warn("Failed to remove scratch dir.", "path", destDir, "error", err)
	}
}
