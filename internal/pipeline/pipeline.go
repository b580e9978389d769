// Package pipeline drives the full ingestion batch: discover resources,
// ensure local copies, extract, parse, and write, one resource at a time.
// Only a catalog failure aborts the run; every other failure is local to
// its resource and the batch continues.
package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nben/cipofetch/internal/archive"
	"github.com/nben/cipofetch/internal/catalog"
	"github.com/nben/cipofetch/internal/fetchcache"
	"github.com/nben/cipofetch/internal/parse"
	"github.com/nben/cipofetch/internal/progress"
	"github.com/nben/cipofetch/internal/store"
)

// Pipeline wires the ingestion stages together. The store handle is owned
// by the caller; the pipeline only borrows it for the run.
type Pipeline struct {
	catalog     *catalog.Client
	cache       *fetchcache.Cache
	extractor   *archive.Extractor
	parser      *parse.Parser
	writer      *store.Writer
	db          *sql.DB
	reporter    *progress.Reporter
	listingURLs []string
	logger      *slog.Logger
}

func New(
	cat *catalog.Client,
	cache *fetchcache.Cache,
	extractor *archive.Extractor,
	parser *parse.Parser,
	db *sql.DB,
	reporter *progress.Reporter,
	listingURLs []string,
	logger *slog.Logger,
) *Pipeline {
	return &Pipeline{
		catalog:     cat,
		cache:       cache,
		extractor:   extractor,
		parser:      parser,
		writer:      store.NewWriter(db),
		db:          db,
		reporter:    reporter,
		listingURLs: listingURLs,
		logger:      logger,
	}
}

// Run executes one full batch. force re-imports resources that already have
// a completed import. The returned error joins all per-resource failures;
// a catalog failure is returned alone and nothing is downloaded.
func (p *Pipeline) Run(ctx context.Context, force bool) error {
	start := time.Now()
	p.logger.Info("Starting ingestion run.", slog.Bool("force", force))

	resources, err := p.discover(ctx)
	if err != nil {
		return err
	}

	p.reporter.BatchStarted(len(resources))
	defer p.reporter.BatchFinished()

	filenames := make([]string, len(resources))
	for i, res := range resources {
		filenames[i] = res.Filename
		store.LogEvent(ctx, p.db, res.Filename, store.EventDiscovered, res.URL, 0)
	}
	p.logger.Info("Resources discovered.", slog.Int("count", len(resources)))

	imported, err := store.ImportedSet(ctx, p.db, filenames)
	if err != nil {
		return fmt.Errorf("check imported resources: %w", err)
	}

	var runErrors error
	for _, res := range resources {
		select {
		case <-ctx.Done():
			p.logger.Warn("Cancelled between resources.")
			return errors.Join(runErrors, ctx.Err())
		default:
		}

		skipImported := imported[res.Filename] && !force
		if err := p.processResource(ctx, res, skipImported); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return errors.Join(runErrors, err)
			}
			p.logger.Error("Resource failed, continuing batch.",
				slog.String("resource", res.Filename), "error", err)
			p.reporter.ResourceFailed(res.Filename, err.Error())
			store.LogEvent(ctx, p.db, res.Filename, store.EventError, err.Error(), 0)
			runErrors = errors.Join(runErrors, fmt.Errorf("resource %s: %w", res.Filename, err))
			continue
		}
		p.reporter.ResourceCompleted(res.Filename)
	}

	if runErrors != nil {
		p.logger.Warn("Ingestion run finished with failures.",
			slog.Duration("duration", time.Since(start).Round(time.Second)))
	} else {
		p.logger.Info("Ingestion run finished.",
			slog.Duration("duration", time.Since(start).Round(time.Second)))
	}
	return runErrors
}

// discover lists resources from the catalog, falling back to scraping the
// configured listing pages when the catalog is unreachable.
func (p *Pipeline) discover(ctx context.Context) ([]catalog.Resource, error) {
	resources, err := p.catalog.List(ctx)
	if err == nil {
		return resources, nil
	}
	if len(p.listingURLs) == 0 {
		return nil, err
	}
	p.logger.Warn("Catalog unavailable, falling back to listing scrape.", "error", err)
	scraped, scrapeErr := p.catalog.ScrapeListings(ctx, p.listingURLs)
	if scrapeErr != nil {
		return nil, errors.Join(err, scrapeErr)
	}
	return scraped, nil
}

// processResource runs one resource end to end: fetch, extract, parse, and
// commit. skipImported short-circuits after a cache hit when the resource
// already completed an import; a changed signature forces a fresh download
// and re-import regardless. Scratch files are removed on the way out.
func (p *Pipeline) processResource(ctx context.Context, res catalog.Resource, skipImported bool) error {
	l := p.logger.With(slog.String("resource", res.Filename))
	p.reporter.ResourceStarted(res.Filename)

	store.LogEvent(ctx, p.db, res.Filename, store.EventDownloadStart, res.URL, 0)
	arch, hit, err := p.cache.EnsureLocal(ctx, res)
	if err != nil {
		return err
	}
	if hit {
		p.reporter.ResourceCached(res.Filename)
		store.LogEvent(ctx, p.db, res.Filename, store.EventSkipDownload, "cache hit", 0)
		if skipImported {
			l.Debug("Resource unchanged and already imported, skipping.")
			return nil
		}
	} else {
		store.LogEvent(ctx, p.db, res.Filename, store.EventDownloadEnd, arch.Path, 0)
	}

	files, err := p.extractor.Extract(ctx, arch.Path)
	if err != nil {
		return err
	}
	defer p.extractor.Cleanup(arch.Path)

	return p.importResource(ctx, res.Filename, files, l)
}

// importResource writes every extracted file's records inside one
// transaction per source resource.
func (p *Pipeline) importResource(ctx context.Context, resourceName string, files map[parse.Table]string, l *slog.Logger) error {
	store.LogEvent(ctx, p.db, resourceName, store.EventImportStart, "", 0)

	tx, err := p.writer.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var total int64
	for _, table := range parse.AllTables {
		path, ok := files[table]
		if !ok {
			continue
		}
		stats, err := p.parser.ParseFile(ctx, table, path, func(rec parse.Record) error {
			return tx.Write(ctx, rec)
		})
		p.reporter.RecordsWritten(string(table), stats.Records)
		p.reporter.MalformedRows(resourceName, stats.Malformed)
		if err != nil {
			return fmt.Errorf("import table %s: %w", table, err)
		}
		total += int64(stats.Records)
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	store.LogEvent(ctx, p.db, resourceName, store.EventImportEnd, "", total)
	l.Info("Resource imported.", slog.Int64("records", total))
	return nil
}
