package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nben/cipofetch/internal/archive"
	"github.com/nben/cipofetch/internal/catalog"
	"github.com/nben/cipofetch/internal/config"
	"github.com/nben/cipofetch/internal/fetchcache"
	"github.com/nben/cipofetch/internal/parse"
	"github.com/nben/cipofetch/internal/pipeline"
	"github.com/nben/cipofetch/internal/progress"
	"github.com/nben/cipofetch/internal/store"
)

var (
	// Flag values. Flags act as defaults; a config file and CIPOFETCH_*
	// environment variables can override them.
	cfgFile     string
	cacheDir    string
	scratchDir  string
	exportDir   string
	dbPath      string
	catalogURL  string
	datasetID   string
	listingURLs []string
	listenAddr  string
	logFormat   string
	logLevel    string
	logOutput   string

	// Populated in PersistentPreRunE.
	rootLogger *slog.Logger
	dbConn     *sql.DB
	appConfig  config.Config
)

var rootCmd = &cobra.Command{
	Use:   "cipofetch",
	Short: "Fetch, store, and analyze Canadian patent bulk data.",
	Long: `cipofetch downloads the CIPO patent bulk datasets published through the
open.canada.ca catalog, parses the pipe-delimited archive files into a
DuckDB store, and serves browse and analysis interfaces over the result.

The primary command is 'fetch', which runs the full ingestion pipeline.
'serve' exposes the HTTP API, 'menu' starts the interactive terminal menu,
and the remaining commands query or export the populated store.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var level slog.Level
		switch strings.ToLower(logLevel) {
		case "debug":
			level = slog.LevelDebug
		case "info":
			level = slog.LevelInfo
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		default:
			level = slog.LevelInfo
		}

		var logWriter io.Writer = os.Stderr
		switch strings.ToLower(logOutput) {
		case "", "stderr":
		case "stdout":
			logWriter = os.Stdout
		default:
			f, err := os.OpenFile(logOutput, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
			if err != nil {
				return fmt.Errorf("failed to open log file %s: %w", logOutput, err)
			}
			logWriter = f
		}

		opts := &slog.HandlerOptions{Level: level}
		var handler slog.Handler
		if logFormat == "json" {
			handler = slog.NewJSONHandler(logWriter, opts)
		} else {
			handler = slog.NewTextHandler(logWriter, opts)
		}
		rootLogger = slog.New(handler)
		slog.SetDefault(rootLogger)

		appConfig = config.Config{
			CacheDir:    cacheDir,
			ScratchDir:  scratchDir,
			ExportDir:   exportDir,
			DbPath:      dbPath,
			CatalogURL:  catalogURL,
			DatasetID:   datasetID,
			ListingURLs: listingURLs,
			ListenAddr:  listenAddr,
		}
		if err := config.Load(cfgFile, &appConfig); err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		rootLogger.Debug("Configuration loaded.", slog.Any("config", appConfig))

		for _, d := range []string{appConfig.CacheDir, appConfig.ScratchDir} {
			if err := os.MkdirAll(d, 0o755); err != nil {
				return fmt.Errorf("failed to create directory %s: %w", d, err)
			}
		}
		if appConfig.DbPath != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(appConfig.DbPath), 0o755); err != nil {
				return fmt.Errorf("failed to create database directory: %w", err)
			}
		}

		rootLogger.Info("Opening DuckDB store.", slog.String("path", appConfig.DbPath))
		var err error
		dbConn, err = store.Open(appConfig.DbPath)
		if err != nil {
			return err
		}
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := dbConn.PingContext(pingCtx); err != nil {
			dbConn.Close()
			return fmt.Errorf("failed to ping duckdb database (%s): %w", appConfig.DbPath, err)
		}
		if err := store.InitializeSchema(dbConn); err != nil {
			dbConn.Close()
			return fmt.Errorf("failed to initialize database schema: %w", err)
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if dbConn != nil {
			if err := dbConn.Close(); err != nil {
				rootLogger.Error("Failed to close DuckDB connection cleanly.", "error", err)
			}
		}
		return nil
	},
}

// newPipeline wires the ingestion components against the shared store handle
// and reporter.
func newPipeline(reporter *progress.Reporter) *pipeline.Pipeline {
	cat := catalog.NewClient(appConfig.CatalogURL, appConfig.DatasetID, rootLogger)
	cache := fetchcache.New(appConfig.CacheDir, rootLogger)
	extractor := archive.NewExtractor(appConfig.ScratchDir, rootLogger)
	parser := parse.NewParser(rootLogger)
	return pipeline.New(cat, cache, extractor, parser, dbConn, reporter, appConfig.ListingURLs, rootLogger)
}

// Execute runs the root command. Called by main.
func Execute() {
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(menuCmd)
	rootCmd.AddCommand(analyseCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(statusCmd)

	if err := rootCmd.Execute(); err != nil {
		if rootLogger != nil {
			rootLogger.Error("Command execution failed.", "error", err)
		} else {
			fmt.Fprintf(os.Stderr, "Command execution failed: %v\n", err)
		}
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./cipofetch.yaml)")
	rootCmd.PersistentFlags().StringVar(&cacheDir, "cache-dir", "./patent_cache", "Directory for downloaded archives")
	rootCmd.PersistentFlags().StringVar(&scratchDir, "scratch-dir", "./patent_scratch", "Directory for extracted archive members")
	rootCmd.PersistentFlags().StringVar(&exportDir, "export-dir", "./patent_export", "Directory for Parquet exports")
	rootCmd.PersistentFlags().StringVarP(&dbPath, "db-path", "d", "./cnd_patents.duckdb", "Path to DuckDB database file (:memory: for in-memory)")
	rootCmd.PersistentFlags().StringVar(&catalogURL, "catalog-url", config.DefaultCatalogURL, "Base URL of the CKAN catalog API")
	rootCmd.PersistentFlags().StringVar(&datasetID, "dataset-id", config.DefaultDatasetID, "CKAN dataset ID for the patent bulk data")
	rootCmd.PersistentFlags().StringSliceVar(&listingURLs, "listing-url", nil, "Directory listing URLs to scrape when the catalog is unavailable")
	rootCmd.PersistentFlags().StringVar(&listenAddr, "listen", ":8080", "HTTP listen address for 'serve'")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log output format (text or json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logOutput, "log-output", "stderr", "Log output destination (stderr, stdout, or file path)")
}
