package config

import (
	"fmt"

	"github.com/spf13/viper"
)

const (
	// Default CKAN API root for open.canada.ca.
	DefaultCatalogURL = "https://open.canada.ca/data/api/3"

	// Dataset ID of the CIPO bulk patent data package on open.canada.ca.
	DefaultDatasetID = "fe1dfbb9-0fc3-42ca-b2a9-6ca4c05dbac9"
)

// Config holds application settings shared by the CLI, pipeline, and web server.
type Config struct {
	CacheDir   string `mapstructure:"cache_dir"`
	ScratchDir string `mapstructure:"scratch_dir"`
	ExportDir  string `mapstructure:"export_dir"`
	DbPath     string `mapstructure:"db_path"`
	CatalogURL string `mapstructure:"catalog_url"`
	DatasetID  string `mapstructure:"dataset_id"`
	// Optional extra HTML directory listings scraped for .zip resources in
	// addition to the CKAN catalog.
	ListingURLs []string `mapstructure:"listing_urls"`
	ListenAddr  string   `mapstructure:"listen_addr"`
}

// Load merges an optional YAML config file and CIPOFETCH_* env vars into cfg.
// Values already set on cfg (typically from flags) act as defaults; file and
// env override them.
func Load(cfgFile string, cfg *Config) error {
	v := viper.New()
	v.SetDefault("cache_dir", cfg.CacheDir)
	v.SetDefault("scratch_dir", cfg.ScratchDir)
	v.SetDefault("export_dir", cfg.ExportDir)
	v.SetDefault("db_path", cfg.DbPath)
	v.SetDefault("catalog_url", cfg.CatalogURL)
	v.SetDefault("dataset_id", cfg.DatasetID)
	v.SetDefault("listing_urls", cfg.ListingURLs)
	v.SetDefault("listen_addr", cfg.ListenAddr)

	v.SetEnvPrefix("CIPOFETCH")
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config file %s: %w", cfgFile, err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}
	return nil
}
