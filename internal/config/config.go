package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// SelectorConfig holds the CSS selectors used to pull event fields out of the
// source markup. Defaults match the upstream listing page layout.
type SelectorConfig struct {
	// Block selects one repeated element per event.
	Block string `yaml:"block" env:"WHATSON_SELECTOR_BLOCK"`
	// Link selects the anchor inside a block whose href is the event link.
	Link string `yaml:"link" env:"WHATSON_SELECTOR_LINK"`
	// Image selects the img inside the link element.
	Image string `yaml:"image" env:"WHATSON_SELECTOR_IMAGE"`
	// Date, Title and Category select free-text fields inside a block.
	Date     string `yaml:"date" env:"WHATSON_SELECTOR_DATE"`
	Title    string `yaml:"title" env:"WHATSON_SELECTOR_TITLE"`
	Category string `yaml:"category" env:"WHATSON_SELECTOR_CATEGORY"`
}

// SourceConfig describes where and how raw event markup is fetched.
type SourceConfig struct {
	// URL is the listing page endpoint.
	URL string `yaml:"url" env:"WHATSON_SOURCE_URL"`
	// Mode selects the fetcher: "http" for a plain GET, "browser" for a
	// headless-browser fetch of pages that render their listings client-side.
	Mode string `yaml:"mode" env:"WHATSON_SOURCE_MODE"`
	// TimeoutSeconds bounds a single fetch.
	TimeoutSeconds int `yaml:"timeout_seconds" env:"WHATSON_SOURCE_TIMEOUT"`

	Selectors SelectorConfig `yaml:"selectors"`
}

// CacheConfig describes the document-store cache.
type CacheConfig struct {
	// Path is the SQLite database file.
	Path string `yaml:"path" env:"WHATSON_CACHE_PATH"`
	// ChunkSize bounds how many events go into one persisted document.
	ChunkSize int `yaml:"chunk_size" env:"WHATSON_CACHE_CHUNK_SIZE"`
	// PageSize bounds how many documents are deleted per batch during purge.
	PageSize int `yaml:"page_size" env:"WHATSON_CACHE_PAGE_SIZE"`
	// PurgeEnabled turns on the scheduled purge of stale partitions.
	// Off by default; purging can always be run explicitly via the CLI.
	PurgeEnabled bool `yaml:"purge_enabled" env:"WHATSON_CACHE_PURGE_ENABLED"`
	// PurgeCron is the cron schedule for the stale-partition purge.
	PurgeCron string `yaml:"purge_cron" env:"WHATSON_CACHE_PURGE_CRON"`
}

// ImageConfig describes image enrichment parameters.
type ImageConfig struct {
	// MaxDimension is the largest allowed width or height; larger images are
	// scaled down preserving aspect ratio.
	MaxDimension int `yaml:"max_dimension" env:"WHATSON_IMAGE_MAX_DIMENSION"`
	// Quality is the JPEG encode quality (1-100).
	Quality int `yaml:"quality" env:"WHATSON_IMAGE_QUALITY"`
	// TimeoutSeconds bounds a single image download.
	TimeoutSeconds int `yaml:"timeout_seconds" env:"WHATSON_IMAGE_TIMEOUT"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen" env:"WHATSON_LISTEN"`

	// Timezone is the IANA timezone used to compute the daily partition key.
	Timezone string `yaml:"timezone" env:"WHATSON_TIMEZONE"`

	Source SourceConfig `yaml:"source"`
	Cache  CacheConfig  `yaml:"cache"`
	Image  ImageConfig  `yaml:"image"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:   "127.0.0.1:8080",
		Timezone: "Europe/Warsaw",
		Source: SourceConfig{
			Mode:           "http",
			TimeoutSeconds: 15,
			Selectors: SelectorConfig{
				Block:    ".box",
				Link:     ".image",
				Image:    "img",
				Date:     ".date",
				Title:    ".title a",
				Category: ".category",
			},
		},
		Cache: CacheConfig{
			Path:         "./var/whatson.db",
			ChunkSize:    5,
			PageSize:     5,
			PurgeEnabled: false,
			PurgeCron:    "30 3 * * *",
		},
		Image: ImageConfig{
			MaxDimension:   600,
			Quality:        80,
			TimeoutSeconds: 15,
		},
	}
}

// Normalize fills in missing/zero values with defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	def := DefaultConfig()

	if c.Listen == "" {
		c.Listen = def.Listen
	}
	if c.Timezone == "" {
		c.Timezone = def.Timezone
	}

	switch c.Source.Mode {
	case "http", "browser":
		// ok
	default:
		c.Source.Mode = "http"
	}
	if c.Source.TimeoutSeconds <= 0 {
		c.Source.TimeoutSeconds = def.Source.TimeoutSeconds
	}
	if c.Source.Selectors.Block == "" {
		c.Source.Selectors.Block = def.Source.Selectors.Block
	}
	if c.Source.Selectors.Link == "" {
		c.Source.Selectors.Link = def.Source.Selectors.Link
	}
	if c.Source.Selectors.Image == "" {
		c.Source.Selectors.Image = def.Source.Selectors.Image
	}
	if c.Source.Selectors.Date == "" {
		c.Source.Selectors.Date = def.Source.Selectors.Date
	}
	if c.Source.Selectors.Title == "" {
		c.Source.Selectors.Title = def.Source.Selectors.Title
	}
	if c.Source.Selectors.Category == "" {
		c.Source.Selectors.Category = def.Source.Selectors.Category
	}

	if c.Cache.Path == "" {
		c.Cache.Path = def.Cache.Path
	}
	if c.Cache.ChunkSize <= 0 {
		c.Cache.ChunkSize = def.Cache.ChunkSize
	}
	if c.Cache.PageSize <= 0 {
		c.Cache.PageSize = def.Cache.PageSize
	}
	if c.Cache.PurgeCron == "" {
		c.Cache.PurgeCron = def.Cache.PurgeCron
	}

	if c.Image.MaxDimension <= 0 {
		c.Image.MaxDimension = def.Image.MaxDimension
	}
	if c.Image.Quality <= 0 || c.Image.Quality > 100 {
		c.Image.Quality = def.Image.Quality
	}
	if c.Image.TimeoutSeconds <= 0 {
		c.Image.TimeoutSeconds = def.Image.TimeoutSeconds
	}
}

// Load loads configuration from the given YAML path, then applies
// environment-variable overrides (WHATSON_* keys).
//
// Behavior:
//   - If the file does not exist, a default config is written there with
//     0600 perms and returned.
//   - If the file exists, it is unmarshaled and normalized.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		cfg = &Config{}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, fs.ErrNotExist):
		// First run: create default config file. Even if save fails, return
		// cfg with the error so the caller can decide.
		if saveErr := Save(path, cfg); saveErr != nil {
			return cfg, saveErr
		}
	default:
		return nil, err
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env overrides: %w", err)
	}
	cfg.Normalize()

	return cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Writes atomically via a temp file + rename with 0600 perms.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".whatson-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
