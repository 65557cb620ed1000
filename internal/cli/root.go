// Package cli implements the whatson command-line interface.
package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"whatson/internal/config"
	"whatson/internal/image"
	appLog "whatson/internal/log"
	"whatson/internal/pipeline"
	"whatson/internal/scrape"
	"whatson/internal/store"
)

// Global flags
var (
	configPath string
	debug      bool
)

var rootCmd = &cobra.Command{
	Use:   "whatson",
	Short: "whatson – daily events scrape-and-cache service",
	Long:  `Serves "what events are happening today", caching one scraped result set per calendar day.`,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		if debug {
			appLog.SetLevel(appLog.LevelDebug)
		}
	},
}

// Execute adds all child commands to the root command and runs it.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "/etc/whatson/config.yaml", "Path to config file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
}

// loadConfig loads and normalizes the configuration for a command run.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config %q: %w", configPath, err)
	}
	return cfg, nil
}

// openStore opens the SQLite cache store from config.
func openStore(cfg *config.Config) (*store.Store, error) {
	st, err := store.Open(cfg.Cache.Path)
	if err != nil {
		return nil, fmt.Errorf("open cache store %q: %w", cfg.Cache.Path, err)
	}
	return st, nil
}

// buildPipeline wires fetcher, enricher and store into a pipeline according
// to config. The caller owns the store handle.
func buildPipeline(cfg *config.Config, st *store.Store) (*pipeline.Pipeline, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", cfg.Timezone, err)
	}

	selectors := scrape.Selectors{
		Block:    cfg.Source.Selectors.Block,
		Link:     cfg.Source.Selectors.Link,
		Image:    cfg.Source.Selectors.Image,
		Date:     cfg.Source.Selectors.Date,
		Title:    cfg.Source.Selectors.Title,
		Category: cfg.Source.Selectors.Category,
	}

	timeout := time.Duration(cfg.Source.TimeoutSeconds) * time.Second
	var fetcher pipeline.Fetcher
	switch cfg.Source.Mode {
	case "browser":
		fetcher = scrape.NewBrowserFetcher(cfg.Source.URL, selectors.Block, timeout)
	default:
		fetcher = scrape.NewFetcher(cfg.Source.URL, timeout)
	}

	enricher := image.NewEnricher(
		cfg.Image.MaxDimension,
		cfg.Image.Quality,
		time.Duration(cfg.Image.TimeoutSeconds)*time.Second,
	)

	return pipeline.New(st, fetcher, enricher, pipeline.Options{
		Selectors: selectors,
		Location:  loc,
		ChunkSize: cfg.Cache.ChunkSize,
		PageSize:  cfg.Cache.PageSize,
	}), nil
}
