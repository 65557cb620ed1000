package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"whatson/internal/model"
)

var (
	purgeAll      bool
	purgePageSize int
)

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete stale cache partitions in bounded pages",
	Long: `Deletes cached event documents partition by partition, in pages of at
most --page-size documents, each page removed in one transaction. Today's
partition is kept unless --all is given. Safe to run on an empty cache.`,
	RunE: runPurge,
}

func init() {
	purgeCmd.Flags().BoolVar(&purgeAll, "all", false, "Also delete today's partition")
	purgeCmd.Flags().IntVar(&purgePageSize, "page-size", 0, "Documents per delete batch (default from config)")
	rootCmd.AddCommand(purgeCmd)
}

func runPurge(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if purgePageSize > 0 {
		cfg.Cache.PageSize = purgePageSize
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return fmt.Errorf("load timezone %q: %w", cfg.Timezone, err)
	}
	stamp := model.NewDateStamp(time.Now().In(loc))

	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
	defer cancel()

	total := 0
	keys, err := st.Partitions(ctx)
	if err != nil {
		return err
	}
	for _, key := range keys {
		if !purgeAll && key == stamp.Formatted {
			continue
		}
		deleted, err := st.DeletePartition(ctx, key, cfg.Cache.PageSize)
		total += deleted
		if err != nil {
			return fmt.Errorf("purge partition %q: %w", key, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "purged %s: %d documents\n", key, deleted)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "done: %d documents removed\n", total)
	return nil
}
