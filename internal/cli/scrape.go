package cli

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/spf13/cobra"

	"whatson/internal/model"
)

var (
	scrapeNoCache bool
	scrapeSave    bool
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Run one ingestion cycle and print today's events as JSON",
	RunE:  runScrape,
}

func init() {
	scrapeCmd.Flags().BoolVar(&scrapeNoCache, "no-cache", false, "Skip the cache check and scrape fresh")
	scrapeCmd.Flags().BoolVar(&scrapeSave, "save", false, "Persist the scraped events to the cache")
	rootCmd.AddCommand(scrapeCmd)
}

func runScrape(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	pipe, err := buildPipeline(cfg, st)
	if err != nil {
		return err
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
	defer cancel()

	var (
		events []model.Event
		hit    bool
	)
	stamp := model.NewDateStamp(time.Now().In(loc))

	if scrapeNoCache {
		events, err = pipe.Fresh(ctx, stamp)
	} else {
		events, stamp, hit, err = pipe.Today(ctx)
	}
	if err != nil {
		return err
	}

	if scrapeSave && !hit {
		pipe.PersistAsync(stamp, events)
		pipe.Wait()
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		Events []model.Event `json:"events"`
	}{Events: events})
}
