package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	appLog "whatson/internal/log"
	"whatson/internal/model"
	"whatson/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server (and the scheduled purge, if enabled)",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) error {
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

	// Scheduled purge of stale partitions. Failures are logged by the
	// supervisor here; the next scheduled run simply tries again.
	if cfg.Cache.PurgeEnabled {
		c := cron.New(cron.WithLocation(loc))
		_, err := c.AddFunc(cfg.Cache.PurgeCron, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()

			stamp := model.NewDateStamp(time.Now().In(loc))
			deleted, err := pipe.PurgeStale(ctx, stamp)
			if err != nil {
				appLog.Error("scheduled purge failed", err)
				return
			}
			appLog.Info("scheduled purge complete", "documents", deleted)
		})
		if err != nil {
			return err
		}
		c.Start()
		defer c.Stop()
		appLog.Info("purge scheduled", "cron", cfg.Cache.PurgeCron)
	}

	srv := &http.Server{
		Addr:    cfg.Listen,
		Handler: web.NewServer(pipe).Handler(),
	}

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+cfg.Listen, "source", cfg.Source.URL, "mode", cfg.Source.Mode)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			appLog.Error("server shutdown failed", err)
		}
	}

	// Let in-flight background cache writes finish before closing the store.
	pipe.Wait()
	appLog.Info("whatson exiting")
	return nil
}
