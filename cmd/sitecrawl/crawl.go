package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"sitecrawl/internal/config"
)

// newCrawlCmd runs a single crawl to completion, blocking until the
// producer loop drains and the engine shuts down or the process is
// interrupted.
func newCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Run a crawl to completion",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger := setupLogger(cfg.Logging)

			engine, err := buildEngine(cfg, logger)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			if err := engine.Navigate(ctx); err != nil {
				return fmt.Errorf("crawl stopped with error: %w", err)
			}
			logger.Info("crawl complete", "summary", engine.CrawlProgress())
			return nil
		},
	}
	return cmd
}
