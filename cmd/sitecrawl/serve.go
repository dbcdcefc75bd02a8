package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"sitecrawl/internal/api"
	"sitecrawl/internal/config"
	"sitecrawl/internal/status"
)

// newServeCmd starts the control-plane HTTP server: the engine is built
// and configured but Navigate is only triggered via POST /navigate,
// letting an operator inspect scope/action wiring before committing.
func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the crawl control-plane HTTP server",
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

			server := api.NewServer(engine, logger)
			httpSrv := &http.Server{Addr: cfg.Server.Addr, Handler: server}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("control api listening", "addr", cfg.Server.Addr)
				errCh <- httpSrv.ListenAndServe()
			}()

			if cfg.Server.MetricsAddr != "" && cfg.Server.MetricsAddr != cfg.Server.Addr {
				go func() {
					if err := status.Serve(ctx, cfg.Server.MetricsAddr, logger); err != nil {
						logger.Error("metrics server stopped", "err", err)
					}
				}()
			}

			select {
			case <-ctx.Done():
				return httpSrv.Close()
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			}
		},
	}
	return cmd
}
