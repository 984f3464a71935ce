package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/copyleftdev/brokerlogin/internal/notify"
	"github.com/copyleftdev/brokerlogin/internal/runs"
	"github.com/copyleftdev/brokerlogin/internal/server"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve an HTTP API that triggers runs on demand",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}

			notifier := notify.New(cfg.Notify, logger)
			manager := runs.NewManager(newExecutor(cfg, notifier, logger), cfg.Accounts, cfg.Server.RunTimeout, logger)
			srv := server.NewServer(cfg, manager, logger)

			errCh := make(chan error, 1)
			go func() {
				errCh <- srv.Start()
			}()

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(quit)

			select {
			case err := <-errCh:
				if err != nil {
					return err
				}
			case sig := <-quit:
				logger.Info("Shutdown signal received", zap.String("signal", sig.String()))
			}

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			if err := srv.Shutdown(ctx); err != nil {
				logger.Error("Server shutdown failed", zap.Error(err))
			}
			if err := manager.Shutdown(ctx); err != nil {
				logger.Error("Run manager shutdown failed", zap.Error(err))
			}
			return nil
		},
	}
}
