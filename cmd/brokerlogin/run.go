package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/copyleftdev/brokerlogin/internal/notify"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run one batch of broker logins and exit (default)",
		Args:  cobra.NoArgs,
		RunE:  runBatch,
	}
}

func runBatch(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	notifier := notify.New(cfg.Notify, logger)
	ledger, err := newExecutor(cfg, notifier, logger).Execute(ctx, cfg.Accounts)
	if err != nil {
		logger.Error("Run failed", zap.Error(err))
		return err
	}

	logger.Info("Run complete",
		zap.Strings("succeeded", ledger.Succeeded),
		zap.Strings("failed", ledger.Failed))
	return nil
}
