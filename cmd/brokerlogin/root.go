package main

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/copyleftdev/brokerlogin/internal/authtypes"
	"github.com/copyleftdev/brokerlogin/internal/browser"
	"github.com/copyleftdev/brokerlogin/internal/config"
	"github.com/copyleftdev/brokerlogin/internal/engine"
	"github.com/copyleftdev/brokerlogin/internal/notify"
	"github.com/copyleftdev/brokerlogin/internal/observability"
	"github.com/copyleftdev/brokerlogin/internal/runs"
)

var (
	cfgFile string
	cfg     *config.Config
	logger  = zap.NewNop()
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "brokerlogin",
		Short:         "Logs broker accounts in through the AlgoTest broker page.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.LoadConfig(cfgFile)
			if err != nil {
				return err
			}
			cfg = loaded
			logger = observability.InitializeLogger(cfg.Log)
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = logger.Sync()
		},
		RunE: runBatch,
	}
	root.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml)")

	root.AddCommand(newRunCmd(), newServeCmd(), newProbeCmd())
	return root
}

// newExecutor builds a fresh browser and engine for every run, since a
// shut down browser cannot be reused.
func newExecutor(cfg *config.Config, notifier notify.Notifier, logger *zap.Logger) runs.Executor {
	return runs.ExecutorFunc(func(ctx context.Context, accounts []authtypes.Account) (authtypes.RunLedger, error) {
		mgr, err := browser.NewManager(&cfg.Browser, logger)
		if err != nil {
			return authtypes.NewRunLedger(), &authtypes.FatalError{Stage: "launch browser", Err: err}
		}
		runner, err := engine.NewRunner(cfg, mgr, notifier, logger)
		if err != nil {
			_ = mgr.Shutdown(ctx)
			return authtypes.NewRunLedger(), err
		}
		return runner.Execute(ctx, accounts)
	})
}
