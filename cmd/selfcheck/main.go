// Command selfcheck scores sentences of a generated passage for
// hallucination by asking multiple-choice questions about each sentence and
// comparing the answers against sampled passages.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/selfcheck-mqag/internal/config"
	"github.com/danielpatrickdp/selfcheck-mqag/internal/logging"
)

// #region main
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// #endregion main

// #region root
// app carries the loaded configuration and logger to every subcommand.
type app struct {
	cfg    config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{logger: zap.NewNop()}
	var configPath, dbPath, logLevel string

	cmd := &cobra.Command{
		Use:           "selfcheck",
		Short:         "Sentence-level hallucination scoring with multiple-choice question answering",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if dbPath != "" {
				cfg.DBPath = dbPath
			}
			if logLevel != "" {
				cfg.LogLevel = logLevel
			}
			logger, err := logging.NewLogger(cfg.LogLevel)
			if err != nil {
				return err
			}
			a.cfg, a.logger = cfg, logger
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			_ = a.logger.Sync()
		},
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file")
	cmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database path (overrides config)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug|info|warn|error (overrides config)")

	cmd.AddCommand(
		newPredictCmd(a),
		newRescoreCmd(a),
		newInspectCmd(a),
		newServeCmd(a),
	)
	return cmd
}

// #endregion root
