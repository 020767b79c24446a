// Command vidioai edits videos from free-text commands. It serves the
// HTTP API, consumes commands from RabbitMQ and runs one-off operations.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/chicogong/vidioai/pkg/config"
	"github.com/chicogong/vidioai/pkg/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "vidioai",
		Short:         "Edit videos with free-text commands",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			if cmd.Flags().Changed("log-level") {
				cfg.Log.Level, _ = cmd.Flags().GetString("log-level")
			}
			logging.Init(cfg.Log.Level, cfg.Log.Pretty)
			cmd.SetContext(config.WithConfig(cmd.Context(), cfg))
			return nil
		},
	}

	root.SetOut(os.Stdout)
	root.SetErr(os.Stderr)

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default ./vidioai.yaml)")
	root.PersistentFlags().String("log-level", "info", "Log level")

	root.AddCommand(
		newServeCmd(),
		newWorkerCmd(),
		newParseCmd(),
		newApplyCmd(),
		newQuizCmd(),
	)
	return root
}
