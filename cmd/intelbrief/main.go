package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"intelbrief.app/brief/common/id"
	"intelbrief.app/brief/common/logger"
	"intelbrief.app/brief/common/otel"
	"intelbrief.app/brief/core/config"
)

var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "intelbrief",
		Short:         "Collect the last day's updates and write a summarized brief to Obsidian",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBrief(cmd.Context(), configPath)
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the YAML config file")

	root.AddCommand(runCmd(&configPath))
	root.AddCommand(authCmd(&configPath))
	root.AddCommand(stateCmd(&configPath))

	return root
}

func runCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Fetch, summarize and write today's brief",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBrief(cmd.Context(), *configPath)
		},
	}
}

// bootstrap loads config and brings up telemetry, logging and ID
// generation. The returned cleanup flushes telemetry.
func bootstrap(ctx context.Context, configPath string) (config.Config, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, nil, err
	}

	// OTel must init before logger (logger uses the OTel provider in production)
	telemetry, err := otel.Setup(ctx, cfg.OTel)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("initializing otel: %w", err)
	}

	logger.Setup(cfg)

	if cfg.OTel.Enabled() {
		slog.DebugContext(ctx, "otel initialized", "endpoint", cfg.OTel.Endpoint)
	}

	if err := id.Init(1); err != nil {
		return config.Config{}, nil, fmt.Errorf("initializing id generator: %w", err)
	}

	cleanup := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
	}
	return cfg, cleanup, nil
}

func signalContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}
