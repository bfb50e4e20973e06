package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ecs-stress: %+v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ecs-stress",
		Short: "Stress the ECS scheduler and singleton registry",
		Long: `Run a frame loop that moves and churns entities, spawns duplicate
singleton entities every frame and unloads the scene periodically, then print
a report with frame timings, memory usage and singleton registry state.

Every flag can also be set through the environment with the ECS_STRESS_
prefix, or through a YAML file passed with --config.

Examples:
  # Ten second run with the defaults
  ecs-stress

  # Fixed number of frames, scene unload every 30 frames
  ecs-stress --frames 600 --unload-every 30

  # Environment overrides
  ECS_STRESS_ENTITIES=50000 ECS_STRESS_LOG_LEVEL=debug ecs-stress`,
		SilenceUsage: true,
		RunE:         runStress,
	}
	addFlags(cmd)
	return cmd
}

func runStress(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	ctx, cancelRun := context.WithTimeout(ctx, cfg.Duration)
	defer cancelRun()

	logger.Info("starting stress test",
		zap.Duration("duration", cfg.Duration),
		zap.Int("frames", cfg.Frames),
		zap.Int("entities", cfg.Entities),
		zap.Int("duplicates", cfg.Duplicates),
		zap.Int("unload_every", cfg.UnloadEvery),
	)

	sim := newSimulation(cfg, logger)
	report := sim.Run(ctx)

	fmt.Fprintln(cmd.OutOrStdout(), "\n--- Stress Test Report ---")
	if err := report.Generate(cmd.OutOrStdout()); err != nil {
		return errors.Wrap(err, "generating report")
	}
	fmt.Fprintln(cmd.OutOrStdout(), "--- End of Report ---")

	logger.Info("stress test complete", zap.Int64("updates", report.TotalUpdates))
	return nil
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid log level %q", level)
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = lvl
	cfg.OutputPaths = []string{"stderr"}
	logger, err := cfg.Build()
	if err != nil {
		return nil, errors.Wrap(err, "building logger")
	}
	return logger, nil
}
