package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/dukex/decision-editor/pkg/simulation"
	"github.com/urfave/cli/v3"
)

func RunAPICommand() *cli.Command {
	return &cli.Command{
		Name:    "run",
		Aliases: []string{"r"},
		Usage:   "Start the API server",
		Action:  runAPI,
	}
}

func runAPI(ctx context.Context, command *cli.Command) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	env, err := setup(ctx, command, "api")
	if err != nil {
		return err
	}
	defer env.close()

	env.logger.InfoContext(ctx, "Initializing Decision Editor API", "storage", env.storage.Info().Provider)

	forwarder := simulation.NewForwarder(env.config.Simulation.BaseURL, env.config.Simulation.Timeout, env.logger)

	api := NewAPI(env.logger, env.config, env.storage, forwarder)

	if err := api.Start(ctx); err != nil {
		env.logger.ErrorContext(ctx, "Failed to start API", "error", err)

		return err
	}

	return nil
}
