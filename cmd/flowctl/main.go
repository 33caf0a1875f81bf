// Package main provides flowctl, a command-line client for the decision editor API.
package main

import (
	"context"
	"os"

	cli "github.com/urfave/cli/v3"
)

func main() {
	if err := newApp().Run(context.Background(), os.Args); err != nil {
		errorf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:                  "flowctl",
		Usage:                 "Inspect and manage decision flows and rules",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "api-url",
				Usage:   "Base URL of the editor API",
				Value:   "http://localhost:3001/api",
				Sources: cli.EnvVars("FLOWCTL_API_URL"),
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print raw JSON instead of tables",
			},
		},
		Commands: []*cli.Command{
			HealthCommand(),
			FlowsCommand(),
			RulesCommand(),
		},
	}
}
