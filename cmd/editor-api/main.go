// Package main provides the decision editor API server and its maintenance commands.
package main

import (
	"context"
	"os"

	cli "github.com/urfave/cli/v3"
)

func main() {
	cmd := &cli.Command{
		Name:                  "editor-api",
		Usage:                 "Serve and maintain decision flows and rules",
		EnableShellCompletion: true,
		Flags:                 configFlags(),
		Commands: []*cli.Command{
			RunAPICommand(),
			ExportCommand(),
			ImportCommand(),
			ClearCommand(),
		},
		Action: runAPI,
	}

	err := cmd.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
