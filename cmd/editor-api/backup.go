package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dukex/decision-editor/pkg/services"
	"github.com/urfave/cli/v3"
)

var errConfirmationRequired = errors.New("refusing to clear storage without --yes")

func ExportCommand() *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Write every flow and rule to a JSON backup",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Backup file (stdout when empty)",
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			env, err := setup(ctx, command, "export")
			if err != nil {
				return err
			}
			defer env.close()

			backup, err := env.storage.Export(ctx)
			if err != nil {
				return err
			}

			if path := command.String("output"); path != "" {
				err = writeBackupFile(path, backup)
			} else {
				err = writeBackup(command.Root().Writer, backup)
			}

			if err != nil {
				return err
			}

			env.logger.InfoContext(ctx, "Exported backup", "flows", len(backup.Flows), "rules", len(backup.Rules))

			return nil
		},
	}
}

func writeBackupFile(path string, backup *services.Backup) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create backup file: %w", err)
	}

	defer func() {
		if closeErr := file.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close backup file: %w", closeErr)
		}
	}()

	return writeBackup(file, backup)
}

func ImportCommand() *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "Load flows and rules from a JSON backup",
		ArgsUsage: "<backup.json>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "replace",
				Usage: "Clear both collections before importing",
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			path := command.Args().First()
			if path == "" {
				return errors.New("a backup file is required")
			}

			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("failed to read backup file: %w", err)
			}

			backup, err := readBackup(data)
			if err != nil {
				return err
			}

			env, err := setup(ctx, command, "import")
			if err != nil {
				return err
			}
			defer env.close()

			result, err := env.storage.Import(ctx, backup, command.Bool("replace"))
			if err != nil {
				return err
			}

			_, err = fmt.Fprintf(command.Root().Writer, "imported %d flows and %d rules\n", result.Flows, result.Rules)

			return err
		},
	}
}

func ClearCommand() *cli.Command {
	return &cli.Command{
		Name:  "clear",
		Usage: "Delete every flow and rule",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "yes",
				Usage: "Confirm the deletion",
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			if !command.Bool("yes") {
				return errConfirmationRequired
			}

			env, err := setup(ctx, command, "clear")
			if err != nil {
				return err
			}
			defer env.close()

			return env.storage.Clear(ctx)
		},
	}
}

func writeBackup(w io.Writer, backup *services.Backup) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(backup); err != nil {
		return fmt.Errorf("failed to write backup: %w", err)
	}

	return nil
}

func readBackup(data []byte) (*services.Backup, error) {
	var backup services.Backup
	if err := json.Unmarshal(data, &backup); err != nil {
		return nil, fmt.Errorf("failed to parse backup: %w", err)
	}

	if backup.Version > services.BackupVersion {
		return nil, fmt.Errorf("backup version %d is newer than supported version %d", backup.Version, services.BackupVersion)
	}

	return &backup, nil
}
