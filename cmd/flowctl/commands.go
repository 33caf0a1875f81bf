package main

import (
	"context"
	"errors"

	"github.com/dukex/decision-editor/pkg/client"
	"github.com/dukex/decision-editor/pkg/log"
	"github.com/dukex/decision-editor/pkg/models"
	cli "github.com/urfave/cli/v3"
)

func newClient(command *cli.Command) *client.Client {
	return client.New(command.String("api-url"), client.WithLogger(log.WithModule("flowctl")))
}

func byNameFlag() cli.Flag {
	return &cli.BoolFlag{
		Name:    "by-name",
		Aliases: []string{"n"},
		Usage:   "Address the rule by name instead of id",
	}
}

func HealthCommand() *cli.Command {
	return &cli.Command{
		Name:  "health",
		Usage: "Check the API and its storage backend",
		Action: func(ctx context.Context, command *cli.Command) error {
			c := newClient(command)
			out := command.Root().Writer

			health, err := c.Health(ctx)
			if err != nil {
				return err
			}

			info, err := c.StorageInfo(ctx)
			if err != nil {
				return err
			}

			if command.Bool("json") {
				return printJSON(out, map[string]any{"health": health, "storage": info})
			}

			successf(out, "API %s (%s)\n", health["status"], info.Provider)

			return nil
		},
	}
}

func FlowsCommand() *cli.Command {
	return &cli.Command{
		Name:  "flows",
		Usage: "Inspect flows",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List flows, most recently updated first",
				Action: func(ctx context.Context, command *cli.Command) error {
					flows, err := newClient(command).ListFlows(ctx)
					if err != nil {
						return err
					}

					if command.Bool("json") {
						return printJSON(command.Root().Writer, flows)
					}

					return printFlows(command.Root().Writer, flows)
				},
			},
			{
				Name:      "show",
				Usage:     "Print a flow with its decision graph",
				ArgsUsage: "<flow-id>",
				Action: func(ctx context.Context, command *cli.Command) error {
					id := command.Args().First()
					if id == "" {
						return errors.New("a flow id is required")
					}

					flow, err := newClient(command).GetFlow(ctx, id)
					if err != nil {
						return err
					}

					return printJSON(command.Root().Writer, flow)
				},
			},
			{
				Name:      "duplicate",
				Usage:     "Copy a flow under a new id",
				ArgsUsage: "<flow-id>",
				Action: func(ctx context.Context, command *cli.Command) error {
					id := command.Args().First()
					if id == "" {
						return errors.New("a flow id is required")
					}

					meta, err := newClient(command).DuplicateFlow(ctx, id)
					if err != nil {
						return err
					}

					if command.Bool("json") {
						return printJSON(command.Root().Writer, meta)
					}

					successf(command.Root().Writer, "Created %q (%s)\n", meta.Name, meta.ID)

					return nil
				},
			},
		},
	}
}

func RulesCommand() *cli.Command {
	return &cli.Command{
		Name:  "rules",
		Usage: "Inspect rules and switch their active flow",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List rules by name",
				Action: func(ctx context.Context, command *cli.Command) error {
					rules, err := newClient(command).ListRules(ctx)
					if err != nil {
						return err
					}

					if command.Bool("json") {
						return printJSON(command.Root().Writer, rules)
					}

					return printRules(command.Root().Writer, rules)
				},
			},
			{
				Name:      "show",
				Usage:     "Print a rule and its flows",
				ArgsUsage: "<rule-id|rule-name>",
				Flags:     []cli.Flag{byNameFlag()},
				Action: func(ctx context.Context, command *cli.Command) error {
					ref := command.Args().First()
					if ref == "" {
						return errors.New("a rule id or name is required")
					}

					c := newClient(command)

					var (
						rule models.Rule
						err  error
					)

					if command.Bool("by-name") {
						rule, err = c.GetRuleByName(ctx, ref)
					} else {
						rule, err = c.GetRule(ctx, ref)
					}

					if err != nil {
						return err
					}

					if command.Bool("json") {
						return printJSON(command.Root().Writer, rule)
					}

					return printRule(command.Root().Writer, rule)
				},
			},
			{
				Name:      "activate",
				Usage:     "Make a flow the only active flow of its rule",
				ArgsUsage: "<rule-id|rule-name> <flow-id>",
				Flags:     []cli.Flag{byNameFlag()},
				Action: func(ctx context.Context, command *cli.Command) error {
					ref, flowID := command.Args().Get(0), command.Args().Get(1)
					if ref == "" || flowID == "" {
						return errors.New("a rule and a flow id are required")
					}

					c := newClient(command)

					var err error
					if command.Bool("by-name") {
						err = c.ActivateFlowByName(ctx, ref, flowID)
					} else {
						err = c.ActivateFlow(ctx, ref, flowID)
					}

					if err != nil {
						return err
					}

					successf(command.Root().Writer, "Activated flow %s in rule %s\n", flowID, ref)

					return nil
				},
			},
			{
				Name:      "delete",
				Usage:     "Delete a rule; its flows are kept",
				ArgsUsage: "<rule-id|rule-name>",
				Flags:     []cli.Flag{byNameFlag()},
				Action: func(ctx context.Context, command *cli.Command) error {
					ref := command.Args().First()
					if ref == "" {
						return errors.New("a rule id or name is required")
					}

					c := newClient(command)

					var err error
					if command.Bool("by-name") {
						err = c.DeleteRuleByName(ctx, ref)
					} else {
						err = c.DeleteRule(ctx, ref)
					}

					if err != nil {
						return err
					}

					successf(command.Root().Writer, "Deleted rule %s\n", ref)

					return nil
				},
			},
		},
	}
}
