package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dukex/decision-editor/pkg/models"
	"github.com/fatih/color"
)

var (
	green = color.New(color.FgGreen)
	red   = color.New(color.FgRed, color.Bold)
	faint = color.New(color.Faint)
)

func errorf(w io.Writer, format string, a ...any) {
	_, _ = red.Fprintf(w, format, a...)
}

func successf(w io.Writer, format string, a ...any) {
	_, _ = green.Fprintf(w, "✓ "+format, a...)
}

func printJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	return encoder.Encode(v)
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

func printFlows(w io.Writer, flows []models.FlowMetadata) error {
	table := newTable(w)

	_, _ = fmt.Fprintln(table, "ID\tNAME\tUPDATED\tTAGS")

	for _, flow := range flows {
		_, _ = fmt.Fprintf(table, "%s\t%s\t%s\t%s\n",
			flow.ID, flow.Name, flow.UpdatedAt.Format(time.RFC3339), strings.Join(flow.Tags, ","))
	}

	return table.Flush()
}

func printRules(w io.Writer, rules []models.Rule) error {
	table := newTable(w)

	_, _ = fmt.Fprintln(table, "ID\tNAME\tFLOWS\tACTIVE")

	for _, rule := range rules {
		active := "-"
		if flow, ok := rule.ActiveFlow(); ok {
			active = flow.Name
		}

		_, _ = fmt.Fprintf(table, "%s\t%s\t%d\t%s\n", rule.ID, rule.Name, len(rule.Flows), active)
	}

	return table.Flush()
}

func printRule(w io.Writer, rule models.Rule) error {
	_, _ = fmt.Fprintf(w, "Rule:        %s\n", rule.Name)
	_, _ = fmt.Fprintf(w, "ID:          %s\n", rule.ID)

	if rule.Description != "" {
		_, _ = fmt.Fprintf(w, "Description: %s\n", rule.Description)
	}

	if len(rule.Flows) == 0 {
		_, _ = faint.Fprintln(w, "\nNo flows")

		return nil
	}

	_, _ = fmt.Fprintln(w)

	table := newTable(w)

	_, _ = fmt.Fprintln(table, "FLOW ID\tNAME\tACTIVE")

	for _, flow := range rule.Flows {
		active := ""
		if flow.Active {
			active = green.Sprint("yes")
		}

		_, _ = fmt.Fprintf(table, "%s\t%s\t%s\n", flow.ID, flow.Name, active)
	}

	return table.Flush()
}
