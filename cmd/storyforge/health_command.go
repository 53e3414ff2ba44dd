package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"storyforge/internal/ipc"
)

func newHealthCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Report queue and database health",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				queueHealth, err := client.QueueHealth()
				if err != nil {
					return err
				}
				dbHealth, err := client.DatabaseHealth()
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, map[string]any{
						"queue":    queueHealth,
						"database": dbHealth,
					})
				}
				printHealth(cmd, queueHealth, dbHealth)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit health data as JSON")
	return cmd
}

func printHealth(cmd *cobra.Command, queueHealth ipc.QueueHealthResponse, dbHealth ipc.DatabaseHealthResponse) {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)

	for _, line := range renderSectionHeader("Queue", colorize) {
		fmt.Fprintln(out, line)
	}
	rows := [][]string{
		{"Pending", strconv.Itoa(queueHealth.Pending)},
		{"Processing", strconv.Itoa(queueHealth.Processing)},
		{"Paused", strconv.Itoa(queueHealth.Paused)},
		{"Completed", strconv.Itoa(queueHealth.Completed)},
		{"Failed", strconv.Itoa(queueHealth.Failed)},
		{"Cancelled", strconv.Itoa(queueHealth.Cancelled)},
		{"Total", strconv.Itoa(queueHealth.Total)},
	}
	fmt.Fprintln(out, renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
	fmt.Fprintln(out)

	for _, line := range renderSectionHeader("Database", colorize) {
		fmt.Fprintln(out, line)
	}
	fmt.Fprintln(out, renderStatusLine("Path", statusInfo, dbHealth.DBPath, colorize))
	fmt.Fprintln(out, renderStatusLine("Readable", boolKind(dbHealth.DatabaseReadable), yesNo(dbHealth.DatabaseReadable), colorize))
	fmt.Fprintln(out, renderStatusLine("Schema", statusInfo, dbHealth.SchemaVersion, colorize))
	fmt.Fprintln(out, renderStatusLine("Integrity", boolKind(dbHealth.IntegrityCheck), yesNo(dbHealth.IntegrityCheck), colorize))
	if len(dbHealth.MissingColumns) > 0 {
		fmt.Fprintln(out, renderStatusLine("Missing columns", statusError, strings.Join(dbHealth.MissingColumns, ", "), colorize))
	}
	if dbHealth.Error != "" {
		fmt.Fprintln(out, renderStatusLine("Error", statusError, dbHealth.Error, colorize))
	}
	fmt.Fprintln(out, renderStatusLine("Tasks", statusInfo, strconv.Itoa(dbHealth.TotalTasks), colorize))
}

func boolKind(ok bool) statusKind {
	if ok {
		return statusOK
	}
	return statusError
}
