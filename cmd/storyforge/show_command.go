package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"storyforge/internal/ipc"
)

func newShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show details for a single task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parsePositiveIDs(args)
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.QueueDescribe(ids[0])
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, resp.Task)
				}
				printTaskDetail(cmd, resp.Task)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit the task as JSON")
	return cmd
}

func printTaskDetail(cmd *cobra.Command, task ipc.TaskSummary) {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)

	for _, line := range renderSectionHeader(fmt.Sprintf("Task %d", task.ID), colorize) {
		fmt.Fprintln(out, line)
	}
	fmt.Fprintln(out, renderStatusLine("Status", taskStatusKind(task.Status), formatStatusLabel(task.Status), colorize))
	fmt.Fprintln(out, renderStatusLine("Owner", statusInfo, task.Owner, colorize))
	fmt.Fprintln(out, renderStatusLine("Prompt", statusInfo, task.Prompt, colorize))
	if task.Style != "" {
		fmt.Fprintln(out, renderStatusLine("Style", statusInfo, task.Style, colorize))
	}
	progress := fmt.Sprintf("%.0f%%", task.ProgressPercent)
	if task.ProgressStage != "" {
		progress = fmt.Sprintf("%s (%s)", progress, task.ProgressStage)
	}
	fmt.Fprintln(out, renderStatusLine("Progress", statusInfo, progress, colorize))
	if task.ProgressMessage != "" {
		fmt.Fprintln(out, renderStatusLine("Last update", statusInfo, task.ProgressMessage, colorize))
	}
	if task.ErrorMessage != "" {
		fmt.Fprintln(out, renderStatusLine("Error", statusError, task.ErrorMessage, colorize))
	}
	if task.FinalFile != "" {
		fmt.Fprintln(out, renderStatusLine("Video", statusOK, task.FinalFile, colorize))
	}
	if task.ResultURL != "" {
		fmt.Fprintln(out, renderStatusLine("Share link", statusOK, task.ResultURL, colorize))
	}
	if task.ReservedCredits > 0 {
		credits := fmt.Sprintf("%d reserved, refunded: %s", task.ReservedCredits, yesNo(task.RefundIssued))
		fmt.Fprintln(out, renderStatusLine("Credits", statusInfo, credits, colorize))
	}
	fmt.Fprintln(out, renderStatusLine("Created", statusInfo, task.CreatedAt.Local().Format(time.DateTime), colorize))
	fmt.Fprintln(out, renderStatusLine("Updated", statusInfo, task.UpdatedAt.Local().Format(time.DateTime), colorize))
}

func taskStatusKind(status string) statusKind {
	switch status {
	case "completed":
		return statusOK
	case "failed":
		return statusError
	case "paused", "cancelled":
		return statusWarn
	default:
		return statusInfo
	}
}
