package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"storyforge/internal/ipc"
	"storyforge/internal/queue"
)

const promptColumnWidth = 44

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and maintain the task queue",
	}

	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueuePauseCommand(ctx))
	queueCmd.AddCommand(newQueueResumeCommand(ctx))
	queueCmd.AddCommand(newQueueCancelCommand(ctx))
	queueCmd.AddCommand(newQueueRemoveCommand(ctx))
	queueCmd.AddCommand(newQueueRetryCommand(ctx))
	queueCmd.AddCommand(newQueueClearCommand(ctx))
	queueCmd.AddCommand(newQueueResetCommand(ctx))
	return queueCmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var statuses []string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queue tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, raw := range statuses {
				if _, ok := queue.ParseStatus(raw); !ok {
					return fmt.Errorf("unknown status %q", raw)
				}
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.QueueList(ipc.QueueListRequest{Statuses: statuses})
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, resp.Tasks)
				}
				out := cmd.OutOrStdout()
				if len(resp.Tasks) == 0 {
					fmt.Fprintln(out, "Queue is empty")
					return nil
				}
				rows := make([][]string, 0, len(resp.Tasks))
				for _, task := range resp.Tasks {
					rows = append(rows, []string{
						strconv.FormatInt(task.ID, 10),
						formatStatusLabel(task.Status),
						task.ProgressStage,
						fmt.Sprintf("%.0f%%", task.ProgressPercent),
						truncate(task.Prompt, promptColumnWidth),
						task.UpdatedAt.Local().Format(time.DateTime),
					})
				}
				table := renderTable(
					[]string{"ID", "Status", "Stage", "Progress", "Prompt", "Updated"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
				)
				fmt.Fprintln(out, table)
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVar(&statuses, "status", nil, "Filter by status (repeatable)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit tasks as JSON")
	return cmd
}

func newQueuePauseCommand(ctx *commandContext) *cobra.Command {
	return newTaskActionCommand(ctx, "pause", "Pause a task at the next stage boundary",
		func(client *ipc.Client, id int64) (ipc.TaskActionResponse, error) {
			return client.QueuePause(id)
		},
		func(id int64, applied bool) string {
			if applied {
				return fmt.Sprintf("Task %d pause requested", id)
			}
			return fmt.Sprintf("Task %d cannot be paused in its current state", id)
		})
}

func newQueueResumeCommand(ctx *commandContext) *cobra.Command {
	return newTaskActionCommand(ctx, "resume", "Resume a paused task",
		func(client *ipc.Client, id int64) (ipc.TaskActionResponse, error) {
			return client.QueueResume(id)
		},
		func(id int64, applied bool) string {
			if applied {
				return fmt.Sprintf("Task %d resumed", id)
			}
			return fmt.Sprintf("Task %d is not paused", id)
		})
}

func newQueueCancelCommand(ctx *commandContext) *cobra.Command {
	return newTaskActionCommand(ctx, "cancel", "Cancel a task and release its credits",
		func(client *ipc.Client, id int64) (ipc.TaskActionResponse, error) {
			return client.QueueCancel(id)
		},
		func(id int64, applied bool) string {
			if applied {
				return fmt.Sprintf("Task %d cancellation requested", id)
			}
			return fmt.Sprintf("Task %d is already finished", id)
		})
}

func newTaskActionCommand(
	ctx *commandContext,
	use, short string,
	action func(*ipc.Client, int64) (ipc.TaskActionResponse, error),
	message func(int64, bool) string,
) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parsePositiveIDs(args)
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := action(client, ids[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), message(ids[0], resp.Applied))
				return nil
			})
		},
	}
}

func newQueueRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id> [id...]",
		Short: "Remove tasks from the queue",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parsePositiveIDs(args)
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.QueueRemove(ids)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d task(s)\n", resp.Removed)
				return nil
			})
		},
	}
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry [id...]",
		Short: "Reset failed tasks for another run (all failed tasks when no ids given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parsePositiveIDs(args)
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.QueueRetry(ids)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Reset %d task(s) for retry\n", resp.Updated)
				return nil
			})
		},
	}
}

func newQueueClearCommand(ctx *commandContext) *cobra.Command {
	var completed bool
	var failed bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove finished tasks (or everything with no flags)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				var removed int64
				switch {
				case completed:
					resp, err := client.QueueClearCompleted()
					if err != nil {
						return err
					}
					removed = resp.Removed
				case failed:
					resp, err := client.QueueClearFailed()
					if err != nil {
						return err
					}
					removed = resp.Removed
				default:
					resp, err := client.QueueClear()
					if err != nil {
						return err
					}
					removed = resp.Removed
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d task(s)\n", removed)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&completed, "completed", false, "Only clear completed tasks")
	cmd.Flags().BoolVar(&failed, "failed", false, "Only clear failed tasks")
	cmd.MarkFlagsMutuallyExclusive("completed", "failed")
	return cmd
}

func newQueueResetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Roll stuck in-flight tasks back to the start of their stage",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.QueueReset()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Reset %d task(s)\n", resp.Updated)
				return nil
			})
		},
	}
}

func parsePositiveIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid task id %q", arg)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func formatStatusLabel(status string) string {
	status = strings.TrimSpace(status)
	if status == "" {
		return ""
	}
	return strings.ToUpper(status[:1]) + status[1:]
}

func truncate(value string, limit int) string {
	if limit <= 3 || len(value) <= limit {
		return value
	}
	return value[:limit-3] + "..."
}
