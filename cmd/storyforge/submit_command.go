package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"storyforge/internal/ipc"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var style string
	var owner string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "submit <prompt>",
		Short: "Submit a prompt for video generation",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt := strings.TrimSpace(strings.Join(args, " "))
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Submit(ipc.SubmitRequest{
					Owner:  owner,
					Prompt: prompt,
					Style:  style,
				})
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, resp.Task)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Task %d submitted\n", resp.Task.ID)
				if resp.Task.ReservedCredits > 0 {
					fmt.Fprintf(out, "Reserved %d credits\n", resp.Task.ReservedCredits)
				}
				fmt.Fprintf(out, "Track progress with `storyforge show %d`\n", resp.Task.ID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&style, "style", "", "Visual style applied to every scene")
	cmd.Flags().StringVar(&owner, "owner", "", "Owner account for credit reservation")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit the created task as JSON")
	return cmd
}
