package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"storyforge/internal/ipc"
)

const daemonStartTimeout = 10 * time.Second

func newDaemonCommands(ctx *commandContext) []*cobra.Command {
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the storyforge daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()

			if client, err := ctx.dialClient(); err == nil {
				defer client.Close()
				resp, err := client.Start()
				if err != nil {
					return err
				}
				if resp.Started {
					fmt.Fprintln(stdout, "Daemon started")
				} else {
					fmt.Fprintln(stdout, resp.Message)
				}
				return nil
			}

			fmt.Fprintln(stdout, "Daemon not running, launching...")
			if err := launchDaemon(ctx); err != nil {
				return err
			}
			client, err := waitForSocket(ctx.socketPath(), daemonStartTimeout)
			if err != nil {
				return err
			}
			defer client.Close()
			fmt.Fprintln(stdout, "Daemon started")
			return nil
		},
	}

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the storyforge daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			client, err := ctx.dialClient()
			if err != nil {
				fmt.Fprintln(stdout, "Daemon is not running")
				return nil
			}
			defer client.Close()
			if _, err := client.Stop(); err != nil {
				return err
			}
			fmt.Fprintln(stdout, "Daemon stopped")
			return nil
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, stage, and queue status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Status()
				if err != nil {
					return err
				}
				printStatus(cmd, resp)
				return nil
			})
		},
	}

	return []*cobra.Command{startCmd, stopCmd, statusCmd}
}

func printStatus(cmd *cobra.Command, resp ipc.StatusResponse) {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)

	for _, line := range renderSectionHeader("Daemon", colorize) {
		fmt.Fprintln(out, line)
	}
	runningKind := statusWarn
	runningText := "stopped"
	if resp.Running {
		runningKind = statusOK
		runningText = fmt.Sprintf("running (pid %d)", resp.PID)
	}
	fmt.Fprintln(out, renderStatusLine("Workflow", runningKind, runningText, colorize))
	if resp.LastError != "" {
		fmt.Fprintln(out, renderStatusLine("Last error", statusError, resp.LastError, colorize))
	}
	fmt.Fprintln(out, renderStatusLine("Queue database", statusInfo, resp.QueueDBPath, colorize))
	fmt.Fprintln(out, renderStatusLine("Lock file", statusInfo, resp.LockPath, colorize))
	fmt.Fprintln(out)

	for _, line := range renderSectionHeader("Stages", colorize) {
		fmt.Fprintln(out, line)
	}
	for _, stage := range resp.StageHealth {
		kind := statusOK
		detail := "Ready"
		if !stage.Ready {
			kind = statusWarn
			detail = stage.Detail
		}
		fmt.Fprintln(out, renderStatusLine(stage.Name, kind, detail, colorize))
	}
	fmt.Fprintln(out)

	for _, line := range renderSectionHeader("Dependencies", colorize) {
		fmt.Fprintln(out, line)
	}
	for _, dep := range resp.Dependencies {
		if dep.Available {
			message := "Ready"
			if dep.Command != "" {
				message = fmt.Sprintf("Ready (command: %s)", dep.Command)
			}
			fmt.Fprintln(out, renderStatusLine(dep.Name, statusOK, message, colorize))
			continue
		}
		detail := dep.Detail
		if detail == "" {
			detail = "not available"
		}
		kind := statusError
		if dep.Optional {
			kind = statusWarn
		}
		fmt.Fprintln(out, renderStatusLine(dep.Name, kind, detail, colorize))
	}
	fmt.Fprintln(out)

	for _, line := range renderSectionHeader("Queue", colorize) {
		fmt.Fprintln(out, line)
	}
	if len(resp.QueueStats) == 0 {
		fmt.Fprintln(out, "Queue is empty")
		return
	}
	rows := make([][]string, 0, len(resp.QueueStats))
	for _, status := range queueStatusOrder {
		if count, ok := resp.QueueStats[status]; ok && count > 0 {
			rows = append(rows, []string{formatStatusLabel(status), strconv.Itoa(count)})
		}
	}
	if len(rows) == 0 {
		fmt.Fprintln(out, "Queue is empty")
		return
	}
	fmt.Fprintln(out, renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
}

// queueStatusOrder controls the display order of queue stat rows.
var queueStatusOrder = []string{
	"pending",
	"scripting", "scripted",
	"planning", "planned",
	"generating", "generated",
	"synthesizing", "synthesized",
	"compositing",
	"paused",
	"completed",
	"failed",
	"cancelled",
}

func launchDaemon(ctx *commandContext) error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve executable: %w", err)
	}
	daemonBin := filepath.Join(filepath.Dir(exe), "storyforged")
	if _, err := os.Stat(daemonBin); err != nil {
		daemonBin, err = exec.LookPath("storyforged")
		if err != nil {
			return fmt.Errorf("locate storyforged binary: %w", err)
		}
	}

	daemonCmd := exec.Command(daemonBin)
	if err := daemonCmd.Start(); err != nil {
		return fmt.Errorf("launch daemon: %w", err)
	}
	return daemonCmd.Process.Release()
}

func waitForSocket(socket string, timeout time.Duration) (*ipc.Client, error) {
	deadline := time.Now().Add(timeout)
	for {
		client, err := ipc.Dial(socket)
		if err == nil {
			return client, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("daemon did not come up within %s: %w", timeout, err)
		}
		time.Sleep(200 * time.Millisecond)
	}
}
