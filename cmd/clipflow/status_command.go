package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

type daemonStatus struct {
	Running      bool   `json:"running"`
	PID          int    `json:"pid"`
	JobDBPath    string `json:"job_db_path"`
	LockFilePath string `json:"lock_file_path"`
	Jobs         struct {
		Total      int `json:"total"`
		Pending    int `json:"pending"`
		Processing int `json:"processing"`
		Failed     int `json:"failed"`
		Done       int `json:"done"`
	} `json:"jobs"`
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon and pipeline status",
		RunE: func(cmd *cobra.Command, args []string) error {
			var status daemonStatus
			if err := ctx.getJSON(cmd, "/health", &status); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			for _, line := range renderSectionHeader("Daemon", colorize) {
				fmt.Fprintln(out, line)
			}
			runningKind := statusError
			if status.Running {
				runningKind = statusOK
			}
			fmt.Fprintln(out, renderStatusLine("Running", runningKind, yesNo(status.Running), colorize))
			fmt.Fprintln(out, renderStatusLine("PID", statusInfo, fmt.Sprintf("%d", status.PID), colorize))
			fmt.Fprintln(out, renderStatusLine("Database", statusInfo, status.JobDBPath, colorize))
			fmt.Fprintln(out, renderStatusLine("Lock file", statusInfo, status.LockFilePath, colorize))

			fmt.Fprintln(out)
			for _, line := range renderSectionHeader("Jobs", colorize) {
				fmt.Fprintln(out, line)
			}
			fmt.Fprintln(out, renderStatusLine("Total", statusInfo, fmt.Sprintf("%d", status.Jobs.Total), colorize))
			fmt.Fprintln(out, renderStatusLine("Pending", statusInfo, fmt.Sprintf("%d", status.Jobs.Pending), colorize))
			fmt.Fprintln(out, renderStatusLine("Processing", statusInfo, fmt.Sprintf("%d", status.Jobs.Processing), colorize))
			failedKind := statusOK
			if status.Jobs.Failed > 0 {
				failedKind = statusWarn
			}
			fmt.Fprintln(out, renderStatusLine("Failed", failedKind, fmt.Sprintf("%d", status.Jobs.Failed), colorize))
			fmt.Fprintln(out, renderStatusLine("Done", statusOK, fmt.Sprintf("%d", status.Jobs.Done), colorize))
			fmt.Fprintf(out, "\nChecked at %s\n", time.Now().Format(time.RFC1123))
			return nil
		},
	}
}
