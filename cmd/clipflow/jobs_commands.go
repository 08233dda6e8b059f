package main

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// jobView mirrors the daemon API job representation.
type jobView struct {
	ID             int64             `json:"id"`
	SourceRef      string            `json:"source_ref"`
	FileName       string            `json:"file_name"`
	Status         string            `json:"status"`
	RetryCount     int               `json:"retry_count"`
	LastError      string            `json:"last_error,omitempty"`
	FailedStage    string            `json:"failed_stage,omitempty"`
	Caption        string            `json:"caption,omitempty"`
	Hashtags       []string          `json:"hashtags,omitempty"`
	OutputPath     string            `json:"output_path,omitempty"`
	PublishResults map[string]string `json:"publish_results,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
	CompletedAt    *time.Time        `json:"completed_at,omitempty"`
}

type jobListResponse struct {
	Jobs []jobView `json:"jobs"`
}

func newJobsCommand(ctx *commandContext) *cobra.Command {
	var statuses []string

	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List pipeline jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/jobs"
			if len(statuses) > 0 {
				values := url.Values{}
				for _, status := range statuses {
					values.Add("status", strings.TrimSpace(status))
				}
				path += "?" + values.Encode()
			}

			var resp jobListResponse
			if err := ctx.getJSON(cmd, path, &resp); err != nil {
				return err
			}
			if len(resp.Jobs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No jobs found")
				return nil
			}

			rows := make([][]string, 0, len(resp.Jobs))
			for _, job := range resp.Jobs {
				rows = append(rows, []string{
					strconv.FormatInt(job.ID, 10),
					job.FileName,
					job.Status,
					strconv.Itoa(job.RetryCount),
					job.CreatedAt.Local().Format("2006-01-02 15:04"),
					job.LastError,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(jobColumns(), rows))
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "Filter by job status (repeatable)")
	return cmd
}

func newShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show details for a single job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseJobID(args[0])
			if err != nil {
				return err
			}

			var job jobView
			if err := ctx.getJSON(cmd, fmt.Sprintf("/jobs/%d", id), &job); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Job #%d\n", job.ID)
			fmt.Fprintf(out, "  Source:       %s\n", job.SourceRef)
			fmt.Fprintf(out, "  File:         %s\n", job.FileName)
			fmt.Fprintf(out, "  Status:       %s\n", job.Status)
			fmt.Fprintf(out, "  Retries:      %d\n", job.RetryCount)
			if job.FailedStage != "" {
				fmt.Fprintf(out, "  Failed stage: %s\n", job.FailedStage)
			}
			if job.LastError != "" {
				fmt.Fprintf(out, "  Last error:   %s\n", job.LastError)
			}
			if job.Caption != "" {
				fmt.Fprintf(out, "  Caption:      %s\n", job.Caption)
			}
			if len(job.Hashtags) > 0 {
				fmt.Fprintf(out, "  Hashtags:     %s\n", strings.Join(job.Hashtags, " "))
			}
			if job.OutputPath != "" {
				fmt.Fprintf(out, "  Output:       %s\n", job.OutputPath)
			}
			for destination, postID := range job.PublishResults {
				fmt.Fprintf(out, "  Published:    %s (post %s)\n", destination, postID)
			}
			fmt.Fprintf(out, "  Created:      %s\n", job.CreatedAt.Local().Format(time.RFC3339))
			fmt.Fprintf(out, "  Updated:      %s\n", job.UpdatedAt.Local().Format(time.RFC3339))
			if job.CompletedAt != nil {
				fmt.Fprintf(out, "  Completed:    %s\n", job.CompletedAt.Local().Format(time.RFC3339))
			}
			return nil
		},
	}
}

func newRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <job-id>",
		Short: "Retry a failed job from its failed stage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseJobID(args[0])
			if err != nil {
				return err
			}

			var job jobView
			if err := ctx.postJSON(cmd, fmt.Sprintf("/jobs/%d/retry", id), &job); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Job #%d resumed at %s\n", job.ID, job.Status)
			return nil
		},
	}
}

func newTriggerCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "trigger",
		Short: "Request an immediate pipeline pass",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp struct {
				Triggered bool `json:"triggered"`
			}
			if err := ctx.postJSON(cmd, "/trigger", &resp); err != nil {
				return err
			}
			if resp.Triggered {
				fmt.Fprintln(cmd.OutOrStdout(), "Pass triggered")
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "Pass already pending")
			}
			return nil
		},
	}
}

func parseJobID(arg string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("invalid job id %q", arg)
	}
	return id, nil
}
