package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"clipflow/internal/config"
)

func newConfigCommand() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration utilities",
	}

	configCmd.AddCommand(newConfigInitCommand())
	configCmd.AddCommand(newConfigValidateCommand())
	configCmd.AddCommand(newConfigShowCommand())

	return configCmd
}

func newConfigInitCommand() *cobra.Command {
	var targetPath string
	var overwrite bool

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Create a sample configuration file",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			target := strings.TrimSpace(targetPath)
			if target == "" {
				defaultPath, err := config.DefaultConfigPath()
				if err != nil {
					return fmt.Errorf("determine default config path: %w", err)
				}
				target = defaultPath
			} else {
				expanded, err := config.ExpandPath(target)
				if err != nil {
					return fmt.Errorf("resolve config path: %w", err)
				}
				target = expanded
			}

			dir := filepath.Dir(target)
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create config directory %q: %w", dir, err)
			}

			if !overwrite {
				if _, err := os.Stat(target); err == nil {
					return fmt.Errorf("config file already exists at %s (use --overwrite to replace it)", target)
				} else if err != nil && !os.IsNotExist(err) {
					return fmt.Errorf("check config path: %w", err)
				}
			}

			if err := config.CreateSample(target); err != nil {
				return fmt.Errorf("create sample config: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote sample configuration to %s\n", target)
			fmt.Fprintln(out, "Set the discovery, analysis, and publish credentials before starting clipflowd.")
			return nil
		},
	}

	cmd.Flags().StringVarP(&targetPath, "path", "p", "", "Destination for the configuration file")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Overwrite existing configuration if present")
	return cmd
}

func newConfigValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "validate",
		Short:       "Validate configuration file",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, exists, err := config.Load("")
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Config path: %s\n", path)
			if !exists {
				fmt.Fprintln(out, "Config file did not exist; defaults were used")
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("configuration invalid: %w", err)
			}
			fmt.Fprintln(out, "Configuration valid")
			return nil
		},
	}
}

func newConfigShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "show",
		Short:       "Show the effective configuration",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, exists, err := config.Load("")
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Config path: %s (exists: %s)\n\n", path, yesNo(exists))
			fmt.Fprintf(out, "Data dir:             %s\n", cfg.Paths.DataDir)
			fmt.Fprintf(out, "Log dir:              %s\n", cfg.Paths.LogDir)
			fmt.Fprintf(out, "API bind:             %s\n", cfg.Paths.APIBind)
			fmt.Fprintf(out, "Discovery folder:     %s\n", cfg.Discovery.FolderID)
			fmt.Fprintf(out, "Discovery configured: %s\n", yesNo(cfg.Discovery.APIKey != ""))
			fmt.Fprintf(out, "Analysis model:       %s\n", cfg.Analysis.Model)
			fmt.Fprintf(out, "Analysis configured:  %s\n", yesNo(cfg.Analysis.APIKey != ""))
			fmt.Fprintf(out, "Publish configured:   %s\n", yesNo(cfg.Publish.APIKey != ""))
			fmt.Fprintf(out, "Destinations:         %d\n", len(cfg.Destinations()))
			fmt.Fprintf(out, "Poll interval:        %ds\n", cfg.Discovery.PollInterval)
			fmt.Fprintf(out, "Max concurrent jobs:  %d\n", cfg.Pipeline.MaxConcurrentJobs)
			fmt.Fprintf(out, "Max stage retries:    %d\n", cfg.Pipeline.MaxStageRetries)
			fmt.Fprintf(out, "Backlog threshold:    %d\n", cfg.Pipeline.BacklogThreshold)
			fmt.Fprintf(out, "Output size cap:      %d MB\n", cfg.Output.MaxSizeMB)
			fmt.Fprintf(out, "Ntfy topic:           %s\n", cfg.Notifications.NtfyTopic)
			return nil
		},
	}
}
