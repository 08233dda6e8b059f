package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks configuration invariants the daemon depends on. External
// service credentials are intentionally not required here; clients report
// configuration errors when a stage actually needs them.
func (c *Config) Validate() error {
	var problems []string

	if strings.TrimSpace(c.Paths.DataDir) == "" {
		problems = append(problems, "paths.data_dir must not be empty")
	}
	if c.Discovery.PollInterval <= 0 {
		problems = append(problems, "discovery.poll_interval must be positive")
	}
	if c.Discovery.RequestTimeout <= 0 {
		problems = append(problems, "discovery.request_timeout must be positive")
	}
	if c.Analysis.TimeoutSeconds <= 0 {
		problems = append(problems, "analysis.timeout_seconds must be positive")
	}
	if c.Pipeline.MaxConcurrentJobs < 1 {
		problems = append(problems, "pipeline.max_concurrent_jobs must be at least 1")
	}
	if c.Pipeline.JobTimeout <= 0 {
		problems = append(problems, "pipeline.job_timeout must be positive")
	}
	if c.Pipeline.MaxStageRetries < 0 {
		problems = append(problems, "pipeline.max_stage_retries must not be negative")
	}
	if c.Pipeline.RetryBackoffBase <= 0 {
		problems = append(problems, "pipeline.retry_backoff_base must be positive")
	}
	if c.Pipeline.RetryBackoffCeiling < c.Pipeline.RetryBackoffBase {
		problems = append(problems, "pipeline.retry_backoff_ceiling must be at least retry_backoff_base")
	}
	if c.Pipeline.BacklogThreshold < 0 {
		problems = append(problems, "pipeline.backlog_threshold must not be negative")
	}
	if c.Output.MaxSizeMB <= 0 {
		problems = append(problems, "output.max_size_mb must be positive")
	}
	if c.Output.ReencodeAttempts < 1 {
		problems = append(problems, "output.reencode_attempts must be at least 1")
	}
	if c.Output.CRF < 0 || c.Output.CRF > 51 {
		problems = append(problems, "output.crf must be between 0 and 51")
	}
	if c.Output.AudioBitrateKbps <= 0 {
		problems = append(problems, "output.audio_bitrate_kbps must be positive")
	}
	if c.Output.HookSeconds < 0 {
		problems = append(problems, "output.hook_seconds must not be negative")
	}
	switch c.Logging.Format {
	case "", "console", "json":
	default:
		problems = append(problems, fmt.Sprintf("logging.format %q is not one of console, json", c.Logging.Format))
	}

	if len(problems) == 0 {
		return nil
	}
	return errors.New("invalid configuration: " + strings.Join(problems, "; "))
}
