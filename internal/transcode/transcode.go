// Package transcode applies edit plans to source clips with ffmpeg.
//
// The executor owns the size-fit loop: it encodes, measures the artifact,
// and walks the plan's step-down ladder until the output fits under the size
// ceiling or the attempt budget is exhausted. Partial outputs are removed on
// every exit path.
package transcode

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"clipflow/internal/config"
	"clipflow/internal/editplan"
	"clipflow/internal/logging"
	"clipflow/internal/services"
)

// Artifact describes a finished output file.
type Artifact struct {
	Path      string
	SizeBytes int64
	Attempts  int
}

// Runner abstracts command execution for testability.
type Runner interface {
	Run(ctx context.Context, binary string, args []string) (string, error)
}

type commandRunner struct{}

func (commandRunner) Run(ctx context.Context, binary string, args []string) (string, error) {
	cmd := exec.CommandContext(ctx, binary, args...)
	output, err := cmd.CombinedOutput()
	return string(output), err
}

// Option configures the executor.
type Option func(*Executor)

// WithRunner injects a custom command runner (primarily for tests).
func WithRunner(runner Runner) Option {
	return func(e *Executor) {
		if runner != nil {
			e.runner = runner
		}
	}
}

// Executor runs ffmpeg and ffprobe against source clips.
type Executor struct {
	ffmpeg  string
	ffprobe string
	runner  Runner
	logger  *slog.Logger
}

// NewExecutor constructs a transcode executor bound to the configured
// binaries.
func NewExecutor(cfg *config.Config, logger *slog.Logger, opts ...Option) *Executor {
	if logger == nil {
		logger = logging.NewNop()
	}
	executor := &Executor{
		ffmpeg:  cfg.FFmpegBinary(),
		ffprobe: cfg.FFprobeBinary(),
		runner:  commandRunner{},
		logger:  logger,
	}
	for _, opt := range opts {
		opt(executor)
	}
	return executor
}

// Execute applies the plan to sourcePath and writes the artifact to
// outputPath. Encoding runs into a temp file that is promoted only when the
// size ceiling is met; cancellation and failure leave nothing behind.
func (e *Executor) Execute(ctx context.Context, plan *editplan.Plan, sourcePath, outputPath string) (*Artifact, error) {
	if plan == nil {
		return nil, services.Wrap(services.ErrValidation, "editing", "transcode", "plan is nil", nil)
	}

	tempPath := outputPath + ".tmp.mp4"
	defer os.Remove(tempPath)

	logger := logging.WithContext(ctx, e.logger)
	for attempt := 0; attempt < plan.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		args := plan.Args(attempt, sourcePath, tempPath)
		logger.Info("running ffmpeg",
			logging.Int("attempt", attempt+1),
			logging.Int("max_attempts", plan.MaxAttempts),
			logging.String("output", outputPath))

		output, err := e.runner.Run(ctx, e.ffmpeg, args)
		if err != nil {
			_ = os.Remove(tempPath)
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, services.Wrap(services.ErrResource, "editing", "transcode",
				fmt.Sprintf("ffmpeg failed: %s", tail(output, 500)), err)
		}

		info, err := os.Stat(tempPath)
		if err != nil {
			return nil, services.Wrap(services.ErrResource, "editing", "transcode",
				"ffmpeg produced no output", err)
		}

		if info.Size() <= plan.MaxSizeBytes {
			if err := os.Rename(tempPath, outputPath); err != nil {
				_ = os.Remove(tempPath)
				return nil, services.Wrap(services.ErrResource, "editing", "transcode",
					"promote output artifact", err)
			}
			return &Artifact{Path: outputPath, SizeBytes: info.Size(), Attempts: attempt + 1}, nil
		}

		logger.Warn("artifact over size ceiling",
			logging.Int64("size_bytes", info.Size()),
			logging.Int64("max_bytes", plan.MaxSizeBytes),
			logging.Int("attempt", attempt+1))
		_ = os.Remove(tempPath)
	}

	return nil, services.Wrap(services.ErrSizeConstraint, "editing", "transcode",
		fmt.Sprintf("output exceeds %d bytes after %d attempts", plan.MaxSizeBytes, plan.MaxAttempts), nil)
}

// ProbeDuration returns the container duration of a media file in seconds.
func (e *Executor) ProbeDuration(ctx context.Context, path string) (float64, error) {
	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	}
	output, err := e.runner.Run(ctx, e.ffprobe, args)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, ctxErr
		}
		return 0, services.Wrap(services.ErrResource, "editing", "transcode",
			fmt.Sprintf("ffprobe failed: %s", tail(output, 200)), err)
	}

	duration, err := strconv.ParseFloat(strings.TrimSpace(output), 64)
	if err != nil {
		return 0, services.Wrap(services.ErrValidation, "editing", "transcode",
			fmt.Sprintf("unparseable ffprobe duration %q", strings.TrimSpace(output)), err)
	}
	if duration <= 0 {
		return 0, services.Wrap(services.ErrValidation, "editing", "transcode",
			fmt.Sprintf("non-positive duration %.3f", duration), nil)
	}
	return duration, nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
