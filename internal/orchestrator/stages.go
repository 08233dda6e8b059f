package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"clipflow/internal/logging"
	"clipflow/internal/queue"
	"clipflow/internal/services"
)

// pipelineStage binds a stage status to its handler and successor status.
type pipelineStage struct {
	name string
	next queue.Status
	run  func(ctx context.Context, logger *slog.Logger, job *queue.Job) error
	// noAutoRetry marks a stage whose failures always fail the job, even
	// when the error looks transient. Publish is at-most-once: after an
	// ambiguous transport error the post may exist remotely, so it is never
	// re-attempted automatically.
	noAutoRetry bool
}

func (o *Orchestrator) buildStages() map[queue.Status]pipelineStage {
	return map[queue.Status]pipelineStage{
		queue.StatusDownloading: {
			name: "download",
			next: queue.StatusAnalyzing,
			run:  o.runDownload,
		},
		queue.StatusAnalyzing: {
			name: "analyze",
			next: queue.StatusEditing,
			run:  o.runAnalyze,
		},
		queue.StatusEditing: {
			name: "edit",
			next: queue.StatusPosting,
			run:  o.runEdit,
		},
		queue.StatusPosting: {
			name:        "post",
			next:        queue.StatusDone,
			run:         o.runPost,
			noAutoRetry: true,
		},
	}
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeDone
	outcomeFailed
	outcomeRetry
)

// processJob drives one job forward as far as it can go in this pass:
// through every remaining stage to done, or until the first failure or
// scheduled retry. A job found in a stage status resumes at the start of
// that stage.
func (o *Orchestrator) processJob(ctx context.Context, passLogger *slog.Logger, job *queue.Job) outcome {
	jobLogger := passLogger.With(logging.Int64(logging.FieldJobID, job.ID))

	timeout := time.Duration(o.cfg.Pipeline.JobTimeout) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Minute
	}
	jobCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	jobCtx = logging.WithJobID(jobCtx, job.ID)

	if job.Status == queue.StatusPending {
		advanced, err := o.advance(ctx, job, queue.StatusDownloading)
		if err != nil {
			if errors.Is(err, queue.ErrConflict) {
				return outcomeSkipped
			}
			jobLogger.Error("failed to start job", logging.Error(err))
			return outcomeSkipped
		}
		job = advanced
	}

	for {
		stage, ok := o.stages[job.Status]
		if !ok {
			return outcomeSkipped
		}
		stageLogger := jobLogger.With(logging.String(logging.FieldStage, stage.name))
		stageStart := time.Now()
		stageLogger.Info("stage started",
			logging.String(logging.FieldEventType, "stage_start"),
			logging.String("file_name", job.FileName))

		err := stage.run(logging.WithStage(jobCtx, stage.name), stageLogger, job)
		if err != nil {
			return o.handleStageError(ctx, jobCtx, stageLogger, stage, job, err)
		}

		previous := job.Status
		job.Status = stage.next
		updated, updateErr := o.store.Update(ctx, job, previous)
		if updateErr != nil {
			if errors.Is(updateErr, queue.ErrConflict) {
				stageLogger.Warn("stage result discarded after concurrent update",
					logging.Error(updateErr))
				return outcomeSkipped
			}
			stageLogger.Error("failed to persist stage result", logging.Error(updateErr))
			return outcomeSkipped
		}
		job = updated

		stageLogger.Info("stage completed",
			logging.String(logging.FieldEventType, "stage_complete"),
			logging.String("next_status", string(job.Status)),
			logging.Duration("stage_duration", time.Since(stageStart)))

		if job.Status == queue.StatusDone {
			o.ClearBackoff(job.ID)
			o.notifyPublished(ctx, jobLogger, job)
			return outcomeDone
		}
	}
}

func (o *Orchestrator) handleStageError(ctx, jobCtx context.Context, stageLogger *slog.Logger, stage pipelineStage, job *queue.Job, stageErr error) outcome {
	// Shutdown cancellation leaves the job untouched; it resumes at the
	// start of this stage on the next daemon run.
	if ctx.Err() != nil {
		stageLogger.Debug("stage interrupted by shutdown")
		return outcomeSkipped
	}

	persistCtx := context.WithoutCancel(ctx)

	if errors.Is(jobCtx.Err(), context.DeadlineExceeded) {
		message := fmt.Sprintf("%s timed out after %ds", stage.name, o.cfg.Pipeline.JobTimeout)
		o.failJob(persistCtx, stageLogger, job, message)
		return outcomeFailed
	}

	retryable := services.Retryable(stageErr) && !stage.noAutoRetry
	if retryable && o.retryAttempts(job.ID) < o.cfg.Pipeline.MaxStageRetries {
		attempts := o.scheduleRetry(job.ID)
		job.RetryCount++
		if _, err := o.store.Update(persistCtx, job, job.Status); err != nil {
			stageLogger.Error("failed to persist retry count", logging.Error(err))
		}
		stageLogger.Warn("stage failed, retry scheduled",
			logging.Error(stageErr),
			logging.String(logging.FieldEventType, "stage_retry"),
			logging.Int("attempt", attempts),
			logging.Int("max_attempts", o.cfg.Pipeline.MaxStageRetries),
			logging.String("error_kind", services.Kind(stageErr)))
		return outcomeRetry
	}

	message := strings.TrimSpace(stageErr.Error())
	if message == "" {
		message = fmt.Sprintf("%s failed", stage.name)
	}
	stageLogger.Error("stage failed",
		logging.Error(stageErr),
		logging.String(logging.FieldEventType, "stage_failure"),
		logging.String("error_kind", services.Kind(stageErr)),
		logging.String(logging.FieldAlert, "stage_failure"))
	o.failJob(persistCtx, stageLogger, job, message)
	return outcomeFailed
}

// failJob moves a job to failed, recording the stage it failed at so a
// manual retry can resume there.
func (o *Orchestrator) failJob(ctx context.Context, stageLogger *slog.Logger, job *queue.Job, message string) {
	previous := job.Status
	job.FailedStage = previous
	job.Status = queue.StatusFailed
	job.LastError = message

	if _, err := o.store.Update(ctx, job, previous); err != nil {
		stageLogger.Error("failed to persist job failure", logging.Error(err))
	}
	o.ClearBackoff(job.ID)

	if err := o.notifier.NotifyJobFailed(ctx, job.FileName, string(previous), message); err != nil {
		stageLogger.Warn("failure notification failed", logging.Error(err))
	}
}

func (o *Orchestrator) advance(ctx context.Context, job *queue.Job, next queue.Status) (*queue.Job, error) {
	previous := job.Status
	job.Status = next
	return o.store.Update(ctx, job, previous)
}

func (o *Orchestrator) notifyPublished(ctx context.Context, jobLogger *slog.Logger, job *queue.Job) {
	results := job.PublishResults()
	destinations := make([]string, 0, len(results))
	for name := range results {
		destinations = append(destinations, name)
	}
	sort.Strings(destinations)

	if err := o.notifier.NotifyJobPublished(ctx, job.FileName, destinations); err != nil {
		jobLogger.Warn("publish notification failed", logging.Error(err))
	}
}
