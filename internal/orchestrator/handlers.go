package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"clipflow/internal/analysis"
	"clipflow/internal/discovery"
	"clipflow/internal/editplan"
	"clipflow/internal/logging"
	"clipflow/internal/publish"
	"clipflow/internal/queue"
	"clipflow/internal/services"
	"clipflow/internal/subtitles"
)

func (o *Orchestrator) runDownload(ctx context.Context, logger *slog.Logger, job *queue.Job) error {
	adapter, err := o.discoveryAdapter()
	if err != nil {
		return err
	}

	candidate := discovery.Candidate{ID: job.SourceRef, Name: job.FileName}
	path, err := adapter.Download(ctx, candidate, o.cfg.DownloadsDir())
	if err != nil {
		return err
	}
	job.LocalSourcePath = path

	logger.Debug("clip downloaded", logging.String("local_path", path))
	return nil
}

func (o *Orchestrator) runAnalyze(ctx context.Context, logger *slog.Logger, job *queue.Job) error {
	analyzer, err := o.analysisClient()
	if err != nil {
		return err
	}
	if job.LocalSourcePath == "" {
		return services.Wrap(services.ErrValidation, "analyzing", "orchestrator",
			"job has no downloaded source", nil)
	}

	result, err := analyzer.Analyze(ctx, job.LocalSourcePath)
	if err != nil {
		return err
	}

	transcript, err := json.Marshal(result.Transcript)
	if err != nil {
		return services.Wrap(services.ErrValidation, "analyzing", "orchestrator",
			"encode transcript", err)
	}

	job.TrimStartSec = result.TrimStartSec
	job.TrimEndSec = result.TrimEndSec
	job.HookText = result.HookText
	job.CaptionStyle = result.CaptionStyle
	job.Caption = result.SuggestedCaption
	job.SetHashtags(result.Hashtags)
	job.TranscriptJSON = string(transcript)

	logger.Debug("analysis complete",
		logging.Float64("trim_start", result.TrimStartSec),
		logging.Float64("trim_end", result.TrimEndSec),
		logging.Int("transcript_cues", len(result.Transcript)))
	return nil
}

func (o *Orchestrator) runEdit(ctx context.Context, logger *slog.Logger, job *queue.Job) error {
	if job.LocalSourcePath == "" {
		return services.Wrap(services.ErrValidation, "editing", "orchestrator",
			"job has no downloaded source", nil)
	}

	duration, err := o.executor.ProbeDuration(ctx, job.LocalSourcePath)
	if err != nil {
		return err
	}

	subtitlePath, err := o.writeSubtitles(job)
	if err != nil {
		return err
	}
	job.CaptionsPath = subtitlePath

	result := &analysis.Result{
		TrimStartSec:   job.TrimStartSec,
		TrimEndSec:     job.TrimEndSec,
		HookText:       job.HookText,
		CaptionStyle:   job.CaptionStyle,
		RawDurationSec: duration,
	}
	plan, err := editplan.Build(duration, result, subtitlePath, editplan.OptionsFromConfig(o.cfg.Output))
	if err != nil {
		return err
	}

	outputPath := filepath.Join(o.cfg.OutputDir(), outputName(job))
	artifact, err := o.executor.Execute(ctx, plan, job.LocalSourcePath, outputPath)
	if err != nil {
		return err
	}
	job.EditedOutputPath = artifact.Path

	logger.Debug("edit complete",
		logging.String("artifact", artifact.Path),
		logging.Int64("size_bytes", artifact.SizeBytes),
		logging.Int("encode_attempts", artifact.Attempts))
	return nil
}

// writeSubtitles regenerates the SRT file from the stored transcript,
// re-anchored to the trim window. An empty transcript produces no file.
func (o *Orchestrator) writeSubtitles(job *queue.Job) (string, error) {
	if strings.TrimSpace(job.TranscriptJSON) == "" {
		return "", nil
	}
	var cues []subtitles.Cue
	if err := json.Unmarshal([]byte(job.TranscriptJSON), &cues); err != nil {
		return "", services.Wrap(services.ErrValidation, "editing", "orchestrator",
			"decode stored transcript", err)
	}
	if len(cues) == 0 {
		return "", nil
	}

	shifted := subtitles.ShiftCues(cues, job.TrimStartSec)
	content, err := subtitles.Build(shifted)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(content) == "" {
		return "", nil
	}

	path := filepath.Join(o.cfg.CaptionsDir(), fmt.Sprintf("job-%d.srt", job.ID))
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", services.Wrap(services.ErrResource, "editing", "orchestrator",
			"write subtitle file", err)
	}
	return path, nil
}

func (o *Orchestrator) runPost(ctx context.Context, logger *slog.Logger, job *queue.Job) error {
	publisher, err := o.publishClient()
	if err != nil {
		return err
	}
	if job.EditedOutputPath == "" {
		return services.Wrap(services.ErrValidation, "posting", "orchestrator",
			"job has no edited artifact", nil)
	}

	results, err := publisher.Publish(ctx, job.EditedOutputPath, job.Caption, job.Hashtags(), o.cfg.Destinations())
	if err != nil {
		return err
	}
	job.SetPublishResults(results)

	logger.Debug("publish complete", logging.Int("destinations", len(results)))
	return nil
}

func (o *Orchestrator) analysisClient() (analysis.Analyzer, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.analyzer != nil {
		return o.analyzer, nil
	}
	client, err := analysis.NewClient(o.cfg)
	if err != nil {
		return nil, err
	}
	o.analyzer = client
	return client, nil
}

func (o *Orchestrator) publishClient() (publish.Publisher, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.publisher != nil {
		return o.publisher, nil
	}
	client, err := publish.NewClient(o.cfg)
	if err != nil {
		return nil, err
	}
	o.publisher = client
	return client, nil
}

// outputName derives the artifact file name from the source clip name.
func outputName(job *queue.Job) string {
	base := strings.TrimSuffix(filepath.Base(job.FileName), filepath.Ext(job.FileName))
	if base == "" {
		base = fmt.Sprintf("job-%d", job.ID)
	}
	return base + "-short.mp4"
}
