package transcode_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"clipflow/internal/analysis"
	"clipflow/internal/editplan"
	"clipflow/internal/services"
	"clipflow/internal/testsupport"
	"clipflow/internal/transcode"
)

// fakeRunner writes a file of the scripted size for each ffmpeg invocation.
type fakeRunner struct {
	sizes  []int64
	calls  int
	args   [][]string
	failAt int
}

func (f *fakeRunner) Run(ctx context.Context, binary string, args []string) (string, error) {
	if binary == "ffprobe" {
		return "60.0\n", nil
	}
	f.calls++
	f.args = append(f.args, args)
	if f.failAt > 0 && f.calls == f.failAt {
		return "ffmpeg exploded", errors.New("exit status 1")
	}
	outputPath := args[len(args)-1]
	size := int64(1024)
	if f.calls <= len(f.sizes) {
		size = f.sizes[f.calls-1]
	}
	data := make([]byte, size)
	if err := os.WriteFile(outputPath, data, 0o644); err != nil {
		return "", err
	}
	return "", nil
}

func buildPlan(t *testing.T) *editplan.Plan {
	t.Helper()
	result := &analysis.Result{TrimStartSec: 0, TrimEndSec: 30, HookText: "hook"}
	plan, err := editplan.Build(60, result, "", editplan.Options{
		MaxSizeMB:        15,
		ReencodeAttempts: 3,
		CRF:              23,
		AudioBitrateKbps: 128,
		HookSeconds:      3,
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return plan
}

func TestExecuteFitsOnFirstAttempt(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	runner := &fakeRunner{sizes: []int64{10 * 1024 * 1024}}
	executor := transcode.NewExecutor(cfg, nil, transcode.WithRunner(runner))

	output := filepath.Join(t.TempDir(), "out.mp4")
	artifact, err := executor.Execute(context.Background(), buildPlan(t), "in.mp4", output)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if artifact.Attempts != 1 {
		t.Fatalf("expected one attempt, got %d", artifact.Attempts)
	}
	if artifact.SizeBytes != 10*1024*1024 {
		t.Fatalf("unexpected artifact size %d", artifact.SizeBytes)
	}
	if _, err := os.Stat(output); err != nil {
		t.Fatalf("expected promoted output: %v", err)
	}
	if _, err := os.Stat(output + ".tmp.mp4"); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("expected temp file removed")
	}
}

func TestExecuteStepsDownOnceWhenOversized(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	runner := &fakeRunner{sizes: []int64{20 * 1024 * 1024, 12 * 1024 * 1024}}
	executor := transcode.NewExecutor(cfg, nil, transcode.WithRunner(runner))

	output := filepath.Join(t.TempDir(), "out.mp4")
	artifact, err := executor.Execute(context.Background(), buildPlan(t), "in.mp4", output)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if artifact.Attempts != 2 {
		t.Fatalf("expected exactly one step-down (two attempts), got %d", artifact.Attempts)
	}

	first := strings.Join(runner.args[0], " ")
	second := strings.Join(runner.args[1], " ")
	if !strings.Contains(first, "-crf") {
		t.Errorf("first attempt should use constant quality:\n%s", first)
	}
	if !strings.Contains(second, "-maxrate") {
		t.Errorf("second attempt should cap bitrate:\n%s", second)
	}
}

func TestExecuteExhaustsAttemptsWithSizeConstraint(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	oversized := int64(30 * 1024 * 1024)
	runner := &fakeRunner{sizes: []int64{oversized, oversized, oversized, oversized}}
	executor := transcode.NewExecutor(cfg, nil, transcode.WithRunner(runner))

	output := filepath.Join(t.TempDir(), "out.mp4")
	_, err := executor.Execute(context.Background(), buildPlan(t), "in.mp4", output)
	if !errors.Is(err, services.ErrSizeConstraint) {
		t.Fatalf("expected size constraint error, got %v", err)
	}
	// reencode_attempts=3 allows three capped re-encodes after the initial
	// constant-quality encode.
	if runner.calls != 4 {
		t.Fatalf("expected four invocations, got %d", runner.calls)
	}
	if _, statErr := os.Stat(output); !errors.Is(statErr, os.ErrNotExist) {
		t.Fatal("expected no promoted output")
	}
	if _, statErr := os.Stat(output + ".tmp.mp4"); !errors.Is(statErr, os.ErrNotExist) {
		t.Fatal("expected temp file removed")
	}
}

func TestExecuteFfmpegFailureIsResourceError(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	runner := &fakeRunner{failAt: 1}
	executor := transcode.NewExecutor(cfg, nil, transcode.WithRunner(runner))

	output := filepath.Join(t.TempDir(), "out.mp4")
	_, err := executor.Execute(context.Background(), buildPlan(t), "in.mp4", output)
	if !errors.Is(err, services.ErrResource) {
		t.Fatalf("expected resource error, got %v", err)
	}
}

func TestExecuteCancelledContext(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	runner := &fakeRunner{}
	executor := transcode.NewExecutor(cfg, nil, transcode.WithRunner(runner))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	output := filepath.Join(t.TempDir(), "out.mp4")
	_, err := executor.Execute(ctx, buildPlan(t), "in.mp4", output)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if runner.calls != 0 {
		t.Fatalf("expected no ffmpeg invocation, got %d", runner.calls)
	}
}

func TestProbeDuration(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	runner := &fakeRunner{}
	executor := transcode.NewExecutor(cfg, nil, transcode.WithRunner(runner))

	duration, err := executor.ProbeDuration(context.Background(), "in.mp4")
	if err != nil {
		t.Fatalf("ProbeDuration: %v", err)
	}
	if duration != 60 {
		t.Fatalf("expected 60s, got %v", duration)
	}
}
