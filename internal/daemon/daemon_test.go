package daemon_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"clipflow/internal/daemon"
	"clipflow/internal/orchestrator"
	"clipflow/internal/queue"
	"clipflow/internal/testsupport"
)

func startDaemon(t *testing.T) (*daemon.Daemon, *queue.Store, string) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	orch := orchestrator.New(cfg, store, nil)

	d, err := daemon.New(cfg, store, nil, orch)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("daemon.Start: %v", err)
	}
	t.Cleanup(d.Stop)

	return d, store, "http://" + d.APIAddr()
}

func TestHealthEndpoint(t *testing.T) {
	_, store, base := startDaemon(t)
	testsupport.NewJob(t, store, "clip-1", "clip.mp4")

	resp, err := http.Get(base + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var status daemon.Status
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !status.Running {
		t.Fatal("expected running daemon")
	}
	if status.Jobs.Total != 1 || status.Jobs.Pending != 1 {
		t.Fatalf("unexpected job summary: %+v", status.Jobs)
	}
}

func TestJobsEndpointFiltersByStatus(t *testing.T) {
	_, store, base := startDaemon(t)
	testsupport.NewJob(t, store, "clip-1", "a.mp4")
	moving := testsupport.NewJob(t, store, "clip-2", "b.mp4")
	moving.Status = queue.StatusDownloading
	if _, err := store.Update(context.Background(), moving, queue.StatusPending); err != nil {
		t.Fatalf("advance: %v", err)
	}

	resp, err := http.Get(base + "/jobs?status=pending")
	if err != nil {
		t.Fatalf("GET /jobs: %v", err)
	}
	defer resp.Body.Close()

	var payload struct {
		Jobs []struct {
			ID     int64  `json:"id"`
			Status string `json:"status"`
		} `json:"jobs"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(payload.Jobs) != 1 || payload.Jobs[0].Status != "pending" {
		t.Fatalf("unexpected jobs: %+v", payload.Jobs)
	}
}

func TestJobsEndpointRejectsUnknownStatus(t *testing.T) {
	_, _, base := startDaemon(t)

	resp, err := http.Get(base + "/jobs?status=sideways")
	if err != nil {
		t.Fatalf("GET /jobs: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}

	var payload struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.Contains(payload.Error, `"sideways"`) || !strings.Contains(payload.Error, "pending") {
		t.Fatalf("expected error to list valid statuses, got %q", payload.Error)
	}
}

func TestGetJobByID(t *testing.T) {
	_, store, base := startDaemon(t)
	job := testsupport.NewJob(t, store, "clip-1", "clip.mp4")

	resp, err := http.Get(fmt.Sprintf("%s/jobs/%d", base, job.ID))
	if err != nil {
		t.Fatalf("GET /jobs/{id}: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	missing, err := http.Get(base + "/jobs/9999")
	if err != nil {
		t.Fatalf("GET missing job: %v", err)
	}
	defer missing.Body.Close()
	if missing.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", missing.StatusCode)
	}
}

func TestRetryEndpointRequiresFailedStatus(t *testing.T) {
	_, store, base := startDaemon(t)
	job := testsupport.NewJob(t, store, "clip-1", "clip.mp4")

	resp, err := http.Post(fmt.Sprintf("%s/jobs/%d/retry", base, job.ID), "", nil)
	if err != nil {
		t.Fatalf("POST retry: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for non-failed job, got %d", resp.StatusCode)
	}

	job.Status = queue.StatusFailed
	job.FailedStage = queue.StatusEditing
	job.LastError = "boom"
	if _, err := store.Update(context.Background(), job, queue.StatusPending); err != nil {
		t.Fatalf("fail job: %v", err)
	}

	retry, err := http.Post(fmt.Sprintf("%s/jobs/%d/retry", base, job.ID), "", nil)
	if err != nil {
		t.Fatalf("POST retry: %v", err)
	}
	defer retry.Body.Close()
	if retry.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", retry.StatusCode)
	}

	var view struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(retry.Body).Decode(&view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if view.Status != "editing" {
		t.Fatalf("expected resume at editing, got %q", view.Status)
	}
}

func TestTriggerEndpointReturnsAccepted(t *testing.T) {
	_, _, base := startDaemon(t)

	resp, err := http.Post(base+"/trigger", "", nil)
	if err != nil {
		t.Fatalf("POST /trigger: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
}

func TestSecondInstanceRejected(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	first, err := daemon.New(cfg, store, nil, orchestrator.New(cfg, store, nil))
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	defer first.Stop()

	second, err := daemon.New(cfg, store, nil, orchestrator.New(cfg, store, nil))
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	err = second.Start(context.Background())
	if err == nil {
		second.Stop()
		t.Fatal("expected second instance to be rejected")
	}
	if !strings.Contains(err.Error(), "already running") {
		t.Fatalf("unexpected error: %v", err)
	}
}
