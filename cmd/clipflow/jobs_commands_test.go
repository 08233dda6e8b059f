package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func newFakeAPI(t *testing.T, handler http.HandlerFunc) string {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server.URL
}

func TestJobsCommandRendersTable(t *testing.T) {
	api := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/jobs" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"jobs":[
			{"id":1,"source_ref":"clip-1","file_name":"beach.mp4","status":"done","retry_count":0,"created_at":"2026-08-30T10:00:00Z","updated_at":"2026-08-30T10:05:00Z"},
			{"id":2,"source_ref":"clip-2","file_name":"city.mp4","status":"failed","retry_count":2,"last_error":"analysis request failed","created_at":"2026-08-30T11:00:00Z","updated_at":"2026-08-30T11:03:00Z"}
		]}`))
	})

	out, err := runCommand(t, "--api", api, "jobs")
	if err != nil {
		t.Fatalf("jobs command: %v", err)
	}
	for _, want := range []string{"beach.mp4", "city.mp4", "done", "failed", "analysis request failed"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestJobsCommandForwardsStatusFilter(t *testing.T) {
	var query string
	api := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"jobs":[]}`))
	})

	out, err := runCommand(t, "--api", api, "jobs", "--status", "failed")
	if err != nil {
		t.Fatalf("jobs command: %v", err)
	}
	if query != "status=failed" {
		t.Fatalf("unexpected query: %q", query)
	}
	if !strings.Contains(out, "No jobs found") {
		t.Fatalf("expected empty message, got:\n%s", out)
	}
}

func TestShowCommandPrintsDetails(t *testing.T) {
	api := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/jobs/7" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id":7,"source_ref":"clip-7","file_name":"surf.mp4","status":"done","retry_count":1,
			"caption":"Big wave day","hashtags":["#surf","#ocean"],
			"output_path":"/data/output/surf-short.mp4",
			"publish_results":{"instagram":"post-9"},
			"created_at":"2026-08-30T10:00:00Z","updated_at":"2026-08-30T10:08:00Z","completed_at":"2026-08-30T10:08:00Z"
		}`))
	})

	out, err := runCommand(t, "--api", api, "show", "7")
	if err != nil {
		t.Fatalf("show command: %v", err)
	}
	for _, want := range []string{"Job #7", "surf.mp4", "Big wave day", "#surf #ocean", "surf-short.mp4", "instagram (post post-9)"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRetryCommandReportsResumeStatus(t *testing.T) {
	api := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/jobs/3/retry" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":3,"source_ref":"clip-3","file_name":"run.mp4","status":"editing","retry_count":2,"created_at":"2026-08-30T10:00:00Z","updated_at":"2026-08-30T10:02:00Z"}`))
	})

	out, err := runCommand(t, "--api", api, "retry", "3")
	if err != nil {
		t.Fatalf("retry command: %v", err)
	}
	if !strings.Contains(out, "Job #3 resumed at editing") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestRetryCommandSurfacesAPIError(t *testing.T) {
	api := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"error":"job is not in failed status"}`))
	})

	_, err := runCommand(t, "--api", api, "retry", "3")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "job is not in failed status") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestTriggerCommand(t *testing.T) {
	api := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/trigger" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte(`{"triggered":true}`))
	})

	out, err := runCommand(t, "--api", api, "trigger")
	if err != nil {
		t.Fatalf("trigger command: %v", err)
	}
	if !strings.Contains(out, "Pass triggered") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestStatusCommandRendersSummary(t *testing.T) {
	api := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"running":true,"pid":4242,"job_db_path":"/data/clipflow.db","lock_file_path":"/data/clipflow.lock","jobs":{"total":5,"pending":1,"processing":2,"failed":1,"done":1}}`))
	})

	out, err := runCommand(t, "--api", api, "status")
	if err != nil {
		t.Fatalf("status command: %v", err)
	}
	for _, want := range []string{"== Daemon ==", "Running", "4242", "/data/clipflow.db", "== Jobs =="} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestShowCommandRejectsBadID(t *testing.T) {
	_, err := runCommand(t, "--api", "http://127.0.0.1:1", "show", "abc")
	if err == nil || !strings.Contains(err.Error(), "invalid job id") {
		t.Fatalf("expected invalid id error, got %v", err)
	}
}
