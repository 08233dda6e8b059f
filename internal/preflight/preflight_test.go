package preflight_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"clipflow/internal/preflight"
	"clipflow/internal/testsupport"
)

func TestCheckDirectoryAccess(t *testing.T) {
	dir := t.TempDir()

	result := preflight.CheckDirectoryAccess("Data directory", dir)
	if !result.Passed {
		t.Fatalf("expected existing directory to pass: %+v", result)
	}

	result = preflight.CheckDirectoryAccess("Data directory", filepath.Join(dir, "missing"))
	if result.Passed || !strings.Contains(result.Detail, "does not exist") {
		t.Fatalf("expected missing directory to fail: %+v", result)
	}

	file := filepath.Join(dir, "file")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	result = preflight.CheckDirectoryAccess("Data directory", file)
	if result.Passed || !strings.Contains(result.Detail, "not a directory") {
		t.Fatalf("expected file path to fail: %+v", result)
	}
}

func TestRunAllReportsCredentialGaps(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	cfg.Discovery.APIKey = ""
	cfg.Discovery.FolderID = ""

	results := preflight.RunAll(context.Background(), cfg)

	byName := make(map[string]preflight.Result, len(results))
	for _, result := range results {
		byName[result.Name] = result
	}

	discovery, ok := byName["Discovery credentials"]
	if !ok {
		t.Fatal("missing discovery credentials check")
	}
	if discovery.Passed {
		t.Fatalf("expected discovery check to fail: %+v", discovery)
	}
	if !strings.Contains(discovery.Detail, "api_key") || !strings.Contains(discovery.Detail, "folder_id") {
		t.Fatalf("expected missing fields in detail: %+v", discovery)
	}

	if data, ok := byName["Data directory"]; !ok || !data.Passed {
		t.Fatalf("expected data directory check to pass: %+v", data)
	}

	destinations, ok := byName["Publish destinations"]
	if !ok || !destinations.Passed {
		t.Fatalf("expected destinations check to pass: %+v", destinations)
	}
}
