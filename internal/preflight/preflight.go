package preflight

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"golang.org/x/sys/unix"

	"clipflow/internal/config"
	"clipflow/internal/deps"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Downloads directory", cfg.DownloadsDir()),
		CheckDirectoryAccess("Output directory", cfg.OutputDir()),
		CheckDirectoryAccess("Captions directory", cfg.CaptionsDir()),
	}

	for _, status := range deps.CheckBinaries(deps.Requirements(cfg)) {
		result := Result{Name: status.Name, Passed: status.Available}
		if status.Available {
			result.Detail = status.Command
		} else {
			result.Detail = status.Detail
		}
		results = append(results, result)
	}

	results = append(results,
		checkCredentials("Discovery credentials", map[string]string{
			"base_url":  cfg.Discovery.BaseURL,
			"api_key":   cfg.Discovery.APIKey,
			"folder_id": cfg.Discovery.FolderID,
		}),
		checkCredentials("Analysis credentials", map[string]string{
			"base_url": cfg.Analysis.BaseURL,
			"api_key":  cfg.Analysis.APIKey,
			"model":    cfg.Analysis.Model,
		}),
		checkCredentials("Publish credentials", map[string]string{
			"base_url": cfg.Publish.BaseURL,
			"api_key":  cfg.Publish.APIKey,
		}),
	)

	if len(cfg.Destinations()) == 0 {
		results = append(results, Result{Name: "Publish destinations", Detail: "no integration IDs configured"})
	} else {
		results = append(results, Result{
			Name:   "Publish destinations",
			Passed: true,
			Detail: fmt.Sprintf("%d configured", len(cfg.Destinations())),
		})
	}

	return results
}

// CheckDirectoryAccess verifies that the directory exists and is
// readable and writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

func checkCredentials(name string, fields map[string]string) Result {
	var missing []string
	for field, value := range fields {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return Result{Name: name, Detail: "missing " + strings.Join(missing, ", ")}
	}
	return Result{Name: name, Passed: true, Detail: "configured"}
}
