// Package discovery finds new source clips in a watched remote folder.
//
// The adapter polls a cloud drive folder over HTTP and downloads clips into
// the local downloads directory. Downloads overwrite any partial file from a
// previous attempt, so a resumed download stage is always safe to re-run.
package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"clipflow/internal/config"
	"clipflow/internal/services"
)

// Candidate is a remote clip that may become a job.
type Candidate struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	MimeType    string    `json:"mimeType"`
	SizeBytes   int64     `json:"size,string"`
	CreatedTime time.Time `json:"createdTime"`
}

// Adapter lists and downloads source clips.
type Adapter interface {
	Poll(ctx context.Context) ([]Candidate, error)
	Download(ctx context.Context, candidate Candidate, destDir string) (string, error)
}

// supportedExtensions are the container formats accepted for ingestion.
var supportedExtensions = map[string]struct{}{
	".mp4":  {},
	".mov":  {},
	".avi":  {},
	".mkv":  {},
	".webm": {},
}

// SupportedExtension reports whether a file name carries an ingestible
// video extension.
func SupportedExtension(name string) bool {
	_, ok := supportedExtensions[strings.ToLower(filepath.Ext(name))]
	return ok
}

// Client polls a drive-style HTTP API for folder contents.
type Client struct {
	baseURL    string
	apiKey     string
	folderID   string
	httpClient *http.Client
}

var _ Adapter = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient creates a discovery client from configuration.
func NewClient(cfg *config.Config, opts ...Option) (*Client, error) {
	baseURL := strings.TrimSpace(cfg.Discovery.BaseURL)
	apiKey := strings.TrimSpace(cfg.Discovery.APIKey)
	folderID := strings.TrimSpace(cfg.Discovery.FolderID)
	if baseURL == "" || apiKey == "" || folderID == "" {
		return nil, services.Wrap(services.ErrConfiguration, "downloading", "discovery",
			"discovery base_url, api_key, and folder_id must be configured", nil)
	}

	timeout := time.Duration(cfg.Discovery.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	client := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		folderID:   folderID,
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

type listResponse struct {
	Files []Candidate `json:"files"`
}

// Poll lists folder contents newest first, filtered to supported video
// extensions. Deduplication against existing jobs is the orchestrator's
// responsibility.
func (c *Client) Poll(ctx context.Context) ([]Candidate, error) {
	endpoint, err := url.Parse(c.baseURL + "/files")
	if err != nil {
		return nil, fmt.Errorf("parse discovery url: %w", err)
	}
	params := url.Values{}
	params.Set("q", fmt.Sprintf("'%s' in parents and trashed=false", c.folderID))
	params.Set("fields", "files(id, name, mimeType, createdTime, size)")
	params.Set("orderBy", "createdTime desc")
	params.Set("pageSize", "50")
	endpoint.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build list request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "downloading", "discovery", "list folder", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, c.statusError(resp, "list folder")
	}

	var decoded listResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, services.Wrap(services.ErrTransient, "downloading", "discovery", "decode folder listing", err)
	}

	candidates := make([]Candidate, 0, len(decoded.Files))
	for _, candidate := range decoded.Files {
		if !SupportedExtension(candidate.Name) {
			continue
		}
		candidates = append(candidates, candidate)
	}
	return candidates, nil
}

// Download fetches a clip into destDir, overwriting any existing file of the
// same name. Returns the local path.
func (c *Client) Download(ctx context.Context, candidate Candidate, destDir string) (string, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", services.Wrap(services.ErrResource, "downloading", "discovery", "create downloads dir", err)
	}

	endpoint := fmt.Sprintf("%s/files/%s?alt=media", c.baseURL, url.PathEscape(candidate.ID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("build download request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "downloading", "discovery", "download clip", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", c.statusError(resp, "download clip")
	}

	destPath := filepath.Join(destDir, filepath.Base(candidate.Name))
	tempPath := destPath + ".partial"
	file, err := os.Create(tempPath)
	if err != nil {
		return "", services.Wrap(services.ErrResource, "downloading", "discovery", "create download file", err)
	}

	if _, err := io.Copy(file, resp.Body); err != nil {
		file.Close()
		_ = os.Remove(tempPath)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", services.Wrap(services.ErrTransient, "downloading", "discovery", "stream clip body", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tempPath)
		return "", services.Wrap(services.ErrResource, "downloading", "discovery", "finalize download", err)
	}
	if err := os.Rename(tempPath, destPath); err != nil {
		_ = os.Remove(tempPath)
		return "", services.Wrap(services.ErrResource, "downloading", "discovery", "promote download", err)
	}
	return destPath, nil
}

func (c *Client) statusError(resp *http.Response, operation string) error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	marker := services.ErrTransient
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		marker = services.ErrConfiguration
	}
	return services.Wrap(marker, "downloading", "discovery",
		fmt.Sprintf("%s: status %d: %s", operation, resp.StatusCode, strings.TrimSpace(string(snippet))), nil)
}
