package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"clipflow/internal/config"
	"clipflow/internal/services"
)

// Analyzer produces an edit decision for a downloaded clip.
type Analyzer interface {
	Analyze(ctx context.Context, localPath string) (*Result, error)
}

// Client talks to a generative content analysis service over HTTP. The
// protocol is upload-then-prompt: the clip is uploaded to the service's file
// store, polled until processed, then referenced in a structured-output
// generation request. Uploaded files are deleted after analysis.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	pollDelay  time.Duration
}

var _ Analyzer = (*Client)(nil)

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

// WithPollDelay overrides the delay between file state polls.
func WithPollDelay(delay time.Duration) Option {
	return func(c *Client) {
		if delay > 0 {
			c.pollDelay = delay
		}
	}
}

// NewClient creates an analysis client from configuration. Missing
// credentials return a configuration error so the failure surfaces as
// non-retryable.
func NewClient(cfg *config.Config, opts ...Option) (*Client, error) {
	baseURL := strings.TrimSpace(cfg.Analysis.BaseURL)
	apiKey := strings.TrimSpace(cfg.Analysis.APIKey)
	model := strings.TrimSpace(cfg.Analysis.Model)
	if baseURL == "" || apiKey == "" || model == "" {
		return nil, services.Wrap(services.ErrConfiguration, "analyzing", "analysis",
			"analysis base_url, api_key, and model must be configured", nil)
	}

	timeout := time.Duration(cfg.Analysis.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}

	client := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
		pollDelay:  3 * time.Second,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

const analysisPrompt = `You are a social media video editor. Analyze this clip intended for vertical short-form platforms and return ONLY a JSON object with these exact fields:

{
  "trim_start_sec": <float, best start time - grab the most engaging moment>,
  "trim_end_sec": <float, best end time - aim for 15-60 seconds total, never exceed 90s>,
  "hook_text": <string, punchy 1-line hook to overlay at the start, max 8 words, all caps>,
  "caption_style": <"bold" or "minimal">,
  "transcript": [{"start": <float>, "end": <float>, "text": <string>}],
  "suggested_caption": <string, 1-3 sentences, no hashtags>,
  "hashtags": [<string>, ...],
  "raw_duration_sec": <float, total video duration>
}

Rules:
- transcript segments should be 3-6 words each for readability
- hashtags: 10-15 relevant ones, no # prefix
- trim for maximum viewer retention, cut slow intros and outros`

type uploadedFile struct {
	Name  string `json:"name"`
	URI   string `json:"uri"`
	State string `json:"state"`
}

type uploadResponse struct {
	File uploadedFile `json:"file"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// Analyze uploads the clip and requests a structured analysis. The returned
// result is already normalized.
func (c *Client) Analyze(ctx context.Context, localPath string) (*Result, error) {
	file, err := c.upload(ctx, localPath)
	if err != nil {
		return nil, err
	}
	defer c.deleteFile(file.Name)

	file, err = c.awaitProcessed(ctx, file)
	if err != nil {
		return nil, err
	}

	raw, err := c.generate(ctx, file)
	if err != nil {
		return nil, err
	}

	result := &Result{}
	if err := json.Unmarshal([]byte(raw), result); err != nil {
		return nil, services.Wrap(services.ErrValidation, "analyzing", "analysis",
			"analysis service returned malformed JSON", err)
	}
	result.Normalize()
	return result, nil
}

func (c *Client) upload(ctx context.Context, localPath string) (uploadedFile, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return uploadedFile{}, services.Wrap(services.ErrResource, "analyzing", "analysis",
			fmt.Sprintf("open clip %s", localPath), err)
	}
	defer f.Close()

	endpoint := c.baseURL + "/upload/v1beta/files?key=" + url.QueryEscape(c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, f)
	if err != nil {
		return uploadedFile{}, fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", "video/mp4")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return uploadedFile{}, services.Wrap(services.ErrTransient, "analyzing", "analysis", "upload clip", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return uploadedFile{}, c.statusError(resp, "upload clip")
	}

	var decoded uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return uploadedFile{}, services.Wrap(services.ErrTransient, "analyzing", "analysis",
			"decode upload response", err)
	}
	if decoded.File.URI == "" {
		return uploadedFile{}, services.Wrap(services.ErrTransient, "analyzing", "analysis",
			"upload response missing file uri", nil)
	}
	return decoded.File, nil
}

func (c *Client) awaitProcessed(ctx context.Context, file uploadedFile) (uploadedFile, error) {
	for strings.EqualFold(file.State, "PROCESSING") {
		select {
		case <-ctx.Done():
			return uploadedFile{}, ctx.Err()
		case <-time.After(c.pollDelay):
		}

		endpoint := c.baseURL + "/v1beta/" + file.Name + "?key=" + url.QueryEscape(c.apiKey)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return uploadedFile{}, fmt.Errorf("build file poll request: %w", err)
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return uploadedFile{}, services.Wrap(services.ErrTransient, "analyzing", "analysis", "poll file state", err)
		}
		var polled uploadedFile
		decodeErr := json.NewDecoder(resp.Body).Decode(&polled)
		resp.Body.Close()
		if decodeErr != nil {
			return uploadedFile{}, services.Wrap(services.ErrTransient, "analyzing", "analysis",
				"decode file state", decodeErr)
		}
		polled.URI = file.URI
		polled.Name = file.Name
		file.State = polled.State
	}

	if strings.EqualFold(file.State, "FAILED") {
		return uploadedFile{}, services.Wrap(services.ErrTransient, "analyzing", "analysis",
			"remote file processing failed", nil)
	}
	return file, nil
}

func (c *Client) generate(ctx context.Context, file uploadedFile) (string, error) {
	body := map[string]any{
		"contents": []map[string]any{{
			"parts": []map[string]any{
				{"file_data": map[string]string{"mime_type": "video/mp4", "file_uri": file.URI}},
				{"text": analysisPrompt},
			},
		}},
		"generationConfig": map[string]any{
			"response_mime_type": "application/json",
			"temperature":        0.3,
		},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("encode generation request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s",
		c.baseURL, url.PathEscape(c.model), url.QueryEscape(c.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build generation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "analyzing", "analysis", "request analysis", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", c.statusError(resp, "request analysis")
	}

	var decoded generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", services.Wrap(services.ErrTransient, "analyzing", "analysis", "decode analysis response", err)
	}
	if len(decoded.Candidates) == 0 || len(decoded.Candidates[0].Content.Parts) == 0 {
		return "", services.Wrap(services.ErrTransient, "analyzing", "analysis",
			"analysis response contained no candidates", nil)
	}
	return strings.TrimSpace(decoded.Candidates[0].Content.Parts[0].Text), nil
}

// deleteFile removes an uploaded clip from the remote file store. Cleanup is
// best effort; analysis has already succeeded or failed by the time it runs.
func (c *Client) deleteFile(name string) {
	if name == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	endpoint := c.baseURL + "/v1beta/" + name + "?key=" + url.QueryEscape(c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}

func (c *Client) statusError(resp *http.Response, operation string) error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	marker := services.ErrTransient
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		marker = services.ErrConfiguration
	case resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests:
		marker = services.ErrValidation
	}
	return services.Wrap(marker, "analyzing", "analysis",
		fmt.Sprintf("%s: status %d: %s", operation, resp.StatusCode, strings.TrimSpace(string(snippet))), nil)
}
