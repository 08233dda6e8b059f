// Package publish posts finished artifacts to social destinations.
//
// The client speaks to a self-hosted social publishing backend in two steps:
// upload the artifact to its media store, then create a post referencing the
// uploaded media for every configured destination. The whole flow is one
// logical attempt; the orchestrator treats publish as at-most-once and never
// retries it automatically.
package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"clipflow/internal/config"
	"clipflow/internal/services"
)

// Publisher posts an artifact and returns a destination-to-post-ID mapping.
type Publisher interface {
	Publish(ctx context.Context, artifactPath, caption string, hashtags []string, destinations []config.Destination) (map[string]string, error)
}

// Client implements Publisher against the publishing backend's public API.
type Client struct {
	baseURL       string
	apiKey        string
	uploadTimeout time.Duration
	postTimeout   time.Duration
	httpClient    *http.Client
}

var _ Publisher = (*Client)(nil)

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

// NewClient creates a publish client from configuration.
func NewClient(cfg *config.Config, opts ...Option) (*Client, error) {
	baseURL := strings.TrimSpace(cfg.Publish.BaseURL)
	apiKey := strings.TrimSpace(cfg.Publish.APIKey)
	if baseURL == "" || apiKey == "" {
		return nil, services.Wrap(services.ErrConfiguration, "posting", "publish",
			"publish base_url and api_key must be configured", nil)
	}

	uploadTimeout := time.Duration(cfg.Publish.UploadTimeout) * time.Second
	if uploadTimeout <= 0 {
		uploadTimeout = 5 * time.Minute
	}
	postTimeout := time.Duration(cfg.Publish.PostTimeout) * time.Second
	if postTimeout <= 0 {
		postTimeout = time.Minute
	}

	client := &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		apiKey:        apiKey,
		uploadTimeout: uploadTimeout,
		postTimeout:   postTimeout,
		httpClient:    &http.Client{},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

type media struct {
	ID   string `json:"id"`
	Path string `json:"path"`
}

// Publish uploads the artifact and creates one post fanned out across all
// destinations. On success every destination maps to the created post ID.
func (c *Client) Publish(ctx context.Context, artifactPath, caption string, hashtags []string, destinations []config.Destination) (map[string]string, error) {
	if len(destinations) == 0 {
		return nil, services.Wrap(services.ErrConfiguration, "posting", "publish",
			"no publish destinations configured", nil)
	}

	uploaded, err := c.upload(ctx, artifactPath)
	if err != nil {
		return nil, err
	}

	postID, err := c.createPost(ctx, uploaded, caption, hashtags, destinations)
	if err != nil {
		return nil, err
	}

	results := make(map[string]string, len(destinations))
	for _, dest := range destinations {
		results[dest.Name] = postID
	}
	return results, nil
}

func (c *Client) upload(ctx context.Context, artifactPath string) (media, error) {
	file, err := os.Open(artifactPath)
	if err != nil {
		return media{}, services.Wrap(services.ErrResource, "posting", "publish",
			fmt.Sprintf("open artifact %s", artifactPath), err)
	}
	defer file.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filepath.Base(artifactPath))
	if err != nil {
		return media{}, fmt.Errorf("create multipart part: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return media{}, services.Wrap(services.ErrResource, "posting", "publish", "read artifact", err)
	}
	if err := writer.Close(); err != nil {
		return media{}, fmt.Errorf("finalize multipart body: %w", err)
	}

	uploadCtx, cancel := context.WithTimeout(ctx, c.uploadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(uploadCtx, http.MethodPost, c.baseURL+"/public/v1/upload", &body)
	if err != nil {
		return media{}, fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Authorization", c.apiKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return media{}, services.Wrap(services.ErrTransient, "posting", "publish", "upload media", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return media{}, c.statusError(resp, "upload media")
	}

	var decoded media
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return media{}, services.Wrap(services.ErrTransient, "posting", "publish", "decode upload response", err)
	}
	if decoded.ID == "" {
		return media{}, services.Wrap(services.ErrTransient, "posting", "publish",
			"upload response missing media id", nil)
	}
	return decoded, nil
}

type postResponse struct {
	ID     string `json:"id"`
	PostID string `json:"postId"`
}

func (c *Client) createPost(ctx context.Context, uploaded media, caption string, hashtags []string, destinations []config.Destination) (string, error) {
	posts := make([]map[string]any, 0, len(destinations))
	for _, dest := range destinations {
		posts = append(posts, map[string]any{
			"integration": map[string]string{"id": dest.IntegrationID},
			"value": []map[string]any{{
				"content": FullCaption(caption, hashtags),
				"image":   []media{uploaded},
			}},
		})
	}
	payload, err := json.Marshal(map[string]any{
		"type":      "now",
		"shortLink": false,
		"tags":      []string{},
		"posts":     posts,
	})
	if err != nil {
		return "", fmt.Errorf("encode post request: %w", err)
	}

	postCtx, cancel := context.WithTimeout(ctx, c.postTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(postCtx, http.MethodPost, c.baseURL+"/public/v1/posts", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build post request: %w", err)
	}
	req.Header.Set("Authorization", c.apiKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "posting", "publish", "create post", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", c.statusError(resp, "create post")
	}

	var decoded postResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", services.Wrap(services.ErrTransient, "posting", "publish", "decode post response", err)
	}
	postID := decoded.ID
	if postID == "" {
		postID = decoded.PostID
	}
	if postID == "" {
		postID = "unknown"
	}
	return postID, nil
}

// FullCaption joins the caption and hashtag block the way destinations
// expect: caption text, blank line, space-separated #tags.
func FullCaption(caption string, hashtags []string) string {
	tags := make([]string, 0, len(hashtags))
	for _, tag := range hashtags {
		tag = strings.TrimSpace(strings.TrimPrefix(tag, "#"))
		if tag == "" {
			continue
		}
		tags = append(tags, "#"+tag)
	}
	return strings.TrimSpace(caption + "\n\n" + strings.Join(tags, " "))
}

func (c *Client) statusError(resp *http.Response, operation string) error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	marker := services.ErrTransient
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		marker = services.ErrConfiguration
	}
	return services.Wrap(marker, "posting", "publish",
		fmt.Sprintf("%s: status %d: %s", operation, resp.StatusCode, strings.TrimSpace(string(snippet))), nil)
}
