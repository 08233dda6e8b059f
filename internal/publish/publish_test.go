package publish_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"clipflow/internal/config"
	"clipflow/internal/publish"
	"clipflow/internal/services"
	"clipflow/internal/testsupport"
)

func newTestClient(t *testing.T, serverURL string) *publish.Client {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Publish.BaseURL = serverURL
	cfg.Publish.APIKey = "test-key"

	client, err := publish.NewClient(cfg)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}

func TestPublishUploadsThenPosts(t *testing.T) {
	var uploadCalls, postCalls int
	var postedPayload map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "test-key" {
			t.Errorf("missing authorization header")
		}
		switch r.URL.Path {
		case "/public/v1/upload":
			uploadCalls++
			if err := r.ParseMultipartForm(1 << 20); err != nil {
				t.Errorf("expected multipart upload: %v", err)
			}
			_ = json.NewEncoder(w).Encode(map[string]string{"id": "media-1", "path": "/m/media-1"})
		case "/public/v1/posts":
			postCalls++
			if err := json.NewDecoder(r.Body).Decode(&postedPayload); err != nil {
				t.Errorf("decode post payload: %v", err)
			}
			_ = json.NewEncoder(w).Encode(map[string]string{"id": "post-9"})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	artifact := filepath.Join(t.TempDir(), "out.mp4")
	testsupport.WriteFile(t, artifact, 2048)

	destinations := []config.Destination{
		{Name: "instagram", IntegrationID: "ig-1"},
		{Name: "youtube", IntegrationID: "yt-1"},
	}
	results, err := client.Publish(context.Background(), artifact, "A caption.", []string{"fitness", "shorts"}, destinations)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}

	if uploadCalls != 1 || postCalls != 1 {
		t.Fatalf("expected one upload and one post, got %d/%d", uploadCalls, postCalls)
	}
	if results["instagram"] != "post-9" || results["youtube"] != "post-9" {
		t.Fatalf("unexpected results: %v", results)
	}

	posts, ok := postedPayload["posts"].([]any)
	if !ok || len(posts) != 2 {
		t.Fatalf("expected fan-out over two integrations, got %v", postedPayload["posts"])
	}
	first := posts[0].(map[string]any)
	value := first["value"].([]any)[0].(map[string]any)
	if value["content"] != "A caption.\n\n#fitness #shorts" {
		t.Fatalf("unexpected content: %q", value["content"])
	}
}

func TestPublishNoDestinationsIsConfigurationError(t *testing.T) {
	client := newTestClient(t, "http://127.0.0.1:0")
	artifact := filepath.Join(t.TempDir(), "out.mp4")
	testsupport.WriteFile(t, artifact, 64)

	_, err := client.Publish(context.Background(), artifact, "caption", nil, nil)
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestPublishUploadFailureIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	artifact := filepath.Join(t.TempDir(), "out.mp4")
	testsupport.WriteFile(t, artifact, 64)

	_, err := client.Publish(context.Background(), artifact, "caption", nil,
		[]config.Destination{{Name: "instagram", IntegrationID: "ig-1"}})
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
}

func TestFullCaption(t *testing.T) {
	cases := []struct {
		caption  string
		hashtags []string
		want     string
	}{
		{"Hello.", []string{"a", "b"}, "Hello.\n\n#a #b"},
		{"Hello.", nil, "Hello."},
		{"", []string{"solo"}, "#solo"},
		{"Trim.", []string{"#already", " ", "ok"}, "Trim.\n\n#already #ok"},
	}
	for _, tc := range cases {
		if got := publish.FullCaption(tc.caption, tc.hashtags); got != tc.want {
			t.Errorf("FullCaption(%q, %v) = %q, want %q", tc.caption, tc.hashtags, got, tc.want)
		}
	}
}
