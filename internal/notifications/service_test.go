package notifications_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"clipflow/internal/notifications"
	"clipflow/internal/testsupport"
)

type captured struct {
	title    string
	message  string
	tags     string
	priority string
}

func newCaptureServer(t *testing.T, sink *[]captured) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := make([]byte, r.ContentLength)
		_, _ = r.Body.Read(body)
		*sink = append(*sink, captured{
			title:    r.Header.Get("Title"),
			message:  string(body),
			tags:     r.Header.Get("Tags"),
			priority: r.Header.Get("Priority"),
		})
		w.WriteHeader(http.StatusOK)
	}))
}

func TestNotifyJobPublished(t *testing.T) {
	var sink []captured
	server := newCaptureServer(t, &sink)
	defer server.Close()

	cfg := testsupport.NewConfig(t)
	cfg.Notifications.NtfyTopic = server.URL

	service := notifications.NewService(cfg)
	err := service.NotifyJobPublished(context.Background(), "clip.mp4", []string{"instagram", "youtube"})
	if err != nil {
		t.Fatalf("NotifyJobPublished: %v", err)
	}
	if len(sink) != 1 {
		t.Fatalf("expected one notification, got %d", len(sink))
	}
	if !strings.Contains(sink[0].message, "clip.mp4") || !strings.Contains(sink[0].message, "instagram") {
		t.Fatalf("unexpected message %q", sink[0].message)
	}
	if sink[0].priority != "high" {
		t.Fatalf("expected high priority, got %q", sink[0].priority)
	}
}

func TestNotifyJobFailedIncludesStage(t *testing.T) {
	var sink []captured
	server := newCaptureServer(t, &sink)
	defer server.Close()

	cfg := testsupport.NewConfig(t)
	cfg.Notifications.NtfyTopic = server.URL

	service := notifications.NewService(cfg)
	err := service.NotifyJobFailed(context.Background(), "clip.mp4", "editing", "ffmpeg failed")
	if err != nil {
		t.Fatalf("NotifyJobFailed: %v", err)
	}
	if len(sink) != 1 {
		t.Fatalf("expected one notification, got %d", len(sink))
	}
	if !strings.Contains(sink[0].message, "stage editing") || !strings.Contains(sink[0].message, "ffmpeg failed") {
		t.Fatalf("unexpected message %q", sink[0].message)
	}
}

func TestDisabledEventClassesAreSilent(t *testing.T) {
	var sink []captured
	server := newCaptureServer(t, &sink)
	defer server.Close()

	cfg := testsupport.NewConfig(t)
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.Publishes = false
	cfg.Notifications.Passes = false

	service := notifications.NewService(cfg)
	if err := service.NotifyJobPublished(context.Background(), "clip.mp4", nil); err != nil {
		t.Fatalf("NotifyJobPublished: %v", err)
	}
	if err := service.NotifyPassCompleted(context.Background(), 3, 0, time.Minute); err != nil {
		t.Fatalf("NotifyPassCompleted: %v", err)
	}
	if len(sink) != 0 {
		t.Fatalf("expected no notifications, got %d", len(sink))
	}
}

func TestNoTopicYieldsNoop(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Notifications.NtfyTopic = ""

	service := notifications.NewService(cfg)
	if err := service.TestNotification(context.Background()); err != nil {
		t.Fatalf("expected noop success, got %v", err)
	}
}
