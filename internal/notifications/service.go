package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"clipflow/internal/config"
)

const userAgent = "Clipflow/0.1.0"

// Service defines the notification surface exposed to pipeline components.
type Service interface {
	NotifyJobPublished(ctx context.Context, fileName string, destinations []string) error
	NotifyJobFailed(ctx context.Context, fileName, stage, errorMessage string) error
	NotifyPassCompleted(ctx context.Context, processed, failed int, duration time.Duration) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:        topic,
		client:          &http.Client{Timeout: timeout},
		notifyPublishes: cfg.Notifications.Publishes,
		notifyErrors:    cfg.Notifications.Errors,
		notifyPasses:    cfg.Notifications.Passes,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint        string
	client          *http.Client
	notifyPublishes bool
	notifyErrors    bool
	notifyPasses    bool
}

func (n *ntfyService) NotifyJobPublished(ctx context.Context, fileName string, destinations []string) error {
	if !n.notifyPublishes {
		return nil
	}
	fileName = strings.TrimSpace(fileName)
	message := fmt.Sprintf("Published: %s", fileName)
	if len(destinations) > 0 {
		message = fmt.Sprintf("%s -> %s", message, strings.Join(destinations, ", "))
	}
	data := payload{
		title:    "Clipflow - Published",
		message:  message,
		tags:     []string{"clipflow", "publish", "completed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyJobFailed(ctx context.Context, fileName, stage, errorMessage string) error {
	if !n.notifyErrors {
		return nil
	}
	fileName = strings.TrimSpace(fileName)
	stage = strings.TrimSpace(stage)
	if stage == "" {
		stage = "unknown"
	}

	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("Job failed: %s (stage %s)", fileName, stage))
	if errorMessage = strings.TrimSpace(errorMessage); errorMessage != "" {
		builder.WriteString("\n")
		builder.WriteString(errorMessage)
	}

	data := payload{
		title:    "Clipflow - Job Failed",
		message:  builder.String(),
		tags:     []string{"clipflow", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyPassCompleted(ctx context.Context, processed, failed int, duration time.Duration) error {
	if !n.notifyPasses {
		return nil
	}
	duration = duration.Round(time.Second)
	if duration < 0 {
		duration = 0
	}
	durationText := duration.String()
	if duration == 0 {
		durationText = "0s"
	}

	var title, message string
	if failed == 0 {
		title = "Clipflow - Pass Complete"
		message = fmt.Sprintf("Pass complete: %d jobs processed in %s", processed, durationText)
	} else {
		title = "Clipflow - Pass Complete (with errors)"
		message = fmt.Sprintf("Pass complete: %d succeeded, %d failed in %s", processed, failed, durationText)
	}

	data := payload{
		title:   title,
		message: message,
		tags:    []string{"clipflow", "pass", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Clipflow - Test",
		message:  "Notification system test",
		tags:     []string{"clipflow", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyJobPublished(context.Context, string, []string) error         { return nil }
func (noopService) NotifyJobFailed(context.Context, string, string, string) error      { return nil }
func (noopService) NotifyPassCompleted(context.Context, int, int, time.Duration) error { return nil }
func (noopService) TestNotification(context.Context) error                             { return nil }
