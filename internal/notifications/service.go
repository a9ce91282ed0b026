package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"scribe/internal/config"
)

const userAgent = "scribe/0.1.0"

// RunSummary is the information a run-finished message carries.
type RunSummary struct {
	RunID    string
	Source   string
	State    string
	Error    string
	Duration time.Duration
	// Degraded lists optional stages that produced placeholder output.
	Degraded []string
}

// Service defines the notification surface used by the CLI.
type Service interface {
	NotifyRunFinished(ctx context.Context, summary RunSummary) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:      topic,
		client:        &http.Client{Timeout: timeout},
		notifySuccess: cfg.Notifications.NotifySuccess,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint      string
	client        *http.Client
	notifySuccess bool
}

func (n *ntfyService) NotifyRunFinished(ctx context.Context, summary RunSummary) error {
	name := filepath.Base(strings.TrimSpace(summary.Source))
	if name == "" || name == "." {
		name = summary.RunID
	}
	duration := summary.Duration.Round(time.Second)
	if duration < 0 {
		duration = 0
	}

	var data payload
	switch summary.State {
	case "SUCCEEDED":
		if !n.notifySuccess {
			return nil
		}
		message := fmt.Sprintf("Transcript ready: %s (%s)", name, duration)
		if len(summary.Degraded) > 0 {
			message += "\nPlaceholder output from: " + strings.Join(summary.Degraded, ", ")
		}
		data = payload{
			title:   "Scribe - Transcript Ready",
			message: message,
			tags:    []string{"scribe", "run", "completed"},
		}
	case "CANCELLED":
		data = payload{
			title:   "Scribe - Run Interrupted",
			message: fmt.Sprintf("Run %s for %s was interrupted\nResume with: scribe run --resume --run-id %s", summary.RunID, name, summary.RunID),
			tags:    []string{"scribe", "run", "interrupted"},
		}
	default:
		var b strings.Builder
		fmt.Fprintf(&b, "Run %s for %s failed", summary.RunID, name)
		if msg := strings.TrimSpace(summary.Error); msg != "" {
			b.WriteString(": ")
			b.WriteString(msg)
		}
		data = payload{
			title:    "Scribe - Run Failed",
			message:  b.String(),
			tags:     []string{"scribe", "error", "alert"},
			priority: "high",
		}
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.send(ctx, payload{
		title:    "Scribe - Test",
		message:  "Notification system test",
		tags:     []string{"scribe", "test"},
		priority: "low",
	})
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
	if data.priority != "" {
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

func (noopService) NotifyRunFinished(context.Context, RunSummary) error { return nil }
func (noopService) TestNotification(context.Context) error              { return nil }
