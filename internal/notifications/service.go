package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"dima/internal/config"
)

const userAgent = "dima/0.1.0"

// Service defines the notification surface exposed to the orchestrator.
type Service interface {
	NotifyRunStarted(ctx context.Context, runID, pipeline string, stageCount int) error
	NotifyStageCompleted(ctx context.Context, runID, stage, detail string) error
	NotifyStageFailed(ctx context.Context, runID, stage string, err error) error
	NotifyRunCompleted(ctx context.Context, runID, state string, duration time.Duration) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// With no config or no ntfy topic, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) NotifyRunStarted(ctx context.Context, runID, pipeline string, stageCount int) error {
	data := payload{
		title:   "DiMA - Run Started",
		message: fmt.Sprintf("Run %s started: %d stages (%s)", shortRunID(runID), stageCount, pipeline),
		tags:    []string{"dima", "run", "started"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyStageCompleted(ctx context.Context, runID, stage, detail string) error {
	message := fmt.Sprintf("Stage %s finished (run %s)", stage, shortRunID(runID))
	if detail = strings.TrimSpace(detail); detail != "" {
		message = fmt.Sprintf("%s\n%s", message, detail)
	}
	data := payload{
		title:   "DiMA - Stage Complete",
		message: message,
		tags:    []string{"dima", "stage", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyStageFailed(ctx context.Context, runID, stage string, err error) error {
	var builder strings.Builder
	fmt.Fprintf(&builder, "Stage %s failed (run %s)", stage, shortRunID(runID))
	if err != nil {
		builder.WriteString(": ")
		builder.WriteString(strings.TrimSpace(err.Error()))
	}
	data := payload{
		title:    "DiMA - Stage Failed",
		message:  builder.String(),
		tags:     []string{"dima", "stage", "failed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyRunCompleted(ctx context.Context, runID, state string, duration time.Duration) error {
	duration = duration.Round(time.Second)
	if duration < 0 {
		duration = 0
	}

	var title string
	priority := ""
	switch state {
	case "completed":
		title = "DiMA - Run Complete"
		priority = "high"
	case "partially_completed":
		title = "DiMA - Run Complete (with failures)"
		priority = "high"
	default:
		title = "DiMA - Run Aborted"
		priority = "high"
	}
	data := payload{
		title:    title,
		message:  fmt.Sprintf("Run %s finished as %s in %s", shortRunID(runID), state, duration),
		tags:     []string{"dima", "run", state},
		priority: priority,
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "DiMA - Test",
		message:  "Notification system test",
		tags:     []string{"dima", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func shortRunID(runID string) string {
	runID = strings.TrimSpace(runID)
	if len(runID) > 8 {
		return runID[:8]
	}
	if runID == "" {
		return "unknown"
	}
	return runID
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

func (noopService) NotifyRunStarted(context.Context, string, string, int) error { return nil }
func (noopService) NotifyStageCompleted(context.Context, string, string, string) error {
	return nil
}
func (noopService) NotifyStageFailed(context.Context, string, string, error) error { return nil }
func (noopService) NotifyRunCompleted(context.Context, string, string, time.Duration) error {
	return nil
}
func (noopService) TestNotification(context.Context) error { return nil }
