package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"planproc/internal/config"
)

const userAgent = "PlanProc-Go/0.1.0"

// Service defines the notification surface exposed to the coordinator and
// the daemon.
type Service interface {
	NotifyPlanCompleted(ctx context.Context, planID string, totalSheets, validSheets int) error
	NotifyPlanFailed(ctx context.Context, planID, reason string) error
	NotifyError(ctx context.Context, err error, context string) error
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

	perMinute := cfg.Notifications.ErrorsPerMinute
	if perMinute <= 0 {
		perMinute = 6
	}
	burst := cfg.Notifications.ErrorBurst
	if burst <= 0 {
		burst = 3
	}

	return &ntfyService{
		endpoint:     topic,
		client:       &http.Client{Timeout: timeout},
		completion:   cfg.Notifications.Completion,
		failure:      cfg.Notifications.Failure,
		errorLimiter: rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), burst),
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint   string
	client     *http.Client
	completion bool
	failure    bool
	// errorLimiter keeps a flapping worker fleet from flooding the topic.
	errorLimiter *rate.Limiter
}

func (n *ntfyService) NotifyPlanCompleted(ctx context.Context, planID string, totalSheets, validSheets int) error {
	if !n.completion {
		return nil
	}
	planID = strings.TrimSpace(planID)
	message := fmt.Sprintf("Plan processed: %s (%d of %d sheets valid)", planID, validSheets, totalSheets)
	data := payload{
		title:   "PlanProc - Plan Complete",
		message: message,
		tags:    []string{"planproc", "plan", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyPlanFailed(ctx context.Context, planID, reason string) error {
	if !n.failure {
		return nil
	}
	planID = strings.TrimSpace(planID)
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "unknown"
	}
	data := payload{
		title:    "PlanProc - Plan Failed",
		message:  fmt.Sprintf("Plan failed: %s\nReason: %s", planID, reason),
		tags:     []string{"planproc", "plan", "failed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	if !n.errorLimiter.Allow() {
		return nil
	}

	var builder strings.Builder
	builder.WriteString("Error")
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		builder.WriteString(" with ")
		builder.WriteString(contextLabel)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}

	data := payload{
		title:    "PlanProc - Error",
		message:  builder.String(),
		tags:     []string{"planproc", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "PlanProc - Test",
		message:  "Notification system test",
		tags:     []string{"planproc", "test"},
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

func (noopService) NotifyPlanCompleted(context.Context, string, int, int) error { return nil }
func (noopService) NotifyPlanFailed(context.Context, string, string) error      { return nil }
func (noopService) NotifyError(context.Context, error, string) error            { return nil }
func (noopService) TestNotification(context.Context) error                      { return nil }
