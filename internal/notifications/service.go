package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"watchpost/internal/config"
)

const userAgent = "Watchpost/0.1.0"

// Intrusion describes a corroborated PIR detection.
type Intrusion struct {
	DeviceID   string
	Confidence float64
	Channels   []string
	DetectedAt int64
}

// Service defines the notification surface used by the daemon.
type Service interface {
	NotifyIntrusion(ctx context.Context, intrusion Intrusion) error
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
	return &ntfyService{
		endpoint: topic,
		device:   cfg.Device.ID,
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
	device   string
	client   *http.Client
}

func (n *ntfyService) NotifyIntrusion(ctx context.Context, intrusion Intrusion) error {
	device := strings.TrimSpace(intrusion.DeviceID)
	if device == "" {
		device = n.device
	}
	var builder strings.Builder
	fmt.Fprintf(&builder, "Intrusion detected by %s (confidence %.0f%%)", device, intrusion.Confidence*100)
	if len(intrusion.Channels) > 0 {
		fmt.Fprintf(&builder, "\nSensors: %s", strings.Join(intrusion.Channels, ", "))
	}
	if intrusion.DetectedAt > 0 {
		fmt.Fprintf(&builder, "\nAt: %s", time.Unix(intrusion.DetectedAt, 0).UTC().Format(time.RFC3339))
	}
	return n.send(ctx, payload{
		title:    "Watchpost - Intrusion",
		message:  builder.String(),
		tags:     []string{"watchpost", "intrusion", "rotating_light"},
		priority: "urgent",
	})
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
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
	return n.send(ctx, payload{
		title:    "Watchpost - Error",
		message:  builder.String(),
		tags:     []string{"watchpost", "error"},
		priority: "high",
	})
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.send(ctx, payload{
		title:    "Watchpost - Test",
		message:  fmt.Sprintf("Notification test from %s", n.device),
		tags:     []string{"watchpost", "test"},
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

func (noopService) NotifyIntrusion(context.Context, Intrusion) error { return nil }
func (noopService) NotifyError(context.Context, error, string) error { return nil }
func (noopService) TestNotification(context.Context) error           { return nil }
