package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"reticle/internal/config"
)

const userAgent = "Reticle-Go/0.1.0"

// Event identifies a notification type.
type Event string

const (
	EventEntityConfirmed Event = "entity_confirmed"
	EventEntitySearched  Event = "entity_searched"
	EventCameraAttached  Event = "camera_attached"
	EventCameraDetached  Event = "camera_detached"
	EventError           Event = "error"
	EventTest            Event = "test"
)

// Payload carries event fields. Keys are event specific.
type Payload map[string]any

// Service defines the notification surface exposed to the engine and daemon.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
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

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		enabled: map[Event]bool{
			EventEntityConfirmed: cfg.Notifications.Confirmed,
			EventEntitySearched:  cfg.Notifications.Searched,
			EventCameraAttached:  cfg.Notifications.Camera,
			EventCameraDetached:  cfg.Notifications.Camera,
			EventError:           cfg.Notifications.Errors,
			EventTest:            true,
		},
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
	enabled  map[Event]bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, data Payload) error {
	if n == nil || !n.enabled[event] {
		return nil
	}
	msg, ok := format(event, data)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func format(event Event, data Payload) (payload, bool) {
	switch event {
	case EventEntityConfirmed:
		subject := describe(data)
		return payload{
			title:   "Reticle - Confirmed",
			message: fmt.Sprintf("🎯 Confirmed: %s", subject),
			tags:    []string{"reticle", "confirmed", kindTag(data)},
		}, true
	case EventEntitySearched:
		subject := describe(data)
		count := intValue(data, "products")
		message := fmt.Sprintf("🔎 %s: %d results", subject, count)
		if count == 1 {
			message = fmt.Sprintf("🔎 %s: 1 result", subject)
		}
		if first := stringValue(data, "top"); first != "" {
			message = fmt.Sprintf("%s\nTop: %s", message, first)
		}
		p := payload{
			title:   "Reticle - Search Complete",
			message: message,
			tags:    []string{"reticle", "search", "completed"},
		}
		if fallback, _ := data["fallback"].(bool); fallback {
			p.title = "Reticle - Search Failed"
			p.tags = []string{"reticle", "search", "fallback"}
		}
		return p, true
	case EventCameraAttached:
		return payload{
			title:   "Reticle - Camera Attached",
			message: fmt.Sprintf("📷 Camera attached: %s", stringOr(data, "device", "unknown")),
			tags:    []string{"reticle", "camera", "attached"},
		}, true
	case EventCameraDetached:
		return payload{
			title:   "Reticle - Camera Detached",
			message: fmt.Sprintf("📷 Camera detached: %s", stringOr(data, "device", "unknown")),
			tags:    []string{"reticle", "camera", "detached"},
		}, true
	case EventError:
		var builder strings.Builder
		builder.WriteString("❌ Error")
		if label := stringValue(data, "context"); label != "" {
			builder.WriteString(" with ")
			builder.WriteString(label)
		}
		builder.WriteString(": ")
		builder.WriteString(stringOr(data, "error", "unknown"))
		return payload{
			title:    "Reticle - Error",
			message:  builder.String(),
			tags:     []string{"reticle", "error", "alert"},
			priority: "high",
		}, true
	case EventTest:
		return payload{
			title:    "Reticle - Test",
			message:  "🧪 Notification system test",
			tags:     []string{"reticle", "test"},
			priority: "low",
		}, true
	default:
		return payload{}, false
	}
}

// describe renders the entity subject: the barcode value, else the label,
// else the category.
func describe(data Payload) string {
	if v := stringValue(data, "value"); v != "" {
		return v
	}
	if v := stringValue(data, "label"); v != "" {
		return v
	}
	return stringOr(data, "category", "object")
}

func kindTag(data Payload) string {
	if stringValue(data, "value") != "" {
		return "barcode"
	}
	return "object"
}

func stringValue(data Payload, key string) string {
	if data == nil {
		return ""
	}
	switch v := data[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case fmt.Stringer:
		return strings.TrimSpace(v.String())
	case error:
		return strings.TrimSpace(v.Error())
	default:
		return ""
	}
}

func stringOr(data Payload, key, fallback string) string {
	if v := stringValue(data, key); v != "" {
		return v
	}
	return fallback
}

func intValue(data Payload, key string) int {
	if data == nil {
		return 0
	}
	switch v := data[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case uint64:
		return int(v)
	default:
		return 0
	}
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n.client == nil {
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

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
