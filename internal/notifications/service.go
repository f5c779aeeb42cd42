package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"royalty/internal/config"
)

const userAgent = "royalty/0.1.0"

// Event names a notification kind.
type Event string

const (
	EventSyncCompleted Event = "sync_completed"
	EventSyncCancelled Event = "sync_cancelled"
	EventSyncStarted   Event = "sync_started"
	EventManualUpload  Event = "manual_upload"
	EventError         Event = "error"
	EventTest          Event = "test"
)

// Payload carries event fields. Values are formatted with %v.
type Payload map[string]any

// Service publishes events.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds an ntfy-backed Service, or a no-op when no topic is set.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Events.NtfyTopic)
	if topic == "" {
		return noopService{}
	}
	endpoint := topic
	if !strings.HasPrefix(topic, "http://") && !strings.HasPrefix(topic, "https://") {
		endpoint = strings.TrimRight(config.NtfyServer(), "/") + "/" + topic
	}

	timeout := time.Duration(cfg.Events.RequestTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		printer:  message.NewPrinter(language.Korean),
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
	printer  *message.Printer
}

func (n *ntfyService) Publish(ctx context.Context, event Event, data Payload) error {
	msg, ok := n.format(event, data)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func (n *ntfyService) format(event Event, data Payload) (payload, bool) {
	switch event {
	case EventSyncCompleted:
		failed := stringSlice(data["failedMonths"])
		msg := payload{
			title:   "Royalty - Sync Complete",
			message: fmt.Sprintf("Synced total: %s", n.amount(data["totalSum"])),
			tags:    []string{"royalty", "sync", "completed"},
		}
		if len(failed) > 0 {
			msg.title = "Royalty - Sync Complete (with failures)"
			msg.message = fmt.Sprintf("%s\nFailed months: %s", msg.message, strings.Join(failed, ", "))
			msg.tags = []string{"royalty", "sync", "warning"}
		}
		return msg, true
	case EventSyncCancelled:
		reason := text(data["reason"])
		if reason == "" {
			reason = "cancelled by request"
		}
		return payload{
			title:   "Royalty - Sync Cancelled",
			message: fmt.Sprintf("Sync cancelled: %s", reason),
			tags:    []string{"royalty", "sync", "cancelled"},
		}, true
	case EventManualUpload:
		return payload{
			title:   "Royalty - Upload Saved",
			message: fmt.Sprintf("Saved %v records for %s", data["savedCount"], text(data["settlementMonth"])),
			tags:    []string{"royalty", "upload"},
		}, true
	case EventError:
		var builder strings.Builder
		builder.WriteString("Error")
		if label := text(data["context"]); label != "" {
			builder.WriteString(" during ")
			builder.WriteString(label)
		}
		builder.WriteString(": ")
		if detail := text(data["error"]); detail != "" {
			builder.WriteString(detail)
		} else {
			builder.WriteString("unknown")
		}
		return payload{
			title:    "Royalty - Error",
			message:  builder.String(),
			tags:     []string{"royalty", "error", "alert"},
			priority: "high",
		}, true
	case EventTest:
		return payload{
			title:    "Royalty - Test",
			message:  "Notification system test",
			tags:     []string{"royalty", "test"},
			priority: "low",
		}, true
	default:
		// sync_started and unknown events are not worth a push.
		return payload{}, false
	}
}

func (n *ntfyService) amount(value any) string {
	switch v := value.(type) {
	case int64:
		return n.printer.Sprintf("%d", v)
	case int:
		return n.printer.Sprintf("%d", v)
	default:
		return text(value)
	}
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

func text(value any) string {
	if value == nil {
		return ""
	}
	if err, ok := value.(error); ok {
		return strings.TrimSpace(err.Error())
	}
	return strings.TrimSpace(fmt.Sprint(value))
}

func stringSlice(value any) []string {
	switch v := value.(type) {
	case []string:
		return v
	case nil:
		return nil
	default:
		return []string{text(v)}
	}
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
