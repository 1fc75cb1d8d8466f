// Package notify is the durable operator-alert outbox. Enqueue writes a
// pending row and nothing else; Drain delivers pending rows to the
// configured channel, exactly one attempt per row.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/livedesk-ai/livedesk/internal/store"
)

// Notification types the dispatcher enqueues.
const (
	TypeChatRequest = "chat_request"
	TypeNewFriend   = "new_friend"
	TypeFriendLeft  = "friend_left"
	TypeSystem      = "system"
)

// Sender delivers one rendered message to a chat channel and returns the
// channel-side message id.
type Sender interface {
	Name() string
	Send(ctx context.Context, text string) (string, error)
}

// DrainResult summarizes one Drain pass.
type DrainResult struct {
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
}

// DeliveryError wraps a sender failure for one notification.
type DeliveryError struct {
	NotificationID string
	Channel        string
	Err            error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("notify: deliver %s via %s: %v", e.NotificationID, e.Channel, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// Queue couples the notification store with a delivery channel.
type Queue struct {
	store  store.NotificationStore
	sender Sender
}

// NewQueue builds a queue. A nil sender is allowed; Enqueue still works and
// Drain logs a warning and leaves everything pending.
func NewQueue(st store.NotificationStore, sender Sender) *Queue {
	return &Queue{store: st, sender: sender}
}

// Enqueue inserts a pending notification. It performs no network I/O, so
// callers on the webhook path never block on the alert channel.
func (q *Queue) Enqueue(ctx context.Context, typ, title, body string, payload map[string]any) (string, error) {
	var raw json.RawMessage
	if len(payload) > 0 {
		data, err := json.Marshal(payload)
		if err != nil {
			return "", fmt.Errorf("notify: marshal payload: %w", err)
		}
		raw = data
	}
	n := &store.Notification{
		ID:      uuid.Must(uuid.NewV7()).String(),
		Type:    typ,
		Title:   title,
		Body:    body,
		Payload: raw,
		Status:  store.NotificationPending,
	}
	if err := q.store.Insert(ctx, n); err != nil {
		return "", fmt.Errorf("notify: insert: %w", err)
	}
	slog.Info("notification enqueued",
		"category", "notify", "subcategory", "enqueued",
		"notification_id", n.ID, "type", typ)
	return n.ID, nil
}

// Drain loads up to maxN pending notifications and attempts delivery once
// each. Success moves the row to sent, failure to failed; neither is ever
// retried by a later pass.
func (q *Queue) Drain(ctx context.Context, maxN int) (DrainResult, error) {
	var res DrainResult

	if q.sender == nil {
		slog.Warn("notification channel not configured, leaving queue pending",
			"category", "notify", "subcategory", "config_missing")
		return res, nil
	}

	pending, err := q.store.Pending(ctx, maxN)
	if err != nil {
		return res, fmt.Errorf("notify: load pending: %w", err)
	}

	for i := range pending {
		n := &pending[i]
		text := Render(n)
		msgID, err := q.sender.Send(ctx, text)
		if err != nil {
			res.Failed++
			derr := &DeliveryError{NotificationID: n.ID, Channel: q.sender.Name(), Err: err}
			slog.Error("notification delivery failed",
				"category", "notify", "subcategory", "send_failed",
				"notification_id", n.ID, "channel", q.sender.Name(), "error", err)
			if merr := q.store.MarkFailed(ctx, n.ID, derr.Error()); merr != nil {
				slog.Error("mark failed errored", "notification_id", n.ID, "error", merr)
			}
			continue
		}
		res.Sent++
		slog.Info("notification sent",
			"category", "notify", "subcategory", "message_sent",
			"notification_id", n.ID, "channel", q.sender.Name())
		if merr := q.store.MarkSent(ctx, n.ID, msgID); merr != nil {
			slog.Error("mark sent errored", "notification_id", n.ID, "error", merr)
		}
	}

	return res, nil
}

// Per-type message templates. Markdown, Telegram-flavored; Discord renders
// the asterisks as bold too.
var templates = map[string]string{
	TypeChatRequest: "🔔 *{title}*\n\n{body}",
	TypeNewFriend:   "👋 *{title}*\n\n{body}",
	TypeFriendLeft:  "💔 *{title}*\n\n{body}",
	TypeSystem:      "⚙️ *{title}*\n\n{body}",
}

const defaultTemplate = "*{title}*\n\n{body}"

// Render produces the channel message text for a notification. Unknown
// types fall back to the default template with a logged warning.
func Render(n *store.Notification) string {
	tmpl, ok := templates[n.Type]
	if !ok {
		slog.Warn("unknown notification type, using default template",
			"category", "notify", "subcategory", "template_missing", "type", n.Type)
		tmpl = defaultTemplate
	}
	text := strings.NewReplacer("{title}", n.Title, "{body}", n.Body).Replace(tmpl)

	if len(n.Payload) > 0 {
		var payload map[string]any
		if err := json.Unmarshal(n.Payload, &payload); err == nil {
			if ts, ok := payload["timestamp"].(string); ok && ts != "" {
				text += "\n\n_เวลา: " + ts + "_"
			}
		}
	}
	return text
}

// Timestamp formats a payload timestamp the way the templates expect.
func Timestamp(t time.Time) string {
	return t.Format("2006-01-02 15:04:05")
}
