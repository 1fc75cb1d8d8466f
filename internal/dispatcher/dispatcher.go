// Package dispatcher verifies and fans out platform webhook deliveries.
//
// One delivery carries a batch of events. Events are processed in order;
// a failure or panic in one event is contained and counted, and the
// remaining events still run. There is no delivery-id dedup and no
// per-user serialization; see DESIGN.md.
package dispatcher

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/livedesk-ai/livedesk/internal/config"
	"github.com/livedesk-ai/livedesk/internal/hub"
	"github.com/livedesk-ai/livedesk/internal/line"
	"github.com/livedesk-ai/livedesk/internal/notify"
	"github.com/livedesk-ai/livedesk/internal/router"
	"github.com/livedesk-ai/livedesk/internal/session"
	"github.com/livedesk-ai/livedesk/internal/store"
)

// ErrBadSignature is the only error HandleDelivery returns. Everything
// else is absorbed so the platform does not redeliver the batch.
var ErrBadSignature = errors.New("webhook signature mismatch")

var tracer = otel.Tracer("livedesk/dispatcher")

// Result counts the outcome of one delivery.
type Result struct {
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
}

// Dispatcher routes webhook events to the session machine, the tool
// router, the broadcast hub, and the notification queue.
type Dispatcher struct {
	cfg      *config.Config
	platform line.API
	sessions *session.Service
	router   *router.Router
	hub      *hub.Hub
	queue    *notify.Queue
	history  store.ChatHistoryStore
	activity store.ActivityStore
}

func New(
	cfg *config.Config,
	platform line.API,
	sessions *session.Service,
	rt *router.Router,
	h *hub.Hub,
	queue *notify.Queue,
	history store.ChatHistoryStore,
	activity store.ActivityStore,
) *Dispatcher {
	return &Dispatcher{
		cfg:      cfg,
		platform: platform,
		sessions: sessions,
		router:   rt,
		hub:      h,
		queue:    queue,
		history:  history,
		activity: activity,
	}
}

// delivery is the webhook request body.
type delivery struct {
	Destination string         `json:"destination"`
	Events      []webhookEvent `json:"events"`
}

type webhookEvent struct {
	Type       string `json:"type"`
	ReplyToken string `json:"replyToken"`
	Timestamp  int64  `json:"timestamp"`
	Source     struct {
		Type    string `json:"type"`
		UserID  string `json:"userId"`
		GroupID string `json:"groupId"`
	} `json:"source"`
	Message  *webhookMessage `json:"message"`
	Postback *struct {
		Data string `json:"data"`
	} `json:"postback"`
}

type webhookMessage struct {
	ID        string  `json:"id"`
	Type      string  `json:"type"`
	Text      string  `json:"text"`
	FileName  string  `json:"fileName"`
	FileSize  int64   `json:"fileSize"`
	Title     string  `json:"title"`
	Address   string  `json:"address"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	PackageID string  `json:"packageId"`
	StickerID string  `json:"stickerId"`
	Duration  int     `json:"duration"`
}

// HandleDelivery verifies the signature and processes every event in the
// batch. A bad signature returns ErrBadSignature; a malformed body is
// logged and swallowed, because redelivery would not fix it.
func (d *Dispatcher) HandleDelivery(ctx context.Context, rawBody []byte, signature string) (Result, error) {
	if !d.verifySignature(rawBody, signature) {
		slog.Warn("webhook signature mismatch",
			"category", "webhook", "subcategory", "bad_signature")
		return Result{}, ErrBadSignature
	}

	var del delivery
	if err := json.Unmarshal(rawBody, &del); err != nil {
		slog.Error("malformed webhook delivery",
			"category", "webhook", "subcategory", "parse_error", "error", err)
		return Result{}, nil
	}

	ctx, span := tracer.Start(ctx, "webhook.delivery",
		trace.WithAttributes(attribute.Int("events", len(del.Events))))
	defer span.End()

	var res Result
	for i := range del.Events {
		ev := &del.Events[i]
		if err := d.processEvent(ctx, ev); err != nil {
			res.Failed++
			slog.Error("event processing failed",
				"category", "webhook", "subcategory", "event_error",
				"event_type", ev.Type, "user_id", ev.Source.UserID, "error", err)
			continue
		}
		res.Processed++
	}
	span.SetAttributes(attribute.Int("processed", res.Processed), attribute.Int("failed", res.Failed))
	return res, nil
}

// verifySignature checks the HMAC-SHA256 of the raw body against the
// base64 signature header, in constant time.
func (d *Dispatcher) verifySignature(rawBody []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(d.cfg.Line.ChannelSecret))
	mac.Write(rawBody)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// processEvent dispatches one event, converting panics into errors so a
// bad event never takes down its siblings.
func (d *Dispatcher) processEvent(ctx context.Context, ev *webhookEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in %s handler: %v", ev.Type, r)
		}
	}()

	ctx, span := tracer.Start(ctx, "webhook.event",
		trace.WithAttributes(attribute.String("event.type", ev.Type)))
	defer span.End()

	switch ev.Type {
	case "message":
		return d.handleMessage(ctx, ev)
	case "follow":
		return d.handleFollow(ctx, ev)
	case "unfollow":
		return d.handleUnfollow(ctx, ev)
	case "join":
		return d.handleMembership(ctx, ev, "join")
	case "leave":
		return d.handleMembership(ctx, ev, "leave")
	case "postback":
		return d.handlePostback(ctx, ev)
	default:
		slog.Warn("unknown webhook event type",
			"category", "webhook", "subcategory", "unknown_event", "event_type", ev.Type)
		return nil
	}
}

// fallbackName derives a display name when the profile lookup fails.
func fallbackName(userID string) string {
	if len(userID) > 6 {
		return "Customer " + userID[len(userID)-6:]
	}
	return "Customer " + userID
}

// resolveProfile fetches the platform profile, falling back to a derived
// name. Profile failures are logged, never fatal.
func (d *Dispatcher) resolveProfile(ctx context.Context, userID string) (displayName, pictureURL string) {
	profile, err := d.platform.GetProfile(ctx, userID)
	if err != nil {
		slog.Warn("profile lookup failed",
			"category", "webhook", "subcategory", "profile_error",
			"user_id", userID, "error", err)
		return fallbackName(userID), ""
	}
	if profile.DisplayName == "" {
		return fallbackName(userID), profile.PictureURL
	}
	return profile.DisplayName, profile.PictureURL
}
