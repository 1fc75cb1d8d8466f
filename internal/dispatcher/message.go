package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/livedesk-ai/livedesk/internal/notify"
	"github.com/livedesk-ai/livedesk/internal/router"
	"github.com/livedesk-ai/livedesk/internal/session"
	"github.com/livedesk-ai/livedesk/internal/store"
	"github.com/livedesk-ai/livedesk/pkg/protocol"
)

// handleMessage runs the full inbound flow: record, state decision, and
// either an automated reply or a silent hold for the operator.
func (d *Dispatcher) handleMessage(ctx context.Context, ev *webhookEvent) error {
	userID := ev.Source.UserID
	if userID == "" || ev.Message == nil {
		slog.Warn("message event without user or message",
			"category", "webhook", "subcategory", "invalid_event")
		return nil
	}

	kind, content := mapContent(ev.Message)

	// History first so the message survives even when everything after
	// this point fails.
	rec := &store.ChatRecord{
		ID:                uuid.Must(uuid.NewV7()).String(),
		UserID:            userID,
		PlatformMessageID: ev.Message.ID,
		SenderType:        "user",
		ContentType:       string(kind),
		Body:              recordBody(kind, content),
	}
	if err := d.history.Append(ctx, rec); err != nil {
		return fmt.Errorf("append chat record: %w", err)
	}

	displayName, pictureURL := d.resolveProfile(ctx, userID)
	state, err := d.sessions.GetOrCreate(ctx, userID, displayName, pictureURL)
	if err != nil {
		return err
	}
	d.sessions.Touch(ctx, userID)

	d.hub.Broadcast(protocol.NewEnvelope(protocol.EventNewMessage, map[string]any{
		"user_id":      userID,
		"user_name":    state.DisplayName,
		"picture_url":  state.PictureURL,
		"message":      rec.Body,
		"content_type": rec.ContentType,
		"mode":         state.Mode,
	}))

	// Handoff phrases win over everything else, whatever the mode. The
	// transition itself is only legal from bot mode.
	if kind == router.KindText && session.MatchesHandoff(content.Text, d.cfg.HandoffPhrases()) {
		mode, changed, err := d.sessions.Apply(ctx, userID, session.EventHandoff)
		if err != nil {
			return err
		}
		if changed {
			return d.startHandoff(ctx, ev.ReplyToken, state, mode)
		}
	}

	if !session.ShouldAutoReply(state.Mode) {
		slog.Info("message held for operator",
			"category", "chat", "subcategory", "live_manual",
			"user_id", userID, "mode", state.Mode)
		return nil
	}

	return d.autoReply(ctx, ev, kind, content, state)
}

// startHandoff acknowledges the user, alerts the operators, and tells the
// dashboards a human is needed.
func (d *Dispatcher) startHandoff(ctx context.Context, replyToken string, state *store.UserState, mode store.Mode) error {
	if err := d.platform.ReplyMessage(ctx, replyToken, d.cfg.Handoff.AckMessage); err != nil {
		d.reportSendError(state.UserID, err)
	}

	_, err := d.queue.Enqueue(ctx, notify.TypeChatRequest,
		"มีผู้ใช้ต้องการติดต่อเจ้าหน้าที่",
		fmt.Sprintf("%s (%s) ขอคุยกับเจ้าหน้าที่", state.DisplayName, state.UserID),
		map[string]any{
			"user_id":   state.UserID,
			"user_name": state.DisplayName,
			"timestamp": time.Now().Format("2006-01-02 15:04:05"),
		})
	if err != nil {
		slog.Error("enqueue chat_request failed",
			"category", "chat", "subcategory", "notify_error",
			"user_id", state.UserID, "error", err)
	}

	d.hub.Broadcast(protocol.NewEnvelope(protocol.EventNewUserRequest, map[string]any{
		"user_id":     state.UserID,
		"user_name":   state.DisplayName,
		"picture_url": state.PictureURL,
		"mode":        mode,
	}))
	return nil
}

// autoReply routes the message through the AI capability selector and
// replies with the result. A double router failure still produces a reply
// (the apology text) and is surfaced to the dashboards.
func (d *Dispatcher) autoReply(ctx context.Context, ev *webhookEvent, kind router.ContentKind, content router.Content, state *store.UserState) error {
	d.fetchMedia(ctx, kind, &content)

	if err := d.platform.StartLoading(ctx, state.UserID, 5); err != nil {
		slog.Debug("loading indicator failed", "user_id", state.UserID, "error", err)
	}
	d.hub.Broadcast(protocol.NewEnvelope(protocol.EventBotTypingStart, map[string]any{
		"user_id": state.UserID,
	}))
	defer d.hub.Broadcast(protocol.NewEnvelope(protocol.EventBotTypingStop, map[string]any{
		"user_id": state.UserID,
	}))

	sel := router.Select(kind, content, router.UserProfile{
		UserID:      state.UserID,
		DisplayName: state.DisplayName,
	})
	slog.Info("capability selected",
		"category", "router", "subcategory", "tool_selected",
		"user_id", state.UserID, "content_kind", kind,
		"capability", sel.Capability, "confidence", sel.Confidence)

	response, procErr := d.router.Process(ctx, sel, content)
	if procErr != nil {
		slog.Error("router processing failed, sending apology",
			"category", "router", "subcategory", "processing_failed",
			"user_id", state.UserID, "error", procErr)
	}

	if err := d.platform.ReplyMessage(ctx, ev.ReplyToken, response); err != nil {
		d.reportSendError(state.UserID, err)
		return nil
	}

	extra, _ := json.Marshal(map[string]any{
		"capability": sel.Capability,
		"confidence": sel.Confidence,
	})
	aiRec := &store.ChatRecord{
		ID:          uuid.Must(uuid.NewV7()).String(),
		UserID:      state.UserID,
		SenderType:  "ai",
		ContentType: "text",
		Body:        response,
		Extra:       extra,
	}
	if err := d.history.Append(ctx, aiRec); err != nil {
		slog.Error("append ai record failed", "user_id", state.UserID, "error", err)
	}

	d.hub.Broadcast(protocol.NewEnvelope(protocol.EventBotResponse, map[string]any{
		"user_id":    state.UserID,
		"user_name":  state.DisplayName,
		"response":   response,
		"capability": sel.Capability,
	}))
	return nil
}

// fetchMedia downloads image or document bytes before processing. On
// failure the content stays empty and the router answers with its
// missing-media message.
func (d *Dispatcher) fetchMedia(ctx context.Context, kind router.ContentKind, content *router.Content) {
	switch kind {
	case router.KindImage:
		data, err := d.platform.GetMessageContent(ctx, content.MessageID)
		if err != nil {
			slog.Warn("image download failed",
				"category", "webhook", "subcategory", "media_error",
				"message_id", content.MessageID, "error", err)
			return
		}
		content.Image = data
		content.MimeType = "image/jpeg"
	case router.KindFile:
		data, err := d.platform.GetMessageContent(ctx, content.MessageID)
		if err != nil {
			slog.Warn("file download failed",
				"category", "webhook", "subcategory", "media_error",
				"message_id", content.MessageID, "error", err)
			return
		}
		content.Document = data
	}
}

// reportSendError logs a reply failure and tells the dashboards. Send
// failures never bubble up; the event still counts as processed.
func (d *Dispatcher) reportSendError(userID string, err error) {
	slog.Error("platform send failed",
		"category", "chat", "subcategory", "send_error",
		"user_id", userID, "error", err)
	d.hub.Broadcast(protocol.NewEnvelope(protocol.EventSendError, map[string]any{
		"user_id": userID,
		"error":   err.Error(),
	}))
}

// mapContent converts the wire message into the router's content model.
func mapContent(msg *webhookMessage) (router.ContentKind, router.Content) {
	content := router.Content{MessageID: msg.ID}
	switch msg.Type {
	case "text":
		content.Text = msg.Text
		return router.KindText, content
	case "image":
		return router.KindImage, content
	case "video":
		content.Duration = msg.Duration
		return router.KindVideo, content
	case "audio":
		content.Duration = msg.Duration
		return router.KindAudio, content
	case "file":
		content.FileName = msg.FileName
		content.FileSize = msg.FileSize
		return router.KindFile, content
	case "location":
		content.Title = msg.Title
		content.Address = msg.Address
		content.Latitude = msg.Latitude
		content.Longitude = msg.Longitude
		return router.KindLocation, content
	case "sticker":
		content.PackageID = msg.PackageID
		content.StickerID = msg.StickerID
		return router.KindSticker, content
	default:
		return router.KindUnknown, content
	}
}

// recordBody picks the history body for each content kind.
func recordBody(kind router.ContentKind, content router.Content) string {
	switch kind {
	case router.KindText:
		return content.Text
	case router.KindFile:
		return "[file] " + content.FileName
	case router.KindLocation:
		return fmt.Sprintf("[location] %s (%g, %g)", content.Title, content.Latitude, content.Longitude)
	case router.KindSticker:
		return fmt.Sprintf("[sticker] %s/%s", content.PackageID, content.StickerID)
	default:
		return "[" + string(kind) + "]"
	}
}
