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

// handleFollow greets a new friend and alerts the operators.
func (d *Dispatcher) handleFollow(ctx context.Context, ev *webhookEvent) error {
	userID := ev.Source.UserID
	if userID == "" {
		return nil
	}

	displayName, pictureURL := d.resolveProfile(ctx, userID)
	state, err := d.sessions.GetOrCreate(ctx, userID, displayName, pictureURL)
	if err != nil {
		return err
	}
	d.recordActivity(ctx, userID, "follow", map[string]any{"display_name": displayName})

	if err := d.platform.ReplyMessage(ctx, ev.ReplyToken, d.cfg.Handoff.WelcomeText); err != nil {
		d.reportSendError(userID, err)
	}

	d.enqueueFriendEvent(ctx, notify.TypeNewFriend,
		"มีเพื่อนใหม่",
		fmt.Sprintf("%s (%s) เพิ่มเป็นเพื่อนแล้ว", displayName, userID),
		userID, displayName)

	d.hub.Broadcast(protocol.NewEnvelope(protocol.EventFriendStatus, map[string]any{
		"user_id":     userID,
		"user_name":   state.DisplayName,
		"picture_url": state.PictureURL,
		"status":      "followed",
	}))
	return nil
}

// handleUnfollow resets the departed user to bot mode so a future
// re-follow starts clean. There is no reply token to answer.
func (d *Dispatcher) handleUnfollow(ctx context.Context, ev *webhookEvent) error {
	userID := ev.Source.UserID
	if userID == "" {
		return nil
	}

	if err := d.sessions.ForceMode(ctx, userID, store.ModeBot); err != nil {
		slog.Warn("reset mode on unfollow failed",
			"category", "webhook", "subcategory", "state_error",
			"user_id", userID, "error", err)
	}
	d.recordActivity(ctx, userID, "unfollow", nil)

	d.enqueueFriendEvent(ctx, notify.TypeFriendLeft,
		"มีผู้ใช้เลิกติดตาม",
		fmt.Sprintf("ผู้ใช้ %s เลิกติดตามแล้ว", userID),
		userID, "")

	d.hub.Broadcast(protocol.NewEnvelope(protocol.EventFriendStatus, map[string]any{
		"user_id": userID,
		"status":  "unfollowed",
	}))
	return nil
}

// handleMembership records group join/leave events and tells the
// dashboards. The bot only chats one-on-one, so there is no reply.
func (d *Dispatcher) handleMembership(ctx context.Context, ev *webhookEvent, kind string) error {
	id := ev.Source.GroupID
	if id == "" {
		id = ev.Source.UserID
	}
	if id == "" {
		return nil
	}
	d.recordActivity(ctx, id, kind, map[string]any{"source_type": ev.Source.Type})
	slog.Info("group membership event",
		"category", "webhook", "subcategory", kind, "source_id", id)

	status := "joined"
	if kind == "leave" {
		status = "left"
	}
	d.hub.Broadcast(protocol.NewEnvelope(protocol.EventFriendStatus, map[string]any{
		"source_id":   id,
		"source_type": ev.Source.Type,
		"status":      status,
	}))
	return nil
}

// handlePostback treats a button press as an inbound question.
func (d *Dispatcher) handlePostback(ctx context.Context, ev *webhookEvent) error {
	userID := ev.Source.UserID
	if userID == "" || ev.Postback == nil {
		return nil
	}

	content := router.Content{PostbackData: ev.Postback.Data}
	rec := &store.ChatRecord{
		ID:          uuid.Must(uuid.NewV7()).String(),
		UserID:      userID,
		SenderType:  "user",
		ContentType: string(router.KindPostback),
		Body:        "[postback] " + ev.Postback.Data,
	}
	if err := d.history.Append(ctx, rec); err != nil {
		return fmt.Errorf("append postback record: %w", err)
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
		"message":      rec.Body,
		"content_type": rec.ContentType,
		"mode":         state.Mode,
	}))

	if !session.ShouldAutoReply(state.Mode) {
		return nil
	}
	fakeEvent := &webhookEvent{ReplyToken: ev.ReplyToken, Source: ev.Source}
	return d.autoReply(ctx, fakeEvent, router.KindPostback, content, state)
}

func (d *Dispatcher) recordActivity(ctx context.Context, userID, kind string, detail map[string]any) {
	var raw json.RawMessage
	if len(detail) > 0 {
		if data, err := json.Marshal(detail); err == nil {
			raw = data
		}
	}
	a := &store.FriendActivity{
		ID:     uuid.Must(uuid.NewV7()).String(),
		UserID: userID,
		Kind:   kind,
		Detail: raw,
	}
	if err := d.activity.Record(ctx, a); err != nil {
		slog.Warn("record friend activity failed",
			"category", "webhook", "subcategory", "activity_error",
			"user_id", userID, "kind", kind, "error", err)
	}
}

func (d *Dispatcher) enqueueFriendEvent(ctx context.Context, typ, title, body, userID, displayName string) {
	_, err := d.queue.Enqueue(ctx, typ, title, body, map[string]any{
		"user_id":   userID,
		"user_name": displayName,
		"timestamp": time.Now().Format("2006-01-02 15:04:05"),
	})
	if err != nil {
		slog.Error("enqueue friend notification failed",
			"category", "webhook", "subcategory", "notify_error",
			"user_id", userID, "type", typ, "error", err)
	}
}
