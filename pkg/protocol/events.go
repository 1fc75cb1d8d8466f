package protocol

import (
	"encoding/json"
	"time"
)

// Dashboard event types pushed from server to operator clients.
const (
	EventNewMessage        = "new_message"
	EventNewUserRequest    = "new_user_request"
	EventBotTypingStart    = "bot_typing_start"
	EventBotTypingStop     = "bot_typing_stop"
	EventBotResponse       = "bot_response_complete"
	EventAdminReply        = "admin_reply"
	EventModeChanged       = "mode_changed"
	EventChatEnded         = "chat_ended"
	EventSendError         = "send_error"
	EventFriendStatus      = "friend_status_change"
	EventSystemStatus      = "system_status"
	EventNotificationFlush = "notification_flush"

	// Client-initiated keepalive.
	EventPing = "ping"
	EventPong = "pong"
)

// Envelope is the JSON frame sent to every connected dashboard observer.
// "type" is always present; the remaining fields depend on the event.
type Envelope map[string]any

// NewEnvelope builds an envelope with the type and timestamp fields set.
func NewEnvelope(eventType string, fields map[string]any) Envelope {
	env := Envelope{
		"type":      eventType,
		"timestamp": time.Now().Format(time.RFC3339),
	}
	for k, v := range fields {
		env[k] = v
	}
	return env
}

// Marshal serializes the envelope to a text frame.
func (e Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Pong is the reply to a client {"type":"ping"} frame.
func Pong() Envelope {
	return Envelope{
		"type":      EventPong,
		"timestamp": time.Now().UnixMilli(),
	}
}
