package store

import (
	"context"
	"encoding/json"
	"time"
)

// Mode is a user's chat mode. Exactly one mode applies at any instant.
type Mode string

const (
	ModeBot        Mode = "bot"         // automated replies
	ModeLiveManual Mode = "live_manual" // human operator answers
	ModeLiveAuto   Mode = "live_auto"   // routed to operators, bot keeps answering
)

// Valid reports whether m is one of the three defined modes.
func (m Mode) Valid() bool {
	return m == ModeBot || m == ModeLiveManual || m == ModeLiveAuto
}

// UserState is the per-user session record. One row per user, never deleted.
type UserState struct {
	UserID       string    `json:"user_id"`
	DisplayName  string    `json:"display_name,omitempty"`
	PictureURL   string    `json:"picture_url,omitempty"`
	Mode         Mode      `json:"mode"`
	LastActivity time.Time `json:"last_activity"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ChatRecord is one message in a user's history. Immutable once written.
type ChatRecord struct {
	ID                string          `json:"id"`
	UserID            string          `json:"user_id"`
	PlatformMessageID string          `json:"platform_message_id,omitempty"`
	SenderType        string          `json:"sender_type"` // user | bot | ai | operator | system
	ContentType       string          `json:"content_type"`
	Body              string          `json:"body"`
	Extra             json.RawMessage `json:"extra,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
}

// Notification statuses. Sent and failed are terminal.
const (
	NotificationPending = "pending"
	NotificationSent    = "sent"
	NotificationFailed  = "failed"
)

// Notification is one operator alert in the outbox.
type Notification struct {
	ID               string          `json:"id"`
	Type             string          `json:"type"`
	Title            string          `json:"title"`
	Body             string          `json:"body"`
	Payload          json.RawMessage `json:"payload,omitempty"`
	Status           string          `json:"status"`
	Attempts         int             `json:"attempts"`
	ChannelMessageID string          `json:"channel_message_id,omitempty"`
	LastError        string          `json:"last_error,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// FriendActivity records follow/unfollow/join/leave membership events.
type FriendActivity struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	Kind      string          `json:"kind"` // follow | unfollow | join | leave
	Detail    json.RawMessage `json:"detail,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// UserStateStore manages per-user chat state.
type UserStateStore interface {
	// GetOrCreate returns the state for userID, creating a bot-mode record
	// on first contact. Display name and picture update when non-empty.
	GetOrCreate(ctx context.Context, userID, displayName, pictureURL string) (*UserState, error)
	Get(ctx context.Context, userID string) (*UserState, error)
	// SetMode writes the mode unconditionally. Transition legality is the
	// session package's concern, not the store's.
	SetMode(ctx context.Context, userID string, mode Mode) error
	TouchActivity(ctx context.Context, userID string, at time.Time) error
	List(ctx context.Context) ([]UserState, error)
}

// ChatHistoryStore is the append-only message log.
type ChatHistoryStore interface {
	Append(ctx context.Context, rec *ChatRecord) error
	History(ctx context.Context, userID string, limit int) ([]ChatRecord, error)
	Latest(ctx context.Context, userID string) (*ChatRecord, error)
}

// NotificationStore is the durable operator-alert outbox.
type NotificationStore interface {
	Insert(ctx context.Context, n *Notification) error
	// Pending returns up to limit pending notifications, oldest first.
	// Failed rows are never returned.
	Pending(ctx context.Context, limit int) ([]Notification, error)
	// MarkSent and MarkFailed move a row to its terminal status and bump
	// the attempt counter.
	MarkSent(ctx context.Context, id, channelMessageID string) error
	MarkFailed(ctx context.Context, id, errText string) error
	Get(ctx context.Context, id string) (*Notification, error)
}

// ActivityStore records membership events for the operator dashboard.
type ActivityStore interface {
	Record(ctx context.Context, a *FriendActivity) error
	Recent(ctx context.Context, limit int) ([]FriendActivity, error)
}

// Stores is the top-level container for all storage backends.
type Stores struct {
	Users         UserStateStore
	History       ChatHistoryStore
	Notifications NotificationStore
	Activity      ActivityStore

	// Close releases the underlying database handle.
	Close func() error
}
