package pg

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/livedesk-ai/livedesk/internal/store"
)

// UserStateStore implements store.UserStateStore on Postgres.
type UserStateStore struct {
	db *sql.DB
}

func NewUserStateStore(db *sql.DB) *UserStateStore { return &UserStateStore{db: db} }

const userCols = `user_id, display_name, picture_url, mode, last_activity, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*store.UserState, error) {
	var u store.UserState
	var mode string
	if err := row.Scan(&u.UserID, &u.DisplayName, &u.PictureURL, &mode, &u.LastActivity, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.Mode = store.Mode(mode)
	return &u, nil
}

func (s *UserStateStore) GetOrCreate(ctx context.Context, userID, displayName, pictureURL string) (*store.UserState, error) {
	now := time.Now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_states (user_id, display_name, picture_url, mode, last_activity, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $5, $5)
		 ON CONFLICT (user_id) DO UPDATE SET
			display_name = CASE WHEN EXCLUDED.display_name != '' THEN EXCLUDED.display_name ELSE user_states.display_name END,
			picture_url  = CASE WHEN EXCLUDED.picture_url != '' THEN EXCLUDED.picture_url ELSE user_states.picture_url END,
			updated_at   = EXCLUDED.updated_at`,
		userID, displayName, pictureURL, store.ModeBot, now)
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, userID)
}

func (s *UserStateStore) Get(ctx context.Context, userID string) (*store.UserState, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userCols+` FROM user_states WHERE user_id = $1`, userID)
	return scanUser(row)
}

func (s *UserStateStore) SetMode(ctx context.Context, userID string, mode store.Mode) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE user_states SET mode = $1, updated_at = $2 WHERE user_id = $3`,
		mode, time.Now(), userID)
	return err
}

func (s *UserStateStore) TouchActivity(ctx context.Context, userID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE user_states SET last_activity = $1, updated_at = $2 WHERE user_id = $3`,
		at, time.Now(), userID)
	return err
}

func (s *UserStateStore) List(ctx context.Context) ([]store.UserState, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+userCols+` FROM user_states ORDER BY last_activity DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []store.UserState
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

// ChatHistoryStore implements store.ChatHistoryStore on Postgres.
type ChatHistoryStore struct {
	db *sql.DB
}

func NewChatHistoryStore(db *sql.DB) *ChatHistoryStore { return &ChatHistoryStore{db: db} }

func (s *ChatHistoryStore) Append(ctx context.Context, rec *store.ChatRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.Must(uuid.NewV7()).String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_history (id, user_id, platform_message_id, sender_type, content_type, body, extra, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.ID, rec.UserID, rec.PlatformMessageID, rec.SenderType, rec.ContentType, rec.Body,
		nullableJSON(rec.Extra), rec.CreatedAt)
	return err
}

func nullableJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}

const chatCols = `id, user_id, platform_message_id, sender_type, content_type, body, extra, created_at`

func scanChat(rows *sql.Rows) (*store.ChatRecord, error) {
	var r store.ChatRecord
	var extra []byte
	if err := rows.Scan(&r.ID, &r.UserID, &r.PlatformMessageID, &r.SenderType, &r.ContentType, &r.Body, &extra, &r.CreatedAt); err != nil {
		return nil, err
	}
	r.Extra = extra
	return &r, nil
}

func (s *ChatHistoryStore) History(ctx context.Context, userID string, limit int) ([]store.ChatRecord, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+chatCols+` FROM chat_history WHERE user_id = $1 ORDER BY created_at ASC, id ASC LIMIT $2`,
		userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []store.ChatRecord
	for rows.Next() {
		r, err := scanChat(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func (s *ChatHistoryStore) Latest(ctx context.Context, userID string) (*store.ChatRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+chatCols+` FROM chat_history WHERE user_id = $1 ORDER BY created_at DESC, id DESC LIMIT 1`,
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, sql.ErrNoRows
	}
	return scanChat(rows)
}

// NotificationStore implements store.NotificationStore on Postgres.
type NotificationStore struct {
	db *sql.DB
}

func NewNotificationStore(db *sql.DB) *NotificationStore { return &NotificationStore{db: db} }

const notifCols = `id, type, title, body, payload, status, attempts, channel_message_id, last_error, created_at, updated_at`

func (s *NotificationStore) Insert(ctx context.Context, n *store.Notification) error {
	if n.ID == "" {
		n.ID = uuid.Must(uuid.NewV7()).String()
	}
	now := time.Now()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now
	}
	n.UpdatedAt = now
	if n.Status == "" {
		n.Status = store.NotificationPending
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notifications (id, type, title, body, payload, status, attempts, channel_message_id, last_error, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		n.ID, n.Type, n.Title, n.Body, nullableJSON(n.Payload), n.Status, n.Attempts,
		n.ChannelMessageID, n.LastError, n.CreatedAt, n.UpdatedAt)
	return err
}

func scanNotif(row interface{ Scan(...any) error }) (*store.Notification, error) {
	var n store.Notification
	var payload []byte
	if err := row.Scan(&n.ID, &n.Type, &n.Title, &n.Body, &payload, &n.Status, &n.Attempts,
		&n.ChannelMessageID, &n.LastError, &n.CreatedAt, &n.UpdatedAt); err != nil {
		return nil, err
	}
	n.Payload = payload
	return &n, nil
}

func (s *NotificationStore) Pending(ctx context.Context, limit int) ([]store.Notification, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+notifCols+` FROM notifications WHERE status = $1 ORDER BY created_at ASC, id ASC LIMIT $2`,
		store.NotificationPending, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []store.Notification
	for rows.Next() {
		n, err := scanNotif(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *n)
	}
	return out, rows.Err()
}

func (s *NotificationStore) MarkSent(ctx context.Context, id, channelMessageID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET status = $1, attempts = attempts + 1, channel_message_id = $2, updated_at = $3 WHERE id = $4`,
		store.NotificationSent, channelMessageID, time.Now(), id)
	return err
}

func (s *NotificationStore) MarkFailed(ctx context.Context, id, errText string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET status = $1, attempts = attempts + 1, last_error = $2, updated_at = $3 WHERE id = $4`,
		store.NotificationFailed, errText, time.Now(), id)
	return err
}

func (s *NotificationStore) Get(ctx context.Context, id string) (*store.Notification, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+notifCols+` FROM notifications WHERE id = $1`, id)
	return scanNotif(row)
}

// ActivityStore implements store.ActivityStore on Postgres.
type ActivityStore struct {
	db *sql.DB
}

func NewActivityStore(db *sql.DB) *ActivityStore { return &ActivityStore{db: db} }

func (s *ActivityStore) Record(ctx context.Context, a *store.FriendActivity) error {
	if a.ID == "" {
		a.ID = uuid.Must(uuid.NewV7()).String()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO friend_activity (id, user_id, kind, detail, created_at) VALUES ($1, $2, $3, $4, $5)`,
		a.ID, a.UserID, a.Kind, nullableJSON(a.Detail), a.CreatedAt)
	return err
}

func (s *ActivityStore) Recent(ctx context.Context, limit int) ([]store.FriendActivity, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, kind, detail, created_at FROM friend_activity ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []store.FriendActivity
	for rows.Next() {
		var a store.FriendActivity
		var detail []byte
		if err := rows.Scan(&a.ID, &a.UserID, &a.Kind, &detail, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.Detail = detail
		out = append(out, a)
	}
	return out, rows.Err()
}
