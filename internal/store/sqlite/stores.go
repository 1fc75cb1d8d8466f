package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/livedesk-ai/livedesk/internal/store"
)

func fmtTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

// UserStateStore implements store.UserStateStore on SQLite.
type UserStateStore struct {
	db *sql.DB
}

func NewUserStateStore(db *sql.DB) *UserStateStore { return &UserStateStore{db: db} }

func (s *UserStateStore) GetOrCreate(ctx context.Context, userID, displayName, pictureURL string) (*store.UserState, error) {
	now := time.Now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_states (user_id, display_name, picture_url, mode, last_activity, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
			display_name = CASE WHEN excluded.display_name != '' THEN excluded.display_name ELSE user_states.display_name END,
			picture_url  = CASE WHEN excluded.picture_url != '' THEN excluded.picture_url ELSE user_states.picture_url END,
			updated_at   = excluded.updated_at`,
		userID, displayName, pictureURL, store.ModeBot, fmtTime(now), fmtTime(now), fmtTime(now))
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, userID)
}

const userCols = `user_id, display_name, picture_url, mode, last_activity, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*store.UserState, error) {
	var u store.UserState
	var mode, lastAct, created, updated string
	if err := row.Scan(&u.UserID, &u.DisplayName, &u.PictureURL, &mode, &lastAct, &created, &updated); err != nil {
		return nil, err
	}
	u.Mode = store.Mode(mode)
	u.LastActivity = parseTime(lastAct)
	u.CreatedAt = parseTime(created)
	u.UpdatedAt = parseTime(updated)
	return &u, nil
}

func (s *UserStateStore) Get(ctx context.Context, userID string) (*store.UserState, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userCols+` FROM user_states WHERE user_id = ?`, userID)
	return scanUser(row)
}

func (s *UserStateStore) SetMode(ctx context.Context, userID string, mode store.Mode) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE user_states SET mode = ?, updated_at = ? WHERE user_id = ?`,
		mode, fmtTime(time.Now()), userID)
	return err
}

func (s *UserStateStore) TouchActivity(ctx context.Context, userID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE user_states SET last_activity = ?, updated_at = ? WHERE user_id = ?`,
		fmtTime(at), fmtTime(time.Now()), userID)
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

// ChatHistoryStore implements store.ChatHistoryStore on SQLite.
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
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.UserID, rec.PlatformMessageID, rec.SenderType, rec.ContentType, rec.Body,
		nullableJSON(rec.Extra), fmtTime(rec.CreatedAt))
	return err
}

func nullableJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

const chatCols = `id, user_id, platform_message_id, sender_type, content_type, body, extra, created_at`

func scanChat(rows *sql.Rows) (*store.ChatRecord, error) {
	var r store.ChatRecord
	var extra sql.NullString
	var created string
	if err := rows.Scan(&r.ID, &r.UserID, &r.PlatformMessageID, &r.SenderType, &r.ContentType, &r.Body, &extra, &created); err != nil {
		return nil, err
	}
	if extra.Valid {
		r.Extra = []byte(extra.String)
	}
	r.CreatedAt = parseTime(created)
	return &r, nil
}

func (s *ChatHistoryStore) History(ctx context.Context, userID string, limit int) ([]store.ChatRecord, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+chatCols+` FROM chat_history WHERE user_id = ? ORDER BY created_at ASC, id ASC LIMIT ?`,
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
		`SELECT `+chatCols+` FROM chat_history WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT 1`,
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

// NotificationStore implements store.NotificationStore on SQLite.
type NotificationStore struct {
	db *sql.DB
}

func NewNotificationStore(db *sql.DB) *NotificationStore { return &NotificationStore{db: db} }

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
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.Type, n.Title, n.Body, nullableJSON(n.Payload), n.Status, n.Attempts,
		n.ChannelMessageID, n.LastError, fmtTime(n.CreatedAt), fmtTime(n.UpdatedAt))
	return err
}

const notifCols = `id, type, title, body, payload, status, attempts, channel_message_id, last_error, created_at, updated_at`

func scanNotif(row interface{ Scan(...any) error }) (*store.Notification, error) {
	var n store.Notification
	var payload sql.NullString
	var created, updated string
	if err := row.Scan(&n.ID, &n.Type, &n.Title, &n.Body, &payload, &n.Status, &n.Attempts,
		&n.ChannelMessageID, &n.LastError, &created, &updated); err != nil {
		return nil, err
	}
	if payload.Valid {
		n.Payload = []byte(payload.String)
	}
	n.CreatedAt = parseTime(created)
	n.UpdatedAt = parseTime(updated)
	return &n, nil
}

func (s *NotificationStore) Pending(ctx context.Context, limit int) ([]store.Notification, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+notifCols+` FROM notifications WHERE status = ? ORDER BY created_at ASC, id ASC LIMIT ?`,
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
		`UPDATE notifications SET status = ?, attempts = attempts + 1, channel_message_id = ?, updated_at = ? WHERE id = ?`,
		store.NotificationSent, channelMessageID, fmtTime(time.Now()), id)
	return err
}

func (s *NotificationStore) MarkFailed(ctx context.Context, id, errText string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET status = ?, attempts = attempts + 1, last_error = ?, updated_at = ? WHERE id = ?`,
		store.NotificationFailed, errText, fmtTime(time.Now()), id)
	return err
}

func (s *NotificationStore) Get(ctx context.Context, id string) (*store.Notification, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+notifCols+` FROM notifications WHERE id = ?`, id)
	return scanNotif(row)
}

// ActivityStore implements store.ActivityStore on SQLite.
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
		`INSERT INTO friend_activity (id, user_id, kind, detail, created_at) VALUES (?, ?, ?, ?, ?)`,
		a.ID, a.UserID, a.Kind, nullableJSON(a.Detail), fmtTime(a.CreatedAt))
	return err
}

func (s *ActivityStore) Recent(ctx context.Context, limit int) ([]store.FriendActivity, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, kind, detail, created_at FROM friend_activity ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []store.FriendActivity
	for rows.Next() {
		var a store.FriendActivity
		var detail sql.NullString
		var created string
		if err := rows.Scan(&a.ID, &a.UserID, &a.Kind, &detail, &created); err != nil {
			return nil, err
		}
		if detail.Valid {
			a.Detail = []byte(detail.String)
		}
		a.CreatedAt = parseTime(created)
		out = append(out, a)
	}
	return out, rows.Err()
}
