// Package sqlite implements the store interfaces on an embedded SQLite
// database. It is the standalone-mode backend and the backend the tests
// run against (":memory:").
package sqlite

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/livedesk-ai/livedesk/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS user_states (
	user_id       TEXT PRIMARY KEY,
	display_name  TEXT NOT NULL DEFAULT '',
	picture_url   TEXT NOT NULL DEFAULT '',
	mode          TEXT NOT NULL DEFAULT 'bot',
	last_activity TEXT NOT NULL,
	created_at    TEXT NOT NULL,
	updated_at    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS chat_history (
	id                  TEXT PRIMARY KEY,
	user_id             TEXT NOT NULL,
	platform_message_id TEXT NOT NULL DEFAULT '',
	sender_type         TEXT NOT NULL,
	content_type        TEXT NOT NULL,
	body                TEXT NOT NULL,
	extra               TEXT,
	created_at          TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chat_history_user ON chat_history(user_id, created_at);

CREATE TABLE IF NOT EXISTS notifications (
	id                 TEXT PRIMARY KEY,
	type               TEXT NOT NULL,
	title              TEXT NOT NULL,
	body               TEXT NOT NULL,
	payload            TEXT,
	status             TEXT NOT NULL DEFAULT 'pending',
	attempts           INTEGER NOT NULL DEFAULT 0,
	channel_message_id TEXT NOT NULL DEFAULT '',
	last_error         TEXT NOT NULL DEFAULT '',
	created_at         TEXT NOT NULL,
	updated_at         TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_notifications_status ON notifications(status, created_at);

CREATE TABLE IF NOT EXISTS friend_activity (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	kind       TEXT NOT NULL,
	detail     TEXT,
	created_at TEXT NOT NULL
);
`

// Open opens (or creates) the database at path and applies the schema.
// Pass ":memory:" for an ephemeral database.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// modernc/sqlite serializes writers; a single connection avoids
	// SQLITE_BUSY under concurrent handlers.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return db, nil
}

// NewStores creates all stores backed by SQLite (standalone mode).
func NewStores(path string) (*store.Stores, error) {
	db, err := Open(path)
	if err != nil {
		return nil, err
	}
	return &store.Stores{
		Users:         NewUserStateStore(db),
		History:       NewChatHistoryStore(db),
		Notifications: NewNotificationStore(db),
		Activity:      NewActivityStore(db),
		Close:         db.Close,
	}, nil
}
