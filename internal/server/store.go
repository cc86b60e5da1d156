// Package server is the remote store: a thin HTTP pass-through over a
// server-side SQLite database. It owns server identity (_id) and serves
// full and incremental pulls, tombstones included.
package server

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/mneme-app/mneme/internal/remote"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY NOT NULL,
	device_id TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL DEFAULT '',
	username TEXT,
	email TEXT,
	phone TEXT,
	avatar TEXT,
	settings_theme TEXT NOT NULL DEFAULT 'system',
	settings_notify_task_reminders INTEGER NOT NULL DEFAULT 1,
	settings_notify_shared_messages INTEGER NOT NULL DEFAULT 1,
	settings_privacy_visibility TEXT NOT NULL DEFAULT 'private',
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS chats (
	id TEXT PRIMARY KEY NOT NULL,
	owner_id TEXT NOT NULL,
	name TEXT NOT NULL,
	icon TEXT,
	is_pinned INTEGER NOT NULL DEFAULT 0,
	wallpaper TEXT,
	last_message_content TEXT,
	last_message_type TEXT,
	last_message_at INTEGER,
	is_deleted INTEGER NOT NULL DEFAULT 0,
	deleted_at INTEGER,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	FOREIGN KEY (owner_id) REFERENCES users(id)
);
CREATE INDEX IF NOT EXISTS idx_srv_chats_owner ON chats(owner_id, updated_at);

CREATE TABLE IF NOT EXISTS messages (
	id TEXT PRIMARY KEY NOT NULL,
	chat_id TEXT NOT NULL,
	owner_id TEXT NOT NULL,
	content TEXT,
	type TEXT NOT NULL DEFAULT 'text',
	attachment_url TEXT,
	attachment_filename TEXT,
	attachment_mime_type TEXT,
	attachment_size INTEGER,
	attachment_duration INTEGER,
	attachment_thumbnail TEXT,
	attachment_width INTEGER,
	attachment_height INTEGER,
	location_latitude REAL,
	location_longitude REAL,
	location_address TEXT,
	is_locked INTEGER NOT NULL DEFAULT 0,
	is_starred INTEGER NOT NULL DEFAULT 0,
	is_edited INTEGER NOT NULL DEFAULT 0,
	is_task INTEGER NOT NULL DEFAULT 0,
	reminder_at INTEGER,
	is_completed INTEGER NOT NULL DEFAULT 0,
	completed_at INTEGER,
	is_deleted INTEGER NOT NULL DEFAULT 0,
	deleted_at INTEGER,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	FOREIGN KEY (chat_id) REFERENCES chats(id),
	FOREIGN KEY (owner_id) REFERENCES users(id)
);
CREATE INDEX IF NOT EXISTS idx_srv_messages_owner ON messages(owner_id, updated_at);
CREATE INDEX IF NOT EXISTS idx_srv_messages_chat ON messages(chat_id);
`

// Store is the server-side database.
type Store struct {
	db *sql.DB
}

// OpenStore opens (and initializes) the server database at path.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open server db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init server schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func now() int64 {
	return time.Now().UnixMilli()
}

// EnsureUser returns the user id for a device, creating the row on first
// contact. Device registration is a precondition of every other route.
func (s *Store) EnsureUser(deviceID string) (string, error) {
	var id string
	err := s.db.QueryRow(`SELECT id FROM users WHERE device_id = ?`, deviceID).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return "", err
	}
	id = uuid.New().String()
	ts := now()
	_, err = s.db.Exec(`
		INSERT INTO users (id, device_id, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		id, deviceID, ts, ts)
	if err != nil {
		return "", err
	}
	return id, nil
}

// GetUser returns the wire profile for an owner, or nil when the profile
// was never pushed (name still empty).
func (s *Store) GetUser(ownerID string) (*remote.User, error) {
	var u remote.User
	var username, email, phone, avatar sql.NullString
	err := s.db.QueryRow(`
		SELECT id, device_id, name, username, email, phone, avatar,
		       settings_theme, settings_notify_task_reminders,
		       settings_notify_shared_messages, settings_privacy_visibility,
		       created_at, updated_at
		FROM users WHERE id = ?`, ownerID).
		Scan(&u.ID, &u.DeviceID, &u.Name, &username, &email, &phone, &avatar,
			&u.Settings.Theme, &u.Settings.NotifyTaskReminders,
			&u.Settings.NotifySharedMessages, &u.Settings.PrivacyVisibility,
			&u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if u.Name == "" {
		return nil, nil
	}
	u.Username = fromNull(username)
	u.Email = fromNull(email)
	u.Phone = fromNull(phone)
	u.Avatar = fromNull(avatar)
	return &u, nil
}

// PutUser upserts the owner's profile and returns the canonical record.
func (s *Store) PutUser(ownerID string, in *remote.User) (*remote.User, error) {
	ts := now()
	_, err := s.db.Exec(`
		UPDATE users SET
			name = ?, username = ?, email = ?, phone = ?, avatar = ?,
			settings_theme = ?, settings_notify_task_reminders = ?,
			settings_notify_shared_messages = ?, settings_privacy_visibility = ?,
			updated_at = ?
		WHERE id = ?`,
		in.Name, toNull(in.Username), toNull(in.Email), toNull(in.Phone), toNull(in.Avatar),
		orDefault(in.Settings.Theme, "system"), in.Settings.NotifyTaskReminders,
		in.Settings.NotifySharedMessages, orDefault(in.Settings.PrivacyVisibility, "private"),
		ts, ownerID)
	if err != nil {
		return nil, err
	}
	return s.GetUser(ownerID)
}

func fromNull(n sql.NullString) *string {
	if !n.Valid {
		return nil
	}
	s := n.String
	return &s
}

func toNull(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func toNullInt(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

func fromNullInt(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}
