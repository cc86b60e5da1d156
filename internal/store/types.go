package store

import (
	"database/sql"
	"time"
)

// SyncStatus tracks whether a record's local state is known to match the
// remote store.
type SyncStatus string

const (
	// SyncPending means local state diverged from (or never reached) the server.
	SyncPending SyncStatus = "pending"
	// SyncSynced means local state matched server state as of the last cycle.
	SyncSynced SyncStatus = "synced"
)

// Message types carried by a note.
const (
	TypeText     = "text"
	TypeImage    = "image"
	TypeVoice    = "voice"
	TypeFile     = "file"
	TypeLocation = "location"
	TypeContact  = "contact"
)

// Chat represents a note thread.
type Chat struct {
	ID                 string
	ServerID           *string
	Name               string
	Icon               *string
	IsPinned           bool
	Wallpaper          *string
	LastMessageContent *string
	LastMessageType    *string
	LastMessageAt      *int64
	SyncStatus         SyncStatus
	DeletedAt          *int64
	CreatedAt          int64
	UpdatedAt          int64
}

// Attachment is opaque file metadata carried by a message. The sync engine
// persists and transmits it without interpreting file bytes.
type Attachment struct {
	URL       string
	Filename  *string
	MimeType  *string
	Size      *int64
	Duration  *int64
	Thumbnail *string
	Width     *int64
	Height    *int64
}

// Location is optional geo metadata carried by a message.
type Location struct {
	Latitude  float64
	Longitude float64
	Address   *string
}

// Task is the task sub-record of a message.
type Task struct {
	IsTask      bool
	ReminderAt  *int64
	IsCompleted bool
	CompletedAt *int64
}

// Message represents a note inside a chat.
type Message struct {
	ID         string
	ServerID   *string
	ChatID     string
	Content    *string
	Type       string
	Attachment *Attachment
	Location   *Location
	IsLocked   bool
	IsStarred  bool
	IsEdited   bool
	Task       Task
	SyncStatus SyncStatus
	DeletedAt  *int64
	CreatedAt  int64
	UpdatedAt  int64
}

// Settings holds the per-device user preferences, flattened in the schema.
type Settings struct {
	Theme                string
	NotifyTaskReminders  bool
	NotifySharedMessages bool
	PrivacyVisibility    string
}

// User is the single per-device profile row.
type User struct {
	ID         string
	ServerID   *string
	DeviceID   string
	Name       string
	Username   *string
	Email      *string
	Phone      *string
	Avatar     *string
	Settings   Settings
	SyncStatus SyncStatus
	DeletedAt  *int64
	CreatedAt  int64
	UpdatedAt  int64
}

// SyncMeta is the singleton sync bookkeeping row.
type SyncMeta struct {
	LastPullAt *int64
	LastPushAt *int64
	IsSyncing  bool
}

// SearchResult holds a message matched by full-text search with a snippet.
type SearchResult struct {
	Message Message
	Snippet string
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}

// Scan/bind helpers for nullable columns.

func strOrNil(n sql.NullString) *string {
	if !n.Valid {
		return nil
	}
	s := n.String
	return &s
}

func intOrNil(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

func nullStr(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func nullInt(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}
