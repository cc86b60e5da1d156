package server

import (
	"database/sql"

	"github.com/google/uuid"
	"github.com/mneme-app/mneme/internal/remote"
)

const messageCols = `id, chat_id, content, type,
	attachment_url, attachment_filename, attachment_mime_type, attachment_size,
	attachment_duration, attachment_thumbnail, attachment_width, attachment_height,
	location_latitude, location_longitude, location_address,
	is_locked, is_starred, is_edited,
	is_task, reminder_at, is_completed, completed_at,
	is_deleted, deleted_at, created_at, updated_at`

func scanMessage(row interface{ Scan(...any) error }) (*remote.Message, error) {
	var m remote.Message
	var content sql.NullString
	var attURL, attFilename, attMime, attThumb sql.NullString
	var attSize, attDuration, attWidth, attHeight sql.NullInt64
	var locLat, locLng sql.NullFloat64
	var locAddr sql.NullString
	var reminderAt, completedAt, deletedAt sql.NullInt64
	err := row.Scan(&m.ID, &m.ChatID, &content, &m.Type,
		&attURL, &attFilename, &attMime, &attSize,
		&attDuration, &attThumb, &attWidth, &attHeight,
		&locLat, &locLng, &locAddr,
		&m.IsLocked, &m.IsStarred, &m.IsEdited,
		&m.Task.IsTask, &reminderAt, &m.Task.IsCompleted, &completedAt,
		&m.IsDeleted, &deletedAt, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	m.Content = fromNull(content)
	if attURL.Valid {
		m.Attachment = &remote.Attachment{
			URL:       attURL.String,
			Filename:  fromNull(attFilename),
			MimeType:  fromNull(attMime),
			Size:      fromNullInt(attSize),
			Duration:  fromNullInt(attDuration),
			Thumbnail: fromNull(attThumb),
			Width:     fromNullInt(attWidth),
			Height:    fromNullInt(attHeight),
		}
	}
	if locLat.Valid && locLng.Valid {
		m.Location = &remote.Location{
			Latitude:  locLat.Float64,
			Longitude: locLng.Float64,
			Address:   fromNull(locAddr),
		}
	}
	m.Task.ReminderAt = fromNullInt(reminderAt)
	m.Task.CompletedAt = fromNullInt(completedAt)
	m.DeletedAt = fromNullInt(deletedAt)
	return &m, nil
}

type messageArgs struct {
	attURL, attFilename, attMime, attThumb sql.NullString
	attSize, attDuration                   sql.NullInt64
	attWidth, attHeight                    sql.NullInt64
	locLat, locLng                         sql.NullFloat64
	locAddr                                sql.NullString
}

func splitMessage(in *remote.Message) messageArgs {
	var a messageArgs
	if in.Attachment != nil {
		a.attURL = sql.NullString{String: in.Attachment.URL, Valid: true}
		a.attFilename = toNull(in.Attachment.Filename)
		a.attMime = toNull(in.Attachment.MimeType)
		a.attSize = toNullInt(in.Attachment.Size)
		a.attDuration = toNullInt(in.Attachment.Duration)
		a.attThumb = toNull(in.Attachment.Thumbnail)
		a.attWidth = toNullInt(in.Attachment.Width)
		a.attHeight = toNullInt(in.Attachment.Height)
	}
	if in.Location != nil {
		a.locLat = sql.NullFloat64{Float64: in.Location.Latitude, Valid: true}
		a.locLng = sql.NullFloat64{Float64: in.Location.Longitude, Valid: true}
		a.locAddr = toNull(in.Location.Address)
	}
	return a
}

// CreateMessage inserts a message under one of owner's chats, assigns
// server identity and refreshes the chat's last-message summary.
// Returns nil when the chat is unknown.
func (s *Store) CreateMessage(ownerID, chatID string, in *remote.Message) (*remote.Message, error) {
	chat, err := s.GetChat(ownerID, chatID)
	if err != nil {
		return nil, err
	}
	if chat == nil {
		return nil, nil
	}
	id := uuid.New().String()
	ts := now()
	createdAt := in.CreatedAt
	if createdAt == 0 {
		createdAt = ts
	}
	a := splitMessage(in)
	_, err = s.db.Exec(`
		INSERT INTO messages (id, chat_id, owner_id, content, type,
			attachment_url, attachment_filename, attachment_mime_type, attachment_size,
			attachment_duration, attachment_thumbnail, attachment_width, attachment_height,
			location_latitude, location_longitude, location_address,
			is_locked, is_starred, is_edited,
			is_task, reminder_at, is_completed, completed_at,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, chatID, ownerID, toNull(in.Content), in.Type,
		a.attURL, a.attFilename, a.attMime, a.attSize,
		a.attDuration, a.attThumb, a.attWidth, a.attHeight,
		a.locLat, a.locLng, a.locAddr,
		in.IsLocked, in.IsStarred, in.IsEdited,
		in.Task.IsTask, toNullInt(in.Task.ReminderAt), in.Task.IsCompleted, toNullInt(in.Task.CompletedAt),
		createdAt, ts)
	if err != nil {
		return nil, err
	}
	if err := s.refreshLastMessage(chatID); err != nil {
		return nil, err
	}
	return s.GetMessage(ownerID, id)
}

// GetMessage returns one of owner's messages by server id, or nil.
func (s *Store) GetMessage(ownerID, id string) (*remote.Message, error) {
	m, err := scanMessage(s.db.QueryRow(`
		SELECT `+messageCols+` FROM messages WHERE id = ? AND owner_id = ?`, id, ownerID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return m, err
}

// UpdateMessage applies a full-record update, tombstone pushes included.
// Returns nil when the message is unknown.
func (s *Store) UpdateMessage(ownerID, id string, in *remote.Message) (*remote.Message, error) {
	existing, err := s.GetMessage(ownerID, id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, nil
	}
	ts := now()
	deletedAt := toNullInt(in.DeletedAt)
	if in.IsDeleted && !deletedAt.Valid {
		deletedAt = sql.NullInt64{Int64: ts, Valid: true}
	}
	a := splitMessage(in)
	_, err = s.db.Exec(`
		UPDATE messages SET content = ?, type = ?,
			attachment_url = ?, attachment_filename = ?, attachment_mime_type = ?, attachment_size = ?,
			attachment_duration = ?, attachment_thumbnail = ?, attachment_width = ?, attachment_height = ?,
			location_latitude = ?, location_longitude = ?, location_address = ?,
			is_locked = ?, is_starred = ?, is_edited = ?,
			is_task = ?, reminder_at = ?, is_completed = ?, completed_at = ?,
			is_deleted = ?, deleted_at = ?, updated_at = ?
		WHERE id = ? AND owner_id = ?`,
		toNull(in.Content), in.Type,
		a.attURL, a.attFilename, a.attMime, a.attSize,
		a.attDuration, a.attThumb, a.attWidth, a.attHeight,
		a.locLat, a.locLng, a.locAddr,
		in.IsLocked, in.IsStarred, in.IsEdited,
		in.Task.IsTask, toNullInt(in.Task.ReminderAt), in.Task.IsCompleted, toNullInt(in.Task.CompletedAt),
		in.IsDeleted, deletedAt, ts, id, ownerID)
	if err != nil {
		return nil, err
	}
	if err := s.refreshLastMessage(existing.ChatID); err != nil {
		return nil, err
	}
	return s.GetMessage(ownerID, id)
}

// ListMessages returns owner's messages touched strictly after since,
// tombstones included, oldest change first.
func (s *Store) ListMessages(ownerID string, since int64) ([]remote.Message, error) {
	rows, err := s.db.Query(`
		SELECT `+messageCols+` FROM messages
		WHERE owner_id = ? AND updated_at > ?
		ORDER BY updated_at`, ownerID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []remote.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func (s *Store) refreshLastMessage(chatID string) error {
	_, err := s.db.Exec(`
		UPDATE chats SET
			last_message_content = (SELECT content FROM messages
				WHERE chat_id = ? AND is_deleted = 0 ORDER BY created_at DESC LIMIT 1),
			last_message_type = (SELECT type FROM messages
				WHERE chat_id = ? AND is_deleted = 0 ORDER BY created_at DESC LIMIT 1),
			last_message_at = (SELECT created_at FROM messages
				WHERE chat_id = ? AND is_deleted = 0 ORDER BY created_at DESC LIMIT 1)
		WHERE id = ?`, chatID, chatID, chatID, chatID)
	return err
}
