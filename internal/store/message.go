package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mneme-app/mneme/internal/bus"
)

// MessageRepo is the typed query surface over the messages table. Besides
// sync bookkeeping it maintains the owning chat's last-message cache; the
// FTS index is kept in lockstep by schema triggers.
type MessageRepo struct {
	db  *DB
	bus *bus.Bus
}

// NewMessageRepo creates a message repository bound to the given store handle.
func NewMessageRepo(db *DB, b *bus.Bus) *MessageRepo {
	return &MessageRepo{db: db, bus: b}
}

func (r *MessageRepo) notify() {
	if r.bus == nil {
		return
	}
	r.bus.Publish(bus.Event{Kind: "local.message.changed", Timestamp: time.Now()})
}

// CreateMessage carries the fields for a new message.
type CreateMessage struct {
	ChatID     string
	Content    *string
	Type       string
	Attachment *Attachment
	Location   *Location
}

// Create inserts a new message as pending and refreshes the chat cache.
func (r *MessageRepo) Create(in CreateMessage) (*Message, error) {
	if in.Type == "" {
		in.Type = TypeText
	}
	id := uuid.New().String()
	now := nowMillis()

	var att Attachment
	if in.Attachment != nil {
		att = *in.Attachment
	}
	var lat, lng sql.NullFloat64
	var addr sql.NullString
	if in.Location != nil {
		lat = sql.NullFloat64{Float64: in.Location.Latitude, Valid: true}
		lng = sql.NullFloat64{Float64: in.Location.Longitude, Valid: true}
		addr = nullStr(in.Location.Address)
	}
	attURL := sql.NullString{}
	if in.Attachment != nil {
		attURL = sql.NullString{String: att.URL, Valid: true}
	}

	_, err := r.db.Exec(`
		INSERT INTO messages (
			id, chat_id, content, type,
			attachment_url, attachment_filename, attachment_mime_type,
			attachment_size, attachment_duration, attachment_thumbnail,
			attachment_width, attachment_height,
			location_latitude, location_longitude, location_address,
			sync_status, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 'pending', ?, ?)`,
		id, in.ChatID, nullStr(in.Content), in.Type,
		attURL, nullStr(att.Filename), nullStr(att.MimeType),
		nullInt(att.Size), nullInt(att.Duration), nullStr(att.Thumbnail),
		nullInt(att.Width), nullInt(att.Height),
		lat, lng, addr, now, now)
	if err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}

	if err := refreshLastMessage(r.db, in.ChatID); err != nil {
		return nil, err
	}
	r.notify()
	return r.GetByID(id)
}

const messageColumns = `id, server_id, chat_id, content, type,
	attachment_url, attachment_filename, attachment_mime_type,
	attachment_size, attachment_duration, attachment_thumbnail,
	attachment_width, attachment_height,
	location_latitude, location_longitude, location_address,
	is_locked, is_starred, is_edited,
	is_task, reminder_at, is_completed, completed_at,
	sync_status, deleted_at, created_at, updated_at`

func scanMessage(row interface{ Scan(...any) error }) (*Message, error) {
	var m Message
	var serverID, content, attURL, attFilename, attMime, attThumb, locAddr sql.NullString
	var attSize, attDuration, attWidth, attHeight sql.NullInt64
	var lat, lng sql.NullFloat64
	var reminderAt, completedAt, deletedAt sql.NullInt64
	err := row.Scan(&m.ID, &serverID, &m.ChatID, &content, &m.Type,
		&attURL, &attFilename, &attMime,
		&attSize, &attDuration, &attThumb,
		&attWidth, &attHeight,
		&lat, &lng, &locAddr,
		&m.IsLocked, &m.IsStarred, &m.IsEdited,
		&m.Task.IsTask, &reminderAt, &m.Task.IsCompleted, &completedAt,
		&m.SyncStatus, &deletedAt, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	m.ServerID = strOrNil(serverID)
	m.Content = strOrNil(content)
	if attURL.Valid {
		m.Attachment = &Attachment{
			URL:       attURL.String,
			Filename:  strOrNil(attFilename),
			MimeType:  strOrNil(attMime),
			Size:      intOrNil(attSize),
			Duration:  intOrNil(attDuration),
			Thumbnail: strOrNil(attThumb),
			Width:     intOrNil(attWidth),
			Height:    intOrNil(attHeight),
		}
	}
	if lat.Valid && lng.Valid {
		m.Location = &Location{
			Latitude:  lat.Float64,
			Longitude: lng.Float64,
			Address:   strOrNil(locAddr),
		}
	}
	m.Task.ReminderAt = intOrNil(reminderAt)
	m.Task.CompletedAt = intOrNil(completedAt)
	m.DeletedAt = intOrNil(deletedAt)
	return &m, nil
}

// GetByID returns a non-deleted message by local id, or nil if absent.
func (r *MessageRepo) GetByID(id string) (*Message, error) {
	m, err := scanMessage(r.db.QueryRow(
		`SELECT `+messageColumns+` FROM messages WHERE id = ? AND deleted_at IS NULL`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return m, err
}

// GetByServerID returns a non-deleted message by server id, or nil if absent.
func (r *MessageRepo) GetByServerID(serverID string) (*Message, error) {
	m, err := scanMessage(r.db.QueryRow(
		`SELECT `+messageColumns+` FROM messages WHERE server_id = ? AND deleted_at IS NULL`, serverID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return m, err
}

// ListByChat returns messages for a chat, newest first, using keyset
// pagination by creation time.
func (r *MessageRepo) ListByChat(chatID string, beforeTs int64, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	if beforeTs <= 0 {
		beforeTs = nowMillis() + 1
	}
	return r.queryMessages(`
		SELECT `+messageColumns+` FROM messages
		WHERE chat_id = ? AND deleted_at IS NULL AND created_at < ?
		ORDER BY created_at DESC LIMIT ?`, chatID, beforeTs, limit)
}

func (r *MessageRepo) queryMessages(q string, args ...any) ([]Message, error) {
	rows, err := r.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, *m)
	}
	return msgs, rows.Err()
}

// Update replaces a message's content, marking it edited and pending.
func (r *MessageRepo) Update(id string, content string) (*Message, error) {
	existing, err := r.GetByID(id)
	if err != nil || existing == nil {
		return existing, err
	}
	now := nowMillis()
	if _, err := r.db.Exec(`
		UPDATE messages SET content = ?, is_edited = 1, sync_status = 'pending', updated_at = ?
		WHERE id = ?`, content, now, id); err != nil {
		return nil, fmt.Errorf("update message: %w", err)
	}
	if err := refreshLastMessage(r.db, existing.ChatID); err != nil {
		return nil, err
	}
	r.notify()
	return r.GetByID(id)
}

// Delete soft-deletes a message and refreshes the chat cache.
func (r *MessageRepo) Delete(id string) error {
	existing, err := r.GetByID(id)
	if err != nil {
		return err
	}
	if existing == nil {
		return nil
	}
	now := nowMillis()
	if _, err := r.db.Exec(`
		UPDATE messages SET deleted_at = ?, sync_status = 'pending', updated_at = ?
		WHERE id = ?`, now, now, id); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	if err := refreshLastMessage(r.db, existing.ChatID); err != nil {
		return err
	}
	r.notify()
	return nil
}

// SetLocked toggles the undeletable flag.
func (r *MessageRepo) SetLocked(id string, locked bool) (*Message, error) {
	return r.setFlag(id, "is_locked", locked)
}

// SetStarred toggles the starred flag.
func (r *MessageRepo) SetStarred(id string, starred bool) (*Message, error) {
	return r.setFlag(id, "is_starred", starred)
}

// ListStarred returns non-deleted starred messages, newest first.
func (r *MessageRepo) ListStarred(limit, offset int) ([]Message, error) {
	if limit <= 0 {
		limit = 20
	}
	return r.queryMessages(`
		SELECT `+messageColumns+` FROM messages
		WHERE is_starred = 1 AND deleted_at IS NULL
		ORDER BY created_at DESC LIMIT ? OFFSET ?`, limit, offset)
}

// ListLocked returns locked messages, newest first. Locked messages outlive
// their chat, so no join against chat deletion state is applied.
func (r *MessageRepo) ListLocked(limit, offset int) ([]Message, error) {
	if limit <= 0 {
		limit = 20
	}
	return r.queryMessages(`
		SELECT `+messageColumns+` FROM messages
		WHERE is_locked = 1 AND deleted_at IS NULL
		ORDER BY created_at DESC LIMIT ? OFFSET ?`, limit, offset)
}

func (r *MessageRepo) setFlag(id, column string, value bool) (*Message, error) {
	now := nowMillis()
	if _, err := r.db.Exec(
		`UPDATE messages SET `+column+` = ?, sync_status = 'pending', updated_at = ? WHERE id = ?`,
		value, now, id); err != nil {
		return nil, err
	}
	r.notify()
	return r.GetByID(id)
}

// GetPendingSync returns all messages with pending status, deleted ones
// included so their tombstones get pushed.
func (r *MessageRepo) GetPendingSync() ([]Message, error) {
	return r.queryMessages(`SELECT ` + messageColumns + ` FROM messages WHERE sync_status = 'pending'`)
}

// GetNeverSynced returns non-deleted messages with no server identity yet.
func (r *MessageRepo) GetNeverSynced() ([]Message, error) {
	return r.queryMessages(`SELECT ` + messageColumns + ` FROM messages WHERE server_id IS NULL AND deleted_at IS NULL`)
}

// MarkSynced records the server identity assigned to a local message. If a
// different local message already holds that server_id, the freshly synced
// row is the redundant copy: it is hard-deleted and the chat cache refreshed.
func (r *MessageRepo) MarkSynced(localID, serverID string) error {
	existing, err := r.GetByServerID(serverID)
	if err != nil {
		return err
	}
	if existing != nil && existing.ID != localID {
		dup, err := r.GetByID(localID)
		if err != nil {
			return err
		}
		if _, err := r.db.Exec(`DELETE FROM messages WHERE id = ?`, localID); err != nil {
			return err
		}
		if dup != nil {
			return refreshLastMessage(r.db, dup.ChatID)
		}
		return nil
	}

	_, err = r.db.Exec(
		`UPDATE messages SET server_id = ?, sync_status = 'synced' WHERE id = ?`,
		serverID, localID)
	return err
}

// UpsertFromServer merges a live server message into the local store under
// the given local chat. Server state overwrites the whole record and marks
// it synced; unknown server ids become fresh local rows.
func (r *MessageRepo) UpsertFromServer(chatLocalID string, m *Message) error {
	if m.ServerID == nil {
		return fmt.Errorf("upsert message: missing server id")
	}
	existing, err := r.GetByServerID(*m.ServerID)
	if err != nil {
		return err
	}

	var att Attachment
	attURL := sql.NullString{}
	if m.Attachment != nil {
		att = *m.Attachment
		attURL = sql.NullString{String: att.URL, Valid: true}
	}
	var lat, lng sql.NullFloat64
	var addr sql.NullString
	if m.Location != nil {
		lat = sql.NullFloat64{Float64: m.Location.Latitude, Valid: true}
		lng = sql.NullFloat64{Float64: m.Location.Longitude, Valid: true}
		addr = nullStr(m.Location.Address)
	}

	var chatID string
	if existing != nil {
		chatID = existing.ChatID
		_, err = r.db.Exec(`
			UPDATE messages SET
				content = ?, type = ?,
				attachment_url = ?, attachment_filename = ?, attachment_mime_type = ?,
				attachment_size = ?, attachment_duration = ?, attachment_thumbnail = ?,
				attachment_width = ?, attachment_height = ?,
				location_latitude = ?, location_longitude = ?, location_address = ?,
				is_locked = ?, is_starred = ?, is_edited = ?,
				is_task = ?, reminder_at = ?, is_completed = ?, completed_at = ?,
				sync_status = 'synced', updated_at = ?
			WHERE server_id = ?`,
			nullStr(m.Content), m.Type,
			attURL, nullStr(att.Filename), nullStr(att.MimeType),
			nullInt(att.Size), nullInt(att.Duration), nullStr(att.Thumbnail),
			nullInt(att.Width), nullInt(att.Height),
			lat, lng, addr,
			m.IsLocked, m.IsStarred, m.IsEdited,
			m.Task.IsTask, nullInt(m.Task.ReminderAt), m.Task.IsCompleted, nullInt(m.Task.CompletedAt),
			m.UpdatedAt, *m.ServerID)
	} else {
		chatID = chatLocalID
		_, err = r.db.Exec(`
			INSERT INTO messages (
				id, server_id, chat_id, content, type,
				attachment_url, attachment_filename, attachment_mime_type,
				attachment_size, attachment_duration, attachment_thumbnail,
				attachment_width, attachment_height,
				location_latitude, location_longitude, location_address,
				is_locked, is_starred, is_edited,
				is_task, reminder_at, is_completed, completed_at,
				sync_status, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 'synced', ?, ?)`,
			uuid.New().String(), *m.ServerID, chatLocalID, nullStr(m.Content), m.Type,
			attURL, nullStr(att.Filename), nullStr(att.MimeType),
			nullInt(att.Size), nullInt(att.Duration), nullStr(att.Thumbnail),
			nullInt(att.Width), nullInt(att.Height),
			lat, lng, addr,
			m.IsLocked, m.IsStarred, m.IsEdited,
			m.Task.IsTask, nullInt(m.Task.ReminderAt), m.Task.IsCompleted, nullInt(m.Task.CompletedAt),
			m.CreatedAt, m.UpdatedAt)
	}
	if err != nil {
		return err
	}
	return refreshLastMessage(r.db, chatID)
}

// MarkDeletedFromServer applies a server-side tombstone: soft-delete the
// local counterpart, marked synced so it is not re-pushed. Without a local
// counterpart this is a no-op; tombstones never create rows.
func (r *MessageRepo) MarkDeletedFromServer(serverID string, deletedAt int64) error {
	existing, err := r.GetByServerID(serverID)
	if err != nil || existing == nil {
		return err
	}
	if _, err := r.db.Exec(`
		UPDATE messages SET deleted_at = ?, sync_status = 'synced', updated_at = ?
		WHERE server_id = ?`, deletedAt, deletedAt, serverID); err != nil {
		return err
	}
	return refreshLastMessage(r.db, existing.ChatID)
}

// HardDelete physically removes a message row. Used for rows whose deletion
// never reached the server.
func (r *MessageRepo) HardDelete(id string) error {
	_, err := r.db.Exec(`DELETE FROM messages WHERE id = ?`, id)
	return err
}

// MarkDeletionSynced records that the server confirmed this message's deletion.
func (r *MessageRepo) MarkDeletionSynced(id string) error {
	_, err := r.db.Exec(
		`UPDATE messages SET sync_status = 'synced' WHERE id = ? AND deleted_at IS NOT NULL`, id)
	return err
}

// PurgeTombstones removes soft-deleted messages whose deletion was confirmed
// synced before the cutoff.
func (r *MessageRepo) PurgeTombstones(before int64) (int64, error) {
	res, err := r.db.Exec(`
		DELETE FROM messages
		WHERE deleted_at IS NOT NULL AND sync_status = 'synced' AND deleted_at < ?`, before)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}
