package server

import (
	"database/sql"

	"github.com/google/uuid"
	"github.com/mneme-app/mneme/internal/remote"
)

const chatCols = `id, name, icon, is_pinned, wallpaper,
	last_message_content, last_message_type, last_message_at,
	is_deleted, deleted_at, created_at, updated_at`

func scanChat(row interface{ Scan(...any) error }) (*remote.Chat, error) {
	var c remote.Chat
	var icon, wallpaper, lmContent, lmType sql.NullString
	var lmAt, deletedAt sql.NullInt64
	err := row.Scan(&c.ID, &c.Name, &icon, &c.IsPinned, &wallpaper,
		&lmContent, &lmType, &lmAt,
		&c.IsDeleted, &deletedAt, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.Icon = fromNull(icon)
	c.Wallpaper = fromNull(wallpaper)
	c.DeletedAt = fromNullInt(deletedAt)
	if lmType.Valid && lmAt.Valid {
		c.LastMessage = &remote.LastMessage{
			Content:   fromNull(lmContent),
			Type:      lmType.String,
			Timestamp: lmAt.Int64,
		}
	}
	return &c, nil
}

// CreateChat inserts a new chat for owner, assigning server identity.
func (s *Store) CreateChat(ownerID string, in *remote.Chat) (*remote.Chat, error) {
	id := uuid.New().String()
	ts := now()
	createdAt := in.CreatedAt
	if createdAt == 0 {
		createdAt = ts
	}
	var lmContent, lmType sql.NullString
	var lmAt sql.NullInt64
	if in.LastMessage != nil {
		lmContent = toNull(in.LastMessage.Content)
		lmType = sql.NullString{String: in.LastMessage.Type, Valid: true}
		lmAt = sql.NullInt64{Int64: in.LastMessage.Timestamp, Valid: true}
	}
	_, err := s.db.Exec(`
		INSERT INTO chats (id, owner_id, name, icon, is_pinned, wallpaper,
			last_message_content, last_message_type, last_message_at,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, ownerID, in.Name, toNull(in.Icon), in.IsPinned, toNull(in.Wallpaper),
		lmContent, lmType, lmAt, createdAt, ts)
	if err != nil {
		return nil, err
	}
	return s.GetChat(ownerID, id)
}

// GetChat returns one of owner's chats by server id, tombstones included.
// Returns nil when the chat does not exist or is not owned by owner.
func (s *Store) GetChat(ownerID, id string) (*remote.Chat, error) {
	c, err := scanChat(s.db.QueryRow(`
		SELECT `+chatCols+` FROM chats WHERE id = ? AND owner_id = ?`, id, ownerID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return c, err
}

// UpdateChat applies a full-record update to one of owner's chats. A
// tombstone push (isDeleted) marks the row deleted; the row is kept so
// later pulls can propagate the deletion.
func (s *Store) UpdateChat(ownerID, id string, in *remote.Chat) (*remote.Chat, error) {
	existing, err := s.GetChat(ownerID, id)
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
	var lmContent, lmType sql.NullString
	var lmAt sql.NullInt64
	if in.LastMessage != nil {
		lmContent = toNull(in.LastMessage.Content)
		lmType = sql.NullString{String: in.LastMessage.Type, Valid: true}
		lmAt = sql.NullInt64{Int64: in.LastMessage.Timestamp, Valid: true}
	}
	_, err = s.db.Exec(`
		UPDATE chats SET name = ?, icon = ?, is_pinned = ?, wallpaper = ?,
			last_message_content = ?, last_message_type = ?, last_message_at = ?,
			is_deleted = ?, deleted_at = ?, updated_at = ?
		WHERE id = ? AND owner_id = ?`,
		in.Name, toNull(in.Icon), in.IsPinned, toNull(in.Wallpaper),
		lmContent, lmType, lmAt,
		in.IsDeleted, deletedAt, ts, id, ownerID)
	if err != nil {
		return nil, err
	}
	return s.GetChat(ownerID, id)
}

// ListChats returns the owner's full chat snapshot, tombstones included.
func (s *Store) ListChats(ownerID string) ([]remote.Chat, error) {
	rows, err := s.db.Query(`
		SELECT `+chatCols+` FROM chats WHERE owner_id = ? ORDER BY created_at`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []remote.Chat
	for rows.Next() {
		c, err := scanChat(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}
