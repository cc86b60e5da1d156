package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mneme-app/mneme/internal/bus"
)

// ChatRepo is the typed query surface over the chats table. All chat
// mutations go through it so sync bookkeeping (sync_status, updated_at)
// is never bypassed.
type ChatRepo struct {
	db  *DB
	bus *bus.Bus
}

// NewChatRepo creates a chat repository bound to the given store handle.
func NewChatRepo(db *DB, b *bus.Bus) *ChatRepo {
	return &ChatRepo{db: db, bus: b}
}

func (r *ChatRepo) notify() {
	if r.bus == nil {
		return
	}
	r.bus.Publish(bus.Event{Kind: "local.chat.changed", Timestamp: time.Now()})
}

// UpdateChat holds optional fields for Update; nil means leave unchanged.
type UpdateChat struct {
	Name      *string
	Icon      *string
	IsPinned  *bool
	Wallpaper *string
}

// Create inserts a new chat as pending, to be pushed on the next cycle.
func (r *ChatRepo) Create(name string, icon *string) (*Chat, error) {
	id := uuid.New().String()
	now := nowMillis()
	_, err := r.db.Exec(`
		INSERT INTO chats (id, name, icon, is_pinned, sync_status, created_at, updated_at)
		VALUES (?, ?, ?, 0, 'pending', ?, ?)`,
		id, name, nullStr(icon), now, now)
	if err != nil {
		return nil, fmt.Errorf("create chat: %w", err)
	}
	r.notify()
	return r.GetByID(id)
}

const chatColumns = `id, server_id, name, icon, is_pinned, wallpaper,
	last_message_content, last_message_type, last_message_at,
	sync_status, deleted_at, created_at, updated_at`

func scanChat(row interface{ Scan(...any) error }) (*Chat, error) {
	var c Chat
	var serverID, icon, wallpaper, lastContent, lastType sql.NullString
	var lastAt, deletedAt sql.NullInt64
	err := row.Scan(&c.ID, &serverID, &c.Name, &icon, &c.IsPinned, &wallpaper,
		&lastContent, &lastType, &lastAt,
		&c.SyncStatus, &deletedAt, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.ServerID = strOrNil(serverID)
	c.Icon = strOrNil(icon)
	c.Wallpaper = strOrNil(wallpaper)
	c.LastMessageContent = strOrNil(lastContent)
	c.LastMessageType = strOrNil(lastType)
	c.LastMessageAt = intOrNil(lastAt)
	c.DeletedAt = intOrNil(deletedAt)
	return &c, nil
}

// GetByID returns a non-deleted chat by local id, or nil if absent.
func (r *ChatRepo) GetByID(id string) (*Chat, error) {
	c, err := scanChat(r.db.QueryRow(
		`SELECT `+chatColumns+` FROM chats WHERE id = ? AND deleted_at IS NULL`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return c, err
}

// GetByServerID returns a non-deleted chat by server id, or nil if absent.
func (r *ChatRepo) GetByServerID(serverID string) (*Chat, error) {
	c, err := scanChat(r.db.QueryRow(
		`SELECT `+chatColumns+` FROM chats WHERE server_id = ? AND deleted_at IS NULL`, serverID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return c, err
}

// List returns non-deleted chats, pinned first, then by latest activity.
// An optional search filter matches the chat name.
func (r *ChatRepo) List(search string, limit, offset int) ([]Chat, int, error) {
	if limit <= 0 {
		limit = 20
	}
	where := `WHERE deleted_at IS NULL`
	args := []any{}
	if search != "" {
		where += ` AND name LIKE ?`
		args = append(args, "%"+search+"%")
	}

	var total int
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM chats `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.Query(`
		SELECT `+chatColumns+` FROM chats `+where+`
		ORDER BY is_pinned DESC, COALESCE(last_message_at, updated_at) DESC
		LIMIT ? OFFSET ?`, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = rows.Close() }()

	var chats []Chat
	for rows.Next() {
		c, err := scanChat(rows)
		if err != nil {
			return nil, 0, err
		}
		chats = append(chats, *c)
	}
	return chats, total, rows.Err()
}

// Update applies the given fields, bumps updated_at and flips the chat back
// to pending so the edit is pushed.
func (r *ChatRepo) Update(id string, in UpdateChat) (*Chat, error) {
	existing, err := r.GetByID(id)
	if err != nil || existing == nil {
		return existing, err
	}

	sets := []string{}
	args := []any{}
	if in.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *in.Name)
	}
	if in.Icon != nil {
		sets = append(sets, "icon = ?")
		args = append(args, *in.Icon)
	}
	if in.IsPinned != nil {
		sets = append(sets, "is_pinned = ?")
		args = append(args, *in.IsPinned)
	}
	if in.Wallpaper != nil {
		sets = append(sets, "wallpaper = ?")
		args = append(args, *in.Wallpaper)
	}
	if len(sets) == 0 {
		return existing, nil
	}

	sets = append(sets, "sync_status = 'pending'", "updated_at = ?")
	args = append(args, nowMillis(), id)

	q := "UPDATE chats SET "
	for i, s := range sets {
		if i > 0 {
			q += ", "
		}
		q += s
	}
	q += " WHERE id = ?"
	if _, err := r.db.Exec(q, args...); err != nil {
		return nil, fmt.Errorf("update chat: %w", err)
	}
	r.notify()
	return r.GetByID(id)
}

// Delete soft-deletes a chat and cascades to its messages, except locked
// ones: those survive and stay queryable (a product guarantee, not an
// oversight). Returns the number of locked messages that survived.
func (r *ChatRepo) Delete(id string) (int, error) {
	var locked int
	err := r.db.QueryRow(`
		SELECT COUNT(*) FROM messages
		WHERE chat_id = ? AND is_locked = 1 AND deleted_at IS NULL`, id).Scan(&locked)
	if err != nil {
		return 0, err
	}

	now := nowMillis()
	tx, err := r.db.Begin()
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`
		UPDATE chats SET deleted_at = ?, sync_status = 'pending', updated_at = ?
		WHERE id = ?`, now, now, id); err != nil {
		return 0, fmt.Errorf("delete chat: %w", err)
	}
	if _, err := tx.Exec(`
		UPDATE messages SET deleted_at = ?, sync_status = 'pending', updated_at = ?
		WHERE chat_id = ? AND is_locked = 0 AND deleted_at IS NULL`, now, now, id); err != nil {
		return 0, fmt.Errorf("cascade delete messages: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	r.notify()
	return locked, nil
}

// GetPendingSync returns all chats with pending status, deleted ones
// included so their tombstones get pushed.
func (r *ChatRepo) GetPendingSync() ([]Chat, error) {
	return r.queryChats(`SELECT ` + chatColumns + ` FROM chats WHERE sync_status = 'pending'`)
}

// GetNeverSynced returns non-deleted chats with no server identity yet.
// Kept distinct from GetPendingSync as defensive redundancy: a row can end
// up synced without a server_id after a missed status transition, and it
// must still be pushed.
func (r *ChatRepo) GetNeverSynced() ([]Chat, error) {
	return r.queryChats(`SELECT ` + chatColumns + ` FROM chats WHERE server_id IS NULL AND deleted_at IS NULL`)
}

func (r *ChatRepo) queryChats(q string, args ...any) ([]Chat, error) {
	rows, err := r.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var chats []Chat
	for rows.Next() {
		c, err := scanChat(rows)
		if err != nil {
			return nil, err
		}
		chats = append(chats, *c)
	}
	return chats, rows.Err()
}

// MarkSynced records the server identity assigned to a local chat. If a
// different local chat already holds that server_id (factory reset and
// re-registration can produce one), the duplicate is merged into the
// pre-existing chat: messages are re-parented, the last-message cache is
// recomputed from the union, and the redundant row is hard-deleted.
func (r *ChatRepo) MarkSynced(localID, serverID string) error {
	existing, err := scanChat(r.db.QueryRow(
		`SELECT `+chatColumns+` FROM chats WHERE server_id = ? AND deleted_at IS NULL`, serverID))
	if err != nil && err != sql.ErrNoRows {
		return err
	}

	if err == nil && existing.ID != localID {
		return r.mergeInto(existing.ID, localID)
	}

	_, err = r.db.Exec(
		`UPDATE chats SET server_id = ?, sync_status = 'synced' WHERE id = ?`,
		serverID, localID)
	return err
}

func (r *ChatRepo) mergeInto(keepID, dupID string) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(
		`UPDATE messages SET chat_id = ? WHERE chat_id = ?`, keepID, dupID); err != nil {
		return fmt.Errorf("re-parent messages: %w", err)
	}
	if err := refreshLastMessage(tx, keepID); err != nil {
		return fmt.Errorf("refresh merged cache: %w", err)
	}
	// The duplicate was never materially distinct; remove it outright.
	if _, err := tx.Exec(`DELETE FROM chats WHERE id = ?`, dupID); err != nil {
		return fmt.Errorf("drop duplicate chat: %w", err)
	}
	return tx.Commit()
}

// UpsertFromServer merges a live (non-tombstone) server chat into the local
// store. Server state is authoritative: existing rows are overwritten whole
// and marked synced; unknown server ids become fresh local rows.
func (r *ChatRepo) UpsertFromServer(c *Chat) error {
	if c.ServerID == nil {
		return fmt.Errorf("upsert chat: missing server id")
	}
	existing, err := r.GetByServerID(*c.ServerID)
	if err != nil {
		return err
	}

	if existing != nil {
		_, err = r.db.Exec(`
			UPDATE chats SET
				name = ?, icon = ?, is_pinned = ?, wallpaper = ?,
				last_message_content = ?, last_message_type = ?, last_message_at = ?,
				sync_status = 'synced', updated_at = ?
			WHERE server_id = ?`,
			c.Name, nullStr(c.Icon), c.IsPinned, nullStr(c.Wallpaper),
			nullStr(c.LastMessageContent), nullStr(c.LastMessageType), nullInt(c.LastMessageAt),
			c.UpdatedAt, *c.ServerID)
		return err
	}

	_, err = r.db.Exec(`
		INSERT INTO chats (
			id, server_id, name, icon, is_pinned, wallpaper,
			last_message_content, last_message_type, last_message_at,
			sync_status, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 'synced', ?, ?)`,
		uuid.New().String(), *c.ServerID, c.Name, nullStr(c.Icon), c.IsPinned, nullStr(c.Wallpaper),
		nullStr(c.LastMessageContent), nullStr(c.LastMessageType), nullInt(c.LastMessageAt),
		c.CreatedAt, c.UpdatedAt)
	return err
}

// MarkDeletedFromServer applies a server-side tombstone. A local counterpart
// is soft-deleted and marked synced so the deletion is not pushed back; a
// missing counterpart is left absent, never resurrected.
func (r *ChatRepo) MarkDeletedFromServer(serverID string, deletedAt int64) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.Exec(`
		UPDATE chats SET deleted_at = ?, sync_status = 'synced', updated_at = ?
		WHERE server_id = ? AND deleted_at IS NULL`, deletedAt, deletedAt, serverID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		// Cascade follows the same locked-message exception as local deletes.
		if _, err := tx.Exec(`
			UPDATE messages SET deleted_at = ?, sync_status = 'synced', updated_at = ?
			WHERE chat_id = (SELECT id FROM chats WHERE server_id = ?)
			  AND is_locked = 0 AND deleted_at IS NULL`, deletedAt, deletedAt, serverID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ServerIDFor returns the server identity of a chat regardless of deletion
// state. Locked messages outlive their chat, so pushing one may need the
// server id of an already soft-deleted parent.
func (r *ChatRepo) ServerIDFor(localID string) (*string, error) {
	var serverID sql.NullString
	err := r.db.QueryRow(`SELECT server_id FROM chats WHERE id = ?`, localID).Scan(&serverID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return strOrNil(serverID), nil
}

// HardDelete physically removes a chat row. Used for rows whose deletion
// never reached the server (nothing remote to reconcile against).
func (r *ChatRepo) HardDelete(id string) error {
	_, err := r.db.Exec(`DELETE FROM chats WHERE id = ?`, id)
	return err
}

// MarkDeletionSynced records that the server confirmed this chat's deletion.
func (r *ChatRepo) MarkDeletionSynced(id string) error {
	_, err := r.db.Exec(
		`UPDATE chats SET sync_status = 'synced' WHERE id = ? AND deleted_at IS NOT NULL`, id)
	return err
}

// PurgeTombstones removes soft-deleted chats whose deletion was confirmed
// synced before the cutoff. Their soft-deleted messages go with them.
func (r *ChatRepo) PurgeTombstones(before int64) (int64, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`
		DELETE FROM messages WHERE deleted_at IS NOT NULL AND sync_status = 'synced'
		  AND deleted_at < ?
		  AND chat_id IN (SELECT id FROM chats WHERE deleted_at IS NOT NULL AND sync_status = 'synced' AND deleted_at < ?)`,
		before, before); err != nil {
		return 0, err
	}
	res, err := tx.Exec(`
		DELETE FROM chats WHERE deleted_at IS NOT NULL AND sync_status = 'synced' AND deleted_at < ?
		  AND NOT EXISTS (SELECT 1 FROM messages m WHERE m.chat_id = chats.id)`,
		before)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, tx.Commit()
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

// refreshLastMessage recomputes a chat's denormalized last-message cache
// from its newest non-deleted message. The cache is never source of truth.
func refreshLastMessage(q execer, chatID string) error {
	_, err := q.Exec(`
		UPDATE chats SET
			last_message_content = (
				SELECT m.content FROM messages m
				WHERE m.chat_id = chats.id AND m.deleted_at IS NULL
				ORDER BY m.created_at DESC, m.id DESC LIMIT 1),
			last_message_type = (
				SELECT m.type FROM messages m
				WHERE m.chat_id = chats.id AND m.deleted_at IS NULL
				ORDER BY m.created_at DESC, m.id DESC LIMIT 1),
			last_message_at = (
				SELECT m.created_at FROM messages m
				WHERE m.chat_id = chats.id AND m.deleted_at IS NULL
				ORDER BY m.created_at DESC, m.id DESC LIMIT 1)
		WHERE id = ?`, chatID)
	return err
}
