package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mneme-app/mneme/internal/bus"
)

// UserRepo manages the single per-device profile row.
type UserRepo struct {
	db  *DB
	bus *bus.Bus
}

// NewUserRepo creates a user repository bound to the given store handle.
func NewUserRepo(db *DB, b *bus.Bus) *UserRepo {
	return &UserRepo{db: db, bus: b}
}

func (r *UserRepo) notify() {
	if r.bus == nil {
		return
	}
	r.bus.Publish(bus.Event{Kind: "local.user.changed", Timestamp: time.Now()})
}

const userColumns = `id, server_id, device_id, name, username, email, phone, avatar,
	settings_theme, settings_notify_task_reminders, settings_notify_shared_messages,
	settings_privacy_visibility, sync_status, deleted_at, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*User, error) {
	var u User
	var serverID, username, email, phone, avatar sql.NullString
	var deletedAt sql.NullInt64
	err := row.Scan(&u.ID, &serverID, &u.DeviceID, &u.Name, &username, &email, &phone, &avatar,
		&u.Settings.Theme, &u.Settings.NotifyTaskReminders, &u.Settings.NotifySharedMessages,
		&u.Settings.PrivacyVisibility, &u.SyncStatus, &deletedAt, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	u.ServerID = strOrNil(serverID)
	u.Username = strOrNil(username)
	u.Email = strOrNil(email)
	u.Phone = strOrNil(phone)
	u.Avatar = strOrNil(avatar)
	u.DeletedAt = intOrNil(deletedAt)
	return &u, nil
}

// Get returns the profile row, or nil before first Ensure.
func (r *UserRepo) Get() (*User, error) {
	u, err := scanUser(r.db.QueryRow(`SELECT ` + userColumns + ` FROM user LIMIT 1`))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return u, err
}

// Ensure creates the profile row on first run, bound to the stable device
// identity, and returns it. Idempotent.
func (r *UserRepo) Ensure(deviceID, name string) (*User, error) {
	existing, err := r.Get()
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}
	now := nowMillis()
	_, err = r.db.Exec(`
		INSERT INTO user (id, device_id, name, sync_status, created_at, updated_at)
		VALUES (?, ?, ?, 'pending', ?, ?)`,
		uuid.New().String(), deviceID, name, now, now)
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	r.notify()
	return r.Get()
}

// UpdateProfile holds optional profile fields; nil means leave unchanged.
type UpdateProfile struct {
	Name     *string
	Username *string
	Email    *string
	Phone    *string
	Avatar   *string
}

// UpdateProfile applies profile edits, flipping the row back to pending.
func (r *UserRepo) UpdateProfile(in UpdateProfile) (*User, error) {
	existing, err := r.Get()
	if err != nil || existing == nil {
		return existing, err
	}

	sets := []string{}
	args := []any{}
	add := func(col string, p *string) {
		if p != nil {
			sets = append(sets, col+" = ?")
			args = append(args, *p)
		}
	}
	add("name", in.Name)
	add("username", in.Username)
	add("email", in.Email)
	add("phone", in.Phone)
	add("avatar", in.Avatar)
	if len(sets) == 0 {
		return existing, nil
	}

	q := "UPDATE user SET "
	for i, s := range sets {
		if i > 0 {
			q += ", "
		}
		q += s
	}
	q += ", sync_status = 'pending', updated_at = ? WHERE id = ?"
	args = append(args, nowMillis(), existing.ID)

	if _, err := r.db.Exec(q, args...); err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	r.notify()
	return r.Get()
}

// UpdateSettings replaces the settings block, flipping the row to pending.
func (r *UserRepo) UpdateSettings(s Settings) (*User, error) {
	existing, err := r.Get()
	if err != nil || existing == nil {
		return existing, err
	}
	if _, err := r.db.Exec(`
		UPDATE user SET
			settings_theme = ?, settings_notify_task_reminders = ?,
			settings_notify_shared_messages = ?, settings_privacy_visibility = ?,
			sync_status = 'pending', updated_at = ?
		WHERE id = ?`,
		s.Theme, s.NotifyTaskReminders, s.NotifySharedMessages, s.PrivacyVisibility,
		nowMillis(), existing.ID); err != nil {
		return nil, fmt.Errorf("update settings: %w", err)
	}
	r.notify()
	return r.Get()
}

// GetPendingSync returns the profile row when it needs pushing.
func (r *UserRepo) GetPendingSync() (*User, error) {
	u, err := scanUser(r.db.QueryRow(
		`SELECT ` + userColumns + ` FROM user WHERE sync_status = 'pending' LIMIT 1`))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return u, err
}

// GetNeverSynced returns the profile row when it lacks server identity.
func (r *UserRepo) GetNeverSynced() (*User, error) {
	u, err := scanUser(r.db.QueryRow(
		`SELECT ` + userColumns + ` FROM user WHERE server_id IS NULL AND deleted_at IS NULL LIMIT 1`))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return u, err
}

// MarkSynced records the server identity for the profile row. The user table
// holds a single row per device, so there is no duplicate to merge.
func (r *UserRepo) MarkSynced(localID, serverID string) error {
	_, err := r.db.Exec(
		`UPDATE user SET server_id = ?, sync_status = 'synced' WHERE id = ?`,
		serverID, localID)
	return err
}

// UpsertFromServer overwrites the profile from authoritative server state.
func (r *UserRepo) UpsertFromServer(u *User) error {
	if u.ServerID == nil {
		return fmt.Errorf("upsert user: missing server id")
	}
	existing, err := r.Get()
	if err != nil {
		return err
	}
	if existing == nil {
		now := nowMillis()
		_, err = r.db.Exec(`
			INSERT INTO user (
				id, server_id, device_id, name, username, email, phone, avatar,
				settings_theme, settings_notify_task_reminders,
				settings_notify_shared_messages, settings_privacy_visibility,
				sync_status, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 'synced', ?, ?)`,
			uuid.New().String(), *u.ServerID, u.DeviceID, u.Name,
			nullStr(u.Username), nullStr(u.Email), nullStr(u.Phone), nullStr(u.Avatar),
			u.Settings.Theme, u.Settings.NotifyTaskReminders,
			u.Settings.NotifySharedMessages, u.Settings.PrivacyVisibility,
			now, u.UpdatedAt)
		return err
	}
	_, err = r.db.Exec(`
		UPDATE user SET
			server_id = ?, name = ?, username = ?, email = ?, phone = ?, avatar = ?,
			settings_theme = ?, settings_notify_task_reminders = ?,
			settings_notify_shared_messages = ?, settings_privacy_visibility = ?,
			sync_status = 'synced', updated_at = ?
		WHERE id = ?`,
		*u.ServerID, u.Name, nullStr(u.Username), nullStr(u.Email), nullStr(u.Phone), nullStr(u.Avatar),
		u.Settings.Theme, u.Settings.NotifyTaskReminders,
		u.Settings.NotifySharedMessages, u.Settings.PrivacyVisibility,
		u.UpdatedAt, existing.ID)
	return err
}
