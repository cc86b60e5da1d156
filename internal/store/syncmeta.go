package store

import "database/sql"

// GetSyncMeta returns the singleton sync bookkeeping row.
func (db *DB) GetSyncMeta() (*SyncMeta, error) {
	var m SyncMeta
	var pull, push sql.NullInt64
	err := db.QueryRow(
		`SELECT last_pull_at, last_push_at, is_syncing FROM sync_meta WHERE id = 1`).
		Scan(&pull, &push, &m.IsSyncing)
	if err != nil {
		return nil, err
	}
	m.LastPullAt = intOrNil(pull)
	m.LastPushAt = intOrNil(push)
	return &m, nil
}

// SetLastPullAt persists the incremental pull checkpoint.
func (db *DB) SetLastPullAt(ts int64) error {
	_, err := db.Exec(`UPDATE sync_meta SET last_pull_at = ? WHERE id = 1`, ts)
	return err
}

// SetLastPushAt persists the last successful push time.
func (db *DB) SetLastPushAt(ts int64) error {
	_, err := db.Exec(`UPDATE sync_meta SET last_push_at = ? WHERE id = 1`, ts)
	return err
}

// SetSyncing records whether a cycle is in flight. Crash-recovery
// diagnostics only; mutual exclusion lives in the engine.
func (db *DB) SetSyncing(v bool) error {
	_, err := db.Exec(`UPDATE sync_meta SET is_syncing = ? WHERE id = 1`, v)
	return err
}
