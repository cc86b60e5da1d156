package store

import "fmt"

// TaskFilter selects which tasks ListTasks returns.
type TaskFilter string

const (
	TasksAll       TaskFilter = "all"
	TasksPending   TaskFilter = "pending"
	TasksCompleted TaskFilter = "completed"
	TasksOverdue   TaskFilter = "overdue"
)

// SetTask sets or clears the task sub-record on a message.
func (r *MessageRepo) SetTask(id string, isTask bool, reminderAt *int64, isCompleted bool) (*Message, error) {
	now := nowMillis()
	var completedAt any
	if isCompleted {
		completedAt = now
	}
	if _, err := r.db.Exec(`
		UPDATE messages SET
			is_task = ?, reminder_at = ?, is_completed = ?, completed_at = ?,
			sync_status = 'pending', updated_at = ?
		WHERE id = ?`,
		isTask, nullInt(reminderAt), isCompleted, completedAt, now, id); err != nil {
		return nil, fmt.Errorf("set task: %w", err)
	}
	r.notify()
	return r.GetByID(id)
}

// CompleteTask marks a task message as done.
func (r *MessageRepo) CompleteTask(id string) (*Message, error) {
	now := nowMillis()
	if _, err := r.db.Exec(`
		UPDATE messages SET
			is_completed = 1, completed_at = ?, sync_status = 'pending', updated_at = ?
		WHERE id = ?`, now, now, id); err != nil {
		return nil, fmt.Errorf("complete task: %w", err)
	}
	r.notify()
	return r.GetByID(id)
}

// ListTasks returns task messages, optionally scoped to one chat. Incomplete
// tasks sort first, then by reminder time, then newest created.
func (r *MessageRepo) ListTasks(filter TaskFilter, chatID string, limit, offset int) ([]Message, error) {
	if limit <= 0 {
		limit = 20
	}
	where := `WHERE is_task = 1 AND deleted_at IS NULL`
	args := []any{}
	if chatID != "" {
		where += ` AND chat_id = ?`
		args = append(args, chatID)
	}
	switch filter {
	case TasksPending:
		where += ` AND is_completed = 0`
	case TasksCompleted:
		where += ` AND is_completed = 1`
	case TasksOverdue:
		where += ` AND is_completed = 0 AND reminder_at IS NOT NULL AND reminder_at < ?`
		args = append(args, nowMillis())
	}

	return r.queryMessages(`
		SELECT `+messageColumns+` FROM messages `+where+`
		ORDER BY is_completed ASC,
			CASE WHEN reminder_at IS NOT NULL THEN 0 ELSE 1 END,
			reminder_at ASC,
			created_at DESC
		LIMIT ? OFFSET ?`, append(args, limit, offset)...)
}

// UpcomingTasks returns incomplete tasks with a reminder inside the window.
func (r *MessageRepo) UpcomingTasks(days int) ([]Message, error) {
	if days <= 0 {
		days = 7
	}
	horizon := nowMillis() + int64(days)*24*60*60*1000
	return r.queryMessages(`
		SELECT `+messageColumns+` FROM messages
		WHERE is_task = 1 AND is_completed = 0 AND deleted_at IS NULL
		  AND reminder_at IS NOT NULL AND reminder_at <= ?
		ORDER BY reminder_at ASC`, horizon)
}
