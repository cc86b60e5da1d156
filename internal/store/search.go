package store

import "strings"

// Search performs a full-text search over message content, optionally scoped
// to one chat. Terms are quoted with prefix matching so partial words hit.
// Soft-deleted messages never surface even though their index entries are
// removed by trigger only on physical delete.
func (r *MessageRepo) Search(query, chatID string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	terms := strings.Fields(strings.TrimSpace(query))
	if len(terms) == 0 {
		return nil, nil
	}
	for i, t := range terms {
		terms[i] = `"` + strings.ReplaceAll(t, `"`, `""`) + `"*`
	}
	ftsQuery := strings.Join(terms, " ")

	q := `
		SELECT ` + prefixed(messageColumns, "m.") + `,
		       snippet(messages_fts, 2, '<<', '>>', '...', 32)
		FROM messages_fts fts
		JOIN messages m ON fts.id = m.id
		WHERE messages_fts MATCH ? AND m.deleted_at IS NULL`
	args := []any{ftsQuery}
	if chatID != "" {
		q += ` AND m.chat_id = ?`
		args = append(args, chatID)
	}
	q += ` ORDER BY rank LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var results []SearchResult
	for rows.Next() {
		var res SearchResult
		var holder snippetScanner
		holder.msg = &res.Message
		holder.snippet = &res.Snippet
		if err := holder.scanFrom(rows); err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, rows.Err()
}

// snippetScanner scans a message row followed by a trailing snippet column.
type snippetScanner struct {
	msg     *Message
	snippet *string
}

func (s *snippetScanner) scanFrom(rows interface{ Scan(...any) error }) error {
	m, err := scanMessage(trailingScanner{rows, s.snippet})
	if err != nil {
		return err
	}
	*s.msg = *m
	return nil
}

// trailingScanner appends an extra destination to a Scan call so the shared
// message scanner can be reused for queries with one extra column.
type trailingScanner struct {
	rows  interface{ Scan(...any) error }
	extra any
}

func (t trailingScanner) Scan(dest ...any) error {
	return t.rows.Scan(append(dest, t.extra)...)
}

// prefixed qualifies each column in a comma-separated list with an alias.
func prefixed(columns, prefix string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = prefix + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}
