package store

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/opsdeck/opsdeck/internal/domain"
)

// SessionCache keeps local copies of session summaries and message lists so
// the sessions view works without a round-trip. The server remains the source
// of truth; cached rows are replaced wholesale on fetch.
type SessionCache struct {
	db *DB
}

// NewSessionCache creates a session cache using the given database.
func NewSessionCache(db *DB) *SessionCache {
	return &SessionCache{db: db}
}

// Upsert inserts or refreshes a session summary.
func (c *SessionCache) Upsert(sess domain.ConversationSession) error {
	createdAt := sess.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	updatedAt := sess.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	_, err := c.db.sql.Exec(
		`INSERT INTO sessions (id, title, created_at, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   title = excluded.title,
		   updated_at = excluded.updated_at`,
		sess.ID, sess.Title,
		createdAt.Format(time.DateTime), updatedAt.Format(time.DateTime),
	)
	return err
}

// ReplaceMessages replaces the cached message list for a session.
func (c *SessionCache) ReplaceMessages(sessionID string, msgs []domain.ConversationMessage) error {
	tx, err := c.db.sql.Begin()
	if err != nil {
		return err
	}

	if _, err := tx.Exec(`DELETE FROM session_messages WHERE session_id = ?`, sessionID); err != nil {
		tx.Rollback()
		return err
	}

	for _, msg := range msgs {
		var metadata sql.NullString
		if len(msg.Metadata) > 0 {
			if data, err := json.Marshal(msg.Metadata); err == nil {
				metadata = sql.NullString{String: string(data), Valid: true}
			}
		}

		ts := msg.CreatedAt
		if ts.IsZero() {
			ts = time.Now()
		}

		if _, err := tx.Exec(
			`INSERT INTO session_messages (session_id, message_id, sender, content, created_at, metadata)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			sessionID, msg.ID, string(msg.Sender), msg.Content, ts.Format(time.DateTime), metadata,
		); err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

// Get returns a cached session with its messages, or nil if not cached.
func (c *SessionCache) Get(id string) *domain.ConversationSession {
	var sess domain.ConversationSession
	var createdAt, updatedAt string

	err := c.db.sql.QueryRow(
		`SELECT id, title, created_at, updated_at FROM sessions WHERE id = ?`, id,
	).Scan(&sess.ID, &sess.Title, &createdAt, &updatedAt)
	if err != nil {
		return nil
	}

	sess.CreatedAt, _ = time.Parse(time.DateTime, createdAt)
	sess.UpdatedAt, _ = time.Parse(time.DateTime, updatedAt)
	sess.Messages = c.loadMessages(id)
	return &sess
}

// List returns cached session summaries, most recently updated first.
func (c *SessionCache) List() []domain.ConversationSession {
	rows, err := c.db.sql.Query(
		`SELECT id, title, created_at, updated_at FROM sessions ORDER BY updated_at DESC`,
	)
	if err != nil {
		return nil
	}
	defer rows.Close()

	var sessions []domain.ConversationSession
	for rows.Next() {
		var sess domain.ConversationSession
		var createdAt, updatedAt string
		if err := rows.Scan(&sess.ID, &sess.Title, &createdAt, &updatedAt); err != nil {
			continue
		}
		sess.CreatedAt, _ = time.Parse(time.DateTime, createdAt)
		sess.UpdatedAt, _ = time.Parse(time.DateTime, updatedAt)
		sessions = append(sessions, sess)
	}
	return sessions
}

// Delete removes a session and its cached messages.
func (c *SessionCache) Delete(id string) error {
	_, err := c.db.sql.Exec(`DELETE FROM sessions WHERE id = ?`, id)
	return err
}

// loadMessages loads all cached messages for a session in insertion order.
func (c *SessionCache) loadMessages(sessionID string) []domain.ConversationMessage {
	rows, err := c.db.sql.Query(
		`SELECT message_id, sender, content, created_at, metadata
		 FROM session_messages WHERE session_id = ? ORDER BY id`, sessionID,
	)
	if err != nil {
		return nil
	}
	defer rows.Close()

	var msgs []domain.ConversationMessage
	for rows.Next() {
		var msg domain.ConversationMessage
		var sender, ts string
		var metadata sql.NullString

		if err := rows.Scan(&msg.ID, &sender, &msg.Content, &ts, &metadata); err != nil {
			continue
		}
		msg.Sender = domain.Sender(sender)
		msg.CreatedAt, _ = time.Parse(time.DateTime, ts)

		if metadata.Valid && metadata.String != "" {
			_ = json.Unmarshal([]byte(metadata.String), &msg.Metadata)
		}

		msgs = append(msgs, msg)
	}
	return msgs
}
