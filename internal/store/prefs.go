package store

import "time"

// SQLitePrefStore implements chat.Prefs backed by SQLite. It is the durable
// key-value store for the active session identifier and the model preference.
type SQLitePrefStore struct {
	db *DB
}

// NewSQLitePrefStore creates a preference store using the given database.
func NewSQLitePrefStore(db *DB) *SQLitePrefStore {
	return &SQLitePrefStore{db: db}
}

// Get returns the value for a key, and whether it was present.
func (p *SQLitePrefStore) Get(key string) (string, bool) {
	var value string
	err := p.db.sql.QueryRow(
		`SELECT value FROM preferences WHERE key = ?`, key,
	).Scan(&value)
	if err != nil {
		return "", false
	}
	return value, true
}

// Set stores a value for a key, replacing any existing value.
func (p *SQLitePrefStore) Set(key, value string) error {
	_, err := p.db.sql.Exec(
		`INSERT INTO preferences (key, value, updated_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET
		   value = excluded.value,
		   updated_at = excluded.updated_at`,
		key, value, time.Now().Format(time.DateTime),
	)
	return err
}

// Delete removes a key. Deleting an absent key is not an error.
func (p *SQLitePrefStore) Delete(key string) error {
	_, err := p.db.sql.Exec(`DELETE FROM preferences WHERE key = ?`, key)
	return err
}
