package credentials

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // pure-Go sqlite driver, registers "sqlite"
)

// SQLStore is the embedded-SQL credential backend: a single table
// `credentials(key PRIMARY KEY, value)` with upsert semantics.
//
// Every statement here is parameterised. The reference implementation
// this was distilled from concatenated values into SQL text; that is an
// injection hazard and is deliberately not reproduced (spec §9).
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore opens (and migrates) the credentials database at path.
func NewSQLStore(path string) (*SQLStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("credentials: open sqlite store: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS credentials (key TEXT PRIMARY KEY, value TEXT NOT NULL)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("credentials: migrate sqlite store: %w", err)
	}
	return &SQLStore{db: db}, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) Store(key, value string) error {
	_, err := s.db.Exec(`INSERT INTO credentials (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("credentials: store %q: %w", key, err)
	}
	return nil
}

func (s *SQLStore) Retrieve(key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM credentials WHERE key = ?`, key).Scan(&value)
	switch {
	case err == sql.ErrNoRows:
		return "", false, nil
	case err != nil:
		return "", false, fmt.Errorf("credentials: retrieve %q: %w", key, err)
	}
	return value, true, nil
}
