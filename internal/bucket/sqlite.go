package bucket

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps buckets as rows of a single SQLite table.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens or creates the bucket database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("bucket: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS buckets (
			name TEXT PRIMARY KEY,
			body TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("bucket: init sqlite schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Load reads and decodes the named bucket.
func (s *SQLiteStore) Load(name string) (*Bucket, error) {
	var body string
	err := s.db.QueryRow(`SELECT body FROM buckets WHERE name = ?`, name).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("bucket: query %s: %w", name, err)
	}
	b, err := Decode([]byte(body))
	if err != nil {
		return nil, fmt.Errorf("bucket: decode %s: %w", name, err)
	}
	return b, nil
}

// Save upserts b.
func (s *SQLiteStore) Save(name string, b *Bucket) error {
	raw, err := Encode(b)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		INSERT INTO buckets (name, body, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at
	`, name, string(raw), b.UpdatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("bucket: save %s: %w", name, err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
