// Package snapshot persists the last authoritative server state of each
// collection to a local sqlite database. It is a display cache only: the
// synchronizer writes it after successful reconciliation and the CLI reads
// it when offline. Losing it is harmless.
package snapshot

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"bridgenlp/internal/logging"
)

const schema = `
CREATE TABLE IF NOT EXISTS collections (
	name       TEXT PRIMARY KEY,
	payload    TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
`

// Store is the snapshot database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the snapshot database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize snapshot schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Put stores the JSON encoding of v under name, replacing any prior value.
// Failures are logged, not returned: snapshot writes must never fail a
// mutation that the server already acknowledged.
func (s *Store) Put(name string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		logging.Get(logging.CategoryStore).Warnw("failed to encode snapshot", "name", name, "err", err)
		return
	}
	_, err = s.db.Exec(
		`INSERT INTO collections (name, payload, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		name, string(data), time.Now().UTC(),
	)
	if err != nil {
		logging.Get(logging.CategoryStore).Warnw("failed to write snapshot", "name", name, "err", err)
	}
}

// Get decodes the stored snapshot for name into out. Returns false when no
// snapshot exists.
func (s *Store) Get(name string, out any) (bool, error) {
	var payload string
	err := s.db.QueryRow(`SELECT payload FROM collections WHERE name = ?`, name).Scan(&payload)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read snapshot %q: %w", name, err)
	}
	if err := json.Unmarshal([]byte(payload), out); err != nil {
		return false, fmt.Errorf("corrupt snapshot %q: %w", name, err)
	}
	return true, nil
}

// Delete removes the snapshot for name.
func (s *Store) Delete(name string) error {
	_, err := s.db.Exec(`DELETE FROM collections WHERE name = ?`, name)
	return err
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
