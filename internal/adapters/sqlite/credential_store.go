// Package sqlite implements the credential store on an embedded SQLite
// database.
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/bft-labs/devlink/internal/domain"
)

// DBFileName is the database file inside the state directory.
const DBFileName = "credentials.db"

const commissionedKey = "commissioned"

// CredentialStore implements ports.CredentialStore. Every write is a single
// statement committed before the call returns.
type CredentialStore struct {
	db *sql.DB
}

// Open opens or creates the store at path.
func Open(path string) (*CredentialStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create credential db directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(`PRAGMA journal_mode = WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set sqlite journal mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout = 5000`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set sqlite busy timeout: %w", err)
	}

	const schema = `
CREATE TABLE IF NOT EXISTS settings (
	id TEXT PRIMARY KEY,
	value BLOB NOT NULL,
	updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
)`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create settings table: %w", err)
	}
	return &CredentialStore{db: db}, nil
}

// Close closes the database.
func (s *CredentialStore) Close() error {
	return s.db.Close()
}

func (s *CredentialStore) put(id string, value []byte) error {
	const q = `
INSERT INTO settings (id, value) VALUES (?, ?)
ON CONFLICT(id) DO UPDATE SET value = excluded.value, updated_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')`
	if _, err := s.db.Exec(q, id, value); err != nil {
		return fmt.Errorf("write setting %s: %w", id, err)
	}
	return nil
}

func (s *CredentialStore) get(id string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRow(`SELECT value FROM settings WHERE id = ?`, id).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrCredentialMissing
	}
	if err != nil {
		return nil, fmt.Errorf("read setting %s: %w", id, err)
	}
	return value, nil
}

// ReadCommissioned returns the persisted flag, false if never stored.
func (s *CredentialStore) ReadCommissioned() (bool, error) {
	v, err := s.get(commissionedKey)
	if errors.Is(err, domain.ErrCredentialMissing) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return len(v) == 1 && v[0] == '1', nil
}

// StoreCommissioned persists the flag.
func (s *CredentialStore) StoreCommissioned(v bool) error {
	b := []byte{'0'}
	if v {
		b[0] = '1'
	}
	return s.put(commissionedKey, b)
}

// Store writes the entry for kind.
func (s *CredentialStore) Store(kind domain.CredentialKind, data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("store %s: empty value", kind)
	}
	return s.put(kind.String(), data)
}

// Read returns the entry for kind or domain.ErrCredentialMissing.
func (s *CredentialStore) Read(kind domain.CredentialKind) ([]byte, error) {
	return s.get(kind.String())
}

// Delete removes the entry for kind.
func (s *CredentialStore) Delete(kind domain.CredentialKind) error {
	if _, err := s.db.Exec(`DELETE FROM settings WHERE id = ?`, kind.String()); err != nil {
		return fmt.Errorf("delete setting %s: %w", kind, err)
	}
	return nil
}
