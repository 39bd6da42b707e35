package vars

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore persists chat variables to disk so timed-effect state survives
// process restarts.
type SQLiteStore struct {
	db *sql.DB
}

// SQLiteConfig controls how the backing database is opened.
type SQLiteConfig struct {
	Path           string
	MaxConnections int
	EnableWAL      bool
}

// NewSQLiteStore opens (creating if needed) a variable store at the given path.
func NewSQLiteStore(config SQLiteConfig) (*SQLiteStore, error) {
	if config.Path == "" {
		config.Path = "loreweave_vars.db"
	}

	db, err := sql.Open("sqlite3", config.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	if config.MaxConnections > 0 {
		db.SetMaxOpenConns(config.MaxConnections)
	} else {
		db.SetMaxOpenConns(4)
	}
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{db: db}

	if err := store.initDB(); err != nil {
		db.Close()
		return nil, err
	}

	if config.EnableWAL {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}
	if _, err := db.Exec("PRAGMA synchronous=NORMAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set synchronous pragma: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initDB() error {
	query := `
	CREATE TABLE IF NOT EXISTS chat_variables (
		key TEXT PRIMARY KEY,
		value BLOB NOT NULL,
		updated_at INTEGER NOT NULL
	);`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// Get returns the stored value for key, or false when absent. Read errors
// surface as "absent": the caller treats variable state as advisory.
func (s *SQLiteStore) Get(key string) (json.RawMessage, bool) {
	var value []byte
	err := s.db.QueryRow("SELECT value FROM chat_variables WHERE key = ?", key).Scan(&value)
	if err != nil {
		return nil, false
	}
	return json.RawMessage(value), true
}

// Set upserts the value for key.
func (s *SQLiteStore) Set(key string, value json.RawMessage) error {
	_, err := s.db.Exec(`
		INSERT INTO chat_variables (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, []byte(value), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to persist variable %q: %w", key, err)
	}
	return nil
}

// Delete removes a key. Missing keys are not an error.
func (s *SQLiteStore) Delete(key string) error {
	_, err := s.db.Exec("DELETE FROM chat_variables WHERE key = ?", key)
	return err
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
