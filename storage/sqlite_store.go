package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps channel entries in a SQLite table, one row per handle.
type SQLiteStore struct {
	conn *sql.DB
}

// NewSQLiteStore opens (or creates) ytcollect.sqlite in dir and initializes the schema.
func NewSQLiteStore(dir string) (*SQLiteStore, error) {
	dbPath := filepath.Join(dir, "ytcollect.sqlite")
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, &StorageError{Op: "open", Entity: "store", ID: dbPath, Err: fmt.Errorf("open database: %w", err)}
	}
	// A single connection serializes writers; sqlite allows one at a time anyway.
	conn.SetMaxOpenConns(1)

	s := &SQLiteStore{conn: conn}
	if err := s.initSchema(); err != nil {
		conn.Close()
		return nil, &StorageError{Op: "open", Entity: "store", ID: dbPath, Err: fmt.Errorf("init schema: %w", err)}
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	_, err := s.conn.Exec(`
	CREATE TABLE IF NOT EXISTS channel_cache (
		handle TEXT PRIMARY KEY,
		channel_id TEXT NOT NULL,
		payload TEXT NOT NULL,
		last_processed_at DATETIME NOT NULL
	);`)
	return err
}

func (s *SQLiteStore) Load(ctx context.Context, handle string) (*ChannelCacheEntry, error) {
	key, err := channelKey(handle)
	if err != nil {
		return nil, &StorageError{Op: "load", Entity: "channel", ID: handle, Err: err}
	}

	var payload string
	err = s.conn.QueryRowContext(ctx, `SELECT payload FROM channel_cache WHERE handle = ?`, key).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &StorageError{Op: "load", Entity: "channel", ID: handle, Err: ErrNotFound}
		}
		return nil, &StorageError{Op: "load", Entity: "channel", ID: handle, Err: err}
	}

	var entry ChannelCacheEntry
	if err := json.Unmarshal([]byte(payload), &entry); err != nil {
		return nil, &StorageError{Op: "load", Entity: "channel", ID: handle, Err: ErrStorageCorrupt}
	}
	return &entry, nil
}

func (s *SQLiteStore) Save(ctx context.Context, handle string, entry *ChannelCacheEntry) error {
	key, err := channelKey(handle)
	if err != nil {
		return &StorageError{Op: "save", Entity: "channel", ID: handle, Err: err}
	}
	if err := validateEntry(entry); err != nil {
		return &StorageError{Op: "save", Entity: "channel", ID: handle, Err: err}
	}

	payload, err := json.Marshal(entry)
	if err != nil {
		return &StorageError{Op: "save", Entity: "channel", ID: handle, Err: err}
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return &StorageError{Op: "save", Entity: "channel", ID: handle, Err: err}
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO channel_cache (handle, channel_id, payload, last_processed_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(handle) DO UPDATE SET
			channel_id = excluded.channel_id,
			payload = excluded.payload,
			last_processed_at = excluded.last_processed_at`,
		key, entry.ChannelID, string(payload), entry.LastProcessedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return &StorageError{Op: "save", Entity: "channel", ID: handle, Err: err}
	}

	if err := tx.Commit(); err != nil {
		return &StorageError{Op: "save", Entity: "channel", ID: handle, Err: err}
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, handle string) error {
	key, err := channelKey(handle)
	if err != nil {
		return &StorageError{Op: "delete", Entity: "channel", ID: handle, Err: err}
	}

	res, err := s.conn.ExecContext(ctx, `DELETE FROM channel_cache WHERE handle = ?`, key)
	if err != nil {
		return &StorageError{Op: "delete", Entity: "channel", ID: handle, Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &StorageError{Op: "delete", Entity: "channel", ID: handle, Err: ErrNotFound}
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]string, error) {
	rows, err := s.conn.QueryContext(ctx, `SELECT handle FROM channel_cache ORDER BY handle`)
	if err != nil {
		return nil, &StorageError{Op: "list", Entity: "channel", Err: err}
	}
	defer rows.Close()

	var handles []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, &StorageError{Op: "list", Entity: "channel", Err: err}
		}
		handles = append(handles, handleFromKey(key))
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "list", Entity: "channel", Err: err}
	}
	return handles, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.conn.Close()
}
