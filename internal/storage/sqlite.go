package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteBackend is the default rich backend: a named sqlite database
// holding a single keyval record space. It only exists after an explicit
// OpenSQLite step; a nil backend reports ErrUnavailable on every
// operation instead of failing loudly.
type SQLiteBackend struct {
	db *sql.DB
}

// OpenSQLite opens (creating if absent) the named database and its
// keyval record space.
func OpenSQLite(path string) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS keyval (
		name  TEXT PRIMARY KEY,
		value BLOB NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create keyval table: %w", err)
	}
	return &SQLiteBackend{db: db}, nil
}

func (b *SQLiteBackend) available() bool {
	return b != nil && b.db != nil
}

func (b *SQLiteBackend) Get(ctx context.Context, key string) ([]byte, error) {
	if !b.available() {
		return nil, ErrUnavailable
	}
	var value []byte
	err := b.db.QueryRowContext(ctx, `SELECT value FROM keyval WHERE name = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite get %s: %w", key, err)
	}
	return value, nil
}

func (b *SQLiteBackend) Set(ctx context.Context, key string, value []byte) error {
	if !b.available() {
		return ErrUnavailable
	}
	_, err := b.db.ExecContext(ctx,
		`INSERT INTO keyval (name, value) VALUES (?, ?)
		 ON CONFLICT(name) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("sqlite set %s: %w", key, err)
	}
	return nil
}

func (b *SQLiteBackend) Remove(ctx context.Context, key string) error {
	if !b.available() {
		return ErrUnavailable
	}
	if _, err := b.db.ExecContext(ctx, `DELETE FROM keyval WHERE name = ?`, key); err != nil {
		return fmt.Errorf("sqlite remove %s: %w", key, err)
	}
	return nil
}

func (b *SQLiteBackend) Close() error {
	if !b.available() {
		return nil
	}
	return b.db.Close()
}
