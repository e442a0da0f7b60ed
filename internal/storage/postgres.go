package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresBackend is the postgres flavor of the rich backend, for
// deployments that already run a database server.
type PostgresBackend struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to the database and ensures the keyval record
// space exists.
func OpenPostgres(ctx context.Context, url string) (*PostgresBackend, error) {
	poolCfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS keyval (
		name  TEXT PRIMARY KEY,
		value BYTEA NOT NULL
	)`); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create keyval table: %w", err)
	}

	return &PostgresBackend{pool: pool}, nil
}

func (b *PostgresBackend) available() bool {
	return b != nil && b.pool != nil
}

func (b *PostgresBackend) Get(ctx context.Context, key string) ([]byte, error) {
	if !b.available() {
		return nil, ErrUnavailable
	}
	var value []byte
	err := b.pool.QueryRow(ctx, `SELECT value FROM keyval WHERE name = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres get %s: %w", key, err)
	}
	return value, nil
}

func (b *PostgresBackend) Set(ctx context.Context, key string, value []byte) error {
	if !b.available() {
		return ErrUnavailable
	}
	_, err := b.pool.Exec(ctx,
		`INSERT INTO keyval (name, value) VALUES ($1, $2)
		 ON CONFLICT (name) DO UPDATE SET value = EXCLUDED.value`, key, value)
	if err != nil {
		return fmt.Errorf("postgres set %s: %w", key, err)
	}
	return nil
}

func (b *PostgresBackend) Remove(ctx context.Context, key string) error {
	if !b.available() {
		return ErrUnavailable
	}
	if _, err := b.pool.Exec(ctx, `DELETE FROM keyval WHERE name = $1`, key); err != nil {
		return fmt.Errorf("postgres remove %s: %w", key, err)
	}
	return nil
}

func (b *PostgresBackend) Close() {
	if b.available() {
		b.pool.Close()
	}
}
