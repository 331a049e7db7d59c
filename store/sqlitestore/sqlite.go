// Package sqlitestore persists token slots in a local SQLite database file.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/versini-org/auth-client/store"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS auth_slots (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);`

const upsertSlot = `
INSERT INTO auth_slots (key, value, updated_at) VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at;`

// Backend is a SQLite-backed [store.BatchBackend].
type Backend struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the database at dsn and applies the schema.
func Open(ctx context.Context, dsn string) (*Backend, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// A single connection serializes writers and keeps ":memory:" databases shared.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlitestore: apply schema: %w", err)
	}

	return &Backend{db: db, now: time.Now}, nil
}

// Close releases the database handle.
func (b *Backend) Close() error { return b.db.Close() }

// Ping verifies the database connection is still alive.
func (b *Backend) Ping(ctx context.Context) error {
	return b.db.PingContext(ctx)
}

func (b *Backend) Get(ctx context.Context, key string) (string, error) {
	var v string
	err := b.db.QueryRowContext(ctx, `SELECT value FROM auth_slots WHERE key = ?`, key).Scan(&v)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", store.ErrNotFound
		}
		return "", fmt.Errorf("%w: %v", store.ErrBackendUnavailable, err)
	}
	return v, nil
}

func (b *Backend) Set(ctx context.Context, key, value string) error {
	if _, err := b.db.ExecContext(ctx, upsertSlot, key, value, b.now().Unix()); err != nil {
		return fmt.Errorf("%w: %v", store.ErrBackendUnavailable, err)
	}
	return nil
}

func (b *Backend) SetMany(ctx context.Context, values map[string]string) error {
	return b.withTx(ctx, func(tx *sql.Tx) error {
		now := b.now().Unix()
		for k, v := range values {
			if _, err := tx.ExecContext(ctx, upsertSlot, k, v, now); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *Backend) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return b.withTx(ctx, func(tx *sql.Tx) error {
		for _, k := range keys {
			if _, err := tx.ExecContext(ctx, `DELETE FROM auth_slots WHERE key = ?`, k); err != nil {
				return err
			}
		}
		return nil
	})
}

// withTx executes fn within a transaction, rolling back on any error.
func (b *Backend) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", store.ErrBackendUnavailable, err)
	}
	defer func() {
		_ = tx.Rollback() // no-op after commit
	}()

	if err := fn(tx); err != nil {
		return fmt.Errorf("%w: %v", store.ErrBackendUnavailable, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrBackendUnavailable, err)
	}
	return nil
}
