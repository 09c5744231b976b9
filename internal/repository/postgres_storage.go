package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

const localStorageSchema = `CREATE TABLE IF NOT EXISTS local_storage (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// PostgresStorage keeps items in the local_storage table.
type PostgresStorage struct {
	db *sqlx.DB
}

// NewPostgresStorage wraps db.
func NewPostgresStorage(db *sqlx.DB) *PostgresStorage {
	return &PostgresStorage{db: db}
}

// EnsureSchema creates the local_storage table when absent.
func (p *PostgresStorage) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, localStorageSchema); err != nil {
		return fmt.Errorf("create local_storage table: %w", err)
	}
	return nil
}

func (p *PostgresStorage) GetItem(ctx context.Context, key string) (string, bool, error) {
	const query = `SELECT value FROM local_storage WHERE key = $1`
	var value string
	if err := p.db.GetContext(ctx, &value, query, key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("get storage item: %w", err)
	}
	return value, true, nil
}

func (p *PostgresStorage) SetItem(ctx context.Context, key, value string) error {
	const query = `INSERT INTO local_storage (key, value, updated_at) VALUES ($1, $2, NOW())
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`
	if _, err := p.db.ExecContext(ctx, query, key, value); err != nil {
		return fmt.Errorf("set storage item: %w", err)
	}
	return nil
}

func (p *PostgresStorage) RemoveItem(ctx context.Context, key string) error {
	const query = `DELETE FROM local_storage WHERE key = $1`
	if _, err := p.db.ExecContext(ctx, query, key); err != nil {
		return fmt.Errorf("remove storage item: %w", err)
	}
	return nil
}
