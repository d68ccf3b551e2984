// internal/storage/postgres.go
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// Postgres implements Engine on a key/value table plus a snapshots table.
// Writes ride on single-statement transactions, so all-or-nothing semantics
// come from the database.
type Postgres struct {
	db *sql.DB
}

// NewPostgres prepares the schema and returns a database-backed engine.
func NewPostgres(db *sql.DB) (*Postgres, error) {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS ledger_kv (
			key TEXT PRIMARY KEY,
			value BYTEA NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS ledger_snapshots (
			name TEXT PRIMARY KEY,
			blob BYTEA NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("%w: init schema: %v", ErrUnavailable, err)
		}
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) AtomicRead(ctx context.Context, key string) ([]byte, error) {
	// Snapshot blobs live in their own table but share the key space.
	query := `SELECT value FROM ledger_kv WHERE key = $1`
	if name, ok := strings.CutPrefix(key, "snapshots/"); ok {
		query = `SELECT blob FROM ledger_snapshots WHERE name = $1`
		key = name
	}

	var value []byte
	err := p.db.QueryRowContext(ctx, query, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrUnavailable, key, err)
	}
	return value, nil
}

func (p *Postgres) AtomicWrite(ctx context.Context, key string, value []byte) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO ledger_kv (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value, updated_at = NOW()
	`, key, value)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			return fmt.Errorf("%w: write %s: %s", ErrUnavailable, key, pqErr.Code)
		}
		return fmt.Errorf("%w: write %s: %v", ErrUnavailable, key, err)
	}
	return nil
}

func (p *Postgres) DurableSnapshotWrite(ctx context.Context, name string, blob []byte) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO ledger_snapshots (name, blob, created_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (name) DO UPDATE
		SET blob = EXCLUDED.blob, created_at = NOW()
	`, name, blob)
	if err != nil {
		return fmt.Errorf("%w: snapshot %s: %v", ErrUnavailable, name, err)
	}
	return nil
}
