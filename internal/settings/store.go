// Package settings persists operator-editable configuration rows that are
// read at request time.
package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropship-ops/opsdash/internal/platform/db"
)

// Keys of the rows held in app_settings.
const (
	KeyFilterCriteria   = "sourcing.filter_criteria"
	KeySourcingSchedule = "sourcing.schedule"
	KeyQueueState       = "queue.state"
)

// Store reads and writes JSON documents in app_settings.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore constructs the store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Load decodes the row identified by key into dest. found is false when the
// row does not exist; dest is left untouched in that case.
func (s *Store) Load(ctx context.Context, key string, dest any) (found bool, err error) {
	return Load(ctx, s.pool, key, dest, false)
}

// Save upserts dest under key.
func (s *Store) Save(ctx context.Context, key string, value any) error {
	return Save(ctx, s.pool, key, value)
}

// Update loads the row under key with a row lock, applies mutate and writes the
// result back within one transaction.
func (s *Store) Update(ctx context.Context, key string, dest any, mutate func(found bool) error) error {
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `INSERT INTO app_settings (key, value, updated_at) VALUES ($1, '{}'::jsonb, now()) ON CONFLICT (key) DO NOTHING`, key); err != nil {
			return fmt.Errorf("settings: seed %s: %w", key, err)
		}
		found, err := Load(ctx, tx, key, dest, true)
		if err != nil {
			return err
		}
		if err := mutate(found); err != nil {
			return err
		}
		return Save(ctx, tx, key, dest)
	})
}

// Load reads a settings row through q, optionally locking it.
func Load(ctx context.Context, q db.Querier, key string, dest any, forUpdate bool) (bool, error) {
	query := `SELECT value FROM app_settings WHERE key = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var raw []byte
	if err := q.QueryRow(ctx, query, key).Scan(&raw); err != nil {
		if db.IsNoRows(err) {
			return false, nil
		}
		return false, fmt.Errorf("settings: load %s: %w", key, err)
	}
	if len(raw) == 0 || string(raw) == "{}" {
		return false, nil
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, fmt.Errorf("settings: decode %s: %w", key, err)
	}
	return true, nil
}

// Save upserts a settings row through q.
func Save(ctx context.Context, q db.Querier, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("settings: encode %s: %w", key, err)
	}
	_, err = q.Exec(ctx, `
		INSERT INTO app_settings (key, value, updated_at) VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
		key, raw, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("settings: save %s: %w", key, err)
	}
	return nil
}
