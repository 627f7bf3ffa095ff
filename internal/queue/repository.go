package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropship-ops/opsdash/internal/platform/db"
	"github.com/dropship-ops/opsdash/internal/settings"
)

// Repository persists queue items and the pause flag.
type Repository interface {
	List(ctx context.Context, filter ListFilter) ([]Item, error)
	Stats(ctx context.Context) (Stats, error)
	State(ctx context.Context) (State, error)
	SetPaused(ctx context.Context, paused bool) (State, error)
	Retry(ctx context.Context, ids []int64) (int, error)
	RetryFailed(ctx context.Context) (int, error)
	Remove(ctx context.Context, ids []int64) (int, error)
	ClearSynced(ctx context.Context) (int, error)
	ReclaimStale(ctx context.Context, olderThan time.Duration) (int, error)
	Claim(ctx context.Context, limit int) ([]Claimed, error)
	MarkSynced(ctx context.Context, id, shopifyProductID int64) error
	MarkFailed(ctx context.Context, id int64, reason string) error
}

// Enqueue adds a pending item through q, typically inside the transaction
// that created the product.
func Enqueue(ctx context.Context, q db.Querier, productID int64, asin string, op Operation) (int64, error) {
	var id int64
	err := q.QueryRow(ctx, `
		INSERT INTO shopify_sync_queue (product_id, asin, operation, status, attempts, last_error, created_at, updated_at)
		VALUES ($1, $2, $3, 'pending', 0, '', now(), now())
		RETURNING id`, productID, asin, string(op)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("queue: enqueue %s: %w", asin, err)
	}
	return id, nil
}

// PgRepository implements Repository on Postgres.
type PgRepository struct {
	pool     *pgxpool.Pool
	settings *settings.Store
}

// NewRepository constructs the repository.
func NewRepository(pool *pgxpool.Pool, store *settings.Store) *PgRepository {
	return &PgRepository{pool: pool, settings: store}
}

const itemColumns = `id, product_id, asin, operation, status, attempts, last_error, shopify_product_id, created_at, updated_at`

// List returns items, newest first.
func (r *PgRepository) List(ctx context.Context, filter ListFilter) ([]Item, error) {
	args := []any{}
	query := `SELECT ` + itemColumns + ` FROM shopify_sync_queue`
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += fmt.Sprintf(` WHERE status = $%d`, len(args))
	}
	args = append(args, filter.Limit)
	query += fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT $%d`, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("queue: list: %w", err)
	}
	defer rows.Close()
	items := make([]Item, 0)
	for rows.Next() {
		var (
			it        Item
			op, state string
		)
		if err := rows.Scan(&it.ID, &it.ProductID, &it.ASIN, &op, &state, &it.Attempts, &it.LastError, &it.ShopifyProductID, &it.CreatedAt, &it.UpdatedAt); err != nil {
			return nil, fmt.Errorf("queue: scan: %w", err)
		}
		it.Operation = Operation(op)
		it.Status = Status(state)
		items = append(items, it)
	}
	return items, rows.Err()
}

// Stats counts items by status.
func (r *PgRepository) Stats(ctx context.Context) (Stats, error) {
	rows, err := r.pool.Query(ctx, `SELECT status, count(*) FROM shopify_sync_queue GROUP BY status`)
	if err != nil {
		return Stats{}, fmt.Errorf("queue: stats: %w", err)
	}
	defer rows.Close()
	var stats Stats
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return Stats{}, fmt.Errorf("queue: scan stats: %w", err)
		}
		switch Status(status) {
		case StatusPending:
			stats.Pending = n
		case StatusProcessing:
			stats.Processing = n
		case StatusSynced:
			stats.Synced = n
		case StatusFailed:
			stats.Failed = n
		}
		stats.Total += n
	}
	return stats, rows.Err()
}

// State reads the pause flag; unpaused when never written.
func (r *PgRepository) State(ctx context.Context) (State, error) {
	var state State
	_, err := r.settings.Load(ctx, settings.KeyQueueState, &state)
	return state, err
}

// SetPaused writes the pause flag under a row lock.
func (r *PgRepository) SetPaused(ctx context.Context, paused bool) (State, error) {
	var state State
	err := r.settings.Update(ctx, settings.KeyQueueState, &state, func(bool) error {
		state.Paused = paused
		state.UpdatedAt = time.Now().UTC()
		return nil
	})
	return state, err
}

// Retry resets failed items with the given ids to pending.
func (r *PgRepository) Retry(ctx context.Context, ids []int64) (int, error) {
	return r.exec(ctx, "retry", `
		UPDATE shopify_sync_queue SET status = 'pending', last_error = '', updated_at = now()
		WHERE id = ANY($1) AND status = 'failed'`, ids)
}

// RetryFailed resets every failed item to pending.
func (r *PgRepository) RetryFailed(ctx context.Context) (int, error) {
	return r.exec(ctx, "retry failed", `
		UPDATE shopify_sync_queue SET status = 'pending', last_error = '', updated_at = now()
		WHERE status = 'failed'`)
}

// ReclaimStale returns items stuck in processing for longer than olderThan
// to pending. Such rows belong to a drain that died before marking them.
func (r *PgRepository) ReclaimStale(ctx context.Context, olderThan time.Duration) (int, error) {
	return r.exec(ctx, "reclaim stale", `
		UPDATE shopify_sync_queue SET status = 'pending', last_error = $2, updated_at = now()
		WHERE status = 'processing' AND updated_at < $1`,
		time.Now().UTC().Add(-olderThan), ErrStaleProcessing.Error())
}

// Remove deletes items that are not currently being processed.
func (r *PgRepository) Remove(ctx context.Context, ids []int64) (int, error) {
	return r.exec(ctx, "remove", `DELETE FROM shopify_sync_queue WHERE id = ANY($1) AND status <> 'processing'`, ids)
}

// ClearSynced deletes synced items.
func (r *PgRepository) ClearSynced(ctx context.Context) (int, error) {
	return r.exec(ctx, "clear synced", `DELETE FROM shopify_sync_queue WHERE status = 'synced'`)
}

func (r *PgRepository) exec(ctx context.Context, op, sql string, args ...any) (int, error) {
	tag, err := r.pool.Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("queue: %s: %w", op, err)
	}
	return int(tag.RowsAffected()), nil
}

// Claim moves up to limit pending items to processing. It fails with
// ErrPaused when the pause flag is set; concurrent claimers skip each other's
// rows.
func (r *PgRepository) Claim(ctx context.Context, limit int) ([]Claimed, error) {
	var claimed []Claimed
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var state State
		if _, err := settings.Load(ctx, tx, settings.KeyQueueState, &state, true); err != nil {
			return err
		}
		if state.Paused {
			return ErrPaused
		}
		rows, err := tx.Query(ctx, `
			WITH picked AS (
				SELECT id FROM shopify_sync_queue
				WHERE status = 'pending'
				ORDER BY created_at, id
				LIMIT $1
				FOR UPDATE SKIP LOCKED
			)
			UPDATE shopify_sync_queue q
			SET status = 'processing', attempts = q.attempts + 1, updated_at = now()
			FROM picked, products p
			WHERE q.id = picked.id AND p.id = q.product_id
			RETURNING q.id, q.product_id, q.asin, q.operation, p.title, p.description, p.brand, p.image_url, p.sell_price`, limit)
		if err != nil {
			return fmt.Errorf("queue: claim: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var (
				c  Claimed
				op string
			)
			if err := rows.Scan(&c.ItemID, &c.ProductID, &c.ASIN, &op, &c.Title, &c.Description, &c.Brand, &c.ImageURL, &c.SellPrice); err != nil {
				return fmt.Errorf("queue: scan claim: %w", err)
			}
			c.Operation = Operation(op)
			claimed = append(claimed, c)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// MarkSynced records a successful push.
func (r *PgRepository) MarkSynced(ctx context.Context, id, shopifyProductID int64) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE shopify_sync_queue SET status = 'synced', last_error = '', shopify_product_id = $2, updated_at = now()
		WHERE id = $1`, id, shopifyProductID)
	if err != nil {
		return fmt.Errorf("queue: mark synced: %w", err)
	}
	_, err = r.pool.Exec(ctx, `UPDATE products SET shopify_product_id = $2, updated_at = now() WHERE id = (SELECT product_id FROM shopify_sync_queue WHERE id = $1)`, id, shopifyProductID)
	if err != nil {
		return fmt.Errorf("queue: link product: %w", err)
	}
	return nil
}

// MarkFailed records a failed push.
func (r *PgRepository) MarkFailed(ctx context.Context, id int64, reason string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE shopify_sync_queue SET status = 'failed', last_error = $2, updated_at = now()
		WHERE id = $1`, id, reason)
	if err != nil {
		return fmt.Errorf("queue: mark failed: %w", err)
	}
	return nil
}
