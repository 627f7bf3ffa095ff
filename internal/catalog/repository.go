package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropship-ops/opsdash/internal/platform/db"
	"github.com/dropship-ops/opsdash/internal/queue"
)

// Repository persists catalog products.
type Repository interface {
	Create(ctx context.Context, input NewProduct, enqueueSync bool) (Product, error)
	GetByASIN(ctx context.Context, asin string) (Product, error)
	List(ctx context.Context, filter ListFilter) ([]Product, int, error)
	UpdateAvailability(ctx context.Context, asin string, a Availability) (bool, error)
}

// PgRepository implements Repository on Postgres.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the repository.
func NewRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const productColumns = `id, asin, title, brand, description, image_url, source_url, cost_price, sell_price, currency,
	rating, review_count, bsr, is_prime, in_stock, last_checked_at, source, sourcing_run_id, shopify_product_id,
	created_at, updated_at`

// Create inserts a product and, when enqueueSync is set, a pending Shopify
// sync item in the same transaction.
func (r *PgRepository) Create(ctx context.Context, input NewProduct, enqueueSync bool) (Product, error) {
	var product Product
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			INSERT INTO products (asin, title, brand, description, image_url, source_url, cost_price, sell_price,
				currency, rating, review_count, bsr, is_prime, source, sourcing_run_id, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, now(), now())
			RETURNING `+productColumns,
			input.ASIN, input.Title, input.Brand, input.Description, input.ImageURL, input.SourceURL,
			input.CostPrice, input.SellPrice, input.Currency, input.Rating, input.ReviewCount, input.BSR,
			input.IsPrime, string(input.Source), input.SourcingRunID)
		p, err := scanProduct(row)
		if err != nil {
			if db.IsUniqueViolation(err) {
				return ErrDuplicateASIN
			}
			return fmt.Errorf("catalog: insert %s: %w", input.ASIN, err)
		}
		product = p
		if enqueueSync {
			if _, err := queue.Enqueue(ctx, tx, p.ID, p.ASIN, queue.OperationCreate); err != nil {
				return err
			}
		}
		return nil
	})
	return product, err
}

// GetByASIN loads one product.
func (r *PgRepository) GetByASIN(ctx context.Context, asin string) (Product, error) {
	p, err := scanProduct(r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE asin = $1`, asin))
	if err != nil {
		if db.IsNoRows(err) {
			return Product{}, ErrProductNotFound
		}
		return Product{}, fmt.Errorf("catalog: get %s: %w", asin, err)
	}
	return p, nil
}

// List returns a page of products plus the total matching count.
func (r *PgRepository) List(ctx context.Context, filter ListFilter) ([]Product, int, error) {
	var (
		conds []string
		args  []any
	)
	if filter.Source != "" {
		args = append(args, string(filter.Source))
		conds = append(conds, fmt.Sprintf("source = $%d", len(args)))
	}
	if filter.InStock != nil {
		args = append(args, *filter.InStock)
		conds = append(conds, fmt.Sprintf("in_stock = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		conds = append(conds, fmt.Sprintf("(title ILIKE $%d OR asin ILIKE $%d)", len(args), len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM products`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("catalog: count: %w", err)
	}

	args = append(args, filter.Limit, filter.Offset)
	query := fmt.Sprintf(`SELECT %s FROM products%s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		productColumns, where, len(args)-1, len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("catalog: list: %w", err)
	}
	defer rows.Close()
	products := make([]Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("catalog: scan: %w", err)
		}
		products = append(products, p)
	}
	return products, total, rows.Err()
}

// UpdateAvailability records a stock observation. found is false when the
// ASIN is not in the catalog.
func (r *PgRepository) UpdateAvailability(ctx context.Context, asin string, a Availability) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE products SET in_stock = $2, cost_price = COALESCE($3, cost_price), last_checked_at = $4, updated_at = now()
		WHERE asin = $1`, asin, a.InStock, a.Price, a.CheckedAt)
	if err != nil {
		return false, fmt.Errorf("catalog: update availability %s: %w", asin, err)
	}
	return tag.RowsAffected() > 0, nil
}

func scanProduct(row pgx.Row) (Product, error) {
	var (
		p      Product
		source string
	)
	err := row.Scan(&p.ID, &p.ASIN, &p.Title, &p.Brand, &p.Description, &p.ImageURL, &p.SourceURL,
		&p.CostPrice, &p.SellPrice, &p.Currency, &p.Rating, &p.ReviewCount, &p.BSR, &p.IsPrime,
		&p.InStock, &p.LastCheckedAt, &source, &p.SourcingRunID, &p.ShopifyProductID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return Product{}, err
	}
	p.Source = Source(source)
	return p, nil
}
