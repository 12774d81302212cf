package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"storefront/internal/models"

	"github.com/jmoiron/sqlx"
)

// SaveProduct creates or updates a product together with its inventory rows and
// image in one transaction. Creation is keyed on the payload's idempotency key so
// a replayed write returns the row the first attempt created.
//
// The same method serves both credentials: on the admin role it is the direct
// write that row-level security may deny, on the service role it is the
// privileged write behind the admin-save endpoint.
func (s *Store) SaveProduct(ctx context.Context, p *models.ProductPayload) (id string, created bool, err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", false, ClassifyError("Store.SaveProduct", err)
	}
	defer tx.Rollback()

	if p.ID != "" {
		id, err = updateProduct(ctx, tx, p)
	} else {
		id, created, err = insertProduct(ctx, tx, p)
	}
	if err != nil {
		return "", false, ClassifyError("Store.SaveProduct", err)
	}

	for _, inv := range p.Inventory {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO inventory (product_id, size, stock) VALUES ($1, $2, $3)
			ON CONFLICT (product_id, size) DO UPDATE SET stock = EXCLUDED.stock`,
			id, inv.Size, inv.Stock); err != nil {
			return "", false, ClassifyError("Store.SaveProduct", fmt.Errorf("failed to save inventory for size %q: %w", inv.Size, err))
		}
	}

	if p.ImageURL != "" {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO product_images (product_id, storage_path, alt, position)
			VALUES ($1, $2, $3, 0)
			ON CONFLICT (product_id, storage_path) DO NOTHING`,
			id, p.ImageURL, p.Name); err != nil {
			return "", false, ClassifyError("Store.SaveProduct", fmt.Errorf("failed to save image: %w", err))
		}
	}

	if err := tx.Commit(); err != nil {
		return "", false, ClassifyError("Store.SaveProduct", err)
	}
	return id, created, nil
}

func insertProduct(ctx context.Context, tx *sqlx.Tx, p *models.ProductPayload) (string, bool, error) {
	var row struct {
		ID      string `db:"id"`
		Created bool   `db:"created"`
	}
	// xmax = 0 only for a freshly inserted tuple, which tells a replay apart
	err := tx.GetContext(ctx, &row,
		`INSERT INTO products (name, description, category, price_cents, is_active, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''))
		ON CONFLICT (idempotency_key) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			category = EXCLUDED.category,
			price_cents = EXCLUDED.price_cents,
			is_active = EXCLUDED.is_active,
			updated_at = NOW()
		RETURNING id, (xmax = 0) AS created`,
		p.Name, p.Description, p.Category, p.PriceCents, p.Active(), p.IdempotencyKey)
	return row.ID, row.Created, err
}

func updateProduct(ctx context.Context, tx *sqlx.Tx, p *models.ProductPayload) (string, error) {
	var id string
	err := tx.GetContext(ctx, &id,
		`UPDATE products SET
			name = $1,
			description = $2,
			category = $3,
			price_cents = $4,
			is_active = $5,
			updated_at = NOW()
		WHERE id = $6
		RETURNING id`,
		p.Name, p.Description, p.Category, p.PriceCents, p.Active(), p.ID)
	if !errors.Is(err, sql.ErrNoRows) {
		return id, err
	}

	// Row-level security drops rows from an UPDATE without raising an error.
	// product_exists looks past the policies to tell a denial from a bad id.
	var exists bool
	if err := tx.GetContext(ctx, &exists, `SELECT product_exists($1)`, p.ID); err != nil {
		return "", fmt.Errorf("failed to check product: %w", err)
	}
	return "", UnmatchedUpdateError("Store.SaveProduct", "products", exists)
}

// GetProductByID retrieves a product by ID
func (s *Store) GetProductByID(ctx context.Context, id string) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product,
		`SELECT id, name, description, category, price_cents, is_active, idempotency_key, created_at, updated_at
		FROM products WHERE id = $1`, id)
	if err != nil {
		return nil, ClassifyError("Store.GetProductByID", err)
	}
	return &product, nil
}
