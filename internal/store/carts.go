package store

import (
	"context"
	"database/sql"
	"errors"

	"storefront/internal/apperr"
	"storefront/internal/models"

	"github.com/jmoiron/sqlx"
)

// Reads below run with whatever credential the Store was opened with. The cart
// aggregation service opens them on the service role, so every query must be
// narrowed by session or cart id by the caller.

// GetCartBySession returns the oldest cart for a session, or nil when none exists
func (s *Store) GetCartBySession(ctx context.Context, sessionID string) (*models.ShoppingCart, error) {
	var cart models.ShoppingCart
	err := s.db.GetContext(ctx, &cart,
		`SELECT id, session_id, user_id, created_at
		FROM shopping_carts
		WHERE session_id = $1
		ORDER BY created_at
		LIMIT 1`, sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, ClassifyError("Store.GetCartBySession", err)
	}
	return &cart, nil
}

// GetCartItems retrieves all items of a cart in insertion order
func (s *Store) GetCartItems(ctx context.Context, cartID string) ([]models.CartItem, error) {
	items := []models.CartItem{}
	err := s.db.SelectContext(ctx, &items,
		`SELECT id, cart_id, product_id, quantity, size, added_at
		FROM cart_items
		WHERE cart_id = $1
		ORDER BY added_at, id`, cartID)
	return items, ClassifyError("Store.GetCartItems", err)
}

// GetProductsByIDs retrieves multiple products by IDs
func (s *Store) GetProductsByIDs(ctx context.Context, ids []string) ([]models.Product, error) {
	products := []models.Product{}
	if len(ids) == 0 {
		return products, nil
	}

	query, args, err := sqlx.In(
		`SELECT id, name, description, category, price_cents, is_active, idempotency_key, created_at, updated_at
		FROM products WHERE id IN (?)`, ids)
	if err != nil {
		return nil, err
	}
	query = s.db.Rebind(query)

	err = s.db.SelectContext(ctx, &products, query, args...)
	return products, ClassifyError("Store.GetProductsByIDs", err)
}

// GetInventoryByProductIDs retrieves per-size stock rows for the given products
func (s *Store) GetInventoryByProductIDs(ctx context.Context, ids []string) ([]models.Inventory, error) {
	rows := []models.Inventory{}
	if len(ids) == 0 {
		return rows, nil
	}

	query, args, err := sqlx.In(
		`SELECT product_id, size, stock FROM inventory WHERE product_id IN (?) ORDER BY product_id, size`, ids)
	if err != nil {
		return nil, err
	}
	query = s.db.Rebind(query)

	err = s.db.SelectContext(ctx, &rows, query, args...)
	return rows, ClassifyError("Store.GetInventoryByProductIDs", err)
}

// GetPrimaryImages returns the lowest-position image of each product
func (s *Store) GetPrimaryImages(ctx context.Context, ids []string) ([]models.ProductImage, error) {
	images := []models.ProductImage{}
	if len(ids) == 0 {
		return images, nil
	}

	query, args, err := sqlx.In(
		`SELECT DISTINCT ON (product_id) product_id, storage_path, alt, position
		FROM product_images
		WHERE product_id IN (?)
		ORDER BY product_id, position, storage_path`, ids)
	if err != nil {
		return nil, err
	}
	query = s.db.Rebind(query)

	err = s.db.SelectContext(ctx, &images, query, args...)
	return images, ClassifyError("Store.GetPrimaryImages", err)
}

// UpsertCart returns the session's cart, creating it when absent. The unique
// index on session_id makes concurrent first visits converge on one row.
func (s *Store) UpsertCart(ctx context.Context, sessionID string) (string, error) {
	var cartID string
	err := s.withSession(ctx, sessionID, func(tx *sqlx.Tx) error {
		return tx.GetContext(ctx, &cartID,
			`INSERT INTO shopping_carts (session_id) VALUES ($1)
			ON CONFLICT (session_id) DO UPDATE SET session_id = EXCLUDED.session_id
			RETURNING id`, sessionID)
	})
	return cartID, ClassifyError("Store.UpsertCart", err)
}

// AddCartItem inserts a line or increments the quantity of the matching
// product/size line. item.ID, item.Quantity and item.AddedAt are filled in.
func (s *Store) AddCartItem(ctx context.Context, sessionID string, item *models.CartItem) error {
	err := s.withSession(ctx, sessionID, func(tx *sqlx.Tx) error {
		return tx.QueryRowxContext(ctx,
			`INSERT INTO cart_items (cart_id, product_id, quantity, size)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (cart_id, product_id, size)
			DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity
			RETURNING id, quantity, added_at`,
			item.CartID, item.ProductID, item.Quantity, item.Size,
		).Scan(&item.ID, &item.Quantity, &item.AddedAt)
	})
	return ClassifyError("Store.AddCartItem", err)
}

// UpdateCartItemQuantity sets an item's quantity
func (s *Store) UpdateCartItemQuantity(ctx context.Context, sessionID, itemID string, quantity int) error {
	err := s.withSession(ctx, sessionID, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx,
			"UPDATE cart_items SET quantity = $1 WHERE id = $2", quantity, itemID)
		if err != nil {
			return err
		}
		return requireAffected(res, "cart item not found")
	})
	return ClassifyError("Store.UpdateCartItemQuantity", err)
}

// DeleteCartItem removes an item
func (s *Store) DeleteCartItem(ctx context.Context, sessionID, itemID string) error {
	err := s.withSession(ctx, sessionID, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, "DELETE FROM cart_items WHERE id = $1", itemID)
		if err != nil {
			return err
		}
		return requireAffected(res, "cart item not found")
	})
	return ClassifyError("Store.DeleteCartItem", err)
}

// ClearCart removes every item of the session's cart and returns how many went
func (s *Store) ClearCart(ctx context.Context, sessionID string) (int64, error) {
	var removed int64
	err := s.withSession(ctx, sessionID, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM cart_items
			WHERE cart_id IN (SELECT id FROM shopping_carts WHERE session_id = $1)`, sessionID)
		if err != nil {
			return err
		}
		removed, err = res.RowsAffected()
		return err
	})
	return removed, ClassifyError("Store.ClearCart", err)
}

// requireAffected turns a zero-row write into NotFound. Under row-level
// security a row owned by another session is indistinguishable from a missing one.
func requireAffected(res sql.Result, message string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.New(apperr.NotFound, "", message)
	}
	return nil
}
