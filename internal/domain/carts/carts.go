package carts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tosho/internal/infra/dbx"

	"github.com/jackc/pgx/v5"
)

// Repository persists authenticated carts in postgres. Every mutation runs in
// a transaction that holds the carts row lock for the user, so concurrent adds
// and the checkout clear are serialized per user.
type Repository struct {
	db dbx.Beginner
}

func NewRepository(db dbx.Beginner) *Repository {
	return &Repository{db: db}
}

// Get returns the user's cart, or an empty cart if none was ever created.
func (r *Repository) Get(ctx context.Context, userID string) (*Cart, error) {
	c := &Cart{UserID: userID}

	var updatedAt time.Time
	err := r.db.QueryRow(ctx, `
SELECT version, updated_at
FROM carts
WHERE user_id = $1
`, userID).Scan(&c.Version, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return c, nil
		}
		return nil, fmt.Errorf("get cart: %w", err)
	}
	c.UpdatedAt = &updatedAt

	items, err := loadItems(ctx, r.db, userID)
	if err != nil {
		return nil, err
	}
	c.Items = items
	return c, nil
}

func (r *Repository) Update(ctx context.Context, userID string, fn func(c *Cart) error) (*Cart, error) {
	var out *Cart

	err := dbx.WithTx(ctx, r.db, func(q dbx.Querier) error {
		if _, err := q.Exec(ctx, `
INSERT INTO carts (user_id)
VALUES ($1)
ON CONFLICT (user_id) DO NOTHING
`, userID); err != nil {
			return fmt.Errorf("ensure cart: %w", err)
		}

		// Per-user mutex for the rest of the transaction.
		cur := &Cart{UserID: userID}
		if err := q.QueryRow(ctx, `
SELECT version
FROM carts
WHERE user_id = $1
FOR UPDATE
`, userID).Scan(&cur.Version); err != nil {
			return fmt.Errorf("lock cart: %w", err)
		}

		items, err := loadItems(ctx, q, userID)
		if err != nil {
			return err
		}
		cur.Items = items

		next := cur.clone()
		if err := fn(next); err != nil {
			return err
		}

		if err := writeDiff(ctx, q, userID, cur.Items, next.Items); err != nil {
			return err
		}

		var updatedAt time.Time
		if err := q.QueryRow(ctx, `
UPDATE carts
SET version = version + 1,
    updated_at = now()
WHERE user_id = $1
RETURNING version, updated_at
`, userID).Scan(&next.Version, &updatedAt); err != nil {
			return fmt.Errorf("bump cart version: %w", err)
		}
		next.UpdatedAt = &updatedAt

		out = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Clear empties the user's cart under the same lock as other mutations.
func (r *Repository) Clear(ctx context.Context, userID string) (*Cart, error) {
	cart, err := r.Update(ctx, userID, func(c *Cart) error {
		c.Items = nil
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("clear cart: %w", err)
	}
	return cart, nil
}

func loadItems(ctx context.Context, q dbx.Querier, userID string) ([]CartItem, error) {
	rows, err := q.Query(ctx, `
SELECT product_id, quantity
FROM cart_items
WHERE user_id = $1
ORDER BY added_at ASC, product_id ASC
`, userID)
	if err != nil {
		return nil, fmt.Errorf("cart items: %w", err)
	}
	defer rows.Close()

	var items []CartItem
	for rows.Next() {
		var it CartItem
		if err := rows.Scan(&it.ProductID, &it.Quantity); err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("cart items rows error: %w", err)
	}
	return items, nil
}

// writeDiff applies only the lines that changed between before and after.
func writeDiff(ctx context.Context, q dbx.Querier, userID string, before, after []CartItem) error {
	keep := make(map[string]int, len(after))
	for _, it := range after {
		keep[it.ProductID] = it.Quantity
	}

	for _, it := range before {
		if _, ok := keep[it.ProductID]; ok {
			continue
		}
		if _, err := q.Exec(ctx, `
DELETE FROM cart_items
WHERE user_id = $1 AND product_id = $2
`, userID, it.ProductID); err != nil {
			return fmt.Errorf("remove item: %w", err)
		}
	}

	prev := make(map[string]int, len(before))
	for _, it := range before {
		prev[it.ProductID] = it.Quantity
	}

	for _, it := range after {
		if q0, ok := prev[it.ProductID]; ok && q0 == it.Quantity {
			continue
		}
		if _, err := q.Exec(ctx, `
INSERT INTO cart_items (user_id, product_id, quantity)
VALUES ($1, $2, $3)
ON CONFLICT (user_id, product_id)
DO UPDATE SET quantity = EXCLUDED.quantity
`, userID, it.ProductID, it.Quantity); err != nil {
			return fmt.Errorf("upsert item: %w", err)
		}
	}

	return nil
}
