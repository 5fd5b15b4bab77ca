package carts

import (
	"context"
	"errors"
	"time"
)

const (
	MaxQuantity     = 99
	MaxItems        = 50
	MaxProductIDLen = 64
)

var (
	ErrInvalidQuantity = errors.New("quantity must be between 1 and 99")
	ErrInvalidProduct  = errors.New("product id is required and at most 64 characters")
	ErrCartTooLarge    = errors.New("cart exceeds the allowed number of items")
)

// CartItem is one product line. Quantity is never stored as zero.
type CartItem struct {
	ProductID string `json:"productId" validate:"required,max=64"`
	Quantity  int    `json:"quantity" validate:"min=1,max=99"`
}

type Cart struct {
	UserID    string     `json:"user_id,omitempty"`
	Items     []CartItem `json:"items"`
	Version   int64      `json:"version"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

type Store interface {
	Get(ctx context.Context, userID string) (*Cart, error)
	// Update applies fn to the user's cart while holding the per-user lock.
	Update(ctx context.Context, userID string, fn func(c *Cart) error) (*Cart, error)
	Clear(ctx context.Context, userID string) (*Cart, error)
}

func (c *Cart) index(productID string) int {
	for i, it := range c.Items {
		if it.ProductID == productID {
			return i
		}
	}
	return -1
}

// Add increases the quantity of productID, creating the line if needed.
func (c *Cart) Add(productID string, qty int) error {
	if qty < 1 {
		return ErrInvalidQuantity
	}
	if i := c.index(productID); i >= 0 {
		n := c.Items[i].Quantity + qty
		if n > MaxQuantity {
			return ErrInvalidQuantity
		}
		c.Items[i].Quantity = n
		return nil
	}
	if qty > MaxQuantity {
		return ErrInvalidQuantity
	}
	if len(c.Items) >= MaxItems {
		return ErrCartTooLarge
	}
	c.Items = append(c.Items, CartItem{ProductID: productID, Quantity: qty})
	return nil
}

// SetQuantity replaces the quantity of productID. qty <= 0 removes the line.
func (c *Cart) SetQuantity(productID string, qty int) error {
	if qty <= 0 {
		c.Remove(productID)
		return nil
	}
	if qty > MaxQuantity {
		return ErrInvalidQuantity
	}
	if i := c.index(productID); i >= 0 {
		c.Items[i].Quantity = qty
		return nil
	}
	if len(c.Items) >= MaxItems {
		return ErrCartTooLarge
	}
	c.Items = append(c.Items, CartItem{ProductID: productID, Quantity: qty})
	return nil
}

// Remove deletes the line for productID and reports whether it existed.
func (c *Cart) Remove(productID string) bool {
	i := c.index(productID)
	if i < 0 {
		return false
	}
	c.Items = append(c.Items[:i], c.Items[i+1:]...)
	return true
}

// Merge folds other into c by summing quantities, clamped to MaxQuantity.
// Lines that do not fit under MaxItems are dropped and returned.
func (c *Cart) Merge(other []CartItem) (dropped []CartItem) {
	for _, it := range other {
		if it.Quantity < 1 {
			continue
		}
		if i := c.index(it.ProductID); i >= 0 {
			c.Items[i].Quantity = min(c.Items[i].Quantity+it.Quantity, MaxQuantity)
			continue
		}
		if len(c.Items) >= MaxItems {
			dropped = append(dropped, it)
			continue
		}
		c.Items = append(c.Items, CartItem{ProductID: it.ProductID, Quantity: min(it.Quantity, MaxQuantity)})
	}
	return dropped
}

func (c *Cart) clone() *Cart {
	out := *c
	out.Items = append([]CartItem(nil), c.Items...)
	return &out
}

// ItemCount sums quantities across items. A nil or empty cart counts 0.
func ItemCount(c *Cart) int {
	if c == nil {
		return 0
	}
	total := 0
	for _, it := range c.Items {
		total += it.Quantity
	}
	return total
}
