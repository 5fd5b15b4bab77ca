package carts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"tosho/internal/auth"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Result is the outcome of a cart mutation. Cookie is set only for anonymous
// carts and holds the new encoded value the caller must write back.
type Result struct {
	Cart   *Cart
	Cookie *string
}

// Service applies reads and mutations to whichever cart representation is
// authoritative: the server cart when an identity is present, the cookie
// cart otherwise. The cookie is passed in explicitly and never consulted for
// an authenticated identity.
type Service struct {
	store  Store
	cache  Cache
	logger *zap.SugaredLogger
	sfg    singleflight.Group
}

func NewService(store Store, cache Cache, logger *zap.SugaredLogger) *Service {
	return &Service{store: store, cache: cache, logger: logger}
}

func (s *Service) Read(ctx context.Context, id *auth.Identity, cookie string) (*Cart, error) {
	if id == nil {
		return DecodeCookie(cookie), nil
	}
	return s.readUser(ctx, id.UserID)
}

func (s *Service) readUser(ctx context.Context, userID string) (*Cart, error) {
	v, err, _ := s.sfg.Do(userID, func() (any, error) {
		if s.cache != nil {
			cart, err := s.cache.Get(ctx, userID)
			if err == nil {
				return cart, nil
			}
			if !errors.Is(err, ErrCacheMiss) {
				s.logger.Warnw("cart cache get failed", "user_id", userID, "err", err)
			}
		}

		cart, err := s.store.Get(ctx, userID)
		if err != nil {
			return nil, err
		}

		if s.cache != nil {
			if err := s.cache.Set(ctx, userID, cart); err != nil {
				s.logger.Warnw("cart cache set failed", "user_id", userID, "err", err)
			}
		}
		return cart, nil
	})
	if err != nil {
		return nil, err
	}
	// Callers sharing a singleflight result must not alias the same slice.
	return v.(*Cart).clone(), nil
}

func (s *Service) AddItem(ctx context.Context, id *auth.Identity, cookie, productID string, qty int) (*Result, error) {
	productID, err := normalizeProduct(productID)
	if err != nil {
		return nil, err
	}
	if qty < 1 || qty > MaxQuantity {
		return nil, ErrInvalidQuantity
	}
	return s.mutate(ctx, id, cookie, func(c *Cart) error {
		return c.Add(productID, qty)
	})
}

// SetQuantity with qty <= 0 behaves like RemoveItem.
func (s *Service) SetQuantity(ctx context.Context, id *auth.Identity, cookie, productID string, qty int) (*Result, error) {
	productID, err := normalizeProduct(productID)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, id, cookie, func(c *Cart) error {
		return c.SetQuantity(productID, qty)
	})
}

func (s *Service) RemoveItem(ctx context.Context, id *auth.Identity, cookie, productID string) (*Result, error) {
	productID, err := normalizeProduct(productID)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, id, cookie, func(c *Cart) error {
		c.Remove(productID)
		return nil
	})
}

func (s *Service) Clear(ctx context.Context, id *auth.Identity, cookie string) (*Result, error) {
	return s.mutate(ctx, id, cookie, func(c *Cart) error {
		c.Items = nil
		return nil
	})
}

// ClearUser empties the server cart for userID and drops its cache entry.
func (s *Service) ClearUser(ctx context.Context, userID string) error {
	cart, err := s.store.Clear(ctx, userID)
	if err != nil {
		return err
	}
	s.invalidate(ctx, userID, cart.Version)
	return nil
}

// Merge folds the anonymous cookie cart into the user's server cart by
// summing quantities. The caller should drop the cookie afterwards.
func (s *Service) Merge(ctx context.Context, id *auth.Identity, cookie string) (*Cart, error) {
	if id == nil {
		return nil, errors.New("merge requires an authenticated identity")
	}

	anon := DecodeCookie(cookie)
	if len(anon.Items) == 0 {
		return s.readUser(ctx, id.UserID)
	}

	cart, err := s.store.Update(ctx, id.UserID, func(c *Cart) error {
		if dropped := c.Merge(anon.Items); len(dropped) > 0 {
			s.logger.Warnw("cart merge dropped items over limit", "user_id", id.UserID, "dropped", len(dropped))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("merge cart: %w", err)
	}
	s.invalidate(ctx, id.UserID, cart.Version)
	return cart, nil
}

func (s *Service) mutate(ctx context.Context, id *auth.Identity, cookie string, fn func(c *Cart) error) (*Result, error) {
	if id == nil {
		cart := DecodeCookie(cookie)
		if err := fn(cart); err != nil {
			return nil, err
		}
		enc, err := EncodeCookie(cart)
		if err != nil {
			return nil, err
		}
		return &Result{Cart: cart, Cookie: &enc}, nil
	}

	cart, err := s.store.Update(ctx, id.UserID, fn)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, id.UserID, cart.Version)
	return &Result{Cart: cart}, nil
}

func (s *Service) invalidate(ctx context.Context, userID string, version int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, userID, version); err != nil {
		s.logger.Warnw("cart cache invalidate failed", "user_id", userID, "err", err)
	}
}

func normalizeProduct(productID string) (string, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" || len(productID) > MaxProductIDLen {
		return "", ErrInvalidProduct
	}
	return productID, nil
}
