package storage

import (
	"context"
	"fmt"

	"tosho/internal/domain/carts"
	"tosho/internal/domain/finalization"
	"tosho/internal/domain/purchases"
	"tosho/internal/events"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Checkout struct {
	Finalizations finalization.Store
	Purchases     purchases.Store
	Outbox        events.Store
}

type Container struct {
	pool     *pgxpool.Pool
	Carts    carts.Store
	Checkout Checkout
}

func NewContainer(db *pgxpool.Pool) *Container {
	return &Container{
		pool:  db,
		Carts: carts.NewRepository(db),
		Checkout: Checkout{
			Finalizations: finalization.NewRepository(db),
			Purchases:     purchases.NewRepository(db),
			Outbox:        events.NewOutboxRepository(db),
		},
	}
}

// Ping reports whether the database behind every repository is reachable.
func (c *Container) Ping(ctx context.Context) error {
	if c.pool == nil {
		return fmt.Errorf("storage container pool is nil (did you forget to set pool in NewContainer?)")
	}
	return c.pool.Ping(ctx)
}
