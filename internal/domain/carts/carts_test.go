package carts

import (
	"context"
	"errors"
	"sync"
	"testing"

	"tosho/internal/db/dbtest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRepository(t *testing.T) *Repository {
	return NewRepository(dbtest.NewPool(t))
}

func TestRepository_GetUnknownUserIsEmpty(t *testing.T) {
	repo := setupRepository(t)

	cart, err := repo.Get(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Equal(t, "nobody", cart.UserID)
	assert.Empty(t, cart.Items)
	assert.Zero(t, cart.Version)
	assert.Nil(t, cart.UpdatedAt)
}

func TestRepository_UpdatePersistsAndBumpsVersion(t *testing.T) {
	repo := setupRepository(t)
	ctx := context.Background()

	cart, err := repo.Update(ctx, "u1", func(c *Cart) error {
		return c.Add("A", 2)
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, cart.Version)
	assert.NotNil(t, cart.UpdatedAt)

	cart, err = repo.Update(ctx, "u1", func(c *Cart) error {
		if err := c.Add("B", 1); err != nil {
			return err
		}
		return c.SetQuantity("A", 5)
	})
	require.NoError(t, err)
	assert.EqualValues(t, 2, cart.Version)

	got, err := repo.Get(ctx, "u1")
	require.NoError(t, err)
	assert.EqualValues(t, 2, got.Version)
	assert.Equal(t, []CartItem{{ProductID: "A", Quantity: 5}, {ProductID: "B", Quantity: 1}}, got.Items)

	_, err = repo.Update(ctx, "u1", func(c *Cart) error {
		c.Remove("A")
		return nil
	})
	require.NoError(t, err)

	got, err = repo.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []CartItem{{ProductID: "B", Quantity: 1}}, got.Items)
}

func TestRepository_UpdateErrorRollsBack(t *testing.T) {
	repo := setupRepository(t)
	ctx := context.Background()

	_, err := repo.Update(ctx, "u1", func(c *Cart) error {
		return c.Add("A", 1)
	})
	require.NoError(t, err)

	boom := errors.New("rejected")
	_, err = repo.Update(ctx, "u1", func(c *Cart) error {
		c.Items = nil
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := repo.Get(ctx, "u1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, got.Version)
	assert.Equal(t, []CartItem{{ProductID: "A", Quantity: 1}}, got.Items)
}

func TestRepository_ConcurrentUpdatesAreSerialized(t *testing.T) {
	repo := setupRepository(t)
	ctx := context.Background()

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.Update(ctx, "u1", func(c *Cart) error {
				return c.Add("X", 1)
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := repo.Get(ctx, "u1")
	require.NoError(t, err)
	assert.EqualValues(t, n, got.Version)
	assert.Equal(t, []CartItem{{ProductID: "X", Quantity: n}}, got.Items)
}

func TestRepository_Clear(t *testing.T) {
	repo := setupRepository(t)
	ctx := context.Background()

	_, err := repo.Update(ctx, "u1", func(c *Cart) error {
		return c.Add("A", 3)
	})
	require.NoError(t, err)

	cart, err := repo.Clear(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, cart.Items)
	assert.EqualValues(t, 2, cart.Version)

	got, err := repo.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, got.Items)
	assert.EqualValues(t, 2, got.Version)
}
