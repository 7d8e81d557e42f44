package memstore

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/richardliu001/marketplace-ledger/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCart(t *testing.T) {
	s := NewCart()
	ctx := context.Background()
	user, product := uuid.New(), uuid.New()

	c, err := s.Add(ctx, &model.CartItem{UserID: user, ProductID: product, Quantity: 1})
	require.NoError(t, err)
	c2, err := s.Add(ctx, &model.CartItem{UserID: user, ProductID: product, Quantity: 4})
	require.NoError(t, err)
	assert.Equal(t, c.ID, c2.ID)
	assert.Equal(t, int64(5), c2.Quantity)

	items, err := s.List(ctx, &user)
	require.NoError(t, err)
	assert.Len(t, items, 1)

	require.NoError(t, s.Delete(ctx, c.ID))
	items, err = s.List(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, items)

	// product can be re-added after removal
	c3, err := s.Add(ctx, &model.CartItem{UserID: user, ProductID: product, Quantity: 1})
	require.NoError(t, err)
	assert.NotEqual(t, c.ID, c3.ID)
}

func TestCart_DeleteForgetsOrder(t *testing.T) {
	s := NewCart()
	ctx := context.Background()
	user := uuid.New()

	for i := 0; i < 50; i++ {
		c, err := s.Add(ctx, &model.CartItem{UserID: user, ProductID: uuid.New(), Quantity: 1})
		require.NoError(t, err)
		require.NoError(t, s.Delete(ctx, c.ID))
	}
	keep, err := s.Add(ctx, &model.CartItem{UserID: user, ProductID: uuid.New(), Quantity: 2})
	require.NoError(t, err)

	assert.Len(t, s.order, 1)
	items, err := s.List(ctx, nil)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, keep.ID, items[0].ID)
}
