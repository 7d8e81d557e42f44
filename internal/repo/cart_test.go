package repo

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/richardliu001/marketplace-ledger/internal/model"
	"github.com/richardliu001/marketplace-ledger/internal/repo/repotest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCartRepo(t *testing.T) {
	r := NewCartRepo(repotest.NewDB(t))
	ctx := context.Background()
	user, product := uuid.New(), uuid.New()

	first, err := r.Add(ctx, &model.CartItem{UserID: user, ProductID: product, Quantity: 2})
	require.NoError(t, err)

	// same product merges into the existing row
	again, err := r.Add(ctx, &model.CartItem{UserID: user, ProductID: product, Quantity: 1})
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, int64(3), again.Quantity)

	_, err = r.Add(ctx, &model.CartItem{UserID: uuid.New(), ProductID: product, Quantity: 1})
	require.NoError(t, err)

	mine, err := r.List(ctx, &user)
	require.NoError(t, err)
	assert.Len(t, mine, 1)
	all, err := r.List(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	updated, err := r.UpdateQuantity(ctx, first.ID, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(5), updated.Quantity)

	_, err = r.UpdateQuantity(ctx, first.ID, 0)
	assert.ErrorIs(t, err, model.ErrValidation)
	_, err = r.Add(ctx, &model.CartItem{UserID: user, ProductID: uuid.New(), Quantity: -1})
	assert.ErrorIs(t, err, model.ErrValidation)

	require.NoError(t, r.Delete(ctx, first.ID))
	_, err = r.Get(ctx, first.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.ErrorIs(t, r.Delete(ctx, first.ID), model.ErrNotFound)
	_, err = r.UpdateQuantity(ctx, first.ID, 1)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestCartRepo_ConcurrentFirstAddsMerge(t *testing.T) {
	r := NewCartRepo(repotest.NewDB(t))
	ctx := context.Background()
	user, product := uuid.New(), uuid.New()

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Add(ctx, &model.CartItem{UserID: user, ProductID: product, Quantity: 2})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	items, err := r.List(ctx, &user)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, int64(12), items[0].Quantity)
}
