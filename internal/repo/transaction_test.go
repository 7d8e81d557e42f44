package repo

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/richardliu001/marketplace-ledger/internal/model"
	"github.com/richardliu001/marketplace-ledger/internal/money"
	"github.com/richardliu001/marketplace-ledger/internal/repo/repotest"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newOrder(buyer, seller uuid.UUID) *model.Transaction {
	return &model.Transaction{
		BuyerID:  buyer,
		SellerID: seller,
		Status:   model.StatusPaid, // ignored by Create
		Currency: money.USD,
		Subtotal: decimal.RequireFromString("39.98"),
		Total:    decimal.RequireFromString("39.98"),
		Items: []model.TransactionItem{{
			ProductID:     uuid.New(),
			TitleSnapshot: "Hydrating Mask 5-pack",
			UnitPrice:     decimal.RequireFromString("19.99"),
			Quantity:      2,
		}},
	}
}

func TestTransactionRepo_Create(t *testing.T) {
	r := NewTransactionRepo(repotest.NewDB(t), zap.NewNop().Sugar())
	ctx := context.Background()

	created, err := r.Create(ctx, newOrder(uuid.New(), uuid.New()))
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, created.ID)
	assert.Equal(t, model.StatusPending, created.Status)
	assert.Equal(t, uint64(0), created.Version)

	got, err := r.Get(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, got.Items, 1)
	assert.Equal(t, "Hydrating Mask 5-pack", got.Items[0].TitleSnapshot)
	assert.Equal(t, int64(2), got.Items[0].Quantity)
	assert.Equal(t, "39.98", got.Subtotal.StringFixed(2))
	require.NoError(t, got.Validate())

	_, err = r.Create(ctx, &model.Transaction{ID: created.ID, BuyerID: got.BuyerID, SellerID: got.SellerID,
		Currency: got.Currency, Subtotal: got.Subtotal, Total: got.Total, Items: got.Items})
	assert.ErrorIs(t, err, model.ErrConflict)

	bad := newOrder(uuid.New(), uuid.New())
	bad.Subtotal = decimal.NewFromInt(1)
	_, err = r.Create(ctx, bad)
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = r.Get(ctx, uuid.New())
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestTransactionRepo_ConcurrentCreateSameID(t *testing.T) {
	r := NewTransactionRepo(repotest.NewDB(t), zap.NewNop().Sugar())
	ctx := context.Background()
	id := uuid.New()
	buyer, seller := uuid.New(), uuid.New()

	var mu sync.Mutex
	var created, conflicts int
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o := newOrder(buyer, seller)
			o.ID = id
			_, err := r.Create(ctx, o)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case errors.Is(err, model.ErrConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Equal(t, 7, conflicts)
	got, err := r.Get(ctx, id)
	require.NoError(t, err)
	assert.Len(t, got.Items, 1, "losing creators add no items")
}

func TestTransactionRepo_List(t *testing.T) {
	r := NewTransactionRepo(repotest.NewDB(t), zap.NewNop().Sugar())
	ctx := context.Background()
	alice, bob, carol := uuid.New(), uuid.New(), uuid.New()

	var ids []uuid.UUID
	for _, pair := range [][2]uuid.UUID{{alice, bob}, {carol, bob}, {alice, carol}} {
		c, err := r.Create(ctx, newOrder(pair[0], pair[1]))
		require.NoError(t, err)
		ids = append(ids, c.ID)
	}

	all, err := r.List(ctx, model.TransactionFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	for i, tx := range all {
		assert.Equal(t, ids[i], tx.ID, "insertion order")
	}

	byAlice, err := r.List(ctx, model.TransactionFilter{BuyerID: &alice})
	require.NoError(t, err)
	require.Len(t, byAlice, 2)
	assert.Equal(t, ids[0], byAlice[0].ID)
	assert.Equal(t, ids[2], byAlice[1].ID)

	toBob, err := r.List(ctx, model.TransactionFilter{SellerID: &bob})
	require.NoError(t, err)
	assert.Len(t, toBob, 2)

	paid := model.StatusPaid
	none, err := r.List(ctx, model.TransactionFilter{Status: &paid})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestTransactionRepo_CompareAndSwap(t *testing.T) {
	db := repotest.NewDB(t)
	r := NewTransactionRepo(db, zap.NewNop().Sugar())
	ctx := context.Background()

	created, err := r.Create(ctx, newOrder(uuid.New(), uuid.New()))
	require.NoError(t, err)

	next := created.Clone()
	next.Status = model.StatusPaid
	next.Items[0].Quantity = 99 // items are immutable and must not be written

	updated, err := r.CompareAndSwap(ctx, created.ID, 0, next)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPaid, updated.Status)
	assert.Equal(t, uint64(1), updated.Version)
	assert.Equal(t, int64(2), updated.Items[0].Quantity)

	// stale version
	_, err = r.CompareAndSwap(ctx, created.ID, 0, next)
	assert.ErrorIs(t, err, model.ErrConflict)

	_, err = r.CompareAndSwap(ctx, uuid.New(), 0, next)
	assert.ErrorIs(t, err, model.ErrNotFound)

	next.Status = "SHIPPED"
	_, err = r.CompareAndSwap(ctx, created.ID, 1, next)
	assert.ErrorIs(t, err, model.ErrValidation)

	events, err := NewOutboxRepo(db).Poll(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, EventStatusChanged, events[0].EventType)
	assert.Equal(t, created.ID.String(), events[0].AggregateID)
	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(events[0].Payload), &payload))
	assert.Equal(t, "PENDING", payload["from"])
	assert.Equal(t, "PAID", payload["to"])
}
