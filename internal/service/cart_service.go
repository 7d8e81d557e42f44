package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/richardliu001/marketplace-ledger/internal/model"
	"github.com/richardliu001/marketplace-ledger/internal/repo"
)

type CartService struct {
	store repo.CartStore
}

func NewCartService(store repo.CartStore) *CartService {
	return &CartService{store: store}
}

func (s *CartService) Add(ctx context.Context, userID, productID uuid.UUID, qty int64) (*model.CartItem, error) {
	if userID == uuid.Nil || productID == uuid.Nil {
		return nil, fmt.Errorf("%w: user_id and product_id are required", model.ErrValidation)
	}
	return s.store.Add(ctx, &model.CartItem{UserID: userID, ProductID: productID, Quantity: qty})
}

func (s *CartService) Get(ctx context.Context, id uuid.UUID) (*model.CartItem, error) {
	return s.store.Get(ctx, id)
}

func (s *CartService) List(ctx context.Context, userID *uuid.UUID) ([]model.CartItem, error) {
	return s.store.List(ctx, userID)
}

func (s *CartService) SetQuantity(ctx context.Context, id uuid.UUID, qty int64) (*model.CartItem, error) {
	return s.store.UpdateQuantity(ctx, id, qty)
}

func (s *CartService) Remove(ctx context.Context, id uuid.UUID) error {
	return s.store.Delete(ctx, id)
}
