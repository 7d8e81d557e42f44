package memstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/richardliu001/marketplace-ledger/internal/model"
	"github.com/richardliu001/marketplace-ledger/internal/repo"
)

type cartKey struct{ user, product uuid.UUID }

// Cart is an in-memory CartStore.
type Cart struct {
	mu        sync.RWMutex
	items     map[uuid.UUID]*model.CartItem
	byProduct map[cartKey]uuid.UUID
	order     []uuid.UUID
	now       func() time.Time
}

var _ repo.CartStore = (*Cart)(nil)

func NewCart() *Cart {
	return &Cart{
		items:     make(map[uuid.UUID]*model.CartItem),
		byProduct: make(map[cartKey]uuid.UUID),
		now:       time.Now,
	}
}

func (s *Cart) Add(_ context.Context, item *model.CartItem) (*model.CartItem, error) {
	if item.Quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive", model.ErrValidation)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	k := cartKey{item.UserID, item.ProductID}
	if id, ok := s.byProduct[k]; ok {
		existing := s.items[id]
		existing.Quantity += item.Quantity
		cp := *existing
		return &cp, nil
	}
	c := *item
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	c.AddedAt = s.now()
	s.items[c.ID] = &c
	s.byProduct[k] = c.ID
	s.order = append(s.order, c.ID)
	cp := c
	return &cp, nil
}

func (s *Cart) Get(_ context.Context, id uuid.UUID) (*model.CartItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.items[id]
	if !ok {
		return nil, fmt.Errorf("%w: cart item %s", model.ErrNotFound, id)
	}
	cp := *c
	return &cp, nil
}

func (s *Cart) List(_ context.Context, userID *uuid.UUID) ([]model.CartItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.CartItem, 0)
	for _, id := range s.order {
		c := s.items[id]
		if userID != nil && c.UserID != *userID {
			continue
		}
		out = append(out, *c)
	}
	return out, nil
}

func (s *Cart) UpdateQuantity(_ context.Context, id uuid.UUID, quantity int64) (*model.CartItem, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive", model.ErrValidation)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.items[id]
	if !ok {
		return nil, fmt.Errorf("%w: cart item %s", model.ErrNotFound, id)
	}
	c.Quantity = quantity
	cp := *c
	return &cp, nil
}

func (s *Cart) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.items[id]
	if !ok {
		return fmt.Errorf("%w: cart item %s", model.ErrNotFound, id)
	}
	delete(s.items, id)
	delete(s.byProduct, cartKey{c.UserID, c.ProductID})
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}
