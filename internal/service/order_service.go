package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/richardliu001/marketplace-ledger/internal/model"
	"github.com/richardliu001/marketplace-ledger/internal/money"
	"github.com/richardliu001/marketplace-ledger/internal/repo"
	"github.com/shopspring/decimal"
)

// OrderItem is one requested line of a new order.
type OrderItem struct {
	ProductID     uuid.UUID
	TitleSnapshot string
	UnitPrice     decimal.Decimal
	Quantity      int64
}

// NewOrder is the input of OrderService.Create. Subtotal and total are
// computed from the items.
type NewOrder struct {
	ID       uuid.UUID
	BuyerID  uuid.UUID
	SellerID uuid.UUID
	Currency money.Currency
	Items    []OrderItem
}

// OrderService reads and creates orders; status changes go through the engine.
type OrderService struct {
	txs    repo.TransactionStore
	engine *SettlementEngine
}

func NewOrderService(txs repo.TransactionStore, engine *SettlementEngine) *OrderService {
	return &OrderService{txs: txs, engine: engine}
}

func (s *OrderService) Create(ctx context.Context, in NewOrder) (*model.Transaction, error) {
	t := &model.Transaction{
		ID:       in.ID,
		BuyerID:  in.BuyerID,
		SellerID: in.SellerID,
		Currency: in.Currency,
	}
	for _, it := range in.Items {
		t.Items = append(t.Items, model.TransactionItem{
			ProductID:     it.ProductID,
			TitleSnapshot: it.TitleSnapshot,
			UnitPrice:     it.UnitPrice,
			Quantity:      it.Quantity,
		})
	}
	sub, err := t.ComputeSubtotal()
	if err != nil {
		return nil, err
	}
	t.Subtotal = sub.Amount()
	t.Total = sub.Amount()
	return s.txs.Create(ctx, t)
}

func (s *OrderService) Get(ctx context.Context, id uuid.UUID) (*model.Transaction, error) {
	return s.txs.Get(ctx, id)
}

func (s *OrderService) List(ctx context.Context, f model.TransactionFilter) ([]model.Transaction, error) {
	return s.txs.List(ctx, f)
}

// SetStatus is the single write path for an order's status.
func (s *OrderService) SetStatus(ctx context.Context, id uuid.UUID, target model.Status) (*model.Transaction, error) {
	if _, err := model.ParseStatus(string(target)); err != nil {
		return nil, fmt.Errorf("set status: %w", err)
	}
	return s.engine.Transition(ctx, id, target)
}
