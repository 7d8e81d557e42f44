package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/richardliu001/marketplace-ledger/internal/money"
	"github.com/shopspring/decimal"
)

// Transaction is an order between a buyer and a seller.
// USD is used for real products, USDT for virtual ones.
type Transaction struct {
	Seq       uint64            `gorm:"primaryKey;autoIncrement" json:"-"`
	ID        uuid.UUID         `gorm:"type:uuid;uniqueIndex;not null" json:"id"`
	BuyerID   uuid.UUID         `gorm:"type:uuid;index;not null" json:"buyer_id"`
	SellerID  uuid.UUID         `gorm:"type:uuid;index;not null" json:"seller_id"`
	Status    Status            `gorm:"size:16;index;not null" json:"status"`
	Items     []TransactionItem `gorm:"foreignKey:TransactionID;references:ID;constraint:OnDelete:CASCADE" json:"items"`
	Subtotal  decimal.Decimal   `gorm:"type:numeric(20,8);not null" json:"subtotal"`
	Total     decimal.Decimal   `gorm:"type:numeric(20,8);not null" json:"total"`
	Currency  money.Currency    `gorm:"size:8;not null" json:"currency"`
	Version   uint64            `gorm:"not null;default:0" json:"version"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

func (Transaction) TableName() string { return "transactions" }

// TransactionItem is a priced line of an order. It is never changed once the
// order has left PENDING.
type TransactionItem struct {
	ID            uint64          `gorm:"primaryKey;autoIncrement" json:"-"`
	TransactionID uuid.UUID       `gorm:"type:uuid;index;not null" json:"-"`
	Position      int             `gorm:"not null" json:"-"`
	ProductID     uuid.UUID       `gorm:"type:uuid;not null" json:"product_id"`
	TitleSnapshot string          `gorm:"size:255;not null" json:"title_snapshot"`
	UnitPrice     decimal.Decimal `gorm:"type:numeric(20,8);not null" json:"unit_price"`
	Quantity      int64           `gorm:"not null" json:"quantity"`
}

func (TransactionItem) TableName() string { return "transaction_items" }

// TransactionFilter narrows List; zero fields match everything.
type TransactionFilter struct {
	BuyerID  *uuid.UUID
	SellerID *uuid.UUID
	Status   *Status
}

func (f TransactionFilter) Match(t *Transaction) bool {
	if f.BuyerID != nil && *f.BuyerID != t.BuyerID {
		return false
	}
	if f.SellerID != nil && *f.SellerID != t.SellerID {
		return false
	}
	if f.Status != nil && *f.Status != t.Status {
		return false
	}
	return true
}

// ComputeSubtotal sums unit_price * quantity over the items in the order's currency.
func (t *Transaction) ComputeSubtotal() (money.Money, error) {
	if !t.Currency.Valid() {
		return money.Money{}, fmt.Errorf("%w: %v", ErrValidation, money.ErrUnknownCurrency)
	}
	sum := money.Zero(t.Currency)
	for i, it := range t.Items {
		if it.Quantity <= 0 {
			return money.Money{}, fmt.Errorf("%w: item %d quantity must be positive", ErrValidation, i)
		}
		price, err := money.New(it.UnitPrice, t.Currency)
		if err != nil {
			return money.Money{}, fmt.Errorf("%w: item %d: %v", ErrValidation, i, err)
		}
		if !price.IsPositive() {
			return money.Money{}, fmt.Errorf("%w: item %d unit price must be positive", ErrValidation, i)
		}
		line, err := money.New(price.Mul(it.Quantity).Amount(), t.Currency)
		if err != nil {
			return money.Money{}, fmt.Errorf("%w: item %d: %v", ErrValidation, i, err)
		}
		if sum, err = sum.Add(line); err != nil {
			return money.Money{}, fmt.Errorf("%w: %v", ErrValidation, err)
		}
	}
	return sum, nil
}

// Validate checks the record's internal consistency: parties, items, and that
// subtotal and total match the items.
func (t *Transaction) Validate() error {
	if t.BuyerID == uuid.Nil || t.SellerID == uuid.Nil {
		return fmt.Errorf("%w: buyer_id and seller_id are required", ErrValidation)
	}
	if t.BuyerID == t.SellerID {
		return fmt.Errorf("%w: buyer and seller must differ", ErrValidation)
	}
	if len(t.Items) == 0 {
		return fmt.Errorf("%w: at least one item is required", ErrValidation)
	}
	for i, it := range t.Items {
		if it.ProductID == uuid.Nil {
			return fmt.Errorf("%w: item %d product_id is required", ErrValidation, i)
		}
	}
	sub, err := t.ComputeSubtotal()
	if err != nil {
		return err
	}
	if !t.Subtotal.Equal(sub.Amount()) {
		return fmt.Errorf("%w: subtotal %s does not match items sum %s", ErrValidation, t.Subtotal, sub)
	}
	// total carries room for fees; none are charged so it must equal subtotal
	if !t.Total.Equal(t.Subtotal) {
		return fmt.Errorf("%w: total %s must equal subtotal %s", ErrValidation, t.Total, t.Subtotal)
	}
	return nil
}

// TotalMoney returns Total in the order's currency.
func (t *Transaction) TotalMoney() (money.Money, error) {
	return money.New(t.Total, t.Currency)
}

// Clone returns a deep copy, items included.
func (t *Transaction) Clone() *Transaction {
	c := *t
	c.Items = append([]TransactionItem(nil), t.Items...)
	return &c
}
