package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/richardliu001/marketplace-ledger/internal/money"
	"github.com/shopspring/decimal"
)

// Wallet holds one user's USD and USDT balances.
type Wallet struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	UserID      uuid.UUID       `gorm:"type:uuid;uniqueIndex;not null" json:"user_id"`
	UsdBalance  decimal.Decimal `gorm:"type:numeric(20,4);not null;default:0" json:"usd_balance"`
	UsdtBalance decimal.Decimal `gorm:"type:numeric(20,8);not null;default:0" json:"usdt_balance"`
	Version     uint64          `gorm:"not null;default:0" json:"-"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func (Wallet) TableName() string { return "wallet" }

// NewWallet returns an unsaved wallet with zero balances.
func NewWallet(userID uuid.UUID, now time.Time) *Wallet {
	return &Wallet{
		ID:          uuid.New(),
		UserID:      userID,
		UsdBalance:  decimal.Zero,
		UsdtBalance: decimal.Zero,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Balance returns the balance held in c.
func (w *Wallet) Balance(c money.Currency) (money.Money, error) {
	switch c {
	case money.USD:
		return money.New(w.UsdBalance, money.USD)
	case money.USDT:
		return money.New(w.UsdtBalance, money.USDT)
	}
	return money.Money{}, money.ErrUnknownCurrency
}

// SetBalance overwrites the balance matching m's currency.
func (w *Wallet) SetBalance(m money.Money) {
	switch m.Currency() {
	case money.USD:
		w.UsdBalance = m.Amount()
	case money.USDT:
		w.UsdtBalance = m.Amount()
	}
}
