package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/richardliu001/marketplace-ledger/internal/money"
	"github.com/shopspring/decimal"
)

type Direction string

const (
	Debit  Direction = "DEBIT"
	Credit Direction = "CREDIT"
)

// LedgerEntry records one balance mutation of one wallet.
type LedgerEntry struct {
	ID            uint64          `gorm:"primaryKey;autoIncrement" json:"id"`
	WalletID      uuid.UUID       `gorm:"type:uuid;index;not null" json:"wallet_id"`
	UserID        uuid.UUID       `gorm:"type:uuid;index;not null" json:"user_id"`
	Direction     Direction       `gorm:"size:8;not null" json:"direction"`
	Amount        decimal.Decimal `gorm:"type:numeric(20,8);not null" json:"amount"`
	Currency      money.Currency  `gorm:"size:8;not null" json:"currency"`
	BalanceBefore decimal.Decimal `gorm:"type:numeric(20,8);not null" json:"balance_before"`
	BalanceAfter  decimal.Decimal `gorm:"type:numeric(20,8);not null" json:"balance_after"`
	OperationKey  string          `gorm:"size:128;index" json:"operation_key,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

func (LedgerEntry) TableName() string { return "ledger_entry" }

// AppliedOperation marks a settlement wallet effect as done.
// Keys are "<transaction_id>:<from>-><to>", so markers are scoped per transaction.
type AppliedOperation struct {
	Key       string `gorm:"primaryKey;size:128;column:op_key"`
	CreatedAt time.Time
}

func (AppliedOperation) TableName() string { return "applied_operation" }
