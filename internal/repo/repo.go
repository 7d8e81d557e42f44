// Package repo defines the store contracts of the ledger and their gorm implementations.
package repo

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/richardliu001/marketplace-ledger/internal/model"
	"github.com/richardliu001/marketplace-ledger/internal/money"
)

// WalletStore owns wallet balances. Every mutation is atomic per call and
// never leaves a balance below zero.
type WalletStore interface {
	GetOrCreate(ctx context.Context, userID uuid.UUID) (*model.Wallet, error)
	Get(ctx context.Context, userID uuid.UUID) (*model.Wallet, error)
	// GetMany reads several wallets as one consistent snapshot.
	GetMany(ctx context.Context, userIDs ...uuid.UUID) ([]model.Wallet, error)
	// List returns every wallet, oldest first.
	List(ctx context.Context) ([]model.Wallet, error)
	// Debit and Credit record a non-empty opKey with the change. A key that
	// was recorded before makes the call return the current wallet unchanged.
	Debit(ctx context.Context, userID uuid.UUID, amount money.Money, opKey string) (*model.Wallet, error)
	Credit(ctx context.Context, userID uuid.UUID, amount money.Money, opKey string) (*model.Wallet, error)
	// ApplyPair debits one wallet and credits another as a single unit and
	// records opKey with it. It reports applied=false, touching nothing, when
	// opKey was recorded before.
	ApplyPair(ctx context.Context, debitUser, creditUser uuid.UUID, amount money.Money, opKey string) (applied bool, err error)
	Applied(ctx context.Context, opKey string) (bool, error)
	History(ctx context.Context, userID uuid.UUID, limit int) ([]model.LedgerEntry, error)
	// Delete removes an empty wallet; ErrConflict while it still holds funds.
	Delete(ctx context.Context, userID uuid.UUID) error
}

// TransactionStore owns order records. Updates go through CompareAndSwap only.
type TransactionStore interface {
	Create(ctx context.Context, t *model.Transaction) (*model.Transaction, error)
	Get(ctx context.Context, id uuid.UUID) (*model.Transaction, error)
	List(ctx context.Context, f model.TransactionFilter) ([]model.Transaction, error)
	// CompareAndSwap persists next's status when the stored version still
	// equals expectedVersion. Items and amounts are never rewritten.
	CompareAndSwap(ctx context.Context, id uuid.UUID, expectedVersion uint64, next *model.Transaction) (*model.Transaction, error)
}

// CartStore is a keyed collection of cart items.
type CartStore interface {
	Add(ctx context.Context, item *model.CartItem) (*model.CartItem, error)
	Get(ctx context.Context, id uuid.UUID) (*model.CartItem, error)
	List(ctx context.Context, userID *uuid.UUID) ([]model.CartItem, error)
	UpdateQuantity(ctx context.Context, id uuid.UUID, quantity int64) (*model.CartItem, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// LockOrder returns the two ids in the order their locks must be taken.
func LockOrder(a, b uuid.UUID) (uuid.UUID, uuid.UUID) {
	if bytes.Compare(a[:], b[:]) > 0 {
		return b, a
	}
	return a, b
}

// CheckEmpty refuses to drop a wallet that still holds a balance.
func CheckEmpty(w *model.Wallet) error {
	if !w.UsdBalance.IsZero() || !w.UsdtBalance.IsZero() {
		return fmt.Errorf("%w: wallet of user %s still holds funds", model.ErrConflict, w.UserID)
	}
	return nil
}

// CheckAmount rejects zero and negative amounts for wallet mutations.
func CheckAmount(amount money.Money) error {
	if !amount.Currency().Valid() {
		return fmt.Errorf("%w: %v", model.ErrValidation, money.ErrUnknownCurrency)
	}
	if !amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", model.ErrValidation)
	}
	return nil
}

// Debited computes the post-debit balance, mapping underflow to ErrInsufficientFunds.
func Debited(w *model.Wallet, amount money.Money) (before, after money.Money, err error) {
	before, err = w.Balance(amount.Currency())
	if err != nil {
		return money.Money{}, money.Money{}, fmt.Errorf("%w: wallet %s: %v", model.ErrStorage, w.ID, err)
	}
	after, err = before.SubChecked(amount)
	if errors.Is(err, money.ErrUnderflow) {
		return money.Money{}, money.Money{}, fmt.Errorf("%w: user %s has %s %s, needs %s",
			model.ErrInsufficientFunds, w.UserID, before, amount.Currency(), amount)
	}
	return before, after, err
}

// Credited computes the post-credit balance.
func Credited(w *model.Wallet, amount money.Money) (before, after money.Money, err error) {
	before, err = w.Balance(amount.Currency())
	if err != nil {
		return money.Money{}, money.Money{}, fmt.Errorf("%w: wallet %s: %v", model.ErrStorage, w.ID, err)
	}
	after, err = before.Add(amount)
	return before, after, err
}

// kinded reports whether err already carries one of the domain error kinds.
func kinded(err error) bool {
	for _, k := range []error{
		model.ErrValidation, model.ErrNotFound, model.ErrInsufficientFunds,
		model.ErrConflict, model.ErrInvalidTransition, model.ErrStorage,
		money.ErrCurrencyMismatch, money.ErrPrecision, money.ErrUnknownCurrency,
		money.ErrInvalidAmount, money.ErrOutOfRange,
	} {
		if errors.Is(err, k) {
			return true
		}
	}
	return false
}

// storageErr wraps backend failures as ErrStorage and passes domain errors through.
func storageErr(op string, err error) error {
	if err == nil || kinded(err) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", model.ErrStorage, op, err)
}
