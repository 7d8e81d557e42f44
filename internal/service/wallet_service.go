package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/richardliu001/marketplace-ledger/internal/cache"
	"github.com/richardliu001/marketplace-ledger/internal/model"
	"github.com/richardliu001/marketplace-ledger/internal/money"
	"github.com/richardliu001/marketplace-ledger/internal/repo"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// WalletService glues wallet reads and top-ups to the store.
type WalletService struct {
	store repo.WalletStore
	txs   repo.TransactionStore
	cache *cache.BalanceCache
	group singleflight.Group
	log   *zap.SugaredLogger
}

// NewWalletService returns WalletService. txs is consulted before a wallet is
// deleted; bc may be nil.
func NewWalletService(store repo.WalletStore, txs repo.TransactionStore, bc *cache.BalanceCache, logger *zap.SugaredLogger) *WalletService {
	return &WalletService{store: store, txs: txs, cache: bc, log: logger}
}

// requestKey scopes a client idempotency key to the user and the kind of
// operation, so it never collides with settlement keys.
func requestKey(kind string, userID uuid.UUID, key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", fmt.Errorf("%w: idempotency_key is required", model.ErrValidation)
	}
	if len(key) > 64 {
		return "", fmt.Errorf("%w: idempotency_key is longer than 64 characters", model.ErrValidation)
	}
	return fmt.Sprintf("%s:%s:%s", kind, userID, key), nil
}

// Open returns the user's wallet, creating it if absent.
func (s *WalletService) Open(ctx context.Context, userID uuid.UUID) (*model.Wallet, error) {
	return s.store.GetOrCreate(ctx, userID)
}

// Balance returns the wallet, served from cache when possible. Concurrent
// misses for one user share a single store read.
func (s *WalletService) Balance(ctx context.Context, userID uuid.UUID) (*model.Wallet, error) {
	if s.cache != nil {
		w, err := s.cache.Get(ctx, userID)
		if err == nil {
			return w, nil
		}
		if !errors.Is(err, cache.ErrMiss) {
			s.log.Warnw("balance cache read failed", "user_id", userID, "error", err)
		}
	}
	v, err, _ := s.group.Do(userID.String(), func() (interface{}, error) {
		w, err := s.store.Get(ctx, userID)
		if err != nil {
			return nil, err
		}
		if s.cache != nil {
			// a write that committed meanwhile has cached a newer version,
			// which Set leaves in place
			if _, err := s.cache.Set(ctx, w); err != nil {
				s.log.Warnw("balance cache write failed", "user_id", userID, "error", err)
			}
		}
		return w, nil
	})
	if err != nil {
		return nil, err
	}
	w := *v.(*model.Wallet)
	return &w, nil
}

// Deposit credits the wallet, creating it first when needed. Repeating a
// call with the same idempotency key returns the wallet without crediting again.
func (s *WalletService) Deposit(ctx context.Context, userID uuid.UUID, amt money.Money, idemKey string) (*model.Wallet, error) {
	if err := repo.CheckAmount(amt); err != nil {
		return nil, err
	}
	opKey, err := requestKey("deposit", userID, idemKey)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.GetOrCreate(ctx, userID); err != nil {
		return nil, err
	}
	w, err := s.store.Credit(ctx, userID, amt, opKey)
	if err != nil {
		return nil, err
	}
	s.log.Infow("deposit", "user_id", userID, "amount", amt.String(), "currency", amt.Currency(), "idempotency_key", idemKey)
	return w, nil
}

// Withdraw debits the wallet, once per idempotency key.
func (s *WalletService) Withdraw(ctx context.Context, userID uuid.UUID, amt money.Money, idemKey string) (*model.Wallet, error) {
	opKey, err := requestKey("withdraw", userID, idemKey)
	if err != nil {
		return nil, err
	}
	w, err := s.store.Debit(ctx, userID, amt, opKey)
	if err != nil {
		return nil, err
	}
	s.log.Infow("withdraw", "user_id", userID, "amount", amt.String(), "currency", amt.Currency(), "idempotency_key", idemKey)
	return w, nil
}

func (s *WalletService) List(ctx context.Context) ([]model.Wallet, error) {
	return s.store.List(ctx)
}

// Delete removes the user's wallet. It is refused with ErrConflict while a
// PENDING or PAID transaction names the user, or while the wallet holds funds.
func (s *WalletService) Delete(ctx context.Context, userID uuid.UUID) error {
	for _, f := range []model.TransactionFilter{{BuyerID: &userID}, {SellerID: &userID}} {
		txs, err := s.txs.List(ctx, f)
		if err != nil {
			return err
		}
		for _, t := range txs {
			if !t.Status.Terminal() {
				return fmt.Errorf("%w: transaction %s is %s", model.ErrConflict, t.ID, t.Status)
			}
		}
	}
	if err := s.store.Delete(ctx, userID); err != nil {
		return err
	}
	s.log.Infow("wallet deleted", "user_id", userID)
	return nil
}

// History fetches recent ledger entries, newest first.
func (s *WalletService) History(ctx context.Context, userID uuid.UUID, limit int) ([]model.LedgerEntry, error) {
	if _, err := s.store.Get(ctx, userID); err != nil {
		return nil, err
	}
	return s.store.History(ctx, userID, limit)
}
