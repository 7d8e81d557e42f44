package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/richardliu001/marketplace-ledger/internal/cache"
	"github.com/richardliu001/marketplace-ledger/internal/model"
	"github.com/richardliu001/marketplace-ledger/internal/money"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// WalletRepo implements WalletStore on gorm. Rows are locked with
// SELECT ... FOR UPDATE and written with an optimistic version check.
type WalletRepo struct {
	db    *gorm.DB
	cache *cache.BalanceCache
	log   *zap.SugaredLogger
	now   func() time.Time
}

var _ WalletStore = (*WalletRepo)(nil)

// NewWalletRepo constructs the repo. bc may be nil when no cache is configured.
func NewWalletRepo(db *gorm.DB, bc *cache.BalanceCache, logger *zap.SugaredLogger) *WalletRepo {
	return &WalletRepo{db: db, cache: bc, log: logger, now: time.Now}
}

// GetOrCreate returns the user's wallet, inserting an empty one if needed.
func (r *WalletRepo) GetOrCreate(ctx context.Context, userID uuid.UUID) (*model.Wallet, error) {
	w, err := r.Get(ctx, userID)
	if err == nil || !errors.Is(err, model.ErrNotFound) {
		return w, err
	}
	nw := model.NewWallet(userID, r.now())
	// a concurrent creator may win; the unique user_id makes this a no-op then
	err = r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(nw).Error
	if err != nil {
		return nil, storageErr("create wallet", err)
	}
	return r.Get(ctx, userID)
}

func (r *WalletRepo) Get(ctx context.Context, userID uuid.UUID) (*model.Wallet, error) {
	var w model.Wallet
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&w).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: wallet of user %s", model.ErrNotFound, userID)
	}
	if err != nil {
		return nil, storageErr("get wallet", err)
	}
	return &w, nil
}

// GetMany reads all wallets with one statement, so the result is a single snapshot.
func (r *WalletRepo) GetMany(ctx context.Context, userIDs ...uuid.UUID) ([]model.Wallet, error) {
	var rows []model.Wallet
	if err := r.db.WithContext(ctx).Where("user_id IN ?", userIDs).Find(&rows).Error; err != nil {
		return nil, storageErr("get wallets", err)
	}
	byUser := make(map[uuid.UUID]model.Wallet, len(rows))
	for _, w := range rows {
		byUser[w.UserID] = w
	}
	out := make([]model.Wallet, 0, len(userIDs))
	for _, id := range userIDs {
		w, ok := byUser[id]
		if !ok {
			return nil, fmt.Errorf("%w: wallet of user %s", model.ErrNotFound, id)
		}
		out = append(out, w)
	}
	return out, nil
}

// List returns every wallet, oldest first.
func (r *WalletRepo) List(ctx context.Context) ([]model.Wallet, error) {
	var out []model.Wallet
	err := r.db.WithContext(ctx).Order("created_at").Order("id").Find(&out).Error
	return out, storageErr("list wallets", err)
}

func (r *WalletRepo) Debit(ctx context.Context, userID uuid.UUID, amount money.Money, opKey string) (*model.Wallet, error) {
	return r.single(ctx, userID, model.Debit, amount, opKey)
}

func (r *WalletRepo) Credit(ctx context.Context, userID uuid.UUID, amount money.Money, opKey string) (*model.Wallet, error) {
	return r.single(ctx, userID, model.Credit, amount, opKey)
}

func (r *WalletRepo) single(ctx context.Context, userID uuid.UUID, dir model.Direction, amount money.Money, opKey string) (*model.Wallet, error) {
	if err := CheckAmount(amount); err != nil {
		return nil, err
	}
	var out *model.Wallet
	changed := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		w, err := r.lockWallet(ctx, tx, userID)
		if err != nil {
			return err
		}
		out = w
		if opKey != "" {
			done, err := r.appliedIn(ctx, tx, opKey)
			if err != nil || done {
				return err
			}
		}
		if err := r.apply(ctx, tx, w, dir, amount, opKey); err != nil {
			return err
		}
		if err := r.mark(ctx, tx, opKey); err != nil {
			return err
		}
		changed = true
		return nil
	})
	if err != nil {
		return nil, storageErr("update wallet", err)
	}
	if changed {
		r.publish(ctx, out)
	} else {
		r.log.Infow("wallet operation already applied", "user_id", userID, "op_key", opKey)
	}
	return out, nil
}

// Delete removes the wallet when both balances are zero. Ledger entries stay.
func (r *WalletRepo) Delete(ctx context.Context, userID uuid.UUID) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		w, err := r.lockWallet(ctx, tx, userID)
		if err != nil {
			return err
		}
		if err := CheckEmpty(w); err != nil {
			return err
		}
		return tx.WithContext(ctx).Delete(&model.Wallet{}, "id = ?", w.ID).Error
	})
	if err != nil {
		return storageErr("delete wallet", err)
	}
	r.invalidate(ctx, userID)
	return nil
}

// ApplyPair moves amount from debitUser to creditUser inside one database
// transaction. Both rows are locked in LockOrder before anything is read,
// and the marker is checked under those locks.
func (r *WalletRepo) ApplyPair(ctx context.Context, debitUser, creditUser uuid.UUID, amount money.Money, opKey string) (bool, error) {
	if err := CheckAmount(amount); err != nil {
		return false, err
	}
	if debitUser == creditUser {
		return false, fmt.Errorf("%w: cannot move funds within one wallet", model.ErrValidation)
	}
	applied := false
	var moved []*model.Wallet
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		firstID, secondID := LockOrder(debitUser, creditUser)
		w1, err := r.lockWallet(ctx, tx, firstID)
		if err != nil {
			return err
		}
		w2, err := r.lockWallet(ctx, tx, secondID)
		if err != nil {
			return err
		}
		if opKey != "" {
			done, err := r.appliedIn(ctx, tx, opKey)
			if err != nil || done {
				return err
			}
		}
		from, to := w1, w2
		if firstID != debitUser {
			from, to = w2, w1
		}
		if err := r.apply(ctx, tx, from, model.Debit, amount, opKey); err != nil {
			return err
		}
		if err := r.apply(ctx, tx, to, model.Credit, amount, opKey); err != nil {
			return err
		}
		if err := r.mark(ctx, tx, opKey); err != nil {
			return err
		}
		moved = []*model.Wallet{from, to}
		applied = true
		return nil
	})
	if err != nil {
		return false, storageErr("apply pair", err)
	}
	if applied {
		r.publish(ctx, moved...)
	}
	return applied, nil
}

func (r *WalletRepo) Applied(ctx context.Context, opKey string) (bool, error) {
	done, err := r.appliedIn(ctx, r.db, opKey)
	return done, storageErr("check operation", err)
}

func (r *WalletRepo) History(ctx context.Context, userID uuid.UUID, limit int) ([]model.LedgerEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	var entries []model.LedgerEntry
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id desc").
		Limit(limit).
		Find(&entries).Error
	return entries, storageErr("ledger history", err)
}

// mark records opKey in the caller's transaction; empty keys are not recorded.
func (r *WalletRepo) mark(ctx context.Context, tx *gorm.DB, opKey string) error {
	if opKey == "" {
		return nil
	}
	return tx.WithContext(ctx).Create(&model.AppliedOperation{Key: opKey, CreatedAt: r.now()}).Error
}

func (r *WalletRepo) appliedIn(ctx context.Context, tx *gorm.DB, opKey string) (bool, error) {
	var n int64
	err := tx.WithContext(ctx).Model(&model.AppliedOperation{}).Where("op_key = ?", opKey).Count(&n).Error
	return n > 0, err
}

// lockWallet locks the user's wallet row.
func (r *WalletRepo) lockWallet(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*model.Wallet, error) {
	var w model.Wallet
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).First(&w).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: wallet of user %s", model.ErrNotFound, userID)
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// apply changes one balance of a locked wallet and appends the ledger entry.
func (r *WalletRepo) apply(ctx context.Context, tx *gorm.DB, w *model.Wallet, dir model.Direction, amount money.Money, opKey string) error {
	var before, after money.Money
	var err error
	if dir == model.Debit {
		before, after, err = Debited(w, amount)
	} else {
		before, after, err = Credited(w, amount)
	}
	if err != nil {
		return err
	}
	now := r.now()
	w.SetBalance(after)
	if err := r.updateWallet(ctx, tx, w, now); err != nil {
		return err
	}
	entry := &model.LedgerEntry{
		WalletID:      w.ID,
		UserID:        w.UserID,
		Direction:     dir,
		Amount:        amount.Amount(),
		Currency:      amount.Currency(),
		BalanceBefore: before.Amount(),
		BalanceAfter:  after.Amount(),
		OperationKey:  opKey,
		CreatedAt:     now,
	}
	return tx.WithContext(ctx).Create(entry).Error
}

// updateWallet writes balances with optimistic lock on version.
func (r *WalletRepo) updateWallet(ctx context.Context, tx *gorm.DB, w *model.Wallet, now time.Time) error {
	res := tx.WithContext(ctx).
		Model(&model.Wallet{}).
		Where("id = ? AND version = ?", w.ID, w.Version).
		Updates(map[string]interface{}{
			"usd_balance":  w.UsdBalance,
			"usdt_balance": w.UsdtBalance,
			"version":      w.Version + 1,
			"updated_at":   now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: wallet %s changed underneath", model.ErrConflict, w.ID)
	}
	w.Version++
	w.UpdatedAt = now
	return nil
}

// publish writes committed snapshots to the cache. A snapshot that cannot
// be written is dropped instead, so readers fall back to the database.
func (r *WalletRepo) publish(ctx context.Context, ws ...*model.Wallet) {
	if r.cache == nil {
		return
	}
	for _, w := range ws {
		if _, err := r.cache.Set(ctx, w); err != nil {
			r.log.Warnw("balance cache write failed", "user_id", w.UserID, "error", err)
			r.invalidate(ctx, w.UserID)
		}
	}
}

func (r *WalletRepo) invalidate(ctx context.Context, userIDs ...uuid.UUID) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Invalidate(ctx, userIDs...); err != nil {
		r.log.Warnw("balance cache invalidation failed", "users", userIDs, "error", err)
	}
}
