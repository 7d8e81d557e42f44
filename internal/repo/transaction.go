package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/richardliu001/marketplace-ledger/internal/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// EventStatusChanged is the outbox event type written on every status change.
const EventStatusChanged = "transaction.status_changed"

// TransactionRepo implements TransactionStore on gorm.
type TransactionRepo struct {
	db  *gorm.DB
	log *zap.SugaredLogger
	now func() time.Time
}

var _ TransactionStore = (*TransactionRepo)(nil)

func NewTransactionRepo(db *gorm.DB, logger *zap.SugaredLogger) *TransactionRepo {
	return &TransactionRepo{db: db, log: logger, now: time.Now}
}

// PrepareNew normalises a record for insertion: id, PENDING status, version 0,
// timestamps and item positions. It then validates the invariants.
func PrepareNew(t *model.Transaction, now time.Time) (*model.Transaction, error) {
	rec := t.Clone()
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	rec.Seq = 0
	rec.Status = model.StatusPending
	rec.Version = 0
	rec.CreatedAt = now
	rec.UpdatedAt = now
	for i := range rec.Items {
		rec.Items[i].ID = 0
		rec.Items[i].TransactionID = rec.ID
		rec.Items[i].Position = i
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *TransactionRepo) Create(ctx context.Context, t *model.Transaction) (*model.Transaction, error) {
	rec, err := PrepareNew(t, r.now())
	if err != nil {
		return nil, err
	}
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// the unique id decides between concurrent creators
		res := tx.Omit("Items").
			Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
			Create(rec)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: transaction %s already exists", model.ErrConflict, rec.ID)
		}
		return tx.Create(&rec.Items).Error
	})
	if err != nil {
		return nil, storageErr("create transaction", err)
	}
	return rec.Clone(), nil
}

func (r *TransactionRepo) Get(ctx context.Context, id uuid.UUID) (*model.Transaction, error) {
	return r.get(ctx, r.db, id)
}

func (r *TransactionRepo) get(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*model.Transaction, error) {
	var t model.Transaction
	err := tx.WithContext(ctx).Preload("Items", orderedItems).Where("id = ?", id).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: transaction %s", model.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// List returns matching records in insertion order.
func (r *TransactionRepo) List(ctx context.Context, f model.TransactionFilter) ([]model.Transaction, error) {
	q := r.db.WithContext(ctx).Preload("Items", orderedItems).Order("seq")
	if f.BuyerID != nil {
		q = q.Where("buyer_id = ?", *f.BuyerID)
	}
	if f.SellerID != nil {
		q = q.Where("seller_id = ?", *f.SellerID)
	}
	if f.Status != nil {
		q = q.Where("status = ?", *f.Status)
	}
	var out []model.Transaction
	if err := q.Find(&out).Error; err != nil {
		return nil, storageErr("list transactions", err)
	}
	return out, nil
}

// CompareAndSwap updates status and updated_at under a version check and
// writes the status-change event to the outbox in the same transaction.
func (r *TransactionRepo) CompareAndSwap(ctx context.Context, id uuid.UUID, expectedVersion uint64, next *model.Transaction) (*model.Transaction, error) {
	if _, err := model.ParseStatus(string(next.Status)); err != nil {
		return nil, err
	}
	updatedAt := next.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = r.now()
	}
	var out *model.Transaction
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cur, err := r.get(ctx, tx, id)
		if err != nil {
			return err
		}
		if cur.Version != expectedVersion {
			return fmt.Errorf("%w: transaction %s is at version %d, expected %d", model.ErrConflict, id, cur.Version, expectedVersion)
		}
		res := tx.Model(&model.Transaction{}).
			Where("id = ? AND version = ?", id, expectedVersion).
			Updates(map[string]interface{}{
				"status":     next.Status,
				"version":    expectedVersion + 1,
				"updated_at": updatedAt,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: transaction %s changed underneath", model.ErrConflict, id)
		}
		prev := cur.Status
		cur.Status = next.Status
		cur.Version = expectedVersion + 1
		cur.UpdatedAt = updatedAt
		if prev != cur.Status {
			if err := tx.Create(statusChangedEvent(cur, prev)).Error; err != nil {
				return err
			}
		}
		out = cur
		return nil
	})
	if err != nil {
		return nil, storageErr("update transaction", err)
	}
	return out, nil
}

func statusChangedEvent(t *model.Transaction, from model.Status) *model.OutboxEvent {
	payload, _ := json.Marshal(map[string]interface{}{
		"transaction_id": t.ID,
		"buyer_id":       t.BuyerID,
		"seller_id":      t.SellerID,
		"from":           from,
		"to":             t.Status,
		"total":          t.Total,
		"currency":       t.Currency,
		"version":        t.Version,
	})
	return &model.OutboxEvent{
		Aggregate:   "Transaction",
		AggregateID: t.ID.String(),
		EventType:   EventStatusChanged,
		Payload:     string(payload),
	}
}

func orderedItems(db *gorm.DB) *gorm.DB { return db.Order("position") }
