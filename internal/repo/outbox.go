package repo

import (
	"context"
	"time"

	"github.com/richardliu001/marketplace-ledger/internal/model"
	"gorm.io/gorm"
)

// OutboxRepo reads and acknowledges outbox events.
type OutboxRepo struct {
	db *gorm.DB
}

func NewOutboxRepo(db *gorm.DB) *OutboxRepo { return &OutboxRepo{db: db} }

// Poll pulls unprocessed events, oldest first.
func (r *OutboxRepo) Poll(ctx context.Context, limit int) ([]model.OutboxEvent, error) {
	var evts []model.OutboxEvent
	err := r.db.WithContext(ctx).Where("processed = ?", false).Order("id").Limit(limit).Find(&evts).Error
	return evts, storageErr("poll outbox", err)
}

// MarkProcessed sets the processed flag.
func (r *OutboxRepo) MarkProcessed(ctx context.Context, id uint64) error {
	now := time.Now()
	err := r.db.WithContext(ctx).Model(&model.OutboxEvent{}).Where("id = ?", id).
		Updates(map[string]interface{}{"processed": true, "processed_at": &now}).Error
	return storageErr("mark outbox processed", err)
}
