package model

import "time"

type OutboxEvent struct {
	ID          uint64    `gorm:"primaryKey"`
	Aggregate   string    `gorm:"size:64;not null"`
	AggregateID string    `gorm:"size:64;not null"`
	EventType   string    `gorm:"size:64;not null"`
	Payload     string    `gorm:"type:text;not null"`
	CreatedAt   time.Time `gorm:"autoCreateTime"`
	Processed   bool      `gorm:"not null;default:false;index"`
	ProcessedAt *time.Time
}

func (OutboxEvent) TableName() string { return "event_outbox" }

// All lists every table for auto-migration.
func All() []interface{} {
	return []interface{}{
		&Wallet{}, &LedgerEntry{}, &AppliedOperation{},
		&Transaction{}, &TransactionItem{}, &CartItem{}, &OutboxEvent{},
	}
}
