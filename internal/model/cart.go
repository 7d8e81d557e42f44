package model

import (
	"time"

	"github.com/google/uuid"
)

// CartItem is a product a user intends to buy. One row per (user, product).
type CartItem struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_cart_user_product" json:"user_id"`
	ProductID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_cart_user_product" json:"product_id"`
	Quantity  int64     `gorm:"not null" json:"quantity"`
	AddedAt   time.Time `json:"added_at"`
}

func (CartItem) TableName() string { return "cart_item" }
