package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/richardliu001/marketplace-ledger/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CartRepo implements CartStore on gorm.
type CartRepo struct {
	db  *gorm.DB
	now func() time.Time
}

var _ CartStore = (*CartRepo)(nil)

func NewCartRepo(db *gorm.DB) *CartRepo { return &CartRepo{db: db, now: time.Now} }

// Add inserts the item, or increases the quantity when the user already has the product.
func (r *CartRepo) Add(ctx context.Context, item *model.CartItem) (*model.CartItem, error) {
	if item.Quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive", model.ErrValidation)
	}
	row := *item
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	row.AddedAt = r.now()
	var out model.CartItem
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// one statement merges into an existing row, so concurrent first
		// adds of the same product cannot both insert
		err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}, {Name: "product_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"quantity": gorm.Expr("cart_item.quantity + excluded.quantity"),
			}),
		}).Create(&row).Error
		if err != nil {
			return err
		}
		return tx.Where("user_id = ? AND product_id = ?", row.UserID, row.ProductID).First(&out).Error
	})
	if err != nil {
		return nil, storageErr("add cart item", err)
	}
	return &out, nil
}

func (r *CartRepo) Get(ctx context.Context, id uuid.UUID) (*model.CartItem, error) {
	var c model.CartItem
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: cart item %s", model.ErrNotFound, id)
	}
	if err != nil {
		return nil, storageErr("get cart item", err)
	}
	return &c, nil
}

func (r *CartRepo) List(ctx context.Context, userID *uuid.UUID) ([]model.CartItem, error) {
	q := r.db.WithContext(ctx).Order("added_at")
	if userID != nil {
		q = q.Where("user_id = ?", *userID)
	}
	var out []model.CartItem
	err := q.Find(&out).Error
	return out, storageErr("list cart items", err)
}

func (r *CartRepo) UpdateQuantity(ctx context.Context, id uuid.UUID, quantity int64) (*model.CartItem, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive", model.ErrValidation)
	}
	res := r.db.WithContext(ctx).Model(&model.CartItem{}).Where("id = ?", id).Update("quantity", quantity)
	if res.Error != nil {
		return nil, storageErr("update cart item", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("%w: cart item %s", model.ErrNotFound, id)
	}
	return r.Get(ctx, id)
}

func (r *CartRepo) Delete(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.CartItem{})
	if res.Error != nil {
		return storageErr("delete cart item", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: cart item %s", model.ErrNotFound, id)
	}
	return nil
}
