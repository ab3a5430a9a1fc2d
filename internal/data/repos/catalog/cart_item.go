package catalog

import (
	"gorm.io/gorm"

	types "github.com/yungbote/marketplace-backend/internal/domain"
	"github.com/yungbote/marketplace-backend/internal/platform/dbctx"
	"github.com/yungbote/marketplace-backend/internal/platform/logger"
)

type CartItemRepo interface {
	ListByBuyer(dbc dbctx.Context, buyerID string) ([]*types.CartItem, error)
	// RemoveItems deletes the buyer's rows for the given vendor's products and returns
	// how many were removed. Rows for other vendors are never touched.
	RemoveItems(dbc dbctx.Context, buyerID, vendorID string, productIDs []string) (int64, error)
}

type cartItemRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCartItemRepo(db *gorm.DB, baseLog *logger.Logger) CartItemRepo {
	return &cartItemRepo{db: db, log: baseLog.With("repo", "CartItemRepo")}
}

func (r *cartItemRepo) ListByBuyer(dbc dbctx.Context, buyerID string) ([]*types.CartItem, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*types.CartItem
	if buyerID == "" {
		return out, nil
	}
	if err := t.WithContext(dbc.Ctx).
		Where("buyer_id = ?", buyerID).
		Order("created_at ASC, product_id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *cartItemRepo) RemoveItems(dbc dbctx.Context, buyerID, vendorID string, productIDs []string) (int64, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if buyerID == "" || len(productIDs) == 0 {
		return 0, nil
	}
	q := t.WithContext(dbc.Ctx).Where("buyer_id = ? AND product_id IN ?", buyerID, productIDs)
	if vendorID != "" {
		q = q.Where("vendor_id = ?", vendorID)
	}
	res := q.Delete(&types.CartItem{})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
