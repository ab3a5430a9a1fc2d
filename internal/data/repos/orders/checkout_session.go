package orders

import (
	"time"

	"gorm.io/gorm"

	types "github.com/yungbote/marketplace-backend/internal/domain"
	"github.com/yungbote/marketplace-backend/internal/platform/dbctx"
	"github.com/yungbote/marketplace-backend/internal/platform/logger"
)

type CheckoutSessionRepo interface {
	Create(dbc dbctx.Context, row *types.CheckoutSession) (*types.CheckoutSession, error)
	GetByID(dbc dbctx.Context, id string) (*types.CheckoutSession, error)
	AttachPaymentSession(dbc dbctx.Context, id, paymentSessionID string) error
	DeleteExpiredBefore(dbc dbctx.Context, before time.Time) (int64, error)
}

type checkoutSessionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCheckoutSessionRepo(db *gorm.DB, baseLog *logger.Logger) CheckoutSessionRepo {
	return &checkoutSessionRepo{db: db, log: baseLog.With("repo", "CheckoutSessionRepo")}
}

func (r *checkoutSessionRepo) Create(dbc dbctx.Context, row *types.CheckoutSession) (*types.CheckoutSession, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if row == nil {
		return nil, nil
	}
	if err := t.WithContext(dbc.Ctx).Create(row).Error; err != nil {
		return nil, err
	}
	return row, nil
}

func (r *checkoutSessionRepo) GetByID(dbc dbctx.Context, id string) (*types.CheckoutSession, error) {
	if id == "" {
		return nil, nil
	}
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var row types.CheckoutSession
	if err := t.WithContext(dbc.Ctx).Where("id = ?", id).Limit(1).Find(&row).Error; err != nil {
		return nil, err
	}
	if row.ID == "" {
		return nil, nil
	}
	return &row, nil
}

func (r *checkoutSessionRepo) AttachPaymentSession(dbc dbctx.Context, id, paymentSessionID string) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if id == "" {
		return nil
	}
	return t.WithContext(dbc.Ctx).
		Model(&types.CheckoutSession{}).
		Where("id = ?", id).
		Update("payment_session_id", paymentSessionID).Error
}

// DeleteExpiredBefore drops sessions that expired before the cutoff. Sessions that
// already produced orders stay: orders reference them for replay checks.
func (r *checkoutSessionRepo) DeleteExpiredBefore(dbc dbctx.Context, before time.Time) (int64, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	res := t.WithContext(dbc.Ctx).
		Where("expires_at < ?", before.UTC()).
		Where("NOT EXISTS (SELECT 1 FROM vendor_order o WHERE o.checkout_session_id = checkout_session.id)").
		Delete(&types.CheckoutSession{})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
