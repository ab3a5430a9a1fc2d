package payouts

import (
	"time"

	"gorm.io/gorm"

	types "github.com/yungbote/marketplace-backend/internal/domain"
	"github.com/yungbote/marketplace-backend/internal/platform/dbctx"
	"github.com/yungbote/marketplace-backend/internal/platform/logger"
)

type PayoutTransferRepo interface {
	Create(dbc dbctx.Context, row *types.PayoutTransfer) (*types.PayoutTransfer, error)
	GetByID(dbc dbctx.Context, id string) (*types.PayoutTransfer, error)
	ListPendingByVendor(dbc dbctx.Context, vendorID string) ([]*types.PayoutTransfer, error)
	ListByVendor(dbc dbctx.Context, vendorID string, limit int) ([]*types.PayoutTransfer, error)
	UpdateFields(dbc dbctx.Context, id string, updates map[string]interface{}) error
	// AcquireLease takes a pending intent whose lease is unset or expired at now.
	AcquireLease(dbc dbctx.Context, id string, now, until time.Time) (bool, error)
	// Delete removes an intent that never claimed any order.
	Delete(dbc dbctx.Context, id string) error
}

type payoutTransferRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPayoutTransferRepo(db *gorm.DB, baseLog *logger.Logger) PayoutTransferRepo {
	return &payoutTransferRepo{db: db, log: baseLog.With("repo", "PayoutTransferRepo")}
}

func (r *payoutTransferRepo) Create(dbc dbctx.Context, row *types.PayoutTransfer) (*types.PayoutTransfer, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if row == nil {
		return nil, nil
	}
	if row.Status == "" {
		row.Status = types.TransferPending
	}
	if err := t.WithContext(dbc.Ctx).Create(row).Error; err != nil {
		return nil, err
	}
	return row, nil
}

func (r *payoutTransferRepo) GetByID(dbc dbctx.Context, id string) (*types.PayoutTransfer, error) {
	if id == "" {
		return nil, nil
	}
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var row types.PayoutTransfer
	if err := t.WithContext(dbc.Ctx).Where("id = ?", id).Limit(1).Find(&row).Error; err != nil {
		return nil, err
	}
	if row.ID == "" {
		return nil, nil
	}
	return &row, nil
}

func (r *payoutTransferRepo) ListPendingByVendor(dbc dbctx.Context, vendorID string) ([]*types.PayoutTransfer, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*types.PayoutTransfer
	if vendorID == "" {
		return out, nil
	}
	if err := t.WithContext(dbc.Ctx).
		Where("vendor_id = ? AND status = ?", vendorID, types.TransferPending).
		Order("created_at ASC, id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *payoutTransferRepo) ListByVendor(dbc dbctx.Context, vendorID string, limit int) ([]*types.PayoutTransfer, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*types.PayoutTransfer
	if vendorID == "" {
		return out, nil
	}
	q := t.WithContext(dbc.Ctx).Where("vendor_id = ?", vendorID).Order("created_at DESC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *payoutTransferRepo) UpdateFields(dbc dbctx.Context, id string, updates map[string]interface{}) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if id == "" {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	return t.WithContext(dbc.Ctx).
		Model(&types.PayoutTransfer{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *payoutTransferRepo) AcquireLease(dbc dbctx.Context, id string, now, until time.Time) (bool, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if id == "" {
		return false, nil
	}
	res := t.WithContext(dbc.Ctx).
		Model(&types.PayoutTransfer{}).
		Where("id = ? AND status = ?", id, types.TransferPending).
		Where("leased_until IS NULL OR leased_until <= ?", now.UTC()).
		Updates(map[string]interface{}{
			"leased_until": until.UTC(),
			"updated_at":   now.UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *payoutTransferRepo) Delete(dbc dbctx.Context, id string) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if id == "" {
		return nil
	}
	return t.WithContext(dbc.Ctx).Where("id = ?", id).Delete(&types.PayoutTransfer{}).Error
}
