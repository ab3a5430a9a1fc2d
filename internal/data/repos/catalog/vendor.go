package catalog

import (
	"gorm.io/gorm"

	types "github.com/yungbote/marketplace-backend/internal/domain"
	"github.com/yungbote/marketplace-backend/internal/platform/dbctx"
	"github.com/yungbote/marketplace-backend/internal/platform/logger"
)

type VendorRepo interface {
	GetByID(dbc dbctx.Context, id string) (*types.Vendor, error)
	GetByIDs(dbc dbctx.Context, ids []string) ([]*types.Vendor, error)
	GetByOwner(dbc dbctx.Context, ownerUserID string) (*types.Vendor, error)
}

type vendorRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewVendorRepo(db *gorm.DB, baseLog *logger.Logger) VendorRepo {
	return &vendorRepo{db: db, log: baseLog.With("repo", "VendorRepo")}
}

func (r *vendorRepo) GetByIDs(dbc dbctx.Context, ids []string) ([]*types.Vendor, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*types.Vendor
	if len(ids) == 0 {
		return out, nil
	}
	if err := t.WithContext(dbc.Ctx).Where("id IN ?", ids).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *vendorRepo) GetByID(dbc dbctx.Context, id string) (*types.Vendor, error) {
	if id == "" {
		return nil, nil
	}
	rows, err := r.GetByIDs(dbc, []string{id})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (r *vendorRepo) GetByOwner(dbc dbctx.Context, ownerUserID string) (*types.Vendor, error) {
	if ownerUserID == "" {
		return nil, nil
	}
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var row types.Vendor
	if err := t.WithContext(dbc.Ctx).
		Where("owner_user_id = ?", ownerUserID).
		Order("created_at ASC").
		Limit(1).
		Find(&row).Error; err != nil {
		return nil, err
	}
	if row.ID == "" {
		return nil, nil
	}
	return &row, nil
}
