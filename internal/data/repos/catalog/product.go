package catalog

import (
	"gorm.io/gorm"

	types "github.com/yungbote/marketplace-backend/internal/domain"
	"github.com/yungbote/marketplace-backend/internal/platform/dbctx"
	"github.com/yungbote/marketplace-backend/internal/platform/logger"
)

type ProductRepo interface {
	GetByID(dbc dbctx.Context, id string) (*types.Product, error)
	GetByIDs(dbc dbctx.Context, ids []string) ([]*types.Product, error)
}

type productRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewProductRepo(db *gorm.DB, baseLog *logger.Logger) ProductRepo {
	return &productRepo{db: db, log: baseLog.With("repo", "ProductRepo")}
}

func (r *productRepo) GetByIDs(dbc dbctx.Context, ids []string) ([]*types.Product, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*types.Product
	if len(ids) == 0 {
		return out, nil
	}
	if err := t.WithContext(dbc.Ctx).Where("id IN ?", ids).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *productRepo) GetByID(dbc dbctx.Context, id string) (*types.Product, error) {
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
