package services

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/marketplace-backend/internal/data/repos"
	types "github.com/yungbote/marketplace-backend/internal/domain"
	"github.com/yungbote/marketplace-backend/internal/platform/ctxutil"
	"github.com/yungbote/marketplace-backend/internal/platform/dbctx"
	"github.com/yungbote/marketplace-backend/internal/platform/logger"
)

type VendorOrders struct {
	VendorID string                             `json:"vendor_id"`
	Orders   []*types.Order                     `json:"orders"`
	Balances map[types.PayoutStatus]types.Cents `json:"balances_cents"`
}

type OrderQueryService interface {
	GetOrder(ctx context.Context, orderID string) (*types.Order, error)
	ListVendorOrders(ctx context.Context, vendorID string, limit int) (*VendorOrders, error)
}

type orderQueryService struct {
	db      *gorm.DB
	log     *logger.Logger
	orders  repos.OrderRepo
	vendors repos.VendorRepo
}

func NewOrderQueryService(db *gorm.DB, log *logger.Logger, orders repos.OrderRepo, vendors repos.VendorRepo) OrderQueryService {
	return &orderQueryService{
		db:      db,
		log:     log.With("service", "OrderQueryService"),
		orders:  orders,
		vendors: vendors,
	}
}

// GetOrder returns the order to its buyer or to the owner of its vendor.
func (s *orderQueryService) GetOrder(ctx context.Context, orderID string) (*types.Order, error) {
	const op = "OrderQueryService.GetOrder"
	p, err := requirePrincipal(ctx, op)
	if err != nil {
		return nil, err
	}
	dbc := dbctx.Context{Ctx: ctx}
	o, err := s.orders.GetByID(dbc, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order %s: %w", orderID, err)
	}
	if o == nil {
		return nil, types.Failf(types.ErrOrderNotFound, op, "order %s not found", orderID)
	}
	if p.Role == ctxutil.RoleAdmin || o.BuyerID == p.UserID {
		return o, nil
	}
	v, err := s.vendors.GetByID(dbc, o.VendorID)
	if err != nil {
		return nil, fmt.Errorf("load vendor %s: %w", o.VendorID, err)
	}
	if err := authorizeVendorOwner(p, v, op); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *orderQueryService) ListVendorOrders(ctx context.Context, vendorID string, limit int) (*VendorOrders, error) {
	const op = "OrderQueryService.ListVendorOrders"
	p, err := requirePrincipal(ctx, op)
	if err != nil {
		return nil, err
	}
	dbc := dbctx.Context{Ctx: ctx}
	v, err := s.vendors.GetByID(dbc, vendorID)
	if err != nil {
		return nil, fmt.Errorf("load vendor %s: %w", vendorID, err)
	}
	if v == nil {
		return nil, types.Failf(types.ErrVendorNotFound, op, "vendor %s not found", vendorID)
	}
	if err := authorizeVendorOwner(p, v, op); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	limit = min(limit, 200)
	rows, err := s.orders.ListByVendor(dbc, v.ID, limit)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	balances, err := s.orders.SumByPayoutStatus(dbc, v.ID)
	if err != nil {
		return nil, fmt.Errorf("sum balances: %w", err)
	}
	return &VendorOrders{VendorID: v.ID, Orders: rows, Balances: balances}, nil
}
