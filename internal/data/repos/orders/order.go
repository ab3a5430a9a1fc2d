package orders

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/marketplace-backend/internal/domain"
	"github.com/yungbote/marketplace-backend/internal/platform/dbctx"
	"github.com/yungbote/marketplace-backend/internal/platform/logger"
)

type OrderRepo interface {
	// CreateIfAbsent inserts the order unless one already exists for the same
	// (checkout session, vendor) pair, in which case the stored row is returned.
	CreateIfAbsent(dbc dbctx.Context, row *types.Order) (created bool, existing *types.Order, err error)

	GetByID(dbc dbctx.Context, id string) (*types.Order, error)
	GetByCheckoutVendor(dbc dbctx.Context, checkoutSessionID, vendorID string) (*types.Order, error)
	GetByTrackingNumber(dbc dbctx.Context, trackingNumber string) (*types.Order, error)
	ListByVendor(dbc dbctx.Context, vendorID string, limit int) ([]*types.Order, error)
	ListByBuyer(dbc dbctx.Context, buyerID string, limit int) ([]*types.Order, error)
	ListByCheckoutSession(dbc dbctx.Context, checkoutSessionID string) ([]*types.Order, error)

	UpdateFields(dbc dbctx.Context, id string, updates map[string]interface{}) error
	// TransitionShipping moves the order to target only from a status the shipping
	// state machine allows, applying updates in the same statement.
	TransitionShipping(dbc dbctx.Context, id string, target types.ShippingStatus, updates map[string]interface{}) (bool, error)

	PromoteMatured(dbc dbctx.Context, vendorID string, now time.Time) (int64, error)
	PromoteMaturedByID(dbc dbctx.Context, id string, now time.Time) (bool, error)

	ClaimAvailable(dbc dbctx.Context, vendorID, transferID string, now time.Time) (int64, error)
	ListClaimed(dbc dbctx.Context, transferID string) ([]*types.Order, error)
	MarkWithdrawn(dbc dbctx.Context, transferID, processorTransferID string, now time.Time) (int64, error)
	ReleaseClaims(dbc dbctx.Context, transferID string, now time.Time) (int64, error)

	SumByPayoutStatus(dbc dbctx.Context, vendorID string) (map[types.PayoutStatus]types.Cents, error)
}

type orderRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewOrderRepo(db *gorm.DB, baseLog *logger.Logger) OrderRepo {
	return &orderRepo{db: db, log: baseLog.With("repo", "OrderRepo")}
}

func (r *orderRepo) CreateIfAbsent(dbc dbctx.Context, row *types.Order) (bool, *types.Order, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if row == nil {
		return false, nil, nil
	}
	res := t.WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "checkout_session_id"}, {Name: "vendor_id"}},
			DoNothing: true,
		}).
		Create(row)
	if res.Error != nil {
		return false, nil, res.Error
	}
	if res.RowsAffected > 0 {
		return true, row, nil
	}
	existing, err := r.GetByCheckoutVendor(dbc, row.CheckoutSessionID, row.VendorID)
	if err != nil {
		return false, nil, err
	}
	return false, existing, nil
}

func (r *orderRepo) first(dbc dbctx.Context, query string, args ...interface{}) (*types.Order, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var row types.Order
	if err := t.WithContext(dbc.Ctx).Where(query, args...).Limit(1).Find(&row).Error; err != nil {
		return nil, err
	}
	if row.ID == "" {
		return nil, nil
	}
	return &row, nil
}

func (r *orderRepo) GetByID(dbc dbctx.Context, id string) (*types.Order, error) {
	if id == "" {
		return nil, nil
	}
	return r.first(dbc, "id = ?", id)
}

func (r *orderRepo) GetByCheckoutVendor(dbc dbctx.Context, checkoutSessionID, vendorID string) (*types.Order, error) {
	if checkoutSessionID == "" || vendorID == "" {
		return nil, nil
	}
	return r.first(dbc, "checkout_session_id = ? AND vendor_id = ?", checkoutSessionID, vendorID)
}

func (r *orderRepo) GetByTrackingNumber(dbc dbctx.Context, trackingNumber string) (*types.Order, error) {
	if trackingNumber == "" {
		return nil, nil
	}
	return r.first(dbc, "tracking_number = ?", trackingNumber)
}

func (r *orderRepo) list(dbc dbctx.Context, limit int, query string, args ...interface{}) ([]*types.Order, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*types.Order
	q := t.WithContext(dbc.Ctx).Where(query, args...).Order("purchased_at DESC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *orderRepo) ListByVendor(dbc dbctx.Context, vendorID string, limit int) ([]*types.Order, error) {
	if vendorID == "" {
		return []*types.Order{}, nil
	}
	return r.list(dbc, limit, "vendor_id = ?", vendorID)
}

func (r *orderRepo) ListByBuyer(dbc dbctx.Context, buyerID string, limit int) ([]*types.Order, error) {
	if buyerID == "" {
		return []*types.Order{}, nil
	}
	return r.list(dbc, limit, "buyer_id = ?", buyerID)
}

func (r *orderRepo) ListByCheckoutSession(dbc dbctx.Context, checkoutSessionID string) ([]*types.Order, error) {
	if checkoutSessionID == "" {
		return []*types.Order{}, nil
	}
	return r.list(dbc, 0, "checkout_session_id = ?", checkoutSessionID)
}

func (r *orderRepo) UpdateFields(dbc dbctx.Context, id string, updates map[string]interface{}) error {
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
		Model(&types.Order{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *orderRepo) TransitionShipping(dbc dbctx.Context, id string, target types.ShippingStatus, updates map[string]interface{}) (bool, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	from := types.ShippingFromStatuses(target)
	if id == "" || len(from) == 0 {
		return false, nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	updates["shipping_status"] = target
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	res := t.WithContext(dbc.Ctx).
		Model(&types.Order{}).
		Where("id = ? AND shipping_status IN ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *orderRepo) promoteQuery(dbc dbctx.Context, now time.Time) *gorm.DB {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	return t.WithContext(dbc.Ctx).
		Model(&types.Order{}).
		Where("payout_status IN ?", types.PayoutFromStatuses(types.PayoutAvailable)).
		Where("shipping_status = ?", types.ShippingDelivered).
		Where("withdraw_available_at IS NOT NULL AND withdraw_available_at <= ?", now.UTC())
}

func (r *orderRepo) PromoteMatured(dbc dbctx.Context, vendorID string, now time.Time) (int64, error) {
	if vendorID == "" {
		return 0, nil
	}
	res := r.promoteQuery(dbc, now).
		Where("vendor_id = ?", vendorID).
		Updates(map[string]interface{}{
			"payout_status": types.PayoutAvailable,
			"updated_at":    now.UTC(),
		})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *orderRepo) PromoteMaturedByID(dbc dbctx.Context, id string, now time.Time) (bool, error) {
	if id == "" {
		return false, nil
	}
	res := r.promoteQuery(dbc, now).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"payout_status": types.PayoutAvailable,
			"updated_at":    now.UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ClaimAvailable stamps every unclaimed, matured, available order of the vendor with
// transferID in one statement. Two concurrent claims can never share an order.
func (r *orderRepo) ClaimAvailable(dbc dbctx.Context, vendorID, transferID string, now time.Time) (int64, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if vendorID == "" || transferID == "" {
		return 0, nil
	}
	res := t.WithContext(dbc.Ctx).
		Model(&types.Order{}).
		Where("vendor_id = ?", vendorID).
		Where("payout_status = ?", types.PayoutAvailable).
		Where("claimed_by_transfer_id = ?", "").
		Where("withdraw_available_at IS NOT NULL AND withdraw_available_at <= ?", now.UTC()).
		Updates(map[string]interface{}{
			"claimed_by_transfer_id": transferID,
			"updated_at":             now.UTC(),
		})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *orderRepo) ListClaimed(dbc dbctx.Context, transferID string) ([]*types.Order, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*types.Order
	if transferID == "" {
		return out, nil
	}
	if err := t.WithContext(dbc.Ctx).
		Where("claimed_by_transfer_id = ?", transferID).
		Order("purchased_at ASC, id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *orderRepo) MarkWithdrawn(dbc dbctx.Context, transferID, processorTransferID string, now time.Time) (int64, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if transferID == "" {
		return 0, nil
	}
	res := t.WithContext(dbc.Ctx).
		Model(&types.Order{}).
		Where("claimed_by_transfer_id = ?", transferID).
		Where("payout_status IN ?", types.PayoutFromStatuses(types.PayoutWithdrawn)).
		Updates(map[string]interface{}{
			"payout_status":      types.PayoutWithdrawn,
			"payout_transfer_id": processorTransferID,
			"updated_at":         now.UTC(),
		})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *orderRepo) ReleaseClaims(dbc dbctx.Context, transferID string, now time.Time) (int64, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if transferID == "" {
		return 0, nil
	}
	res := t.WithContext(dbc.Ctx).
		Model(&types.Order{}).
		Where("claimed_by_transfer_id = ?", transferID).
		Where("payout_status = ?", types.PayoutAvailable).
		Updates(map[string]interface{}{
			"claimed_by_transfer_id": "",
			"updated_at":             now.UTC(),
		})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

type payoutSumRow struct {
	PayoutStatus types.PayoutStatus
	Total        int64
}

func (r *orderRepo) SumByPayoutStatus(dbc dbctx.Context, vendorID string) (map[types.PayoutStatus]types.Cents, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	out := map[types.PayoutStatus]types.Cents{}
	if vendorID == "" {
		return out, nil
	}
	var rows []payoutSumRow
	if err := t.WithContext(dbc.Ctx).
		Model(&types.Order{}).
		Select("payout_status, COALESCE(SUM(total_amount_cents), 0) AS total").
		Where("vendor_id = ?", vendorID).
		Group("payout_status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.PayoutStatus] = types.Cents(row.Total)
	}
	return out, nil
}
