package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/yungbote/marketplace-backend/internal/data/repos"
	types "github.com/yungbote/marketplace-backend/internal/domain"
	"github.com/yungbote/marketplace-backend/internal/observability"
	"github.com/yungbote/marketplace-backend/internal/platform/clock"
	"github.com/yungbote/marketplace-backend/internal/platform/dbctx"
	"github.com/yungbote/marketplace-backend/internal/platform/lock"
	"github.com/yungbote/marketplace-backend/internal/platform/logger"
)

// MaterializeResult reports what one payment event produced.
type MaterializeResult struct {
	CheckoutSessionID string
	Skipped           bool
	Orders            []*types.Order
}

type OrderMaterializer interface {
	HandlePaymentEvent(ctx context.Context, ev *types.PaymentCompleted) (*MaterializeResult, error)
}

type orderMaterializer struct {
	db        *gorm.DB
	log       *logger.Logger
	sessions  repos.CheckoutSessionRepo
	orders    repos.OrderRepo
	vendors   repos.VendorRepo
	cart      repos.CartItemRepo
	events    repos.ProcessedEventRepo
	labels    LabelOrchestrator
	locker    lock.Locker
	notifier  VendorNotifier
	clock     clock.Clock
	newUUIDFn func() string
}

func NewOrderMaterializer(
	db *gorm.DB,
	log *logger.Logger,
	sessions repos.CheckoutSessionRepo,
	orders repos.OrderRepo,
	vendors repos.VendorRepo,
	cart repos.CartItemRepo,
	events repos.ProcessedEventRepo,
	labels LabelOrchestrator,
	locker lock.Locker,
	notifier VendorNotifier,
	clk clock.Clock,
) OrderMaterializer {
	if notifier == nil {
		notifier = NopNotifier()
	}
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &orderMaterializer{
		db:        db,
		log:       log.With("service", "OrderMaterializer"),
		sessions:  sessions,
		orders:    orders,
		vendors:   vendors,
		cart:      cart,
		events:    events,
		labels:    labels,
		locker:    locker,
		notifier:  notifier,
		clock:     clk,
		newUUIDFn: uuid.NewString,
	}
}

// HandlePaymentEvent turns one verified payment-completed event into per-vendor orders.
// A non-nil error means the event must be redelivered; every completed vendor is
// already durable at that point and is skipped on the next attempt.
func (s *orderMaterializer) HandlePaymentEvent(ctx context.Context, ev *types.PaymentCompleted) (res *MaterializeResult, err error) {
	const op = "OrderMaterializer.HandlePaymentEvent"
	if ev == nil || ev.EventID == "" {
		return nil, types.Fail(types.ErrValidation, op, "event id required")
	}
	ctx, span := observability.StartSpan(ctx, "orders.materialize", attribute.String("event_id", ev.EventID))
	defer func() { observability.EndSpan(span, err) }()
	dbc := dbctx.Context{Ctx: ctx}

	status, fresh, err := s.events.Begin(dbc, types.EventSourceStripe, ev.EventID)
	if err != nil {
		return nil, fmt.Errorf("record event %s: %w", ev.EventID, err)
	}
	if status == types.EventDone {
		s.log.Info("payment event already processed", "event_id", ev.EventID)
		return &MaterializeResult{CheckoutSessionID: ev.CheckoutSessionID, Skipped: true}, nil
	}
	if !fresh {
		s.log.Info("resuming payment event", "event_id", ev.EventID)
	}

	sessionID := ev.CheckoutSessionID
	if sessionID == "" {
		sessionID = ev.Metadata[types.MetaCheckoutSessionID]
	}
	summaries, err := types.DecodeSummaries(ev.Metadata)
	if err != nil {
		return nil, err
	}
	sess, err := s.sessions.GetByID(dbc, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load checkout session %s: %w", sessionID, err)
	}
	if sess == nil {
		return nil, types.Failf(types.ErrCheckoutSessionNotFound, op, "checkout session %q not found", sessionID)
	}
	if missing := sess.ShipTo.MissingFields(); len(missing) > 0 && ev.ShipTo != nil {
		sess.ShipTo = *ev.ShipTo
	}
	if sess.BuyerEmail == "" {
		sess.BuyerEmail = ev.BuyerEmail
	}
	var summed types.Cents
	for _, sm := range summaries {
		summed += sm.Total
	}
	if ev.AmountTotal > 0 && ev.AmountTotal != summed {
		s.log.Warn("charged amount differs from vendor totals", "event_id", ev.EventID, "charged_cents", int64(ev.AmountTotal), "vendor_total_cents", int64(summed))
	}

	res = &MaterializeResult{CheckoutSessionID: sess.ID}
	purchasedAt := s.clock.Now()
	var errs []error
	for _, sm := range summaries {
		o, err := s.materializeVendor(ctx, sess, sm, purchasedAt)
		if err != nil {
			s.log.Error("vendor materialization failed", "event_id", ev.EventID, "vendor_id", sm.VendorID, "error", err)
			errs = append(errs, err)
			continue
		}
		if o != nil {
			res.Orders = append(res.Orders, o)
		}
	}
	if len(errs) > 0 {
		return res, errors.Join(errs...)
	}

	if err := s.events.MarkDone(dbc, types.EventSourceStripe, ev.EventID); err != nil {
		return res, fmt.Errorf("mark event %s done: %w", ev.EventID, err)
	}
	s.log.Info("payment event materialized", "event_id", ev.EventID, "checkout_session_id", sess.ID, "orders", len(res.Orders))
	return res, nil
}

func (s *orderMaterializer) materializeVendor(ctx context.Context, sess *types.CheckoutSession, sm types.VendorSummary, purchasedAt time.Time) (*types.Order, error) {
	const op = "OrderMaterializer.materializeVendor"
	dbc := dbctx.Context{Ctx: ctx}

	detail, ok := sess.Vendor(sm.VendorID)
	if !ok {
		return nil, types.Failf(types.ErrValidation, op, "vendor %s is not part of checkout %s", sm.VendorID, sess.ID)
	}
	if detail.Subtotal != sm.Subtotal || detail.ShippingFee != sm.ShippingFee || detail.Total != sm.Total {
		return nil, types.Failf(types.ErrValidation, op, "vendor %s totals disagree with checkout %s", sm.VendorID, sess.ID)
	}

	created, o, err := s.orders.CreateIfAbsent(dbc, types.NewOrderFromDetail(s.newUUIDFn(), sess, detail, purchasedAt))
	if err != nil {
		return nil, fmt.Errorf("create order for vendor %s: %w", sm.VendorID, err)
	}
	if o == nil {
		return nil, fmt.Errorf("order for vendor %s vanished after create", sm.VendorID)
	}

	v, err := s.vendors.GetByID(dbc, o.VendorID)
	if err != nil {
		return nil, fmt.Errorf("load vendor %s: %w", o.VendorID, err)
	}

	if created || o.ShippingStatus == types.ShippingPending {
		if err := s.purchaseLabel(ctx, o, v); err != nil {
			return nil, err
		}
	}

	if _, err := s.cart.RemoveItems(dbc, sess.BuyerID, o.VendorID, o.ProductIDs()); err != nil {
		return nil, fmt.Errorf("clear cart for vendor %s: %w", o.VendorID, err)
	}

	if created && v != nil {
		s.notifier.OrderPlaced(ctx, v, o)
	}
	return o, nil
}

func (s *orderMaterializer) purchaseLabel(ctx context.Context, o *types.Order, v *types.Vendor) error {
	release, err := s.locker.Acquire(ctx, lock.OrderKey(o.ID))
	if err != nil {
		return fmt.Errorf("lock order %s: %w", o.ID, err)
	}
	defer release()

	cur, err := s.orders.GetByID(dbctx.Context{Ctx: ctx}, o.ID)
	if err != nil {
		return fmt.Errorf("reload order %s: %w", o.ID, err)
	}
	if cur != nil {
		*o = *cur
	}
	if o.ShippingStatus != types.ShippingPending {
		return nil
	}
	// failure is recorded on the order; the order itself always stays
	_ = s.labels.PurchaseLabel(ctx, o, v)
	return nil
}
