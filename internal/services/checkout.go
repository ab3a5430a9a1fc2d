package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/yungbote/marketplace-backend/internal/data/repos"
	types "github.com/yungbote/marketplace-backend/internal/domain"
	"github.com/yungbote/marketplace-backend/internal/observability"
	"github.com/yungbote/marketplace-backend/internal/platform/clock"
	"github.com/yungbote/marketplace-backend/internal/platform/ctxutil"
	"github.com/yungbote/marketplace-backend/internal/platform/dbctx"
	"github.com/yungbote/marketplace-backend/internal/platform/logger"
	"github.com/yungbote/marketplace-backend/internal/platform/stripepay"
)

type CheckoutLineInput struct {
	ProductID string
	Quantity  int
	UnitPrice types.Cents
}

type CheckoutVendorInput struct {
	VendorID    string
	Items       []CheckoutLineInput
	ShippingFee types.Cents
}

type CheckoutInput struct {
	BuyerID    string
	BuyerEmail string
	ShipTo     types.Address
	Vendors    []CheckoutVendorInput
}

type CheckoutResult struct {
	CheckoutSessionID string      `json:"checkout_session_id"`
	PaymentSessionID  string      `json:"payment_session_id"`
	RedirectURL       string      `json:"redirect_url"`
	GrossTotal        types.Cents `json:"gross_total_cents"`
}

type CheckoutService interface {
	StartCheckout(ctx context.Context, in CheckoutInput) (*CheckoutResult, error)
}

type CheckoutOptions struct {
	MaxParallel int
	SessionTTL  time.Duration
}

type checkoutService struct {
	db        *gorm.DB
	log       *logger.Logger
	vendors   repos.VendorRepo
	products  repos.ProductRepo
	sessions  repos.CheckoutSessionRepo
	processor PaymentProcessor
	shipping  ShippingProvider
	clock     clock.Clock
	opts      CheckoutOptions
}

func NewCheckoutService(
	db *gorm.DB,
	log *logger.Logger,
	vendors repos.VendorRepo,
	products repos.ProductRepo,
	sessions repos.CheckoutSessionRepo,
	processor PaymentProcessor,
	shipping ShippingProvider,
	clk clock.Clock,
	opts CheckoutOptions,
) CheckoutService {
	if opts.MaxParallel <= 0 {
		opts.MaxParallel = 4
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = types.CheckoutSessionTTL
	}
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &checkoutService{
		db:        db,
		log:       log.With("service", "CheckoutService"),
		vendors:   vendors,
		products:  products,
		sessions:  sessions,
		processor: processor,
		shipping:  shipping,
		clock:     clk,
		opts:      opts,
	}
}

func (s *checkoutService) StartCheckout(ctx context.Context, in CheckoutInput) (out *CheckoutResult, err error) {
	const op = "CheckoutService.StartCheckout"
	ctx, span := observability.StartSpan(ctx, "checkout.start", attribute.Int("vendor_groups", len(in.Vendors)))
	defer func() { observability.EndSpan(span, err) }()

	if p := ctxutil.GetPrincipal(ctx); p != nil && p.Role != ctxutil.RoleAdmin && p.UserID != in.BuyerID {
		return nil, types.Fail(types.ErrForbidden, op, "buyers may only check out as themselves")
	}
	if err := validateCheckoutInput(op, in); err != nil {
		return nil, err
	}

	details, err := s.resolveVendors(ctx, in.Vendors)
	if err != nil {
		return nil, err
	}

	// No charge may be attempted when labels could not be bought afterwards.
	if err := s.shipping.Ping(ctx); err != nil {
		s.log.Warn("shipping provider probe failed; aborting checkout", "buyer_id", in.BuyerID, "error", err)
		return nil, types.Failf(types.ErrServiceUnavailable, op, "shipping provider unreachable: %v", err)
	}

	now := s.clock.Now()
	sess := &types.CheckoutSession{
		ID:         uuid.NewString(),
		BuyerID:    in.BuyerID,
		BuyerEmail: strings.TrimSpace(in.BuyerEmail),
		ShipTo:     in.ShipTo,
		Vendors:    details,
		ExpiresAt:  now.Add(s.opts.SessionTTL),
	}
	sess.GrossTotal = sess.SumVendorTotals()

	summaries := make([]types.VendorSummary, 0, len(details))
	var items []types.LineItem
	var shippingTotal types.Cents
	for _, d := range details {
		summaries = append(summaries, d.Summary())
		items = append(items, d.LineItems...)
		shippingTotal += d.ShippingFee
	}
	metadata, err := types.EncodeSummaries(summaries)
	if err != nil {
		return nil, err
	}
	metadata[types.MetaCheckoutSessionID] = sess.ID
	metadata[types.MetaBuyerID] = in.BuyerID

	if _, err := s.sessions.Create(dbctx.Context{Ctx: ctx}, sess); err != nil {
		return nil, fmt.Errorf("persist checkout session: %w", err)
	}

	res, err := s.processor.CreateCheckoutSession(ctx, stripepay.CheckoutRequest{
		CheckoutSessionID: sess.ID,
		BuyerID:           in.BuyerID,
		BuyerEmail:        sess.BuyerEmail,
		LineItems:         items,
		ShippingTotal:     shippingTotal,
		Metadata:          metadata,
		ExpiresAt:         sess.ExpiresAt,
	})
	if err != nil {
		s.log.Error("payment session creation failed", "checkout_session_id", sess.ID, "error", err)
		return nil, types.Failf(types.ErrExternalService, op, "payment session: %v", err)
	}

	if err := s.sessions.AttachPaymentSession(dbctx.Context{Ctx: ctx}, sess.ID, res.PaymentSessionID); err != nil {
		// non-fatal: the completion event carries the session id in metadata
		s.log.Warn("attach payment session failed", "checkout_session_id", sess.ID, "payment_session_id", res.PaymentSessionID, "error", err)
	}

	s.log.Info("checkout started",
		"checkout_session_id", sess.ID,
		"buyer_id", in.BuyerID,
		"vendors", len(details),
		"gross_total_cents", int64(sess.GrossTotal),
	)
	return &CheckoutResult{
		CheckoutSessionID: sess.ID,
		PaymentSessionID:  res.PaymentSessionID,
		RedirectURL:       res.RedirectURL,
		GrossTotal:        sess.GrossTotal,
	}, nil
}

func validateCheckoutInput(op string, in CheckoutInput) error {
	if strings.TrimSpace(in.BuyerID) == "" {
		return types.Fail(types.ErrValidation, op, "buyer id required")
	}
	if missing := in.ShipTo.MissingFields(); len(missing) > 0 {
		return types.Failf(types.ErrValidation, op, "ship-to address missing %s", strings.Join(missing, ", "))
	}
	if len(in.Vendors) == 0 {
		return types.Fail(types.ErrValidation, op, "cart is empty")
	}
	seenVendors := map[string]bool{}
	for i, g := range in.Vendors {
		vid := strings.TrimSpace(g.VendorID)
		if vid == "" {
			return types.Failf(types.ErrValidation, op, "vendors[%d]: vendor id required", i)
		}
		if seenVendors[vid] {
			return types.Failf(types.ErrValidation, op, "vendor %s appears more than once", vid)
		}
		seenVendors[vid] = true
		if g.ShippingFee < 0 {
			return types.Failf(types.ErrValidation, op, "vendor %s: shipping fee must not be negative", vid)
		}
		if len(g.Items) == 0 {
			return types.Failf(types.ErrValidation, op, "vendor %s: no items", vid)
		}
		seenProducts := map[string]bool{}
		for j, it := range g.Items {
			pid := strings.TrimSpace(it.ProductID)
			if pid == "" {
				return types.Failf(types.ErrValidation, op, "vendor %s item %d: product id required", vid, j)
			}
			if seenProducts[pid] {
				return types.Failf(types.ErrValidation, op, "vendor %s: product %s listed twice", vid, pid)
			}
			seenProducts[pid] = true
			if it.Quantity <= 0 {
				return types.Failf(types.ErrValidation, op, "vendor %s product %s: quantity must be positive", vid, pid)
			}
			if it.UnitPrice < 0 {
				return types.Failf(types.ErrValidation, op, "vendor %s product %s: price must not be negative", vid, pid)
			}
		}
	}
	return nil
}

// resolveVendors validates every group concurrently. The reported error is the first
// failing group in input order, independent of scheduling.
func (s *checkoutService) resolveVendors(ctx context.Context, groups []CheckoutVendorInput) ([]types.VendorDetail, error) {
	details := make([]types.VendorDetail, len(groups))
	errs := make([]error, len(groups))

	var g errgroup.Group
	g.SetLimit(s.opts.MaxParallel)
	for i := range groups {
		g.Go(func() error {
			d, err := s.resolveVendor(ctx, groups[i])
			details[i], errs[i] = d, err
			return nil
		})
	}
	_ = g.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return details, nil
}

func (s *checkoutService) resolveVendor(ctx context.Context, g CheckoutVendorInput) (types.VendorDetail, error) {
	const op = "CheckoutService.resolveVendor"
	dbc := dbctx.Context{Ctx: ctx}
	vendorID := strings.TrimSpace(g.VendorID)

	v, err := s.vendors.GetByID(dbc, vendorID)
	if err != nil {
		return types.VendorDetail{}, fmt.Errorf("load vendor %s: %w", vendorID, err)
	}
	if v == nil {
		return types.VendorDetail{}, types.Failf(types.ErrVendorNotFound, op, "vendor %s not found", vendorID)
	}
	if !v.Onboarded() {
		return types.VendorDetail{}, types.Failf(types.ErrVendorNotOnboarded, op, "vendor %s has no payment account", vendorID)
	}

	ids := make([]string, 0, len(g.Items))
	for _, it := range g.Items {
		ids = append(ids, strings.TrimSpace(it.ProductID))
	}
	rows, err := s.products.GetByIDs(dbc, ids)
	if err != nil {
		return types.VendorDetail{}, fmt.Errorf("load products for vendor %s: %w", vendorID, err)
	}
	byID := make(map[string]*types.Product, len(rows))
	for _, p := range rows {
		byID[p.ID] = p
	}

	detail := types.VendorDetail{
		VendorID:         v.ID,
		VendorName:       v.DisplayName,
		PaymentAccountID: v.PaymentAccountID,
		LineItems:        make([]types.LineItem, 0, len(g.Items)),
		ShippingFee:      g.ShippingFee,
	}
	for _, it := range g.Items {
		pid := strings.TrimSpace(it.ProductID)
		p := byID[pid]
		if p == nil || p.Draft || p.VendorID != v.ID {
			return types.VendorDetail{}, types.Failf(types.ErrProductUnavailable, op, "product %s is not available from vendor %s", pid, vendorID)
		}
		if p.TrackInventory && p.StockQuantity < it.Quantity {
			return types.VendorDetail{}, types.Failf(types.ErrInsufficientStock, op, "product %s: requested %d, in stock %d", pid, it.Quantity, p.StockQuantity)
		}
		if types.AbsDiff(it.UnitPrice, p.Price) > 1 {
			return types.VendorDetail{}, types.Failf(types.ErrPriceMismatch, op, "product %s: price is now %s", pid, p.Price.String())
		}
		li := types.LineItem{ProductID: p.ID, Name: p.Name, Quantity: it.Quantity, UnitPrice: p.Price}
		detail.LineItems = append(detail.LineItems, li)
		detail.Subtotal += li.Amount()
	}
	detail.Total = detail.Subtotal + detail.ShippingFee
	return detail, nil
}
