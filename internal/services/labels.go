package services

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/yungbote/marketplace-backend/internal/data/repos"
	types "github.com/yungbote/marketplace-backend/internal/domain"
	"github.com/yungbote/marketplace-backend/internal/observability"
	"github.com/yungbote/marketplace-backend/internal/platform/dbctx"
	"github.com/yungbote/marketplace-backend/internal/platform/gcp"
	"github.com/yungbote/marketplace-backend/internal/platform/httpx"
	"github.com/yungbote/marketplace-backend/internal/platform/lock"
	"github.com/yungbote/marketplace-backend/internal/platform/logger"
	"github.com/yungbote/marketplace-backend/internal/platform/shippo"
)

type LabelData struct {
	Carrier        string      `json:"carrier"`
	Service        string      `json:"service"`
	TrackingNumber string      `json:"tracking_number"`
	LabelURL       string      `json:"label_url"`
	LabelObjectKey string      `json:"label_object_key,omitempty"`
	TransactionID  string      `json:"transaction_id"`
	ShipmentID     string      `json:"shipment_id"`
	Cost           types.Cents `json:"cost_cents"`
	ETA            *time.Time  `json:"eta,omitempty"`
}

type LabelFailure struct {
	Reason    string `json:"reason"`
	Retryable bool   `json:"retryable"`
	Err       error  `json:"-"`
}

// LabelResult is success-with-label or failure-with-reason; exactly one of Label and
// Failure is set.
type LabelResult struct {
	OK      bool
	Label   *LabelData
	Failure *LabelFailure
}

func labelOK(d *LabelData) LabelResult { return LabelResult{OK: true, Label: d} }

func labelFailed(err error) LabelResult {
	return LabelResult{Failure: &LabelFailure{
		Reason:    err.Error(),
		Retryable: httpx.IsRetryableError(err),
		Err:       err,
	}}
}

type LabelOrchestrator interface {
	// PurchaseLabel buys and records a label for o. The caller must hold the order lock
	// and must have checked that the order still awaits a label.
	PurchaseLabel(ctx context.Context, o *types.Order, v *types.Vendor) LabelResult
	// RetryLabel is the explicit retry entry point for the vendor that owns the order.
	RetryLabel(ctx context.Context, orderID string) (*types.Order, error)
}

type ParcelOptions struct {
	Length        decimal.Decimal
	Width         decimal.Decimal
	Height        decimal.Decimal
	WeightPerItem decimal.Decimal
	MinWeight     decimal.Decimal
}

func DefaultParcelOptions() ParcelOptions {
	return ParcelOptions{
		Length:        decimal.NewFromInt(10),
		Width:         decimal.NewFromInt(8),
		Height:        decimal.NewFromInt(4),
		WeightPerItem: decimal.NewFromInt(1),
		MinWeight:     decimal.RequireFromString("0.1"),
	}
}

type LabelOptions struct {
	Parcel          ParcelOptions
	ProviderTimeout time.Duration
}

type labelOrchestrator struct {
	db       *gorm.DB
	log      *logger.Logger
	orders   repos.OrderRepo
	vendors  repos.VendorRepo
	shipping ShippingProvider
	locker   lock.Locker
	archive  gcp.LabelStore
	notifier VendorNotifier
	opts     LabelOptions
}

func NewLabelOrchestrator(
	db *gorm.DB,
	log *logger.Logger,
	orders repos.OrderRepo,
	vendors repos.VendorRepo,
	shipping ShippingProvider,
	locker lock.Locker,
	archive gcp.LabelStore,
	notifier VendorNotifier,
	opts LabelOptions,
) LabelOrchestrator {
	if opts.Parcel.Length.IsZero() {
		opts.Parcel = DefaultParcelOptions()
	}
	if opts.ProviderTimeout <= 0 {
		opts.ProviderTimeout = 30 * time.Second
	}
	if notifier == nil {
		notifier = NopNotifier()
	}
	return &labelOrchestrator{
		db:       db,
		log:      log.With("service", "LabelOrchestrator"),
		orders:   orders,
		vendors:  vendors,
		shipping: shipping,
		locker:   locker,
		archive:  archive,
		notifier: notifier,
		opts:     opts,
	}
}

func (s *labelOrchestrator) PurchaseLabel(ctx context.Context, o *types.Order, v *types.Vendor) (res LabelResult) {
	ctx, span := observability.StartSpan(ctx, "label.purchase", attribute.String("order_id", o.ID))
	defer func() {
		var err error
		if res.Failure != nil {
			err = res.Failure.Err
		}
		observability.EndSpan(span, err)
	}()

	res = s.buy(ctx, o, v)
	dbc := dbctx.Context{Ctx: ctx}
	if !res.OK {
		s.log.Warn("label purchase failed", "order_id", o.ID, "vendor_id", o.VendorID, "retryable", res.Failure.Retryable, "error", res.Failure.Reason)
		if _, err := s.orders.TransitionShipping(dbc, o.ID, types.ShippingLabelFailed, map[string]interface{}{
			"last_error": res.Failure.Reason,
		}); err != nil {
			s.log.Error("recording label failure failed", "order_id", o.ID, "error", err)
		}
		o.ShippingStatus = types.ShippingLabelFailed
		o.LastError = res.Failure.Reason
		s.notifier.LabelFailed(ctx, v, o, res.Failure.Reason)
		return res
	}

	l := res.Label
	ok, err := s.orders.TransitionShipping(dbc, o.ID, types.ShippingLabelCreated, map[string]interface{}{
		"carrier":                    l.Carrier,
		"service":                    l.Service,
		"tracking_number":            l.TrackingNumber,
		"label_url":                  l.LabelURL,
		"shipping_txn_id":            l.TransactionID,
		"shipment_id":                l.ShipmentID,
		"actual_shipping_cost_cents": l.Cost,
		"estimated_delivery":         l.ETA,
		"last_error":                 "",
	})
	if err != nil || !ok {
		if err == nil {
			err = types.Failf(types.ErrInvalidTransition, "LabelOrchestrator.PurchaseLabel", "order %s left awaiting-label state during purchase", o.ID)
		}
		s.log.Error("persisting purchased label failed", "order_id", o.ID, "transaction_id", l.TransactionID, "error", err)
		return labelFailed(fmt.Errorf("persist label %s: %w", l.TransactionID, err))
	}
	o.ShippingStatus = types.ShippingLabelCreated
	o.Carrier, o.Service, o.TrackingNumber, o.LabelURL = l.Carrier, l.Service, l.TrackingNumber, l.LabelURL
	o.ShippingTxnID, o.ShipmentID, o.ActualShippingCost = l.TransactionID, l.ShipmentID, l.Cost
	o.EstimatedDelivery = l.ETA
	o.LastError = ""

	if key := s.archiveLabel(ctx, o, l.LabelURL); key != "" {
		l.LabelObjectKey = key
		o.LabelObjectKey = key
	}
	s.log.Info("label purchased", "order_id", o.ID, "carrier", l.Carrier, "service", l.Service, "cost_cents", int64(l.Cost))
	return res
}

// buy runs validation, quoting and purchase without touching the store.
func (s *labelOrchestrator) buy(ctx context.Context, o *types.Order, v *types.Vendor) LabelResult {
	const op = "LabelOrchestrator.PurchaseLabel"
	if v == nil {
		return labelFailed(types.Failf(types.ErrVendorNotFound, op, "vendor %s not found", o.VendorID))
	}
	if err := validateAddresses(op, v.ShipFrom, o.ShipTo); err != nil {
		return labelFailed(err)
	}

	pctx, cancel := context.WithTimeout(ctx, s.opts.ProviderTimeout)
	defer cancel()

	shipment, err := s.shipping.CreateShipment(pctx, v.ShipFrom, o.ShipTo, s.parcelFor(o))
	if err != nil {
		return labelFailed(types.NewError(types.CodeExternalService, op, "quote rates: "+err.Error(), err))
	}
	if len(shipment.Rates) == 0 {
		return labelFailed(types.Failf(types.ErrNoRatesAvailable, op, "no rates for order %s", o.ID))
	}
	best := cheapestRate(shipment.Rates)

	label, err := s.shipping.PurchaseLabel(pctx, best.ID)
	if err != nil {
		return labelFailed(types.NewError(types.CodeExternalService, op, "purchase label: "+err.Error(), err))
	}
	return labelOK(&LabelData{
		Carrier:        best.Provider,
		Service:        best.ServiceName,
		TrackingNumber: label.TrackingNumber,
		LabelURL:       label.LabelURL,
		TransactionID:  label.TransactionID,
		ShipmentID:     shipment.ID,
		Cost:           best.Amount,
		ETA:            label.ETA,
	})
}

func validateAddresses(op string, from, to types.Address) error {
	var missing []string
	for _, f := range from.MissingFields() {
		missing = append(missing, "from."+f)
	}
	for _, f := range to.MissingFields() {
		missing = append(missing, "to."+f)
	}
	if len(missing) == 0 {
		return nil
	}
	return types.Failf(types.ErrIncompleteAddress, op, "missing %s", strings.Join(missing, ", "))
}

func (s *labelOrchestrator) parcelFor(o *types.Order) shippo.Parcel {
	p := s.opts.Parcel
	weight := p.WeightPerItem.Mul(decimal.NewFromInt(int64(o.TotalQuantity())))
	if weight.LessThan(p.MinWeight) {
		weight = p.MinWeight
	}
	return shippo.Parcel{Length: p.Length, Width: p.Width, Height: p.Height, Weight: weight}
}

// cheapestRate orders by price, then provider, service name and rate id.
func cheapestRate(rates []shippo.Rate) shippo.Rate {
	sorted := slices.Clone(rates)
	slices.SortFunc(sorted, func(a, b shippo.Rate) int {
		return cmp.Or(
			cmp.Compare(a.Amount, b.Amount),
			cmp.Compare(a.Provider, b.Provider),
			cmp.Compare(a.ServiceName, b.ServiceName),
			cmp.Compare(a.ID, b.ID),
		)
	})
	return sorted[0]
}

func (s *labelOrchestrator) archiveLabel(ctx context.Context, o *types.Order, url string) string {
	if s.archive == nil || strings.TrimSpace(url) == "" {
		return ""
	}
	pctx, cancel := context.WithTimeout(ctx, s.opts.ProviderTimeout)
	defer cancel()
	pdf, err := s.shipping.DownloadLabel(pctx, url)
	if err != nil {
		s.log.Warn("label download failed; archive skipped", "order_id", o.ID, "error", err)
		return ""
	}
	key, err := s.archive.PutLabel(pctx, o.VendorID, o.ID, pdf)
	if err != nil {
		s.log.Warn("label archive failed", "order_id", o.ID, "error", err)
		return ""
	}
	if err := s.orders.UpdateFields(dbctx.Context{Ctx: ctx}, o.ID, map[string]interface{}{"label_object_key": key}); err != nil {
		s.log.Warn("recording label archive key failed", "order_id", o.ID, "key", key, "error", err)
		return ""
	}
	return key
}

func (s *labelOrchestrator) RetryLabel(ctx context.Context, orderID string) (*types.Order, error) {
	const op = "LabelOrchestrator.RetryLabel"
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
	v, err := s.vendors.GetByID(dbc, o.VendorID)
	if err != nil {
		return nil, fmt.Errorf("load vendor %s: %w", o.VendorID, err)
	}
	if err := authorizeVendorOwner(p, v, op); err != nil {
		return nil, err
	}

	release, err := s.locker.Acquire(ctx, lock.OrderKey(o.ID))
	if err != nil {
		return nil, types.Failf(types.ErrServiceUnavailable, op, "order %s is busy: %v", o.ID, err)
	}
	defer release()

	// re-read under the lock; a concurrent retry may have finished
	o, err = s.orders.GetByID(dbc, orderID)
	if err != nil {
		return nil, fmt.Errorf("reload order %s: %w", orderID, err)
	}
	if !o.ShippingStatus.AwaitingLabel() {
		return o, types.Failf(types.ErrLabelAlreadyPurchased, op, "order %s is %s", o.ID, o.ShippingStatus)
	}

	res := s.PurchaseLabel(ctx, o, v)
	if !res.OK {
		return o, res.Failure.Err
	}
	return o, nil
}
