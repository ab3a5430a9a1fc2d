package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/marketplace-backend/internal/data/repos"
	"github.com/yungbote/marketplace-backend/internal/data/repos/testutil"
	types "github.com/yungbote/marketplace-backend/internal/domain"
	"github.com/yungbote/marketplace-backend/internal/platform/clock"
	"github.com/yungbote/marketplace-backend/internal/platform/ctxutil"
	"github.com/yungbote/marketplace-backend/internal/platform/dbctx"
	"github.com/yungbote/marketplace-backend/internal/platform/lock"
	"github.com/yungbote/marketplace-backend/internal/platform/logger"
	"github.com/yungbote/marketplace-backend/internal/platform/shippo"
	"github.com/yungbote/marketplace-backend/internal/platform/stripepay"
)

var testNow = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

type fakeShipping struct {
	mu          sync.Mutex
	pingErr     error
	rates       []shippo.Rate
	shipmentErr error
	labelErr    error
	shipments   int
	purchases   int
	lastParcel  shippo.Parcel
	lastRateID  string
}

func newFakeShipping() *fakeShipping {
	return &fakeShipping{rates: []shippo.Rate{
		{ID: "rate_ups", Provider: "UPS", ServiceName: "Ground", Amount: 899},
		{ID: "rate_usps", Provider: "USPS", ServiceName: "Priority", Amount: 745},
	}}
}

func (f *fakeShipping) Ping(context.Context) error { return f.pingErr }

func (f *fakeShipping) CreateShipment(_ context.Context, _, _ types.Address, parcel shippo.Parcel) (*shippo.Shipment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shipments++
	f.lastParcel = parcel
	if f.shipmentErr != nil {
		return nil, f.shipmentErr
	}
	return &shippo.Shipment{ID: fmt.Sprintf("shp_%d", f.shipments), Rates: append([]shippo.Rate(nil), f.rates...)}, nil
}

func (f *fakeShipping) PurchaseLabel(_ context.Context, rateID string) (*shippo.Label, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastRateID = rateID
	if f.labelErr != nil {
		return nil, f.labelErr
	}
	f.purchases++
	n := f.purchases
	return &shippo.Label{
		TransactionID:  fmt.Sprintf("txn_%d", n),
		RateID:         rateID,
		TrackingNumber: fmt.Sprintf("TRK%d", n),
		LabelURL:       fmt.Sprintf("https://labels.example/%d.pdf", n),
	}, nil
}

func (f *fakeShipping) DownloadLabel(context.Context, string) ([]byte, error) {
	return []byte("%PDF-1.4"), nil
}

func (f *fakeShipping) counts() (shipments, purchases int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.shipments, f.purchases
}

type fakeProcessor struct {
	mu            sync.Mutex
	checkoutErr   error
	checkoutReqs  []stripepay.CheckoutRequest
	transferErrs  []error
	transferReqs  []stripepay.TransferRequest
	transferDelay time.Duration
	byKey         map[string]string
}

func newFakeProcessor() *fakeProcessor {
	return &fakeProcessor{byKey: map[string]string{}}
}

func (f *fakeProcessor) CreateCheckoutSession(_ context.Context, req stripepay.CheckoutRequest) (*stripepay.CheckoutResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checkoutReqs = append(f.checkoutReqs, req)
	if f.checkoutErr != nil {
		return nil, f.checkoutErr
	}
	return &stripepay.CheckoutResult{
		PaymentSessionID: "cs_test_" + req.CheckoutSessionID,
		RedirectURL:      "https://checkout.example/" + req.CheckoutSessionID,
	}, nil
}

func (f *fakeProcessor) CreateTransfer(_ context.Context, req stripepay.TransferRequest) (string, error) {
	if f.transferDelay > 0 {
		time.Sleep(f.transferDelay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transferReqs = append(f.transferReqs, req)
	if len(f.transferErrs) > 0 {
		err := f.transferErrs[0]
		f.transferErrs = f.transferErrs[1:]
		if err != nil {
			return "", err
		}
	}
	if id, ok := f.byKey[req.IdempotencyKey]; ok {
		return id, nil
	}
	id := fmt.Sprintf("tr_%d", len(f.byKey)+1)
	f.byKey[req.IdempotencyKey] = id
	return id, nil
}

func (f *fakeProcessor) transfers() []stripepay.TransferRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]stripepay.TransferRequest(nil), f.transferReqs...)
}

type scheduledRelease struct {
	OrderID   string
	ReleaseAt time.Time
}

type fakeScheduler struct {
	mu    sync.Mutex
	calls []scheduledRelease
}

func (f *fakeScheduler) ScheduleRelease(_ context.Context, orderID string, releaseAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, scheduledRelease{OrderID: orderID, ReleaseAt: releaseAt})
	return nil
}

type fakeNotifier struct {
	mu           sync.Mutex
	placed       []string
	labelFailure []string
}

func (f *fakeNotifier) OrderPlaced(_ context.Context, _ *types.Vendor, o *types.Order) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.placed = append(f.placed, o.ID)
}

func (f *fakeNotifier) LabelFailed(_ context.Context, _ *types.Vendor, o *types.Order, _ string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.labelFailure = append(f.labelFailure, o.ID)
}

// nopLocker never blocks, leaving only the store's conditional writes to exclude.
type nopLocker struct{}

func (nopLocker) Acquire(context.Context, string) (func(), error) { return func() {}, nil }

type harness struct {
	db        *gorm.DB
	log       *logger.Logger
	repos     repos.Repos
	clock     *clock.Fixed
	shipping  *fakeShipping
	processor *fakeProcessor
	scheduler *fakeScheduler
	notifier  *fakeNotifier
	locker    lock.Locker

	checkout     CheckoutService
	labels       LabelOrchestrator
	materializer OrderMaterializer
	tracking     TrackingService
	payouts      PayoutService
	queries      OrderQueryService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWithLocker(t, lock.NewLocal())
}

func newHarnessWithLocker(t *testing.T, locker lock.Locker) *harness {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	h := &harness{
		db:        db,
		log:       log,
		repos:     repos.NewRepos(db, log),
		clock:     clock.NewFixed(testNow),
		shipping:  newFakeShipping(),
		processor: newFakeProcessor(),
		scheduler: &fakeScheduler{},
		notifier:  &fakeNotifier{},
		locker:    locker,
	}
	r := h.repos
	h.checkout = NewCheckoutService(db, log, r.Vendors, r.Products, r.CheckoutSessions, h.processor, h.shipping, h.clock, CheckoutOptions{MaxParallel: 2})
	h.labels = NewLabelOrchestrator(db, log, r.Orders, r.Vendors, h.shipping, locker, nil, h.notifier, LabelOptions{})
	h.materializer = NewOrderMaterializer(db, log, r.CheckoutSessions, r.Orders, r.Vendors, r.CartItems, r.ProcessedEvents, h.labels, locker, h.notifier, h.clock)
	h.tracking = NewTrackingService(db, log, r.Orders, r.ProcessedEvents, locker, h.scheduler, h.clock, types.PayoutWindow)
	h.payouts = NewPayoutService(db, log, r.Vendors, r.Orders, r.PayoutTransfers, h.processor, locker, h.clock)
	h.queries = NewOrderQueryService(db, log, r.Orders, r.Vendors)
	return h
}

func asUser(userID, role string) context.Context {
	return ctxutil.WithPrincipal(context.Background(), &ctxutil.Principal{UserID: userID, Role: role})
}

func (h *harness) order(t *testing.T, id string) *types.Order {
	t.Helper()
	o, err := h.repos.Orders.GetByID(dbctx.From(context.Background()), id)
	if err != nil {
		t.Fatalf("GetByID(%s): %v", id, err)
	}
	if o == nil {
		t.Fatalf("order %s missing", id)
	}
	return o
}
