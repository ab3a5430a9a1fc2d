package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/yungbote/marketplace-backend/internal/data/repos/testutil"
	types "github.com/yungbote/marketplace-backend/internal/domain"
	"github.com/yungbote/marketplace-backend/internal/platform/ctxutil"
	"github.com/yungbote/marketplace-backend/internal/platform/dbctx"
	"github.com/yungbote/marketplace-backend/internal/platform/stripepay"
)

func seedPayoutOrder(t *testing.T, h *harness, vendorID string, total types.Cents, payout types.PayoutStatus, availableAt time.Time) *types.Order {
	t.Helper()
	delivered := availableAt.Add(-types.PayoutWindow)
	return testutil.SeedOrder(t, h.db, &types.Order{
		VendorID:            vendorID,
		BuyerID:             "buyer-1",
		TotalAmount:         total,
		ShipTo:              testutil.ShipTo(),
		PurchasedAt:         delivered.Add(-72 * time.Hour),
		ShippingStatus:      types.ShippingDelivered,
		PayoutStatus:        payout,
		DeliveredAt:         &delivered,
		WithdrawAvailableAt: &availableAt,
	})
}

func vendorCtx(v *types.Vendor) context.Context {
	return asUser(v.OwnerUserID, ctxutil.RoleVendor)
}

func TestWithdrawSumsEligibleOrders(t *testing.T) {
	h := newHarness(t)
	v := testutil.SeedVendor(t, h.db, "owner-a", "acct_a")
	o1 := seedPayoutOrder(t, h, v.ID, 3000, types.PayoutAvailable, testNow.Add(-48*time.Hour))
	o2 := seedPayoutOrder(t, h, v.ID, 1500, types.PayoutAvailable, testNow.Add(-time.Hour))
	future := seedPayoutOrder(t, h, v.ID, 9900, types.PayoutPending, testNow.Add(24*time.Hour))
	done := seedPayoutOrder(t, h, v.ID, 700, types.PayoutWithdrawn, testNow.Add(-90*24*time.Hour))

	res, err := h.payouts.Withdraw(vendorCtx(v), v.ID)
	if err != nil {
		t.Fatalf("Withdraw: %v", err)
	}
	if res.Amount != 4500 || len(res.OrderIDs) != 2 {
		t.Fatalf("want 4500 over 2 orders got %d over %d", res.Amount, len(res.OrderIDs))
	}

	reqs := h.processor.transfers()
	if len(reqs) != 1 {
		t.Fatalf("transfers: want=1 got=%d", len(reqs))
	}
	if reqs[0].Amount != 4500 || reqs[0].PaymentAccountID != "acct_a" || reqs[0].IdempotencyKey == "" {
		t.Fatalf("unexpected transfer request: %+v", reqs[0])
	}

	for _, id := range []string{o1.ID, o2.ID} {
		got := h.order(t, id)
		if got.PayoutStatus != types.PayoutWithdrawn || got.PayoutTransferID != res.TransferID {
			t.Fatalf("order %s: want withdrawn via %s got %s via %q", id, res.TransferID, got.PayoutStatus, got.PayoutTransferID)
		}
	}
	if got := h.order(t, future.ID); got.PayoutStatus != types.PayoutPending {
		t.Fatalf("future order touched: %s", got.PayoutStatus)
	}
	if got := h.order(t, done.ID); got.PayoutTransferID != "" {
		t.Fatalf("withdrawn order re-paid: %q", got.PayoutTransferID)
	}

	intent, err := h.repos.PayoutTransfers.GetByID(dbctx.From(context.Background()), reqs[0].IdempotencyKey)
	if err != nil || intent == nil {
		t.Fatalf("intent missing: %v", err)
	}
	if intent.Status != types.TransferSucceeded || intent.ProcessorTransferID != res.TransferID || intent.Amount != 4500 {
		t.Fatalf("unexpected intent: %+v", intent)
	}

	_, err = h.payouts.Withdraw(vendorCtx(v), v.ID)
	if !errors.Is(err, types.ErrNoEligibleOrders) {
		t.Fatalf("second withdrawal: want ErrNoEligibleOrders got %v", err)
	}
}

func TestWithdrawNothingEligible(t *testing.T) {
	h := newHarness(t)
	v := testutil.SeedVendor(t, h.db, "owner-a", "acct_a")
	seedPayoutOrder(t, h, v.ID, 1000, types.PayoutPending, testNow.Add(time.Hour))

	_, err := h.payouts.Withdraw(vendorCtx(v), v.ID)
	if !errors.Is(err, types.ErrNoEligibleOrders) {
		t.Fatalf("want ErrNoEligibleOrders got %v", err)
	}
	var n int64
	if err := h.db.Model(&types.PayoutTransfer{}).Count(&n).Error; err != nil {
		t.Fatalf("count intents: %v", err)
	}
	if n != 0 {
		t.Fatalf("empty intent must be deleted, found %d", n)
	}
	if len(h.processor.transfers()) != 0 {
		t.Fatalf("processor must not be called")
	}
}

func TestWithdrawPromotesMaturedOrdersOnDemand(t *testing.T) {
	h := newHarness(t)
	v := testutil.SeedVendor(t, h.db, "owner-a", "acct_a")
	o := seedPayoutOrder(t, h, v.ID, 2200, types.PayoutPending, testNow.Add(-time.Minute))

	res, err := h.payouts.Withdraw(vendorCtx(v), v.ID)
	if err != nil {
		t.Fatalf("Withdraw: %v", err)
	}
	if res.Amount != 2200 {
		t.Fatalf("amount: want=2200 got=%d", res.Amount)
	}
	if got := h.order(t, o.ID); got.PayoutStatus != types.PayoutWithdrawn {
		t.Fatalf("payout: want=withdrawn got=%s", got.PayoutStatus)
	}
}

func TestWithdrawRequiresConnectedAccount(t *testing.T) {
	h := newHarness(t)
	v := testutil.SeedVendor(t, h.db, "owner-a", "")
	seedPayoutOrder(t, h, v.ID, 1000, types.PayoutAvailable, testNow.Add(-time.Hour))

	_, err := h.payouts.Withdraw(vendorCtx(v), v.ID)
	if !errors.Is(err, types.ErrVendorNotConnected) {
		t.Fatalf("want ErrVendorNotConnected got %v", err)
	}
}

func TestWithdrawAuthorization(t *testing.T) {
	h := newHarness(t)
	v := testutil.SeedVendor(t, h.db, "owner-a", "acct_a")
	seedPayoutOrder(t, h, v.ID, 1000, types.PayoutAvailable, testNow.Add(-time.Hour))

	if _, err := h.payouts.Withdraw(asUser("owner-b", ctxutil.RoleVendor), v.ID); !errors.Is(err, types.ErrForbidden) {
		t.Fatalf("other vendor: want ErrForbidden got %v", err)
	}
	if _, err := h.payouts.Withdraw(context.Background(), v.ID); !errors.Is(err, types.ErrForbidden) {
		t.Fatalf("anonymous: want ErrForbidden got %v", err)
	}
	if _, err := h.payouts.Withdraw(vendorCtx(v), "missing"); !errors.Is(err, types.ErrVendorNotFound) {
		t.Fatalf("missing vendor: want ErrVendorNotFound got %v", err)
	}
	if len(h.processor.transfers()) != 0 {
		t.Fatalf("processor must not be called")
	}
}

func runConcurrentWithdrawals(t *testing.T, h *harness, v *types.Vendor, n int) []*types.PayoutResult {
	t.Helper()
	var wg sync.WaitGroup
	results := make([]*types.PayoutResult, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = h.payouts.Withdraw(vendorCtx(v), v.ID)
		}(i)
	}
	wg.Wait()

	var ok []*types.PayoutResult
	for i, err := range errs {
		if err != nil {
			if !errors.Is(err, types.ErrNoEligibleOrders) {
				t.Fatalf("withdrawal %d: %v", i, err)
			}
			continue
		}
		ok = append(ok, results[i])
	}
	return ok
}

func assertSinglePayout(t *testing.T, h *harness, vendorID string, ok []*types.PayoutResult, want types.Cents) {
	t.Helper()
	if len(ok) == 0 {
		t.Fatalf("no withdrawal succeeded")
	}
	for _, r := range ok {
		if r.TransferID != ok[0].TransferID || r.Amount != want {
			t.Fatalf("results disagree: %+v vs %+v", r, ok[0])
		}
	}
	keys := map[string]bool{}
	for _, req := range h.processor.transfers() {
		keys[req.IdempotencyKey] = true
	}
	if len(keys) != 1 {
		t.Fatalf("want one idempotency key, got %d", len(keys))
	}
	sums, err := h.repos.Orders.SumByPayoutStatus(dbctx.From(context.Background()), vendorID)
	if err != nil {
		t.Fatalf("SumByPayoutStatus: %v", err)
	}
	if sums[types.PayoutWithdrawn] != want || sums[types.PayoutAvailable] != 0 {
		t.Fatalf("balances: withdrawn=%d available=%d", sums[types.PayoutWithdrawn], sums[types.PayoutAvailable])
	}
}

func TestConcurrentWithdrawalsPayOnce(t *testing.T) {
	h := newHarness(t)
	h.processor.transferDelay = 20 * time.Millisecond
	v := testutil.SeedVendor(t, h.db, "owner-a", "acct_a")
	seedPayoutOrder(t, h, v.ID, 3000, types.PayoutAvailable, testNow.Add(-time.Hour))
	seedPayoutOrder(t, h, v.ID, 1200, types.PayoutAvailable, testNow.Add(-time.Hour))

	ok := runConcurrentWithdrawals(t, h, v, 8)
	if len(ok) != 1 {
		t.Fatalf("with the vendor lock exactly one withdrawal succeeds, got %d", len(ok))
	}
	assertSinglePayout(t, h, v.ID, ok, 4200)
	if n := len(h.processor.transfers()); n != 1 {
		t.Fatalf("transfers: want=1 got=%d", n)
	}
}

func TestConcurrentWithdrawalsWithoutLockStillPayOnce(t *testing.T) {
	h := newHarnessWithLocker(t, nopLocker{})
	h.processor.transferDelay = 20 * time.Millisecond
	v := testutil.SeedVendor(t, h.db, "owner-a", "acct_a")
	seedPayoutOrder(t, h, v.ID, 3000, types.PayoutAvailable, testNow.Add(-time.Hour))
	seedPayoutOrder(t, h, v.ID, 1200, types.PayoutAvailable, testNow.Add(-time.Hour))

	ok := runConcurrentWithdrawals(t, h, v, 8)
	assertSinglePayout(t, h, v.ID, ok, 4200)
}

func TestWithdrawRejectedTransferReleasesClaims(t *testing.T) {
	h := newHarness(t)
	v := testutil.SeedVendor(t, h.db, "owner-a", "acct_a")
	o := seedPayoutOrder(t, h, v.ID, 3000, types.PayoutAvailable, testNow.Add(-time.Hour))
	h.processor.transferErrs = []error{&stripepay.ProcessorError{Op: "transfer", Status: 400, Err: errors.New("insufficient platform balance")}}

	_, err := h.payouts.Withdraw(vendorCtx(v), v.ID)
	if !types.IsCode(err, types.CodeExternalService) {
		t.Fatalf("want external service error got %v", err)
	}
	got := h.order(t, o.ID)
	if got.PayoutStatus != types.PayoutAvailable || got.ClaimedByTransferID != "" {
		t.Fatalf("claim not released: status=%s claim=%q", got.PayoutStatus, got.ClaimedByTransferID)
	}
	key := h.processor.transfers()[0].IdempotencyKey
	intent, err := h.repos.PayoutTransfers.GetByID(dbctx.From(context.Background()), key)
	if err != nil || intent == nil {
		t.Fatalf("intent missing: %v", err)
	}
	if intent.Status != types.TransferFailed || intent.LastError == "" {
		t.Fatalf("intent: want failed with error got %s %q", intent.Status, intent.LastError)
	}

	res, err := h.payouts.Withdraw(vendorCtx(v), v.ID)
	if err != nil {
		t.Fatalf("retry after rejection: %v", err)
	}
	if res.Amount != 3000 {
		t.Fatalf("amount: want=3000 got=%d", res.Amount)
	}
	reqs := h.processor.transfers()
	if reqs[1].IdempotencyKey == key {
		t.Fatalf("a rejected intent must not be reused")
	}
}

func TestWithdrawUnknownOutcomeResumesWithSameKey(t *testing.T) {
	h := newHarness(t)
	v := testutil.SeedVendor(t, h.db, "owner-a", "acct_a")
	o := seedPayoutOrder(t, h, v.ID, 3000, types.PayoutAvailable, testNow.Add(-time.Hour))
	h.processor.transferErrs = []error{&stripepay.ProcessorError{Op: "transfer", Status: 503, Err: errors.New("upstream unavailable")}}

	if _, err := h.payouts.Withdraw(vendorCtx(v), v.ID); err == nil {
		t.Fatalf("expected error on unknown outcome")
	}
	key := h.processor.transfers()[0].IdempotencyKey
	got := h.order(t, o.ID)
	if got.PayoutStatus != types.PayoutAvailable || got.ClaimedByTransferID != key {
		t.Fatalf("claim must be held: status=%s claim=%q", got.PayoutStatus, got.ClaimedByTransferID)
	}
	intent, err := h.repos.PayoutTransfers.GetByID(dbctx.From(context.Background()), key)
	if err != nil || intent == nil {
		t.Fatalf("intent missing: %v", err)
	}
	if intent.Status != types.TransferPending {
		t.Fatalf("intent: want pending got %s", intent.Status)
	}

	res, err := h.payouts.Withdraw(vendorCtx(v), v.ID)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	reqs := h.processor.transfers()
	if len(reqs) != 2 || reqs[1].IdempotencyKey != key {
		t.Fatalf("resume must reuse key %s, got %+v", key, reqs)
	}
	if res.Amount != 3000 {
		t.Fatalf("amount: want=3000 got=%d", res.Amount)
	}
	if got := h.order(t, o.ID); got.PayoutStatus != types.PayoutWithdrawn {
		t.Fatalf("payout: want=withdrawn got=%s", got.PayoutStatus)
	}
}

// keyedProcessor follows the processor's idempotency rules: a key that is still being
// processed is refused with 409, a completed key returns its original transfer.
type keyedProcessor struct {
	fakeProcessor
	mu       sync.Mutex
	inFlight map[string]bool
	done     map[string]string
	paid     []types.Cents
	hold     chan struct{}
	entered  chan string
	onPaid   func(req stripepay.TransferRequest)
}

func newKeyedProcessor() *keyedProcessor {
	return &keyedProcessor{inFlight: map[string]bool{}, done: map[string]string{}, entered: make(chan string, 4)}
}

func (p *keyedProcessor) CreateTransfer(_ context.Context, req stripepay.TransferRequest) (string, error) {
	p.mu.Lock()
	if id, ok := p.done[req.IdempotencyKey]; ok {
		p.mu.Unlock()
		return id, nil
	}
	if p.inFlight[req.IdempotencyKey] {
		p.mu.Unlock()
		return "", &stripepay.ProcessorError{Op: "create transfer", Status: 409, Err: errors.New("idempotency key in use by another request")}
	}
	p.inFlight[req.IdempotencyKey] = true
	hold := p.hold
	p.hold = nil
	p.mu.Unlock()

	if hold != nil {
		p.entered <- req.IdempotencyKey
		<-hold
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.inFlight, req.IdempotencyKey)
	id := "tr_" + req.IdempotencyKey
	p.done[req.IdempotencyKey] = id
	p.paid = append(p.paid, req.Amount)
	if p.onPaid != nil {
		p.onPaid(req)
	}
	return id, nil
}

// holdNext blocks the next new transfer until the returned func is called.
func (p *keyedProcessor) holdNext() func() {
	ch := make(chan struct{})
	p.mu.Lock()
	p.hold = ch
	p.mu.Unlock()
	return func() { close(ch) }
}

func (p *keyedProcessor) payments() []types.Cents {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]types.Cents(nil), p.paid...)
}

func newLocklessPayouts(h *harness, proc PaymentProcessor) PayoutService {
	return NewPayoutService(h.db, h.log, h.repos.Vendors, h.repos.Orders, h.repos.PayoutTransfers, proc, nopLocker{}, h.clock)
}

type withdrawOutcome struct {
	res *types.PayoutResult
	err error
}

func TestWithdrawSkipsIntentInFlight(t *testing.T) {
	h := newHarness(t)
	proc := newKeyedProcessor()
	payouts := newLocklessPayouts(h, proc)
	v := testutil.SeedVendor(t, h.db, "owner-a", "acct_a")
	o := seedPayoutOrder(t, h, v.ID, 3000, types.PayoutAvailable, testNow.Add(-time.Hour))

	resume := proc.holdNext()
	first := make(chan withdrawOutcome, 1)
	go func() {
		res, err := payouts.Withdraw(vendorCtx(v), v.ID)
		first <- withdrawOutcome{res, err}
	}()
	key := <-proc.entered

	if _, err := payouts.Withdraw(vendorCtx(v), v.ID); !errors.Is(err, types.ErrNoEligibleOrders) {
		t.Fatalf("withdrawal during transfer: want ErrNoEligibleOrders got %v", err)
	}
	if got := h.order(t, o.ID); got.ClaimedByTransferID != key {
		t.Fatalf("claim must stay with the in-flight intent: want=%s got=%q", key, got.ClaimedByTransferID)
	}

	resume()
	a := <-first
	if a.err != nil {
		t.Fatalf("first withdrawal: %v", a.err)
	}
	if _, err := payouts.Withdraw(vendorCtx(v), v.ID); !errors.Is(err, types.ErrNoEligibleOrders) {
		t.Fatalf("withdrawal after transfer: want ErrNoEligibleOrders got %v", err)
	}

	if paid := proc.payments(); len(paid) != 1 || paid[0] != 3000 {
		t.Fatalf("payments: want [3000] got %v", paid)
	}
	got := h.order(t, o.ID)
	if got.PayoutStatus != types.PayoutWithdrawn || got.PayoutTransferID != a.res.TransferID {
		t.Fatalf("order: want withdrawn via %s got %s via %q", a.res.TransferID, got.PayoutStatus, got.PayoutTransferID)
	}
}

func TestWithdrawConflictOnStaleLeaseKeepsClaims(t *testing.T) {
	h := newHarness(t)
	proc := newKeyedProcessor()
	payouts := newLocklessPayouts(h, proc)
	v := testutil.SeedVendor(t, h.db, "owner-a", "acct_a")
	o := seedPayoutOrder(t, h, v.ID, 3000, types.PayoutAvailable, testNow.Add(-time.Hour))

	resume := proc.holdNext()
	first := make(chan withdrawOutcome, 1)
	go func() {
		res, err := payouts.Withdraw(vendorCtx(v), v.ID)
		first <- withdrawOutcome{res, err}
	}()
	key := <-proc.entered

	// the first request stalls past its lease, so the next one resumes the same intent
	h.clock.Advance(payoutLeaseTTL + time.Minute)
	_, err := payouts.Withdraw(vendorCtx(v), v.ID)
	if !types.IsCode(err, types.CodeExternalService) {
		t.Fatalf("resume during transfer: want external service error got %v", err)
	}
	got := h.order(t, o.ID)
	if got.PayoutStatus != types.PayoutAvailable || got.ClaimedByTransferID != key {
		t.Fatalf("conflict must keep the claim: status=%s claim=%q", got.PayoutStatus, got.ClaimedByTransferID)
	}
	intent, err := h.repos.PayoutTransfers.GetByID(dbctx.From(context.Background()), key)
	if err != nil || intent == nil {
		t.Fatalf("intent missing: %v", err)
	}
	if intent.Status != types.TransferPending {
		t.Fatalf("conflict must keep the intent pending, got %s", intent.Status)
	}

	resume()
	a := <-first
	if a.err != nil {
		t.Fatalf("first withdrawal: %v", a.err)
	}
	if _, err := payouts.Withdraw(vendorCtx(v), v.ID); !errors.Is(err, types.ErrNoEligibleOrders) {
		t.Fatalf("later withdrawal: want ErrNoEligibleOrders got %v", err)
	}
	if paid := proc.payments(); len(paid) != 1 {
		t.Fatalf("order paid %d times", len(paid))
	}
	if got := h.order(t, o.ID); got.PayoutStatus != types.PayoutWithdrawn || got.PayoutTransferID != a.res.TransferID {
		t.Fatalf("order: want withdrawn via %s got %s via %q", a.res.TransferID, got.PayoutStatus, got.PayoutTransferID)
	}
}

func TestWithdrawFailsWhenPaidOrderLostClaim(t *testing.T) {
	h := newHarness(t)
	proc := newKeyedProcessor()
	payouts := newLocklessPayouts(h, proc)
	v := testutil.SeedVendor(t, h.db, "owner-a", "acct_a")
	o := seedPayoutOrder(t, h, v.ID, 3000, types.PayoutAvailable, testNow.Add(-time.Hour))
	proc.onPaid = func(req stripepay.TransferRequest) {
		if err := h.db.Model(&types.Order{}).Where("id = ?", o.ID).Update("claimed_by_transfer_id", "").Error; err != nil {
			t.Errorf("drop claim: %v", err)
		}
	}

	_, err := payouts.Withdraw(vendorCtx(v), v.ID)
	if !types.IsCode(err, types.CodeInternal) {
		t.Fatalf("want internal error got %v", err)
	}
	reqs := proc.payments()
	if len(reqs) != 1 {
		t.Fatalf("payments: want=1 got=%d", len(reqs))
	}
	var intents []*types.PayoutTransfer
	if err := h.db.Find(&intents).Error; err != nil {
		t.Fatalf("list intents: %v", err)
	}
	if len(intents) != 1 || intents[0].Status != types.TransferSucceeded || intents[0].ProcessorTransferID == "" {
		t.Fatalf("money moved, the intent must record it: %+v", intents)
	}
}

func TestWithdrawConflictIsOutcomeUnknown(t *testing.T) {
	conflict := &stripepay.ProcessorError{Op: "create transfer", Status: 409, Err: errors.New("idempotency key in use")}
	if !transferOutcomeUnknown(conflict) {
		t.Fatalf("409 must be treated as outcome unknown")
	}
	rejected := &stripepay.ProcessorError{Op: "create transfer", Status: 400, Err: errors.New("insufficient funds")}
	if transferOutcomeUnknown(rejected) {
		t.Fatalf("400 is a rejection")
	}
}
