package orders

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/marketplace-backend/internal/data/repos/testutil"
	types "github.com/yungbote/marketplace-backend/internal/domain"
	"github.com/yungbote/marketplace-backend/internal/platform/dbctx"
)

func deliveredOrder(vendorID string, deliveredAt time.Time, payout types.PayoutStatus) *types.Order {
	return &types.Order{
		VendorID:            vendorID,
		BuyerID:             "buyer-1",
		Subtotal:            1000,
		ShippingCost:        500,
		TotalAmount:         1500,
		PurchasedAt:         deliveredAt.Add(-72 * time.Hour),
		ShippingStatus:      types.ShippingDelivered,
		PayoutStatus:        payout,
		DeliveredAt:         testutil.PtrTime(deliveredAt),
		WithdrawAvailableAt: testutil.PtrTime(deliveredAt.Add(types.PayoutWindow)),
	}
}

func TestOrderRepoCreateIfAbsent(t *testing.T) {
	db := testutil.DB(t)
	repo := NewOrderRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: context.Background()}
	now := time.Now().UTC().Truncate(time.Second)

	sess := &types.CheckoutSession{ID: uuid.NewString(), BuyerID: "buyer-1", ShipTo: testutil.ShipTo()}
	detail := types.VendorDetail{VendorID: "vendor-1", Subtotal: 2598, ShippingFee: 599, Total: 3197}

	first := types.NewOrderFromDetail(uuid.NewString(), sess, detail, now)
	created, existing, err := repo.CreateIfAbsent(dbc, first)
	if err != nil {
		t.Fatalf("CreateIfAbsent: %v", err)
	}
	if !created || existing == nil || existing.ID != first.ID {
		t.Fatalf("CreateIfAbsent first: want created got created=%v existing=%v", created, existing)
	}

	dup := types.NewOrderFromDetail(uuid.NewString(), sess, detail, now)
	created, existing, err = repo.CreateIfAbsent(dbc, dup)
	if err != nil {
		t.Fatalf("CreateIfAbsent dup: %v", err)
	}
	if created {
		t.Fatalf("CreateIfAbsent dup: want created=false")
	}
	if existing == nil || existing.ID != first.ID {
		t.Fatalf("CreateIfAbsent dup: want existing=%s got=%v", first.ID, existing)
	}

	rows, err := repo.ListByCheckoutSession(dbc, sess.ID)
	if err != nil {
		t.Fatalf("ListByCheckoutSession: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("orders per vendor: want=1 got=%d", len(rows))
	}
	if rows[0].TotalAmount != 3197 || rows[0].ShipTo.City != "Austin" {
		t.Fatalf("stored order: got=%+v", rows[0])
	}
}

func TestOrderRepoTransitionShippingIsGuarded(t *testing.T) {
	db := testutil.DB(t)
	repo := NewOrderRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: context.Background()}

	o := testutil.SeedOrder(t, db, &types.Order{
		VendorID:       "vendor-1",
		BuyerID:        "buyer-1",
		TrackingNumber: "TRK1",
		ShippingStatus: types.ShippingShipped,
		PurchasedAt:    time.Now().UTC().Truncate(time.Second),
	})

	ok, err := repo.TransitionShipping(dbc, o.ID, types.ShippingLabelCreated, nil)
	if err != nil {
		t.Fatalf("TransitionShipping backward: %v", err)
	}
	if ok {
		t.Fatalf("TransitionShipping backward: want ok=false")
	}

	ok, err = repo.TransitionShipping(dbc, o.ID, types.ShippingDelivered, map[string]interface{}{
		"last_error": "",
	})
	if err != nil || !ok {
		t.Fatalf("TransitionShipping forward: want ok got=%v,%v", ok, err)
	}

	got, err := repo.GetByTrackingNumber(dbc, "TRK1")
	if err != nil {
		t.Fatalf("GetByTrackingNumber: %v", err)
	}
	if got == nil || got.ShippingStatus != types.ShippingDelivered {
		t.Fatalf("status: want=%s got=%v", types.ShippingDelivered, got)
	}

	ok, err = repo.TransitionShipping(dbc, o.ID, types.ShippingShipped, nil)
	if err != nil || ok {
		t.Fatalf("TransitionShipping from delivered: want false,nil got=%v,%v", ok, err)
	}

	missing, err := repo.GetByTrackingNumber(dbc, "NOPE")
	if err != nil || missing != nil {
		t.Fatalf("GetByTrackingNumber missing: want nil,nil got=%v,%v", missing, err)
	}
}

func TestOrderRepoPromoteMaturedSkipsFutureDated(t *testing.T) {
	db := testutil.DB(t)
	repo := NewOrderRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: context.Background()}
	now := time.Now().UTC().Truncate(time.Second)

	matured := testutil.SeedOrder(t, db, deliveredOrder("vendor-1", now.Add(-31*24*time.Hour), types.PayoutPending))
	future := testutil.SeedOrder(t, db, deliveredOrder("vendor-1", now.Add(-5*24*time.Hour), types.PayoutPending))
	other := testutil.SeedOrder(t, db, deliveredOrder("vendor-2", now.Add(-40*24*time.Hour), types.PayoutPending))

	n, err := repo.PromoteMatured(dbc, "vendor-1", now)
	if err != nil {
		t.Fatalf("PromoteMatured: %v", err)
	}
	if n != 1 {
		t.Fatalf("PromoteMatured: want=1 got=%d", n)
	}

	for _, tc := range []struct {
		id   string
		want types.PayoutStatus
	}{
		{matured.ID, types.PayoutAvailable},
		{future.ID, types.PayoutPending},
		{other.ID, types.PayoutPending},
	} {
		got, err := repo.GetByID(dbc, tc.id)
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		if got.PayoutStatus != tc.want {
			t.Fatalf("order %s: want=%s got=%s", tc.id, tc.want, got.PayoutStatus)
		}
	}

	ok, err := repo.PromoteMaturedByID(dbc, other.ID, now)
	if err != nil || !ok {
		t.Fatalf("PromoteMaturedByID: want true,nil got=%v,%v", ok, err)
	}
	ok, err = repo.PromoteMaturedByID(dbc, other.ID, now)
	if err != nil || ok {
		t.Fatalf("PromoteMaturedByID replay: want false,nil got=%v,%v", ok, err)
	}
	ok, err = repo.PromoteMaturedByID(dbc, future.ID, now)
	if err != nil || ok {
		t.Fatalf("PromoteMaturedByID future: want false,nil got=%v,%v", ok, err)
	}
}

func TestOrderRepoClaimLifecycle(t *testing.T) {
	db := testutil.DB(t)
	repo := NewOrderRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: context.Background()}
	now := time.Now().UTC().Truncate(time.Second)

	a := testutil.SeedOrder(t, db, deliveredOrder("vendor-1", now.Add(-31*24*time.Hour), types.PayoutAvailable))
	b := testutil.SeedOrder(t, db, deliveredOrder("vendor-1", now.Add(-35*24*time.Hour), types.PayoutAvailable))
	withdrawn := testutil.SeedOrder(t, db, deliveredOrder("vendor-1", now.Add(-60*24*time.Hour), types.PayoutWithdrawn))
	// available but with a future window must never be claimed
	early := testutil.SeedOrder(t, db, deliveredOrder("vendor-1", now.Add(-1*24*time.Hour), types.PayoutAvailable))

	n, err := repo.ClaimAvailable(dbc, "vendor-1", "xfer-1", now)
	if err != nil {
		t.Fatalf("ClaimAvailable: %v", err)
	}
	if n != 2 {
		t.Fatalf("ClaimAvailable: want=2 got=%d", n)
	}

	n, err = repo.ClaimAvailable(dbc, "vendor-1", "xfer-2", now)
	if err != nil || n != 0 {
		t.Fatalf("second claim: want 0,nil got=%d,%v", n, err)
	}

	claimed, err := repo.ListClaimed(dbc, "xfer-1")
	if err != nil {
		t.Fatalf("ListClaimed: %v", err)
	}
	ids := map[string]bool{}
	for _, o := range claimed {
		ids[o.ID] = true
	}
	if len(ids) != 2 || !ids[a.ID] || !ids[b.ID] || ids[withdrawn.ID] || ids[early.ID] {
		t.Fatalf("claimed set: got=%v", ids)
	}

	released, err := repo.ReleaseClaims(dbc, "xfer-1", now)
	if err != nil || released != 2 {
		t.Fatalf("ReleaseClaims: want 2,nil got=%d,%v", released, err)
	}

	n, err = repo.ClaimAvailable(dbc, "vendor-1", "xfer-3", now)
	if err != nil || n != 2 {
		t.Fatalf("reclaim: want 2,nil got=%d,%v", n, err)
	}
	marked, err := repo.MarkWithdrawn(dbc, "xfer-3", "tr_123", now)
	if err != nil || marked != 2 {
		t.Fatalf("MarkWithdrawn: want 2,nil got=%d,%v", marked, err)
	}
	again, err := repo.MarkWithdrawn(dbc, "xfer-3", "tr_123", now)
	if err != nil || again != 0 {
		t.Fatalf("MarkWithdrawn replay: want 0,nil got=%d,%v", again, err)
	}

	got, err := repo.GetByID(dbc, a.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.PayoutStatus != types.PayoutWithdrawn || got.PayoutTransferID != "tr_123" {
		t.Fatalf("withdrawn order: got status=%s transfer=%s", got.PayoutStatus, got.PayoutTransferID)
	}
	if !got.UpdatedAt.Equal(now) {
		t.Fatalf("updated_at: want=%s got=%s", now, got.UpdatedAt)
	}

	sums, err := repo.SumByPayoutStatus(dbc, "vendor-1")
	if err != nil {
		t.Fatalf("SumByPayoutStatus: %v", err)
	}
	if sums[types.PayoutWithdrawn] != 4500 || sums[types.PayoutAvailable] != 1500 {
		t.Fatalf("sums: got=%v", sums)
	}
}

func TestProcessedEventRepoBegin(t *testing.T) {
	db := testutil.DB(t)
	repo := NewProcessedEventRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: context.Background()}

	status, fresh, err := repo.Begin(dbc, types.EventSourceStripe, "evt_1")
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if !fresh || status != types.EventProcessing {
		t.Fatalf("Begin first: want fresh processing got fresh=%v status=%s", fresh, status)
	}

	status, fresh, err = repo.Begin(dbc, types.EventSourceStripe, "evt_1")
	if err != nil {
		t.Fatalf("Begin replay: %v", err)
	}
	if fresh || status != types.EventProcessing {
		t.Fatalf("Begin replay: want stale processing got fresh=%v status=%s", fresh, status)
	}

	if err := repo.MarkDone(dbc, types.EventSourceStripe, "evt_1"); err != nil {
		t.Fatalf("MarkDone: %v", err)
	}
	status, fresh, err = repo.Begin(dbc, types.EventSourceStripe, "evt_1")
	if err != nil || fresh || status != types.EventDone {
		t.Fatalf("Begin after done: want done got fresh=%v status=%s err=%v", fresh, status, err)
	}

	// same id from another source is a different event
	_, fresh, err = repo.Begin(dbc, types.EventSourceShippo, "evt_1")
	if err != nil || !fresh {
		t.Fatalf("Begin other source: want fresh got fresh=%v err=%v", fresh, err)
	}

	row, err := repo.Get(dbc, types.EventSourceStripe, "evt_1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if row.Attempts != 3 {
		t.Fatalf("attempts: want=3 got=%d", row.Attempts)
	}
}

func TestCheckoutSessionRepo(t *testing.T) {
	db := testutil.DB(t)
	repo := NewCheckoutSessionRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: context.Background()}
	now := time.Now().UTC().Truncate(time.Second)

	sess := &types.CheckoutSession{
		ID:      uuid.NewString(),
		BuyerID: "buyer-1",
		ShipTo:  testutil.ShipTo(),
		Vendors: []types.VendorDetail{{
			VendorID:         "vendor-1",
			VendorName:       "Mugs",
			PaymentAccountID: "acct_1",
			LineItems:        []types.LineItem{{ProductID: "p1", Name: "Mug", Quantity: 2, UnitPrice: 1299}},
			Subtotal:         2598,
			ShippingFee:      599,
			Total:            3197,
		}},
		GrossTotal: 3197,
		ExpiresAt:  now.Add(types.CheckoutSessionTTL),
	}
	if _, err := repo.Create(dbc, sess); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := repo.AttachPaymentSession(dbc, sess.ID, "cs_test_1"); err != nil {
		t.Fatalf("AttachPaymentSession: %v", err)
	}

	got, err := repo.GetByID(dbc, sess.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.PaymentSessionID != "cs_test_1" {
		t.Fatalf("payment session: want=cs_test_1 got=%q", got.PaymentSessionID)
	}
	d, ok := got.Vendor("vendor-1")
	if !ok || d.Total != 3197 || len(d.LineItems) != 1 {
		t.Fatalf("vendor detail: got=%+v ok=%v", d, ok)
	}
	if got.SumVendorTotals() != got.GrossTotal {
		t.Fatalf("gross: want=%d got=%d", got.GrossTotal, got.SumVendorTotals())
	}

	n, err := repo.DeleteExpiredBefore(dbc, now.Add(time.Hour))
	if err != nil || n != 1 {
		t.Fatalf("DeleteExpiredBefore: want 1,nil got=%d,%v", n, err)
	}
}
