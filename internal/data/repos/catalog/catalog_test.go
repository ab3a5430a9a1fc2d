package catalog

import (
	"context"
	"testing"

	"github.com/yungbote/marketplace-backend/internal/data/repos/testutil"
	"github.com/yungbote/marketplace-backend/internal/platform/dbctx"
)

func TestVendorRepo(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	repo := NewVendorRepo(db, testutil.Logger(t))

	onboarded := testutil.SeedVendor(t, db, "owner-a", "acct_a")
	pending := testutil.SeedVendor(t, db, "owner-b", "")

	got, err := repo.GetByID(dbctx.Context{Ctx: ctx}, onboarded.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got == nil || !got.Onboarded() {
		t.Fatalf("GetByID: want onboarded vendor got=%+v", got)
	}
	if got.ShipFrom.Zip != "94105" {
		t.Fatalf("ship-from zip: want=94105 got=%q", got.ShipFrom.Zip)
	}

	missing, err := repo.GetByID(dbctx.Context{Ctx: ctx}, "nope")
	if err != nil || missing != nil {
		t.Fatalf("GetByID missing: want nil,nil got=%v,%v", missing, err)
	}

	rows, err := repo.GetByIDs(dbctx.Context{Ctx: ctx}, []string{onboarded.ID, pending.ID})
	if err != nil {
		t.Fatalf("GetByIDs: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("GetByIDs: want=2 got=%d", len(rows))
	}

	owned, err := repo.GetByOwner(dbctx.Context{Ctx: ctx}, "owner-b")
	if err != nil {
		t.Fatalf("GetByOwner: %v", err)
	}
	if owned == nil || owned.ID != pending.ID || owned.Onboarded() {
		t.Fatalf("GetByOwner: want=%s got=%+v", pending.ID, owned)
	}
}

func TestCartItemRepoRemoveItemsIsScopedToVendor(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	log := testutil.Logger(t)
	repo := NewCartItemRepo(db, log)

	va := testutil.SeedVendor(t, db, "owner-a", "acct_a")
	vb := testutil.SeedVendor(t, db, "owner-b", "acct_b")
	pa := testutil.SeedProduct(t, db, va.ID, "Mug", 1299, -1)
	pb := testutil.SeedProduct(t, db, vb.ID, "Tee", 599, -1)
	testutil.SeedCartItem(t, db, "buyer-1", pa, 2)
	testutil.SeedCartItem(t, db, "buyer-1", pb, 1)
	testutil.SeedCartItem(t, db, "buyer-2", pa, 1)

	n, err := repo.RemoveItems(dbctx.Context{Ctx: ctx}, "buyer-1", va.ID, []string{pa.ID, pb.ID})
	if err != nil {
		t.Fatalf("RemoveItems: %v", err)
	}
	if n != 1 {
		t.Fatalf("RemoveItems: want=1 got=%d", n)
	}

	left, err := repo.ListByBuyer(dbctx.Context{Ctx: ctx}, "buyer-1")
	if err != nil {
		t.Fatalf("ListByBuyer: %v", err)
	}
	if len(left) != 1 || left[0].ProductID != pb.ID {
		t.Fatalf("ListByBuyer: want only %s got=%+v", pb.ID, left)
	}

	other, err := repo.ListByBuyer(dbctx.Context{Ctx: ctx}, "buyer-2")
	if err != nil {
		t.Fatalf("ListByBuyer buyer-2: %v", err)
	}
	if len(other) != 1 {
		t.Fatalf("other buyer cart: want=1 got=%d", len(other))
	}

	again, err := repo.RemoveItems(dbctx.Context{Ctx: ctx}, "buyer-1", va.ID, []string{pa.ID})
	if err != nil || again != 0 {
		t.Fatalf("RemoveItems replay: want 0,nil got=%d,%v", again, err)
	}
}

func TestProductRepoGetByIDs(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	repo := NewProductRepo(db, testutil.Logger(t))

	v := testutil.SeedVendor(t, db, "owner-a", "acct_a")
	p := testutil.SeedProduct(t, db, v.ID, "Mug", 1299, 5)

	got, err := repo.GetByID(dbctx.Context{Ctx: ctx}, p.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got == nil || got.Price != 1299 || !got.TrackInventory || got.StockQuantity != 5 {
		t.Fatalf("GetByID: got=%+v", got)
	}
	none, err := repo.GetByIDs(dbctx.Context{Ctx: ctx}, nil)
	if err != nil || len(none) != 0 {
		t.Fatalf("GetByIDs empty: got=%v,%v", none, err)
	}
}
