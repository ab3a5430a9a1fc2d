package testutil

import (
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/marketplace-backend/internal/domain"
)

func ShipFrom() types.Address {
	return types.Address{
		Name:    "Vendor Warehouse",
		Street1: "100 Market St",
		City:    "San Francisco",
		State:   "CA",
		Zip:     "94105",
		Country: "US",
	}
}

func ShipTo() types.Address {
	return types.Address{
		Name:    "Ada Buyer",
		Street1: "1 Main St",
		City:    "Austin",
		State:   "TX",
		Zip:     "78701",
		Country: "US",
	}
}

func SeedVendor(tb testing.TB, db *gorm.DB, ownerUserID, paymentAccountID string) *types.Vendor {
	tb.Helper()
	v := &types.Vendor{
		ID:               uuid.NewString(),
		OwnerUserID:      ownerUserID,
		DisplayName:      "Vendor " + ownerUserID,
		ShipFrom:         ShipFrom(),
		PaymentAccountID: paymentAccountID,
	}
	if err := db.Create(v).Error; err != nil {
		tb.Fatalf("seed vendor: %v", err)
	}
	return v
}

func SeedProduct(tb testing.TB, db *gorm.DB, vendorID, name string, price types.Cents, stock int) *types.Product {
	tb.Helper()
	p := &types.Product{
		ID:             uuid.NewString(),
		VendorID:       vendorID,
		Name:           name,
		Price:          price,
		TrackInventory: stock >= 0,
		StockQuantity:  max(stock, 0),
	}
	if err := db.Create(p).Error; err != nil {
		tb.Fatalf("seed product: %v", err)
	}
	return p
}

func SeedCartItem(tb testing.TB, db *gorm.DB, buyerID string, p *types.Product, qty int) *types.CartItem {
	tb.Helper()
	ci := &types.CartItem{BuyerID: buyerID, ProductID: p.ID, VendorID: p.VendorID, Quantity: qty}
	if err := db.Create(ci).Error; err != nil {
		tb.Fatalf("seed cart item: %v", err)
	}
	return ci
}

func SeedOrder(tb testing.TB, db *gorm.DB, o *types.Order) *types.Order {
	tb.Helper()
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.CheckoutSessionID == "" {
		o.CheckoutSessionID = uuid.NewString()
	}
	if o.ShippingStatus == "" {
		o.ShippingStatus = types.ShippingPending
	}
	if o.PayoutStatus == "" {
		o.PayoutStatus = types.PayoutPending
	}
	if o.PurchasedAt.IsZero() {
		o.PurchasedAt = o.CreatedAt
	}
	if err := db.Create(o).Error; err != nil {
		tb.Fatalf("seed order: %v", err)
	}
	return o
}
