package domain

import (
	"time"

	"gorm.io/datatypes"
)

type LineItem struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UnitPrice Cents  `json:"unit_price_cents"`
}

func (li LineItem) Amount() Cents { return li.UnitPrice.Times(li.Quantity) }

// VendorDetail is the full per-vendor block persisted with a checkout session.
// VendorSummary is its compact counterpart carried in processor metadata.
type VendorDetail struct {
	VendorID         string     `json:"vendor_id"`
	VendorName       string     `json:"vendor_name"`
	PaymentAccountID string     `json:"payment_account_id"`
	LineItems        []LineItem `json:"line_items"`
	Subtotal         Cents      `json:"subtotal_cents"`
	ShippingFee      Cents      `json:"shipping_fee_cents"`
	Total            Cents      `json:"total_cents"`
}

func (d VendorDetail) Summary() VendorSummary {
	return VendorSummary{
		VendorID:         d.VendorID,
		PaymentAccountID: d.PaymentAccountID,
		Subtotal:         d.Subtotal,
		ShippingFee:      d.ShippingFee,
		Total:            d.Total,
		Name:             d.VendorName,
	}
}

func (d VendorDetail) ProductIDs() []string {
	ids := make([]string, 0, len(d.LineItems))
	for _, li := range d.LineItems {
		ids = append(ids, li.ProductID)
	}
	return ids
}

func (d VendorDetail) TotalQuantity() int {
	n := 0
	for _, li := range d.LineItems {
		n += li.Quantity
	}
	return n
}

type CheckoutSession struct {
	ID         string  `gorm:"primaryKey;size:64" json:"id"`
	BuyerID    string  `gorm:"size:64;not null;index" json:"buyer_id"`
	BuyerEmail string  `gorm:"size:255" json:"buyer_email"`
	ShipTo     Address `gorm:"embedded;embeddedPrefix:ship_to_" json:"ship_to"`

	Vendors datatypes.JSONSlice[VendorDetail] `gorm:"type:json" json:"vendors"`

	PaymentSessionID string `gorm:"size:255;index" json:"payment_session_id,omitempty"`
	GrossTotal       Cents  `gorm:"column:gross_total_cents;not null" json:"gross_total_cents"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	ExpiresAt time.Time `gorm:"not null" json:"expires_at"`
}

func (CheckoutSession) TableName() string { return "checkout_session" }

func (s *CheckoutSession) Vendor(vendorID string) (VendorDetail, bool) {
	if s == nil {
		return VendorDetail{}, false
	}
	for _, v := range s.Vendors {
		if v.VendorID == vendorID {
			return v, true
		}
	}
	return VendorDetail{}, false
}

func (s *CheckoutSession) SumVendorTotals() Cents {
	var total Cents
	if s == nil {
		return 0
	}
	for _, v := range s.Vendors {
		total += v.Total
	}
	return total
}
