package domain

import (
	"time"

	"gorm.io/datatypes"
)

// Order is one vendor's share of a completed checkout. Orders are never deleted.
type Order struct {
	ID         string `gorm:"primaryKey;size:64" json:"id"`
	VendorID   string `gorm:"size:64;not null;uniqueIndex:idx_order_checkout_vendor,priority:2;index" json:"vendor_id"`
	VendorName string `gorm:"size:255" json:"vendor_name"`
	BuyerID    string `gorm:"size:64;not null;index" json:"buyer_id"`
	BuyerEmail string `gorm:"size:255" json:"buyer_email"`

	CheckoutSessionID string `gorm:"size:64;not null;uniqueIndex:idx_order_checkout_vendor,priority:1" json:"checkout_session_id"`

	Subtotal     Cents `gorm:"column:subtotal_cents;not null" json:"subtotal_cents"`
	ShippingCost Cents `gorm:"column:shipping_cost_cents;not null" json:"shipping_cost_cents"`
	TotalAmount  Cents `gorm:"column:total_amount_cents;not null" json:"total_amount_cents"`

	LineItems datatypes.JSONSlice[LineItem] `gorm:"type:json" json:"line_items"`
	ShipTo    Address                       `gorm:"embedded;embeddedPrefix:ship_to_" json:"ship_to"`

	PurchasedAt time.Time `gorm:"not null" json:"purchased_at"`

	ShippingStatus ShippingStatus `gorm:"size:32;not null;index" json:"shipping_status"`
	PayoutStatus   PayoutStatus   `gorm:"size:32;not null;index" json:"payout_status"`

	Carrier            string `gorm:"size:128" json:"carrier,omitempty"`
	Service            string `gorm:"size:128" json:"service,omitempty"`
	TrackingNumber     string `gorm:"size:128;index" json:"tracking_number,omitempty"`
	LabelURL           string `gorm:"column:label_url;type:text" json:"label_url,omitempty"`
	LabelObjectKey     string `gorm:"size:512" json:"label_object_key,omitempty"`
	ShippingTxnID      string `gorm:"column:shipping_txn_id;size:128" json:"shipping_txn_id,omitempty"`
	ShipmentID         string `gorm:"size:128" json:"shipment_id,omitempty"`
	ActualShippingCost Cents  `gorm:"column:actual_shipping_cost_cents;not null;default:0" json:"actual_shipping_cost_cents"`

	EstimatedDelivery   *time.Time `json:"estimated_delivery,omitempty"`
	DeliveredAt         *time.Time `json:"delivered_at,omitempty"`
	WithdrawAvailableAt *time.Time `gorm:"index" json:"withdraw_available_at,omitempty"`
	LastTrackingUpdate  *time.Time `gorm:"column:last_tracking_update_at" json:"last_tracking_update_at,omitempty"`

	PayoutTransferID    string `gorm:"size:128" json:"payout_transfer_id,omitempty"`
	ClaimedByTransferID string `gorm:"size:64;not null;default:'';index" json:"-"`

	LastError string `gorm:"type:text" json:"last_error,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Order) TableName() string { return "vendor_order" }

// NewOrderFromDetail builds the pending Order for one vendor of a completed checkout.
func NewOrderFromDetail(id string, sess *CheckoutSession, d VendorDetail, purchasedAt time.Time) *Order {
	items := make([]LineItem, len(d.LineItems))
	copy(items, d.LineItems)
	o := &Order{
		ID:             id,
		VendorID:       d.VendorID,
		VendorName:     d.VendorName,
		Subtotal:       d.Subtotal,
		ShippingCost:   d.ShippingFee,
		TotalAmount:    d.Total,
		LineItems:      items,
		PurchasedAt:    purchasedAt.UTC(),
		ShippingStatus: ShippingPending,
		PayoutStatus:   PayoutPending,
	}
	if sess != nil {
		o.BuyerID = sess.BuyerID
		o.BuyerEmail = sess.BuyerEmail
		o.CheckoutSessionID = sess.ID
		o.ShipTo = sess.ShipTo
	}
	return o
}

func (o *Order) TotalQuantity() int {
	n := 0
	for _, li := range o.LineItems {
		n += li.Quantity
	}
	return n
}

func (o *Order) ProductIDs() []string {
	ids := make([]string, 0, len(o.LineItems))
	for _, li := range o.LineItems {
		ids = append(ids, li.ProductID)
	}
	return ids
}
