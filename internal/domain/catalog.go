package domain

import "time"

// Vendor is owned by the catalog service; this service only reads it.
type Vendor struct {
	ID          string `gorm:"primaryKey;size:64" json:"id"`
	OwnerUserID string `gorm:"size:64;not null;index" json:"owner_user_id"`
	DisplayName string `gorm:"size:255;not null" json:"display_name"`

	ShipFrom Address `gorm:"embedded;embeddedPrefix:from_" json:"ship_from"`

	// Connected payment sub-account. Empty until the vendor finishes onboarding.
	PaymentAccountID string `gorm:"size:128" json:"-"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Vendor) TableName() string { return "vendor" }

func (v *Vendor) Onboarded() bool {
	return v != nil && v.PaymentAccountID != ""
}

type Product struct {
	ID       string `gorm:"primaryKey;size:64" json:"id"`
	VendorID string `gorm:"size:64;not null;index" json:"vendor_id"`
	Name     string `gorm:"size:255;not null" json:"name"`
	Price    Cents  `gorm:"column:price_cents;not null" json:"price_cents"`
	Draft    bool   `gorm:"not null;default:false" json:"draft"`

	TrackInventory bool `gorm:"not null;default:false" json:"track_inventory"`
	StockQuantity  int  `gorm:"not null;default:0" json:"stock_quantity"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Product) TableName() string { return "product" }

// CartItem is one line of a buyer's standing cart. Rows are removed individually so
// concurrent vendor completions never overwrite each other.
type CartItem struct {
	BuyerID   string    `gorm:"primaryKey;size:64" json:"buyer_id"`
	ProductID string    `gorm:"primaryKey;size:64" json:"product_id"`
	VendorID  string    `gorm:"size:64;not null;index" json:"vendor_id"`
	Quantity  int       `gorm:"not null" json:"quantity"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (CartItem) TableName() string { return "cart_item" }
